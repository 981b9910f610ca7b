package validator

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/sirupsen/logrus"

	"github.com/livebydesign2/supa-seed-sub002/internal/connector"
	"github.com/livebydesign2/supa-seed-sub002/internal/generator"
	"github.com/livebydesign2/supa-seed-sub002/pkg/models"
)

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// Operation names accepted by ValidateOperation
const (
	InsertOperation = "insert"
	UpdateOperation = "update"
)

// OperationContext describes one candidate write to validate
type OperationContext struct {
	Table     string
	Operation string
	Record    map[string]interface{}
	IDColumn  string
	RecordID  interface{}
}

// RuleOutcome is the result of applying one rule or handler
type RuleOutcome struct {
	Valid   bool
	Warning bool
	Message string
	Fix     *models.AutoFix
}

// ValidationRule is an executable rule compiled from one constraint
type ValidationRule struct {
	Name     string
	Type     models.ConstraintType
	Table    string
	Field    string
	Severity models.RuleSeverity
	Check    func(ctx context.Context, op *OperationContext) RuleOutcome
}

// ConstraintHandler evaluates constraints the generic rules cannot,
// such as named business rules and CHECK expressions. Handlers are
// injected at construction so tests can substitute deterministic sets.
type ConstraintHandler interface {
	Matches(constraint models.Constraint) bool
	Apply(ctx context.Context, constraint models.Constraint, op *OperationContext) RuleOutcome
}

// ConstraintValidator compiles discovered constraints into executable
// rules and validates candidate records before writes
type ConstraintValidator struct {
	DB       *connector.DatabaseConnector
	Logger   *logrus.Logger
	Handlers []ConstraintHandler

	rules    map[string][]ValidationRule
	snapshot *models.SchemaSnapshot
}

// NewConstraintValidator creates a validator with the given handler set.
// DB may be nil; uniqueness and foreign-key lookups then degrade to warnings.
func NewConstraintValidator(db *connector.DatabaseConnector, logger *logrus.Logger, handlers ...ConstraintHandler) *ConstraintValidator {
	return &ConstraintValidator{
		DB:       db,
		Logger:   logger,
		Handlers: handlers,
		rules:    make(map[string][]ValidationRule),
	}
}

// Initialize compiles validation rules for every table in the snapshot.
// columnMaps (optional, keyed by table) enables role-specific heuristics
// such as email-format checks on mapped email columns.
func (cv *ConstraintValidator) Initialize(snapshot *models.SchemaSnapshot, columnMaps map[string]*models.TableColumnMap) error {
	if snapshot == nil {
		return fmt.Errorf("snapshot is required")
	}
	cv.snapshot = snapshot
	cv.rules = make(map[string][]ValidationRule)

	for i := range snapshot.Tables {
		table := &snapshot.Tables[i]
		var rules []ValidationRule

		for _, col := range table.Columns {
			if col.IsNullable || col.DefaultValue != nil {
				continue
			}
			rules = append(rules, cv.notNullRule(table.Name, col))
		}

		for _, c := range table.Constraints {
			switch c.Type {
			case models.UniqueConstraint, models.PrimaryKeyConstraint:
				if len(c.Columns) > 0 {
					rules = append(rules, cv.uniqueRule(table.Name, c))
				}
			case models.ForeignKeyConstraint:
				if len(c.Columns) > 0 && c.ReferencedTable != "" {
					rules = append(rules, cv.foreignKeyRule(table, c))
				}
			case models.CheckConstraint, models.BusinessConstraint:
				rules = append(rules, cv.handlerRule(c))
			}
		}

		if cm := columnMaps[table.Name]; cm != nil && cm.Role == models.UserRole {
			if m := cm.Mapping("email"); m != nil {
				rules = append(rules, emailFormatRule(table.Name, m.ActualColumn))
			}
		}

		cv.rules[table.Name] = rules
		cv.Logger.Debugf("Compiled %d validation rules for table %s", len(rules), table.Name)
	}

	return nil
}

// Rules returns the compiled rules for a table
func (cv *ConstraintValidator) Rules(table string) []ValidationRule {
	return cv.rules[table]
}

// ValidateOperation runs every rule applicable to the target table and
// returns the aggregated result. Errors block the write; warnings do not.
func (cv *ConstraintValidator) ValidateOperation(ctx context.Context, op *OperationContext) *models.ValidationResult {
	result := &models.ValidationResult{Valid: true}

	rules, ok := cv.rules[op.Table]
	if !ok {
		result.Warnings = append(result.Warnings, models.ValidationError{
			Rule:     "unknown_table",
			Message:  fmt.Sprintf("no compiled rules for table %q", op.Table),
			Severity: models.SeverityWarning,
		})
		return result
	}

	for _, rule := range rules {
		result.RulesChecked++
		outcome := rule.Check(ctx, op)
		if outcome.Valid && !outcome.Warning {
			continue
		}

		entry := models.ValidationError{
			Rule:     rule.Name,
			Field:    rule.Field,
			Message:  outcome.Message,
			Severity: rule.Severity,
		}
		if outcome.Warning || rule.Severity == models.SeverityWarning {
			entry.Severity = models.SeverityWarning
			result.Warnings = append(result.Warnings, entry)
		} else {
			result.Errors = append(result.Errors, entry)
			result.Valid = false
		}
		if outcome.Fix != nil {
			result.Fixes = append(result.Fixes, *outcome.Fix)
		}
	}

	return result
}

// notNullRule fails when the field is null or missing and proposes a
// provide_default fix with a type-appropriate value. Empty strings are
// legal NOT NULL values.
func (cv *ConstraintValidator) notNullRule(table string, col models.Column) ValidationRule {
	name := fmt.Sprintf("%s_%s_not_null", table, col.Name)
	return ValidationRule{
		Name:     name,
		Type:     models.NotNullConstraint,
		Table:    table,
		Field:    col.Name,
		Severity: models.SeverityError,
		Check: func(_ context.Context, op *OperationContext) RuleOutcome {
			value, present := op.Record[col.Name]
			if present && value != nil {
				return RuleOutcome{Valid: true}
			}
			return RuleOutcome{
				Valid:   false,
				Message: fmt.Sprintf("column %s.%s must not be null", table, col.Name),
				Fix: &models.AutoFix{
					Rule:          name,
					Field:         col.Name,
					OriginalValue: value,
					FixedValue:    generator.DefaultForType(col.DataType),
					Strategy:      models.ProvideDefault,
				},
			}
		},
	}
}

// uniqueRule performs a read-only lookup for a conflicting row. An update
// of the same record is not a conflict.
func (cv *ConstraintValidator) uniqueRule(table string, c models.Constraint) ValidationRule {
	name := fmt.Sprintf("%s_%s_unique", table, c.Name)
	field := c.Columns[0]
	return ValidationRule{
		Name:     name,
		Type:     models.UniqueConstraint,
		Table:    table,
		Field:    field,
		Severity: models.SeverityError,
		Check: func(ctx context.Context, op *OperationContext) RuleOutcome {
			if cv.DB == nil {
				return RuleOutcome{Valid: true, Warning: true,
					Message: fmt.Sprintf("uniqueness of %s.%s not verified (no database connection)", table, field)}
			}

			where := sq.Eq{}
			allEmpty := true
			for _, col := range c.Columns {
				value := op.Record[col]
				if !isEmpty(value) {
					allEmpty = false
				}
				where[col] = value
			}
			if allEmpty {
				return RuleOutcome{Valid: true}
			}

			query := cv.DB.StatementBuilder().
				Select(c.Columns[0]).
				From(table).
				Where(where).
				Limit(1)
			if op.Operation == UpdateOperation && op.IDColumn != "" && op.RecordID != nil {
				query = query.Where(sq.NotEq{op.IDColumn: op.RecordID})
			}

			exists, err := cv.DB.QueryExists(ctx, query)
			if err != nil {
				cv.Logger.Warningf("Uniqueness lookup failed for %s: %v", name, err)
				return RuleOutcome{Valid: true, Warning: true,
					Message: fmt.Sprintf("uniqueness of %s.%s not verified: %v", table, field, err)}
			}
			if exists {
				return RuleOutcome{
					Valid:   false,
					Message: fmt.Sprintf("a row with the same %s already exists in %s", strings.Join(c.Columns, ","), table),
				}
			}
			return RuleOutcome{Valid: true}
		},
	}
}

// foreignKeyRule checks the referenced row exists, unless the column is
// null and nullable
func (cv *ConstraintValidator) foreignKeyRule(table *models.TableInfo, c models.Constraint) ValidationRule {
	name := fmt.Sprintf("%s_%s_fk", table.Name, c.Name)
	field := c.Columns[0]
	nullable := false
	if col := table.Column(field); col != nil {
		nullable = col.IsNullable
	}
	referencedColumn := c.ReferencedColumn
	if referencedColumn == "" {
		referencedColumn = "id"
	}

	return ValidationRule{
		Name:     name,
		Type:     models.ForeignKeyConstraint,
		Table:    table.Name,
		Field:    field,
		Severity: models.SeverityError,
		Check: func(ctx context.Context, op *OperationContext) RuleOutcome {
			value := op.Record[field]
			if isEmpty(value) {
				if nullable {
					return RuleOutcome{Valid: true}
				}
				return RuleOutcome{
					Valid:   false,
					Message: fmt.Sprintf("%s.%s references %s but is null", table.Name, field, c.ReferencedTable),
					Fix: &models.AutoFix{
						Rule:     name,
						Field:    field,
						Strategy: models.CreateDependency,
					},
				}
			}

			if cv.DB == nil {
				return RuleOutcome{Valid: true, Warning: true,
					Message: fmt.Sprintf("referenced row %s.%s=%v not verified (no database connection)", c.ReferencedTable, referencedColumn, value)}
			}

			query := cv.DB.StatementBuilder().
				Select(referencedColumn).
				From(c.ReferencedTable).
				Where(sq.Eq{referencedColumn: value}).
				Limit(1)
			exists, err := cv.DB.QueryExists(ctx, query)
			if err != nil {
				cv.Logger.Warningf("Foreign key lookup failed for %s: %v", name, err)
				return RuleOutcome{Valid: true, Warning: true,
					Message: fmt.Sprintf("referenced row in %s not verified: %v", c.ReferencedTable, err)}
			}
			if !exists {
				return RuleOutcome{
					Valid:   false,
					Message: fmt.Sprintf("%s.%s=%v has no matching row in %s.%s", table.Name, field, value, c.ReferencedTable, referencedColumn),
				}
			}
			return RuleOutcome{Valid: true}
		},
	}
}

// handlerRule dispatches CHECK and business-logic constraints to the
// registered handler set. Without a matching handler the constraint is
// assumed valid but flagged as a warning, never silently passed.
func (cv *ConstraintValidator) handlerRule(c models.Constraint) ValidationRule {
	name := fmt.Sprintf("%s_%s_%s", c.Table, c.Name, c.Type)
	field := ""
	if len(c.Columns) > 0 {
		field = c.Columns[0]
	}
	return ValidationRule{
		Name:     name,
		Type:     c.Type,
		Table:    c.Table,
		Field:    field,
		Severity: models.SeverityError,
		Check: func(ctx context.Context, op *OperationContext) RuleOutcome {
			for _, handler := range cv.Handlers {
				if handler.Matches(c) {
					return handler.Apply(ctx, c, op)
				}
			}
			return RuleOutcome{
				Valid:   true,
				Warning: true,
				Message: fmt.Sprintf("constraint %q on %s not verified (no handler for %q)", c.Name, c.Table, c.CheckExpression),
			}
		},
	}
}

// emailFormatRule validates the format of a mapped email column on a
// user-role table
func emailFormatRule(table, column string) ValidationRule {
	name := fmt.Sprintf("%s_%s_email_format", table, column)
	return ValidationRule{
		Name:     name,
		Type:     models.BusinessConstraint,
		Table:    table,
		Field:    column,
		Severity: models.SeverityWarning,
		Check: func(_ context.Context, op *OperationContext) RuleOutcome {
			value, ok := op.Record[column].(string)
			if !ok || value == "" {
				return RuleOutcome{Valid: true}
			}
			if !emailPattern.MatchString(value) {
				return RuleOutcome{
					Valid:   false,
					Message: fmt.Sprintf("%s.%s value %q is not a valid email address", table, column, value),
				}
			}
			return RuleOutcome{Valid: true}
		},
	}
}

// ApplyAutoFixes applies fixes to a copy of the record and returns the
// updated copy plus the fixes actually applied. A provide_default fix is
// a no-op when the field already holds a non-empty value, which makes
// repeated application idempotent.
func ApplyAutoFixes(record map[string]interface{}, fixes []models.AutoFix) (map[string]interface{}, []models.AutoFix) {
	updated := make(map[string]interface{}, len(record))
	for k, v := range record {
		updated[k] = v
	}

	var applied []models.AutoFix
	for _, fix := range fixes {
		switch fix.Strategy {
		case models.ProvideDefault:
			if !isEmpty(updated[fix.Field]) {
				continue
			}
			updated[fix.Field] = fix.FixedValue
		case models.ModifyValue:
			updated[fix.Field] = fix.FixedValue
		case models.SkipField:
			delete(updated, fix.Field)
		case models.CreateDependency:
			// Dependency creation happens at the workflow level, not here
			continue
		default:
			continue
		}
		fix.Applied = true
		applied = append(applied, fix)
	}

	return updated, applied
}

func isEmpty(value interface{}) bool {
	if value == nil {
		return true
	}
	if s, ok := value.(string); ok {
		return s == ""
	}
	return false
}

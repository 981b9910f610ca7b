package workflow

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/livebydesign2/supa-seed-sub002/internal/generator"
	"github.com/livebydesign2/supa-seed-sub002/internal/validator"
	"github.com/livebydesign2/supa-seed-sub002/pkg/models"
)

// Well-known step ids used by the builder
const (
	PrincipalStepID = "create_principal"
)

// BuildOptions tunes workflow construction
type BuildOptions struct {
	RetryCount  int
	StepTimeout time.Duration
}

// WorkflowBuilder synthesizes dependency-annotated creation workflows from
// the mapper, grapher, and validator outputs
type WorkflowBuilder struct {
	Generator *generator.DataGenerator
	Validator *validator.ConstraintValidator
	Logger    *logrus.Logger
}

// NewWorkflowBuilder creates a new workflow builder
func NewWorkflowBuilder(gen *generator.DataGenerator, val *validator.ConstraintValidator, logger *logrus.Logger) *WorkflowBuilder {
	return &WorkflowBuilder{
		Generator: gen,
		Validator: val,
		Logger:    logger,
	}
}

// Build constructs the ordered step sequence for creating one entity in
// the primary table, plus its reverse-order rollback plan
func (b *WorkflowBuilder) Build(
	snapshot *models.SchemaSnapshot,
	graph *models.RelationshipGraph,
	columnMaps map[string]*models.TableColumnMap,
	req *models.CreationRequest,
	opts BuildOptions,
) (*models.UserCreationWorkflow, error) {
	primary, err := b.resolvePrimaryTable(snapshot, columnMaps, req.Table)
	if err != nil {
		return nil, err
	}
	columnMap := columnMaps[primary.Name]
	if columnMap == nil {
		columnMap = &models.TableColumnMap{Table: primary.Name, Role: models.ContentRole}
	}

	wf := &models.UserCreationWorkflow{
		ID: uuid.NewString(),
		Metadata: models.WorkflowMetadata{
			Framework:         snapshot.Framework,
			SchemaFingerprint: snapshot.Fingerprint,
			PrimaryTable:      primary.Name,
			CreatedAt:         time.Now(),
		},
	}

	var insertDeps []string

	// An externally-managed auth principal is only needed for user entities
	if columnMap.Role == models.UserRole {
		wf.Steps = append(wf.Steps, models.WorkflowStep{
			ID:          PrincipalStepID,
			Type:        models.CreatePrincipalStep,
			OnError:     models.FailPolicy,
			RetryCount:  opts.RetryCount,
			Timeout:     opts.StepTimeout,
			Description: "create authentication principal",
		})
		insertDeps = append(insertDeps, PrincipalStepID)
	}

	if b.Validator != nil {
		for _, rule := range b.Validator.Rules(primary.Name) {
			// Every error-severity rule gets a pre-check except not-null,
			// which is always satisfied by a generated default at insert time
			if rule.Severity != models.SeverityError || rule.Type == models.NotNullConstraint {
				continue
			}
			stepID := "validate_" + rule.Name
			wf.Steps = append(wf.Steps, models.WorkflowStep{
				ID:           stepID,
				Type:         models.ValidateConstraintStep,
				Table:        primary.Name,
				Dependencies: append([]string(nil), insertDeps...),
				OnError:      models.FailPolicy,
				Timeout:      opts.StepTimeout,
				Description:  "pre-check " + rule.Name,
			})
			insertDeps = append(insertDeps, stepID)
		}
	}

	// Required foreign keys of the primary table need their parent rows
	// first; each prerequisite insert feeds its generated id back into
	// the primary record
	fkRefs := make(map[string]string)
	prereqTables := make(map[string]bool)
	for _, prereq := range b.prerequisiteTables(snapshot, graph, primary.Name) {
		stepID := "insert_" + prereq.table.Name
		fkRefs[prereq.fkColumn] = stepID
		prereqTables[prereq.table.Name] = true
		wf.Steps = append(wf.Steps, models.WorkflowStep{
			ID:           stepID,
			Type:         models.InsertRecordStep,
			Table:        prereq.table.Name,
			Fields:       b.buildPrerequisiteFields(prereq.table, graph),
			OnError:      models.FailPolicy,
			RetryCount:   opts.RetryCount,
			Timeout:      opts.StepTimeout,
			Description:  fmt.Sprintf("insert prerequisite record into %s for %s.%s", prereq.table.Name, primary.Name, prereq.fkColumn),
		})
		insertDeps = append(insertDeps, stepID)
	}

	primaryStepID := "insert_" + primary.Name
	primaryStep := models.WorkflowStep{
		ID:           primaryStepID,
		Type:         models.InsertRecordStep,
		Table:        primary.Name,
		Fields:       b.buildFields(primary, columnMap, req, graph, fkRefs),
		Dependencies: append([]string(nil), insertDeps...),
		OnError:      models.FailPolicy,
		RetryCount:   opts.RetryCount,
		Timeout:      opts.StepTimeout,
		Description:  "insert primary record into " + primary.Name,
	}
	wf.Steps = append(wf.Steps, primaryStep)

	// Dependent tables: anything with a required foreign key at the primary
	for _, dep := range b.dependentTables(snapshot, graph, primary.Name) {
		if prereqTables[dep.table.Name] {
			continue
		}
		wf.Steps = append(wf.Steps, models.WorkflowStep{
			ID:           "insert_" + dep.table.Name,
			Type:         models.InsertRecordStep,
			Table:        dep.table.Name,
			Fields:       b.buildDependentFields(dep.table, dep.fkColumn, primaryStepID, graph),
			Dependencies: []string{primaryStepID},
			OnError:      models.SkipPolicy,
			RetryCount:   opts.RetryCount,
			Timeout:      opts.StepTimeout,
			Description:  fmt.Sprintf("insert dependent record into %s (%s)", dep.table.Name, dep.fkColumn),
		})
	}

	for _, trigger := range primary.Triggers {
		if !strings.EqualFold(trigger.Event, "INSERT") {
			continue
		}
		wf.Steps = append(wf.Steps, models.WorkflowStep{
			ID:           "trigger_" + trigger.Name,
			Type:         models.ExecuteTriggerStep,
			Table:        primary.Name,
			Dependencies: []string{primaryStepID},
			OnError:      models.ContinuePolicy,
			Timeout:      opts.StepTimeout,
			Description:  fmt.Sprintf("observe %s %s trigger %s", trigger.Timing, trigger.Event, trigger.Name),
		})
	}

	// Rollback plan: one compensating delete per insert step, reverse order
	for i := len(wf.Steps) - 1; i >= 0; i-- {
		step := wf.Steps[i]
		if step.Type != models.InsertRecordStep {
			continue
		}
		wf.RollbackSteps = append(wf.RollbackSteps, models.RollbackStep{
			StepID: step.ID,
			Table:  step.Table,
			Column: primaryKeyColumn(snapshot.Table(step.Table)),
		})
	}

	b.Logger.Infof("Built workflow %s for table %s: %d steps, %d rollback steps",
		wf.ID, primary.Name, len(wf.Steps), len(wf.RollbackSteps))

	return wf, nil
}

// resolvePrimaryTable finds the requested table by exact name, then by
// semantic role, then synthesizes nothing: with no candidate the build fails
func (b *WorkflowBuilder) resolvePrimaryTable(snapshot *models.SchemaSnapshot, columnMaps map[string]*models.TableColumnMap, requested string) (*models.TableInfo, error) {
	if requested != "" {
		if t := snapshot.Table(requested); t != nil {
			return t, nil
		}
		b.Logger.Warningf("Requested primary table %q not found, trying role fallback", requested)
	}

	// Prefer a user-role table, favoring the conventional names
	var candidates []string
	for table, cm := range columnMaps {
		if cm.Role == models.UserRole {
			candidates = append(candidates, table)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		return userTablePriority(candidates[i]) > userTablePriority(candidates[j])
	})
	for _, name := range candidates {
		if t := snapshot.Table(name); t != nil {
			return t, nil
		}
	}

	if len(snapshot.Tables) > 0 {
		// Minimal pattern: fall back to the first table and work from its
		// raw column list
		b.Logger.Warningf("No user-role table found, using %s as primary", snapshot.Tables[0].Name)
		return &snapshot.Tables[0], nil
	}

	return nil, fmt.Errorf("no primary table resolvable: schema has no tables")
}

func userTablePriority(name string) int {
	switch strings.ToLower(name) {
	case "profiles":
		return 4
	case "users":
		return 3
	case "accounts":
		return 2
	default:
		return 1
	}
}

// buildFields produces one WorkflowField per physical column that needs a value
func (b *WorkflowBuilder) buildFields(table *models.TableInfo, columnMap *models.TableColumnMap, req *models.CreationRequest, graph *models.RelationshipGraph, fkRefs map[string]string) []models.WorkflowField {
	var fields []models.WorkflowField
	covered := make(map[string]bool)

	columnForField := make(map[string]string)
	fieldForColumn := make(map[string]string)
	for _, m := range columnMap.Mappings {
		columnForField[m.SemanticField] = m.ActualColumn
		fieldForColumn[m.ActualColumn] = m.SemanticField
	}

	for _, col := range table.Columns {
		if covered[col.Name] {
			continue
		}

		semantic := fieldForColumn[col.Name]

		// Primary keys reference the generated principal id when one exists
		if col.IsPrimaryKey || semantic == "id" {
			if columnMap.Role == models.UserRole {
				fields = append(fields, models.WorkflowField{
					Column:    col.Name,
					Source:    models.ReferenceSource,
					Reference: PrincipalStepID,
					Semantic:  "id",
				})
			} else {
				fields = append(fields, models.WorkflowField{
					Column:   col.Name,
					Value:    generator.DefaultForType(col.DataType),
					Source:   models.GeneratedSource,
					Semantic: "id",
				})
			}
			covered[col.Name] = true
			continue
		}

		// Required foreign keys point at the prerequisite insert that
		// created their parent row
		if stepID, ok := fkRefs[col.Name]; ok {
			fields = append(fields, models.WorkflowField{
				Column:    col.Name,
				Source:    models.ReferenceSource,
				Reference: stepID,
			})
			covered[col.Name] = true
			continue
		}

		if semantic != "" {
			if value, ok := callerValue(req, semantic); ok {
				fields = append(fields, models.WorkflowField{
					Column:   col.Name,
					Value:    value,
					Source:   models.CallerSource,
					Semantic: semantic,
				})
			} else {
				value := b.semanticFallback(semantic, req)
				fields = append(fields, models.WorkflowField{
					Column:   col.Name,
					Value:    value,
					Source:   models.GeneratedSource,
					Semantic: semantic,
				})
			}
			covered[col.Name] = true
			continue
		}

		// Caller may address unmapped columns directly
		if value, ok := req.Fields[col.Name]; ok {
			fields = append(fields, models.WorkflowField{
				Column: col.Name,
				Value:  value,
				Source: models.CallerSource,
			})
			covered[col.Name] = true
			continue
		}

		// Remaining NOT NULL columns without a default still need a value
		if !col.IsNullable && col.DefaultValue == nil {
			if b.isBrokenCycleColumn(graph, table.Name, col.Name) {
				continue
			}
			fields = append(fields, models.WorkflowField{
				Column: col.Name,
				Value:  b.Generator.ValueForColumn(col),
				Source: models.GeneratedSource,
			})
			covered[col.Name] = true
		}
	}

	return fields
}

// semanticFallback fabricates a value for a semantic field the caller left
// empty, deriving where a better source exists (username from name)
func (b *WorkflowBuilder) semanticFallback(semantic string, req *models.CreationRequest) interface{} {
	if semantic == "username" && req.Name != "" {
		return b.Generator.UsernameFromName(req.Name)
	}
	return b.Generator.SemanticValue(semantic)
}

func callerValue(req *models.CreationRequest, semantic string) (interface{}, bool) {
	switch semantic {
	case "email":
		if req.Email != "" {
			return req.Email, true
		}
	case "name":
		if req.Name != "" {
			return req.Name, true
		}
	case "username":
		if req.Username != "" {
			return req.Username, true
		}
	}
	if v, ok := req.Fields[semantic]; ok {
		return v, true
	}
	return nil, false
}

type dependentTable struct {
	table    *models.TableInfo
	fkColumn string
}

// dependentTables lists tables holding a required (non-nullable) foreign
// key pointing at the primary table
func (b *WorkflowBuilder) dependentTables(snapshot *models.SchemaSnapshot, graph *models.RelationshipGraph, primary string) []dependentTable {
	var deps []dependentTable
	seen := make(map[string]bool)
	for _, edge := range graph.Edges {
		if edge.ToTable != primary || edge.IsNullable || seen[edge.FromTable] {
			continue
		}
		t := snapshot.Table(edge.FromTable)
		if t == nil {
			continue
		}
		seen[edge.FromTable] = true
		deps = append(deps, dependentTable{table: t, fkColumn: edge.FromColumn})
	}
	sort.Slice(deps, func(i, j int) bool { return deps[i].table.Name < deps[j].table.Name })
	return deps
}

// prerequisiteTables lists tables the primary table points at through a
// required (non-nullable) foreign key; their rows must exist first
func (b *WorkflowBuilder) prerequisiteTables(snapshot *models.SchemaSnapshot, graph *models.RelationshipGraph, primary string) []dependentTable {
	var prereqs []dependentTable
	seen := make(map[string]bool)
	for _, edge := range graph.Edges {
		if edge.FromTable != primary || edge.ToTable == primary || edge.IsNullable || seen[edge.ToTable] {
			continue
		}
		if b.isBrokenCycleColumn(graph, primary, edge.FromColumn) {
			continue
		}
		t := snapshot.Table(edge.ToTable)
		if t == nil {
			continue
		}
		seen[edge.ToTable] = true
		prereqs = append(prereqs, dependentTable{table: t, fkColumn: edge.FromColumn})
	}
	sort.Slice(prereqs, func(i, j int) bool { return prereqs[i].table.Name < prereqs[j].table.Name })
	return prereqs
}

// buildPrerequisiteFields populates a parent table's NOT NULL columns with
// generated values
func (b *WorkflowBuilder) buildPrerequisiteFields(table *models.TableInfo, graph *models.RelationshipGraph) []models.WorkflowField {
	var fields []models.WorkflowField
	for _, col := range table.Columns {
		if col.IsPrimaryKey {
			fields = append(fields, models.WorkflowField{
				Column:   col.Name,
				Value:    generator.DefaultForType(col.DataType),
				Source:   models.GeneratedSource,
				Semantic: "id",
			})
			continue
		}
		if col.IsNullable || col.DefaultValue != nil {
			continue
		}
		if b.isBrokenCycleColumn(graph, table.Name, col.Name) {
			continue
		}
		fields = append(fields, models.WorkflowField{
			Column: col.Name,
			Value:  b.Generator.ValueForColumn(col),
			Source: models.GeneratedSource,
		})
	}
	return fields
}

// buildDependentFields populates a dependent table's NOT NULL columns,
// wiring its foreign key back to the primary insert step
func (b *WorkflowBuilder) buildDependentFields(table *models.TableInfo, fkColumn, primaryStepID string, graph *models.RelationshipGraph) []models.WorkflowField {
	var fields []models.WorkflowField
	for _, col := range table.Columns {
		if col.Name == fkColumn {
			fields = append(fields, models.WorkflowField{
				Column:    col.Name,
				Source:    models.ReferenceSource,
				Reference: primaryStepID,
			})
			continue
		}
		if col.IsNullable || col.DefaultValue != nil {
			continue
		}
		if b.isBrokenCycleColumn(graph, table.Name, col.Name) {
			continue
		}
		if col.IsPrimaryKey {
			fields = append(fields, models.WorkflowField{
				Column:   col.Name,
				Value:    generator.DefaultForType(col.DataType),
				Source:   models.GeneratedSource,
				Semantic: "id",
			})
			continue
		}
		fields = append(fields, models.WorkflowField{
			Column: col.Name,
			Value:  b.Generator.ValueForColumn(col),
			Source: models.GeneratedSource,
		})
	}
	return fields
}

// isBrokenCycleColumn reports whether the column is a chosen cycle break
// point and should be left null for the first pass
func (b *WorkflowBuilder) isBrokenCycleColumn(graph *models.RelationshipGraph, table, column string) bool {
	if graph == nil {
		return false
	}
	for _, cycle := range graph.Cycles {
		bp := cycle.BreakPoint
		if bp.FromTable == table && bp.Column == column && bp.Strategy == models.AllowNullBreak {
			return true
		}
	}
	return false
}

func primaryKeyColumn(table *models.TableInfo) string {
	if table == nil {
		return "id"
	}
	for _, col := range table.Columns {
		if col.IsPrimaryKey {
			return col.Name
		}
	}
	return "id"
}

package introspect

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/livebydesign2/supa-seed-sub002/internal/connector"
	"github.com/livebydesign2/supa-seed-sub002/pkg/models"
)

// Introspector reads catalog tables and produces an immutable SchemaSnapshot
type Introspector struct {
	DB     *connector.DatabaseConnector
	Logger *logrus.Logger
}

// NewIntrospector creates a new schema introspector
func NewIntrospector(db *connector.DatabaseConnector, logger *logrus.Logger) *Introspector {
	return &Introspector{
		DB:     db,
		Logger: logger,
	}
}

// Snapshot introspects the connected database and returns a SchemaSnapshot
func (in *Introspector) Snapshot(ctx context.Context) (*models.SchemaSnapshot, error) {
	tables, err := in.discoverTables(ctx)
	if err != nil {
		in.Logger.Errorf("Error getting tables: %v", err)
		return nil, err
	}

	snapshot := &models.SchemaSnapshot{
		CapturedAt: time.Now(),
	}

	for _, table := range tables {
		info := models.TableInfo{Name: table}

		columns, err := in.discoverColumns(ctx, table)
		if err != nil {
			in.Logger.Warningf("Failed to retrieve columns for table %s: %v", table, err)
			continue
		}
		info.Columns = columns

		constraints, err := in.discoverConstraints(ctx, table)
		if err != nil {
			in.Logger.Warningf("Failed to retrieve constraints for table %s: %v", table, err)
		}
		info.Constraints = constraints

		triggers, err := in.discoverTriggers(ctx, table)
		if err != nil {
			in.Logger.Warningf("Failed to retrieve triggers for table %s: %v", table, err)
		}
		info.Triggers = triggers

		// Mark FK/unique flags discovered via constraints back onto columns
		for _, c := range info.Constraints {
			for _, colName := range c.Columns {
				if col := info.Column(colName); col != nil {
					switch c.Type {
					case models.ForeignKeyConstraint:
						col.IsForeignKey = true
					case models.UniqueConstraint:
						col.IsUnique = true
					case models.PrimaryKeyConstraint:
						col.IsPrimaryKey = true
					}
				}
			}
		}

		snapshot.Tables = append(snapshot.Tables, info)
	}

	snapshot.Relationships = in.buildRelationships(snapshot)
	snapshot.Framework, snapshot.Confidence = DetectFramework(snapshot)
	snapshot.Fingerprint = Fingerprint(snapshot)

	in.Logger.Infof("Introspected %d tables (framework %s, confidence %.2f)",
		len(snapshot.Tables), snapshot.Framework, snapshot.Confidence)

	return snapshot, nil
}

func (in *Introspector) schemaName() string {
	if in.DB.Driver == connector.DriverMySQL {
		return in.DB.Database
	}
	return "public"
}

func (in *Introspector) discoverTables(ctx context.Context) ([]string, error) {
	query := `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = ` + in.placeholder(1) + `
		AND table_type = 'BASE TABLE'
		ORDER BY table_name
	`
	rows, err := in.DB.ExecuteQuery(ctx, query, in.schemaName())
	if err != nil {
		return nil, err
	}

	var tables []string
	for _, row := range rows {
		tables = append(tables, asString(row["table_name"]))
	}
	return tables, nil
}

func (in *Introspector) discoverColumns(ctx context.Context, table string) ([]models.Column, error) {
	query := `
		SELECT
			column_name,
			data_type,
			character_maximum_length,
			is_nullable,
			column_default
		FROM information_schema.columns
		WHERE table_schema = ` + in.placeholder(1) + `
		AND table_name = ` + in.placeholder(2) + `
		ORDER BY ordinal_position
	`
	rows, err := in.DB.ExecuteQuery(ctx, query, in.schemaName(), table)
	if err != nil {
		return nil, err
	}

	var columns []models.Column
	for _, row := range rows {
		col := models.Column{
			Name:       asString(row["column_name"]),
			DataType:   strings.ToLower(asString(row["data_type"])),
			IsNullable: strings.EqualFold(asString(row["is_nullable"]), "YES"),
		}
		if row["character_maximum_length"] != nil {
			if v, err := strconv.ParseInt(fmt.Sprintf("%v", row["character_maximum_length"]), 10, 64); err == nil {
				col.CharMaxLength = &v
			}
		}
		if row["column_default"] != nil {
			def := asString(row["column_default"])
			col.DefaultValue = &def
		}
		columns = append(columns, col)
	}
	return columns, nil
}

func (in *Introspector) discoverConstraints(ctx context.Context, table string) ([]models.Constraint, error) {
	query := `
		SELECT
			tc.constraint_name,
			tc.constraint_type,
			kcu.column_name,
			kcu.referenced_table_name,
			kcu.referenced_column_name
		FROM information_schema.table_constraints tc
		LEFT JOIN information_schema.key_column_usage kcu
			ON tc.constraint_schema = kcu.constraint_schema
			AND tc.constraint_name = kcu.constraint_name
			AND tc.table_name = kcu.table_name
		WHERE tc.table_schema = ` + in.placeholder(1) + `
		AND tc.table_name = ` + in.placeholder(2) + `
		ORDER BY tc.constraint_name, kcu.ordinal_position
	`
	if in.DB.Driver == connector.DriverPostgres {
		// Postgres exposes the referenced side through constraint_column_usage
		query = `
			SELECT
				tc.constraint_name,
				tc.constraint_type,
				kcu.column_name,
				ccu.table_name AS referenced_table_name,
				ccu.column_name AS referenced_column_name
			FROM information_schema.table_constraints tc
			LEFT JOIN information_schema.key_column_usage kcu
				ON tc.constraint_schema = kcu.constraint_schema
				AND tc.constraint_name = kcu.constraint_name
			LEFT JOIN information_schema.constraint_column_usage ccu
				ON tc.constraint_type = 'FOREIGN KEY'
				AND tc.constraint_schema = ccu.constraint_schema
				AND tc.constraint_name = ccu.constraint_name
			WHERE tc.table_schema = $1
			AND tc.table_name = $2
			ORDER BY tc.constraint_name
		`
	}

	rows, err := in.DB.ExecuteQuery(ctx, query, in.schemaName(), table)
	if err != nil {
		return nil, err
	}

	byName := make(map[string]*models.Constraint)
	var order []string
	for _, row := range rows {
		name := asString(row["constraint_name"])
		c, ok := byName[name]
		if !ok {
			c = &models.Constraint{
				Name:  name,
				Type:  constraintType(asString(row["constraint_type"])),
				Table: table,
			}
			byName[name] = c
			order = append(order, name)
		}
		if col := asString(row["column_name"]); col != "" {
			c.Columns = append(c.Columns, col)
		}
		if ref := asString(row["referenced_table_name"]); ref != "" {
			c.ReferencedTable = ref
			c.ReferencedColumn = asString(row["referenced_column_name"])
		}
	}

	// CHECK expressions live in a separate catalog view
	checks, err := in.discoverCheckClauses(ctx, table)
	if err != nil {
		in.Logger.Warningf("Error getting check constraints for %s: %v", table, err)
	}
	for name, clause := range checks {
		if c, ok := byName[name]; ok {
			c.CheckExpression = clause
		} else {
			byName[name] = &models.Constraint{
				Name:            name,
				Type:            models.CheckConstraint,
				Table:           table,
				CheckExpression: clause,
			}
			order = append(order, name)
		}
	}

	var constraints []models.Constraint
	for _, name := range order {
		constraints = append(constraints, *byName[name])
	}
	return constraints, nil
}

func (in *Introspector) discoverCheckClauses(ctx context.Context, table string) (map[string]string, error) {
	query := `
		SELECT c.constraint_name, c.check_clause
		FROM information_schema.check_constraints c
		JOIN information_schema.table_constraints t
			ON c.constraint_schema = t.constraint_schema
			AND c.constraint_name = t.constraint_name
		WHERE c.constraint_schema = ` + in.placeholder(1) + `
		AND t.table_name = ` + in.placeholder(2) + `
	`
	rows, err := in.DB.ExecuteQuery(ctx, query, in.schemaName(), table)
	if err != nil {
		return nil, err
	}

	checks := make(map[string]string)
	for _, row := range rows {
		clause := asString(row["check_clause"])
		// Skip the implicit IS NOT NULL checks Postgres synthesizes
		if strings.Contains(strings.ToUpper(clause), "IS NOT NULL") {
			continue
		}
		checks[asString(row["constraint_name"])] = clause
	}
	return checks, nil
}

func (in *Introspector) discoverTriggers(ctx context.Context, table string) ([]models.Trigger, error) {
	query := `
		SELECT trigger_name, event_manipulation, action_timing, action_statement
		FROM information_schema.triggers
		WHERE trigger_schema = ` + in.placeholder(1) + `
		AND event_object_table = ` + in.placeholder(2) + `
		ORDER BY trigger_name
	`
	rows, err := in.DB.ExecuteQuery(ctx, query, in.schemaName(), table)
	if err != nil {
		return nil, err
	}

	var triggers []models.Trigger
	for _, row := range rows {
		triggers = append(triggers, models.Trigger{
			Name:      asString(row["trigger_name"]),
			Table:     table,
			Event:     asString(row["event_manipulation"]),
			Timing:    asString(row["action_timing"]),
			Statement: asString(row["action_statement"]),
		})
	}
	return triggers, nil
}

// buildRelationships derives relationship edges from foreign-key constraints
func (in *Introspector) buildRelationships(snapshot *models.SchemaSnapshot) []models.Relationship {
	var relationships []models.Relationship
	for _, table := range snapshot.Tables {
		for _, c := range table.Constraints {
			if c.Type != models.ForeignKeyConstraint || c.ReferencedTable == "" || len(c.Columns) == 0 {
				continue
			}
			fromColumn := c.Columns[0]
			rel := models.Relationship{
				FromTable:   table.Name,
				FromColumn:  fromColumn,
				ToTable:     c.ReferencedTable,
				ToColumn:    c.ReferencedColumn,
				Cardinality: models.OneToMany,
			}
			if col := table.Column(fromColumn); col != nil {
				rel.IsNullable = col.IsNullable
				if col.IsUnique || col.IsPrimaryKey {
					rel.Cardinality = models.OneToOne
				}
			}
			relationships = append(relationships, rel)
		}
	}
	return relationships
}

func (in *Introspector) placeholder(n int) string {
	if in.DB.Driver == connector.DriverPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func constraintType(raw string) models.ConstraintType {
	switch strings.ToUpper(raw) {
	case "PRIMARY KEY":
		return models.PrimaryKeyConstraint
	case "UNIQUE":
		return models.UniqueConstraint
	case "FOREIGN KEY":
		return models.ForeignKeyConstraint
	case "CHECK":
		return models.CheckConstraint
	default:
		return models.ConstraintType(strings.ToLower(raw))
	}
}

func asString(v interface{}) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// frameworkSignatures maps a framework label to table names that suggest it
var frameworkSignatures = map[string][]string{
	"makerkit": {"accounts", "memberships", "organizations", "profiles", "subscriptions"},
	"supabase": {"profiles", "users", "accounts", "identities"},
	"django":   {"auth_user", "django_migrations", "django_content_type"},
	"rails":    {"schema_migrations", "ar_internal_metadata", "users"},
}

// DetectFramework guesses the application framework behind a schema and
// returns a confidence estimate in [0,1]
func DetectFramework(snapshot *models.SchemaSnapshot) (string, float64) {
	present := make(map[string]bool)
	for _, t := range snapshot.Tables {
		present[strings.ToLower(t.Name)] = true
	}

	bestLabel := "generic"
	bestScore := 0.0
	for label, signature := range frameworkSignatures {
		hits := 0
		for _, name := range signature {
			if present[name] {
				hits++
			}
		}
		score := float64(hits) / float64(len(signature))
		if score > bestScore {
			bestLabel = label
			bestScore = score
		}
	}

	if bestScore == 0 {
		return "generic", 0.1
	}
	return bestLabel, bestScore
}

// Fingerprint computes a stable hash of the schema's structural identity.
// A workflow built against one fingerprint is invalid for any other.
func Fingerprint(snapshot *models.SchemaSnapshot) string {
	var parts []string
	for _, t := range snapshot.Tables {
		for _, c := range t.Columns {
			parts = append(parts, fmt.Sprintf("%s.%s:%s:%t", t.Name, c.Name, c.DataType, c.IsNullable))
		}
		for _, con := range t.Constraints {
			parts = append(parts, fmt.Sprintf("%s!%s:%s", t.Name, con.Name, con.Type))
		}
	}
	sort.Strings(parts)

	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

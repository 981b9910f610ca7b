package mapper

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/livebydesign2/supa-seed-sub002/pkg/models"
)

// Scoring weights for the individual match signals. The sum of all signals
// is clamped to 1.0 so confidence stays a probability-like score.
const (
	exactNameWeight      = 0.5
	aliasWeight          = 0.4
	patternWeight        = 0.3
	fuzzyMaxWeight       = 0.2
	dataTypeWeight       = 0.15
	constraintWeight     = 0.1
	requiredWeight       = 0.05
	fuzzyThreshold       = 0.7
	DefaultMinConfidence = 0.3
)

// Options tunes the mapping pass
type Options struct {
	MinConfidence    float64
	EnablePatterns   bool
	EnableFuzzy      bool
	StrictMode       bool
	ExplicitMappings map[string]string // semantic field -> column name
}

// DefaultOptions returns the default mapping options
func DefaultOptions() Options {
	return Options{
		MinConfidence:  DefaultMinConfidence,
		EnablePatterns: true,
		EnableFuzzy:    true,
	}
}

// ColumnMapper resolves semantic fields to physical columns
type ColumnMapper struct {
	Catalog map[models.TableRole][]models.SemanticField
	Logger  *logrus.Logger

	patterns map[string][]*regexp.Regexp
}

// NewColumnMapper creates a column mapper with the built-in semantic catalog
func NewColumnMapper(logger *logrus.Logger) *ColumnMapper {
	cm := &ColumnMapper{
		Catalog:  builtinCatalog(),
		Logger:   logger,
		patterns: make(map[string][]*regexp.Regexp),
	}
	for _, fields := range cm.Catalog {
		for _, f := range fields {
			for _, p := range f.Patterns {
				if re, err := regexp.Compile(p); err == nil {
					cm.patterns[f.Name] = append(cm.patterns[f.Name], re)
				} else {
					logger.Warningf("Invalid pattern %q for semantic field %s: %v", p, f.Name, err)
				}
			}
		}
	}
	return cm
}

// builtinCatalog is the fixed semantic-field catalog, keyed by table role
func builtinCatalog() map[models.TableRole][]models.SemanticField {
	return map[models.TableRole][]models.SemanticField{
		models.UserRole: {
			{Name: "id", Aliases: []string{"user_id", "uuid", "pk"}, Patterns: []string{`(?i)^id$`, `(?i)_id$`}, DataType: "uuid", Required: true, Category: "identity"},
			{Name: "email", Aliases: []string{"email_address", "mail", "contact_email"}, Patterns: []string{`(?i)e?mail`}, DataType: "text", Required: true, Category: "identity"},
			{Name: "name", Aliases: []string{"full_name", "display_name", "fullname"}, Patterns: []string{`(?i)name$`}, DataType: "text", Required: false, Category: "profile"},
			{Name: "username", Aliases: []string{"user_name", "handle", "login", "nickname"}, Patterns: []string{`(?i)user.?name`, `(?i)handle`}, DataType: "text", Required: false, Category: "profile"},
			{Name: "avatar", Aliases: []string{"avatar_url", "picture", "picture_url", "image_url", "photo"}, Patterns: []string{`(?i)avatar`, `(?i)picture`, `(?i)photo`}, DataType: "text", Required: false, Category: "profile"},
			{Name: "bio", Aliases: []string{"about", "description", "summary"}, Patterns: []string{`(?i)bio`, `(?i)about`}, DataType: "text", Required: false, Category: "profile"},
			{Name: "created_at", Aliases: []string{"inserted_at", "creation_date", "created"}, Patterns: []string{`(?i)created`}, DataType: "timestamp", Required: false, Category: "system"},
			{Name: "updated_at", Aliases: []string{"modified_at", "updated"}, Patterns: []string{`(?i)updated`, `(?i)modified`}, DataType: "timestamp", Required: false, Category: "system"},
		},
		models.ContentRole: {
			{Name: "id", Aliases: []string{"uuid", "pk"}, Patterns: []string{`(?i)^id$`}, DataType: "uuid", Required: true, Category: "identity"},
			{Name: "title", Aliases: []string{"name", "heading", "subject"}, Patterns: []string{`(?i)title`, `(?i)heading`}, DataType: "text", Required: true, Category: "content"},
			{Name: "body", Aliases: []string{"content", "text", "description"}, Patterns: []string{`(?i)body`, `(?i)content`}, DataType: "text", Required: false, Category: "content"},
			{Name: "slug", Aliases: []string{"permalink", "url_slug"}, Patterns: []string{`(?i)slug`}, DataType: "text", Required: false, Category: "content"},
			{Name: "author", Aliases: []string{"author_id", "user_id", "created_by", "owner_id"}, Patterns: []string{`(?i)author`, `(?i)created_by`, `(?i)owner`}, DataType: "uuid", Required: false, Category: "reference"},
			{Name: "published", Aliases: []string{"is_published", "published_at", "public"}, Patterns: []string{`(?i)publish`}, DataType: "boolean", Required: false, Category: "content"},
			{Name: "created_at", Aliases: []string{"inserted_at", "created"}, Patterns: []string{`(?i)created`}, DataType: "timestamp", Required: false, Category: "system"},
		},
		models.AssociationRole: {
			{Name: "left_ref", Aliases: []string{"user_id", "member_id", "account_id"}, Patterns: []string{`(?i)_id$`}, DataType: "uuid", Required: true, Category: "reference"},
			{Name: "right_ref", Aliases: []string{"group_id", "team_id", "organization_id", "role_id"}, Patterns: []string{`(?i)_id$`}, DataType: "uuid", Required: true, Category: "reference"},
			{Name: "created_at", Aliases: []string{"inserted_at", "joined_at"}, Patterns: []string{`(?i)created`, `(?i)joined`}, DataType: "timestamp", Required: false, Category: "system"},
		},
		models.SystemRole: {
			{Name: "id", Aliases: []string{"uuid", "pk"}, Patterns: []string{`(?i)^id$`}, DataType: "uuid", Required: true, Category: "identity"},
			{Name: "key", Aliases: []string{"name", "setting", "config_key"}, Patterns: []string{`(?i)key`, `(?i)name`}, DataType: "text", Required: false, Category: "system"},
			{Name: "value", Aliases: []string{"data", "payload", "config_value"}, Patterns: []string{`(?i)value`, `(?i)data`}, DataType: "json", Required: false, Category: "system"},
		},
	}
}

// dataTypeCategories maps a semantic data type to compatible physical types
var dataTypeCategories = map[string][]string{
	"text":      {"text", "varchar", "char", "character varying", "character", "tinytext", "mediumtext", "longtext", "citext"},
	"uuid":      {"uuid", "char", "varchar", "character varying", "text", "binary"},
	"timestamp": {"timestamp", "timestamptz", "timestamp with time zone", "timestamp without time zone", "datetime", "date"},
	"boolean":   {"boolean", "bool", "tinyint", "bit"},
	"number":    {"int", "integer", "bigint", "smallint", "numeric", "decimal", "float", "double", "double precision", "real"},
	"json":      {"json", "jsonb", "text", "longtext"},
}

// MapTable maps the semantic-field catalog for a role onto a table's columns.
// Mapping never hard-fails: missing matches lower confidence and surface as
// recommendations.
func (cm *ColumnMapper) MapTable(table *models.TableInfo, role models.TableRole, opts Options) *models.TableColumnMap {
	result := &models.TableColumnMap{
		Table: table.Name,
		Role:  role,
	}

	fields := cm.Catalog[role]
	if len(fields) == 0 {
		cm.Logger.Warningf("No semantic catalog for role %q, table %s left unmapped", role, table.Name)
		result.Recommendations = append(result.Recommendations,
			fmt.Sprintf("no semantic catalog entry for role %q", role))
		return result
	}

	minConfidence := opts.MinConfidence
	if minConfidence <= 0 {
		minConfidence = DefaultMinConfidence
	}
	if opts.StrictMode && minConfidence < 0.6 {
		minConfidence = 0.6
	}

	claimed := make(map[string]bool)
	mappedFields := make(map[string]bool)

	// Explicit caller-supplied mappings always win, at confidence 1.0
	for _, field := range fields {
		column, ok := opts.ExplicitMappings[field.Name]
		if !ok {
			continue
		}
		if table.Column(column) == nil {
			cm.Logger.Warningf("Explicit mapping %s -> %s ignored: column not in table %s", field.Name, column, table.Name)
			result.Recommendations = append(result.Recommendations,
				fmt.Sprintf("explicit mapping for %q names unknown column %q", field.Name, column))
			continue
		}
		result.Mappings = append(result.Mappings, models.ColumnMapping{
			SemanticField: field.Name,
			ActualColumn:  column,
			Confidence:    1.0,
			Evidence:      []string{"explicit mapping"},
		})
		claimed[column] = true
		mappedFields[field.Name] = true
	}

	// Exact column-name matches resolve in a first pass so a weaker signal
	// for one field cannot claim a column another field names exactly
	for _, exactOnly := range []bool{true, false} {
		for _, field := range fields {
			if mappedFields[field.Name] {
				continue
			}

			best := cm.bestMatch(table, field, claimed, opts, exactOnly)
			if best == nil || best.Confidence < minConfidence {
				if exactOnly {
					continue
				}
				if field.Required {
					result.UnmappedFields = append(result.UnmappedFields, field.Name)
					result.Recommendations = append(result.Recommendations,
						fmt.Sprintf("no column in %s satisfies required field %q; consider adding a %q column", table.Name, field.Name, field.Name))
				} else {
					result.UnmappedFields = append(result.UnmappedFields, field.Name)
				}
				continue
			}

			// One physical column cannot satisfy two semantic fields in one pass
			claimed[best.ActualColumn] = true
			mappedFields[field.Name] = true
			result.Mappings = append(result.Mappings, *best)
			cm.Logger.Debugf("Mapped %s.%s -> %q with confidence %.2f (%s)",
				table.Name, field.Name, best.ActualColumn, best.Confidence, strings.Join(best.Evidence, ", "))
		}
	}

	for _, col := range table.Columns {
		if !claimed[col.Name] {
			result.UnmappedColumns = append(result.UnmappedColumns, col.Name)
		}
	}
	for _, col := range result.UnmappedColumns {
		if c := table.Column(col); c != nil && !c.IsNullable && c.DefaultValue == nil && !c.IsPrimaryKey {
			result.Recommendations = append(result.Recommendations,
				fmt.Sprintf("column %s.%s is NOT NULL without a default and has no semantic mapping; a generated value will be used", table.Name, col))
		}
	}

	result.Confidence = mappingConfidence(result, len(fields))
	return result
}

// bestMatch scores every unclaimed column against a semantic field and
// returns the highest-scoring candidate. Ties break by declaration order.
// With exactOnly set, only columns whose name equals the field name compete.
func (cm *ColumnMapper) bestMatch(table *models.TableInfo, field models.SemanticField, claimed map[string]bool, opts Options, exactOnly bool) *models.ColumnMapping {
	var best *models.ColumnMapping
	var alternatives []string

	for i := range table.Columns {
		col := &table.Columns[i]
		if claimed[col.Name] {
			continue
		}
		if exactOnly && !strings.EqualFold(col.Name, field.Name) {
			continue
		}

		score, evidence, typeMatch, constraintMatch := cm.scoreColumn(col, field, opts)
		if score <= 0 {
			continue
		}
		if score > 1.0 {
			score = 1.0
		}

		if best == nil || score > best.Confidence {
			if best != nil {
				alternatives = append(alternatives, best.ActualColumn)
			}
			best = &models.ColumnMapping{
				SemanticField:   field.Name,
				ActualColumn:    col.Name,
				Confidence:      score,
				Evidence:        evidence,
				DataTypeMatch:   typeMatch,
				ConstraintMatch: constraintMatch,
			}
		} else {
			alternatives = append(alternatives, col.Name)
		}
	}

	if best != nil {
		sort.Strings(alternatives)
		best.AlternativeColumns = alternatives
	}
	return best
}

func (cm *ColumnMapper) scoreColumn(col *models.Column, field models.SemanticField, opts Options) (float64, []string, bool, bool) {
	var score float64
	var evidence []string

	colName := strings.ToLower(col.Name)
	fieldName := strings.ToLower(field.Name)

	switch {
	case colName == fieldName:
		score += exactNameWeight
		evidence = append(evidence, "exact name match")
	case matchesAlias(colName, field.Aliases):
		score += aliasWeight
		evidence = append(evidence, "alias match")
	case opts.EnablePatterns && cm.matchesPattern(field.Name, col.Name):
		score += patternWeight
		evidence = append(evidence, "pattern match")
	case opts.EnableFuzzy:
		if sim := similarity(colName, fieldName); sim >= fuzzyThreshold {
			score += fuzzyMaxWeight * sim
			evidence = append(evidence, fmt.Sprintf("fuzzy match (%.2f)", sim))
		}
	}

	if score == 0 {
		// Name signals are the anchor; type compatibility alone is no mapping
		return 0, nil, false, false
	}

	typeMatch := dataTypeCompatible(field.DataType, col.DataType)
	if typeMatch {
		score += dataTypeWeight
		evidence = append(evidence, "data type compatible")
	}

	constraintMatch := field.Required == !col.IsNullable
	if constraintMatch {
		score += constraintWeight
		evidence = append(evidence, "constraint compatible")
	}

	if field.Required && !col.IsNullable {
		score += requiredWeight
		evidence = append(evidence, "required parity")
	}

	return score, evidence, typeMatch, constraintMatch
}

func (cm *ColumnMapper) matchesPattern(fieldName, columnName string) bool {
	for _, re := range cm.patterns[fieldName] {
		if re.MatchString(columnName) {
			return true
		}
	}
	return false
}

func matchesAlias(columnName string, aliases []string) bool {
	for _, alias := range aliases {
		if columnName == strings.ToLower(alias) {
			return true
		}
	}
	return false
}

func dataTypeCompatible(semantic, physical string) bool {
	for _, t := range dataTypeCategories[semantic] {
		if strings.HasPrefix(physical, t) {
			return true
		}
	}
	return false
}

// mappingConfidence is the mean mapping confidence weighted by catalog coverage
func mappingConfidence(m *models.TableColumnMap, catalogSize int) float64 {
	if len(m.Mappings) == 0 || catalogSize == 0 {
		return 0
	}
	var sum float64
	for _, mapping := range m.Mappings {
		sum += mapping.Confidence
	}
	mean := sum / float64(len(m.Mappings))
	coverage := float64(len(m.Mappings)) / float64(catalogSize)
	return mean * coverage
}

// similarity is a normalized edit-distance similarity in [0,1]
func similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 1
	}
	return 1 - float64(levenshtein(a, b))/float64(maxLen)
}

// levenshtein computes the edit distance between two strings
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := 0; j <= len(rb); j++ {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min3(curr[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}

// ClassifyTableRole guesses the semantic role of a table from its name and shape
func ClassifyTableRole(table *models.TableInfo, relationships []models.Relationship) models.TableRole {
	name := strings.ToLower(table.Name)

	userNames := []string{"users", "profiles", "accounts", "members", "people", "customers", "auth_user"}
	for _, n := range userNames {
		if name == n || strings.HasSuffix(name, "_"+n) {
			return models.UserRole
		}
	}

	// Tables that are mostly foreign keys look like join tables
	fkCount := 0
	for _, rel := range relationships {
		if rel.FromTable == table.Name {
			fkCount++
		}
	}
	if fkCount >= 2 && len(table.Columns) > 0 && float64(fkCount)/float64(len(table.Columns)) >= 0.5 {
		return models.AssociationRole
	}

	systemNames := []string{"settings", "config", "migrations", "schema_migrations", "sessions", "logs"}
	for _, n := range systemNames {
		if strings.Contains(name, n) {
			return models.SystemRole
		}
	}

	return models.ContentRole
}

// ExportMappings flattens resolved mappings to table -> field -> column
func ExportMappings(maps []*models.TableColumnMap) map[string]map[string]string {
	out := make(map[string]map[string]string)
	for _, m := range maps {
		fields := make(map[string]string)
		for _, mapping := range m.Mappings {
			fields[mapping.SemanticField] = mapping.ActualColumn
		}
		out[m.Table] = fields
	}
	return out
}

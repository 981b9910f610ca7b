package models

import "time"

// Column represents a database column with its properties
type Column struct {
	Name          string
	DataType      string
	IsNullable    bool
	IsPrimaryKey  bool
	IsForeignKey  bool
	IsUnique      bool
	DefaultValue  *string
	CharMaxLength *int64
}

// ConstraintType identifies the kind of a discovered constraint
type ConstraintType string

const (
	PrimaryKeyConstraint ConstraintType = "primary_key"
	UniqueConstraint     ConstraintType = "unique"
	ForeignKeyConstraint ConstraintType = "foreign_key"
	CheckConstraint      ConstraintType = "check"
	NotNullConstraint    ConstraintType = "not_null"
	BusinessConstraint   ConstraintType = "business_logic"
)

// Constraint represents a constraint discovered on a table
type Constraint struct {
	Name             string
	Type             ConstraintType
	Table            string
	Columns          []string
	ReferencedTable  string
	ReferencedColumn string
	CheckExpression  string
}

// Cardinality describes the multiplicity of a relationship
type Cardinality string

const (
	OneToOne   Cardinality = "one_to_one"
	OneToMany  Cardinality = "one_to_many"
	ManyToMany Cardinality = "many_to_many"
)

// Relationship represents a foreign-key relationship between two tables
type Relationship struct {
	FromTable   string
	FromColumn  string
	ToTable     string
	ToColumn    string
	Cardinality Cardinality
	IsNullable  bool
	OnDelete    string
}

// Trigger represents a trigger discovered on a table
type Trigger struct {
	Name      string
	Table     string
	Event     string
	Timing    string
	Statement string
}

// TableInfo represents a table with its columns, constraints, and triggers
type TableInfo struct {
	Name        string
	Columns     []Column
	Constraints []Constraint
	Triggers    []Trigger
}

// SchemaSnapshot is an immutable description of a discovered database schema.
// It is produced by the introspector and only ever read by the engine.
type SchemaSnapshot struct {
	Tables        []TableInfo
	Relationships []Relationship
	Framework     string
	Confidence    float64
	Fingerprint   string
	CapturedAt    time.Time
}

// Table returns the table with the given name, or nil if not present
func (s *SchemaSnapshot) Table(name string) *TableInfo {
	for i := range s.Tables {
		if s.Tables[i].Name == name {
			return &s.Tables[i]
		}
	}
	return nil
}

// TableNames returns the names of all tables in snapshot order
func (s *SchemaSnapshot) TableNames() []string {
	names := make([]string, 0, len(s.Tables))
	for _, t := range s.Tables {
		names = append(names, t.Name)
	}
	return names
}

// Column returns the named column of a table, or nil if not present
func (t *TableInfo) Column(name string) *Column {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i]
		}
	}
	return nil
}

// TableRole is the semantic role a table plays in the schema
type TableRole string

const (
	UserRole        TableRole = "user"
	ContentRole     TableRole = "content"
	AssociationRole TableRole = "association"
	SystemRole      TableRole = "system"
)

// SemanticField is a built-in catalog entry describing an abstract field
// (e.g. "email") independent of any physical column name
type SemanticField struct {
	Name     string
	Aliases  []string
	Patterns []string
	DataType string
	Required bool
	Category string
}

// ColumnMapping resolves one semantic field to a physical column
type ColumnMapping struct {
	SemanticField      string
	ActualColumn       string
	Confidence         float64
	Evidence           []string
	DataTypeMatch      bool
	ConstraintMatch    bool
	AlternativeColumns []string
}

// TableColumnMap aggregates the column mappings for one table
type TableColumnMap struct {
	Table           string
	Role            TableRole
	Mappings        []ColumnMapping
	UnmappedFields  []string
	UnmappedColumns []string
	Confidence      float64
	Recommendations []string
}

// Mapping returns the mapping for a semantic field, or nil if unmapped
func (m *TableColumnMap) Mapping(field string) *ColumnMapping {
	for i := range m.Mappings {
		if m.Mappings[i].SemanticField == field {
			return &m.Mappings[i]
		}
	}
	return nil
}

// NodeType classifies a table's position in the dependency graph
type NodeType string

const (
	RootNode         NodeType = "root"
	IntermediateNode NodeType = "intermediate"
	LeafNode         NodeType = "leaf"
)

// TableNode is one node of the relationship graph
type TableNode struct {
	Table        string
	Type         NodeType
	Dependencies []string
	Dependents   []string
}

// BreakStrategy is how a circular dependency edge is relaxed for seeding
type BreakStrategy string

const (
	AllowNullBreak       BreakStrategy = "allow_null"
	DeferConstraintBreak BreakStrategy = "defer_constraint"
)

// CycleBreakPoint identifies the edge chosen to break one cycle
type CycleBreakPoint struct {
	FromTable string
	ToTable   string
	Column    string
	Strategy  BreakStrategy
}

// DependencyCycle is one detected cycle with its chosen break point
type DependencyCycle struct {
	Tables     []string
	BreakPoint CycleBreakPoint
}

// SeedingStrategy describes how a table should be seeded
type SeedingStrategy string

const (
	IndependentSeeding SeedingStrategy = "independent"
	DependentSeeding   SeedingStrategy = "dependent"
	CircularSeeding    SeedingStrategy = "circular"
)

// RelationshipGraph is the full dependency analysis of a schema
type RelationshipGraph struct {
	Nodes             map[string]*TableNode
	Edges             []Relationship
	Cycles            []DependencyCycle
	SeedingOrder      []string
	DependencyLevels  map[string]int
	SeedingStrategies map[string]SeedingStrategy
	Warnings          []string
}

// RuleSeverity controls whether a failing rule blocks a write
type RuleSeverity string

const (
	SeverityError   RuleSeverity = "error"
	SeverityWarning RuleSeverity = "warning"
)

// FixStrategy is the kind of correction an auto-fix applies
type FixStrategy string

const (
	ProvideDefault   FixStrategy = "provide_default"
	ModifyValue      FixStrategy = "modify_value"
	SkipField        FixStrategy = "skip_field"
	CreateDependency FixStrategy = "create_dependency"
)

// AutoFix is a proposed correction for a record that would otherwise
// violate a validation rule. Immutable once Applied is set.
type AutoFix struct {
	Rule          string
	Field         string
	OriginalValue interface{}
	FixedValue    interface{}
	Strategy      FixStrategy
	Applied       bool
}

// ValidationError is a single rule failure
type ValidationError struct {
	Rule     string
	Field    string
	Message  string
	Severity RuleSeverity
}

// ValidationResult is the outcome of validating one candidate record
type ValidationResult struct {
	Valid        bool
	Errors       []ValidationError
	Warnings     []ValidationError
	Fixes        []AutoFix
	RulesChecked int
}

// StepType identifies what a workflow step does
type StepType string

const (
	CreatePrincipalStep    StepType = "create_principal"
	InsertRecordStep       StepType = "insert_record"
	ValidateConstraintStep StepType = "validate_constraint"
	ExecuteTriggerStep     StepType = "execute_trigger"
	ConditionalActionStep  StepType = "conditional_action"
)

// ErrorPolicy controls how the executor reacts to a step failure
type ErrorPolicy string

const (
	FailPolicy     ErrorPolicy = "fail"
	SkipPolicy     ErrorPolicy = "skip"
	RetryPolicy    ErrorPolicy = "retry"
	ContinuePolicy ErrorPolicy = "continue"
)

// FieldSource describes where a workflow field's value comes from
type FieldSource string

const (
	CallerSource    FieldSource = "caller"
	GeneratedSource FieldSource = "generated"
	ReferenceSource FieldSource = "reference"
	LiteralSource   FieldSource = "literal"
)

// WorkflowField is one column value of an insert step
type WorkflowField struct {
	Column    string
	Value     interface{}
	Source    FieldSource
	Reference string
	Semantic  string
}

// WorkflowStep is one planned unit of work in a creation workflow
type WorkflowStep struct {
	ID           string
	Type         StepType
	Table        string
	Fields       []WorkflowField
	Dependencies []string
	OnError      ErrorPolicy
	RetryCount   int
	Timeout      time.Duration
	Description  string
}

// RollbackStep is a compensating delete for one insert step
type RollbackStep struct {
	StepID string
	Table  string
	Column string
}

// WorkflowMetadata records the provenance of a built workflow
type WorkflowMetadata struct {
	Framework         string
	SchemaFingerprint string
	PrimaryTable      string
	CreatedAt         time.Time
}

// UserCreationWorkflow is an immutable, dependency-annotated creation plan
type UserCreationWorkflow struct {
	ID            string
	Steps         []WorkflowStep
	RollbackSteps []RollbackStep
	Metadata      WorkflowMetadata
}

// Step returns the step with the given id, or nil
func (w *UserCreationWorkflow) Step(id string) *WorkflowStep {
	for i := range w.Steps {
		if w.Steps[i].ID == id {
			return &w.Steps[i]
		}
	}
	return nil
}

// StepStatus is the executor state of a step
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

// StepResult is the executor outcome of one step
type StepResult struct {
	StepID      string
	Status      StepStatus
	Error       string
	Attempts    int
	Duration    time.Duration
	GeneratedID string
}

// ExecutionResult is the outcome of executing one workflow
type ExecutionResult struct {
	Success           bool
	StepResults       []StepResult
	CompletedSteps    []string
	RollbackRequired  bool
	RollbackCompleted bool
	Duration          time.Duration
	Error             string
}

// CreationRequest is a caller's high-level intent for a new entity
type CreationRequest struct {
	Email    string
	Name     string
	Username string
	Password string
	Table    string
	Fields   map[string]interface{}
}

// SchemaInfo summarizes what the engine learned about the schema
type SchemaInfo struct {
	Framework    string
	Confidence   float64
	PrimaryTable string
	TableCount   int
}

// Timings breaks down where a creation request spent its time
type Timings struct {
	Introspection time.Duration
	Build         time.Duration
	Execution     time.Duration
	Total         time.Duration
}

// CreationResult is the full outcome of one creation request
type CreationResult struct {
	Success            bool
	GeneratedID        string
	Workflow           *UserCreationWorkflow
	Execution          *ExecutionResult
	Validation         *ValidationResult
	AppliedFixes       []AutoFix
	SchemaInfo         SchemaInfo
	Timings            Timings
	Recommendations    []string
	FallbacksTriggered []string
	Error              string
}

package validator

import (
	"context"
	"io"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livebydesign2/supa-seed-sub002/internal/connector"
	"github.com/livebydesign2/supa-seed-sub002/pkg/models"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func mockConnector(t *testing.T) (*connector.DatabaseConnector, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &connector.DatabaseConnector{
		Driver: connector.DriverPostgres,
		DB:     db,
		Logger: testLogger(),
	}, mock
}

func profilesSnapshot() *models.SchemaSnapshot {
	return &models.SchemaSnapshot{
		Tables: []models.TableInfo{
			{
				Name: "profiles",
				Columns: []models.Column{
					{Name: "id", DataType: "uuid", IsPrimaryKey: true},
					{Name: "email", DataType: "text", IsUnique: true},
					{Name: "username", DataType: "text"},
					{Name: "account_id", DataType: "uuid", IsForeignKey: true},
				},
				Constraints: []models.Constraint{
					{Name: "profiles_email_key", Type: models.UniqueConstraint, Table: "profiles", Columns: []string{"email"}},
					{Name: "profiles_account_id_fkey", Type: models.ForeignKeyConstraint, Table: "profiles",
						Columns: []string{"account_id"}, ReferencedTable: "accounts", ReferencedColumn: "id"},
				},
			},
		},
	}
}

func TestNotNullRuleProposesDefault(t *testing.T) {
	cv := NewConstraintValidator(nil, testLogger())
	require.NoError(t, cv.Initialize(profilesSnapshot(), nil))

	result := cv.ValidateOperation(context.Background(), &OperationContext{
		Table:     "profiles",
		Operation: InsertOperation,
		Record:    map[string]interface{}{"id": "u-1", "email": "a@b.com", "account_id": "acc-1"},
	})

	require.False(t, result.Valid)
	require.NotEmpty(t, result.Fixes)

	var fix *models.AutoFix
	for i := range result.Fixes {
		if result.Fixes[i].Field == "username" {
			fix = &result.Fixes[i]
		}
	}
	require.NotNil(t, fix, "missing NOT NULL column should yield a fix")
	assert.Equal(t, models.ProvideDefault, fix.Strategy)
}

func TestUniqueRuleDetectsConflict(t *testing.T) {
	db, mock := mockConnector(t)
	cv := NewConstraintValidator(db, testLogger())
	require.NoError(t, cv.Initialize(profilesSnapshot(), nil))

	mock.ExpectQuery(regexp.QuoteMeta("SELECT email FROM profiles WHERE email = $1 LIMIT 1")).
		WithArgs("taken@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"email"}).AddRow("taken@example.com"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM accounts WHERE id = $1 LIMIT 1")).
		WithArgs("acc-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("acc-1"))

	result := cv.ValidateOperation(context.Background(), &OperationContext{
		Table:     "profiles",
		Operation: InsertOperation,
		Record: map[string]interface{}{
			"id": "u-1", "email": "taken@example.com", "username": "u", "account_id": "acc-1",
		},
	})

	assert.False(t, result.Valid)
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0].Message, "already exists")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUniqueRuleLookupErrorDegradesToWarning(t *testing.T) {
	db, mock := mockConnector(t)
	cv := NewConstraintValidator(db, testLogger())
	require.NoError(t, cv.Initialize(profilesSnapshot(), nil))

	mock.ExpectQuery(regexp.QuoteMeta("SELECT email FROM profiles WHERE email = $1 LIMIT 1")).
		WillReturnError(assert.AnError)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM accounts WHERE id = $1 LIMIT 1")).
		WithArgs("acc-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("acc-1"))

	result := cv.ValidateOperation(context.Background(), &OperationContext{
		Table:     "profiles",
		Operation: InsertOperation,
		Record: map[string]interface{}{
			"id": "u-1", "email": "a@b.com", "username": "u", "account_id": "acc-1",
		},
	})

	assert.True(t, result.Valid, "a failed lookup must not block the write")
	assert.NotEmpty(t, result.Warnings)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestForeignKeyRuleNullRequiredColumn(t *testing.T) {
	cv := NewConstraintValidator(nil, testLogger())
	require.NoError(t, cv.Initialize(profilesSnapshot(), nil))

	result := cv.ValidateOperation(context.Background(), &OperationContext{
		Table:     "profiles",
		Operation: InsertOperation,
		Record:    map[string]interface{}{"id": "u-1", "email": "a@b.com", "username": "u", "account_id": nil},
	})

	require.False(t, result.Valid)
	var found bool
	for _, fix := range result.Fixes {
		if fix.Field == "account_id" && fix.Strategy == models.CreateDependency {
			found = true
		}
	}
	assert.True(t, found, "null required fk should propose create_dependency")
}

func TestForeignKeyRuleMissingReferencedRow(t *testing.T) {
	db, mock := mockConnector(t)
	cv := NewConstraintValidator(db, testLogger())
	require.NoError(t, cv.Initialize(profilesSnapshot(), nil))

	mock.ExpectQuery(regexp.QuoteMeta("SELECT email FROM profiles WHERE email = $1 LIMIT 1")).
		WillReturnRows(sqlmock.NewRows([]string{"email"}))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM accounts WHERE id = $1 LIMIT 1")).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	result := cv.ValidateOperation(context.Background(), &OperationContext{
		Table:     "profiles",
		Operation: InsertOperation,
		Record: map[string]interface{}{
			"id": "u-1", "email": "a@b.com", "username": "u", "account_id": "ghost",
		},
	})

	assert.False(t, result.Valid)
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0].Message, "no matching row")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func checkSnapshot() *models.SchemaSnapshot {
	return &models.SchemaSnapshot{
		Tables: []models.TableInfo{
			{
				Name: "accounts",
				Columns: []models.Column{
					{Name: "id", DataType: "uuid", IsPrimaryKey: true},
					{Name: "is_personal_account", DataType: "boolean"},
					{Name: "organization_id", DataType: "uuid", IsNullable: true},
				},
				Constraints: []models.Constraint{
					{Name: "accounts_personal_account_check", Type: models.CheckConstraint, Table: "accounts",
						CheckExpression: "(is_personal_account = false) OR (organization_id IS NULL)"},
				},
			},
		},
	}
}

func TestUnhandledCheckConstraintWarnsInsteadOfSilentPass(t *testing.T) {
	cv := NewConstraintValidator(nil, testLogger())
	require.NoError(t, cv.Initialize(checkSnapshot(), nil))

	result := cv.ValidateOperation(context.Background(), &OperationContext{
		Table:     "unmapped_check_table",
		Operation: InsertOperation,
		Record:    map[string]interface{}{},
	})
	assert.True(t, result.Valid)
	assert.NotEmpty(t, result.Warnings, "unknown table must at least warn")
}

type rejectAllHandler struct{}

func (rejectAllHandler) Matches(models.Constraint) bool { return true }

func (rejectAllHandler) Apply(_ context.Context, c models.Constraint, _ *OperationContext) RuleOutcome {
	return RuleOutcome{Valid: false, Message: "rejected by " + c.Name}
}

func TestHandlerRegistrySubstitution(t *testing.T) {
	record := map[string]interface{}{
		"id": "acc-1", "is_personal_account": true, "organization_id": nil,
	}
	op := func() *OperationContext {
		return &OperationContext{Table: "accounts", Operation: InsertOperation, Record: record}
	}

	// No handler: the check constraint surfaces as a warning, never silently passes
	without := NewConstraintValidator(nil, testLogger())
	require.NoError(t, without.Initialize(checkSnapshot(), nil))
	result := without.ValidateOperation(context.Background(), op())
	assert.True(t, result.Valid)
	require.NotEmpty(t, result.Warnings)
	foundWarning := false
	for _, w := range result.Warnings {
		if w.Rule != "" && regexp.MustCompile(`no handler`).MatchString(w.Message) {
			foundWarning = true
		}
	}
	assert.True(t, foundWarning)

	// Injected handler takes over the same constraint
	with := NewConstraintValidator(nil, testLogger(), rejectAllHandler{})
	require.NoError(t, with.Initialize(checkSnapshot(), nil))
	result = with.ValidateOperation(context.Background(), op())
	assert.False(t, result.Valid)
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0].Message, "rejected by")
}

func TestPersonalAccountHandler(t *testing.T) {
	h := NewPersonalAccountHandler()
	constraint := checkSnapshot().Tables[0].Constraints[0]

	require.True(t, h.Matches(constraint))

	valid := h.Apply(context.Background(), constraint, &OperationContext{
		Record: map[string]interface{}{"is_personal_account": true, "organization_id": nil},
	})
	assert.True(t, valid.Valid)

	invalid := h.Apply(context.Background(), constraint, &OperationContext{
		Record: map[string]interface{}{"is_personal_account": true, "organization_id": "org-1"},
	})
	assert.False(t, invalid.Valid)
	require.NotNil(t, invalid.Fix)
	assert.Equal(t, models.SkipField, invalid.Fix.Strategy)
	assert.Equal(t, "organization_id", invalid.Fix.Field)

	team := h.Apply(context.Background(), constraint, &OperationContext{
		Record: map[string]interface{}{"is_personal_account": false, "organization_id": "org-1"},
	})
	assert.True(t, team.Valid)
}

func TestEmailFormatRuleWarnsOnMalformedAddress(t *testing.T) {
	cv := NewConstraintValidator(nil, testLogger())
	columnMaps := map[string]*models.TableColumnMap{
		"profiles": {
			Table: "profiles",
			Role:  models.UserRole,
			Mappings: []models.ColumnMapping{
				{SemanticField: "email", ActualColumn: "email", Confidence: 1.0},
			},
		},
	}
	require.NoError(t, cv.Initialize(profilesSnapshot(), columnMaps))

	result := cv.ValidateOperation(context.Background(), &OperationContext{
		Table:     "profiles",
		Operation: InsertOperation,
		Record: map[string]interface{}{
			"id": "u-1", "email": "not-an-address", "username": "u", "account_id": nil,
		},
	})

	var warned bool
	for _, w := range result.Warnings {
		if w.Rule == "profiles_email_email_format" {
			warned = true
			assert.Contains(t, w.Message, "not a valid email")
		}
	}
	assert.True(t, warned, "malformed email should warn")
}

func TestApplyAutoFixesIsIdempotent(t *testing.T) {
	record := map[string]interface{}{"username": nil}
	fixes := []models.AutoFix{
		{Rule: "profiles_username_not_null", Field: "username", FixedValue: "generated.user", Strategy: models.ProvideDefault},
	}

	once, applied := ApplyAutoFixes(record, fixes)
	require.Len(t, applied, 1)
	assert.True(t, applied[0].Applied)
	assert.Equal(t, "generated.user", once["username"])
	assert.Nil(t, record["username"], "the input record must not be mutated")

	twice, appliedAgain := ApplyAutoFixes(once, fixes)
	assert.Empty(t, appliedAgain, "a satisfied provide_default is a no-op")
	assert.Equal(t, once, twice)
}

func TestApplyAutoFixesSkipField(t *testing.T) {
	record := map[string]interface{}{"organization_id": "org-1", "name": "x"}
	fixed, applied := ApplyAutoFixes(record, []models.AutoFix{
		{Field: "organization_id", Strategy: models.SkipField},
	})

	require.Len(t, applied, 1)
	_, present := fixed["organization_id"]
	assert.False(t, present)
	assert.Contains(t, record, "organization_id", "the input record must not be mutated")
}

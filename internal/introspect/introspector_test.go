package introspect

import (
	"context"
	"io"
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

func TestSnapshotPostgres(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	conn := &connector.DatabaseConnector{
		Driver: connector.DriverPostgres,
		DB:     db,
		Logger: testLogger(),
	}

	mock.ExpectQuery("information_schema.tables").
		WithArgs("public").
		WillReturnRows(sqlmock.NewRows([]string{"table_name"}).AddRow("profiles"))
	mock.ExpectQuery("information_schema.columns").
		WithArgs("public", "profiles").
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "data_type", "character_maximum_length", "is_nullable", "column_default"}).
			AddRow("id", "uuid", nil, "NO", nil).
			AddRow("username", "character varying", 32, "NO", nil).
			AddRow("account_id", "uuid", nil, "YES", nil).
			AddRow("created_at", "timestamp with time zone", nil, "YES", "now()"))
	mock.ExpectQuery("key_column_usage").
		WithArgs("public", "profiles").
		WillReturnRows(sqlmock.NewRows([]string{"constraint_name", "constraint_type", "column_name", "referenced_table_name", "referenced_column_name"}).
			AddRow("profiles_pkey", "PRIMARY KEY", "id", nil, nil).
			AddRow("profiles_account_id_fkey", "FOREIGN KEY", "account_id", "accounts", "id"))
	mock.ExpectQuery("check_constraints").
		WithArgs("public", "profiles").
		WillReturnRows(sqlmock.NewRows([]string{"constraint_name", "check_clause"}).
			AddRow("profiles_username_check", "char_length(username) > 2").
			AddRow("2200_16387_1_not_null", "id IS NOT NULL"))
	mock.ExpectQuery("information_schema.triggers").
		WithArgs("public", "profiles").
		WillReturnRows(sqlmock.NewRows([]string{"trigger_name", "event_manipulation", "action_timing", "action_statement"}).
			AddRow("on_profile_created", "INSERT", "AFTER", "EXECUTE FUNCTION notify()"))

	in := NewIntrospector(conn, testLogger())
	snapshot, err := in.Snapshot(context.Background())
	require.NoError(t, err)

	table := snapshot.Table("profiles")
	require.NotNil(t, table)
	require.Len(t, table.Columns, 4)

	id := table.Column("id")
	require.NotNil(t, id)
	assert.True(t, id.IsPrimaryKey)
	assert.False(t, id.IsNullable)

	username := table.Column("username")
	require.NotNil(t, username)
	require.NotNil(t, username.CharMaxLength)
	assert.Equal(t, int64(32), *username.CharMaxLength)

	createdAt := table.Column("created_at")
	require.NotNil(t, createdAt)
	require.NotNil(t, createdAt.DefaultValue)
	assert.Equal(t, "now()", *createdAt.DefaultValue)

	accountID := table.Column("account_id")
	require.NotNil(t, accountID)
	assert.True(t, accountID.IsForeignKey)

	// FK constraints become relationship edges carrying the column's nullability
	require.Len(t, snapshot.Relationships, 1)
	rel := snapshot.Relationships[0]
	assert.Equal(t, "profiles", rel.FromTable)
	assert.Equal(t, "account_id", rel.FromColumn)
	assert.Equal(t, "accounts", rel.ToTable)
	assert.True(t, rel.IsNullable)

	// The real check constraint survives, the synthesized NOT NULL one is dropped
	var checkNames []string
	for _, c := range table.Constraints {
		if c.CheckExpression != "" {
			checkNames = append(checkNames, c.Name)
		}
	}
	assert.Equal(t, []string{"profiles_username_check"}, checkNames)

	require.Len(t, table.Triggers, 1)
	assert.Equal(t, "INSERT", table.Triggers[0].Event)

	assert.NotEmpty(t, snapshot.Fingerprint)
	assert.NotEmpty(t, snapshot.Framework)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDetectFramework(t *testing.T) {
	makerkit := &models.SchemaSnapshot{Tables: []models.TableInfo{
		{Name: "accounts"}, {Name: "memberships"}, {Name: "organizations"}, {Name: "subscriptions"},
	}}
	label, confidence := DetectFramework(makerkit)
	assert.Equal(t, "makerkit", label)
	assert.InDelta(t, 0.8, confidence, 0.001)

	django := &models.SchemaSnapshot{Tables: []models.TableInfo{
		{Name: "auth_user"}, {Name: "django_migrations"}, {Name: "django_content_type"},
	}}
	label, confidence = DetectFramework(django)
	assert.Equal(t, "django", label)
	assert.Equal(t, 1.0, confidence)

	generic := &models.SchemaSnapshot{Tables: []models.TableInfo{
		{Name: "widgets"}, {Name: "gadgets"},
	}}
	label, confidence = DetectFramework(generic)
	assert.Equal(t, "generic", label)
	assert.Equal(t, 0.1, confidence)
}

func TestFingerprintIsStableAndStructureSensitive(t *testing.T) {
	base := func() *models.SchemaSnapshot {
		return &models.SchemaSnapshot{Tables: []models.TableInfo{
			{
				Name: "profiles",
				Columns: []models.Column{
					{Name: "id", DataType: "uuid"},
					{Name: "email", DataType: "text"},
				},
				Constraints: []models.Constraint{
					{Name: "profiles_pkey", Type: models.PrimaryKeyConstraint},
				},
			},
		}}
	}

	assert.Equal(t, Fingerprint(base()), Fingerprint(base()))

	changed := base()
	changed.Tables[0].Columns[1].IsNullable = true
	assert.NotEqual(t, Fingerprint(base()), Fingerprint(changed))

	reordered := base()
	reordered.Tables[0].Columns[0], reordered.Tables[0].Columns[1] =
		reordered.Tables[0].Columns[1], reordered.Tables[0].Columns[0]
	assert.Equal(t, Fingerprint(base()), Fingerprint(reordered), "column order is not structural")
}

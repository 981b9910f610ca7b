package orchestrator

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livebydesign2/supa-seed-sub002/internal/config"
	"github.com/livebydesign2/supa-seed-sub002/internal/connector"
	"github.com/livebydesign2/supa-seed-sub002/pkg/models"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time { return f.now }

func mockOrchestrator(t *testing.T, cfg config.SeederConfig) (*Orchestrator, sqlmock.Sqlmock, *fakeClock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	conn := &connector.DatabaseConnector{
		Driver: connector.DriverPostgres,
		DB:     db,
		Logger: testLogger(),
	}
	orch := New(conn, cfg, testLogger())
	clock := &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	orch.Clock = clock
	return orch, mock, clock
}

func expectEmptySchema(mock sqlmock.Sqlmock) {
	mock.ExpectQuery("information_schema.tables").
		WithArgs("public").
		WillReturnRows(sqlmock.NewRows([]string{"table_name"}))
}

// expectProfilesSchema mocks introspection of a single user-like table
func expectProfilesSchema(mock sqlmock.Sqlmock) {
	mock.ExpectQuery("information_schema.tables").
		WithArgs("public").
		WillReturnRows(sqlmock.NewRows([]string{"table_name"}).AddRow("profiles"))
	mock.ExpectQuery("information_schema.columns").
		WithArgs("public", "profiles").
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "data_type", "character_maximum_length", "is_nullable", "column_default"}).
			AddRow("id", "uuid", nil, "NO", nil).
			AddRow("email", "text", nil, "NO", nil).
			AddRow("username", "text", nil, "NO", nil))
	mock.ExpectQuery("key_column_usage").
		WithArgs("public", "profiles").
		WillReturnRows(sqlmock.NewRows([]string{"constraint_name", "constraint_type", "column_name", "referenced_table_name", "referenced_column_name"}).
			AddRow("profiles_pkey", "PRIMARY KEY", "id", nil, nil))
	mock.ExpectQuery("check_constraints").
		WithArgs("public", "profiles").
		WillReturnRows(sqlmock.NewRows([]string{"constraint_name", "check_clause"}))
	mock.ExpectQuery("information_schema.triggers").
		WithArgs("public", "profiles").
		WillReturnRows(sqlmock.NewRows([]string{"trigger_name", "event_manipulation", "action_timing", "action_statement"}))
}

func TestCreateUserFallsBackOnEmptySchema(t *testing.T) {
	orch, mock, _ := mockOrchestrator(t, config.DefaultConfig())

	expectEmptySchema(mock)
	mock.ExpectExec("INSERT INTO profiles").
		WithArgs(sqlmock.AnyArg(), "ada.lovelace").
		WillReturnResult(sqlmock.NewResult(0, 1))

	result := orch.CreateUser(context.Background(), &models.CreationRequest{
		Email: "ada@example.com",
		Name:  "Ada Lovelace",
	})

	require.True(t, result.Success, "error: %s", result.Error)
	assert.Equal(t, []string{"simple_profiles"}, result.FallbacksTriggered)
	assert.NotEmpty(t, result.GeneratedID)
	assert.Empty(t, result.Error)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateUserExhaustsFallbacks(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.FallbackStrategies = []string{"simple_profiles"}
	orch, mock, _ := mockOrchestrator(t, cfg)

	expectEmptySchema(mock)
	mock.ExpectExec("INSERT INTO profiles").WillReturnError(assert.AnError)

	result := orch.CreateUser(context.Background(), &models.CreationRequest{})

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "all creation strategies failed")
	assert.Empty(t, result.FallbacksTriggered)
	assert.NotEmpty(t, result.Recommendations)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateUserSkipsUnknownStrategies(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.FallbackStrategies = []string{"warp_drive", "auth_only"}
	orch, mock, _ := mockOrchestrator(t, cfg)

	expectEmptySchema(mock)

	result := orch.CreateUser(context.Background(), &models.CreationRequest{})

	require.True(t, result.Success, "error: %s", result.Error)
	assert.Equal(t, []string{"auth_only"}, result.FallbacksTriggered)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAnalyzeCachesSnapshotUntilTTL(t *testing.T) {
	orch, mock, clock := mockOrchestrator(t, config.DefaultConfig())
	ctx := context.Background()

	expectEmptySchema(mock)
	first, err := orch.Analyze(ctx)
	require.NoError(t, err)

	// Within the TTL the cached analysis is reused without touching the database
	clock.now = clock.now.Add(5 * time.Minute)
	second, err := orch.Analyze(ctx)
	require.NoError(t, err)
	assert.Same(t, first, second)

	// Past the TTL a fresh introspection runs
	clock.now = clock.now.Add(11 * time.Minute)
	expectEmptySchema(mock)
	third, err := orch.Analyze(ctx)
	require.NoError(t, err)
	assert.NotSame(t, first, third)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInvalidateCacheForcesReintrospection(t *testing.T) {
	orch, mock, _ := mockOrchestrator(t, config.DefaultConfig())
	ctx := context.Background()

	expectEmptySchema(mock)
	_, err := orch.Analyze(ctx)
	require.NoError(t, err)

	orch.InvalidateCache()

	expectEmptySchema(mock)
	_, err = orch.Analyze(ctx)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBeforeCreateHookErrorFailsRequest(t *testing.T) {
	orch, mock, _ := mockOrchestrator(t, config.DefaultConfig())
	orch.Hooks.BeforeCreate = func(*models.CreationRequest) error {
		return assert.AnError
	}

	result := orch.CreateUser(context.Background(), &models.CreationRequest{})

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "before-create hook failed")
	assert.NoError(t, mock.ExpectationsWereMet(), "a rejected request must not touch the database")
}

func TestAfterCreateHookErrorOverridesSuccess(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.FallbackStrategies = []string{"auth_only"}
	orch, mock, _ := mockOrchestrator(t, cfg)
	orch.Hooks.AfterCreate = func(*models.CreationResult) error {
		return assert.AnError
	}

	expectEmptySchema(mock)

	result := orch.CreateUser(context.Background(), &models.CreationRequest{})

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "after-create hook failed")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPlanWorkflowBuildsWithoutExecuting(t *testing.T) {
	orch, mock, _ := mockOrchestrator(t, config.DefaultConfig())

	expectProfilesSchema(mock)

	wf, err := orch.PlanWorkflow(context.Background(), &models.CreationRequest{
		Email: "ada@example.com",
		Name:  "Ada Lovelace",
	})
	require.NoError(t, err)

	assert.Equal(t, "profiles", wf.Metadata.PrimaryTable)
	require.NotNil(t, wf.Step("create_principal"), "user-role table needs a principal step")
	require.NotNil(t, wf.Step("insert_profiles"))
	assert.NotEmpty(t, wf.RollbackSteps)
	assert.NoError(t, mock.ExpectationsWereMet(), "planning must not execute any inserts")
}

func TestCreateUserEndToEndAgainstProfilesSchema(t *testing.T) {
	cfg := config.DefaultConfig()
	orch, mock, _ := mockOrchestrator(t, cfg)

	expectProfilesSchema(mock)
	// Pre-insert uniqueness probe on the primary key, then the insert itself
	mock.ExpectQuery("SELECT id FROM profiles").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery("SELECT id FROM profiles").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectExec("INSERT INTO profiles").
		WithArgs(sqlmock.AnyArg(), "ada@example.com", "ada.lovelace").
		WillReturnResult(sqlmock.NewResult(0, 1))

	result := orch.CreateUser(context.Background(), &models.CreationRequest{
		Email: "ada@example.com",
		Name:  "Ada Lovelace",
	})

	require.True(t, result.Success, "error: %s", result.Error)
	assert.Empty(t, result.FallbacksTriggered, "the adaptive path must win without fallbacks")
	assert.NotEmpty(t, result.GeneratedID)
	assert.Equal(t, "profiles", result.SchemaInfo.PrimaryTable)
	assert.Equal(t, 1, result.SchemaInfo.TableCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

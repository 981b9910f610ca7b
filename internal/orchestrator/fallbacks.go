package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/livebydesign2/supa-seed-sub002/internal/connector"
	"github.com/livebydesign2/supa-seed-sub002/internal/generator"
	"github.com/livebydesign2/supa-seed-sub002/pkg/models"
)

// FallbackStrategy is a self-contained, schema-independent creation path
// used only after the primary schema-adaptive plan fails
type FallbackStrategy interface {
	Name() string
	Execute(ctx context.Context, req *models.CreationRequest) (string, error)
}

// BuiltinStrategies returns the default fallback set, keyed by name
func BuiltinStrategies(db *connector.DatabaseConnector, gen *generator.DataGenerator, logger *logrus.Logger) map[string]FallbackStrategy {
	strategies := []FallbackStrategy{
		&SimpleProfilesStrategy{DB: db, Generator: gen, Logger: logger},
		&AccountsOnlyStrategy{DB: db, Generator: gen, Logger: logger},
		&AuthOnlyStrategy{Logger: logger},
	}
	byName := make(map[string]FallbackStrategy, len(strategies))
	for _, s := range strategies {
		byName[s.Name()] = s
	}
	return byName
}

// SimpleProfilesStrategy creates a principal plus a generic profile row,
// relying only on conventional column names
type SimpleProfilesStrategy struct {
	DB        *connector.DatabaseConnector
	Generator *generator.DataGenerator
	Logger    *logrus.Logger
}

// Name implements FallbackStrategy
func (s *SimpleProfilesStrategy) Name() string { return "simple_profiles" }

// Execute implements FallbackStrategy
func (s *SimpleProfilesStrategy) Execute(ctx context.Context, req *models.CreationRequest) (string, error) {
	id := uuid.NewString()
	username := req.Username
	if username == "" {
		username = s.Generator.UsernameFromName(req.Name)
	}

	query, args, err := s.DB.StatementBuilder().
		Insert("profiles").
		Columns("id", "username").
		Values(id, username).
		ToSql()
	if err != nil {
		return "", fmt.Errorf("building profile insert: %w", err)
	}
	if _, err := s.DB.ExecuteStatement(ctx, query, args...); err != nil {
		return "", fmt.Errorf("inserting generic profile: %w", err)
	}

	s.Logger.Infof("Fallback %s created profile %s", s.Name(), id)
	return id, nil
}

// AccountsOnlyStrategy creates a principal plus a generic personal account row
type AccountsOnlyStrategy struct {
	DB        *connector.DatabaseConnector
	Generator *generator.DataGenerator
	Logger    *logrus.Logger
}

// Name implements FallbackStrategy
func (s *AccountsOnlyStrategy) Name() string { return "accounts_only" }

// Execute implements FallbackStrategy
func (s *AccountsOnlyStrategy) Execute(ctx context.Context, req *models.CreationRequest) (string, error) {
	id := uuid.NewString()
	name := req.Name
	if name == "" {
		name, _ = s.Generator.SemanticValue("name").(string)
	}

	query, args, err := s.DB.StatementBuilder().
		Insert("accounts").
		Columns("id", "name", "is_personal_account", "created_at").
		Values(id, name, true, time.Now().UTC()).
		ToSql()
	if err != nil {
		return "", fmt.Errorf("building account insert: %w", err)
	}
	if _, err := s.DB.ExecuteStatement(ctx, query, args...); err != nil {
		return "", fmt.Errorf("inserting generic account: %w", err)
	}

	s.Logger.Infof("Fallback %s created account %s", s.Name(), id)
	return id, nil
}

// AuthOnlyStrategy creates only the authentication principal with no
// profile or account rows at all
type AuthOnlyStrategy struct {
	Logger *logrus.Logger
}

// Name implements FallbackStrategy
func (s *AuthOnlyStrategy) Name() string { return "auth_only" }

// Execute implements FallbackStrategy
func (s *AuthOnlyStrategy) Execute(_ context.Context, _ *models.CreationRequest) (string, error) {
	id := uuid.NewString()
	s.Logger.Infof("Fallback %s created bare principal %s", s.Name(), id)
	return id, nil
}

package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/livebydesign2/supa-seed-sub002/internal/config"
	"github.com/livebydesign2/supa-seed-sub002/internal/connector"
	"github.com/livebydesign2/supa-seed-sub002/internal/generator"
	"github.com/livebydesign2/supa-seed-sub002/internal/grapher"
	"github.com/livebydesign2/supa-seed-sub002/internal/introspect"
	"github.com/livebydesign2/supa-seed-sub002/internal/mapper"
	"github.com/livebydesign2/supa-seed-sub002/internal/validator"
	"github.com/livebydesign2/supa-seed-sub002/internal/workflow"
	"github.com/livebydesign2/supa-seed-sub002/pkg/models"
)

// Clock abstracts wall-clock time so cache expiry is testable
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock
type SystemClock struct{}

// Now implements Clock
func (SystemClock) Now() time.Time { return time.Now() }

// cacheEntry holds one introspected schema with its expiry deadline
type cacheEntry struct {
	snapshot  *models.SchemaSnapshot
	analysis  *SchemaAnalysis
	expiresAt time.Time
}

func (e *cacheEntry) isValid(now time.Time) bool {
	return e != nil && now.Before(e.expiresAt)
}

// SchemaAnalysis bundles everything the engine derives from one snapshot
type SchemaAnalysis struct {
	Snapshot   *models.SchemaSnapshot
	ColumnMaps map[string]*models.TableColumnMap
	Graph      *models.RelationshipGraph
}

// Hooks are caller extension points. A hook error propagates like any
// other failure; nothing is swallowed.
type Hooks struct {
	BeforeCreate func(req *models.CreationRequest) error
	AfterCreate  func(result *models.CreationResult) error
}

// Orchestrator wraps the full engine behind a schema cache and a fallback
// cascade
type Orchestrator struct {
	DB           *connector.DatabaseConnector
	Introspector *introspect.Introspector
	Mapper       *mapper.ColumnMapper
	Grapher      *grapher.RelationshipGrapher
	Validator    *validator.ConstraintValidator
	Builder      *workflow.WorkflowBuilder
	Executor     *workflow.WorkflowExecutor
	Generator    *generator.DataGenerator
	Logger       *logrus.Logger
	Config       config.SeederConfig
	Clock        Clock
	Hooks        Hooks
	Strategies   map[string]FallbackStrategy

	mu    sync.Mutex
	cache *cacheEntry
}

// New wires a complete orchestrator from explicit dependencies. No global
// state survives between instances.
func New(db *connector.DatabaseConnector, cfg config.SeederConfig, logger *logrus.Logger) *Orchestrator {
	cfg.Normalize()

	gen := generator.NewDataGenerator(logger)
	val := validator.NewConstraintValidator(db, logger, validator.NewPersonalAccountHandler())
	return &Orchestrator{
		DB:           db,
		Introspector: introspect.NewIntrospector(db, logger),
		Mapper:       mapper.NewColumnMapper(logger),
		Grapher:      grapher.NewRelationshipGrapher(logger),
		Validator:    val,
		Builder:      workflow.NewWorkflowBuilder(gen, val, logger),
		Executor: workflow.NewWorkflowExecutor(db, val, logger, workflow.ExecuteOptions{
			EnableValidation: cfg.EnableValidation,
			EnableAutoFixes:  cfg.EnableAutoFixes,
			EnableRollback:   cfg.EnableRollback,
			DefaultTimeout:   cfg.StepTimeout,
		}),
		Generator:  gen,
		Logger:     logger,
		Config:     cfg,
		Clock:      SystemClock{},
		Strategies: BuiltinStrategies(db, gen, logger),
	}
}

// Analyze introspects (or reuses the cached) schema and derives column
// maps and the dependency graph
func (o *Orchestrator) Analyze(ctx context.Context) (*SchemaAnalysis, error) {
	now := o.Clock.Now()

	o.mu.Lock()
	if o.Config.EnableCaching && o.cache.isValid(now) {
		analysis := o.cache.analysis
		expiresAt := o.cache.expiresAt
		o.mu.Unlock()
		o.Logger.Debugf("Schema cache hit (expires %s)", expiresAt.Format(time.RFC3339))
		return analysis, nil
	}
	o.mu.Unlock()

	snapshot, err := o.Introspector.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("introspecting schema: %w", err)
	}
	analysis := o.analyzeSnapshot(snapshot)

	if o.Config.EnableCaching {
		entry := &cacheEntry{
			snapshot:  snapshot,
			analysis:  analysis,
			expiresAt: now.Add(o.Config.CacheTTL()),
		}
		// Cache replacement is wholesale; entries are never mutated in place
		o.mu.Lock()
		o.cache = entry
		o.mu.Unlock()
	}

	return analysis, nil
}

// analyzeSnapshot derives column maps and the dependency graph from a snapshot
func (o *Orchestrator) analyzeSnapshot(snapshot *models.SchemaSnapshot) *SchemaAnalysis {
	columnMaps := make(map[string]*models.TableColumnMap, len(snapshot.Tables))
	for i := range snapshot.Tables {
		table := &snapshot.Tables[i]
		role := mapper.ClassifyTableRole(table, snapshot.Relationships)
		opts := mapper.Options{
			MinConfidence:    o.Config.Mapping.MinConfidence,
			EnablePatterns:   o.Config.Mapping.EnablePatterns,
			EnableFuzzy:      o.Config.Mapping.EnableFuzzy,
			StrictMode:       o.Config.Mapping.StrictMode,
			ExplicitMappings: o.Config.Mapping.CustomMappings[table.Name],
		}
		columnMaps[table.Name] = o.Mapper.MapTable(table, role, opts)
	}

	graph := o.Grapher.BuildGraph(snapshot.TableNames(), snapshot.Relationships)

	return &SchemaAnalysis{
		Snapshot:   snapshot,
		ColumnMaps: columnMaps,
		Graph:      graph,
	}
}

// PlanWorkflow builds (but does not execute) the workflow for a request,
// for dry runs and diagnostics
func (o *Orchestrator) PlanWorkflow(ctx context.Context, req *models.CreationRequest) (*models.UserCreationWorkflow, error) {
	analysis, err := o.Analyze(ctx)
	if err != nil {
		return nil, err
	}
	if err := o.Validator.Initialize(analysis.Snapshot, analysis.ColumnMaps); err != nil {
		return nil, fmt.Errorf("compiling validation rules: %w", err)
	}
	if req == nil {
		req = &models.CreationRequest{}
	}
	if req.Table == "" {
		req.Table = o.Config.PrimaryTable
	}
	return o.Builder.Build(analysis.Snapshot, analysis.Graph, analysis.ColumnMaps, req, workflow.BuildOptions{
		RetryCount:  o.Config.RetryCount,
		StepTimeout: o.Config.StepTimeout,
	})
}

// InvalidateCache drops the cached schema so the next call re-introspects
func (o *Orchestrator) InvalidateCache() {
	o.mu.Lock()
	o.cache = nil
	o.mu.Unlock()
}

// CreateUser runs the primary schema-adaptive workflow for a creation
// request and, when it fails, cascades through the configured fallback
// strategies. Never panics or throws past this boundary: failures come
// back as a structured result.
func (o *Orchestrator) CreateUser(ctx context.Context, req *models.CreationRequest) *models.CreationResult {
	start := o.Clock.Now()
	result := &models.CreationResult{}

	if req == nil {
		req = &models.CreationRequest{}
	}
	if o.Hooks.BeforeCreate != nil {
		if err := o.Hooks.BeforeCreate(req); err != nil {
			result.Error = fmt.Sprintf("before-create hook failed: %v", err)
			result.Timings.Total = time.Since(start)
			return result
		}
	}

	primaryErr := o.runPrimary(ctx, req, result)
	if primaryErr != nil {
		o.Logger.Warningf("Primary workflow failed: %v", primaryErr)
		result.Error = primaryErr.Error()

		if o.Config.EnableFallbacks {
			o.runFallbacks(ctx, req, result, primaryErr)
		}
	}

	result.Timings.Total = time.Since(start)

	if o.Hooks.AfterCreate != nil {
		if err := o.Hooks.AfterCreate(result); err != nil {
			result.Success = false
			result.Error = fmt.Sprintf("after-create hook failed: %v", err)
		}
	}

	return result
}

// runPrimary executes the schema-adaptive path, filling the result as it goes
func (o *Orchestrator) runPrimary(ctx context.Context, req *models.CreationRequest, result *models.CreationResult) error {
	introspectStart := o.Clock.Now()
	analysis, err := o.Analyze(ctx)
	result.Timings.Introspection = time.Since(introspectStart)
	if err != nil {
		return err
	}

	result.SchemaInfo = models.SchemaInfo{
		Framework:  analysis.Snapshot.Framework,
		Confidence: analysis.Snapshot.Confidence,
		TableCount: len(analysis.Snapshot.Tables),
	}
	result.Recommendations = collectRecommendations(analysis)

	if err := o.Validator.Initialize(analysis.Snapshot, analysis.ColumnMaps); err != nil {
		return fmt.Errorf("compiling validation rules: %w", err)
	}

	if req.Table == "" {
		req.Table = o.Config.PrimaryTable
	}

	buildStart := o.Clock.Now()
	wf, err := o.Builder.Build(analysis.Snapshot, analysis.Graph, analysis.ColumnMaps, req, workflow.BuildOptions{
		RetryCount:  o.Config.RetryCount,
		StepTimeout: o.Config.StepTimeout,
	})
	result.Timings.Build = time.Since(buildStart)
	if err != nil {
		return fmt.Errorf("building workflow: %w", err)
	}
	result.Workflow = wf
	result.SchemaInfo.PrimaryTable = wf.Metadata.PrimaryTable

	execStart := o.Clock.Now()
	outcome := o.Executor.Execute(ctx, wf, req)
	result.Timings.Execution = time.Since(execStart)

	result.Execution = outcome.Execution
	result.Validation = outcome.Validation
	result.AppliedFixes = outcome.AppliedFixes

	if !outcome.Execution.Success {
		return fmt.Errorf("workflow execution failed: %s", outcome.Execution.Error)
	}

	result.Success = true
	result.GeneratedID = outcome.GeneratedID
	result.Error = ""
	return nil
}

// runFallbacks iterates the configured strategies in order; the first
// success wins and is recorded for observability
func (o *Orchestrator) runFallbacks(ctx context.Context, req *models.CreationRequest, result *models.CreationResult, primaryErr error) {
	errs := []string{fmt.Sprintf("primary: %v", primaryErr)}

	for _, name := range o.Config.FallbackStrategies {
		strategy, ok := o.Strategies[name]
		if !ok {
			o.Logger.Warningf("Unknown fallback strategy %q, skipping", name)
			errs = append(errs, fmt.Sprintf("%s: not registered", name))
			continue
		}

		o.Logger.Infof("Attempting fallback strategy %s", name)
		id, err := strategy.Execute(ctx, req)
		if err != nil {
			o.Logger.Warningf("Fallback %s failed: %v", name, err)
			errs = append(errs, fmt.Sprintf("%s: %v", name, err))
			continue
		}

		result.Success = true
		result.GeneratedID = id
		result.FallbacksTriggered = append(result.FallbacksTriggered, name)
		result.Error = ""
		return
	}

	result.Success = false
	result.Error = "all creation strategies failed: " + strings.Join(errs, "; ")
	result.Recommendations = append(result.Recommendations,
		"every fallback strategy failed; verify database connectivity and table layout")
}

// collectRecommendations gathers mapper and grapher advice for the caller
func collectRecommendations(analysis *SchemaAnalysis) []string {
	var recs []string
	for _, cm := range analysis.ColumnMaps {
		recs = append(recs, cm.Recommendations...)
	}
	recs = append(recs, analysis.Graph.Warnings...)
	return recs
}

package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	sq "github.com/Masterminds/squirrel"

	"github.com/livebydesign2/supa-seed-sub002/internal/connector"
	"github.com/livebydesign2/supa-seed-sub002/internal/validator"
	"github.com/livebydesign2/supa-seed-sub002/pkg/models"
)

// ExecuteOptions tunes workflow execution
type ExecuteOptions struct {
	EnableValidation bool
	EnableAutoFixes  bool
	EnableRollback   bool
	DefaultTimeout   time.Duration
}

// PrincipalCreator creates the externally-managed authentication principal
// for a new entity. The default implementation fabricates an id locally;
// callers integrating a real identity provider inject their own.
type PrincipalCreator interface {
	CreatePrincipal(ctx context.Context, req *models.CreationRequest) (string, error)
}

// GeneratedPrincipal is the default PrincipalCreator: a fresh unique id
type GeneratedPrincipal struct{}

// CreatePrincipal returns a new unique principal id
func (GeneratedPrincipal) CreatePrincipal(_ context.Context, _ *models.CreationRequest) (string, error) {
	return uuid.NewString(), nil
}

// Outcome bundles everything the executor learned while running a workflow
type Outcome struct {
	Execution    *models.ExecutionResult
	Validation   *models.ValidationResult
	AppliedFixes []models.AutoFix
	GeneratedID  string
}

// WorkflowExecutor runs workflow steps in dependency order with per-step
// error policies and compensating rollback
type WorkflowExecutor struct {
	DB        *connector.DatabaseConnector
	Validator *validator.ConstraintValidator
	Principal PrincipalCreator
	Logger    *logrus.Logger
	Options   ExecuteOptions
}

// NewWorkflowExecutor creates a workflow executor
func NewWorkflowExecutor(db *connector.DatabaseConnector, val *validator.ConstraintValidator, logger *logrus.Logger, opts ExecuteOptions) *WorkflowExecutor {
	return &WorkflowExecutor{
		DB:        db,
		Validator: val,
		Principal: GeneratedPrincipal{},
		Logger:    logger,
		Options:   opts,
	}
}

type execState struct {
	statuses     map[string]models.StepStatus
	generatedIDs map[string]string
	records      map[string]map[string]interface{}
	results      []models.StepResult
	validation   *models.ValidationResult
	appliedFixes []models.AutoFix
}

// Execute runs the workflow's steps in dependency order. On fatal failure
// the precomputed rollback plan runs best-effort; rollback failures are
// recorded but never escalate.
func (we *WorkflowExecutor) Execute(ctx context.Context, wf *models.UserCreationWorkflow, req *models.CreationRequest) *Outcome {
	start := time.Now()
	state := &execState{
		statuses:     make(map[string]models.StepStatus, len(wf.Steps)),
		generatedIDs: make(map[string]string),
		records:      make(map[string]map[string]interface{}),
	}
	for _, step := range wf.Steps {
		state.statuses[step.ID] = models.StepPending
	}

	result := &models.ExecutionResult{}
	aborted := false
	var abortErr error

	for !aborted {
		progressed := false

		for i := range wf.Steps {
			step := &wf.Steps[i]
			if state.statuses[step.ID] != models.StepPending {
				continue
			}
			if !we.dependenciesSatisfied(wf, state, step) {
				continue
			}

			// Cooperative cancellation: stop scheduling new steps
			if ctx.Err() != nil {
				aborted = true
				abortErr = fmt.Errorf("workflow cancelled: %w", ctx.Err())
				break
			}

			stepResult := we.runStep(ctx, wf, state, step, req)
			state.results = append(state.results, stepResult)
			state.statuses[step.ID] = stepResult.Status
			progressed = true

			// Retry exhaustion degrades to fail semantics; only continue
			// tolerates a failed step
			if stepResult.Status == models.StepFailed && step.OnError != models.ContinuePolicy {
				aborted = true
				if step.OnError == models.RetryPolicy {
					abortErr = fmt.Errorf("step %s failed after %d attempts: %s", step.ID, stepResult.Attempts, stepResult.Error)
				} else {
					abortErr = fmt.Errorf("step %s failed: %s", step.ID, stepResult.Error)
				}
				break
			}
		}

		if !progressed {
			break
		}
	}

	for _, step := range wf.Steps {
		if state.statuses[step.ID] == models.StepCompleted {
			result.CompletedSteps = append(result.CompletedSteps, step.ID)
		}
	}
	result.StepResults = state.results

	if aborted {
		result.Success = false
		if abortErr != nil {
			result.Error = abortErr.Error()
		}
		result.RollbackRequired = we.hasCompletedInsert(wf, state)
		if result.RollbackRequired && we.Options.EnableRollback {
			result.RollbackCompleted = we.rollback(ctx, wf, state)
		}
	} else {
		// Unreachable pending steps mean a malformed dependency graph
		for _, step := range wf.Steps {
			if state.statuses[step.ID] == models.StepPending {
				result.Success = false
				result.Error = fmt.Sprintf("step %s never became runnable", step.ID)
			}
		}
		if result.Error == "" {
			result.Success = true
		}
	}

	result.Duration = time.Since(start)

	outcome := &Outcome{
		Execution:    result,
		Validation:   state.validation,
		AppliedFixes: state.appliedFixes,
	}
	if id, ok := state.generatedIDs[PrincipalStepID]; ok {
		outcome.GeneratedID = id
	} else if id, ok := state.generatedIDs["insert_"+wf.Metadata.PrimaryTable]; ok {
		outcome.GeneratedID = id
	}
	return outcome
}

// dependenciesSatisfied reports whether every dependency of a step has
// reached a state that unblocks it. Completed always satisfies; a failed
// or skipped step satisfies only when its own policy is skip or continue.
func (we *WorkflowExecutor) dependenciesSatisfied(wf *models.UserCreationWorkflow, state *execState, step *models.WorkflowStep) bool {
	for _, depID := range step.Dependencies {
		dep := wf.Step(depID)
		if dep == nil {
			return false
		}
		switch state.statuses[depID] {
		case models.StepCompleted:
		case models.StepFailed, models.StepSkipped:
			if dep.OnError != models.SkipPolicy && dep.OnError != models.ContinuePolicy {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// runStep executes one step, honoring its retry budget and timeout
func (we *WorkflowExecutor) runStep(ctx context.Context, wf *models.UserCreationWorkflow, state *execState, step *models.WorkflowStep, req *models.CreationRequest) models.StepResult {
	attempts := 1
	if step.OnError == models.RetryPolicy && step.RetryCount > 0 {
		attempts = step.RetryCount + 1
	}

	start := time.Now()
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		stepCtx := ctx
		cancel := func() {}
		if step.Timeout > 0 {
			stepCtx, cancel = context.WithTimeout(ctx, step.Timeout)
		}

		generatedID, err := we.executeStep(stepCtx, wf, state, step, req)
		cancel()

		if err == nil {
			we.Logger.Debugf("Step %s completed (attempt %d)", step.ID, attempt)
			return models.StepResult{
				StepID:      step.ID,
				Status:      models.StepCompleted,
				Attempts:    attempt,
				Duration:    time.Since(start),
				GeneratedID: generatedID,
			}
		}
		lastErr = err
		we.Logger.Warningf("Step %s attempt %d/%d failed: %v", step.ID, attempt, attempts, err)
	}

	status := models.StepFailed
	if step.OnError == models.SkipPolicy {
		status = models.StepSkipped
	}
	return models.StepResult{
		StepID:   step.ID,
		Status:   status,
		Error:    lastErr.Error(),
		Attempts: attempts,
		Duration: time.Since(start),
	}
}

func (we *WorkflowExecutor) executeStep(ctx context.Context, wf *models.UserCreationWorkflow, state *execState, step *models.WorkflowStep, req *models.CreationRequest) (string, error) {
	switch step.Type {
	case models.CreatePrincipalStep:
		id, err := we.Principal.CreatePrincipal(ctx, req)
		if err != nil {
			return "", fmt.Errorf("creating principal: %w", err)
		}
		state.generatedIDs[step.ID] = id
		return id, nil

	case models.ValidateConstraintStep:
		return "", we.executeValidateStep(ctx, wf, state, step)

	case models.InsertRecordStep:
		return we.executeInsertStep(ctx, wf, state, step)

	case models.ExecuteTriggerStep:
		// Triggers fire inside the database on insert; this step only
		// records that the trigger was expected to run
		we.Logger.Debugf("Trigger step %s acknowledged", step.ID)
		return "", nil

	case models.ConditionalActionStep:
		we.Logger.Debugf("Conditional step %s has no registered action", step.ID)
		return "", nil

	default:
		return "", fmt.Errorf("unknown step type %q", step.Type)
	}
}

// executeValidateStep pre-checks the primary record against the compiled
// rules before the insert runs
func (we *WorkflowExecutor) executeValidateStep(ctx context.Context, wf *models.UserCreationWorkflow, state *execState, step *models.WorkflowStep) error {
	if we.Validator == nil || !we.Options.EnableValidation {
		return nil
	}
	insertStep := wf.Step("insert_" + step.Table)
	if insertStep == nil {
		return nil
	}
	record := we.resolveRecord(insertStep, state)
	vr := we.Validator.ValidateOperation(ctx, &validator.OperationContext{
		Table:     step.Table,
		Operation: validator.InsertOperation,
		Record:    record,
	})
	if !vr.Valid && len(vr.Fixes) == 0 {
		return fmt.Errorf("pre-insert validation failed: %s", firstError(vr))
	}
	return nil
}

// executeInsertStep validates, auto-fixes once if needed, and inserts
func (we *WorkflowExecutor) executeInsertStep(ctx context.Context, wf *models.UserCreationWorkflow, state *execState, step *models.WorkflowStep) (string, error) {
	record := we.resolveRecord(step, state)

	if we.Validator != nil && we.Options.EnableValidation {
		op := &validator.OperationContext{
			Table:     step.Table,
			Operation: validator.InsertOperation,
			Record:    record,
		}
		vr := we.Validator.ValidateOperation(ctx, op)
		if step.Table == wf.Metadata.PrimaryTable {
			state.validation = vr
		}

		if !vr.Valid {
			if !we.Options.EnableAutoFixes || len(vr.Fixes) == 0 {
				return "", fmt.Errorf("validation failed for %s: %s", step.Table, firstError(vr))
			}
			fixed, applied := validator.ApplyAutoFixes(record, vr.Fixes)
			state.appliedFixes = append(state.appliedFixes, applied...)
			record = fixed

			// One re-validation after fixes, then give up
			op.Record = record
			revr := we.Validator.ValidateOperation(ctx, op)
			if step.Table == wf.Metadata.PrimaryTable {
				state.validation = revr
			}
			if !revr.Valid {
				return "", fmt.Errorf("validation failed for %s after auto-fixes: %s", step.Table, firstError(revr))
			}
		}
	}

	if len(record) == 0 {
		return "", fmt.Errorf("no fields resolved for insert into %s", step.Table)
	}

	builder := we.DB.StatementBuilder().Insert(step.Table)
	columns := make([]string, 0, len(record))
	for _, f := range step.Fields {
		if _, ok := record[f.Column]; ok {
			columns = append(columns, f.Column)
		}
	}
	values := make([]interface{}, 0, len(columns))
	for _, col := range columns {
		values = append(values, record[col])
	}
	builder = builder.Columns(columns...).Values(values...)

	query, args, err := builder.ToSql()
	if err != nil {
		return "", fmt.Errorf("building insert for %s: %w", step.Table, err)
	}
	if _, err := we.DB.ExecuteStatement(ctx, query, args...); err != nil {
		return "", fmt.Errorf("inserting into %s: %w", step.Table, err)
	}

	state.records[step.ID] = record
	generatedID := we.recordID(step, record)
	if generatedID != "" {
		state.generatedIDs[step.ID] = generatedID
	}
	we.Logger.Infof("Inserted record into %s (step %s)", step.Table, step.ID)
	return generatedID, nil
}

// resolveRecord materializes a step's fields, resolving references to the
// generated ids of completed steps
func (we *WorkflowExecutor) resolveRecord(step *models.WorkflowStep, state *execState) map[string]interface{} {
	record := make(map[string]interface{}, len(step.Fields))
	for _, f := range step.Fields {
		if f.Source == models.ReferenceSource {
			if id, ok := state.generatedIDs[f.Reference]; ok {
				record[f.Column] = id
			} else {
				record[f.Column] = nil
			}
			continue
		}
		record[f.Column] = f.Value
	}
	return record
}

// recordID extracts the identifying value of an inserted record
func (we *WorkflowExecutor) recordID(step *models.WorkflowStep, record map[string]interface{}) string {
	for _, f := range step.Fields {
		if f.Semantic == "id" || f.Column == "id" {
			if v, ok := record[f.Column]; ok && v != nil {
				return fmt.Sprintf("%v", v)
			}
		}
	}
	return ""
}

func (we *WorkflowExecutor) hasCompletedInsert(wf *models.UserCreationWorkflow, state *execState) bool {
	for _, step := range wf.Steps {
		if step.Type == models.InsertRecordStep && state.statuses[step.ID] == models.StepCompleted {
			return true
		}
	}
	return false
}

// rollback runs the precomputed compensating deletes in order, tolerating
// individual failures. Returns true when every applicable delete succeeded.
func (we *WorkflowExecutor) rollback(ctx context.Context, wf *models.UserCreationWorkflow, state *execState) bool {
	// Rollback must proceed even when the original context was cancelled
	if ctx.Err() != nil {
		ctx = context.Background()
	}

	allOK := true
	for _, rb := range wf.RollbackSteps {
		if state.statuses[rb.StepID] != models.StepCompleted {
			continue
		}
		record, ok := state.records[rb.StepID]
		if !ok {
			continue
		}
		idValue, ok := record[rb.Column]
		if !ok || idValue == nil {
			we.Logger.Warningf("Rollback for %s skipped: no %s value", rb.StepID, rb.Column)
			continue
		}

		query, args, err := we.DB.StatementBuilder().
			Delete(rb.Table).
			Where(sq.Eq{rb.Column: idValue}).
			ToSql()
		if err != nil {
			we.Logger.Errorf("Rollback for %s failed to build: %v", rb.StepID, err)
			allOK = false
			continue
		}
		if _, err := we.DB.ExecuteStatement(ctx, query, args...); err != nil {
			we.Logger.Errorf("Rollback delete on %s failed: %v", rb.Table, err)
			allOK = false
			continue
		}
		we.Logger.Infof("Rolled back %s (deleted from %s)", rb.StepID, rb.Table)
	}
	return allOK
}

func firstError(vr *models.ValidationResult) string {
	if len(vr.Errors) > 0 {
		return vr.Errors[0].Message
	}
	return "unknown validation error"
}

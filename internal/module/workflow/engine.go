package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hangouthub/server/internal/shared/monitoring"
	"github.com/hangouthub/server/internal/utils/metrics"
)

// EngineConfig contains engine configuration and the retry/timeout defaults
// applied to definitions that leave them unset.
type EngineConfig struct {
	MaxConcurrent    int
	DefaultRetry     RetryPolicy
	ActivityTimeout  time.Duration
	ExecutionTimeout time.Duration
}

// DefaultEngineConfig returns the default engine configuration.
func DefaultEngineConfig() *EngineConfig {
	return &EngineConfig{
		MaxConcurrent: 10,
		DefaultRetry: RetryPolicy{
			MaxAttempts:        5,
			InitialInterval:    time.Second,
			MaxInterval:        time.Minute,
			BackoffCoefficient: 2.0,
		},
		ActivityTimeout:  30 * time.Second,
		ExecutionTimeout: 5 * time.Minute,
	}
}

// Engine executes registered workflow definitions with durable run records,
// per-activity retries and at-least-once activity delivery. Activities are
// dispatched to a bounded worker pool; each run executes its steps
// sequentially.
type Engine struct {
	mu sync.RWMutex

	repo        Repository
	definitions map[string]*Definition
	cancels     map[string]context.CancelFunc

	cfg      *EngineConfig
	reporter monitoring.Reporter
	metrics  *metrics.Metrics
	logger   *zap.Logger

	// Concurrency control
	semaphore chan struct{}

	// Lifecycle
	stopCh  chan struct{}
	stopped bool
	wg      sync.WaitGroup
}

// NewEngine creates a new workflow engine.
func NewEngine(repo Repository, cfg *EngineConfig, reporter monitoring.Reporter, m *metrics.Metrics, logger *zap.Logger) *Engine {
	if cfg == nil {
		cfg = DefaultEngineConfig()
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultEngineConfig().MaxConcurrent
	}
	if reporter == nil {
		reporter = monitoring.NopReporter{}
	}

	return &Engine{
		repo:        repo,
		definitions: make(map[string]*Definition),
		cancels:     make(map[string]context.CancelFunc),
		cfg:         cfg,
		reporter:    reporter,
		metrics:     m,
		logger:      logger,
		semaphore:   make(chan struct{}, cfg.MaxConcurrent),
		stopCh:      make(chan struct{}),
	}
}

// Register registers a workflow definition, applying engine defaults to
// unset retry/timeout fields.
func (e *Engine) Register(def *Definition) error {
	if def == nil || def.Name == "" {
		return fmt.Errorf("invalid workflow definition")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.definitions[def.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateDefinition, def.Name)
	}

	if def.Retry.MaxAttempts <= 0 {
		def.Retry = e.cfg.DefaultRetry
	}
	if def.ActivityTimeout <= 0 {
		def.ActivityTimeout = e.cfg.ActivityTimeout
	}
	if def.ExecutionTimeout <= 0 {
		def.ExecutionTimeout = e.cfg.ExecutionTimeout
	}

	e.definitions[def.Name] = def
	return nil
}

// Start begins a workflow run without waiting for its result. A failure to
// start (unknown definition, persistence failure) is returned to the caller;
// failures during execution are handled internally.
func (e *Engine) Start(ctx context.Context, name, workflowID string, input any) error {
	_, err := e.start(ctx, name, workflowID, input)
	return err
}

// Execute begins a workflow run and returns a handle the caller can wait on
// with its own deadline. Waiting alone does not stop the run; callers that
// give up must Cancel the handle explicitly.
func (e *Engine) Execute(ctx context.Context, name, workflowID string, input any) (*Handle, error) {
	return e.start(ctx, name, workflowID, input)
}

func (e *Engine) start(ctx context.Context, name, workflowID string, input any) (*Handle, error) {
	e.mu.RLock()
	def, ok := e.definitions[name]
	stopped := e.stopped
	e.mu.RUnlock()

	if stopped {
		return nil, ErrEngineStopped
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownWorkflow, name)
	}

	payload, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("marshal workflow input: %w", err)
	}

	run := &WorkflowRun{
		WorkflowID: workflowID,
		Name:       def.Name,
		TaskQueue:  def.TaskQueue,
		Input:      payload,
		Status:     RunStatusRunning,
		StartedAt:  time.Now(),
	}

	if err := e.repo.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("create workflow run: %w", err)
	}

	e.logger.Info("workflow started",
		zap.String("workflow", def.Name),
		zap.String("workflow_id", workflowID),
		zap.String("task_queue", def.TaskQueue),
	)

	return e.dispatch(def, run), nil
}

// dispatch starts run execution in the background and returns its handle.
func (e *Engine) dispatch(def *Definition, run *WorkflowRun) *Handle {
	runCtx, cancel := context.WithCancel(context.Background())

	handle := &Handle{
		WorkflowID: run.WorkflowID,
		done:       make(chan struct{}),
		cancel:     cancel,
	}

	e.mu.Lock()
	e.cancels[run.WorkflowID] = cancel
	e.mu.Unlock()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer close(handle.done)
		defer func() {
			e.mu.Lock()
			delete(e.cancels, run.WorkflowID)
			e.mu.Unlock()
		}()

		select {
		case e.semaphore <- struct{}{}:
			defer func() { <-e.semaphore }()
		case <-runCtx.Done():
			e.finishRun(run, def, RunStatusCancelled, runCtx.Err())
			handle.setErr(runCtx.Err())
			return
		case <-e.stopCh:
			handle.setErr(ErrEngineStopped)
			return
		}

		handle.setErr(e.runWorkflow(runCtx, def, run))
	}()

	return handle
}

// runWorkflow executes the definition's steps sequentially against the run.
func (e *Engine) runWorkflow(ctx context.Context, def *Definition, run *WorkflowRun) error {
	start := time.Now()

	execCtx := ctx
	if def.ExecutionTimeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, def.ExecutionTimeout)
		defer cancel()
	}

	// Resume from the recorded step on recovery; completed steps are not
	// re-run, the interrupted one is (activities are idempotent).
	for i := run.StepIndex; i < len(def.Steps); i++ {
		step := def.Steps[i]
		run.StepIndex = i

		if err := e.runActivity(execCtx, def, run, step); err != nil {
			status := RunStatusFailed
			switch {
			case errors.Is(err, context.Canceled):
				status = RunStatusCancelled
			case errors.Is(err, context.DeadlineExceeded):
				status = RunStatusTimedOut
			}
			e.finishRun(run, def, status, err)
			return err
		}
	}

	e.finishRun(run, def, RunStatusCompleted, nil)
	if e.metrics != nil {
		e.metrics.WorkflowRunDuration.WithLabelValues(def.Name).Observe(time.Since(start).Seconds())
	}
	return nil
}

// runActivity invokes one step under the definition's retry policy. Every
// attempt gets a fresh activity timeout; at-least-once delivery means the
// activity may observe the effects of its own earlier attempts.
func (e *Engine) runActivity(ctx context.Context, def *Definition, run *WorkflowRun, step Step) error {
	var lastErr error

	for attempt := 1; attempt <= def.Retry.MaxAttempts; attempt++ {
		if backoff := def.Retry.Interval(attempt); backoff > 0 {
			timer := time.NewTimer(backoff)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-e.stopCh:
				timer.Stop()
				return ErrEngineStopped
			}
		}

		run.Attempt = attempt
		if err := e.repo.Update(context.Background(), run); err != nil {
			e.logger.Warn("failed to persist workflow progress",
				zap.String("workflow_id", run.WorkflowID),
				zap.Error(err),
			)
		}

		actCtx := ctx
		if def.ActivityTimeout > 0 {
			var cancel context.CancelFunc
			actCtx, cancel = context.WithTimeout(ctx, def.ActivityTimeout)
			lastErr = step.Run(actCtx, run.Input)
			cancel()
		} else {
			lastErr = step.Run(actCtx, run.Input)
		}

		if e.metrics != nil {
			outcome := "ok"
			if lastErr != nil {
				outcome = "error"
			}
			e.metrics.WorkflowActivitiesTotal.WithLabelValues(def.Name, step.Name, outcome).Inc()
		}

		if lastErr == nil {
			return nil
		}

		run.LastError = lastErr.Error()

		// Workflow-level cancellation/timeout ends retrying immediately.
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if IsPermanent(lastErr) {
			break
		}

		e.logger.Warn("activity failed",
			zap.String("workflow", def.Name),
			zap.String("workflow_id", run.WorkflowID),
			zap.String("activity", step.Name),
			zap.Int("attempt", attempt),
			zap.Error(lastErr),
		)
	}

	return fmt.Errorf("activity %s: %w", step.Name, lastErr)
}

// finishRun records the run's terminal state and reports failures.
func (e *Engine) finishRun(run *WorkflowRun, def *Definition, status RunStatus, cause error) {
	now := time.Now()
	run.Status = status
	run.CompletedAt = &now
	if cause != nil {
		run.LastError = cause.Error()
	}

	if err := e.repo.Update(context.Background(), run); err != nil {
		e.logger.Error("failed to persist workflow result",
			zap.String("workflow_id", run.WorkflowID),
			zap.Error(err),
		)
	}

	if e.metrics != nil {
		e.metrics.WorkflowRunsTotal.WithLabelValues(run.Name, string(status)).Inc()
	}

	switch status {
	case RunStatusCompleted:
		e.logger.Info("workflow completed",
			zap.String("workflow", run.Name),
			zap.String("workflow_id", run.WorkflowID),
		)
	case RunStatusCancelled:
		e.logger.Info("workflow cancelled",
			zap.String("workflow", run.Name),
			zap.String("workflow_id", run.WorkflowID),
		)
	default:
		e.logger.Error("workflow failed",
			zap.String("workflow", run.Name),
			zap.String("workflow_id", run.WorkflowID),
			zap.String("status", string(status)),
			zap.Error(cause),
		)
		e.reporter.ReportError(context.Background(), cause, map[string]string{
			"component":   "workflow",
			"workflow":    run.Name,
			"workflow_id": run.WorkflowID,
		})
	}
}

// Cancel cancels an in-flight run by workflow id. Already-applied activity
// effects stand; the run stops before its next step.
func (e *Engine) Cancel(workflowID string) bool {
	e.mu.RLock()
	cancel, ok := e.cancels[workflowID]
	e.mu.RUnlock()
	if ok {
		cancel()
	}
	return ok
}

// GetRun retrieves a run record by workflow id.
func (e *Engine) GetRun(ctx context.Context, workflowID string) (*WorkflowRun, error) {
	return e.repo.GetByWorkflowID(ctx, workflowID)
}

// RecoverRunning re-dispatches runs left in the running state by a previous
// process. Interrupted activities execute again, which is safe because all
// activities are idempotent.
func (e *Engine) RecoverRunning(ctx context.Context) error {
	runs, err := e.repo.ListByStatus(ctx, RunStatusRunning)
	if err != nil {
		return fmt.Errorf("list running workflows: %w", err)
	}

	for _, run := range runs {
		e.mu.RLock()
		def, ok := e.definitions[run.Name]
		e.mu.RUnlock()

		if !ok {
			e.logger.Warn("cannot recover run with unknown definition",
				zap.String("workflow", run.Name),
				zap.String("workflow_id", run.WorkflowID),
			)
			continue
		}

		e.logger.Info("recovering workflow run",
			zap.String("workflow", run.Name),
			zap.String("workflow_id", run.WorkflowID),
			zap.Int("step_index", run.StepIndex),
		)
		e.dispatch(def, run)
	}

	return nil
}

// Stop stops accepting new runs and waits for in-flight runs to finish.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	e.stopped = true
	e.mu.Unlock()

	close(e.stopCh)
	e.wg.Wait()
}

// Handle tracks one dispatched run. The caller may wait on Done with its own
// deadline; cancellation is explicit and only Cancel stops the execution.
type Handle struct {
	WorkflowID string

	done   chan struct{}
	cancel context.CancelFunc

	mu  sync.Mutex
	err error
}

// Done is closed when the run reaches a terminal state.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Err returns the run's terminal error. Only valid after Done is closed.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Cancel stops the in-flight run. Effects already applied by completed
// activities are not undone.
func (h *Handle) Cancel() {
	h.cancel()
}

// Wait blocks until the run finishes or the caller's context expires.
// An expired context does NOT stop the run; callers falling back to a
// degraded result must call Cancel themselves.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return h.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Handle) setErr(err error) {
	h.mu.Lock()
	h.err = err
	h.mu.Unlock()
}

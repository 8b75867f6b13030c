package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockRepository is an in-memory Repository for engine tests.
type MockRepository struct {
	mu   sync.Mutex
	runs map[string]*WorkflowRun
}

func NewMockRepository() *MockRepository {
	return &MockRepository{runs: make(map[string]*WorkflowRun)}
}

func (m *MockRepository) Create(_ context.Context, run *WorkflowRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.runs[run.WorkflowID]; exists {
		return ErrAlreadyStarted
	}
	copied := *run
	m.runs[run.WorkflowID] = &copied
	return nil
}

func (m *MockRepository) Update(_ context.Context, run *WorkflowRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.runs[run.WorkflowID]
	if !ok {
		return ErrRunNotFound
	}
	stored.Status = run.Status
	stored.StepIndex = run.StepIndex
	stored.Attempt = run.Attempt
	stored.LastError = run.LastError
	stored.CompletedAt = run.CompletedAt
	return nil
}

func (m *MockRepository) GetByWorkflowID(_ context.Context, workflowID string) (*WorkflowRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[workflowID]
	if !ok {
		return nil, ErrRunNotFound
	}
	copied := *run
	return &copied, nil
}

func (m *MockRepository) ListByStatus(_ context.Context, status RunStatus) ([]*WorkflowRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*WorkflowRun
	for _, run := range m.runs {
		if run.Status == status {
			copied := *run
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (m *MockRepository) status(t *testing.T, workflowID string) RunStatus {
	t.Helper()
	run, err := m.GetByWorkflowID(context.Background(), workflowID)
	require.NoError(t, err)
	return run.Status
}

func newTestEngine(repo Repository) *Engine {
	cfg := &EngineConfig{
		MaxConcurrent: 4,
		DefaultRetry: RetryPolicy{
			MaxAttempts:        3,
			InitialInterval:    time.Millisecond,
			MaxInterval:        5 * time.Millisecond,
			BackoffCoefficient: 2.0,
		},
		ActivityTimeout:  time.Second,
		ExecutionTimeout: 5 * time.Second,
	}
	return NewEngine(repo, cfg, nil, nil, zap.NewNop())
}

func TestRegister(t *testing.T) {
	engine := newTestEngine(NewMockRepository())

	def := &Definition{Name: "greet", Steps: []Step{{Name: "noop", Run: func(context.Context, []byte) error { return nil }}}}
	require.NoError(t, engine.Register(def))

	t.Run("defaults applied", func(t *testing.T) {
		assert.Equal(t, 3, def.Retry.MaxAttempts)
		assert.Equal(t, time.Second, def.ActivityTimeout)
		assert.Equal(t, 5*time.Second, def.ExecutionTimeout)
	})

	t.Run("duplicate name rejected", func(t *testing.T) {
		err := engine.Register(&Definition{Name: "greet"})
		assert.ErrorIs(t, err, ErrDuplicateDefinition)
	})

	t.Run("empty definition rejected", func(t *testing.T) {
		assert.Error(t, engine.Register(nil))
		assert.Error(t, engine.Register(&Definition{}))
	})
}

func TestStartUnknownWorkflow(t *testing.T) {
	engine := newTestEngine(NewMockRepository())

	err := engine.Start(context.Background(), "missing", "wf-1", nil)
	assert.ErrorIs(t, err, ErrUnknownWorkflow)
}

func TestExecuteCompletes(t *testing.T) {
	repo := NewMockRepository()
	engine := newTestEngine(repo)

	var order []string
	var mu sync.Mutex
	record := func(name string) Step {
		return Step{Name: name, Run: func(_ context.Context, input []byte) error {
			var payload map[string]string
			if err := json.Unmarshal(input, &payload); err != nil {
				return err
			}
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		}}
	}

	require.NoError(t, engine.Register(&Definition{
		Name:  "two-steps",
		Steps: []Step{record("first"), record("second")},
	}))

	handle, err := engine.Execute(context.Background(), "two-steps", "wf-1", map[string]string{"k": "v"})
	require.NoError(t, err)
	require.NoError(t, handle.Wait(context.Background()))

	assert.Equal(t, []string{"first", "second"}, order)
	assert.Equal(t, RunStatusCompleted, repo.status(t, "wf-1"))
}

func TestDuplicateWorkflowID(t *testing.T) {
	engine := newTestEngine(NewMockRepository())

	require.NoError(t, engine.Register(&Definition{
		Name:  "once",
		Steps: []Step{{Name: "noop", Run: func(context.Context, []byte) error { return nil }}},
	}))

	handle, err := engine.Execute(context.Background(), "once", "wf-dup", nil)
	require.NoError(t, err)
	require.NoError(t, handle.Wait(context.Background()))

	err = engine.Start(context.Background(), "once", "wf-dup", nil)
	assert.ErrorIs(t, err, ErrAlreadyStarted)
}

func TestRetriesUntilSuccess(t *testing.T) {
	repo := NewMockRepository()
	engine := newTestEngine(repo)

	var attempts atomic.Int32
	require.NoError(t, engine.Register(&Definition{
		Name: "flaky",
		Steps: []Step{{Name: "flaky-step", Run: func(context.Context, []byte) error {
			if attempts.Add(1) < 3 {
				return errors.New("transient")
			}
			return nil
		}}},
	}))

	handle, err := engine.Execute(context.Background(), "flaky", "wf-flaky", nil)
	require.NoError(t, err)
	require.NoError(t, handle.Wait(context.Background()))

	assert.Equal(t, int32(3), attempts.Load())
	assert.Equal(t, RunStatusCompleted, repo.status(t, "wf-flaky"))
}

func TestRetriesExhausted(t *testing.T) {
	repo := NewMockRepository()
	engine := newTestEngine(repo)

	var attempts atomic.Int32
	require.NoError(t, engine.Register(&Definition{
		Name: "doomed",
		Steps: []Step{{Name: "doomed-step", Run: func(context.Context, []byte) error {
			attempts.Add(1)
			return errors.New("still broken")
		}}},
	}))

	handle, err := engine.Execute(context.Background(), "doomed", "wf-doomed", nil)
	require.NoError(t, err)
	err = handle.Wait(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "still broken")

	assert.Equal(t, int32(3), attempts.Load())
	assert.Equal(t, RunStatusFailed, repo.status(t, "wf-doomed"))
}

func TestPermanentErrorSkipsRetries(t *testing.T) {
	repo := NewMockRepository()
	engine := newTestEngine(repo)

	var attempts atomic.Int32
	require.NoError(t, engine.Register(&Definition{
		Name: "fatal",
		Steps: []Step{{Name: "fatal-step", Run: func(context.Context, []byte) error {
			attempts.Add(1)
			return Permanent(errors.New("bad input"))
		}}},
	}))

	handle, err := engine.Execute(context.Background(), "fatal", "wf-fatal", nil)
	require.NoError(t, err)
	require.Error(t, handle.Wait(context.Background()))

	assert.Equal(t, int32(1), attempts.Load())
	assert.Equal(t, RunStatusFailed, repo.status(t, "wf-fatal"))
}

func TestCancelRun(t *testing.T) {
	repo := NewMockRepository()
	engine := newTestEngine(repo)

	started := make(chan struct{})
	require.NoError(t, engine.Register(&Definition{
		Name: "blocking",
		Steps: []Step{{Name: "block", Run: func(ctx context.Context, _ []byte) error {
			close(started)
			<-ctx.Done()
			return ctx.Err()
		}}},
	}))

	handle, err := engine.Execute(context.Background(), "blocking", "wf-block", nil)
	require.NoError(t, err)

	<-started
	assert.True(t, engine.Cancel("wf-block"))

	err = handle.Wait(context.Background())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, RunStatusCancelled, repo.status(t, "wf-block"))

	t.Run("unknown id", func(t *testing.T) {
		assert.False(t, engine.Cancel("wf-nope"))
	})
}

func TestActivityTimeout(t *testing.T) {
	repo := NewMockRepository()
	engine := newTestEngine(repo)

	require.NoError(t, engine.Register(&Definition{
		Name:            "slow-activity",
		Retry:           RetryPolicy{MaxAttempts: 1},
		ActivityTimeout: 10 * time.Millisecond,
		Steps: []Step{{Name: "slow", Run: func(ctx context.Context, _ []byte) error {
			<-ctx.Done()
			return ctx.Err()
		}}},
	}))

	handle, err := engine.Execute(context.Background(), "slow-activity", "wf-slow", nil)
	require.NoError(t, err)

	err = handle.Wait(context.Background())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, RunStatusTimedOut, repo.status(t, "wf-slow"))
}

func TestExecutionTimeout(t *testing.T) {
	repo := NewMockRepository()
	engine := newTestEngine(repo)

	require.NoError(t, engine.Register(&Definition{
		Name:             "slow-run",
		Retry:            RetryPolicy{MaxAttempts: 1},
		ActivityTimeout:  time.Second,
		ExecutionTimeout: 10 * time.Millisecond,
		Steps: []Step{{Name: "slow", Run: func(ctx context.Context, _ []byte) error {
			<-ctx.Done()
			return ctx.Err()
		}}},
	}))

	handle, err := engine.Execute(context.Background(), "slow-run", "wf-exec", nil)
	require.NoError(t, err)

	err = handle.Wait(context.Background())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, RunStatusTimedOut, repo.status(t, "wf-exec"))
}

func TestWaitDeadlineLeavesRunAlive(t *testing.T) {
	repo := NewMockRepository()
	engine := newTestEngine(repo)

	release := make(chan struct{})
	require.NoError(t, engine.Register(&Definition{
		Name: "waiting",
		Steps: []Step{{Name: "wait-for-release", Run: func(ctx context.Context, _ []byte) error {
			select {
			case <-release:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}}},
	}))

	handle, err := engine.Execute(context.Background(), "waiting", "wf-wait", nil)
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, handle.Wait(waitCtx), context.DeadlineExceeded)

	// The run is unaffected by the caller giving up.
	assert.Equal(t, RunStatusRunning, repo.status(t, "wf-wait"))

	close(release)
	require.NoError(t, handle.Wait(context.Background()))
	assert.Equal(t, RunStatusCompleted, repo.status(t, "wf-wait"))
}

func TestRecoverRunning(t *testing.T) {
	repo := NewMockRepository()
	engine := newTestEngine(repo)

	var first, second atomic.Int32
	require.NoError(t, engine.Register(&Definition{
		Name: "recoverable",
		Steps: []Step{
			{Name: "first", Run: func(context.Context, []byte) error { first.Add(1); return nil }},
			{Name: "second", Run: func(context.Context, []byte) error { second.Add(1); return nil }},
		},
	}))

	// A run interrupted after completing its first step.
	require.NoError(t, repo.Create(context.Background(), &WorkflowRun{
		WorkflowID: "wf-recover",
		Name:       "recoverable",
		Input:      []byte(`{}`),
		Status:     RunStatusRunning,
		StepIndex:  1,
		StartedAt:  time.Now(),
	}))

	require.NoError(t, engine.RecoverRunning(context.Background()))

	require.Eventually(t, func() bool {
		return repo.status(t, "wf-recover") == RunStatusCompleted
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, int32(0), first.Load(), "completed steps must not re-run")
	assert.Equal(t, int32(1), second.Load())
}

func TestStoppedEngineRejectsStarts(t *testing.T) {
	engine := newTestEngine(NewMockRepository())
	require.NoError(t, engine.Register(&Definition{
		Name:  "late",
		Steps: []Step{{Name: "noop", Run: func(context.Context, []byte) error { return nil }}},
	}))

	engine.Stop()

	err := engine.Start(context.Background(), "late", "wf-late", nil)
	assert.ErrorIs(t, err, ErrEngineStopped)
}

func TestRetryPolicyInterval(t *testing.T) {
	policy := RetryPolicy{
		InitialInterval:    time.Second,
		MaxInterval:        10 * time.Second,
		BackoffCoefficient: 2.0,
	}

	assert.Equal(t, time.Duration(0), policy.Interval(1))
	assert.Equal(t, time.Second, policy.Interval(2))
	assert.Equal(t, 2*time.Second, policy.Interval(3))
	assert.Equal(t, 4*time.Second, policy.Interval(4))
	assert.Equal(t, 8*time.Second, policy.Interval(5))
	assert.Equal(t, 10*time.Second, policy.Interval(6), "capped at max interval")
	assert.Equal(t, 10*time.Second, policy.Interval(7))
}

func TestIsPermanent(t *testing.T) {
	assert.False(t, IsPermanent(errors.New("plain")))
	assert.True(t, IsPermanent(Permanent(errors.New("fatal"))))
	assert.Nil(t, Permanent(nil))

	wrapped := Permanent(errors.New("inner"))
	assert.Equal(t, "inner", wrapped.Error())
	assert.True(t, IsPermanent(errors.Join(errors.New("outer"), wrapped)))
}

package scheduler

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/taskmesh/taskmesh/internal/domain"
	"github.com/taskmesh/taskmesh/internal/executors"
	eventsmem "github.com/taskmesh/taskmesh/pkg/adapters/events/memory"
	storemem "github.com/taskmesh/taskmesh/pkg/adapters/storage/memory"
)

type nopMetrics struct{}

func (nopMetrics) RecordWorkflowCreated(string)                     {}
func (nopMetrics) RecordWorkflowCompleted(string, time.Duration)    {}
func (nopMetrics) RecordTaskExecuted(string, string, time.Duration) {}
func (nopMetrics) RecordPlanning(string, time.Duration)             {}
func (nopMetrics) SetActiveWorkflows(int)                           {}

// recorder tracks task start order and per-task behavior.
type recorder struct {
	mu    sync.Mutex
	order []string

	failing map[string]bool
	delays  map[string]time.Duration
}

func newRecorder() *recorder {
	return &recorder{
		failing: make(map[string]bool),
		delays:  make(map[string]time.Duration),
	}
}

func (r *recorder) executor(kind domain.AgentType) executors.ExecutorFunc {
	return executors.ExecutorFunc{
		AgentType: kind,
		Func: func(ctx context.Context, task *domain.Task, deps map[string]*domain.Result) (*domain.Result, error) {
			r.mu.Lock()
			r.order = append(r.order, task.TaskID)
			delay := r.delays[task.TaskID]
			fail := r.failing[task.TaskID]
			r.mu.Unlock()

			if delay > 0 {
				select {
				case <-time.After(delay):
				case <-ctx.Done():
					return nil, ctx.Err()
				}
			}
			if fail {
				return nil, fmt.Errorf("task %s failed on purpose", task.TaskID)
			}
			return &domain.Result{OK: true, Output: "out:" + task.TaskID}, nil
		},
	}
}

func (r *recorder) started() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

func (r *recorder) startIndex(id string) int {
	for i, got := range r.started() {
		if got == id {
			return i
		}
	}
	return -1
}

type fixture struct {
	store *storemem.Store
	sched *Scheduler
	rec   *recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zap.NewNop()
	store := storemem.NewStore()
	bus := eventsmem.NewBus(logger)
	t.Cleanup(func() { bus.Close() })

	rec := newRecorder()
	registry := executors.NewRegistry(5*time.Second, logger)
	require.NoError(t, registry.Register(rec.executor(domain.AgentTypeGeneral)))

	return &fixture{
		store: store,
		sched: New(store, registry, bus, nopMetrics{}, logger, 0),
		rec:   rec,
	}
}

func (f *fixture) createWorkflow(t *testing.T, parallel bool, specs ...domain.TaskSpec) string {
	t.Helper()
	wf := domain.NewWorkflow("wf-test", specs, parallel)
	require.NoError(t, f.store.Create(context.Background(), wf))
	return wf.WorkflowID
}

func spec(id string, priority int, deps ...string) domain.TaskSpec {
	if deps == nil {
		deps = []string{}
	}
	return domain.TaskSpec{
		TaskID:       id,
		Description:  "task " + id,
		AgentType:    domain.AgentTypeGeneral,
		Dependencies: deps,
		Priority:     priority,
	}
}

func TestRunDiamondParallel(t *testing.T) {
	f := newFixture(t)
	id := f.createWorkflow(t, true,
		spec("a", 1),
		spec("b", 1, "a"),
		spec("c", 2, "a"),
		spec("d", 1, "b", "c"),
	)

	wf, err := f.sched.Run(context.Background(), id)
	require.NoError(t, err)

	assert.Equal(t, domain.WorkflowStatusCompleted, wf.Status)
	for _, task := range wf.Tasks {
		assert.Equal(t, domain.TaskStatusCompleted, task.Status)
		require.NotNil(t, task.Result)
		assert.True(t, task.Result.OK)
	}

	// Dependencies always start before their dependents.
	assert.Less(t, f.rec.startIndex("a"), f.rec.startIndex("b"))
	assert.Less(t, f.rec.startIndex("a"), f.rec.startIndex("c"))
	assert.Less(t, f.rec.startIndex("b"), f.rec.startIndex("d"))
	assert.Less(t, f.rec.startIndex("c"), f.rec.startIndex("d"))
}

func TestRunSequentialOrder(t *testing.T) {
	f := newFixture(t)
	id := f.createWorkflow(t, false,
		spec("low", 5),
		spec("high", 1),
		spec("mid", 3),
	)

	wf, err := f.sched.Run(context.Background(), id)
	require.NoError(t, err)

	assert.Equal(t, domain.WorkflowStatusCompleted, wf.Status)
	assert.Equal(t, []string{"high", "mid", "low"}, f.rec.started())
}

func TestRunFailureSkipsDependents(t *testing.T) {
	f := newFixture(t)
	f.rec.failing["a"] = true
	id := f.createWorkflow(t, true,
		spec("a", 1),
		spec("b", 1, "a"),
		spec("c", 1, "b"),
	)

	wf, err := f.sched.Run(context.Background(), id)
	require.NoError(t, err)

	assert.Equal(t, domain.WorkflowStatusFailed, wf.Status)
	assert.Equal(t, domain.TaskStatusFailed, wf.Task("a").Status)
	assert.Equal(t, domain.TaskStatusSkipped, wf.Task("b").Status)
	assert.Equal(t, domain.TaskStatusSkipped, wf.Task("c").Status)
	require.NotNil(t, wf.Task("a").Result)
	assert.Contains(t, wf.Task("a").Result.Error, "failed on purpose")
	assert.Nil(t, wf.Task("b").Result)

	assert.Equal(t, []string{"a"}, f.rec.started())
}

func TestRunCriticalFailureLetsSiblingBranchDrain(t *testing.T) {
	f := newFixture(t)
	// "slow" is already running when "boom" fails; it must finish and
	// keep its result even though the workflow is failed.
	f.rec.failing["boom"] = true
	f.rec.delays["slow"] = 100 * time.Millisecond
	id := f.createWorkflow(t, true,
		spec("boom", 1),
		spec("slow", 2),
		spec("final", 1, "boom", "slow"),
	)

	wf, err := f.sched.Run(context.Background(), id)
	require.NoError(t, err)

	assert.Equal(t, domain.WorkflowStatusFailed, wf.Status)
	assert.Equal(t, domain.TaskStatusFailed, wf.Task("boom").Status)
	assert.Equal(t, domain.TaskStatusCompleted, wf.Task("slow").Status)
	require.NotNil(t, wf.Task("slow").Result)
	assert.Equal(t, "out:slow", wf.Task("slow").Result.Output)
	assert.Equal(t, domain.TaskStatusSkipped, wf.Task("final").Status)
}

func TestRunCriticalFailureHaltsNewDispatch(t *testing.T) {
	f := newFixture(t)
	// "boom" fails fast on the critical path while "slow" holds the loop
	// open; "unrelated" becomes eligible only after the halt and must
	// never start.
	f.rec.failing["boom"] = true
	f.rec.delays["slow"] = 150 * time.Millisecond
	f.rec.delays["boom"] = 10 * time.Millisecond
	id := f.createWorkflow(t, true,
		spec("gate", 3),
		spec("boom", 1),
		spec("slow", 2),
		spec("unrelated", 3, "gate"),
		spec("final", 1, "boom", "slow"),
	)

	wf, err := f.sched.Run(context.Background(), id)
	require.NoError(t, err)

	assert.Equal(t, domain.WorkflowStatusFailed, wf.Status)
	assert.Equal(t, domain.TaskStatusCompleted, wf.Task("slow").Status)
	assert.Equal(t, domain.TaskStatusSkipped, wf.Task("final").Status)
	assert.NotEqual(t, domain.TaskStatusRunning, wf.Task("unrelated").Status)
}

func TestRunDependencyResultsReachExecutor(t *testing.T) {
	logger := zap.NewNop()
	store := storemem.NewStore()
	bus := eventsmem.NewBus(logger)
	defer bus.Close()

	var mu sync.Mutex
	seen := make(map[string]map[string]*domain.Result)
	registry := executors.NewRegistry(5*time.Second, logger)
	require.NoError(t, registry.Register(executors.ExecutorFunc{
		AgentType: domain.AgentTypeGeneral,
		Func: func(ctx context.Context, task *domain.Task, deps map[string]*domain.Result) (*domain.Result, error) {
			mu.Lock()
			seen[task.TaskID] = deps
			mu.Unlock()
			return &domain.Result{OK: true, Output: "out:" + task.TaskID}, nil
		},
	}))
	sched := New(store, registry, bus, nopMetrics{}, logger, 0)

	wf := domain.NewWorkflow("wf-deps", []domain.TaskSpec{
		spec("first", 1),
		spec("second", 1, "first"),
	}, true)
	require.NoError(t, store.Create(context.Background(), wf))

	_, err := sched.Run(context.Background(), "wf-deps")
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Empty(t, seen["first"])
	require.Contains(t, seen["second"], "first")
	assert.Equal(t, "out:first", seen["second"]["first"].Output)
}

func TestRunEmitsLifecycleEvents(t *testing.T) {
	logger := zap.NewNop()
	store := storemem.NewStore()
	bus := eventsmem.NewBus(logger)
	defer bus.Close()

	rec := newRecorder()
	registry := executors.NewRegistry(5*time.Second, logger)
	require.NoError(t, registry.Register(rec.executor(domain.AgentTypeGeneral)))
	sched := New(store, registry, bus, nopMetrics{}, logger, 0)

	events := make(chan domain.Event, 16)
	handler := func(ctx context.Context, ev domain.Event) error {
		events <- ev
		return nil
	}
	ctx := context.Background()
	require.NoError(t, bus.Subscribe(ctx, TopicWorkflowEvents, handler))
	require.NoError(t, bus.Subscribe(ctx, TopicTaskEvents, handler))

	wf := domain.NewWorkflow("wf-events", []domain.TaskSpec{spec("only", 1)}, true)
	require.NoError(t, store.Create(ctx, wf))

	_, err := sched.Run(ctx, "wf-events")
	require.NoError(t, err)

	types := make(map[domain.EventType]bool)
	deadline := time.After(time.Second)
	for len(types) < 4 {
		select {
		case ev := <-events:
			types[ev.Type] = true
		case <-deadline:
			t.Fatalf("missing events, got %v", types)
		}
	}
	assert.True(t, types[domain.EventTypeWorkflowStarted])
	assert.True(t, types[domain.EventTypeTaskStarted])
	assert.True(t, types[domain.EventTypeTaskCompleted])
	assert.True(t, types[domain.EventTypeWorkflowCompleted])
}

func TestRunRejectsNonCreatedWorkflow(t *testing.T) {
	f := newFixture(t)
	id := f.createWorkflow(t, true, spec("only", 1))

	_, err := f.sched.Run(context.Background(), id)
	require.NoError(t, err)

	_, err = f.sched.Run(context.Background(), id)
	assert.Error(t, err)
}

func TestRunNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.sched.Run(context.Background(), "no-such-workflow")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRunWorkflowTimeoutFailsTasks(t *testing.T) {
	logger := zap.NewNop()
	store := storemem.NewStore()
	bus := eventsmem.NewBus(logger)
	defer bus.Close()

	rec := newRecorder()
	rec.delays["slow"] = time.Second
	registry := executors.NewRegistry(5*time.Second, logger)
	require.NoError(t, registry.Register(rec.executor(domain.AgentTypeGeneral)))

	sched := New(store, registry, bus, nopMetrics{}, logger, 50*time.Millisecond)

	wf := domain.NewWorkflow("wf-timeout", []domain.TaskSpec{spec("slow", 1)}, true)
	require.NoError(t, store.Create(context.Background(), wf))

	got, err := sched.Run(context.Background(), "wf-timeout")
	require.NoError(t, err)
	assert.Equal(t, domain.WorkflowStatusFailed, got.Status)
	assert.Equal(t, domain.TaskStatusFailed, got.Task("slow").Status)
}

package executors

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/taskmesh/taskmesh/internal/domain"
)

func newTestRegistry(t *testing.T, timeout time.Duration) *Registry {
	t.Helper()
	return NewRegistry(timeout, zap.NewNop())
}

func generalTask(id string) *domain.Task {
	return &domain.Task{
		TaskID:       id,
		Type:         domain.TaskTypeAgent,
		Description:  "do something",
		AgentType:    domain.AgentTypeGeneral,
		Dependencies: []string{},
		Status:       domain.TaskStatusRunning,
	}
}

func TestRegistryRegister(t *testing.T) {
	r := newTestRegistry(t, time.Second)

	err := r.Register(ExecutorFunc{AgentType: domain.AgentTypeGeneral, Func: nil})
	require.NoError(t, err)

	// Same kind twice is rejected.
	err = r.Register(ExecutorFunc{AgentType: domain.AgentTypeGeneral, Func: nil})
	assert.Error(t, err)

	// Unknown kinds are rejected.
	err = r.Register(ExecutorFunc{AgentType: domain.AgentType("teleport"), Func: nil})
	assert.Error(t, err)
}

func TestDispatchSuccess(t *testing.T) {
	r := newTestRegistry(t, time.Second)
	require.NoError(t, r.Register(ExecutorFunc{
		AgentType: domain.AgentTypeGeneral,
		Func: func(ctx context.Context, task *domain.Task, deps map[string]*domain.Result) (*domain.Result, error) {
			return &domain.Result{OK: true, Output: "done: " + task.TaskID}, nil
		},
	}))

	res := r.Dispatch(context.Background(), generalTask("t1"), nil)

	require.NotNil(t, res)
	assert.True(t, res.OK)
	assert.Equal(t, "done: t1", res.Output)
}

func TestDispatchUnregisteredKind(t *testing.T) {
	r := newTestRegistry(t, time.Second)

	res := r.Dispatch(context.Background(), generalTask("t1"), nil)

	require.NotNil(t, res)
	assert.False(t, res.OK)
	assert.Contains(t, res.Error, "no executor registered")
}

func TestDispatchExecutorError(t *testing.T) {
	r := newTestRegistry(t, time.Second)
	require.NoError(t, r.Register(ExecutorFunc{
		AgentType: domain.AgentTypeGeneral,
		Func: func(ctx context.Context, task *domain.Task, deps map[string]*domain.Result) (*domain.Result, error) {
			return nil, errors.New("boom")
		},
	}))

	res := r.Dispatch(context.Background(), generalTask("t1"), nil)

	require.NotNil(t, res)
	assert.False(t, res.OK)
	assert.Contains(t, res.Error, "boom")
	assert.Contains(t, res.Error, domain.ErrExecution.Error())
}

func TestDispatchTimeout(t *testing.T) {
	r := newTestRegistry(t, 20*time.Millisecond)
	require.NoError(t, r.Register(ExecutorFunc{
		AgentType: domain.AgentTypeGeneral,
		Func: func(ctx context.Context, task *domain.Task, deps map[string]*domain.Result) (*domain.Result, error) {
			select {
			case <-time.After(5 * time.Second):
				return &domain.Result{OK: true}, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		},
	}))

	res := r.Dispatch(context.Background(), generalTask("slow"), nil)

	require.NotNil(t, res)
	assert.False(t, res.OK)
	assert.Contains(t, res.Error, domain.ErrTimeout.Error())
}

func TestDispatchNilResult(t *testing.T) {
	r := newTestRegistry(t, time.Second)
	require.NoError(t, r.Register(ExecutorFunc{
		AgentType: domain.AgentTypeGeneral,
		Func: func(ctx context.Context, task *domain.Task, deps map[string]*domain.Result) (*domain.Result, error) {
			return nil, nil
		},
	}))

	res := r.Dispatch(context.Background(), generalTask("t1"), nil)

	require.NotNil(t, res)
	assert.False(t, res.OK)
}

func TestBuildPrompt(t *testing.T) {
	task := &domain.Task{
		TaskID:       "summarize",
		Description:  "Summarize the findings.",
		Dependencies: []string{"fetch", "analyze"},
	}
	deps := map[string]*domain.Result{
		"fetch":   {OK: true, Output: "raw data"},
		"analyze": {OK: true, Output: "trend is up"},
	}

	prompt := BuildPrompt(task, deps)

	assert.Contains(t, prompt, "Results from fetch:\nraw data")
	assert.Contains(t, prompt, "Results from analyze:\ntrend is up")
	assert.Contains(t, prompt, "Task:\nSummarize the findings.")

	// No dependency context: prompt is just the description.
	assert.Equal(t, "bare", BuildPrompt(&domain.Task{Description: "bare"}, nil))
}

package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validWorkflow(id string) *Workflow {
	return NewWorkflow(id, []TaskSpec{
		{TaskID: "a", Description: "first", AgentType: AgentTypeBrowser, Priority: 1},
		{TaskID: "b", Description: "second", Dependencies: []string{"a"}, Priority: 2},
	}, true)
}

func TestNewWorkflowDefaults(t *testing.T) {
	wf := NewWorkflow("wf-1", []TaskSpec{
		{TaskID: "a", Description: "no agent type"},
	}, false)

	assert.Equal(t, WorkflowStatusCreated, wf.Status)
	assert.False(t, wf.CreatedAt.IsZero())
	assert.False(t, wf.ParallelExecution)

	task := wf.Task("a")
	require.NotNil(t, task)
	assert.Equal(t, TaskTypeAgent, task.Type)
	assert.Equal(t, AgentTypeGeneral, task.AgentType)
	assert.Equal(t, TaskStatusPending, task.Status)
	assert.NotNil(t, task.Dependencies)
	assert.Nil(t, task.Result)
}

func TestWorkflowCloneIsolation(t *testing.T) {
	wf := validWorkflow("wf-1")
	cp := wf.Clone()

	cp.Status = WorkflowStatusRunning
	cp.Task("a").Status = TaskStatusCompleted
	cp.Task("a").Dependencies = append(cp.Task("a").Dependencies, "x")

	assert.Equal(t, WorkflowStatusCreated, wf.Status)
	assert.Equal(t, TaskStatusPending, wf.Task("a").Status)
	assert.Empty(t, wf.Task("a").Dependencies)
}

func TestWorkflowSummary(t *testing.T) {
	wf := NewWorkflow("wf-1", []TaskSpec{
		{TaskID: "a"}, {TaskID: "b"}, {TaskID: "c"}, {TaskID: "d"},
	}, true)
	wf.Status = WorkflowStatusFailed
	wf.Task("a").Status = TaskStatusCompleted
	wf.Task("b").Status = TaskStatusFailed
	wf.Task("c").Status = TaskStatusSkipped

	s := wf.Summary()
	assert.Equal(t, "wf-1", s.WorkflowID)
	assert.Equal(t, WorkflowStatusFailed, s.Status)
	assert.Equal(t, 4, s.TotalTasks)
	assert.Equal(t, 1, s.CompletedTasks)
	assert.Equal(t, 1, s.FailedTasks)
	assert.Equal(t, 1, s.SkippedTasks)
}

func TestStatusTerminal(t *testing.T) {
	assert.True(t, WorkflowStatusCompleted.Terminal())
	assert.True(t, WorkflowStatusFailed.Terminal())
	assert.False(t, WorkflowStatusCreated.Terminal())
	assert.False(t, WorkflowStatusRunning.Terminal())

	assert.True(t, TaskStatusCompleted.Terminal())
	assert.True(t, TaskStatusFailed.Terminal())
	assert.True(t, TaskStatusSkipped.Terminal())
	assert.False(t, TaskStatusPending.Terminal())
	assert.False(t, TaskStatusReady.Terminal())
	assert.False(t, TaskStatusRunning.Terminal())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(wf *Workflow)
		wantErr string
	}{
		{
			name:   "valid graph",
			mutate: func(wf *Workflow) {},
		},
		{
			name:    "missing workflow id",
			mutate:  func(wf *Workflow) { wf.WorkflowID = "" },
			wantErr: "workflow_id is required",
		},
		{
			name:    "no tasks",
			mutate:  func(wf *Workflow) { wf.Tasks = nil },
			wantErr: "at least one task",
		},
		{
			name:    "empty task id",
			mutate:  func(wf *Workflow) { wf.Tasks[0].TaskID = "" },
			wantErr: "task_id is required",
		},
		{
			name:    "duplicate task id",
			mutate:  func(wf *Workflow) { wf.Tasks[1].TaskID = "a" },
			wantErr: "duplicate task_id",
		},
		{
			name:    "unknown agent type",
			mutate:  func(wf *Workflow) { wf.Tasks[0].AgentType = "mcp" },
			wantErr: "unknown agent_type",
		},
		{
			name:    "self dependency",
			mutate:  func(wf *Workflow) { wf.Tasks[0].Dependencies = []string{"a"} },
			wantErr: "depends on itself",
		},
		{
			name:    "dangling dependency",
			mutate:  func(wf *Workflow) { wf.Tasks[1].Dependencies = []string{"ghost"} },
			wantErr: "unknown task",
		},
		{
			name: "cycle",
			mutate: func(wf *Workflow) {
				wf.Tasks[0].Dependencies = []string{"b"}
			},
			wantErr: "cycle",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wf := validWorkflow("wf-1")
			tt.mutate(wf)

			err := wf.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidGraph)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

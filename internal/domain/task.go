package domain

// TaskStatus represents the lifecycle state of a single task.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusReady     TaskStatus = "ready"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusSkipped   TaskStatus = "skipped"
)

// Terminal reports whether the status is final for a task.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusSkipped:
		return true
	}
	return false
}

// AgentType selects which executor handles a task.
type AgentType string

const (
	AgentTypeGeneral      AgentType = "general"
	AgentTypeBrowser      AgentType = "browser"
	AgentTypeDataAnalysis AgentType = "data_analysis"
)

// Valid reports whether the agent type is one of the known kinds.
func (a AgentType) Valid() bool {
	switch a {
	case AgentTypeGeneral, AgentTypeBrowser, AgentTypeDataAnalysis:
		return true
	}
	return false
}

// TaskTypeAgent is the default task type for planner-produced tasks.
const TaskTypeAgent = "agent"

// Task is one unit of work inside a workflow. The description is opaque to
// the scheduler and is handed to the executor as-is. Field names follow the
// persisted workflow document layout and must round-trip exactly.
type Task struct {
	TaskID       string     `json:"task_id"`
	Type         string     `json:"type"`
	Description  string     `json:"description"`
	AgentType    AgentType  `json:"agent_type"`
	Dependencies []string   `json:"dependencies"`
	Priority     int        `json:"priority"`
	Status       TaskStatus `json:"status"`
	Result       *Result    `json:"result,omitempty"`
}

// Result is the opaque payload an executor produced for a task. It is set
// exactly once, when the task leaves the running state. Output values are
// treated as immutable after the executor returns them.
type Result struct {
	OK     bool        `json:"ok"`
	Output interface{} `json:"output,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// Clone returns a deep copy of the task. The result output is shared since
// result payloads are immutable by contract.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	cp := *t
	if t.Dependencies != nil {
		cp.Dependencies = append([]string(nil), t.Dependencies...)
	}
	if t.Result != nil {
		res := *t.Result
		cp.Result = &res
	}
	return &cp
}

// TaskSpec is a planner-produced task description, before it becomes part of
// a workflow. The planner contract is an ordered sequence of these.
type TaskSpec struct {
	TaskID       string    `json:"task_id"`
	Description  string    `json:"description"`
	AgentType    AgentType `json:"agent_type"`
	Dependencies []string  `json:"dependencies"`
	Priority     int       `json:"priority"`
}

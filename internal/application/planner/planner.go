package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/kaptinlin/jsonrepair"
	"go.uber.org/zap"

	"github.com/taskmesh/taskmesh/internal/domain"
	"github.com/taskmesh/taskmesh/internal/ports"
)

// maxPlanTasks bounds the size of a generated plan.
const maxPlanTasks = 20

const planningSystemPrompt = `You are an expert task planning agent that decomposes requests into workflows of atomic tasks routed to specialized agents.

## Available Agents:

### General Agent (type: "general")
Capabilities: general computation, file operations, code, writing, calculations.

### Browser Agent (type: "browser")
Capabilities: web research, data extraction from pages, multi-step web tasks.

### Data Analysis Agent (type: "data_analysis")
Capabilities: statistical analysis, visualization, reporting on structured data.

## Planning Principles:
1. Each task does ONE thing.
2. Add a dependency only when a task needs another task's output.
3. Tasks without dependencies can run in parallel.
4. Task descriptions must be specific and actionable.

## Output Format:

Respond with ONLY a JSON array, no prose:

[
  {
    "task_id": "unique_descriptive_id",
    "description": "Specific action to perform",
    "agent_type": "general|browser|data_analysis",
    "dependencies": [],
    "priority": 1
  }
]

Rules:
- task_id must be unique and descriptive (e.g. "fetch_data", "analyze_results")
- dependencies contains task_ids that must complete before this task
- priority: 1 (highest) to 10 (lowest)`

// LLMPlanner generates task plans by prompting an LLM and parsing the
// JSON array it returns.
type LLMPlanner struct {
	llm     ports.LLMClient
	metrics ports.MetricsCollector
	logger  *zap.Logger

	model       string
	maxTokens   int
	temperature float64
}

// Option configures an LLMPlanner.
type Option func(*LLMPlanner)

// WithModel overrides the model used for planning calls.
func WithModel(model string) Option {
	return func(p *LLMPlanner) { p.model = model }
}

// WithMaxTokens overrides the response token budget.
func WithMaxTokens(n int) Option {
	return func(p *LLMPlanner) { p.maxTokens = n }
}

// WithTemperature sets the sampling temperature for planning calls.
func WithTemperature(temp float64) Option {
	return func(p *LLMPlanner) { p.temperature = temp }
}

// NewLLMPlanner creates a planner backed by an LLM client.
func NewLLMPlanner(llm ports.LLMClient, metrics ports.MetricsCollector, logger *zap.Logger, opts ...Option) *LLMPlanner {
	p := &LLMPlanner{
		llm:       llm,
		metrics:   metrics,
		logger:    logger,
		maxTokens: 4096,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

var _ ports.Planner = (*LLMPlanner)(nil)

// Plan asks the LLM to decompose the request into task specs.
func (p *LLMPlanner) Plan(ctx context.Context, request string) ([]domain.TaskSpec, error) {
	start := time.Now()

	resp, err := p.llm.Complete(ctx, &domain.CompletionRequest{
		Model:       p.model,
		System:      planningSystemPrompt,
		Prompt:      "Analyze this request and create an execution plan:\n\nREQUEST: " + request,
		MaxTokens:   p.maxTokens,
		Temperature: p.temperature,
	})
	if err != nil {
		p.metrics.RecordPlanning("error", time.Since(start))
		return nil, fmt.Errorf("%w: %w", domain.ErrPlanning, err)
	}

	specs, err := ParseTaskSpecs(resp.Content)
	if err != nil {
		p.metrics.RecordPlanning("parse_error", time.Since(start))
		return nil, fmt.Errorf("%w: %w", domain.ErrPlanning, err)
	}

	p.metrics.RecordPlanning("success", time.Since(start))
	p.logger.Info("plan generated",
		zap.Int("tasks", len(specs)),
		zap.Int64("input_tokens", resp.InputTokens),
		zap.Int64("output_tokens", resp.OutputTokens))
	return specs, nil
}

type planTask struct {
	TaskID       string   `json:"task_id"`
	Description  string   `json:"description"`
	AgentType    string   `json:"agent_type"`
	Dependencies []string `json:"dependencies"`
	Priority     int      `json:"priority"`
}

// ParseTaskSpecs extracts a task plan from raw LLM output. It tolerates
// markdown fences, surrounding prose and mildly malformed JSON, and
// applies defaults for missing agent types and priorities.
func ParseTaskSpecs(raw string) ([]domain.TaskSpec, error) {
	payload := extractArray(raw)
	if payload == "" {
		return nil, fmt.Errorf("no JSON array in planner output")
	}

	var tasks []planTask
	if err := json.Unmarshal([]byte(payload), &tasks); err != nil {
		repaired, repErr := jsonrepair.JSONRepair(payload)
		if repErr != nil {
			return nil, fmt.Errorf("parse plan: %w", err)
		}
		if err := json.Unmarshal([]byte(repaired), &tasks); err != nil {
			return nil, fmt.Errorf("parse repaired plan: %w", err)
		}
	}

	if len(tasks) == 0 {
		return nil, fmt.Errorf("planner produced an empty plan")
	}
	if len(tasks) > maxPlanTasks {
		tasks = tasks[:maxPlanTasks]
	}

	specs := make([]domain.TaskSpec, 0, len(tasks))
	for i, t := range tasks {
		if t.TaskID == "" {
			return nil, fmt.Errorf("plan task %d has no task_id", i)
		}
		agent := domain.AgentType(strings.ToLower(t.AgentType))
		if !agent.Valid() {
			agent = domain.AgentTypeGeneral
		}
		priority := t.Priority
		if priority < 1 || priority > 10 {
			priority = 1
		}
		deps := t.Dependencies
		if deps == nil {
			deps = []string{}
		}
		specs = append(specs, domain.TaskSpec{
			TaskID:       t.TaskID,
			Description:  t.Description,
			AgentType:    agent,
			Dependencies: deps,
			Priority:     priority,
		})
	}
	return specs, nil
}

// extractArray finds the outermost JSON array in the output, skipping
// markdown fences and any prose around it.
func extractArray(raw string) string {
	s := strings.TrimSpace(raw)
	if i := strings.Index(s, "```"); i >= 0 {
		s = s[i+3:]
		s = strings.TrimPrefix(s, "json")
		if j := strings.Index(s, "```"); j >= 0 {
			s = s[:j]
		}
	}
	start := strings.Index(s, "[")
	end := strings.LastIndex(s, "]")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

// StaticPlanner returns a fixed plan regardless of the request. It backs
// deterministic tests and pre-planned workflows submitted through the
// API.
type StaticPlanner struct {
	Specs []domain.TaskSpec
}

var _ ports.Planner = (*StaticPlanner)(nil)

func (p *StaticPlanner) Plan(ctx context.Context, request string) ([]domain.TaskSpec, error) {
	if len(p.Specs) == 0 {
		return nil, fmt.Errorf("%w: static planner has no tasks", domain.ErrPlanning)
	}
	return p.Specs, nil
}

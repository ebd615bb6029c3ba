package executors

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/taskmesh/taskmesh/internal/domain"
	"github.com/taskmesh/taskmesh/internal/ports"
)

const generalSystemPrompt = `You are a general-purpose assistant. You handle ` +
	`computation, reasoning, writing, and file-oriented tasks. Complete the ` +
	`task described by the user and reply with the task's output only.`

const browserSystemPrompt = `You are a web research assistant. You handle tasks ` +
	`that require browsing the web: navigating pages, extracting structured ` +
	`information, and summarizing what you find. Reply with the extracted ` +
	`information only.`

const dataAnalysisSystemPrompt = `You are a data analysis assistant. You handle ` +
	`tasks involving datasets, statistics, and visualization. Explain your ` +
	`method briefly and reply with the analysis result.`

// AgentConfig holds model settings shared by the LLM-backed executors.
type AgentConfig struct {
	Model       string
	MaxTokens   int
	Temperature float64
}

// AgentExecutor is an LLM-backed executor. The agent type selects the system
// prompt; the task description, augmented with the outputs of completed
// dependencies, becomes the user prompt.
type AgentExecutor struct {
	kind   domain.AgentType
	system string
	llm    ports.LLMClient
	cfg    AgentConfig
	logger *zap.Logger
}

// NewGeneralExecutor returns the executor for general-purpose tasks.
func NewGeneralExecutor(llm ports.LLMClient, cfg AgentConfig, logger *zap.Logger) *AgentExecutor {
	return newAgentExecutor(domain.AgentTypeGeneral, generalSystemPrompt, llm, cfg, logger)
}

// NewBrowserExecutor returns the executor for web-browsing tasks.
func NewBrowserExecutor(llm ports.LLMClient, cfg AgentConfig, logger *zap.Logger) *AgentExecutor {
	return newAgentExecutor(domain.AgentTypeBrowser, browserSystemPrompt, llm, cfg, logger)
}

// NewDataAnalysisExecutor returns the executor for data-analysis tasks.
func NewDataAnalysisExecutor(llm ports.LLMClient, cfg AgentConfig, logger *zap.Logger) *AgentExecutor {
	return newAgentExecutor(domain.AgentTypeDataAnalysis, dataAnalysisSystemPrompt, llm, cfg, logger)
}

func newAgentExecutor(kind domain.AgentType, system string, llm ports.LLMClient, cfg AgentConfig, logger *zap.Logger) *AgentExecutor {
	return &AgentExecutor{
		kind:   kind,
		system: system,
		llm:    llm,
		cfg:    cfg,
		logger: logger,
	}
}

// Kind returns the agent type this executor handles.
func (e *AgentExecutor) Kind() domain.AgentType {
	return e.kind
}

// Execute runs the task through the LLM and returns its text output.
func (e *AgentExecutor) Execute(ctx context.Context, task *domain.Task, deps map[string]*domain.Result) (*domain.Result, error) {
	prompt := BuildPrompt(task, deps)

	resp, err := e.llm.Complete(ctx, &domain.CompletionRequest{
		Model:       e.cfg.Model,
		System:      e.system,
		Prompt:      prompt,
		MaxTokens:   e.cfg.MaxTokens,
		Temperature: e.cfg.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("llm call failed: %w", err)
	}

	e.logger.Debug("agent completion",
		zap.String("task_id", task.TaskID),
		zap.String("agent_type", string(e.kind)),
		zap.Int64("input_tokens", resp.InputTokens),
		zap.Int64("output_tokens", resp.OutputTokens))

	return &domain.Result{OK: true, Output: resp.Content}, nil
}

// BuildPrompt assembles the user prompt for a task: the outputs of completed
// dependencies first, then the task description.
func BuildPrompt(task *domain.Task, deps map[string]*domain.Result) string {
	var context []string
	for _, depID := range task.Dependencies {
		res := deps[depID]
		if res == nil || !res.OK || res.Output == nil {
			continue
		}
		context = append(context, fmt.Sprintf("Results from %s:\n%v", depID, res.Output))
	}

	if len(context) == 0 {
		return task.Description
	}
	return "Previous task results:\n" + strings.Join(context, "\n\n") + "\n\nTask:\n" + task.Description
}

// ExecutorFunc adapts a plain function to the Executor interface. Used for
// embedding custom executors and in tests.
type ExecutorFunc struct {
	AgentType domain.AgentType
	Func      func(ctx context.Context, task *domain.Task, deps map[string]*domain.Result) (*domain.Result, error)
}

func (f ExecutorFunc) Kind() domain.AgentType {
	return f.AgentType
}

func (f ExecutorFunc) Execute(ctx context.Context, task *domain.Task, deps map[string]*domain.Result) (*domain.Result, error) {
	return f.Func(ctx, task, deps)
}

package domain

// CompletionRequest is a provider-neutral LLM completion request.
type CompletionRequest struct {
	Model       string
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// CompletionResponse carries the text completion and token usage.
type CompletionResponse struct {
	Content      string
	InputTokens  int64
	OutputTokens int64
}

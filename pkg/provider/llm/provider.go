// Package llm defines the Provider interface for Large Language Model backends.
//
// An LLM provider wraps a remote or local model API (OpenAI, Gemini, a local
// Ollama instance, ...) and exposes the single-shot completion the page
// rewriter needs without coupling callers to any specific SDK.
//
// Implementors must be safe for concurrent use.
package llm

import "context"

// Usage holds token accounting information returned by the LLM backend.
type Usage struct {
	// PromptTokens is the number of tokens consumed by the system prompt and
	// the input messages.
	PromptTokens int

	// CompletionTokens is the number of tokens generated in the response.
	CompletionTokens int

	// TotalTokens is PromptTokens + CompletionTokens.
	TotalTokens int
}

// CompletionRequest carries everything the LLM needs to produce a response.
// At minimum Messages must be non-empty.
type CompletionRequest struct {
	// Messages is the ordered conversation. For page rewrites this is a single
	// user message holding the instruction followed by the markup.
	Messages []Message

	// Temperature controls output randomness in the range [0.0, 2.0]. Zero
	// leaves the provider default in place.
	Temperature float64

	// MaxTokens caps the number of completion tokens. Zero means use the
	// provider default.
	MaxTokens int

	// SystemPrompt is an optional high-priority instruction injected before
	// Messages. Providers without a dedicated system field prepend it as a
	// "system"-role message.
	SystemPrompt string
}

// CompletionResponse is returned by Complete.
type CompletionResponse struct {
	// Content is the full text of the model's reply.
	Content string

	// FinishReason reports why generation stopped ("stop", "length", ...).
	FinishReason string

	// Usage contains token accounting for this request/response pair.
	Usage Usage
}

// Provider is the abstraction over any LLM backend.
//
// Implementations must propagate context cancellation promptly.
type Provider interface {
	// Complete sends req to the model and waits for the full response.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// CountTokens estimates how many tokens messages would consume in the
	// model's context window. The estimate must not undercount.
	CountTokens(messages []Message) (int, error)

	// Capabilities returns static metadata about the underlying model.
	Capabilities() ModelCapabilities
}

// EstimateTokens is the shared character-based approximation used by
// providers that lack a tokenizer endpoint: roughly four characters per token
// plus a fixed per-message overhead.
func EstimateTokens(messages []Message) int {
	total := 0
	for _, m := range messages {
		total += (len(m.Content) + 3) / 4
		total += 4
	}
	return total
}

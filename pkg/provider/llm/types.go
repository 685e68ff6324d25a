package llm

// Message represents a single message in an LLM request.
type Message struct {
	// Role is one of "system", "user" or "assistant".
	Role string

	// Content is the text content of the message.
	Content string
}

// ModelCapabilities describes what an LLM model supports.
type ModelCapabilities struct {
	// ContextWindow is the maximum token count for input + output.
	ContextWindow int

	// MaxOutputTokens is the maximum tokens the model can generate in one
	// completion. Rewritten pages longer than this are truncated by the
	// provider.
	MaxOutputTokens int
}

// Fits reports whether a prompt of promptTokens leaves room for a response of
// roughly the same size inside the context window.
func (c ModelCapabilities) Fits(promptTokens int) bool {
	if c.ContextWindow == 0 {
		return true
	}
	return promptTokens*2 <= c.ContextWindow
}

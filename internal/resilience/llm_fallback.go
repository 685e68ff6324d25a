package resilience

import (
	"context"

	"github.com/MrWong99/eclectech/pkg/provider/llm"
)

// LLMFallback is an [llm.Provider] that fails over between rewrite backends.
type LLMFallback struct {
	group *FallbackGroup[llm.Provider]
}

var _ llm.Provider = (*LLMFallback)(nil)

// NewLLMFallback returns an LLMFallback preferring primary.
func NewLLMFallback(primary llm.Provider, primaryName string, cfg FallbackConfig) *LLMFallback {
	return &LLMFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers another backend.
func (f *LLMFallback) AddFallback(name string, p llm.Provider) { f.group.AddFallback(name, p) }

// Names lists the backends in failover order.
func (f *LLMFallback) Names() []string { return f.group.Names() }

// Complete returns the first successful completion.
func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return ExecuteWithResult(ctx, f.group, func(p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}

// CountTokens asks the primary only. Token estimates are local and a failure
// there says nothing about the backend's availability.
func (f *LLMFallback) CountTokens(messages []llm.Message) (int, error) {
	return f.group.Primary().CountTokens(messages)
}

// Capabilities reports the smallest limits across all backends, since any of
// them may end up serving a request.
func (f *LLMFallback) Capabilities() llm.ModelCapabilities {
	caps := f.group.Primary().Capabilities()
	for _, e := range f.group.entries[1:] {
		c := e.value.Capabilities()
		caps.ContextWindow = minPositive(caps.ContextWindow, c.ContextWindow)
		caps.MaxOutputTokens = minPositive(caps.MaxOutputTokens, c.MaxOutputTokens)
	}
	return caps
}

// minPositive treats zero as unknown.
func minPositive(a, b int) int {
	switch {
	case a <= 0:
		return b
	case b <= 0:
		return a
	default:
		return min(a, b)
	}
}

package rewrite

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/MrWong99/eclectech/internal/observe"
	"github.com/MrWong99/eclectech/pkg/provider/llm"
)

// ErrEmptyResponse is returned when the model answers with no markup.
var ErrEmptyResponse = errors.New("rewrite: empty response")

// Service performs a single rewrite step: apply instruction to markup.
//
// Errors are returned unchanged so that callers can inspect provider
// failures.
type Service interface {
	Rewrite(ctx context.Context, markup, instruction string) (string, error)
}

// ServiceOption configures an [LLMService].
type ServiceOption func(*LLMService)

// WithSystemPrompt overrides [DefaultSystemPrompt].
func WithSystemPrompt(p string) ServiceOption {
	return func(s *LLMService) {
		if p != "" {
			s.system = p
		}
	}
}

// WithProviderName sets the provider label used in metrics.
func WithProviderName(name string) ServiceOption {
	return func(s *LLMService) { s.name = name }
}

// WithServiceMetrics records provider requests on m instead of
// [observe.DefaultMetrics].
func WithServiceMetrics(m *observe.Metrics) ServiceOption {
	return func(s *LLMService) { s.metrics = m }
}

// LLMService implements [Service] on top of an [llm.Provider].
type LLMService struct {
	provider llm.Provider
	name     string
	metrics  *observe.Metrics

	mu     sync.RWMutex
	system string
}

var _ Service = (*LLMService)(nil)

// NewLLMService wraps p.
func NewLLMService(p llm.Provider, opts ...ServiceOption) *LLMService {
	s := &LLMService{
		provider: p,
		system:   DefaultSystemPrompt,
		name:     "llm",
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// SetSystemPrompt swaps the constraint sent with later calls. An empty p
// restores [DefaultSystemPrompt].
func (s *LLMService) SetSystemPrompt(p string) {
	if p == "" {
		p = DefaultSystemPrompt
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.system = p
}

// Rewrite sends instruction followed by markup to the model and returns the
// reply with any code fence removed.
func (s *LLMService) Rewrite(ctx context.Context, markup, instruction string) (string, error) {
	msgs := []llm.Message{{Role: "user", Content: instruction + "\n" + markup}}

	if n, err := s.provider.CountTokens(msgs); err == nil && !s.provider.Capabilities().Fits(n) {
		slog.Warn("rewrite prompt may exceed model context window",
			"provider", s.name,
			"prompt_tokens", n,
			"context_window", s.provider.Capabilities().ContextWindow,
		)
	}

	s.mu.RLock()
	system := s.system
	s.mu.RUnlock()

	resp, err := s.provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: system,
		Messages:     msgs,
	})
	if err != nil {
		s.metrics.RecordProviderRequest(ctx, s.name, "llm", "error")
		s.metrics.RecordProviderError(ctx, s.name, "llm")
		return "", err
	}
	s.metrics.RecordProviderRequest(ctx, s.name, "llm", "ok")

	out := StripFence(resp.Content)
	if strings.TrimSpace(out) == "" {
		return "", fmt.Errorf("%w (finish reason %q)", ErrEmptyResponse, resp.FinishReason)
	}
	return out, nil
}

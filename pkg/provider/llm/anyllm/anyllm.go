// Package anyllm provides a universal LLM provider backed by
// github.com/mozilla-ai/any-llm-go, a unified multi-provider interface that
// supports OpenAI, Anthropic, Gemini, Ollama, DeepSeek, Mistral, Groq, and more.
//
// Gemini is the default rewrite backend:
//
//	p, err := anyllm.NewGemini("gemini-2.0-flash", anyllmlib.WithAPIKey("..."))
//	p, err := anyllm.New("ollama", "llama3.2")
package anyllm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/llamacpp"
	"github.com/mozilla-ai/any-llm-go/providers/llamafile"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/MrWong99/eclectech/pkg/provider/llm"
)

// Backends lists the provider names accepted by [New].
var Backends = []string{"openai", "anthropic", "gemini", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile"}

// Provider implements llm.Provider by wrapping github.com/mozilla-ai/any-llm-go.
type Provider struct {
	backend anyllmlib.Provider
	name    string
	model   string
}

// New creates a new Provider backed by the named any-llm-go backend (one of
// [Backends]).
//
// opts are any-llm-go configuration options (e.g., anyllmlib.WithAPIKey,
// anyllmlib.WithBaseURL). Without an API key option the backend falls back
// to its environment variable (GEMINI_API_KEY, OPENAI_API_KEY, ...).
func New(providerName string, model string, opts ...anyllmlib.Option) (*Provider, error) {
	if providerName == "" {
		return nil, errors.New("anyllm: providerName must not be empty")
	}
	if model == "" {
		return nil, errors.New("anyllm: model must not be empty")
	}

	name := strings.ToLower(providerName)
	backend, err := createBackend(name, opts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm: create %q backend: %w", providerName, err)
	}

	return &Provider{backend: backend, name: name, model: model}, nil
}

// NewGemini creates a Provider backed by Google Gemini.
// Without options, it reads the GEMINI_API_KEY or GOOGLE_API_KEY environment variable.
func NewGemini(model string, opts ...anyllmlib.Option) (*Provider, error) {
	return New("gemini", model, opts...)
}

// NewOllama creates a Provider backed by Ollama (local inference).
// Without options, it connects to http://localhost:11434.
func NewOllama(model string, opts ...anyllmlib.Option) (*Provider, error) {
	return New("ollama", model, opts...)
}

func createBackend(name string, opts ...anyllmlib.Option) (anyllmlib.Provider, error) {
	switch name {
	case "openai":
		return anyllmoai.New(opts...)
	case "anthropic":
		return anthropic.New(opts...)
	case "gemini":
		return gemini.New(opts...)
	case "ollama":
		return ollama.New(opts...)
	case "deepseek":
		return deepseek.New(opts...)
	case "mistral":
		return mistral.New(opts...)
	case "groq":
		return groq.New(opts...)
	case "llamacpp":
		return llamacpp.New(opts...)
	case "llamafile":
		return llamafile.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported provider %q; supported: %s", name, strings.Join(Backends, ", "))
	}
}

// Name returns the backend name, e.g. "gemini".
func (p *Provider) Name() string { return p.name }

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	resp, err := p.backend.Completion(ctx, p.buildParams(req))
	if err != nil {
		return nil, fmt.Errorf("anyllm: %s completion: %w", p.name, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("anyllm: %s returned no choices", p.name)
	}

	choice := resp.Choices[0]
	result := &llm.CompletionResponse{
		Content:      choice.Message.ContentString(),
		FinishReason: choice.FinishReason,
	}
	if resp.Usage != nil {
		result.Usage = llm.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
	}
	return result, nil
}

// CountTokens implements llm.Provider with [llm.EstimateTokens].
func (p *Provider) CountTokens(messages []llm.Message) (int, error) {
	return llm.EstimateTokens(messages), nil
}

// Capabilities implements llm.Provider.
func (p *Provider) Capabilities() llm.ModelCapabilities {
	return modelCapabilities(p.model)
}

func (p *Provider) buildParams(req llm.CompletionRequest) anyllmlib.CompletionParams {
	messages := make([]anyllmlib.Message, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		messages = append(messages, anyllmlib.Message{
			Role:    anyllmlib.RoleSystem,
			Content: req.SystemPrompt,
		})
	}
	for _, m := range req.Messages {
		messages = append(messages, convertMessage(m))
	}

	params := anyllmlib.CompletionParams{
		Model:    p.model,
		Messages: messages,
	}
	if req.Temperature != 0 {
		t := req.Temperature
		params.Temperature = &t
	}
	if req.MaxTokens > 0 {
		mt := req.MaxTokens
		params.MaxTokens = &mt
	}
	return params
}

func convertMessage(m llm.Message) anyllmlib.Message {
	return anyllmlib.Message{Role: m.Role, Content: m.Content}
}

// knownModels maps model-name prefixes to their limits. Entries are matched
// in order, so more specific prefixes come first.
var knownModels = []struct {
	prefix string
	caps   llm.ModelCapabilities
}{
	{"gemini-2.0-flash", llm.ModelCapabilities{ContextWindow: 1_048_576, MaxOutputTokens: 8_192}},
	{"gemini-1.5-pro", llm.ModelCapabilities{ContextWindow: 2_097_152, MaxOutputTokens: 8_192}},
	{"gemini-1.5-flash", llm.ModelCapabilities{ContextWindow: 1_048_576, MaxOutputTokens: 8_192}},
	{"gemini", llm.ModelCapabilities{ContextWindow: 128_000, MaxOutputTokens: 8_192}},
	{"gpt-4o", llm.ModelCapabilities{ContextWindow: 128_000, MaxOutputTokens: 16_384}},
	{"gpt-4-turbo", llm.ModelCapabilities{ContextWindow: 128_000, MaxOutputTokens: 4_096}},
	{"gpt-4", llm.ModelCapabilities{ContextWindow: 8_192, MaxOutputTokens: 4_096}},
	{"gpt-3.5-turbo", llm.ModelCapabilities{ContextWindow: 16_385, MaxOutputTokens: 4_096}},
	{"claude-3-opus", llm.ModelCapabilities{ContextWindow: 200_000, MaxOutputTokens: 4_096}},
	{"claude", llm.ModelCapabilities{ContextWindow: 200_000, MaxOutputTokens: 8_192}},
}

// modelCapabilities returns limits for known model families. Unknown models
// receive conservative defaults.
func modelCapabilities(model string) llm.ModelCapabilities {
	lower := strings.ToLower(model)
	for _, km := range knownModels {
		if strings.HasPrefix(lower, km.prefix) {
			return km.caps
		}
	}
	return llm.ModelCapabilities{ContextWindow: 128_000, MaxOutputTokens: 4_096}
}

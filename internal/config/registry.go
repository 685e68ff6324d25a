package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/MrWong99/eclectech/pkg/provider/llm"
	"github.com/MrWong99/eclectech/pkg/provider/stt"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructors for each role. It is
// safe for concurrent use.
type Registry struct {
	mu          sync.RWMutex
	llm         map[string]func(ProviderEntry) (llm.Provider, error)
	stt         map[string]func(ProviderEntry) (stt.Provider, error)
	transcriber map[string]func(ProviderEntry) (stt.Transcriber, error)
}

// NewRegistry returns an empty [Registry].
func NewRegistry() *Registry {
	return &Registry{
		llm:         make(map[string]func(ProviderEntry) (llm.Provider, error)),
		stt:         make(map[string]func(ProviderEntry) (stt.Provider, error)),
		transcriber: make(map[string]func(ProviderEntry) (stt.Transcriber, error)),
	}
}

// RegisterLLM registers an LLM provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterLLM(name string, factory func(ProviderEntry) (llm.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm[name] = factory
}

// RegisterSTT registers a streaming STT provider factory under name.
func (r *Registry) RegisterSTT(name string, factory func(ProviderEntry) (stt.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt[name] = factory
}

// RegisterTranscriber registers a segment transcriber factory under name.
func (r *Registry) RegisterTranscriber(name string, factory func(ProviderEntry) (stt.Transcriber, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transcriber[name] = factory
}

// CreateLLM instantiates the LLM provider registered under entry.Name.
// Returns [ErrProviderNotRegistered] if no factory has been registered for that name.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	return create(r, r.llm, "llm", entry)
}

// CreateSTT instantiates the streaming STT provider registered under entry.Name.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Provider, error) {
	return create(r, r.stt, "stt", entry)
}

// CreateTranscriber instantiates the transcriber registered under entry.Name.
func (r *Registry) CreateTranscriber(entry ProviderEntry) (stt.Transcriber, error) {
	return create(r, r.transcriber, "transcriber", entry)
}

func create[T any](r *Registry, factories map[string]func(ProviderEntry) (T, error), kind string, entry ProviderEntry) (T, error) {
	r.mu.RLock()
	factory, ok := factories[entry.Name]
	r.mu.RUnlock()
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, kind, entry.Name)
	}
	return factory(entry)
}

package app

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/MrWong99/eclectech/internal/config"
	"github.com/MrWong99/eclectech/internal/resilience"
	"github.com/MrWong99/eclectech/pkg/provider/llm"
	"github.com/MrWong99/eclectech/pkg/provider/stt"
)

// ErrNoLLM is returned by rewrites when no LLM provider is configured.
var ErrNoLLM = errors.New("app: no llm provider configured")

// Providers holds one interface value per provider role. Nil means the role
// is not configured.
type Providers struct {
	LLM     llm.Provider
	LLMName string

	STT     stt.Provider
	STTName string

	Transcriber     stt.Transcriber
	TranscriberName string

	// closers release providers holding local resources, such as a loaded
	// whisper model.
	closers []io.Closer
}

// Close releases the providers that hold resources.
func (p *Providers) Close() error {
	var errs []error
	for _, c := range p.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// FallbackConfig is the breaker template used by [BuildProviders].
var FallbackConfig = resilience.FallbackConfig{
	CircuitBreaker: resilience.CircuitBreakerConfig{
		OnStateChange: func(name string, from, to resilience.State) {
			slog.Info("provider breaker changed state", "provider", name, "from", from.String(), "to", to.String())
		},
	},
}

// BuildProviders instantiates every provider named in cfg through reg. Each
// role is wrapped in a failover group so that a failing backend trips its
// circuit breaker; the LLM role also fails over to providers.llm_fallbacks.
func BuildProviders(cfg *config.Config, reg *config.Registry) (*Providers, error) {
	ps := &Providers{}
	pc := cfg.Providers

	if pc.LLM.Name != "" {
		primary, err := reg.CreateLLM(pc.LLM)
		if err != nil {
			return nil, fmt.Errorf("create llm provider %q: %w", pc.LLM.Name, err)
		}
		ps.track(primary)
		group := resilience.NewLLMFallback(primary, pc.LLM.Name, FallbackConfig)
		for i, entry := range pc.LLMFallbacks {
			fb, err := reg.CreateLLM(entry)
			if err != nil {
				_ = ps.Close()
				return nil, fmt.Errorf("create llm fallback %d %q: %w", i, entry.Name, err)
			}
			ps.track(fb)
			group.AddFallback(fmt.Sprintf("%s#%d", entry.Name, i+1), fb)
		}
		ps.LLM, ps.LLMName = group, pc.LLM.Name
		slog.Info("provider created", "kind", "llm", "name", pc.LLM.Name, "model", pc.LLM.Model, "fallbacks", len(pc.LLMFallbacks))
	}

	if pc.STT.Name != "" {
		p, err := reg.CreateSTT(pc.STT)
		if err != nil {
			_ = ps.Close()
			return nil, fmt.Errorf("create stt provider %q: %w", pc.STT.Name, err)
		}
		ps.track(p)
		ps.STT, ps.STTName = resilience.NewSTTFallback(p, pc.STT.Name, FallbackConfig), pc.STT.Name
		slog.Info("provider created", "kind", "stt", "name", pc.STT.Name)
	}

	if pc.Transcriber.Name != "" {
		t, err := reg.CreateTranscriber(pc.Transcriber)
		if err != nil {
			_ = ps.Close()
			return nil, fmt.Errorf("create transcriber %q: %w", pc.Transcriber.Name, err)
		}
		ps.track(t)
		ps.Transcriber, ps.TranscriberName = resilience.NewTranscriberFallback(t, pc.Transcriber.Name, FallbackConfig), pc.Transcriber.Name
		slog.Info("provider created", "kind", "transcriber", "name", pc.Transcriber.Name)
	}

	return ps, nil
}

func (p *Providers) track(v any) {
	if c, ok := v.(io.Closer); ok {
		p.closers = append(p.closers, c)
	}
}

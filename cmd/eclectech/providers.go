package main

import (
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/eclectech/internal/config"
	"github.com/MrWong99/eclectech/pkg/provider/llm"
	"github.com/MrWong99/eclectech/pkg/provider/llm/anyllm"
	oallm "github.com/MrWong99/eclectech/pkg/provider/llm/openai"
	"github.com/MrWong99/eclectech/pkg/provider/stt"
	"github.com/MrWong99/eclectech/pkg/provider/stt/deepgram"
	oastt "github.com/MrWong99/eclectech/pkg/provider/stt/openai"
	"github.com/MrWong99/eclectech/pkg/provider/stt/whisper"
)

// newRegistry returns a registry holding every provider that ships with
// eclectech.
func newRegistry() *config.Registry {
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)
	return reg
}

// registerBuiltinProviders wires all built-in provider factories into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────
	// openai talks to the chat completions API directly; every other backend
	// goes through any-llm-go.
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []oallm.Option
		if entry.BaseURL != "" {
			opts = append(opts, oallm.WithBaseURL(entry.BaseURL))
		}
		if org := optString(entry.Options, "organization"); org != "" {
			opts = append(opts, oallm.WithOrganization(org))
		}
		if d := optDuration(entry.Options, "timeout"); d > 0 {
			opts = append(opts, oallm.WithTimeout(d))
		}
		return oallm.New(entry.APIKey, entry.Model, opts...)
	})

	for _, name := range anyllm.Backends {
		if name == "openai" {
			continue
		}
		reg.RegisterLLM(name, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			// ollama is a local server addressed by BaseURL only.
			if entry.APIKey != "" && name != "ollama" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(name, entry.Model, opts...)
		})
	}

	// ── Streaming STT ─────────────────────────────────────────────────────────

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	// ── Segment transcribers ──────────────────────────────────────────────────

	reg.RegisterTranscriber("whisper", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterTranscriber("whisper-native", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		modelPath := entry.BaseURL
		if modelPath == "" {
			modelPath = optString(entry.Options, "model_path")
		}
		var opts []whisper.NativeOption
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithNativeLanguage(lang))
		}
		if n := optInt(entry.Options, "concurrency"); n > 0 {
			opts = append(opts, whisper.WithNativeConcurrency(n))
		}
		return whisper.NewNative(modelPath, opts...)
	})

	reg.RegisterTranscriber("openai", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		var opts []oastt.Option
		if entry.BaseURL != "" {
			opts = append(opts, oastt.WithBaseURL(entry.BaseURL))
		}
		if entry.Model != "" {
			opts = append(opts, oastt.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, oastt.WithLanguage(lang))
		}
		return oastt.New(entry.APIKey, opts...)
	})
}

// optString extracts a string value from a provider Options map.
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}

// optInt accepts the integer types YAML and TOML decoders produce.
func optInt(opts map[string]any, key string) int {
	switch v := opts[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

// optDuration parses a Go duration string such as "90s".
func optDuration(opts map[string]any, key string) time.Duration {
	d, err := time.ParseDuration(optString(opts, key))
	if err != nil {
		return 0
	}
	return d
}

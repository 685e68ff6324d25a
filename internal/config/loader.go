package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/MrWong99/eclectech/internal/captions"
	"github.com/MrWong99/eclectech/internal/events"
	"github.com/MrWong99/eclectech/internal/feature"
	"github.com/MrWong99/eclectech/internal/rewrite"
)

// Format is a config file syntax.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// FormatOf picks the format from a file extension. Anything but .toml is
// read as YAML.
func FormatOf(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return FormatTOML
	}
	return FormatYAML
}

// ValidProviderNames lists known provider names per role. [Validate] warns
// about names not listed here.
var ValidProviderNames = map[string][]string{
	"llm":         {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"stt":         {"deepgram"},
	"transcriber": {"whisper", "whisper-native", "openai"},
}

// Default values applied by [ApplyDefaults].
const (
	DefaultListenAddr  = ":8080"
	DefaultCachePath   = "eclectech.db"
	DefaultServiceName = "eclectech"
)

// Load reads and validates the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	cfg, err := LoadFromReader(bytes.NewReader(data), FormatOf(path))
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a config in the given format, fills in defaults
// and validates the result. Unknown keys are an error in both formats.
func LoadFromReader(r io.Reader, format Format) (*Config, error) {
	cfg := &Config{}
	switch format {
	case FormatTOML:
		md, err := toml.NewDecoder(r).Decode(cfg)
		if err != nil {
			return nil, fmt.Errorf("config: decode toml: %w", err)
		}
		if und := md.Undecoded(); len(und) > 0 {
			keys := make([]string, len(und))
			for i, k := range und {
				keys[i] = k.String()
			}
			return nil, fmt.Errorf("config: decode toml: unknown keys: %s", strings.Join(keys, ", "))
		}
	case FormatYAML, "":
		dec := yaml.NewDecoder(r)
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("config: decode yaml: %w", err)
		}
	default:
		return nil, fmt.Errorf("config: unsupported format %q", format)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills every unset field that has a default.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Rewrite.MinCacheLength == 0 {
		cfg.Rewrite.MinCacheLength = rewrite.DefaultMinLength
	}
	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = CacheSQLite
	}
	if cfg.Cache.Backend == CacheSQLite && cfg.Cache.Path == "" {
		cfg.Cache.Path = DefaultCachePath
	}
	if cfg.Captions.Window == 0 {
		cfg.Captions.Window = captions.DefaultWindow
	}
	if cfg.Captions.MinSegmentBytes == 0 {
		cfg.Captions.MinSegmentBytes = captions.DefaultMinSegmentBytes
	}
	if cfg.Captions.RestartDelay == 0 {
		cfg.Captions.RestartDelay = captions.DefaultRestartDelay
	}
	if cfg.Captions.HistorySize == 0 {
		cfg.Captions.HistorySize = captions.DefaultHistorySize
	}
	if cfg.Captions.Mode == "" {
		cfg.Captions.Mode = CaptionAuto
	}
	if cfg.Events.AMQPURL != "" && cfg.Events.Exchange == "" {
		cfg.Events.Exchange = events.DefaultExchange
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = DefaultServiceName
	}
}

// Validate checks that cfg is coherent. It returns a joined error listing
// every failure found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	validateProviderName("llm", cfg.Providers.LLM.Name)
	for i, fb := range cfg.Providers.LLMFallbacks {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("providers.llm_fallbacks[%d].name is required", i))
		}
		validateProviderName("llm", fb.Name)
	}
	if len(cfg.Providers.LLMFallbacks) > 0 && cfg.Providers.LLM.Name == "" {
		errs = append(errs, errors.New("providers.llm_fallbacks requires providers.llm"))
	}
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("transcriber", cfg.Providers.Transcriber.Name)
	if cfg.Providers.LLM.Name == "" {
		slog.Warn("no LLM provider configured; rewrite features will fail")
	}

	for key := range cfg.Rewrite.Instructions {
		f, ok := feature.Parse(key)
		if !ok || !f.Rewrites() {
			errs = append(errs, fmt.Errorf("rewrite.instructions: %q is not a rewrite feature", key))
		}
	}
	seen := map[feature.Feature]bool{}
	for i, name := range cfg.Rewrite.Order {
		f, ok := feature.Parse(name)
		if !ok || !f.Rewrites() {
			errs = append(errs, fmt.Errorf("rewrite.order[%d]: %q is not a rewrite feature", i, name))
			continue
		}
		if seen[f] {
			errs = append(errs, fmt.Errorf("rewrite.order[%d]: duplicate %q", i, name))
		}
		seen[f] = true
	}
	if cfg.Rewrite.MinCacheLength < 0 {
		errs = append(errs, fmt.Errorf("rewrite.min_cache_length %d must not be negative", cfg.Rewrite.MinCacheLength))
	}
	if cfg.Rewrite.RunTimeout < 0 {
		errs = append(errs, fmt.Errorf("rewrite.run_timeout %s must not be negative", cfg.Rewrite.RunTimeout))
	}

	if cfg.Cache.Backend != "" && !cfg.Cache.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("cache.backend %q is invalid; valid values: sqlite, postgres, memory", cfg.Cache.Backend))
	}
	if cfg.Cache.Backend == CachePostgres && cfg.Cache.PostgresDSN == "" {
		errs = append(errs, errors.New("cache.postgres_dsn is required when cache.backend is postgres"))
	}

	if cfg.Captions.Mode != "" && !cfg.Captions.Mode.IsValid() {
		errs = append(errs, fmt.Errorf("captions.mode %q is invalid; valid values: auto, streaming, segment", cfg.Captions.Mode))
	}
	if cfg.Captions.Window < 0 || cfg.Captions.RestartDelay < 0 {
		errs = append(errs, errors.New("captions.window and captions.restart_delay must not be negative"))
	}
	if cfg.Captions.MinSegmentBytes < 0 || cfg.Captions.HistorySize < 0 {
		errs = append(errs, errors.New("captions.min_segment_bytes and captions.history_size must not be negative"))
	}
	if cfg.Captions.Mode == CaptionStreaming && cfg.Providers.STT.Name == "" {
		errs = append(errs, errors.New("captions.mode streaming requires providers.stt"))
	}
	if cfg.Captions.Mode == CaptionSegment && cfg.Providers.Transcriber.Name == "" {
		errs = append(errs, errors.New("captions.mode segment requires providers.transcriber"))
	}

	if raw := cfg.Events.AMQPURL; raw != "" {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "amqp" && u.Scheme != "amqps") {
			errs = append(errs, fmt.Errorf("events.amqp_url %q must be an amqp:// or amqps:// URL", redact(raw)))
		}
	}

	return errors.Join(errs...)
}

// validateProviderName warns when name is set but not a known provider.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok || slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}

// redact strips credentials from a URL for error messages.
func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	return u.Redacted()
}

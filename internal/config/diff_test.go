package config_test

import (
	"slices"
	"testing"
	"time"

	"github.com/MrWong99/eclectech/internal/config"
)

func baseConfig() *config.Config {
	cfg := &config.Config{
		Providers: config.ProvidersConfig{LLM: config.ProviderEntry{Name: "openai", Model: "gpt-4o"}},
		Rewrite: config.RewriteConfig{
			Instructions: map[string]string{"large-font": "Bigger:"},
			Order:        []string{"high-contrast", "large-font", "screen-reader"},
		},
	}
	config.ApplyDefaults(cfg)
	return cfg
}

func TestDiff(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		mutate      func(*config.Config)
		check       func(config.ConfigDiff) bool
		wantRestart []string
	}{
		{
			name:   "no changes",
			mutate: func(*config.Config) {},
			check:  func(d config.ConfigDiff) bool { return d == config.ConfigDiff{} },
		},
		{
			name:   "log level",
			mutate: func(c *config.Config) { c.Server.LogLevel = config.LogDebug },
			check: func(d config.ConfigDiff) bool {
				return d.LogLevelChanged && d.NewLogLevel == config.LogDebug && !d.ServerChanged
			},
		},
		{
			name:   "instruction text",
			mutate: func(c *config.Config) { c.Rewrite.Instructions = map[string]string{"large-font": "Huge:"} },
			check:  func(d config.ConfigDiff) bool { return d.InstructionsChanged },
		},
		{
			name:   "system prompt",
			mutate: func(c *config.Config) { c.Rewrite.SystemPrompt = "Only HTML." },
			check:  func(d config.ConfigDiff) bool { return d.InstructionsChanged },
		},
		{
			name:   "order",
			mutate: func(c *config.Config) { c.Rewrite.Order = []string{"large-font", "high-contrast", "screen-reader"} },
			check:  func(d config.ConfigDiff) bool { return d.InstructionsChanged },
		},
		{
			name:   "captions",
			mutate: func(c *config.Config) { c.Captions.Window = 5 * time.Second },
			check:  func(d config.ConfigDiff) bool { return d.CaptionsChanged && !d.InstructionsChanged },
		},
		{
			name:        "provider",
			mutate:      func(c *config.Config) { c.Providers.LLM.Model = "gpt-4o-mini" },
			check:       func(d config.ConfigDiff) bool { return d.ProvidersChanged },
			wantRestart: []string{"providers"},
		},
		{
			name:        "listen address",
			mutate:      func(c *config.Config) { c.Server.ListenAddr = ":9999" },
			check:       func(d config.ConfigDiff) bool { return d.ServerChanged },
			wantRestart: []string{"server"},
		},
		{
			name: "cache and events",
			mutate: func(c *config.Config) {
				c.Rewrite.MinCacheLength = 500
				c.Events.AMQPURL = "amqp://localhost"
			},
			check:       func(d config.ConfigDiff) bool { return d.CacheChanged && d.EventsChanged },
			wantRestart: []string{"cache", "events"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			old, new := baseConfig(), baseConfig()
			tc.mutate(new)
			d := config.Diff(old, new)
			if !tc.check(d) {
				t.Errorf("diff = %+v", d)
			}
			if got := d.RestartRequired(); !slices.Equal(got, tc.wantRestart) {
				t.Errorf("RestartRequired = %v, want %v", got, tc.wantRestart)
			}
		})
	}
}

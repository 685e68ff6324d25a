package config

import (
	"maps"
	"reflect"
	"slices"
)

// ConfigDiff describes what changed between two configs. Rewrite, captions
// and log level changes are applied live; everything listed by
// [ConfigDiff.RestartRequired] needs a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// InstructionsChanged is set when the rewrite prompts or their order
	// changed. Cached documents were produced with the old prompts and must
	// be purged.
	InstructionsChanged bool

	// CaptionsChanged applies to caption runs started after the reload.
	CaptionsChanged bool

	ServerChanged    bool
	ProvidersChanged bool
	CacheChanged     bool
	EventsChanged    bool
}

// Diff compares old and new.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	d.InstructionsChanged = !maps.Equal(old.Rewrite.Instructions, new.Rewrite.Instructions) ||
		old.Rewrite.SystemPrompt != new.Rewrite.SystemPrompt ||
		!slices.Equal(old.Rewrite.Order, new.Rewrite.Order)

	d.CaptionsChanged = old.Captions != new.Captions

	oldServer, newServer := old.Server, new.Server
	oldServer.LogLevel, newServer.LogLevel = "", ""
	d.ServerChanged = !reflect.DeepEqual(oldServer, newServer)
	d.ProvidersChanged = !reflect.DeepEqual(old.Providers, new.Providers)
	d.CacheChanged = old.Cache != new.Cache ||
		old.Rewrite.MinCacheLength != new.Rewrite.MinCacheLength
	d.EventsChanged = old.Events != new.Events

	return d
}

// RestartRequired names the sections whose changes are not applied live.
func (d ConfigDiff) RestartRequired() []string {
	var out []string
	if d.ServerChanged {
		out = append(out, "server")
	}
	if d.ProvidersChanged {
		out = append(out, "providers")
	}
	if d.CacheChanged {
		out = append(out, "cache")
	}
	if d.EventsChanged {
		out = append(out, "events")
	}
	return out
}

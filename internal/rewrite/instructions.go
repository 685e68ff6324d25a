// Package rewrite turns a page snapshot and a feature set into rewritten
// markup.
//
// A [Coordinator] chains one [Service] call per rewrite feature, feeding each
// output into the next call. A [Cache] keeps finished rewrites addressed by
// feature fingerprint so that later page loads can skip the service entirely.
package rewrite

import (
	"maps"

	"github.com/MrWong99/eclectech/internal/feature"
)

// DefaultSystemPrompt constrains every rewrite call.
const DefaultSystemPrompt = "Output only html. Do not change anything about the <eclec-tech /> tag."

// Instructions maps each rewrite feature to the prompt sent with the markup.
type Instructions map[feature.Feature]string

// DefaultInstructions returns a fresh copy of the built-in prompts.
func DefaultInstructions() Instructions {
	return Instructions{
		feature.LargeFont:    "Increase the font size of all text in this html to be more accessible for readers who require larger fonts:",
		feature.HighContrast: "Change the colors of this HTML page to be high contrast:",
		feature.ScreenReader: "Update the attributes of this HTML to optimize for screen reader support. Do not change any visual content:",
	}
}

// WithOverrides returns a copy of in with the non-empty entries of overrides
// applied. Keys may be feature identifiers or attribute names; unknown keys
// are returned in unknown.
func (in Instructions) WithOverrides(overrides map[string]string) (out Instructions, unknown []string) {
	out = maps.Clone(in)
	if out == nil {
		out = Instructions{}
	}
	for k, v := range overrides {
		f, ok := feature.Parse(k)
		if !ok || !f.Rewrites() {
			unknown = append(unknown, k)
			continue
		}
		if v != "" {
			out[f] = v
		}
	}
	return out, unknown
}

// For returns the instruction for f.
func (in Instructions) For(f feature.Feature) (string, bool) {
	s, ok := in[f]
	return s, ok && s != ""
}

// Equal reports whether in and o carry the same prompts.
func (in Instructions) Equal(o Instructions) bool {
	return maps.Equal(in, o)
}

// Package feature models the accessibility features a page can request and the
// deterministic fingerprint used to address cached rewrites.
//
// A [Set] is unordered: two sets holding the same features always produce the
// same [Set.Fingerprint] regardless of the order in which they were built.
package feature

import (
	"slices"
	"strings"
)

// Feature identifies a single accessibility enhancement.
type Feature string

const (
	// LargeFont scales up the text of the page.
	LargeFont Feature = "large-font"

	// HighContrast recolours the page for high contrast.
	HighContrast Feature = "high-contrast"

	// ScreenReader adds semantic attributes for assistive technology.
	ScreenReader Feature = "screen-reader"

	// LiveCaptions overlays captions on the page's video. It never changes the
	// document markup.
	LiveCaptions Feature = "live-captions"
)

// DefaultOrder is the canonical order in which rewrite features are applied.
var DefaultOrder = []Feature{HighContrast, LargeFont, ScreenReader}

// Known lists every recognised feature.
var Known = []Feature{HighContrast, LargeFont, ScreenReader, LiveCaptions}

// IsValid reports whether f is a recognised feature.
func (f Feature) IsValid() bool {
	return slices.Contains(Known, f)
}

// Rewrites reports whether f is applied by rewriting the document.
func (f Feature) Rewrites() bool {
	return f.IsValid() && f != LiveCaptions
}

// fingerprintSep separates identifiers in a fingerprint. It cannot appear in
// a feature identifier.
const fingerprintSep = "|"

// Set is an unordered collection of unique features. The zero value is an
// empty set ready to use; Add allocates lazily.
type Set struct {
	m map[Feature]struct{}
}

// NewSet returns a set holding fs. Duplicates collapse.
func NewSet(fs ...Feature) Set {
	s := Set{}
	for _, f := range fs {
		s.Add(f)
	}
	return s
}

// Add inserts f. Invalid features are ignored.
func (s *Set) Add(f Feature) {
	if !f.IsValid() {
		return
	}
	if s.m == nil {
		s.m = make(map[Feature]struct{}, len(Known))
	}
	s.m[f] = struct{}{}
}

// Remove deletes f if present.
func (s *Set) Remove(f Feature) {
	delete(s.m, f)
}

// Has reports whether f is in the set.
func (s Set) Has(f Feature) bool {
	_, ok := s.m[f]
	return ok
}

// Len returns the number of features in the set.
func (s Set) Len() int { return len(s.m) }

// IsEmpty reports whether the set holds no features.
func (s Set) IsEmpty() bool { return len(s.m) == 0 }

// Sorted returns the features in lexical order.
func (s Set) Sorted() []Feature {
	out := make([]Feature, 0, len(s.m))
	for f := range s.m {
		out = append(out, f)
	}
	slices.Sort(out)
	return out
}

// Ordered returns the members of s that appear in order, in that order.
// Members missing from order are appended in lexical order so that a partial
// order never drops a feature.
func (s Set) Ordered(order []Feature) []Feature {
	out := make([]Feature, 0, len(s.m))
	seen := make(map[Feature]bool, len(s.m))
	for _, f := range order {
		if s.Has(f) && !seen[f] {
			out = append(out, f)
			seen[f] = true
		}
	}
	for _, f := range s.Sorted() {
		if !seen[f] {
			out = append(out, f)
		}
	}
	return out
}

// RewriteSet returns the subset of s that is applied by rewriting markup.
func (s Set) RewriteSet() Set {
	out := Set{}
	for f := range s.m {
		if f.Rewrites() {
			out.Add(f)
		}
	}
	return out
}

// Clone returns an independent copy of s.
func (s Set) Clone() Set {
	out := Set{}
	for f := range s.m {
		out.Add(f)
	}
	return out
}

// Equal reports whether s and o hold the same features.
func (s Set) Equal(o Set) bool {
	if s.Len() != o.Len() {
		return false
	}
	for f := range s.m {
		if !o.Has(f) {
			return false
		}
	}
	return true
}

// Fingerprint returns the sorted identifiers joined by "|". The empty set has
// the empty fingerprint.
func (s Set) Fingerprint() string {
	sorted := s.Sorted()
	parts := make([]string, len(sorted))
	for i, f := range sorted {
		parts[i] = string(f)
	}
	return strings.Join(parts, fingerprintSep)
}

// String implements fmt.Stringer.
func (s Set) String() string {
	return "{" + strings.ReplaceAll(s.Fingerprint(), fingerprintSep, ", ") + "}"
}

// ParseFingerprint is the inverse of [Set.Fingerprint]. Unknown identifiers
// are dropped.
func ParseFingerprint(fp string) Set {
	s := Set{}
	if fp == "" {
		return s
	}
	for _, part := range strings.Split(fp, fingerprintSep) {
		if f, ok := Parse(part); ok {
			s.Add(f)
		}
	}
	return s
}

package feature

import "strings"

// attributes maps element attribute names to features.
var attributes = map[string]Feature{
	"enable-large-font":     LargeFont,
	"enable-high-contrast":  HighContrast,
	"enable-screen-reader":  ScreenReader,
	"enable-live-subtitles": LiveCaptions,
}

// Attribute returns the element attribute that toggles f, or "" when f is
// not a known feature.
func Attribute(f Feature) string {
	for name, af := range attributes {
		if af == f {
			return name
		}
	}
	return ""
}

// Parse resolves s to a feature. Both feature identifiers ("large-font") and
// attribute names ("enable-large-font") are accepted, case-insensitively.
func Parse(s string) (Feature, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if f := Feature(s); f.IsValid() {
		return f, true
	}
	if f, ok := attributes[s]; ok {
		return f, true
	}
	return "", false
}

// FromAttributes builds the set of features switched on by attrs. A
// feature attribute is on whenever it is present, whatever its value.
func FromAttributes(attrs map[string]string) Set {
	s := Set{}
	for name := range attrs {
		if f, ok := attributes[strings.ToLower(name)]; ok {
			s.Add(f)
		}
	}
	return s
}

// ToAttributes renders s as element attributes, the inverse of
// [FromAttributes].
func ToAttributes(s Set) map[string]string {
	out := make(map[string]string, s.Len())
	for _, f := range s.Sorted() {
		out[Attribute(f)] = "true"
	}
	return out
}

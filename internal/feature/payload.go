package feature

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
)

// ConfigParam is the query parameter carrying the one-time configuration
// payload: a URL-encoded JSON array of feature identifiers or attribute names.
const ConfigParam = "config"

// ErrNoPayload is returned by [ParseConfigURL] when the URL carries no
// configuration payload.
var ErrNoPayload = errors.New("feature: no config payload")

// Payload is the decoded content of a configuration URL.
type Payload struct {
	// Site is the origin of the page that opened the configuration dialog.
	Site string

	// Path is the path and query of that page.
	Path string

	// Features replaces the page's feature set wholesale. It may be empty,
	// which switches every feature off.
	Features Set
}

// ParseConfigURL extracts the one-time configuration payload from raw.
// It returns [ErrNoPayload] when the config parameter is absent. Entries that
// are not recognised features are skipped.
func ParseConfigURL(raw string) (Payload, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Payload{}, fmt.Errorf("feature: parse url: %w", err)
	}
	q := u.Query()
	if !q.Has(ConfigParam) {
		return Payload{}, ErrNoPayload
	}

	p := Payload{Site: q.Get("site"), Path: q.Get("path")}

	data := q.Get(ConfigParam)
	// Some links encode the payload twice.
	if !strings.HasPrefix(strings.TrimSpace(data), "[") {
		if dec, err := url.QueryUnescape(data); err == nil {
			data = dec
		}
	}
	if strings.TrimSpace(data) == "" {
		return p, nil
	}

	var names []string
	if err := json.Unmarshal([]byte(data), &names); err != nil {
		return Payload{}, fmt.Errorf("feature: decode config payload: %w", err)
	}
	for _, n := range names {
		f, ok := Parse(n)
		if !ok {
			slog.Debug("ignoring unknown feature in config payload", "name", n)
			continue
		}
		p.Features.Add(f)
	}
	return p, nil
}

// ConfigURL builds the link to the configuration dialog for a page at
// site+path currently running with s. The dialog redirects back with the
// chosen features in the config parameter.
func ConfigURL(base, site, path string, s Set) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("feature: parse config base url: %w", err)
	}
	names := make([]string, 0, s.Len())
	for _, f := range s.Sorted() {
		names = append(names, Attribute(f))
	}
	data, err := json.Marshal(names)
	if err != nil {
		return "", fmt.Errorf("feature: encode config payload: %w", err)
	}
	q := u.Query()
	q.Set("site", site)
	q.Set("path", path)
	q.Set(ConfigParam, string(data))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

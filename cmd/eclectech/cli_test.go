package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"

	"github.com/MrWong99/eclectech/internal/app"
	"github.com/MrWong99/eclectech/internal/config"
	"github.com/MrWong99/eclectech/internal/feature"
	"github.com/MrWong99/eclectech/internal/rewrite"
	"github.com/MrWong99/eclectech/pkg/provider/llm"
	"github.com/MrWong99/eclectech/pkg/provider/llm/mock"
)

var rewritten = "<html><body class=\"contrast\">" + strings.Repeat("<p>accessible</p>", 10) + "</body></html>"

type result struct {
	code   int
	stdout string
	stderr string
}

func runCLI(t *testing.T, stdin string, reg func() *config.Registry, args ...string) result {
	t.Helper()
	if reg == nil {
		reg = config.NewRegistry
	}
	var stdout, stderr bytes.Buffer
	code := run(append([]string{"eclectech"}, args...), env{
		stdin:    strings.NewReader(stdin),
		stdout:   &stdout,
		stderr:   &stderr,
		registry: reg,
	})
	return result{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

// writeConfig writes a config using a SQLite cache inside a temp dir and
// returns its path.
func writeConfig(t *testing.T, extra string) (path, dbPath string) {
	t.Helper()
	dir := t.TempDir()
	dbPath = filepath.Join(dir, "cache.db")
	path = filepath.Join(dir, "config.yaml")
	body := "server:\n  log_level: error\ncache:\n  backend: sqlite\n  path: " + dbPath + "\n" + extra
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path, dbPath
}

func seedCache(t *testing.T, dbPath string, entries map[string]string) {
	t.Helper()
	ctx := context.Background()
	kv, err := app.OpenStore(ctx, config.CacheConfig{Backend: config.CacheSQLite, Path: dbPath})
	require.NoError(t, err)
	defer kv.Close()
	cache := rewrite.NewCache(kv)
	for fp, markup := range entries {
		require.NoError(t, cache.Put(ctx, fp, markup))
	}
}

func mockRegistry(p *mock.Provider) func() *config.Registry {
	return func() *config.Registry {
		reg := config.NewRegistry()
		reg.RegisterLLM("mock", func(config.ProviderEntry) (llm.Provider, error) { return p, nil })
		return reg
	}
}

func TestCache_ListGetDeletePurge(t *testing.T) {
	cfgPath, dbPath := writeConfig(t, "")
	both := feature.NewSet(feature.HighContrast, feature.LargeFont).Fingerprint()
	one := feature.NewSet(feature.ScreenReader).Fingerprint()
	seedCache(t, dbPath, map[string]string{both: rewritten, one: rewritten})

	res := runCLI(t, "", nil, "--config", cfgPath, "cache", "list")
	require.Equal(t, 0, res.code, res.stderr)
	require.Contains(t, res.stdout, "FINGERPRINT")
	require.Contains(t, res.stdout, both)
	require.Contains(t, res.stdout, one)

	// Any spelling of the feature set resolves to the canonical fingerprint.
	res = runCLI(t, "", nil, "--config", cfgPath, "cache", "get", "large-font|high-contrast|live-captions")
	require.Equal(t, 0, res.code, res.stderr)
	require.Equal(t, rewritten, res.stdout)

	res = runCLI(t, "", nil, "--config", cfgPath, "cache", "delete", one)
	require.Equal(t, 0, res.code, res.stderr)

	res = runCLI(t, "", nil, "--config", cfgPath, "cache", "get", one)
	require.Equal(t, 1, res.code)
	require.Contains(t, res.stderr, "no cached rewrite")

	res = runCLI(t, "", nil, "--config", cfgPath, "cache", "purge")
	require.Equal(t, 0, res.code, res.stderr)
	require.Equal(t, "purged 1 cached rewrite\n", res.stdout)

	res = runCLI(t, "", nil, "--config", cfgPath, "cache", "list")
	require.Equal(t, 0, res.code, res.stderr)
	require.Equal(t, "no cached rewrites\n", res.stdout)
}

func TestCache_GetRejectsNonRewriteFingerprint(t *testing.T) {
	cfgPath, _ := writeConfig(t, "")
	res := runCLI(t, "", nil, "--config", cfgPath, "cache", "get", "live-captions")
	require.Equal(t, 1, res.code)
	require.Contains(t, res.stderr, "names no rewrite feature")
}

func TestRewrite_WritesAndReusesCache(t *testing.T) {
	cfgPath, _ := writeConfig(t, "providers:\n  llm:\n    name: mock\n")
	input := filepath.Join(t.TempDir(), "page.html")
	require.NoError(t, os.WriteFile(input, []byte("<html><body><p>hi</p></body></html>"), 0o600))

	ok := &mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: rewritten}}
	res := runCLI(t, "", mockRegistry(ok), "--config", cfgPath, "rewrite", "--file", input, "--feature", "high-contrast")
	require.Equal(t, 0, res.code, res.stderr)
	require.Equal(t, rewritten, res.stdout)
	calls := ok.Calls()
	require.Len(t, calls, 1)
	require.Contains(t, calls[0].Req.Messages[0].Content, "<p>hi</p>")

	// A second run with --reuse never reaches the provider.
	failing := &mock.Provider{CompleteErr: errors.New("provider down")}
	res = runCLI(t, "", mockRegistry(failing), "--config", cfgPath, "rewrite", "--file", input, "--feature", "high-contrast", "--reuse")
	require.Equal(t, 0, res.code, res.stderr)
	require.Equal(t, rewritten, res.stdout)
	require.Empty(t, failing.Calls())

	// Without --reuse the provider is asked again.
	res = runCLI(t, "", mockRegistry(failing), "--config", cfgPath, "rewrite", "--file", input, "--feature", "high-contrast")
	require.Equal(t, 1, res.code)
	require.Contains(t, res.stderr, "provider down")
}

func TestRewrite_NoRewriteFeaturesPassesThrough(t *testing.T) {
	const page = "<html><body>plain</body></html>"
	res := runCLI(t, page, nil, "rewrite", "--feature", "live-captions")
	require.Equal(t, 0, res.code, res.stderr)
	require.Equal(t, page, res.stdout)
}

func TestRewrite_Errors(t *testing.T) {
	cfgPath, _ := writeConfig(t, "")
	tests := []struct {
		name  string
		stdin string
		args  []string
		want  string
	}{
		{"unknown feature", "<p>x</p>", []string{"rewrite", "--feature", "sepia"}, `unknown feature "sepia"`},
		{"empty input", "  \n", []string{"rewrite", "--feature", "large-font"}, "no markup given"},
		{"missing file", "", []string{"rewrite", "--file", "/nonexistent/page.html"}, "read markup"},
		{"no llm", "<p>x</p>", []string{"rewrite", "--feature", "large-font"}, app.ErrNoLLM.Error()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := runCLI(t, tt.stdin, nil, append([]string{"--config", cfgPath}, tt.args...)...)
			require.Equal(t, 1, res.code)
			require.Contains(t, res.stderr, tt.want)
		})
	}
}

func TestRun_ConfigErrors(t *testing.T) {
	res := runCLI(t, "", nil, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "cache", "list")
	require.Equal(t, 1, res.code)
	require.Contains(t, res.stderr, "eclectech: config: open")

	cfgPath, _ := writeConfig(t, "")
	res = runCLI(t, "", nil, "--config", cfgPath, "--log-level", "loud", "cache", "list")
	require.Equal(t, 1, res.code)
	require.Contains(t, res.stderr, "--log-level")

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("cache:\n  backend: floppy\n"), 0o600))
	res = runCLI(t, "", nil, "--config", bad, "cache", "list")
	require.Equal(t, 1, res.code)
	require.Contains(t, res.stderr, "cache.backend")
}

func TestPrintStartupSummary(t *testing.T) {
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Providers.LLM = config.ProviderEntry{Name: "gemini", Model: "gemini-2.0-flash-with-a-very-long-suffix"}

	var buf bytes.Buffer
	printStartupSummary(&buf, cfg)

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	width := utf8.RuneCountInString(lines[0])
	for _, l := range lines {
		require.Equal(t, width, utf8.RuneCountInString(l), "misaligned line %q", l)
	}
	require.Contains(t, buf.String(), "gemini / gemini-2.0")
	require.Contains(t, buf.String(), "(not configured)")
	require.Contains(t, buf.String(), "(disabled)")
}

func TestRegisterBuiltinProviders(t *testing.T) {
	reg := newRegistry()

	tr, err := reg.CreateTranscriber(config.ProviderEntry{Name: "whisper", BaseURL: "http://localhost:9000"})
	require.NoError(t, err)
	require.NotNil(t, tr)

	_, err = reg.CreateSTT(config.ProviderEntry{Name: "deepgram"})
	require.Error(t, err, "deepgram requires an API key")

	_, err = reg.CreateLLM(config.ProviderEntry{Name: "no-such-llm"})
	require.Error(t, err)
}

func TestOptHelpers(t *testing.T) {
	opts := map[string]any{"s": "x", "i": 3, "f": float64(4), "d": "90s", "bad": 1}
	require.Equal(t, "x", optString(opts, "s"))
	require.Empty(t, optString(opts, "bad"))
	require.Empty(t, optString(nil, "s"))
	require.Equal(t, 3, optInt(opts, "i"))
	require.Equal(t, 4, optInt(opts, "f"))
	require.Zero(t, optInt(opts, "s"))
	require.Equal(t, int64(90e9), int64(optDuration(opts, "d")))
	require.Zero(t, optDuration(opts, "s"))
}

package deepgram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/eclectech/pkg/provider/stt"
)

// ---- URL / query-param tests ----

func TestBuildURL_Defaults(t *testing.T) {
	p, err := New("test-key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rawURL, err := p.buildURL(stt.StreamConfig{SampleRate: 16000, Channels: 1, Language: "en"})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("parse URL: %v", err)
	}
	q := u.Query()

	assertEqual(t, "model", "nova-3", q.Get("model"))
	assertEqual(t, "language", "en", q.Get("language"))
	assertEqual(t, "interim_results", "true", q.Get("interim_results"))
	assertEqual(t, "encoding", "linear16", q.Get("encoding"))
	assertEqual(t, "sample_rate", "16000", q.Get("sample_rate"))
	assertEqual(t, "channels", "1", q.Get("channels"))
}

func TestBuildURL_Options(t *testing.T) {
	p, err := New("key", WithModel("base"), WithLanguage("de-DE"), WithSampleRate(48000))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rawURL, err := p.buildURL(stt.StreamConfig{})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}

	q, _ := url.Parse(rawURL)
	assertEqual(t, "model", "base", q.Query().Get("model"))
	assertEqual(t, "language", "de-DE", q.Query().Get("language"))
	assertEqual(t, "sample_rate", "48000", q.Query().Get("sample_rate"))

	// cfg.Language wins over the provider default.
	rawURL, _ = p.buildURL(stt.StreamConfig{Language: "fr-FR"})
	q, _ = url.Parse(rawURL)
	assertEqual(t, "language", "fr-FR", q.Query().Get("language"))
}

// ---- JSON parsing tests ----

func TestParseDeepgramResponse(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		ok    bool
		final bool
		text  string
	}{
		{
			name:  "final",
			raw:   `{"type":"Results","is_final":true,"duration":1.5,"channel":{"alternatives":[{"transcript":"Hello world","confidence":0.95}]}}`,
			ok:    true,
			final: true,
			text:  "Hello world",
		},
		{
			name: "partial",
			raw:  `{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"Hello","confidence":0.7}]}}`,
			ok:   true,
			text: "Hello",
		},
		{name: "metadata", raw: `{"type":"Metadata","request_id":"abc"}`},
		{name: "empty alternatives", raw: `{"type":"Results","is_final":true,"channel":{"alternatives":[]}}`},
		{name: "empty transcript", raw: `{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":""}]}}`},
		{name: "invalid json", raw: `{invalid`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tr, ok := parseDeepgramResponse([]byte(tc.raw))
			if ok != tc.ok {
				t.Fatalf("ok = %v, want %v", ok, tc.ok)
			}
			if !ok {
				return
			}
			if tr.IsFinal != tc.final {
				t.Errorf("IsFinal = %v, want %v", tr.IsFinal, tc.final)
			}
			assertEqual(t, "text", tc.text, tr.Text)
		})
	}
}

func TestParseDeepgramResponse_Duration(t *testing.T) {
	tr, _ := parseDeepgramResponse([]byte(`{"type":"Results","is_final":true,"duration":1.5,"channel":{"alternatives":[{"transcript":"x"}]}}`))
	if tr.Duration != 1500*time.Millisecond {
		t.Errorf("Duration = %v", tr.Duration)
	}
}

// ---- Constructor tests ----

func TestNew_EmptyAPIKey(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Error("expected error for empty API key")
	}
}

// ---- Session tests against a local websocket server ----

func newTestServer(t *testing.T, handle func(ctx context.Context, c *websocket.Conn)) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Token key" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		handle(r.Context(), c)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestSession_ReceivesResultsAndAudio(t *testing.T) {
	gotAudio := make(chan []byte, 1)
	endpoint := newTestServer(t, func(ctx context.Context, c *websocket.Conn) {
		defer c.CloseNow()
		typ, data, err := c.Read(ctx)
		if err != nil || typ != websocket.MessageBinary {
			return
		}
		gotAudio <- data
		_ = c.Write(ctx, websocket.MessageText, []byte(`{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"hel"}]}}`))
		_ = c.Write(ctx, websocket.MessageText, []byte(`{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"hello"}]}}`))
		// Wait for CloseStream.
		_, _, _ = c.Read(ctx)
	})

	p, err := New("key", WithEndpoint(endpoint))
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	h, err := p.StartStream(ctx, stt.StreamConfig{SampleRate: 16000, Channels: 1})
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}
	defer h.Close()

	if err := h.SendAudio([]byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}
	select {
	case a := <-gotAudio:
		if len(a) != 4 {
			t.Errorf("server got %d bytes", len(a))
		}
	case <-ctx.Done():
		t.Fatal("server never received audio")
	}

	select {
	case tr := <-h.Partials():
		assertEqual(t, "partial", "hel", tr.Text)
	case <-ctx.Done():
		t.Fatal("no partial")
	}
	select {
	case tr := <-h.Finals():
		assertEqual(t, "final", "hello", tr.Text)
	case <-ctx.Done():
		t.Fatal("no final")
	}

	if err := h.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if err := h.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if err := h.SendAudio([]byte{1}); err != stt.ErrSessionClosed {
		t.Errorf("SendAudio after close = %v", err)
	}
	if h.Err() != nil {
		t.Errorf("Err after clean close = %v", h.Err())
	}
}

func TestSession_PolicyViolationIsFatal(t *testing.T) {
	endpoint := newTestServer(t, func(ctx context.Context, c *websocket.Conn) {
		c.Close(websocket.StatusPolicyViolation, "bad credentials")
	})

	p, _ := New("key", WithEndpoint(endpoint))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	h, err := p.StartStream(ctx, stt.StreamConfig{})
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}
	defer h.Close()

	for range h.Finals() {
	}
	if !stt.IsFatal(h.Err()) {
		t.Errorf("expected fatal error, got %v", h.Err())
	}
}

func TestStartStream_UnauthorizedIsFatal(t *testing.T) {
	endpoint := newTestServer(t, func(context.Context, *websocket.Conn) {})

	p, _ := New("wrong", WithEndpoint(endpoint))
	_, err := p.StartStream(context.Background(), stt.StreamConfig{})
	if err == nil {
		t.Fatal("expected dial error")
	}
	if !stt.IsFatal(err) {
		t.Errorf("expected fatal error, got %v", err)
	}
}

// ---- helpers ----

func assertEqual(t *testing.T, label, want, got string) {
	t.Helper()
	if want != got {
		t.Errorf("%s: want %q, got %q", label, want, got)
	}
}

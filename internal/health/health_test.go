package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/eclectech/pkg/store/memstore"
	storemock "github.com/MrWong99/eclectech/pkg/store/mock"
)

func readyz(t *testing.T, h *Handler, ctx context.Context) (int, result) {
	t.Helper()
	req := httptest.NewRequest("GET", "/readyz", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	h.Readyz(rec, req)

	var body result
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	return rec.Code, body
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	New().Healthz(rec, httptest.NewRequest("GET", "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestReadyz(t *testing.T) {
	t.Parallel()

	ok := func(context.Context) error { return nil }
	fail := func(msg string) func(context.Context) error {
		return func(context.Context) error { return errors.New(msg) }
	}

	tests := []struct {
		name       string
		checkers   []Checker
		wantStatus int
		wantChecks map[string]string
	}{
		{
			name:       "no checkers",
			wantStatus: http.StatusOK,
		},
		{
			name:       "all pass",
			checkers:   []Checker{{Name: "store", Check: ok}, {Name: "providers", Check: ok}},
			wantStatus: http.StatusOK,
			wantChecks: map[string]string{"store": "ok", "providers": "ok"},
		},
		{
			name:       "one fails",
			checkers:   []Checker{{Name: "store", Check: fail("connection refused")}, {Name: "providers", Check: ok}},
			wantStatus: http.StatusServiceUnavailable,
			wantChecks: map[string]string{"store": "fail: connection refused", "providers": "ok"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			code, body := readyz(t, New(tc.checkers...), context.Background())
			if code != tc.wantStatus {
				t.Errorf("status = %d, want %d", code, tc.wantStatus)
			}
			for k, v := range tc.wantChecks {
				if body.Checks[k] != v {
					t.Errorf("check %s = %q, want %q", k, body.Checks[k], v)
				}
			}
		})
	}
}

func TestReadyz_ChecksRunConcurrently(t *testing.T) {
	t.Parallel()

	slow := func(context.Context) error { time.Sleep(100 * time.Millisecond); return nil }
	h := New(
		Checker{Name: "a", Check: slow},
		Checker{Name: "b", Check: slow},
		Checker{Name: "c", Check: slow},
	)
	start := time.Now()
	code, _ := readyz(t, h, context.Background())
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if d := time.Since(start); d > 250*time.Millisecond {
		t.Errorf("readyz took %v, checks not concurrent", d)
	}
}

func TestReadyz_ContextCancelled(t *testing.T) {
	t.Parallel()

	h := New(Checker{Name: "slow", Check: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if code, _ := readyz(t, h, ctx); code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", code)
	}
}

func TestReadyz_Draining(t *testing.T) {
	t.Parallel()

	h := New()
	h.SetDraining(true)
	code, body := readyz(t, h, context.Background())
	if code != http.StatusServiceUnavailable || body.Status != "fail" {
		t.Errorf("draining readyz = %d %+v", code, body)
	}
	h.SetDraining(false)
	if code, _ := readyz(t, h, context.Background()); code != http.StatusOK {
		t.Errorf("status after draining = %d", code)
	}
}

func TestPing(t *testing.T) {
	t.Parallel()

	broken := &storemock.KV{PingErr: errors.New("database is locked")}
	h := New(Ping("cache", memstore.New()), Ping("events", broken))
	code, body := readyz(t, h, context.Background())
	if code != http.StatusServiceUnavailable {
		t.Errorf("status = %d", code)
	}
	if body.Checks["cache"] != "ok" {
		t.Errorf("cache = %q", body.Checks["cache"])
	}
	if !strings.Contains(body.Checks["events"], "database is locked") {
		t.Errorf("events = %q", body.Checks["events"])
	}
}

func TestConfigured(t *testing.T) {
	t.Parallel()

	c := Configured("providers", map[string]bool{"llm": true, "transcriber": false})
	err := c.Check(context.Background())
	if err == nil || !strings.Contains(err.Error(), "transcriber not configured") {
		t.Errorf("err = %v", err)
	}
	c = Configured("providers", map[string]bool{"llm": true})
	if err := c.Check(context.Background()); err != nil {
		t.Errorf("err = %v", err)
	}
}

func TestRegister(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	New().Register(mux)
	for _, path := range []string{"/healthz", "/readyz"} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("%s status = %d", path, rec.Code)
		}
	}
}

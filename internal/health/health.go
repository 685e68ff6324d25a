// Package health serves the liveness and readiness probes of the service.
//
// /healthz answers 200 while the process can serve HTTP. /readyz runs every
// registered [Checker] concurrently and answers 200 only when all pass and
// the server is not draining. Bodies are JSON objects with a "status" field
// ("ok" or "fail") and a "checks" map of per-check results.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// checkTimeout bounds a single readiness check.
const checkTimeout = 5 * time.Second

// ErrDraining is reported by /readyz while the server shuts down.
var ErrDraining = errors.New("server is draining")

// Checker is a named readiness check. Check returns nil when the dependency
// is usable.
type Checker struct {
	Name  string
	Check func(ctx context.Context) error
}

// Pinger is anything with a liveness ping, such as a store.KV.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Ping returns a checker that pings p.
func Ping(name string, p Pinger) Checker {
	return Checker{Name: name, Check: p.Ping}
}

// Configured returns a checker that fails when any of the named components
// is missing. present maps component names to whether they were built.
func Configured(name string, present map[string]bool) Checker {
	return Checker{Name: name, Check: func(context.Context) error {
		var missing []error
		for comp, ok := range present {
			if !ok {
				missing = append(missing, fmt.Errorf("%s not configured", comp))
			}
		}
		return errors.Join(missing...)
	}}
}

type result struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves /healthz and /readyz. The checker list is fixed at
// construction.
type Handler struct {
	checkers []Checker
	draining atomic.Bool
}

// New returns a handler evaluating checkers on each /readyz request.
func New(checkers ...Checker) *Handler {
	return &Handler{checkers: append([]Checker(nil), checkers...)}
}

// SetDraining makes /readyz fail so that load balancers stop routing new
// pages here while open connections finish.
func (h *Handler) SetDraining(v bool) { h.draining.Store(v) }

// Healthz always answers 200.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, result{Status: "ok"})
}

// Readyz answers 200 when every checker passes within [checkTimeout].
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	errs := make([]error, len(h.checkers))
	var wg sync.WaitGroup
	for i, c := range h.checkers {
		wg.Go(func() {
			ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
			defer cancel()
			errs[i] = c.Check(ctx)
		})
	}
	wg.Wait()

	res := result{Status: "ok", Checks: make(map[string]string, len(h.checkers)+1)}
	status := http.StatusOK
	for i, c := range h.checkers {
		if errs[i] != nil {
			res.Checks[c.Name] = "fail: " + errs[i].Error()
			res.Status, status = "fail", http.StatusServiceUnavailable
			continue
		}
		res.Checks[c.Name] = "ok"
	}
	if h.draining.Load() {
		res.Checks["draining"] = "fail: " + ErrDraining.Error()
		res.Status, status = "fail", http.StatusServiceUnavailable
	}
	writeJSON(w, status, res)
}

// Register adds the probe routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

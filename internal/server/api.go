package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/MrWong99/eclectech/internal/events"
	"github.com/MrWong99/eclectech/internal/feature"
	"github.com/MrWong99/eclectech/internal/observe"
	"github.com/MrWong99/eclectech/internal/rewrite"
)

// maxRewriteBody caps the JSON body of a rewrite request.
const maxRewriteBody = 16 << 20

// RewriteRequest is the body of POST /api/v1/rewrite.
type RewriteRequest struct {
	Markup   string   `json:"markup"`
	Features []string `json:"features"`

	// Reuse allows answering from the cache. Cached rewrites are addressed
	// by feature fingerprint only, so set it only when markup is the same
	// document that was rewritten before.
	Reuse bool `json:"reuse,omitempty"`
}

// RewriteResponse is the body of a successful rewrite.
type RewriteResponse struct {
	Markup      string `json:"markup"`
	Fingerprint string `json:"fingerprint"`
	Cached      bool   `json:"cached"`
}

type apiError struct {
	Error string `json:"error"`
}

func (s *Server) handleRewrite(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := observe.Logger(ctx)

	var req RewriteRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRewriteBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: fmt.Sprintf("invalid request body: %v", err)})
		return
	}
	set, err := parseFeatures(req.Features)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: err.Error()})
		return
	}

	rs := set.RewriteSet()
	fp := rs.Fingerprint()
	if rs.IsEmpty() {
		writeJSON(w, http.StatusOK, RewriteResponse{Markup: req.Markup})
		return
	}

	if req.Reuse {
		markup, ok, err := s.cache.Get(ctx, fp)
		if err != nil {
			log.Warn("rewrite cache read failed", "fingerprint", fp, "err", err)
		}
		if ok {
			s.publishRewrite(r, fp, len(markup), true)
			writeJSON(w, http.StatusOK, RewriteResponse{Markup: markup, Fingerprint: fp, Cached: true})
			return
		}
	}

	markup, err := s.rewriter.Rewrite(ctx, req.Markup, set)
	if err != nil {
		log.Error("rewrite failed", "fingerprint", fp, "err", err)
		status := http.StatusBadGateway
		if errors.Is(err, rewrite.ErrNoInstruction) {
			status = http.StatusUnprocessableEntity
		}
		writeJSON(w, status, apiError{Error: err.Error()})
		return
	}
	if err := s.cache.Put(ctx, fp, markup); err != nil {
		log.Warn("rewrite not cached", "fingerprint", fp, "err", err)
	}
	s.publishRewrite(r, fp, len(markup), false)
	writeJSON(w, http.StatusOK, RewriteResponse{Markup: markup, Fingerprint: fp})
}

func (s *Server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	fp := feature.ParseFingerprint(r.PathValue("fingerprint")).RewriteSet().Fingerprint()
	if fp == "" {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "fingerprint names no rewrite feature"})
		return
	}
	if err := s.cache.Invalidate(r.Context(), fp); err != nil {
		observe.Logger(r.Context()).Error("cache invalidate failed", "fingerprint", fp, "err", err)
		writeJSON(w, http.StatusInternalServerError, apiError{Error: err.Error()})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) publishRewrite(r *http.Request, fp string, size int, cached bool) {
	ev := events.RewriteCompleted{Fingerprint: fp, Bytes: size, Cached: cached}
	if err := s.pub.Publish(r.Context(), events.TopicRewriteCompleted, ev); err != nil {
		observe.Logger(r.Context()).Warn("publishing rewrite event failed", "err", err)
	}
}

func parseFeatures(names []string) (feature.Set, error) {
	set := feature.NewSet()
	for _, n := range names {
		f, ok := feature.Parse(n)
		if !ok {
			return set, fmt.Errorf("unknown feature %q", n)
		}
		set.Add(f)
	}
	return set, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

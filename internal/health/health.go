// SPDX-License-Identifier: MIT

// Package health serves the liveness and readiness probes.
//
//   - /healthz always answers 200 while the process can serve HTTP.
//   - /readyz answers 200 only when every Checker passes, e.g. while the
//     analysis engine is running.
//
// Responses are JSON objects with a "status" of "ok" or "fail" and a
// "checks" map holding each checker's result.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// checkTimeout bounds a single readiness check.
const checkTimeout = 2 * time.Second

// Checker is a named readiness check. Check returns nil when healthy.
type Checker struct {
	Name  string
	Check func(ctx context.Context) error
}

type result struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves /healthz and /readyz. The checker list is fixed at
// construction time.
type Handler struct {
	checkers []Checker
}

// New creates a Handler evaluating checkers in order on each /readyz.
func New(checkers ...Checker) *Handler {
	c := make([]Checker, len(checkers))
	copy(c, checkers)
	return &Handler{checkers: c}
}

// Healthz is the liveness probe.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, result{Status: "ok"})
}

// Readyz is the readiness probe.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, len(h.checkers))
	allOK := true

	for _, c := range h.checkers {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		err := c.Check(ctx)
		cancel()

		if err != nil {
			checks[c.Name] = "fail: " + err.Error()
			allOK = false
		} else {
			checks[c.Name] = "ok"
		}
	}

	res := result{Status: "ok", Checks: checks}
	status := http.StatusOK
	if !allOK {
		res.Status = "fail"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, res)
}

// Register adds the /healthz and /readyz routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}

// ErrNotRunning is reported by the engine checker.
var ErrNotRunning = errors.New("not running")

// Runner is satisfied by *analysis.Engine.
type Runner interface {
	Running() bool
}

// Engine passes while r is running.
func Engine(r Runner) Checker {
	return Checker{
		Name: "engine",
		Check: func(context.Context) error {
			if !r.Running() {
				return ErrNotRunning
			}
			return nil
		},
	}
}

// Closer is satisfied by *queue.FrameQueue.
type Closer interface {
	Closed() bool
}

// Input passes until the frame source has closed its queue.
func Input(q Closer) Checker {
	return Checker{
		Name: "input",
		Check: func(context.Context) error {
			if q.Closed() {
				return fmt.Errorf("input closed")
			}
			return nil
		},
	}
}

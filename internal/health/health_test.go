// SPDX-License-Identifier: MIT
package health

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

type fakeRunner struct{ running atomic.Bool }

func (f *fakeRunner) Running() bool { return f.running.Load() }

type fakeQueue struct{ closed bool }

func (f fakeQueue) Closed() bool { return f.closed }

func decode(t *testing.T, rec *httptest.ResponseRecorder) result {
	t.Helper()
	var body result
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	return body
}

func TestHealthz(t *testing.T) {
	h := New()
	rec := httptest.NewRecorder()
	h.Healthz(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
	if body := decode(t, rec); body.Status != "ok" {
		t.Errorf("status = %q, want ok", body.Status)
	}
}

func TestReadyz(t *testing.T) {
	tests := []struct {
		name       string
		checkers   []Checker
		wantCode   int
		wantStatus string
		wantChecks map[string]string
	}{
		{
			name:       "no checkers",
			wantCode:   http.StatusOK,
			wantStatus: "ok",
		},
		{
			name: "all pass",
			checkers: []Checker{
				{Name: "a", Check: func(context.Context) error { return nil }},
				{Name: "b", Check: func(context.Context) error { return nil }},
			},
			wantCode:   http.StatusOK,
			wantStatus: "ok",
			wantChecks: map[string]string{"a": "ok", "b": "ok"},
		},
		{
			name: "one fails",
			checkers: []Checker{
				{Name: "a", Check: func(context.Context) error { return errors.New("boom") }},
				{Name: "b", Check: func(context.Context) error { return nil }},
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "fail",
			wantChecks: map[string]string{"a": "fail: boom", "b": "ok"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := New(tt.checkers...)
			rec := httptest.NewRecorder()
			h.Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

			if rec.Code != tt.wantCode {
				t.Errorf("code = %d, want %d", rec.Code, tt.wantCode)
			}
			body := decode(t, rec)
			if body.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", body.Status, tt.wantStatus)
			}
			for k, want := range tt.wantChecks {
				if body.Checks[k] != want {
					t.Errorf("check %s = %q, want %q", k, body.Checks[k], want)
				}
			}
		})
	}
}

func TestEngineChecker(t *testing.T) {
	r := &fakeRunner{}
	c := Engine(r)
	if c.Name != "engine" {
		t.Errorf("Name = %q", c.Name)
	}
	if err := c.Check(context.Background()); !errors.Is(err, ErrNotRunning) {
		t.Errorf("idle engine: err = %v, want ErrNotRunning", err)
	}
	r.running.Store(true)
	if err := c.Check(context.Background()); err != nil {
		t.Errorf("running engine: err = %v", err)
	}
}

func TestInputChecker(t *testing.T) {
	if err := Input(fakeQueue{}).Check(context.Background()); err != nil {
		t.Errorf("open queue: %v", err)
	}
	if err := Input(fakeQueue{closed: true}).Check(context.Background()); err == nil {
		t.Error("closed queue should fail")
	}
}

func TestRegisterRoutes(t *testing.T) {
	r := &fakeRunner{}
	h := New(Engine(r))
	mux := http.NewServeMux()
	h.Register(mux)

	srv := httptest.NewServer(mux)
	defer srv.Close()

	get := func(path string) (int, string) {
		t.Helper()
		resp, err := srv.Client().Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			t.Fatalf("read %s: %v", path, err)
		}
		return resp.StatusCode, string(body)
	}

	if code, _ := get("/healthz"); code != http.StatusOK {
		t.Errorf("/healthz = %d", code)
	}
	if code, body := get("/readyz"); code != http.StatusServiceUnavailable || !strings.Contains(body, "not running") {
		t.Errorf("/readyz before start = %d %s", code, body)
	}
	r.running.Store(true)
	if code, _ := get("/readyz"); code != http.StatusOK {
		t.Errorf("/readyz while running = %d", code)
	}

	resp, err := srv.Client().Post(srv.URL+"/healthz", "text/plain", nil)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("POST /healthz = %d, want 405", resp.StatusCode)
	}
}

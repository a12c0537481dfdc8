package server

import (
	"bytes"
	"encoding/json"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/justinmoon/ringlog/internal/config"
	"github.com/justinmoon/ringlog/internal/dmesg"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Capture.BufferBytes = 4096

	dlog := dmesg.New(1024)
	srv, err := New(cfg, dlog)
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	t.Cleanup(func() { srv.captures.CloseAll() })
	return srv
}

func doRequest(srv *Server, method, path string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)
	rec := doRequest(srv, "GET", "/health", nil)
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("health = %d %q", rec.Code, rec.Body.String())
	}
}

func TestDmesgEndpoints(t *testing.T) {
	srv := newTestServer(t)

	logger := log.New(srv.dmesg, "", 0)
	logger.Printf("first thing")
	logger.Printf("second thing")

	rec := doRequest(srv, "GET", "/v1/dmesg", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("dmesg status = %d", rec.Code)
	}
	if got := rec.Body.String(); !strings.Contains(got, "first thing\nsecond thing\n") {
		t.Fatalf("dmesg body = %q", got)
	}

	rec = doRequest(srv, "GET", "/v1/dmesg/lines", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("dmesg lines status = %d", rec.Code)
	}
	var resp struct {
		Lines []string `json:"lines"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad JSON: %v", err)
	}
	if len(resp.Lines) != 2 || resp.Lines[0] != "first thing" || resp.Lines[1] != "second thing" {
		t.Fatalf("lines = %v", resp.Lines)
	}
}

func TestSessionLifecycle(t *testing.T) {
	srv := newTestServer(t)

	// No sessions yet.
	rec := doRequest(srv, "GET", "/v1/sessions", nil)
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Fatalf("sessions = %d %q, want empty list", rec.Code, rec.Body.String())
	}

	// Create one running echo.
	body, _ := json.Marshal(map[string]interface{}{
		"key":     "hello",
		"command": "echo",
		"args":    []string{"hello from the server test"},
	})
	rec = doRequest(srv, "POST", "/v1/sessions", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d body=%q", rec.Code, rec.Body.String())
	}

	// Duplicate key conflicts.
	rec = doRequest(srv, "POST", "/v1/sessions", body)
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate create status = %d", rec.Code)
	}

	// Give the pump a moment to capture the output.
	time.Sleep(200 * time.Millisecond)

	rec = doRequest(srv, "GET", "/v1/sessions/hello/log", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("log status = %d", rec.Code)
	}
	if got := rec.Body.String(); !strings.Contains(got, "hello from the server test") {
		t.Fatalf("log body = %q", got)
	}

	rec = doRequest(srv, "GET", "/v1/sessions/hello/lines", nil)
	var lineResp struct {
		Lines []string `json:"lines"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &lineResp); err != nil {
		t.Fatalf("bad JSON: %v", err)
	}
	found := false
	for _, line := range lineResp.Lines {
		if strings.Contains(line, "hello from the server test") {
			found = true
		}
	}
	if !found {
		t.Fatalf("lines = %v, want the echoed line", lineResp.Lines)
	}

	// Delete it.
	rec = doRequest(srv, "DELETE", "/v1/sessions/hello", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
	rec = doRequest(srv, "GET", "/v1/sessions/hello/log", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("log after delete status = %d", rec.Code)
	}
}

func TestSessionCreateValidation(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(srv, "POST", "/v1/sessions", []byte("{not json"))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad body status = %d", rec.Code)
	}

	body, _ := json.Marshal(map[string]string{"command": "echo"})
	rec = doRequest(srv, "POST", "/v1/sessions", body)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing key status = %d", rec.Code)
	}

	// A command that can't start is a server problem, not a conflict.
	body, _ = json.Marshal(map[string]string{"key": "ghost", "command": "/no/such/binary"})
	rec = doRequest(srv, "POST", "/v1/sessions", body)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("unstartable command status = %d, want 500", rec.Code)
	}
}

func TestSessionNotFound(t *testing.T) {
	srv := newTestServer(t)

	for _, path := range []string{"/v1/sessions/nope/log", "/v1/sessions/nope/lines"} {
		rec := doRequest(srv, "GET", path, nil)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("%s status = %d, want 404", path, rec.Code)
		}
	}
}

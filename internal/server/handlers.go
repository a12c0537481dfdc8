package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"os/exec"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/justinmoon/ringlog/internal/capture"
)

func jsonResponse(w http.ResponseWriter, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func apiError(w http.ResponseWriter, message string, status int) {
	jsonResponse(w, map[string]string{"error": message}, status)
}

func textResponse(w http.ResponseWriter, body []byte) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write(body)
}

// Dmesg handlers

func (s *Server) handleDmesg(w http.ResponseWriter, r *http.Request) {
	textResponse(w, []byte(s.dmesg.Snapshot()))
}

func (s *Server) handleDmesgLines(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, map[string]interface{}{"lines": s.dmesg.SnapshotLines()}, http.StatusOK)
}

// Session handlers

type sessionInfo struct {
	Key       string     `json:"key"`
	PID       int        `json:"pid"`
	StartedAt time.Time  `json:"started_at"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
}

func sessionToInfo(sess *capture.Session) sessionInfo {
	info := sessionInfo{
		Key:       sess.Key(),
		PID:       sess.PID(),
		StartedAt: sess.StartedAt(),
	}
	if closedAt, ok := sess.ClosedAt(); ok {
		info.ClosedAt = &closedAt
	}
	return info
}

func (s *Server) handleSessionList(w http.ResponseWriter, r *http.Request) {
	keys := s.captures.List()
	result := make([]sessionInfo, 0, len(keys))
	for _, key := range keys {
		if sess := s.captures.Get(key); sess != nil {
			result = append(result, sessionToInfo(sess))
		}
	}
	jsonResponse(w, result, http.StatusOK)
}

func (s *Server) handleSessionCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Key     string   `json:"key"`
		Command string   `json:"command"`
		Args    []string `json:"args,omitempty"`
		Dir     string   `json:"dir,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Key == "" {
		apiError(w, "key is required", http.StatusBadRequest)
		return
	}

	var cmd *exec.Cmd
	if req.Command == "" {
		// No command means an interactive shell from config.
		cmd = exec.Command(s.cfg.Capture.Shell)
	} else {
		cmd = exec.Command(req.Command, req.Args...)
	}
	if req.Dir != "" {
		cmd.Dir = req.Dir
	}

	sess, err := s.captures.Create(req.Key, cmd)
	if err != nil {
		// Duplicate keys are the caller's fault; a PTY that won't
		// start (missing binary, resource limits) is not.
		if errors.Is(err, capture.ErrSessionExists) {
			apiError(w, err.Error(), http.StatusConflict)
			return
		}
		apiError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	jsonResponse(w, sessionToInfo(sess), http.StatusCreated)
}

func (s *Server) handleSessionDelete(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if err := s.captures.Remove(key); err != nil {
		apiError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSessionLog(w http.ResponseWriter, r *http.Request) {
	sess := s.captures.Get(chi.URLParam(r, "key"))
	if sess == nil {
		apiError(w, "session not found", http.StatusNotFound)
		return
	}
	textResponse(w, sess.Snapshot())
}

func (s *Server) handleSessionLines(w http.ResponseWriter, r *http.Request) {
	sess := s.captures.Get(chi.URLParam(r, "key"))
	if sess == nil {
		apiError(w, "session not found", http.StatusNotFound)
		return
	}
	jsonResponse(w, map[string]interface{}{"lines": sess.SnapshotLines()}, http.StatusOK)
}

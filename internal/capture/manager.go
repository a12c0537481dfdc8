// Package capture runs commands under pseudo-terminals and retains their
// recent output in fixed-capacity ring buffers.
package capture

import (
	"errors"
	"fmt"
	"os/exec"
	"sync"

	"github.com/justinmoon/ringlog/internal/events"
)

// ErrSessionExists is returned by Create when the key is already taken.
var ErrSessionExists = errors.New("session already exists")

// Manager owns capture sessions keyed by an arbitrary name.
type Manager struct {
	bufBytes int
	bus      *events.Bus

	sessions map[string]*Session
	mu       sync.RWMutex
}

// NewManager returns a Manager whose sessions retain bufBytes of output
// each (0 means DefaultBufferBytes). bus may be nil; session lifecycle
// events are then not published.
func NewManager(bufBytes int, bus *events.Bus) *Manager {
	return &Manager{
		bufBytes: bufBytes,
		bus:      bus,
		sessions: make(map[string]*Session),
	}
}

// Create starts capturing cmd under key. Errors if a session already
// exists for key.
func (m *Manager) Create(key string, cmd *exec.Cmd) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[key]; exists {
		return nil, fmt.Errorf("%w for %s", ErrSessionExists, key)
	}

	p, err := StartPTY(cmd)
	if err != nil {
		return nil, err
	}

	sess := newSession(key, p, m.bufBytes, m.sessionExited)
	m.sessions[key] = sess
	m.publish(events.Event{
		Type:    events.EventSessionStarted,
		Session: key,
		PID:     sess.PID(),
	})
	return sess, nil
}

// Get returns the session for key, or nil.
func (m *Manager) Get(key string) *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[key]
}

// Remove removes and closes a session (if present).
func (m *Manager) Remove(key string) error {
	m.mu.Lock()
	sess, exists := m.sessions[key]
	if exists {
		delete(m.sessions, key)
	}
	m.mu.Unlock()

	if !exists {
		return nil
	}
	return sess.Close()
}

// List returns all session keys, including sessions whose process has
// already exited (their buffers remain readable until removed).
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.sessions))
	for k := range m.sessions {
		keys = append(keys, k)
	}
	return keys
}

// CloseAll closes and removes all sessions.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, sess := range sessions {
		sess.Close()
	}
}

func (m *Manager) sessionExited(key string, err error) {
	ev := events.Event{
		Type:    events.EventSessionExited,
		Session: key,
	}
	if err != nil {
		ev.Error = err.Error()
	}
	m.publish(ev)
}

func (m *Manager) publish(ev events.Event) {
	if m.bus == nil {
		return
	}
	// Best effort; a down event bus must not break capture.
	m.bus.Publish(ev)
}

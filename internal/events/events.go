// Package events publishes capture-session lifecycle events to NATS
// JetStream when a NATS URL is configured, and does nothing otherwise.
package events

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

type EventType string

const (
	EventSessionStarted EventType = "session.started"
	EventSessionExited  EventType = "session.exited"
)

type Event struct {
	Type      EventType `json:"type"`
	Session   string    `json:"session,omitempty"`
	PID       int       `json:"pid,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type Bus struct {
	nc     *nats.Conn
	js     nats.JetStreamContext
	active bool
}

// NewBus connects to NATS at natsURL. An empty URL returns an inactive
// bus whose Publish is a no-op, so callers never need to branch.
func NewBus(natsURL string) (*Bus, error) {
	if natsURL == "" {
		return &Bus{active: false}, nil
	}

	nc, err := nats.Connect(natsURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to get JetStream context: %w", err)
	}

	bus := &Bus{
		nc:     nc,
		js:     js,
		active: true,
	}

	if err := bus.createStream(); err != nil {
		nc.Close()
		return nil, err
	}

	return bus, nil
}

func (b *Bus) createStream() error {
	_, err := b.js.AddStream(&nats.StreamConfig{
		Name:      "RINGLOG_SESSIONS",
		Subjects:  []string{"ringlog.session.>"},
		Retention: nats.LimitsPolicy,
		MaxAge:    24 * time.Hour,
		Storage:   nats.FileStorage,
	})
	if err != nil && err != nats.ErrStreamNameAlreadyInUse {
		return fmt.Errorf("failed to create stream: %w", err)
	}
	return nil
}

func (b *Bus) Publish(event Event) error {
	if !b.active {
		return nil
	}

	event.Timestamp = time.Now()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if _, err := b.js.Publish(b.subjectFor(event), data); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

// subjectFor maps an event to "ringlog.session.<key>.<event>". Session
// keys may contain characters with meaning in NATS subjects; those are
// folded to '-'.
func (b *Bus) subjectFor(event Event) string {
	key := strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '/':
			return '-'
		}
		return r
	}, event.Session)
	return fmt.Sprintf("ringlog.session.%s.%s", key, event.Type)
}

func (b *Bus) Close() {
	if b.nc != nil {
		b.nc.Close()
	}
}

// Package dmesg keeps the daemon's own log output in a ring buffer so the
// recent history can be served over HTTP without touching disk.
package dmesg

import (
	"io"
	"sync"

	"github.com/justinmoon/ringlog"
)

// DefaultCapacity is how much of our own log output we keep.
const DefaultCapacity = 64 * 1024

// Log is a concurrency-safe ring of log text. It implements io.Writer so
// it can sit behind log.SetOutput; all locking lives here, the underlying
// buffer is single-owner.
type Log struct {
	mu  sync.Mutex
	buf *ringlog.Buffer
}

func New(capacity int) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	l := &Log{buf: ringlog.New(make([]byte, capacity))}
	// Line extraction drops everything before the first terminator, so
	// seed one; otherwise the first line logged would never show up.
	l.buf.WriteString("\n")
	return l
}

func (l *Log) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buf.Write(p)
}

// Snapshot returns the retained log text, oldest first.
func (l *Log) Snapshot() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buf.ExtractString()
}

// SnapshotLines returns the retained complete log lines, oldest first.
// Lines whose beginning has been overwritten are excluded.
func (l *Log) SnapshotLines() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	lines := []string{}
	for line := range l.buf.ExtractLines() {
		lines = append(lines, string(line))
	}
	return lines
}

// Tee returns a writer that sends output both to w and to the ring.
func (l *Log) Tee(w io.Writer) io.Writer {
	return io.MultiWriter(w, l)
}

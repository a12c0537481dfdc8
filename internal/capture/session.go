package capture

import (
	"fmt"
	"io"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/justinmoon/ringlog"
)

const (
	// DefaultBufferBytes is how much process output we retain for replay.
	// Big enough to hold the interesting tail of a build or crash loop.
	DefaultBufferBytes = 1024 * 1024

	// DefaultSubscriberBuffer is the per-subscriber channel buffer.
	// If a subscriber can't keep up we drop output for that subscriber;
	// the read loop never blocks and the ring keeps the history.
	DefaultSubscriberBuffer = 256

	// drainTimeout bounds how long we keep reading after the process
	// exits. Normally reads error out on their own once the kernel
	// buffer is drained; the timeout covers children that inherited
	// the terminal and keep it open.
	drainTimeout = 5 * time.Second
)

// Session is one captured process: its PTY plus a ring buffer of the text
// it has produced. The ring is single-owner; s.mu is the owner.
type Session struct {
	key string
	pty *PTY

	mu        sync.Mutex
	out       *ringlog.Buffer
	partial   []byte // trailing bytes of a rune split across PTY reads
	subs      map[int]chan []byte
	nextSubID int

	closeOnce sync.Once
	closed    bool
	closeErr  error
	closedAt  time.Time
	onExit    func(key string, err error)

	procDone   chan struct{} // closed once the process exit status is known
	pumpDone   chan struct{} // closed once the output pump has drained
	procErr    error         // guarded by mu, valid after procDone
	procExited bool          // guarded by mu

	startedAt time.Time
}

func newSession(key string, pty *PTY, bufBytes int, onExit func(string, error)) *Session {
	if bufBytes <= 0 {
		bufBytes = DefaultBufferBytes
	}
	s := &Session{
		key:       key,
		pty:       pty,
		out:       ringlog.New(make([]byte, bufBytes)),
		subs:      make(map[int]chan []byte),
		onExit:    onExit,
		procDone:  make(chan struct{}),
		pumpDone:  make(chan struct{}),
		startedAt: time.Now(),
	}
	// Keep the first line of output extractable as a complete line.
	s.out.WriteString("\n")
	s.startPumps()
	return s
}

func (s *Session) Key() string { return s.key }

func (s *Session) PID() int { return s.pty.PID() }

func (s *Session) StartedAt() time.Time { return s.startedAt }

func (s *Session) ClosedAt() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		return time.Time{}, false
	}
	return s.closedAt, true
}

func (s *Session) CloseErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeErr
}

// Snapshot returns the retained output as valid UTF-8 text, oldest first.
// Any rune torn in half when the ring wrapped is excluded, and a rune
// still arriving split across PTY reads is held back until it completes.
func (s *Session) Snapshot() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return []byte(s.out.ExtractString())
}

// SnapshotLines returns the retained complete output lines, oldest first.
// A line whose beginning was overwritten is excluded.
func (s *Session) SnapshotLines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	lines := []string{}
	for line := range s.out.ExtractLines() {
		lines = append(lines, string(line))
	}
	return lines
}

// Subscribe returns a snapshot of buffered output and a channel that
// receives future output. Snapshot + stream together let a late attacher
// reconstruct the recent history and follow along.
func (s *Session) Subscribe() (subID int, snapshot []byte, ch <-chan []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot = []byte(s.out.ExtractString())

	subID = s.nextSubID
	s.nextSubID++

	c := make(chan []byte, DefaultSubscriberBuffer)
	if s.closed {
		close(c)
		return subID, snapshot, c
	}
	s.subs[subID] = c
	return subID, snapshot, c
}

func (s *Session) Unsubscribe(subID int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.subs[subID]
	if !ok {
		return
	}
	delete(s.subs, subID)
	close(c)
}

// Write sends input to the captured process.
func (s *Session) Write(p []byte) (int, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return 0, fmt.Errorf("capture session closed")
	}
	return s.pty.Write(p)
}

func (s *Session) Resize(rows, cols uint16) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return fmt.Errorf("capture session closed")
	}
	return s.pty.Resize(rows, cols)
}

func (s *Session) Close() error {
	// Close the underlying PTY; the pumps observe EOF and finalize.
	if err := s.pty.Close(); err != nil {
		s.closeWithErr(err)
		return err
	}
	s.closeWithErr(nil)
	return nil
}

func (s *Session) startPumps() {
	go s.pumpOutput()
	go s.waitProcess()
}

func (s *Session) pumpOutput() {
	defer close(s.pumpDone)

	buf := make([]byte, 32*1024)
	for {
		n, err := s.pty.Read(buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			s.mu.Lock()
			s.appendOutput(chunk)
			for _, sub := range s.subs {
				select {
				case sub <- chunk:
				default:
					// Drop for slow subscriber. The ring keeps the history.
				}
			}
			s.mu.Unlock()
		}

		if err == nil {
			continue
		}

		// The read error usually just means end of stream: EOF, or
		// EIO on Linux once the process is gone and the kernel buffer
		// is drained. Give waitProcess a moment to record the exit
		// status so we can finalize with it instead of the read error.
		s.pty.Close()
		select {
		case <-s.procDone:
		case <-time.After(time.Second):
		}

		s.mu.Lock()
		procErr, exited := s.procErr, s.procExited
		s.mu.Unlock()

		switch {
		case exited:
			s.closeWithErr(procErr)
		case err == io.EOF:
			s.closeWithErr(nil)
		default:
			s.closeWithErr(err)
		}
		return
	}
}

func (s *Session) waitProcess() {
	err := s.pty.Wait()

	s.mu.Lock()
	s.procExited = true
	s.procErr = err
	s.mu.Unlock()
	close(s.procDone)

	// Don't close the PTY yet: the kernel may still hold output the
	// pump hasn't read, and fast-exiting commands would lose it. Reads
	// fail on their own once the buffer drains; the forced close below
	// only covers children that keep the terminal open.
	select {
	case <-s.pumpDone:
	case <-time.After(drainTimeout):
		s.pty.Close()
	}
}

// appendOutput adds process output to the ring. Called with s.mu held.
// PTY reads split at arbitrary byte offsets, so a chunk can end in the
// middle of a rune; the incomplete tail is held back and prepended to the
// next chunk, keeping every snapshot valid UTF-8 at both ends. Subscribers
// still receive the raw byte stream.
func (s *Session) appendOutput(chunk []byte) {
	data := chunk
	if len(s.partial) > 0 {
		data = append(s.partial, chunk...)
		s.partial = nil
	}
	if keep := incompleteTail(data); keep > 0 {
		s.partial = append([]byte(nil), data[len(data)-keep:]...)
		data = data[:len(data)-keep]
	}
	s.out.Write(data)
}

// incompleteTail returns how many trailing bytes of p form the start of a
// rune whose remaining bytes have not arrived yet, or 0 if p ends on a
// rune boundary. Invalid sequences are passed through untouched.
func incompleteTail(p []byte) int {
	end := len(p)
	for i := end - 1; i >= 0 && end-i < utf8.UTFMax; i-- {
		c := p[i]
		if c < utf8.RuneSelf {
			return 0
		}
		if !utf8.RuneStart(c) {
			continue
		}
		var need int
		switch {
		case c&0xe0 == 0xc0:
			need = 2
		case c&0xf0 == 0xe0:
			need = 3
		case c&0xf8 == 0xf0:
			need = 4
		default:
			return 0
		}
		if end-i < need {
			return end - i
		}
		return 0
	}
	return 0
}

func (s *Session) closeWithErr(err error) {
	var finalized bool
	s.closeOnce.Do(func() {
		finalized = true
		s.mu.Lock()
		s.closed = true
		s.closedAt = time.Now()
		s.closeErr = err
		for id, sub := range s.subs {
			delete(s.subs, id)
			close(sub)
		}
		s.mu.Unlock()

		if s.onExit != nil {
			s.onExit(s.key, err)
		}
	})

	if finalized {
		return
	}

	// Closed without an error (PTY EOF) but we later learn the exit
	// status: keep the first non-nil error for debugging.
	if err != nil {
		s.mu.Lock()
		if s.closeErr == nil {
			s.closeErr = err
		}
		s.mu.Unlock()
	}
}

// Package logbuf keeps a bounded, observable buffer of activity log entries
// for dashboard tailing. It is process-local and append-only; entries past
// the cap are evicted oldest-first.
package logbuf

import (
	"sync"
	"time"

	"github.com/hallwayapps/browsergate/pkg/models"
)

// Buffer is a bounded append-only log with subscription fan-out.
type Buffer struct {
	mu      sync.RWMutex
	entries []models.LogEntry
	cap     int
	subs    map[int]chan models.LogEntry
	nextSub int
}

// New creates a buffer holding at most capacity entries.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = 1000
	}
	return &Buffer{
		cap:  capacity,
		subs: make(map[int]chan models.LogEntry),
	}
}

// Append records an entry, evicting the oldest if the buffer is full, and
// fans it out to subscribers. Slow subscribers are skipped, never blocked on.
func (b *Buffer) Append(entry models.LogEntry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	b.mu.Lock()
	b.entries = append(b.entries, entry)
	if len(b.entries) > b.cap {
		b.entries = b.entries[len(b.entries)-b.cap:]
	}
	for _, ch := range b.subs {
		select {
		case ch <- entry:
		default:
		}
	}
	b.mu.Unlock()
}

// Entries returns up to limit most recent entries, optionally filtered by
// session id. limit <= 0 means all buffered entries.
func (b *Buffer) Entries(sessionID string, limit int) []models.LogEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []models.LogEntry
	for _, e := range b.entries {
		if sessionID != "" && e.SessionID != sessionID {
			continue
		}
		out = append(out, e)
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// Subscribe returns a channel of future entries and a cancel function. The
// channel is buffered; entries are dropped rather than blocking Append.
func (b *Buffer) Subscribe() (<-chan models.LogEntry, func()) {
	b.mu.Lock()
	id := b.nextSub
	b.nextSub++
	ch := make(chan models.LogEntry, 64)
	b.subs[id] = ch
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

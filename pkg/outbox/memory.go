package outbox

import (
	"context"
	"fmt"
	"sync"

	"carbonq/pkg/domain"
)

// MemoryOutbox keeps the queue in-process. It does not survive restarts and
// exists for tests and for hosts without a writable data directory.
type MemoryOutbox struct {
	mu         sync.Mutex
	entries    []Entry
	nextSeq    int64
	maxEntries int
}

// NewMemoryOutbox builds an empty in-memory outbox.
func NewMemoryOutbox(maxEntries int) *MemoryOutbox {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &MemoryOutbox{nextSeq: 1, maxEntries: maxEntries}
}

// Enqueue appends the event, evicting the oldest entries beyond the cap.
func (o *MemoryOutbox) Enqueue(_ context.Context, event domain.QueryEvent) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.entries = append(o.entries, Entry{Seq: o.nextSeq, Event: event})
	o.nextSeq++
	if excess := len(o.entries) - o.maxEntries; excess > 0 {
		o.entries = append([]Entry(nil), o.entries[excess:]...)
	}
	return nil
}

// PeekAll returns a copy of the queue in FIFO order.
func (o *MemoryOutbox) PeekAll(_ context.Context) ([]Entry, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Entry(nil), o.entries...), nil
}

// ReplaceAll rewrites the prefix with seq <= upTo, preserving order.
func (o *MemoryOutbox) ReplaceAll(_ context.Context, upTo int64, retained []Entry) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, entry := range retained {
		if entry.Seq > upTo {
			return fmt.Errorf("retained entry %d is outside the snapshot", entry.Seq)
		}
	}
	next := append([]Entry(nil), retained...)
	for _, entry := range o.entries {
		if entry.Seq > upTo {
			next = append(next, entry)
		}
	}
	o.entries = next
	return nil
}

// Len reports the number of queued entries.
func (o *MemoryOutbox) Len(_ context.Context) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.entries), nil
}

// Close is a no-op for the in-memory outbox.
func (o *MemoryOutbox) Close() error { return nil }

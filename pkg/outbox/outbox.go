// Package outbox provides the local durable FIFO of query events that have
// not yet been confirmed persisted server-side.
package outbox

import (
	"context"

	"carbonq/pkg/domain"
)

// DefaultMaxEntries bounds outbox growth while a user stays offline or
// signed out. Beyond the cap the oldest entries are dropped.
const DefaultMaxEntries = 10000

// Entry is a queued event plus its delivery metadata. Seq is assigned at
// enqueue time and is strictly increasing, so it doubles as FIFO order.
type Entry struct {
	Seq      int64
	Event    domain.QueryEvent
	Attempts int
}

// Outbox is a durable FIFO of undelivered events. Implementations must make
// each operation atomic with respect to the others.
type Outbox interface {
	// Enqueue durably appends an event, evicting the oldest entries when
	// the size cap is exceeded.
	Enqueue(ctx context.Context, event domain.QueryEvent) error

	// PeekAll returns an ordered snapshot without removing anything.
	PeekAll(ctx context.Context) ([]Entry, error)

	// ReplaceAll atomically rewrites the snapshotted prefix of the queue:
	// entries with Seq <= upTo are replaced by retained (which keep their
	// original positions), while entries enqueued after the snapshot are
	// left untouched.
	ReplaceAll(ctx context.Context, upTo int64, retained []Entry) error

	// Len reports the number of queued entries.
	Len(ctx context.Context) (int, error)

	Close() error
}

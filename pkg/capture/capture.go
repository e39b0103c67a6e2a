// Package capture turns raw "submission detected" signals into discrete
// query events. The DOM heuristics that produce the signals live outside
// this module; all that crosses the boundary is a platform key.
package capture

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"carbonq/pkg/domain"
	"carbonq/pkg/platform"

	"github.com/google/uuid"
)

// DefaultDebounceWindow is how long after an accepted signal further
// signals are treated as echoes of the same submission. A single submit can
// fire several DOM signals (keydown, click, form submit) within this span.
const DefaultDebounceWindow = 800 * time.Millisecond

// Submitter receives accepted events; in production it is the delivery agent.
type Submitter interface {
	Submit(ctx context.Context, event domain.QueryEvent) error
}

// Options tunes a Capturer.
type Options struct {
	// Window overrides the debounce window; 0 means DefaultDebounceWindow.
	Window time.Duration
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Capturer debounces raw signals and emits at most one QueryEvent per
// window. Unknown platform keys are logged and dropped, never queued.
type Capturer struct {
	mu           sync.Mutex
	submitter    Submitter
	window       time.Duration
	now          func() time.Time
	lastAccepted time.Time
}

// New builds a Capturer delivering accepted events to submitter.
func New(submitter Submitter, opts Options) *Capturer {
	window := opts.Window
	if window <= 0 {
		window = DefaultDebounceWindow
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Capturer{submitter: submitter, window: window, now: now}
}

// Signal processes one raw submission signal. It returns true when the
// signal was accepted and handed to the submitter as a new event.
func (c *Capturer) Signal(ctx context.Context, key domain.Platform) bool {
	info, ok := platform.Lookup(key)
	if !ok {
		slog.Warn("capture rejected: unknown platform", "platform", string(key))
		return false
	}

	c.mu.Lock()
	now := c.now()
	if !c.lastAccepted.IsZero() && now.Sub(c.lastAccepted) < c.window {
		c.mu.Unlock()
		return false
	}
	c.lastAccepted = now
	c.mu.Unlock()

	event := domain.QueryEvent{
		ID:          uuid.NewString(),
		Platform:    info.Key,
		CarbonGrams: info.CarbonGrams,
		OccurredAt:  now.UTC(),
	}
	if err := c.submitter.Submit(ctx, event); err != nil {
		// Submit never loses accepted events by contract; an error here
		// means even the local queue was unavailable.
		slog.Warn("capture submit failed", "platform", string(key), "err", err)
	}
	return true
}

// Package agent guarantees at-least-once delivery of captured events to the
// backend. Events that cannot be delivered right away wait in the durable
// outbox and are retried whenever an identity becomes available or a new
// capture arrives. Delivery failures are never surfaced to the user.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"carbonq/pkg/domain"
	"carbonq/pkg/outbox"
	"carbonq/pkg/platform"
)

// ErrUnknownPlatform rejects events whose platform is not in the emission
// table. They are never enqueued.
var ErrUnknownPlatform = errors.New("unknown platform")

// DefaultAttemptTimeout bounds a single delivery attempt so a hung request
// cannot stall the pipeline.
const DefaultAttemptTimeout = 10 * time.Second

// Config wires the agent's collaborators.
type Config struct {
	Outbox   outbox.Outbox
	Recorder Recorder
	Identity IdentitySource
	// AttemptTimeout bounds one delivery attempt; 0 means DefaultAttemptTimeout.
	AttemptTimeout time.Duration
}

// Agent owns the outbox → backend leg of the pipeline.
type Agent struct {
	outbox         outbox.Outbox
	recorder       Recorder
	identity       IdentitySource
	attemptTimeout time.Duration

	// flushMu serializes flush passes; Submit never takes it, so a slow
	// flush cannot block new captures.
	flushMu sync.Mutex
}

// New builds the agent and registers the sign-in flush trigger.
func New(cfg Config) (*Agent, error) {
	if cfg.Outbox == nil {
		return nil, errors.New("agent requires an outbox")
	}
	if cfg.Recorder == nil {
		return nil, errors.New("agent requires a recorder")
	}
	if cfg.Identity == nil {
		return nil, errors.New("agent requires an identity source")
	}
	attemptTimeout := cfg.AttemptTimeout
	if attemptTimeout <= 0 {
		attemptTimeout = DefaultAttemptTimeout
	}
	a := &Agent{
		outbox:         cfg.Outbox,
		recorder:       cfg.Recorder,
		identity:       cfg.Identity,
		attemptTimeout: attemptTimeout,
	}
	a.identity.OnChange(func(_ Identity, ok bool) {
		if !ok {
			return
		}
		go func() {
			if err := a.Flush(context.Background()); err != nil {
				slog.Warn("flush after sign-in failed", "err", err)
			}
		}()
	})
	return a, nil
}

// Submit records one event: immediate delivery when an identity is
// available, otherwise the event goes to the outbox. A failed delivery is
// also queued, so an accepted event is only ever lost if local storage
// itself fails.
func (a *Agent) Submit(ctx context.Context, event domain.QueryEvent) error {
	if !platform.Known(event.Platform) {
		return fmt.Errorf("%w: %q", ErrUnknownPlatform, event.Platform)
	}

	identity, ok := a.identity.Current()
	if ok {
		err := a.deliver(ctx, identity, event)
		if err == nil {
			return nil
		}
		slog.Debug("immediate delivery failed, queuing", "platform", string(event.Platform), "err", err)
	}
	if err := a.outbox.Enqueue(ctx, event); err != nil {
		// Accepted degradation: the event is dropped, the pipeline lives on.
		slog.Warn("outbox enqueue failed, event dropped", "platform", string(event.Platform), "err", err)
		return fmt.Errorf("enqueue event: %w", err)
	}
	return nil
}

// Flush attempts to deliver every queued entry in FIFO order and retains
// only the failures. Without an identity it is a no-op that leaves the
// queue untouched. One entry's failure never blocks attempts on the rest.
func (a *Agent) Flush(ctx context.Context) error {
	a.flushMu.Lock()
	defer a.flushMu.Unlock()

	identity, ok := a.identity.Current()
	if !ok {
		return nil
	}
	snapshot, err := a.outbox.PeekAll(ctx)
	if err != nil {
		return fmt.Errorf("read outbox: %w", err)
	}
	if len(snapshot) == 0 {
		return nil
	}

	retained := make([]outbox.Entry, 0, len(snapshot))
	for _, entry := range snapshot {
		if err := a.deliver(ctx, identity, entry.Event); err != nil {
			entry.Attempts++
			retained = append(retained, entry)
			slog.Debug("flush entry failed, retained", "platform", string(entry.Event.Platform), "attempts", entry.Attempts, "err", err)
		}
	}

	upTo := snapshot[len(snapshot)-1].Seq
	if err := a.outbox.ReplaceAll(ctx, upTo, retained); err != nil {
		return fmt.Errorf("commit flush: %w", err)
	}
	if delivered := len(snapshot) - len(retained); delivered > 0 {
		slog.Info("outbox flushed", "delivered", delivered, "retained", len(retained))
	}
	return nil
}

func (a *Agent) deliver(ctx context.Context, identity Identity, event domain.QueryEvent) error {
	attemptCtx, cancel := context.WithTimeout(ctx, a.attemptTimeout)
	defer cancel()
	return a.recorder.Record(attemptCtx, identity.Token, event)
}

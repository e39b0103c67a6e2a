package agent

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"carbonq/pkg/domain"
	"carbonq/pkg/outbox"
)

type fakeRecorder struct {
	mu        sync.Mutex
	failIDs   map[string]error
	delivered []domain.QueryEvent
	recorded  chan struct{}
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{failIDs: make(map[string]error), recorded: make(chan struct{}, 64)}
}

func (r *fakeRecorder) failWith(id string, err error) {
	r.mu.Lock()
	r.failIDs[id] = err
	r.mu.Unlock()
}

func (r *fakeRecorder) Record(_ context.Context, _ string, event domain.QueryEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err, ok := r.failIDs[event.ID]; ok {
		return err
	}
	r.delivered = append(r.delivered, event)
	select {
	case r.recorded <- struct{}{}:
	default:
	}
	return nil
}

func (r *fakeRecorder) deliveredIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.delivered))
	for _, e := range r.delivered {
		ids = append(ids, e.ID)
	}
	return ids
}

func newAgent(t *testing.T, recorder Recorder, session *Session) (*Agent, *outbox.MemoryOutbox) {
	t.Helper()
	box := outbox.NewMemoryOutbox(0)
	a, err := New(Config{Outbox: box, Recorder: recorder, Identity: session})
	if err != nil {
		t.Fatalf("new agent: %v", err)
	}
	return a, box
}

func event(id string) domain.QueryEvent {
	return domain.QueryEvent{ID: id, Platform: domain.PlatformChatGPT, CarbonGrams: 4.4, OccurredAt: time.Now().UTC()}
}

func queueLen(t *testing.T, box *outbox.MemoryOutbox) int {
	t.Helper()
	n, err := box.Len(context.Background())
	if err != nil {
		t.Fatalf("outbox len: %v", err)
	}
	return n
}

func TestSubmitWithoutIdentityQueues(t *testing.T) {
	recorder := newFakeRecorder()
	a, box := newAgent(t, recorder, NewSession())

	if err := a.Submit(context.Background(), event("a")); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if got := queueLen(t, box); got != 1 {
		t.Fatalf("expected 1 queued entry, got %d", got)
	}
	if len(recorder.deliveredIDs()) != 0 {
		t.Fatalf("nothing should be delivered without identity")
	}
}

func TestSubmitWithIdentityDeliversImmediately(t *testing.T) {
	recorder := newFakeRecorder()
	session := NewSession()
	session.Set(Identity{UserID: "u1", Token: "tok"})
	a, box := newAgent(t, recorder, session)

	if err := a.Submit(context.Background(), event("a")); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if got := queueLen(t, box); got != 0 {
		t.Fatalf("delivered event should not be queued, got %d entries", got)
	}
	if ids := recorder.deliveredIDs(); len(ids) != 1 || ids[0] != "a" {
		t.Fatalf("unexpected deliveries: %v", ids)
	}
}

func TestSubmitFailureFallsBackToQueue(t *testing.T) {
	recorder := newFakeRecorder()
	recorder.failWith("a", errors.New("backend down"))
	session := NewSession()
	session.Set(Identity{UserID: "u1", Token: "tok"})
	a, box := newAgent(t, recorder, session)

	if err := a.Submit(context.Background(), event("a")); err != nil {
		t.Fatalf("submit should not escalate delivery failures: %v", err)
	}
	if got := queueLen(t, box); got != 1 {
		t.Fatalf("failed delivery should queue the event, got %d entries", got)
	}
}

func TestSubmitRejectsUnknownPlatform(t *testing.T) {
	recorder := newFakeRecorder()
	a, box := newAgent(t, recorder, NewSession())

	err := a.Submit(context.Background(), domain.QueryEvent{ID: "x", Platform: "bing"})
	if !errors.Is(err, ErrUnknownPlatform) {
		t.Fatalf("expected ErrUnknownPlatform, got %v", err)
	}
	if got := queueLen(t, box); got != 0 {
		t.Fatalf("rejected event must never be queued")
	}
}

func TestFlushWithoutIdentityIsNoOp(t *testing.T) {
	recorder := newFakeRecorder()
	session := NewSession()
	a, box := newAgent(t, recorder, session)

	ctx := context.Background()
	for _, id := range []string{"a", "b"} {
		if err := a.Submit(ctx, event(id)); err != nil {
			t.Fatalf("submit %s: %v", id, err)
		}
	}
	if err := a.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if got := queueLen(t, box); got != 2 {
		t.Fatalf("flush without identity must leave the queue untouched, got %d entries", got)
	}
}

func TestFlushDeliversBacklogAfterSignIn(t *testing.T) {
	recorder := newFakeRecorder()
	session := NewSession()
	a, box := newAgent(t, recorder, session)

	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		if err := a.Submit(ctx, event(id)); err != nil {
			t.Fatalf("submit %s: %v", id, err)
		}
	}

	session.Set(Identity{UserID: "u1", Token: "tok"})
	waitForDeliveries(t, recorder, 3)
	waitForEmpty(t, box)
	if ids := recorder.deliveredIDs(); len(ids) != 3 || ids[0] != "a" || ids[2] != "c" {
		t.Fatalf("backlog should flush in order: %v", ids)
	}
}

func TestFlushRetainsOnlyFailures(t *testing.T) {
	recorder := newFakeRecorder()
	recorder.failWith("b", errors.New("timeout"))
	session := NewSession()
	a, box := newAgent(t, recorder, session)

	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		if err := a.Submit(ctx, event(id)); err != nil {
			t.Fatalf("submit %s: %v", id, err)
		}
	}
	session.Set(Identity{UserID: "u1", Token: "tok"})
	waitForDeliveries(t, recorder, 2)

	deadline := time.Now().Add(2 * time.Second)
	for {
		entries, err := box.PeekAll(ctx)
		if err != nil {
			t.Fatalf("peek: %v", err)
		}
		if len(entries) == 1 && entries[0].Event.ID == "b" && entries[0].Attempts == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected only b retained with one attempt, got %+v", entries)
		}
		time.Sleep(5 * time.Millisecond)
	}

	// Next flush succeeds once the failure clears.
	recorder.mu.Lock()
	delete(recorder.failIDs, "b")
	recorder.mu.Unlock()
	if err := a.Flush(ctx); err != nil {
		t.Fatalf("second flush: %v", err)
	}
	if got := queueLen(t, box); got != 0 {
		t.Fatalf("queue should be empty after retry, got %d entries", got)
	}
}

func TestUnauthenticatedDeliveryIsRetainedNotDropped(t *testing.T) {
	recorder := newFakeRecorder()
	recorder.failWith("a", ErrUnauthenticated)
	session := NewSession()
	session.Set(Identity{UserID: "u1", Token: "expired"})
	a, box := newAgent(t, recorder, session)

	ctx := context.Background()
	if err := a.Submit(ctx, event("a")); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := a.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if got := queueLen(t, box); got != 1 {
		t.Fatalf("401 must behave like a transient failure, got %d entries", got)
	}
}

func waitForDeliveries(t *testing.T, r *fakeRecorder, n int) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for i := 0; i < n; i++ {
		select {
		case <-r.recorded:
		case <-deadline:
			t.Fatalf("timed out waiting for %d deliveries", n)
		}
	}
}

func waitForEmpty(t *testing.T, box *outbox.MemoryOutbox) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		n, err := box.Len(context.Background())
		if err != nil {
			t.Fatalf("len: %v", err)
		}
		if n == 0 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("outbox never drained, %d entries left", n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

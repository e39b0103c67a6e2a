package capture

import (
	"context"
	"testing"
	"time"

	"carbonq/pkg/domain"
)

type recordingSubmitter struct {
	events []domain.QueryEvent
}

func (r *recordingSubmitter) Submit(_ context.Context, event domain.QueryEvent) error {
	r.events = append(r.events, event)
	return nil
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

func newCapturer(sink *recordingSubmitter, clock *fakeClock) *Capturer {
	return New(sink, Options{Window: 800 * time.Millisecond, Now: func() time.Time { return clock.now }})
}

func TestSignalsWithinWindowCollapse(t *testing.T) {
	sink := &recordingSubmitter{}
	clock := &fakeClock{now: time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)}
	c := newCapturer(sink, clock)
	ctx := context.Background()

	if !c.Signal(ctx, domain.PlatformChatGPT) {
		t.Fatalf("first signal should be accepted")
	}
	for i := 0; i < 4; i++ {
		clock.advance(100 * time.Millisecond)
		if c.Signal(ctx, domain.PlatformChatGPT) {
			t.Fatalf("signal %d within window should be dropped", i+1)
		}
	}
	if len(sink.events) != 1 {
		t.Fatalf("5 signals within 800ms should produce 1 event, got %d", len(sink.events))
	}
}

func TestSignalsOutsideWindowAreDistinct(t *testing.T) {
	sink := &recordingSubmitter{}
	clock := &fakeClock{now: time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)}
	c := newCapturer(sink, clock)
	ctx := context.Background()

	if !c.Signal(ctx, domain.PlatformClaude) {
		t.Fatalf("first signal should be accepted")
	}
	clock.advance(900 * time.Millisecond)
	if !c.Signal(ctx, domain.PlatformClaude) {
		t.Fatalf("signal 900ms later should be accepted")
	}
	if len(sink.events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(sink.events))
	}
	if sink.events[0].ID == sink.events[1].ID {
		t.Fatalf("events should carry distinct IDs")
	}
}

func TestWindowMeasuredFromAcceptedSignal(t *testing.T) {
	sink := &recordingSubmitter{}
	clock := &fakeClock{now: time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)}
	c := newCapturer(sink, clock)
	ctx := context.Background()

	c.Signal(ctx, domain.PlatformGemini)
	clock.advance(700 * time.Millisecond)
	c.Signal(ctx, domain.PlatformGemini) // dropped, does not reset the window
	clock.advance(200 * time.Millisecond)
	if !c.Signal(ctx, domain.PlatformGemini) {
		t.Fatalf("900ms after the accepted signal should be accepted")
	}
	if len(sink.events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(sink.events))
	}
}

func TestUnknownPlatformRejected(t *testing.T) {
	sink := &recordingSubmitter{}
	clock := &fakeClock{now: time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)}
	c := newCapturer(sink, clock)

	if c.Signal(context.Background(), "bing") {
		t.Fatalf("unknown platform must be rejected")
	}
	if len(sink.events) != 0 {
		t.Fatalf("rejected signal must not produce an event")
	}
	// Rejection must not consume the debounce window.
	if !c.Signal(context.Background(), domain.PlatformChatGPT) {
		t.Fatalf("known platform right after a rejection should be accepted")
	}
}

func TestAcceptedEventCarriesTableEstimate(t *testing.T) {
	sink := &recordingSubmitter{}
	clock := &fakeClock{now: time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)}
	c := newCapturer(sink, clock)

	c.Signal(context.Background(), domain.PlatformPerplexity)
	if len(sink.events) != 1 {
		t.Fatalf("expected 1 event")
	}
	got := sink.events[0]
	if got.CarbonGrams != 4.0 {
		t.Fatalf("carbon grams: got %v, want 4.0", got.CarbonGrams)
	}
	if !got.OccurredAt.Equal(clock.now) {
		t.Fatalf("occurred at: got %v, want %v", got.OccurredAt, clock.now)
	}
}

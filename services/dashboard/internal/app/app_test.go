package app

import (
	"errors"
	"testing"
	"time"

	"carbonq/pkg/domain"
	"carbonq/pkg/store"
)

func newTestApp(t *testing.T) (*App, *store.MemoryStore) {
	t.Helper()
	dataStore := store.NewMemoryStore()
	sessions, err := store.NewJWTSessionStore("test-secret", time.Minute, store.NewMemoryTokenRevoker())
	if err != nil {
		t.Fatalf("new session store: %v", err)
	}
	appCore, err := New(Config{Store: dataStore, Sessions: sessions})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	return appCore, dataStore
}

func TestRecordQueryUsesTableEstimateWhenMissing(t *testing.T) {
	a, _ := newTestApp(t)

	record, err := a.RecordQuery("u-1", domain.PlatformClaude, 0, time.Time{}, nil)
	if err != nil {
		t.Fatalf("record query: %v", err)
	}
	if record.CarbonGrams != 3.5 {
		t.Fatalf("expected table estimate 3.5, got %v", record.CarbonGrams)
	}
	if record.UserID != "u-1" || record.ID == "" {
		t.Fatalf("unexpected record: %+v", record)
	}
	if record.CreatedAt.IsZero() {
		t.Fatal("expected server-side timestamp")
	}
}

func TestRecordQueryKeepsClientEstimate(t *testing.T) {
	a, _ := newTestApp(t)

	occurred := time.Now().UTC().Add(-time.Hour)
	record, err := a.RecordQuery("u-1", domain.PlatformChatGPT, 4.4, occurred, map[string]string{"source": "extension"})
	if err != nil {
		t.Fatalf("record query: %v", err)
	}
	if record.CarbonGrams != 4.4 {
		t.Fatalf("expected 4.4, got %v", record.CarbonGrams)
	}
	if !record.CreatedAt.Equal(occurred) {
		t.Fatalf("expected client timestamp kept, got %v", record.CreatedAt)
	}
	if record.Metadata["source"] != "extension" {
		t.Fatalf("expected metadata kept, got %v", record.Metadata)
	}
}

func TestRecordQueryRejectsUnknownPlatform(t *testing.T) {
	a, _ := newTestApp(t)
	if _, err := a.RecordQuery("u-1", "bing", 1, time.Time{}, nil); !errors.Is(err, ErrUnknownPlatform) {
		t.Fatalf("expected unknown platform error, got: %v", err)
	}
}

func TestRecordQueryRejectsFutureTimestamp(t *testing.T) {
	a, _ := newTestApp(t)
	future := time.Now().UTC().Add(time.Hour)
	if _, err := a.RecordQuery("u-1", domain.PlatformGemini, 1, future, nil); !errors.Is(err, ErrInvalidTimestamp) {
		t.Fatalf("expected invalid timestamp error, got: %v", err)
	}
}

func TestStatsAggregation(t *testing.T) {
	a, _ := newTestApp(t)

	for _, p := range []domain.Platform{domain.PlatformChatGPT, domain.PlatformClaude, domain.PlatformChatGPT} {
		if _, err := a.RecordQuery("u-1", p, 0, time.Time{}, nil); err != nil {
			t.Fatalf("record query: %v", err)
		}
	}

	out, err := a.Stats("u-1")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if out.TotalQueries != 3 {
		t.Fatalf("total queries = %d, want 3", out.TotalQueries)
	}
	if out.TotalCarbon != 12.3 {
		t.Fatalf("total carbon = %v, want 12.3", out.TotalCarbon)
	}
	if out.AvgCarbon != 4.1 {
		t.Fatalf("avg carbon = %v, want 4.1", out.AvgCarbon)
	}
	if out.PlatformCount != 2 || len(out.Platforms) != 2 {
		t.Fatalf("platform count = %d, want 2", out.PlatformCount)
	}
	if out.Platforms[0].Key != domain.PlatformChatGPT || out.Platforms[0].Rank != 1 {
		t.Fatalf("expected chatgpt ranked first, got %+v", out.Platforms[0])
	}

	// Stats are per-user.
	other, err := a.Stats("u-2")
	if err != nil {
		t.Fatalf("stats for other user: %v", err)
	}
	if other.TotalQueries != 0 {
		t.Fatalf("expected empty stats for other user, got %d", other.TotalQueries)
	}
}

func TestRecentDefaultsAndClamps(t *testing.T) {
	a, dataStore := newTestApp(t)

	base := time.Now().UTC().Add(-24 * time.Hour)
	for i := 0; i < 20; i++ {
		_ = dataStore.AppendQuery(domain.QueryRecord{
			ID:          "r" + string(rune('a'+i)),
			UserID:      "u-1",
			Platform:    domain.PlatformClaude,
			CarbonGrams: 3.5,
			CreatedAt:   base.Add(time.Duration(i) * time.Minute),
		})
	}

	recent, err := a.Recent("u-1", 0)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) != DefaultRecentLimit {
		t.Fatalf("default recent length = %d, want %d", len(recent), DefaultRecentLimit)
	}
	if recent[0].PlatformName != "Claude" {
		t.Fatalf("expected display name, got %q", recent[0].PlatformName)
	}

	clamped, err := a.Recent("u-1", MaxRecentLimit+50)
	if err != nil {
		t.Fatalf("recent clamped: %v", err)
	}
	if len(clamped) != 20 {
		t.Fatalf("clamped recent length = %d, want all 20", len(clamped))
	}
}

func TestWeeklyAndInsights(t *testing.T) {
	a, dataStore := newTestApp(t)

	now := time.Now().UTC()
	// Two active days inside the window and one record outside it.
	for _, offset := range []time.Duration{0, -24 * time.Hour} {
		_ = dataStore.AppendQuery(domain.QueryRecord{
			ID:          "in" + offset.String(),
			UserID:      "u-1",
			Platform:    domain.PlatformChatGPT,
			CarbonGrams: 4.4,
			CreatedAt:   now.Add(offset),
		})
	}
	_ = dataStore.AppendQuery(domain.QueryRecord{
		ID:          "out",
		UserID:      "u-1",
		Platform:    domain.PlatformChatGPT,
		CarbonGrams: 4.4,
		CreatedAt:   now.Add(-10 * 24 * time.Hour),
	})

	weekly, err := a.Weekly("u-1")
	if err != nil {
		t.Fatalf("weekly: %v", err)
	}
	if len(weekly.Days) != 7 {
		t.Fatalf("weekly days = %d, want 7", len(weekly.Days))
	}
	if weekly.TotalQueries != 2 {
		t.Fatalf("weekly total queries = %d, want 2 (outside-window record excluded)", weekly.TotalQueries)
	}

	insights, err := a.Insights("u-1")
	if err != nil {
		t.Fatalf("insights: %v", err)
	}
	// 8.8 g over 2 active days forecasts 30.8 for a full week.
	if insights.PredictedNextWeek != 30.8 {
		t.Fatalf("forecast = %v, want 30.8", insights.PredictedNextWeek)
	}
	if insights.Comparison.SufficientData {
		t.Fatal("two active days should not be sufficient for comparison")
	}
	if insights.Comparison.Baseline != domain.PlatformGoogleSearch {
		t.Fatalf("baseline = %q", insights.Comparison.Baseline)
	}
}

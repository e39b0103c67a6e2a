package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"carbonq/pkg/domain"
	"carbonq/pkg/platform"
	"carbonq/pkg/stats"
	"carbonq/pkg/store"
)

const (
	// DefaultRecentLimit is used when the recent-queries endpoint is called
	// without an explicit limit.
	DefaultRecentLimit = 15
	// MaxRecentLimit caps the recent-queries page size.
	MaxRecentLimit = 100

	// maxFutureSkew tolerates client clock drift on reported timestamps.
	maxFutureSkew = 5 * time.Minute
)

// Config holds runtime configuration for the dashboard core.
type Config struct {
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	JWTSecret     string
	JWTIssuer     string
	JWTAudience   string

	// Test seams; when set they take precedence over the URLs above.
	Store    store.Store
	Sessions store.SessionStore
}

// App wires query storage and the statistics engine for the dashboard
// service.
type App struct {
	store    store.Store
	sessions store.SessionStore

	// reads collapses concurrent identical dashboard reads into one store
	// round trip. Results are never cached beyond the in-flight call, so a
	// read started after a write always sees that write.
	reads singleflight.Group
}

// New constructs the application with database storage and token
// verification.
func New(cfg Config) (*App, error) {
	dataStore := cfg.Store
	if dataStore == nil {
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("database URL required")
		}
		var err error
		dataStore, err = store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
	}

	sessionStore := cfg.Sessions
	if sessionStore == nil {
		if strings.TrimSpace(cfg.RedisAddr) == "" {
			return nil, fmt.Errorf("redisAddr is required for session verification")
		}
		revoker := store.NewRedisTokenRevoker(cfg.RedisAddr, cfg.RedisPassword)
		jwtStore, err := store.NewJWTSessionStoreWithOptions(cfg.JWTSecret, 0, revoker, store.JWTOptions{
			Issuer:   cfg.JWTIssuer,
			Audience: cfg.JWTAudience,
		})
		if err != nil {
			return nil, fmt.Errorf("init jwt session store: %w", err)
		}
		sessionStore = jwtStore
	}

	return &App{
		store:    dataStore,
		sessions: sessionStore,
	}, nil
}

// UserIDFromToken verifies an access token issued by the auth service.
func (a *App) UserIDFromToken(token string) (string, bool) {
	uid, ok, err := a.sessions.GetUserIDByToken(token)
	if err != nil || !ok {
		return "", false
	}
	return uid, true
}

// RecordQuery appends one query record for the user. The platform must be in
// the emission table; a non-positive carbon value falls back to the table
// estimate so a buggy client cannot zero out its own footprint.
func (a *App) RecordQuery(userID string, p domain.Platform, carbonGrams float64, occurredAt time.Time, metadata map[string]string) (domain.QueryRecord, error) {
	if !platform.Known(p) {
		return domain.QueryRecord{}, fmt.Errorf("%w: %q", ErrUnknownPlatform, p)
	}
	if carbonGrams <= 0 {
		carbonGrams = platform.CarbonGrams(p)
	}
	now := time.Now().UTC()
	if occurredAt.IsZero() {
		occurredAt = now
	} else {
		occurredAt = occurredAt.UTC()
		if occurredAt.After(now.Add(maxFutureSkew)) {
			return domain.QueryRecord{}, ErrInvalidTimestamp
		}
	}

	record := domain.QueryRecord{
		ID:          uuid.NewString(),
		UserID:      userID,
		Platform:    p,
		CarbonGrams: carbonGrams,
		Metadata:    metadata,
		CreatedAt:   occurredAt,
	}
	if err := a.store.AppendQuery(record); err != nil {
		return domain.QueryRecord{}, fmt.Errorf("append query: %w", err)
	}
	return record, nil
}

// Stats returns the all-time aggregate view for the user.
func (a *App) Stats(userID string) (domain.Stats, error) {
	v, err, _ := a.reads.Do("stats:"+userID, func() (any, error) {
		records, err := a.store.ListQueriesByUser(userID)
		if err != nil {
			return nil, fmt.Errorf("list queries: %w", err)
		}
		return stats.Aggregate(records), nil
	})
	if err != nil {
		return domain.Stats{}, err
	}
	return v.(domain.Stats), nil
}

// Platforms returns the per-platform breakdown rows.
func (a *App) Platforms(userID string) ([]domain.PlatformStat, error) {
	aggregated, err := a.Stats(userID)
	if err != nil {
		return nil, err
	}
	return aggregated.Platforms, nil
}

// Recent returns the user's most recent queries, newest first. A limit of 0
// means DefaultRecentLimit; anything above MaxRecentLimit is clamped.
func (a *App) Recent(userID string, limit int) ([]domain.RecentQuery, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	if limit > MaxRecentLimit {
		limit = MaxRecentLimit
	}
	records, err := a.store.ListRecentQueries(userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent queries: %w", err)
	}
	out := make([]domain.RecentQuery, 0, len(records))
	for _, r := range records {
		out = append(out, domain.RecentQuery{
			ID:           r.ID,
			Platform:     r.Platform,
			PlatformName: platform.Name(r.Platform),
			CarbonGrams:  r.CarbonGrams,
			Timestamp:    r.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return out, nil
}

// Weekly returns the trailing seven-day series.
func (a *App) Weekly(userID string) (domain.Weekly, error) {
	v, err, _ := a.reads.Do("weekly:"+userID, func() (any, error) {
		now := time.Now().UTC()
		records, err := a.store.ListQueriesSince(userID, stats.WindowStart(now))
		if err != nil {
			return nil, fmt.Errorf("list queries: %w", err)
		}
		return stats.WeeklySeries(records, now), nil
	})
	if err != nil {
		return domain.Weekly{}, err
	}
	return v.(domain.Weekly), nil
}

// Insights returns trend, forecast, and baseline comparison.
func (a *App) Insights(userID string) (domain.Insights, error) {
	weekly, err := a.Weekly(userID)
	if err != nil {
		return domain.Insights{}, err
	}
	records, err := a.store.ListQueriesByUser(userID)
	if err != nil {
		return domain.Insights{}, fmt.Errorf("list queries: %w", err)
	}
	return domain.Insights{
		Trend:             stats.TrendOf(weekly),
		PredictedNextWeek: stats.Forecast(weekly),
		Comparison:        stats.Compare(records),
	}, nil
}

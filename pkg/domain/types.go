package domain

import "time"

// Platform identifies a tracked AI service or search engine.
type Platform string

const (
	PlatformChatGPT      Platform = "chatgpt"
	PlatformClaude       Platform = "claude"
	PlatformGemini       Platform = "gemini"
	PlatformPerplexity   Platform = "perplexity"
	PlatformGoogleSearch Platform = "google_search"
)

type UserStatus string

const (
	StatusActive   UserStatus = "active"
	StatusDisabled UserStatus = "disabled"
)

type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	Status       UserStatus `json:"status"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// QueryEvent is one detected query submission, created at capture time.
// Immutable once created; owned by the outbox until confirmed delivered.
type QueryEvent struct {
	ID          string    `json:"id"`
	Platform    Platform  `json:"platform"`
	CarbonGrams float64   `json:"carbonGrams"`
	OccurredAt  time.Time `json:"occurredAt"`
}

// QueryRecord is one durably stored (user, platform, carbon, timestamp) fact.
// Append-only; user scope is set server-side from the authenticated identity.
type QueryRecord struct {
	ID          string            `json:"id"`
	UserID      string            `json:"userId"`
	Platform    Platform          `json:"platform"`
	CarbonGrams float64           `json:"carbonGrams"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
}

// PlatformStat is one row of the per-platform breakdown.
type PlatformStat struct {
	Key        Platform `json:"key"`
	Name       string   `json:"name"`
	Color      string   `json:"color"`
	Icon       string   `json:"icon"`
	Count      int      `json:"count"`
	Carbon     float64  `json:"carbon"`
	Percentage float64  `json:"percentage"`
	Rank       int      `json:"rank"`
}

// Stats is the aggregate view over all of a user's records.
type Stats struct {
	TotalQueries  int            `json:"total_queries"`
	TotalCarbon   float64        `json:"total_carbon"`
	AvgCarbon     float64        `json:"avg_carbon"`
	PlatformCount int            `json:"platform_count"`
	Platforms     []PlatformStat `json:"platforms"`
}

// DayStat is one bucket of the weekly series.
type DayStat struct {
	Date    string  `json:"date"`
	Label   string  `json:"label"`
	Queries int     `json:"queries"`
	Carbon  float64 `json:"carbon"`
}

// Weekly is the trailing-7-day series. Buckets are UTC calendar days,
// oldest first, and always exactly seven of them.
type Weekly struct {
	Days         []DayStat `json:"days"`
	TotalQueries int       `json:"total_queries"`
	TotalCarbon  float64   `json:"total_carbon"`
}

type TrendDirection string

const (
	TrendUp   TrendDirection = "up"
	TrendDown TrendDirection = "down"
	TrendFlat TrendDirection = "flat"
)

// Trend compares the most recent three days of the weekly window
// against the first three.
type Trend struct {
	Direction TrendDirection `json:"direction"`
	Percent   float64        `json:"percent"`
}

// Comparison relates the user's footprint to the baseline platform.
type Comparison struct {
	Baseline       Platform `json:"baseline"`
	TimesMore      float64  `json:"times_more"`
	SufficientData bool     `json:"sufficient_data"`
}

// Insights bundles the derived read-side metrics served to the dashboard.
type Insights struct {
	Trend             Trend      `json:"trend"`
	PredictedNextWeek float64    `json:"predicted_next_week"`
	Comparison        Comparison `json:"comparison"`
}

// RecentQuery is a display-friendly projection of a QueryRecord.
type RecentQuery struct {
	ID           string   `json:"id"`
	Platform     Platform `json:"platform"`
	PlatformName string   `json:"platform_name"`
	CarbonGrams  float64  `json:"carbon_grams"`
	Timestamp    string   `json:"timestamp,omitempty"`
}

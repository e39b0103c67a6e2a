// Package stats derives read-side metrics from a user's query records.
// Every function is a pure computation over the rows it is given; callers
// decide how fresh those rows are.
package stats

import (
	"math"
	"sort"
	"time"

	"carbonq/pkg/domain"
	"carbonq/pkg/platform"
)

// WindowDays is the length of the weekly series.
const WindowDays = 7

// minActiveDays is how many distinct active days a user needs before the
// baseline comparison is considered meaningful.
const minActiveDays = 7

// trendThresholdPct is the relative change below which the trend is flat.
const trendThresholdPct = 5.0

// Aggregate computes totals and the per-platform breakdown.
// Platforms are sorted by count descending with ties broken by key
// ascending, so the ranking is deterministic.
func Aggregate(records []domain.QueryRecord) domain.Stats {
	counts := make(map[domain.Platform]int)
	carbon := make(map[domain.Platform]float64)
	totalCarbon := 0.0
	for _, r := range records {
		counts[r.Platform]++
		carbon[r.Platform] += r.CarbonGrams
		totalCarbon += r.CarbonGrams
	}
	totalQueries := len(records)

	platforms := make([]domain.PlatformStat, 0, len(counts))
	for key, count := range counts {
		pct := 0.0
		if totalQueries > 0 {
			pct = round1(float64(count) / float64(totalQueries) * 100)
		}
		platforms = append(platforms, domain.PlatformStat{
			Key:        key,
			Name:       platform.Name(key),
			Color:      platform.Color(key),
			Icon:       platform.Icon(key),
			Count:      count,
			Carbon:     round2(carbon[key]),
			Percentage: pct,
		})
	}
	sort.Slice(platforms, func(i, j int) bool {
		if platforms[i].Count != platforms[j].Count {
			return platforms[i].Count > platforms[j].Count
		}
		return platforms[i].Key < platforms[j].Key
	})
	for i := range platforms {
		platforms[i].Rank = i + 1
	}

	avg := 0.0
	if totalQueries > 0 {
		avg = round2(totalCarbon / float64(totalQueries))
	}
	return domain.Stats{
		TotalQueries:  totalQueries,
		TotalCarbon:   round2(totalCarbon),
		AvgCarbon:     avg,
		PlatformCount: len(platforms),
		Platforms:     platforms,
	}
}

// WeeklySeries buckets records into the trailing seven UTC calendar days,
// today included. Records outside the window are ignored; empty days are
// kept as zero buckets so the series always has exactly seven entries.
func WeeklySeries(records []domain.QueryRecord, now time.Time) domain.Weekly {
	start := WindowStart(now)

	type bucket struct {
		queries int
		carbon  float64
	}
	byDay := make(map[string]bucket)
	for _, r := range records {
		ts := r.CreatedAt.UTC()
		if ts.Before(start) || !ts.Before(start.AddDate(0, 0, WindowDays)) {
			continue
		}
		key := ts.Format("2006-01-02")
		b := byDay[key]
		b.queries++
		b.carbon += r.CarbonGrams
		byDay[key] = b
	}

	weekly := domain.Weekly{Days: make([]domain.DayStat, 0, WindowDays)}
	for i := 0; i < WindowDays; i++ {
		day := start.AddDate(0, 0, i)
		key := day.Format("2006-01-02")
		b := byDay[key]
		weekly.TotalQueries += b.queries
		weekly.TotalCarbon += b.carbon
		weekly.Days = append(weekly.Days, domain.DayStat{
			Date:    key,
			Label:   day.Weekday().String()[:3],
			Queries: b.queries,
			Carbon:  round2(b.carbon),
		})
	}
	weekly.TotalCarbon = round2(weekly.TotalCarbon)
	return weekly
}

// WindowStart returns midnight UTC of the oldest day in the weekly window.
func WindowStart(now time.Time) time.Time {
	now = now.UTC()
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return day.AddDate(0, 0, -(WindowDays - 1))
}

// TrendOf compares the mean carbon of the last three days against the first
// three days of the weekly window. A relative change within ±5% is flat,
// and a zero older mean is always flat to avoid dividing by zero.
func TrendOf(weekly domain.Weekly) domain.Trend {
	if len(weekly.Days) < WindowDays {
		return domain.Trend{Direction: domain.TrendFlat}
	}
	older := meanCarbon(weekly.Days[:3])
	recent := meanCarbon(weekly.Days[len(weekly.Days)-3:])
	if older == 0 {
		return domain.Trend{Direction: domain.TrendFlat}
	}
	pct := (recent - older) / older * 100
	direction := domain.TrendFlat
	switch {
	case pct > trendThresholdPct:
		direction = domain.TrendUp
	case pct < -trendThresholdPct:
		direction = domain.TrendDown
	}
	return domain.Trend{Direction: direction, Percent: round1(math.Abs(pct))}
}

// Forecast predicts next week's carbon from the mean of the window's
// active days, so sparse usage is not diluted by empty days.
func Forecast(weekly domain.Weekly) float64 {
	active := 0
	for _, d := range weekly.Days {
		if d.Carbon > 0 {
			active++
		}
	}
	if active == 0 {
		active = 1
	}
	return round1(weekly.TotalCarbon / float64(active) * WindowDays)
}

// Compare expresses the user's total footprint as a multiple of what the
// same number of queries would have cost on the baseline platform. The
// result is only flagged sufficient once the user has at least seven
// distinct active days of history.
func Compare(records []domain.QueryRecord) domain.Comparison {
	cmp := domain.Comparison{Baseline: platform.Baseline}
	if len(records) == 0 {
		return cmp
	}
	totalCarbon := 0.0
	days := make(map[string]struct{})
	for _, r := range records {
		totalCarbon += r.CarbonGrams
		days[r.CreatedAt.UTC().Format("2006-01-02")] = struct{}{}
	}
	baseline := float64(len(records)) * platform.BaselineGrams()
	if baseline > 0 {
		cmp.TimesMore = round1(totalCarbon / baseline)
	}
	cmp.SufficientData = len(days) >= minActiveDays
	return cmp
}

func meanCarbon(days []domain.DayStat) float64 {
	if len(days) == 0 {
		return 0
	}
	sum := 0.0
	for _, d := range days {
		sum += d.Carbon
	}
	return sum / float64(len(days))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

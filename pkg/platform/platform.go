// Package platform holds the closed set of tracked platforms and the
// fixed per-query carbon estimates attributed to each of them.
package platform

import "carbonq/pkg/domain"

// Baseline is the platform every comparison metric is expressed against.
const Baseline = domain.PlatformGoogleSearch

// Info describes one tracked platform.
type Info struct {
	Key         domain.Platform
	Name        string
	Color       string
	Icon        string
	CarbonGrams float64
}

// Grams-CO2 attributed to a single query. These are fixed estimates,
// not measurements.
var table = map[domain.Platform]Info{
	domain.PlatformChatGPT:      {Key: domain.PlatformChatGPT, Name: "ChatGPT", Color: "#10b981", Icon: "🤖", CarbonGrams: 4.4},
	domain.PlatformClaude:       {Key: domain.PlatformClaude, Name: "Claude", Color: "#f59e0b", Icon: "🧠", CarbonGrams: 3.5},
	domain.PlatformGemini:       {Key: domain.PlatformGemini, Name: "Gemini", Color: "#3b82f6", Icon: "✨", CarbonGrams: 1.6},
	domain.PlatformPerplexity:   {Key: domain.PlatformPerplexity, Name: "Perplexity", Color: "#8b5cf6", Icon: "🔍", CarbonGrams: 4.0},
	domain.PlatformGoogleSearch: {Key: domain.PlatformGoogleSearch, Name: "Google Search", Color: "#64748b", Icon: "🔎", CarbonGrams: 0.2},
}

// Known reports whether key is a tracked platform.
func Known(key domain.Platform) bool {
	_, ok := table[key]
	return ok
}

// Lookup returns platform info for a known key.
func Lookup(key domain.Platform) (Info, bool) {
	info, ok := table[key]
	return info, ok
}

// CarbonGrams returns the per-query estimate for key, or 0 for unknown keys.
func CarbonGrams(key domain.Platform) float64 {
	return table[key].CarbonGrams
}

// Name returns the display name for key, falling back to the raw key so
// rows recorded under a since-retired platform still render.
func Name(key domain.Platform) string {
	if info, ok := table[key]; ok {
		return info.Name
	}
	return string(key)
}

// Color returns the chart color for key, with a neutral fallback.
func Color(key domain.Platform) string {
	if info, ok := table[key]; ok {
		return info.Color
	}
	return "#6b7280"
}

// Icon returns the display icon for key, with a neutral fallback.
func Icon(key domain.Platform) string {
	if info, ok := table[key]; ok {
		return info.Icon
	}
	return "💬"
}

// BaselineGrams is the per-query estimate of the comparison baseline.
func BaselineGrams() float64 {
	return table[Baseline].CarbonGrams
}

package view

import (
	"math"

	"github.com/couchcryptid/pothole-monitor/internal/domain"
)

// TrendWindow is how many recent depths feed the trend line.
const TrendWindow = 12

// SeverityCounts tallies detections per level.
type SeverityCounts struct {
	High   int `json:"Alta"`
	Medium int `json:"Media"`
	Low    int `json:"Baja"`
}

// Of returns the count for one level.
func (c SeverityCounts) Of(s domain.Severity) int {
	switch s {
	case domain.SeverityHigh:
		return c.High
	case domain.SeverityMedium:
		return c.Medium
	case domain.SeverityLow:
		return c.Low
	default:
		return 0
	}
}

// Summary holds the dashboard statistics for a collection.
type Summary struct {
	Count        int               `json:"count"`
	BySeverity   SeverityCounts    `json:"bySeverity"`
	AverageDepth float64           `json:"averageDepth"`
	MaxDepth     float64           `json:"maxDepth"`
	Latest       *domain.Detection `json:"latest"`
	Trend        []float64         `json:"trend"`
}

// Summarize computes statistics over data, which is assumed newest first.
// Average and max are 0 for an empty collection.
func Summarize(data []domain.Detection) Summary {
	s := Summary{
		Count:        len(data),
		AverageDepth: AverageDepth(data),
		MaxDepth:     MaxDepth(data),
		Trend:        Trend(data, TrendWindow),
	}
	for _, d := range data {
		switch d.Severity {
		case domain.SeverityHigh:
			s.BySeverity.High++
		case domain.SeverityMedium:
			s.BySeverity.Medium++
		case domain.SeverityLow:
			s.BySeverity.Low++
		}
	}
	if len(data) > 0 {
		latest := data[0]
		s.Latest = &latest
	}
	return s
}

// AverageDepth is the mean depth rounded to one decimal.
func AverageDepth(data []domain.Detection) float64 {
	if len(data) == 0 {
		return 0
	}
	sum := 0.0
	for _, d := range data {
		sum += d.Depth
	}
	return math.Round(sum/float64(len(data))*10) / 10
}

// MaxDepth is the deepest reading.
func MaxDepth(data []domain.Detection) float64 {
	if len(data) == 0 {
		return 0
	}
	m := data[0].Depth
	for _, d := range data[1:] {
		m = math.Max(m, d.Depth)
	}
	return m
}

// Trend returns the depths of the newest window records in chronological
// order (oldest first).
func Trend(data []domain.Detection, window int) []float64 {
	n := min(window, len(data))
	out := make([]float64, max(n, 0))
	for i := range out {
		out[i] = data[n-1-i].Depth
	}
	return out
}

// sparkFloor keeps a flat series from dividing by zero.
const sparkFloor = 0.1

// Sparkline scales values onto levels discrete steps (0 = lowest), using
// the series' own min and max.
func Sparkline(values []float64, levels int) []int {
	if len(values) == 0 || levels <= 0 {
		return []int{}
	}
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	span := math.Max(hi-lo, sparkFloor)

	out := make([]int, len(values))
	for i, v := range values {
		step := int(math.Round((v - lo) / span * float64(levels-1)))
		out[i] = min(max(step, 0), levels-1)
	}
	return out
}

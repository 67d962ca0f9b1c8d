// Package view derives filtered subsets and summary statistics from a
// detection collection. Every function is pure: inputs are never mutated and
// each call returns a fresh result.
package view

import (
	"fmt"
	"strings"
	"time"

	"github.com/couchcryptid/pothole-monitor/internal/domain"
)

// All disables the severity or source criterion.
const All = "all"

// endOfDay widens an end date to cover the whole day, inclusive.
const endOfDay = 24*time.Hour - time.Millisecond

// Filter selects detections. Zero-valued fields match everything.
type Filter struct {
	Severity  string `form:"severity" json:"severity"`
	Source    string `form:"source" json:"source"`
	Search    string `form:"q" json:"search"`
	StartDate string `form:"from" json:"startDate"`
	EndDate   string `form:"to" json:"endDate"`
}

// DefaultFilter passes every record through.
func DefaultFilter() Filter {
	return Filter{Severity: All, Source: All}
}

// IsDefault reports whether f selects the whole collection.
func (f Filter) IsDefault() bool {
	return isAll(f.Severity) && isAll(f.Source) &&
		strings.TrimSpace(f.Search) == "" &&
		strings.TrimSpace(f.StartDate) == "" && strings.TrimSpace(f.EndDate) == ""
}

// Validate reports criteria that can never match: an unknown severity or an
// unparseable date bound.
func (f Filter) Validate() error {
	if !isAll(f.Severity) {
		if _, err := domain.ParseSeverity(f.Severity); err != nil {
			return err
		}
	}
	if _, ok := parseBound(f.StartDate); !ok {
		return fmt.Errorf("invalid start date %q", f.StartDate)
	}
	if _, ok := parseBound(f.EndDate); !ok {
		return fmt.Errorf("invalid end date %q", f.EndDate)
	}
	return nil
}

// Apply returns the records matching every criterion of f, in input order.
func Apply(data []domain.Detection, f Filter) []domain.Detection {
	m := f.compile()
	out := make([]domain.Detection, 0, len(data))
	for _, d := range data {
		if m.match(d) {
			out = append(out, d)
		}
	}
	return out
}

// Sources lists the distinct source tags in first-seen order, for building
// filter choices.
func Sources(data []domain.Detection) []string {
	seen := make(map[string]struct{}, 4)
	var out []string
	for _, d := range data {
		if _, ok := seen[d.Source]; ok {
			continue
		}
		seen[d.Source] = struct{}{}
		out = append(out, d.Source)
	}
	return out
}

type matcher struct {
	severity  string
	source    string
	search    string
	start     *time.Time
	end       *time.Time
	dateBound bool
	never     bool
}

func (f Filter) compile() matcher {
	m := matcher{search: strings.ToLower(strings.TrimSpace(f.Search))}

	if !isAll(f.Severity) {
		m.severity = f.Severity
		if s, err := domain.ParseSeverity(f.Severity); err == nil {
			m.severity = string(s)
		}
	}
	if !isAll(f.Source) {
		m.source = f.Source
	}

	start, startOK := parseBound(f.StartDate)
	end, endOK := parseBound(f.EndDate)
	m.never = !startOK || !endOK
	m.start = start
	if end != nil {
		e := end.Add(endOfDay)
		m.end = &e
	}
	m.dateBound = strings.TrimSpace(f.StartDate) != "" || strings.TrimSpace(f.EndDate) != ""
	return m
}

func (m matcher) match(d domain.Detection) bool {
	if m.never {
		return false
	}
	if m.severity != "" && string(d.Severity) != m.severity {
		return false
	}
	if m.source != "" && d.Source != m.source {
		return false
	}
	if m.search != "" && !containsFold(m.search, d.ID, d.Location, d.Raw, d.Source) {
		return false
	}
	if !m.dateBound {
		return true
	}

	ts, ok := d.Time()
	if !ok {
		return false
	}
	if m.start != nil && ts.Before(*m.start) {
		return false
	}
	if m.end != nil && ts.After(*m.end) {
		return false
	}
	return true
}

// parseBound reads an optional date bound. A blank value is (nil, true);
// an unparseable one is (nil, false).
func parseBound(value string) (*time.Time, bool) {
	if strings.TrimSpace(value) == "" {
		return nil, true
	}
	t, ok := domain.ParseTimestamp(value)
	if !ok {
		return nil, false
	}
	return &t, true
}

func containsFold(needle string, fields ...string) bool {
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), needle) {
			return true
		}
	}
	return false
}

func isAll(v string) bool {
	v = strings.TrimSpace(v)
	return v == "" || strings.EqualFold(v, All)
}

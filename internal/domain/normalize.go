package domain

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Placeholders for fields the sender did not supply.
const (
	DefaultLocation = "Trayecto sin etiquetar"
	DefaultVehicle  = "Vehículo demo"
	DefaultSource   = "HC-05"
)

// depthPlaces is the precision depths are stored with.
const depthPlaces = 2

// TimestampLayout is the ISO-8601 form used for generated timestamps.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Normalizer converts Readings into canonical Detections.
type Normalizer struct {
	calibration Calibration
	clock       clockwork.Clock
	newID       func() string
}

// NormalizerOption customizes a Normalizer.
type NormalizerOption func(*Normalizer)

// WithClock sets the time source for generated timestamps.
func WithClock(c clockwork.Clock) NormalizerOption {
	return func(n *Normalizer) {
		if c != nil {
			n.clock = c
		}
	}
}

// WithIDGenerator replaces the random ID source.
func WithIDGenerator(fn func() string) NormalizerOption {
	return func(n *Normalizer) {
		if fn != nil {
			n.newID = fn
		}
	}
}

// NewNormalizer creates a Normalizer bound to a calibration.
func NewNormalizer(cal Calibration, opts ...NormalizerOption) *Normalizer {
	n := &Normalizer{
		calibration: cal,
		clock:       clockwork.NewRealClock(),
		newID:       GenerateID,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Calibration returns the constants the normalizer classifies with.
func (n *Normalizer) Calibration() Calibration { return n.calibration }

// Normalize fills every absent field of r. The caller must have checked
// r.Valid(); an invalid depth is normalized as 0.
func (n *Normalizer) Normalize(r Reading) Detection {
	depth := 0.0
	if r.Valid() {
		depth = round(r.Depth, depthPlaces)
	}

	severity := n.calibration.Classify(depth)
	if r.Severity != nil && r.Severity.Valid() {
		severity = *r.Severity
	}

	return Detection{
		ID:        orDefault(r.ID, n.newID),
		Depth:     depth,
		Severity:  severity,
		Timestamp: orDefault(r.Timestamp, func() string { return FormatTimestamp(n.clock.Now()) }),
		Location:  orValue(r.Location, DefaultLocation),
		Raw:       orDefault(r.Raw, func() string { return FormatFrame(depth) }),
		Vehicle:   orValue(r.Vehicle, DefaultVehicle),
		Source:    orValue(r.Source, DefaultSource),
	}
}

// NormalizeBatch drops invalid readings and normalizes the rest, keeping
// their relative order. It never fails; an all-invalid batch yields an
// empty slice.
func (n *Normalizer) NormalizeBatch(readings []Reading) []Detection {
	out := make([]Detection, 0, len(readings))
	for _, r := range readings {
		if !r.Valid() {
			continue
		}
		out = append(out, n.Normalize(r))
	}
	return out
}

// GenerateID returns a random UUID, falling back to a timestamp plus random
// suffix when the system random source fails.
func GenerateID() string {
	id, err := uuid.NewRandom()
	if err != nil {
		return fallbackID(time.Now())
	}
	return id.String()
}

func fallbackID(now time.Time) string {
	return fmt.Sprintf("run-%d-%x", now.UnixMilli(), rand.Uint64())
}

// FormatTimestamp renders t in UTC with millisecond precision.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseTimestamp accepts RFC 3339 instants (with or without fractional
// seconds), zone-less date-times and bare dates, the latter two read as UTC.
func ParseTimestamp(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func round(v float64, places int) float64 {
	p := math.Pow10(places)
	scaled := v * p
	if math.IsInf(scaled, 0) {
		return v
	}
	return math.Round(scaled) / p
}

func orValue(v *string, def string) string {
	if v != nil {
		return *v
	}
	return def
}

func orDefault(v *string, def func() string) string {
	if v != nil {
		return *v
	}
	return def()
}

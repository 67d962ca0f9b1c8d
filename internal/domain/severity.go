package domain

import (
	"fmt"
	"strings"
)

// Severity is the ordinal classification of a detection. The string values
// are the labels stored and served on the wire.
type Severity string

const (
	SeverityLow    Severity = "Baja"
	SeverityMedium Severity = "Media"
	SeverityHigh   Severity = "Alta"
)

// Severities lists every level from most to least severe.
var Severities = []Severity{SeverityHigh, SeverityMedium, SeverityLow}

// Rank orders severities: Baja=1, Media=2, Alta=3. Unknown values rank 0.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	default:
		return 0
	}
}

// Valid reports whether s is one of the three known levels.
func (s Severity) Valid() bool { return s.Rank() > 0 }

// ParseSeverity accepts the wire labels and the English aliases
// low/medium/high, case-insensitively.
func ParseSeverity(value string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "baja", "low":
		return SeverityLow, nil
	case "media", "medium":
		return SeverityMedium, nil
	case "alta", "high":
		return SeverityHigh, nil
	default:
		return "", fmt.Errorf("unknown severity %q", value)
	}
}

// Classify maps a depth in centimeters to a severity. Breakpoints are
// inclusive at noiseCm (Media) and 2*noiseCm (Alta). depth must be finite
// and non-negative; invalid readings are rejected before they get here.
func Classify(depth, noiseCm float64) Severity {
	switch {
	case depth >= 2*noiseCm:
		return SeverityHigh
	case depth >= noiseCm:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Calibration holds the physical rig constants, fixed at startup.
type Calibration struct {
	BaselineDistanceCm float64 `json:"baselineDistanceCm"`
	SensorNoiseCm      float64 `json:"sensorNoiseCm"`
}

// DefaultCalibration matches the demo rig: 8.5 cm to flat pavement, ±3 cm jitter.
func DefaultCalibration() Calibration {
	return Calibration{BaselineDistanceCm: 8.5, SensorNoiseCm: 3}
}

// Thresholds are the depth breakpoints derived from a Calibration.
type Thresholds struct {
	Medium float64 `json:"medium"`
	High   float64 `json:"high"`
}

func (c Calibration) Thresholds() Thresholds {
	return Thresholds{Medium: c.SensorNoiseCm, High: 2 * c.SensorNoiseCm}
}

// Classify applies the calibration's noise tolerance to depth.
func (c Calibration) Classify(depth float64) Severity {
	return Classify(depth, c.SensorNoiseCm)
}

package domain

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"strconv"
	"time"
)

// Detection is the canonical record: every field is populated.
type Detection struct {
	ID        string   `json:"id"`
	Depth     float64  `json:"depth"`
	Severity  Severity `json:"severity"`
	Timestamp string   `json:"timestamp"`
	Location  string   `json:"location"`
	Raw       string   `json:"raw"`
	Vehicle   string   `json:"vehicle"`
	Source    string   `json:"source"`
}

// Time parses the detection timestamp. ok is false when it is not a
// recognizable ISO-8601 instant.
func (d Detection) Time() (time.Time, bool) {
	return ParseTimestamp(d.Timestamp)
}

// Reading is a raw, partially-specified payload as sent by the bridge or a
// manual POST. Only Depth is required; nil fields are filled by the
// Normalizer.
type Reading struct {
	Depth      float64
	DepthValid bool

	ID        *string
	Severity  *Severity
	Timestamp *string
	Location  *string
	Raw       *string
	Vehicle   *string
	Source    *string
}

// NewReading builds a valid reading with only the depth set.
func NewReading(depth float64) Reading {
	return Reading{Depth: depth, DepthValid: validDepth(depth)}
}

// Valid reports whether the reading carries a usable depth.
func (r Reading) Valid() bool {
	return r.DepthValid && validDepth(r.Depth)
}

// validDepth also rejects depths too large to survive rounding to
// depthPlaces decimals.
func validDepth(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0 &&
		!math.IsInf(v*math.Pow10(depthPlaces), 0)
}

// readingJSON is the wire form of a Reading. Depth stays raw so a
// non-numeric value invalidates only this entry.
type readingJSON struct {
	Depth     json.RawMessage `json:"depth,omitempty"`
	ID        *string         `json:"id,omitempty"`
	Severity  *string         `json:"severity,omitempty"`
	Timestamp *string         `json:"timestamp,omitempty"`
	Location  *string         `json:"location,omitempty"`
	Raw       *string         `json:"raw,omitempty"`
	Vehicle   *string         `json:"vehicle,omitempty"`
	Source    *string         `json:"source,omitempty"`
}

// UnmarshalJSON decodes a reading. A depth that is absent, null, a string or
// any other non-number leaves DepthValid false instead of failing. An
// unrecognized severity label is treated as absent.
func (r *Reading) UnmarshalJSON(data []byte) error {
	var aux readingJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	*r = Reading{
		ID:        aux.ID,
		Timestamp: aux.Timestamp,
		Location:  aux.Location,
		Raw:       aux.Raw,
		Vehicle:   aux.Vehicle,
		Source:    aux.Source,
	}
	r.Depth, r.DepthValid = parseDepth(aux.Depth)

	if aux.Severity != nil {
		if s, err := ParseSeverity(*aux.Severity); err == nil {
			r.Severity = &s
		}
	}
	return nil
}

// MarshalJSON encodes only the fields that are set.
func (r Reading) MarshalJSON() ([]byte, error) {
	aux := readingJSON{
		ID:        r.ID,
		Timestamp: r.Timestamp,
		Location:  r.Location,
		Raw:       r.Raw,
		Vehicle:   r.Vehicle,
		Source:    r.Source,
	}
	if r.Valid() {
		aux.Depth = strconv.AppendFloat(nil, r.Depth, 'f', -1, 64)
	}
	if r.Severity != nil {
		s := string(*r.Severity)
		aux.Severity = &s
	}
	return json.Marshal(aux)
}

func parseDepth(raw json.RawMessage) (float64, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return 0, false
	}
	// Only JSON numbers start with '-' or a digit.
	if c := raw[0]; c != '-' && (c < '0' || c > '9') {
		return 0, false
	}
	v, err := strconv.ParseFloat(string(raw), 64)
	if err != nil {
		return 0, false
	}
	return v, validDepth(v)
}

// FeedPage is the body of GET /api/detections.
type FeedPage struct {
	Detections []Detection `json:"detections"`
	LastUpdate *string     `json:"lastUpdate"`
}

// NewFeedPage wraps a newest-first collection; LastUpdate is the first
// record's timestamp, or nil when empty.
func NewFeedPage(detections []Detection) FeedPage {
	if detections == nil {
		detections = []Detection{}
	}
	page := FeedPage{Detections: detections}
	if len(detections) > 0 {
		ts := detections[0].Timestamp
		page.LastUpdate = &ts
	}
	return page
}

// RawEvent represents an unprocessed message from the source topic.
type RawEvent struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	// ErrInvalidPayload means the body is not a JSON object or array.
	ErrInvalidPayload = errors.New("invalid payload")

	// ErrNoValidReadings means every entry of a batch was dropped.
	ErrNoValidReadings = errors.New("no valid readings")

	// ErrInvalidFrame means a serial line does not carry a usable depth.
	ErrInvalidFrame = errors.New("invalid frame")
)

// DecodeReadings parses a body holding one reading object or an array of
// them. Entries that fail to decode are kept as invalid readings so the
// caller can count what was dropped; only a malformed body is an error.
func DecodeReadings(body []byte) ([]Reading, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrInvalidPayload)
	}

	var entries []json.RawMessage
	if body[0] == '[' {
		if err := json.Unmarshal(body, &entries); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
		}
	} else {
		if !json.Valid(body) {
			return nil, fmt.Errorf("%w: malformed JSON", ErrInvalidPayload)
		}
		entries = []json.RawMessage{body}
	}

	readings := make([]Reading, len(entries))
	for i, entry := range entries {
		var r Reading
		if err := json.Unmarshal(entry, &r); err != nil {
			continue
		}
		readings[i] = r
	}
	return readings, nil
}

// FramePrefix is the marker the sketch prints before each depth.
const FramePrefix = "BACHE"

// ParseFrame extracts the depth from a serial line such as "BACHE 3.90".
// The prefix is optional so a bare "3.90" is accepted too.
func ParseFrame(line string) (float64, error) {
	value := strings.TrimSpace(strings.Replace(line, FramePrefix, "", 1))
	if value == "" {
		return 0, fmt.Errorf("%w: %q has no depth", ErrInvalidFrame, line)
	}
	depth, err := strconv.ParseFloat(value, 64)
	if err != nil || math.IsNaN(depth) || math.IsInf(depth, 0) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidFrame, line)
	}
	if depth < 0 {
		return 0, fmt.Errorf("%w: negative depth in %q", ErrInvalidFrame, line)
	}
	if !validDepth(depth) {
		return 0, fmt.Errorf("%w: depth out of range in %q", ErrInvalidFrame, line)
	}
	return depth, nil
}

// FormatFrame renders a depth the way the sketch prints it.
func FormatFrame(depth float64) string {
	return fmt.Sprintf("%s %.2f", FramePrefix, depth)
}

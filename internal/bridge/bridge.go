// Package bridge forwards depth frames from the sensor's serial link to the
// monitor API.
//
// The sensor prints one frame per line, "BACHE <depth>", terminated by CRLF.
// Each parseable frame becomes a single POST; malformed frames are logged
// and skipped so a noisy link never stops the bridge.
package bridge

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/couchcryptid/pothole-monitor/internal/domain"
	"github.com/couchcryptid/pothole-monitor/internal/feed"
)

// Defaults for frames forwarded by the bridge.
const (
	DefaultLocation = "Ruta demo"
	DefaultSource   = "HC-05"
)

// Submitter posts readings to the monitor.
type Submitter interface {
	Submit(ctx context.Context, readings ...domain.Reading) (feed.SubmitResult, error)
}

// Options tags forwarded readings.
type Options struct {
	Location string
	Source   string
}

// Stats counts what a Run did.
type Stats struct {
	Lines     int
	Forwarded int
	Skipped   int
	Failed    int
}

// Run reads frames from r until EOF or ctx ends. A failed POST is logged
// and counted; it does not stop the bridge.
func Run(ctx context.Context, r io.Reader, sub Submitter, opts Options, logger *slog.Logger) (Stats, error) {
	if opts.Location == "" {
		opts.Location = DefaultLocation
	}
	if opts.Source == "" {
		opts.Source = DefaultSource
	}

	var stats Stats
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		stats.Lines++

		reading, err := FrameReading(line, opts)
		if err != nil {
			stats.Skipped++
			logger.Debug("skipping frame", "line", line, "error", err)
			continue
		}

		res, err := sub.Submit(ctx, reading)
		if err != nil {
			if errors.Is(err, context.Canceled) && ctx.Err() != nil {
				return stats, ctx.Err()
			}
			stats.Failed++
			logger.Warn("forward frame failed", "line", line, "error", err)
			continue
		}
		stats.Forwarded++
		logger.Info("frame forwarded", "depth", reading.Depth, "stored", res.Stored)
	}
	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("read serial: %w", err)
	}
	return stats, nil
}

// FrameReading turns a serial line into the reading the bridge posts.
func FrameReading(line string, opts Options) (domain.Reading, error) {
	depth, err := domain.ParseFrame(line)
	if err != nil {
		return domain.Reading{}, err
	}
	r := domain.NewReading(depth)
	r.Location = &opts.Location
	r.Source = &opts.Source
	raw := strings.TrimSpace(line)
	r.Raw = &raw
	return r, nil
}

// Command seed writes the demo dataset as JSON fixtures and can load it into
// a running monitor or straight into a SQLite database. It runs the real
// normalizer so the fixtures match what the API stores.
//
// Usage:
//
//	go run ./cmd/seed -readings-out data/mock/readings.json -detections-out data/mock/detections.json
//	go run ./cmd/seed -api http://localhost:8080
//	go run ./cmd/seed -sqlite data/detections.db -synthetic 50
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"os"
	"path/filepath"
	"time"

	"github.com/couchcryptid/pothole-monitor/internal/domain"
	"github.com/couchcryptid/pothole-monitor/internal/feed"
	"github.com/couchcryptid/pothole-monitor/internal/storage"
	"github.com/couchcryptid/pothole-monitor/internal/view"
	"github.com/jonboulle/clockwork"
)

var baseTime = time.Date(2024, time.May, 12, 15, 5, 0, 0, time.UTC)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	readingsOut := flag.String("readings-out", "", "output path for the raw readings fixture")
	detectionsOut := flag.String("detections-out", "", "output path for the normalized detections fixture")
	api := flag.String("api", "", "monitor base URL to POST the readings to")
	sqlitePath := flag.String("sqlite", "", "SQLite database to insert the detections into")
	synthetic := flag.Int("synthetic", 0, "number of extra synthetic readings to append")
	noise := flag.Float64("noise", domain.DefaultCalibration().SensorNoiseCm, "sensor noise in cm used for classification")
	flag.Parse()

	if *readingsOut == "" && *detectionsOut == "" && *api == "" && *sqlitePath == "" {
		flag.Usage()
		return fmt.Errorf("nothing to do: set -readings-out, -detections-out, -api or -sqlite")
	}

	readings := domain.SeedReadings()
	readings = append(readings, syntheticReadings(*synthetic)...)

	// Fixed clock and sequential IDs for reproducible fixtures.
	seq := 0
	cal := domain.DefaultCalibration()
	cal.SensorNoiseCm = *noise
	normalizer := domain.NewNormalizer(cal,
		domain.WithClock(clockwork.NewFakeClockAt(baseTime)),
		domain.WithIDGenerator(func() string {
			seq++
			return fmt.Sprintf("seed-%03d", seq)
		}),
	)
	detections := normalizer.NormalizeBatch(readings)
	log.Printf("readings: %d, detections: %d", len(readings), len(detections))

	if *readingsOut != "" {
		if err := writeJSON(*readingsOut, readings); err != nil {
			return fmt.Errorf("writing readings fixture: %w", err)
		}
		log.Printf("wrote readings fixture: %s", *readingsOut)
	}
	if *detectionsOut != "" {
		if err := writeJSON(*detectionsOut, detections); err != nil {
			return fmt.Errorf("writing detections fixture: %w", err)
		}
		log.Printf("wrote detections fixture: %s", *detectionsOut)
	}

	ctx := context.Background()

	if *api != "" {
		res, err := feed.NewClient(*api, 10*time.Second).Submit(ctx, readings...)
		if err != nil {
			return fmt.Errorf("posting readings: %w", err)
		}
		log.Printf("monitor stored %d detections", res.Stored)
	}

	if *sqlitePath != "" {
		store, err := storage.OpenSQLite(ctx, *sqlitePath)
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.Insert(ctx, detections); err != nil {
			return fmt.Errorf("inserting detections: %w", err)
		}
		n, err := store.Count(ctx)
		if err != nil {
			return err
		}
		log.Printf("sqlite %s now holds %d detections", *sqlitePath, n)
	}

	printStats(detections)
	return nil
}

// syntheticReadings produces n readings a few seconds apart, oldest last,
// with depths spread over every severity band. The generator is seeded so
// the output is stable.
func syntheticReadings(n int) []domain.Reading {
	rng := rand.New(rand.NewPCG(42, 2024))
	sources := []string{"HC-05", "USB"}
	out := make([]domain.Reading, 0, n)
	for i := range n {
		depth := float64(int(rng.Float64()*800)) / 100
		r := domain.NewReading(depth)
		ts := domain.FormatTimestamp(baseTime.Add(-time.Duration(i+1) * 7 * time.Second))
		raw := domain.FormatFrame(depth)
		src := sources[i%len(sources)]
		r.Timestamp = &ts
		r.Raw = &raw
		r.Source = &src
		out = append(out, r)
	}
	return out
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o600)
}

func printStats(detections []domain.Detection) {
	s := view.Summarize(detections)

	fmt.Println("\n=== Stats for updating test assertions ===")
	fmt.Printf("Total: %d\n", s.Count)
	fmt.Printf("By severity: Alta=%d, Media=%d, Baja=%d\n",
		s.BySeverity.High, s.BySeverity.Medium, s.BySeverity.Low)
	fmt.Printf("Average depth: %.1f cm, max: %.2f cm\n", s.AverageDepth, s.MaxDepth)
	fmt.Printf("Sources: %v\n", view.Sources(detections))
	if s.Latest != nil {
		fmt.Printf("Latest: %s %.2f cm (%s)\n", s.Latest.ID, s.Latest.Depth, s.Latest.Timestamp)
	}
}

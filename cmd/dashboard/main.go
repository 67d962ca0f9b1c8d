// Command dashboard polls the monitor's feed and redraws a terminal panel on
// every update.
//
// Usage:
//
//	go run ./cmd/dashboard -api http://localhost:8080 -severity Alta
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/couchcryptid/pothole-monitor/internal/dashboard"
	"github.com/couchcryptid/pothole-monitor/internal/feed"
	"github.com/couchcryptid/pothole-monitor/internal/observability"
	"github.com/couchcryptid/pothole-monitor/internal/view"
	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "dashboard:", err)
		os.Exit(1)
	}
}

func run() error {
	api := flag.String("api", sharedcfg.EnvOrDefault("MONITOR_URL", "http://localhost:8080"), "monitor base URL")
	interval := flag.Duration("interval", feed.DefaultInterval, "polling interval")
	// Each poll cancels the previous request, so no client timeout by default.
	timeout := flag.Duration("timeout", 0, "HTTP timeout per request (0 disables)")
	f := view.DefaultFilter()
	flag.StringVar(&f.Severity, "severity", view.All, "severity filter (Alta, Media, Baja or all)")
	flag.StringVar(&f.Source, "source", view.All, "source filter")
	flag.StringVar(&f.Search, "q", "", "free-text search")
	flag.StringVar(&f.StartDate, "from", "", "start date, YYYY-MM-DD")
	flag.StringVar(&f.EndDate, "to", "", "end date, YYYY-MM-DD (inclusive)")
	flag.Parse()

	if err := f.Validate(); err != nil {
		return err
	}

	// Logs go to stderr at warn so they do not interleave with the panel.
	logger := observability.NewLoggerTo(os.Stderr, sharedcfg.EnvOrDefault("LOG_LEVEL", "warn"), "text")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	renderer := dashboard.NewRenderer(os.Stdout, dashboard.IsTerminal(os.Stdout), f, time.Local)
	if err := renderer.Render(feed.Snapshot{Status: feed.StatusConnecting}); err != nil {
		return err
	}

	poller := feed.NewPoller(feed.NewClient(*api, *timeout),
		feed.WithInterval(*interval),
		feed.WithLogger(logger),
		feed.OnChange(func(s feed.Snapshot) {
			if err := renderer.Render(s); err != nil {
				logger.Error("render failed", "error", err)
			}
		}),
	)
	poller.Run(ctx)
	return nil
}

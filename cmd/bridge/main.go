// Command bridge reads "BACHE <depth>" frames from the sensor's serial port
// (Bluetooth HC-05 or USB) and posts each one to the monitor API.
//
// Usage:
//
//	go run ./cmd/bridge -device /dev/rfcomm0 -api http://localhost:8080
//	cat frames.txt | go run ./cmd/bridge -device -
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/couchcryptid/pothole-monitor/internal/bridge"
	"github.com/couchcryptid/pothole-monitor/internal/feed"
	"github.com/couchcryptid/pothole-monitor/internal/observability"
	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"go.bug.st/serial"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "bridge:", err)
		os.Exit(1)
	}
}

func run() error {
	device := flag.String("device", sharedcfg.EnvOrDefault("SERIAL_DEVICE", "/dev/rfcomm0"), `serial device, or "-" for stdin`)
	baud := flag.Int("baud", 9600, "serial baud rate")
	api := flag.String("api", sharedcfg.EnvOrDefault("MONITOR_URL", "http://localhost:8080"), "monitor base URL")
	location := flag.String("location", bridge.DefaultLocation, "location tag for forwarded frames")
	source := flag.String("source", bridge.DefaultSource, "source tag for forwarded frames")
	timeout := flag.Duration("timeout", 5*time.Second, "HTTP timeout per POST")
	flag.Parse()

	logger := observability.NewLogger(sharedcfg.EnvOrDefault("LOG_LEVEL", "info"), sharedcfg.EnvOrDefault("LOG_FORMAT", "text"))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var in io.Reader = os.Stdin
	if *device != "-" {
		port, err := serial.Open(*device, &serial.Mode{BaudRate: *baud})
		if err != nil {
			return fmt.Errorf("open %s: %w", *device, err)
		}
		defer port.Close()
		// Closing the port unblocks the pending Read on shutdown.
		go func() {
			<-ctx.Done()
			_ = port.Close()
		}()
		in = port
		logger.Info("serial port open", "device", *device, "baud", *baud)
	}

	client := feed.NewClient(*api, *timeout)
	stats, err := bridge.Run(ctx, in, client, bridge.Options{Location: *location, Source: *source}, logger)
	logger.Info("bridge stopped",
		"lines", stats.Lines, "forwarded", stats.Forwarded, "skipped", stats.Skipped, "failed", stats.Failed)
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

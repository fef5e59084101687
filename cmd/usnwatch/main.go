//go:build windows

package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
)

//nolint:gochecknoglobals
var (
	volumeFlag    = flag.String("volume", "", "drive letter of the volume to watch (overrides .env)")
	followFlag    = flag.Bool("follow", true, "keep waiting for new journal records")
	closeOnlyFlag = flag.Bool("close-only", false, "only report records written on file close")
	cacheFlag     = flag.Int("cache", 0, "path cache capacity (overrides .env)")
	verboseFlag   = flag.Bool("verbose", false, "enable debug logging")
)

func setupLogging(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	slog.SetDefault(slog.New(
		tint.NewHandler(os.Stdout, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		}),
	))
}

func setupSignalHandlers(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		<-sigChan
		slog.Info("Shutting down...")
		cancel()
	}()
}

func main() {
	flag.Parse()
	setupLogging(*verboseFlag)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	setupSignalHandlers(cancel)

	if err := watch(ctx, loadConfig()); err != nil && ctx.Err() == nil {
		slog.Error("Watch failed", "err", err)
		os.Exit(1)
	}
}

//go:build windows

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"

	"github.com/wangfu91/usn-journal-go/journal"
	"github.com/wangfu91/usn-journal-go/mft"
	"github.com/wangfu91/usn-journal-go/pathing"
	"github.com/wangfu91/usn-journal-go/usn"
	"github.com/wangfu91/usn-journal-go/volume"
)

type config struct {
	volume    byte
	cacheSize int
}

// loadConfig merges an optional .env file with the command line flags,
// flags winning.
func loadConfig() config {
	cfg := config{volume: 'C'}

	if env, err := godotenv.Read(".env"); err == nil {
		if v := env["USNWATCH_VOLUME"]; v != "" {
			cfg.volume = v[0]
		}
		if v := env["USNWATCH_CACHE_SIZE"]; v != "" {
			if size, err := strconv.Atoi(v); err == nil {
				cfg.cacheSize = size
			}
		}
	}

	if *volumeFlag != "" {
		cfg.volume = (*volumeFlag)[0]
	}
	if *cacheFlag > 0 {
		cfg.cacheSize = *cacheFlag
	}

	return cfg
}

func watch(ctx context.Context, cfg config) error {
	vol, err := volume.Open(cfg.volume)
	if err != nil {
		return fmt.Errorf("open volume: %w", err)
	}
	defer vol.Close()

	j := journal.New(vol)

	stats, err := j.Query(ctx, true)
	if err != nil {
		return err
	}
	slog.Info("USN journal active",
		"journalID", fmt.Sprintf("%#x", stats.JournalID),
		"firstUSN", stats.FirstUSN,
		"nextUSN", stats.NextUSN,
		"maxSize", humanize.IBytes(stats.MaximumSize),
		"allocationDelta", humanize.IBytes(stats.AllocationDelta),
	)

	table, err := buildLinkTable(ctx, vol)
	if err != nil {
		return err
	}

	resolver := pathing.NewResolver(table, pathing.Options{
		CacheSize: cfg.cacheSize,
		Prefix:    string(vol.DriveLetter) + ":",
	})

	reader, err := j.Reader(ctx, journal.Options{
		StartUSN:    stats.NextUSN,
		OnlyOnClose: *closeOnlyFlag,
		WaitForMore: *followFlag,
	})
	if err != nil {
		return err
	}

	for {
		rec, err := reader.Next(ctx)
		if errors.Is(err, io.EOF) {
			slog.Info("Reached journal head", "cursor", reader.Cursor())

			return nil
		}
		if err != nil {
			var perr *usn.ParseError
			if errors.As(err, &perr) {
				slog.Warn("Skipped malformed journal record", "err", err)

				continue
			}

			return err
		}

		report(table, resolver, vol, rec)
	}
}

// buildLinkTable runs one full MFT pass so journal records can be resolved
// to paths without per-record OS calls.
func buildLinkTable(ctx context.Context, vol *volume.Volume) (*pathing.Table, error) {
	slog.Info("Enumerating MFT...")

	table := pathing.NewTable()
	pass := mft.New(vol, mft.Options{}).Scan()
	if err := mft.CollectLinks(ctx, pass, table); err != nil {
		return nil, err
	}

	slog.Info("MFT enumerated", "links", table.Len())

	return table, nil
}

func report(table *pathing.Table, resolver *pathing.Resolver, vol *volume.Volume, rec usn.Record) {
	// Keep the link table current so later records resolve correctly.
	switch {
	case rec.Reason.Has(usn.ReasonFileDelete):
		table.Remove(rec.FileRef)
	case rec.Name != "":
		table.Insert(rec.FileRef, rec.ParentRef, rec.Name)
	}

	path, err := resolver.Resolve(rec.FileRef)
	if err != nil {
		// The table only covers records seen so far; fall back to the live
		// volume for anything else.
		if path, err = vol.PathByID(rec.FileRef); err != nil {
			path = rec.Name
		}
	}

	slog.Info("Change",
		"usn", rec.USN,
		"reason", rec.Reason.String(),
		"path", path,
	)
}

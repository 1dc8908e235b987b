package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/railgtfs/railgtfs"
	"github.com/railgtfs/railgtfs/downloader"
	"github.com/railgtfs/railgtfs/feed"
	"github.com/railgtfs/railgtfs/model"
	"github.com/railgtfs/railgtfs/storage"
)

var departuresCmd = &cobra.Command{
	Use:   "departures <stop_id>",
	Short: "Lists departures from a stop, from a GTFS zip or a feed built in memory",
	Args:  cobra.ExactArgs(1),
	RunE:  departures,
}

var (
	day      string
	limit    int
	feedPath string
)

func init() {
	departuresCmd.Flags().StringVarP(&day, "date", "d", "", "Service date, YYYY-MM-DD (default today)")
	departuresCmd.Flags().IntVarP(&limit, "limit", "l", -1, "Limit the number of departures returned")
	departuresCmd.Flags().StringVarP(&feedPath, "feed", "f", "", "Read a previously built GTFS zip instead of building one")
	rootCmd.AddCommand(departuresCmd)
}

func departures(cmd *cobra.Command, args []string) error {
	stopID := args[0]

	date := time.Now()
	if day != "" {
		var err error
		date, err = time.Parse("2006-01-02", day)
		if err != nil {
			return fmt.Errorf("invalid date: %w", err)
		}
	}

	var f *feed.Feed
	var err error
	if feedPath != "" {
		f, err = readFeed(feedPath)
	} else {
		f, err = buildFeed(cmd.Context())
	}
	if err != nil {
		return err
	}

	deps := f.Departures(stopID, date)
	if limit >= 0 && len(deps) > limit {
		deps = deps[:limit]
	}

	for _, dep := range deps {
		fmt.Printf("%s %-4s %-5s %s -> %s\n", model.FormatTime(dep.Time), dep.Platform, dep.RouteID, dep.ShortName, dep.Headsign)
	}

	return nil
}

func readFeed(path string) (*feed.Feed, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	f, err := storage.ReadZipFeed(buf)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return f, nil
}

func buildFeed(ctx context.Context) (*feed.Feed, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	d, err := openDownloader(cfg)
	if err != nil {
		return nil, err
	}
	files, err := downloader.GetAll(ctx, d, cfg.Input.Files)
	if err != nil {
		return nil, fmt.Errorf("retrieving timetables: %w", err)
	}

	geo, err := openGeography(cfg)
	if err != nil {
		return nil, err
	}
	defer geo.Close()

	result, err := railgtfs.Run(ctx, files, geo, cfg.Options())
	if err != nil {
		return nil, err
	}

	w := storage.NewMemoryFeedWriter()
	if err := storage.WriteFeed(w, result.Feed); err != nil {
		return nil, err
	}
	return w.Feed, nil
}

package main

import (
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/railgtfs/railgtfs/parse"
	"github.com/railgtfs/railgtfs/storage"
)

var stopsCmd = &cobra.Command{
	Use:   "stops [lat lng] [limit]",
	Short: "Lists stops in the geography, nearest first if given a location",
	Args:  cobra.RangeArgs(0, 3),
	RunE:  listStops,
}

var importStopsCmd = &cobra.Command{
	Use:   "import <stops.csv>",
	Short: "Replaces the stops of a SQLite or Postgres geography with those in a CSV file",
	Args:  cobra.ExactArgs(1),
	RunE:  importStops,
}

func init() {
	stopsCmd.AddCommand(importStopsCmd)
	rootCmd.AddCommand(stopsCmd)
}

func listStops(cmd *cobra.Command, args []string) error {
	var lat, lng float64
	var limit int
	var err error

	gotLocation := false
	if len(args) == 1 {
		return fmt.Errorf("missing lng")
	}
	if len(args) >= 2 {
		gotLocation = true
		lat, err = strconv.ParseFloat(args[0], 64)
		if err != nil {
			return fmt.Errorf("invalid lat: %w", err)
		}
		lng, err = strconv.ParseFloat(args[1], 64)
		if err != nil {
			return fmt.Errorf("invalid lng: %w", err)
		}
	}
	if len(args) == 3 {
		limit, err = strconv.Atoi(args[2])
		if err != nil {
			return fmt.Errorf("invalid limit: %w", err)
		}
		if limit < 0 {
			return fmt.Errorf("limit must be >= 0")
		}
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	geo, err := openGeography(cfg)
	if err != nil {
		return err
	}
	defer geo.Close()

	all, err := geo.Stops()
	if err != nil {
		return err
	}

	stops := all
	if gotLocation {
		stops = storage.NearbyStops(all, lat, lng, limit)
	} else {
		// sort by name
		sort.Slice(stops, func(i, j int) bool {
			if stops[i].Name != stops[j].Name {
				return stops[i].Name < stops[j].Name
			}
			return stops[i].ID < stops[j].ID
		})
	}

	for _, stop := range stops {
		if gotLocation {
			fmt.Printf("%s: %s (%.1f km)\n", stop.ID, stop.Name, storage.HaversineDistance(lat, lng, stop.Lat, stop.Lon))
			continue
		}
		fmt.Printf("%s: %s\n", stop.ID, stop.Name)
	}

	return nil
}

func importStops(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	stops, err := parse.ParseStops(f)
	if err != nil {
		return err
	}

	lookup, err := openSQLGeography(cfg)
	if err != nil {
		return err
	}
	defer lookup.Close()

	if err := lookup.ReplaceStops(stops); err != nil {
		return fmt.Errorf("importing stops: %w", err)
	}
	log.Info().Int("stops", len(stops)).Str("kind", cfg.Geography.Kind).Msg("imported stop geography")

	return nil
}

package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/railgtfs/railgtfs/config"
	"github.com/railgtfs/railgtfs/downloader"
	"github.com/railgtfs/railgtfs/model"
	"github.com/railgtfs/railgtfs/stops"
	"github.com/railgtfs/railgtfs/storage"
)

var rootCmd = &cobra.Command{
	Use:               "railgtfs",
	Short:             "Railway timetable to GTFS converter",
	Long:              "Builds GTFS feeds out of an operator's railway timetable exports",
	SilenceUsage:      true,
	PersistentPreRunE: setupLogging,
}

var (
	configPath    string
	logLevel      string
	logFormat     string
	inputURL      string
	inputDir      string
	inputHeaders  []string
	geographyPath string
	geographyKind string
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVarP(&logFormat, "log-format", "", "console", "Log format (console, json)")
	rootCmd.PersistentFlags().StringVarP(&inputURL, "url", "", "", "Base URL of the timetable files")
	rootCmd.PersistentFlags().StringVarP(&inputDir, "dir", "", "", "Directory holding the timetable files")
	rootCmd.PersistentFlags().StringSliceVarP(
		&inputHeaders,
		"header",
		"",
		[]string{},
		"HTTP header sent when downloading timetables",
	)
	rootCmd.PersistentFlags().StringVarP(&geographyPath, "geography", "g", "", "Stop geography CSV file or SQLite database")
	rootCmd.PersistentFlags().StringVarP(&geographyKind, "geography-kind", "", "", "Stop geography backend (csv, sqlite, postgres)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func setupLogging(cmd *cobra.Command, args []string) error {
	level, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}

	switch logFormat {
	case "console":
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	case "json":
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	default:
		return fmt.Errorf("unknown log format '%s'", logFormat)
	}
	log.Logger = log.Logger.Level(level)

	return nil
}

func parseHeaders(headers []string) (map[string]string, error) {
	parsed := map[string]string{}
	for _, header := range headers {
		parts := strings.SplitN(header, ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("'%s' is not on form <key>:<value>", header)
		}
		parsed[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
	}
	return parsed, nil
}

// Loads the config file, if any, and applies command line overrides.
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if configPath != "" {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return nil, err
		}
	}

	if inputURL != "" {
		cfg.Input.URL = inputURL
		cfg.Input.Directory = ""
	}
	if inputDir != "" {
		cfg.Input.Directory = inputDir
		cfg.Input.URL = ""
	}

	headers, err := parseHeaders(inputHeaders)
	if err != nil {
		return nil, fmt.Errorf("invalid header: %w", err)
	}
	if len(headers) > 0 && cfg.Input.Headers == nil {
		cfg.Input.Headers = map[string]string{}
	}
	for k, v := range headers {
		cfg.Input.Headers[k] = v
	}

	if geographyKind != "" {
		cfg.Geography.Kind = geographyKind
	}
	if geographyPath != "" {
		if cfg.Geography.Kind == config.GeographyPostgres {
			cfg.Geography.DSN = geographyPath
		} else {
			cfg.Geography.Path = geographyPath
		}
	}

	return cfg, nil
}

func openDownloader(cfg *config.Config) (downloader.Downloader, error) {
	if cfg.Input.URL != "" {
		return downloader.NewHTTPDownloader(cfg.Input.URL, cfg.Input.Headers, cfg.GetOptions()), nil
	}
	if cfg.Input.Directory != "" {
		return downloader.NewFilesystem(cfg.Input.Directory)
	}
	return nil, fmt.Errorf("either a timetable URL or directory is required")
}

// A stop geography, whichever backend it lives in.
type geography struct {
	stops.Lookup
	all   func() ([]model.Stop, error)
	close func() error
}

func (g *geography) Stops() ([]model.Stop, error) {
	return g.all()
}

func (g *geography) Close() error {
	if g.close == nil {
		return nil
	}
	return g.close()
}

func openSQLGeography(cfg *config.Config) (*storage.SQLStopLookup, error) {
	switch cfg.Geography.Kind {
	case config.GeographySQLite:
		return storage.NewSQLiteStopLookup(cfg.Geography.Path)
	case config.GeographyPostgres:
		return storage.NewPSQLStopLookup(cfg.Geography.DSN)
	}
	return nil, fmt.Errorf("geography kind '%s' is not a database", cfg.Geography.Kind)
}

func openGeography(cfg *config.Config) (*geography, error) {
	switch cfg.Geography.Kind {
	case config.GeographyCSV, "":
		if cfg.Geography.Path == "" {
			return nil, fmt.Errorf("stop geography is required")
		}
		f, err := os.Open(cfg.Geography.Path)
		if err != nil {
			return nil, fmt.Errorf("opening stop geography: %w", err)
		}
		defer f.Close()

		lookup, err := stops.NewCSVLookup(f)
		if err != nil {
			return nil, err
		}
		return &geography{
			Lookup: stops.NewCachedLookup(lookup),
			all: func() ([]model.Stop, error) {
				return lookup.Stops(), nil
			},
		}, nil

	case config.GeographySQLite, config.GeographyPostgres:
		lookup, err := openSQLGeography(cfg)
		if err != nil {
			return nil, fmt.Errorf("opening stop geography: %w", err)
		}
		return &geography{
			Lookup: stops.NewCachedLookup(lookup),
			all:    lookup.Stops,
			close:  lookup.Close,
		}, nil
	}

	return nil, fmt.Errorf("unknown geography kind '%s'", cfg.Geography.Kind)
}

package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/railgtfs/railgtfs"
	"github.com/railgtfs/railgtfs/config"
	"github.com/railgtfs/railgtfs/diag"
	"github.com/railgtfs/railgtfs/downloader"
	"github.com/railgtfs/railgtfs/storage"
)

var buildCmd = &cobra.Command{
	Use:   "build [file...]",
	Short: "Builds a GTFS feed from timetable files",
	Long:  "Downloads the named timetable files (all of them if none are named), and writes the resulting GTFS feed",
	RunE:  build,
}

var (
	outputPath      string
	outputKind      string
	diagnosticsPath string
	strict          bool
)

func init() {
	buildCmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output zip or SQLite file, or Postgres connection string")
	buildCmd.Flags().StringVarP(&outputKind, "output-kind", "", "", "Output format (zip, sqlite, postgres)")
	buildCmd.Flags().StringVarP(&diagnosticsPath, "diagnostics", "", "", "Write diagnostics to this CSV file")
	buildCmd.Flags().BoolVarP(&strict, "strict", "", false, "Fail if any record had to be skipped")
	rootCmd.AddCommand(buildCmd)
}

func build(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if len(args) > 0 {
		cfg.Input.Files = args
	}
	if outputKind != "" {
		cfg.Output.Kind = outputKind
	}
	if outputPath != "" {
		if cfg.Output.Kind == config.OutputPostgres {
			cfg.Output.DSN = outputPath
		} else {
			cfg.Output.Path = outputPath
		}
	}
	if diagnosticsPath != "" {
		cfg.Output.Diagnostics = diagnosticsPath
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx := cmd.Context()

	d, err := openDownloader(cfg)
	if err != nil {
		return err
	}
	files, err := downloader.GetAll(ctx, d, cfg.Input.Files)
	if err != nil {
		return fmt.Errorf("retrieving timetables: %w", err)
	}
	log.Info().Int("files", len(files)).Msg("retrieved timetables")

	geo, err := openGeography(cfg)
	if err != nil {
		return err
	}
	defer geo.Close()

	result, err := railgtfs.Run(ctx, files, geo, cfg.Options())
	if err != nil {
		return err
	}

	for _, c := range diag.Summarize(result.Diagnostics) {
		log.Info().Str("code", string(c.Code)).Int("count", c.Count).Msg("diagnostics")
	}

	if cfg.Output.Diagnostics != "" {
		if err := writeDiagnostics(cfg.Output.Diagnostics, result.Diagnostics); err != nil {
			return err
		}
	}

	if strict && diag.AnyAtLeast(result.Diagnostics, diag.SeverityWarning) {
		return fmt.Errorf("%d diagnostics raised, not writing feed", len(result.Diagnostics))
	}

	if err := writeFeed(cfg, result); err != nil {
		return err
	}
	log.Info().Str("kind", cfg.Output.Kind).Str("path", cfg.Output.Path).Msg("wrote feed")

	return nil
}

func writeDiagnostics(path string, entries []diag.Diagnostic) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating diagnostics file: %w", err)
	}
	defer f.Close()

	if err := diag.WriteCSV(f, entries); err != nil {
		return fmt.Errorf("writing diagnostics: %w", err)
	}
	return f.Close()
}

func writeFeed(cfg *config.Config, result *railgtfs.Result) error {
	switch cfg.Output.Kind {
	case config.OutputZip:
		f, err := os.Create(cfg.Output.Path)
		if err != nil {
			return fmt.Errorf("creating output: %w", err)
		}
		defer f.Close()

		if err := storage.WriteFeed(storage.NewZipFeedWriter(f), result.Feed); err != nil {
			return fmt.Errorf("writing zip: %w", err)
		}
		return f.Close()

	case config.OutputSQLite:
		w, err := storage.NewSQLiteFeedWriter(cfg.Output.Path)
		if err != nil {
			return fmt.Errorf("opening sqlite output: %w", err)
		}
		return storage.WriteFeed(w, result.Feed)

	case config.OutputPostgres:
		w, err := storage.NewPSQLFeedWriter(cfg.Output.DSN, result.Feed.FeedInfo.Version)
		if err != nil {
			return fmt.Errorf("opening postgres output: %w", err)
		}
		return storage.WriteFeed(w, result.Feed)
	}

	return fmt.Errorf("unknown output kind '%s'", cfg.Output.Kind)
}

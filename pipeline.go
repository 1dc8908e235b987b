package railgtfs

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"

	"github.com/railgtfs/railgtfs/boundary"
	"github.com/railgtfs/railgtfs/calendar"
	"github.com/railgtfs/railgtfs/composition"
	"github.com/railgtfs/railgtfs/diag"
	"github.com/railgtfs/railgtfs/feed"
	"github.com/railgtfs/railgtfs/legs"
	"github.com/railgtfs/railgtfs/model"
	"github.com/railgtfs/railgtfs/parse"
	"github.com/railgtfs/railgtfs/schedule"
	"github.com/railgtfs/railgtfs/stops"
)

const (
	DefaultWorkers   = 4
	DefaultEncoding  = parse.EncodingUTF8
	DefaultTolerance = 0 * time.Minute
)

// The operator's agency row.
func DefaultAgency() model.Agency {
	return model.Agency{
		ID:       "0",
		Name:     "PKP Intercity",
		URL:      "https://intercity.pl/",
		Timezone: "Europe/Warsaw",
		Lang:     "pl",
		Phone:    "+48703200200",
	}
}

type Options struct {
	// Number of timetable files parsed concurrently.
	Workers int

	// Character encoding of the timetable files.
	Encoding parse.Encoding

	// See composition.Options.
	Tolerance time.Duration

	// See boundary.Options.
	DomesticCountries []string

	RouteRule feed.RouteRule

	Agency model.Agency

	// Publisher and language of the feed. Dates and version are
	// derived from the input.
	FeedInfo model.FeedInfo
}

func DefaultOptions() Options {
	agency := DefaultAgency()
	return Options{
		Workers:           DefaultWorkers,
		Encoding:          DefaultEncoding,
		Tolerance:         DefaultTolerance,
		DomesticCountries: boundary.DefaultOptions().DomesticCountries,
		RouteRule:         feed.DefaultRouteRule(),
		Agency:            agency,
		FeedInfo: model.FeedInfo{
			PublisherName: agency.Name,
			PublisherURL:  agency.URL,
			Lang:          agency.Lang,
		},
	}
}

// Fills in defaults for zero valued options.
func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Workers <= 0 {
		o.Workers = d.Workers
	}
	if o.Encoding == "" {
		o.Encoding = d.Encoding
	}
	if len(o.DomesticCountries) == 0 {
		o.DomesticCountries = d.DomesticCountries
	}
	if o.RouteRule.Kind == "" {
		o.RouteRule = d.RouteRule
	}
	if o.Agency == (model.Agency{}) {
		o.Agency = d.Agency
	}
	if o.FeedInfo.PublisherName == "" {
		o.FeedInfo.PublisherName = o.Agency.Name
		if o.FeedInfo.PublisherURL == "" {
			o.FeedInfo.PublisherURL = o.Agency.URL
		}
	}
	return o
}

type Result struct {
	Feed        *feed.Feed
	Diagnostics []diag.Diagnostic
}

// Hash of the input files, independent of map order.
func Version(files map[string][]byte) string {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	h := sha256.New()
	size := make([]byte, 8)
	for _, name := range names {
		binary.BigEndian.PutUint64(size, uint64(len(name)))
		h.Write(size)
		h.Write([]byte(name))
		binary.BigEndian.PutUint64(size, uint64(len(files[name])))
		h.Write(size)
		h.Write(files[name])
	}

	return hex.EncodeToString(h.Sum(nil))
}

// Builds a feed out of timetable files keyed by name. Zip archives
// among files are expanded. Records that can't be used are skipped
// and reported in the Result's diagnostics. An error is returned if
// the input can't be read at all, or if the resulting feed would be
// inconsistent, in which case no feed is produced.
func Run(ctx context.Context, files map[string][]byte, lookup stops.Lookup, opts Options) (*Result, error) {
	opts = opts.withDefaults()
	if err := opts.RouteRule.Validate(); err != nil {
		return nil, err
	}

	dl := diag.NewLog()

	expanded, err := parse.ExpandArchives(files)
	if err != nil {
		return nil, fmt.Errorf("expanding archives: %w", err)
	}

	records, err := parseAll(ctx, expanded, opts, dl)
	if err != nil {
		return nil, err
	}
	log.Info().Int("files", len(expanded)).Int("records", len(records)).Msg("parsed timetables")

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	trips, resolver, err := resolveAll(records, lookup, dl)
	if err != nil {
		return nil, err
	}
	log.Info().Int("trips", len(trips)).Msg("resolved stops")

	schedule.AssignIDs(trips)

	trips = composition.Resolve(trips, composition.Options{Tolerance: opts.Tolerance}, dl)
	log.Info().Int("trips", len(trips)).Msg("resolved compositions")

	trips = boundary.Truncate(trips, boundary.Options{DomesticCountries: opts.DomesticCountries}, dl)
	log.Info().Int("trips", len(trips)).Msg("truncated at the border")

	trips = legs.Split(trips, dl)
	log.Info().Int("trips", len(trips)).Msg("split replacement bus legs")

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	schedule.SortByID(trips)
	builder := calendar.NewBuilder()
	for _, t := range trips {
		t.ServiceID = builder.Add(t.Calendar)
	}
	services := builder.Services()
	log.Info().Int("services", len(services)).Msg("built calendars")

	info := opts.FeedInfo
	info.Version = Version(files)

	f, err := feed.Assemble(feed.Input{
		Agency:    opts.Agency,
		FeedInfo:  info,
		Stops:     resolver.Stops(),
		Trips:     trips,
		Services:  services,
		RouteRule: opts.RouteRule,
	})
	if err != nil {
		return nil, fmt.Errorf("assembling feed: %w", err)
	}
	log.Info().
		Int("stops", len(f.Stops)).
		Int("routes", len(f.Routes)).
		Int("trips", len(f.Trips)).
		Int("stop_times", len(f.StopTimes)).
		Str("version", info.Version).
		Msg("assembled feed")

	return &Result{
		Feed:        f,
		Diagnostics: dl.Entries(),
	}, nil
}

type parsedFile struct {
	name    string
	results []parse.Result
}

// Parses files concurrently. Valid records are returned sorted by
// train number, file and line; malformed ones are reported to dl.
func parseAll(ctx context.Context, files map[string][]byte, opts Options, dl *diag.Log) ([]*parse.Record, error) {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	p := pool.NewWithResults[parsedFile]().WithContext(ctx).WithMaxGoroutines(opts.Workers)
	for _, name := range names {
		buf := files[name]
		p.Go(func(ctx context.Context) (parsedFile, error) {
			if err := ctx.Err(); err != nil {
				return parsedFile{}, err
			}
			results, err := parse.ParseTimetable(name, buf, opts.Encoding)
			if err != nil {
				return parsedFile{}, fmt.Errorf("parsing %s: %w", name, err)
			}
			return parsedFile{name: name, results: results}, nil
		})
	}

	parsed, err := p.Wait()
	if err != nil {
		return nil, err
	}

	sort.Slice(parsed, func(i, j int) bool {
		return parsed[i].name < parsed[j].name
	})

	records := []*parse.Record{}
	for _, pf := range parsed {
		for _, res := range pf.results {
			if res.Err != nil {
				dl.Add(diag.Diagnostic{
					Severity: diag.SeverityError,
					Code:     diag.CodeMalformedRecord,
					Message:  res.Err.Error(),
					File:     res.Err.File,
					Line:     res.Err.Line,
				})
				continue
			}
			records = append(records, res.Record)
		}
	}

	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if a.TrainNumber != b.TrainNumber {
			return a.TrainNumber < b.TrainNumber
		}
		if a.File != b.File {
			return a.File < b.File
		}
		return a.Line < b.Line
	})

	return records, nil
}

// Resolves stops and calendars of every record. Records with unknown
// stops or unusable validity are dropped and reported.
func resolveAll(records []*parse.Record, lookup stops.Lookup, dl *diag.Log) ([]*schedule.Trip, *stops.Resolver, error) {
	resolver := stops.NewResolver(lookup)
	trips := make([]*schedule.Trip, 0, len(records))

	for _, rec := range records {
		cal, err := calendar.Normalize(rec.Validity)
		if errors.Is(err, calendar.ErrInvalidDateRange) {
			dl.Add(diag.Diagnostic{
				Severity:    diag.SeverityWarning,
				Code:        diag.CodeInvalidDateRange,
				Message:     err.Error(),
				File:        rec.File,
				Line:        rec.Line,
				TrainNumber: rec.TrainNumber,
			})
			continue
		}
		if err != nil {
			return nil, nil, fmt.Errorf("train %s: %w", rec.TrainNumber, err)
		}

		trip, err := resolver.Resolve(rec)
		var unresolved *stops.UnresolvedStopError
		if errors.As(err, &unresolved) {
			dl.Add(diag.Diagnostic{
				Severity:    diag.SeverityWarning,
				Code:        diag.CodeUnresolvedStop,
				Message:     err.Error(),
				File:        rec.File,
				Line:        rec.Line,
				TrainNumber: rec.TrainNumber,
				StopCode:    unresolved.Code,
			})
			continue
		}
		if err != nil {
			return nil, nil, fmt.Errorf("resolving train %s: %w", rec.TrainNumber, err)
		}

		trip.Calendar = cal
		trips = append(trips, trip)
	}

	return trips, resolver, nil
}

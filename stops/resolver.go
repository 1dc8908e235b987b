package stops

import (
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/railgtfs/railgtfs/model"
	"github.com/railgtfs/railgtfs/parse"
	"github.com/railgtfs/railgtfs/schedule"
)

var ErrUnresolvedStop = errors.New("unresolved stop")

type UnresolvedStopError struct {
	Code        string
	TrainNumber string
}

func (e *UnresolvedStopError) Error() string {
	return fmt.Sprintf("train %s: unresolved stop code '%s'", e.TrainNumber, e.Code)
}

func (e *UnresolvedStopError) Unwrap() error {
	return ErrUnresolvedStop
}

// Maps records' operator stop codes to canonical stops, and keeps
// track of every stop used along the way.
type Resolver struct {
	lookup Lookup
	used   map[string]model.Stop
}

func NewResolver(lookup Lookup) *Resolver {
	return &Resolver{
		lookup: lookup,
		used:   map[string]model.Stop{},
	}
}

// Builds a trip from rec. If any stop code is unknown, an
// *UnresolvedStopError naming the first such code is returned and
// none of rec's stops are recorded as used.
func (r *Resolver) Resolve(rec *parse.Record) (*schedule.Trip, error) {
	resolved := make([]*model.Stop, 0, len(rec.Stops))
	for _, raw := range rec.Stops {
		stop, err := r.lookup.Stop(raw.Code)
		if err != nil {
			return nil, fmt.Errorf("looking up stop '%s': %w", raw.Code, err)
		}
		if stop == nil {
			return nil, &UnresolvedStopError{Code: raw.Code, TrainNumber: rec.TrainNumber}
		}
		resolved = append(resolved, stop)
	}

	trip, err := schedule.FromRecord(rec, resolved)
	if err != nil {
		return nil, err
	}

	for _, stop := range resolved {
		if err := r.use(stop); err != nil {
			return nil, err
		}
	}

	return trip, nil
}

func (r *Resolver) use(stop *model.Stop) error {
	for stop != nil {
		if _, found := r.used[stop.ID]; found {
			return nil
		}
		r.used[stop.ID] = *stop

		if stop.ParentStation == "" {
			return nil
		}

		parent, err := r.lookup.StopByID(stop.ParentStation)
		if err != nil {
			return fmt.Errorf("looking up parent station '%s': %w", stop.ParentStation, err)
		}
		if parent == nil {
			// Left for the feed's integrity check to report.
			log.Warn().Str("stop", stop.ID).Str("parent", stop.ParentStation).Msg("parent station not in geography")
		}
		stop = parent
	}
	return nil
}

// Every stop used by a resolved record, plus their parent stations,
// sorted by ID.
func (r *Resolver) Stops() []model.Stop {
	out := make([]model.Stop, 0, len(r.used))
	for _, s := range r.used {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID < out[j].ID
	})
	return out
}

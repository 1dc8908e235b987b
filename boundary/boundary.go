package boundary

import (
	"fmt"
	"strings"

	"github.com/railgtfs/railgtfs/diag"
	"github.com/railgtfs/railgtfs/schedule"
)

type Options struct {
	// Country codes considered domestic. Stops with no country are
	// always domestic.
	DomesticCountries []string
}

func DefaultOptions() Options {
	return Options{DomesticCountries: []string{"PL"}}
}

type truncator struct {
	domestic map[string]bool
	log      *diag.Log
}

func (t *truncator) isDomestic(st schedule.StopTime) bool {
	return st.Country == "" || t.domestic[strings.ToUpper(st.Country)]
}

// Foreign summary entries carry no stop level detail. Anything else
// is kept.
func (t *truncator) keep(st schedule.StopTime) bool {
	return t.isDomestic(st) || !st.Summary
}

// Cuts the runs of foreign summary entries off the ends of trips, so
// a trip ends at its last stop with detailed information. Trips left with fewer than two
// stops are dropped, and links no longer valid are pruned.
func Truncate(trips []*schedule.Trip, opts Options, dl *diag.Log) []*schedule.Trip {
	t := &truncator{
		domestic: map[string]bool{},
		log:      dl,
	}
	for _, c := range opts.DomesticCountries {
		t.domestic[strings.ToUpper(c)] = true
	}

	out := make([]*schedule.Trip, 0, len(trips))
	for _, trip := range trips {
		if t.truncate(trip) {
			out = append(out, trip)
		}
	}

	schedule.PruneLinks(out)

	return out
}

// Returns false if the trip must be dropped.
func (t *truncator) truncate(trip *schedule.Trip) bool {
	domestic := false
	first, last := -1, -1
	for i, st := range trip.StopTimes {
		if t.isDomestic(st) {
			domestic = true
		}
		if t.keep(st) {
			if first < 0 {
				first = i
			}
			last = i
		}
	}

	// Entirely foreign; nothing to cut back to.
	if !domestic {
		return true
	}

	n := len(trip.StopTimes)
	cutTail := last < n-1
	cutHead := first > 0

	if cutTail {
		t.report(trip, "after", trip.StopTimes[last].Code, n-1-last)
		trip.StopTimes = trip.StopTimes[:last+1]
	}
	if cutHead {
		t.report(trip, "before", trip.StopTimes[first].Code, first)
		trip.StopTimes = trip.StopTimes[first:]
	}

	if len(trip.StopTimes) < 2 {
		t.log.Add(diag.Diagnostic{
			Severity:    diag.SeverityWarning,
			Code:        diag.CodeDegenerateTrip,
			Message:     fmt.Sprintf("trip has %d stops left after truncation", len(trip.StopTimes)),
			File:        trip.File,
			Line:        trip.Line,
			TrainNumber: trip.Number(),
			TripID:      trip.ID,
		})
		return false
	}

	// New terminals have no dwell.
	if cutTail {
		end := trip.Last()
		end.Departure = end.Arrival
	}
	if cutHead {
		start := trip.First()
		start.Arrival = start.Departure
	}

	return true
}

func (t *truncator) report(trip *schedule.Trip, where, code string, dropped int) {
	t.log.Add(diag.Diagnostic{
		Severity:    diag.SeverityInfo,
		Code:        diag.CodeTruncatedTrip,
		Message:     fmt.Sprintf("dropped %d summary stops %s %s", dropped, where, code),
		TrainNumber: trip.Number(),
		TripID:      trip.ID,
		StopCode:    code,
		Count:       dropped,
	})
}

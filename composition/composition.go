package composition

import (
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/railgtfs/railgtfs/diag"
	"github.com/railgtfs/railgtfs/model"
	"github.com/railgtfs/railgtfs/parse"
	"github.com/railgtfs/railgtfs/schedule"
)

type Options struct {
	// Maximum difference between the arrival of the first train and
	// the departure of the second at the junction for them to be
	// merged.
	Tolerance time.Duration
}

// First train continues as the second at the junction.
type pair struct {
	from     *schedule.Trip
	to       *schedule.Trip
	junction string

	// Resolved junction, set in the second pass.
	stopID string
}

type resolver struct {
	opts Options
	log  *diag.Log

	trips    []*schedule.Trip
	byNumber map[string][]*schedule.Trip

	// Trip ID -> ID of the trip it was merged into.
	mergedInto map[string]string
	byID       map[string]*schedule.Trip
}

// Merges trips operated as one physical train into a single trip
// where possible, and links them otherwise. Trips must have IDs and
// calendars assigned. The result is sorted by trip ID.
func Resolve(trips []*schedule.Trip, opts Options, dl *diag.Log) []*schedule.Trip {
	r := &resolver{
		opts:       opts,
		log:        dl,
		trips:      make([]*schedule.Trip, len(trips)),
		byNumber:   map[string][]*schedule.Trip{},
		mergedInto: map[string]string{},
		byID:       map[string]*schedule.Trip{},
	}
	copy(r.trips, trips)
	schedule.SortByID(r.trips)

	for _, t := range r.trips {
		r.byNumber[t.Number()] = append(r.byNumber[t.Number()], t)
		r.byID[t.ID] = t
	}

	pairs := r.index()
	r.resolve(pairs)

	out := []*schedule.Trip{}
	for _, t := range r.trips {
		if _, merged := r.mergedInto[t.ID]; merged {
			continue
		}
		t.ContinuesAs = r.remap(t, t.ContinuesAs)
		t.ContinuedFrom = nil
		out = append(out, t)
	}

	// Links are only tracked forwards while merging, as the targets
	// may since have been merged away.
	byID := make(map[string]*schedule.Trip, len(out))
	for _, t := range out {
		byID[t.ID] = t
	}
	for _, t := range out {
		for _, l := range t.ContinuesAs {
			target := byID[l.TripID]
			target.ContinuedFrom = append(target.ContinuedFrom, schedule.Link{TripID: t.ID, StopID: l.StopID})
		}
	}

	return out
}

// Picks the trip a marker refers to. Several trips can share a train
// number when it has more than one validity record; prefer the one
// running on the same days.
func (r *resolver) partner(t *schedule.Trip, number string) *schedule.Trip {
	var first *schedule.Trip
	for _, candidate := range r.byNumber[number] {
		if candidate == t {
			continue
		}
		if candidate.Calendar.Equal(t.Calendar) {
			return candidate
		}
		if first == nil {
			first = candidate
		}
	}
	return first
}

// First pass: turns markers into pairs, sorted and deduplicated.
func (r *resolver) index() []pair {
	seen := map[string]bool{}
	pairs := []pair{}

	for _, t := range r.trips {
		for _, m := range t.Markers {
			partner := r.partner(t, m.Partner)
			if partner == nil {
				r.log.Add(diag.Diagnostic{
					Severity:    diag.SeverityInfo,
					Code:        diag.CodeUnmatchedComposition,
					Message:     fmt.Sprintf("partner train %s not found", m.Partner),
					File:        t.File,
					Line:        t.Line,
					TrainNumber: t.Number(),
					TripID:      t.ID,
					StopCode:    m.Junction,
				})
				continue
			}

			p := pair{from: t, to: partner, junction: m.Junction}
			if m.Kind == parse.MarkerContinuedFrom {
				p = pair{from: partner, to: t, junction: m.Junction}
			}

			key := p.from.ID + "\x00" + p.to.ID + "\x00" + p.junction
			if seen[key] {
				continue
			}
			seen[key] = true
			pairs = append(pairs, p)
		}
	}

	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].from.Number() != pairs[j].from.Number() {
			return pairs[i].from.Number() < pairs[j].from.Number()
		}
		if pairs[i].from.ID != pairs[j].from.ID {
			return pairs[i].from.ID < pairs[j].from.ID
		}
		if pairs[i].to.Number() != pairs[j].to.Number() {
			return pairs[i].to.Number() < pairs[j].to.Number()
		}
		if pairs[i].to.ID != pairs[j].to.ID {
			return pairs[i].to.ID < pairs[j].to.ID
		}
		return pairs[i].junction < pairs[j].junction
	})

	return pairs
}

// Trip that t is now part of.
func (r *resolver) root(t *schedule.Trip) *schedule.Trip {
	for {
		id, merged := r.mergedInto[t.ID]
		if !merged {
			return t
		}
		t = r.byID[id]
	}
}

// Stop ID of the junction, as served by either train.
func junctionStop(p pair) string {
	for _, t := range []*schedule.Trip{p.from, p.to} {
		for _, st := range t.StopTimes {
			if st.Code == p.junction {
				return st.StopID
			}
		}
	}
	return ""
}

// Arrival of t at its last call at stopID.
func arrivalAt(t *schedule.Trip, stopID string) (time.Duration, bool) {
	for i := len(t.StopTimes) - 1; i >= 0; i-- {
		if t.StopTimes[i].StopID == stopID {
			return t.StopTimes[i].Arrival, true
		}
	}
	return 0, false
}

// Departure of t from its first call at stopID.
func departureAt(t *schedule.Trip, stopID string) (time.Duration, bool) {
	for _, st := range t.StopTimes {
		if st.StopID == stopID {
			return st.Departure, true
		}
	}
	return 0, false
}

// True if b would leave the junction before a gets there.
func travelsBackInTime(a, b *schedule.Trip, stopID string) bool {
	arrival, okA := arrivalAt(a, stopID)
	departure, okB := departureAt(b, stopID)
	return okA && okB && departure < arrival
}

// Moves trips that continue a train after midnight onto the service
// day the train started on: one day earlier, with times 24h later.
// Repeated until nothing moves, so chains crossing midnight end up on
// a single service day. Trips joined by several trains stay put.
func (r *resolver) rebase(pairs []pair, incoming map[string]int) {
	rebased := map[string]bool{}
	for changed := true; changed; {
		changed = false
		for _, p := range pairs {
			a, b := p.from, p.to
			if rebased[b.ID] || incoming[b.ID] != 1 {
				continue
			}
			if !b.Calendar.Equal(a.Calendar.Shift(1)) || !travelsBackInTime(a, b, p.stopID) {
				continue
			}

			b.Calendar = a.Calendar
			for i := range b.StopTimes {
				b.StopTimes[i].Arrival += 24 * time.Hour
				b.StopTimes[i].Departure += 24 * time.Hour
			}
			rebased[b.ID] = true
			changed = true
			log.Debug().Str("trip", b.ID).Str("from", a.ID).Msg("moved overnight continuation to the previous service day")
		}
	}
}

// Second pass: merges or links every pair.
func (r *resolver) resolve(candidates []pair) {
	pairs := make([]pair, 0, len(candidates))
	for _, p := range candidates {
		p.stopID = junctionStop(p)
		if p.stopID == "" {
			r.log.Add(diag.Diagnostic{
				Severity:    diag.SeverityInfo,
				Code:        diag.CodeUnmatchedComposition,
				Message:     fmt.Sprintf("junction not served by %s or %s", p.from.ID, p.to.ID),
				TrainNumber: p.from.Number(),
				TripID:      p.from.ID,
				StopCode:    p.junction,
			})
			continue
		}
		pairs = append(pairs, p)
	}

	outgoing := map[string]int{}
	incoming := map[string]int{}
	for _, p := range pairs {
		outgoing[p.from.ID]++
		incoming[p.to.ID]++
	}

	r.rebase(pairs, incoming)

	for _, p := range pairs {
		stopID := p.stopID
		a := r.root(p.from)
		b := r.root(p.to)

		reason := ""
		switch {
		case a == b:
			reason = "circular composition"
		case outgoing[p.from.ID] > 1:
			reason = fmt.Sprintf("%s splits", p.from.ID)
		case incoming[p.to.ID] > 1:
			reason = fmt.Sprintf("%s is joined", p.to.ID)
		case b != p.to:
			reason = fmt.Sprintf("%s already merged", p.to.ID)
		default:
			reason = r.merge(a, b, stopID)
		}

		if reason == "" {
			r.mergedInto[b.ID] = a.ID
			log.Debug().Str("trip", a.ID).Str("merged", b.ID).Str("junction", p.junction).Msg("merged composition")
			continue
		}

		if a != b && travelsBackInTime(a, b, stopID) {
			arrival, _ := arrivalAt(a, stopID)
			departure, _ := departureAt(b, stopID)
			r.log.Add(diag.Diagnostic{
				Severity: diag.SeverityWarning,
				Code:     diag.CodeTimeTravelLink,
				Message: fmt.Sprintf(
					"not linking %s to %s: departs %s before arriving at %s",
					a.ID, b.ID, model.FormatTime(departure), model.FormatTime(arrival),
				),
				TrainNumber: p.from.Number(),
				TripID:      a.ID,
				StopCode:    p.junction,
			})
			continue
		}

		a.ContinuesAs = append(a.ContinuesAs, schedule.Link{TripID: b.ID, StopID: stopID})
		r.log.Add(diag.Diagnostic{
			Severity:    diag.SeverityInfo,
			Code:        diag.CodeCompositionLinked,
			Message:     fmt.Sprintf("linked %s to %s: %s", a.ID, b.ID, reason),
			TrainNumber: p.from.Number(),
			TripID:      a.ID,
			StopCode:    p.junction,
		})
	}
}

func abs(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// Appends b's stop times to a. Returns why the trips can't be merged,
// leaving a untouched, or "" on success.
func (r *resolver) merge(a, b *schedule.Trip, stopID string) string {
	if !a.Calendar.Equal(b.Calendar) {
		return "calendars differ"
	}

	aLast, bFirst := a.Last(), b.First()
	if aLast.StopID != stopID || bFirst.StopID != stopID {
		return "junction is not the end of one train and start of the other"
	}

	gap := bFirst.Departure - aLast.Arrival
	if abs(gap) > r.opts.Tolerance {
		return fmt.Sprintf("%s apart at the junction", abs(gap))
	}

	junction := *aLast
	junction.Departure = bFirst.Departure
	junction.Pickup = bFirst.Pickup
	if junction.Platform == "" {
		junction.Platform = bFirst.Platform
	}
	junction.Summary = aLast.Summary && bFirst.Summary

	offset := aLast.Distance - bFirst.Distance

	stopTimes := make([]schedule.StopTime, 0, len(a.StopTimes)+len(b.StopTimes)-1)
	stopTimes = append(stopTimes, a.StopTimes[:len(a.StopTimes)-1]...)
	stopTimes = append(stopTimes, junction)
	for _, st := range b.StopTimes[1:] {
		st.Distance += offset
		stopTimes = append(stopTimes, st)
	}

	if i := schedule.CheckMonotonic(stopTimes); i >= 0 {
		return fmt.Sprintf("merged trip travels back in time at %s", stopTimes[i].StopID)
	}

	a.StopTimes = stopTimes
	a.TrainNumbers = append(a.TrainNumbers, b.TrainNumbers...)
	a.ContinuesAs = append(a.ContinuesAs, b.ContinuesAs...)
	b.ContinuesAs = nil

	return ""
}

// Redirects links to trips that were merged away, dropping
// duplicates and links to self.
func (r *resolver) remap(owner *schedule.Trip, links []schedule.Link) []schedule.Link {
	if len(links) == 0 {
		return links
	}

	seen := map[schedule.Link]bool{}
	out := []schedule.Link{}
	for _, l := range links {
		target := r.root(r.byID[l.TripID])
		if target == owner {
			continue
		}
		l.TripID = target.ID
		if seen[l] {
			continue
		}
		seen[l] = true
		out = append(out, l)
	}
	return out
}

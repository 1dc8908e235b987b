package legs

import (
	"fmt"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/railgtfs/railgtfs/diag"
	"github.com/railgtfs/railgtfs/parse"
	"github.com/railgtfs/railgtfs/schedule"
)

// Stretch of a trip operated by a single kind of vehicle. Start and
// End index the trip's stop times and are both included.
type leg struct {
	start int
	end   int
	bus   bool
}

// Departures from a stop with a BUS platform are made by replacement
// bus. A trip named ZKA is a bus throughout.
func split(t *schedule.Trip) []leg {
	if schedule.IsReplacementBus(t.ShortName) {
		return []leg{{start: 0, end: len(t.StopTimes) - 1, bus: true}}
	}

	legs := []leg{}
	for i := 0; i < len(t.StopTimes)-1; i++ {
		bus := t.StopTimes[i].Platform == parse.PlatformBus
		if n := len(legs); n > 0 && legs[n-1].bus == bus {
			legs[n-1].end = i + 1
			continue
		}
		legs = append(legs, leg{start: i, end: i + 1, bus: bus})
	}
	return legs
}

type splitter struct {
	log   *diag.Log
	taken map[string]bool

	// Original trip ID -> its legs, in travel order.
	legs map[string][]*schedule.Trip
}

func (s *splitter) legID(t *schedule.Trip, i int) string {
	id := t.ID + "_" + strconv.Itoa(i)
	if s.taken[id] {
		id = t.ID + "_leg" + strconv.Itoa(i)
	}
	s.taken[id] = true
	return id
}

func (s *splitter) split(t *schedule.Trip) []*schedule.Trip {
	legs := split(t)
	if len(legs) < 2 {
		t.Bus = len(legs) == 1 && legs[0].bus
		return []*schedule.Trip{t}
	}

	headsign := t.Headsign
	if headsign == "" {
		headsign = t.Last().Name
	}

	out := make([]*schedule.Trip, 0, len(legs))
	for i, l := range legs {
		part := *t
		part.ID = s.legID(t, i)
		part.Bus = l.bus
		part.Headsign = headsign
		part.StopTimes = make([]schedule.StopTime, l.end-l.start+1)
		copy(part.StopTimes, t.StopTimes[l.start:l.end+1])
		part.ContinuesAs = nil
		part.ContinuedFrom = nil

		first, last := part.First(), part.Last()
		first.Arrival = first.Departure
		last.Departure = last.Arrival

		out = append(out, &part)
	}

	for i := 0; i < len(out)-1; i++ {
		out[i].ContinuesAs = []schedule.Link{{
			TripID: out[i+1].ID,
			StopID: out[i].Last().StopID,
			Timed:  true,
		}}
	}

	s.log.Add(diag.Diagnostic{
		Severity:    diag.SeverityInfo,
		Code:        diag.CodeSplitTrip,
		Message:     fmt.Sprintf("split into %d legs at changes between train and bus", len(out)),
		File:        t.File,
		Line:        t.Line,
		TrainNumber: t.Number(),
		TripID:      t.ID,
		Count:       len(out),
	})
	log.Debug().Str("trip", t.ID).Int("legs", len(out)).Msg("split trip")

	return out
}

// Leg of the original trip serving stopID, searching from the front
// or the back.
func (s *splitter) legAt(id, stopID string, fromBack bool) string {
	legs, found := s.legs[id]
	if !found {
		return id
	}
	for i := range legs {
		l := legs[i]
		if fromBack {
			l = legs[len(legs)-1-i]
		}
		if l.Serves(stopID) {
			return l.ID
		}
	}
	if fromBack {
		return legs[len(legs)-1].ID
	}
	return legs[0].ID
}

// Splits trips partly operated by replacement buses into one trip per
// leg, <id>_0, <id>_1 and so on. Consecutive legs are connected by
// timed links at the stop where vehicles are changed. Links from and
// to a split trip move to the leg serving the junction, and every
// link touching a bus becomes timed. The result keeps the order of
// trips, with legs in place of the trips they came from.
func Split(trips []*schedule.Trip, dl *diag.Log) []*schedule.Trip {
	s := &splitter{
		log:   dl,
		taken: make(map[string]bool, len(trips)),
		legs:  map[string][]*schedule.Trip{},
	}
	for _, t := range trips {
		s.taken[t.ID] = true
	}

	out := make([]*schedule.Trip, 0, len(trips))
	outgoing := map[string][]schedule.Link{}
	for _, t := range trips {
		parts := s.split(t)
		if len(parts) > 1 {
			s.legs[t.ID] = parts
			outgoing[t.ID] = t.ContinuesAs
		}
		out = append(out, parts...)
	}

	byID := make(map[string]*schedule.Trip, len(out))
	for _, t := range out {
		byID[t.ID] = t
	}

	// Links leaving a split trip leave from the last leg at the junction.
	for _, t := range trips {
		for _, l := range outgoing[t.ID] {
			from := byID[s.legAt(t.ID, l.StopID, true)]
			from.ContinuesAs = append(from.ContinuesAs, l)
		}
	}

	for _, t := range out {
		t.ContinuedFrom = nil
	}
	for _, t := range out {
		links := make([]schedule.Link, 0, len(t.ContinuesAs))
		for _, l := range t.ContinuesAs {
			l.TripID = s.legAt(l.TripID, l.StopID, false)
			target, found := byID[l.TripID]
			if !found {
				continue
			}
			l.Timed = l.Timed || t.Bus || target.Bus
			links = append(links, l)
		}
		t.ContinuesAs = links
	}
	for _, t := range out {
		for _, l := range t.ContinuesAs {
			target := byID[l.TripID]
			target.ContinuedFrom = append(target.ContinuedFrom, schedule.Link{
				TripID: t.ID,
				StopID: l.StopID,
				Timed:  l.Timed,
			})
		}
	}

	return out
}

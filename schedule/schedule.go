package schedule

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/railgtfs/railgtfs/calendar"
	"github.com/railgtfs/railgtfs/model"
	"github.com/railgtfs/railgtfs/parse"
)

// Reference to another trip operated by the same physical train,
// joined at StopID. Timed links require changing vehicles, like
// between a train and its replacement bus.
type Link struct {
	TripID string
	StopID string
	Timed  bool
}

type StopTime struct {
	StopID string
	Code   string
	Name   string

	Arrival   time.Duration
	Departure time.Duration

	Platform string
	Track    string
	Pickup   model.PassengerExchange
	DropOff  model.PassengerExchange

	Country  string
	Summary  bool
	Distance int
}

// A single scheduled run, built from one or more records.
type Trip struct {
	ID string

	// Operational numbers of all records forming this trip, in
	// travel order.
	TrainNumbers     []string
	Category         string
	Name             string
	CommercialNumber string
	ShortName        string

	Calendar  calendar.Calendar
	ServiceID string

	// Operated by a replacement bus.
	Bus bool

	// Set on trips split from a longer one. Defaults to the name of
	// the last stop.
	Headsign string

	StopTimes []StopTime
	Markers   []parse.CompositionMarker

	ContinuesAs   []Link
	ContinuedFrom []Link

	// Location of the first record in its file.
	File string
	Line int
}

// Operational number of the first record.
func (t *Trip) Number() string {
	return t.TrainNumbers[0]
}

func (t *Trip) First() *StopTime {
	return &t.StopTimes[0]
}

func (t *Trip) Last() *StopTime {
	return &t.StopTimes[len(t.StopTimes)-1]
}

// True if any stop time is at the given stop.
func (t *Trip) Serves(stopID string) bool {
	for _, st := range t.StopTimes {
		if st.StopID == stopID {
			return true
		}
	}
	return false
}

var title = cases.Title(language.Polish)

var word = regexp.MustCompile(`[\p{L}\p{N}_]+`)

const replacementBus = "ZKA"

// True if the name has ZKA (zastępcza komunikacja autobusowa) as a
// word of its own.
func IsReplacementBus(name string) bool {
	for _, w := range word.FindAllString(name, -1) {
		if strings.EqualFold(w, replacementBus) {
			return true
		}
	}
	return false
}

// Name as shown to riders: the commercial number followed by the
// train's name, unless the name already includes the number.
func DisplayName(rec *parse.Record) string {
	number := rec.CommercialNumber
	if number == "" {
		number, _, _ = strings.Cut(rec.TrainNumber, "/")
	}

	name := word.ReplaceAllStringFunc(title.String(rec.Name), func(w string) string {
		if strings.EqualFold(w, replacementBus) {
			return replacementBus
		}
		return w
	})

	if rec.Name != "" && strings.Contains(rec.Name, number) {
		return name
	}
	if rec.Name != "" {
		return number + " " + name
	}
	return number
}

func passengerExchange(r parse.Restriction) (pickup, dropOff model.PassengerExchange) {
	switch r {
	case parse.RestrictionBoardingOnly:
		return model.PassengerExchangeRegular, model.PassengerExchangeNone
	case parse.RestrictionAlightingOnly:
		return model.PassengerExchangeNone, model.PassengerExchangeRegular
	case parse.RestrictionOnRequest:
		return model.PassengerExchangeCoordinateWithDriver, model.PassengerExchangeCoordinateWithDriver
	}
	return model.PassengerExchangeRegular, model.PassengerExchangeRegular
}

// Builds a trip from a record and the stops its codes resolved to.
// Trip ID and calendar are assigned separately.
func FromRecord(rec *parse.Record, stops []*model.Stop) (*Trip, error) {
	if len(stops) != len(rec.Stops) {
		return nil, fmt.Errorf("train %s: %d stops resolved for %d stop lines", rec.TrainNumber, len(stops), len(rec.Stops))
	}

	commercial := rec.CommercialNumber
	if commercial == "" {
		commercial, _, _ = strings.Cut(rec.TrainNumber, "/")
	}

	trip := &Trip{
		TrainNumbers:     []string{rec.TrainNumber},
		Category:         rec.Category,
		Name:             rec.Name,
		CommercialNumber: commercial,
		ShortName:        DisplayName(rec),
		StopTimes:        make([]StopTime, 0, len(rec.Stops)),
		Markers:          rec.Composition,
		File:             rec.File,
		Line:             rec.Line,
	}

	for i, raw := range rec.Stops {
		stop := stops[i]

		country := raw.Country
		if country == "" {
			country = stop.Country
		}

		pickup, dropOff := passengerExchange(raw.Restriction)

		trip.StopTimes = append(trip.StopTimes, StopTime{
			StopID:    stop.ID,
			Code:      raw.Code,
			Name:      stop.Name,
			Arrival:   raw.Arrival,
			Departure: raw.Departure,
			Platform:  raw.Platform,
			Track:     raw.Track,
			Pickup:    pickup,
			DropOff:   dropOff,
			Country:   country,
			Summary:   raw.Summary,
			Distance:  raw.Distance,
		})
	}

	return trip, nil
}

// Checks that times never decrease along the stop sequence. Returns
// the index of the first offending stop time, or -1.
func CheckMonotonic(stopTimes []StopTime) int {
	var previous time.Duration
	for i, st := range stopTimes {
		if st.Arrival < previous || st.Departure < st.Arrival {
			return i
		}
		previous = st.Departure
	}
	return -1
}

func (t *Trip) Validate() error {
	if len(t.StopTimes) < 2 {
		return fmt.Errorf("trip %s has %d stops", t.ID, len(t.StopTimes))
	}
	if i := CheckMonotonic(t.StopTimes); i >= 0 {
		return fmt.Errorf(
			"trip %s travels back in time at stop %d (%s)",
			t.ID, i+1, t.StopTimes[i].StopID,
		)
	}
	return nil
}

// Trip ID for an operational train number.
func BaseID(trainNumber string) string {
	return strings.ReplaceAll(trainNumber, "/", "-")
}

// Assigns trip IDs in slice order. Trains with several records get
// _2, _3, ... suffixes on all but the first.
func AssignIDs(trips []*Trip) {
	used := map[string]bool{}
	seen := map[string]int{}
	for _, t := range trips {
		base := BaseID(t.Number())
		seen[base]++

		id := base
		if seen[base] > 1 {
			id = fmt.Sprintf("%s_%d", base, seen[base])
		}
		for used[id] {
			seen[base]++
			id = fmt.Sprintf("%s_%d", base, seen[base])
		}

		used[id] = true
		t.ID = id
	}
}

func SortByID(trips []*Trip) {
	sort.Slice(trips, func(i, j int) bool {
		return trips[i].ID < trips[j].ID
	})
}

func pruneLinks(links []Link, owner *Trip, byID map[string]*Trip) []Link {
	kept := []Link{}
	for _, l := range links {
		other, found := byID[l.TripID]
		if !found || other == owner {
			continue
		}
		if !owner.Serves(l.StopID) || !other.Serves(l.StopID) {
			continue
		}
		kept = append(kept, l)
	}
	return kept
}

// Drops links to trips not in trips, and links at stops no longer
// served by both ends.
func PruneLinks(trips []*Trip) {
	byID := make(map[string]*Trip, len(trips))
	for _, t := range trips {
		byID[t.ID] = t
	}

	for _, t := range trips {
		t.ContinuesAs = pruneLinks(t.ContinuesAs, t, byID)
		t.ContinuedFrom = pruneLinks(t.ContinuedFrom, t, byID)
	}
}

package feed

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/railgtfs/railgtfs/calendar"
	"github.com/railgtfs/railgtfs/model"
	"github.com/railgtfs/railgtfs/schedule"
)

var ErrIntegrityViolation = errors.New("integrity violation")

// A dangling reference or inconsistent record. Value in Table.Field
// is referenced by, or belongs to, Owner.
type IntegrityViolationError struct {
	Table string
	Field string
	Value string
	Owner string
}

func (e *IntegrityViolationError) Error() string {
	return fmt.Sprintf("integrity violation: %s.%s '%s' (%s)", e.Table, e.Field, e.Value, e.Owner)
}

func (e *IntegrityViolationError) Unwrap() error {
	return ErrIntegrityViolation
}

type Input struct {
	Agency model.Agency

	// Publisher and language. Dates are derived from the services.
	FeedInfo model.FeedInfo

	// Stops available for reference. Only those used, and their
	// parents, are emitted.
	Stops    []model.Stop
	Trips    []*schedule.Trip
	Services []calendar.Service

	RouteRule RouteRule
}

// All tables of a static GTFS feed, each deterministically sorted.
type Feed struct {
	Agencies      []model.Agency
	Stops         []model.Stop
	Routes        []model.Route
	Trips         []model.Trip
	StopTimes     []model.StopTime
	Calendars     []model.Calendar
	CalendarDates []model.CalendarDate
	Transfers     []model.Transfer
	FeedInfo      model.FeedInfo
}

func violation(table, field, value, owner string) error {
	return &IntegrityViolationError{Table: table, Field: field, Value: value, Owner: owner}
}

type assembler struct {
	in       Input
	stops    map[string]model.Stop
	services map[string]calendar.Service
	trips    map[string]*schedule.Trip
	used     map[string]bool
	feed     *Feed

	exchanges map[exchange]bool
}

// Boarding (or alighting, for the trip a transfer is from) at a stop
// of a trip.
type exchange struct {
	tripID string
	stopID string
	board  bool
}

// Passengers must be able to get off and on at both ends of a timed
// transfer, whatever the timetable says.
func timedExchanges(trips []*schedule.Trip) map[exchange]bool {
	exchanges := map[exchange]bool{}
	for _, t := range trips {
		for _, l := range t.ContinuesAs {
			if !l.Timed {
				continue
			}
			exchanges[exchange{tripID: t.ID, stopID: l.StopID}] = true
			exchanges[exchange{tripID: l.TripID, stopID: l.StopID, board: true}] = true
		}
	}
	return exchanges
}

func (a *assembler) passengerExchange(tripID string, st schedule.StopTime) (pickup, dropOff model.PassengerExchange) {
	pickup, dropOff = st.Pickup, st.DropOff
	if pickup == model.PassengerExchangeNone && a.exchanges[exchange{tripID: tripID, stopID: st.StopID, board: true}] {
		pickup = model.PassengerExchangeRegular
	}
	if dropOff == model.PassengerExchangeNone && a.exchanges[exchange{tripID: tripID, stopID: st.StopID}] {
		dropOff = model.PassengerExchangeRegular
	}
	return pickup, dropOff
}

// Latest arrival at, and earliest departure from, a stop.
func arrivalAt(t *schedule.Trip, stopID string) (time.Duration, bool) {
	for i := len(t.StopTimes) - 1; i >= 0; i-- {
		if t.StopTimes[i].StopID == stopID {
			return t.StopTimes[i].Arrival, true
		}
	}
	return 0, false
}

func departureAt(t *schedule.Trip, stopID string) (time.Duration, bool) {
	for _, st := range t.StopTimes {
		if st.StopID == stopID {
			return st.Departure, true
		}
	}
	return 0, false
}

// Joins trips, services and stops into a feed. Fails with an
// *IntegrityViolationError on the first dangling reference found, in
// which case no feed is returned.
func Assemble(in Input) (*Feed, error) {
	if err := in.RouteRule.Validate(); err != nil {
		return nil, err
	}

	a := &assembler{
		in:       in,
		stops:    make(map[string]model.Stop, len(in.Stops)),
		services: make(map[string]calendar.Service, len(in.Services)),
		trips:    make(map[string]*schedule.Trip, len(in.Trips)),
		used:     map[string]bool{},
		feed:     &Feed{Agencies: []model.Agency{in.Agency}},
	}
	for _, s := range in.Stops {
		a.stops[s.ID] = s
	}
	for _, s := range in.Services {
		a.services[s.ID] = s
	}
	for _, t := range in.Trips {
		if _, found := a.trips[t.ID]; found {
			return nil, violation("trips", "trip_id", t.ID, "duplicate trip")
		}
		a.trips[t.ID] = t
	}

	trips := make([]*schedule.Trip, len(in.Trips))
	copy(trips, in.Trips)
	schedule.SortByID(trips)

	routeIDs := map[string]bool{}
	blocks := blockIDs(trips)
	a.exchanges = timedExchanges(trips)

	for _, t := range trips {
		routeID := in.RouteRule.RouteID(t)
		if routeID == "" {
			return nil, violation("trips", "route_id", routeID, t.ID)
		}
		if t.Bus {
			routeID += busRouteSuffix
		}
		routeIDs[routeID] = true

		if err := a.addTrip(t, routeID, blocks[t.ID]); err != nil {
			return nil, err
		}
	}

	a.feed.Routes = buildRoutes(routeIDs, in.Agency.ID)

	if err := a.addStops(); err != nil {
		return nil, err
	}

	a.addCalendars()
	a.addTransfers(trips)

	return a.feed, nil
}

func (a *assembler) addTrip(t *schedule.Trip, routeID, blockID string) error {
	if _, found := a.services[t.ServiceID]; !found {
		return violation("trips", "service_id", t.ServiceID, t.ID)
	}

	if len(t.StopTimes) < 2 {
		return violation("stop_times", "trip_id", t.ID, fmt.Sprintf("%d stops", len(t.StopTimes)))
	}
	if i := schedule.CheckMonotonic(t.StopTimes); i >= 0 {
		return violation("stop_times", "arrival_time", model.FormatTime(t.StopTimes[i].Arrival), t.ID)
	}

	for _, links := range [][]schedule.Link{t.ContinuesAs, t.ContinuedFrom} {
		for _, l := range links {
			if _, found := a.trips[l.TripID]; !found {
				return violation("trips", "trip_id", l.TripID, t.ID)
			}
			if _, found := a.stops[l.StopID]; !found {
				return violation("stops", "stop_id", l.StopID, t.ID)
			}
		}
	}

	for _, l := range t.ContinuesAs {
		arrival, okFrom := arrivalAt(t, l.StopID)
		departure, okTo := departureAt(a.trips[l.TripID], l.StopID)
		if !okFrom || !okTo {
			return violation("transfers", "from_stop_id", l.StopID, fmt.Sprintf("%s -> %s", t.ID, l.TripID))
		}
		if departure < arrival {
			return violation("transfers", "to_trip_id", l.TripID, fmt.Sprintf("departs %s before %s arrives", model.FormatTime(departure), t.ID))
		}
	}

	firstDistance := t.First().Distance
	for i, st := range t.StopTimes {
		if _, found := a.stops[st.StopID]; !found {
			return violation("stops", "stop_id", st.StopID, t.ID)
		}
		a.used[st.StopID] = true

		fareDistance := st.Distance - firstDistance
		if fareDistance < 0 {
			fareDistance = 0
		}

		pickup, dropOff := a.passengerExchange(t.ID, st)
		a.feed.StopTimes = append(a.feed.StopTimes, model.StopTime{
			TripID:       t.ID,
			StopID:       st.StopID,
			StopSequence: uint32(i + 1),
			Arrival:      st.Arrival,
			Departure:    st.Departure,
			Platform:     st.Platform,
			PickupType:   pickup,
			DropOffType:  dropOff,
			FareDistance: fareDistance,
		})
	}

	headsign := t.Headsign
	if headsign == "" {
		headsign = t.Last().Name
	}

	a.feed.Trips = append(a.feed.Trips, model.Trip{
		ID:        t.ID,
		RouteID:   routeID,
		ServiceID: t.ServiceID,
		Headsign:  headsign,
		ShortName: t.ShortName,
		BlockID:   blockID,
	})

	return nil
}

// Emits every used stop along with its ancestors.
func (a *assembler) addStops() error {
	emitted := map[string]bool{}

	ids := make([]string, 0, len(a.used))
	for id := range a.used {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		for id != "" && !emitted[id] {
			stop := a.stops[id]
			emitted[id] = true
			a.feed.Stops = append(a.feed.Stops, stop)

			if stop.ParentStation == "" {
				break
			}
			if _, found := a.stops[stop.ParentStation]; !found {
				return violation("stops", "parent_station", stop.ParentStation, stop.ID)
			}
			id = stop.ParentStation
		}
	}

	sort.Slice(a.feed.Stops, func(i, j int) bool {
		return a.feed.Stops[i].ID < a.feed.Stops[j].ID
	})

	return nil
}

// Emits services referenced by any trip, and derives the feed's
// validity from them.
func (a *assembler) addCalendars() {
	referenced := map[string]bool{}
	for _, t := range a.feed.Trips {
		referenced[t.ServiceID] = true
	}

	info := a.in.FeedInfo
	if info.Lang == "" {
		info.Lang = a.in.Agency.Lang
	}

	for _, s := range a.in.Services {
		if !referenced[s.ID] {
			continue
		}

		row, dates := s.Calendar.Rows(s.ID)
		a.feed.Calendars = append(a.feed.Calendars, row)
		a.feed.CalendarDates = append(a.feed.CalendarDates, dates...)

		first, last := s.Calendar.Span()
		start, end := first.Format(calendar.DateFormat), last.Format(calendar.DateFormat)
		if info.StartDate == "" || start < info.StartDate {
			info.StartDate = start
		}
		if info.EndDate == "" || end > info.EndDate {
			info.EndDate = end
		}
	}

	a.feed.FeedInfo = info
}

// Emits a transfer for every link between trips. Passengers stay
// seated unless the link is timed.
func (a *assembler) addTransfers(trips []*schedule.Trip) {
	for _, t := range trips {
		for _, l := range t.ContinuesAs {
			kind := model.TransferTypeInSeat
			if l.Timed {
				kind = model.TransferTypeTimed
			}
			a.feed.Transfers = append(a.feed.Transfers, model.Transfer{
				FromStopID: l.StopID,
				ToStopID:   l.StopID,
				FromTripID: t.ID,
				ToTripID:   l.TripID,
				Type:       kind,
			})
		}
	}

	sort.SliceStable(a.feed.Transfers, func(i, j int) bool {
		ti, tj := a.feed.Transfers[i], a.feed.Transfers[j]
		if ti.FromTripID != tj.FromTripID {
			return ti.FromTripID < tj.FromTripID
		}
		return ti.ToTripID < tj.ToTripID
	})
}

// Trips connected by in-seat links share a block, named after the
// smallest trip ID in it. Trips with no such links have no block.
func blockIDs(trips []*schedule.Trip) map[string]string {
	parent := map[string]string{}

	var find func(string) string
	find = func(id string) string {
		p, found := parent[id]
		if !found || p == id {
			return id
		}
		root := find(p)
		parent[id] = root
		return root
	}

	union := func(x, y string) {
		for _, id := range []string{x, y} {
			if _, found := parent[id]; !found {
				parent[id] = id
			}
		}
		rx, ry := find(x), find(y)
		if rx == ry {
			return
		}
		if rx < ry {
			parent[ry] = rx
		} else {
			parent[rx] = ry
		}
	}

	for _, t := range trips {
		for _, links := range [][]schedule.Link{t.ContinuesAs, t.ContinuedFrom} {
			for _, l := range links {
				if !l.Timed {
					union(t.ID, l.TripID)
				}
			}
		}
	}

	blocks := map[string]string{}
	for id := range parent {
		blocks[id] = find(id)
	}
	return blocks
}

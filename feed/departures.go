package feed

import (
	"sort"
	"time"

	"github.com/railgtfs/railgtfs/calendar"
	"github.com/railgtfs/railgtfs/model"
)

type Departure struct {
	TripID    string
	RouteID   string
	ShortName string
	Headsign  string
	StopID    string
	Platform  string
	Time      time.Duration
}

// Service IDs with service on the given date.
func (f *Feed) ActiveServices(date time.Time) map[string]bool {
	day := date.Format(calendar.DateFormat)

	active := map[string]bool{}
	for _, c := range f.Calendars {
		if day < c.StartDate || day > c.EndDate {
			continue
		}
		if c.Weekday&(1<<date.Weekday()) != 0 {
			active[c.ServiceID] = true
		}
	}

	for _, cd := range f.CalendarDates {
		if cd.Date != day {
			continue
		}
		switch cd.ExceptionType {
		case model.ExceptionTypeAdded:
			active[cd.ServiceID] = true
		case model.ExceptionTypeRemoved:
			delete(active, cd.ServiceID)
		}
	}

	return active
}

// Trips departing from the stop, or any of its child stops, on the
// given service date. Trips terminating at the stop are not included.
// Sorted by time, then trip ID.
func (f *Feed) Departures(stopID string, date time.Time) []Departure {
	stopIDs := map[string]bool{stopID: true}
	for _, s := range f.Stops {
		if s.ParentStation == stopID {
			stopIDs[s.ID] = true
		}
	}

	active := f.ActiveServices(date)
	trips := map[string]model.Trip{}
	for _, t := range f.Trips {
		if active[t.ServiceID] {
			trips[t.ID] = t
		}
	}

	last := map[string]uint32{}
	for _, st := range f.StopTimes {
		if st.StopSequence > last[st.TripID] {
			last[st.TripID] = st.StopSequence
		}
	}

	departures := []Departure{}
	for _, st := range f.StopTimes {
		trip, found := trips[st.TripID]
		if !found || !stopIDs[st.StopID] || st.StopSequence == last[st.TripID] {
			continue
		}
		if st.PickupType == model.PassengerExchangeNone {
			continue
		}
		departures = append(departures, Departure{
			TripID:    trip.ID,
			RouteID:   trip.RouteID,
			ShortName: trip.ShortName,
			Headsign:  trip.Headsign,
			StopID:    st.StopID,
			Platform:  st.Platform,
			Time:      st.Departure,
		})
	}

	sort.Slice(departures, func(i, j int) bool {
		if departures[i].Time != departures[j].Time {
			return departures[i].Time < departures[j].Time
		}
		return departures[i].TripID < departures[j].TripID
	})

	return departures
}

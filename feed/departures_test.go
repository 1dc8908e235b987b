package feed

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/railgtfs/railgtfs/model"
)

func departuresFeed() *Feed {
	return &Feed{
		Stops: []model.Stop{
			{ID: "kat", Name: "Katowice"},
			{ID: "krk", Name: "Kraków Główny", LocationType: model.LocationTypeStation},
			{ID: "krk-1", Name: "Kraków Główny", ParentStation: "krk", PlatformCode: "1"},
			{ID: "waw", Name: "Warszawa Centralna"},
		},
		Trips: []model.Trip{
			{ID: "1", RouteID: "IC", ServiceID: "S1", ShortName: "1 Lajkonik", Headsign: "Warszawa Centralna"},
			{ID: "2", RouteID: "IC", ServiceID: "S2", ShortName: "2", Headsign: "Katowice"},
			{ID: "3", RouteID: "IC", ServiceID: "S1", ShortName: "3", Headsign: "Kraków Główny"},
			{ID: "4", RouteID: "TLK", ServiceID: "S1", ShortName: "4", Headsign: "Warszawa Centralna"},
		},
		StopTimes: []model.StopTime{
			{TripID: "1", StopID: "krk-1", StopSequence: 1, Arrival: 8 * time.Hour, Departure: 8 * time.Hour, Platform: "1"},
			{TripID: "1", StopID: "kat", StopSequence: 2, Arrival: 9 * time.Hour, Departure: 9*time.Hour + 2*time.Minute},
			{TripID: "1", StopID: "waw", StopSequence: 3, Arrival: 11 * time.Hour, Departure: 11 * time.Hour},
			{TripID: "2", StopID: "krk", StopSequence: 1, Arrival: 7 * time.Hour, Departure: 7 * time.Hour},
			{TripID: "2", StopID: "kat", StopSequence: 2, Arrival: 8 * time.Hour, Departure: 8 * time.Hour},
			{TripID: "3", StopID: "waw", StopSequence: 1, Arrival: 12 * time.Hour, Departure: 12 * time.Hour},
			{TripID: "3", StopID: "krk-1", StopSequence: 2, Arrival: 15 * time.Hour, Departure: 15 * time.Hour},
			{TripID: "4", StopID: "kat", StopSequence: 1, Arrival: 10 * time.Hour, Departure: 10 * time.Hour, PickupType: model.PassengerExchangeNone},
			{TripID: "4", StopID: "waw", StopSequence: 2, Arrival: 13 * time.Hour, Departure: 13 * time.Hour},
		},
		Calendars: []model.Calendar{
			{ServiceID: "S1", StartDate: "20250101", EndDate: "20250131", Weekday: 0b0111110},
			{ServiceID: "S2", StartDate: "20250101", EndDate: "20250131", Weekday: 0b1000001},
		},
		CalendarDates: []model.CalendarDate{
			{ServiceID: "S1", Date: "20250106", ExceptionType: model.ExceptionTypeRemoved},
			{ServiceID: "S2", Date: "20250106", ExceptionType: model.ExceptionTypeAdded},
		},
	}
}

func date(s string) time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestActiveServices(t *testing.T) {
	f := departuresFeed()

	for _, tc := range []struct {
		date     string
		expected map[string]bool
	}{
		{"2025-01-07", map[string]bool{"S1": true}},
		{"2025-01-04", map[string]bool{"S2": true}},
		{"2025-01-06", map[string]bool{"S2": true}},
		{"2025-02-03", map[string]bool{}},
		{"2024-12-31", map[string]bool{}},
	} {
		t.Run(tc.date, func(t *testing.T) {
			assert.Equal(t, tc.expected, f.ActiveServices(date(tc.date)))
		})
	}
}

func TestDepartures(t *testing.T) {
	f := departuresFeed()

	// Child platforms count, terminating trips don't.
	assert.Equal(t, []Departure{
		{TripID: "1", RouteID: "IC", ShortName: "1 Lajkonik", Headsign: "Warszawa Centralna", StopID: "krk-1", Platform: "1", Time: 8 * time.Hour},
	}, f.Departures("krk", date("2025-01-07")))

	assert.Equal(t, []Departure{
		{TripID: "2", RouteID: "IC", ShortName: "2", Headsign: "Katowice", StopID: "krk", Time: 7 * time.Hour},
	}, f.Departures("krk", date("2025-01-06")))

	// No boarding on trip 4.
	assert.Equal(t, []Departure{
		{TripID: "1", RouteID: "IC", ShortName: "1 Lajkonik", Headsign: "Warszawa Centralna", StopID: "kat", Time: 9*time.Hour + 2*time.Minute},
	}, f.Departures("kat", date("2025-01-07")))

	assert.Equal(t, []Departure{}, f.Departures("waw", date("2025-01-04")))
	assert.Equal(t, []Departure{}, f.Departures("nowhere", date("2025-01-07")))
}

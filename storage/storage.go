package storage

import (
	"fmt"
	"time"

	"github.com/railgtfs/railgtfs/feed"
	"github.com/railgtfs/railgtfs/model"
)

// Destination of a feed's tables. Trips and stop times are bracketed
// by Begin/End calls, which implementations may use for batching.
// Close must be called once all tables are written.
type FeedWriter interface {
	WriteAgency(agency model.Agency) error
	WriteStop(stop model.Stop) error
	WriteRoute(route model.Route) error
	BeginTrips() error
	WriteTrip(trip model.Trip) error
	EndTrips() error
	WriteCalendar(cal model.Calendar) error
	WriteCalendarDate(calDate model.CalendarDate) error
	BeginStopTimes() error
	WriteStopTime(stopTime model.StopTime) error
	EndStopTimes() error
	WriteTransfer(transfer model.Transfer) error
	WriteFeedInfo(info model.FeedInfo) error
	Close() error
}

// Writes all tables of f to w, in order, and closes w.
func WriteFeed(w FeedWriter, f *feed.Feed) error {
	for _, a := range f.Agencies {
		if err := w.WriteAgency(a); err != nil {
			return fmt.Errorf("writing agency: %w", err)
		}
	}

	for _, s := range f.Stops {
		if err := w.WriteStop(s); err != nil {
			return fmt.Errorf("writing stop: %w", err)
		}
	}

	for _, r := range f.Routes {
		if err := w.WriteRoute(r); err != nil {
			return fmt.Errorf("writing route: %w", err)
		}
	}

	if err := w.BeginTrips(); err != nil {
		return fmt.Errorf("beginning trips: %w", err)
	}
	for _, t := range f.Trips {
		if err := w.WriteTrip(t); err != nil {
			return fmt.Errorf("writing trip: %w", err)
		}
	}
	if err := w.EndTrips(); err != nil {
		return fmt.Errorf("ending trips: %w", err)
	}

	for _, c := range f.Calendars {
		if err := w.WriteCalendar(c); err != nil {
			return fmt.Errorf("writing calendar: %w", err)
		}
	}

	for _, cd := range f.CalendarDates {
		if err := w.WriteCalendarDate(cd); err != nil {
			return fmt.Errorf("writing calendar date: %w", err)
		}
	}

	if err := w.BeginStopTimes(); err != nil {
		return fmt.Errorf("beginning stop times: %w", err)
	}
	for _, st := range f.StopTimes {
		if err := w.WriteStopTime(st); err != nil {
			return fmt.Errorf("writing stop time: %w", err)
		}
	}
	if err := w.EndStopTimes(); err != nil {
		return fmt.Errorf("ending stop times: %w", err)
	}

	for _, t := range f.Transfers {
		if err := w.WriteTransfer(t); err != nil {
			return fmt.Errorf("writing transfer: %w", err)
		}
	}

	if err := w.WriteFeedInfo(f.FeedInfo); err != nil {
		return fmt.Errorf("writing feed info: %w", err)
	}

	return w.Close()
}

// Splits a weekday bitmask into GTFS' monday..sunday columns.
func weekdayColumns(weekday int8) [7]int {
	cols := [7]int{}
	for i, day := range []time.Weekday{
		time.Monday,
		time.Tuesday,
		time.Wednesday,
		time.Thursday,
		time.Friday,
		time.Saturday,
		time.Sunday,
	} {
		if weekday&(1<<day) != 0 {
			cols[i] = 1
		}
	}
	return cols
}

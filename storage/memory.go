package storage

import (
	"fmt"

	"github.com/railgtfs/railgtfs/feed"
	"github.com/railgtfs/railgtfs/model"
)

// Collects written tables into a feed.Feed.
type MemoryFeedWriter struct {
	Feed *feed.Feed

	inTrips     bool
	inStopTimes bool
	closed      bool
}

func NewMemoryFeedWriter() *MemoryFeedWriter {
	return &MemoryFeedWriter{Feed: &feed.Feed{}}
}

func (w *MemoryFeedWriter) WriteAgency(a model.Agency) error {
	w.Feed.Agencies = append(w.Feed.Agencies, a)
	return nil
}

func (w *MemoryFeedWriter) WriteStop(stop model.Stop) error {
	w.Feed.Stops = append(w.Feed.Stops, stop)
	return nil
}

func (w *MemoryFeedWriter) WriteRoute(route model.Route) error {
	w.Feed.Routes = append(w.Feed.Routes, route)
	return nil
}

func (w *MemoryFeedWriter) BeginTrips() error {
	w.inTrips = true
	return nil
}

func (w *MemoryFeedWriter) WriteTrip(trip model.Trip) error {
	if !w.inTrips {
		return fmt.Errorf("trip written outside BeginTrips/EndTrips")
	}
	w.Feed.Trips = append(w.Feed.Trips, trip)
	return nil
}

func (w *MemoryFeedWriter) EndTrips() error {
	w.inTrips = false
	return nil
}

func (w *MemoryFeedWriter) WriteCalendar(cal model.Calendar) error {
	w.Feed.Calendars = append(w.Feed.Calendars, cal)
	return nil
}

func (w *MemoryFeedWriter) WriteCalendarDate(cd model.CalendarDate) error {
	w.Feed.CalendarDates = append(w.Feed.CalendarDates, cd)
	return nil
}

func (w *MemoryFeedWriter) BeginStopTimes() error {
	w.inStopTimes = true
	return nil
}

func (w *MemoryFeedWriter) WriteStopTime(stopTime model.StopTime) error {
	if !w.inStopTimes {
		return fmt.Errorf("stop time written outside BeginStopTimes/EndStopTimes")
	}
	w.Feed.StopTimes = append(w.Feed.StopTimes, stopTime)
	return nil
}

func (w *MemoryFeedWriter) EndStopTimes() error {
	w.inStopTimes = false
	return nil
}

func (w *MemoryFeedWriter) WriteTransfer(transfer model.Transfer) error {
	w.Feed.Transfers = append(w.Feed.Transfers, transfer)
	return nil
}

func (w *MemoryFeedWriter) WriteFeedInfo(info model.FeedInfo) error {
	w.Feed.FeedInfo = info
	return nil
}

func (w *MemoryFeedWriter) Close() error {
	w.closed = true
	return nil
}

func (w *MemoryFeedWriter) Closed() bool {
	return w.closed
}

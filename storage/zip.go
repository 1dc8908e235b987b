package storage

import (
	"archive/zip"
	"fmt"
	"io"

	"github.com/gocarina/gocsv"

	"github.com/railgtfs/railgtfs/model"
)

type agencyRow struct {
	ID       string `csv:"agency_id"`
	Name     string `csv:"agency_name"`
	URL      string `csv:"agency_url"`
	Timezone string `csv:"agency_timezone"`
	Lang     string `csv:"agency_lang"`
	Phone    string `csv:"agency_phone"`
}

type stopRow struct {
	ID            string  `csv:"stop_id"`
	Code          string  `csv:"stop_code"`
	Name          string  `csv:"stop_name"`
	Lat           float64 `csv:"stop_lat"`
	Lon           float64 `csv:"stop_lon"`
	LocationType  int     `csv:"location_type"`
	ParentStation string  `csv:"parent_station"`
	PlatformCode  string  `csv:"platform_code"`
}

type routeRow struct {
	ID        string `csv:"route_id"`
	AgencyID  string `csv:"agency_id"`
	ShortName string `csv:"route_short_name"`
	LongName  string `csv:"route_long_name"`
	Type      int    `csv:"route_type"`
	Color     string `csv:"route_color"`
	TextColor string `csv:"route_text_color"`
	SortOrder int    `csv:"route_sort_order"`
}

type tripRow struct {
	RouteID   string `csv:"route_id"`
	ServiceID string `csv:"service_id"`
	ID        string `csv:"trip_id"`
	Headsign  string `csv:"trip_headsign"`
	ShortName string `csv:"trip_short_name"`
	BlockID   string `csv:"block_id"`
}

type stopTimeRow struct {
	TripID       string `csv:"trip_id"`
	Arrival      string `csv:"arrival_time"`
	Departure    string `csv:"departure_time"`
	StopID       string `csv:"stop_id"`
	StopSequence uint32 `csv:"stop_sequence"`
	PickupType   int    `csv:"pickup_type"`
	DropOffType  int    `csv:"drop_off_type"`
	Platform     string `csv:"platform"`
	FareDistance int    `csv:"fare_dist_m"`
}

type calendarRow struct {
	ServiceID string `csv:"service_id"`
	Monday    int    `csv:"monday"`
	Tuesday   int    `csv:"tuesday"`
	Wednesday int    `csv:"wednesday"`
	Thursday  int    `csv:"thursday"`
	Friday    int    `csv:"friday"`
	Saturday  int    `csv:"saturday"`
	Sunday    int    `csv:"sunday"`
	StartDate string `csv:"start_date"`
	EndDate   string `csv:"end_date"`
}

type calendarDateRow struct {
	ServiceID     string `csv:"service_id"`
	Date          string `csv:"date"`
	ExceptionType int    `csv:"exception_type"`
}

type transferRow struct {
	FromStopID string `csv:"from_stop_id"`
	ToStopID   string `csv:"to_stop_id"`
	FromTripID string `csv:"from_trip_id"`
	ToTripID   string `csv:"to_trip_id"`
	Type       int    `csv:"transfer_type"`
}

type feedInfoRow struct {
	PublisherName string `csv:"feed_publisher_name"`
	PublisherURL  string `csv:"feed_publisher_url"`
	Lang          string `csv:"feed_lang"`
	StartDate     string `csv:"feed_start_date"`
	EndDate       string `csv:"feed_end_date"`
	Version       string `csv:"feed_version"`
}

// Writes a GTFS zip archive. Rows are buffered and the archive is
// produced on Close. Entries carry no timestamps, so identical
// tables always give identical bytes.
type ZipFeedWriter struct {
	out io.Writer

	agencies      []agencyRow
	stops         []stopRow
	routes        []routeRow
	trips         []tripRow
	stopTimes     []stopTimeRow
	calendars     []calendarRow
	calendarDates []calendarDateRow
	transfers     []transferRow
	feedInfo      []feedInfoRow
}

func NewZipFeedWriter(out io.Writer) *ZipFeedWriter {
	return &ZipFeedWriter{out: out}
}

func (w *ZipFeedWriter) WriteAgency(a model.Agency) error {
	w.agencies = append(w.agencies, agencyRow{
		ID:       a.ID,
		Name:     a.Name,
		URL:      a.URL,
		Timezone: a.Timezone,
		Lang:     a.Lang,
		Phone:    a.Phone,
	})
	return nil
}

func (w *ZipFeedWriter) WriteStop(s model.Stop) error {
	w.stops = append(w.stops, stopRow{
		ID:            s.ID,
		Code:          s.Code,
		Name:          s.Name,
		Lat:           s.Lat,
		Lon:           s.Lon,
		LocationType:  int(s.LocationType),
		ParentStation: s.ParentStation,
		PlatformCode:  s.PlatformCode,
	})
	return nil
}

func (w *ZipFeedWriter) WriteRoute(r model.Route) error {
	w.routes = append(w.routes, routeRow{
		ID:        r.ID,
		AgencyID:  r.AgencyID,
		ShortName: r.ShortName,
		LongName:  r.LongName,
		Type:      int(r.Type),
		Color:     r.Color,
		TextColor: r.TextColor,
		SortOrder: r.SortOrder,
	})
	return nil
}

func (w *ZipFeedWriter) BeginTrips() error {
	return nil
}

func (w *ZipFeedWriter) WriteTrip(t model.Trip) error {
	w.trips = append(w.trips, tripRow{
		RouteID:   t.RouteID,
		ServiceID: t.ServiceID,
		ID:        t.ID,
		Headsign:  t.Headsign,
		ShortName: t.ShortName,
		BlockID:   t.BlockID,
	})
	return nil
}

func (w *ZipFeedWriter) EndTrips() error {
	return nil
}

func (w *ZipFeedWriter) WriteCalendar(c model.Calendar) error {
	days := weekdayColumns(c.Weekday)
	w.calendars = append(w.calendars, calendarRow{
		ServiceID: c.ServiceID,
		Monday:    days[0],
		Tuesday:   days[1],
		Wednesday: days[2],
		Thursday:  days[3],
		Friday:    days[4],
		Saturday:  days[5],
		Sunday:    days[6],
		StartDate: c.StartDate,
		EndDate:   c.EndDate,
	})
	return nil
}

func (w *ZipFeedWriter) WriteCalendarDate(cd model.CalendarDate) error {
	w.calendarDates = append(w.calendarDates, calendarDateRow{
		ServiceID:     cd.ServiceID,
		Date:          cd.Date,
		ExceptionType: int(cd.ExceptionType),
	})
	return nil
}

func (w *ZipFeedWriter) BeginStopTimes() error {
	return nil
}

func (w *ZipFeedWriter) WriteStopTime(st model.StopTime) error {
	w.stopTimes = append(w.stopTimes, stopTimeRow{
		TripID:       st.TripID,
		Arrival:      model.FormatTime(st.Arrival),
		Departure:    model.FormatTime(st.Departure),
		StopID:       st.StopID,
		StopSequence: st.StopSequence,
		PickupType:   int(st.PickupType),
		DropOffType:  int(st.DropOffType),
		Platform:     st.Platform,
		FareDistance: st.FareDistance,
	})
	return nil
}

func (w *ZipFeedWriter) EndStopTimes() error {
	return nil
}

func (w *ZipFeedWriter) WriteTransfer(t model.Transfer) error {
	w.transfers = append(w.transfers, transferRow{
		FromStopID: t.FromStopID,
		ToStopID:   t.ToStopID,
		FromTripID: t.FromTripID,
		ToTripID:   t.ToTripID,
		Type:       int(t.Type),
	})
	return nil
}

func (w *ZipFeedWriter) WriteFeedInfo(info model.FeedInfo) error {
	w.feedInfo = []feedInfoRow{{
		PublisherName: info.PublisherName,
		PublisherURL:  info.PublisherURL,
		Lang:          info.Lang,
		StartDate:     info.StartDate,
		EndDate:       info.EndDate,
		Version:       info.Version,
	}}
	return nil
}

func (w *ZipFeedWriter) Close() error {
	zw := zip.NewWriter(w.out)

	for _, file := range []struct {
		name     string
		rows     interface{}
		optional bool
		empty    bool
	}{
		{"agency.txt", w.agencies, false, len(w.agencies) == 0},
		{"stops.txt", w.stops, false, len(w.stops) == 0},
		{"routes.txt", w.routes, false, len(w.routes) == 0},
		{"trips.txt", w.trips, false, len(w.trips) == 0},
		{"stop_times.txt", w.stopTimes, false, len(w.stopTimes) == 0},
		{"calendar.txt", w.calendars, false, len(w.calendars) == 0},
		{"calendar_dates.txt", w.calendarDates, true, len(w.calendarDates) == 0},
		{"transfers.txt", w.transfers, true, len(w.transfers) == 0},
		{"feed_info.txt", w.feedInfo, true, len(w.feedInfo) == 0},
	} {
		if file.optional && file.empty {
			continue
		}

		f, err := zw.CreateHeader(&zip.FileHeader{
			Name:   file.name,
			Method: zip.Deflate,
		})
		if err != nil {
			return fmt.Errorf("creating %s: %w", file.name, err)
		}

		err = gocsv.Marshal(file.rows, f)
		if err != nil {
			return fmt.Errorf("writing %s: %w", file.name, err)
		}
	}

	err := zw.Close()
	if err != nil {
		return fmt.Errorf("closing archive: %w", err)
	}

	return nil
}

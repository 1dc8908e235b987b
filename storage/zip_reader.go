package storage

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"sort"

	"github.com/gocarina/gocsv"
	"github.com/spkg/bom"

	"github.com/railgtfs/railgtfs/feed"
	"github.com/railgtfs/railgtfs/model"
)

func unmarshalEntry(files map[string]*zip.File, name string, optional bool, out interface{}) error {
	f, found := files[name]
	if !found {
		if optional {
			return nil
		}
		return fmt.Errorf("missing %s", name)
	}

	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("opening %s: %w", name, err)
	}
	defer rc.Close()

	// LazyCSVReader required (at least) to survive sloppy use of
	// quotes. The BOM reader strips unicode BOMs if present.
	err = gocsv.UnmarshalCSV(gocsv.LazyCSVReader(bom.NewReader(rc)), out)
	if err != nil {
		return fmt.Errorf("unmarshaling %s: %w", name, err)
	}
	return nil
}

func weekdayMask(row calendarRow) (int8, error) {
	var mask int8
	for i, v := range []int{row.Sunday, row.Monday, row.Tuesday, row.Wednesday, row.Thursday, row.Friday, row.Saturday} {
		switch v {
		case 0:
		case 1:
			mask |= 1 << i
		default:
			return 0, fmt.Errorf("invalid weekday value %d for service_id '%s'", v, row.ServiceID)
		}
	}
	return mask, nil
}

// Reads a GTFS zip archive, such as written by ZipFeedWriter, back
// into a feed. References between tables are checked.
func ReadZipFeed(buf []byte) (*feed.Feed, error) {
	r, err := zip.NewReader(bytes.NewReader(buf), int64(len(buf)))
	if err != nil {
		return nil, fmt.Errorf("unzipping: %w", err)
	}

	files := map[string]*zip.File{}
	for _, f := range r.File {
		files[f.Name] = f
	}

	f := &feed.Feed{}

	agencyRows := []*agencyRow{}
	if err := unmarshalEntry(files, "agency.txt", false, &agencyRows); err != nil {
		return nil, err
	}
	agencies := map[string]bool{}
	for _, a := range agencyRows {
		if a.Name == "" || a.URL == "" || a.Timezone == "" {
			return nil, fmt.Errorf("agency '%s' lacks name, url or timezone", a.ID)
		}
		if agencies[a.ID] {
			return nil, fmt.Errorf("repeated agency_id '%s'", a.ID)
		}
		agencies[a.ID] = true
		f.Agencies = append(f.Agencies, model.Agency{
			ID:       a.ID,
			Name:     a.Name,
			URL:      a.URL,
			Timezone: a.Timezone,
			Lang:     a.Lang,
			Phone:    a.Phone,
		})
	}
	if len(f.Agencies) == 0 {
		return nil, fmt.Errorf("no agency")
	}

	stopRows := []*stopRow{}
	if err := unmarshalEntry(files, "stops.txt", false, &stopRows); err != nil {
		return nil, err
	}
	stops := map[string]bool{}
	for _, s := range stopRows {
		if s.ID == "" {
			return nil, fmt.Errorf("empty stop_id")
		}
		if stops[s.ID] {
			return nil, fmt.Errorf("repeated stop_id '%s'", s.ID)
		}
		stops[s.ID] = true
		if s.LocationType < int(model.LocationTypeStop) || s.LocationType > int(model.LocationTypeBoardingArea) {
			return nil, fmt.Errorf("invalid location_type %d for stop_id '%s'", s.LocationType, s.ID)
		}
		f.Stops = append(f.Stops, model.Stop{
			ID:            s.ID,
			Code:          s.Code,
			Name:          s.Name,
			Lat:           s.Lat,
			Lon:           s.Lon,
			LocationType:  model.LocationType(s.LocationType),
			ParentStation: s.ParentStation,
			PlatformCode:  s.PlatformCode,
		})
	}
	for _, s := range f.Stops {
		if s.ParentStation != "" && !stops[s.ParentStation] {
			return nil, fmt.Errorf("stop '%s' references unknown parent_station '%s'", s.ID, s.ParentStation)
		}
	}

	routeRows := []*routeRow{}
	if err := unmarshalEntry(files, "routes.txt", false, &routeRows); err != nil {
		return nil, err
	}
	routes := map[string]bool{}
	for _, rt := range routeRows {
		if rt.ID == "" {
			return nil, fmt.Errorf("empty route_id")
		}
		if routes[rt.ID] {
			return nil, fmt.Errorf("repeated route_id '%s'", rt.ID)
		}
		routes[rt.ID] = true
		if !agencies[rt.AgencyID] && !(rt.AgencyID == "" && len(agencies) == 1) {
			return nil, fmt.Errorf("route '%s' references unknown agency_id '%s'", rt.ID, rt.AgencyID)
		}
		f.Routes = append(f.Routes, model.Route{
			ID:        rt.ID,
			AgencyID:  rt.AgencyID,
			ShortName: rt.ShortName,
			LongName:  rt.LongName,
			Type:      model.RouteType(rt.Type),
			Color:     rt.Color,
			TextColor: rt.TextColor,
			SortOrder: rt.SortOrder,
		})
	}

	services := map[string]bool{}

	calendarRows := []*calendarRow{}
	if err := unmarshalEntry(files, "calendar.txt", false, &calendarRows); err != nil {
		return nil, err
	}
	for _, c := range calendarRows {
		if services[c.ServiceID] {
			return nil, fmt.Errorf("repeated service_id '%s' in calendar.txt", c.ServiceID)
		}
		services[c.ServiceID] = true
		mask, err := weekdayMask(*c)
		if err != nil {
			return nil, err
		}
		f.Calendars = append(f.Calendars, model.Calendar{
			ServiceID: c.ServiceID,
			StartDate: c.StartDate,
			EndDate:   c.EndDate,
			Weekday:   mask,
		})
	}

	calendarDateRows := []*calendarDateRow{}
	if err := unmarshalEntry(files, "calendar_dates.txt", true, &calendarDateRows); err != nil {
		return nil, err
	}
	for _, cd := range calendarDateRows {
		exception := model.ExceptionType(cd.ExceptionType)
		if exception != model.ExceptionTypeAdded && exception != model.ExceptionTypeRemoved {
			return nil, fmt.Errorf("invalid exception_type %d for service_id '%s'", cd.ExceptionType, cd.ServiceID)
		}
		services[cd.ServiceID] = true
		f.CalendarDates = append(f.CalendarDates, model.CalendarDate{
			ServiceID:     cd.ServiceID,
			Date:          cd.Date,
			ExceptionType: exception,
		})
	}

	tripRows := []*tripRow{}
	if err := unmarshalEntry(files, "trips.txt", false, &tripRows); err != nil {
		return nil, err
	}
	trips := map[string]bool{}
	for _, t := range tripRows {
		if t.ID == "" {
			return nil, fmt.Errorf("empty trip_id")
		}
		if trips[t.ID] {
			return nil, fmt.Errorf("repeated trip_id '%s'", t.ID)
		}
		trips[t.ID] = true
		if !routes[t.RouteID] {
			return nil, fmt.Errorf("trip '%s' references unknown route_id '%s'", t.ID, t.RouteID)
		}
		if !services[t.ServiceID] {
			return nil, fmt.Errorf("trip '%s' references unknown service_id '%s'", t.ID, t.ServiceID)
		}
		f.Trips = append(f.Trips, model.Trip{
			ID:        t.ID,
			RouteID:   t.RouteID,
			ServiceID: t.ServiceID,
			Headsign:  t.Headsign,
			ShortName: t.ShortName,
			BlockID:   t.BlockID,
		})
	}

	stopTimeRows := []*stopTimeRow{}
	if err := unmarshalEntry(files, "stop_times.txt", false, &stopTimeRows); err != nil {
		return nil, err
	}
	for _, st := range stopTimeRows {
		if !trips[st.TripID] {
			return nil, fmt.Errorf("stop_time references unknown trip_id '%s'", st.TripID)
		}
		if !stops[st.StopID] {
			return nil, fmt.Errorf("trip '%s' references unknown stop_id '%s'", st.TripID, st.StopID)
		}
		arrival, err := model.ParseTime(st.Arrival)
		if err != nil {
			return nil, fmt.Errorf("trip '%s' arrival_time: %w", st.TripID, err)
		}
		departure, err := model.ParseTime(st.Departure)
		if err != nil {
			return nil, fmt.Errorf("trip '%s' departure_time: %w", st.TripID, err)
		}
		f.StopTimes = append(f.StopTimes, model.StopTime{
			TripID:       st.TripID,
			StopID:       st.StopID,
			StopSequence: st.StopSequence,
			Arrival:      arrival,
			Departure:    departure,
			Platform:     st.Platform,
			PickupType:   model.PassengerExchange(st.PickupType),
			DropOffType:  model.PassengerExchange(st.DropOffType),
			FareDistance: st.FareDistance,
		})
	}
	sort.SliceStable(f.StopTimes, func(i, j int) bool {
		if f.StopTimes[i].TripID != f.StopTimes[j].TripID {
			return f.StopTimes[i].TripID < f.StopTimes[j].TripID
		}
		return f.StopTimes[i].StopSequence < f.StopTimes[j].StopSequence
	})

	transferRows := []*transferRow{}
	if err := unmarshalEntry(files, "transfers.txt", true, &transferRows); err != nil {
		return nil, err
	}
	for _, t := range transferRows {
		if !stops[t.FromStopID] || !stops[t.ToStopID] {
			return nil, fmt.Errorf("transfer references unknown stop '%s' or '%s'", t.FromStopID, t.ToStopID)
		}
		if (t.FromTripID != "" && !trips[t.FromTripID]) || (t.ToTripID != "" && !trips[t.ToTripID]) {
			return nil, fmt.Errorf("transfer references unknown trip '%s' or '%s'", t.FromTripID, t.ToTripID)
		}
		f.Transfers = append(f.Transfers, model.Transfer{
			FromStopID: t.FromStopID,
			ToStopID:   t.ToStopID,
			FromTripID: t.FromTripID,
			ToTripID:   t.ToTripID,
			Type:       model.TransferType(t.Type),
		})
	}

	feedInfoRows := []*feedInfoRow{}
	if err := unmarshalEntry(files, "feed_info.txt", true, &feedInfoRows); err != nil {
		return nil, err
	}
	if len(feedInfoRows) > 1 {
		return nil, fmt.Errorf("feed_info.txt has %d rows", len(feedInfoRows))
	}
	for _, info := range feedInfoRows {
		f.FeedInfo = model.FeedInfo{
			PublisherName: info.PublisherName,
			PublisherURL:  info.PublisherURL,
			Lang:          info.Lang,
			StartDate:     info.StartDate,
			EndDate:       info.EndDate,
			Version:       info.Version,
		}
	}

	return f, nil
}

// Same as ReadZipFeed, reading the archive from r.
func ReadZipFeedFrom(r io.Reader) (*feed.Feed, error) {
	buf, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading archive: %w", err)
	}
	return ReadZipFeed(buf)
}

package storage

import (
	"database/sql"
	"fmt"
	"os"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/railgtfs/railgtfs/model"
)

// Writes a feed into a fresh SQLite database, one table per GTFS
// file.
type SQLiteFeedWriter struct {
	db                  *sql.DB
	tripInsertQuery     *sql.Stmt
	tripInsertTx        *sql.Tx
	stopTimeInsertQuery *sql.Stmt
	stopTimeInsertTx    *sql.Tx
}

var sqliteTables = []struct {
	name  string
	query string
}{
	{"agency", `
CREATE TABLE agency (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    url TEXT NOT NULL,
    timezone TEXT NOT NULL,
    lang TEXT,
    phone TEXT
);`},
	{"stops", `
CREATE TABLE stops (
    id TEXT PRIMARY KEY,
    code TEXT,
    name TEXT NOT NULL,
    lat REAL NOT NULL,
    lon REAL NOT NULL,
    location_type INTEGER NOT NULL,
    parent_station TEXT,
    platform_code TEXT
);
CREATE INDEX stops_parent_station ON stops (parent_station);`},
	{"routes", `
CREATE TABLE routes (
    id TEXT PRIMARY KEY,
    agency_id TEXT,
    short_name TEXT,
    long_name TEXT,
    type INTEGER NOT NULL,
    color TEXT,
    text_color TEXT,
    sort_order INTEGER
);`},
	{"trips", `
CREATE TABLE trips (
    id TEXT PRIMARY KEY,
    route_id TEXT NOT NULL,
    service_id TEXT NOT NULL,
    headsign TEXT,
    short_name TEXT,
    block_id TEXT
);
CREATE INDEX trips_service_id ON trips (service_id);
CREATE INDEX trips_block_id ON trips (block_id);`},
	{"stop_times", `
CREATE TABLE stop_times (
    trip_id TEXT NOT NULL,
    stop_id TEXT NOT NULL,
    stop_sequence INTEGER NOT NULL,
    arrival_time TEXT NOT NULL,
    departure_time TEXT NOT NULL,
    pickup_type INTEGER NOT NULL,
    drop_off_type INTEGER NOT NULL,
    platform TEXT,
    fare_dist_m INTEGER,
    PRIMARY KEY (trip_id, stop_sequence)
);
CREATE INDEX stop_times_stop_id ON stop_times (stop_id);`},
	{"calendar", `
CREATE TABLE calendar (
    service_id TEXT PRIMARY KEY,
    start_date TEXT NOT NULL,
    end_date TEXT NOT NULL,
    monday INTEGER NOT NULL,
    tuesday INTEGER NOT NULL,
    wednesday INTEGER NOT NULL,
    thursday INTEGER NOT NULL,
    friday INTEGER NOT NULL,
    saturday INTEGER NOT NULL,
    sunday INTEGER NOT NULL
);`},
	{"calendar_dates", `
CREATE TABLE calendar_dates (
    service_id TEXT NOT NULL,
    date TEXT NOT NULL,
    exception_type INTEGER NOT NULL,
    PRIMARY KEY (service_id, date)
);`},
	{"transfers", `
CREATE TABLE transfers (
    from_stop_id TEXT NOT NULL,
    to_stop_id TEXT NOT NULL,
    from_trip_id TEXT NOT NULL,
    to_trip_id TEXT NOT NULL,
    transfer_type INTEGER NOT NULL,
    PRIMARY KEY (from_trip_id, to_trip_id)
);`},
	{"feed_info", `
CREATE TABLE feed_info (
    publisher_name TEXT NOT NULL,
    publisher_url TEXT,
    lang TEXT,
    start_date TEXT,
    end_date TEXT,
    version TEXT
);`},
}

// Creates a database at path, replacing any existing file.
func NewSQLiteFeedWriter(path string) (*SQLiteFeedWriter, error) {
	if _, err := os.Stat(path); err == nil {
		err := os.Remove(path)
		if err != nil {
			return nil, fmt.Errorf("removing existing database: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, table := range sqliteTables {
		_, err := db.Exec(table.query)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("creating %s table: %w", table.name, err)
		}
	}

	return &SQLiteFeedWriter{db: db}, nil
}

func (f *SQLiteFeedWriter) WriteAgency(a model.Agency) error {
	_, err := f.db.Exec(`
INSERT INTO agency (id, name, url, timezone, lang, phone)
VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID,
		a.Name,
		a.URL,
		a.Timezone,
		a.Lang,
		a.Phone,
	)
	if err != nil {
		return fmt.Errorf("inserting agency: %w", err)
	}
	return nil
}

func (f *SQLiteFeedWriter) WriteStop(stop model.Stop) error {
	_, err := f.db.Exec(`
INSERT INTO stops (id, code, name, lat, lon, location_type, parent_station, platform_code)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		stop.ID,
		stop.Code,
		stop.Name,
		stop.Lat,
		stop.Lon,
		stop.LocationType,
		stop.ParentStation,
		stop.PlatformCode,
	)
	if err != nil {
		return errors.Wrapf(err, "inserting stop %s", stop.ID)
	}
	return nil
}

func (f *SQLiteFeedWriter) WriteRoute(route model.Route) error {
	_, err := f.db.Exec(`
INSERT INTO routes (id, agency_id, short_name, long_name, type, color, text_color, sort_order)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		route.ID,
		route.AgencyID,
		route.ShortName,
		route.LongName,
		route.Type,
		route.Color,
		route.TextColor,
		route.SortOrder,
	)
	if err != nil {
		return errors.Wrapf(err, "inserting route %s", route.ID)
	}
	return nil
}

func (f *SQLiteFeedWriter) BeginTrips() error {
	var err error
	f.tripInsertTx, err = f.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning trip insert transaction: %w", err)
	}

	f.tripInsertQuery, err = f.tripInsertTx.Prepare(`
INSERT INTO trips (id, route_id, service_id, headsign, short_name, block_id)
VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		f.tripInsertTx.Rollback()
		f.tripInsertTx = nil
		return fmt.Errorf("preparing trip insert: %w", err)
	}

	return nil
}

func (f *SQLiteFeedWriter) WriteTrip(trip model.Trip) error {
	_, err := f.tripInsertQuery.Exec(
		trip.ID,
		trip.RouteID,
		trip.ServiceID,
		trip.Headsign,
		trip.ShortName,
		trip.BlockID,
	)
	if err != nil {
		f.tripInsertQuery.Close()
		f.tripInsertTx.Rollback()
		f.tripInsertTx = nil
		f.tripInsertQuery = nil
		return errors.Wrapf(err, "inserting trip %s", trip.ID)
	}

	return nil
}

func (f *SQLiteFeedWriter) EndTrips() error {
	f.tripInsertQuery.Close()
	err := f.tripInsertTx.Commit()
	if err != nil {
		return fmt.Errorf("committing trip insert transaction: %w", err)
	}
	f.tripInsertTx = nil
	f.tripInsertQuery = nil

	return nil
}

func (f *SQLiteFeedWriter) WriteCalendar(cal model.Calendar) error {
	days := weekdayColumns(cal.Weekday)

	_, err := f.db.Exec(`
INSERT INTO calendar (service_id, start_date, end_date, monday, tuesday, wednesday, thursday, friday, saturday, sunday)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cal.ServiceID,
		cal.StartDate,
		cal.EndDate,
		days[0], days[1], days[2], days[3], days[4], days[5], days[6],
	)
	if err != nil {
		return errors.Wrapf(err, "inserting calendar %s", cal.ServiceID)
	}

	return nil
}

func (f *SQLiteFeedWriter) WriteCalendarDate(cd model.CalendarDate) error {
	_, err := f.db.Exec(`
INSERT INTO calendar_dates (service_id, date, exception_type)
VALUES (?, ?, ?)`,
		cd.ServiceID,
		cd.Date,
		cd.ExceptionType,
	)
	if err != nil {
		return errors.Wrapf(err, "inserting calendar date %s/%s", cd.ServiceID, cd.Date)
	}

	return nil
}

func (f *SQLiteFeedWriter) BeginStopTimes() error {
	var err error
	f.stopTimeInsertTx, err = f.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning stop_time insert transaction: %w", err)
	}

	f.stopTimeInsertQuery, err = f.stopTimeInsertTx.Prepare(`
INSERT INTO stop_times (trip_id, stop_id, stop_sequence, arrival_time, departure_time, pickup_type, drop_off_type, platform, fare_dist_m)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		f.stopTimeInsertTx.Rollback()
		f.stopTimeInsertTx = nil
		return fmt.Errorf("preparing stop_time insert: %w", err)
	}

	return nil
}

func (f *SQLiteFeedWriter) WriteStopTime(stopTime model.StopTime) error {
	_, err := f.stopTimeInsertQuery.Exec(
		stopTime.TripID,
		stopTime.StopID,
		stopTime.StopSequence,
		model.FormatTime(stopTime.Arrival),
		model.FormatTime(stopTime.Departure),
		stopTime.PickupType,
		stopTime.DropOffType,
		stopTime.Platform,
		stopTime.FareDistance,
	)
	if err != nil {
		f.stopTimeInsertQuery.Close()
		f.stopTimeInsertTx.Rollback()
		f.stopTimeInsertTx = nil
		f.stopTimeInsertQuery = nil
		return errors.Wrapf(err, "inserting stop_time %s/%d", stopTime.TripID, stopTime.StopSequence)
	}

	return nil
}

func (f *SQLiteFeedWriter) EndStopTimes() error {
	f.stopTimeInsertQuery.Close()
	err := f.stopTimeInsertTx.Commit()
	if err != nil {
		return fmt.Errorf("committing stop_time insert transaction: %w", err)
	}
	f.stopTimeInsertTx = nil
	f.stopTimeInsertQuery = nil

	return nil
}

func (f *SQLiteFeedWriter) WriteTransfer(t model.Transfer) error {
	_, err := f.db.Exec(`
INSERT INTO transfers (from_stop_id, to_stop_id, from_trip_id, to_trip_id, transfer_type)
VALUES (?, ?, ?, ?, ?)`,
		t.FromStopID,
		t.ToStopID,
		t.FromTripID,
		t.ToTripID,
		t.Type,
	)
	if err != nil {
		return errors.Wrapf(err, "inserting transfer %s->%s", t.FromTripID, t.ToTripID)
	}
	return nil
}

func (f *SQLiteFeedWriter) WriteFeedInfo(info model.FeedInfo) error {
	_, err := f.db.Exec(`
INSERT INTO feed_info (publisher_name, publisher_url, lang, start_date, end_date, version)
VALUES (?, ?, ?, ?, ?, ?)`,
		info.PublisherName,
		info.PublisherURL,
		info.Lang,
		info.StartDate,
		info.EndDate,
		info.Version,
	)
	if err != nil {
		return fmt.Errorf("inserting feed info: %w", err)
	}
	return nil
}

func (f *SQLiteFeedWriter) Close() error {
	_, err := f.db.Exec(`ANALYZE;`)
	if err != nil {
		f.db.Close()
		return fmt.Errorf("analyzing database: %w", err)
	}

	return f.db.Close()
}

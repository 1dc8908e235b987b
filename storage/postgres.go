package storage

import (
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/railgtfs/railgtfs/model"
)

const (
	PSQLTripBatchSize     = 10000
	PSQLStopTimeBatchSize = 5000
)

// Writes a feed into shared Postgres tables, keyed by the feed's
// version. Rewriting a version replaces all of its rows.
type PSQLFeedWriter struct {
	id          string
	db          *sql.DB
	tripBuf     []model.Trip
	stopTimeBuf []model.StopTime
}

var psqlTables = []struct {
	name  string
	query string
}{
	{"agency", `
CREATE TABLE IF NOT EXISTS agency (
    hash TEXT NOT NULL,
    id TEXT NOT NULL,
    name TEXT NOT NULL,
    url TEXT NOT NULL,
    timezone TEXT NOT NULL,
    lang TEXT,
    phone TEXT,
    PRIMARY KEY(hash, id)
);`},
	{"stops", `
CREATE TABLE IF NOT EXISTS stops (
    hash TEXT NOT NULL,
    id TEXT NOT NULL,
    code TEXT,
    name TEXT NOT NULL,
    lat DOUBLE PRECISION NOT NULL,
    lon DOUBLE PRECISION NOT NULL,
    location_type INTEGER NOT NULL,
    parent_station TEXT,
    platform_code TEXT,
    PRIMARY KEY(hash, id)
);
CREATE INDEX IF NOT EXISTS stops_parent_station ON stops (parent_station);
`},
	{"routes", `
CREATE TABLE IF NOT EXISTS routes (
    hash TEXT NOT NULL,
    id TEXT NOT NULL,
    agency_id TEXT,
    short_name TEXT,
    long_name TEXT,
    type INTEGER NOT NULL,
    color TEXT,
    text_color TEXT,
    sort_order INTEGER,
    PRIMARY KEY(hash, id)
);`},
	{"trips", `
CREATE TABLE IF NOT EXISTS trips (
    hash TEXT NOT NULL,
    id TEXT NOT NULL,
    route_id TEXT NOT NULL,
    service_id TEXT NOT NULL,
    headsign TEXT,
    short_name TEXT,
    block_id TEXT,
    PRIMARY KEY(hash, id)
);
CREATE INDEX IF NOT EXISTS trips_service_id ON trips (service_id);
`},
	{"stop_times", `
CREATE TABLE IF NOT EXISTS stop_times (
    hash TEXT NOT NULL,
    trip_id TEXT NOT NULL,
    stop_id TEXT NOT NULL,
    stop_sequence INTEGER NOT NULL,
    arrival_time TEXT NOT NULL,
    departure_time TEXT NOT NULL,
    pickup_type INTEGER NOT NULL,
    drop_off_type INTEGER NOT NULL,
    platform TEXT,
    fare_dist_m INTEGER,
    PRIMARY KEY(hash, trip_id, stop_sequence)
);
CREATE INDEX IF NOT EXISTS stop_times_stop_id ON stop_times (stop_id);
`},
	{"calendar", `
CREATE TABLE IF NOT EXISTS calendar (
    hash TEXT NOT NULL,
    service_id TEXT NOT NULL,
    start_date TEXT NOT NULL,
    end_date TEXT NOT NULL,
    monday INTEGER NOT NULL,
    tuesday INTEGER NOT NULL,
    wednesday INTEGER NOT NULL,
    thursday INTEGER NOT NULL,
    friday INTEGER NOT NULL,
    saturday INTEGER NOT NULL,
    sunday INTEGER NOT NULL,
    PRIMARY KEY(hash, service_id)
);`},
	{"calendar_dates", `
CREATE TABLE IF NOT EXISTS calendar_dates (
    hash TEXT NOT NULL,
    service_id TEXT NOT NULL,
    date TEXT NOT NULL,
    exception_type INTEGER NOT NULL,
    PRIMARY KEY(hash, service_id, date)
);`},
	{"transfers", `
CREATE TABLE IF NOT EXISTS transfers (
    hash TEXT NOT NULL,
    from_stop_id TEXT NOT NULL,
    to_stop_id TEXT NOT NULL,
    from_trip_id TEXT NOT NULL,
    to_trip_id TEXT NOT NULL,
    transfer_type INTEGER NOT NULL,
    PRIMARY KEY(hash, from_trip_id, to_trip_id)
);`},
	{"feed_info", `
CREATE TABLE IF NOT EXISTS feed_info (
    hash TEXT NOT NULL,
    publisher_name TEXT NOT NULL,
    publisher_url TEXT,
    lang TEXT,
    start_date TEXT,
    end_date TEXT,
    version TEXT,
    PRIMARY KEY(hash)
);`},
}

// Connects to Postgres, creates missing tables and clears any rows
// previously written under version.
func NewPSQLFeedWriter(connStr string, version string) (*PSQLFeedWriter, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	for _, table := range psqlTables {
		_, err := db.Exec(table.query)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("creating %s table: %w", table.name, err)
		}
	}

	// In case feed already exists, delete all records
	for _, table := range psqlTables {
		_, err := db.Exec(`DELETE FROM `+table.name+` WHERE hash = $1`, version)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("deleting %s records: %w", table.name, err)
		}
	}

	return &PSQLFeedWriter{
		id: version,
		db: db,
	}, nil
}

func (w *PSQLFeedWriter) WriteAgency(a model.Agency) error {
	_, err := w.db.Exec(`
INSERT INTO agency (hash, id, name, url, timezone, lang, phone)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		w.id,
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

func (w *PSQLFeedWriter) WriteStop(stop model.Stop) error {
	_, err := w.db.Exec(`
INSERT INTO stops (hash, id, code, name, lat, lon, location_type, parent_station, platform_code)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		w.id,
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

func (w *PSQLFeedWriter) WriteRoute(route model.Route) error {
	_, err := w.db.Exec(`
INSERT INTO routes (hash, id, agency_id, short_name, long_name, type, color, text_color, sort_order)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		w.id,
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

func (w *PSQLFeedWriter) BeginTrips() error {
	return nil
}

func (w *PSQLFeedWriter) WriteTrip(trip model.Trip) error {
	w.tripBuf = append(w.tripBuf, trip)

	if len(w.tripBuf) >= PSQLTripBatchSize {
		err := w.flushTrips()
		if err != nil {
			return fmt.Errorf("flushing trips: %w", err)
		}
	}

	return nil
}

func (w *PSQLFeedWriter) EndTrips() error {
	if len(w.tripBuf) > 0 {
		err := w.flushTrips()
		if err != nil {
			return fmt.Errorf("flushing trips: %w", err)
		}
	}
	return nil
}

func (w *PSQLFeedWriter) flushTrips() error {
	tx, err := w.db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(pq.CopyIn(
		"trips", "hash", "id", "route_id", "service_id", "headsign", "short_name", "block_id",
	))
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, trip := range w.tripBuf {
		_, err = stmt.Exec(
			w.id,
			trip.ID,
			trip.RouteID,
			trip.ServiceID,
			trip.Headsign,
			trip.ShortName,
			trip.BlockID,
		)
		if err != nil {
			return errors.Wrapf(err, "COPY trip %s", trip.ID)
		}
	}

	_, err = stmt.Exec()
	if err != nil {
		return fmt.Errorf("executing statement: %w", err)
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("committing: %w", err)
	}

	w.tripBuf = nil

	return nil
}

func (w *PSQLFeedWriter) WriteCalendar(cal model.Calendar) error {
	days := weekdayColumns(cal.Weekday)

	_, err := w.db.Exec(`
INSERT INTO calendar (hash, service_id, start_date, end_date, monday, tuesday, wednesday, thursday, friday, saturday, sunday)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		w.id,
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

func (w *PSQLFeedWriter) WriteCalendarDate(cd model.CalendarDate) error {
	_, err := w.db.Exec(`
INSERT INTO calendar_dates (hash, service_id, date, exception_type)
VALUES ($1, $2, $3, $4)`,
		w.id,
		cd.ServiceID,
		cd.Date,
		cd.ExceptionType,
	)
	if err != nil {
		return errors.Wrapf(err, "inserting calendar date %s/%s", cd.ServiceID, cd.Date)
	}

	return nil
}

func (w *PSQLFeedWriter) BeginStopTimes() error {
	return nil
}

func (w *PSQLFeedWriter) WriteStopTime(stopTime model.StopTime) error {
	w.stopTimeBuf = append(w.stopTimeBuf, stopTime)

	if len(w.stopTimeBuf) >= PSQLStopTimeBatchSize {
		err := w.flushStopTimes()
		if err != nil {
			return fmt.Errorf("flushing stop_times: %w", err)
		}
	}

	return nil
}

func (w *PSQLFeedWriter) EndStopTimes() error {
	if len(w.stopTimeBuf) > 0 {
		err := w.flushStopTimes()
		if err != nil {
			return fmt.Errorf("flushing stop_times: %w", err)
		}
	}
	return nil
}

func (w *PSQLFeedWriter) flushStopTimes() error {
	tx, err := w.db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(pq.CopyIn(
		"stop_times", "hash", "trip_id", "stop_id", "stop_sequence", "arrival_time", "departure_time",
		"pickup_type", "drop_off_type", "platform", "fare_dist_m",
	))
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, stopTime := range w.stopTimeBuf {
		_, err = stmt.Exec(
			w.id,
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
			return errors.Wrapf(err, "COPY stop_time %s/%d", stopTime.TripID, stopTime.StopSequence)
		}
	}

	_, err = stmt.Exec()
	if err != nil {
		return fmt.Errorf("executing statement: %w", err)
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("committing: %w", err)
	}

	w.stopTimeBuf = nil

	return nil
}

func (w *PSQLFeedWriter) WriteTransfer(t model.Transfer) error {
	_, err := w.db.Exec(`
INSERT INTO transfers (hash, from_stop_id, to_stop_id, from_trip_id, to_trip_id, transfer_type)
VALUES ($1, $2, $3, $4, $5, $6)`,
		w.id,
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

func (w *PSQLFeedWriter) WriteFeedInfo(info model.FeedInfo) error {
	_, err := w.db.Exec(`
INSERT INTO feed_info (hash, publisher_name, publisher_url, lang, start_date, end_date, version)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		w.id,
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

func (w *PSQLFeedWriter) Close() error {
	_, err := w.db.Exec(`ANALYZE`)
	if err != nil {
		w.db.Close()
		return fmt.Errorf("analyzing: %w", err)
	}
	return w.db.Close()
}

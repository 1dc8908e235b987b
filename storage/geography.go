package storage

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/railgtfs/railgtfs/model"
)

const stopGeographyTable = `
CREATE TABLE IF NOT EXISTS stop_geography (
    id TEXT PRIMARY KEY,
    code TEXT,
    name TEXT NOT NULL,
    lat DOUBLE PRECISION NOT NULL,
    lon DOUBLE PRECISION NOT NULL,
    location_type INTEGER NOT NULL,
    parent_station TEXT,
    platform_code TEXT,
    country TEXT
);
CREATE INDEX IF NOT EXISTS stop_geography_code ON stop_geography (code);`

const stopGeographyColumns = `id, code, name, lat, lon, location_type, parent_station, platform_code, country`

// Stop geography kept in a stop_geography table. Implements
// stops.Lookup.
type SQLStopLookup struct {
	db *sql.DB

	// Renders the n:th (1-based) query parameter.
	param func(n int) string
}

func sqliteParam(n int) string {
	return "?"
}

func psqlParam(n int) string {
	return fmt.Sprintf("$%d", n)
}

func NewSQLiteStopLookup(path string) (*SQLStopLookup, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// Every connection to :memory: is a database of its own.
	db.SetMaxOpenConns(1)
	return newSQLStopLookup(db, sqliteParam)
}

func NewPSQLStopLookup(connStr string) (*SQLStopLookup, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}
	return newSQLStopLookup(db, psqlParam)
}

func newSQLStopLookup(db *sql.DB, param func(int) string) (*SQLStopLookup, error) {
	_, err := db.Exec(stopGeographyTable)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating stop_geography table: %w", err)
	}
	return &SQLStopLookup{db: db, param: param}, nil
}

func (l *SQLStopLookup) Stop(code string) (*model.Stop, error) {
	return l.queryOne("code", code)
}

func (l *SQLStopLookup) StopByID(id string) (*model.Stop, error) {
	return l.queryOne("id", id)
}

func (l *SQLStopLookup) queryOne(column, value string) (*model.Stop, error) {
	rows, err := l.db.Query(
		`SELECT `+stopGeographyColumns+` FROM stop_geography WHERE `+column+` = `+l.param(1)+` ORDER BY id LIMIT 1`,
		value,
	)
	if err != nil {
		return nil, fmt.Errorf("querying stop_geography: %w", err)
	}
	defer rows.Close()

	stops, err := scanStops(rows)
	if err != nil {
		return nil, err
	}
	if len(stops) == 0 {
		return nil, nil
	}
	return &stops[0], nil
}

// All stops, ordered by ID.
func (l *SQLStopLookup) Stops() ([]model.Stop, error) {
	rows, err := l.db.Query(`SELECT ` + stopGeographyColumns + ` FROM stop_geography ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying stop_geography: %w", err)
	}
	defer rows.Close()

	return scanStops(rows)
}

func scanStops(rows *sql.Rows) ([]model.Stop, error) {
	stops := []model.Stop{}
	for rows.Next() {
		var stop model.Stop
		var code, parent, platform, country sql.NullString
		err := rows.Scan(
			&stop.ID,
			&code,
			&stop.Name,
			&stop.Lat,
			&stop.Lon,
			&stop.LocationType,
			&parent,
			&platform,
			&country,
		)
		if err != nil {
			return nil, errors.Wrap(err, "scanning stop")
		}
		stop.Code = code.String
		stop.ParentStation = parent.String
		stop.PlatformCode = platform.String
		stop.Country = country.String
		stops = append(stops, stop)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating stops: %w", err)
	}
	return stops, nil
}

// Replaces the entire geography with stops, atomically.
func (l *SQLStopLookup) ReplaceStops(stops []model.Stop) error {
	tx, err := l.db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`DELETE FROM stop_geography`)
	if err != nil {
		return fmt.Errorf("clearing stop_geography: %w", err)
	}

	params := ""
	for i := 1; i <= 9; i++ {
		if i > 1 {
			params += ", "
		}
		params += l.param(i)
	}

	stmt, err := tx.Prepare(`INSERT INTO stop_geography (` + stopGeographyColumns + `) VALUES (` + params + `)`)
	if err != nil {
		return fmt.Errorf("preparing stop insert: %w", err)
	}
	defer stmt.Close()

	for _, stop := range stops {
		_, err := stmt.Exec(
			stop.ID,
			stop.Code,
			stop.Name,
			stop.Lat,
			stop.Lon,
			stop.LocationType,
			stop.ParentStation,
			stop.PlatformCode,
			stop.Country,
		)
		if err != nil {
			return errors.Wrapf(err, "inserting stop %s", stop.ID)
		}
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("committing: %w", err)
	}

	return nil
}

func (l *SQLStopLookup) Close() error {
	return l.db.Close()
}

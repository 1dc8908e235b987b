package parse

import (
	"errors"
	"fmt"
	"time"
)

var ErrMalformedRecord = errors.New("malformed record")

// Identifies the line and field violating the timetable format.
type MalformedRecordError struct {
	File   string
	Line   int
	Field  string
	Reason string
}

func (e *MalformedRecordError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s:%d: malformed record: %s: %s", e.File, e.Line, e.Field, e.Reason)
	}
	return fmt.Sprintf("%s:%d: malformed record: %s", e.File, e.Line, e.Reason)
}

func (e *MalformedRecordError) Unwrap() error {
	return ErrMalformedRecord
}

// Bitmask of operating days, bit n set for time.Weekday(n).
// Platform of a stop departed by replacement bus.
const PlatformBus = "BUS"

type Weekdays int8

const AllWeekdays Weekdays = 127

func (w Weekdays) Has(d time.Weekday) bool {
	return w&(1<<d) != 0
}

type Restriction int

const (
	RestrictionNone Restriction = iota
	RestrictionBoardingOnly
	RestrictionAlightingOnly
	RestrictionOnRequest
)

type MarkerKind int

const (
	// The train continues as the partner train at the junction.
	MarkerContinuesAs MarkerKind = iota
	// The train continues the partner train from the junction.
	MarkerContinuedFrom
)

type DateOverride struct {
	Date  time.Time
	Added bool
}

type Validity struct {
	Start     time.Time
	End       time.Time
	Days      Weekdays
	Overrides []DateOverride
}

type RawStop struct {
	Code      string
	Arrival   time.Duration
	Departure time.Duration
	Platform  string
	Track     string

	Restriction Restriction
	Country     string

	// Aggregate entry without stop-level detail.
	Summary bool

	// Cumulative distance in meters, as given by the operator.
	Distance int
}

type CompositionMarker struct {
	Kind     MarkerKind
	Partner  string
	Junction string
}

// A single train as exported by the operator.
type Record struct {
	File string
	Line int

	TrainNumber      string
	Category         string
	Name             string
	CommercialNumber string

	Validity    Validity
	Stops       []RawStop
	Composition []CompositionMarker
}

// Parser output: either a Record, or the error that caused a record
// to be skipped.
type Result struct {
	Record *Record
	Err    *MalformedRecordError
}

func (r Result) OK() bool {
	return r.Record != nil
}

// Returns only the valid records out of results.
func Records(results []Result) []*Record {
	records := []*Record{}
	for _, r := range results {
		if r.Record != nil {
			records = append(records, r.Record)
		}
	}
	return records
}

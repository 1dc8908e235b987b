package parse

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spkg/bom"
	"golang.org/x/text/encoding/charmap"

	"github.com/railgtfs/railgtfs/model"
)

type Encoding string

const (
	EncodingUTF8        Encoding = "utf-8"
	EncodingWindows1250 Encoding = "windows-1250"
)

const dateLayout = "2006-01-02"

// Number of fields, including the record type, for each line type.
var fieldCount = map[string]int{
	"T": 5,
	"V": 4,
	"X": 3,
	"S": 10,
	"C": 4,
	"E": 1,
}

var romanToArabic = map[string]string{
	"I":    "1",
	"II":   "2",
	"III":  "3",
	"IV":   "4",
	"V":    "5",
	"VI":   "6",
	"VII":  "7",
	"VIII": "8",
	"IX":   "9",
	"X":    "10",
	"XI":   "11",
	"XII":  "12",
}

func newTextReader(buf []byte, enc Encoding) (io.Reader, error) {
	switch enc {
	case EncodingUTF8, "":
		return bom.NewReader(bytes.NewReader(buf)), nil
	case EncodingWindows1250:
		return charmap.Windows1250.NewDecoder().Reader(bytes.NewReader(buf)), nil
	}
	return nil, fmt.Errorf("unsupported encoding '%s'", enc)
}

// Parses one timetable file. Records violating the format are
// reported as Results with Err set; parsing resumes at the next
// record. An error is only returned if the file can't be read at
// all.
func ParseTimetable(file string, buf []byte, enc Encoding) ([]Result, error) {
	text, err := newTextReader(buf, enc)
	if err != nil {
		return nil, err
	}

	r := csv.NewReader(text)
	r.Comma = ';'
	r.Comment = '#'
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	p := &timetableParser{file: file, results: []Result{}}

	for {
		fields, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			line := 0
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				line = perr.Line
			}
			p.fail(&MalformedRecordError{File: file, Line: line, Reason: err.Error()})
			p.results = p.flushBroken()
			return p.results, nil
		}

		line, _ := r.FieldPos(0)
		for i := range fields {
			fields[i] = strings.TrimSpace(fields[i])
		}
		p.line(line, fields)
	}

	p.eof()

	return p.results, nil
}

// Same as ParseTimetable, but fails on the first malformed record.
func ParseStrict(file string, buf []byte, enc Encoding) ([]*Record, error) {
	results, err := ParseTimetable(file, buf, enc)
	if err != nil {
		return nil, err
	}

	records := []*Record{}
	for _, res := range results {
		if res.Err != nil {
			return nil, res.Err
		}
		records = append(records, res.Record)
	}
	return records, nil
}

type timetableParser struct {
	file    string
	results []Result

	// Record currently being built, if any.
	cur           *Record
	hasValidity   bool
	lastDeparture time.Duration

	// Set while skipping the remains of a malformed record.
	skipping bool
	pending  *MalformedRecordError
}

func (p *timetableParser) malformed(line int, field, format string, args ...interface{}) *MalformedRecordError {
	return &MalformedRecordError{
		File:   p.file,
		Line:   line,
		Field:  field,
		Reason: fmt.Sprintf(format, args...),
	}
}

// Drops the current record and skips ahead to the next record
// boundary.
func (p *timetableParser) fail(err *MalformedRecordError) {
	p.cur = nil
	if p.pending == nil {
		p.pending = err
	}
	p.skipping = true
}

func (p *timetableParser) flushBroken() []Result {
	if p.pending != nil {
		p.results = append(p.results, Result{Err: p.pending})
		p.pending = nil
	}
	return p.results
}

func (p *timetableParser) line(line int, fields []string) {
	kind := fields[0]

	expected, known := fieldCount[kind]
	if !known {
		if p.cur == nil && !p.skipping {
			p.results = append(p.results, Result{Err: p.malformed(line, "type", "unknown record type '%s'", kind)})
			return
		}
		p.fail(p.malformed(line, "type", "unknown record type '%s'", kind))
		return
	}

	if kind == "T" {
		if p.cur != nil {
			p.fail(p.malformed(p.cur.Line, "", "record for train '%s' not terminated", p.cur.TrainNumber))
		}
		p.flushBroken()
		p.skipping = false
	}

	if p.skipping {
		if kind == "E" {
			p.flushBroken()
			p.skipping = false
		}
		return
	}

	if kind != "T" && p.cur == nil {
		p.results = append(p.results, Result{Err: p.malformed(line, "type", "'%s' line outside of a record", kind)})
		return
	}

	if len(fields) != expected {
		p.fail(p.malformed(line, kind, "expected %d fields, found %d", expected, len(fields)))
		if kind == "E" {
			p.flushBroken()
			p.skipping = false
		}
		return
	}

	var err *MalformedRecordError
	switch kind {
	case "T":
		err = p.parseTrain(line, fields)
	case "V":
		err = p.parseValidity(line, fields)
	case "X":
		err = p.parseOverride(line, fields)
	case "S":
		err = p.parseStop(line, fields)
	case "C":
		err = p.parseMarker(line, fields)
	case "E":
		err = p.finish(line)
	}

	if err != nil {
		p.fail(err)
		if kind == "E" {
			p.flushBroken()
			p.skipping = false
		}
	}
}

func (p *timetableParser) eof() {
	if p.cur != nil {
		p.fail(p.malformed(p.cur.Line, "", "record for train '%s' not terminated", p.cur.TrainNumber))
	}
	p.flushBroken()
}

func (p *timetableParser) parseTrain(line int, fields []string) *MalformedRecordError {
	if fields[1] == "" {
		return p.malformed(line, "number", "empty train number")
	}

	p.cur = &Record{
		File:             p.file,
		Line:             line,
		TrainNumber:      fields[1],
		Category:         strings.Join(strings.Fields(fields[2]), " "),
		Name:             fields[3],
		CommercialNumber: fields[4],
	}
	p.hasValidity = false
	p.lastDeparture = 0

	return nil
}

func (p *timetableParser) parseValidity(line int, fields []string) *MalformedRecordError {
	if p.hasValidity {
		return p.malformed(line, "V", "repeated validity")
	}

	start, err := time.ParseInLocation(dateLayout, fields[1], time.UTC)
	if err != nil {
		return p.malformed(line, "start_date", "invalid date '%s'", fields[1])
	}

	end, err := time.ParseInLocation(dateLayout, fields[2], time.UTC)
	if err != nil {
		return p.malformed(line, "end_date", "invalid date '%s'", fields[2])
	}

	mask := fields[3]
	if len(mask) != 7 {
		return p.malformed(line, "days", "expected 7 day flags, found '%s'", mask)
	}

	// Flags are ordered Monday through Sunday.
	var days Weekdays
	for i, c := range mask {
		switch c {
		case '1':
			days |= 1 << time.Weekday((i+1)%7)
		case '0':
		default:
			return p.malformed(line, "days", "invalid day flag '%c'", c)
		}
	}

	p.cur.Validity.Start = start
	p.cur.Validity.End = end
	p.cur.Validity.Days = days
	p.hasValidity = true

	return nil
}

func (p *timetableParser) parseOverride(line int, fields []string) *MalformedRecordError {
	var added bool
	switch fields[1] {
	case "+":
		added = true
	case "-":
		added = false
	default:
		return p.malformed(line, "exception", "expected '+' or '-', found '%s'", fields[1])
	}

	date, err := time.ParseInLocation(dateLayout, fields[2], time.UTC)
	if err != nil {
		return p.malformed(line, "date", "invalid date '%s'", fields[2])
	}

	p.cur.Validity.Overrides = append(p.cur.Validity.Overrides, DateOverride{Date: date, Added: added})

	return nil
}

func (p *timetableParser) parseStop(line int, fields []string) *MalformedRecordError {
	code := fields[1]
	if code == "" {
		return p.malformed(line, "stop_code", "empty stop code")
	}

	var arrival, departure time.Duration
	var err error
	hasArrival := fields[2] != ""
	hasDeparture := fields[3] != ""

	if !hasArrival && !hasDeparture {
		return p.malformed(line, "arrival", "missing both arrival and departure")
	}
	if hasArrival {
		arrival, err = model.ParseTime(fields[2])
		if err != nil {
			return p.malformed(line, "arrival", "%s", err)
		}
	}
	if hasDeparture {
		departure, err = model.ParseTime(fields[3])
		if err != nil {
			return p.malformed(line, "departure", "%s", err)
		}
	}
	if !hasArrival {
		arrival = departure
	}
	if !hasDeparture {
		departure = arrival
	}

	var restriction Restriction
	switch fields[6] {
	case "":
		restriction = RestrictionNone
	case "B":
		restriction = RestrictionBoardingOnly
	case "A":
		restriction = RestrictionAlightingOnly
	case "R":
		restriction = RestrictionOnRequest
	case "-":
		// Technical stop, not served by passengers.
		return nil
	default:
		return p.malformed(line, "restriction", "unknown restriction '%s'", fields[6])
	}

	var summary bool
	switch fields[8] {
	case "", "D":
		summary = false
	case "S":
		summary = true
	default:
		return p.malformed(line, "detail", "unknown detail marker '%s'", fields[8])
	}

	distance := 0
	if fields[9] != "" {
		distance, err = strconv.Atoi(fields[9])
		if err != nil {
			return p.malformed(line, "distance", "non-integer '%s'", fields[9])
		}
	}

	// Times are wall clock times; roll over midnight whenever they
	// would travel back in time.
	for arrival < p.lastDeparture {
		arrival += 24 * time.Hour
	}
	for departure < arrival {
		departure += 24 * time.Hour
	}
	p.lastDeparture = departure

	p.cur.Stops = append(p.cur.Stops, RawStop{
		Code:        code,
		Arrival:     arrival,
		Departure:   departure,
		Platform:    normalizePlatform(fields[4]),
		Track:       fields[5],
		Restriction: restriction,
		Country:     strings.ToUpper(fields[7]),
		Summary:     summary,
		Distance:    distance,
	})

	return nil
}

func (p *timetableParser) parseMarker(line int, fields []string) *MalformedRecordError {
	var kind MarkerKind
	switch fields[1] {
	case "N":
		kind = MarkerContinuesAs
	case "P":
		kind = MarkerContinuedFrom
	default:
		return p.malformed(line, "marker", "expected 'N' or 'P', found '%s'", fields[1])
	}

	if fields[2] == "" {
		return p.malformed(line, "partner", "empty partner train number")
	}
	if fields[3] == "" {
		return p.malformed(line, "junction", "empty junction stop code")
	}

	p.cur.Composition = append(p.cur.Composition, CompositionMarker{
		Kind:     kind,
		Partner:  fields[2],
		Junction: fields[3],
	})

	return nil
}

func (p *timetableParser) finish(line int) *MalformedRecordError {
	rec := p.cur

	if !p.hasValidity {
		return p.malformed(rec.Line, "V", "record for train '%s' has no validity", rec.TrainNumber)
	}
	if len(rec.Stops) < 2 {
		return p.malformed(rec.Line, "S", "record for train '%s' has %d passenger stops", rec.TrainNumber, len(rec.Stops))
	}

	// No dwell at the terminals.
	rec.Stops[0].Arrival = rec.Stops[0].Departure
	last := len(rec.Stops) - 1
	rec.Stops[last].Departure = rec.Stops[last].Arrival

	p.results = append(p.results, Result{Record: rec})
	p.cur = nil

	return nil
}

func normalizePlatform(x string) string {
	if x == "" || strings.EqualFold(x, PlatformBus) {
		return strings.ToUpper(x)
	}

	base, suffix := x, ""
	if strings.HasSuffix(x, "a") {
		base, suffix = x[:len(x)-1], "a"
	}

	if arabic, found := romanToArabic[base]; found {
		base = arabic
	}

	return base + suffix
}

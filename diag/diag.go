package diag

import (
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	}
	return "unknown"
}

type Code string

const (
	CodeMalformedRecord      Code = "MalformedRecord"
	CodeUnresolvedStop       Code = "UnresolvedStop"
	CodeInvalidDateRange     Code = "InvalidDateRange"
	CodeTruncatedTrip        Code = "TruncatedTrip"
	CodeDegenerateTrip       Code = "DegenerateTrip"
	CodeUnmatchedComposition Code = "UnmatchedComposition"
	CodeCompositionLinked    Code = "CompositionLinked"
	CodeTimeTravelLink       Code = "TimeTravelLink"
	CodeSplitTrip            Code = "SplitTrip"
)

// A single diagnostic raised while building a feed. Only the context
// fields relevant to the code are set.
type Diagnostic struct {
	Severity    Severity
	Code        Code
	Message     string
	File        string
	Line        int
	TrainNumber string
	TripID      string
	StopCode    string
	Count       int
}

// Append-only collection of diagnostics. Every entry is also logged.
type Log struct {
	mutex   sync.Mutex
	entries []Diagnostic
	logger  zerolog.Logger
}

func NewLog() *Log {
	return &Log{logger: log.Logger}
}

// Same as NewLog, but logs to the given logger.
func NewLogWithLogger(logger zerolog.Logger) *Log {
	return &Log{logger: logger}
}

func (l *Log) Add(d Diagnostic) {
	l.mutex.Lock()
	l.entries = append(l.entries, d)
	l.mutex.Unlock()

	var ev *zerolog.Event
	switch d.Severity {
	case SeverityError:
		ev = l.logger.Error()
	case SeverityWarning:
		ev = l.logger.Warn()
	default:
		ev = l.logger.Info()
	}

	ev = ev.Str("code", string(d.Code))
	if d.File != "" {
		ev = ev.Str("file", d.File).Int("line", d.Line)
	}
	if d.TrainNumber != "" {
		ev = ev.Str("train", d.TrainNumber)
	}
	if d.TripID != "" {
		ev = ev.Str("trip", d.TripID)
	}
	if d.StopCode != "" {
		ev = ev.Str("stop", d.StopCode)
	}
	if d.Count != 0 {
		ev = ev.Int("count", d.Count)
	}
	ev.Msg(d.Message)
}

// Returns a copy of all diagnostics, in the order they were added.
func (l *Log) Entries() []Diagnostic {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	out := make([]Diagnostic, len(l.entries))
	copy(out, l.entries)
	return out
}

// Returns all diagnostics with the given code.
func (l *Log) ByCode(code Code) []Diagnostic {
	var out []Diagnostic
	for _, d := range l.Entries() {
		if d.Code == code {
			out = append(out, d)
		}
	}
	return out
}

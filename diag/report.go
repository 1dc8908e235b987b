package diag

import (
	"io"
	"sort"
	"strconv"

	"github.com/gocarina/gocsv"
)

type diagnosticRow struct {
	Severity string `csv:"severity"`
	Code     string `csv:"code"`
	File     string `csv:"file"`
	Line     string `csv:"line"`
	Train    string `csv:"train_number"`
	Trip     string `csv:"trip_id"`
	Stop     string `csv:"stop_code"`
	Count    string `csv:"count"`
	Message  string `csv:"message"`
}

func optionalInt(i int) string {
	if i == 0 {
		return ""
	}
	return strconv.Itoa(i)
}

// Writes diagnostics as CSV, one row per diagnostic, in order.
func WriteCSV(w io.Writer, entries []Diagnostic) error {
	rows := make([]*diagnosticRow, 0, len(entries))
	for _, d := range entries {
		rows = append(rows, &diagnosticRow{
			Severity: d.Severity.String(),
			Code:     string(d.Code),
			File:     d.File,
			Line:     optionalInt(d.Line),
			Train:    d.TrainNumber,
			Trip:     d.TripID,
			Stop:     d.StopCode,
			Count:    optionalInt(d.Count),
			Message:  d.Message,
		})
	}
	return gocsv.Marshal(rows, w)
}

type CodeCount struct {
	Code  Code
	Count int
}

// Number of diagnostics per code, sorted by code.
func Summarize(entries []Diagnostic) []CodeCount {
	counts := map[Code]int{}
	for _, d := range entries {
		counts[d.Code]++
	}

	out := make([]CodeCount, 0, len(counts))
	for code, n := range counts {
		out = append(out, CodeCount{Code: code, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Code < out[j].Code
	})
	return out
}

// True if any diagnostic is at least as severe as s.
func AnyAtLeast(entries []Diagnostic, s Severity) bool {
	for _, d := range entries {
		if d.Severity >= s {
			return true
		}
	}
	return false
}

package diag

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLog(t *testing.T) {
	buf := &bytes.Buffer{}
	l := NewLogWithLogger(zerolog.New(buf))

	l.Add(Diagnostic{
		Severity:    SeverityWarning,
		Code:        CodeUnresolvedStop,
		Message:     "unknown stop",
		TrainNumber: "5420",
		StopCode:    "99999",
	})
	l.Add(Diagnostic{
		Severity: SeverityInfo,
		Code:     CodeTruncatedTrip,
		TripID:   "5420",
		Count:    3,
	})

	entries := l.Entries()
	require.Equal(t, 2, len(entries))
	assert.Equal(t, CodeUnresolvedStop, entries[0].Code)
	assert.Equal(t, CodeTruncatedTrip, entries[1].Code)

	assert.Equal(t, 1, len(l.ByCode(CodeTruncatedTrip)))
	assert.Equal(t, 0, len(l.ByCode(CodeMalformedRecord)))

	// Entries returns a copy
	entries[0].Code = CodeMalformedRecord
	assert.Equal(t, CodeUnresolvedStop, l.Entries()[0].Code)

	out := buf.String()
	assert.Contains(t, out, `"level":"warn"`)
	assert.Contains(t, out, `"code":"UnresolvedStop"`)
	assert.Contains(t, out, `"stop":"99999"`)
	assert.Contains(t, out, `"count":3`)
}

func TestSeverityString(t *testing.T) {
	assert.Equal(t, "info", SeverityInfo.String())
	assert.Equal(t, "warning", SeverityWarning.String())
	assert.Equal(t, "error", SeverityError.String())
}

func TestWriteCSV(t *testing.T) {
	buf := &bytes.Buffer{}
	require.NoError(t, WriteCSV(buf, []Diagnostic{
		{
			Severity:    SeverityWarning,
			Code:        CodeUnresolvedStop,
			Message:     "unknown stop, skipped",
			File:        "a.txt",
			Line:        4,
			TrainNumber: "5420",
			StopCode:    "99999",
		},
		{
			Severity: SeverityInfo,
			Code:     CodeTruncatedTrip,
			Message:  "dropped 2 stops after the border",
			TripID:   "440",
			Count:    2,
		},
	}))

	assert.Equal(t, ""+
		"severity,code,file,line,train_number,trip_id,stop_code,count,message\n"+
		"warning,UnresolvedStop,a.txt,4,5420,,99999,,\"unknown stop, skipped\"\n"+
		"info,TruncatedTrip,,,,440,,2,dropped 2 stops after the border\n",
		buf.String(),
	)
}

func TestSummarize(t *testing.T) {
	entries := []Diagnostic{
		{Severity: SeverityWarning, Code: CodeUnresolvedStop},
		{Severity: SeverityInfo, Code: CodeCompositionLinked},
		{Severity: SeverityWarning, Code: CodeUnresolvedStop},
	}

	assert.Equal(t, []CodeCount{
		{Code: CodeCompositionLinked, Count: 1},
		{Code: CodeUnresolvedStop, Count: 2},
	}, Summarize(entries))
	assert.Equal(t, []CodeCount{}, Summarize(nil))

	assert.True(t, AnyAtLeast(entries, SeverityWarning))
	assert.False(t, AnyAtLeast(entries, SeverityError))
	assert.False(t, AnyAtLeast(nil, SeverityInfo))
}

package testutil

// Helpers for building timetable input in tests.

import (
	"archive/zip"
	"bytes"
	"fmt"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/railgtfs/railgtfs/model"
	"github.com/railgtfs/railgtfs/stops"
)

type Stop struct {
	Code      string
	Arrival   string
	Departure string
	Platform  string

	// "", "A", "B", "R" or "-".
	Restriction string

	Country  string
	Summary  bool
	Distance int
}

// Composition marker. Kind is "N" (continues as) or "P" (continued
// from).
type Marker struct {
	Kind     string
	Partner  string
	Junction string
}

type Train struct {
	Number     string
	Category   string
	Name       string
	Commercial string

	Start string
	End   string

	// Monday through Sunday, e.g. "1111100".
	Days string

	// "+2025-01-04" adds a date, "-2025-01-06" removes one.
	Overrides []string

	Stops   []Stop
	Markers []Marker
}

// Renders trains in the operator's timetable format.
func Timetable(trains ...Train) []byte {
	lines := []string{}
	for _, t := range trains {
		lines = append(lines, strings.Join([]string{"T", t.Number, t.Category, t.Name, t.Commercial}, ";"))

		days := t.Days
		if days == "" {
			days = "1111111"
		}
		lines = append(lines, strings.Join([]string{"V", t.Start, t.End, days}, ";"))

		for _, o := range t.Overrides {
			lines = append(lines, fmt.Sprintf("X;%s;%s", o[:1], o[1:]))
		}

		for _, s := range t.Stops {
			detail := "D"
			if s.Summary {
				detail = "S"
			}
			country := s.Country
			if country == "" {
				country = "PL"
			}
			lines = append(lines, strings.Join([]string{
				"S",
				s.Code,
				s.Arrival,
				s.Departure,
				s.Platform,
				"",
				s.Restriction,
				country,
				detail,
				fmt.Sprintf("%d", s.Distance),
			}, ";"))
		}

		for _, m := range t.Markers {
			lines = append(lines, strings.Join([]string{"C", m.Kind, m.Partner, m.Junction}, ";"))
		}

		lines = append(lines, "E")
	}

	return []byte(strings.Join(lines, "\n") + "\n")
}

// A small stop geography. Codes 10xxx are Polish, 80xxx German.
func Geography() []model.Stop {
	return []model.Stop{
		{ID: "krk", Name: "Kraków Główny", Lat: 50.0677, Lon: 19.9476, LocationType: model.LocationTypeStation, Country: "PL"},
		{ID: "krk-1", Code: "10001", Name: "Kraków Główny", Lat: 50.0677, Lon: 19.9476, ParentStation: "krk", PlatformCode: "1", Country: "PL"},
		{ID: "kat", Code: "10002", Name: "Katowice", Lat: 50.2577, Lon: 19.0175, Country: "PL"},
		{ID: "cmk", Code: "10003", Name: "Włoszczowa Północ", Lat: 50.8504, Lon: 19.9663, Country: "PL"},
		{ID: "waw", Code: "10004", Name: "Warszawa Centralna", Lat: 52.2289, Lon: 21.0036, Country: "PL"},
		{ID: "gdn", Code: "10005", Name: "Gdańsk Główny", Lat: 54.3556, Lon: 18.6439, Country: "PL"},
		{ID: "rzp", Code: "10006", Name: "Rzepin", Lat: 52.3448, Lon: 14.8288, Country: "PL"},
		{ID: "ffo", Code: "80001", Name: "Frankfurt (Oder)", Lat: 52.3367, Lon: 14.5461, Country: "DE"},
		{ID: "bln", Code: "80002", Name: "Berlin Hbf", Lat: 52.5251, Lon: 13.3694, Country: "DE"},
	}
}

func Lookup() *stops.MemoryLookup {
	return stops.NewMemoryLookup(Geography())
}

func BuildZip(
	t testing.TB,
	files map[string][]string,
) []byte {

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	buf := &bytes.Buffer{}
	w := zip.NewWriter(buf)
	for _, filename := range names {
		f, err := w.Create(filename)
		require.NoError(t, err)
		_, err = f.Write([]byte(strings.Join(files[filename], "\n")))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	return buf.Bytes()
}

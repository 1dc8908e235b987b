package main

import (
	"archive/zip"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/railgtfs/railgtfs/config"
	"github.com/railgtfs/railgtfs/stops"
	"github.com/railgtfs/railgtfs/storage"
	"github.com/railgtfs/railgtfs/testutil"
)

const geographyCSV = `stop_id,stop_code,stop_name,stop_lat,stop_lon,location_type,parent_station,platform_code,country
krk,,Kraków Główny,50.0677,19.9476,1,,,PL
krk-1,10001,Kraków Główny,50.0677,19.9476,0,krk,1,PL
waw,10004,Warszawa Centralna,52.2289,21.0036,0,,,PL
`

func execute(args ...string) error {
	configPath, logLevel, logFormat = "", "warn", "console"
	inputURL, inputDir = "", ""
	geographyPath, geographyKind = "", ""
	outputPath, outputKind, diagnosticsPath, strict = "", "", "", false
	day, limit, feedPath = "", -1, ""

	rootCmd.SetArgs(args)
	return rootCmd.Execute()
}

type fixture struct {
	dir       string
	input     string
	geography string
}

func newFixture(t *testing.T, trains ...testutil.Train) fixture {
	dir := t.TempDir()
	input := filepath.Join(dir, "timetables")
	require.NoError(t, os.Mkdir(input, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(input, "north.txt"), testutil.Timetable(trains...), 0644))

	geography := filepath.Join(dir, "stops.csv")
	require.NoError(t, os.WriteFile(geography, []byte(geographyCSV), 0644))

	return fixture{dir: dir, input: input, geography: geography}
}

func lajkonik() testutil.Train {
	return testutil.Train{
		Number:   "5420",
		Category: "IC",
		Name:     "Lajkonik",
		Start:    "2025-01-01",
		End:      "2025-01-31",
		Stops: []testutil.Stop{
			{Code: "10001", Departure: "08:00:00"},
			{Code: "10004", Arrival: "10:30:00"},
		},
	}
}

func zipNames(t *testing.T, path string) []string {
	r, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer r.Close()

	names := []string{}
	for _, f := range r.File {
		names = append(names, f.Name)
	}
	sort.Strings(names)
	return names
}

func TestParseHeaders(t *testing.T) {
	headers, err := parseHeaders([]string{"Authorization: Bearer x", "X-Key:abc"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"Authorization": "Bearer x", "X-Key": "abc"}, headers)

	_, err = parseHeaders([]string{"nocolon"})
	assert.Error(t, err)
}

func TestBuild(t *testing.T) {
	fx := newFixture(t, lajkonik())
	out := filepath.Join(fx.dir, "gtfs.zip")
	diagnostics := filepath.Join(fx.dir, "diagnostics.csv")

	require.NoError(t, execute(
		"build",
		"--dir", fx.input,
		"--geography", fx.geography,
		"--output", out,
		"--diagnostics", diagnostics,
	))

	assert.Equal(t, []string{
		"agency.txt",
		"calendar.txt",
		"feed_info.txt",
		"routes.txt",
		"stop_times.txt",
		"stops.txt",
		"trips.txt",
	}, zipNames(t, out))

	buf, err := os.ReadFile(diagnostics)
	require.NoError(t, err)
	assert.Equal(t, "severity,code,file,line,train_number,trip_id,stop_code,count,message\n", string(buf))
}

func TestBuildStrict(t *testing.T) {
	ghost := lajkonik()
	ghost.Number = "999"
	ghost.Stops[1].Code = "55555"

	fx := newFixture(t, lajkonik(), ghost)
	out := filepath.Join(fx.dir, "gtfs.zip")

	require.NoError(t, execute("build", "--dir", fx.input, "--geography", fx.geography, "--output", out))
	require.NoError(t, os.Remove(out))

	assert.Error(t, execute("build", "--dir", fx.input, "--geography", fx.geography, "--output", out, "--strict"))
	_, err := os.Stat(out)
	assert.True(t, os.IsNotExist(err))
}

func TestBuildWithConfig(t *testing.T) {
	fx := newFixture(t, lajkonik())
	out := filepath.Join(fx.dir, "gtfs.db")

	cfgPath := filepath.Join(fx.dir, "railgtfs.yml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(""+
		"input:\n  directory: "+fx.input+"\n"+
		"geography:\n  path: "+fx.geography+"\n"+
		"output:\n  kind: sqlite\n  path: "+out+"\n",
	), 0644))

	require.NoError(t, execute("build", "--config", cfgPath))

	info, err := os.Stat(out)
	require.NoError(t, err)
	assert.True(t, info.Size() > 0)
}

func TestBuildRequiresInput(t *testing.T) {
	fx := newFixture(t, lajkonik())
	assert.Error(t, execute("build", "--geography", fx.geography))
	assert.Error(t, execute("build", "--dir", fx.input))
}

func TestLoadConfigOverrides(t *testing.T) {
	configPath = ""
	inputURL = "https://example.com/"
	inputDir = ""
	geographyKind = config.GeographyPostgres
	geographyPath = "postgres://localhost/geo"

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/", cfg.Input.URL)
	assert.Equal(t, "", cfg.Input.Directory)
	assert.Equal(t, "postgres://localhost/geo", cfg.Geography.DSN)
	assert.Equal(t, "", cfg.Geography.Path)
}

func TestOpenGeographyCSV(t *testing.T) {
	fx := newFixture(t)

	geo, err := openGeography(&config.Config{Geography: config.Geography{Kind: config.GeographyCSV, Path: fx.geography}})
	require.NoError(t, err)
	defer geo.Close()

	_, cached := geo.Lookup.(*stops.CachedLookup)
	assert.True(t, cached)

	for i := 0; i < 2; i++ {
		stop, err := geo.Stop("10001")
		require.NoError(t, err)
		require.NotNil(t, stop)
		assert.Equal(t, "krk-1", stop.ID)
	}

	all, err := geo.Stops()
	require.NoError(t, err)
	assert.Equal(t, 3, len(all))
}

func TestStopsImport(t *testing.T) {
	fx := newFixture(t)
	db := filepath.Join(fx.dir, "geography.db")

	require.NoError(t, execute("stops", "import", fx.geography, "--geography-kind", "sqlite", "--geography", db))

	lookup, err := storage.NewSQLiteStopLookup(db)
	require.NoError(t, err)
	defer lookup.Close()

	all, err := lookup.Stops()
	require.NoError(t, err)
	assert.Equal(t, 3, len(all))

	stop, err := lookup.Stop("10004")
	require.NoError(t, err)
	require.NotNil(t, stop)
	assert.Equal(t, "waw", stop.ID)

	require.NoError(t, execute("stops", "52.2", "21.0", "1", "--geography-kind", "sqlite", "--geography", db))
	assert.Error(t, execute("stops", "52.2", "--geography-kind", "sqlite", "--geography", db))
}

func TestDepartures(t *testing.T) {
	fx := newFixture(t, lajkonik())
	require.NoError(t, execute(
		"departures", "krk",
		"--dir", fx.input,
		"--geography", fx.geography,
		"--date", "2025-01-07",
	))
	assert.Error(t, execute("departures", "krk", "--date", "tomorrow"))
}

func TestDeparturesFromFeed(t *testing.T) {
	fx := newFixture(t, lajkonik())
	out := filepath.Join(fx.dir, "gtfs.zip")
	require.NoError(t, execute("build", "--dir", fx.input, "--geography", fx.geography, "--output", out))

	require.NoError(t, execute("departures", "krk", "--feed", out, "--date", "2025-01-07", "--limit", "1"))
	assert.Error(t, execute("departures", "krk", "--feed", filepath.Join(fx.dir, "missing.zip")))
}

package stops

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/railgtfs/railgtfs/model"
	"github.com/railgtfs/railgtfs/parse"
)

var geography = []model.Stop{
	{ID: "krk", Name: "Kraków Główny", Lat: 50.06, Lon: 19.94, LocationType: model.LocationTypeStation, Country: "PL"},
	{ID: "krk-1", Code: "33605", Name: "Kraków Główny", Lat: 50.06, Lon: 19.94, ParentStation: "krk", PlatformCode: "1", Country: "PL"},
	{ID: "waw", Code: "33500", Name: "Warszawa Centralna", Lat: 52.22, Lon: 21.00, Country: "PL"},
	{ID: "orphan", Code: "99000", Name: "Orphan", Lat: 1, Lon: 2, ParentStation: "missing"},
}

func record(number string, codes ...string) *parse.Record {
	rec := &parse.Record{TrainNumber: number, Category: "IC"}
	for i, code := range codes {
		rec.Stops = append(rec.Stops, parse.RawStop{
			Code:      code,
			Arrival:   time.Duration(i) * time.Hour,
			Departure: time.Duration(i) * time.Hour,
		})
	}
	return rec
}

// Counts calls to the wrapped lookup.
type countingLookup struct {
	Lookup
	calls int
}

func (c *countingLookup) Stop(code string) (*model.Stop, error) {
	c.calls++
	return c.Lookup.Stop(code)
}

type brokenLookup struct{}

func (brokenLookup) Stop(code string) (*model.Stop, error) {
	return nil, errors.New("connection refused")
}

func (brokenLookup) StopByID(id string) (*model.Stop, error) {
	return nil, errors.New("connection refused")
}

func TestMemoryLookup(t *testing.T) {
	l := NewMemoryLookup(geography)

	stop, err := l.Stop("33605")
	require.NoError(t, err)
	require.NotNil(t, stop)
	assert.Equal(t, "krk-1", stop.ID)

	stop, err = l.Stop("nope")
	require.NoError(t, err)
	assert.Nil(t, stop)

	stop, err = l.StopByID("krk")
	require.NoError(t, err)
	require.NotNil(t, stop)
	assert.Equal(t, "Kraków Główny", stop.Name)

	// Returned stops are copies.
	stop.Name = "changed"
	stop, err = l.StopByID("krk")
	require.NoError(t, err)
	assert.Equal(t, "Kraków Główny", stop.Name)

	assert.Equal(t, 4, len(l.Stops()))
}

func TestCSVLookup(t *testing.T) {
	l, err := NewCSVLookup(strings.NewReader(`stop_id,stop_code,stop_name,stop_lat,stop_lon,country
a,1,A,1,2,PL
b,2,B,3,4,cz
`))
	require.NoError(t, err)

	stop, err := l.Stop("2")
	require.NoError(t, err)
	require.NotNil(t, stop)
	assert.Equal(t, "b", stop.ID)
	assert.Equal(t, "CZ", stop.Country)

	_, err = NewCSVLookup(strings.NewReader("stop_id,stop_name,stop_lat,stop_lon\n,A,1,2\n"))
	assert.Error(t, err)
}

func TestCachedLookup(t *testing.T) {
	counting := &countingLookup{Lookup: NewMemoryLookup(geography)}
	l := NewCachedLookup(counting)

	for i := 0; i < 3; i++ {
		stop, err := l.Stop("33500")
		require.NoError(t, err)
		require.NotNil(t, stop)
		assert.Equal(t, "waw", stop.ID)

		stop, err = l.Stop("nope")
		require.NoError(t, err)
		assert.Nil(t, stop)
	}
	assert.Equal(t, 2, counting.calls)

	stop, err := l.StopByID("krk")
	require.NoError(t, err)
	assert.Equal(t, "krk", stop.ID)

	_, err = NewCachedLookup(brokenLookup{}).Stop("33500")
	assert.Error(t, err)
}

func TestResolve(t *testing.T) {
	r := NewResolver(NewMemoryLookup(geography))

	trip, err := r.Resolve(record("1", "33605", "33500"))
	require.NoError(t, err)
	require.Equal(t, 2, len(trip.StopTimes))
	assert.Equal(t, "krk-1", trip.StopTimes[0].StopID)
	assert.Equal(t, "33605", trip.StopTimes[0].Code)
	assert.Equal(t, "Kraków Główny", trip.StopTimes[0].Name)
	assert.Equal(t, "PL", trip.StopTimes[0].Country)
	assert.Equal(t, "waw", trip.StopTimes[1].StopID)

	// Parent stations are collected as well.
	ids := []string{}
	for _, s := range r.Stops() {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []string{"krk", "krk-1", "waw"}, ids)
}

func TestResolveUnresolvedStop(t *testing.T) {
	r := NewResolver(NewMemoryLookup(geography))

	_, err := r.Resolve(record("5420", "33500", "12345", "54321"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnresolvedStop))

	var unresolved *UnresolvedStopError
	require.True(t, errors.As(err, &unresolved))
	assert.Equal(t, "12345", unresolved.Code)
	assert.Equal(t, "5420", unresolved.TrainNumber)

	// Nothing from the dropped record is marked as used.
	assert.Equal(t, 0, len(r.Stops()))
}

func TestResolveMissingParent(t *testing.T) {
	r := NewResolver(NewMemoryLookup(geography))

	_, err := r.Resolve(record("1", "99000", "33500"))
	require.NoError(t, err)

	ids := []string{}
	for _, s := range r.Stops() {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []string{"orphan", "waw"}, ids)
}

func TestResolveLookupFailure(t *testing.T) {
	r := NewResolver(brokenLookup{})

	_, err := r.Resolve(record("1", "33605", "33500"))
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrUnresolvedStop))
}

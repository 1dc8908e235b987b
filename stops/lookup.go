package stops

import (
	"fmt"
	"io"
	"sync"

	"github.com/railgtfs/railgtfs/model"
	"github.com/railgtfs/railgtfs/parse"
)

// Read-only access to the stop geography. Both methods return nil
// and no error when there is no such stop.
type Lookup interface {
	// Stop with the given operator stop code.
	Stop(code string) (*model.Stop, error)

	// Stop with the given stop_id. Used to follow parent_station.
	StopByID(id string) (*model.Stop, error)
}

type MemoryLookup struct {
	byCode map[string]*model.Stop
	byID   map[string]*model.Stop
}

func NewMemoryLookup(stops []model.Stop) *MemoryLookup {
	l := &MemoryLookup{
		byCode: map[string]*model.Stop{},
		byID:   map[string]*model.Stop{},
	}
	for i := range stops {
		s := stops[i]
		l.byID[s.ID] = &s
		if s.Code != "" {
			l.byCode[s.Code] = &s
		}
	}
	return l
}

// Loads the geography from a stops.txt style CSV, see
// parse.ParseStops.
func NewCSVLookup(r io.Reader) (*MemoryLookup, error) {
	stops, err := parse.ParseStops(r)
	if err != nil {
		return nil, fmt.Errorf("loading stop geography: %w", err)
	}
	return NewMemoryLookup(stops), nil
}

func (l *MemoryLookup) Stop(code string) (*model.Stop, error) {
	return copyStop(l.byCode[code]), nil
}

func (l *MemoryLookup) StopByID(id string) (*model.Stop, error) {
	return copyStop(l.byID[id]), nil
}

// All stops, in no particular order.
func (l *MemoryLookup) Stops() []model.Stop {
	out := make([]model.Stop, 0, len(l.byID))
	for _, s := range l.byID {
		out = append(out, *s)
	}
	return out
}

func copyStop(s *model.Stop) *model.Stop {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

// Memoizes another Lookup. Misses are cached too. Safe for
// concurrent use.
type CachedLookup struct {
	lookup Lookup

	mutex  sync.Mutex
	byCode map[string]*model.Stop
	byID   map[string]*model.Stop
}

func NewCachedLookup(lookup Lookup) *CachedLookup {
	return &CachedLookup{
		lookup: lookup,
		byCode: map[string]*model.Stop{},
		byID:   map[string]*model.Stop{},
	}
}

func (c *CachedLookup) cached(cache map[string]*model.Stop, key string, fetch func(string) (*model.Stop, error)) (*model.Stop, error) {
	c.mutex.Lock()
	stop, found := cache[key]
	c.mutex.Unlock()
	if found {
		return copyStop(stop), nil
	}

	stop, err := fetch(key)
	if err != nil {
		return nil, err
	}

	c.mutex.Lock()
	cache[key] = stop
	c.mutex.Unlock()

	return copyStop(stop), nil
}

func (c *CachedLookup) Stop(code string) (*model.Stop, error) {
	return c.cached(c.byCode, code, c.lookup.Stop)
}

func (c *CachedLookup) StopByID(id string) (*model.Stop, error) {
	return c.cached(c.byID, id, c.lookup.StopByID)
}

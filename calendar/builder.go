package calendar

import (
	"fmt"
)

type Service struct {
	ID       string
	Calendar Calendar
}

// Deduplicates calendars into services. Service IDs are assigned in
// insertion order.
type Builder struct {
	byKey    map[string]string
	services []Service
}

func NewBuilder() *Builder {
	return &Builder{
		byKey:    map[string]string{},
		services: []Service{},
	}
}

// Returns the ID of the service running on cal, creating it if
// needed.
func (b *Builder) Add(cal Calendar) string {
	key := cal.Key()
	if id, found := b.byKey[key]; found {
		return id
	}

	id := fmt.Sprintf("S%d", len(b.services)+1)
	b.byKey[key] = id
	b.services = append(b.services, Service{ID: id, Calendar: cal})

	return id
}

// All services, in the order they were created.
func (b *Builder) Services() []Service {
	out := make([]Service, len(b.services))
	copy(out, b.services)
	return out
}

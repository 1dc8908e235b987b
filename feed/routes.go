package feed

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/railgtfs/railgtfs/model"
	"github.com/railgtfs/railgtfs/schedule"
)

type RouteRuleKind string

const (
	// One route per commercial category (brand).
	RouteByCategory RouteRuleKind = "category"

	// One route per train number prefix.
	RouteByPrefix RouteRuleKind = "prefix"
)

// Decides which route a trip belongs to.
type RouteRule struct {
	Kind RouteRuleKind

	// Number of leading train number characters used by
	// RouteByPrefix.
	PrefixLength int
}

func DefaultRouteRule() RouteRule {
	return RouteRule{Kind: RouteByCategory}
}

// Route ID for trips without a usable category.
const otherRoute = "OTHER"

// Appended to the route ID of trips operated by replacement buses.
const busRouteSuffix = "_BUS"

var categoryNormalization = map[string]string{
	"IC+": "IC",
}

var categoryPriority = []string{"EIP", "EIC", "IC", "TLK", "EN", "EC", "MP"}

var categoryNames = map[string]string{
	"EIP": "Express InterCity Premium",
	"EIC": "Express InterCity",
	"IC":  "InterCity",
	"TLK": "Twoje Linie Kolejowe",
	"EN":  "EuroNight",
	"EC":  "EuroCity",
	"MP":  "Międzynarodowy Pospieszny",
}

func priority(category string) int {
	for i, c := range categoryPriority {
		if c == category {
			return i
		}
	}
	return math.MaxInt
}

// Reduces compound categories like "EIC IC+" to the single most
// prominent brand. Categories with no known brand are kept as is.
func NormalizeCategory(category string) string {
	parts := strings.Fields(strings.ToUpper(category))
	if len(parts) == 0 {
		return otherRoute
	}

	best, bestPriority := "", math.MaxInt
	for _, p := range parts {
		if n, found := categoryNormalization[p]; found {
			p = n
		}
		if prio := priority(p); prio < bestPriority {
			best, bestPriority = p, prio
		}
	}

	if best == "" {
		return strings.Join(parts, " ")
	}
	return best
}

func (r RouteRule) Validate() error {
	switch r.Kind {
	case RouteByCategory:
		return nil
	case RouteByPrefix:
		if r.PrefixLength <= 0 {
			return fmt.Errorf("route rule %s requires a positive prefix length", r.Kind)
		}
		return nil
	}
	return fmt.Errorf("unknown route rule '%s'", r.Kind)
}

func (r RouteRule) RouteID(trip *schedule.Trip) string {
	if r.Kind == RouteByPrefix {
		number := trip.Number()
		if len(number) > r.PrefixLength {
			number = number[:r.PrefixLength]
		}
		return number
	}
	return NormalizeCategory(trip.Category)
}

// Builds routes for the given IDs. Known brands come first, in order
// of prominence, followed by everything else alphabetically. A bus
// route follows the rail route it replaces.
func buildRoutes(ids map[string]bool, agencyID string) []model.Route {
	sorted := make([]string, 0, len(ids))
	for id := range ids {
		sorted = append(sorted, id)
	}
	sort.Slice(sorted, func(i, j int) bool {
		bi, busI := strings.CutSuffix(sorted[i], busRouteSuffix)
		bj, busJ := strings.CutSuffix(sorted[j], busRouteSuffix)
		pi, pj := priority(bi), priority(bj)
		if pi != pj {
			return pi < pj
		}
		if bi != bj {
			return bi < bj
		}
		return !busI && busJ
	})

	routes := make([]model.Route, 0, len(sorted))
	for i, id := range sorted {
		base, bus := strings.CutSuffix(id, busRouteSuffix)
		route := model.Route{
			ID:        id,
			AgencyID:  agencyID,
			ShortName: base,
			LongName:  categoryNames[base],
			Type:      model.RouteTypeRail,
			SortOrder: i,
		}
		if bus {
			route.Type = model.RouteTypeBus
			if route.LongName != "" {
				route.LongName += " ZKA"
			}
		}
		routes = append(routes, route)
	}
	return routes
}

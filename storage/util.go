package storage

import (
	"math"
	"sort"

	"github.com/railgtfs/railgtfs/model"
)

func HaversineDistance(aLat, aLon, bLat, bLon float64) float64 {
	const earthRadiusKm = 6371

	aLatRad := aLat * math.Pi / 180
	aLonRad := aLon * math.Pi / 180
	bLatRad := bLat * math.Pi / 180
	bLonRad := bLon * math.Pi / 180
	deltaLat := aLatRad - bLatRad
	deltaLon := aLonRad - bLonRad

	a := math.Cos(aLatRad)*math.Cos(bLatRad)*math.Pow(math.Sin(deltaLon/2), 2) + math.Pow(math.Sin(deltaLat/2), 2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return c * earthRadiusKm
}

// Stations and parentless stops ordered by distance from (lat, lng),
// at most limit of them if limit is positive.
func NearbyStops(stops []model.Stop, lat float64, lng float64, limit int) []model.Stop {
	candidates := []model.Stop{}
	for _, s := range stops {
		if !(s.LocationType == model.LocationTypeStation || s.LocationType == model.LocationTypeStop && s.ParentStation == "") {
			continue
		}
		candidates = append(candidates, s)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		di := HaversineDistance(lat, lng, candidates[i].Lat, candidates[i].Lon)
		dj := HaversineDistance(lat, lng, candidates[j].Lat, candidates[j].Lon)
		if di != dj {
			return di < dj
		}
		return candidates[i].ID < candidates[j].ID
	})

	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}

	return candidates
}

package parse

import (
	"fmt"
	"io"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/spkg/bom"

	"github.com/railgtfs/railgtfs/model"
)

// Row of the stop geography dataset. Mirrors stops.txt, with
// stop_code holding the operator's internal station number.
type StopCSV struct {
	ID            string  `csv:"stop_id"`
	Code          string  `csv:"stop_code"`
	Name          string  `csv:"stop_name"`
	Lat           float64 `csv:"stop_lat"`
	Lon           float64 `csv:"stop_lon"`
	LocationType  int8    `csv:"location_type"`
	ParentStation string  `csv:"parent_station"`
	PlatformCode  string  `csv:"platform_code"`
	Country       string  `csv:"country"`
}

// Parses a stop geography CSV.
func ParseStops(data io.Reader) ([]model.Stop, error) {
	stopCsv := []*StopCSV{}

	// LazyCSVReader required (at least) to survive sloppy use of
	// quotes. The BOM reader strips unicode BOMs if present.
	err := gocsv.UnmarshalCSV(gocsv.LazyCSVReader(bom.NewReader(data)), &stopCsv)
	if err != nil {
		return nil, fmt.Errorf("unmarshaling stops csv: %w", err)
	}

	stops := make([]model.Stop, 0, len(stopCsv))
	stopIDs := map[string]bool{}
	codes := map[string]string{}
	parentRef := map[string]string{}
	for _, st := range stopCsv {
		if st.ID == "" {
			return nil, fmt.Errorf("empty stop_id")
		}
		if stopIDs[st.ID] {
			return nil, fmt.Errorf("repeated stop_id '%s'", st.ID)
		}
		stopIDs[st.ID] = true

		if st.Code != "" {
			if other, found := codes[st.Code]; found {
				return nil, fmt.Errorf("stop_code '%s' used by both '%s' and '%s'", st.Code, other, st.ID)
			}
			codes[st.Code] = st.ID
		}

		locationType := model.LocationType(st.LocationType)

		if locationType != model.LocationTypeGenericNode && locationType != model.LocationTypeBoardingArea {
			if st.Name == "" {
				return nil, fmt.Errorf("empty stop_name for stop_id '%s'", st.ID)
			}
			if st.Lat == 0 || st.Lon == 0 {
				return nil, fmt.Errorf("empty stop_lat or stop_lon for stop_id '%s'", st.ID)
			}
		}

		if st.ParentStation != "" {
			parentRef[st.ID] = st.ParentStation
		}

		stops = append(stops, model.Stop{
			ID:            st.ID,
			Code:          st.Code,
			Name:          st.Name,
			Lat:           st.Lat,
			Lon:           st.Lon,
			LocationType:  locationType,
			ParentStation: st.ParentStation,
			PlatformCode:  st.PlatformCode,
			Country:       strings.ToUpper(st.Country),
		})
	}

	// verify stops referenced by parent_station exist
	for stopID, parentID := range parentRef {
		if !stopIDs[parentID] {
			return nil, fmt.Errorf("stop '%s' references unknown parent_station '%s'", stopID, parentID)
		}
	}

	return stops, nil
}

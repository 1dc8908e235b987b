package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Holds all external facing types and constants.

type LocationType int

const (
	LocationTypeStop LocationType = iota
	LocationTypeStation
	LocationTypeEntranceExit
	LocationTypeGenericNode
	LocationTypeBoardingArea
)

type RouteType int

const (
	RouteTypeTram       RouteType = 0
	RouteTypeSubway               = 1
	RouteTypeRail                 = 2
	RouteTypeBus                  = 3
	RouteTypeFerry                = 4
	RouteTypeCable                = 5
	RouteTypeAerial               = 6
	RouteTypeFunicular            = 7
	RouteTypeTrolleybus           = 11
	RouteTypeMonorail             = 12
)

// Pickup and drop off policy of a stop_time.
type PassengerExchange int8

const (
	PassengerExchangeRegular PassengerExchange = iota
	PassengerExchangeNone
	PassengerExchangePhoneAgency
	PassengerExchangeCoordinateWithDriver
)

type TransferType int8

const (
	TransferTypeRecommended TransferType = iota
	TransferTypeTimed
	TransferTypeMinimumTime
	TransferTypeNotPossible
	TransferTypeInSeat
	TransferTypeInSeatNotAllowed
)

type ExceptionType int8

const (
	ExceptionTypeAdded   ExceptionType = 1
	ExceptionTypeRemoved ExceptionType = 2
)

type Agency struct {
	ID       string
	Name     string
	URL      string
	Timezone string
	Lang     string
	Phone    string
}

type Calendar struct {
	ServiceID string
	StartDate string
	EndDate   string
	Weekday   int8
}

type CalendarDate struct {
	ServiceID     string
	Date          string
	ExceptionType ExceptionType
}

type Stop struct {
	ID            string
	Code          string
	Name          string
	Lat           float64
	Lon           float64
	LocationType  LocationType
	ParentStation string
	PlatformCode  string

	// ISO 3166 country code. Not part of stops.txt, used to detect
	// border crossings.
	Country string
}

type Trip struct {
	ID        string
	RouteID   string
	ServiceID string
	Headsign  string
	ShortName string
	BlockID   string
}

type Route struct {
	ID        string
	AgencyID  string
	ShortName string
	LongName  string
	Type      RouteType
	Color     string
	TextColor string
	SortOrder int
}

type StopTime struct {
	TripID       string
	StopID       string
	StopSequence uint32
	Arrival      time.Duration
	Departure    time.Duration
	Platform     string
	PickupType   PassengerExchange
	DropOffType  PassengerExchange
	FareDistance int
}

type Transfer struct {
	FromStopID string
	ToStopID   string
	FromTripID string
	ToTripID   string
	Type       TransferType
}

type FeedInfo struct {
	PublisherName string
	PublisherURL  string
	Lang          string
	StartDate     string
	EndDate       string
	Version       string
}

// Formats an offset from service day start as GTFS HH:MM:SS. Hours
// may exceed 23 for trips running past midnight.
func FormatTime(d time.Duration) string {
	total := int(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total/60)%60, total%60)
}

// Parses HH:MM:SS, with hours in [0, 99].
func ParseTime(s string) (time.Duration, error) {
	split := strings.Split(s, ":")
	if len(split) != 3 {
		return 0, fmt.Errorf("found %d parts in '%s'", len(split), s)
	}

	hms := [3]int{}
	for i, str := range split {
		j, err := strconv.Atoi(str)
		if err != nil {
			return 0, fmt.Errorf("non-integer in '%s' pos %d", s, i)
		}
		hms[i] = j
	}

	if hms[0] < 0 || hms[0] > 99 {
		return 0, fmt.Errorf("invalid hour in '%s'", s)
	}

	if hms[1] < 0 || hms[1] > 59 {
		return 0, fmt.Errorf("invalid minute in '%s'", s)
	}

	if hms[2] < 0 || hms[2] > 59 {
		return 0, fmt.Errorf("invalid second in '%s'", s)
	}

	return time.Duration(hms[0])*time.Hour + time.Duration(hms[1])*time.Minute + time.Duration(hms[2])*time.Second, nil
}

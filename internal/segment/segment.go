package segment

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// RouteType is the transportation type of a trip.
type RouteType string

const (
	FullTruckLoad RouteType = "FTL"
	Carting       RouteType = "Carting"
)

// ParseRouteType accepts the raw dataset spellings ("FTL", "Carting") and the long form.
func ParseRouteType(s string) (RouteType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ftl", "fulltruckload", "full truck load", "full_truck_load":
		return FullTruckLoad, nil
	case "carting":
		return Carting, nil
	}
	return "", fmt.Errorf("unknown route type %q", s)
}

// Record is one raw segment row: a movement between two checkpoints of a trip.
// Time fields are in minutes as reported upstream, distances in km.
type Record struct {
	TripID          string
	RouteScheduleID string
	RouteType       RouteType

	SourceCode       string // facility id, e.g. IND388121AAA
	SourceLabel      string // e.g. "Anand_VUNagar_DC (Gujarat)"
	DestinationCode  string
	DestinationLabel string

	TripCreationTime time.Time
	SegmentStartTime time.Time
	SegmentEndTime   time.Time
	IsCutoff         bool

	// Cumulative since the last cutoff reset.
	StartScanToEndScan float64
	ActualTime         float64
	OSRMTime           float64
	ActualDistance     float64
	OSRMDistance       float64

	// Per-segment deltas.
	SegmentActualTime   float64
	SegmentOSRMTime     float64
	SegmentOSRMDistance float64
}

// Location is the decomposition of a composite facility label.
// Empty fields mean the label did not carry that part.
type Location struct {
	City    string
	State   string
	Place   string
	Pincode string
}

// CityState joins city and state, or returns "" when either is missing.
func (l Location) CityState() string {
	if l.City == "" || l.State == "" {
		return ""
	}
	return l.City + " " + l.State
}

// Derived is a Record with parsed locations and all durations in hours.
type Derived struct {
	TripID           string
	RouteScheduleID  string
	RouteType        RouteType
	TripCreationTime time.Time
	IsCutoff         bool

	Source      Location
	Destination Location

	// DurationHours is SegmentEndTime - SegmentStartTime; NaN when either is unset.
	DurationHours float64

	StartScanToEndScan float64
	ActualTime         float64
	OSRMTime           float64
	ActualDistance     float64
	OSRMDistance       float64

	SegmentActualTime   float64
	SegmentOSRMTime     float64
	SegmentOSRMDistance float64
}

// MinutesPerHour is the unit contract for minute-denominated input fields.
const MinutesPerHour = 60.0

// MinutesToHours converts a minute value to hours. NaN stays NaN.
func MinutesToHours(m float64) float64 { return m / MinutesPerHour }

// HoursBetween returns end-start in hours, or NaN when either bound is unset.
func HoursBetween(start, end time.Time) float64 {
	if start.IsZero() || end.IsZero() {
		return math.NaN()
	}
	return end.Sub(start).Hours()
}

package trip

import (
	"strings"
	"time"

	"github.com/KaramelBytes/tripstat-cli/internal/segment"
)

// Numeric column names of a trip record, as used by filters, tests and exports.
const (
	ColActualTime          = "actual_time"
	ColOSRMTime            = "osrm_time"
	ColActualDistance      = "actual_distance"
	ColOSRMDistance        = "osrm_distance"
	ColSegmentActualTime   = "segment_actual_time"
	ColSegmentOSRMTime     = "segment_osrm_time"
	ColSegmentOSRMDistance = "segment_osrm_distance"
	ColTimeTakenOD         = "time_taken_od"
	ColStartScanToEndScan  = "start_scan_to_end_scan"
)

// Categorical column names.
const (
	ColTripID                = "trip_id"
	ColRouteScheduleID       = "route_schedule_id"
	ColRouteType             = "route_type"
	ColSourceCities          = "source_cities"
	ColDestinationCities     = "destination_cities"
	ColSourceStates          = "source_states"
	ColDestinationStates     = "destination_states"
	ColSourceCityStates      = "source_city_states"
	ColDestinationCityStates = "destination_city_states"
)

// NumericColumns lists every numeric column in export order.
var NumericColumns = []string{
	ColActualTime, ColOSRMTime, ColActualDistance, ColOSRMDistance,
	ColSegmentActualTime, ColSegmentOSRMTime, ColSegmentOSRMDistance,
	ColTimeTakenOD, ColStartScanToEndScan,
}

// Record is one trip, reduced from all of its segments. Times are in hours,
// distances in km.
type Record struct {
	TripID           string
	RouteScheduleID  string
	RouteType        segment.RouteType
	TripCreationTime time.Time

	ActualTime     float64
	OSRMTime       float64
	ActualDistance float64
	OSRMDistance   float64

	SegmentActualTime   float64
	SegmentOSRMTime     float64
	SegmentOSRMDistance float64

	TimeTakenOD        float64
	StartScanToEndScan float64

	// Distinct values in first-seen order.
	SourceCities          []string
	DestinationCities     []string
	SourceStates          []string
	DestinationStates     []string
	SourceCityStates      []string
	DestinationCityStates []string
}

// Value returns the named numeric column.
func (r *Record) Value(col string) (float64, bool) {
	switch col {
	case ColActualTime:
		return r.ActualTime, true
	case ColOSRMTime:
		return r.OSRMTime, true
	case ColActualDistance:
		return r.ActualDistance, true
	case ColOSRMDistance:
		return r.OSRMDistance, true
	case ColSegmentActualTime:
		return r.SegmentActualTime, true
	case ColSegmentOSRMTime:
		return r.SegmentOSRMTime, true
	case ColSegmentOSRMDistance:
		return r.SegmentOSRMDistance, true
	case ColTimeTakenOD:
		return r.TimeTakenOD, true
	case ColStartScanToEndScan:
		return r.StartScanToEndScan, true
	}
	return 0, false
}

// SetValue assigns the named numeric column. It reports false for unknown names.
func (r *Record) SetValue(col string, v float64) bool {
	switch col {
	case ColActualTime:
		r.ActualTime = v
	case ColOSRMTime:
		r.OSRMTime = v
	case ColActualDistance:
		r.ActualDistance = v
	case ColOSRMDistance:
		r.OSRMDistance = v
	case ColSegmentActualTime:
		r.SegmentActualTime = v
	case ColSegmentOSRMTime:
		r.SegmentOSRMTime = v
	case ColSegmentOSRMDistance:
		r.SegmentOSRMDistance = v
	case ColTimeTakenOD:
		r.TimeTakenOD = v
	case ColStartScanToEndScan:
		r.StartScanToEndScan = v
	default:
		return false
	}
	return true
}

// Label returns the named categorical column. Set-valued columns are joined by a space.
func (r *Record) Label(col string) (string, bool) {
	switch col {
	case ColTripID:
		return r.TripID, true
	case ColRouteScheduleID:
		return r.RouteScheduleID, true
	case ColRouteType:
		return string(r.RouteType), true
	case ColSourceCities:
		return strings.Join(r.SourceCities, " "), true
	case ColDestinationCities:
		return strings.Join(r.DestinationCities, " "), true
	case ColSourceStates:
		return strings.Join(r.SourceStates, " "), true
	case ColDestinationStates:
		return strings.Join(r.DestinationStates, " "), true
	case ColSourceCityStates:
		return strings.Join(r.SourceCityStates, " "), true
	case ColDestinationCityStates:
		return strings.Join(r.DestinationCityStates, " "), true
	}
	return "", false
}

// Column extracts one numeric column across trips. Unknown names yield nil, false.
func Column(trips []Record, col string) ([]float64, bool) {
	if !IsNumericColumn(col) {
		return nil, false
	}
	out := make([]float64, len(trips))
	for i := range trips {
		out[i], _ = trips[i].Value(col)
	}
	return out, true
}

// IsNumericColumn reports whether col names a numeric trip column.
func IsNumericColumn(col string) bool {
	var r Record
	_, ok := r.Value(col)
	return ok
}

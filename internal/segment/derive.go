package segment

import "github.com/KaramelBytes/tripstat-cli/internal/normalize"

// Deriver turns raw records into Derived ones.
type Deriver struct {
	Names   *normalize.Normalizer // nil passes names through unchanged
	Pincode PincodeExtractor      // nil uses DefaultPincode
}

// Derive parses both labels, extracts pincodes, converts minute fields to hours
// and computes the segment duration. It never fails: malformed labels leave the
// affected location fields empty.
func (d Deriver) Derive(r Record) Derived {
	pin := d.Pincode
	if pin == nil {
		pin = DefaultPincode()
	}
	return Derived{
		TripID:           r.TripID,
		RouteScheduleID:  r.RouteScheduleID,
		RouteType:        r.RouteType,
		TripCreationTime: r.TripCreationTime,
		IsCutoff:         r.IsCutoff,

		Source:      d.location(r.SourceLabel, r.SourceCode, pin),
		Destination: d.location(r.DestinationLabel, r.DestinationCode, pin),

		DurationHours: HoursBetween(r.SegmentStartTime, r.SegmentEndTime),

		StartScanToEndScan: MinutesToHours(r.StartScanToEndScan),
		ActualTime:         MinutesToHours(r.ActualTime),
		OSRMTime:           MinutesToHours(r.OSRMTime),
		ActualDistance:     r.ActualDistance,
		OSRMDistance:       r.OSRMDistance,

		SegmentActualTime:   MinutesToHours(r.SegmentActualTime),
		SegmentOSRMTime:     MinutesToHours(r.SegmentOSRMTime),
		SegmentOSRMDistance: r.SegmentOSRMDistance,
	}
}

// DeriveAll derives every record into a new slice, preserving order.
func (d Deriver) DeriveAll(records []Record) []Derived {
	out := make([]Derived, len(records))
	for i := range records {
		out[i] = d.Derive(records[i])
	}
	return out
}

func (d Deriver) location(label, code string, pin PincodeExtractor) Location {
	city, state, place := ParseLabel(label)
	loc := Location{Place: place, Pincode: pin.ExtractPincode(code)}
	if city != "" {
		loc.City = d.Names.City(city)
	}
	if state != "" {
		loc.State = d.Names.State(state)
	}
	return loc
}

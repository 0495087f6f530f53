package route

import (
	"fmt"
	"sort"
	"strings"

	"github.com/apex/log"
	"github.com/montanaflynn/stats"

	"github.com/KaramelBytes/tripstat-cli/internal/diag"
	"github.com/KaramelBytes/tripstat-cli/internal/segment"
	"github.com/KaramelBytes/tripstat-cli/internal/trip"
)

// Record is one route schedule summarized over its trips and segments.
type Record struct {
	RouteScheduleID string

	// Distinct values in first-seen segment order.
	RouteTypes            []string
	SourceCities          []string
	DestinationCities     []string
	SourceStates          []string
	DestinationStates     []string
	SourceCityStates      []string
	DestinationCityStates []string

	NumSourceCities      int
	NumDestinationCities int
	NumSourceStates      int
	NumDestinationStates int

	TripCount         int
	AvgActualDistance float64

	// Route is "<source cities> -- <destination cities>".
	Route string
	// SourceToDestination is "<first source token> TO <last destination token>".
	// It is approximate for routes touching several cities.
	SourceToDestination string
}

// Options controls route aggregation.
type Options struct {
	Logger log.Interface
}

// Result holds the route table and the routes that were dropped.
type Result struct {
	Routes      []Record
	Diagnostics diag.Diagnostics
}

type labels struct {
	types, srcCities, dstCities, srcStates, dstStates, srcCityStates, dstCityStates orderedSet
}

type tripGroup struct {
	ids       orderedSet
	distances []float64
}

// Aggregate groups trips and segments by route_schedule_id. Label sets and
// cardinalities come from the segment table; trip_count and avg_actual_distance
// come from the trip table. Routes present in only one of them, or with an empty
// location set, are dropped with an IncompleteJoinWarning. Routes are returned
// sorted by route_schedule_id.
func Aggregate(trips []trip.Record, segs []segment.Derived, opt Options) (*Result, error) {
	logger := opt.Logger
	if logger == nil {
		logger = log.Log
	}

	byRoute := map[string]*labels{}
	for i := range segs {
		s := &segs[i]
		l := byRoute[s.RouteScheduleID]
		if l == nil {
			l = &labels{}
			byRoute[s.RouteScheduleID] = l
		}
		l.types.add(string(s.RouteType))
		l.srcCities.add(s.Source.City)
		l.dstCities.add(s.Destination.City)
		l.srcStates.add(s.Source.State)
		l.dstStates.add(s.Destination.State)
		l.srcCityStates.add(s.Source.CityState())
		l.dstCityStates.add(s.Destination.CityState())
	}

	tripsByRoute := map[string]*tripGroup{}
	for i := range trips {
		t := &trips[i]
		g := tripsByRoute[t.RouteScheduleID]
		if g == nil {
			g = &tripGroup{}
			tripsByRoute[t.RouteScheduleID] = g
		}
		if g.ids.add(t.TripID) {
			g.distances = append(g.distances, t.ActualDistance)
		}
	}

	keys := make([]string, 0, len(byRoute)+len(tripsByRoute))
	for k := range byRoute {
		keys = append(keys, k)
	}
	for k := range tripsByRoute {
		if _, ok := byRoute[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	res := &Result{Routes: make([]Record, 0, len(keys))}
	for _, id := range keys {
		l, g := byRoute[id], tripsByRoute[id]
		if missing := missingParts(l, g); len(missing) > 0 {
			res.Diagnostics.Add(&diag.IncompleteJoinWarning{Group: "route", Key: id, Missing: missing})
			continue
		}
		avg, err := stats.Mean(stats.Float64Data(g.distances))
		if err != nil {
			return nil, fmt.Errorf("route %s: mean actual distance: %w", id, err)
		}
		rec := Record{
			RouteScheduleID:       id,
			RouteTypes:            l.types.values,
			SourceCities:          l.srcCities.values,
			DestinationCities:     l.dstCities.values,
			SourceStates:          l.srcStates.values,
			DestinationStates:     l.dstStates.values,
			SourceCityStates:      l.srcCityStates.values,
			DestinationCityStates: l.dstCityStates.values,
			NumSourceCities:       len(l.srcCities.values),
			NumDestinationCities:  len(l.dstCities.values),
			NumSourceStates:       len(l.srcStates.values),
			NumDestinationStates:  len(l.dstStates.values),
			TripCount:             len(g.ids.values),
			AvgActualDistance:     avg,
		}
		src, dst := strings.Join(rec.SourceCities, " "), strings.Join(rec.DestinationCities, " ")
		rec.Route = src + " -- " + dst
		rec.SourceToDestination = Label(src, dst)
		res.Routes = append(res.Routes, rec)
	}

	logger.WithFields(log.Fields{
		"routes":  len(res.Routes),
		"dropped": len(keys) - len(res.Routes),
	}).Debug("routes aggregated")
	return res, nil
}

// Label builds "<first token of src> TO <last token of dst>".
func Label(src, dst string) string {
	s, d := strings.Fields(src), strings.Fields(dst)
	if len(s) == 0 || len(d) == 0 {
		return ""
	}
	return s[0] + " TO " + d[len(d)-1]
}

func missingParts(l *labels, g *tripGroup) []string {
	var m []string
	if g == nil || len(g.ids.values) == 0 {
		m = append(m, "trips")
	}
	if l == nil {
		return append(m, "segments")
	}
	if len(l.srcCities.values) == 0 {
		m = append(m, trip.ColSourceCities)
	}
	if len(l.dstCities.values) == 0 {
		m = append(m, trip.ColDestinationCities)
	}
	if len(l.srcStates.values) == 0 {
		m = append(m, trip.ColSourceStates)
	}
	if len(l.dstStates.values) == 0 {
		m = append(m, trip.ColDestinationStates)
	}
	return m
}

type orderedSet struct {
	seen   map[string]struct{}
	values []string
}

// add inserts v unless it is empty or present and reports whether it was added.
func (s *orderedSet) add(v string) bool {
	if v == "" {
		return false
	}
	if s.seen == nil {
		s.seen = map[string]struct{}{}
	}
	if _, ok := s.seen[v]; ok {
		return false
	}
	s.seen[v] = struct{}{}
	s.values = append(s.values, v)
	return true
}

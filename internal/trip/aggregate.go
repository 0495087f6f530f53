package trip

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/apex/log"
	"golang.org/x/sync/errgroup"

	"github.com/KaramelBytes/tripstat-cli/internal/diag"
	"github.com/KaramelBytes/tripstat-cli/internal/segment"
)

// Options controls trip aggregation.
type Options struct {
	// CollapseDuplicates sums only the distinct values of time_taken_od and
	// start_scan_to_end_scan per trip. When false every segment reading is summed.
	CollapseDuplicates bool
	// Strict returns the first consistency error instead of dropping the trip.
	Strict bool
	Logger log.Interface
}

// DefaultOptions collapses duplicate readings and drops inconsistent trips.
func DefaultOptions() Options {
	return Options{CollapseDuplicates: true}
}

// Result is the trip table plus the data-quality findings that shaped it.
type Result struct {
	Trips       []Record
	Diagnostics diag.Diagnostics
}

type reducer int

const (
	checkpointMaxSum reducer = iota // max per distinct checkpoint, summed over checkpoints
	plainSum                        // sum over all segments
	distinctSum                     // sum over distinct readings (or all, see CollapseDuplicates)
)

type metric struct {
	col    string
	reduce reducer
	value  func(*segment.Derived) float64
}

var metrics = []metric{
	{ColActualTime, checkpointMaxSum, func(s *segment.Derived) float64 { return s.ActualTime }},
	{ColOSRMTime, checkpointMaxSum, func(s *segment.Derived) float64 { return s.OSRMTime }},
	{ColActualDistance, checkpointMaxSum, func(s *segment.Derived) float64 { return s.ActualDistance }},
	{ColOSRMDistance, checkpointMaxSum, func(s *segment.Derived) float64 { return s.OSRMDistance }},
	{ColSegmentActualTime, plainSum, func(s *segment.Derived) float64 { return s.SegmentActualTime }},
	{ColSegmentOSRMTime, plainSum, func(s *segment.Derived) float64 { return s.SegmentOSRMTime }},
	{ColSegmentOSRMDistance, plainSum, func(s *segment.Derived) float64 { return s.SegmentOSRMDistance }},
	{ColTimeTakenOD, distinctSum, func(s *segment.Derived) float64 { return s.DurationHours }},
	{ColStartScanToEndScan, distinctSum, func(s *segment.Derived) float64 { return s.StartScanToEndScan }},
}

// group holds the segment indexes of one trip in input order.
type group struct {
	id   string
	rows []int
}

// Aggregate reduces segments to one record per trip_id. The input is not modified.
// Trips missing any metric or location set are dropped with an
// IncompleteJoinWarning; trips with conflicting route_type or route_schedule_id
// are dropped with a ConsistencyError (or fail the call when opt.Strict is set).
// Trips come back sorted by trip_id.
func Aggregate(segs []segment.Derived, opt Options) (*Result, error) {
	logger := opt.Logger
	if logger == nil {
		logger = log.Log
	}
	groups := groupByTrip(segs)

	// Each metric is an independent pass over the groups; results land in their
	// own slot and are joined once every pass has finished.
	tables := make([]map[string]float64, len(metrics))
	var g errgroup.Group
	for i := range metrics {
		i := i
		g.Go(func() error {
			tables[i] = reduceMetric(segs, groups, metrics[i], opt.CollapseDuplicates)
			return nil
		})
	}
	var attrs map[string]*attributes
	g.Go(func() error {
		attrs = collectAttributes(segs, groups)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("aggregate trips: %w", err)
	}

	res := &Result{Trips: make([]Record, 0, len(groups))}
	for _, gr := range groups {
		a := attrs[gr.id]
		if bad := a.inconsistencies(gr.id); len(bad) > 0 {
			if opt.Strict {
				return nil, bad[0]
			}
			for _, e := range bad {
				res.Diagnostics.Add(e)
			}
			continue
		}
		rec := Record{
			TripID:                gr.id,
			RouteScheduleID:       first(a.routeSchedules),
			RouteType:             segment.RouteType(first(a.routeTypes)),
			TripCreationTime:      a.created,
			SourceCities:          a.srcCities,
			DestinationCities:     a.dstCities,
			SourceStates:          a.srcStates,
			DestinationStates:     a.dstStates,
			SourceCityStates:      a.srcCityStates,
			DestinationCityStates: a.dstCityStates,
		}
		missing := a.missing()
		for i, m := range metrics {
			v, ok := tables[i][gr.id]
			if !ok {
				missing = append(missing, m.col)
				continue
			}
			rec.SetValue(m.col, v)
		}
		if len(missing) > 0 {
			res.Diagnostics.Add(&diag.IncompleteJoinWarning{Group: "trip", Key: gr.id, Missing: missing})
			continue
		}
		res.Trips = append(res.Trips, rec)
	}
	sort.Slice(res.Trips, func(i, j int) bool { return res.Trips[i].TripID < res.Trips[j].TripID })

	logger.WithFields(log.Fields{
		"segments": len(segs),
		"trips":    len(res.Trips),
		"dropped":  len(groups) - len(res.Trips),
	}).Debug("trips aggregated")
	return res, nil
}

func groupByTrip(segs []segment.Derived) []group {
	pos := map[string]int{}
	var groups []group
	for i := range segs {
		id := segs[i].TripID
		p, ok := pos[id]
		if !ok {
			p = len(groups)
			pos[id] = p
			groups = append(groups, group{id: id})
		}
		groups[p].rows = append(groups[p].rows, i)
	}
	return groups
}

func reduceMetric(segs []segment.Derived, groups []group, m metric, collapse bool) map[string]float64 {
	out := make(map[string]float64, len(groups))
	for _, gr := range groups {
		var (
			v  float64
			ok bool
		)
		switch m.reduce {
		case checkpointMaxSum:
			v, ok = sumCheckpointMaxima(segs, gr.rows, m.value)
		case plainSum:
			v, ok = sumAll(segs, gr.rows, m.value)
		case distinctSum:
			v, ok = sumReadings(segs, gr.rows, m.value, collapse)
		}
		if ok {
			out[gr.id] = v
		}
	}
	return out
}

// sumCheckpointMaxima groups rows by their cumulative start_scan_to_end_scan
// value, keeps the largest metric value per checkpoint and sums those maxima in
// ascending checkpoint order. Rows with a NaN checkpoint or metric are skipped.
func sumCheckpointMaxima(segs []segment.Derived, rows []int, value func(*segment.Derived) float64) (float64, bool) {
	maxima := map[float64]float64{}
	for _, i := range rows {
		cp, x := segs[i].StartScanToEndScan, value(&segs[i])
		if math.IsNaN(cp) || math.IsNaN(x) {
			continue
		}
		if cur, ok := maxima[cp]; !ok || x > cur {
			maxima[cp] = x
		}
	}
	if len(maxima) == 0 {
		return 0, false
	}
	cps := make([]float64, 0, len(maxima))
	for cp := range maxima {
		cps = append(cps, cp)
	}
	sort.Float64s(cps)
	var sum float64
	for _, cp := range cps {
		sum += maxima[cp]
	}
	return sum, true
}

func sumAll(segs []segment.Derived, rows []int, value func(*segment.Derived) float64) (float64, bool) {
	var (
		sum float64
		n   int
	)
	for _, i := range rows {
		if x := value(&segs[i]); !math.IsNaN(x) {
			sum += x
			n++
		}
	}
	return sum, n > 0
}

// sumReadings sums the trip's readings in ascending order, once per distinct
// value when collapse is set.
func sumReadings(segs []segment.Derived, rows []int, value func(*segment.Derived) float64, collapse bool) (float64, bool) {
	vals := make([]float64, 0, len(rows))
	seen := map[float64]bool{}
	for _, i := range rows {
		x := value(&segs[i])
		if math.IsNaN(x) {
			continue
		}
		if collapse {
			if seen[x] {
				continue
			}
			seen[x] = true
		}
		vals = append(vals, x)
	}
	if len(vals) == 0 {
		return 0, false
	}
	sort.Float64s(vals)
	var sum float64
	for _, x := range vals {
		sum += x
	}
	return sum, true
}

// attributes are the non-numeric fields of a trip, each a distinct set in first-seen order.
type attributes struct {
	routeTypes     []string
	routeSchedules []string
	created        time.Time

	srcCities, dstCities         []string
	srcStates, dstStates         []string
	srcCityStates, dstCityStates []string
}

func collectAttributes(segs []segment.Derived, groups []group) map[string]*attributes {
	out := make(map[string]*attributes, len(groups))
	for _, gr := range groups {
		a := &attributes{}
		var (
			types, schedules, sc, dc, ss, ds, scs, dcs distinct
		)
		for _, i := range gr.rows {
			s := &segs[i]
			types.add(string(s.RouteType))
			schedules.add(s.RouteScheduleID)
			sc.add(s.Source.City)
			dc.add(s.Destination.City)
			ss.add(s.Source.State)
			ds.add(s.Destination.State)
			scs.add(s.Source.CityState())
			dcs.add(s.Destination.CityState())
			if t := s.TripCreationTime; !t.IsZero() && (a.created.IsZero() || t.Before(a.created)) {
				a.created = t
			}
		}
		a.routeTypes, a.routeSchedules = types.values, schedules.values
		a.srcCities, a.dstCities = sc.values, dc.values
		a.srcStates, a.dstStates = ss.values, ds.values
		a.srcCityStates, a.dstCityStates = scs.values, dcs.values
		out[gr.id] = a
	}
	return out
}

func (a *attributes) inconsistencies(id string) []error {
	var errs []error
	if len(a.routeTypes) > 1 {
		errs = append(errs, &diag.ConsistencyError{Group: "trip", Key: id, Field: ColRouteType, Values: a.routeTypes})
	}
	if len(a.routeSchedules) > 1 {
		errs = append(errs, &diag.ConsistencyError{Group: "trip", Key: id, Field: ColRouteScheduleID, Values: a.routeSchedules})
	}
	return errs
}

// missing lists the required non-numeric fields that have no value.
func (a *attributes) missing() []string {
	var m []string
	check := func(name string, vals []string) {
		if len(vals) == 0 {
			m = append(m, name)
		}
	}
	check(ColRouteType, a.routeTypes)
	check(ColRouteScheduleID, a.routeSchedules)
	check(ColSourceCities, a.srcCities)
	check(ColDestinationCities, a.dstCities)
	check(ColSourceStates, a.srcStates)
	check(ColDestinationStates, a.dstStates)
	return m
}

// distinct accumulates non-empty strings once each, keeping first-seen order.
type distinct struct {
	seen   map[string]bool
	values []string
}

func (d *distinct) add(v string) {
	if v == "" {
		return
	}
	if d.seen == nil {
		d.seen = map[string]bool{}
	}
	if d.seen[v] {
		return
	}
	d.seen[v] = true
	d.values = append(d.values, v)
}

func first(vals []string) string {
	if len(vals) == 0 {
		return ""
	}
	return vals[0]
}

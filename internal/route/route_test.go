package route

import (
	"errors"
	"testing"

	"github.com/apex/log"
	"github.com/apex/log/handlers/discard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/tripstat-cli/internal/diag"
	"github.com/KaramelBytes/tripstat-cli/internal/segment"
	"github.com/KaramelBytes/tripstat-cli/internal/trip"
)

var opt = Options{Logger: &log.Logger{Handler: discard.Default, Level: log.ErrorLevel}}

func seg(route, tripID, src, dst string) segment.Derived {
	return segment.Derived{
		TripID:          tripID,
		RouteScheduleID: route,
		RouteType:       segment.Carting,
		Source:          segment.Location{City: src, State: "S" + src},
		Destination:     segment.Location{City: dst, State: "S" + dst},
	}
}

func TestAggregate_Cardinality(t *testing.T) {
	segs := []segment.Derived{
		seg("R1", "T1", "A", "C"),
		seg("R1", "T2", "B", "C"),
		seg("R1", "T3", "A", "C"),
		seg("R1", "T3", "B", "C"),
	}
	trips := []trip.Record{
		{TripID: "T1", RouteScheduleID: "R1", ActualDistance: 10},
		{TripID: "T2", RouteScheduleID: "R1", ActualDistance: 20},
		{TripID: "T3", RouteScheduleID: "R1", ActualDistance: 60},
	}
	res, err := Aggregate(trips, segs, opt)
	require.NoError(t, err)
	require.Len(t, res.Routes, 1)
	r := res.Routes[0]
	assert.Equal(t, 3, r.TripCount)
	assert.Equal(t, 2, r.NumSourceCities)
	assert.Equal(t, 1, r.NumDestinationCities)
	assert.Equal(t, 2, r.NumSourceStates)
	assert.Equal(t, 1, r.NumDestinationStates)
	assert.InDelta(t, 30.0, r.AvgActualDistance, 1e-12)
	assert.Equal(t, []string{"Carting"}, r.RouteTypes)
	assert.Equal(t, "A B -- C", r.Route)
	assert.Equal(t, "A TO C", r.SourceToDestination)
	assert.Equal(t, []string{"A SA", "B SB"}, r.SourceCityStates)
	assert.Empty(t, res.Diagnostics)
}

func TestAggregate_DropsRoutesWithoutTrips(t *testing.T) {
	segs := []segment.Derived{seg("R2", "T9", "A", "B"), seg("R1", "T1", "A", "B")}
	trips := []trip.Record{{TripID: "T1", RouteScheduleID: "R1", ActualDistance: 5}}
	res, err := Aggregate(trips, segs, opt)
	require.NoError(t, err)
	require.Len(t, res.Routes, 1)
	assert.Equal(t, "R1", res.Routes[0].RouteScheduleID)

	require.Len(t, res.Diagnostics, 1)
	var w *diag.IncompleteJoinWarning
	require.True(t, errors.As(res.Diagnostics[0], &w))
	assert.Equal(t, "R2", w.Key)
	assert.Equal(t, []string{"trips"}, w.Missing)
}

func TestAggregate_DropsRoutesWithEmptyLocations(t *testing.T) {
	s := seg("R1", "T1", "A", "B")
	s.Destination = segment.Location{}
	trips := []trip.Record{{TripID: "T1", RouteScheduleID: "R1"}}
	res, err := Aggregate(trips, []segment.Derived{s}, opt)
	require.NoError(t, err)
	assert.Empty(t, res.Routes)
	assert.Equal(t, 1, res.Diagnostics.Count(diag.KindIncompleteJoin))
}

func TestAggregate_SortedByRouteID(t *testing.T) {
	segs := []segment.Derived{seg("R3", "T3", "A", "B"), seg("R1", "T1", "A", "B"), seg("R2", "T2", "A", "B")}
	trips := []trip.Record{
		{TripID: "T3", RouteScheduleID: "R3"},
		{TripID: "T1", RouteScheduleID: "R1"},
		{TripID: "T2", RouteScheduleID: "R2"},
	}
	res, err := Aggregate(trips, segs, opt)
	require.NoError(t, err)
	var ids []string
	for _, r := range res.Routes {
		ids = append(ids, r.RouteScheduleID)
	}
	assert.Equal(t, []string{"R1", "R2", "R3"}, ids)
}

func TestLabel(t *testing.T) {
	assert.Equal(t, "Bengaluru TO Pune", Label("Bengaluru Hosur", "Mumbai Pune"))
	assert.Equal(t, "", Label("", "Pune"))
}

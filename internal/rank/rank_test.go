package rank

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/closest-tornado/internal/track"
	"github.com/sells-group/closest-tornado/pkg/geocode"
)

func width(m float64) *float64 { return &m }

// metersNorth returns the point d meters due north of p.
func metersNorth(p geocode.Point, d float64) geocode.Point {
	return geocode.Point{Lat: p.Lat + d/EarthRadiusMeters*180/math.Pi, Lon: p.Lon}
}

func TestRank_DegenerateTrackCenterline(t *testing.T) {
	tr := track.Track{ID: 1, Begin: geocode.Point{Lat: 35.40, Lon: -97.50}}
	q := geocode.Point{Lat: 35.41, Lon: -97.50}

	got, err := New().Rank(q, []track.Track{tr}, 5)
	require.NoError(t, err)
	require.Len(t, got, 1)

	r := got[0]
	assert.InDelta(t, 1112, r.CenterlineMeters, 5)
	assert.Equal(t, r.CenterlineMeters, r.PrimaryMeters)
	assert.Nil(t, r.EdgeMeters)
	assert.Nil(t, r.Corridor)
	assert.Equal(t, "centerline", r.DistanceType())
	assert.InDeltaSlice(t, []float64{-97.50, 35.40}, r.ClosestPoint.FlatCoords(), 1e-9)
}

func TestRank_WidthCorrection(t *testing.T) {
	tr := track.Track{ID: 1, Begin: geocode.Point{Lat: 35.40, Lon: -97.50}, WidthMeters: width(100)}
	q := geocode.Point{Lat: 35.41, Lon: -97.50}

	got, err := New().Rank(q, []track.Track{tr}, 5)
	require.NoError(t, err)

	r := got[0]
	require.NotNil(t, r.EdgeMeters)
	assert.InDelta(t, r.CenterlineMeters-50, *r.EdgeMeters, 1e-9)
	assert.Equal(t, *r.EdgeMeters, r.PrimaryMeters)
	assert.Equal(t, "estimated_damage_path_edge", r.DistanceType())
	require.NotNil(t, r.Corridor)
}

func TestRank_EdgeFloorsAtZero(t *testing.T) {
	tr := track.Track{ID: 1, Begin: geocode.Point{Lat: 35.40, Lon: -97.50}, WidthMeters: width(5000)}
	got, err := New().Rank(geocode.Point{Lat: 35.41, Lon: -97.50}, []track.Track{tr}, 1)
	require.NoError(t, err)
	assert.Zero(t, *got[0].EdgeMeters)
	assert.Zero(t, got[0].PrimaryMeters)
}

func TestRank_ZeroWidthKeepsEdgeWithoutCorridor(t *testing.T) {
	tr := track.Track{ID: 1, Begin: geocode.Point{Lat: 35.40, Lon: -97.50}, WidthMeters: width(0)}
	got, err := New().Rank(geocode.Point{Lat: 35.41, Lon: -97.50}, []track.Track{tr}, 1)
	require.NoError(t, err)
	require.NotNil(t, got[0].EdgeMeters)
	assert.Equal(t, got[0].CenterlineMeters, *got[0].EdgeMeters)
	assert.Nil(t, got[0].Corridor)
}

func TestRank_NegativeWidthIsIgnored(t *testing.T) {
	tr := track.Track{ID: 1, Begin: geocode.Point{Lat: 35.40, Lon: -97.50}, WidthMeters: width(-200)}
	got, err := New().Rank(geocode.Point{Lat: 35.41, Lon: -97.50}, []track.Track{tr}, 1)
	require.NoError(t, err)
	assert.Nil(t, got[0].EdgeMeters)
	assert.Nil(t, got[0].Corridor)
	assert.Equal(t, got[0].CenterlineMeters, got[0].PrimaryMeters)
	assert.Equal(t, "centerline", got[0].DistanceType())
}

func TestRank_WidthReordersCandidates(t *testing.T) {
	q := geocode.Point{Lat: 35.0, Lon: -97.0}
	near := track.Track{ID: 2, Begin: metersNorth(q, 1000), WidthMeters: width(0)}
	far := track.Track{ID: 1, Begin: metersNorth(q, 2000), WidthMeters: width(3000)}

	// Raw centerline order puts near first; far's corridor edge is closer.
	got, err := New().Rank(q, []track.Track{near, far}, 5)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, int64(1), got[0].Track.ID)
	assert.InDelta(t, 2000, got[0].CenterlineMeters, 1)
	assert.InDelta(t, 500, got[0].PrimaryMeters, 1)
	assert.InDelta(t, 1000, got[1].PrimaryMeters, 1)
}

func TestRank_CorridorEdgeBeatsCenterline(t *testing.T) {
	q := geocode.Point{Lat: 35.0, Lon: -97.0}
	a := track.Track{ID: 10, Begin: metersNorth(q, 1000), WidthMeters: width(2000)}
	b := track.Track{ID: 20, Begin: metersNorth(q, 2000), WidthMeters: width(0)}

	got, err := New().Rank(q, []track.Track{b, a}, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(10), got[0].Track.ID)
	assert.InDelta(t, 0, got[0].PrimaryMeters, 1e-6)
	assert.InDelta(t, 2000, got[1].PrimaryMeters, 1)
}

func TestRank_ProjectsOntoSegment(t *testing.T) {
	// East-west track; the query is 1 km north of its middle.
	tr := track.Track{
		ID:    1,
		Begin: geocode.Point{Lat: 35.0, Lon: -97.1},
		End:   &geocode.Point{Lat: 35.0, Lon: -96.9},
	}
	q := metersNorth(geocode.Point{Lat: 35.0, Lon: -97.0}, 1000)

	got, err := New().Rank(q, []track.Track{tr}, 1)
	require.NoError(t, err)
	assert.InDelta(t, 1000, got[0].CenterlineMeters, 10)

	c := got[0].ClosestPoint.FlatCoords()
	assert.InDelta(t, -97.0, c[0], 1e-3)
	assert.InDelta(t, 35.0, c[1], 1e-3)
}

func TestRank_ClosestPointIsEndpointBeyondSegment(t *testing.T) {
	tr := track.Track{
		ID:    1,
		Begin: geocode.Point{Lat: 35.0, Lon: -97.1},
		End:   &geocode.Point{Lat: 35.0, Lon: -97.0},
	}
	q := geocode.Point{Lat: 35.0, Lon: -96.9}

	got, err := New().Rank(q, []track.Track{tr}, 1)
	require.NoError(t, err)
	assert.InDelta(t, Distance(q, *tr.End), got[0].CenterlineMeters, 1e-6)
	assert.InDeltaSlice(t, []float64{-97.0, 35.0}, got[0].ClosestPoint.FlatCoords(), 1e-9)
}

func TestRank_StableTieBreak(t *testing.T) {
	p := geocode.Point{Lat: 35.0, Lon: -97.0}
	var candidates []track.Track
	for id := int64(1); id <= 4; id++ {
		candidates = append(candidates, track.Track{ID: id, Begin: p})
	}

	got, err := New().Rank(p, candidates, 0)
	require.NoError(t, err)
	require.Len(t, got, 4)
	for i, r := range got {
		assert.Equal(t, int64(i+1), r.Track.ID)
	}
}

func TestRank_TruncatesToK(t *testing.T) {
	q := geocode.Point{Lat: 35.0, Lon: -97.0}
	var candidates []track.Track
	for i := 10; i >= 1; i-- {
		candidates = append(candidates, track.Track{ID: int64(i), Begin: metersNorth(q, float64(i)*100)})
	}

	got, err := New().Rank(q, candidates, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []int64{1, 2, 3}, []int64{got[0].Track.ID, got[1].Track.ID, got[2].Track.ID})

	all, err := New().Rank(q, candidates, 50)
	require.NoError(t, err)
	assert.Len(t, all, 10)
}

func TestRank_Idempotent(t *testing.T) {
	q := geocode.Point{Lat: 35.33, Lon: -97.48}
	candidates := []track.Track{
		{ID: 1, Begin: geocode.Point{Lat: 35.3098, Lon: -97.6615}, End: &geocode.Point{Lat: 35.3187, Lon: -97.4205}, WidthMeters: width(1737)},
		{ID: 2, Begin: geocode.Point{Lat: 35.0567, Lon: -97.9337}, End: &geocode.Point{Lat: 35.4533, Lon: -97.3733}, WidthMeters: width(1609)},
		{ID: 3, Begin: geocode.Point{Lat: 35.4716, Lon: -98.0336}, End: &geocode.Point{Lat: 35.5029, Lon: -97.8471}},
	}

	r := New()
	first, err := r.Rank(q, candidates, 5)
	require.NoError(t, err)
	second, err := r.Rank(q, candidates, 5)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestRank_NoCandidates(t *testing.T) {
	_, err := New().Rank(geocode.Point{}, nil, 5)
	assert.True(t, errors.Is(err, ErrNoCandidates))
}

func TestRank_TrackGeometry(t *testing.T) {
	tr := track.Track{ID: 1, Begin: geocode.Point{Lat: 35.0, Lon: -97.0}, End: &geocode.Point{Lat: 35.1, Lon: -96.9}}
	got, err := New().Rank(geocode.Point{Lat: 35, Lon: -97}, []track.Track{tr}, 1)
	require.NoError(t, err)
	assert.Equal(t, []float64{-97.0, 35.0, -96.9, 35.1}, got[0].TrackGeometry.FlatCoords())
	assert.Equal(t, track.SRID, got[0].ClosestPoint.SRID())
}

func TestRank_QuadrantSegmentsOption(t *testing.T) {
	tr := track.Track{ID: 1, Begin: geocode.Point{Lat: 35.40, Lon: -97.50}, End: &geocode.Point{Lat: 35.45, Lon: -97.40}, WidthMeters: width(400)}
	q := geocode.Point{Lat: 35.30, Lon: -97.50}

	got, err := New(WithQuadrantSegments(4)).Rank(q, []track.Track{tr}, 1)
	require.NoError(t, err)
	require.NotNil(t, got[0].Corridor)
	assert.Equal(t, 2*(2*4+1)+1, got[0].Corridor.LinearRing(0).NumCoords())

	got, err = New(WithQuadrantSegments(0)).Rank(q, []track.Track{tr}, 1)
	require.NoError(t, err)
	assert.Equal(t, 2*(2*DefaultQuadrantSegments+1)+1, got[0].Corridor.LinearRing(0).NumCoords(), "non-positive keeps the default")
}

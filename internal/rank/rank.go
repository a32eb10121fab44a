// Package rank orders candidate tornado tracks by distance from a point.
//
// Distances are geodesic on a sphere of the Earth's mean radius. A track
// with a reported width is treated as a corridor: its edge distance is the
// centerline distance less half the width, floored at zero, and that edge
// distance is what ranks it.
package rank

import (
	"math"
	"sort"

	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/closest-tornado/internal/track"
	"github.com/sells-group/closest-tornado/pkg/geocode"
)

// EarthRadiusMeters is the IUGG mean Earth radius.
const EarthRadiusMeters = 6371008.8

// DefaultQuadrantSegments is the number of segments per quarter circle in
// corridor outlines.
const DefaultQuadrantSegments = 8

// ErrNoCandidates means there was nothing to rank.
var ErrNoCandidates = eris.New("rank: no candidate tracks")

// Result is one ranked track with its distances and display geometry.
type Result struct {
	Track            track.Track
	CenterlineMeters float64
	// EdgeMeters is set only when the track has a width.
	EdgeMeters    *float64
	PrimaryMeters float64

	TrackGeometry *geom.LineString
	ClosestPoint  *geom.Point
	// Corridor is nil when the width is unknown or zero.
	Corridor *geom.Polygon
}

// DistanceType names what PrimaryMeters measures.
func (r Result) DistanceType() string {
	if r.EdgeMeters != nil {
		return "estimated_damage_path_edge"
	}
	return "centerline"
}

// Ranker ranks candidates. The zero value is not usable; call New.
type Ranker struct {
	quadrantSegments int
}

// Option configures a Ranker.
type Option func(*Ranker)

// WithQuadrantSegments sets the corridor outline resolution.
func WithQuadrantSegments(n int) Option {
	return func(r *Ranker) {
		if n > 0 {
			r.quadrantSegments = n
		}
	}
}

// New creates a Ranker.
func New(opts ...Option) *Ranker {
	r := &Ranker{quadrantSegments: DefaultQuadrantSegments}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Rank computes distances from p to every candidate, sorts ascending by
// primary distance and returns the first k. Equal distances keep candidate
// order. k <= 0 returns every candidate.
func (r *Ranker) Rank(p geocode.Point, candidates []track.Track, k int) ([]Result, error) {
	if len(candidates) == 0 {
		return nil, ErrNoCandidates
	}

	q := toS2(p)
	results := make([]Result, len(candidates))
	for i, t := range candidates {
		results[i] = r.measure(q, t)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].PrimaryMeters < results[j].PrimaryMeters
	})

	if k > 0 && k < len(results) {
		results = results[:k]
	}
	return results, nil
}

func (r *Ranker) measure(q s2.Point, t track.Track) Result {
	closest := closestOnTrack(q, t)
	center := angleMeters(q.Distance(closest))

	res := Result{
		Track:            t,
		CenterlineMeters: center,
		PrimaryMeters:    center,
		TrackGeometry:    t.LineString(),
		ClosestPoint:     pointGeom(s2.LatLngFromPoint(closest)),
	}

	// A negative width is a data error and is treated as unreported.
	if t.WidthMeters != nil && *t.WidthMeters >= 0 {
		half := *t.WidthMeters / 2
		edge := math.Max(0, center-half)
		res.EdgeMeters = &edge
		res.PrimaryMeters = edge
		if half > 0 {
			res.Corridor = corridor(t, half, r.quadrantSegments)
		}
	}
	return res
}

// closestOnTrack projects q onto the track's great-circle segment.
func closestOnTrack(q s2.Point, t track.Track) s2.Point {
	a := toS2(t.Begin)
	b := toS2(t.EndPoint())
	if a.ApproxEqual(b) {
		return a
	}
	return s2.Project(q, a, b)
}

func toS2(p geocode.Point) s2.Point {
	return s2.PointFromLatLng(s2.LatLngFromDegrees(p.Lat, p.Lon))
}

func angleMeters(a s1.Angle) float64 {
	return a.Radians() * EarthRadiusMeters
}

func pointGeom(ll s2.LatLng) *geom.Point {
	return geom.NewPointFlat(geom.XY, []float64{ll.Lng.Degrees(), ll.Lat.Degrees()}).SetSRID(track.SRID)
}

// Distance returns the geodesic distance in meters between two points.
func Distance(a, b geocode.Point) float64 {
	return angleMeters(toS2(a).Distance(toS2(b)))
}

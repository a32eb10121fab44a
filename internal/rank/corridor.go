package rank

import (
	"math"

	"github.com/twpayne/go-geom"

	"github.com/sells-group/closest-tornado/internal/track"
)

// localFrame is an equirectangular projection centred on a reference
// latitude and longitude, in meters. Over the few tens of kilometres of a
// tornado track it agrees with geodesic distance to well under a percent.
type localFrame struct {
	lat0, lon0 float64 // degrees
	cosLat0    float64
}

func newLocalFrame(lat0, lon0 float64) localFrame {
	return localFrame{lat0: lat0, lon0: lon0, cosLat0: math.Cos(lat0 * math.Pi / 180)}
}

func (f localFrame) forward(lat, lon float64) (x, y float64) {
	x = (lon - f.lon0) * math.Pi / 180 * EarthRadiusMeters * f.cosLat0
	y = (lat - f.lat0) * math.Pi / 180 * EarthRadiusMeters
	return x, y
}

func (f localFrame) inverse(x, y float64) (lat, lon float64) {
	lat = f.lat0 + y/EarthRadiusMeters*180/math.Pi
	lon = f.lon0 + x/(EarthRadiusMeters*f.cosLat0)*180/math.Pi
	return lat, lon
}

// corridor buffers the track by radius meters with round caps, returning a
// counter-clockwise ring in lon/lat. A degenerate track yields a circle.
func corridor(t track.Track, radius float64, quadSegs int) *geom.Polygon {
	begin, end := t.Begin, t.EndPoint()
	frame := newLocalFrame((begin.Lat+end.Lat)/2, (begin.Lon+end.Lon)/2)

	ax, ay := frame.forward(begin.Lat, begin.Lon)
	bx, by := frame.forward(end.Lat, end.Lon)

	step := math.Pi / 2 / float64(quadSegs)
	var ring [][2]float64

	if math.Hypot(bx-ax, by-ay) < 1e-9 {
		for i := 0; i < 4*quadSegs; i++ {
			a := float64(i) * step
			ring = append(ring, [2]float64{ax + radius*math.Cos(a), ay + radius*math.Sin(a)})
		}
	} else {
		// Cap around the end point from the right side of the direction of
		// travel to the left, then around the begin point back again.
		theta := math.Atan2(by-ay, bx-ax)
		for i := 0; i <= 2*quadSegs; i++ {
			a := theta - math.Pi/2 + float64(i)*step
			ring = append(ring, [2]float64{bx + radius*math.Cos(a), by + radius*math.Sin(a)})
		}
		for i := 0; i <= 2*quadSegs; i++ {
			a := theta + math.Pi/2 + float64(i)*step
			ring = append(ring, [2]float64{ax + radius*math.Cos(a), ay + radius*math.Sin(a)})
		}
	}
	ring = append(ring, ring[0])

	flat := make([]float64, 0, 2*len(ring))
	for _, v := range ring {
		lat, lon := frame.inverse(v[0], v[1])
		flat = append(flat, lon, lat)
	}
	return geom.NewPolygonFlat(geom.XY, flat, []int{len(flat)}).SetSRID(track.SRID)
}

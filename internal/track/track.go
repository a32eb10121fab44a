// Package track stores historical tornado tracks and answers coarse
// nearest-candidate queries against them. Precise ranking is done by the
// rank package; a Store only has to return a superset in roughly the right
// order.
package track

import (
	"context"
	"time"

	"github.com/twpayne/go-geom"

	"github.com/sells-group/closest-tornado/pkg/geocode"
)

// MetersPerYard converts reported path widths to meters.
const MetersPerYard = 0.9144

// SRID is the spatial reference of every stored geometry (WGS-84).
const SRID = 4326

// Attributes are the descriptive fields carried through from the NOAA Storm
// Events record. Empty strings and nil pointers mean the field was not
// reported.
type Attributes struct {
	BeginTime   *time.Time
	EndTime     *time.Time
	State       string
	CZName      string
	WFO         string
	FScale      string
	LengthMiles *float64
	WidthYards  *int
}

// Track is one tornado as a straight line from its begin to its end point.
// A nil End is a degenerate line at Begin.
type Track struct {
	ID          int64
	Begin       geocode.Point
	End         *geocode.Point
	WidthMeters *float64
	Attributes
}

// EndPoint returns End, or Begin for a degenerate track.
func (t Track) EndPoint() geocode.Point {
	if t.End == nil {
		return t.Begin
	}
	return *t.End
}

// LineString returns the track as a two-vertex line in lon/lat order.
func (t Track) LineString() *geom.LineString {
	end := t.EndPoint()
	return geom.NewLineStringFlat(geom.XY, []float64{
		t.Begin.Lon, t.Begin.Lat,
		end.Lon, end.Lat,
	}).SetSRID(SRID)
}

// WidthFromYards converts a reported width in yards to meters.
func WidthFromYards(yards *int) *float64 {
	if yards == nil {
		return nil
	}
	m := float64(*yards) * MetersPerYard
	return &m
}

// DatasetMeta describes the loaded dataset.
type DatasetMeta struct {
	DataLastRefreshed  *time.Time `json:"data_last_refreshed"`
	DatasetVersion     *string    `json:"dataset_version"`
	UpdatedAt          *time.Time `json:"metadata_updated_at"`
	EventCount         int64      `json:"tornado_event_count"`
	LatestEventBeginDT *time.Time `json:"latest_event_begin_dt"`
}

// Store is the spatial query collaborator used by the lookup service.
type Store interface {
	// Nearest returns up to limit tracks in approximate ascending distance
	// from p.
	Nearest(ctx context.Context, p geocode.Point, limit int) ([]Track, error)
	Meta(ctx context.Context) (*DatasetMeta, error)
	// Upsert inserts or replaces tracks keyed by ID.
	Upsert(ctx context.Context, tracks []Track) (int64, error)
	// SetVersion records a dataset refresh.
	SetVersion(ctx context.Context, version string, refreshed time.Time) error
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

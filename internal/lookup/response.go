package lookup

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/closest-tornado/internal/rank"
)

// isoLayout matches the naive ISO-8601 timestamps of the Storm Events data.
const isoLayout = "2006-01-02T15:04:05"

// DataSource attributes the hazard dataset.
type DataSource struct {
	Name     string `json:"name"`
	Coverage string `json:"coverage"`
}

var noaaSource = DataSource{
	Name:     "NOAA NCEI Storm Events Database (Storm Data)",
	Coverage: "1950–present (updated periodically)",
}

// QueryEcho reports where the lookup was centred and how it was resolved.
type QueryEcho struct {
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	Provider  string  `json:"provider"`
	MatchType *string `json:"match_type"`
}

// TornadoResult is one ranked track as returned to clients.
type TornadoResult struct {
	EventID          int64    `json:"event_id"`
	DistanceM        float64  `json:"distance_m"`
	DistanceMiles    float64  `json:"distance_miles"`
	DistanceKM       float64  `json:"distance_km"`
	SelectedUnit     Units    `json:"selected_unit"`
	SelectedDistance float64  `json:"selected_distance"`
	DistanceType     string   `json:"distance_type"`
	TorFScale        *string  `json:"tor_f_scale"`
	BeginDT          *string  `json:"begin_dt"`
	EndDT            *string  `json:"end_dt"`
	State            *string  `json:"state"`
	CZName           *string  `json:"cz_name"`
	WFO              *string  `json:"wfo"`
	TorLengthMiles   *float64 `json:"tor_length_miles"`
	TorWidthYards    *int     `json:"tor_width_yards"`

	TrackGeoJSON        *geojson.Geometry `json:"track_geojson"`
	ClosestPointGeoJSON *geojson.Geometry `json:"closest_point_geojson"`
	CorridorGeoJSON     *geojson.Geometry `json:"corridor_geojson"`

	Notes      []string   `json:"notes"`
	DataSource DataSource `json:"data_source"`
}

// Response is the full answer to a closest-tornado lookup.
type Response struct {
	Query      QueryEcho       `json:"query"`
	Result     TornadoResult   `json:"result"`
	TopResults []TornadoResult `json:"top_results"`
	ShareURL   string          `json:"share_url"`
}

func notesFor(r rank.Result) []string {
	notes := []string{
		"Tracks are built from Storm Events begin/end points; the real ground path can differ.",
		"Geocoding uses U.S. Census first, with OpenStreetMap Nominatim fallback for non-street inputs.",
	}
	if r.EdgeMeters != nil {
		return append(notes, "Distance uses reported tornado width to estimate distance to the damage-path edge (width/2 buffer).")
	}
	return append(notes, "Width was not available; distance is to the track centerline only.")
}

func serialize(r rank.Result, units Units) (TornadoResult, error) {
	t := r.Track
	out := TornadoResult{
		EventID:          t.ID,
		DistanceM:        r.PrimaryMeters,
		DistanceMiles:    Miles.Convert(r.PrimaryMeters),
		DistanceKM:       Kilometers.Convert(r.PrimaryMeters),
		SelectedUnit:     units,
		SelectedDistance: units.Convert(r.PrimaryMeters),
		DistanceType:     r.DistanceType(),
		TorFScale:        optString(t.FScale),
		State:            optString(t.State),
		CZName:           optString(t.CZName),
		WFO:              optString(t.WFO),
		TorLengthMiles:   t.LengthMiles,
		TorWidthYards:    t.WidthYards,
		Notes:            notesFor(r),
		DataSource:       noaaSource,
	}
	if t.BeginTime != nil {
		s := t.BeginTime.Format(isoLayout)
		out.BeginDT = &s
	}
	if t.EndTime != nil {
		s := t.EndTime.Format(isoLayout)
		out.EndDT = &s
	}

	var err error
	if out.TrackGeoJSON, err = encodeGeometry(r.TrackGeometry); err != nil {
		return out, err
	}
	if out.ClosestPointGeoJSON, err = encodeGeometry(r.ClosestPoint); err != nil {
		return out, err
	}
	if r.Corridor != nil {
		if out.CorridorGeoJSON, err = encodeGeometry(r.Corridor); err != nil {
			return out, err
		}
	}
	return out, nil
}

func encodeGeometry(g geom.T) (*geojson.Geometry, error) {
	gj, err := geojson.Encode(g)
	if err != nil {
		return nil, eris.Wrap(err, "lookup: encode geojson")
	}
	return gj, nil
}

func optString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

package track

import (
	"embed"
	"encoding/csv"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/closest-tornado/pkg/geocode"
)

//go:embed sample/tornado_sample.csv
var sampleFS embed.FS

// SampleCSV opens the bundled sample dataset.
func SampleCSV() (io.ReadCloser, error) {
	f, err := sampleFS.Open("sample/tornado_sample.csv")
	return f, eris.Wrap(err, "track: open sample csv")
}

// csvColumns are the columns LoadCSV requires in the header row.
var csvColumns = []string{
	"event_id", "begin_dt", "end_dt", "state", "cz_name", "wfo", "tor_f_scale",
	"tor_length_miles", "tor_width_yards",
	"begin_lat", "begin_lon", "end_lat", "end_lon",
}

var csvTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"02-Jan-06 15:04:05",
}

// LoadCSV parses Storm Events style rows into tracks. Rows without a begin
// coordinate cannot be placed and are skipped; the skipped count is returned.
func LoadCSV(r io.Reader) ([]Track, int, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, 0, eris.Wrap(err, "track: read csv header")
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, c := range csvColumns {
		if _, ok := idx[c]; !ok {
			return nil, 0, eris.Errorf("track: csv missing column %q", c)
		}
	}

	var (
		tracks  []Track
		skipped int
		line    = 1
	)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, 0, eris.Wrapf(err, "track: read csv line %d", line)
		}

		get := func(col string) string {
			i := idx[col]
			if i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}

		t, ok, err := parseRow(get)
		if err != nil {
			return nil, 0, eris.Wrapf(err, "track: csv line %d", line)
		}
		if !ok {
			zap.L().Debug("track: skipping row without begin coordinate", zap.Int("line", line))
			skipped++
			continue
		}
		tracks = append(tracks, t)
	}
	return tracks, skipped, nil
}

func parseRow(get func(string) string) (Track, bool, error) {
	var t Track

	id, err := strconv.ParseInt(get("event_id"), 10, 64)
	if err != nil {
		return t, false, eris.Wrap(err, "parse event_id")
	}
	t.ID = id

	beginLat, err := parseOptFloat(get("begin_lat"))
	if err != nil {
		return t, false, eris.Wrap(err, "parse begin_lat")
	}
	beginLon, err := parseOptFloat(get("begin_lon"))
	if err != nil {
		return t, false, eris.Wrap(err, "parse begin_lon")
	}
	if beginLat == nil || beginLon == nil {
		return t, false, nil
	}
	t.Begin = geocode.Point{Lat: *beginLat, Lon: *beginLon}
	if !t.Begin.Valid() {
		return t, false, eris.Errorf("begin coordinate %v out of range", t.Begin)
	}

	endLat, err := parseOptFloat(get("end_lat"))
	if err != nil {
		return t, false, eris.Wrap(err, "parse end_lat")
	}
	endLon, err := parseOptFloat(get("end_lon"))
	if err != nil {
		return t, false, eris.Wrap(err, "parse end_lon")
	}
	if endLat != nil && endLon != nil {
		end := geocode.Point{Lat: *endLat, Lon: *endLon}
		if !end.Valid() {
			return t, false, eris.Errorf("end coordinate %v out of range", end)
		}
		t.End = &end
	}

	if t.BeginTime, err = parseOptTime(get("begin_dt")); err != nil {
		return t, false, eris.Wrap(err, "parse begin_dt")
	}
	if t.EndTime, err = parseOptTime(get("end_dt")); err != nil {
		return t, false, eris.Wrap(err, "parse end_dt")
	}
	if t.LengthMiles, err = parseOptFloat(get("tor_length_miles")); err != nil {
		return t, false, eris.Wrap(err, "parse tor_length_miles")
	}
	if w := get("tor_width_yards"); w != "" {
		yards, err := strconv.Atoi(w)
		if err != nil {
			return t, false, eris.Wrap(err, "parse tor_width_yards")
		}
		if yards < 0 {
			return t, false, eris.Errorf("tor_width_yards %d is negative", yards)
		}
		t.WidthYards = &yards
		t.WidthMeters = WidthFromYards(t.WidthYards)
	}

	t.State = get("state")
	t.CZName = get("cz_name")
	t.WFO = get("wfo")
	t.FScale = get("tor_f_scale")
	return t, true, nil
}

func parseOptFloat(s string) (*float64, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func parseOptTime(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	for _, layout := range csvTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t, nil
		}
	}
	return nil, eris.Errorf("unrecognized timestamp %q", s)
}

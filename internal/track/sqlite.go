package track

import (
	"context"
	"database/sql"
	"math"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/sells-group/closest-tornado/pkg/geocode"
)

// sqliteTimeLayout is how timestamps are stored in TEXT columns. UTC
// RFC 3339 keeps lexical order equal to time order, so max() works.
const sqliteTimeLayout = time.RFC3339

// SQLiteStore implements Store using modernc.org/sqlite. It has no spatial
// index; Nearest scans and orders by an equirectangular approximation, which
// is fine for sample and offline datasets.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS tornado_event (
	event_id         INTEGER PRIMARY KEY,
	begin_dt         TEXT,
	end_dt           TEXT,
	state            TEXT,
	cz_name          TEXT,
	wfo              TEXT,
	tor_f_scale      TEXT,
	tor_length_miles REAL,
	tor_width_yards  INTEGER,
	begin_lat        REAL NOT NULL,
	begin_lon        REAL NOT NULL,
	end_lat          REAL,
	end_lon          REAL
);

CREATE INDEX IF NOT EXISTS idx_tornado_event_begin_lat ON tornado_event(begin_lat);

CREATE TABLE IF NOT EXISTS dataset_refresh_meta (
	id                  INTEGER PRIMARY KEY CHECK (id = 1),
	data_last_refreshed TEXT,
	dataset_version     TEXT,
	updated_at          TEXT NOT NULL
);
`

// Migrate implements Store.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping implements Store.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

// Each track is scored by the smallest squared planar distance from the
// query to its begin, end or midpoint, with longitude scaled by cos²(lat).
const sqliteNearestSQL = `
SELECT event_id, begin_dt, end_dt, state, cz_name, wfo, tor_f_scale,
       tor_length_miles, tor_width_yards,
       begin_lat, begin_lon, end_lat, end_lon
FROM (
	SELECT *,
	       COALESCE(end_lat, begin_lat) AS e_lat,
	       COALESCE(end_lon, begin_lon) AS e_lon,
	       (begin_lat + COALESCE(end_lat, begin_lat)) / 2.0 AS m_lat,
	       (begin_lon + COALESCE(end_lon, begin_lon)) / 2.0 AS m_lon
	FROM tornado_event
)
ORDER BY min(
	(begin_lat - @lat) * (begin_lat - @lat) + (begin_lon - @lon) * (begin_lon - @lon) * @k,
	(e_lat - @lat) * (e_lat - @lat) + (e_lon - @lon) * (e_lon - @lon) * @k,
	(m_lat - @lat) * (m_lat - @lat) + (m_lon - @lon) * (m_lon - @lon) * @k
), event_id
LIMIT @limit`

// Nearest implements Store.
func (s *SQLiteStore) Nearest(ctx context.Context, p geocode.Point, limit int) ([]Track, error) {
	cosLat := math.Cos(p.Lat * math.Pi / 180)
	rows, err := s.db.QueryContext(ctx, sqliteNearestSQL,
		sql.Named("lat", p.Lat),
		sql.Named("lon", p.Lon),
		sql.Named("k", cosLat*cosLat),
		sql.Named("limit", limit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: nearest tracks")
	}
	defer rows.Close() //nolint:errcheck

	var tracks []Track
	for rows.Next() {
		var (
			t                      Track
			beginDT, endDT         sql.NullString
			state, cz, wfo, fscale sql.NullString
			length, endLat, endLon sql.NullFloat64
			width                  sql.NullInt64
		)
		if err := rows.Scan(
			&t.ID, &beginDT, &endDT, &state, &cz, &wfo, &fscale,
			&length, &width,
			&t.Begin.Lat, &t.Begin.Lon, &endLat, &endLon,
		); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan track")
		}

		if endLat.Valid && endLon.Valid {
			t.End = &geocode.Point{Lat: endLat.Float64, Lon: endLon.Float64}
		}
		t.BeginTime = parseSQLiteTime(beginDT)
		t.EndTime = parseSQLiteTime(endDT)
		t.State = state.String
		t.CZName = cz.String
		t.WFO = wfo.String
		t.FScale = fscale.String
		if length.Valid {
			v := length.Float64
			t.LengthMiles = &v
		}
		if width.Valid {
			w := int(width.Int64)
			t.WidthYards = &w
			t.WidthMeters = WidthFromYards(t.WidthYards)
		}
		tracks = append(tracks, t)
	}
	return tracks, eris.Wrap(rows.Err(), "sqlite: iterate tracks")
}

// Meta implements Store.
func (s *SQLiteStore) Meta(ctx context.Context) (*DatasetMeta, error) {
	var (
		refreshed, version, updated, latest sql.NullString
		m                                   DatasetMeta
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT m.data_last_refreshed, m.dataset_version, m.updated_at,
		       (SELECT count(*) FROM tornado_event),
		       (SELECT max(begin_dt) FROM tornado_event)
		FROM (SELECT 1) AS one
		LEFT JOIN dataset_refresh_meta m ON 1 = 1
		LIMIT 1`,
	).Scan(&refreshed, &version, &updated, &m.EventCount, &latest)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: dataset meta")
	}

	m.DataLastRefreshed = parseSQLiteTime(refreshed)
	m.UpdatedAt = parseSQLiteTime(updated)
	m.LatestEventBeginDT = parseSQLiteTime(latest)
	if version.Valid {
		m.DatasetVersion = &version.String
	}
	return &m, nil
}

// Upsert implements Store.
func (s *SQLiteStore) Upsert(ctx context.Context, tracks []Track) (int64, error) {
	if len(tracks) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: upsert: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO tornado_event (
			event_id, begin_dt, end_dt, state, cz_name, wfo, tor_f_scale,
			tor_length_miles, tor_width_yards,
			begin_lat, begin_lon, end_lat, end_lon
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(event_id) DO UPDATE SET
			begin_dt = excluded.begin_dt,
			end_dt = excluded.end_dt,
			state = excluded.state,
			cz_name = excluded.cz_name,
			wfo = excluded.wfo,
			tor_f_scale = excluded.tor_f_scale,
			tor_length_miles = excluded.tor_length_miles,
			tor_width_yards = excluded.tor_width_yards,
			begin_lat = excluded.begin_lat,
			begin_lon = excluded.begin_lon,
			end_lat = excluded.end_lat,
			end_lon = excluded.end_lon`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: upsert: prepare")
	}
	defer stmt.Close() //nolint:errcheck

	var total int64
	for _, t := range tracks {
		var endLat, endLon any
		if t.End != nil {
			endLat, endLon = t.End.Lat, t.End.Lon
		}
		var width any
		if t.WidthYards != nil {
			width = *t.WidthYards
		}
		var length any
		if t.LengthMiles != nil {
			length = *t.LengthMiles
		}

		res, err := stmt.ExecContext(ctx,
			t.ID, formatSQLiteTime(t.BeginTime), formatSQLiteTime(t.EndTime),
			nullIfEmpty(t.State), nullIfEmpty(t.CZName), nullIfEmpty(t.WFO), nullIfEmpty(t.FScale),
			length, width,
			t.Begin.Lat, t.Begin.Lon, endLat, endLon,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert track %d", t.ID)
		}
		n, _ := res.RowsAffected()
		total += n
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: upsert: commit tx")
	}
	return total, nil
}

// SetVersion implements Store.
func (s *SQLiteStore) SetVersion(ctx context.Context, version string, refreshed time.Time) error {
	now := time.Now().UTC().Format(sqliteTimeLayout)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dataset_refresh_meta (id, data_last_refreshed, dataset_version, updated_at)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			data_last_refreshed = excluded.data_last_refreshed,
			dataset_version = excluded.dataset_version,
			updated_at = excluded.updated_at`,
		refreshed.UTC().Format(sqliteTimeLayout), version, now,
	)
	return eris.Wrap(err, "sqlite: set dataset version")
}

func formatSQLiteTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(sqliteTimeLayout)
}

func parseSQLiteTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t, err := time.Parse(sqliteTimeLayout, s.String)
	if err != nil {
		return nil
	}
	return &t
}

package track

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/ewkb"

	"github.com/sells-group/closest-tornado/internal/db"
	"github.com/sells-group/closest-tornado/pkg/geocode"
)

// PostgresStore implements Store on PostGIS.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresFromPool wraps an existing pool. The caller keeps ownership of
// the pool; Close is a no-op.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const nearestSQL = `
SELECT event_id, begin_dt, end_dt, state, cz_name, wfo, tor_f_scale,
       tor_length_miles::float8, tor_width_yards,
       begin_lat, begin_lon, end_lat, end_lon
FROM tornado_event
WHERE geog_line IS NOT NULL
  AND begin_lat IS NOT NULL AND begin_lon IS NOT NULL
ORDER BY geog_line <-> ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography
LIMIT $3`

// Nearest implements Store. The KNN operator on the geography index gives
// the coarse ordering.
func (s *PostgresStore) Nearest(ctx context.Context, p geocode.Point, limit int) ([]Track, error) {
	rows, err := s.pool.Query(ctx, nearestSQL, p.Lon, p.Lat, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: nearest tracks")
	}
	defer rows.Close()

	var tracks []Track
	for rows.Next() {
		t, err := scanTrack(rows)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate tracks")
	}
	return tracks, nil
}

func scanTrack(row pgx.Row) (Track, error) {
	var (
		t                      Track
		state, cz, wfo, fscale *string
		width                  *int32
		endLat, endLon         *float64
		beginTime, endTime     *time.Time
		lengthMiles            *float64
	)
	if err := row.Scan(
		&t.ID, &beginTime, &endTime, &state, &cz, &wfo, &fscale,
		&lengthMiles, &width,
		&t.Begin.Lat, &t.Begin.Lon, &endLat, &endLon,
	); err != nil {
		return Track{}, eris.Wrap(err, "postgres: scan track")
	}

	if endLat != nil && endLon != nil {
		t.End = &geocode.Point{Lat: *endLat, Lon: *endLon}
	}
	t.BeginTime = beginTime
	t.EndTime = endTime
	t.State = deref(state)
	t.CZName = deref(cz)
	t.WFO = deref(wfo)
	t.FScale = deref(fscale)
	t.LengthMiles = lengthMiles
	if width != nil {
		w := int(*width)
		t.WidthYards = &w
		t.WidthMeters = WidthFromYards(t.WidthYards)
	}
	return t, nil
}

const metaSQL = `
SELECT m.data_last_refreshed, m.dataset_version, m.updated_at,
       (SELECT count(*) FROM tornado_event),
       (SELECT max(begin_dt) FROM tornado_event)
FROM (SELECT 1) AS one
LEFT JOIN dataset_refresh_meta m ON true
ORDER BY m.updated_at DESC NULLS LAST
LIMIT 1`

// Meta implements Store.
func (s *PostgresStore) Meta(ctx context.Context) (*DatasetMeta, error) {
	var m DatasetMeta
	if err := s.pool.QueryRow(ctx, metaSQL).Scan(
		&m.DataLastRefreshed, &m.DatasetVersion, &m.UpdatedAt,
		&m.EventCount, &m.LatestEventBeginDT,
	); err != nil {
		return nil, eris.Wrap(err, "postgres: dataset meta")
	}
	return &m, nil
}

// upsertColumns are the staged columns; line_ewkb feeds both geometry
// columns and is never stored itself.
var upsertColumns = []string{
	"event_id", "begin_dt", "end_dt", "state", "cz_name", "wfo", "tor_f_scale",
	"tor_length_miles", "tor_width_yards",
	"begin_lat", "begin_lon", "end_lat", "end_lon",
	"line_ewkb",
}

// Upsert implements Store.
func (s *PostgresStore) Upsert(ctx context.Context, tracks []Track) (int64, error) {
	rows := make([][]any, 0, len(tracks))
	for _, t := range tracks {
		line, err := ewkb.Marshal(t.LineString(), ewkb.NDR)
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: encode track %d", t.ID)
		}
		var endLat, endLon *float64
		if t.End != nil {
			endLat, endLon = &t.End.Lat, &t.End.Lon
		}
		var width *int32
		if t.WidthYards != nil {
			w := int32(*t.WidthYards)
			width = &w
		}
		rows = append(rows, []any{
			t.ID, t.BeginTime, t.EndTime,
			nullIfEmpty(t.State), nullIfEmpty(t.CZName), nullIfEmpty(t.WFO), nullIfEmpty(t.FScale),
			t.LengthMiles, width,
			t.Begin.Lat, t.Begin.Lon, endLat, endLon,
			line,
		})
	}

	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "tornado_event",
		Columns:      upsertColumns,
		ConflictKeys: []string{"event_id"},
		Exprs: map[string]string{
			"geom_line": "ST_GeomFromEWKB(line_ewkb)",
			"geog_line": "ST_GeomFromEWKB(line_ewkb)::geography",
		},
		StageOnly: []string{"line_ewkb"},
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: upsert tracks")
	}
	return n, nil
}

// SetVersion implements Store.
func (s *PostgresStore) SetVersion(ctx context.Context, version string, refreshed time.Time) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO dataset_refresh_meta (id, data_last_refreshed, dataset_version, updated_at)
		VALUES (1, $1, $2, now())
		ON CONFLICT (id) DO UPDATE SET
			data_last_refreshed = EXCLUDED.data_last_refreshed,
			dataset_version = EXCLUDED.dataset_version,
			updated_at = now()`,
		refreshed, version,
	)
	return eris.Wrap(err, "postgres: set dataset version")
}

// Ping implements Store.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

// Migrate implements Store.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	return migrate(ctx, s.pool)
}

// Close implements Store.
func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

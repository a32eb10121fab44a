package track

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/closest-tornado/pkg/geocode"
)

func ptr[T any](v T) *T { return &v }

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })
	return NewPostgresFromPool(mock), mock
}

var trackColumns = []string{
	"event_id", "begin_dt", "end_dt", "state", "cz_name", "wfo", "tor_f_scale",
	"tor_length_miles", "tor_width_yards",
	"begin_lat", "begin_lon", "end_lat", "end_lon",
}

func TestPostgresStore_Nearest(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	begin := time.Date(2013, 5, 20, 14, 56, 0, 0, time.UTC)

	rows := pgxmock.NewRows(trackColumns).
		AddRow(int64(453887), &begin, (*time.Time)(nil), ptr("OKLAHOMA"), ptr("CLEVELAND"), ptr("OUN"), ptr("EF5"),
			ptr(13.85), ptr(int32(1900)),
			35.3098, -97.6615, ptr(35.3187), ptr(-97.4205)).
		AddRow(int64(612002), (*time.Time)(nil), (*time.Time)(nil), (*string)(nil), (*string)(nil), (*string)(nil), (*string)(nil),
			(*float64)(nil), (*int32)(nil),
			34.2010, -97.1440, (*float64)(nil), (*float64)(nil))

	mock.ExpectQuery(`ORDER BY geog_line <-> ST_SetSRID\(ST_MakePoint\(\$1, \$2\), 4326\)::geography`).
		WithArgs(-97.5, 35.4, 250).
		WillReturnRows(rows)

	tracks, err := s.Nearest(context.Background(), geocode.Point{Lat: 35.4, Lon: -97.5}, 250)
	require.NoError(t, err)
	require.Len(t, tracks, 2)

	moore := tracks[0]
	assert.Equal(t, int64(453887), moore.ID)
	assert.Equal(t, "OKLAHOMA", moore.State)
	assert.Equal(t, "EF5", moore.FScale)
	require.NotNil(t, moore.End)
	assert.InDelta(t, -97.4205, moore.End.Lon, 1e-9)
	require.NotNil(t, moore.WidthYards)
	assert.Equal(t, 1900, *moore.WidthYards)
	require.NotNil(t, moore.WidthMeters)
	assert.InDelta(t, 1737.36, *moore.WidthMeters, 1e-6)
	assert.True(t, moore.BeginTime.Equal(begin))
	assert.Nil(t, moore.EndTime)

	bare := tracks[1]
	assert.Nil(t, bare.End)
	assert.Nil(t, bare.WidthMeters)
	assert.Empty(t, bare.State)
	assert.Equal(t, bare.Begin, bare.EndPoint())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Nearest_QueryError(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	mock.ExpectQuery(`FROM tornado_event`).WillReturnError(fmt.Errorf("connection refused"))

	_, err := s.Nearest(context.Background(), geocode.Point{}, 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nearest tracks")
}

func TestPostgresStore_Meta(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	refreshed := time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC)
	updated := time.Date(2024, 1, 5, 10, 5, 0, 0, time.UTC)
	latest := time.Date(2023, 12, 31, 23, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM \(SELECT 1\) AS one`).
		WillReturnRows(pgxmock.NewRows([]string{"data_last_refreshed", "dataset_version", "updated_at", "count", "max"}).
			AddRow(&refreshed, ptr("20240105"), &updated, int64(123), &latest))

	m, err := s.Meta(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(123), m.EventCount)
	require.NotNil(t, m.DatasetVersion)
	assert.Equal(t, "20240105", *m.DatasetVersion)
	assert.True(t, m.DataLastRefreshed.Equal(refreshed))
	assert.True(t, m.LatestEventBeginDT.Equal(latest))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Meta_NoMetadataRow(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	mock.ExpectQuery(`dataset_refresh_meta`).
		WillReturnRows(pgxmock.NewRows([]string{"data_last_refreshed", "dataset_version", "updated_at", "count", "max"}).
			AddRow((*time.Time)(nil), (*string)(nil), (*time.Time)(nil), int64(0), (*time.Time)(nil)))

	m, err := s.Meta(context.Background())
	require.NoError(t, err)
	assert.Zero(t, m.EventCount)
	assert.Nil(t, m.DatasetVersion)
	assert.Nil(t, m.LatestEventBeginDT)
}

func TestPostgresStore_Upsert(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	tracks := []Track{
		{ID: 1, Begin: geocode.Point{Lat: 35, Lon: -97}, End: &geocode.Point{Lat: 35.1, Lon: -96.9},
			Attributes: Attributes{State: "OKLAHOMA", WidthYards: ptr(100)}},
		{ID: 2, Begin: geocode.Point{Lat: 36, Lon: -98}},
	}

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TEMP TABLE").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec(`ADD COLUMN "line_ewkb" bytea`).WillReturnResult(pgxmock.NewResult("ALTER", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_tornado_event"}, upsertColumns).WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "tornado_event" .*ST_GeomFromEWKB\(line_ewkb\)::geography, ST_GeomFromEWKB\(line_ewkb\) FROM`).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	n, err := s.Upsert(context.Background(), tracks)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SetVersion(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	refreshed := time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC)

	mock.ExpectExec(`INSERT INTO dataset_refresh_meta`).
		WithArgs(refreshed, "20240105").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.SetVersion(context.Background(), "20240105", refreshed))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Close_BorrowedPool(t *testing.T) {
	s, _ := newMockPostgresStore(t)
	assert.NoError(t, s.Close())
}

package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/closest-tornado/internal/track"
)

const seedCSV = "event_id,begin_dt,end_dt,state,cz_name,wfo,tor_f_scale,tor_length_miles,tor_width_yards,begin_lat,begin_lon,end_lat,end_lon\n" +
	"10,2020-04-12 15:00:00,2020-04-12 15:30:00,MISSISSIPPI,JONES,JAN,EF4,68.0,2000,31.47,-89.78,31.95,-88.89\n" +
	"11,,,ALABAMA,X,BMX,EF0,,,,,,\n"

func TestSeedStore_LoadsAndRecordsVersion(t *testing.T) {
	ctx := context.Background()
	st, err := openMigratedStore(ctx, sqliteConfig(t))
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	refreshed := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	res, err := seedStore(ctx, st, strings.NewReader(seedCSV), "20240105", refreshed)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.upserted)
	assert.Equal(t, 1, res.skipped)

	meta, err := st.Meta(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), meta.EventCount)
	require.NotNil(t, meta.DatasetVersion)
	assert.Equal(t, "20240105", *meta.DatasetVersion)
	require.NotNil(t, meta.DataLastRefreshed)
	assert.True(t, refreshed.Equal(*meta.DataLastRefreshed))
}

func TestSeedStore_EmptyVersionSkipsMeta(t *testing.T) {
	ctx := context.Background()
	st, err := openMigratedStore(ctx, sqliteConfig(t))
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	_, err = seedStore(ctx, st, strings.NewReader(seedCSV), "", time.Now())
	require.NoError(t, err)

	meta, err := st.Meta(ctx)
	require.NoError(t, err)
	assert.Nil(t, meta.DatasetVersion)
}

func TestSeedStore_BadCSV(t *testing.T) {
	ctx := context.Background()
	st, err := openMigratedStore(ctx, sqliteConfig(t))
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	_, err = seedStore(ctx, st, strings.NewReader("nope\n1\n"), "v", time.Now())
	assert.Error(t, err)
}

func TestOpenSeedSource(t *testing.T) {
	src, err := openSeedSource("")
	require.NoError(t, err)
	tracks, _, err := track.LoadCSV(src)
	require.NoError(t, err)
	assert.NotEmpty(t, tracks)
	require.NoError(t, src.Close())

	path := filepath.Join(t.TempDir(), "tracks.csv")
	require.NoError(t, os.WriteFile(path, []byte(seedCSV), 0o644))
	src, err = openSeedSource(path)
	require.NoError(t, err)
	require.NoError(t, src.Close())

	_, err = openSeedSource(filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}

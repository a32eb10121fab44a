package main

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/closest-tornado/internal/track"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load tornado tracks from a CSV file into the store",
	Long:  "Loads the bundled sample tracks, or a CSV with the same columns given by --file, and records the dataset version.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("seed"); err != nil {
			return err
		}

		file, _ := cmd.Flags().GetString("file")
		version, _ := cmd.Flags().GetString("version")

		src, err := openSeedSource(file)
		if err != nil {
			return err
		}
		defer src.Close() //nolint:errcheck

		st, err := openMigratedStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		res, err := seedStore(ctx, st, src, version, time.Now().UTC())
		if err != nil {
			return err
		}
		zap.L().Info("seed complete",
			zap.Int64("upserted", res.upserted),
			zap.Int("skipped", res.skipped),
			zap.String("version", version),
		)
		return nil
	},
}

func openSeedSource(path string) (io.ReadCloser, error) {
	if path == "" {
		return track.SampleCSV()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "open %s", path)
	}
	return f, nil
}

type seedResult struct {
	upserted int64
	skipped  int
}

func seedStore(ctx context.Context, st track.Store, r io.Reader, version string, refreshed time.Time) (seedResult, error) {
	tracks, skipped, err := track.LoadCSV(r)
	if err != nil {
		return seedResult{}, err
	}
	n, err := st.Upsert(ctx, tracks)
	if err != nil {
		return seedResult{}, eris.Wrap(err, "upsert tracks")
	}
	if version != "" {
		if err := st.SetVersion(ctx, version, refreshed); err != nil {
			return seedResult{}, eris.Wrap(err, "record dataset version")
		}
	}
	return seedResult{upserted: n, skipped: skipped}, nil
}

func init() {
	seedCmd.Flags().String("file", "", "CSV file to load (default: bundled sample)")
	seedCmd.Flags().String("version", "sample", "dataset version to record; empty skips")
	rootCmd.AddCommand(seedCmd)
}

package main

import (
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/closest-tornado/internal/lookup"
	"github.com/sells-group/closest-tornado/pkg/geocode"
)

var lookupCmd = &cobra.Command{
	Use:   "lookup [address]",
	Short: "Look up the nearest tornado tracks to an address or coordinates",
	Long:  "Prints the JSON response for one lookup. Pass an address argument, or --lat and --lon.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		req, err := lookupRequestFromFlags(cmd, args)
		if err != nil {
			return err
		}

		env, err := initLookup(ctx, cfg, "lookup")
		if err != nil {
			return err
		}
		defer env.Close()

		var resp *lookup.Response
		if req.address != "" {
			resp, err = env.Service.ByAddress(ctx, lookup.AddressQuery{Address: req.address, Units: req.units, BaseURL: cfg.Server.PublicBaseURL})
		} else {
			resp, err = env.Service.ByCoords(ctx, lookup.CoordsQuery{Point: req.point, Units: req.units, BaseURL: cfg.Server.PublicBaseURL})
		}
		if err != nil {
			return eris.Wrap(err, "lookup")
		}
		return printJSON(cmd.OutOrStdout(), resp)
	},
}

type lookupRequest struct {
	address string
	point   geocode.Point
	units   lookup.Units
}

func lookupRequestFromFlags(cmd *cobra.Command, args []string) (lookupRequest, error) {
	var req lookupRequest

	unitsFlag, _ := cmd.Flags().GetString("units")
	units, err := lookup.ParseUnits(unitsFlag)
	if err != nil {
		return req, err
	}
	req.units = units

	if len(args) == 1 {
		req.address = args[0]
		return req, nil
	}

	if !cmd.Flags().Changed("lat") || !cmd.Flags().Changed("lon") {
		return req, eris.New("lookup: pass an address or both --lat and --lon")
	}
	req.point.Lat, _ = cmd.Flags().GetFloat64("lat")
	req.point.Lon, _ = cmd.Flags().GetFloat64("lon")
	if !req.point.Valid() {
		return req, eris.Errorf("lookup: coordinate %v out of range", req.point)
	}
	return req, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(v), "encode output")
}

func init() {
	lookupCmd.Flags().Float64("lat", 0, "latitude in decimal degrees")
	lookupCmd.Flags().Float64("lon", 0, "longitude in decimal degrees")
	lookupCmd.Flags().String("units", "miles", `distance units, "miles" or "km"`)
	rootCmd.AddCommand(lookupCmd)
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/signalsfoundry/linkplanner/core"
	"github.com/signalsfoundry/linkplanner/internal/api"
	"github.com/signalsfoundry/linkplanner/internal/config"
	"github.com/signalsfoundry/linkplanner/internal/elevation"
	"github.com/signalsfoundry/linkplanner/internal/logging"
	"github.com/signalsfoundry/linkplanner/internal/planner"
	"github.com/spf13/cobra"
)

type zoneReport struct {
	core.Zone
	PathLossDB float64 `json:"pathLossDB"`
}

func newZoneCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "zone",
		Short: "Compute the Fresnel zone between two points",
		Long: `Computes distance, midpoint, first Fresnel radius and free-space path loss for a
link between two coordinates. With --elevation the midpoint elevation is looked up
using the configured elevation service.`,
		Example: `  linkplanner zone --from 39.30,-76.60 --to 39.31,-76.59 --frequency 5`,
		GroupID: "planner",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fromRaw, _ := cmd.Flags().GetString("from")
			toRaw, _ := cmd.Flags().GetString("to")
			freqRaw, _ := cmd.Flags().GetString("frequency")
			withElevation, _ := cmd.Flags().GetBool("elevation")
			asJSON, _ := cmd.Flags().GetBool("json")

			from, err := parseLatLng(fromRaw)
			if err != nil {
				return fmt.Errorf("--from: %w", err)
			}
			to, err := parseLatLng(toRaw)
			if err != nil {
				return fmt.Errorf("--to: %w", err)
			}
			freq, err := api.ParseFrequency(freqRaw)
			if err != nil {
				return fmt.Errorf("--frequency: %w", err)
			}

			var provider planner.ElevationProvider
			timeout := planner.DefaultElevationTimeout
			if withElevation {
				path, _ := cmd.Flags().GetString("config")
				cfg, err := config.Load(path)
				if err != nil {
					return err
				}
				timeout = cfg.Elevation.Timeout
				if cfg.Elevation.Disabled {
					provider = elevation.Disabled()
				} else {
					provider = elevation.NewClient(cfg.Elevation.BaseURL,
						elevation.WithMaxRetries(cfg.Elevation.MaxRetries))
				}
			}

			report, err := computeZone(cmd.Context(), from, to, freq, provider, timeout)
			if err != nil {
				return err
			}
			return printZone(cmd.OutOrStdout(), report, asJSON)
		},
	}
	cmd.Flags().String("from", "", "first endpoint as lat,lng")
	cmd.Flags().String("to", "", "second endpoint as lat,lng")
	cmd.Flags().String("frequency", "", "link frequency in GHz")
	cmd.Flags().Bool("elevation", false, "look up the midpoint elevation")
	cmd.Flags().Bool("json", false, "print the result as JSON")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	_ = cmd.MarkFlagRequired("frequency")
	return cmd
}

// computeZone runs the two points through a throwaway planning session so
// the command shares the API's zone resolution path.
func computeZone(ctx context.Context, from, to core.LatLng, freq float64, provider planner.ElevationProvider, timeout time.Duration) (zoneReport, error) {
	state := planner.NewState(logging.Noop())
	a, err := state.AddTower(ctx, from, freq, "from")
	if err != nil {
		return zoneReport{}, err
	}
	b, err := state.AddTower(ctx, to, freq, "to")
	if err != nil {
		return zoneReport{}, err
	}
	if _, err := state.SelectOrLinkTower(ctx, a.ID); err != nil {
		return zoneReport{}, err
	}
	res, err := state.SelectOrLinkTower(ctx, b.ID)
	if err != nil {
		return zoneReport{}, err
	}

	resolver := planner.NewZoneResolver(state, provider, logging.Noop(), planner.WithElevationTimeout(timeout))
	zone, err := resolver.ActivateLink(ctx, res.Link.ID)
	if err != nil {
		return zoneReport{}, err
	}
	loss, err := core.FreeSpacePathLossDB(freq, zone.DistanceMeters)
	if err != nil {
		return zoneReport{}, err
	}
	return zoneReport{Zone: zone, PathLossDB: loss}, nil
}

func parseLatLng(raw string) (core.LatLng, error) {
	latRaw, lngRaw, ok := strings.Cut(raw, ",")
	if !ok {
		return core.LatLng{}, fmt.Errorf("%w: %q is not lat,lng", core.ErrInvalidPosition, raw)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(latRaw), 64)
	if err != nil {
		return core.LatLng{}, fmt.Errorf("%w: latitude %q", core.ErrInvalidPosition, latRaw)
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(lngRaw), 64)
	if err != nil {
		return core.LatLng{}, fmt.Errorf("%w: longitude %q", core.ErrInvalidPosition, lngRaw)
	}
	p := core.LatLng{Lat: lat, Lng: lng}
	if err := p.Validate(); err != nil {
		return core.LatLng{}, err
	}
	return p, nil
}

func printZone(w io.Writer, r zoneReport, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}
	elev := "unavailable"
	if r.HasElevation() {
		elev = fmt.Sprintf("%.1f m", *r.ElevationMeters)
	}
	_, err := fmt.Fprintf(w,
		"distance:       %.1f m\nmidpoint:       %s\nfresnel radius: %.3f m\npath loss:      %.2f dB\nelevation:      %s\n",
		r.DistanceMeters, r.Midpoint, r.RadiusMeters, r.PathLossDB, elev)
	return err
}

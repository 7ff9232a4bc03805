package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mapd-tech/civic-impact/internal/geo"
	"github.com/mapd-tech/civic-impact/internal/model"
	"github.com/mapd-tech/civic-impact/internal/store"
)

var (
	enrichRadius float64
	enrichLimit  int
)

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Join every permit with nearby amenities",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if enrichRadius > 0 {
			cfg.Join.RadiusKM = enrichRadius
		}
		if enrichLimit >= 0 {
			cfg.Join.Limit = enrichLimit
		}
		if err := cfg.Validate("enrich"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := runEnrich(ctx, st, geo.LinearJoiner{}, geo.NearbyOptions{
			MaxDistanceKM: cfg.Join.RadiusKM,
			Limit:         cfg.Join.Limit,
			ExcludeZero:   cfg.Join.ExcludeZero,
		})
		if err != nil {
			return err
		}
		zap.L().Info("enrichment complete", zap.Int("permits", n))
		return nil
	},
}

func init() {
	enrichCmd.Flags().Float64Var(&enrichRadius, "radius", 0, "search radius in km (default from config)")
	enrichCmd.Flags().IntVar(&enrichLimit, "limit", -1, "max matches per category, 0 for unlimited (default from config)")
	rootCmd.AddCommand(enrichCmd)
}

// runEnrich joins every stored permit against every amenity category and
// saves the result. It returns the number of permits enriched.
func runEnrich(ctx context.Context, st store.Store, j geo.Joiner, opts geo.NearbyOptions) (int, error) {
	log := zap.L().With(zap.String("component", "enrich"))

	permits, err := st.ListPermits(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "enrich: list permits")
	}
	categorized, err := store.LoadCategorized(ctx, st, model.AllCategories())
	if err != nil {
		return 0, eris.Wrap(err, "enrich: load amenities")
	}

	enriched := make([]model.EnrichedPermit, 0, len(permits))
	unlocated := 0
	for _, p := range permits {
		if _, ok := geo.Extract(p.Geom); !ok {
			unlocated++
			log.Debug("permit has no usable location", zap.String("permit_id", p.ID))
		}
		enriched = append(enriched, geo.EnrichPermit(j, p, categorized, opts))
	}

	if err := st.SaveEnriched(ctx, enriched); err != nil {
		return 0, eris.Wrap(err, "enrich: save")
	}
	log.Info("permits enriched",
		zap.Int("permits", len(enriched)),
		zap.Int("without_location", unlocated),
		zap.Float64("radius_km", opts.MaxDistanceKM),
	)
	return len(enriched), nil
}

package main

import (
	"context"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mapd-tech/civic-impact/internal/dataset"
	"github.com/mapd-tech/civic-impact/internal/fetcher"
	"github.com/mapd-tech/civic-impact/internal/model"
	"github.com/mapd-tech/civic-impact/internal/store"
)

var (
	ingestPermits    bool
	ingestAmenities  []string
	ingestShapefile  string
	ingestCategory   string
	ingestIDField    string
	ingestMaxPages   int
	ingestCatalogURL string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Load permits and amenity datasets into the store",
	Long:  "Pages through the open-data catalog for permits and every amenity category, or loads one amenity category from a shapefile (local path, .zip, or URL).",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("ingest"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
			UserAgent:         cfg.OpenData.UserAgent,
			Timeout:           time.Duration(cfg.OpenData.TimeoutSecs) * time.Second,
			RequestsPerSecond: cfg.OpenData.RequestsPerSecond,
		})

		if ingestShapefile != "" {
			cat, err := model.ParseCategory(ingestCategory)
			if err != nil {
				return eris.Wrap(err, "ingest: --category is required with --shapefile")
			}
			n, err := ingestShapefileInto(ctx, st, f, cat, ingestShapefile, dataset.ShapefileOptions{IDField: ingestIDField})
			if err != nil {
				return err
			}
			zap.L().Info("shapefile ingested", zap.String("category", string(cat)), zap.Int("records", n))
			return nil
		}

		catalog, err := loadCatalog()
		if err != nil {
			return err
		}
		if ingestCatalogURL != "" {
			catalog.BaseURL = ingestCatalogURL
		}
		if ingestMaxPages > 0 {
			catalog.MaxPages = ingestMaxPages
		}

		cats, err := parseCategories(ingestAmenities)
		if err != nil {
			return err
		}
		stats, err := runIngest(ctx, st, f, catalog, ingestPermits, cats)
		if err != nil {
			return err
		}
		zap.L().Info("ingest complete",
			zap.Int("permits", stats.Permits),
			zap.Int("amenities", stats.Amenities),
			zap.Int("categories", len(stats.PerCategory)),
		)
		return nil
	},
}

func init() {
	ingestCmd.Flags().BoolVar(&ingestPermits, "permits", true, "fetch building permits")
	ingestCmd.Flags().StringSliceVar(&ingestAmenities, "amenities", []string{"all"}, "amenity categories to fetch (\"all\", \"none\", or names)")
	ingestCmd.Flags().StringVar(&ingestShapefile, "shapefile", "", "load one category from a shapefile path, .zip or URL instead of the catalog")
	ingestCmd.Flags().StringVar(&ingestCategory, "category", "", "category for --shapefile")
	ingestCmd.Flags().StringVar(&ingestIDField, "id-field", "", "shapefile attribute holding a stable id")
	ingestCmd.Flags().IntVar(&ingestMaxPages, "max-pages", 0, "pages per dataset (default from catalog)")
	ingestCmd.Flags().StringVar(&ingestCatalogURL, "base-url", "", "override the catalog base URL")
	rootCmd.AddCommand(ingestCmd)
}

// ingestStats counts what one ingest run wrote.
type ingestStats struct {
	Permits     int
	Amenities   int
	PerCategory map[model.Category]int
}

func loadCatalog() (*dataset.Catalog, error) {
	if cfg.OpenData.Catalog != "" {
		return dataset.LoadCatalog(cfg.OpenData.Catalog)
	}
	return dataset.DefaultCatalog()
}

// parseCategories expands the --amenities flag.
func parseCategories(names []string) ([]model.Category, error) {
	var out []model.Category
	for _, n := range names {
		switch n {
		case "all":
			return model.AllCategories(), nil
		case "none", "":
			continue
		}
		c, err := model.ParseCategory(n)
		if err != nil {
			return nil, eris.Wrap(err, "ingest: parse --amenities")
		}
		out = append(out, c)
	}
	return out, nil
}

// runIngest fetches the permit dataset (when permits is set) and every
// requested amenity category, upserting each into st.
func runIngest(ctx context.Context, st store.Store, f fetcher.Fetcher, catalog *dataset.Catalog, permits bool, cats []model.Category) (ingestStats, error) {
	stats := ingestStats{PerCategory: make(map[model.Category]int, len(cats))}

	if permits {
		recs, err := dataset.Fetch(ctx, f, catalog, catalog.Permits)
		if err != nil {
			return stats, err
		}
		n, err := st.UpsertPermits(ctx, recs)
		if err != nil {
			return stats, eris.Wrap(err, "ingest: store permits")
		}
		stats.Permits = n
	}

	for _, c := range cats {
		src, err := catalog.Amenity(c)
		if err != nil {
			return stats, err
		}
		recs, err := dataset.Fetch(ctx, f, catalog, src)
		if err != nil {
			return stats, err
		}
		n, err := st.UpsertAmenities(ctx, c, recs)
		if err != nil {
			return stats, eris.Wrapf(err, "ingest: store %s", c)
		}
		stats.PerCategory[c] = n
		stats.Amenities += n
	}
	return stats, nil
}

// ingestShapefileInto loads one amenity category from a shapefile. Remote
// sources are downloaded to the configured temp dir first.
func ingestShapefileInto(ctx context.Context, st store.Store, f fetcher.Fetcher, cat model.Category, src string, opts dataset.ShapefileOptions) (int, error) {
	var (
		recs []model.SpatialRecord
		err  error
	)
	if isURL(src) {
		recs, err = dataset.FetchShapefile(ctx, f, src, cfg.OpenData.TempDir, opts)
	} else {
		recs, err = dataset.LoadShapefile(src, opts)
	}
	if err != nil {
		return 0, err
	}
	n, err := st.UpsertAmenities(ctx, cat, recs)
	if err != nil {
		return 0, eris.Wrapf(err, "ingest: store %s", cat)
	}
	return n, nil
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

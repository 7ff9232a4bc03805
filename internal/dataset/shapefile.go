package dataset

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/mapd-tech/civic-impact/internal/fetcher"
	"github.com/mapd-tech/civic-impact/internal/model"
)

// ShapefileOptions configures LoadShapefile.
type ShapefileOptions struct {
	// IDField names the attribute holding a stable id. When empty, ids are
	// "<file base name>-<row>".
	IDField string
}

// LoadShapefile reads point amenities from a WGS84 shapefile. path may be a
// .shp file or a .zip archive holding one. Polygons and lines are reduced to
// the centre of their bounding box; null shapes are skipped.
func LoadShapefile(path string, opts ShapefileOptions) ([]model.SpatialRecord, error) {
	log := zap.L().With(zap.String("component", "dataset.shapefile"), zap.String("path", path))

	shpPath := path
	if strings.EqualFold(filepath.Ext(path), ".zip") {
		dir, err := os.MkdirTemp("", "shapefile-*")
		if err != nil {
			return nil, eris.Wrap(err, "dataset: create extract dir")
		}
		defer os.RemoveAll(dir) //nolint:errcheck

		files, err := fetcher.ExtractZIP(path, dir)
		if err != nil {
			return nil, eris.Wrap(err, "dataset: extract shapefile archive")
		}
		if shpPath, err = fetcher.FindByExt(files, ".shp"); err != nil {
			return nil, eris.Wrap(err, "dataset: find .shp file")
		}
	}

	reader, err := shp.Open(shpPath)
	if err != nil {
		return nil, eris.Wrapf(err, "dataset: open shapefile %s", shpPath)
	}
	defer func() { _ = reader.Close() }()

	fields := reader.Fields()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = strings.ToLower(strings.TrimRight(f.String(), "\x00 "))
	}
	idIdx := -1
	if opts.IDField != "" {
		idIdx = fieldIndex(names, opts.IDField)
		if idIdx < 0 {
			return nil, eris.Errorf("dataset: shapefile has no field %q", opts.IDField)
		}
	}

	base := strings.TrimSuffix(filepath.Base(shpPath), filepath.Ext(shpPath))
	var out []model.SpatialRecord
	skipped := 0
	for reader.Next() {
		row, shape := reader.Shape()
		lon, lat, ok := shapeCenter(shape)
		if !ok {
			skipped++
			continue
		}

		attrs := make(map[string]any, len(names))
		for i, name := range names {
			attrs[name] = strings.TrimSpace(strings.TrimRight(reader.Attribute(i), "\x00"))
		}

		id := base + "-" + strconv.Itoa(row)
		if idIdx >= 0 {
			if v, _ := attrs[names[idIdx]].(string); v != "" {
				id = v
			}
		}

		out = append(out, model.SpatialRecord{
			ID: id,
			Geom: map[string]any{
				"type": "Feature",
				"geometry": map[string]any{
					"type":        "Point",
					"coordinates": []any{lon, lat},
				},
			},
			Fields: attrs,
		})
	}

	log.Info("shapefile loaded", zap.Int("records", len(out)), zap.Int("skipped", skipped))
	return out, nil
}

// FetchShapefile downloads a shapefile archive into tempDir and loads it.
func FetchShapefile(ctx context.Context, f fetcher.Fetcher, rawURL, tempDir string, opts ShapefileOptions) ([]model.SpatialRecord, error) {
	dest := filepath.Join(tempDir, "amenities.zip")
	if _, err := f.DownloadToFile(ctx, rawURL, dest); err != nil {
		return nil, eris.Wrap(err, "dataset: download shapefile")
	}
	return LoadShapefile(dest, opts)
}

func fieldIndex(names []string, name string) int {
	for i, n := range names {
		if strings.EqualFold(n, name) {
			return i
		}
	}
	return -1
}

func shapeCenter(s shp.Shape) (lon, lat float64, ok bool) {
	switch shape := s.(type) {
	case nil, *shp.Null:
		return 0, 0, false
	case *shp.Point:
		return shape.X, shape.Y, true
	default:
		box := s.BBox()
		return (box.MinX + box.MaxX) / 2, (box.MinY + box.MaxY) / 2, true
	}
}

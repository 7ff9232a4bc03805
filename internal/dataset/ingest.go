package dataset

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/mapd-tech/civic-impact/internal/fetcher"
	"github.com/mapd-tech/civic-impact/internal/model"
)

// Fetch pages through src and returns its normalized records. Records whose
// ids collide keep the last occurrence.
func Fetch(ctx context.Context, f fetcher.Fetcher, c *Catalog, src Source) ([]model.SpatialRecord, error) {
	log := zap.L().With(zap.String("component", "dataset.fetch"), zap.String("dataset", src.Name))

	var records []model.SpatialRecord
	index := make(map[string]int)
	_, err := fetcher.Paginate(ctx, f, c.Endpoint(src), src.Query(),
		fetcher.PageOptions{PageSize: c.PageSize, MaxPages: c.MaxPages},
		func(page int, body []byte) error {
			raw, err := ExtractRecords(body)
			if err != nil {
				return eris.Wrapf(err, "page %d", page)
			}
			for _, r := range ToRecords(src, raw) {
				if i, dup := index[r.ID]; dup {
					records[i] = r
					continue
				}
				index[r.ID] = len(records)
				records = append(records, r)
			}
			return nil
		})
	if err != nil {
		return nil, eris.Wrapf(err, "dataset: fetch %s", src.Name)
	}

	log.Info("dataset fetched", zap.Int("records", len(records)))
	return records, nil
}

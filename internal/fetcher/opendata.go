package fetcher

import (
	"context"
	"io"
	"net/url"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// DefaultPageSize is the largest page the Explore v2.1 records endpoint serves.
const DefaultPageSize = 100

// maxWindow is the Explore API's cap on offset+limit.
const maxWindow = 10000

// PageOptions bounds a paginated listing.
type PageOptions struct {
	// PageSize is the limit per request; 0 means DefaultPageSize.
	PageSize int
	// MaxPages stops after this many pages; 0 means until exhausted.
	MaxPages int
}

// PageVisitor receives each page body in order.
type PageVisitor func(page int, body []byte) error

// Paginate walks endpoint with limit/offset. It stops after a short page,
// after MaxPages, once total_count is reached, or at the API window cap.
// Returns the number of records seen.
func Paginate(ctx context.Context, f Fetcher, endpoint string, query url.Values, opts PageOptions, visit PageVisitor) (int, error) {
	log := zap.L().With(zap.String("component", "fetcher.opendata"), zap.String("endpoint", endpoint))

	size := opts.PageSize
	if size <= 0 {
		size = DefaultPageSize
	}

	seen := 0
	for page := 0; opts.MaxPages <= 0 || page < opts.MaxPages; page++ {
		offset := page * size
		if offset+size > maxWindow {
			log.Warn("reached api pagination window", zap.Int("offset", offset))
			break
		}

		body, err := fetchPage(ctx, f, endpoint, query, size, offset)
		if err != nil {
			return seen, eris.Wrapf(err, "opendata: page %d", page)
		}
		if !gjson.ValidBytes(body) {
			return seen, eris.Errorf("opendata: page %d is not valid json", page)
		}

		n := RecordCount(body)
		seen += n
		log.Debug("page fetched", zap.Int("page", page), zap.Int("offset", offset), zap.Int("records", n))

		if err := visit(page, body); err != nil {
			return seen, err
		}

		total := gjson.GetBytes(body, "total_count")
		if n < size || (total.Exists() && int64(seen) >= total.Int()) {
			break
		}
	}
	return seen, nil
}

// RecordCount returns the number of records in a page, reading `results`,
// then `records`, then a top-level array.
func RecordCount(body []byte) int {
	for _, path := range []string{"results", "records"} {
		if r := gjson.GetBytes(body, path); r.IsArray() {
			return len(r.Array())
		}
	}
	if r := gjson.ParseBytes(body); r.IsArray() {
		return len(r.Array())
	}
	return 0
}

func fetchPage(ctx context.Context, f Fetcher, endpoint string, query url.Values, limit, offset int) ([]byte, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, eris.Wrap(err, "parse endpoint")
	}
	q := u.Query()
	for k, vs := range query {
		q[k] = append([]string(nil), vs...)
	}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))
	u.RawQuery = q.Encode()

	body, err := f.Download(ctx, u.String())
	if err != nil {
		return nil, err
	}
	defer body.Close() //nolint:errcheck

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, eris.Wrap(err, "read body")
	}
	return data, nil
}

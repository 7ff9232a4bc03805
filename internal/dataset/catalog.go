// Package dataset describes the open-data sources the pipeline ingests and
// turns their pages and shapefiles into spatial records.
package dataset

import (
	_ "embed"
	"net/url"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/mapd-tech/civic-impact/internal/model"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Catalog lists the permit source and one source per amenity category.
type Catalog struct {
	BaseURL   string   `yaml:"base_url"`
	PageSize  int      `yaml:"page_size"`
	MaxPages  int      `yaml:"max_pages"`
	Permits   Source   `yaml:"permits"`
	Amenities []Source `yaml:"amenities"`
}

// Source is one open-data dataset.
type Source struct {
	Name    string   `yaml:"name"`
	Slug    string   `yaml:"slug"`
	Select  []string `yaml:"select"`
	Where   string   `yaml:"where,omitempty"`
	OrderBy string   `yaml:"order_by,omitempty"`
	// IDField names the column holding a stable id. When empty or blank the
	// id is derived from the record content.
	IDField string `yaml:"id_field,omitempty"`
	// PointField names a flat {lon, lat} column rewritten into geom.
	PointField string `yaml:"point_field,omitempty"`
}

// DefaultCatalog returns the embedded Vancouver catalog.
func DefaultCatalog() (*Catalog, error) {
	return ParseCatalog(defaultCatalog)
}

// LoadCatalog reads a catalog from a YAML file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "dataset: read catalog %s", path)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes and validates a YAML catalog.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, eris.Wrap(err, "dataset: parse catalog")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks that every source is addressable and every amenity source
// names a known category exactly once.
func (c *Catalog) Validate() error {
	if _, err := url.Parse(c.BaseURL); err != nil || c.BaseURL == "" {
		return eris.Errorf("dataset: invalid base_url %q", c.BaseURL)
	}
	if c.Permits.Slug == "" {
		return eris.New("dataset: permits source has no slug")
	}
	seen := make(map[model.Category]bool, len(c.Amenities))
	for _, s := range c.Amenities {
		cat, err := model.ParseCategory(s.Name)
		if err != nil {
			return eris.Wrap(err, "dataset: amenity source")
		}
		if seen[cat] {
			return eris.Errorf("dataset: duplicate amenity source %q", s.Name)
		}
		if s.Slug == "" {
			return eris.Errorf("dataset: amenity source %q has no slug", s.Name)
		}
		seen[cat] = true
	}
	return nil
}

// Amenity returns the source for cat.
func (c *Catalog) Amenity(cat model.Category) (Source, error) {
	for _, s := range c.Amenities {
		if parsed, err := model.ParseCategory(s.Name); err == nil && parsed == cat {
			return s, nil
		}
	}
	return Source{}, eris.Errorf("dataset: no source for category %s", cat)
}

// Endpoint returns the records URL of s under the catalog's base URL.
func (c *Catalog) Endpoint(s Source) string {
	return strings.TrimRight(c.BaseURL, "/") + "/" + url.PathEscape(s.Slug) + "/records"
}

// Query returns the Explore API filter parameters of s, without paging.
func (s Source) Query() url.Values {
	q := url.Values{}
	if len(s.Select) > 0 {
		q.Set("select", strings.Join(s.Select, ", "))
	}
	if s.Where != "" {
		q.Set("where", s.Where)
	}
	if s.OrderBy != "" {
		q.Set("order_by", s.OrderBy)
	}
	q.Set("lang", "en")
	return q
}

package dataset

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/mapd-tech/civic-impact/internal/model"
)

// geomField is the column the portal uses for GeoJSON features.
const geomField = "geom"

// recordNamespace seeds derived record ids.
var recordNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://opendata.vancouver.ca/"))

// ExtractRecords parses one page and returns its records, each reduced to
// its field mapping. Records are read from `results`, then `records`, then a
// top-level array. Non-object entries are dropped.
func ExtractRecords(body []byte) ([]map[string]any, error) {
	var parsed any
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, eris.Wrap(err, "dataset: decode page")
	}

	var items []any
	switch p := parsed.(type) {
	case map[string]any:
		if list, ok := p["results"].([]any); ok {
			items = list
		} else if list, ok := p["records"].([]any); ok {
			items = list
		}
	case []any:
		items = p
	}

	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, unwrapFields(m))
	}
	return out, nil
}

// unwrapFields handles the v1 `{record: {fields}}` and `{fields}` envelopes.
func unwrapFields(item map[string]any) map[string]any {
	if rec, ok := item["record"].(map[string]any); ok {
		if fields, ok := rec["fields"].(map[string]any); ok && len(fields) > 0 {
			return fields
		}
		return rec
	}
	if _, ok := item["fields"]; ok {
		if fields, ok := item["fields"].(map[string]any); ok && len(fields) > 0 {
			return fields
		}
	}
	return item
}

// ToRecords converts normalized field maps into spatial records for src.
func ToRecords(src Source, raw []map[string]any) []model.SpatialRecord {
	out := make([]model.SpatialRecord, 0, len(raw))
	for _, fields := range raw {
		out = append(out, toRecord(src, fields))
	}
	return out
}

func toRecord(src Source, raw map[string]any) model.SpatialRecord {
	fields := make(map[string]any, len(raw))
	for k, v := range raw {
		fields[k] = v
	}

	if src.PointField != "" {
		rewritePoint(fields, src.PointField)
	}

	rec := model.SpatialRecord{Fields: fields}
	if g, ok := fields[geomField]; ok {
		rec.Geom = g
		delete(fields, geomField)
	}
	rec.ID = recordID(src, rec)
	return rec
}

// rewritePoint replaces a flat {lon, lat} column with a GeoJSON feature under
// geom. The column is dropped even when it lacks coordinates.
func rewritePoint(fields map[string]any, key string) {
	pt, ok := fields[key].(map[string]any)
	if !ok {
		return
	}
	delete(fields, key)

	lon, hasLon := pt["lon"]
	lat, hasLat := pt["lat"]
	if !hasLon || !hasLat || lon == nil || lat == nil {
		return
	}
	fields[geomField] = map[string]any{
		"type": "Feature",
		"geometry": map[string]any{
			"type":        "Point",
			"coordinates": []any{lon, lat},
		},
	}
}

// recordID prefers the source's id column and otherwise hashes the record so
// re-ingesting identical content yields the same id.
func recordID(src Source, rec model.SpatialRecord) string {
	if src.IDField != "" {
		if id := strings.TrimSpace(rec.Field(src.IDField)); id != "" {
			return id
		}
	}
	// json.Marshal sorts map keys, so the encoding is canonical.
	data, err := json.Marshal(struct {
		Geom   any            `json:"geom"`
		Fields map[string]any `json:"fields"`
	}{rec.Geom, rec.Fields})
	if err != nil {
		data = []byte(rec.DisplayName())
	}
	return uuid.NewSHA1(recordNamespace, append([]byte(src.Slug+"\x00"), data...)).String()
}

package analysis

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tidwall/gjson"

	"github.com/mapd-tech/civic-impact/internal/model"
)

// ErrMalformedResponse marks a reply that is not a valid impact report.
var ErrMalformedResponse = eris.New("analysis: malformed response")

var requiredPaths = []string{
	"AnalysisSummary.title",
	"AnalysisSummary.description",
	"AnalysisSummary.overallImportance",
}

// ParseReport extracts and validates an impact report from a model reply.
func ParseReport(text string) (*model.ImpactReport, error) {
	raw := CleanJSON(text)
	if raw == "" || !gjson.Valid(raw) {
		return nil, eris.Wrap(ErrMalformedResponse, "reply is not JSON")
	}

	doc := gjson.Parse(raw)
	if !doc.IsObject() {
		return nil, eris.Wrap(ErrMalformedResponse, "reply is not a JSON object")
	}
	for _, p := range requiredPaths {
		if !doc.Get(p).Exists() {
			return nil, eris.Wrapf(ErrMalformedResponse, "missing %s", p)
		}
	}
	if v := doc.Get("AnalysisSummary.overallImportance"); v.Type != gjson.Number {
		return nil, eris.Wrapf(ErrMalformedResponse, "overallImportance is %s, want number", v.Type)
	}
	infra := doc.Get("AnalyzedInfrastructure")
	if !infra.IsArray() {
		return nil, eris.Wrap(ErrMalformedResponse, "AnalyzedInfrastructure is not an array")
	}
	for i, item := range infra.Array() {
		if s := item.Get("impactScore"); s.Type != gjson.Number {
			return nil, eris.Wrapf(ErrMalformedResponse, "AnalyzedInfrastructure[%d].impactScore is %s, want number", i, s.Type)
		}
	}

	var report model.ImpactReport
	if err := json.Unmarshal([]byte(raw), &report); err != nil {
		return nil, eris.Wrapf(ErrMalformedResponse, "decode: %v", err)
	}
	if report.AnalyzedInfrastructure == nil {
		report.AnalyzedInfrastructure = []model.AnalyzedInfrastructure{}
	}
	if err := report.Validate(); err != nil {
		return nil, eris.Wrapf(ErrMalformedResponse, "%v", err)
	}
	return &report, nil
}

// CleanJSON strips markdown code fences and surrounding prose, returning
// the outermost {...} span.
func CleanJSON(text string) string {
	text = strings.TrimSpace(text)
	if rest, ok := strings.CutPrefix(text, "```"); ok {
		rest = strings.TrimPrefix(rest, "json")
		if idx := strings.LastIndex(rest, "```"); idx >= 0 {
			rest = rest[:idx]
		}
		text = rest
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return ""
	}
	return strings.TrimSpace(text[start : end+1])
}

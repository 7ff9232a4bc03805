package analysis

import (
	"fmt"
	"slices"
	"strings"

	"github.com/mapd-tech/civic-impact/internal/model"
)

const systemPrompt = `You are an urban planning analyst assessing how a newly permitted development
will affect the public infrastructure around it.

You receive one building permit and the civic amenities within walking distance of it,
grouped by category with their distance in kilometres.

Respond with a single JSON object and nothing else, using exactly this shape:

{
  "AnalysisSummary": {
    "title": "short headline",
    "description": "two to four sentences on the overall effect",
    "overallImportance": <number from 1 to 10>
  },
  "AnalyzedInfrastructure": [
    {
      "name": "amenity name as given",
      "type": "amenity category as given",
      "impactScore": <number from -10 (strongly negative) to 10 (strongly positive)>,
      "quantitativeImpact": "estimated measurable change, e.g. +120 daily visitors",
      "justification": "one or two sentences"
    }
  ]
}

Include one AnalyzedInfrastructure entry per amenity that the development plausibly affects.
Closer amenities and larger projects generally matter more. If no amenities are listed,
return an empty AnalyzedInfrastructure array and explain the isolation in the summary.`

// permitKeys are the permit attributes worth showing the model, in order.
var permitKeys = []struct{ key, label string }{
	{"address", "Address"},
	{"projectvalue", "Project value (CAD)"},
	{"typeofwork", "Type of work"},
	{"propertyuse", "Property use"},
	{"specificusecategory", "Specific use"},
	{"geolocalarea", "Local area"},
	{"projectdescription", "Description"},
	{"issuedate", "Issued"},
	{"permitelapseddays", "Days from application to issue"},
}

// BuildPrompt renders the user message for one permit.
func BuildPrompt(p model.EnrichedPermit) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Permit %s\n", p.Permit.ID)
	for _, k := range permitKeys {
		if v := p.Permit.Field(k.key); v != "" {
			fmt.Fprintf(&sb, "- %s: %s\n", k.label, v)
		}
	}

	sb.WriteString("\nNearby amenities:\n")
	if p.NearbyCount() == 0 {
		sb.WriteString("(none within the search radius)\n")
		return sb.String()
	}

	for _, cat := range orderedCategories(p.Nearby) {
		matches := p.Nearby[cat]
		if len(matches) == 0 {
			continue
		}
		fmt.Fprintf(&sb, "\n%s (%d):\n", cat.DisplayName(), len(matches))
		for _, m := range matches {
			fmt.Fprintf(&sb, "- %s, %.3f km", m.Record.DisplayName(), m.DistanceKM)
			if addr := m.Record.Field("address"); addr != "" && addr != m.Record.DisplayName() {
				fmt.Fprintf(&sb, ", %s", addr)
			}
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

// orderedCategories returns the known categories first in their fixed order,
// then any extra keys.
func orderedCategories(nearby map[model.Category][]model.AmenityMatch) []model.Category {
	out := make([]model.Category, 0, len(nearby))
	seen := make(map[model.Category]bool, len(nearby))
	for _, c := range model.AllCategories() {
		if _, ok := nearby[c]; ok {
			out = append(out, c)
			seen[c] = true
		}
	}
	var extra []model.Category
	for c := range nearby {
		if !seen[c] {
			extra = append(extra, c)
		}
	}
	slices.Sort(extra)
	return append(out, extra...)
}

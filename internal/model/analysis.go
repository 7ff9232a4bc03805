package model

import (
	"math"
	"time"

	"github.com/rotisserie/eris"
)

const (
	MinImpactScore = -10
	MaxImpactScore = 10
	MinImportance  = 1
	MaxImportance  = 10
)

// AnalysisSummary is the headline of an impact report.
type AnalysisSummary struct {
	ID                string  `json:"_id,omitempty"`
	Title             string  `json:"title"`
	Description       string  `json:"description"`
	OverallImportance float64 `json:"overallImportance"` // 1-10
}

// AnalyzedInfrastructure scores the impact of a permit on one nearby amenity.
type AnalyzedInfrastructure struct {
	ID                 string  `json:"_id,omitempty"`
	Name               string  `json:"name"`
	Type               string  `json:"type"`
	ImpactScore        float64 `json:"impactScore"` // -10 to 10
	QuantitativeImpact string  `json:"quantitativeImpact"`
	Justification      string  `json:"justification"`
}

// ImpactReport is the structured payload returned by the analysis service.
type ImpactReport struct {
	AnalysisSummary        AnalysisSummary          `json:"AnalysisSummary"`
	AnalyzedInfrastructure []AnalyzedInfrastructure `json:"AnalyzedInfrastructure"`
}

// Validate checks the report against its score ranges and required fields.
func (r ImpactReport) Validate() error {
	if r.AnalysisSummary.Title == "" {
		return eris.New("model: report summary has no title")
	}
	imp := r.AnalysisSummary.OverallImportance
	if math.IsNaN(imp) || imp < MinImportance || imp > MaxImportance {
		return eris.Errorf("model: overall importance %v outside [%d,%d]", imp, MinImportance, MaxImportance)
	}
	for i, inf := range r.AnalyzedInfrastructure {
		if math.IsNaN(inf.ImpactScore) || inf.ImpactScore < MinImpactScore || inf.ImpactScore > MaxImpactScore {
			return eris.Errorf("model: infrastructure[%d] impact score %v outside [%d,%d]",
				i, inf.ImpactScore, MinImpactScore, MaxImpactScore)
		}
	}
	return nil
}

// AnalysisResult is one permit's impact report as produced by the analyzer.
type AnalysisResult struct {
	PermitID    string       `json:"permit_id"`
	Report      ImpactReport `json:"report"`
	Model       string       `json:"model,omitempty"`
	GeneratedAt time.Time    `json:"generated_at"`
}

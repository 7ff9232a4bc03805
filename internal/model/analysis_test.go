package model

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validReport() ImpactReport {
	return ImpactReport{
		AnalysisSummary: AnalysisSummary{Title: "Mid-rise rental", Description: "d", OverallImportance: 6},
		AnalyzedInfrastructure: []AnalyzedInfrastructure{
			{Name: "Grandview Park", Type: "parks", ImpactScore: -3},
			{Name: "Britannia Library", Type: "libraries", ImpactScore: 10},
		},
	}
}

func TestImpactReport_Validate(t *testing.T) {
	require.NoError(t, validReport().Validate())

	noTitle := validReport()
	noTitle.AnalysisSummary.Title = ""
	assert.Error(t, noTitle.Validate())

	lowImportance := validReport()
	lowImportance.AnalysisSummary.OverallImportance = 0
	assert.Error(t, lowImportance.Validate())

	outOfRange := validReport()
	outOfRange.AnalyzedInfrastructure[1].ImpactScore = 10.5
	err := outOfRange.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "infrastructure[1]")

	nan := validReport()
	nan.AnalyzedInfrastructure[0].ImpactScore = math.NaN()
	assert.Error(t, nan.Validate())
}

func TestImpactReport_ValidateEmptyInfrastructure(t *testing.T) {
	r := validReport()
	r.AnalyzedInfrastructure = nil
	assert.NoError(t, r.Validate())
}

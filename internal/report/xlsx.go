package report

import (
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/mapd-tech/civic-impact/internal/batch"
)

const (
	sheetSummary  = "Summary"
	sheetAnalyses = "Analyses"
	sheetImpacts  = "Infrastructure"
)

var (
	analysesHeader = []string{"Permit ID", "Success", "Title", "Overall Importance", "Model", "Error", "Persist Error"}
	impactsHeader  = []string{"Permit ID", "Name", "Type", "Impact Score", "Quantitative Impact", "Justification"}
)

// WriteXLSX writes the run summary and every outcome to an audit workbook.
func WriteXLSX(path string, outcomes []Outcome, summary batch.RunSummary, opts ...BuildOption) error {
	f, err := buildWorkbook(Build(outcomes, summary, opts...))
	if err != nil {
		return err
	}
	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "xlsx: save %s", path)
	}
	return nil
}

func buildWorkbook(doc Document) (*xlsx.File, error) {
	f := xlsx.NewFile()

	sum, err := f.AddSheet(sheetSummary)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: add summary sheet")
	}
	m := doc.Metadata
	for _, kv := range [][2]string{
		{"Run ID", m.RunID},
		{"Total", strconv.Itoa(m.Total)},
		{"Processed", strconv.Itoa(m.Processed)},
		{"Succeeded", strconv.Itoa(m.Succeeded)},
		{"Failed", strconv.Itoa(m.Failed)},
		{"Persist Failed", strconv.Itoa(m.PersistFailed)},
		{"Success Rate", formatFloat(m.SuccessRate)},
		{"Elapsed Seconds", formatFloat(m.ElapsedSeconds)},
		{"Average Seconds Per Item", formatFloat(m.AvgSecondsPerItem)},
		{"Interrupted", strconv.FormatBool(m.Interrupted)},
	} {
		addRow(sum, kv[:]...)
	}

	analyses, err := f.AddSheet(sheetAnalyses)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: add analyses sheet")
	}
	impacts, err := f.AddSheet(sheetImpacts)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: add infrastructure sheet")
	}
	addRow(analyses, analysesHeader...)
	addRow(impacts, impactsHeader...)

	for _, e := range doc.ImpactAnalyses {
		if e.Report == nil {
			addRow(analyses, e.PermitID, "false", "", "", e.Model, e.Error, "")
			continue
		}
		s := e.Report.AnalysisSummary
		addRow(analyses, e.PermitID, "true", s.Title, formatFloat(s.OverallImportance), e.Model, "", e.PersistError)
		for _, inf := range e.Report.AnalyzedInfrastructure {
			addRow(impacts, e.PermitID, inf.Name, inf.Type, formatFloat(inf.ImpactScore),
				inf.QuantitativeImpact, inf.Justification)
		}
	}
	return f, nil
}

func addRow(sheet *xlsx.Sheet, values ...string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

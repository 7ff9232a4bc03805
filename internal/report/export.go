package report

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"

	"github.com/mapd-tech/civic-impact/internal/batch"
	"github.com/mapd-tech/civic-impact/internal/model"
)

// Document is the serialized audit report of one run.
type Document struct {
	Metadata       batch.RunSummary `json:"metadata"`
	ImpactAnalyses []Entry          `json:"impact_analyses"`
}

// Entry is one outcome in the audit report.
type Entry struct {
	PermitID string              `json:"permit_id"`
	Success  bool                `json:"success"`
	Report   *model.ImpactReport `json:"report,omitempty"`
	Model    string              `json:"model,omitempty"`
	Error    string              `json:"error,omitempty"`
	// PersistError is set when the analysis succeeded but could not be stored.
	PersistError string `json:"persist_error,omitempty"`
}

// BuildOption adjusts a Document after its entries are built.
type BuildOption func(*Document)

// WithPersistFailures marks entries whose result was not stored.
func WithPersistFailures(failures map[string]string) BuildOption {
	return func(d *Document) {
		for i := range d.ImpactAnalyses {
			if msg, ok := failures[d.ImpactAnalyses[i].PermitID]; ok {
				d.ImpactAnalyses[i].PersistError = msg
			}
		}
	}
}

// Build bundles every outcome, success or failure, with the run summary.
func Build(outcomes []Outcome, summary batch.RunSummary, opts ...BuildOption) Document {
	doc := Document{Metadata: summary, ImpactAnalyses: make([]Entry, 0, len(outcomes))}
	for _, o := range outcomes {
		e := Entry{PermitID: o.Item.Permit.ID, Success: o.OK()}
		if o.OK() && o.Result != nil {
			rep := o.Result.Report
			e.Report = &rep
			e.Model = o.Result.Model
			if e.PermitID == "" {
				e.PermitID = o.Result.PermitID
			}
		} else {
			e.Error = o.Error()
		}
		doc.ImpactAnalyses = append(doc.ImpactAnalyses, e)
	}
	for _, opt := range opts {
		opt(&doc)
	}
	return doc
}

// ExportAll renders the audit report as indented JSON.
func ExportAll(outcomes []Outcome, summary batch.RunSummary, opts ...BuildOption) ([]byte, error) {
	data, err := json.MarshalIndent(Build(outcomes, summary, opts...), "", "  ")
	if err != nil {
		return nil, eris.Wrap(err, "report: marshal")
	}
	return data, nil
}

// WriteJSON writes the audit report to path.
func WriteJSON(path string, outcomes []Outcome, summary batch.RunSummary, opts ...BuildOption) error {
	data, err := ExportAll(outcomes, summary, opts...)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "report: write %s", path)
	}
	return nil
}

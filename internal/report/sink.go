// Package report persists successful impact analyses and renders the audit
// report of a whole run.
package report

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/mapd-tech/civic-impact/internal/batch"
	"github.com/mapd-tech/civic-impact/internal/model"
)

// Outcome is the orchestrator outcome for one enriched permit.
type Outcome = batch.Outcome[model.EnrichedPermit]

// ErrNotPersistable is returned when Persist is handed a failed outcome.
var ErrNotPersistable = eris.New("report: outcome did not succeed")

// Store is the store capability the sink needs.
type Store interface {
	UpsertReport(ctx context.Context, result model.AnalysisResult) error
}

// Sink writes successful results to the store. Overwrites are keyed by
// permit id, so re-running a permit replaces its earlier report.
type Sink struct {
	store  Store
	failed map[string]string
	log    *zap.Logger
}

// NewSink returns a Sink backed by store.
func NewSink(store Store) *Sink {
	return &Sink{
		store:  store,
		failed: make(map[string]string),
		log:    zap.L().With(zap.String("component", "report.sink")),
	}
}

// Persist upserts the result of a successful outcome.
func (s *Sink) Persist(ctx context.Context, o Outcome) error {
	if !o.OK() || o.Result == nil {
		return eris.Wrapf(ErrNotPersistable, "permit %s", o.Item.Permit.ID)
	}
	if err := s.store.UpsertReport(ctx, *o.Result); err != nil {
		return eris.Wrapf(err, "report: persist %s", o.Result.PermitID)
	}
	s.log.Debug("report persisted", zap.String("permit_id", o.Result.PermitID))
	return nil
}

// PersistBatch persists every successful outcome of a batch and returns how
// many were written. Failed outcomes are skipped. A store error for one
// permit does not stop the rest of the batch; all such errors are joined.
func (s *Sink) PersistBatch(ctx context.Context, outcomes []Outcome) (int, error) {
	n := 0
	var errs []error
	for _, o := range outcomes {
		if !o.OK() {
			continue
		}
		id := permitID(o)
		if err := s.Persist(ctx, o); err != nil {
			s.failed[id] = err.Error()
			errs = append(errs, err)
			continue
		}
		delete(s.failed, id)
		n++
	}
	if len(errs) > 0 {
		return n, eris.Wrapf(errors.Join(errs...), "report: persist batch: %d of %d failed", len(errs), n+len(errs))
	}
	return n, nil
}

// PersistFailures returns the permits whose successful result could not be
// stored, keyed by permit id.
func (s *Sink) PersistFailures() map[string]string {
	out := make(map[string]string, len(s.failed))
	for id, msg := range s.failed {
		out[id] = msg
	}
	return out
}

func permitID(o Outcome) string {
	if o.Item.Permit.ID != "" {
		return o.Item.Permit.ID
	}
	if o.Result != nil {
		return o.Result.PermitID
	}
	return ""
}

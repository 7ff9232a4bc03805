package batch

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mapd-tech/civic-impact/internal/model"
)

var (
	// ErrInterrupted is returned by Run when the context is cancelled between
	// batches. The outcomes returned alongside it cover every item attempted.
	ErrInterrupted = eris.New("batch: run interrupted")

	// ErrEmptyResult marks an analyze call that returned neither a result nor
	// an error.
	ErrEmptyResult = eris.New("batch: analyze returned no result")
)

// AnalyzeFunc analyzes one item.
type AnalyzeFunc[T any] func(ctx context.Context, item T) (*model.AnalysisResult, error)

// Options configures an Orchestrator.
type Options struct {
	// BatchSize is both the chunk size and the concurrency cap. Must be > 0.
	BatchSize int
	// InterBatchDelay is waited after every batch but the last. Must be >= 0.
	InterBatchDelay time.Duration
}

// Orchestrator runs batches strictly in sequence with one goroutine per item
// inside a batch.
type Orchestrator[T any] struct {
	opts Options

	// OnBatch, when set, is invoked from the coordinating goroutine after
	// each batch drains, with outcomes in item order.
	OnBatch func(batchIndex int, outcomes []Outcome[T])
}

// New validates opts and returns an orchestrator.
func New[T any](opts Options) (*Orchestrator[T], error) {
	if opts.BatchSize <= 0 {
		return nil, eris.Errorf("batch: batch size must be positive, got %d", opts.BatchSize)
	}
	if opts.InterBatchDelay < 0 {
		return nil, eris.Errorf("batch: inter-batch delay must not be negative, got %s", opts.InterBatchDelay)
	}
	return &Orchestrator[T]{opts: opts}, nil
}

// Run analyzes every item and returns one outcome per item in input order.
// Individual failures never abort the run. Cancellation of ctx is honored
// only between batches; a batch that has started always drains. On
// cancellation Run returns the outcomes gathered so far with ErrInterrupted.
func (o *Orchestrator[T]) Run(ctx context.Context, items []T, analyze AnalyzeFunc[T]) ([]Outcome[T], error) {
	batches := Partition(items, o.opts.BatchSize)
	log := zap.L().With(
		zap.String("component", "batch"),
		zap.Int("items", len(items)),
		zap.Int("batches", len(batches)),
		zap.Int("batch_size", o.opts.BatchSize),
	)

	outcomes := make([]Outcome[T], 0, len(items))
	for i, chunk := range batches {
		if err := ctx.Err(); err != nil {
			log.Warn("run interrupted before batch",
				zap.Int("batch", i),
				zap.Int("processed", len(outcomes)),
			)
			return outcomes, eris.Wrapf(ErrInterrupted, "before batch %d of %d", i+1, len(batches))
		}

		start := time.Now()
		results := o.runBatch(context.WithoutCancel(ctx), chunk, analyze)
		outcomes = append(outcomes, results...)

		failed := 0
		for _, r := range results {
			if !r.Succeeded {
				failed++
			}
		}
		log.Info("batch complete",
			zap.Int("batch", i),
			zap.Int("size", len(chunk)),
			zap.Int("failed", failed),
			zap.Duration("elapsed", time.Since(start)),
		)

		if o.OnBatch != nil {
			o.OnBatch(i, results)
		}

		if i < len(batches)-1 && o.opts.InterBatchDelay > 0 {
			if !sleep(ctx, o.opts.InterBatchDelay) {
				log.Warn("run interrupted during inter-batch delay",
					zap.Int("processed", len(outcomes)),
				)
				return outcomes, eris.Wrapf(ErrInterrupted, "after batch %d of %d", i+1, len(batches))
			}
		}
	}

	return outcomes, nil
}

// runBatch analyzes a single chunk. Each goroutine writes only its own slot.
func (o *Orchestrator[T]) runBatch(ctx context.Context, chunk []T, analyze AnalyzeFunc[T]) []Outcome[T] {
	results := make([]Outcome[T], len(chunk))

	var g errgroup.Group
	g.SetLimit(len(chunk))
	for idx, item := range chunk {
		g.Go(func() error {
			results[idx] = execute(ctx, item, analyze)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func execute[T any](ctx context.Context, item T, analyze AnalyzeFunc[T]) (out Outcome[T]) {
	out.Item = item
	defer func() {
		if r := recover(); r != nil {
			out.Result = nil
			out.Succeeded = false
			out.Err = eris.Errorf("batch: analyze panicked: %v", r)
		}
	}()

	res, err := analyze(ctx, item)
	switch {
	case err != nil:
		out.Err = err
	case res == nil:
		out.Err = ErrEmptyResult
	default:
		out.Result = res
		out.Succeeded = true
	}
	return out
}

// sleep waits d or until ctx is done. It reports whether the full delay
// elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mapd-tech/civic-impact/internal/analysis"
	"github.com/mapd-tech/civic-impact/internal/batch"
	"github.com/mapd-tech/civic-impact/internal/metrics"
	"github.com/mapd-tech/civic-impact/internal/model"
	"github.com/mapd-tech/civic-impact/internal/report"
	"github.com/mapd-tech/civic-impact/internal/resilience"
	"github.com/mapd-tech/civic-impact/internal/store"
	"github.com/mapd-tech/civic-impact/pkg/anthropic"
)

var (
	analyzeSelect    string
	analyzeLimit     int
	analyzeBatchSize int
	analyzeReport    string
	analyzeXLSX      string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Score enriched permits with Claude in rate-limited batches",
	Long:  "Runs the impact analysis over enriched permits. Batches run one after another with a delay in between; permits inside a batch run concurrently. SIGINT stops the run after the current batch drains and still writes the report.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if analyzeSelect != "" {
			cfg.Analysis.Select = analyzeSelect
		}
		if analyzeBatchSize > 0 {
			cfg.Batch.Size = analyzeBatchSize
		}
		if err := cfg.Validate("analyze"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		retry := resilience.DefaultRetryConfig()
		if cfg.Analysis.MaxAttempts > 0 {
			retry.MaxAttempts = cfg.Analysis.MaxAttempts
		}
		analyzer := analysis.NewClaudeAnalyzer(
			anthropic.NewClient(cfg.Anthropic.Key),
			analysis.WithModel(cfg.Anthropic.Model),
			analysis.WithMaxTokens(cfg.Anthropic.MaxTokens),
			analysis.WithTemperature(cfg.Anthropic.Temperature),
			analysis.WithRateLimit(cfg.Anthropic.RequestsPerSecond, cfg.Anthropic.Burst),
			analysis.WithRetry(retry),
			analysis.WithBreaker(resilience.NewBreaker(
				cfg.Analysis.BreakerThreshold,
				time.Duration(cfg.Analysis.BreakerCooldownSecs)*time.Second,
			)),
		)
		zap.L().Info("analyzer configured",
			zap.String("model", analyzer.Model()),
			zap.Float64("requests_per_second", cfg.Anthropic.RequestsPerSecond),
		)

		summary, err := runAnalyze(ctx, st, analyzer, analyzeOptions{
			RunID:      uuid.NewString(),
			Select:     cfg.Analysis.Select,
			Limit:      analyzeLimit,
			BatchSize:  cfg.Batch.Size,
			Delay:      cfg.Batch.Delay(),
			ReportPath: analyzeReport,
			XLSXPath:   analyzeXLSX,
		})
		if err != nil {
			return err
		}
		if summary.Interrupted {
			zap.L().Warn("analysis interrupted; rerun with --select pending to resume",
				zap.Int("processed", summary.Processed),
				zap.Int("total", summary.Total),
			)
		}
		return nil
	},
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeSelect, "select", "", "which enriched permits to analyze: pending or all (default from config)")
	analyzeCmd.Flags().IntVar(&analyzeLimit, "limit", 0, "max permits to analyze, 0 for all")
	analyzeCmd.Flags().IntVar(&analyzeBatchSize, "batch-size", 0, "permits per batch (default from config)")
	analyzeCmd.Flags().StringVar(&analyzeReport, "report", "", "write the JSON run report to this path")
	analyzeCmd.Flags().StringVar(&analyzeXLSX, "xlsx", "", "write an audit spreadsheet to this path")
	rootCmd.AddCommand(analyzeCmd)
}

// analyzeOptions configures one analysis run.
type analyzeOptions struct {
	RunID      string
	Select     string // "pending" or "all"
	Limit      int
	BatchSize  int
	Delay      time.Duration
	ReportPath string
	XLSXPath   string
}

// runAnalyze drives analyzer over the selected enriched permits, persisting
// each batch's successes as it drains. The returned summary covers exactly
// the permits attempted, including when ctx is cancelled mid-run.
func runAnalyze(ctx context.Context, st store.Store, analyzer analysis.Analyzer, opts analyzeOptions) (batch.RunSummary, error) {
	log := zap.L().With(zap.String("component", "analyze"), zap.String("run_id", opts.RunID))

	items, err := st.ListEnriched(ctx, store.EnrichedFilter{
		PendingOnly: opts.Select != "all",
		Limit:       opts.Limit,
	})
	if err != nil {
		return batch.RunSummary{}, eris.Wrap(err, "analyze: list enriched permits")
	}

	orch, err := batch.New[model.EnrichedPermit](batch.Options{
		BatchSize:       opts.BatchSize,
		InterBatchDelay: opts.Delay,
	})
	if err != nil {
		return batch.RunSummary{}, err
	}

	tracker := batch.NewTracker(opts.RunID, len(items))
	sink := report.NewSink(st)
	// Drained batches are persisted even after cancellation.
	persistCtx := context.WithoutCancel(ctx)

	orch.OnBatch = func(i int, outcomes []batch.Outcome[model.EnrichedPermit]) {
		for _, o := range outcomes {
			tracker.Record(o)
			if !o.OK() {
				log.Warn("permit analysis failed",
					zap.String("permit_id", o.Item.Permit.ID),
					zap.Error(o.Err),
				)
			}
		}
		metrics.ObserveBatch(outcomes)

		n, err := sink.PersistBatch(persistCtx, outcomes)
		metrics.ReportsPersistedTotal.Add(float64(n))
		if err != nil {
			tracker.RecordPersistFailures(countOK(outcomes) - n)
			log.Error("persist batch failed", zap.Int("batch", i), zap.Error(err))
		}

		s := tracker.Summary()
		log.Info("progress",
			zap.Int("batch", i),
			zap.Int("processed", s.Processed),
			zap.Int("total", s.Total),
			zap.Int("succeeded", s.Succeeded),
			zap.Int("failed", s.Failed),
			zap.Float64("success_rate", s.SuccessRate),
		)
	}

	log.Info("analysis starting",
		zap.Int("permits", len(items)),
		zap.String("select", opts.Select),
		zap.Int("batch_size", opts.BatchSize),
		zap.Duration("delay", opts.Delay),
	)

	outcomes, runErr := orch.Run(ctx, items, func(ctx context.Context, p model.EnrichedPermit) (*model.AnalysisResult, error) {
		begin := time.Now()
		defer metrics.ObserveAnalysis(begin)
		return analyzer.Analyze(ctx, p)
	})
	interrupted := errors.Is(runErr, batch.ErrInterrupted)
	if runErr != nil && !interrupted {
		return tracker.Finalize(false), eris.Wrap(runErr, "analyze: run")
	}

	summary := tracker.Finalize(interrupted)
	failures := report.WithPersistFailures(sink.PersistFailures())

	if opts.ReportPath != "" {
		if err := report.WriteJSON(opts.ReportPath, outcomes, summary, failures); err != nil {
			return summary, err
		}
		log.Info("report written", zap.String("path", opts.ReportPath))
	}
	if opts.XLSXPath != "" {
		if err := report.WriteXLSX(opts.XLSXPath, outcomes, summary, failures); err != nil {
			return summary, err
		}
		log.Info("spreadsheet written", zap.String("path", opts.XLSXPath))
	}

	log.Info("analysis complete",
		zap.Int("total", summary.Total),
		zap.Int("processed", summary.Processed),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
		zap.Int("persist_failed", summary.PersistFailed),
		zap.Float64("success_rate", summary.SuccessRate),
		zap.Float64("elapsed_seconds", summary.ElapsedSeconds),
		zap.Float64("average_seconds_per_item", summary.AvgSecondsPerItem),
		zap.Bool("interrupted", summary.Interrupted),
	)
	if summary.PersistFailed > 0 {
		return summary, eris.Errorf("analyze: %d successful analyses were not stored", summary.PersistFailed)
	}
	return summary, nil
}

func countOK(outcomes []batch.Outcome[model.EnrichedPermit]) int {
	n := 0
	for _, o := range outcomes {
		if o.OK() {
			n++
		}
	}
	return n
}

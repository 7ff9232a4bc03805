// Package analysis turns an enriched permit into a structured impact report
// by asking a language model to score the permit's effect on each nearby
// amenity.
package analysis

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/mapd-tech/civic-impact/internal/model"
	"github.com/mapd-tech/civic-impact/internal/resilience"
	"github.com/mapd-tech/civic-impact/pkg/anthropic"
)

// Analyzer produces an impact report for one enriched permit.
type Analyzer interface {
	Analyze(ctx context.Context, permit model.EnrichedPermit) (*model.AnalysisResult, error)
}

const (
	defaultModel     = "claude-sonnet-4-5-20250929"
	defaultMaxTokens = 4096
)

// ClaudeAnalyzer implements Analyzer over the Anthropic Messages API.
type ClaudeAnalyzer struct {
	client      anthropic.Client
	model       string
	maxTokens   int64
	temperature *float64
	limiter     *rate.Limiter
	retry       resilience.RetryConfig
	breaker     *resilience.Breaker
	now         func() time.Time
}

// Option configures a ClaudeAnalyzer.
type Option func(*ClaudeAnalyzer)

// WithModel sets the model id.
func WithModel(m string) Option {
	return func(a *ClaudeAnalyzer) {
		if m != "" {
			a.model = m
		}
	}
}

// WithMaxTokens caps the reply length.
func WithMaxTokens(n int64) Option {
	return func(a *ClaudeAnalyzer) {
		if n > 0 {
			a.maxTokens = n
		}
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(a *ClaudeAnalyzer) { a.temperature = &t }
}

// WithRateLimit limits calls to rps per second with the given burst. A
// non-positive rps disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(a *ClaudeAnalyzer) {
		if rps <= 0 {
			a.limiter = nil
			return
		}
		a.limiter = rate.NewLimiter(rate.Limit(rps), max(burst, 1))
	}
}

// WithRetry overrides the transient-error retry policy.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(a *ClaudeAnalyzer) { a.retry = cfg }
}

// WithBreaker fails calls fast while the upstream is unhealthy.
func WithBreaker(b *resilience.Breaker) Option {
	return func(a *ClaudeAnalyzer) { a.breaker = b }
}

// NewClaudeAnalyzer returns an analyzer using client.
func NewClaudeAnalyzer(client anthropic.Client, opts ...Option) *ClaudeAnalyzer {
	a := &ClaudeAnalyzer{
		client:    client,
		model:     defaultModel,
		maxTokens: defaultMaxTokens,
		retry:     resilience.DefaultRetryConfig(),
		now:       time.Now,
	}
	for _, o := range opts {
		o(a)
	}
	if a.retry.OnRetry == nil {
		a.retry.OnRetry = resilience.LogRetries("anthropic", "create_message")
	}
	return a
}

// Model returns the configured model id.
func (a *ClaudeAnalyzer) Model() string { return a.model }

// Analyze implements Analyzer. Malformed replies fail with
// ErrMalformedResponse and are not retried.
func (a *ClaudeAnalyzer) Analyze(ctx context.Context, permit model.EnrichedPermit) (*model.AnalysisResult, error) {
	log := zap.L().With(zap.String("component", "analysis"), zap.String("permit_id", permit.Permit.ID))

	req := anthropic.MessageRequest{
		Model:       a.model,
		MaxTokens:   a.maxTokens,
		System:      anthropic.BuildCachedSystemBlocks(systemPrompt),
		Messages:    []anthropic.Message{{Role: "user", Content: BuildPrompt(permit)}},
		Temperature: a.temperature,
	}

	resp, err := resilience.DoVal(ctx, a.retry, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return a.call(ctx, req)
	})
	if err != nil {
		return nil, eris.Wrapf(err, "analysis: permit %s", permit.Permit.ID)
	}
	log.Debug("analysis reply", resp.Usage.Fields(a.model)...)

	report, err := ParseReport(resp.Text())
	if err != nil {
		return nil, eris.Wrapf(err, "analysis: permit %s", permit.Permit.ID)
	}

	return &model.AnalysisResult{
		PermitID:    permit.Permit.ID,
		Report:      *report,
		Model:       a.model,
		GeneratedAt: a.now().UTC(),
	}, nil
}

func (a *ClaudeAnalyzer) call(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	if a.breaker != nil {
		if err := a.breaker.Allow(); err != nil {
			return nil, err
		}
	}
	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "analysis: rate limit wait")
		}
	}

	resp, err := a.client.CreateMessage(ctx, req)
	if err != nil {
		if code := anthropic.StatusCode(err); resilience.IsTransientHTTPStatus(code) {
			err = resilience.NewTransientError(err, code)
		}
	}
	if a.breaker != nil {
		a.breaker.Report(err)
	}
	if err != nil {
		return nil, err
	}
	return resp, nil
}

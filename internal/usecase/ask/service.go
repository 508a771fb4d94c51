package ask

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"splask/internal/domain"
	"splask/internal/logger"
	"splask/internal/metrics"
)

// Question is one inbound request to the pipeline.
type Question struct {
	Text      string
	Overrides domain.SearchOverrides
}

// Service orchestrates the question pipeline: generate SPL, execute it,
// summarize the results. Stages are strictly sequential; each depends on the
// previous stage's output.
type Service struct {
	completer Completer
	searcher  Searcher

	retryAttempts int
	retryBackoff  time.Duration
}

// New creates an ask service. Retries are disabled until WithRetry is called.
func New(completer Completer, searcher Searcher) *Service {
	return &Service{
		completer:     completer,
		searcher:      searcher,
		retryAttempts: 1,
	}
}

// WithRetry enables bounded retries with exponential backoff for transient
// upstream failures. attempts is the total attempt count per stage.
func (s *Service) WithRetry(attempts int, initialBackoff time.Duration) *Service {
	if attempts > 1 {
		s.retryAttempts = attempts
		s.retryBackoff = initialBackoff
	}
	return s
}

// Ask runs the full pipeline for one question.
func (s *Service) Ask(ctx context.Context, q Question) (domain.Answer, error) {
	log := logger.FromContext(ctx)

	if strings.TrimSpace(q.Text) == "" {
		return domain.Answer{}, s.fail(log, StageReceived,
			fmt.Errorf("question must not be empty: %w", domain.ErrInvalidInput))
	}
	s.advance(log, StageReceived)

	s.advance(log, StageGeneratingQuery)
	query, err := retryTransient(ctx, s.retryAttempts, s.retryBackoff, func() (string, error) {
		return s.completer.GenerateQuery(ctx, q.Text)
	})
	if err != nil {
		return domain.Answer{}, s.fail(log, StageGeneratingQuery, err)
	}
	s.advance(log, StageQueryGenerated)
	log.Info("generated query", zap.String("query", query))

	host := q.Overrides.Host
	if host == "" {
		host = s.searcher.DefaultHost()
	}

	s.advance(log, StageExecutingSearch)
	results, err := retryTransient(ctx, s.retryAttempts, s.retryBackoff, func() ([]domain.Record, error) {
		return s.searcher.Run(ctx, query, q.Overrides)
	})
	if err != nil {
		return domain.Answer{}, s.fail(log, StageExecutingSearch, err)
	}
	s.advance(log, StageSearchComplete)
	log.Info("search complete", zap.Int("results", len(results)))

	s.advance(log, StageSummarizing)
	summary, err := retryTransient(ctx, s.retryAttempts, s.retryBackoff, func() (string, error) {
		return s.completer.Summarize(ctx, q.Text, results)
	})
	if err != nil {
		return domain.Answer{}, s.fail(log, StageSummarizing, err)
	}
	s.advance(log, StageComplete)

	if results == nil {
		results = []domain.Record{}
	}

	return domain.Answer{
		Question:   q.Text,
		SearchHost: host,
		Query:      query,
		Results:    results,
		Summary:    summary,
	}, nil
}

func (s *Service) advance(log *zap.Logger, st Stage) {
	metrics.PipelineStagesTotal.WithLabelValues(string(st), "ok").Inc()
	log.Debug("pipeline stage", zap.String("stage", string(st)))
}

func (s *Service) fail(log *zap.Logger, st Stage, err error) error {
	metrics.PipelineStagesTotal.WithLabelValues(string(st), "failed").Inc()
	log.Warn("pipeline stage failed", zap.String("stage", string(st)), zap.Error(err))
	return &StageError{Stage: st, Err: err}
}

// retryTransient runs fn, retrying only connection-level upstream failures up
// to attempts total tries. Rejections, validation failures, and timeouts are
// never retried: they are not transient.
func retryTransient[T any](ctx context.Context, attempts int, initial time.Duration, fn func() (T, error)) (T, error) {
	var out T

	if attempts <= 1 {
		return fn()
	}

	bo := backoff.NewExponentialBackOff()
	if initial > 0 {
		bo.InitialInterval = initial
	}

	err := backoff.Retry(func() error {
		var err error
		out, err = fn()
		if err != nil && !errors.Is(err, domain.ErrUpstreamUnavailable) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(attempts-1)), ctx))

	return out, err
}

// SPDX-License-Identifier: MIT

package fetch

import (
	"context"
	"errors"
	"fmt"
	"time"

	xglog "github.com/ManuGH/epgsync/internal/log"
	"github.com/ManuGH/epgsync/internal/metrics"
	"golang.org/x/time/rate"
)

// Tier partitions mirrors by priority.
type Tier string

const (
	TierPrimary Tier = "primary"
	TierBackup  Tier = "backup"
)

// Source is one mirror URL and its tier.
type Source struct {
	URL  string
	Tier Tier
}

// Sources concatenates the tiers into one priority-ordered list.
func Sources(primary, backup []string) []Source {
	out := make([]Source, 0, len(primary)+len(backup))
	for _, u := range primary {
		out = append(out, Source{URL: u, Tier: TierPrimary})
	}
	for _, u := range backup {
		out = append(out, Source{URL: u, Tier: TierBackup})
	}
	return out
}

// Getter fetches one URL. *Fetcher implements it.
type Getter interface {
	Fetch(ctx context.Context, rawURL string) (string, error)
}

// AttemptFailure records one failed attempt.
type AttemptFailure struct {
	Source  Source
	Attempt int
	Err     error
}

// Result is the outcome of a successful selection.
type Result struct {
	Source   Source
	Document string
	// Attempts counts every request made, including the successful one.
	Attempts int
	Failures []AttemptFailure
}

// Option configures a Selector.
type Option func(*Selector)

// WithRequestRate spaces requests to at most perSecond. Zero disables pacing.
func WithRequestRate(perSecond float64) Option {
	return func(s *Selector) {
		if perSecond > 0 {
			s.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

// WithSleep replaces the backoff sleep, mainly for tests.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(s *Selector) { s.sleep = sleep }
}

// Selector walks the mirrors in order, retrying each with exponential backoff.
type Selector struct {
	getter     Getter
	sources    []Source
	maxRetries int
	baseDelay  time.Duration
	limiter    *rate.Limiter
	sleep      func(ctx context.Context, d time.Duration) error
}

// NewSelector creates a Selector. maxRetries is the number of attempts per
// mirror and is clamped to at least one.
func NewSelector(getter Getter, sources []Source, maxRetries int, baseDelay time.Duration, opts ...Option) *Selector {
	if maxRetries < 1 {
		maxRetries = 1
	}
	s := &Selector{
		getter:     getter,
		sources:    sources,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		sleep:      sleepCtx,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Backoff returns the delay after the given failed attempt (1-based).
func Backoff(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}
	return base * time.Duration(1<<(attempt-1))
}

// Select returns the first non-empty document. When every mirror has used
// up its retries the error wraps ErrAllSourcesExhausted and the last
// attempt's failure. Context cancellation is returned as is.
func (s *Selector) Select(ctx context.Context) (*Result, error) {
	logger := xglog.WithComponentFromContext(ctx, "fetch")
	res := &Result{}
	var lastErr error

	for i, src := range s.sources {
		logger.Info().
			Str(xglog.FieldEvent, "source.try").
			Str(xglog.FieldURL, redact(src.URL)).
			Str(xglog.FieldTier, string(src.Tier)).
			Int("index", i+1).
			Int("total", len(s.sources)).
			Msg("trying source")

		for attempt := 1; attempt <= s.maxRetries; attempt++ {
			if s.limiter != nil {
				if err := s.limiter.Wait(ctx); err != nil {
					return nil, err
				}
			}

			res.Attempts++
			doc, err := s.getter.Fetch(ctx, src.URL)
			if err == nil {
				metrics.RecordFetchAttempt(string(src.Tier), "success")
				res.Source = src
				res.Document = doc
				logger.Info().
					Str(xglog.FieldEvent, "source.success").
					Str(xglog.FieldURL, redact(src.URL)).
					Str(xglog.FieldTier, string(src.Tier)).
					Int(xglog.FieldAttempt, attempt).
					Int("chars", len(doc)).
					Msg("downloaded feed")
				return res, nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}

			metrics.RecordFetchAttempt(string(src.Tier), "failure")
			lastErr = err
			res.Failures = append(res.Failures, AttemptFailure{Source: src, Attempt: attempt, Err: err})
			logger.Warn().
				Err(err).
				Str(xglog.FieldEvent, "source.attempt_failed").
				Str(xglog.FieldURL, redact(src.URL)).
				Str(xglog.FieldTier, string(src.Tier)).
				Int(xglog.FieldAttempt, attempt).
				Int("max_attempts", s.maxRetries).
				Msg("fetch attempt failed")

			if attempt < s.maxRetries {
				if err := s.sleep(ctx, Backoff(s.baseDelay, attempt)); err != nil {
					return nil, err
				}
			}
		}
	}

	if lastErr == nil {
		lastErr = errors.New("no sources configured")
	}
	return res, fmt.Errorf("%w after %d attempts across %d sources: %w",
		ErrAllSourcesExhausted, res.Attempts, len(s.sources), lastErr)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Package fallback retries backend calls across a ladder of model tiers.
//
// An overloaded backend moves the ladder to the next tier immediately. When
// the last tier is also overloaded and the backend said how long to wait, the
// ladder starts over from the first tier. Anything else falls through to a
// bounded exponential backoff on the current tier.
package fallback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	DefaultMaxRetries   = 3
	DefaultInitialDelay = 2500 * time.Millisecond
	DefaultWaitBuffer   = time.Second

	maxBackoffInterval = 10 * time.Minute
)

// Outcome tags how a Run ended.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeOverloadedExhausted
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeOverloadedExhausted:
		return "overloaded_exhausted"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Classification is what a backend error says about retrying.
type Classification struct {
	Overloaded bool
	Wait       time.Duration
	HasWait    bool
}

// ClassifyFunc inspects a backend error.
type ClassifyFunc func(err error) Classification

// ExhaustedError is returned when every retry has been spent.
type ExhaustedError struct {
	Outcome  Outcome
	Ladder   string
	Tier     string
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s: %s after %d attempts on %s: %v", e.Ladder, e.Outcome, e.Attempts, e.Tier, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// IsExhausted reports whether err carries an ExhaustedError.
func IsExhausted(err error) bool {
	var ex *ExhaustedError
	return errors.As(err, &ex)
}

// Config holds retry tuning. Zero fields take the defaults, except
// ResetCooldown where zero means the ladder may reset on every exhaustion.
type Config struct {
	MaxRetries    int
	InitialDelay  time.Duration
	WaitBuffer    time.Duration
	ResetCooldown time.Duration
}

// Retrier runs operations against a Ladder.
type Retrier struct {
	cfg      Config
	classify ClassifyFunc
	logger   *slog.Logger

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

func NewRetrier(cfg Config, classify ClassifyFunc, logger *slog.Logger) *Retrier {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	} else if cfg.MaxRetries == 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = DefaultInitialDelay
	}
	if cfg.WaitBuffer <= 0 {
		cfg.WaitBuffer = DefaultWaitBuffer
	}
	if classify == nil {
		classify = func(error) Classification { return Classification{} }
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retrier{
		cfg:      cfg,
		classify: classify,
		logger:   logger.With("component", "fallback"),
		sleep:    sleepCtx,
		now:      time.Now,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (r *Retrier) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.cfg.InitialDelay
	b.RandomizationFactor = 0
	b.Multiplier = 2
	b.MaxInterval = maxBackoffInterval
	b.Reset()
	return b
}

// Run calls op with the ladder's current tier until it succeeds or retries
// run out. Tier switches do not consume the retry budget.
func Run[T any](ctx context.Context, r *Retrier, ladder *Ladder, op func(ctx context.Context, tier string) (T, error)) (T, error) {
	var zero T
	bo := r.newBackOff()
	attempt := 0

	for {
		var (
			lastErr error
			cls     Classification
			tier    string
			moves   int
		)

		// Walk the ladder. Each backoff attempt may move the cursor at most
		// ladder.Len() times.
		for {
			tier = ladder.Current()
			v, err := op(ctx, tier)
			if err == nil {
				if attempt > 0 || moves > 0 {
					r.logger.Info("request succeeded after retry", "ladder", ladder.Name(), "tier", tier, "attempt", attempt, "tier_moves", moves)
				}
				return v, nil
			}
			lastErr = err
			if ctx.Err() != nil {
				return zero, fmt.Errorf("%s: %w", ladder.Name(), ctx.Err())
			}

			cls = r.classify(err)
			if !cls.Overloaded || moves >= ladder.Len() {
				break
			}
			moves++

			if ladder.Advance() {
				r.logger.Warn("tier overloaded, switching", "ladder", ladder.Name(), "from", tier, "to", ladder.Current(), "error", err)
				continue
			}
			if cls.HasWait && ladder.resetAfter(r.cfg.ResetCooldown, r.now()) {
				r.logger.Warn("last tier overloaded, restarting ladder", "ladder", ladder.Name(), "tier", tier, "suggested_wait", cls.Wait, "to", ladder.Current())
				continue
			}
			r.logger.Warn("ladder exhausted", "ladder", ladder.Name(), "tier", tier, "error", err)
			break
		}

		if attempt >= r.cfg.MaxRetries {
			outcome := OutcomeFailed
			if cls.Overloaded {
				outcome = OutcomeOverloadedExhausted
			}
			return zero, &ExhaustedError{
				Outcome:  outcome,
				Ladder:   ladder.Name(),
				Tier:     tier,
				Attempts: attempt + 1,
				Err:      lastErr,
			}
		}

		delay := bo.NextBackOff()
		if cls.Overloaded && cls.HasWait {
			if w := cls.Wait + r.cfg.WaitBuffer; w > delay {
				delay = w
			}
		}
		attempt++
		r.logger.Info("retrying after error", "ladder", ladder.Name(), "tier", tier,
			"attempt", attempt, "max_retries", r.cfg.MaxRetries,
			"backoff_ms", delay.Milliseconds(), "overloaded", cls.Overloaded, "error", lastErr)

		if err := r.sleep(ctx, delay); err != nil {
			return zero, fmt.Errorf("%s: retry wait: %w", ladder.Name(), err)
		}
	}
}

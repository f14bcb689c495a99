package emoji

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"
)

const DefaultSchedule = "*/10 * * * *"

// ValidateSchedule checks a cron expression. Empty means DefaultSchedule.
func ValidateSchedule(expr string) error {
	if expr == "" {
		return nil
	}
	if _, err := gronx.NextTickAfter(expr, time.Now(), false); err != nil {
		return fmt.Errorf("invalid hot set schedule %q: %w", expr, err)
	}
	return nil
}

// RunSchedule rebuilds the hot set on every tick of the cron expression until
// ctx is done. It also flushes the ranking table so counts reach the store even
// when the persistence goroutine is idle.
func (c *Cache) RunSchedule(ctx context.Context, expr string) error {
	if expr == "" {
		expr = DefaultSchedule
	}
	if err := ValidateSchedule(expr); err != nil {
		return err
	}
	c.logger.Info("hot set schedule started", "schedule", expr)

	for {
		next, err := gronx.NextTickAfter(expr, time.Now(), false)
		if err != nil {
			return fmt.Errorf("next tick: %w", err)
		}

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}

		c.RecomputeHotSet()
		if err := c.Flush(ctx); err != nil {
			c.logger.Warn("scheduled ranking flush failed", "error", err)
		}
	}
}

package agent

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"
	"unicode/utf8"

	"github.com/nextlevelbuilder/chatterbox/internal/config"
)

// typingRefresh re-sends the typing indicator before the platform drops it.
const typingRefresh = 8 * time.Second

// Pacer inserts human-looking delays around a reply. It never fails the
// reply: platform errors are logged and the delay continues.
type Pacer struct {
	thinkMin, thinkMax time.Duration
	typeMin, typeMax   time.Duration
	perChar, finalMax  time.Duration
	disabled           bool

	platform Platform
	logger   *slog.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

func NewPacer(cfg config.PacingConfig, platform Platform, logger *slog.Logger) *Pacer {
	p := &Pacer{
		disabled: cfg.Disabled,
		platform: platform,
		logger:   logger,
		sleep:    sleepCtx,
	}
	p.thinkMin, p.thinkMax, p.typeMin, p.typeMax, p.perChar, p.finalMax = cfg.Durations()
	return p
}

// Think waits a random thinking delay, then shows typing for a random while.
func (p *Pacer) Think(ctx context.Context, chatID string) {
	if p.disabled {
		return
	}
	if err := p.sleep(ctx, between(p.thinkMin, p.thinkMax)); err != nil {
		return
	}
	p.holdTyping(ctx, chatID, between(p.typeMin, p.typeMax))
}

// Finish holds typing for a delay proportional to the reply length.
func (p *Pacer) Finish(ctx context.Context, chatID, reply string) {
	if p.disabled {
		return
	}
	p.holdTyping(ctx, chatID, p.finalDelay(reply))
}

func (p *Pacer) finalDelay(reply string) time.Duration {
	d := time.Duration(utf8.RuneCountInString(reply)) * p.perChar
	if d > p.finalMax {
		d = p.finalMax
	}
	return d
}

func (p *Pacer) holdTyping(ctx context.Context, chatID string, d time.Duration) {
	if d <= 0 {
		return
	}
	for d > 0 {
		if err := p.platform.Typing(ctx, chatID); err != nil {
			p.logger.Debug("typing indicator failed", "chat_id", chatID, "error", err)
		}
		step := min(d, typingRefresh)
		if err := p.sleep(ctx, step); err != nil {
			return
		}
		d -= step
	}
}

// between returns a uniform random duration in [lo, hi].
func between(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(rand.Int64N(int64(hi-lo)+1))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

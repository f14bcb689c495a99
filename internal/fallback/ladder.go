package fallback

import (
	"errors"
	"sync"
	"time"
)

// Ladder is an ordered list of model tiers for one modality plus a cursor
// naming the tier currently in use. The cursor is shared by every caller and
// always indexes a valid tier.
type Ladder struct {
	name  string
	tiers []string

	mu        sync.Mutex
	cursor    int
	lastReset time.Time
}

func NewLadder(name string, tiers []string) (*Ladder, error) {
	if len(tiers) == 0 {
		return nil, errors.New("fallback: ladder " + name + " has no tiers")
	}
	return &Ladder{name: name, tiers: append([]string(nil), tiers...)}, nil
}

func (l *Ladder) Name() string { return l.name }
func (l *Ladder) Len() int     { return len(l.tiers) }

// Tiers returns a copy of the tier list.
func (l *Ladder) Tiers() []string { return append([]string(nil), l.tiers...) }

// Current returns the tier under the cursor.
func (l *Ladder) Current() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tiers[l.cursor]
}

func (l *Ladder) Cursor() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cursor
}

// Advance moves to the next tier. At the last tier it returns false and the
// cursor stays put.
func (l *Ladder) Advance() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cursor+1 >= len(l.tiers) {
		return false
	}
	l.cursor++
	return true
}

// Reset moves the cursor back to the first tier.
func (l *Ladder) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cursor = 0
	l.lastReset = time.Now()
}

// resetAfter resets the cursor unless the previous reset happened less than
// cooldown ago.
func (l *Ladder) resetAfter(cooldown time.Duration, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if cooldown > 0 && !l.lastReset.IsZero() && now.Sub(l.lastReset) < cooldown {
		return false
	}
	l.cursor = 0
	l.lastReset = now
	return true
}

// Package emoji tracks which custom emoji get used and keeps the most popular
// ones at hand for prompts and reply rewriting.
package emoji

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/nextlevelbuilder/chatterbox/internal/store"
)

const DefaultHotSetSize = 15

// Options configures a Cache.
type Options struct {
	HotSetSize int
	Logger     *slog.Logger
}

// Cache holds the known emoji, their usage counts and the derived hot set.
// All state is guarded by one mutex; persistence runs on its own goroutine.
type Cache struct {
	mu       sync.Mutex
	groups   map[string]map[string]Symbol // group -> normalized name -> symbol
	symbols  map[string]Symbol            // merged view over groups
	rankings map[string]int
	hotSet   []Symbol
	hotSize  int

	store  store.RankingStore
	logger *slog.Logger

	lifeMu    sync.RWMutex
	closed    bool
	flushMu   sync.Mutex // orders snapshot+save pairs
	finalized bool       // guarded by flushMu; set once Close has saved
	persistCh chan struct{}
	done      chan struct{}
}

// New loads the ranking table from st and starts the persistence goroutine.
// A load failure is logged and the cache starts empty. st may be nil.
func New(ctx context.Context, st store.RankingStore, opts Options) *Cache {
	if opts.HotSetSize <= 0 {
		opts.HotSetSize = DefaultHotSetSize
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	c := &Cache{
		groups:    make(map[string]map[string]Symbol),
		symbols:   make(map[string]Symbol),
		rankings:  make(map[string]int),
		hotSize:   opts.HotSetSize,
		store:     st,
		logger:    opts.Logger.With("component", "emoji"),
		persistCh: make(chan struct{}, 1),
		done:      make(chan struct{}),
	}

	if st != nil {
		loaded, err := st.Load(ctx)
		if err != nil {
			c.logger.Warn("ranking table unavailable, starting empty", "error", err)
		} else {
			for name, n := range loaded {
				if key := Normalize(name); key != "" && n >= 0 {
					c.rankings[key] += n
				}
			}
			c.logger.Info("ranking table loaded", "entries", len(c.rankings))
		}
	}

	go c.persistLoop()
	return c
}

// IngestKnownSymbols replaces the emoji set of one group. Newly seen names get
// a zero ranking entry; existing counts are kept.
func (c *Cache) IngestKnownSymbols(group string, records []Symbol) {
	set := make(map[string]Symbol, len(records))
	for _, r := range records {
		key := Normalize(r.Name)
		if key == "" || r.ID == "" {
			continue
		}
		r.Group = group
		set[key] = r
	}

	c.mu.Lock()
	added := 0
	if len(set) == 0 {
		delete(c.groups, group)
	} else {
		c.groups[group] = set
	}
	c.rebuildSymbolsLocked()
	for key := range set {
		if _, ok := c.rankings[key]; !ok {
			c.rankings[key] = 0
			added++
		}
	}
	c.recomputeLocked()
	known := len(c.symbols)
	c.mu.Unlock()

	c.logger.Debug("emoji ingested", "group", group, "records", len(set), "new_rankings", added, "known", known)
	if added > 0 {
		c.schedulePersist()
	}
}

// rebuildSymbolsLocked merges every group into one view. Groups are visited
// in sorted order so a name shared by two guilds always resolves the same way.
func (c *Cache) rebuildSymbolsLocked() {
	ids := make([]string, 0, len(c.groups))
	for id := range c.groups {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	merged := make(map[string]Symbol)
	for _, id := range ids {
		for key, sym := range c.groups[id] {
			if _, ok := merged[key]; !ok {
				merged[key] = sym
			}
		}
	}
	c.symbols = merged
}

// Resolve looks up a known emoji by name, case-insensitively.
func (c *Cache) Resolve(name string) (Symbol, bool) {
	key := Normalize(name)
	c.mu.Lock()
	defer c.mu.Unlock()
	sym, ok := c.symbols[key]
	return sym, ok
}

// RecordUse counts one use of name. Uses by the bot itself are not counted.
func (c *Cache) RecordUse(name string, self bool) {
	if self {
		return
	}
	key := Normalize(name)
	if key == "" {
		return
	}

	c.mu.Lock()
	c.rankings[key]++
	n := c.rankings[key]
	if _, known := c.symbols[key]; known && (len(c.hotSet) < c.hotSize || n >= c.hotMinLocked()) {
		c.recomputeLocked()
	}
	c.mu.Unlock()

	c.schedulePersist()
}

func (c *Cache) hotMinLocked() int {
	if len(c.hotSet) == 0 {
		return 0
	}
	return c.rankings[Normalize(c.hotSet[len(c.hotSet)-1].Name)]
}

// RecomputeHotSet rebuilds the hot set from scratch.
func (c *Cache) RecomputeHotSet() {
	c.mu.Lock()
	c.recomputeLocked()
	size := len(c.hotSet)
	c.mu.Unlock()
	c.logger.Debug("hot set recomputed", "size", size)
}

// recomputeLocked picks the top hotSize known symbols by count, ties broken by name.
func (c *Cache) recomputeLocked() {
	type ranked struct {
		key   string
		sym   Symbol
		count int
	}
	all := make([]ranked, 0, len(c.symbols))
	for key, sym := range c.symbols {
		all = append(all, ranked{key: key, sym: sym, count: c.rankings[key]})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].count != all[j].count {
			return all[i].count > all[j].count
		}
		return all[i].key < all[j].key
	})
	if len(all) > c.hotSize {
		all = all[:c.hotSize]
	}
	hot := make([]Symbol, len(all))
	for i, r := range all {
		hot[i] = r.sym
	}
	c.hotSet = hot
}

// HotSet returns the current hot set, most used first.
func (c *Cache) HotSet() []Symbol {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Symbol(nil), c.hotSet...)
}

// HotSetDisplay returns "[name]" entries for the hot set, most used first.
func (c *Cache) HotSetDisplay() []string {
	hot := c.HotSet()
	out := make([]string, len(hot))
	for i, s := range hot {
		out[i] = "[" + s.Name + "]"
	}
	return out
}

// Snapshot returns a copy of the ranking table.
func (c *Cache) Snapshot() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return store.Copy(c.rankings)
}

// Known reports how many distinct emoji are currently known.
func (c *Cache) Known() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.symbols)
}

func (c *Cache) schedulePersist() {
	c.lifeMu.RLock()
	defer c.lifeMu.RUnlock()
	if c.closed || c.store == nil {
		return
	}
	select {
	case c.persistCh <- struct{}{}:
	default:
		// a save is already pending and will pick up this change
	}
}

func (c *Cache) persistLoop() {
	defer close(c.done)
	for range c.persistCh {
		if err := c.Flush(context.Background()); err != nil {
			c.logger.Warn("ranking table not persisted", "error", err)
		}
	}
}

// Flush writes the current ranking table to the store synchronously.
// Concurrent flushes are serialized so an older snapshot never lands after a
// newer one. Flush is a no-op once Close has written its final snapshot.
func (c *Cache) Flush(ctx context.Context) error {
	c.flushMu.Lock()
	defer c.flushMu.Unlock()
	return c.flushLocked(ctx)
}

func (c *Cache) flushLocked(ctx context.Context) error {
	if c.store == nil || c.finalized {
		return nil
	}
	if err := c.store.Save(ctx, c.Snapshot()); err != nil {
		return fmt.Errorf("save rankings: %w", err)
	}
	return nil
}

// Close stops background persistence and writes a final snapshot. It does
// not close the underlying store.
func (c *Cache) Close(ctx context.Context) error {
	c.lifeMu.Lock()
	if c.closed {
		c.lifeMu.Unlock()
		return nil
	}
	c.closed = true
	close(c.persistCh)
	c.lifeMu.Unlock()

	select {
	case <-c.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	c.flushMu.Lock()
	defer c.flushMu.Unlock()
	err := c.flushLocked(ctx)
	c.finalized = true
	return err
}

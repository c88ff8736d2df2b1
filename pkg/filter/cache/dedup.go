package cache

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/ethpandaops/errorfilter/pkg/filter/event"
	"github.com/go-co-op/gocron"
	"github.com/jellydator/ttlcache/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

const storeName = "dedup"

// Result is the outcome of CheckAndMark.
type Result int

const (
	// ResultNovel means the fingerprint was absent or expired and is now marked.
	ResultNovel Result = iota
	// ResultSuppress means the fingerprint was seen inside the current window.
	ResultSuppress
)

func (r Result) String() string {
	if r == ResultNovel {
		return "novel"
	}

	return "suppress"
}

// DedupCache maps fingerprints to the time they were last logged.
//
// Expiry is judged against the caller's clock, never the wall clock: items
// are stored without a TTL and an entry older than the configured duration
// is treated as absent until Cleanup removes it. The entry count never
// exceeds MaxEntries; the entry with the oldest timestamp is evicted first.
type DedupCache struct {
	log    logrus.FieldLogger
	config Config

	entries *ttlcache.Cache[string, time.Time]
	store   *SnapshotStore

	metrics *Metrics

	// mu covers every read-check-write on entries plus the counters below
	mu         sync.Mutex
	generation uint64
	pending    int

	scheduler *gocron.Scheduler
	closed    bool
}

// New creates a dedup cache registered against the default Prometheus registry.
func New(log logrus.FieldLogger, config *Config) (*DedupCache, error) {
	return NewWithRegisterer(log, config, prometheus.DefaultRegisterer)
}

// NewWithRegisterer creates a dedup cache with a custom registerer.
// Pass nil to skip metrics registration (useful for tests).
func NewWithRegisterer(log logrus.FieldLogger, config *Config, registerer prometheus.Registerer) (*DedupCache, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	c := &DedupCache{
		log:    log.WithField("component", "cache"),
		config: *config,
		entries: ttlcache.New(
			ttlcache.WithTTL[string, time.Time](ttlcache.NoTTL),
			ttlcache.WithDisableTouchOnHit[string, time.Time](),
		),
		metrics: NewMetricsWithRegisterer("errorfilter_cache", registerer),
	}

	if config.SnapshotPath != "" {
		c.store = NewSnapshotStore(config.SnapshotPath)
	}

	return c, nil
}

// Load restores entries from the snapshot, dropping expired ones and
// keeping only the newest MaxEntries. On a read error the cache stays empty
// and the error is returned for the caller to report.
func (c *DedupCache) Load(now time.Time) error {
	if c.store == nil {
		return nil
	}

	raw, err := c.store.Load()

	type loaded struct {
		key      string
		lastSeen time.Time
	}

	items := make([]loaded, 0, len(raw))

	for key, ts := range raw {
		fp, perr := event.ParseFingerprint(key)
		if perr != nil {
			c.log.WithField("key", key).Debug("skipping invalid snapshot key")

			continue
		}

		lastSeen := time.Unix(ts, 0)
		if c.expired(lastSeen, now) {
			continue
		}

		items = append(items, loaded{key: fp.String(), lastSeen: lastSeen})
	}

	sort.Slice(items, func(i, j int) bool {
		return items[i].lastSeen.After(items[j].lastSeen)
	})

	if len(items) > c.config.MaxEntries {
		items = items[:c.config.MaxEntries]
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, item := range items {
		c.entries.Set(item.key, item.lastSeen, ttlcache.NoTTL)
	}

	c.log.WithFields(logrus.Fields{
		"path":    c.store.Path(),
		"entries": len(items),
		"dropped": len(raw) - len(items),
	}).Debug("loaded snapshot")

	return err
}

// CheckAndMark returns ResultNovel and records now for fp when fp is absent
// or expired, and ResultSuppress otherwise. The check and the update happen
// under one lock so concurrent callers cannot both see the same fingerprint
// as novel within a window. After Stop the cache is read-only: novel
// fingerprints are reported but no longer recorded.
func (c *DedupCache) CheckAndMark(fp event.Fingerprint, now time.Time) Result {
	key := fp.String()

	c.mu.Lock()

	if c.closed {
		item := c.entries.Get(key)
		c.mu.Unlock()

		if item != nil && !c.expired(item.Value(), now) {
			return ResultSuppress
		}

		return ResultNovel
	}

	item := c.entries.Get(key)
	if item != nil && !c.expired(item.Value(), now) {
		c.mu.Unlock()

		return ResultSuppress
	}

	c.markLocked(key, now, item != nil)

	var snap *snapshot
	if c.store != nil && c.config.FlushEvery > 0 && c.pending >= c.config.FlushEvery {
		snap = c.snapshotLocked()
	}

	c.mu.Unlock()

	if snap != nil {
		c.save(snap)
	}

	return ResultNovel
}

func (c *DedupCache) markLocked(key string, now time.Time, exists bool) {
	if !exists {
		c.evictLocked(c.config.MaxEntries - 1)
	}

	c.entries.Set(key, now, ttlcache.NoTTL)

	c.generation++
	c.pending++
}

// evictLocked removes the oldest entries until at most limit remain.
func (c *DedupCache) evictLocked(limit int) {
	if c.entries.Len() <= limit {
		return
	}

	items := c.entries.Items()
	if len(items) <= limit {
		return
	}

	keys := make([]string, 0, len(items))
	for key := range items {
		keys = append(keys, key)
	}

	sort.Slice(keys, func(i, j int) bool {
		a, b := items[keys[i]].Value(), items[keys[j]].Value()
		if a.Equal(b) {
			return keys[i] < keys[j]
		}

		return a.Before(b)
	})

	evicted := len(items) - limit
	for _, key := range keys[:evicted] {
		c.entries.Delete(key)
	}

	c.metrics.AddEvictions(evicted, "capacity")
	c.log.WithField("count", evicted).Debug("evicted oldest fingerprints")
}

// Cleanup removes every entry that is expired at now and returns how many
// were removed. It only reclaims memory; lookups already ignore expired
// entries.
func (c *DedupCache) Cleanup(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0

	for key, item := range c.entries.Items() {
		if c.expired(item.Value(), now) {
			c.entries.Delete(key)
			removed++
		}
	}

	if removed > 0 {
		c.generation++
		c.metrics.AddEvictions(removed, "cleanup")
	}

	return removed
}

// Len returns the number of cached fingerprints, including expired entries
// that have not been cleaned up yet.
func (c *DedupCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.entries.Items())
}

// Entries returns a copy of the fingerprint to last-seen mapping.
func (c *DedupCache) Entries() map[string]time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]time.Time)
	for key, item := range c.entries.Items() {
		out[key] = item.Value()
	}

	return out
}

// Flush persists the cache if it changed since the last successful write.
func (c *DedupCache) Flush() {
	if c.store == nil {
		return
	}

	saved := c.store.SavedGeneration()

	c.mu.Lock()

	if c.generation <= saved {
		c.mu.Unlock()

		return
	}

	snap := c.snapshotLocked()

	c.mu.Unlock()

	c.save(snap)
}

type snapshot struct {
	generation uint64
	entries    map[string]int64
}

func (c *DedupCache) snapshotLocked() *snapshot {
	snap := &snapshot{
		generation: c.generation,
		entries:    make(map[string]int64),
	}

	for key, item := range c.entries.Items() {
		snap.entries[key] = item.Value().Unix()
	}

	c.pending = 0

	return snap
}

// save writes a snapshot. Failures are retried briefly and then dropped;
// the in-memory state keeps serving and the next flush tries again.
func (c *DedupCache) save(snap *snapshot) {
	written := false

	err := retry.Do(
		func() error {
			ok, err := c.store.Save(snap.generation, snap.entries)
			written = ok

			return err
		},
		retry.Attempts(3),
		retry.Delay(10*time.Millisecond),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		c.metrics.IncSnapshotWrites("failure")
		c.log.WithError(err).Debug("failed to persist snapshot")

		return
	}

	if written {
		c.metrics.IncSnapshotWrites("success")
	}
}

func (c *DedupCache) expired(lastSeen, now time.Time) bool {
	return now.Sub(lastSeen) >= c.config.Duration.Std()
}

// Start begins the cache background processes.
func (c *DedupCache) Start(ctx context.Context) error {
	return c.startCrons(ctx)
}

// Stop stops background processes, flushes pending changes and stops
// recording new fingerprints.
func (c *DedupCache) Stop() {
	if c.scheduler != nil {
		c.scheduler.Stop()
		c.scheduler = nil
	}

	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.Flush()
}

func (c *DedupCache) startCrons(_ context.Context) error {
	s := gocron.NewScheduler(time.Local)
	s.SingletonModeAll()

	if _, err := s.Every("5s").Do(c.updateMetrics); err != nil {
		return err
	}

	if c.config.CleanupInterval > 0 {
		if _, err := s.Every(c.config.CleanupInterval).Do(func() {
			if removed := c.Cleanup(time.Now()); removed > 0 {
				c.log.WithField("removed", removed).Debug("cleaned up expired fingerprints")
			}
		}); err != nil {
			return err
		}
	}

	if c.store != nil && c.config.FlushInterval > 0 {
		if _, err := s.Every(c.config.FlushInterval).Do(c.Flush); err != nil {
			return err
		}
	}

	s.StartAsync()

	c.scheduler = s

	return nil
}

func (c *DedupCache) updateMetrics() {
	m := c.entries.Metrics()
	c.metrics.SetInsertions(m.Insertions, storeName)
	c.metrics.SetHits(m.Hits, storeName)
	c.metrics.SetMisses(m.Misses, storeName)
	c.metrics.SetEntries(c.Len(), storeName)
}

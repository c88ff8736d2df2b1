package cache

import "time"

// Stats is a read-only summary of the cache.
type Stats struct {
	Entries       int
	SnapshotBytes int64
	// Oldest is nil when the cache is empty.
	Oldest *time.Time
}

// Stats runs a cleanup at now and then reports the logical cache state.
func (c *DedupCache) Stats(now time.Time) Stats {
	c.Cleanup(now)

	entries := c.Entries()

	stats := Stats{
		Entries: len(entries),
	}

	for _, lastSeen := range entries {
		if stats.Oldest == nil || lastSeen.Before(*stats.Oldest) {
			ts := lastSeen
			stats.Oldest = &ts
		}
	}

	if c.store != nil {
		stats.SnapshotBytes = c.store.Size()
	}

	return stats
}

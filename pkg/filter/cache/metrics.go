package cache

import "github.com/prometheus/client_golang/prometheus"

// Metrics provides Prometheus metrics for cache operations.
type Metrics struct {
	insertionsTotal *prometheus.GaugeVec
	hitsTotal       *prometheus.GaugeVec
	missesTotal     *prometheus.GaugeVec
	entries         *prometheus.GaugeVec
	evictionsTotal  *prometheus.CounterVec
	snapshotWrites  *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWithRegisterer(namespace, prometheus.DefaultRegisterer)
}

// NewMetricsWithRegisterer creates a new Metrics instance with a custom registerer.
func NewMetricsWithRegisterer(namespace string, registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		insertionsTotal: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "insertions_total",
			Help:      "Total number of fingerprint insertions",
		}, []string{"store"}),
		hitsTotal: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "hits_total",
			Help:      "Total number of fingerprint lookups that found an entry",
		}, []string{"store"}),
		missesTotal: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "misses_total",
			Help:      "Total number of fingerprint lookups that found nothing",
		}, []string{"store"}),
		entries: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "entries",
			Help:      "Number of fingerprints currently cached",
		}, []string{"store"}),
		evictionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evictions_total",
			Help:      "Total number of removed fingerprints by reason",
		}, []string{"reason"}),
		snapshotWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_writes_total",
			Help:      "Total number of snapshot writes by status",
		}, []string{"status"}),
	}

	// Only register metrics if a registerer is provided
	if registerer != nil {
		registerer.MustRegister(m.insertionsTotal)
		registerer.MustRegister(m.hitsTotal)
		registerer.MustRegister(m.missesTotal)
		registerer.MustRegister(m.entries)
		registerer.MustRegister(m.evictionsTotal)
		registerer.MustRegister(m.snapshotWrites)
	}

	return m
}

// SetInsertions sets the insertions metric.
func (m *Metrics) SetInsertions(count uint64, store string) {
	m.insertionsTotal.WithLabelValues(store).Set(float64(count))
}

// SetHits sets the hits metric.
func (m *Metrics) SetHits(count uint64, store string) {
	m.hitsTotal.WithLabelValues(store).Set(float64(count))
}

// SetMisses sets the misses metric.
func (m *Metrics) SetMisses(count uint64, store string) {
	m.missesTotal.WithLabelValues(store).Set(float64(count))
}

// SetEntries sets the current entry count.
func (m *Metrics) SetEntries(count int, store string) {
	m.entries.WithLabelValues(store).Set(float64(count))
}

// AddEvictions increments the eviction counter for a reason.
func (m *Metrics) AddEvictions(count int, reason string) {
	m.evictionsTotal.WithLabelValues(reason).Add(float64(count))
}

// IncSnapshotWrites increments the snapshot write counter for a status.
func (m *Metrics) IncSnapshotWrites(status string) {
	m.snapshotWrites.WithLabelValues(status).Inc()
}

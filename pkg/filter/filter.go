// Package filter wires the policy engine, the dedup cache and the log sink
// into a single handler the host calls for every diagnostic.
package filter

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/ethpandaops/errorfilter/pkg/filter/cache"
	"github.com/ethpandaops/errorfilter/pkg/filter/event"
	"github.com/ethpandaops/errorfilter/pkg/filter/policy"
	"github.com/ethpandaops/errorfilter/pkg/filter/sink"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// ErrConfigRequired is returned when config is nil.
var ErrConfigRequired = errors.New("config is required")

// Outcome describes what the filter did with an event.
type Outcome int

const (
	// OutcomeIgnored means the severity is not managed; the host handles it.
	OutcomeIgnored Outcome = iota
	// OutcomeWhitelisted means the event bypassed the cache; the host logs it.
	OutcomeWhitelisted
	// OutcomeBlacklisted means the event was dropped by a blacklist pattern.
	OutcomeBlacklisted
	// OutcomeLogged means the event was novel and written to the sink.
	OutcomeLogged
	// OutcomeDuplicate means the event was suppressed as a recent repeat.
	OutcomeDuplicate
)

func (o Outcome) String() string {
	switch o {
	case OutcomeIgnored:
		return "ignored"
	case OutcomeWhitelisted:
		return "whitelisted"
	case OutcomeBlacklisted:
		return "blacklisted"
	case OutcomeLogged:
		return "logged"
	case OutcomeDuplicate:
		return "duplicate"
	default:
		return "unknown"
	}
}

// Decision is returned to the host for every event. When Handled is false
// the host must run its own default handling.
type Decision struct {
	Handled bool
	Outcome Outcome
}

// Handler is the contract the host's event emitter calls into.
type Handler interface {
	Handle(ev event.Event) Decision
}

// Sink receives events the filter accepted.
type Sink interface {
	Emit(ev event.Event)
	Close() error
}

type Filter struct {
	log logrus.FieldLogger
	Cfg Config

	policy *policy.Policy
	cache  *cache.DedupCache
	sink   Sink

	metrics *Metrics
	clock   func() time.Time
	stopped atomic.Bool
}

var _ Handler = (*Filter)(nil)

// New creates a filter registered against the default Prometheus registry.
func New(log logrus.FieldLogger, conf *Config) (*Filter, error) {
	return NewWithRegisterer(log, conf, prometheus.DefaultRegisterer)
}

// NewWithRegisterer creates a filter with a custom registerer. Pass nil to
// skip metrics registration. The cache is restored from its snapshot; an
// unreadable snapshot is reported and the filter starts empty.
func NewWithRegisterer(log logrus.FieldLogger, conf *Config, registerer prometheus.Registerer) (*Filter, error) {
	if conf == nil {
		return nil, ErrConfigRequired
	}

	if err := conf.Validate(); err != nil {
		return nil, err
	}

	c, err := cache.NewWithRegisterer(log, &conf.Cache, registerer)
	if err != nil {
		return nil, err
	}

	f := &Filter{
		log:     log.WithField("component", "filter"),
		Cfg:     *conf,
		policy:  policy.New(log, &conf.Policy),
		cache:   c,
		sink:    sink.New(log, &conf.Log),
		metrics: NewMetricsWithRegisterer("errorfilter", registerer),
		clock:   time.Now,
	}

	if err := c.Load(f.clock()); err != nil {
		f.log.WithError(err).Debug("failed to load snapshot, starting with an empty cache")
	}

	f.log.WithFields(logrus.Fields{
		"duration":    conf.Cache.Duration,
		"max_entries": conf.Cache.MaxEntries,
		"entries":     c.Len(),
	}).Info("initialized error filter")

	return f, nil
}

// Handle classifies ev and decides whether it is logged or suppressed.
// It never fails: any internal problem results in the event falling
// through to the host. After Stop every event falls through.
func (f *Filter) Handle(ev event.Event) (d Decision) {
	defer func() {
		if r := recover(); r != nil {
			f.log.WithField("panic", r).Debug("recovered while handling event")

			d = Decision{Outcome: OutcomeIgnored}
		}

		f.metrics.IncDecision(d.Outcome)
	}()

	if f.stopped.Load() || ev.Severity.Uncoverable() {
		return Decision{Outcome: OutcomeIgnored}
	}

	if ev.Timestamp.IsZero() {
		ev.Timestamp = f.clock()
	}

	switch f.policy.Decide(ev) {
	case policy.VerdictIgnore:
		return Decision{Outcome: OutcomeIgnored}
	case policy.VerdictPass:
		return Decision{Outcome: OutcomeWhitelisted}
	case policy.VerdictSuppress:
		return Decision{Handled: true, Outcome: OutcomeBlacklisted}
	}

	if f.cache.CheckAndMark(ev.Fingerprint(), ev.Timestamp) == cache.ResultSuppress {
		return Decision{Handled: true, Outcome: OutcomeDuplicate}
	}

	f.sink.Emit(ev)

	return Decision{Handled: true, Outcome: OutcomeLogged}
}

// Stats reports the cache state after an expiry cleanup.
func (f *Filter) Stats() cache.Stats {
	return f.cache.Stats(f.clock())
}

// Start begins background cleanup, flushing and metrics collection.
func (f *Filter) Start(ctx context.Context) error {
	f.log.Info("starting error filter")

	return f.cache.Start(ctx)
}

// Stop flushes the cache and closes the sink. Events handled afterwards
// are left to the host.
func (f *Filter) Stop(_ context.Context) error {
	f.stopped.Store(true)
	f.cache.Stop()

	return f.sink.Close()
}

// ServeMetrics serves Prometheus metrics until ctx is done.
func (f *Filter) ServeMetrics(ctx context.Context) error {
	server := &http.Server{
		Addr:              f.Cfg.MetricsAddr,
		ReadHeaderTimeout: 15 * time.Second,
		Handler:           promhttp.Handler(),
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_ = server.Shutdown(shutdownCtx)
	}()

	f.log.Infof("serving metrics at %s", f.Cfg.MetricsAddr)

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

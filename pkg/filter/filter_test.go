package filter

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethpandaops/errorfilter/pkg/filter/cache"
	"github.com/ethpandaops/errorfilter/pkg/filter/event"
	"github.com/ethpandaops/errorfilter/pkg/filter/policy"
	"github.com/ethpandaops/errorfilter/pkg/filter/sink"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func testConfig(t *testing.T) *Config {
	t.Helper()

	dir := t.TempDir()

	return &Config{
		LoggingLevel: "error",
		Cache: cache.Config{
			Duration:        cache.Duration(3600 * time.Second),
			MaxEntries:      1000,
			CleanupInterval: time.Hour,
			SnapshotPath:    filepath.Join(dir, "debug-cache.json"),
			FlushEvery:      1,
		},
		Policy: policy.Config{
			FilterNotices:    true,
			FilterWarnings:   true,
			FilterDeprecated: true,
			Whitelist:        []string{"/Fatal error/", "/Call to undefined function/"},
			Blacklist:        []string{"/deprecated/i"},
		},
		Log: sink.Config{
			Enabled:  true,
			Path:     filepath.Join(dir, "debug.log"),
			Timezone: "UTC",
		},
	}
}

func newTestFilter(t *testing.T, conf *Config) *Filter {
	t.Helper()

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	f, err := NewWithRegisterer(log, conf, nil)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = f.Stop(context.Background())
	})

	return f
}

// mockSink records emitted events.
type mockSink struct {
	mu     sync.Mutex
	events []event.Event
}

func (m *mockSink) Emit(ev event.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.events = append(m.events, ev)
}

func (m *mockSink) Close() error {
	return nil
}

func (m *mockSink) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.events)
}

func warning(msg, file string, line int, ts int64) event.Event {
	return event.Event{
		Severity:  event.SeverityWarning,
		Message:   msg,
		Source:    file,
		Line:      line,
		Timestamp: time.Unix(ts, 0),
	}
}

func TestNewWithRegisterer_Validation(t *testing.T) {
	_, err := NewWithRegisterer(logrus.New(), nil, nil)
	assert.ErrorIs(t, err, ErrConfigRequired)

	conf := testConfig(t)
	conf.Cache.Duration = 0

	_, err = NewWithRegisterer(logrus.New(), conf, nil)
	assert.ErrorIs(t, err, cache.ErrDurationRequired)
}

func TestFilter_WindowScenario(t *testing.T) {
	f := newTestFilter(t, testConfig(t))
	s := &mockSink{}
	f.sink = s

	assert.Equal(t, Decision{Handled: true, Outcome: OutcomeLogged}, f.Handle(warning("X", "a.php", 10, 0)))
	assert.Equal(t, Decision{Handled: true, Outcome: OutcomeDuplicate}, f.Handle(warning("X", "a.php", 10, 1800)))
	assert.Equal(t, Decision{Handled: true, Outcome: OutcomeLogged}, f.Handle(warning("X", "a.php", 10, 3601)))

	assert.Equal(t, 2, s.count())
}

func TestFilter_Blacklist(t *testing.T) {
	f := newTestFilter(t, testConfig(t))
	s := &mockSink{}
	f.sink = s

	for i := int64(0); i < 3; i++ {
		d := f.Handle(event.Event{
			Severity:  event.SeverityUserNotice,
			Message:   "Foo deprecated",
			Source:    "a.php",
			Line:      int(i),
			Timestamp: time.Unix(i*10000, 0),
		})
		assert.Equal(t, Decision{Handled: true, Outcome: OutcomeBlacklisted}, d)
	}

	assert.Equal(t, 0, s.count())
	assert.Equal(t, 0, f.cache.Len())
}

func TestFilter_WhitelistBeatsBlacklist(t *testing.T) {
	f := newTestFilter(t, testConfig(t))
	s := &mockSink{}
	f.sink = s

	ev := warning("Fatal error in deprecated helper", "a.php", 1, 0)

	for i := 0; i < 3; i++ {
		assert.Equal(t, Decision{Handled: false, Outcome: OutcomeWhitelisted}, f.Handle(ev))
	}

	assert.Equal(t, 0, s.count())
	assert.Equal(t, 0, f.cache.Len())
}

func TestFilter_SeverityGate(t *testing.T) {
	conf := testConfig(t)
	conf.Policy.FilterNotices = false

	f := newTestFilter(t, conf)
	s := &mockSink{}
	f.sink = s

	ev := event.Event{Severity: event.SeverityNotice, Message: "X", Source: "a.php", Line: 1, Timestamp: time.Unix(0, 0)}

	for i := 0; i < 3; i++ {
		assert.Equal(t, Decision{Handled: false, Outcome: OutcomeIgnored}, f.Handle(ev))
	}

	assert.Equal(t, 0, f.cache.Len())

	// uncoverable classes fall through even when whitelisted
	fatal := event.Event{Severity: event.SeverityError, Message: "Fatal error", Source: "a.php", Line: 1}
	assert.Equal(t, Decision{Handled: false, Outcome: OutcomeIgnored}, f.Handle(fatal))
}

func TestFilter_WritesDestinationLog(t *testing.T) {
	conf := testConfig(t)
	conf.Log.Prefix = "PHP "

	f := newTestFilter(t, conf)

	ts := time.Date(2024, time.March, 5, 14, 3, 9, 0, time.UTC)
	ev := event.Event{Severity: event.SeverityUserWarning, Message: "Undefined index: id", Source: "/srv/app.php", Line: 7, Timestamp: ts}

	f.Handle(ev)
	f.Handle(ev)
	require.NoError(t, f.Stop(context.Background()))

	data, err := os.ReadFile(conf.Log.Path)
	require.NoError(t, err)

	assert.Equal(t,
		"[05-Mar-2024 14:03:09 UTC] PHP User Warning: Undefined index: id in /srv/app.php on line 7\n",
		string(data),
	)
}

func TestFilter_MissingTimestampUsesClock(t *testing.T) {
	f := newTestFilter(t, testConfig(t))
	f.sink = &mockSink{}

	now := time.Unix(5000, 0)
	f.clock = func() time.Time { return now }

	ev := event.Event{Severity: event.SeverityWarning, Message: "X", Source: "a.php", Line: 1}
	require.Equal(t, OutcomeLogged, f.Handle(ev).Outcome)

	entries := f.cache.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, now, entries[ev.Fingerprint().String()])
}

func TestFilter_ConcurrentHandleLogsOnce(t *testing.T) {
	f := newTestFilter(t, testConfig(t))
	s := &mockSink{}
	f.sink = s

	ev := warning("X", "a.php", 10, time.Now().Unix())

	g := new(errgroup.Group)

	for i := 0; i < 100; i++ {
		g.Go(func() error {
			f.Handle(ev)

			return nil
		})
	}

	require.NoError(t, g.Wait())
	assert.Equal(t, 1, s.count())
}

func TestFilter_SurvivesRestart(t *testing.T) {
	conf := testConfig(t)
	now := time.Now()

	first := newTestFilter(t, conf)
	first.sink = &mockSink{}

	ev := warning("X", "a.php", 10, now.Unix())
	require.Equal(t, OutcomeLogged, first.Handle(ev).Outcome)
	require.NoError(t, first.Stop(context.Background()))

	second := newTestFilter(t, conf)
	second.sink = &mockSink{}

	assert.Equal(t, OutcomeDuplicate, second.Handle(ev).Outcome)

	stats := second.Stats()
	assert.Equal(t, 1, stats.Entries)
	assert.Greater(t, stats.SnapshotBytes, int64(0))
	require.NotNil(t, stats.Oldest)
	assert.Equal(t, now.Unix(), stats.Oldest.Unix())
}

func TestFilter_CorruptSnapshotStartsEmpty(t *testing.T) {
	conf := testConfig(t)
	require.NoError(t, os.WriteFile(conf.Cache.SnapshotPath, []byte("garbage"), 0o644))

	f := newTestFilter(t, conf)
	f.sink = &mockSink{}

	assert.Equal(t, 0, f.cache.Len())
	assert.Equal(t, OutcomeLogged, f.Handle(warning("X", "a.php", 10, time.Now().Unix())).Outcome)
}

func TestFilter_UnwritableDestinations(t *testing.T) {
	conf := testConfig(t)
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	conf.Cache.SnapshotPath = filepath.Join(blocker, "cache.json")
	conf.Log.Path = filepath.Join(blocker, "debug.log")

	f := newTestFilter(t, conf)

	ev := warning("X", "a.php", 10, time.Now().Unix())

	assert.NotPanics(t, func() {
		assert.Equal(t, OutcomeLogged, f.Handle(ev).Outcome)
		assert.Equal(t, OutcomeDuplicate, f.Handle(ev).Outcome)
	})
}

func TestFilter_StartStop(t *testing.T) {
	conf := testConfig(t)
	conf.Cache.FlushEvery = 0
	conf.Cache.FlushInterval = time.Hour

	f := newTestFilter(t, conf)
	f.sink = &mockSink{}

	require.NoError(t, f.Start(context.Background()))

	f.Handle(warning("X", "a.php", 10, time.Now().Unix()))
	require.NoError(t, f.Stop(context.Background()))

	data, err := os.ReadFile(conf.Cache.SnapshotPath)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "{"))
}

func TestFilter_HandleAfterStopFallsThrough(t *testing.T) {
	conf := testConfig(t)

	f := newTestFilter(t, conf)
	s := &mockSink{}
	f.sink = s

	require.Equal(t, OutcomeLogged, f.Handle(warning("X", "a.php", 10, 0)).Outcome)
	require.NoError(t, f.Stop(context.Background()))

	assert.Equal(t, Decision{Outcome: OutcomeIgnored}, f.Handle(warning("Y", "a.php", 11, 1)))
	assert.Equal(t, Decision{Outcome: OutcomeIgnored}, f.Handle(warning("X", "a.php", 10, 2)))
	assert.Equal(t, 1, s.count())
	assert.Equal(t, 1, f.cache.Len())
}

func TestOutcome_String(t *testing.T) {
	assert.Equal(t, "logged", OutcomeLogged.String())
	assert.Equal(t, "duplicate", OutcomeDuplicate.String())
	assert.Equal(t, "unknown", Outcome(42).String())
}

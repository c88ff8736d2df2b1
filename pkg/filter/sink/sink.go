package sink

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/ethpandaops/errorfilter/pkg/filter/event"
	"github.com/sirupsen/logrus"
)

// TimeLayout is the timestamp format of the destination log.
const TimeLayout = "02-Jan-2006 15:04:05 MST"

// Format renders an event as a destination log line, without the newline.
func Format(ev event.Event, prefix string, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}

	return fmt.Sprintf("[%s] %s%s: %s in %s on line %d",
		ev.Timestamp.In(loc).Format(TimeLayout),
		prefix,
		ev.Severity.Label(),
		ev.Message,
		ev.Source,
		ev.Line,
	)
}

// File is an append-only destination log. Failures never propagate: the
// line is dropped and reported on the debug channel.
type File struct {
	log    logrus.FieldLogger
	config Config
	loc    *time.Location

	mu     sync.Mutex
	f      *os.File
	closed bool
}

// New creates a sink. The file is opened lazily on the first emit and
// reopened after a failed write.
func New(log logrus.FieldLogger, config *Config) *File {
	log = log.WithField("component", "sink")

	loc, err := config.Location()
	if err != nil {
		log.WithError(err).WithField("timezone", config.Timezone).Debug("unknown timezone, using local time")
	}

	return &File{
		log:    log,
		config: *config,
		loc:    loc,
	}
}

// Emit formats and appends the event.
func (s *File) Emit(ev event.Event) {
	if !s.config.Enabled {
		return
	}

	s.WriteLine(Format(ev, s.config.Prefix, s.loc))
}

// WriteLine appends a single preformatted line. Lines written after Close
// are dropped.
func (s *File) WriteLine(line string) {
	if !s.config.Enabled {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		s.log.WithField("path", s.config.Path).Debug("log closed, dropping line")

		return
	}

	if s.f == nil {
		f, err := os.OpenFile(s.config.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			s.log.WithError(err).WithField("path", s.config.Path).Debug("failed to open log, dropping line")

			return
		}

		s.f = f
	}

	if _, err := s.f.WriteString(line + "\n"); err != nil {
		s.log.WithError(err).WithField("path", s.config.Path).Debug("failed to write log, dropping line")

		s.f.Close()
		s.f = nil
	}
}

// Close closes the destination file. The sink is not reopened afterwards.
func (s *File) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true

	if s.f == nil {
		return nil
	}

	err := s.f.Close()
	s.f = nil

	return err
}

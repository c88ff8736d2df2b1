// Package source feeds newline-delimited JSON diagnostics from the host into
// a filter handler.
package source

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/ethpandaops/errorfilter/pkg/filter"
	"github.com/ethpandaops/errorfilter/pkg/filter/event"
	"github.com/sirupsen/logrus"
)

const maxLineSize = 1024 * 1024

// Counts summarises one ingest run.
type Counts struct {
	Read     int
	Handled  int
	Fallback int
	Invalid  int
}

// Reader decodes events and routes them through a handler. Events the
// handler does not take, and lines that are not valid events, are written
// unchanged to the host's default output.
type Reader struct {
	log      logrus.FieldLogger
	handler  filter.Handler
	fallback io.Writer
}

// NewReader creates a reader.
func NewReader(log logrus.FieldLogger, handler filter.Handler, fallback io.Writer) *Reader {
	if fallback == nil {
		fallback = io.Discard
	}

	return &Reader{
		log:      log.WithField("component", "source"),
		handler:  handler,
		fallback: fallback,
	}
}

// Run reads until EOF or until ctx is done.
func (r *Reader) Run(ctx context.Context, in io.Reader) (Counts, error) {
	var counts Counts

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return counts, err
		}

		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		counts.Read++

		var ev event.Event
		if err := json.Unmarshal(line, &ev); err != nil {
			counts.Invalid++

			r.log.WithError(err).Debug("invalid event, passing through")
			r.passThrough(line)

			continue
		}

		if d := r.handler.Handle(ev); d.Handled {
			counts.Handled++

			continue
		}

		counts.Fallback++
		r.passThrough(line)
	}

	return counts, scanner.Err()
}

func (r *Reader) passThrough(line []byte) {
	if _, err := fmt.Fprintf(r.fallback, "%s\n", line); err != nil {
		r.log.WithError(err).Debug("failed to write to host output")
	}
}

package ear

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// Source yields EAR samples in time order. Next returns io.EOF when exhausted.
type Source interface {
	Next() (Sample, error)
}

// CSVSource reads "timestamp_ms,ear" records, e.g. a recorded session.
// Lines starting with '#' and a non-numeric header row are skipped.
// Timestamps are offsets from origin.
type CSVSource struct {
	r      *csv.Reader
	origin time.Time
	line   int
}

// NewCSVSource creates a CSVSource reading from r.
func NewCSVSource(r io.Reader, origin time.Time) *CSVSource {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.FieldsPerRecord = 2
	cr.TrimLeadingSpace = true
	return &CSVSource{r: cr, origin: origin}
}

// Next returns the next sample.
func (s *CSVSource) Next() (Sample, error) {
	for {
		rec, err := s.r.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return Sample{}, io.EOF
			}
			return Sample{}, fmt.Errorf("read csv: %w", err)
		}
		s.line++

		ms, err := strconv.ParseFloat(strings.TrimSpace(rec[0]), 64)
		if err != nil {
			if s.line == 1 {
				continue // header
			}
			return Sample{}, fmt.Errorf("line %d: parse timestamp %q: %w", s.line, rec[0], err)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(rec[1]), 64)
		if err != nil {
			return Sample{}, fmt.Errorf("line %d: parse ear %q: %w", s.line, rec[1], err)
		}

		return Sample{
			EAR:  v,
			Time: s.origin.Add(time.Duration(ms * float64(time.Millisecond))),
		}, nil
	}
}

// Replay sends every sample from src to out, sleeping between samples so
// their spacing matches their timestamps. It returns nil at end of input.
// sleep is injectable for tests; pass nil to use real time.
func Replay(ctx context.Context, src Source, out chan<- Sample, sleep func(context.Context, time.Duration) error) error {
	if sleep == nil {
		sleep = sleepCtx
	}

	var prev time.Time
	for {
		s, err := src.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		if !prev.IsZero() {
			if gap := s.Time.Sub(prev); gap > 0 {
				if err := sleep(ctx, gap); err != nil {
					return err
				}
			}
		}
		prev = s.Time

		select {
		case out <- s:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

package report

import (
	"context"
	"encoding/csv"
	stderrors "errors"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// Sink receives committed batches as they happen.
type Sink interface {
	Write(ctx context.Context, records []Record) error
	Close() error
}

// Collector accumulates records in commit order. It is safe for concurrent
// use; batches passed to a single Collect call stay contiguous.
type Collector struct {
	mu      sync.Mutex
	records []Record
	sinks   []Sink
}

// NewCollector creates a collector forwarding every batch to sinks.
func NewCollector(sinks ...Sink) *Collector {
	return &Collector{sinks: sinks}
}

// Collect appends records and forwards them to every sink. The records are
// kept even when a sink fails; sink errors are joined and returned.
func (c *Collector) Collect(ctx context.Context, records ...Record) error {
	if len(records) == 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, records...)

	var errs []error
	for _, s := range c.sinks {
		if err := s.Write(ctx, records); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}

// Records returns a copy of everything collected so far.
func (c *Collector) Records() []Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Record(nil), c.records...)
}

// Len reports the number of collected records.
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records)
}

// Flush writes the header and every collected record as CSV. Flushing
// twice without an intervening Collect produces identical output.
func (c *Collector) Flush(w io.Writer) error {
	return WriteCSV(w, c.Records())
}

// WriteFile flushes to path through a temporary file in the same directory,
// so a reader never sees a half-written report.
func (c *Collector) WriteFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".report-*.csv")
	if err != nil {
		return err
	}
	if err := c.Flush(tmp); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Close closes every sink.
func (c *Collector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var errs []error
	for _, s := range c.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}

// WriteCSV writes the header followed by one row per record.
func WriteCSV(w io.Writer, records []Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, r := range records {
		if err := cw.Write(r.Row()); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

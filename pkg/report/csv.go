package report

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"sync"
)

// CSVSink streams rows to a report file, flushing after every batch so the
// file on disk is complete up to the last committed package.
type CSVSink struct {
	mu sync.Mutex
	f  *os.File
	w  *csv.Writer
}

// OpenCSVSink truncates path and writes the header.
func OpenCSVSink(path string) (*CSVSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	s := &CSVSink{f: f, w: csv.NewWriter(f)}
	if err := s.writeRows([][]string{Header}); err != nil {
		f.Close()
		return nil, err
	}
	return s, nil
}

// Path returns the file being written.
func (s *CSVSink) Path() string { return s.f.Name() }

func (s *CSVSink) Write(_ context.Context, records []Record) error {
	rows := make([][]string, len(records))
	for i, r := range records {
		rows[i] = r.Row()
	}
	return s.writeRows(rows)
}

func (s *CSVSink) writeRows(rows [][]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range rows {
		if err := s.w.Write(row); err != nil {
			return err
		}
	}
	s.w.Flush()
	return s.w.Error()
}

func (s *CSVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		s.f.Close()
		return err
	}
	return s.f.Close()
}

var _ Sink = (*CSVSink)(nil)

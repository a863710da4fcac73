package report

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteDriverName = "sqlite"

// SQLiteSink appends records of one run to a diagnostics table, so many
// runs can share one database and be compared with SQL.
type SQLiteSink struct {
	db    *sql.DB
	runID string

	mu  sync.Mutex
	seq int
}

// OpenSQLiteSink opens (creating if needed) the database at path and
// prepares the schema. Records are tagged with runID.
func OpenSQLiteSink(path, runID string) (*SQLiteSink, error) {
	cleanPath := strings.TrimSpace(path)
	if cleanPath == "" {
		return nil, fmt.Errorf("sqlite path must not be empty")
	}
	if info, err := os.Stat(cleanPath); err == nil && info.IsDir() {
		return nil, fmt.Errorf("sqlite path %q is a directory", cleanPath)
	}
	if dir := filepath.Dir(cleanPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite directory %q: %w", dir, err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", cleanPath)
	db, err := sql.Open(sqliteDriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", cleanPath, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite %q: %w", cleanPath, err)
	}
	if err := migrateDiagnostics(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteSink{db: db, runID: runID}, nil
}

func migrateDiagnostics(db *sql.DB) error {
	_, err := db.Exec(`
CREATE TABLE IF NOT EXISTS diagnostics (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL,
	seq INTEGER NOT NULL,
	package TEXT NOT NULL,
	category TEXT NOT NULL,
	severity INTEGER NOT NULL,
	message TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_diagnostics_run ON diagnostics (run_id, seq);
`)
	if err != nil {
		return fmt.Errorf("migrate diagnostics schema: %w", err)
	}
	return nil
}

// Write inserts the batch in one transaction.
func (s *SQLiteSink) Write(ctx context.Context, records []Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin diagnostics tx: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO diagnostics (run_id, seq, package, category, severity, message, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
`)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare diagnostics insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().UnixMilli()
	seq := s.seq
	for _, r := range records {
		seq++
		if _, err := stmt.ExecContext(ctx, s.runID, seq, r.Package, string(r.Category), int(r.Severity), r.Message, now); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert diagnostic: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit diagnostics: %w", err)
	}
	s.seq = seq
	return nil
}

// Records reads back the records of runID in commit order.
func (s *SQLiteSink) Records(ctx context.Context, runID string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT package, category, severity, message
FROM diagnostics
WHERE run_id = ?
ORDER BY seq ASC
`, runID)
	if err != nil {
		return nil, fmt.Errorf("query diagnostics: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r        Record
			category string
			severity int
		)
		if err := rows.Scan(&r.Package, &category, &severity, &r.Message); err != nil {
			return nil, fmt.Errorf("scan diagnostic: %w", err)
		}
		r.Category = Category(category)
		r.Severity = Severity(severity)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate diagnostics: %w", err)
	}
	return out, nil
}

func (s *SQLiteSink) Close() error {
	return s.db.Close()
}

var _ Sink = (*SQLiteSink)(nil)

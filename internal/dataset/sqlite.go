package dataset

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/signalsfoundry/satellite-telemetry-sim/core"
	"github.com/signalsfoundry/satellite-telemetry-sim/model"
	_ "modernc.org/sqlite" // driver: sqlite
)

// SQLiteWriter stores samples in the samples table of a SQLite database.
type SQLiteWriter struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and ensures the schema.
func OpenSQLite(ctx context.Context, path string) (*SQLiteWriter, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("dataset: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("dataset: ping sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, schemaSQLite()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("dataset: ensure schema: %w", err)
	}
	return &SQLiteWriter{db: db}, nil
}

// DB exposes the handle for callers that want to query the stored rows.
func (s *SQLiteWriter) DB() *sql.DB { return s.db }

// Write inserts every sample in one transaction.
func (s *SQLiteWriter) Write(ctx context.Context, samples []Sample) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("dataset: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, insertSQL())
	if err != nil {
		return fmt.Errorf("dataset: prepare insert: %w", err)
	}
	defer stmt.Close()

	args := make([]any, 0, 3+model.NumFields+core.NumActions)
	for i, sample := range samples {
		args = args[:0]
		args = append(args, sample.Timestamp.UTC().Format(time.RFC3339Nano), sample.DaysSinceStart)
		for _, v := range sample.Telemetry.Values() {
			args = append(args, v)
		}
		args = append(args, joinActions(sample.Actions()))
		for _, flag := range sample.Labels {
			args = append(args, flag)
		}
		if _, err = stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("dataset: insert row %d: %w", i, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("dataset: commit: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteWriter) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Column returns the SQL column name for a header name.
func Column(name string) string {
	var b strings.Builder
	underscore := false
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			underscore = false
		case !underscore && b.Len() > 0:
			b.WriteByte('_')
			underscore = true
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}

func dataColumns() []string {
	header := Header()
	cols := make([]string, len(header))
	for i, name := range header {
		cols[i] = Column(name)
	}
	return cols
}

func schemaSQLite() string {
	var b strings.Builder
	b.WriteString("CREATE TABLE IF NOT EXISTS samples (\n  id INTEGER PRIMARY KEY AUTOINCREMENT")
	b.WriteString(",\n  timestamp TEXT NOT NULL")
	b.WriteString(",\n  days_since_start INTEGER NOT NULL")
	for _, f := range model.Fields() {
		fmt.Fprintf(&b, ",\n  %s REAL NOT NULL", Column(f.String()))
	}
	b.WriteString(",\n  recommended_actions TEXT NOT NULL DEFAULT ''")
	for _, a := range core.Actions() {
		fmt.Fprintf(&b, ",\n  %s INTEGER NOT NULL DEFAULT 0", Column(a.String()))
	}
	b.WriteString("\n);")
	return b.String()
}

func insertSQL() string {
	cols := dataColumns()
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	return fmt.Sprintf("INSERT INTO samples (%s) VALUES (%s)", strings.Join(cols, ", "), marks)
}

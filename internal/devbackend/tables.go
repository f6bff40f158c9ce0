// Package devbackend is a self-contained development stand-in for the
// remote analytics service. It implements the same HTTP surface the agent
// talks to, backed by DuckDB for tabular data.
package devbackend

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/marcboeker/go-duckdb"
)

// Tabular is the storage contract the server needs. Extracted so handler
// tests can run without a DuckDB instance.
type Tabular interface {
	LoadCSV(sessionID string, data []byte) (rowCount, columnCount int, err error)
	Preview(sessionID string, limit int) (headers []string, rows [][]string, err error)
	Drop(sessionID string)
	Close() error
}

// TableStore keeps one DuckDB table per session, created from uploaded CSV
// content via read_csv_auto.
type TableStore struct {
	mu      sync.Mutex
	db      *sql.DB
	tempDir string
}

// NewTableStore opens an in-process DuckDB database under tempDir.
func NewTableStore(tempDir string) (*TableStore, error) {
	if err := os.MkdirAll(tempDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}

	dbPath := filepath.Join(tempDir, "devbackend.duckdb")
	fmt.Printf("[TableStore] Creating database at: %s\n", dbPath)

	connector, err := duckdb.NewConnector(dbPath, func(execer driver.ExecerContext) error {
		pragmas := []string{
			"PRAGMA memory_limit='512MB'",
			"PRAGMA threads=2",
			"PRAGMA enable_progress_bar=false",
		}
		for _, pragma := range pragmas {
			if _, err := execer.ExecContext(context.Background(), pragma, nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create DuckDB connector: %w", err)
	}

	return &TableStore{db: sql.OpenDB(connector), tempDir: tempDir}, nil
}

// LoadCSV replaces the session's table with the parsed CSV content.
func (ts *TableStore) LoadCSV(sessionID string, data []byte) (int, int, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	// read_csv_auto wants a file on disk.
	tmp, err := os.CreateTemp(ts.tempDir, "upload-*.csv")
	if err != nil {
		return 0, 0, fmt.Errorf("failed to stage CSV: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return 0, 0, fmt.Errorf("failed to stage CSV: %w", err)
	}
	tmp.Close()

	table := tableName(sessionID)
	_, err = ts.db.Exec(fmt.Sprintf(
		`CREATE OR REPLACE TABLE %s AS SELECT * FROM read_csv_auto('%s')`,
		table, strings.ReplaceAll(tmp.Name(), "'", "''")))
	if err != nil {
		return 0, 0, fmt.Errorf("failed to parse CSV: %w", err)
	}

	var rowCount int
	if err := ts.db.QueryRow(fmt.Sprintf(`SELECT COUNT(*) FROM %s`, table)).Scan(&rowCount); err != nil {
		return 0, 0, err
	}
	var columnCount int
	err = ts.db.QueryRow(
		`SELECT COUNT(*) FROM information_schema.columns WHERE table_name = ?`,
		strings.Trim(table, `"`)).Scan(&columnCount)
	if err != nil {
		return 0, 0, err
	}

	fmt.Printf("[TableStore] Loaded %d rows x %d columns for session %s\n", rowCount, columnCount, sessionID)
	return rowCount, columnCount, nil
}

// Preview returns the headers and the first rows of the session's table.
func (ts *TableStore) Preview(sessionID string, limit int) ([]string, [][]string, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	rows, err := ts.db.Query(fmt.Sprintf(`SELECT * FROM %s LIMIT %d`, tableName(sessionID), limit))
	if err != nil {
		return nil, nil, fmt.Errorf("no dataset loaded for this session")
	}
	defer rows.Close()

	headers, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}

	var out [][]string
	values := make([]interface{}, len(headers))
	ptrs := make([]interface{}, len(headers))
	for i := range values {
		ptrs[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, err
		}
		row := make([]string, len(headers))
		for i, v := range values {
			if v == nil {
				row[i] = ""
				continue
			}
			row[i] = fmt.Sprintf("%v", v)
		}
		out = append(out, row)
	}
	return headers, out, rows.Err()
}

// Drop removes the session's table if it exists.
func (ts *TableStore) Drop(sessionID string) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.db.Exec(fmt.Sprintf(`DROP TABLE IF EXISTS %s`, tableName(sessionID)))
}

// Close closes the underlying database.
func (ts *TableStore) Close() error {
	return ts.db.Close()
}

// tableName maps a session id to a safe quoted identifier.
func tableName(sessionID string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, sessionID)
	return `"t_` + cleaned + `"`
}

// Package sqlite provides a SQLite-backed record log.
//
// SQLite is a lightweight, file-based database suitable for local
// development and single-machine deployments. Records are stored one row
// per record with the serialized payload in a TEXT column.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/agentzero/graphmem-go/pkg/recordlog"
)

// Client implements recordlog.Log using SQLite as the backend.
type Client struct {
	db      *sql.DB
	table   string
	lastSeq int64
}

// Config contains configuration for creating a SQLite record log.
type Config struct {
	// DBPath is the path to the SQLite database file.
	DBPath string

	// TableName is the name of the table holding records.
	// Defaults to "records".
	TableName string
}

// NewClient creates a new SQLite record log client.
//
// Parameters:
//   - cfg: Configuration containing database path and table name
//
// Returns:
//   - *Client: The SQLite client instance
//   - error: Error if database connection or table creation fails
func NewClient(cfg *Config) (*Client, error) {
	if cfg.TableName == "" {
		cfg.TableName = "records"
	}

	// Create parent directory if it doesn't exist
	dbDir := filepath.Dir(cfg.DBPath)
	if dbDir != "" && dbDir != "." {
		if err := os.MkdirAll(dbDir, 0o755); err != nil {
			return nil, fmt.Errorf("NewSQLiteClient: failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=FULL")
	if err != nil {
		return nil, fmt.Errorf("NewSQLiteClient: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("NewSQLiteClient: %w", err)
	}

	client := &Client{db: db, table: cfg.TableName}

	if err := client.initTable(context.Background()); err != nil {
		return nil, err
	}
	if err := client.loadLastSeq(context.Background()); err != nil {
		return nil, err
	}

	return client, nil
}

// initTable initializes the record table structure.
func (c *Client) initTable(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			seq INTEGER PRIMARY KEY,
			ts DATETIME NOT NULL,
			kind TEXT NOT NULL,
			payload TEXT NOT NULL
		)
	`, c.table)

	if _, err := c.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("initTable: %w", err)
	}
	return nil
}

// loadLastSeq recovers the highest assigned sequence number.
func (c *Client) loadLastSeq(ctx context.Context) error {
	query := fmt.Sprintf("SELECT COALESCE(MAX(seq), 0) FROM %s", c.table)
	if err := c.db.QueryRowContext(ctx, query).Scan(&c.lastSeq); err != nil {
		return fmt.Errorf("loadLastSeq: %w", err)
	}
	return nil
}

// Append durably writes rec and returns its assigned sequence number.
func (c *Client) Append(ctx context.Context, rec *recordlog.Record) (int64, error) {
	rec.Seq = c.lastSeq + 1
	data, err := recordlog.Marshal(rec)
	if err != nil {
		return 0, err
	}

	query := fmt.Sprintf("INSERT INTO %s (seq, ts, kind, payload) VALUES (?, ?, ?, ?)", c.table)
	if _, err := c.db.ExecContext(ctx, query, rec.Seq, rec.TS.UTC(), string(rec.Kind), string(data)); err != nil {
		return 0, fmt.Errorf("append: %w", err)
	}

	c.lastSeq = rec.Seq
	return rec.Seq, nil
}

// ReadAll streams all records in sequence order.
func (c *Client) ReadAll(ctx context.Context, fn func(*recordlog.Record) error) error {
	query := fmt.Sprintf("SELECT payload FROM %s ORDER BY seq ASC", c.table)
	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("read all: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return fmt.Errorf("read all: %w", err)
		}
		rec, err := recordlog.Unmarshal([]byte(payload))
		if err != nil {
			return fmt.Errorf("read all: %w", err)
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Replace atomically rewrites the log to exactly recs in one transaction.
func (c *Client) Replace(ctx context.Context, recs []*recordlog.Record) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("replace: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", c.table)); err != nil {
		return fmt.Errorf("replace: %w", err)
	}

	insert := fmt.Sprintf("INSERT INTO %s (seq, ts, kind, payload) VALUES (?, ?, ?, ?)", c.table)
	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		return fmt.Errorf("replace: %w", err)
	}
	defer stmt.Close()

	for i, rec := range recs {
		rec.Seq = int64(i + 1)
		data, err := recordlog.Marshal(rec)
		if err != nil {
			return fmt.Errorf("replace: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, rec.Seq, rec.TS.UTC(), string(rec.Kind), string(data)); err != nil {
			return fmt.Errorf("replace: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("replace: commit: %w", err)
	}

	c.lastSeq = int64(len(recs))
	return nil
}

// Len reports the current number of records.
func (c *Client) Len(ctx context.Context) (int, error) {
	var n int
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", c.table)
	if err := c.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("len: %w", err)
	}
	return n, nil
}

// Name identifies the backend.
func (c *Client) Name() string { return "sqlite" }

// Close closes the database connection.
func (c *Client) Close() error {
	return c.db.Close()
}

var _ recordlog.Log = (*Client)(nil)

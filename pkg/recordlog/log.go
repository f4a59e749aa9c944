package recordlog

import "context"

// Log is the durability boundary between the memory graph and storage.
//
// All backends (JSONL file, SQLite, PostgreSQL, MySQL) provide the same
// contract:
//   - Append assigns the next sequence number, durably writes the record,
//     and returns the assigned sequence number.
//   - ReadAll streams every record in sequence order; it is restartable and
//     used only at startup and during compaction checks.
//   - Replace atomically swaps the whole log for a new record sequence
//     (compaction). A crash mid-replace leaves either the old or the new
//     log fully intact.
//
// Callers serialize Append and Replace behind a single-writer lock; a Log
// implementation does not need to be safe for concurrent mutation.
type Log interface {
	// Append durably writes rec, assigning and returning its sequence
	// number. On error the record is not acknowledged and must not be
	// applied to the graph index.
	Append(ctx context.Context, rec *Record) (int64, error)

	// ReadAll streams all records in sequence order. Returning an error
	// from fn stops the scan and propagates the error.
	ReadAll(ctx context.Context, fn func(*Record) error) error

	// Replace atomically rewrites the log to exactly recs, renumbering
	// sequence numbers from 1.
	Replace(ctx context.Context, recs []*Record) error

	// Len reports the current number of records in the log.
	Len(ctx context.Context) (int, error)

	// Name identifies the backend ("file", "sqlite", "postgres", "mysql").
	Name() string

	// Close releases the underlying storage handle.
	Close() error
}

// Repairer is implemented by backends that can discard a torn trailing
// record during open (crash recovery). The repair count is informational
// and never surfaced as an error.
type Repairer interface {
	// Repaired reports how many trailing units were discarded when the
	// log was opened.
	Repaired() int
}

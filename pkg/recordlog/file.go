package recordlog

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// FileLog is the default Log backend: one JSON object per line in an
// append-only file. Each append is flushed with fsync before it is
// acknowledged.
type FileLog struct {
	path string
	f    *os.File

	lastSeq  int64
	count    int
	repaired int
}

// FileConfig contains configuration for opening a file-backed log.
type FileConfig struct {
	// Path is the log file location. Parent directories are created as
	// needed.
	Path string
}

// OpenFile opens (or creates) the record log at cfg.Path.
//
// The existing file is scanned to recover the last sequence number. If the
// trailing unit is truncated or malformed, consistent with a crash during
// a write, it is discarded and the file is truncated to the last fully
// written record; Repaired reports how many units were dropped. A malformed
// unit that is not the trailing one is real corruption and fails the open.
func OpenFile(cfg *FileConfig) (*FileLog, error) {
	if cfg == nil || cfg.Path == "" {
		return nil, errors.New("OpenFile: empty path")
	}

	dir := filepath.Dir(cfg.Path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("OpenFile: create directory: %w", err)
		}
	}

	l := &FileLog{path: cfg.Path}
	if err := l.scan(); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("OpenFile: %w", err)
	}
	l.f = f
	return l, nil
}

// scan reads the whole file, recovering lastSeq/count and truncating a torn
// tail if present.
func (l *FileLog) scan() error {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("OpenFile: %w", err)
	}
	defer f.Close()

	var offset, validOffset int64
	var pendingErr error
	r := bufio.NewReader(f)
	for {
		line, rerr := r.ReadBytes('\n')
		if rerr != nil && rerr != io.EOF {
			return fmt.Errorf("OpenFile: scan: %w", rerr)
		}

		trimmed := bytes.TrimSpace(line)
		if len(trimmed) > 0 {
			rec, perr := Unmarshal(trimmed)
			if perr == nil && rerr == nil {
				// A valid unit after a bad one means the bad one was
				// not a torn tail.
				if pendingErr != nil {
					return fmt.Errorf("OpenFile: corrupt record at offset %d: %w", validOffset, pendingErr)
				}
				l.lastSeq = rec.Seq
				l.count++
				validOffset = offset + int64(len(line))
			} else {
				// Truncated or malformed trailing unit: expected
				// crash-recovery case, drop it.
				if perr == nil {
					perr = errors.New("record missing newline terminator")
				}
				pendingErr = perr
				l.repaired++
			}
		} else if rerr == nil && pendingErr == nil {
			validOffset = offset + int64(len(line))
		}

		offset += int64(len(line))
		if rerr == io.EOF {
			break
		}
	}

	if l.repaired > 0 {
		if err := os.Truncate(l.path, validOffset); err != nil {
			return fmt.Errorf("OpenFile: truncate torn tail: %w", err)
		}
	}
	return nil
}

// Append durably writes rec and returns its assigned sequence number.
func (l *FileLog) Append(ctx context.Context, rec *Record) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	rec.Seq = l.lastSeq + 1
	data, err := Marshal(rec)
	if err != nil {
		return 0, err
	}
	data = append(data, '\n')

	if _, err := l.f.Write(data); err != nil {
		return 0, fmt.Errorf("append: %w", err)
	}
	if err := l.f.Sync(); err != nil {
		return 0, fmt.Errorf("append: sync: %w", err)
	}

	l.lastSeq = rec.Seq
	l.count++
	return rec.Seq, nil
}

// ReadAll streams all records in sequence order from a fresh read handle.
func (l *FileLog) ReadAll(ctx context.Context, fn func(*Record) error) error {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read all: %w", err)
	}
	defer f.Close()

	s := bufio.NewScanner(f)
	s.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for s.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := bytes.TrimSpace(s.Bytes())
		if len(line) == 0 {
			continue
		}
		rec, err := Unmarshal(line)
		if err != nil {
			return fmt.Errorf("read all: %w", err)
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	if err := s.Err(); err != nil {
		return fmt.Errorf("read all: %w", err)
	}
	return nil
}

// Replace atomically rewrites the log to exactly recs using
// write-to-temp-then-rename, so a crash mid-replace leaves either the old
// or the new file fully intact.
func (l *FileLog) Replace(ctx context.Context, recs []*Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dir := filepath.Dir(l.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(l.path)+".compact-*")
	if err != nil {
		return fmt.Errorf("replace: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op after successful rename

	w := bufio.NewWriter(tmp)
	for i, rec := range recs {
		rec.Seq = int64(i + 1)
		data, err := Marshal(rec)
		if err != nil {
			tmp.Close()
			return fmt.Errorf("replace: %w", err)
		}
		data = append(data, '\n')
		if _, err := w.Write(data); err != nil {
			tmp.Close()
			return fmt.Errorf("replace: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("replace: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("replace: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("replace: %w", err)
	}

	if err := os.Rename(tmpPath, l.path); err != nil {
		return fmt.Errorf("replace: rename: %w", err)
	}
	syncDir(dir)

	// Swap the append handle over to the new file.
	old := l.f
	f, err := os.OpenFile(l.path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("replace: reopen: %w", err)
	}
	l.f = f
	_ = old.Close()

	l.lastSeq = int64(len(recs))
	l.count = len(recs)
	return nil
}

// Len reports the current number of records.
func (l *FileLog) Len(ctx context.Context) (int, error) {
	return l.count, nil
}

// Name identifies the backend.
func (l *FileLog) Name() string { return "file" }

// Repaired reports how many torn trailing units were discarded at open.
func (l *FileLog) Repaired() int { return l.repaired }

// Close closes the append handle.
func (l *FileLog) Close() error {
	if l.f == nil {
		return nil
	}
	return l.f.Close()
}

// syncDir fsyncs a directory so a rename survives a crash. Best effort:
// some platforms do not support syncing directories.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}

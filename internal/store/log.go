// Package store implements the append-only record log that backs the
// registry, audit trail, receipts, and assignment history. A log is a
// JSONL file: one record per line, records never mutated or removed.
// Appends are serialized by an advisory lock and made durable with the
// temp-file, fsync, rename pattern, so a crash mid-append leaves no
// partial record behind.
package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mesh-intelligence/blindkit/pkg/types"
)

// Conflict inspects one existing record and reports whether the record
// being appended collides with it. Returning a non-nil error aborts the
// append.
type Conflict func(existing json.RawMessage) (bool, error)

// Log is an append-only JSONL record log.
type Log struct {
	path string
}

// Open returns a Log backed by path, creating the parent directory. The
// file itself is created on first append; scanning a missing log yields
// zero records.
func Open(path string) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating log dir: %w", err)
	}
	return &Log{path: path}, nil
}

// Path returns the log's file path.
func (l *Log) Path() string { return l.path }

// Append serializes rec and adds it after the existing records. When
// conflict is non-nil it runs against every existing record; a true
// result fails the append with ErrDuplicate and no state change. The
// append is durable before Append returns.
func (l *Log) Append(rec any, conflict Conflict) error {
	unlock, err := acquireLock(l.path)
	if err != nil {
		return err
	}
	defer unlock()

	records, err := l.records()
	if err != nil {
		return err
	}

	if conflict != nil {
		for _, existing := range records {
			hit, err := conflict(existing)
			if err != nil {
				return err
			}
			if hit {
				return fmt.Errorf("%s: %w", l.path, types.ErrDuplicate)
			}
		}
	}

	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshaling record: %w", err)
	}
	records = append(records, line)

	return writeAll(l.path, records)
}

// Scan replays every record in insertion order. The callback receives
// the raw line; returning an error stops the scan and propagates.
// Scanning is restartable: it re-reads the file on every call.
func (l *Log) Scan(fn func(json.RawMessage) error) error {
	records, err := l.records()
	if err != nil {
		return err
	}
	for _, rec := range records {
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}

// Records returns all records in insertion order.
func (l *Log) Records() ([]json.RawMessage, error) {
	return l.records()
}

// records reads the JSONL file. Blank lines are skipped; a malformed
// line fails the read rather than being dropped, because every record in
// an audit-bearing log must remain accountable.
func (l *Log) records() ([]json.RawMessage, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening %s: %w", l.path, err)
	}
	defer f.Close()

	var records []json.RawMessage
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if !json.Valid(line) {
			return nil, fmt.Errorf("%s: malformed record: %w", l.path, types.ErrValidation)
		}
		cp := make([]byte, len(line))
		copy(cp, line)
		records = append(records, json.RawMessage(cp))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning %s: %w", l.path, err)
	}
	return records, nil
}

// writeAll atomically replaces the log file with records using the
// temp-file, fsync, rename pattern.
func writeAll(path string, records []json.RawMessage) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".jsonl-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()

	w := bufio.NewWriter(tmp)
	for _, rec := range records {
		if _, err := w.Write(rec); err != nil {
			tmp.Close()
			os.Remove(tmpName)
			return fmt.Errorf("writing record: %w", err)
		}
		if err := w.WriteByte('\n'); err != nil {
			tmp.Close()
			os.Remove(tmpName)
			return fmt.Errorf("writing newline: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("flushing buffer: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}

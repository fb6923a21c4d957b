package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// Index is an ephemeral SQLite view over one or more JSONL logs. It is
// rebuilt from the logs on every open, so it can never drift from the
// source of truth. Callers run read-only SQL against DB(); writes go
// through Log.Append only.
type Index struct {
	db *sql.DB
}

// logTableMapping maps a log table name to its column list. Insertion
// order of the JSONL file is preserved by SQLite rowid.
var logTableMapping = map[string][]string{
	"subjects":    {"subject_id", "sex", "mass_grams", "registered_at"},
	"assignments": {"subject_id", "stage", "category", "forced", "assigned_at"},
	"registry":    {"code", "subject_id", "stage", "session", "status", "issued_at", "used_at", "receipt_digest"},
	"receipts":    {"receipt_id", "subject_id", "stage", "session", "photo_digest", "logged_at"},
	"audit":       {"seq", "event_id", "ts", "actor_root", "action", "payload"},
}

// OpenIndex creates an empty in-memory index with the standard schema.
func OpenIndex() (*Index, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("opening index: %w", err)
	}
	for _, ddl := range schemaDDL {
		if _, err := db.Exec(ddl); err != nil {
			db.Close()
			return nil, fmt.Errorf("creating index schema: %w", err)
		}
	}
	return &Index{db: db}, nil
}

// LoadLog reads every record of log into the named table. The table must
// be one of the standard mappings. Fields absent from a record insert as
// NULL; nested objects are stored as JSON text.
func (ix *Index) LoadLog(log *Log, table string) error {
	columns, ok := logTableMapping[table]
	if !ok {
		return fmt.Errorf("unknown index table %q", table)
	}

	records, err := log.Records()
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	tx, err := ix.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning load transaction: %w", err)
	}
	defer tx.Rollback()

	placeholders := make([]string, len(columns))
	for i := range placeholders {
		placeholders[i] = "?"
	}
	insertSQL := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		table,
		strings.Join(columns, ", "),
		strings.Join(placeholders, ", "),
	)

	stmt, err := tx.Prepare(insertSQL)
	if err != nil {
		return fmt.Errorf("preparing insert for %s: %w", table, err)
	}
	defer stmt.Close()

	for _, rec := range records {
		var obj map[string]any
		if err := json.Unmarshal(rec, &obj); err != nil {
			return fmt.Errorf("decoding %s record: %w", table, err)
		}

		args := make([]any, len(columns))
		for i, col := range columns {
			val, ok := obj[col]
			if !ok {
				args[i] = nil
				continue
			}
			switch v := val.(type) {
			case map[string]any, []any:
				b, err := json.Marshal(v)
				if err != nil {
					return fmt.Errorf("re-encoding %s.%s: %w", table, col, err)
				}
				args[i] = string(b)
			default:
				args[i] = val
			}
		}

		if _, err := stmt.Exec(args...); err != nil {
			return fmt.Errorf("inserting into %s: %w", table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing load transaction: %w", err)
	}
	return nil
}

// DB exposes the underlying database for read-only queries.
func (ix *Index) DB() *sql.DB { return ix.db }

// Close releases the in-memory database.
func (ix *Index) Close() error { return ix.db.Close() }

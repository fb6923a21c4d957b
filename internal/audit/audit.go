// Package audit maintains the per-root append-only action trail: a
// machine JSONL log plus a human-readable text mirror. Every
// state-changing command appends one event; events are never rewritten.
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mesh-intelligence/blindkit/internal/store"
	"github.com/mesh-intelligence/blindkit/pkg/types"
)

// Trail is the audit log of one root.
type Trail struct {
	root   string
	role   string
	log    *store.Log
	mirror string
}

// Open returns the Trail for a root acting as role (RoleBlinder or
// RoleExperimenter).
func Open(root, role string) (*Trail, error) {
	log, err := store.Open(filepath.Join(root, types.AuditLog))
	if err != nil {
		return nil, err
	}
	return &Trail{
		root:   root,
		role:   role,
		log:    log,
		mirror: filepath.Join(root, types.AuditMirror),
	}, nil
}

// Append adds one event with the next sequence number and writes the
// text mirror line. The duplicate check on seq keeps two racing writers
// from ever producing the same sequence number, on top of the store's
// advisory lock.
func (t *Trail) Append(action string, payload map[string]any) error {
	last, err := t.lastSeq()
	if err != nil {
		return err
	}

	ev := types.AuditEvent{
		Seq:       last + 1,
		EventID:   newUUID(),
		Timestamp: time.Now().UTC().Truncate(time.Second),
		ActorRoot: t.role,
		Action:    action,
		Payload:   payload,
	}

	conflict := func(existing json.RawMessage) (bool, error) {
		var prev types.AuditEvent
		if err := json.Unmarshal(existing, &prev); err != nil {
			return false, fmt.Errorf("decoding audit event: %w", err)
		}
		return prev.Seq >= ev.Seq, nil
	}
	if err := t.log.Append(ev, conflict); err != nil {
		return fmt.Errorf("appending audit event: %w", err)
	}

	return t.mirrorLine(ev)
}

// Events returns the full trail in sequence order.
func (t *Trail) Events() ([]types.AuditEvent, error) {
	var events []types.AuditEvent
	err := t.log.Scan(func(raw json.RawMessage) error {
		var ev types.AuditEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			return fmt.Errorf("decoding audit event: %w", err)
		}
		events = append(events, ev)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

// Filter selects audit events for the viewer. Zero values match all.
type Filter struct {
	Action  string
	Subject string
	Stage   string
	Since   time.Time
	Until   time.Time
	Grep    string
	Tail    int
}

// Show returns the events matching f in sequence order, via the SQLite
// index so time-range and payload filters run as SQL.
func (t *Trail) Show(f Filter) ([]types.AuditEvent, error) {
	ix, err := store.OpenIndex()
	if err != nil {
		return nil, err
	}
	defer ix.Close()

	if err := ix.LoadLog(t.log, "audit"); err != nil {
		return nil, err
	}

	var (
		clauses []string
		args    []any
	)
	if f.Action != "" {
		clauses = append(clauses, "action = ?")
		args = append(args, f.Action)
	}
	if f.Subject != "" {
		clauses = append(clauses, "json_extract(payload, '$.subject_id') = ?")
		args = append(args, f.Subject)
	}
	if f.Stage != "" {
		clauses = append(clauses, "json_extract(payload, '$.stage') = ?")
		args = append(args, f.Stage)
	}
	if !f.Since.IsZero() {
		clauses = append(clauses, "ts >= ?")
		args = append(args, f.Since.UTC().Format(time.RFC3339))
	}
	if !f.Until.IsZero() {
		clauses = append(clauses, "ts <= ?")
		args = append(args, f.Until.UTC().Format(time.RFC3339))
	}
	if f.Grep != "" {
		clauses = append(clauses, "(action LIKE '%' || ? || '%' OR payload LIKE '%' || ? || '%')")
		args = append(args, f.Grep, f.Grep)
	}

	query := "SELECT seq, event_id, ts, actor_root, action, payload FROM audit"
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY seq"

	rows, err := ix.DB().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying audit index: %w", err)
	}
	defer rows.Close()

	var events []types.AuditEvent
	for rows.Next() {
		var (
			ev      types.AuditEvent
			ts      string
			payload *string
		)
		if err := rows.Scan(&ev.Seq, &ev.EventID, &ts, &ev.ActorRoot, &ev.Action, &payload); err != nil {
			return nil, fmt.Errorf("scanning audit row: %w", err)
		}
		if ev.Timestamp, err = time.Parse(time.RFC3339, ts); err != nil {
			return nil, fmt.Errorf("audit row ts %q: %w", ts, err)
		}
		if payload != nil && *payload != "" {
			if err := json.Unmarshal([]byte(*payload), &ev.Payload); err != nil {
				return nil, fmt.Errorf("audit row payload: %w", err)
			}
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if f.Tail > 0 && len(events) > f.Tail {
		events = events[len(events)-f.Tail:]
	}
	return events, nil
}

// FormatLine renders one event the way the text mirror does.
func FormatLine(ev types.AuditEvent) string {
	keys := make([]string, 0, len(ev.Payload))
	for k := range ev.Payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	fmt.Fprintf(&b, "%s | %04d | %s", ev.Timestamp.Format(time.RFC3339), ev.Seq, strings.ToUpper(ev.Action))
	for _, k := range keys {
		fmt.Fprintf(&b, " | %s=%v", k, ev.Payload[k])
	}
	return b.String()
}

// mirrorLine appends the human-readable form of ev to actions.log.
func (t *Trail) mirrorLine(ev types.AuditEvent) error {
	f, err := os.OpenFile(t.mirror, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening audit mirror: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(FormatLine(ev) + "\n"); err != nil {
		return fmt.Errorf("writing audit mirror: %w", err)
	}
	return nil
}

// lastSeq returns the highest sequence number in the trail, 0 if empty.
func (t *Trail) lastSeq() (int64, error) {
	var last int64
	err := t.log.Scan(func(raw json.RawMessage) error {
		var ev types.AuditEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			return fmt.Errorf("decoding audit event: %w", err)
		}
		if ev.Seq > last {
			last = ev.Seq
		}
		return nil
	})
	return last, err
}

// newUUID generates a UUID v7, falling back to v4 if the clock source
// fails.
func newUUID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}

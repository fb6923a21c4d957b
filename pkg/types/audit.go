package types

import "time"

// AuditEvent is one immutable line of a root's audit trail. Seq is
// strictly monotonic per root; events are never reordered or rewritten.
type AuditEvent struct {
	Seq       int64          `json:"seq"`
	EventID   string         `json:"event_id"` // UUID v7
	Timestamp time.Time      `json:"ts"`
	ActorRoot string         `json:"actor_root"` // RoleBlinder or RoleExperimenter
	Action    string         `json:"action"`
	Payload   map[string]any `json:"payload,omitempty"`
}

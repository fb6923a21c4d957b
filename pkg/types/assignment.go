package types

import "time"

// AssignmentRecord binds one subject to one category at one stage.
// At most one record exists per (subject, stage); re-running assignment
// appends records only for subjects that have none.
type AssignmentRecord struct {
	SubjectID  string         `json:"subject_id"`
	Stage      string         `json:"stage"`
	Category   string         `json:"category"`
	Forced     bool           `json:"forced,omitempty"` // set by a dependency rule, not the draw
	Seed       SeedDescriptor `json:"seed"`
	AssignedAt time.Time      `json:"assigned_at"`
}

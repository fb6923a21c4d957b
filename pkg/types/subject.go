package types

import "time"

// Subject is a registered experimental subject. Identity is immutable:
// a subject is registered once and never deleted or renamed.
type Subject struct {
	SubjectID    string    `json:"subject_id"`
	Sex          string    `json:"sex,omitempty"`
	MassGrams    float64   `json:"mass_grams,omitempty"`
	RegisteredAt time.Time `json:"registered_at"`
}

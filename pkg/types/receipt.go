package types

import "time"

// Receipt is logged at the experimenter root when a physical label is
// consumed (an injection performed, a session run). Receipts are created
// once and never edited; reconciliation references them by id.
type Receipt struct {
	ReceiptID   string    `json:"receipt_id"` // UUID v7
	SubjectID   string    `json:"subject_id"`
	Stage       string    `json:"stage"`
	Session     int       `json:"session,omitempty"`
	PhotoDigest string    `json:"photo_digest,omitempty"`
	LoggedAt    time.Time `json:"logged_at"`
}

// ProvenanceLink records a legitimate edit to a blinded artifact:
// the child file was derived from the parent. Both digests are taken at
// record time so later tampering with either file is detectable.
type ProvenanceLink struct {
	LinkID       string    `json:"link_id"` // UUID v7
	ParentPath   string    `json:"parent"`
	ChildPath    string    `json:"child"`
	ParentDigest string    `json:"parent_sha256"`
	ChildDigest  string    `json:"child_sha256"`
	Note         string    `json:"note,omitempty"`
	RecordedAt   time.Time `json:"ts"`
}

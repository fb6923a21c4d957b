package types

import "time"

// Label statuses. A code is issued, later marked used when a receipt is
// reconciled against it, or voided if the physical label is destroyed.
const (
	StatusIssued = "ISSUED"
	StatusUsed   = "USED"
	StatusVoid   = "VOID"
)

// LabelEntry is one row of the blinder-side label registry. The registry
// log is append-only; a status change appends a new entry for the same
// code and readers keep the latest entry per code.
type LabelEntry struct {
	Code          string     `json:"code"`
	SubjectID     string     `json:"subject_id"`
	Stage         string     `json:"stage"`
	Session       int        `json:"session,omitempty"` // 0 when the stage has no sessions
	Status        string     `json:"status"`
	IssuedAt      time.Time  `json:"issued_at"`
	UsedAt        *time.Time `json:"used_at,omitempty"`
	ReceiptDigest string     `json:"receipt_digest,omitempty"`
}

package types

import "time"

// BundleFile pins one archive member by name and exact digest.
type BundleFile struct {
	Arcname string `json:"arcname"`
	Digest  string `json:"sha256"`
}

// BundleManifest is stored inside the sealed archive as MANIFEST.json.
type BundleManifest struct {
	StudyID   string       `json:"study_id"`
	CreatedAt time.Time    `json:"created"`
	Files     []BundleFile `json:"files"`
}

// Verification statuses.
const (
	VerifyOK     = "OK"
	VerifyFailed = "FAILED"
)

// Finding is one verification problem: a digest mismatch, a missing
// archive member, or an unreadable entry. Findings are accumulated, not
// short-circuited, so a report always enumerates every failure.
type Finding struct {
	Arcname string `json:"arcname"`
	Kind    string `json:"kind"` // "mismatch", "missing", "unreadable"
	Want    string `json:"want,omitempty"`
	Got     string `json:"got,omitempty"`
}

// VerifyReport is the outcome of verifying a sealed bundle. Status is
// VerifyFailed if Findings is non-empty.
type VerifyReport struct {
	Bundle   string    `json:"bundle"`
	Status   string    `json:"status"`
	Checked  int       `json:"checked"`
	Findings []Finding `json:"findings,omitempty"`
	RanAt    time.Time `json:"ran_at"`
}

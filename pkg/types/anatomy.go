package types

import "time"

// CrossrefEntry links one original anatomy image to its blinded copy.
// The full crossref is a bijection: every original maps to exactly one
// blinded file and no blinded path appears twice. Only the blinder root
// holds the unblinded side; the experimenter receives a manifest with
// the blinded columns alone.
type CrossrefEntry struct {
	SubjectFolder    string `json:"subject_folder"`
	BlindedCode      string `json:"blinded_code"`
	RangeStart       int    `json:"range_start"`
	RangeEnd         int    `json:"range_end"`
	OriginalPath     string `json:"original_path"`
	OriginalDigest   string `json:"original_sha256"`
	BlindedPath      string `json:"blinded_relpath"`
	BlindedDigest    string `json:"blinded_sha256"`
	PerceptualDigest string `json:"blinded_dhash"`
}

// BlindedManifestEntry is the experimenter-side view of one blinded
// file: no original path, no subject identity.
type BlindedManifestEntry struct {
	BlindedPath      string `json:"blinded_relpath"`
	BlindedDigest    string `json:"blinded_sha256"`
	PerceptualDigest string `json:"blinded_dhash"`
}

// BlindedManifest is written to the experimenter root after blinding.
type BlindedManifest struct {
	CreatedAt time.Time              `json:"created"`
	Files     []BlindedManifestEntry `json:"files"`
}

// Crossref is the blinder-side aggregate over all blinded folders.
type Crossref struct {
	CreatedAt time.Time       `json:"created"`
	Entries   []CrossrefEntry `json:"files"`
}

package types

// Stage names used across the registry, receipts, and assignment logs.
// A study may define further stages; these are the conventional three.
const (
	StageViral      = "VIRAL"
	StageBehavior   = "BEHAVIOR"
	StagePhysiology = "PHYSIOLOGY"
	StageAnatomy    = "ANATOMY"
)

// Dependency forces a fixed outcome at one stage based on the subject's
// category at a prior stage. Subjects whose prior-stage category equals
// When are excluded from the randomized pool and assigned Then directly;
// the ratio applies only to the remainder.
type Dependency struct {
	Stage string `json:"stage"` // prior stage whose outcome is consulted
	When  string `json:"when"`  // triggering prior-stage category
	Then  string `json:"then"`  // forced category at this stage
}

// SeedDescriptor records everything needed to reproduce an assignment
// draw: the identifiers hashed into the seed and the algorithm revision.
// It is stored verbatim on every AssignmentRecord so an auditor can
// recompute the draw without the tool.
type SeedDescriptor struct {
	StudyID   string         `json:"study_id"`
	Stage     string         `json:"stage"`
	DateSeed  string         `json:"date_seed"`
	Subjects  []string       `json:"subjects"`  // eligible set, sorted
	Weights   map[string]int `json:"weights"`   // category -> ratio weight
	Algorithm string         `json:"algorithm"` // e.g. "perm-ratio/1"
}

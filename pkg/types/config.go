package types

// Config identifies the study and the two physical roots. Exactly one
// party writes each root: the blinder root holds keys, plans, and the
// label registry; the experimenter root holds blinded artifacts and
// receipts. A command that touches only one side may leave the other
// root empty.
type Config struct {
	StudyID          string `json:"study_id" yaml:"study_id"`
	BlinderRoot      string `json:"blinder_root" yaml:"blinder_root"`
	ExperimenterRoot string `json:"experimenter_root" yaml:"experimenter_root"`
}

// Role markers written into study_meta.json at each root.
const (
	RoleBlinder      = "BLINDER"
	RoleExperimenter = "EXPERIMENTER"
)

// Validate checks that the Config names a study and at least one root.
func (c Config) Validate() error {
	if c.StudyID == "" {
		return ErrConfig
	}
	if c.BlinderRoot == "" && c.ExperimenterRoot == "" {
		return ErrConfig
	}
	return nil
}

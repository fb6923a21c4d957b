// Package study owns study metadata and the subject roster. Subjects
// live in the blinder root: the experimenter side only ever sees opaque
// codes.
package study

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mesh-intelligence/blindkit/internal/audit"
	"github.com/mesh-intelligence/blindkit/internal/paths"
	"github.com/mesh-intelligence/blindkit/internal/store"
	"github.com/mesh-intelligence/blindkit/pkg/types"
)

// metaFile marks a directory as an initialized root.
const metaFile = "study_meta.json"

// Meta identifies a root: which study it belongs to and which party
// writes it.
type Meta struct {
	StudyID   string    `json:"study_id"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created"`
}

// InitBlinder lays out a blinder root for the study. Re-initializing an
// existing root of the same study and role is a no-op; a root already
// claimed by another study or role is rejected.
func InitBlinder(root, studyID string) error {
	return initRoot(root, studyID, types.RoleBlinder, paths.BlinderSubdirs)
}

// InitExperimenter lays out an experimenter root for the study.
func InitExperimenter(root, studyID string) error {
	return initRoot(root, studyID, types.RoleExperimenter, paths.ExperimenterSubdirs)
}

func initRoot(root, studyID, role string, subdirs []string) error {
	if studyID == "" {
		return fmt.Errorf("study id must not be empty: %w", types.ErrValidation)
	}

	if existing, err := ReadMeta(root); err == nil {
		if existing.StudyID != studyID || existing.Role != role {
			return fmt.Errorf("root %s already belongs to study %q as %s: %w",
				root, existing.StudyID, existing.Role, types.ErrValidation)
		}
		return nil
	}

	if err := paths.EnsureLayout(root, subdirs); err != nil {
		return fmt.Errorf("creating %s layout: %w", role, err)
	}

	meta := Meta{StudyID: studyID, Role: role, CreatedAt: time.Now().UTC().Truncate(time.Second)}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(root, metaFile), data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", metaFile, err)
	}

	trail, err := audit.Open(root, role)
	if err != nil {
		return err
	}
	return trail.Append("init-root", map[string]any{"study_id": studyID, "role": role})
}

// ReadMeta loads a root's study metadata. A directory without
// study_meta.json is not an initialized root.
func ReadMeta(root string) (Meta, error) {
	data, err := os.ReadFile(filepath.Join(root, metaFile))
	if err != nil {
		if os.IsNotExist(err) {
			return Meta{}, fmt.Errorf("%s is not an initialized root: %w", root, types.ErrNotFound)
		}
		return Meta{}, err
	}
	var meta Meta
	if err := json.Unmarshal(data, &meta); err != nil {
		return Meta{}, fmt.Errorf("parsing %s: %w", metaFile, err)
	}
	return meta, nil
}

// Register appends a subject to the blinder roster. Duplicate subject
// ids are rejected with ErrDuplicate; identity is immutable once
// registered.
func Register(blinderRoot string, subject types.Subject) error {
	if subject.SubjectID == "" {
		return fmt.Errorf("subject id must not be empty: %w", types.ErrValidation)
	}
	if subject.RegisteredAt.IsZero() {
		subject.RegisteredAt = time.Now().UTC().Truncate(time.Second)
	}

	log, err := store.Open(filepath.Join(blinderRoot, types.SubjectsLog))
	if err != nil {
		return err
	}

	conflict := func(existing json.RawMessage) (bool, error) {
		var prev types.Subject
		if err := json.Unmarshal(existing, &prev); err != nil {
			return false, fmt.Errorf("decoding subject record: %w", err)
		}
		return prev.SubjectID == subject.SubjectID, nil
	}
	if err := log.Append(subject, conflict); err != nil {
		return fmt.Errorf("registering subject %s: %w", subject.SubjectID, err)
	}

	trail, err := audit.Open(blinderRoot, types.RoleBlinder)
	if err != nil {
		return err
	}
	return trail.Append("register-subject", map[string]any{
		"subject_id": subject.SubjectID,
		"sex":        subject.Sex,
		"mass_grams": subject.MassGrams,
	})
}

// Subjects returns the roster in registration order.
func Subjects(blinderRoot string) ([]types.Subject, error) {
	log, err := store.Open(filepath.Join(blinderRoot, types.SubjectsLog))
	if err != nil {
		return nil, err
	}
	var subjects []types.Subject
	err = log.Scan(func(raw json.RawMessage) error {
		var s types.Subject
		if err := json.Unmarshal(raw, &s); err != nil {
			return fmt.Errorf("decoding subject record: %w", err)
		}
		subjects = append(subjects, s)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return subjects, nil
}

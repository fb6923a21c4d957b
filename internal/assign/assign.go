// Package assign implements deterministic, ratio-biased allocation of
// subjects to stage categories. A run is a pure function of (study,
// stage, date seed, eligible subject set): the same inputs reproduce the
// same draw bit for bit, on any machine, so the blinder can re-derive
// any historical plan. Re-running a stage is idempotent; subjects that
// already hold a record for the stage are skipped, never reassigned.
package assign

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/mesh-intelligence/blindkit/internal/audit"
	"github.com/mesh-intelligence/blindkit/internal/store"
	"github.com/mesh-intelligence/blindkit/pkg/types"
)

// algorithmID names the current draw procedure. Bump it if the
// permutation or remainder policy ever changes, so old seed descriptors
// stay honest.
const algorithmID = "perm-ratio/1"

// Request describes one assignment run.
type Request struct {
	Stage      string
	DateSeed   string
	Weights    map[string]int // category -> ratio weight, all positive
	Dependency *types.Dependency
}

// Result reports what a run did.
type Result struct {
	New     []types.AssignmentRecord // records appended by this run
	Skipped []string                 // subjects already assigned for the stage
}

// Run assigns every registered subject that lacks a record for the
// requested stage. Subjects captured by the dependency rule receive the
// forced category; the rest are drawn from the seeded permutation to
// fill the target ratio.
func Run(blinderRoot, studyID string, req Request) (*Result, error) {
	if err := validateWeights(req.Weights); err != nil {
		return nil, err
	}
	if req.DateSeed == "" {
		req.DateSeed = time.Now().UTC().Format("2006-01-02")
	}

	roster, err := subjectIDs(blinderRoot)
	if err != nil {
		return nil, err
	}
	if len(roster) == 0 {
		return nil, fmt.Errorf("no subjects registered: %w", types.ErrValidation)
	}

	existing, err := Assignments(blinderRoot)
	if err != nil {
		return nil, err
	}
	assigned := make(map[string]string) // subject -> category, for req.Stage
	prior := make(map[string]string)    // subject -> category, for the dependency stage
	for _, rec := range existing {
		if rec.Stage == req.Stage {
			assigned[rec.SubjectID] = rec.Category
		}
		if req.Dependency != nil && rec.Stage == req.Dependency.Stage {
			prior[rec.SubjectID] = rec.Category
		}
	}

	result := &Result{}
	var eligible []string
	for _, id := range roster {
		if _, ok := assigned[id]; ok {
			result.Skipped = append(result.Skipped, id)
			continue
		}
		eligible = append(eligible, id)
	}
	if len(eligible) == 0 {
		return result, nil
	}

	// Split off the forced subset before any ratio computation.
	var pool, forced []string
	for _, id := range eligible {
		if req.Dependency == nil {
			pool = append(pool, id)
			continue
		}
		cat, ok := prior[id]
		if !ok {
			return nil, fmt.Errorf("subject %s has no %s assignment: %w",
				id, req.Dependency.Stage, types.ErrDependencyNotReady)
		}
		if cat == req.Dependency.When {
			forced = append(forced, id)
		} else {
			pool = append(pool, id)
		}
	}
	sort.Strings(pool)
	sort.Strings(forced)

	desc := types.SeedDescriptor{
		StudyID:   studyID,
		Stage:     req.Stage,
		DateSeed:  req.DateSeed,
		Subjects:  append([]string(nil), pool...),
		Weights:   req.Weights,
		Algorithm: algorithmID,
	}

	now := time.Now().UTC().Truncate(time.Second)
	for _, id := range forced {
		result.New = append(result.New, types.AssignmentRecord{
			SubjectID:  id,
			Stage:      req.Stage,
			Category:   req.Dependency.Then,
			Forced:     true,
			Seed:       desc,
			AssignedAt: now,
		})
	}

	if len(pool) > 0 {
		perm := permute(pool, desc)
		quotas := quotasFor(len(perm), req.Weights)
		i := 0
		for _, q := range quotas {
			for n := 0; n < q.count; n++ {
				result.New = append(result.New, types.AssignmentRecord{
					SubjectID:  perm[i],
					Stage:      req.Stage,
					Category:   q.category,
					Seed:       desc,
					AssignedAt: now,
				})
				i++
			}
		}
	}

	if err := appendRecords(blinderRoot, result.New); err != nil {
		return nil, err
	}

	trail, err := audit.Open(blinderRoot, types.RoleBlinder)
	if err != nil {
		return nil, err
	}
	if err := trail.Append("assign-stage", map[string]any{
		"stage":     req.Stage,
		"date_seed": req.DateSeed,
		"assigned":  len(result.New),
		"skipped":   len(result.Skipped),
		"forced":    len(forced),
	}); err != nil {
		return nil, err
	}
	return result, nil
}

// Assignments returns every assignment record at the blinder root in
// insertion order.
func Assignments(blinderRoot string) ([]types.AssignmentRecord, error) {
	log, err := store.Open(filepath.Join(blinderRoot, types.AssignmentsLog))
	if err != nil {
		return nil, err
	}
	var records []types.AssignmentRecord
	err = log.Scan(func(raw json.RawMessage) error {
		var rec types.AssignmentRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return fmt.Errorf("decoding assignment record: %w", err)
		}
		records = append(records, rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Lookup returns the category assigned to subject at stage.
func Lookup(blinderRoot, subjectID, stage string) (string, error) {
	records, err := Assignments(blinderRoot)
	if err != nil {
		return "", err
	}
	for _, rec := range records {
		if rec.SubjectID == subjectID && rec.Stage == stage {
			return rec.Category, nil
		}
	}
	return "", fmt.Errorf("no %s assignment for subject %s: %w", stage, subjectID, types.ErrNotFound)
}

// DeriveSeed hashes the seed descriptor's identifiers into the int64
// that drives the permutation.
func DeriveSeed(desc types.SeedDescriptor) int64 {
	cats := make([]string, 0, len(desc.Weights))
	for c := range desc.Weights {
		cats = append(cats, c)
	}
	sort.Strings(cats)

	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%s|%s",
		desc.StudyID, desc.Stage, desc.DateSeed,
		strings.Join(desc.Subjects, ","), strings.Join(cats, ","))
	sum := h.Sum(nil)
	return int64(binary.BigEndian.Uint64(sum[:8]))
}

// permute returns the seeded shuffle of the sorted pool.
func permute(pool []string, desc types.SeedDescriptor) []string {
	perm := append([]string(nil), pool...)
	rng := rand.New(rand.NewSource(DeriveSeed(desc)))
	rng.Shuffle(len(perm), func(i, j int) { perm[i], perm[j] = perm[j], perm[i] })
	return perm
}

// quota pairs a category with the number of permutation slots it fills.
type quota struct {
	category string
	count    int
}

// quotasFor splits n slots across categories proportionally to their
// weights. Base counts are the integer floor; remainder seats go one per
// category in descending-weight order, so the majority category absorbs
// the first remainder seat and the front of the permutation.
func quotasFor(n int, weights map[string]int) []quota {
	cats := make([]string, 0, len(weights))
	for c := range weights {
		cats = append(cats, c)
	}
	sort.Slice(cats, func(i, j int) bool {
		if weights[cats[i]] != weights[cats[j]] {
			return weights[cats[i]] > weights[cats[j]]
		}
		return cats[i] < cats[j]
	})

	total := 0
	for _, w := range weights {
		total += w
	}

	quotas := make([]quota, len(cats))
	used := 0
	for i, c := range cats {
		count := n * weights[c] / total
		quotas[i] = quota{category: c, count: count}
		used += count
	}
	for i := 0; used < n; i++ {
		quotas[i%len(quotas)].count++
		used++
	}
	return quotas
}

// appendRecords writes the new assignment records, each guarded by the
// one-record-per-(subject, stage) invariant.
func appendRecords(blinderRoot string, records []types.AssignmentRecord) error {
	if len(records) == 0 {
		return nil
	}
	log, err := store.Open(filepath.Join(blinderRoot, types.AssignmentsLog))
	if err != nil {
		return err
	}
	for _, rec := range records {
		rec := rec
		conflict := func(existing json.RawMessage) (bool, error) {
			var prev types.AssignmentRecord
			if err := json.Unmarshal(existing, &prev); err != nil {
				return false, fmt.Errorf("decoding assignment record: %w", err)
			}
			return prev.SubjectID == rec.SubjectID && prev.Stage == rec.Stage, nil
		}
		if err := log.Append(rec, conflict); err != nil {
			if errors.Is(err, types.ErrDuplicate) {
				return fmt.Errorf("subject %s at %s: %w", rec.SubjectID, rec.Stage, types.ErrAlreadyAssigned)
			}
			return fmt.Errorf("assigning %s at %s: %w", rec.SubjectID, rec.Stage, err)
		}
	}
	return nil
}

// validateWeights rejects empty or non-positive ratio weights.
func validateWeights(weights map[string]int) error {
	if len(weights) < 2 {
		return fmt.Errorf("need at least two categories: %w", types.ErrConfig)
	}
	for cat, w := range weights {
		if cat == "" {
			return fmt.Errorf("empty category name: %w", types.ErrConfig)
		}
		if w <= 0 {
			return fmt.Errorf("category %s has non-positive weight %d: %w", cat, w, types.ErrConfig)
		}
	}
	return nil
}

// subjectIDs returns the registered roster ids in registration order.
func subjectIDs(blinderRoot string) ([]string, error) {
	log, err := store.Open(filepath.Join(blinderRoot, types.SubjectsLog))
	if err != nil {
		return nil, err
	}
	var ids []string
	err = log.Scan(func(raw json.RawMessage) error {
		var s types.Subject
		if err := json.Unmarshal(raw, &s); err != nil {
			return fmt.Errorf("decoding subject record: %w", err)
		}
		ids = append(ids, s.SubjectID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

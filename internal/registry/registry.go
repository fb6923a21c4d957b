// Package registry issues blinded codes and tracks their lifecycle at
// the blinder root. The registry log is append-only: a status change
// appends a superseding entry for the same code, and the latest entry
// per code is the current one. Codes never collide within a study; a
// candidate is checked against every code ever issued, not just live
// ones.
package registry

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"math/big"
	mathrand "math/rand"
	"path/filepath"
	"strings"
	"time"

	"github.com/mesh-intelligence/blindkit/internal/audit"
	"github.com/mesh-intelligence/blindkit/internal/store"
	"github.com/mesh-intelligence/blindkit/pkg/types"
)

// codeAlphabet omits 0/O/1/I so codes survive handwriting on physical
// labels.
const codeAlphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"

// codeLength is the number of alphabet characters after the stage
// prefix. 32^5 candidate codes per stage keeps collision retries at
// expected O(1) for study sizes in the hundreds.
const codeLength = 5

// maxRetries bounds rejection sampling; hitting it means the code space
// is effectively exhausted for the study.
const maxRetries = 100

// stagePrefixes maps well-known stages to their label prefixes.
var stagePrefixes = map[string]string{
	types.StageViral:      "VIR",
	types.StageBehavior:   "BEH",
	types.StagePhysiology: "PHY",
	types.StageAnatomy:    "ANA",
}

// Registry is the blinder-side label registry.
type Registry struct {
	root  string
	log   *store.Log
	trail *audit.Trail

	// rng, when set, replaces crypto/rand for code generation so a
	// dry run against a fixed seed reproduces its codes.
	rng *mathrand.Rand
}

// Open returns the registry at a blinder root.
func Open(blinderRoot string) (*Registry, error) {
	log, err := store.Open(filepath.Join(blinderRoot, types.RegistryLog))
	if err != nil {
		return nil, err
	}
	trail, err := audit.Open(blinderRoot, types.RoleBlinder)
	if err != nil {
		return nil, err
	}
	return &Registry{root: blinderRoot, log: log, trail: trail}, nil
}

// Deterministic switches code generation to the given seed. Codes are
// still collision-checked against the full history.
func (r *Registry) Deterministic(seed int64) {
	r.rng = mathrand.New(mathrand.NewSource(seed))
}

// Issue generates a fresh code for (subject, stage, session) and appends
// an ISSUED registry entry plus an audit event. Session 0 means the
// stage has no session dimension.
func (r *Registry) Issue(subjectID, stage string, session int) (types.LabelEntry, error) {
	if subjectID == "" || stage == "" {
		return types.LabelEntry{}, fmt.Errorf("subject and stage are required: %w", types.ErrValidation)
	}

	history, err := r.Entries()
	if err != nil {
		return types.LabelEntry{}, err
	}
	seen := make(map[string]bool, len(history))
	for _, e := range history {
		seen[e.Code] = true
	}

	code, err := r.freshCode(stage, seen)
	if err != nil {
		return types.LabelEntry{}, err
	}

	entry := types.LabelEntry{
		Code:      code,
		SubjectID: subjectID,
		Stage:     stage,
		Session:   session,
		Status:    types.StatusIssued,
		IssuedAt:  time.Now().UTC().Truncate(time.Second),
	}

	conflict := func(existing json.RawMessage) (bool, error) {
		var prev types.LabelEntry
		if err := json.Unmarshal(existing, &prev); err != nil {
			return false, fmt.Errorf("decoding registry entry: %w", err)
		}
		return prev.Code == code, nil
	}
	if err := r.log.Append(entry, conflict); err != nil {
		return types.LabelEntry{}, fmt.Errorf("issuing code for %s/%s: %w", subjectID, stage, err)
	}

	err = r.trail.Append("issue-label", map[string]any{
		"subject_id": subjectID,
		"stage":      stage,
		"session":    session,
		"code":       code,
	})
	if err != nil {
		return types.LabelEntry{}, err
	}
	return entry, nil
}

// MarkUsed transitions a code from ISSUED to USED, attaching the receipt
// digest. Marking a USED code again with the same digest succeeds
// without a new record; a different digest is ErrAlreadyUsed. Unknown
// codes are ErrNotFound, voided codes ErrVoided.
func (r *Registry) MarkUsed(code, receiptDigest string) (types.LabelEntry, error) {
	current, err := r.Current()
	if err != nil {
		return types.LabelEntry{}, err
	}
	entry, ok := current[code]
	if !ok {
		return types.LabelEntry{}, fmt.Errorf("code %s: %w", code, types.ErrNotFound)
	}

	switch entry.Status {
	case types.StatusVoid:
		return types.LabelEntry{}, fmt.Errorf("code %s: %w", code, types.ErrVoided)
	case types.StatusUsed:
		if entry.ReceiptDigest == receiptDigest {
			return entry, nil
		}
		return types.LabelEntry{}, fmt.Errorf("code %s already used with receipt %s: %w",
			code, entry.ReceiptDigest, types.ErrAlreadyUsed)
	}

	now := time.Now().UTC().Truncate(time.Second)
	entry.Status = types.StatusUsed
	entry.UsedAt = &now
	entry.ReceiptDigest = receiptDigest

	if err := r.log.Append(entry, nil); err != nil {
		return types.LabelEntry{}, fmt.Errorf("marking %s used: %w", code, err)
	}

	err = r.trail.Append("mark-used", map[string]any{
		"subject_id":     entry.SubjectID,
		"stage":          entry.Stage,
		"code":           code,
		"receipt_digest": receiptDigest,
	})
	if err != nil {
		return types.LabelEntry{}, err
	}
	return entry, nil
}

// Void retires a code whose physical label was lost or destroyed. The
// code stays in history and keeps blocking reuse.
func (r *Registry) Void(code string) error {
	current, err := r.Current()
	if err != nil {
		return err
	}
	entry, ok := current[code]
	if !ok {
		return fmt.Errorf("code %s: %w", code, types.ErrNotFound)
	}
	if entry.Status == types.StatusVoid {
		return nil
	}

	entry.Status = types.StatusVoid
	if err := r.log.Append(entry, nil); err != nil {
		return fmt.Errorf("voiding %s: %w", code, err)
	}
	return r.trail.Append("void-label", map[string]any{
		"subject_id": entry.SubjectID,
		"stage":      entry.Stage,
		"code":       code,
	})
}

// Entries returns every registry record in insertion order, including
// superseded ones.
func (r *Registry) Entries() ([]types.LabelEntry, error) {
	var entries []types.LabelEntry
	err := r.log.Scan(func(raw json.RawMessage) error {
		var e types.LabelEntry
		if err := json.Unmarshal(raw, &e); err != nil {
			return fmt.Errorf("decoding registry entry: %w", err)
		}
		entries = append(entries, e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Current returns the latest entry per code.
func (r *Registry) Current() (map[string]types.LabelEntry, error) {
	entries, err := r.Entries()
	if err != nil {
		return nil, err
	}
	current := make(map[string]types.LabelEntry, len(entries))
	for _, e := range entries {
		current[e.Code] = e
	}
	return current, nil
}

// freshCode draws candidates until one misses the historical set.
func (r *Registry) freshCode(stage string, seen map[string]bool) (string, error) {
	prefix, ok := stagePrefixes[stage]
	if !ok {
		prefix = strings.ToUpper(stage)
		if len(prefix) > 3 {
			prefix = prefix[:3]
		}
	}

	for range maxRetries {
		code := prefix + "-" + r.randomToken()
		if !seen[code] {
			return code, nil
		}
	}
	return "", fmt.Errorf("code space exhausted for stage %s after %d attempts: %w",
		stage, maxRetries, types.ErrValidation)
}

// randomToken draws codeLength characters from the label alphabet.
func (r *Registry) randomToken() string {
	b := make([]byte, codeLength)
	for i := range b {
		if r.rng != nil {
			b[i] = codeAlphabet[r.rng.Intn(len(codeAlphabet))]
			continue
		}
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(codeAlphabet))))
		if err != nil {
			// crypto/rand failure means the platform entropy source is
			// gone; fall back to the index of a time-seeded draw.
			b[i] = codeAlphabet[mathrand.Intn(len(codeAlphabet))]
			continue
		}
		b[i] = codeAlphabet[n.Int64()]
	}
	return string(b)
}

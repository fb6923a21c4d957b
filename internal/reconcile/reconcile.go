// Package reconcile matches experimenter receipts against issued
// registry codes and transitions them to USED. Matching is strict: a
// receipt must identify exactly one issued code by (subject, stage,
// session); anything ambiguous is reported for a human, never guessed.
package reconcile

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/mesh-intelligence/blindkit/internal/audit"
	"github.com/mesh-intelligence/blindkit/internal/receipt"
	"github.com/mesh-intelligence/blindkit/internal/registry"
	"github.com/mesh-intelligence/blindkit/internal/store"
	"github.com/mesh-intelligence/blindkit/pkg/types"
)

// Transition records one receipt consuming one code.
type Transition struct {
	ReceiptID string `json:"receipt_id"`
	Code      string `json:"code"`
	SubjectID string `json:"subject_id"`
	Stage     string `json:"stage"`
}

// Ambiguity is a receipt that matched more than one issued code.
type Ambiguity struct {
	Receipt    types.Receipt `json:"receipt"`
	Candidates []string      `json:"candidates"`
}

// Report is the outcome of one reconciliation run. Unmatched receipts
// are kept, not discarded; they may reconcile on a later run once the
// registry entry appears.
type Report struct {
	Transitions    []Transition    `json:"transitions"`
	AlreadyApplied int             `json:"already_applied"`
	Unmatched      []types.Receipt `json:"unmatched,omitempty"`
	Ambiguous      []Ambiguity     `json:"ambiguous,omitempty"`
}

// Err returns ErrAmbiguousMatch when any receipt matched more than one
// candidate, so callers can fail the run after the full report prints.
func (r *Report) Err() error {
	if len(r.Ambiguous) > 0 {
		return fmt.Errorf("%d receipts ambiguous: %w", len(r.Ambiguous), types.ErrAmbiguousMatch)
	}
	return nil
}

// Run reconciles every receipt at the experimenter root against the
// blinder registry. Ambiguous and unmatched receipts are reported while
// the run continues for the rest.
func Run(blinderRoot, experimenterRoot string) (*Report, error) {
	receipts, err := receipt.All(experimenterRoot)
	if err != nil {
		return nil, err
	}

	reg, err := registry.Open(blinderRoot)
	if err != nil {
		return nil, err
	}
	current, err := reg.Current()
	if err != nil {
		return nil, err
	}
	usedBy := make(map[string]bool, len(current)) // receipt digest -> consumed
	for _, e := range current {
		if e.Status == types.StatusUsed && e.ReceiptDigest != "" {
			usedBy[e.ReceiptDigest] = true
		}
	}

	ix, err := store.OpenIndex()
	if err != nil {
		return nil, err
	}
	defer ix.Close()
	regLog, err := store.Open(filepath.Join(blinderRoot, types.RegistryLog))
	if err != nil {
		return nil, err
	}
	if err := ix.LoadLog(regLog, "registry"); err != nil {
		return nil, err
	}

	report := &Report{}
	// The index is a snapshot taken before the loop; codes this run marks
	// USED must not be offered to later receipts again.
	consumed := make(map[string]bool)
	for _, rec := range receipts {
		recDigest, err := receipt.Digest(rec)
		if err != nil {
			return nil, err
		}
		if usedBy[recDigest] {
			report.AlreadyApplied++
			continue
		}

		candidates, err := issuedCandidates(ix, rec)
		if err != nil {
			return nil, err
		}
		var live []string
		for _, c := range candidates {
			if !consumed[c] {
				live = append(live, c)
			}
		}
		switch len(live) {
		case 0:
			report.Unmatched = append(report.Unmatched, rec)
		case 1:
			entry, err := reg.MarkUsed(live[0], recDigest)
			if errors.Is(err, types.ErrAlreadyUsed) {
				// Another receipt consumed this code under a different
				// digest; keep this receipt for a later run.
				report.Unmatched = append(report.Unmatched, rec)
				continue
			}
			if err != nil {
				return nil, err
			}
			consumed[entry.Code] = true
			report.Transitions = append(report.Transitions, Transition{
				ReceiptID: rec.ReceiptID,
				Code:      entry.Code,
				SubjectID: entry.SubjectID,
				Stage:     entry.Stage,
			})
		default:
			report.Ambiguous = append(report.Ambiguous, Ambiguity{
				Receipt:    rec,
				Candidates: live,
			})
		}
	}

	trail, err := audit.Open(blinderRoot, types.RoleBlinder)
	if err != nil {
		return nil, err
	}
	err = trail.Append("reconcile-usage", map[string]any{
		"receipts":        len(receipts),
		"updated":         len(report.Transitions),
		"already_applied": report.AlreadyApplied,
		"unmatched":       len(report.Unmatched),
		"ambiguous":       len(report.Ambiguous),
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

// issuedCandidates returns the codes whose latest registry entry is
// ISSUED for the receipt's (subject, stage, session).
func issuedCandidates(ix *store.Index, rec types.Receipt) ([]string, error) {
	const query = `
SELECT code FROM registry r
WHERE rowid_seq = (SELECT MAX(rowid_seq) FROM registry WHERE code = r.code)
  AND status = ?
  AND subject_id = ?
  AND stage = ?
  AND COALESCE(session, 0) = ?
ORDER BY rowid_seq`

	rows, err := ix.DB().Query(query, types.StatusIssued, rec.SubjectID, rec.Stage, rec.Session)
	if err != nil {
		return nil, fmt.Errorf("querying issued codes: %w", err)
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}

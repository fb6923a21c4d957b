package anatomy

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/mesh-intelligence/blindkit/internal/audit"
	"github.com/mesh-intelligence/blindkit/internal/digest"
	"github.com/mesh-intelligence/blindkit/pkg/types"
)

// VerifyBlinded rechecks every blinded file at the experimenter root
// against the received manifest. Findings accumulate; a single mismatch
// flips the status to FAILED but never stops the sweep.
func VerifyBlinded(experimenterRoot string) (*types.VerifyReport, error) {
	manifestPath := filepath.Join(experimenterRoot, "configs", "anatomy_blinded_manifest.json")
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("no blinded manifest at %s: %w", experimenterRoot, types.ErrNotFound)
		}
		return nil, err
	}
	var manifest types.BlindedManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("parsing blinded manifest: %w", err)
	}

	report := &types.VerifyReport{
		Bundle: manifestPath,
		Status: types.VerifyOK,
		RanAt:  time.Now().UTC().Truncate(time.Second),
	}
	for _, entry := range manifest.Files {
		path := filepath.Join(experimenterRoot, filepath.FromSlash(entry.BlindedPath))
		got, err := digest.SumFile(path)
		if err != nil {
			kind := "unreadable"
			if errors.Is(err, fs.ErrNotExist) {
				kind = "missing"
			}
			report.Findings = append(report.Findings, types.Finding{
				Arcname: entry.BlindedPath,
				Kind:    kind,
				Want:    entry.BlindedDigest,
			})
			continue
		}
		report.Checked++
		if got != entry.BlindedDigest {
			report.Findings = append(report.Findings, types.Finding{
				Arcname: entry.BlindedPath,
				Kind:    "mismatch",
				Want:    entry.BlindedDigest,
				Got:     got,
			})
		}
	}
	if len(report.Findings) > 0 {
		report.Status = types.VerifyFailed
	}

	trail, err := audit.Open(experimenterRoot, types.RoleExperimenter)
	if err != nil {
		return nil, err
	}
	if err := trail.Append("verify-anatomy-blinded", map[string]any{
		"checked":  report.Checked,
		"findings": len(report.Findings),
		"status":   report.Status,
	}); err != nil {
		return nil, err
	}
	return report, nil
}

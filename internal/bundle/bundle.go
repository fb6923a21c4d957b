// Package bundle seals a study's registry, crossref, receipts, and
// audit trails into a digest-pinned archive, and verifies a sealed
// archive without trusting anything but the digests.
package bundle

import (
	"archive/zip"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mesh-intelligence/blindkit/internal/audit"
	"github.com/mesh-intelligence/blindkit/internal/digest"
	"github.com/mesh-intelligence/blindkit/internal/receipt"
	"github.com/mesh-intelligence/blindkit/internal/registry"
	"github.com/mesh-intelligence/blindkit/internal/study"
	"github.com/mesh-intelligence/blindkit/pkg/types"
)

// manifestName is the archive member listing every other member's
// digest. It is intentionally excluded from itself.
const manifestName = "MANIFEST.json"

// blinderMembers and experimenterMembers map root-relative source files
// to archive names. Absent files are skipped; a study that never ran
// anatomy blinding still bundles cleanly.
var blinderMembers = map[string]string{
	types.SubjectsLog:              "blinder/configs/subjects.jsonl",
	types.AssignmentsLog:           "blinder/configs/assignments.jsonl",
	types.RegistryLog:              "blinder/labels/registry.jsonl",
	"configs/anatomy_blind_map.json": "blinder/configs/anatomy_blind_map.json",
	"configs/anatomy_crossref.json":  "blinder/configs/anatomy_crossref.json",
	"configs/anatomy_crossref.csv":   "blinder/configs/anatomy_crossref.csv",
	types.AuditLog:                 "blinder/audit/actions.jsonl",
	types.AuditMirror:              "blinder/audit/actions.log",
}

var experimenterMembers = map[string]string{
	"configs/anatomy_blinded_manifest.json": "experimenter/configs/anatomy_blinded_manifest.json",
	"configs/anatomy_blinded_manifest.csv":  "experimenter/configs/anatomy_blinded_manifest.csv",
	types.ReceiptsLog:                       "experimenter/receipts/receipts.jsonl",
	types.ProvenanceLog:                     "experimenter/provenance/links.jsonl",
	types.AuditLog:                          "experimenter/audit/actions.jsonl",
	types.AuditMirror:                       "experimenter/audit/actions.log",
}

// Package snapshots both roots into a sealed zip at outPath, records a
// MANIFEST.json of member digests inside it, and writes the detached
// digest pin alongside. The bundle includes a reconciliation report so
// the unblinding party sees unmatched receipts without rerunning
// anything.
func Package(blinderRoot, experimenterRoot, outPath string) (string, error) {
	meta, err := study.ReadMeta(blinderRoot)
	if err != nil {
		return "", err
	}
	if !strings.HasSuffix(strings.ToLower(outPath), ".zip") {
		outPath += ".zip"
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return "", err
	}

	manifest := types.BundleManifest{
		StudyID:   meta.StudyID,
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}

	f, err := os.Create(outPath)
	if err != nil {
		return "", fmt.Errorf("creating bundle: %w", err)
	}
	zw := zip.NewWriter(f)

	abort := func(err error) (string, error) {
		zw.Close()
		f.Close()
		os.Remove(outPath)
		return "", err
	}

	addFile := func(root, rel, arcname string) error {
		path := filepath.Join(root, filepath.FromSlash(rel))
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return fmt.Errorf("reading %s: %w", path, err)
		}
		w, err := zw.Create(arcname)
		if err != nil {
			return fmt.Errorf("adding %s: %w", arcname, err)
		}
		if _, err := w.Write(data); err != nil {
			return err
		}
		manifest.Files = append(manifest.Files, types.BundleFile{
			Arcname: arcname,
			Digest:  digest.SumBytes(data),
		})
		return nil
	}

	for _, m := range sortedMembers(blinderMembers) {
		if err := addFile(blinderRoot, m.rel, m.arc); err != nil {
			return abort(err)
		}
	}
	for _, m := range sortedMembers(experimenterMembers) {
		if err := addFile(experimenterRoot, m.rel, m.arc); err != nil {
			return abort(err)
		}
	}

	reportCSV, err := reconciliationCSV(blinderRoot, experimenterRoot)
	if err != nil {
		return abort(err)
	}
	w, err := zw.Create("reports/reconciliation.csv")
	if err != nil {
		return abort(err)
	}
	if _, err := w.Write(reportCSV); err != nil {
		return abort(err)
	}
	manifest.Files = append(manifest.Files, types.BundleFile{
		Arcname: "reports/reconciliation.csv",
		Digest:  digest.SumBytes(reportCSV),
	})

	manifestData, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return abort(err)
	}
	mw, err := zw.Create(manifestName)
	if err != nil {
		return abort(err)
	}
	if _, err := mw.Write(manifestData); err != nil {
		return abort(err)
	}

	if err := zw.Close(); err != nil {
		f.Close()
		os.Remove(outPath)
		return "", fmt.Errorf("closing bundle: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}

	if err := digest.WritePin(outPath); err != nil {
		return "", err
	}

	trail, err := audit.Open(blinderRoot, types.RoleBlinder)
	if err != nil {
		return "", err
	}
	err = trail.Append("package-unblinding", map[string]any{
		"bundle": outPath,
		"files":  len(manifest.Files),
	})
	if err != nil {
		return "", err
	}
	return outPath, nil
}

// reconciliationCSV summarizes receipt-to-registry matching at package
// time without mutating either root.
func reconciliationCSV(blinderRoot, experimenterRoot string) ([]byte, error) {
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

	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	rows := [][]string{{"receipt_id", "subject_id", "stage", "session", "photo_digest", "matched_code", "status"}}
	for _, rec := range receipts {
		matched := ""
		status := "NO_MATCH"
		recDigest, err := receipt.Digest(rec)
		if err != nil {
			return nil, err
		}
		for code, entry := range current {
			if entry.SubjectID != rec.SubjectID || entry.Stage != rec.Stage || entry.Session != rec.Session {
				continue
			}
			switch {
			case entry.Status == types.StatusUsed && entry.ReceiptDigest == recDigest:
				matched, status = code, "MATCHED"
			case entry.Status == types.StatusIssued && status == "NO_MATCH":
				matched, status = code, "PENDING"
			}
		}
		rows = append(rows, []string{
			rec.ReceiptID, rec.SubjectID, rec.Stage,
			strconv.Itoa(rec.Session), rec.PhotoDigest, matched, status,
		})
	}
	if err := cw.WriteAll(rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type member struct {
	rel string
	arc string
}

// sortedMembers returns rel/arcname pairs in arcname order so repeated
// packaging of identical roots is byte-stable.
func sortedMembers(members map[string]string) []member {
	out := make([]member, 0, len(members))
	for rel, arc := range members {
		out = append(out, member{rel, arc})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].arc < out[j].arc })
	return out
}

package anatomy

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/mesh-intelligence/blindkit/internal/audit"
	"github.com/mesh-intelligence/blindkit/internal/digest"
	"github.com/mesh-intelligence/blindkit/internal/registry"
	"github.com/mesh-intelligence/blindkit/pkg/types"
)

// lenientRangeBase sequences files without a parseable ordering token
// after every parsed range.
const lenientRangeBase = 9999

// Options control one blinding run.
type Options struct {
	// Lenient sequences files lacking an INDEX M-N token after the
	// parsed set instead of failing the run.
	Lenient bool
	// Seal zips the blinded tree plus manifests into the blinder
	// archives directory with a detached digest pin.
	Seal bool
}

// Result summarizes a blinding run.
type Result struct {
	Mapping     map[string]string // source folder -> blinded code
	Crossref    types.Crossref
	Manifest    types.BlindedManifest
	Files       int
	ArchivePath string // set when Options.Seal
}

// sourceFile is one image queued for blinding, ordered by its parsed
// range independent of directory listing order.
type sourceFile struct {
	path       string
	start, end int
}

// Blind walks one subfolder per subject under inputRoot, issues a fresh
// registry code per folder, and writes metadata-stripped copies plus
// manifests and the bidirectional crossref. The crossref is checked to
// be a bijection before anything is published to the experimenter side.
func Blind(blinderRoot, experimenterRoot, inputRoot string, reg *registry.Registry, cmp digest.Comparator, opts Options) (*Result, error) {
	folders, err := sourceFolders(inputRoot)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Mapping: make(map[string]string, len(folders)),
		Crossref: types.Crossref{
			CreatedAt: time.Now().UTC().Truncate(time.Second),
		},
	}
	result.Manifest.CreatedAt = result.Crossref.CreatedAt

	outRoot := filepath.Join(experimenterRoot, "anatomy_blinded")
	for _, folder := range folders {
		files, err := collectFiles(filepath.Join(inputRoot, folder), folder, opts.Lenient)
		if err != nil {
			return nil, err
		}
		if len(files) == 0 {
			continue
		}

		entry, err := reg.Issue(folder, types.StageAnatomy, 0)
		if err != nil {
			return nil, err
		}
		code := entry.Code
		result.Mapping[folder] = code

		outDir := filepath.Join(outRoot, code)
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating %s: %w", outDir, err)
		}

		var folderManifest []types.BlindedManifestEntry
		for _, src := range files {
			ce, err := blindOne(experimenterRoot, outDir, folder, code, src, cmp)
			if err != nil {
				return nil, err
			}
			result.Crossref.Entries = append(result.Crossref.Entries, ce)
			folderManifest = append(folderManifest, types.BlindedManifestEntry{
				BlindedPath:      ce.BlindedPath,
				BlindedDigest:    ce.BlindedDigest,
				PerceptualDigest: ce.PerceptualDigest,
			})
			result.Files++
		}

		if err := writeJSONAtomic(filepath.Join(outDir, "manifest.json"), types.BlindedManifest{
			CreatedAt: result.Manifest.CreatedAt,
			Files:     folderManifest,
		}); err != nil {
			return nil, err
		}
		result.Manifest.Files = append(result.Manifest.Files, folderManifest...)
	}

	if err := checkBijection(result.Crossref.Entries); err != nil {
		return nil, err
	}

	if err := writeOutputs(blinderRoot, experimenterRoot, result); err != nil {
		return nil, err
	}

	if opts.Seal {
		archive, err := Seal(blinderRoot, experimenterRoot)
		if err != nil {
			return nil, err
		}
		result.ArchivePath = archive
	}

	if err := auditRun(blinderRoot, experimenterRoot, inputRoot, result, opts); err != nil {
		return nil, err
	}
	return result, nil
}

// blindOne digests src, writes the stripped copy, digests the copy, and
// sanity-checks that re-encoding kept the image a near-duplicate.
func blindOne(experimenterRoot, outDir, folder, code string, src sourceFile, cmp digest.Comparator) (types.CrossrefEntry, error) {
	origDigest, err := digest.SumFile(src.path)
	if err != nil {
		return types.CrossrefEntry{}, err
	}
	origPerceptual, err := digest.PerceptualFile(src.path)
	if err != nil {
		return types.CrossrefEntry{}, err
	}

	dst := filepath.Join(outDir, fmt.Sprintf("IDX_%03d-%03d%s",
		src.start, src.end, filepath.Ext(src.path)))
	if err := stripCopy(src.path, dst); err != nil {
		return types.CrossrefEntry{}, err
	}

	blindDigest, err := digest.SumFile(dst)
	if err != nil {
		return types.CrossrefEntry{}, err
	}
	blindPerceptual, err := digest.PerceptualFile(dst)
	if err != nil {
		return types.CrossrefEntry{}, err
	}

	if near, err := cmp.NearDuplicate(origPerceptual, blindPerceptual); err != nil {
		return types.CrossrefEntry{}, err
	} else if !near {
		return types.CrossrefEntry{}, fmt.Errorf(
			"blinded copy of %s drifted beyond near-duplicate threshold: %w",
			src.path, types.ErrIntegrity)
	}

	rel, err := filepath.Rel(experimenterRoot, dst)
	if err != nil {
		rel = dst
	}
	return types.CrossrefEntry{
		SubjectFolder:    folder,
		BlindedCode:      code,
		RangeStart:       src.start,
		RangeEnd:         src.end,
		OriginalPath:     src.path,
		OriginalDigest:   origDigest,
		BlindedPath:      filepath.ToSlash(rel),
		BlindedDigest:    blindDigest,
		PerceptualDigest: blindPerceptual,
	}, nil
}

// sourceFolders lists the immediate subdirectories of inputRoot sorted
// by name.
func sourceFolders(inputRoot string) ([]string, error) {
	entries, err := os.ReadDir(inputRoot)
	if err != nil {
		return nil, fmt.Errorf("reading input root: %w", err)
	}
	var folders []string
	for _, e := range entries {
		if e.IsDir() {
			folders = append(folders, e.Name())
		}
	}
	if len(folders) == 0 {
		return nil, fmt.Errorf("input root %s has no subject subfolders: %w", inputRoot, types.ErrValidation)
	}
	sort.Strings(folders)
	return folders, nil
}

// collectFiles gathers the folder's images ordered by parsed range, then
// end bound, then filename, independent of filesystem listing order.
func collectFiles(dir, folder string, lenient bool) ([]sourceFile, error) {
	var parsed []sourceFile
	var unparsed []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !isImage(path) {
			return nil
		}
		start, end, ok := ParseRange(filepath.Base(path))
		if !ok {
			unparsed = append(unparsed, path)
			return nil
		}
		parsed = append(parsed, sourceFile{path: path, start: start, end: end})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", dir, err)
	}

	if len(unparsed) > 0 && !lenient {
		return nil, fmt.Errorf("%s: %d files missing an INDEX M-N token (first: %s): %w",
			folder, len(unparsed), filepath.Base(unparsed[0]), types.ErrValidation)
	}
	sort.Strings(unparsed)
	for i, path := range unparsed {
		parsed = append(parsed, sourceFile{path: path, start: lenientRangeBase, end: i + 1})
	}

	sort.Slice(parsed, func(i, j int) bool {
		a, b := parsed[i], parsed[j]
		if a.start != b.start {
			return a.start < b.start
		}
		if a.end != b.end {
			return a.end < b.end
		}
		return filepath.Base(a.path) < filepath.Base(b.path)
	})
	return parsed, nil
}

// checkBijection rejects a crossref in which any original or blinded
// path appears twice.
func checkBijection(entries []types.CrossrefEntry) error {
	originals := make(map[string]bool, len(entries))
	blinded := make(map[string]bool, len(entries))
	for _, e := range entries {
		if originals[e.OriginalPath] {
			return fmt.Errorf("original %s blinded twice: %w", e.OriginalPath, types.ErrIntegrity)
		}
		if blinded[e.BlindedPath] {
			return fmt.Errorf("blinded path %s produced twice: %w", e.BlindedPath, types.ErrIntegrity)
		}
		originals[e.OriginalPath] = true
		blinded[e.BlindedPath] = true
	}
	return nil
}

// writeOutputs publishes the run: the full crossref and folder mapping
// stay at the blinder root, the blinded-only manifest goes to the
// experimenter root, each in JSON and CSV form.
func writeOutputs(blinderRoot, experimenterRoot string, result *Result) error {
	bCfg := filepath.Join(blinderRoot, "configs")
	eCfg := filepath.Join(experimenterRoot, "configs")

	if err := writeJSONAtomic(filepath.Join(bCfg, "anatomy_blind_map.json"), map[string]any{
		"created": result.Crossref.CreatedAt,
		"mapping": result.Mapping,
	}); err != nil {
		return err
	}
	if err := writeJSONAtomic(filepath.Join(bCfg, "anatomy_crossref.json"), result.Crossref); err != nil {
		return err
	}
	if err := writeCrossrefCSV(filepath.Join(bCfg, "anatomy_crossref.csv"), result.Crossref.Entries); err != nil {
		return err
	}

	if err := writeJSONAtomic(filepath.Join(eCfg, "anatomy_blinded_manifest.json"), result.Manifest); err != nil {
		return err
	}
	return writeManifestCSV(filepath.Join(eCfg, "anatomy_blinded_manifest.csv"), result.Manifest.Files)
}

// writeCrossrefCSV writes the tabular crossref for spreadsheet review.
func writeCrossrefCSV(path string, entries []types.CrossrefEntry) error {
	rows := [][]string{{
		"subject_folder", "blinded_code", "range_start", "range_end",
		"original_path", "original_sha256",
		"blinded_relpath", "blinded_sha256", "blinded_dhash",
	}}
	for _, e := range entries {
		rows = append(rows, []string{
			e.SubjectFolder, e.BlindedCode,
			strconv.Itoa(e.RangeStart), strconv.Itoa(e.RangeEnd),
			e.OriginalPath, e.OriginalDigest,
			e.BlindedPath, e.BlindedDigest, e.PerceptualDigest,
		})
	}
	return writeCSVAtomic(path, rows)
}

func writeManifestCSV(path string, entries []types.BlindedManifestEntry) error {
	rows := [][]string{{"blinded_relpath", "blinded_sha256", "blinded_dhash"}}
	for _, e := range entries {
		rows = append(rows, []string{e.BlindedPath, e.BlindedDigest, e.PerceptualDigest})
	}
	return writeCSVAtomic(path, rows)
}

// auditRun logs the handoff at both roots.
func auditRun(blinderRoot, experimenterRoot, inputRoot string, result *Result, opts Options) error {
	bTrail, err := audit.Open(blinderRoot, types.RoleBlinder)
	if err != nil {
		return err
	}
	if err := bTrail.Append("blind-anatomy", map[string]any{
		"input_root": inputRoot,
		"folders":    len(result.Mapping),
		"files":      result.Files,
		"sealed":     opts.Seal,
	}); err != nil {
		return err
	}

	eTrail, err := audit.Open(experimenterRoot, types.RoleExperimenter)
	if err != nil {
		return err
	}
	return eTrail.Append("receive-anatomy", map[string]any{
		"folders": len(result.Mapping),
		"files":   result.Files,
	})
}

// writeJSONAtomic marshals v and writes it with temp-file then rename.
func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", path, err)
	}
	return writeBytesAtomic(path, append(data, '\n'))
}

func writeCSVAtomic(path string, rows [][]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".csv-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	w := csv.NewWriter(tmp)
	if err := w.WriteAll(rows); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func writeBytesAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".json-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

package anatomy

import (
	"archive/zip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/mesh-intelligence/blindkit/internal/digest"
)

// Seal zips the blinded tree plus the experimenter manifest into the
// blinder archives directory and writes a detached digest file pinning
// the archive. Returns the archive path.
func Seal(blinderRoot, experimenterRoot string) (string, error) {
	stamp := time.Now().UTC().Format("20060102T150405Z")
	archivePath := filepath.Join(blinderRoot, "archives", fmt.Sprintf("anatomy_blinded_%s.zip", stamp))
	if err := os.MkdirAll(filepath.Dir(archivePath), 0o755); err != nil {
		return "", err
	}

	f, err := os.Create(archivePath)
	if err != nil {
		return "", fmt.Errorf("creating archive: %w", err)
	}
	zw := zip.NewWriter(f)

	add := func(path, arcname string) error {
		src, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("opening %s: %w", path, err)
		}
		defer src.Close()
		w, err := zw.Create(arcname)
		if err != nil {
			return fmt.Errorf("adding %s: %w", arcname, err)
		}
		_, err = io.Copy(w, src)
		return err
	}

	blindedRoot := filepath.Join(experimenterRoot, "anatomy_blinded")
	err = filepath.WalkDir(blindedRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(experimenterRoot, path)
		if err != nil {
			return err
		}
		return add(path, filepath.ToSlash(rel))
	})
	if err != nil {
		zw.Close()
		f.Close()
		os.Remove(archivePath)
		return "", fmt.Errorf("sealing blinded tree: %w", err)
	}

	manifest := filepath.Join(experimenterRoot, "configs", "anatomy_blinded_manifest.json")
	if err := add(manifest, "manifests/anatomy_blinded_manifest.json"); err != nil {
		zw.Close()
		f.Close()
		os.Remove(archivePath)
		return "", err
	}

	if err := zw.Close(); err != nil {
		f.Close()
		os.Remove(archivePath)
		return "", fmt.Errorf("closing archive: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}

	if err := digest.WritePin(archivePath); err != nil {
		return "", err
	}
	return archivePath, nil
}

package bundle

import (
	"archive/zip"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/mesh-intelligence/blindkit/internal/digest"
	"github.com/mesh-intelligence/blindkit/pkg/types"
)

// Verify recomputes the detached pin and every MANIFEST.json digest of
// a sealed bundle. Tampering is reported in the returned findings, not
// as an error; an error means the bundle could not be examined at all.
func Verify(bundlePath string) (*types.VerifyReport, error) {
	report := &types.VerifyReport{
		Bundle: bundlePath,
		Status: types.VerifyOK,
		RanAt:  time.Now().UTC().Truncate(time.Second),
	}

	pinned, err := digest.ReadPin(bundlePath)
	if err != nil {
		return nil, err
	}
	actual, err := digest.SumFile(bundlePath)
	if err != nil {
		return nil, fmt.Errorf("reading bundle: %w", err)
	}
	report.Checked++
	if pinned != actual {
		report.Findings = append(report.Findings, types.Finding{
			Arcname: "(archive)",
			Kind:    "mismatch",
			Want:    pinned,
			Got:     actual,
		})
	}

	zr, err := zip.OpenReader(bundlePath)
	if err != nil {
		return nil, fmt.Errorf("opening bundle: %w", err)
	}
	defer zr.Close()

	members := make(map[string]*zip.File, len(zr.File))
	for _, zf := range zr.File {
		members[zf.Name] = zf
	}

	mf, ok := members[manifestName]
	if !ok {
		return nil, fmt.Errorf("bundle lacks %s: %w", manifestName, types.ErrIntegrity)
	}
	var manifest types.BundleManifest
	if err := readJSON(mf, &manifest); err != nil {
		return nil, fmt.Errorf("reading %s: %w", manifestName, err)
	}

	for _, want := range manifest.Files {
		report.Checked++
		zf, ok := members[want.Arcname]
		if !ok {
			report.Findings = append(report.Findings, types.Finding{
				Arcname: want.Arcname,
				Kind:    "missing",
				Want:    want.Digest,
			})
			continue
		}
		got, err := memberDigest(zf)
		if err != nil {
			report.Findings = append(report.Findings, types.Finding{
				Arcname: want.Arcname,
				Kind:    "unreadable",
				Want:    want.Digest,
				Got:     err.Error(),
			})
			continue
		}
		if got != want.Digest {
			report.Findings = append(report.Findings, types.Finding{
				Arcname: want.Arcname,
				Kind:    "mismatch",
				Want:    want.Digest,
				Got:     got,
			})
		}
	}

	if len(report.Findings) > 0 {
		report.Status = types.VerifyFailed
	}
	return report, nil
}

func memberDigest(zf *zip.File) (string, error) {
	rc, err := zf.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return "", err
	}
	return digest.SumBytes(data), nil
}

func readJSON(zf *zip.File, v any) error {
	rc, err := zf.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	return json.NewDecoder(rc).Decode(v)
}

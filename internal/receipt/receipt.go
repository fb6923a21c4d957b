// Package receipt logs real-world label usage at the experimenter root.
// A receipt is written once per physical event and never edited; the
// blinder later reconciles receipts against issued codes without ever
// exposing the key.
package receipt

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/mesh-intelligence/blindkit/internal/audit"
	"github.com/mesh-intelligence/blindkit/internal/digest"
	"github.com/mesh-intelligence/blindkit/internal/store"
	"github.com/mesh-intelligence/blindkit/pkg/types"
)

// Log appends a receipt for (subject, stage, session). When photoPath
// is non-empty the photo is copied under media/photos and its digest
// attached, tying the paper trail to a pixel trail.
func Log(experimenterRoot, subjectID, stage string, session int, photoPath string) (types.Receipt, error) {
	if subjectID == "" || stage == "" {
		return types.Receipt{}, fmt.Errorf("subject and stage are required: %w", types.ErrValidation)
	}

	rec := types.Receipt{
		ReceiptID: newUUID(),
		SubjectID: subjectID,
		Stage:     stage,
		Session:   session,
		LoggedAt:  time.Now().UTC().Truncate(time.Second),
	}

	if photoPath != "" {
		sum, err := attachPhoto(experimenterRoot, rec, photoPath)
		if err != nil {
			return types.Receipt{}, err
		}
		rec.PhotoDigest = sum
	}

	log, err := store.Open(filepath.Join(experimenterRoot, types.ReceiptsLog))
	if err != nil {
		return types.Receipt{}, err
	}
	conflict := func(existing json.RawMessage) (bool, error) {
		var prev types.Receipt
		if err := json.Unmarshal(existing, &prev); err != nil {
			return false, fmt.Errorf("decoding receipt: %w", err)
		}
		return prev.ReceiptID == rec.ReceiptID, nil
	}
	if err := log.Append(rec, conflict); err != nil {
		return types.Receipt{}, fmt.Errorf("logging receipt for %s/%s: %w", subjectID, stage, err)
	}

	trail, err := audit.Open(experimenterRoot, types.RoleExperimenter)
	if err != nil {
		return types.Receipt{}, err
	}
	err = trail.Append("log-receipt", map[string]any{
		"receipt_id": rec.ReceiptID,
		"subject_id": subjectID,
		"stage":      stage,
		"session":    session,
		"photo":      rec.PhotoDigest != "",
	})
	if err != nil {
		return types.Receipt{}, err
	}
	return rec, nil
}

// All returns every receipt at the root in logging order.
func All(experimenterRoot string) ([]types.Receipt, error) {
	log, err := store.Open(filepath.Join(experimenterRoot, types.ReceiptsLog))
	if err != nil {
		return nil, err
	}
	var receipts []types.Receipt
	err = log.Scan(func(raw json.RawMessage) error {
		var rec types.Receipt
		if err := json.Unmarshal(raw, &rec); err != nil {
			return fmt.Errorf("decoding receipt: %w", err)
		}
		receipts = append(receipts, rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return receipts, nil
}

// Digest returns the canonical digest of a receipt, used to tie the
// registry's USED transition to this exact receipt.
func Digest(rec types.Receipt) (string, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("marshaling receipt %s: %w", rec.ReceiptID, err)
	}
	return digest.SumBytes(data), nil
}

// attachPhoto copies the photo under media/photos/<subject>/<stage> and
// returns its digest.
func attachPhoto(experimenterRoot string, rec types.Receipt, photoPath string) (string, error) {
	src, err := os.Open(photoPath)
	if err != nil {
		return "", fmt.Errorf("opening photo: %w", err)
	}
	defer src.Close()

	dir := filepath.Join(experimenterRoot, "media", "photos", rec.SubjectID, rec.Stage)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	dstPath := filepath.Join(dir, rec.ReceiptID+filepath.Ext(photoPath))
	dst, err := os.Create(dstPath)
	if err != nil {
		return "", fmt.Errorf("copying photo: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(dstPath)
		return "", fmt.Errorf("copying photo: %w", err)
	}
	if err := dst.Close(); err != nil {
		return "", err
	}
	return digest.SumFile(dstPath)
}

func newUUID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}

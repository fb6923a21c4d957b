// Package provenance records legitimate edits to blinded artifacts so a
// post-hoc audit can distinguish a declared derivation from tampering.
package provenance

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/mesh-intelligence/blindkit/internal/audit"
	"github.com/mesh-intelligence/blindkit/internal/digest"
	"github.com/mesh-intelligence/blindkit/internal/store"
	"github.com/mesh-intelligence/blindkit/pkg/types"
)

// Record links child (an edited image) to parent (the blinded original),
// digesting both at record time.
func Record(experimenterRoot, parent, child, note string) (types.ProvenanceLink, error) {
	parentSum, err := digest.SumFile(parent)
	if err != nil {
		return types.ProvenanceLink{}, fmt.Errorf("parent: %w", err)
	}
	childSum, err := digest.SumFile(child)
	if err != nil {
		return types.ProvenanceLink{}, fmt.Errorf("child: %w", err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	link := types.ProvenanceLink{
		LinkID:       id.String(),
		ParentPath:   parent,
		ChildPath:    child,
		ParentDigest: parentSum,
		ChildDigest:  childSum,
		Note:         note,
		RecordedAt:   time.Now().UTC().Truncate(time.Second),
	}

	log, err := store.Open(filepath.Join(experimenterRoot, types.ProvenanceLog))
	if err != nil {
		return types.ProvenanceLink{}, err
	}
	if err := log.Append(link, nil); err != nil {
		return types.ProvenanceLink{}, fmt.Errorf("recording provenance link: %w", err)
	}

	trail, err := audit.Open(experimenterRoot, types.RoleExperimenter)
	if err != nil {
		return types.ProvenanceLink{}, err
	}
	err = trail.Append("record-derivative", map[string]any{
		"parent": parent,
		"child":  child,
		"note":   note,
	})
	if err != nil {
		return types.ProvenanceLink{}, err
	}
	return link, nil
}

// All returns every provenance link at the root in record order.
func All(experimenterRoot string) ([]types.ProvenanceLink, error) {
	log, err := store.Open(filepath.Join(experimenterRoot, types.ProvenanceLog))
	if err != nil {
		return nil, err
	}
	var links []types.ProvenanceLink
	err = log.Scan(func(raw json.RawMessage) error {
		var link types.ProvenanceLink
		if err := json.Unmarshal(raw, &link); err != nil {
			return fmt.Errorf("decoding provenance link: %w", err)
		}
		links = append(links, link)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return links, nil
}

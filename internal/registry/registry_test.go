package registry

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/blindkit/internal/study"
	"github.com/mesh-intelligence/blindkit/pkg/types"
)

func openTestRegistry(t *testing.T) *Registry {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, study.InitBlinder(root, "study-01"))
	reg, err := Open(root)
	require.NoError(t, err)
	return reg
}

func TestIssue_CodeShape(t *testing.T) {
	reg := openTestRegistry(t)

	entry, err := reg.Issue("M001", types.StageViral, 0)
	require.NoError(t, err)

	assert.Equal(t, "M001", entry.SubjectID)
	assert.Equal(t, types.StatusIssued, entry.Status)
	assert.True(t, strings.HasPrefix(entry.Code, "VIR-"), entry.Code)
	require.Len(t, entry.Code, len("VIR-")+codeLength)
	for _, c := range entry.Code[4:] {
		assert.Contains(t, codeAlphabet, string(c), "code drawn from the label alphabet")
	}
}

func TestIssue_PrefixForUnknownStage(t *testing.T) {
	reg := openTestRegistry(t)

	entry, err := reg.Issue("M001", "necropsy", 0)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(entry.Code, "NEC-"), entry.Code)
}

func TestIssue_Validation(t *testing.T) {
	reg := openTestRegistry(t)

	_, err := reg.Issue("", types.StageViral, 0)
	assert.ErrorIs(t, err, types.ErrValidation)

	_, err = reg.Issue("M001", "", 0)
	assert.ErrorIs(t, err, types.ErrValidation)
}

func TestIssue_CodesUniqueAcrossHistory(t *testing.T) {
	reg := openTestRegistry(t)
	reg.Deterministic(42)

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		entry, err := reg.Issue("M001", types.StageAnatomy, i)
		require.NoError(t, err)
		assert.False(t, seen[entry.Code], "code %s reused", entry.Code)
		seen[entry.Code] = true
	}

	// Voiding does not free a code for reuse.
	for code := range seen {
		require.NoError(t, reg.Void(code))
		break
	}
	entry, err := reg.Issue("M002", types.StageAnatomy, 0)
	require.NoError(t, err)
	assert.False(t, seen[entry.Code])
}

func TestMarkUsed_Lifecycle(t *testing.T) {
	reg := openTestRegistry(t)

	issued, err := reg.Issue("M001", types.StageBehavior, 1)
	require.NoError(t, err)

	used, err := reg.MarkUsed(issued.Code, "digest-a")
	require.NoError(t, err)
	assert.Equal(t, types.StatusUsed, used.Status)
	assert.Equal(t, "digest-a", used.ReceiptDigest)
	require.NotNil(t, used.UsedAt)

	t.Run("same digest is idempotent", func(t *testing.T) {
		again, err := reg.MarkUsed(issued.Code, "digest-a")
		require.NoError(t, err)
		assert.Equal(t, used.ReceiptDigest, again.ReceiptDigest)

		entries, err := reg.Entries()
		require.NoError(t, err)
		assert.Len(t, entries, 2, "idempotent re-mark appends nothing")
	})

	t.Run("different digest rejected", func(t *testing.T) {
		_, err := reg.MarkUsed(issued.Code, "digest-b")
		assert.ErrorIs(t, err, types.ErrAlreadyUsed)
	})

	t.Run("unknown code rejected", func(t *testing.T) {
		_, err := reg.MarkUsed("VIR-ZZZZZ", "digest-a")
		assert.ErrorIs(t, err, types.ErrNotFound)
	})

	t.Run("history keeps the superseded entry", func(t *testing.T) {
		entries, err := reg.Entries()
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, types.StatusIssued, entries[0].Status)
		assert.Equal(t, types.StatusUsed, entries[1].Status)
	})
}

func TestVoid(t *testing.T) {
	reg := openTestRegistry(t)

	issued, err := reg.Issue("M001", types.StageViral, 0)
	require.NoError(t, err)

	require.NoError(t, reg.Void(issued.Code))

	t.Run("void is idempotent", func(t *testing.T) {
		require.NoError(t, reg.Void(issued.Code))
		entries, err := reg.Entries()
		require.NoError(t, err)
		assert.Len(t, entries, 2)
	})

	t.Run("voided code cannot be used", func(t *testing.T) {
		_, err := reg.MarkUsed(issued.Code, "digest-a")
		assert.ErrorIs(t, err, types.ErrVoided)
	})

	t.Run("unknown code rejected", func(t *testing.T) {
		assert.ErrorIs(t, reg.Void("VIR-ZZZZZ"), types.ErrNotFound)
	})
}

func TestCurrent_LatestEntryWins(t *testing.T) {
	reg := openTestRegistry(t)

	issued, err := reg.Issue("M001", types.StageViral, 0)
	require.NoError(t, err)
	other, err := reg.Issue("M002", types.StageViral, 0)
	require.NoError(t, err)

	_, err = reg.MarkUsed(issued.Code, "digest-a")
	require.NoError(t, err)

	current, err := reg.Current()
	require.NoError(t, err)
	require.Len(t, current, 2)
	assert.Equal(t, types.StatusUsed, current[issued.Code].Status)
	assert.Equal(t, types.StatusIssued, current[other.Code].Status)
}

func TestDeterministic_ReproducesCodes(t *testing.T) {
	regA := openTestRegistry(t)
	regA.Deterministic(7)
	regB := openTestRegistry(t)
	regB.Deterministic(7)

	for i := 0; i < 5; i++ {
		a, err := regA.Issue("M001", types.StageViral, i)
		require.NoError(t, err)
		b, err := regB.Issue("M001", types.StageViral, i)
		require.NoError(t, err)
		assert.Equal(t, a.Code, b.Code)
	}
}

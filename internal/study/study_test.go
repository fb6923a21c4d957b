package study

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/blindkit/internal/paths"
	"github.com/mesh-intelligence/blindkit/pkg/types"
)

func TestInitBlinder_CreatesLayout(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, InitBlinder(root, "study-01"))

	meta, err := ReadMeta(root)
	require.NoError(t, err)
	assert.Equal(t, "study-01", meta.StudyID)
	assert.Equal(t, types.RoleBlinder, meta.Role)
	assert.False(t, meta.CreatedAt.IsZero())

	for _, sub := range paths.BlinderSubdirs {
		info, err := os.Stat(filepath.Join(root, sub))
		require.NoError(t, err, sub)
		assert.True(t, info.IsDir())
	}
}

func TestInitExperimenter_CreatesLayout(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, InitExperimenter(root, "study-01"))

	meta, err := ReadMeta(root)
	require.NoError(t, err)
	assert.Equal(t, types.RoleExperimenter, meta.Role)

	for _, sub := range paths.ExperimenterSubdirs {
		_, err := os.Stat(filepath.Join(root, sub))
		require.NoError(t, err, sub)
	}
}

func TestInit_Idempotency(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, InitBlinder(root, "study-01"))

	t.Run("same study and role is a no-op", func(t *testing.T) {
		require.NoError(t, InitBlinder(root, "study-01"))
	})

	t.Run("different study rejected", func(t *testing.T) {
		err := InitBlinder(root, "study-02")
		assert.ErrorIs(t, err, types.ErrValidation)
	})

	t.Run("different role rejected", func(t *testing.T) {
		err := InitExperimenter(root, "study-01")
		assert.ErrorIs(t, err, types.ErrValidation)
	})

	t.Run("empty study id rejected", func(t *testing.T) {
		err := InitBlinder(t.TempDir(), "")
		assert.ErrorIs(t, err, types.ErrValidation)
	})
}

func TestReadMeta_UninitializedRoot(t *testing.T) {
	_, err := ReadMeta(t.TempDir())
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestRegister(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, InitBlinder(root, "study-01"))

	require.NoError(t, Register(root, types.Subject{SubjectID: "M001", Sex: "F", MassGrams: 21.4}))
	require.NoError(t, Register(root, types.Subject{SubjectID: "M002"}))

	t.Run("duplicate id rejected", func(t *testing.T) {
		err := Register(root, types.Subject{SubjectID: "M001"})
		assert.ErrorIs(t, err, types.ErrDuplicate)
	})

	t.Run("empty id rejected", func(t *testing.T) {
		err := Register(root, types.Subject{})
		assert.ErrorIs(t, err, types.ErrValidation)
	})

	t.Run("roster preserves registration order", func(t *testing.T) {
		subjects, err := Subjects(root)
		require.NoError(t, err)
		require.Len(t, subjects, 2)
		assert.Equal(t, "M001", subjects[0].SubjectID)
		assert.Equal(t, "M002", subjects[1].SubjectID)
		assert.Equal(t, 21.4, subjects[0].MassGrams)
		assert.False(t, subjects[0].RegisteredAt.IsZero())
	})
}

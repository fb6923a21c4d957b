package receipt

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/blindkit/internal/digest"
	"github.com/mesh-intelligence/blindkit/internal/study"
	"github.com/mesh-intelligence/blindkit/pkg/types"
)

func newExperimenterRoot(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, study.InitExperimenter(root, "study-01"))
	return root
}

func TestLog_WithPhoto(t *testing.T) {
	root := newExperimenterRoot(t)

	photo := filepath.Join(t.TempDir(), "cage_label.jpg")
	require.NoError(t, os.WriteFile(photo, []byte("jpeg bytes"), 0o644))

	rec, err := Log(root, "M001", types.StageBehavior, 2, photo)
	require.NoError(t, err)

	assert.NotEmpty(t, rec.ReceiptID)
	assert.Equal(t, "M001", rec.SubjectID)
	assert.Equal(t, 2, rec.Session)
	assert.Equal(t, digest.SumString("jpeg bytes"), rec.PhotoDigest)

	t.Run("photo copied under media/photos", func(t *testing.T) {
		copied := filepath.Join(root, "media", "photos", "M001", types.StageBehavior, rec.ReceiptID+".jpg")
		data, err := os.ReadFile(copied)
		require.NoError(t, err)
		assert.Equal(t, "jpeg bytes", string(data))
	})

	t.Run("original photo path absent from the log", func(t *testing.T) {
		data, err := os.ReadFile(filepath.Join(root, types.ReceiptsLog))
		require.NoError(t, err)
		assert.NotContains(t, string(data), photo)
	})
}

func TestLog_WithoutPhoto(t *testing.T) {
	root := newExperimenterRoot(t)

	rec, err := Log(root, "M001", types.StageViral, 0, "")
	require.NoError(t, err)
	assert.Empty(t, rec.PhotoDigest)
}

func TestLog_Validation(t *testing.T) {
	root := newExperimenterRoot(t)

	_, err := Log(root, "", types.StageViral, 0, "")
	assert.ErrorIs(t, err, types.ErrValidation)

	_, err = Log(root, "M001", "", 0, "")
	assert.ErrorIs(t, err, types.ErrValidation)

	_, err = Log(root, "M001", types.StageViral, 0, filepath.Join(t.TempDir(), "absent.jpg"))
	assert.Error(t, err)
}

func TestAll_PreservesOrder(t *testing.T) {
	root := newExperimenterRoot(t)

	first, err := Log(root, "M001", types.StageViral, 0, "")
	require.NoError(t, err)
	second, err := Log(root, "M002", types.StageViral, 0, "")
	require.NoError(t, err)

	receipts, err := All(root)
	require.NoError(t, err)
	require.Len(t, receipts, 2)
	assert.Equal(t, first.ReceiptID, receipts[0].ReceiptID)
	assert.Equal(t, second.ReceiptID, receipts[1].ReceiptID)
}

func TestDigest_CanonicalAndStable(t *testing.T) {
	root := newExperimenterRoot(t)

	rec, err := Log(root, "M001", types.StageViral, 0, "")
	require.NoError(t, err)

	d1, err := Digest(rec)
	require.NoError(t, err)
	d2, err := Digest(rec)
	require.NoError(t, err)
	assert.Equal(t, d1, d2)

	// The digest of the logged form matches the digest of the reloaded
	// form, so both parties derive the same value independently.
	receipts, err := All(root)
	require.NoError(t, err)
	reloaded, err := Digest(receipts[0])
	require.NoError(t, err)
	assert.Equal(t, d1, reloaded)

	other, err := Log(root, "M002", types.StageViral, 0, "")
	require.NoError(t, err)
	d3, err := Digest(other)
	require.NoError(t, err)
	assert.NotEqual(t, d1, d3)
}

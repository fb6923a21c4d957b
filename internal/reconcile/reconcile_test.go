package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/blindkit/internal/receipt"
	"github.com/mesh-intelligence/blindkit/internal/registry"
	"github.com/mesh-intelligence/blindkit/internal/study"
	"github.com/mesh-intelligence/blindkit/pkg/types"
)

func newRoots(t *testing.T) (blinderRoot, experimenterRoot string, reg *registry.Registry) {
	t.Helper()
	blinderRoot, experimenterRoot = t.TempDir(), t.TempDir()
	require.NoError(t, study.InitBlinder(blinderRoot, "study-01"))
	require.NoError(t, study.InitExperimenter(experimenterRoot, "study-01"))

	var err error
	reg, err = registry.Open(blinderRoot)
	require.NoError(t, err)
	return blinderRoot, experimenterRoot, reg
}

func TestRun_MatchesUniqueReceipt(t *testing.T) {
	blinderRoot, experimenterRoot, reg := newRoots(t)

	issued, err := reg.Issue("M001", types.StageBehavior, 1)
	require.NoError(t, err)
	rec, err := receipt.Log(experimenterRoot, "M001", types.StageBehavior, 1, "")
	require.NoError(t, err)

	report, err := Run(blinderRoot, experimenterRoot)
	require.NoError(t, err)
	require.NoError(t, report.Err())

	require.Len(t, report.Transitions, 1)
	assert.Equal(t, issued.Code, report.Transitions[0].Code)
	assert.Equal(t, rec.ReceiptID, report.Transitions[0].ReceiptID)
	assert.Empty(t, report.Unmatched)
	assert.Empty(t, report.Ambiguous)

	current, err := reg.Current()
	require.NoError(t, err)
	entry := current[issued.Code]
	assert.Equal(t, types.StatusUsed, entry.Status)

	wantDigest, err := receipt.Digest(rec)
	require.NoError(t, err)
	assert.Equal(t, wantDigest, entry.ReceiptDigest)
}

func TestRun_IdempotentRerun(t *testing.T) {
	blinderRoot, experimenterRoot, reg := newRoots(t)

	_, err := reg.Issue("M001", types.StageBehavior, 0)
	require.NoError(t, err)
	_, err = receipt.Log(experimenterRoot, "M001", types.StageBehavior, 0, "")
	require.NoError(t, err)

	first, err := Run(blinderRoot, experimenterRoot)
	require.NoError(t, err)
	require.Len(t, first.Transitions, 1)

	second, err := Run(blinderRoot, experimenterRoot)
	require.NoError(t, err)
	assert.Empty(t, second.Transitions)
	assert.Equal(t, 1, second.AlreadyApplied)

	entries, err := reg.Entries()
	require.NoError(t, err)
	assert.Len(t, entries, 2, "re-run appends no registry entry")
}

func TestRun_UnmatchedReceiptKept(t *testing.T) {
	blinderRoot, experimenterRoot, _ := newRoots(t)

	rec, err := receipt.Log(experimenterRoot, "M009", types.StageViral, 0, "")
	require.NoError(t, err)

	report, err := Run(blinderRoot, experimenterRoot)
	require.NoError(t, err)
	require.NoError(t, report.Err())
	require.Len(t, report.Unmatched, 1)
	assert.Equal(t, rec.ReceiptID, report.Unmatched[0].ReceiptID)
}

func TestRun_LateIssueReconcilesOnRerun(t *testing.T) {
	blinderRoot, experimenterRoot, reg := newRoots(t)

	_, err := receipt.Log(experimenterRoot, "M001", types.StageViral, 0, "")
	require.NoError(t, err)

	report, err := Run(blinderRoot, experimenterRoot)
	require.NoError(t, err)
	require.Len(t, report.Unmatched, 1)

	issued, err := reg.Issue("M001", types.StageViral, 0)
	require.NoError(t, err)

	report, err = Run(blinderRoot, experimenterRoot)
	require.NoError(t, err)
	require.Len(t, report.Transitions, 1)
	assert.Equal(t, issued.Code, report.Transitions[0].Code)
	assert.Empty(t, report.Unmatched)
}

func TestRun_DuplicateReceiptsForOneCode(t *testing.T) {
	blinderRoot, experimenterRoot, reg := newRoots(t)

	issued, err := reg.Issue("M001", types.StageBehavior, 1)
	require.NoError(t, err)
	first, err := receipt.Log(experimenterRoot, "M001", types.StageBehavior, 1, "")
	require.NoError(t, err)
	second, err := receipt.Log(experimenterRoot, "M001", types.StageBehavior, 1, "")
	require.NoError(t, err)

	report, err := Run(blinderRoot, experimenterRoot)
	require.NoError(t, err, "a duplicate receipt is reported, not a run failure")
	require.NoError(t, report.Err())

	require.Len(t, report.Transitions, 1)
	assert.Equal(t, first.ReceiptID, report.Transitions[0].ReceiptID)
	require.Len(t, report.Unmatched, 1)
	assert.Equal(t, second.ReceiptID, report.Unmatched[0].ReceiptID)

	current, err := reg.Current()
	require.NoError(t, err)
	wantDigest, err := receipt.Digest(first)
	require.NoError(t, err)
	assert.Equal(t, types.StatusUsed, current[issued.Code].Status)
	assert.Equal(t, wantDigest, current[issued.Code].ReceiptDigest)

	t.Run("rerun leaves the duplicate unmatched", func(t *testing.T) {
		report, err := Run(blinderRoot, experimenterRoot)
		require.NoError(t, err)
		assert.Empty(t, report.Transitions)
		assert.Equal(t, 1, report.AlreadyApplied)
		require.Len(t, report.Unmatched, 1)
		assert.Equal(t, second.ReceiptID, report.Unmatched[0].ReceiptID)
	})
}

func TestRun_AmbiguousReported(t *testing.T) {
	blinderRoot, experimenterRoot, reg := newRoots(t)

	a, err := reg.Issue("M001", types.StageViral, 0)
	require.NoError(t, err)
	b, err := reg.Issue("M001", types.StageViral, 0)
	require.NoError(t, err)
	_, err = receipt.Log(experimenterRoot, "M001", types.StageViral, 0, "")
	require.NoError(t, err)

	report, err := Run(blinderRoot, experimenterRoot)
	require.NoError(t, err)

	require.Len(t, report.Ambiguous, 1)
	assert.ElementsMatch(t, []string{a.Code, b.Code}, report.Ambiguous[0].Candidates)
	assert.Empty(t, report.Transitions)
	assert.ErrorIs(t, report.Err(), types.ErrAmbiguousMatch)

	t.Run("voiding one candidate resolves the ambiguity", func(t *testing.T) {
		require.NoError(t, reg.Void(a.Code))

		report, err := Run(blinderRoot, experimenterRoot)
		require.NoError(t, err)
		require.NoError(t, report.Err())
		require.Len(t, report.Transitions, 1)
		assert.Equal(t, b.Code, report.Transitions[0].Code)
	})
}

func TestRun_SessionsKeptSeparate(t *testing.T) {
	blinderRoot, experimenterRoot, reg := newRoots(t)

	s1, err := reg.Issue("M001", types.StageBehavior, 1)
	require.NoError(t, err)
	s2, err := reg.Issue("M001", types.StageBehavior, 2)
	require.NoError(t, err)
	_, err = receipt.Log(experimenterRoot, "M001", types.StageBehavior, 2, "")
	require.NoError(t, err)

	report, err := Run(blinderRoot, experimenterRoot)
	require.NoError(t, err)

	require.Len(t, report.Transitions, 1)
	assert.Equal(t, s2.Code, report.Transitions[0].Code)

	current, err := reg.Current()
	require.NoError(t, err)
	assert.Equal(t, types.StatusIssued, current[s1.Code].Status)
}

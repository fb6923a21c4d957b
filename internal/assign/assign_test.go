package assign

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/blindkit/internal/study"
	"github.com/mesh-intelligence/blindkit/pkg/types"
)

// newStudy initializes a blinder root with n registered subjects
// M001..M00n.
func newStudy(t *testing.T, n int) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, study.InitBlinder(root, "study-01"))
	for i := 1; i <= n; i++ {
		require.NoError(t, study.Register(root, types.Subject{SubjectID: fmt.Sprintf("M%03d", i)}))
	}
	return root
}

func categories(records []types.AssignmentRecord) map[string]string {
	out := make(map[string]string, len(records))
	for _, rec := range records {
		out[rec.SubjectID] = rec.Category
	}
	return out
}

func countByCategory(records []types.AssignmentRecord) map[string]int {
	out := make(map[string]int)
	for _, rec := range records {
		out[rec.Category]++
	}
	return out
}

func TestRun_RatioExactWhenDivisible(t *testing.T) {
	root := newStudy(t, 8)

	result, err := Run(root, "study-01", Request{
		Stage:    types.StageViral,
		DateSeed: "2026-08-01",
		Weights:  map[string]int{"INFECTED": 3, "CONTROL": 1},
	})
	require.NoError(t, err)
	require.Len(t, result.New, 8)

	counts := countByCategory(result.New)
	assert.Equal(t, 6, counts["INFECTED"])
	assert.Equal(t, 2, counts["CONTROL"])
}

func TestRun_RemainderGoesToMajority(t *testing.T) {
	root := newStudy(t, 7)

	result, err := Run(root, "study-01", Request{
		Stage:    types.StageViral,
		DateSeed: "2026-08-01",
		Weights:  map[string]int{"INFECTED": 3, "CONTROL": 1},
	})
	require.NoError(t, err)

	// floor(7*3/4)=5, floor(7*1/4)=1, remainder seat to the majority.
	counts := countByCategory(result.New)
	assert.Equal(t, 6, counts["INFECTED"])
	assert.Equal(t, 1, counts["CONTROL"])
}

func TestRun_Deterministic(t *testing.T) {
	req := Request{
		Stage:    types.StageViral,
		DateSeed: "2026-08-01",
		Weights:  map[string]int{"A": 1, "B": 1},
	}

	rootA := newStudy(t, 10)
	rootB := newStudy(t, 10)

	resA, err := Run(rootA, "study-01", req)
	require.NoError(t, err)
	resB, err := Run(rootB, "study-01", req)
	require.NoError(t, err)

	assert.Equal(t, categories(resA.New), categories(resB.New),
		"identical inputs reproduce the identical draw")
}

func TestRun_RecordsSeedDescriptor(t *testing.T) {
	root := newStudy(t, 4)

	result, err := Run(root, "study-01", Request{
		Stage:    types.StageViral,
		DateSeed: "2026-08-01",
		Weights:  map[string]int{"A": 1, "B": 1},
	})
	require.NoError(t, err)
	require.NotEmpty(t, result.New)

	for _, rec := range result.New {
		assert.Equal(t, "study-01", rec.Seed.StudyID)
		assert.Equal(t, "2026-08-01", rec.Seed.DateSeed)
		assert.Equal(t, []string{"M001", "M002", "M003", "M004"}, rec.Seed.Subjects)
		assert.Equal(t, "perm-ratio/1", rec.Seed.Algorithm)
	}
}

func TestRun_IdempotentExpansion(t *testing.T) {
	root := newStudy(t, 4)
	req := Request{
		Stage:    types.StageViral,
		DateSeed: "2026-08-01",
		Weights:  map[string]int{"INFECTED": 3, "CONTROL": 1},
	}

	first, err := Run(root, "study-01", req)
	require.NoError(t, err)
	require.Len(t, first.New, 4)
	before := categories(first.New)

	// Same run again: nothing new, everyone skipped.
	again, err := Run(root, "study-01", req)
	require.NoError(t, err)
	assert.Empty(t, again.New)
	assert.Len(t, again.Skipped, 4)

	// Two late registrations; only they are drawn.
	require.NoError(t, study.Register(root, types.Subject{SubjectID: "M005"}))
	require.NoError(t, study.Register(root, types.Subject{SubjectID: "M006"}))

	expanded, err := Run(root, "study-01", req)
	require.NoError(t, err)
	require.Len(t, expanded.New, 2)
	assert.Len(t, expanded.Skipped, 4)

	// Prior assignments are untouched.
	all, err := Assignments(root)
	require.NoError(t, err)
	after := make(map[string]string)
	for _, rec := range all {
		after[rec.SubjectID] = rec.Category
	}
	for id, cat := range before {
		assert.Equal(t, cat, after[id], id)
	}
}

func TestRun_DependencyForcesCategory(t *testing.T) {
	root := newStudy(t, 8)

	viral, err := Run(root, "study-01", Request{
		Stage:    types.StageViral,
		DateSeed: "2026-08-01",
		Weights:  map[string]int{"INFECTED": 1, "CONTROL": 1},
	})
	require.NoError(t, err)

	behavior, err := Run(root, "study-01", Request{
		Stage:    types.StageBehavior,
		DateSeed: "2026-08-02",
		Weights:  map[string]int{"ENRICHED": 1, "STANDARD": 1},
		Dependency: &types.Dependency{
			Stage: types.StageViral,
			When:  "INFECTED",
			Then:  "ENRICHED",
		},
	})
	require.NoError(t, err)

	viralCats := categories(viral.New)
	for _, rec := range behavior.New {
		if viralCats[rec.SubjectID] == "INFECTED" {
			assert.Equal(t, "ENRICHED", rec.Category, rec.SubjectID)
			assert.True(t, rec.Forced, rec.SubjectID)
		} else {
			assert.False(t, rec.Forced, rec.SubjectID)
		}
	}
}

func TestRun_DependencyNotReady(t *testing.T) {
	root := newStudy(t, 4)

	_, err := Run(root, "study-01", Request{
		Stage:    types.StageBehavior,
		DateSeed: "2026-08-01",
		Weights:  map[string]int{"A": 1, "B": 1},
		Dependency: &types.Dependency{
			Stage: types.StageViral,
			When:  "INFECTED",
			Then:  "A",
		},
	})
	assert.ErrorIs(t, err, types.ErrDependencyNotReady)
}

func TestRun_Validation(t *testing.T) {
	root := newStudy(t, 2)

	tests := []struct {
		name    string
		weights map[string]int
	}{
		{"single category", map[string]int{"A": 1}},
		{"zero weight", map[string]int{"A": 1, "B": 0}},
		{"negative weight", map[string]int{"A": 1, "B": -2}},
		{"empty category name", map[string]int{"A": 1, "": 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Run(root, "study-01", Request{Stage: types.StageViral, Weights: tt.weights})
			assert.ErrorIs(t, err, types.ErrConfig)
		})
	}

	t.Run("empty roster", func(t *testing.T) {
		empty := t.TempDir()
		require.NoError(t, study.InitBlinder(empty, "study-01"))
		_, err := Run(empty, "study-01", Request{Stage: types.StageViral, Weights: map[string]int{"A": 1, "B": 1}})
		assert.ErrorIs(t, err, types.ErrValidation)
	})
}

func TestLookup(t *testing.T) {
	root := newStudy(t, 2)
	_, err := Run(root, "study-01", Request{
		Stage:    types.StageViral,
		DateSeed: "2026-08-01",
		Weights:  map[string]int{"A": 1, "B": 1},
	})
	require.NoError(t, err)

	cat, err := Lookup(root, "M001", types.StageViral)
	require.NoError(t, err)
	assert.NotEmpty(t, cat)

	_, err = Lookup(root, "M001", types.StageAnatomy)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestDeriveSeed_Stable(t *testing.T) {
	desc := types.SeedDescriptor{
		StudyID:  "study-01",
		Stage:    types.StageViral,
		DateSeed: "2026-08-01",
		Subjects: []string{"M001", "M002", "M003"},
		Weights:  map[string]int{"INFECTED": 3, "CONTROL": 1},
	}

	assert.Equal(t, DeriveSeed(desc), DeriveSeed(desc))

	other := desc
	other.DateSeed = "2026-08-02"
	assert.NotEqual(t, DeriveSeed(desc), DeriveSeed(other))

	grown := desc
	grown.Subjects = []string{"M001", "M002", "M003", "M004"}
	assert.NotEqual(t, DeriveSeed(desc), DeriveSeed(grown))
}

// Four-stage walkthrough: a 3:1 viral split followed by a dependent
// behavior stage, with anatomy drawn independently.
func TestRun_MultiStageScenario(t *testing.T) {
	root := newStudy(t, 12)

	viral, err := Run(root, "study-01", Request{
		Stage:    types.StageViral,
		DateSeed: "2026-08-01",
		Weights:  map[string]int{"INFECTED": 3, "CONTROL": 1},
	})
	require.NoError(t, err)
	counts := countByCategory(viral.New)
	assert.Equal(t, 9, counts["INFECTED"])
	assert.Equal(t, 3, counts["CONTROL"])

	behavior, err := Run(root, "study-01", Request{
		Stage:    types.StageBehavior,
		DateSeed: "2026-08-02",
		Weights:  map[string]int{"ENRICHED": 1, "STANDARD": 1},
		Dependency: &types.Dependency{
			Stage: types.StageViral,
			When:  "CONTROL",
			Then:  "STANDARD",
		},
	})
	require.NoError(t, err)
	require.Len(t, behavior.New, 12)

	forced := 0
	for _, rec := range behavior.New {
		if rec.Forced {
			forced++
			assert.Equal(t, "STANDARD", rec.Category)
		}
	}
	assert.Equal(t, 3, forced, "every CONTROL subject is forced")

	anatomy, err := Run(root, "study-01", Request{
		Stage:    types.StageAnatomy,
		DateSeed: "2026-08-03",
		Weights:  map[string]int{"SECTIONED": 1, "INTACT": 1},
	})
	require.NoError(t, err)
	counts = countByCategory(anatomy.New)
	assert.Equal(t, 6, counts["SECTIONED"])
	assert.Equal(t, 6, counts["INTACT"])
}

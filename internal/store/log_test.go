package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/blindkit/pkg/types"
)

type testRec struct {
	ID   string `json:"id"`
	Note string `json:"note,omitempty"`
}

func openTestLog(t *testing.T) *Log {
	t.Helper()
	log, err := Open(filepath.Join(t.TempDir(), "sub", "records.jsonl"))
	require.NoError(t, err)
	return log
}

func TestLog_AppendAndScan(t *testing.T) {
	log := openTestLog(t)

	require.NoError(t, log.Append(testRec{ID: "a"}, nil))
	require.NoError(t, log.Append(testRec{ID: "b"}, nil))
	require.NoError(t, log.Append(testRec{ID: "c"}, nil))

	var ids []string
	err := log.Scan(func(raw json.RawMessage) error {
		var rec testRec
		if err := json.Unmarshal(raw, &rec); err != nil {
			return err
		}
		ids = append(ids, rec.ID)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids, "records replay in insertion order")
}

func TestLog_MissingFileScansEmpty(t *testing.T) {
	log := openTestLog(t)

	records, err := log.Records()
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestLog_ConflictRejectsDuplicate(t *testing.T) {
	log := openTestLog(t)

	sameID := func(id string) Conflict {
		return func(existing json.RawMessage) (bool, error) {
			var rec testRec
			if err := json.Unmarshal(existing, &rec); err != nil {
				return false, err
			}
			return rec.ID == id, nil
		}
	}

	require.NoError(t, log.Append(testRec{ID: "a"}, sameID("a")))
	err := log.Append(testRec{ID: "a", Note: "second"}, sameID("a"))
	require.ErrorIs(t, err, types.ErrDuplicate)

	records, err := log.Records()
	require.NoError(t, err)
	assert.Len(t, records, 1, "failed append leaves no state change")
}

func TestLog_LockBusy(t *testing.T) {
	log := openTestLog(t)

	unlock, err := acquireLock(log.Path())
	require.NoError(t, err)
	defer unlock()

	err = log.Append(testRec{ID: "a"}, nil)
	assert.ErrorIs(t, err, types.ErrLockBusy)
}

func TestLog_StaleLockReclaimed(t *testing.T) {
	log := openTestLog(t)
	lockPath := log.Path() + ".lock"

	// Larger than any pid the kernel hands out, so the holder is
	// certainly dead.
	require.NoError(t, os.WriteFile(lockPath, []byte("1073741824\n"), 0o644))

	require.NoError(t, log.Append(testRec{ID: "a"}, nil))

	_, err := os.Stat(lockPath)
	assert.True(t, os.IsNotExist(err), "reclaimed lock released after append")

	t.Run("lock without a recorded pid is not reclaimed", func(t *testing.T) {
		require.NoError(t, os.WriteFile(lockPath, nil, 0o644))
		err := log.Append(testRec{ID: "b"}, nil)
		assert.ErrorIs(t, err, types.ErrLockBusy)
		require.NoError(t, os.Remove(lockPath))
	})
}

func TestLog_LockReleasedAfterAppend(t *testing.T) {
	log := openTestLog(t)

	require.NoError(t, log.Append(testRec{ID: "a"}, nil))
	require.NoError(t, log.Append(testRec{ID: "b"}, nil))

	_, err := os.Stat(log.Path() + ".lock")
	assert.True(t, os.IsNotExist(err), "lock file removed after append")
}

func TestLog_MalformedLineFailsRead(t *testing.T) {
	log := openTestLog(t)
	require.NoError(t, log.Append(testRec{ID: "a"}, nil))

	f, err := os.OpenFile(log.Path(), os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("{not json\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = log.Records()
	assert.ErrorIs(t, err, types.ErrValidation)
}

func TestLog_BlankLinesSkipped(t *testing.T) {
	log := openTestLog(t)
	require.NoError(t, log.Append(testRec{ID: "a"}, nil))

	f, err := os.OpenFile(log.Path(), os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("\n\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())
	require.NoError(t, log.Append(testRec{ID: "b"}, nil))

	records, err := log.Records()
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestLog_NoTempFilesLeftBehind(t *testing.T) {
	log := openTestLog(t)
	require.NoError(t, log.Append(testRec{ID: "a"}, nil))

	entries, err := os.ReadDir(filepath.Dir(log.Path()))
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp")
	}
}

package store

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"

	"github.com/mesh-intelligence/blindkit/pkg/types"
)

// acquireLock takes the advisory lock for a log by creating path+".lock"
// exclusively. A second process racing on the same log fails fast with
// ErrLockBusy instead of interleaving writes. A lock left behind by a
// crashed holder is reclaimed once its recorded pid is no longer
// running. The returned func releases the lock; release errors are
// ignored because the rename in writeAll has already made the append
// durable.
func acquireLock(path string) (func(), error) {
	lockPath := path + ".lock"
	for range 2 {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			// Record the holder so a later acquirer can tell a stale
			// lock from a live one.
			_, _ = f.WriteString(strconv.Itoa(os.Getpid()) + "\n")
			_ = f.Close()
			return func() { _ = os.Remove(lockPath) }, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("creating lock %s: %w", lockPath, err)
		}
		if !reclaimStale(lockPath) {
			break
		}
	}
	return nil, fmt.Errorf("%s held by another process: %w", lockPath, types.ErrLockBusy)
}

// reclaimStale removes the lock when its recorded holder is dead. A lock
// without a readable pid is left alone: the holder may be between
// creating the file and recording itself.
func reclaimStale(lockPath string) bool {
	data, err := os.ReadFile(lockPath)
	if err != nil {
		return false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return false
	}
	if pidAlive(pid) {
		return false
	}
	return os.Remove(lockPath) == nil
}

// pidAlive probes the pid with signal 0. EPERM means the process exists
// but belongs to another user, so it still counts as alive.
func pidAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	return errors.Is(err, syscall.EPERM)
}

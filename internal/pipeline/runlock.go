package pipeline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
)

// ErrRunInProgress means another live process holds the run lock.
var ErrRunInProgress = errors.New("a pipeline run is already in progress")

// RunLock enforces one pipeline run at a time via a pidfile. A crashed run
// leaves a pidfile naming a dead process, which the next run detects and
// takes over, so the lock dissolves on crash exactly as required for
// resume-from-persisted-state.
type RunLock struct {
	path   string
	logger *logrus.Logger
}

func NewRunLock(path string, logger *logrus.Logger) *RunLock {
	return &RunLock{path: path, logger: logger}
}

// Acquire takes the lock or returns ErrRunInProgress.
func (l *RunLock) Acquire() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}

	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err == nil {
			_, werr := fmt.Fprintf(f, "%d\n", os.Getpid())
			if cerr := f.Close(); werr == nil {
				werr = cerr
			}
			if werr != nil {
				os.Remove(l.path)
				return fmt.Errorf("failed to write lock file: %w", werr)
			}
			return nil
		}
		if !os.IsExist(err) {
			return fmt.Errorf("failed to create lock file: %w", err)
		}

		pid, perr := l.readHolder()
		if perr == nil && processAlive(pid) {
			return ErrRunInProgress
		}

		l.logger.WithFields(logrus.Fields{
			"lock_path": l.path,
			"stale_pid": pid,
		}).Warn("Taking over stale run lock from dead process")
		if rerr := os.Remove(l.path); rerr != nil && !os.IsNotExist(rerr) {
			return fmt.Errorf("failed to remove stale lock file: %w", rerr)
		}
	}

	return ErrRunInProgress
}

// Release drops the lock.
func (l *RunLock) Release() error {
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to release run lock: %w", err)
	}
	return nil
}

func (l *RunLock) readHolder() (int, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// Signal 0 probes for existence without sending anything.
	err = proc.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}

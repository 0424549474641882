package pipeline

import (
	"io"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLock(t *testing.T) *RunLock {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewRunLock(filepath.Join(t.TempDir(), "pipeline.lock"), logger)
}

func TestRunLockAcquireRelease(t *testing.T) {
	l := testLock(t)

	require.NoError(t, l.Acquire())

	data, err := os.ReadFile(l.path)
	require.NoError(t, err)
	assert.Contains(t, string(data), strconv.Itoa(os.Getpid()))

	require.NoError(t, l.Release())
	require.NoError(t, l.Acquire(), "the lock is reusable after release")
	require.NoError(t, l.Release())
}

func TestRunLockHeldByLiveProcess(t *testing.T) {
	l := testLock(t)

	// The lock file names this very process, which is certainly alive.
	require.NoError(t, l.Acquire())

	other := NewRunLock(l.path, l.logger)
	assert.ErrorIs(t, other.Acquire(), ErrRunInProgress)

	require.NoError(t, l.Release())
}

func TestRunLockTakesOverStalePid(t *testing.T) {
	l := testLock(t)

	// No real system assigns a pid this large; the holder is dead.
	require.NoError(t, os.WriteFile(l.path, []byte("999999999\n"), 0644))

	require.NoError(t, l.Acquire())
	require.NoError(t, l.Release())
}

func TestRunLockTakesOverGarbagePidfile(t *testing.T) {
	l := testLock(t)

	require.NoError(t, os.WriteFile(l.path, []byte("not a pid"), 0644))

	require.NoError(t, l.Acquire())
	require.NoError(t, l.Release())
}

func TestRunLockReleaseWithoutAcquire(t *testing.T) {
	l := testLock(t)
	assert.NoError(t, l.Release())
}

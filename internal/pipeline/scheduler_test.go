package pipeline

import (
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedulerRunsImmediatelyAndStops(t *testing.T) {
	h := newRunnerHarness(t, nil)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	s := NewScheduler(h.runner, time.Hour, logger)
	s.Start()

	// The startup run fires without waiting for the first tick.
	require.Eventually(t, func() bool {
		return h.runner.LastRun() != nil
	}, 5*time.Second, 10*time.Millisecond)

	s.Stop()
	assert.NotNil(t, h.runner.LastRun())
}

func TestSchedulerTicksRepeatedly(t *testing.T) {
	h := newRunnerHarness(t, nil)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	s := NewScheduler(h.runner, 20*time.Millisecond, logger)
	s.Start()
	defer s.Stop()

	var first string
	require.Eventually(t, func() bool {
		if last := h.runner.LastRun(); last != nil {
			first = last.RunID
			return true
		}
		return false
	}, 5*time.Second, 10*time.Millisecond)

	// A later tick produces a fresh run.
	require.Eventually(t, func() bool {
		last := h.runner.LastRun()
		return last != nil && last.RunID != first
	}, 5*time.Second, 10*time.Millisecond)
}

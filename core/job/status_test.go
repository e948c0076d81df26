package job_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/raystack/scale/core/job"
)

func TestStatus(t *testing.T) {
	t.Run("StatusFromString", func(t *testing.T) {
		t.Run("returns the status for every known value regardless of case", func(t *testing.T) {
			testCases := []struct {
				input          string
				expectedOutput job.Status
			}{
				{input: "PENDING", expectedOutput: job.StatusPending},
				{input: "blocked", expectedOutput: job.StatusBlocked},
				{input: "Queued", expectedOutput: job.StatusQueued},
				{input: "RUNNING", expectedOutput: job.StatusRunning},
				{input: "completed", expectedOutput: job.StatusCompleted},
				{input: "FAILED", expectedOutput: job.StatusFailed},
				{input: "canceled", expectedOutput: job.StatusCanceled},
			}

			for _, tc := range testCases {
				actualOutput, err := job.StatusFromString(tc.input)
				assert.NoError(t, err)
				assert.Equal(t, tc.expectedOutput, actualOutput)
			}
		})
		t.Run("returns error for unknown status", func(t *testing.T) {
			status, err := job.StatusFromString("unregisteredStatus")

			assert.EqualError(t, err, "invalid argument for entity job: invalid status for job unregisteredStatus")
			assert.Equal(t, job.Status(""), status)
		})
	})
	t.Run("IsTerminal", func(t *testing.T) {
		assert.True(t, job.StatusCompleted.IsTerminal())
		assert.True(t, job.StatusCanceled.IsTerminal())
		assert.False(t, job.StatusFailed.IsTerminal())
		assert.False(t, job.StatusPending.IsTerminal())
	})
	t.Run("IsActive", func(t *testing.T) {
		assert.True(t, job.StatusQueued.IsActive())
		assert.True(t, job.StatusRunning.IsActive())
		assert.False(t, job.StatusBlocked.IsActive())
	})
}

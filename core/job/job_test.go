package job_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/raystack/scale/core/job"
)

func TestJob(t *testing.T) {
	when := time.Date(2022, 3, 1, 10, 0, 0, 0, time.UTC)

	t.Run("CanBeQueued", func(t *testing.T) {
		t.Run("accepts a pending job with input and matching exe num", func(t *testing.T) {
			j := &job.Job{Status: job.StatusPending, Input: job.NewData()}
			assert.True(t, j.CanBeQueued(0, false))
		})
		t.Run("rejects a stale exe num", func(t *testing.T) {
			j := &job.Job{Status: job.StatusFailed, NumExes: 1, Input: job.NewData()}
			assert.False(t, j.CanBeQueued(0, false))
			assert.True(t, j.CanBeQueued(1, false))
		})
		t.Run("rejects terminal and active statuses", func(t *testing.T) {
			for _, status := range []job.Status{job.StatusCompleted, job.StatusCanceled, job.StatusQueued, job.StatusRunning} {
				j := &job.Job{Status: status, NumExes: 1, Input: job.NewData()}
				assert.False(t, j.CanBeQueued(1, false), status.String())
				assert.False(t, j.CanBeQueued(1, true), status.String())
			}
		})
		t.Run("rejects superseded jobs", func(t *testing.T) {
			j := &job.Job{Status: job.StatusPending, Input: job.NewData(), IsSuperseded: true}
			assert.False(t, j.CanBeQueued(0, false))
		})
		t.Run("rejects jobs without input", func(t *testing.T) {
			j := &job.Job{Status: job.StatusPending}
			assert.False(t, j.CanBeQueued(0, false))
		})
		t.Run("on requeue rejects jobs that never executed", func(t *testing.T) {
			j := &job.Job{Status: job.StatusPending, Input: job.NewData()}
			assert.False(t, j.CanBeQueued(0, true))

			j = &job.Job{Status: job.StatusFailed, NumExes: 1, Input: job.NewData()}
			assert.True(t, j.CanBeQueued(1, true))
		})
	})
	t.Run("Queue", func(t *testing.T) {
		j := &job.Job{Status: job.StatusFailed, NumExes: 1, ErrorID: 4, Ended: when.Add(-time.Hour), NodeID: 2}

		j.Queue(when)

		assert.Equal(t, job.StatusQueued, j.Status)
		assert.Equal(t, 2, j.NumExes)
		assert.Equal(t, when, j.Queued)
		assert.Equal(t, when, j.LastStatusChange)
		assert.True(t, j.Ended.IsZero())
		assert.Zero(t, j.ErrorID)
		assert.Zero(t, j.NodeID)
	})
	t.Run("Block and Pend", func(t *testing.T) {
		t.Run("moves between pending and blocked", func(t *testing.T) {
			j := &job.Job{Status: job.StatusPending}

			assert.True(t, j.Block(when))
			assert.Equal(t, job.StatusBlocked, j.Status)
			assert.False(t, j.Block(when.Add(time.Minute)))
			assert.Equal(t, when, j.LastStatusChange)

			assert.True(t, j.Pend(when.Add(time.Hour)))
			assert.Equal(t, job.StatusPending, j.Status)
		})
		t.Run("revives a canceled job that never ran", func(t *testing.T) {
			j := &job.Job{Status: job.StatusCanceled}
			assert.True(t, j.Block(when))

			ran := &job.Job{Status: job.StatusCanceled, NumExes: 1}
			assert.False(t, ran.Block(when))
			assert.False(t, ran.Pend(when))
		})
		t.Run("leaves scheduler owned jobs alone", func(t *testing.T) {
			j := &job.Job{Status: job.StatusQueued, NumExes: 1}
			assert.False(t, j.Block(when))
			assert.Equal(t, job.StatusQueued, j.Status)
		})
	})
	t.Run("Run Complete and Fail", func(t *testing.T) {
		j := &job.Job{Status: job.StatusQueued, NumExes: 1}

		assert.False(t, j.Run(0, 7, when))
		assert.True(t, j.Run(1, 7, when))
		assert.Equal(t, int64(7), j.NodeID)
		assert.Equal(t, when, j.Started)

		output := job.NewData()
		output.Set(job.PropertyValue("answer", "42"))
		assert.True(t, j.Complete(1, output, when.Add(time.Minute)))
		assert.Equal(t, job.StatusCompleted, j.Status)
		assert.True(t, j.HasOutput())
		assert.True(t, j.IsReadyForChildren())
		assert.False(t, j.Fail(1, 3, when))

		failing := &job.Job{Status: job.StatusRunning, NumExes: 2}
		assert.True(t, failing.Fail(2, 3, when))
		assert.Equal(t, int64(3), failing.ErrorID)
		assert.Equal(t, when, failing.Ended)
	})
	t.Run("CanBeRetried", func(t *testing.T) {
		j := &job.Job{NumExes: 1, MaxTries: 2}

		assert.True(t, j.CanBeRetried(&job.Error{ShouldBeRetried: true}))
		assert.False(t, j.CanBeRetried(&job.Error{ShouldBeRetried: false}))
		assert.False(t, j.CanBeRetried(nil))

		j.NumExes = 2
		assert.False(t, j.CanBeRetried(&job.Error{ShouldBeRetried: true}))
	})
	t.Run("QueuePriority", func(t *testing.T) {
		jobType := &job.JobType{Priority: 200}

		assert.Equal(t, 1, (&job.Job{Priority: 50}).QueuePriority(1, jobType))
		assert.Equal(t, 50, (&job.Job{Priority: 50}).QueuePriority(0, jobType))
		assert.Equal(t, 200, (&job.Job{}).QueuePriority(0, jobType))
		assert.Equal(t, 0, (&job.Job{}).QueuePriority(0, nil))
	})
}

func TestData(t *testing.T) {
	t.Run("Set replaces values with the same name", func(t *testing.T) {
		data := job.NewData()
		data.Set(job.PropertyValue("a", "1"))
		data.Set(job.FilesValue("b", job.File{ID: 1}))
		data.Set(job.PropertyValue("a", "2"))

		assert.Equal(t, []string{"a", "b"}, data.Names())
		v, ok := data.Get("a")
		assert.True(t, ok)
		assert.Equal(t, "2", *v.Value)
		assert.True(t, v.IsProperty())

		_, ok = data.Get("c")
		assert.False(t, ok)
	})
	t.Run("nil data has no values", func(t *testing.T) {
		var data *job.Data
		_, ok := data.Get("a")
		assert.False(t, ok)
		assert.Nil(t, data.Names())
	})
}

func TestInterface(t *testing.T) {
	iface := job.Interface{
		Inputs:  []job.InterfaceInput{{Name: "in", Type: job.InputTypeFile, Required: true}},
		Outputs: []job.InterfaceOutput{{Name: "count", Type: job.InputTypeProperty}},
	}

	_, ok := iface.Input("in")
	assert.True(t, ok)
	_, ok = iface.Output("missing")
	assert.False(t, ok)
	assert.False(t, iface.HasFileOutputs())

	iface.Outputs = append(iface.Outputs, job.InterfaceOutput{Name: "out", Type: job.InputTypeFiles})
	assert.True(t, iface.HasFileOutputs())
	assert.Equal(t, "parse:1.0", job.Key{Name: "parse", Version: "1.0"}.String())
}

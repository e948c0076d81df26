package command

import (
	"context"
	"sort"
	"time"

	"github.com/raystack/scale/core/job"
	"github.com/raystack/scale/core/messaging"
	"github.com/raystack/scale/internal/errors"
)

type FailedJob struct {
	JobID   int64 `json:"job_id"`
	ExeNum  int   `json:"exe_num"`
	ErrorID int64 `json:"error_id"`
}

// FailedJobs records failed executions. A job whose error allows it and
// that has tries left is put back on the queue, the rest stay FAILED.
type FailedJobs struct {
	Ended time.Time   `json:"ended"`
	Jobs  []FailedJob `json:"jobs"`

	cmds *Commands
}

func (c *Commands) NewFailedJobsMessages(jobs []FailedJob, ended time.Time) []messaging.Message {
	var messages []messaging.Message
	var current *FailedJobs
	for _, j := range jobs {
		if current == nil || !current.CanFitMore() {
			current = &FailedJobs{Ended: ended, cmds: c}
			messages = append(messages, current)
		}
		current.Jobs = append(current.Jobs, j)
	}
	return messages
}

func (*FailedJobs) Type() string { return TypeFailedJobs }

func (m *FailedJobs) CanFitMore() bool {
	return len(m.Jobs) < MaxNum
}

func (m *FailedJobs) Execute(ctx context.Context) (bool, []messaging.Message, error) {
	byID := make(map[int64]FailedJob, len(m.Jobs))
	ids := make([]int64, 0, len(m.Jobs))
	errorIDs := make([]int64, 0, len(m.Jobs))
	for _, j := range m.Jobs {
		byID[j.JobID] = j
		ids = append(ids, j.JobID)
		errorIDs = append(errorIDs, j.ErrorID)
	}

	var recipeIDs []int64
	var retries map[int][]QueuedJob
	failed := 0
	err := m.cmds.repo.Transaction(ctx, func(ctx context.Context) error {
		jobs, err := m.cmds.repo.LockJobs(ctx, ids)
		if err != nil {
			return err
		}
		causes, err := m.cmds.repo.GetErrors(ctx, uniqueIDs(errorIDs))
		if err != nil {
			return err
		}

		recipeIDs, retries, failed = nil, map[int][]QueuedJob{}, 0
		var updated []*job.Job
		var dequeued []int64
		for _, j := range jobs {
			entry := byID[j.ID]
			if j.Fail(entry.ExeNum, entry.ErrorID, m.Ended) {
				updated = append(updated, j)
				dequeued = append(dequeued, j.ID)
			}
			if j.NumExes != entry.ExeNum || j.Status != job.StatusFailed || j.ErrorID != entry.ErrorID {
				continue
			}
			if j.CanBeRetried(causes[entry.ErrorID]) {
				retries[j.Priority] = append(retries[j.Priority], QueuedJob{JobID: j.ID, ExeNum: j.NumExes})
				continue
			}
			recipeIDs = append(recipeIDs, j.RecipeID)
		}
		failed = len(updated)
		if failed == 0 {
			return nil
		}
		if err := m.cmds.repo.UpdateJobs(ctx, updated); err != nil {
			return err
		}
		return m.cmds.repo.DeleteQueue(ctx, dequeued)
	})
	if err != nil {
		return false, nil, errors.Wrap(job.EntityJob, "unable to fail jobs", err)
	}

	priorities := make([]int, 0, len(retries))
	for p := range retries {
		priorities = append(priorities, p)
	}
	sort.Ints(priorities)

	var next []messaging.Message
	numRetried := 0
	for _, p := range priorities {
		numRetried += len(retries[p])
		next = append(next, m.cmds.NewQueuedJobsMessages(retries[p], p, true)...)
	}
	next = append(next, m.cmds.recipeUpdates(recipeIDs, m.Ended)...)

	m.cmds.logger.Info("set %d of %d job(s) to FAILED, %d will be retried", failed, len(m.Jobs), numRetried)
	return true, next, nil
}

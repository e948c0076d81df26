package command

import (
	"context"
	"time"

	"github.com/raystack/scale/core/job"
	"github.com/raystack/scale/core/messaging"
	"github.com/raystack/scale/internal/errors"
)

type CompletedJob struct {
	JobID  int64     `json:"job_id"`
	ExeNum int       `json:"exe_num"`
	Output *job.Data `json:"output,omitempty"`
}

// CompletedJobs stores the output of finished executions.
type CompletedJobs struct {
	Ended time.Time      `json:"ended"`
	Jobs  []CompletedJob `json:"jobs"`

	cmds *Commands
}

func (c *Commands) NewCompletedJobsMessages(jobs []CompletedJob, ended time.Time) []messaging.Message {
	var messages []messaging.Message
	var current *CompletedJobs
	for _, j := range jobs {
		if current == nil || !current.CanFitMore() {
			current = &CompletedJobs{Ended: ended, cmds: c}
			messages = append(messages, current)
		}
		current.Jobs = append(current.Jobs, j)
	}
	return messages
}

func (*CompletedJobs) Type() string { return TypeCompletedJobs }

func (m *CompletedJobs) CanFitMore() bool {
	return len(m.Jobs) < MaxNum
}

func (m *CompletedJobs) Execute(ctx context.Context) (bool, []messaging.Message, error) {
	byID := make(map[int64]CompletedJob, len(m.Jobs))
	ids := make([]int64, 0, len(m.Jobs))
	for _, j := range m.Jobs {
		byID[j.JobID] = j
		ids = append(ids, j.JobID)
	}

	var recipeIDs []int64
	completed := 0
	err := m.cmds.repo.Transaction(ctx, func(ctx context.Context) error {
		jobs, err := m.cmds.repo.LockJobs(ctx, ids)
		if err != nil {
			return err
		}

		recipeIDs, completed = nil, 0
		var updated []*job.Job
		var dequeued []int64
		for _, j := range jobs {
			entry := byID[j.ID]
			if j.Complete(entry.ExeNum, entry.Output, m.Ended) {
				updated = append(updated, j)
				dequeued = append(dequeued, j.ID)
			}
			if j.NumExes == entry.ExeNum && j.Status == job.StatusCompleted {
				recipeIDs = append(recipeIDs, j.RecipeID)
			}
		}
		completed = len(updated)
		if completed == 0 {
			return nil
		}
		if err := m.cmds.repo.UpdateJobs(ctx, updated); err != nil {
			return err
		}
		return m.cmds.repo.DeleteQueue(ctx, dequeued)
	})
	if err != nil {
		return false, nil, errors.Wrap(job.EntityJob, "unable to complete jobs", err)
	}

	m.cmds.logger.Info("set %d of %d job(s) to COMPLETED", completed, len(m.Jobs))
	return true, m.cmds.recipeUpdates(recipeIDs, m.Ended), nil
}

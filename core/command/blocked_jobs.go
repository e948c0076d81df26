package command

import (
	"context"
	"time"

	"github.com/raystack/scale/core/job"
	"github.com/raystack/scale/core/messaging"
	"github.com/raystack/scale/internal/errors"
)

// BlockedJobs moves jobs whose parents cannot finish to BLOCKED.
type BlockedJobs struct {
	StatusChange time.Time `json:"status_change"`
	JobIDs       []int64   `json:"job_ids"`

	cmds *Commands
}

func (c *Commands) NewBlockedJobsMessages(jobIDs []int64, when time.Time) []messaging.Message {
	var messages []messaging.Message
	for _, ids := range chunk(uniqueIDs(jobIDs)) {
		messages = append(messages, &BlockedJobs{StatusChange: when, JobIDs: ids, cmds: c})
	}
	return messages
}

func (*BlockedJobs) Type() string { return TypeBlockedJobs }

func (m *BlockedJobs) CanFitMore() bool {
	return len(m.JobIDs) < MaxNum
}

func (m *BlockedJobs) Execute(ctx context.Context) (bool, []messaging.Message, error) {
	moved, recipeIDs, err := m.cmds.moveJobs(ctx, m.JobIDs, job.StatusBlocked, func(j *job.Job) bool {
		return j.Block(m.StatusChange)
	})
	if err != nil {
		return false, nil, errors.Wrap(job.EntityJob, "unable to block jobs", err)
	}

	m.cmds.logger.Info("set %d of %d job(s) to BLOCKED", moved, len(m.JobIDs))
	return true, m.cmds.NewUpdateRecipeMetricsMessages(recipeIDs), nil
}

// PendingJobs moves jobs whose parents may finish again back to PENDING.
type PendingJobs struct {
	StatusChange time.Time `json:"status_change"`
	JobIDs       []int64   `json:"job_ids"`

	cmds *Commands
}

func (c *Commands) NewPendingJobsMessages(jobIDs []int64, when time.Time) []messaging.Message {
	var messages []messaging.Message
	for _, ids := range chunk(uniqueIDs(jobIDs)) {
		messages = append(messages, &PendingJobs{StatusChange: when, JobIDs: ids, cmds: c})
	}
	return messages
}

func (*PendingJobs) Type() string { return TypePendingJobs }

func (m *PendingJobs) CanFitMore() bool {
	return len(m.JobIDs) < MaxNum
}

func (m *PendingJobs) Execute(ctx context.Context) (bool, []messaging.Message, error) {
	moved, recipeIDs, err := m.cmds.moveJobs(ctx, m.JobIDs, job.StatusPending, func(j *job.Job) bool {
		return j.Pend(m.StatusChange)
	})
	if err != nil {
		return false, nil, errors.Wrap(job.EntityJob, "unable to set jobs pending", err)
	}

	m.cmds.logger.Info("set %d of %d job(s) to PENDING", moved, len(m.JobIDs))
	return true, m.cmds.NewUpdateRecipeMetricsMessages(recipeIDs), nil
}

// moveJobs applies move to the locked jobs and returns how many changed and
// the recipes of every job that ends up in status.
func (c *Commands) moveJobs(ctx context.Context, ids []int64, status job.Status, move func(*job.Job) bool) (int, []int64, error) {
	var moved int
	var recipeIDs []int64
	err := c.repo.Transaction(ctx, func(ctx context.Context) error {
		jobs, err := c.repo.LockJobs(ctx, ids)
		if err != nil {
			return err
		}

		moved, recipeIDs = 0, nil
		var updated []*job.Job
		for _, j := range jobs {
			if move(j) {
				updated = append(updated, j)
			}
			if j.Status == status {
				recipeIDs = append(recipeIDs, j.RecipeID)
			}
		}
		moved = len(updated)
		if moved == 0 {
			return nil
		}
		return c.repo.UpdateJobs(ctx, updated)
	})
	return moved, uniqueIDs(recipeIDs), err
}

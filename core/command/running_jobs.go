package command

import (
	"context"
	"time"

	"github.com/raystack/scale/core/job"
	"github.com/raystack/scale/core/messaging"
	"github.com/raystack/scale/internal/errors"
)

type RunningJob struct {
	JobID  int64 `json:"job_id"`
	ExeNum int   `json:"exe_num"`
	NodeID int64 `json:"node_id"`
}

// RunningJobs records that the scheduler started jobs on cluster nodes.
type RunningJobs struct {
	Started time.Time    `json:"started"`
	Jobs    []RunningJob `json:"jobs"`

	cmds *Commands
}

func (c *Commands) NewRunningJobsMessages(jobs []RunningJob, started time.Time) []messaging.Message {
	var messages []messaging.Message
	var current *RunningJobs
	for _, j := range jobs {
		if current == nil || !current.CanFitMore() {
			current = &RunningJobs{Started: started, cmds: c}
			messages = append(messages, current)
		}
		current.Jobs = append(current.Jobs, j)
	}
	return messages
}

func (*RunningJobs) Type() string { return TypeRunningJobs }

func (m *RunningJobs) CanFitMore() bool {
	return len(m.Jobs) < MaxNum
}

func (m *RunningJobs) Execute(ctx context.Context) (bool, []messaging.Message, error) {
	byID := make(map[int64]RunningJob, len(m.Jobs))
	ids := make([]int64, 0, len(m.Jobs))
	for _, j := range m.Jobs {
		byID[j.JobID] = j
		ids = append(ids, j.JobID)
	}

	var recipeIDs []int64
	started := 0
	err := m.cmds.repo.Transaction(ctx, func(ctx context.Context) error {
		jobs, err := m.cmds.repo.LockJobs(ctx, ids)
		if err != nil {
			return err
		}

		recipeIDs, started = nil, 0
		var updated []*job.Job
		var dequeued []int64
		for _, j := range jobs {
			entry := byID[j.ID]
			if j.Run(entry.ExeNum, entry.NodeID, m.Started) {
				updated = append(updated, j)
				dequeued = append(dequeued, j.ID)
			}
			if j.NumExes == entry.ExeNum && j.Status == job.StatusRunning {
				recipeIDs = append(recipeIDs, j.RecipeID)
			}
		}
		started = len(updated)
		if started == 0 {
			return nil
		}
		if err := m.cmds.repo.UpdateJobs(ctx, updated); err != nil {
			return err
		}
		return m.cmds.repo.DeleteQueue(ctx, dequeued)
	})
	if err != nil {
		return false, nil, errors.Wrap(job.EntityJob, "unable to set jobs running", err)
	}

	m.cmds.logger.Info("set %d of %d job(s) to RUNNING", started, len(m.Jobs))
	return true, m.cmds.NewUpdateRecipeMetricsMessages(uniqueIDs(recipeIDs)), nil
}

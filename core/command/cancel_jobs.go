package command

import (
	"context"
	"time"

	"github.com/raystack/scale/core/job"
	"github.com/raystack/scale/core/messaging"
	"github.com/raystack/scale/internal/errors"
)

// CancelJobs cancels every listed job that is not finished yet.
type CancelJobs struct {
	When   time.Time `json:"when"`
	JobIDs []int64   `json:"job_ids"`

	cmds *Commands
}

func (c *Commands) NewCancelJobsMessages(jobIDs []int64, when time.Time) []messaging.Message {
	var messages []messaging.Message
	for _, ids := range chunk(uniqueIDs(jobIDs)) {
		messages = append(messages, &CancelJobs{When: when, JobIDs: ids, cmds: c})
	}
	return messages
}

func (*CancelJobs) Type() string { return TypeCancelJobs }

func (m *CancelJobs) CanFitMore() bool {
	return len(m.JobIDs) < MaxNum
}

func (m *CancelJobs) Execute(ctx context.Context) (bool, []messaging.Message, error) {
	var canceled, recipeIDs []int64
	err := m.cmds.repo.Transaction(ctx, func(ctx context.Context) error {
		jobs, err := m.cmds.repo.LockJobs(ctx, m.JobIDs)
		if err != nil {
			return err
		}

		canceled, recipeIDs = nil, nil
		var updated []*job.Job
		for _, j := range jobs {
			if j.CanBeCanceled() {
				j.Cancel(m.When)
				updated = append(updated, j)
				canceled = append(canceled, j.ID)
			}
			// jobs canceled by an earlier delivery still count, the follow
			// up messages must not depend on how often this ran
			if j.Status == job.StatusCanceled {
				recipeIDs = append(recipeIDs, j.RecipeID)
			}
		}
		if len(updated) == 0 {
			return nil
		}
		if err := m.cmds.repo.UpdateJobs(ctx, updated); err != nil {
			return err
		}
		return m.cmds.repo.DeleteQueue(ctx, canceled)
	})
	if err != nil {
		return false, nil, errors.Wrap(job.EntityJob, "unable to cancel jobs", err)
	}

	m.cmds.logger.Info("canceled %d of %d job(s)", len(canceled), len(m.JobIDs))
	return true, m.cmds.recipeUpdates(recipeIDs, m.When), nil
}

// recipeUpdates returns one update_recipes and one update_recipe_metrics
// message per chunk of distinct recipe ids. Zero ids are ignored.
func (c *Commands) recipeUpdates(recipeIDs []int64, when time.Time) []messaging.Message {
	ids := uniqueIDs(recipeIDs)
	messages := c.NewUpdateRecipesMessages(ids, when)
	return append(messages, c.NewUpdateRecipeMetricsMessages(ids)...)
}

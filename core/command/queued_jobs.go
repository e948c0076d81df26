package command

import (
	"context"
	"time"

	"github.com/raystack/scale/core/job"
	"github.com/raystack/scale/core/messaging"
	"github.com/raystack/scale/internal/errors"
)

type QueuedJob struct {
	JobID  int64 `json:"job_id"`
	ExeNum int   `json:"exe_num"`
}

// QueuedJobs puts jobs on the queue. An entry only applies while the job is
// still at the recorded exe num, which makes redelivered or outdated
// messages harmless.
type QueuedJobs struct {
	Priority int         `json:"priority"`
	Requeue  bool        `json:"requeue"`
	Jobs     []QueuedJob `json:"jobs"`

	cmds *Commands
}

func (c *Commands) NewQueuedJobs(priority int, requeue bool) *QueuedJobs {
	return &QueuedJobs{Priority: priority, Requeue: requeue, Jobs: []QueuedJob{}, cmds: c}
}

// NewQueuedJobsMessages spreads jobs over as many messages as needed.
func (c *Commands) NewQueuedJobsMessages(jobs []QueuedJob, priority int, requeue bool) []messaging.Message {
	var messages []messaging.Message
	var current *QueuedJobs
	for _, j := range jobs {
		if current == nil || !current.CanFitMore() {
			current = c.NewQueuedJobs(priority, requeue)
			messages = append(messages, current)
		}
		current.AddJob(j.JobID, j.ExeNum)
	}
	return messages
}

func (*QueuedJobs) Type() string { return TypeQueuedJobs }

func (m *QueuedJobs) CanFitMore() bool {
	return len(m.Jobs) < MaxNum
}

func (m *QueuedJobs) AddJob(jobID int64, exeNum int) {
	m.Jobs = append(m.Jobs, QueuedJob{JobID: jobID, ExeNum: exeNum})
}

func (m *QueuedJobs) Execute(ctx context.Context) (bool, []messaging.Message, error) {
	when := m.cmds.now()
	exeNums := make(map[int64]int, len(m.Jobs))
	ids := make([]int64, 0, len(m.Jobs))
	for _, j := range m.Jobs {
		exeNums[j.JobID] = j.ExeNum
		ids = append(ids, j.JobID)
	}

	var queued []*job.Job
	err := m.cmds.repo.Transaction(ctx, func(ctx context.Context) error {
		jobs, err := m.cmds.repo.LockJobs(ctx, ids)
		if err != nil {
			return err
		}

		queued = nil
		for _, j := range jobs {
			if !j.CanBeQueued(exeNums[j.ID], m.Requeue) {
				continue
			}
			if m.Priority > 0 {
				j.Priority = m.Priority
			}
			j.Queue(when)
			queued = append(queued, j)
		}
		if len(queued) == 0 {
			return nil
		}
		return m.cmds.enqueue(ctx, queued, m.Priority, when)
	})
	if err != nil {
		return false, nil, errors.Wrap(job.EntityJobQueue, "unable to queue jobs", err)
	}

	m.cmds.logger.Info("queued %d of %d job(s)", len(queued), len(m.Jobs))
	return true, nil, nil
}

// enqueue persists jobs that just moved to QUEUED together with their
// queue entries.
func (c *Commands) enqueue(ctx context.Context, jobs []*job.Job, priority int, when time.Time) error {
	typeIDs := make([]int64, len(jobs))
	for i, j := range jobs {
		typeIDs[i] = j.JobTypeID
	}
	jobTypes, err := c.repo.GetJobTypes(ctx, uniqueIDs(typeIDs))
	if err != nil {
		return err
	}

	entries := make([]*job.QueueEntry, len(jobs))
	for i, j := range jobs {
		entries[i] = &job.QueueEntry{
			JobID:     j.ID,
			JobTypeID: j.JobTypeID,
			RecipeID:  j.RecipeID,
			ExeNum:    j.NumExes,
			Priority:  j.QueuePriority(priority, jobTypes[j.JobTypeID]),
			Queued:    when,
		}
	}
	if err := c.repo.UpdateJobs(ctx, jobs); err != nil {
		return err
	}
	return c.repo.UpsertQueue(ctx, entries)
}

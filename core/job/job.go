package job

import (
	"time"
)

const (
	EntityJob      = "job"
	EntityJobType  = "jobType"
	EntityJobQueue = "jobQueue"
)

type Job struct {
	ID        int64
	JobTypeID int64
	EventID   int64

	RecipeID     int64
	RootRecipeID int64
	BatchID      int64
	NodeID       int64

	Status   Status
	NumExes  int
	MaxTries int
	Priority int
	ErrorID  int64

	Input  *Data
	Output *Data

	IsSuperseded        bool
	SupersededJobID     int64
	RootSupersededJobID int64
	Superseded          time.Time
	IsPublished         bool

	Queued           time.Time
	Started          time.Time
	Ended            time.Time
	LastStatusChange time.Time
	Created          time.Time
}

// HasInput is also the signal that a job has been through the input
// stage at least once, requeue relies on it.
func (j *Job) HasInput() bool {
	return j.Input != nil
}

func (j *Job) HasOutput() bool {
	return j.Output != nil
}

func (j *Job) InRecipe() bool {
	return j.RecipeID != 0
}

// CanBeQueued tells whether a queued_jobs entry recorded at exeNum may move
// this job onto the queue.
func (j *Job) CanBeQueued(exeNum int, requeue bool) bool {
	if j.NumExes != exeNum || j.IsSuperseded {
		return false
	}
	if j.Status.IsTerminal() || j.Status.IsActive() {
		return false
	}
	if !j.HasInput() {
		return false
	}
	if requeue && j.NumExes == 0 {
		return false
	}
	return true
}

func (j *Job) Queue(when time.Time) {
	j.NumExes++
	j.Status = StatusQueued
	j.Queued = when
	j.Started = time.Time{}
	j.Ended = time.Time{}
	j.NodeID = 0
	j.ErrorID = 0
	j.LastStatusChange = when
}

func (j *Job) CanBeCanceled() bool {
	return !j.Status.IsTerminal()
}

func (j *Job) Cancel(when time.Time) {
	j.Status = StatusCanceled
	j.LastStatusChange = when
}

// Block returns true when the status actually changed.
func (j *Job) Block(when time.Time) bool {
	if !j.canMoveBetweenPendingAndBlocked() || j.Status == StatusBlocked {
		return false
	}
	j.Status = StatusBlocked
	j.LastStatusChange = when
	return true
}

func (j *Job) Pend(when time.Time) bool {
	if !j.canMoveBetweenPendingAndBlocked() || j.Status == StatusPending {
		return false
	}
	j.Status = StatusPending
	j.LastStatusChange = when
	return true
}

// canceled jobs that never ran can still be revived by their recipe
func (j *Job) canMoveBetweenPendingAndBlocked() bool {
	if j.IsSuperseded {
		return false
	}
	switch j.Status {
	case StatusPending, StatusBlocked:
		return true
	case StatusCanceled:
		return j.NumExes == 0
	default:
		return false
	}
}

func (j *Job) Run(exeNum int, nodeID int64, when time.Time) bool {
	if j.NumExes != exeNum || j.Status != StatusQueued {
		return false
	}
	j.Status = StatusRunning
	j.NodeID = nodeID
	j.Started = when
	j.LastStatusChange = when
	return true
}

// IsExecuting reports whether exeNum is the live execution of this job.
func (j *Job) IsExecuting(exeNum int) bool {
	return j.NumExes == exeNum && j.Status.IsActive()
}

func (j *Job) Complete(exeNum int, output *Data, when time.Time) bool {
	if !j.IsExecuting(exeNum) {
		return false
	}
	j.Status = StatusCompleted
	j.Output = output
	j.Ended = when
	j.LastStatusChange = when
	return true
}

func (j *Job) Fail(exeNum int, errorID int64, when time.Time) bool {
	if !j.IsExecuting(exeNum) {
		return false
	}
	j.Status = StatusFailed
	j.ErrorID = errorID
	j.Ended = when
	j.LastStatusChange = when
	return true
}

func (j *Job) CanBeRetried(cause *Error) bool {
	return cause != nil && cause.ShouldBeRetried && j.NumExes < j.MaxTries
}

func (j *Job) Supersede(when time.Time) {
	j.IsSuperseded = true
	j.Superseded = when
}

func (j *Job) Unpublish() {
	j.IsPublished = false
}

// IsReadyForChildren means dependents may take this job's output.
func (j *Job) IsReadyForChildren() bool {
	return j.Status == StatusCompleted
}

// QueuePriority picks the priority for a job entering the queue.
func (j *Job) QueuePriority(requested int, jobType *JobType) int {
	switch {
	case requested > 0:
		return requested
	case j.Priority > 0:
		return j.Priority
	case jobType != nil:
		return jobType.Priority
	default:
		return 0
	}
}

// QueueEntry exists only while its job is QUEUED.
type QueueEntry struct {
	JobID     int64
	JobTypeID int64
	RecipeID  int64
	ExeNum    int
	Priority  int
	Queued    time.Time
}

// Error is a catalogued failure cause reported by the cluster scheduler.
type Error struct {
	ID              int64
	Name            string
	Category        string
	ShouldBeRetried bool
}

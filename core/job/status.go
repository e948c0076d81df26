package job

import (
	"strings"

	"github.com/raystack/scale/internal/errors"
)

const (
	StatusPending   Status = "PENDING"
	StatusBlocked   Status = "BLOCKED"
	StatusQueued    Status = "QUEUED"
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusCanceled  Status = "CANCELED"
)

// TerminalStatuses can never be queued again.
var TerminalStatuses = []Status{StatusCompleted, StatusCanceled}

type Status string

func StatusFromString(status string) (Status, error) {
	switch strings.ToUpper(status) {
	case string(StatusPending):
		return StatusPending, nil
	case string(StatusBlocked):
		return StatusBlocked, nil
	case string(StatusQueued):
		return StatusQueued, nil
	case string(StatusRunning):
		return StatusRunning, nil
	case string(StatusCompleted):
		return StatusCompleted, nil
	case string(StatusFailed):
		return StatusFailed, nil
	case string(StatusCanceled):
		return StatusCanceled, nil
	default:
		return "", errors.InvalidArgument(EntityJob, "invalid status for job "+status)
	}
}

func (s Status) String() string {
	return string(s)
}

func (s Status) IsTerminal() bool {
	for _, terminal := range TerminalStatuses {
		if s == terminal {
			return true
		}
	}
	return false
}

// IsActive reports a status owned by the cluster scheduler.
func (s Status) IsActive() bool {
	return s == StatusQueued || s == StatusRunning
}

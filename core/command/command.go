// Package command holds the command messages that drive jobs and recipes
// through their life cycle. Each message executes inside one store
// transaction and returns the messages that follow from it.
package command

import (
	"sort"
	"time"

	"github.com/odpf/salt/log"

	"github.com/raystack/scale/core/messaging"
)

// MaxNum caps the work carried by one batchable message.
const MaxNum = 100

const (
	TypeQueuedJobs           = "queued_jobs"
	TypeCancelJobs           = "cancel_jobs"
	TypeRunningJobs          = "running_jobs"
	TypeCompletedJobs        = "completed_jobs"
	TypeFailedJobs           = "failed_jobs"
	TypeBlockedJobs          = "blocked_jobs"
	TypePendingJobs          = "pending_jobs"
	TypeUpdateRecipes        = "update_recipes"
	TypeUpdateRecipeMetrics  = "update_recipe_metrics"
	TypeCreateRecipes        = "create_recipes"
	TypeSupersedeRecipeNodes = "supersede_recipe_nodes"
	TypeProcessRecipeInput   = "process_recipe_input"
)

// Commands binds command messages to the store they work on.
type Commands struct {
	repo   Repository
	logger log.Logger
	now    func() time.Time
}

func New(repo Repository, logger log.Logger) *Commands {
	return &Commands{
		repo:   repo,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the clock used for timestamps the messages set
// themselves.
func (c *Commands) WithClock(now func() time.Time) *Commands {
	c.now = now
	return c
}

func (c *Commands) Register(registry *messaging.Registry) error {
	factories := []struct {
		msgType string
		factory messaging.Factory
	}{
		{TypeQueuedJobs, func() messaging.Message { return &QueuedJobs{cmds: c} }},
		{TypeCancelJobs, func() messaging.Message { return &CancelJobs{cmds: c} }},
		{TypeRunningJobs, func() messaging.Message { return &RunningJobs{cmds: c} }},
		{TypeCompletedJobs, func() messaging.Message { return &CompletedJobs{cmds: c} }},
		{TypeFailedJobs, func() messaging.Message { return &FailedJobs{cmds: c} }},
		{TypeBlockedJobs, func() messaging.Message { return &BlockedJobs{cmds: c} }},
		{TypePendingJobs, func() messaging.Message { return &PendingJobs{cmds: c} }},
		{TypeUpdateRecipes, func() messaging.Message { return &UpdateRecipes{cmds: c} }},
		{TypeUpdateRecipeMetrics, func() messaging.Message { return &UpdateRecipeMetrics{cmds: c} }},
		{TypeCreateRecipes, func() messaging.Message { return &CreateRecipes{cmds: c} }},
		{TypeSupersedeRecipeNodes, func() messaging.Message { return &SupersedeRecipeNodes{cmds: c} }},
		{TypeProcessRecipeInput, func() messaging.Message { return &ProcessRecipeInput{cmds: c} }},
	}
	for _, f := range factories {
		if err := registry.Register(f.msgType, f.factory); err != nil {
			return err
		}
	}
	return nil
}

// storedTime drops the precision and location the store does not keep.
func storedTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// uniqueIDs returns the distinct non zero ids, sorted.
func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	unique := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id != 0 && !seen[id] {
			seen[id] = true
			unique = append(unique, id)
		}
	}
	sort.Slice(unique, func(i, j int) bool { return unique[i] < unique[j] })
	return unique
}

// chunk splits ids into slices of at most MaxNum.
func chunk(ids []int64) [][]int64 {
	var chunks [][]int64
	for len(ids) > MaxNum {
		chunks = append(chunks, ids[:MaxNum])
		ids = ids[MaxNum:]
	}
	if len(ids) > 0 {
		chunks = append(chunks, ids)
	}
	return chunks
}

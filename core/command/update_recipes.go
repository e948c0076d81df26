package command

import (
	"context"
	"fmt"
	"time"

	"github.com/raystack/scale/core/job"
	"github.com/raystack/scale/core/messaging"
	"github.com/raystack/scale/core/recipe"
	"github.com/raystack/scale/core/recipe/definition"
	"github.com/raystack/scale/internal/errors"
)

// UpdateRecipes brings recipes up to date with the state of their nodes:
// missing jobs are created, jobs are blocked or unblocked, jobs whose
// parents finished receive their input and completed recipes are marked.
type UpdateRecipes struct {
	// When stamps the status changes of the blocked and pending jobs.
	When      time.Time `json:"when"`
	RecipeIDs []int64   `json:"recipe_ids"`

	cmds *Commands
}

func (c *Commands) NewUpdateRecipesMessages(recipeIDs []int64, when time.Time) []messaging.Message {
	var messages []messaging.Message
	for _, ids := range chunk(uniqueIDs(recipeIDs)) {
		messages = append(messages, &UpdateRecipes{When: when, RecipeIDs: ids, cmds: c})
	}
	return messages
}

func (*UpdateRecipes) Type() string { return TypeUpdateRecipes }

func (m *UpdateRecipes) CanFitMore() bool {
	return len(m.RecipeIDs) < MaxNum
}

type recipeUpdate struct {
	blocked      []int64
	pending      []int64
	firstQueue   []QueuedJob
	subRecipes   []messaging.Message
	completed    []int64
	parents      []int64
	numCreated   int
	numWithInput int
	numBadInput  int
}

func (m *UpdateRecipes) Execute(ctx context.Context) (bool, []messaging.Message, error) {
	when := m.When
	if when.IsZero() {
		when = m.cmds.now()
	}

	var u recipeUpdate
	err := m.cmds.repo.Transaction(ctx, func(ctx context.Context) error {
		u = recipeUpdate{}
		recipes, err := m.cmds.repo.LockRecipes(ctx, m.RecipeIDs)
		if err != nil {
			return err
		}
		handlers, err := m.cmds.loadHandlers(ctx, recipes)
		if err != nil {
			return err
		}

		for _, h := range handlers {
			if err := m.update(ctx, h, when, &u); err != nil {
				return err
			}
		}

		var completed []*recipe.Recipe
		for _, h := range handlers {
			if h.CompleteIfDone(when) {
				completed = append(completed, h.Recipe)
				u.completed = append(u.completed, h.Recipe.ID)
				u.parents = append(u.parents, h.Recipe.RecipeID)
			}
		}
		if len(completed) == 0 {
			return nil
		}
		return m.cmds.repo.UpdateRecipes(ctx, completed)
	})
	if err != nil {
		return false, nil, errors.Wrap(recipe.EntityRecipe, "unable to update recipes", err)
	}

	var next []messaging.Message
	next = append(next, m.cmds.NewBlockedJobsMessages(u.blocked, when)...)
	next = append(next, m.cmds.NewPendingJobsMessages(u.pending, when)...)
	next = append(next, m.cmds.NewQueuedJobsMessages(u.firstQueue, 0, false)...)
	next = append(next, u.subRecipes...)
	// a finished sub-recipe may unblock the nodes after it in its parent
	next = append(next, m.cmds.NewUpdateRecipesMessages(u.parents, when)...)
	next = append(next, m.cmds.NewUpdateRecipeMetricsMessages(u.completed)...)

	m.cmds.logger.Info("created %d job(s) for %d recipe(s)", u.numCreated, len(m.RecipeIDs))
	m.cmds.logger.Info("found %d job(s) that should transition to BLOCKED", len(u.blocked))
	m.cmds.logger.Info("found %d job(s) that should transition to PENDING", len(u.pending))
	m.cmds.logger.Info("found %d job(s) that received their input", u.numWithInput)
	m.cmds.logger.Info("found %d job(s) that are ready to be queued", len(u.firstQueue))
	if u.numBadInput > 0 {
		m.cmds.logger.Warn("found %d job(s) with invalid input", u.numBadInput)
	}
	return true, next, nil
}

func (m *UpdateRecipes) update(ctx context.Context, h *recipe.Handler, when time.Time, u *recipeUpdate) error {
	r := h.Recipe
	jobTypes, err := m.cmds.repo.GetJobTypesByKey(ctx, h.Definition().JobTypeKeys())
	if err != nil {
		return err
	}

	numCreated := len(h.JobsToCreate())
	if err := m.createJobs(ctx, h, jobTypes, when); err != nil {
		return err
	}

	for _, j := range h.BlockedJobs() {
		u.blocked = append(u.blocked, j.ID)
	}
	for _, j := range h.PendingJobs() {
		u.pending = append(u.pending, j.ID)
	}

	withInput, err := h.JobsReadyForInput(definition.JobTypes(jobTypes))
	if err != nil {
		var multi *errors.MultiError
		if !errors.As(err, &multi) {
			return err
		}
		u.numBadInput += multi.Len()
		m.cmds.logger.Warn("recipe %d has jobs with invalid input: %s", r.ID, err)
	}
	if len(withInput) > 0 {
		if err := m.cmds.repo.UpdateJobs(ctx, withInput); err != nil {
			return err
		}
		u.numWithInput += len(withInput)
	}

	for _, j := range h.JobsReadyForFirstQueue() {
		u.firstQueue = append(u.firstQueue, QueuedJob{JobID: j.ID, ExeNum: j.NumExes})
	}

	var subs []SubRecipe
	for _, sub := range h.SubRecipesToCreate() {
		subs = append(subs, SubRecipe{
			RecipeTypeName:   sub.Node.RecipeTypeName,
			RecipeTypeRevNum: sub.Node.RecipeTypeRevision,
			NodeName:         sub.Node.Name,
			ProcessInput:     sub.ParentsReady,
		})
	}
	if len(subs) > 0 {
		u.subRecipes = append(u.subRecipes, m.cmds.NewSubRecipesMessages(r, subs, nil)...)
	}
	u.numCreated += numCreated
	return nil
}

// createJobs creates the jobs of nodes that have none yet. A job replacing
// the job at the same node of the superseded recipe is linked to it.
func (m *UpdateRecipes) createJobs(ctx context.Context, h *recipe.Handler, jobTypes map[job.Key]*job.JobType, when time.Time) error {
	nodes := h.JobsToCreate()
	if len(nodes) == 0 {
		return nil
	}
	r := h.Recipe

	superseded := map[string]*job.Job{}
	if r.SupersededRecipeID != 0 {
		oldNodes, err := m.cmds.repo.GetRecipeNodes(ctx, []int64{r.SupersededRecipeID})
		if err != nil {
			return err
		}
		oldJobs, _, err := m.cmds.nodeTargets(ctx, oldNodes)
		if err != nil {
			return err
		}
		for _, n := range oldNodes {
			if j, ok := oldJobs[n.JobID]; ok {
				superseded[n.NodeName] = j
			}
		}
	}

	jobs := make([]*job.Job, len(nodes))
	for i, node := range nodes {
		jt, ok := jobTypes[node.JobTypeKey()]
		if !ok {
			return errors.NotFound(job.EntityJobType,
				fmt.Sprintf("job type %s of node %s not found", node.JobTypeKey(), node.Name))
		}
		j := &job.Job{
			JobTypeID:        jt.ID,
			EventID:          r.EventID,
			RecipeID:         r.ID,
			RootRecipeID:     rootOf(r),
			BatchID:          r.BatchID,
			Status:           job.StatusPending,
			MaxTries:         jt.MaxTries,
			LastStatusChange: when,
			Created:          when,
		}
		if old, ok := superseded[node.Name]; ok {
			j.SupersededJobID = old.ID
			j.RootSupersededJobID = old.RootSupersededJobID
			if j.RootSupersededJobID == 0 {
				j.RootSupersededJobID = old.ID
			}
		}
		jobs[i] = j
	}
	if err := m.cmds.repo.CreateJobs(ctx, jobs); err != nil {
		return err
	}

	recipeNodes := make([]*recipe.Node, len(nodes))
	for i, node := range nodes {
		recipeNodes[i] = &recipe.Node{RecipeID: r.ID, NodeName: node.Name, JobID: jobs[i].ID, IsOriginal: true}
		h.AddJob(node.Name, jobs[i])
	}
	return m.cmds.repo.CreateRecipeNodes(ctx, recipeNodes)
}

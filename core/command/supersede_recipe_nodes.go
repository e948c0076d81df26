package command

import (
	"context"
	"time"

	"github.com/raystack/scale/core/job"
	"github.com/raystack/scale/core/messaging"
	"github.com/raystack/scale/core/recipe"
	"github.com/raystack/scale/internal/errors"
)

// SupersedeRecipeNodes supersedes and unpublishes the jobs and sub-recipes
// at the named nodes of superseded recipes. Recursive entries carry on into
// the whole subtree of a sub-recipe.
type SupersedeRecipeNodes struct {
	When      time.Time `json:"when"`
	RecipeIDs []int64   `json:"recipe_ids"`

	SupersedeAll        bool     `json:"supersede_all"`
	SupersedeJobs       []string `json:"supersede_jobs,omitempty"`
	SupersedeSubRecipes []string `json:"supersede_subrecipes,omitempty"`
	UnpublishAll        bool     `json:"unpublish_all"`
	UnpublishJobs       []string `json:"unpublish_jobs,omitempty"`
	SupersedeRecursive  []string `json:"supersede_recursive,omitempty"`
	UnpublishRecursive  []string `json:"unpublish_recursive,omitempty"`

	cmds *Commands
}

// NewSupersedeRecipeNodesMessages applies the node selection of nodes to
// recipeIDs.
func (c *Commands) NewSupersedeRecipeNodesMessages(recipeIDs []int64, when time.Time, nodes SupersedeRecipeNodes) []messaging.Message {
	var messages []messaging.Message
	for _, ids := range chunk(uniqueIDs(recipeIDs)) {
		m := nodes
		m.When = when
		m.RecipeIDs = ids
		m.cmds = c
		messages = append(messages, &m)
	}
	return messages
}

func (*SupersedeRecipeNodes) Type() string { return TypeSupersedeRecipeNodes }

func (m *SupersedeRecipeNodes) CanFitMore() bool {
	return len(m.RecipeIDs) < MaxNum
}

func (m *SupersedeRecipeNodes) isEmpty() bool {
	return !m.SupersedeAll && !m.UnpublishAll && len(m.SupersedeJobs) == 0 && len(m.SupersedeSubRecipes) == 0 &&
		len(m.UnpublishJobs) == 0 && len(m.SupersedeRecursive) == 0 && len(m.UnpublishRecursive) == 0
}

func selects(all bool, names []string, name string) bool {
	if all {
		return true
	}
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

func (m *SupersedeRecipeNodes) Execute(ctx context.Context) (bool, []messaging.Message, error) {
	var canceled, supersedeTree, unpublishTree, bothTree []int64
	err := m.cmds.repo.Transaction(ctx, func(ctx context.Context) error {
		canceled, supersedeTree, unpublishTree, bothTree = nil, nil, nil, nil
		nodes, err := m.cmds.repo.GetRecipeNodes(ctx, m.RecipeIDs)
		if err != nil {
			return err
		}
		jobsByID, subRecipesByID, err := m.cmds.nodeTargets(ctx, nodes)
		if err != nil {
			return err
		}

		changed := map[int64]*job.Job{}
		var supersededRecipes []int64
		for _, n := range nodes {
			if j, ok := jobsByID[n.JobID]; ok {
				if selects(m.SupersedeAll, m.SupersedeJobs, n.NodeName) {
					if !j.IsSuperseded {
						j.Supersede(m.When)
						changed[j.ID] = j
					}
					canceled = append(canceled, j.ID)
				}
				if selects(m.UnpublishAll, m.UnpublishJobs, n.NodeName) && j.IsPublished {
					j.Unpublish()
					changed[j.ID] = j
				}
				continue
			}

			sub, ok := subRecipesByID[n.SubRecipeID]
			if !ok {
				continue
			}
			if selects(m.SupersedeAll, m.SupersedeSubRecipes, n.NodeName) && sub.Supersede(m.When) {
				supersededRecipes = append(supersededRecipes, sub.ID)
			}
			supersede := selects(m.SupersedeAll, m.SupersedeRecursive, n.NodeName)
			unpublish := selects(m.UnpublishAll, m.UnpublishRecursive, n.NodeName)
			switch {
			case supersede && unpublish:
				bothTree = append(bothTree, sub.ID)
			case supersede:
				supersedeTree = append(supersedeTree, sub.ID)
			case unpublish:
				unpublishTree = append(unpublishTree, sub.ID)
			}
		}

		if len(changed) > 0 {
			jobs := make([]*job.Job, 0, len(changed))
			for _, n := range nodes {
				if j, ok := changed[n.JobID]; ok {
					jobs = append(jobs, j)
					delete(changed, n.JobID)
				}
			}
			if err := m.cmds.repo.UpdateJobs(ctx, jobs); err != nil {
				return err
			}
		}
		if len(supersededRecipes) == 0 {
			return nil
		}
		return m.cmds.repo.SupersedeRecipes(ctx, uniqueIDs(supersededRecipes), m.When)
	})
	if err != nil {
		return false, nil, errors.Wrap(recipe.EntityRecipeNode, "unable to supersede recipe nodes", err)
	}

	next := m.cmds.NewCancelJobsMessages(canceled, m.When)
	next = append(next, m.cmds.NewSupersedeRecipeNodesMessages(bothTree, m.When,
		SupersedeRecipeNodes{SupersedeAll: true, UnpublishAll: true})...)
	next = append(next, m.cmds.NewSupersedeRecipeNodesMessages(supersedeTree, m.When,
		SupersedeRecipeNodes{SupersedeAll: true})...)
	next = append(next, m.cmds.NewSupersedeRecipeNodesMessages(unpublishTree, m.When,
		SupersedeRecipeNodes{UnpublishAll: true})...)

	m.cmds.logger.Info("superseded %d job(s) in %d recipe(s)", len(uniqueIDs(canceled)), len(m.RecipeIDs))
	return true, next, nil
}

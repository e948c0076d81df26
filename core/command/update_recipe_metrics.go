package command

import (
	"context"

	"github.com/raystack/scale/core/job"
	"github.com/raystack/scale/core/messaging"
	"github.com/raystack/scale/core/recipe"
	"github.com/raystack/scale/internal/errors"
)

// UpdateRecipeMetrics recounts the jobs and sub-recipes of recipes by
// status. Changes bubble up to the recipes containing them.
type UpdateRecipeMetrics struct {
	RecipeIDs []int64 `json:"recipe_ids"`

	cmds *Commands
}

func (c *Commands) NewUpdateRecipeMetricsMessages(recipeIDs []int64) []messaging.Message {
	var messages []messaging.Message
	for _, ids := range chunk(uniqueIDs(recipeIDs)) {
		messages = append(messages, &UpdateRecipeMetrics{RecipeIDs: ids, cmds: c})
	}
	return messages
}

func (*UpdateRecipeMetrics) Type() string { return TypeUpdateRecipeMetrics }

func (m *UpdateRecipeMetrics) CanFitMore() bool {
	return len(m.RecipeIDs) < MaxNum
}

func (m *UpdateRecipeMetrics) Execute(ctx context.Context) (bool, []messaging.Message, error) {
	var parents []int64
	err := m.cmds.repo.Transaction(ctx, func(ctx context.Context) error {
		recipes, err := m.cmds.repo.LockRecipes(ctx, m.RecipeIDs)
		if err != nil {
			return err
		}
		nodes, err := m.cmds.repo.GetRecipeNodes(ctx, m.RecipeIDs)
		if err != nil {
			return err
		}
		jobsByID, subRecipesByID, err := m.cmds.nodeTargets(ctx, nodes)
		if err != nil {
			return err
		}

		parents = nil
		for _, r := range recipes {
			var jobs []*job.Job
			var subRecipes []*recipe.Recipe
			for _, n := range nodes {
				if n.RecipeID != r.ID {
					continue
				}
				if j, ok := jobsByID[n.JobID]; ok {
					jobs = append(jobs, j)
				}
				if sub, ok := subRecipesByID[n.SubRecipeID]; ok {
					subRecipes = append(subRecipes, sub)
				}
			}
			r.Metrics = recipe.ComputeMetrics(jobs, subRecipes)
			parents = append(parents, r.RecipeID)
		}
		if len(recipes) == 0 {
			return nil
		}
		return m.cmds.repo.UpdateRecipes(ctx, recipes)
	})
	if err != nil {
		return false, nil, errors.Wrap(recipe.EntityRecipe, "unable to update recipe metrics", err)
	}

	m.cmds.logger.Info("updated metrics of %d recipe(s)", len(m.RecipeIDs))
	return true, m.cmds.NewUpdateRecipeMetricsMessages(parents), nil
}

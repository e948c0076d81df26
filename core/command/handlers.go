package command

import (
	"context"
	"fmt"

	"github.com/raystack/scale/core/job"
	"github.com/raystack/scale/core/recipe"
	"github.com/raystack/scale/internal/errors"
)

// loadHandlers builds a handler for every recipe from its definition and
// the jobs and sub-recipes its nodes point at.
func (c *Commands) loadHandlers(ctx context.Context, recipes []*recipe.Recipe) ([]*recipe.Handler, error) {
	if len(recipes) == 0 {
		return nil, nil
	}

	recipeIDs := make([]int64, len(recipes))
	revIDs := make([]int64, len(recipes))
	for i, r := range recipes {
		recipeIDs[i] = r.ID
		revIDs[i] = r.RecipeTypeRevID
	}
	revisions, err := c.repo.GetRevisions(ctx, uniqueIDs(revIDs))
	if err != nil {
		return nil, err
	}

	nodes, err := c.repo.GetRecipeNodes(ctx, recipeIDs)
	if err != nil {
		return nil, err
	}
	jobsByID, subRecipesByID, err := c.nodeTargets(ctx, nodes)
	if err != nil {
		return nil, err
	}

	nodesByRecipe := map[int64][]*recipe.Node{}
	for _, n := range nodes {
		nodesByRecipe[n.RecipeID] = append(nodesByRecipe[n.RecipeID], n)
	}

	handlers := make([]*recipe.Handler, 0, len(recipes))
	for _, r := range recipes {
		rev, ok := revisions[r.RecipeTypeRevID]
		if !ok {
			return nil, errors.NotFound(recipe.EntityRecipeTypeRev,
				fmt.Sprintf("revision %d of recipe %d not found", r.RecipeTypeRevID, r.ID))
		}

		jobs := map[string]*job.Job{}
		subRecipes := map[string]*recipe.Recipe{}
		for _, n := range nodesByRecipe[r.ID] {
			if j, ok := jobsByID[n.JobID]; ok {
				jobs[n.NodeName] = j
			}
			if sub, ok := subRecipesByID[n.SubRecipeID]; ok {
				subRecipes[n.NodeName] = sub
			}
		}

		h, err := recipe.NewHandler(r, rev.Definition, jobs, subRecipes)
		if err != nil {
			return nil, err
		}
		handlers = append(handlers, h)
	}
	return handlers, nil
}

// nodeTargets fetches the jobs and sub-recipes referenced by nodes.
func (c *Commands) nodeTargets(ctx context.Context, nodes []*recipe.Node) (map[int64]*job.Job, map[int64]*recipe.Recipe, error) {
	var jobIDs, subRecipeIDs []int64
	for _, n := range nodes {
		jobIDs = append(jobIDs, n.JobID)
		subRecipeIDs = append(subRecipeIDs, n.SubRecipeID)
	}

	jobsByID := map[int64]*job.Job{}
	if ids := uniqueIDs(jobIDs); len(ids) > 0 {
		jobs, err := c.repo.GetJobs(ctx, ids)
		if err != nil {
			return nil, nil, err
		}
		for _, j := range jobs {
			jobsByID[j.ID] = j
		}
	}

	subRecipesByID := map[int64]*recipe.Recipe{}
	if ids := uniqueIDs(subRecipeIDs); len(ids) > 0 {
		subRecipes, err := c.repo.GetRecipes(ctx, ids)
		if err != nil {
			return nil, nil, err
		}
		for _, r := range subRecipes {
			subRecipesByID[r.ID] = r
		}
	}
	return jobsByID, subRecipesByID, nil
}

// rootOf returns the top level recipe of r.
func rootOf(r *recipe.Recipe) int64 {
	if r.RootRecipeID != 0 {
		return r.RootRecipeID
	}
	return r.ID
}

// rootSupersededOf returns the first recipe of the supersede chain r is in.
func rootSupersededOf(r *recipe.Recipe) int64 {
	if r.RootSupersededRecipeID != 0 {
		return r.RootSupersededRecipeID
	}
	return r.ID
}

package command

import (
	"context"
	"time"

	"github.com/raystack/scale/core/messaging"
	"github.com/raystack/scale/core/recipe"
	"github.com/raystack/scale/core/recipe/definition"
	"github.com/raystack/scale/internal/errors"
)

// ProcessRecipeInput gives sub-recipes their input, taken from the recipe
// containing them, and then lets every recipe with input update.
type ProcessRecipeInput struct {
	When      time.Time `json:"when"`
	RecipeIDs []int64   `json:"recipe_ids"`

	cmds *Commands
}

func (c *Commands) NewProcessRecipeInputMessages(recipeIDs []int64, when time.Time) []messaging.Message {
	var messages []messaging.Message
	for _, ids := range chunk(uniqueIDs(recipeIDs)) {
		messages = append(messages, &ProcessRecipeInput{When: when, RecipeIDs: ids, cmds: c})
	}
	return messages
}

func (*ProcessRecipeInput) Type() string { return TypeProcessRecipeInput }

func (m *ProcessRecipeInput) CanFitMore() bool {
	return len(m.RecipeIDs) < MaxNum
}

func (m *ProcessRecipeInput) Execute(ctx context.Context) (bool, []messaging.Message, error) {
	var ready []int64
	err := m.cmds.repo.Transaction(ctx, func(ctx context.Context) error {
		ready = nil
		recipes, err := m.cmds.repo.LockRecipes(ctx, m.RecipeIDs)
		if err != nil {
			return err
		}

		var waiting []*recipe.Recipe
		for _, r := range recipes {
			if r.HasInput() {
				ready = append(ready, r.ID)
			} else if r.IsSubRecipe() {
				waiting = append(waiting, r)
			}
		}
		if len(waiting) == 0 {
			return nil
		}

		updated, err := m.inputFromParents(ctx, waiting)
		if err != nil {
			return err
		}
		if len(updated) == 0 {
			return nil
		}
		for _, r := range updated {
			ready = append(ready, r.ID)
		}
		return m.cmds.repo.UpdateRecipes(ctx, updated)
	})
	if err != nil {
		return false, nil, errors.Wrap(recipe.EntityRecipe, "unable to process recipe input", err)
	}

	m.cmds.logger.Info("processed input of %d of %d recipe(s)", len(ready), len(m.RecipeIDs))
	return true, m.cmds.NewUpdateRecipesMessages(ready, m.When), nil
}

// inputFromParents sets the input of sub-recipes whose node in the parent
// recipe is ready and returns them. Input the sub-recipe definition rejects
// is logged and left unset.
func (m *ProcessRecipeInput) inputFromParents(ctx context.Context, subRecipes []*recipe.Recipe) ([]*recipe.Recipe, error) {
	var parentIDs, revIDs []int64
	for _, r := range subRecipes {
		parentIDs = append(parentIDs, r.RecipeID)
		revIDs = append(revIDs, r.RecipeTypeRevID)
	}
	parents, err := m.cmds.repo.GetRecipes(ctx, uniqueIDs(parentIDs))
	if err != nil {
		return nil, err
	}
	handlers, err := m.cmds.loadHandlers(ctx, parents)
	if err != nil {
		return nil, err
	}
	handlerByRecipe := make(map[int64]*recipe.Handler, len(handlers))
	for _, h := range handlers {
		handlerByRecipe[h.Recipe.ID] = h
	}

	parentNodes, err := m.cmds.repo.GetRecipeNodes(ctx, uniqueIDs(parentIDs))
	if err != nil {
		return nil, err
	}
	nodeNames := map[int64]string{}
	for _, n := range parentNodes {
		if n.SubRecipeID != 0 {
			nodeNames[n.SubRecipeID] = n.NodeName
		}
	}

	revisions, err := m.cmds.repo.GetRevisions(ctx, uniqueIDs(revIDs))
	if err != nil {
		return nil, err
	}

	var updated []*recipe.Recipe
	for _, r := range subRecipes {
		h, ok := handlerByRecipe[r.RecipeID]
		name, named := nodeNames[r.ID]
		rev, found := revisions[r.RecipeTypeRevID]
		if !ok || !named || !found {
			m.cmds.logger.Warn("sub-recipe %d is not linked to its recipe %d", r.ID, r.RecipeID)
			continue
		}
		input, ready := h.NodeInput(name)
		if !ready {
			continue
		}

		jobTypes, err := m.cmds.repo.GetJobTypesByKey(ctx, rev.Definition.JobTypeKeys())
		if err != nil {
			return nil, err
		}
		if _, err := rev.Definition.ValidateData(input, definition.JobTypes(jobTypes)); err != nil {
			if !errors.IsErrorType(err, errors.ErrInvalidData) {
				return nil, err
			}
			m.cmds.logger.Warn("invalid input for sub-recipe %d: %s", r.ID, err)
			continue
		}
		r.Input = input
		updated = append(updated, r)
	}
	return updated, nil
}

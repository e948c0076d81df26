package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"gorm.io/gorm"

	"github.com/raystack/scale/core/recipe"
	"github.com/raystack/scale/internal/errors"
)

func (s *Store) LockRecipes(ctx context.Context, ids []int64) ([]*recipe.Recipe, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return s.findRecipes(s.locked(ctx).Where("id IN ?", ids), "unable to lock recipes")
}

func (s *Store) LockLatestRecipes(ctx context.Context, rootIDs []int64) ([]*recipe.Recipe, error) {
	if len(rootIDs) == 0 {
		return nil, nil
	}
	query := s.locked(ctx).
		Where("is_superseded = ?", false).
		Where("(id IN ? OR root_superseded_recipe_id IN ?)", rootIDs, rootIDs)
	return s.findRecipes(query, "unable to lock latest recipes")
}

func (s *Store) GetRecipes(ctx context.Context, ids []int64) ([]*recipe.Recipe, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return s.findRecipes(s.conn(ctx).Where("id IN ?", ids), "unable to get recipes")
}

func (s *Store) GetRecipesBySupersededRoot(ctx context.Context, rootIDs []int64, eventID int64) ([]*recipe.Recipe, error) {
	if len(rootIDs) == 0 {
		return nil, nil
	}
	query := s.conn(ctx).Where("root_superseded_recipe_id IN ? AND event_id = ?", rootIDs, eventID)
	return s.findRecipes(query, "unable to get recipes")
}

func (*Store) findRecipes(query *gorm.DB, msg string) ([]*recipe.Recipe, error) {
	var rows []Recipe
	if err := query.Order("id").Find(&rows).Error; err != nil {
		return nil, errors.InternalError(recipe.EntityRecipe, msg, err)
	}
	recipes := make([]*recipe.Recipe, len(rows))
	for i, row := range rows {
		r, err := row.toRecipe()
		if err != nil {
			return nil, errors.InternalError(recipe.EntityRecipe, "unable to read recipe", err)
		}
		recipes[i] = r
	}
	return recipes, nil
}

// CreateRecipes inserts the recipes and sets their ids.
func (s *Store) CreateRecipes(ctx context.Context, recipes []*recipe.Recipe) error {
	if len(recipes) == 0 {
		return nil
	}
	rows := make([]Recipe, len(recipes))
	for i, r := range recipes {
		row, err := fromRecipe(r)
		if err != nil {
			return errors.InternalError(recipe.EntityRecipe, "unable to convert recipe", err)
		}
		rows[i] = row
	}
	if err := s.conn(ctx).Create(&rows).Error; err != nil {
		return errors.InternalError(recipe.EntityRecipe, "unable to create recipes", err)
	}
	for i := range recipes {
		recipes[i].ID = rows[i].ID
	}
	return nil
}

func (s *Store) UpdateRecipes(ctx context.Context, recipes []*recipe.Recipe) error {
	for _, r := range recipes {
		row, err := fromRecipe(r)
		if err != nil {
			return errors.InternalError(recipe.EntityRecipe, "unable to convert recipe", err)
		}
		if err := s.conn(ctx).Save(&row).Error; err != nil {
			return errors.InternalError(recipe.EntityRecipe, "unable to update recipe", err)
		}
	}
	return nil
}

func (s *Store) SupersedeRecipes(ctx context.Context, ids []int64, when time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	err := s.conn(ctx).Model(&Recipe{}).
		Where("id IN ? AND is_superseded = ?", ids, false).
		Updates(map[string]any{"is_superseded": true, "superseded": when}).Error
	if err != nil {
		return errors.InternalError(recipe.EntityRecipe, "unable to supersede recipes", err)
	}
	return nil
}

func (s *Store) GetRecipeNodes(ctx context.Context, recipeIDs []int64) ([]*recipe.Node, error) {
	if len(recipeIDs) == 0 {
		return nil, nil
	}
	var rows []RecipeNode
	if err := s.conn(ctx).Where("recipe_id IN ?", recipeIDs).Order("id").Find(&rows).Error; err != nil {
		return nil, errors.InternalError(recipe.EntityRecipeNode, "unable to get recipe nodes", err)
	}
	nodes := make([]*recipe.Node, len(rows))
	for i, row := range rows {
		nodes[i] = row.toRecipeNode()
	}
	return nodes, nil
}

func (s *Store) CreateRecipeNodes(ctx context.Context, nodes []*recipe.Node) error {
	if len(nodes) == 0 {
		return nil
	}
	rows := make([]RecipeNode, len(nodes))
	for i, n := range nodes {
		rows[i] = fromRecipeNode(n)
	}
	if err := s.conn(ctx).Create(&rows).Error; err != nil {
		return errors.InternalError(recipe.EntityRecipeNode, "unable to create recipe nodes", err)
	}
	for i := range nodes {
		nodes[i].ID = rows[i].ID
	}
	return nil
}

// CreateRevision stores a new revision of a recipe type.
func (s *Store) CreateRevision(ctx context.Context, rev *recipe.TypeRevision) error {
	raw, err := rev.Definition.MarshalJSON()
	if err != nil {
		return errors.InternalError(recipe.EntityRecipeTypeRev, "unable to convert definition", err)
	}
	row := RecipeTypeRevision{Name: rev.Name, RevisionNum: rev.RevisionNum, Definition: raw}
	if err := s.conn(ctx).Create(&row).Error; err != nil {
		return errors.InternalError(recipe.EntityRecipeTypeRev,
			fmt.Sprintf("unable to create revision %d of %s", rev.RevisionNum, rev.Name), err)
	}
	rev.ID = row.ID
	return nil
}

// GetRevision returns a revision by recipe type name and number. Revisions
// never change, parsed definitions are cached.
func (s *Store) GetRevision(ctx context.Context, name string, revisionNum int) (*recipe.TypeRevision, error) {
	key := fmt.Sprintf("%s:%d", name, revisionNum)
	if cached, ok := s.revisions.Get(key); ok {
		return cached.(*recipe.TypeRevision), nil
	}

	var row RecipeTypeRevision
	err := s.conn(ctx).Where("name = ? AND revision_num = ?", name, revisionNum).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NotFound(recipe.EntityRecipeTypeRev,
				fmt.Sprintf("revision %d of recipe type %s not found", revisionNum, name))
		}
		return nil, errors.InternalError(recipe.EntityRecipeTypeRev, "unable to get revision", err)
	}
	return s.cacheRevision(row)
}

func (s *Store) GetRevisions(ctx context.Context, ids []int64) (map[int64]*recipe.TypeRevision, error) {
	revisions := map[int64]*recipe.TypeRevision{}
	var missing []int64
	for _, id := range ids {
		if cached, ok := s.revisions.Get(fmt.Sprintf("id:%d", id)); ok {
			revisions[id] = cached.(*recipe.TypeRevision)
			continue
		}
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return revisions, nil
	}

	var rows []RecipeTypeRevision
	if err := s.conn(ctx).Where("id IN ?", missing).Find(&rows).Error; err != nil {
		return nil, errors.InternalError(recipe.EntityRecipeTypeRev, "unable to get revisions", err)
	}
	for _, row := range rows {
		rev, err := s.cacheRevision(row)
		if err != nil {
			return nil, err
		}
		revisions[rev.ID] = rev
	}
	return revisions, nil
}

func (s *Store) cacheRevision(row RecipeTypeRevision) (*recipe.TypeRevision, error) {
	rev, err := row.toTypeRevision()
	if err != nil {
		return nil, errors.Wrap(recipe.EntityRecipeTypeRev,
			fmt.Sprintf("stored revision %d of %s is invalid", row.RevisionNum, row.Name), err)
	}
	s.revisions.Set(fmt.Sprintf("%s:%d", rev.Name, rev.RevisionNum), rev, cache.DefaultExpiration)
	s.revisions.Set(fmt.Sprintf("id:%d", rev.ID), rev, cache.DefaultExpiration)
	return rev, nil
}

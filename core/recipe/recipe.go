package recipe

import (
	"time"

	"github.com/raystack/scale/core/job"
	"github.com/raystack/scale/core/recipe/definition"
)

const (
	EntityRecipe        = "recipe"
	EntityRecipeNode    = "recipeNode"
	EntityRecipeTypeRev = "recipeTypeRevision"
)

type Recipe struct {
	ID              int64
	RecipeTypeName  string
	RecipeTypeRevID int64
	RevisionNum     int
	EventID         int64
	BatchID         int64

	// RecipeID is the parent recipe of a sub-recipe.
	RecipeID     int64
	RootRecipeID int64

	IsSuperseded           bool
	Superseded             time.Time
	SupersededRecipeID     int64
	RootSupersededRecipeID int64

	Input *job.Data

	IsCompleted bool
	Completed   time.Time

	Metrics Metrics
	Created time.Time
}

func (r *Recipe) HasInput() bool {
	return r.Input != nil
}

func (r *Recipe) IsSubRecipe() bool {
	return r.RecipeID != 0
}

// Supersede returns false if the recipe was already superseded.
func (r *Recipe) Supersede(when time.Time) bool {
	if r.IsSuperseded {
		return false
	}
	r.IsSuperseded = true
	r.Superseded = when
	return true
}

func (r *Recipe) Complete(when time.Time) bool {
	if r.IsCompleted {
		return false
	}
	r.IsCompleted = true
	r.Completed = when
	return true
}

// Metrics counts the jobs and sub-recipes of a recipe.
type Metrics struct {
	JobsTotal     int
	JobsPending   int
	JobsBlocked   int
	JobsQueued    int
	JobsRunning   int
	JobsFailed    int
	JobsCompleted int
	JobsCanceled  int

	SubRecipesTotal     int
	SubRecipesCompleted int
}

func ComputeMetrics(jobs []*job.Job, subRecipes []*Recipe) Metrics {
	m := Metrics{JobsTotal: len(jobs), SubRecipesTotal: len(subRecipes)}
	for _, j := range jobs {
		switch j.Status {
		case job.StatusPending:
			m.JobsPending++
		case job.StatusBlocked:
			m.JobsBlocked++
		case job.StatusQueued:
			m.JobsQueued++
		case job.StatusRunning:
			m.JobsRunning++
		case job.StatusFailed:
			m.JobsFailed++
		case job.StatusCompleted:
			m.JobsCompleted++
		case job.StatusCanceled:
			m.JobsCanceled++
		}
	}
	for _, r := range subRecipes {
		if r.IsCompleted {
			m.SubRecipesCompleted++
		}
	}
	return m
}

// Node links a recipe to the job or sub-recipe materialized for one of its
// definition nodes. Copied nodes point at work of a superseded recipe and
// have IsOriginal unset.
type Node struct {
	ID          int64
	RecipeID    int64
	NodeName    string
	JobID       int64
	SubRecipeID int64
	IsOriginal  bool
}

type TypeRevision struct {
	ID          int64
	Name        string
	RevisionNum int
	Definition  *definition.Definition
}

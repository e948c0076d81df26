package command

import (
	"context"
	"time"

	"github.com/raystack/scale/core/job"
	"github.com/raystack/scale/core/recipe"
)

// Transactor runs fn in a single transaction carried by the context passed
// to it. Every repository call made with that context joins the
// transaction.
type Transactor interface {
	Transaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type JobRepository interface {
	// LockJobs returns the jobs ordered by id, locked until the transaction
	// ends. Unknown ids are skipped.
	LockJobs(ctx context.Context, ids []int64) ([]*job.Job, error)
	GetJobs(ctx context.Context, ids []int64) ([]*job.Job, error)
	CreateJobs(ctx context.Context, jobs []*job.Job) error
	UpdateJobs(ctx context.Context, jobs []*job.Job) error

	GetJobTypes(ctx context.Context, ids []int64) (map[int64]*job.JobType, error)
	GetJobTypesByKey(ctx context.Context, keys []job.Key) (map[job.Key]*job.JobType, error)
	GetErrors(ctx context.Context, ids []int64) (map[int64]*job.Error, error)

	UpsertQueue(ctx context.Context, entries []*job.QueueEntry) error
	DeleteQueue(ctx context.Context, jobIDs []int64) error
}

type RecipeRepository interface {
	LockRecipes(ctx context.Context, ids []int64) ([]*recipe.Recipe, error)
	// LockLatestRecipes locks the newest, not superseded, recipe of every
	// root recipe id.
	LockLatestRecipes(ctx context.Context, rootIDs []int64) ([]*recipe.Recipe, error)
	GetRecipes(ctx context.Context, ids []int64) ([]*recipe.Recipe, error)
	// GetRecipesBySupersededRoot returns the recipes created by eventID to
	// replace the given root recipes.
	GetRecipesBySupersededRoot(ctx context.Context, rootIDs []int64, eventID int64) ([]*recipe.Recipe, error)
	CreateRecipes(ctx context.Context, recipes []*recipe.Recipe) error
	UpdateRecipes(ctx context.Context, recipes []*recipe.Recipe) error
	SupersedeRecipes(ctx context.Context, ids []int64, when time.Time) error

	GetRecipeNodes(ctx context.Context, recipeIDs []int64) ([]*recipe.Node, error)
	CreateRecipeNodes(ctx context.Context, nodes []*recipe.Node) error

	GetRevision(ctx context.Context, name string, revisionNum int) (*recipe.TypeRevision, error)
	GetRevisions(ctx context.Context, ids []int64) (map[int64]*recipe.TypeRevision, error)
}

type Repository interface {
	Transactor
	JobRepository
	RecipeRepository
}

package command_test

import (
	"context"
	"testing"
	"time"

	"github.com/odpf/salt/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raystack/scale/core/command"
	"github.com/raystack/scale/core/job"
	"github.com/raystack/scale/core/messaging"
	"github.com/raystack/scale/core/recipe"
	"github.com/raystack/scale/core/recipe/definition"
	"github.com/raystack/scale/internal/store/postgres"
)

var when = time.Date(2022, 3, 1, 10, 0, 0, 0, time.UTC)

type fixture struct {
	ctx   context.Context
	store *postgres.Store
	cmds  *command.Commands
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := postgres.NewMemoryStore(log.NewNoop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return &fixture{
		ctx:   context.Background(),
		store: store,
		cmds:  command.New(store, log.NewNoop()).WithClock(func() time.Time { return when }),
	}
}

func (f *fixture) jobType(t *testing.T, name, version string) *job.JobType {
	t.Helper()
	jt := &job.JobType{Name: name, Version: version, RevisionNum: 1, Priority: 5, MaxTries: 3}
	require.NoError(t, f.store.CreateJobTypes(f.ctx, []*job.JobType{jt}))
	return jt
}

func (f *fixture) createJobs(t *testing.T, jobs ...*job.Job) {
	t.Helper()
	for _, j := range jobs {
		if j.Created.IsZero() {
			j.Created = when
		}
	}
	require.NoError(t, f.store.CreateJobs(f.ctx, jobs))
}

func (f *fixture) getJob(t *testing.T, id int64) *job.Job {
	t.Helper()
	jobs, err := f.store.GetJobs(f.ctx, []int64{id})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	return jobs[0]
}

func (f *fixture) getRecipe(t *testing.T, id int64) *recipe.Recipe {
	t.Helper()
	recipes, err := f.store.GetRecipes(f.ctx, []int64{id})
	require.NoError(t, err)
	require.Len(t, recipes, 1)
	return recipes[0]
}

func (f *fixture) revision(t *testing.T, name string, revisionNum int, raw string) *recipe.TypeRevision {
	t.Helper()
	def, err := definition.Parse([]byte(raw))
	require.NoError(t, err)
	rev := &recipe.TypeRevision{Name: name, RevisionNum: revisionNum, Definition: def}
	require.NoError(t, f.store.CreateRevision(f.ctx, rev))
	return rev
}

func (f *fixture) nodeJobs(t *testing.T, recipeID int64) map[string]int64 {
	t.Helper()
	nodes, err := f.store.GetRecipeNodes(f.ctx, []int64{recipeID})
	require.NoError(t, err)
	jobs := map[string]int64{}
	for _, n := range nodes {
		if n.JobID != 0 {
			jobs[n.NodeName] = n.JobID
		}
	}
	return jobs
}

func execute(t *testing.T, f *fixture, m messaging.Message) []messaging.Message {
	t.Helper()
	ok, next, err := m.Execute(f.ctx)
	require.NoError(t, err)
	require.True(t, ok)
	return next
}

func types(messages []messaging.Message) []string {
	names := make([]string, len(messages))
	for i, m := range messages {
		names[i] = m.Type()
	}
	return names
}

func encodeAll(t *testing.T, messages []messaging.Message) []string {
	t.Helper()
	bodies := make([]string, len(messages))
	for i, m := range messages {
		body, err := messaging.Encode(m)
		require.NoError(t, err)
		bodies[i] = string(body)
	}
	return bodies
}

func TestRegister(t *testing.T) {
	f := newFixture(t)

	t.Run("registers every command message", func(t *testing.T) {
		registry := messaging.NewRegistry()
		require.NoError(t, f.cmds.Register(registry))

		assert.ElementsMatch(t, []string{
			command.TypeQueuedJobs,
			command.TypeCancelJobs,
			command.TypeRunningJobs,
			command.TypeCompletedJobs,
			command.TypeFailedJobs,
			command.TypeBlockedJobs,
			command.TypePendingJobs,
			command.TypeUpdateRecipes,
			command.TypeUpdateRecipeMetrics,
			command.TypeCreateRecipes,
			command.TypeSupersedeRecipeNodes,
			command.TypeProcessRecipeInput,
		}, registry.Types())
	})
	t.Run("decodes messages bound to the store", func(t *testing.T) {
		registry := messaging.NewRegistry()
		require.NoError(t, f.cmds.Register(registry))
		jt := f.jobType(t, "parse", "1.0")
		j := &job.Job{JobTypeID: jt.ID, Status: job.StatusPending, Input: job.NewData()}
		f.createJobs(t, j)

		body, err := messaging.Encode(f.cmds.NewQueuedJobsMessages([]command.QueuedJob{{JobID: j.ID}}, 2, false)[0])
		require.NoError(t, err)
		m, err := registry.Decode(body)
		require.NoError(t, err)
		execute(t, f, m)

		assert.Equal(t, job.StatusQueued, f.getJob(t, j.ID).Status)
	})
	t.Run("rejects a second registration", func(t *testing.T) {
		registry := messaging.NewRegistry()
		require.NoError(t, f.cmds.Register(registry))

		assert.Error(t, f.cmds.Register(registry))
	})
}

func TestMessageBatching(t *testing.T) {
	f := newFixture(t)

	t.Run("splits ids into messages of bounded size", func(t *testing.T) {
		ids := make([]int64, command.MaxNum+1)
		for i := range ids {
			ids[i] = int64(i + 1)
		}

		messages := f.cmds.NewCancelJobsMessages(ids, when)

		require.Len(t, messages, 2)
		assert.Len(t, messages[0].(*command.CancelJobs).JobIDs, command.MaxNum)
		assert.Equal(t, []int64{command.MaxNum + 1}, messages[1].(*command.CancelJobs).JobIDs)
	})
	t.Run("drops duplicate and zero ids", func(t *testing.T) {
		messages := f.cmds.NewUpdateRecipesMessages([]int64{3, 0, 1, 3}, when)

		require.Len(t, messages, 1)
		assert.Equal(t, []int64{1, 3}, messages[0].(*command.UpdateRecipes).RecipeIDs)
	})
	t.Run("creates no message without work", func(t *testing.T) {
		assert.Empty(t, f.cmds.NewUpdateRecipeMetricsMessages([]int64{0}))
		assert.Empty(t, f.cmds.NewQueuedJobsMessages(nil, 0, false))
	})
}

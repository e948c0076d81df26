package command_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raystack/scale/core/command"
	"github.com/raystack/scale/core/job"
	"github.com/raystack/scale/core/messaging"
	"github.com/raystack/scale/core/recipe"
	"github.com/raystack/scale/internal/errors"
)

const pipelineV1 = `{
  "input_data": [{"name": "image", "type": "file"}],
  "jobs": [
    {"name": "parse", "job_type": {"name": "parse", "version": "1.0"},
     "recipe_inputs": [{"recipe_input": "image", "job_input": "source"}]},
    {"name": "measure", "job_type": {"name": "measure", "version": "1.0"},
     "dependencies": [{"name": "parse", "connections": [{"output": "parsed", "input": "parsed"}]}]}
  ]
}`

const pipelineV2 = `{
  "input_data": [{"name": "image", "type": "file"}],
  "jobs": [
    {"name": "parse", "job_type": {"name": "parse", "version": "1.0"},
     "recipe_inputs": [{"recipe_input": "image", "job_input": "source"}]},
    {"name": "measure", "job_type": {"name": "measure", "version": "2.0"},
     "dependencies": [{"name": "parse", "connections": [{"output": "parsed", "input": "parsed"}]}]}
  ]
}`

const bundle = `{
  "input_data": [{"name": "image", "type": "file"}],
  "jobs": [
    {"name": "parse", "job_type": {"name": "parse", "version": "1.0"},
     "recipe_inputs": [{"recipe_input": "image", "job_input": "source"}]},
    {"name": "archive", "recipe_type": {"name": "archive", "revision_num": 1},
     "dependencies": [{"name": "parse", "connections": [{"output": "parsed", "input": "image"}]}]}
  ]
}`

const archive = `{
  "input_data": [{"name": "image", "type": "file"}],
  "jobs": [
    {"name": "pack", "job_type": {"name": "pack", "version": "1.0"},
     "recipe_inputs": [{"recipe_input": "image", "job_input": "source"}]}
  ]
}`

func imageInput(fileID int64) *job.Data {
	return &job.Data{WorkspaceID: 7, Values: []job.Value{job.FilesValue("image", job.File{ID: fileID})}}
}

func (f *fixture) newRecipe(t *testing.T, rev *recipe.TypeRevision, input *job.Data) *recipe.Recipe {
	t.Helper()
	r := &recipe.Recipe{
		RecipeTypeName:  rev.Name,
		RecipeTypeRevID: rev.ID,
		RevisionNum:     rev.RevisionNum,
		EventID:         1,
		Input:           input,
		Created:         when,
	}
	require.NoError(t, f.store.CreateRecipes(f.ctx, []*recipe.Recipe{r}))
	return r
}

// run moves a queued job through RUNNING to COMPLETED and returns the
// messages that follow its completion.
func (f *fixture) run(t *testing.T, queued messaging.Message, jobID int64, output *job.Data) []messaging.Message {
	t.Helper()
	execute(t, f, queued)
	exeNum := f.getJob(t, jobID).NumExes
	execute(t, f, f.cmds.NewRunningJobsMessages([]command.RunningJob{{JobID: jobID, ExeNum: exeNum}}, when)[0])
	return execute(t, f, f.cmds.NewCompletedJobsMessages([]command.CompletedJob{
		{JobID: jobID, ExeNum: exeNum, Output: output},
	}, when)[0])
}

func TestUpdateRecipes(t *testing.T) {
	parsed := &job.Data{Values: []job.Value{job.FilesValue("parsed", job.File{ID: 21})}}

	t.Run("drives a recipe to completion", func(t *testing.T) {
		f := newFixture(t)
		f.jobType(t, "parse", "1.0")
		f.jobType(t, "measure", "1.0")
		r := f.newRecipe(t, f.revision(t, "pipeline", 1, pipelineV1), imageInput(11))

		next := execute(t, f, f.cmds.NewUpdateRecipesMessages([]int64{r.ID}, when)[0])

		require.Equal(t, []string{command.TypeQueuedJobs}, types(next))
		jobs := f.nodeJobs(t, r.ID)
		require.Len(t, jobs, 2)
		assert.Equal(t, []command.QueuedJob{{JobID: jobs["parse"]}}, next[0].(*command.QueuedJobs).Jobs)
		source, ok := f.getJob(t, jobs["parse"]).Input.Get("source")
		require.True(t, ok)
		assert.Equal(t, []job.File{{ID: 11}}, source.Files)
		assert.False(t, f.getJob(t, jobs["measure"]).HasInput())

		next = f.run(t, next[0], jobs["parse"], parsed)
		require.Equal(t, []string{command.TypeUpdateRecipes, command.TypeUpdateRecipeMetrics}, types(next))

		next = execute(t, f, next[0])
		require.Equal(t, []string{command.TypeQueuedJobs}, types(next))
		assert.Equal(t, []command.QueuedJob{{JobID: jobs["measure"]}}, next[0].(*command.QueuedJobs).Jobs)

		next = f.run(t, next[0], jobs["measure"], job.NewData())
		next = execute(t, f, next[0])
		require.Equal(t, []string{command.TypeUpdateRecipeMetrics}, types(next))
		assert.True(t, f.getRecipe(t, r.ID).IsCompleted)

		assert.Empty(t, execute(t, f, next[0]))
		metrics := f.getRecipe(t, r.ID).Metrics
		assert.Equal(t, 2, metrics.JobsTotal)
		assert.Equal(t, 2, metrics.JobsCompleted)
	})
	t.Run("creates jobs only once", func(t *testing.T) {
		f := newFixture(t)
		f.jobType(t, "parse", "1.0")
		f.jobType(t, "measure", "1.0")
		r := f.newRecipe(t, f.revision(t, "pipeline", 1, pipelineV1), imageInput(11))
		m := f.cmds.NewUpdateRecipesMessages([]int64{r.ID}, when)[0]

		first := execute(t, f, m)
		second := execute(t, f, m)

		assert.Equal(t, types(first), types(second))
		nodes, err := f.store.GetRecipeNodes(f.ctx, []int64{r.ID})
		require.NoError(t, err)
		assert.Len(t, nodes, 2)
	})
	t.Run("blocks the children of a failed job", func(t *testing.T) {
		f := newFixture(t)
		f.jobType(t, "parse", "1.0")
		f.jobType(t, "measure", "1.0")
		r := f.newRecipe(t, f.revision(t, "pipeline", 1, pipelineV1), imageInput(11))
		execute(t, f, f.cmds.NewUpdateRecipesMessages([]int64{r.ID}, when)[0])
		jobs := f.nodeJobs(t, r.ID)
		parse := f.getJob(t, jobs["parse"])
		parse.Status = job.StatusFailed
		parse.NumExes = 1
		require.NoError(t, f.store.UpdateJobs(f.ctx, []*job.Job{parse}))

		next := execute(t, f, f.cmds.NewUpdateRecipesMessages([]int64{r.ID}, when)[0])

		require.Equal(t, []string{command.TypeBlockedJobs}, types(next))
		assert.Equal(t, []int64{jobs["measure"]}, next[0].(*command.BlockedJobs).JobIDs)
	})
	t.Run("stamps blocked jobs with the message time", func(t *testing.T) {
		f := newFixture(t)
		f.jobType(t, "parse", "1.0")
		f.jobType(t, "measure", "1.0")
		r := f.newRecipe(t, f.revision(t, "pipeline", 1, pipelineV1), imageInput(11))
		execute(t, f, f.cmds.NewUpdateRecipesMessages([]int64{r.ID}, when)[0])
		parse := f.getJob(t, f.nodeJobs(t, r.ID)["parse"])
		parse.Status = job.StatusFailed
		parse.NumExes = 1
		require.NoError(t, f.store.UpdateJobs(f.ctx, []*job.Job{parse}))
		clock := when
		f.cmds.WithClock(func() time.Time {
			clock = clock.Add(time.Minute)
			return clock
		})
		m := f.cmds.NewUpdateRecipesMessages([]int64{r.ID}, when)[0]

		first := encodeAll(t, execute(t, f, m))
		second := encodeAll(t, execute(t, f, m))

		assert.Equal(t, first, second)
		require.Len(t, first, 1)
		assert.Contains(t, first[0], `"status_change":"2022-03-01T10:00:00Z"`)
	})
	t.Run("fails when a job type is missing", func(t *testing.T) {
		f := newFixture(t)
		f.jobType(t, "parse", "1.0")
		r := f.newRecipe(t, f.revision(t, "pipeline", 1, pipelineV1), imageInput(11))

		_, _, err := f.cmds.NewUpdateRecipesMessages([]int64{r.ID}, when)[0].Execute(f.ctx)

		assert.True(t, errors.IsErrorType(err, errors.ErrNotFound))
		assert.Empty(t, f.nodeJobs(t, r.ID))
	})
}

func TestReprocessRecipes(t *testing.T) {
	newReprocess := func(t *testing.T) (*fixture, *recipe.Recipe, map[string]int64) {
		t.Helper()
		f := newFixture(t)
		f.jobType(t, "parse", "1.0")
		f.jobType(t, "measure", "1.0")
		f.jobType(t, "measure", "2.0")
		r := f.newRecipe(t, f.revision(t, "pipeline", 1, pipelineV1), imageInput(11))
		f.revision(t, "pipeline", 2, pipelineV2)
		execute(t, f, f.cmds.NewUpdateRecipesMessages([]int64{r.ID}, when)[0])
		return f, r, f.nodeJobs(t, r.ID)
	}

	t.Run("supersedes the recipe and copies unchanged nodes", func(t *testing.T) {
		f, old, oldJobs := newReprocess(t)
		m := f.cmds.NewReprocessMessages("pipeline", 2, []int64{old.ID}, 2, 0, nil)[0]

		next := execute(t, f, m)

		require.Equal(t, []string{command.TypeSupersedeRecipeNodes, command.TypeProcessRecipeInput}, types(next))
		supersede := next[0].(*command.SupersedeRecipeNodes)
		assert.Equal(t, []int64{old.ID}, supersede.RecipeIDs)
		assert.Equal(t, []string{"measure"}, supersede.SupersedeJobs)
		assert.Empty(t, supersede.SupersedeSubRecipes)

		created := f.getRecipe(t, next[1].(*command.ProcessRecipeInput).RecipeIDs[0])
		assert.Equal(t, old.ID, created.SupersededRecipeID)
		assert.Equal(t, old.ID, created.RootSupersededRecipeID)
		assert.Equal(t, 2, created.RevisionNum)
		assert.Equal(t, old.Input, created.Input)
		assert.True(t, f.getRecipe(t, old.ID).IsSuperseded)
		assert.Equal(t, map[string]int64{"parse": oldJobs["parse"]}, f.nodeJobs(t, created.ID))

		again := execute(t, f, m)
		require.Equal(t, types(next), types(again))
		assert.Equal(t, created.ID, again[1].(*command.ProcessRecipeInput).RecipeIDs[0])
	})
	t.Run("emits the same messages when delivered again later", func(t *testing.T) {
		f, old, _ := newReprocess(t)
		clock := when
		f.cmds.WithClock(func() time.Time {
			clock = clock.Add(time.Minute)
			return clock
		})
		m := f.cmds.NewReprocessMessages("pipeline", 2, []int64{old.ID}, 2, 0, nil)[0]

		first := encodeAll(t, execute(t, f, m))
		second := encodeAll(t, execute(t, f, m))

		require.Len(t, first, 2)
		assert.Equal(t, first, second)
		assert.True(t, when.Add(time.Minute).Equal(f.getRecipe(t, old.ID).Superseded))
	})
	t.Run("replaces the jobs of changed nodes", func(t *testing.T) {
		f, old, oldJobs := newReprocess(t)
		next := execute(t, f, f.cmds.NewReprocessMessages("pipeline", 2, []int64{old.ID}, 2, 0, nil)[0])
		createdID := next[1].(*command.ProcessRecipeInput).RecipeIDs[0]

		canceled := execute(t, f, next[0])
		require.Equal(t, []string{command.TypeCancelJobs}, types(canceled))
		assert.Equal(t, []int64{oldJobs["measure"]}, canceled[0].(*command.CancelJobs).JobIDs)
		assert.True(t, f.getJob(t, oldJobs["measure"]).IsSuperseded)
		assert.False(t, f.getJob(t, oldJobs["parse"]).IsSuperseded)

		updates := execute(t, f, next[1])
		require.Equal(t, []string{command.TypeUpdateRecipes}, types(updates))
		execute(t, f, updates[0])

		newJobs := f.nodeJobs(t, createdID)
		require.Len(t, newJobs, 2)
		assert.Equal(t, oldJobs["parse"], newJobs["parse"])
		measure := f.getJob(t, newJobs["measure"])
		assert.Equal(t, oldJobs["measure"], measure.SupersededJobID)
		assert.Equal(t, oldJobs["measure"], measure.RootSupersededJobID)
	})
	t.Run("rejects an unknown create type", func(t *testing.T) {
		f := newFixture(t)
		registry := messaging.NewRegistry()
		require.NoError(t, f.cmds.Register(registry))
		m, err := registry.Decode([]byte(`{"type": "create_recipes", "create_recipes_type": "bogus"}`))
		require.NoError(t, err)

		ok, _, err := m.Execute(f.ctx)

		assert.False(t, ok)
		assert.ErrorContains(t, err, "'bogus' is an invalid create recipes type")
	})
}

func TestSubRecipes(t *testing.T) {
	newParent := func(t *testing.T) (*fixture, *recipe.Recipe) {
		t.Helper()
		f := newFixture(t)
		f.jobType(t, "parse", "1.0")
		f.jobType(t, "pack", "1.0")
		f.revision(t, "archive", 1, archive)
		return f, f.newRecipe(t, f.revision(t, "bundle", 1, bundle), imageInput(11))
	}

	t.Run("creates sub-recipes once", func(t *testing.T) {
		f, parent := newParent(t)

		next := execute(t, f, f.cmds.NewUpdateRecipesMessages([]int64{parent.ID}, when)[0])

		require.Equal(t, []string{command.TypeQueuedJobs, command.TypeCreateRecipes}, types(next))
		create := next[1].(*command.CreateRecipes)
		assert.Equal(t, command.CreateSubRecipes, create.CreateRecipesType)
		assert.Equal(t, []command.SubRecipe{{RecipeTypeName: "archive", RecipeTypeRevNum: 1, NodeName: "archive"}}, create.SubRecipes)

		created := execute(t, f, create)
		require.Equal(t, []string{command.TypeUpdateRecipes, command.TypeUpdateRecipeMetrics}, types(created))
		assert.Equal(t, []int64{parent.ID}, created[1].(*command.UpdateRecipeMetrics).RecipeIDs)
		sub := f.getRecipe(t, created[0].(*command.UpdateRecipes).RecipeIDs[0])
		assert.Equal(t, parent.ID, sub.RecipeID)
		assert.Equal(t, parent.ID, sub.RootRecipeID)
		assert.False(t, sub.HasInput())

		again := execute(t, f, create)
		assert.Equal(t, []int64{sub.ID}, again[0].(*command.UpdateRecipes).RecipeIDs)
		nodes, err := f.store.GetRecipeNodes(f.ctx, []int64{parent.ID})
		require.NoError(t, err)
		assert.Len(t, nodes, 2)
	})
	t.Run("passes parent output on as sub-recipe input", func(t *testing.T) {
		f, parent := newParent(t)
		next := execute(t, f, f.cmds.NewUpdateRecipesMessages([]int64{parent.ID}, when)[0])
		created := execute(t, f, next[1])
		subID := created[0].(*command.UpdateRecipes).RecipeIDs[0]
		process := f.cmds.NewProcessRecipeInputMessages([]int64{subID}, when)[0]

		assert.Empty(t, execute(t, f, process))

		parsed := &job.Data{Values: []job.Value{job.FilesValue("parsed", job.File{ID: 21})}}
		f.run(t, next[0], f.nodeJobs(t, parent.ID)["parse"], parsed)
		ready := execute(t, f, process)

		require.Equal(t, []string{command.TypeUpdateRecipes}, types(ready))
		assert.Equal(t, []int64{subID}, ready[0].(*command.UpdateRecipes).RecipeIDs)
		assert.Equal(t, imageInput(21), f.getRecipe(t, subID).Input)

		queued := execute(t, f, ready[0])
		require.Equal(t, []string{command.TypeQueuedJobs}, types(queued))
		assert.Contains(t, f.nodeJobs(t, subID), "pack")
	})
	t.Run("bubbles metrics up to the parent", func(t *testing.T) {
		f, parent := newParent(t)
		next := execute(t, f, f.cmds.NewUpdateRecipesMessages([]int64{parent.ID}, when)[0])
		created := execute(t, f, next[1])
		subID := created[0].(*command.UpdateRecipes).RecipeIDs[0]

		bubbled := execute(t, f, f.cmds.NewUpdateRecipeMetricsMessages([]int64{subID})[0])

		require.Equal(t, []string{command.TypeUpdateRecipeMetrics}, types(bubbled))
		assert.Equal(t, []int64{parent.ID}, bubbled[0].(*command.UpdateRecipeMetrics).RecipeIDs)
		assert.Empty(t, execute(t, f, bubbled[0]))
		metrics := f.getRecipe(t, parent.ID).Metrics
		assert.Equal(t, 1, metrics.JobsTotal)
		assert.Equal(t, 1, metrics.SubRecipesTotal)
	})
}

func TestSupersedeRecipeNodes(t *testing.T) {
	t.Run("supersedes jobs and whole sub-recipe trees", func(t *testing.T) {
		f := newFixture(t)
		jt := f.jobType(t, "parse", "1.0")
		parse := &job.Job{JobTypeID: jt.ID, Status: job.StatusPending, IsPublished: true}
		pack := &job.Job{JobTypeID: jt.ID, Status: job.StatusPending}
		f.createJobs(t, parse, pack)
		parent := &recipe.Recipe{RecipeTypeName: "bundle", RecipeTypeRevID: 1, Created: when}
		require.NoError(t, f.store.CreateRecipes(f.ctx, []*recipe.Recipe{parent}))
		sub := &recipe.Recipe{RecipeTypeName: "archive", RecipeTypeRevID: 2, RecipeID: parent.ID, RootRecipeID: parent.ID, Created: when}
		require.NoError(t, f.store.CreateRecipes(f.ctx, []*recipe.Recipe{sub}))
		parse.RecipeID, pack.RecipeID = parent.ID, sub.ID
		require.NoError(t, f.store.UpdateJobs(f.ctx, []*job.Job{parse, pack}))
		require.NoError(t, f.store.CreateRecipeNodes(f.ctx, []*recipe.Node{
			{RecipeID: parent.ID, NodeName: "parse", JobID: parse.ID, IsOriginal: true},
			{RecipeID: parent.ID, NodeName: "archive", SubRecipeID: sub.ID, IsOriginal: true},
			{RecipeID: sub.ID, NodeName: "pack", JobID: pack.ID, IsOriginal: true},
		}))

		next := execute(t, f, f.cmds.NewSupersedeRecipeNodesMessages([]int64{parent.ID}, when, command.SupersedeRecipeNodes{
			SupersedeJobs:       []string{"parse"},
			SupersedeSubRecipes: []string{"archive"},
			SupersedeRecursive:  []string{"archive"},
			UnpublishJobs:       []string{"parse"},
		})[0])

		require.Equal(t, []string{command.TypeCancelJobs, command.TypeSupersedeRecipeNodes}, types(next))
		assert.Equal(t, []int64{parse.ID}, next[0].(*command.CancelJobs).JobIDs)
		tree := next[1].(*command.SupersedeRecipeNodes)
		assert.Equal(t, []int64{sub.ID}, tree.RecipeIDs)
		assert.True(t, tree.SupersedeAll)
		assert.False(t, tree.UnpublishAll)
		got := f.getJob(t, parse.ID)
		assert.True(t, got.IsSuperseded)
		assert.False(t, got.IsPublished)
		assert.True(t, f.getRecipe(t, sub.ID).IsSuperseded)

		inner := execute(t, f, tree)
		require.Equal(t, []string{command.TypeCancelJobs}, types(inner))
		assert.Equal(t, []int64{pack.ID}, inner[0].(*command.CancelJobs).JobIDs)
		assert.True(t, f.getJob(t, pack.ID).IsSuperseded)

		updates := execute(t, f, next[0])
		require.Equal(t, []string{command.TypeUpdateRecipes, command.TypeUpdateRecipeMetrics}, types(updates))
		assert.Equal(t, job.StatusCanceled, f.getJob(t, parse.ID).Status)
	})
}

package diff_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raystack/scale/core/job"
	"github.com/raystack/scale/core/recipe/definition"
	"github.com/raystack/scale/core/recipe/diff"
)

func jobNode(name, jobType, version string, parents ...string) definition.NodeSpec {
	node := definition.NodeSpec{
		Name:    name,
		JobType: &definition.JobTypeSpec{Name: jobType, Version: version},
	}
	for _, p := range parents {
		node.Dependencies = append(node.Dependencies, definition.DependencySpec{
			Name:        p,
			Connections: []definition.ConnectionSpec{{Output: "out", Input: "in_" + p}},
		})
	}
	return node
}

func recipeNode(name, recipeType string, revision int) definition.NodeSpec {
	return definition.NodeSpec{
		Name:       name,
		RecipeType: &definition.RecipeTypeSpec{Name: recipeType, RevisionNum: revision},
	}
}

func newDefinition(t *testing.T, nodes ...definition.NodeSpec) *definition.Definition {
	t.Helper()
	def, err := definition.New(definition.Spec{
		InputData: []definition.InputSpec{{Name: "source", Type: job.InputTypeFile}},
		Jobs:      nodes,
	})
	require.NoError(t, err)
	return def
}

func statusOf(t *testing.T, d *diff.Diff, name string) diff.Status {
	t.Helper()
	node, ok := d.Node(name)
	require.True(t, ok, name)
	return node.Status
}

func changeNames(node *diff.NodeDiff) []string {
	var names []string
	for _, c := range node.Changes {
		names = append(names, c.Name)
	}
	return names
}

func TestDiff(t *testing.T) {
	t.Run("marks identical definitions unchanged and copies everything", func(t *testing.T) {
		prev := newDefinition(t, jobNode("a", "parse", "1.0"), jobNode("b", "measure", "1.0", "a"))
		next := newDefinition(t, jobNode("a", "parse", "1.0"), jobNode("b", "measure", "1.0", "a"))

		d, err := diff.New(prev, next)
		require.NoError(t, err)

		assert.True(t, d.CanBeReprocessed)
		assert.Equal(t, diff.StatusUnchanged, statusOf(t, d, "a"))
		assert.Equal(t, diff.StatusUnchanged, statusOf(t, d, "b"))
		assert.Equal(t, []string{"a", "b"}, diff.Names(d.NodesToCopy()))
		assert.Zero(t, d.NodesToSupersede().Size())
		assert.Zero(t, d.NodesToUnpublish().Size())
	})
	t.Run("a changed parent alone leaves a node unchanged", func(t *testing.T) {
		prev := newDefinition(t,
			jobNode("a", "parse", "1.0"), jobNode("b", "measure", "1.0", "a"), jobNode("c", "report", "1.0", "b"))
		next := newDefinition(t,
			jobNode("a", "parse", "1.0"), jobNode("b", "measure", "2.0", "a"), jobNode("c", "report", "1.0", "b"))

		d, err := diff.New(prev, next)
		require.NoError(t, err)

		a, _ := d.Node("a")
		b, _ := d.Node("b")
		c, _ := d.Node("c")
		assert.Equal(t, diff.StatusUnchanged, a.Status)
		assert.Empty(t, a.Changes)
		assert.Equal(t, diff.StatusChanged, b.Status)
		assert.Equal(t, []string{diff.ChangeJobTypeVersion}, changeNames(b))
		assert.Equal(t, "Job type version changed from 1.0 to 2.0", b.Changes[0].Description)
		assert.Equal(t, diff.JobNode{JobTypeName: "measure", JobTypeVersion: "1.0"}, b.PrevKind)
		assert.Equal(t, diff.StatusUnchanged, c.Status)
		assert.Equal(t, []string{diff.ChangeParentChanged}, changeNames(c))

		assert.Equal(t, []string{"a", "c"}, diff.Names(d.NodesToCopy()))
		assert.Equal(t, []string{"b"}, diff.Names(d.NodesToSupersede()))
		assert.Zero(t, d.NodesToUnpublish().Size())
	})
	t.Run("connection changes flip a node to changed", func(t *testing.T) {
		prev := newDefinition(t, jobNode("a", "parse", "1.0"), jobNode("x", "parse", "1.0"), jobNode("b", "measure", "1.0", "a"))
		next := newDefinition(t, jobNode("a", "parse", "1.0"), jobNode("x", "parse", "1.0"), jobNode("b", "measure", "1.0", "a", "x"))

		d, err := diff.New(prev, next)
		require.NoError(t, err)

		b, _ := d.Node("b")
		assert.Equal(t, diff.StatusChanged, b.Status)
		assert.Equal(t, []string{diff.ChangeParentNew, diff.ChangeInputNew}, changeNames(b))
	})
	t.Run("reports new and deleted nodes", func(t *testing.T) {
		prev := newDefinition(t, jobNode("a", "parse", "1.0"), jobNode("d", "clean", "1.0", "a"))
		next := newDefinition(t, jobNode("a", "parse", "1.0"), jobNode("e", "index", "1.0", "a"))

		d, err := diff.New(prev, next)
		require.NoError(t, err)

		var names []string
		for _, n := range d.Nodes() {
			names = append(names, n.Name)
		}
		assert.Equal(t, []string{"a", "e", "d"}, names)
		assert.Equal(t, diff.StatusNew, statusOf(t, d, "e"))
		assert.Equal(t, diff.StatusDeleted, statusOf(t, d, "d"))

		e, _ := d.Node("e")
		assert.True(t, e.ReprocessNewNode)
		assert.Equal(t, []string{"a"}, diff.Names(d.NodesToCopy()))
		assert.Equal(t, []string{"d"}, diff.Names(d.NodesToSupersede()))
		assert.Equal(t, []string{"d"}, diff.Names(d.NodesToUnpublish()))
	})
	t.Run("forced nodes propagate to their children", func(t *testing.T) {
		prev := newDefinition(t,
			jobNode("a", "parse", "1.0"), jobNode("b", "measure", "1.0", "a"), jobNode("z", "other", "1.0"))
		next := newDefinition(t,
			jobNode("a", "parse", "1.0"), jobNode("b", "measure", "1.0", "a"), jobNode("z", "other", "1.0"))
		d, err := diff.New(prev, next)
		require.NoError(t, err)

		forced := diff.NewForcedNodes()
		forced.AddNode("a")
		d.SetForceReprocess(forced)

		a, _ := d.Node("a")
		b, _ := d.Node("b")
		z, _ := d.Node("z")
		assert.True(t, a.ForceReprocess)
		assert.True(t, b.ForceReprocess)
		assert.True(t, b.ReprocessNewNode)
		assert.False(t, z.ForceReprocess)
		assert.Equal(t, []string{"z"}, diff.Names(d.NodesToCopy()))
		assert.Equal(t, []string{"a", "b"}, diff.Names(d.NodesToSupersede()))
	})
	t.Run("forces every node of a chain of diamonds once", func(t *testing.T) {
		layers := 40
		nodes := []definition.NodeSpec{jobNode("n0", "parse", "1.0")}
		for i := 1; i <= layers; i++ {
			top := fmt.Sprintf("n%d", i-1)
			left, right := fmt.Sprintf("l%d", i), fmt.Sprintf("r%d", i)
			nodes = append(nodes,
				jobNode(left, "measure", "1.0", top),
				jobNode(right, "measure", "1.0", top),
				jobNode(fmt.Sprintf("n%d", i), "merge", "1.0", left, right))
		}
		d, err := diff.New(newDefinition(t, nodes...), newDefinition(t, nodes...))
		require.NoError(t, err)

		forced := diff.NewForcedNodes()
		forced.AddNode("n0")
		d.SetForceReprocess(forced)

		for _, node := range d.Nodes() {
			assert.True(t, node.ForceReprocess, node.Name)
		}
		assert.Zero(t, d.NodesToCopy().Size())
		assert.Len(t, diff.Names(d.NodesToSupersede()), 3*layers+1)
	})
	t.Run("forcing all nodes", func(t *testing.T) {
		prev := newDefinition(t, jobNode("a", "parse", "1.0"), recipeNode("s", "archive", 1))
		next := newDefinition(t, jobNode("a", "parse", "1.0"), recipeNode("s", "archive", 1))
		d, err := diff.New(prev, next)
		require.NoError(t, err)

		d.SetForceReprocess(diff.AllNodes())

		assert.Zero(t, d.NodesToCopy().Size())
		assert.Equal(t, []string{"a", "s"}, diff.Names(d.NodesToSupersede()))
		s, _ := d.Node("s")
		assert.Equal(t, diff.AllNodes(), s.ForceReprocessNodes)
	})
	t.Run("hands the sub-recipe selection to forced recipe nodes", func(t *testing.T) {
		prev := newDefinition(t, recipeNode("s", "archive", 1))
		next := newDefinition(t, recipeNode("s", "archive", 1))
		d, err := diff.New(prev, next)
		require.NoError(t, err)

		inner := diff.NewForcedNodes()
		inner.AddNode("x")
		forced := diff.NewForcedNodes()
		forced.AddSubRecipe("s", inner)
		d.SetForceReprocess(forced)

		s, _ := d.Node("s")
		assert.True(t, s.ForceReprocess)
		assert.Equal(t, inner, s.ForceReprocessNodes)
	})
	t.Run("recursively supersedes replaced and deleted sub-recipes", func(t *testing.T) {
		prev := newDefinition(t,
			recipeNode("renamed", "archive", 1), recipeNode("bumped", "archive", 1), recipeNode("gone", "archive", 1))
		next := newDefinition(t,
			recipeNode("renamed", "compress", 1), recipeNode("bumped", "archive", 2))

		d, err := diff.New(prev, next)
		require.NoError(t, err)

		renamed, _ := d.Node("renamed")
		assert.Equal(t, []string{diff.ChangeRecipeType}, changeNames(renamed))
		assert.Equal(t, []string{"renamed", "bumped", "gone"}, diff.Names(d.NodesToSupersede()))
		assert.Equal(t, []string{"renamed", "gone"}, diff.Names(d.NodesToRecursivelySupersede()))
		assert.Equal(t, []string{"gone"}, diff.Names(d.NodesToUnpublish()))
	})
	t.Run("node type changes", func(t *testing.T) {
		prev := newDefinition(t, jobNode("n", "parse", "1.0"))
		next := newDefinition(t, recipeNode("n", "archive", 1))

		d, err := diff.New(prev, next)
		require.NoError(t, err)

		n, _ := d.Node("n")
		assert.Equal(t, diff.StatusChanged, n.Status)
		assert.Equal(t, []string{diff.ChangeNodeType}, changeNames(n))
		assert.Equal(t, "Node type changed from job to recipe", n.Changes[0].Description)
		assert.Equal(t, []string{"n"}, diff.Names(d.NodesToRecursivelySupersede()))
	})
	t.Run("an incompatible input interface blocks reprocessing", func(t *testing.T) {
		prev := newDefinition(t, jobNode("a", "parse", "1.0"))
		next, err := definition.New(definition.Spec{
			InputData: []definition.InputSpec{
				{Name: "source", Type: job.InputTypeFile},
				{Name: "extra", Type: job.InputTypeProperty},
			},
			Jobs: []definition.NodeSpec{jobNode("a", "parse", "2.0")},
		})
		require.NoError(t, err)

		d, err := diff.New(prev, next)
		require.NoError(t, err)

		assert.False(t, d.CanBeReprocessed)
		require.Len(t, d.Reasons, 1)
		assert.Equal(t, diff.ReasonInputChange, d.Reasons[0].Name)
		a, _ := d.Node("a")
		assert.Equal(t, diff.StatusChanged, a.Status)
		assert.False(t, a.ReprocessNewNode)
		assert.Zero(t, d.NodesToCopy().Size())
		assert.Zero(t, d.NodesToSupersede().Size())
		assert.Zero(t, d.NodesToUnpublish().Size())
	})
}

func TestForcedNodes(t *testing.T) {
	t.Run("IsForced", func(t *testing.T) {
		var none *diff.ForcedNodes
		assert.False(t, none.IsForced("a"))
		assert.True(t, diff.AllNodes().IsForced("a"))

		forced := diff.NewForcedNodes()
		forced.AddNode("a")
		forced.AddNode("a")
		assert.Equal(t, []string{"a"}, forced.Nodes)
		assert.True(t, forced.IsForced("a"))
		assert.False(t, forced.IsForced("b"))
	})
	t.Run("ForSubRecipe", func(t *testing.T) {
		forced := diff.NewForcedNodes()
		assert.Nil(t, forced.ForSubRecipe("s"))
		assert.Equal(t, diff.AllNodes(), diff.AllNodes().ForSubRecipe("s"))
	})
}

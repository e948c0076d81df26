package recipe

import (
	"fmt"
	"time"

	"github.com/raystack/scale/core/job"
	"github.com/raystack/scale/core/recipe/definition"
	"github.com/raystack/scale/core/recipe/graph"
	"github.com/raystack/scale/internal/errors"
)

// blockingStatuses are the parent statuses that keep a child from running.
var blockingStatuses = map[job.Status]bool{
	job.StatusBlocked:  true,
	job.StatusFailed:   true,
	job.StatusCanceled: true,
}

// Handler evaluates the state of one recipe against its definition graph.
// Every evaluation walks the graph in topological order so that a node is
// always looked at after its parents.
type Handler struct {
	Recipe *Recipe

	def        *definition.Definition
	graph      *graph.Graph
	order      []string
	jobs       map[string]*job.Job
	subRecipes map[string]*Recipe
}

// NewHandler takes the recipe jobs and sub-recipes keyed by node name, nodes
// that were not created yet are simply missing.
func NewHandler(r *Recipe, def *definition.Definition, jobs map[string]*job.Job, subRecipes map[string]*Recipe) (*Handler, error) {
	g, err := def.Graph()
	if err != nil {
		return nil, errors.Wrap(EntityRecipe, "unable to build recipe graph", err)
	}
	order, err := g.TopologicalOrder()
	if err != nil {
		return nil, errors.Wrap(EntityRecipe, "unable to order recipe graph", err)
	}
	if jobs == nil {
		jobs = map[string]*job.Job{}
	}
	if subRecipes == nil {
		subRecipes = map[string]*Recipe{}
	}
	return &Handler{Recipe: r, def: def, graph: g, order: order, jobs: jobs, subRecipes: subRecipes}, nil
}

func (h *Handler) Definition() *definition.Definition {
	return h.def
}

func (h *Handler) AddJob(nodeName string, j *job.Job) {
	h.jobs[nodeName] = j
}

func (h *Handler) AddSubRecipe(nodeName string, r *Recipe) {
	h.subRecipes[nodeName] = r
}

func (h *Handler) Job(nodeName string) (*job.Job, bool) {
	j, ok := h.jobs[nodeName]
	return j, ok
}

// Jobs returns the recipe jobs in topological order.
func (h *Handler) Jobs() []*job.Job {
	var jobs []*job.Job
	for _, name := range h.order {
		if j, ok := h.jobs[name]; ok {
			jobs = append(jobs, j)
		}
	}
	return jobs
}

func (h *Handler) SubRecipes() []*Recipe {
	var recipes []*Recipe
	for _, name := range h.order {
		if r, ok := h.subRecipes[name]; ok {
			recipes = append(recipes, r)
		}
	}
	return recipes
}

// effectiveStatuses computes, for every node, the status it should have once
// blocking is propagated from its parents.
func (h *Handler) effectiveStatuses() map[string]job.Status {
	statuses := make(map[string]job.Status, len(h.order))
	for _, name := range h.order {
		node, _ := h.graph.Node(name)
		if node.Type == graph.NodeTypeRecipe {
			statuses[name] = job.StatusPending
			if r, ok := h.subRecipes[name]; ok && r.IsCompleted {
				statuses[name] = job.StatusCompleted
			}
			continue
		}

		j, ok := h.jobs[name]
		if ok && j.Status != job.StatusPending && j.Status != job.StatusBlocked {
			statuses[name] = j.Status
			continue
		}
		statuses[name] = job.StatusPending
		for _, parent := range node.Parents {
			if blockingStatuses[statuses[parent.Name]] {
				statuses[name] = job.StatusBlocked
				break
			}
		}
	}
	return statuses
}

// BlockedJobs returns the jobs that must move to BLOCKED.
func (h *Handler) BlockedJobs() []*job.Job {
	return h.jobsMovingTo(job.StatusBlocked)
}

// PendingJobs returns the jobs that must move back to PENDING.
func (h *Handler) PendingJobs() []*job.Job {
	return h.jobsMovingTo(job.StatusPending)
}

func (h *Handler) jobsMovingTo(status job.Status) []*job.Job {
	statuses := h.effectiveStatuses()
	var moving []*job.Job
	for _, name := range h.order {
		j, ok := h.jobs[name]
		if !ok || (j.Status != job.StatusPending && j.Status != job.StatusBlocked) {
			continue
		}
		if statuses[name] == status && j.Status != status {
			moving = append(moving, j)
		}
	}
	return moving
}

// DependentJobs returns every job downstream of the node, in topological
// order.
func (h *Handler) DependentJobs(nodeName string) []*job.Job {
	node, ok := h.graph.Node(nodeName)
	if !ok {
		return nil
	}
	downstream := map[string]bool{}
	var walk func(n *graph.Node)
	walk = func(n *graph.Node) {
		for _, child := range n.Children {
			if !downstream[child.Name] {
				downstream[child.Name] = true
				walk(child)
			}
		}
	}
	walk(node)

	var jobs []*job.Job
	for _, name := range h.order {
		if j, ok := h.jobs[name]; ok && downstream[name] {
			jobs = append(jobs, j)
		}
	}
	return jobs
}

func (h *Handler) parentsReady(node *graph.Node) bool {
	for _, parent := range node.Parents {
		if parent.Type == graph.NodeTypeRecipe {
			r, ok := h.subRecipes[parent.Name]
			if !ok || !r.IsCompleted {
				return false
			}
			continue
		}
		j, ok := h.jobs[parent.Name]
		if !ok || !j.IsReadyForChildren() {
			return false
		}
	}
	return true
}

// JobsReadyForInput sets the input of every job without input whose parents
// are ready and returns those jobs. Jobs whose assembled input does not
// satisfy their job type are left alone and reported in the returned error.
func (h *Handler) JobsReadyForInput(jobTypes definition.JobTypes) ([]*job.Job, error) {
	invalid := errors.NewMultiError("invalid job input")
	var ready []*job.Job
	for _, name := range h.order {
		j, ok := h.jobs[name]
		if !ok || j.HasInput() {
			continue
		}
		node, _ := h.graph.Node(name)
		if !h.parentsReady(node) {
			continue
		}

		input, err := h.jobInput(node, jobTypes[node.JobTypeKey()])
		if err != nil {
			invalid.Append(err)
			continue
		}
		j.Input = input
		ready = append(ready, j)
	}
	return ready, errors.MultiToError(invalid)
}

// jobInput assembles the input of node from the recipe input and the
// outputs of its parents.
func (h *Handler) jobInput(node *graph.Node, jobType *job.JobType) (*job.Data, error) {
	input := job.NewData()
	if h.Recipe.Input != nil {
		input.WorkspaceID = h.Recipe.Input.WorkspaceID
	}

	for _, ri := range node.RecipeInputs {
		if value, found := h.Recipe.Input.Get(ri.RecipeInput); found {
			value.Name = ri.JobInput
			input.Set(value)
		}
	}
	for _, dep := range node.Dependencies {
		parent, ok := h.jobs[dep.Parent]
		if !ok {
			continue
		}
		for _, conn := range dep.Connections {
			if value, found := parent.Output.Get(conn.Output); found {
				value.Name = conn.Input
				input.Set(value)
			}
		}
	}

	if jobType == nil {
		return input, nil
	}
	for _, in := range jobType.Interface.Inputs {
		if _, found := input.Get(in.Name); in.Required && !found {
			return nil, errors.InvalidData(EntityRecipe, "MISSING_INPUT",
				fmt.Sprintf("job %s is missing required input %s", node.Name, in.Name))
		}
	}
	return input, nil
}

// NodeInput assembles the input of a node whose parents are ready, it is
// how a sub-recipe receives its data from the recipe containing it.
func (h *Handler) NodeInput(nodeName string) (*job.Data, bool) {
	node, ok := h.graph.Node(nodeName)
	if !ok || !h.parentsReady(node) {
		return nil, false
	}
	input, err := h.jobInput(node, nil)
	if err != nil {
		return nil, false
	}
	return input, true
}

// JobsReadyForFirstQueue returns the jobs that have their input and were
// never queued.
func (h *Handler) JobsReadyForFirstQueue() []*job.Job {
	var ready []*job.Job
	for _, name := range h.order {
		j, ok := h.jobs[name]
		if ok && j.Status == job.StatusPending && j.CanBeQueued(0, false) {
			ready = append(ready, j)
		}
	}
	return ready
}

// JobsToCreate lists the job nodes that do not have a job yet.
func (h *Handler) JobsToCreate() []*graph.Node {
	var nodes []*graph.Node
	for _, name := range h.order {
		node, _ := h.graph.Node(name)
		if _, ok := h.jobs[name]; node.Type == graph.NodeTypeJob && !ok {
			nodes = append(nodes, node)
		}
	}
	return nodes
}

// SubRecipesToCreate lists the recipe nodes that do not have a sub-recipe
// yet, together with whether their parents are ready to pass on input.
func (h *Handler) SubRecipesToCreate() []SubRecipeNode {
	var nodes []SubRecipeNode
	for _, name := range h.order {
		node, _ := h.graph.Node(name)
		if _, ok := h.subRecipes[name]; node.Type == graph.NodeTypeRecipe && !ok {
			nodes = append(nodes, SubRecipeNode{Node: node, ParentsReady: h.parentsReady(node)})
		}
	}
	return nodes
}

type SubRecipeNode struct {
	Node         *graph.Node
	ParentsReady bool
}

// IsCompleted reports whether every node of the definition finished.
func (h *Handler) IsCompleted() bool {
	for _, name := range h.order {
		node, _ := h.graph.Node(name)
		if node.Type == graph.NodeTypeRecipe {
			r, ok := h.subRecipes[name]
			if !ok || !r.IsCompleted {
				return false
			}
			continue
		}
		j, ok := h.jobs[name]
		if !ok || j.Status != job.StatusCompleted {
			return false
		}
	}
	return true
}

// Metrics counts the current jobs and sub-recipes of the recipe.
func (h *Handler) Metrics() Metrics {
	return ComputeMetrics(h.Jobs(), h.SubRecipes())
}

// CompleteIfDone marks the recipe completed once all its nodes are.
func (h *Handler) CompleteIfDone(when time.Time) bool {
	if !h.IsCompleted() {
		return false
	}
	return h.Recipe.Complete(when)
}

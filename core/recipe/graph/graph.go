package graph

import (
	stderrors "errors"
	"fmt"

	"github.com/emirpasic/gods/maps/linkedhashmap"
	"github.com/xlab/treeprint"

	"github.com/raystack/scale/core/job"
	"github.com/raystack/scale/internal/errors"
)

const EntityGraph = "recipeGraph"

// ErrCyclicDependency is wrapped by the error TopologicalOrder returns for a cycle.
var ErrCyclicDependency = stderrors.New("a cycle dependency encountered in the graph")

type NodeType string

const (
	NodeTypeJob    NodeType = "job"
	NodeTypeRecipe NodeType = "recipe"
)

type Input struct {
	Name       string
	Type       job.InputType
	Required   bool
	MediaTypes []string
}

type Connection struct {
	Output string
	Input  string
}

type RecipeInput struct {
	RecipeInput string
	JobInput    string
}

type Dependency struct {
	Parent      string
	Connections []Connection
}

type Node struct {
	Name string
	Type NodeType

	JobTypeName     string
	JobTypeVersion  string
	JobTypeRevision int

	RecipeTypeName     string
	RecipeTypeRevision int

	RecipeInputs []RecipeInput
	Dependencies []Dependency

	Parents  []*Node
	Children []*Node
}

func (n *Node) JobTypeKey() job.Key {
	return job.Key{Name: n.JobTypeName, Version: n.JobTypeVersion}
}

// InputNames lists every job input bound by this node, recipe inputs first.
func (n *Node) InputNames() []string {
	var names []string
	for _, ri := range n.RecipeInputs {
		names = append(names, ri.JobInput)
	}
	for _, dep := range n.Dependencies {
		for _, conn := range dep.Connections {
			names = append(names, conn.Input)
		}
	}
	return names
}

func (n *Node) hasParent(name string) bool {
	for _, p := range n.Parents {
		if p.Name == name {
			return true
		}
	}
	return false
}

// Graph keeps inputs and nodes in insertion order so every walk over it is
// reproducible.
type Graph struct {
	inputs *linkedhashmap.Map
	nodes  *linkedhashmap.Map
}

func New() *Graph {
	return &Graph{
		inputs: linkedhashmap.New(),
		nodes:  linkedhashmap.New(),
	}
}

func (g *Graph) AddInput(input Input) error {
	if _, found := g.inputs.Get(input.Name); found {
		return errors.InvalidArgument(EntityGraph, "duplicate input "+input.Name)
	}
	g.inputs.Put(input.Name, input)
	return nil
}

func (g *Graph) AddJob(name, jobTypeName, jobTypeVersion string) (*Node, error) {
	return g.addNode(&Node{
		Name:           name,
		Type:           NodeTypeJob,
		JobTypeName:    jobTypeName,
		JobTypeVersion: jobTypeVersion,
	})
}

func (g *Graph) AddRecipe(name, recipeTypeName string, revisionNum int) (*Node, error) {
	return g.addNode(&Node{
		Name:               name,
		Type:               NodeTypeRecipe,
		RecipeTypeName:     recipeTypeName,
		RecipeTypeRevision: revisionNum,
	})
}

func (g *Graph) addNode(node *Node) (*Node, error) {
	if _, found := g.nodes.Get(node.Name); found {
		return nil, errors.InvalidArgument(EntityGraph, "duplicate node "+node.Name)
	}
	g.nodes.Put(node.Name, node)
	return node, nil
}

func (g *Graph) AddRecipeInputConnection(recipeInput, jobName, jobInput string) error {
	if _, found := g.inputs.Get(recipeInput); !found {
		return errors.InvalidArgument(EntityGraph, "unknown recipe input "+recipeInput)
	}
	node, ok := g.Node(jobName)
	if !ok {
		return errors.InvalidArgument(EntityGraph, "unknown node "+jobName)
	}
	node.RecipeInputs = append(node.RecipeInputs, RecipeInput{RecipeInput: recipeInput, JobInput: jobInput})
	return nil
}

func (g *Graph) AddDependency(parentName, jobName string, connections []Connection) error {
	parent, ok := g.Node(parentName)
	if !ok {
		return errors.InvalidArgument(EntityGraph, "unknown parent node "+parentName)
	}
	child, ok := g.Node(jobName)
	if !ok {
		return errors.InvalidArgument(EntityGraph, "unknown node "+jobName)
	}

	if !child.hasParent(parentName) {
		child.Parents = append(child.Parents, parent)
		parent.Children = append(parent.Children, child)
	}
	child.Dependencies = append(child.Dependencies, Dependency{Parent: parentName, Connections: connections})
	return nil
}

func (g *Graph) Node(name string) (*Node, bool) {
	value, found := g.nodes.Get(name)
	if !found {
		return nil, false
	}
	return value.(*Node), true
}

func (g *Graph) Nodes() []*Node {
	nodes := make([]*Node, 0, g.nodes.Size())
	for _, v := range g.nodes.Values() {
		nodes = append(nodes, v.(*Node))
	}
	return nodes
}

func (g *Graph) Inputs() []Input {
	inputs := make([]Input, 0, g.inputs.Size())
	for _, v := range g.inputs.Values() {
		inputs = append(inputs, v.(Input))
	}
	return inputs
}

func (g *Graph) Input(name string) (Input, bool) {
	value, found := g.inputs.Get(name)
	if !found {
		return Input{}, false
	}
	return value.(Input), true
}

// RootNodes are the nodes without parents, in insertion order.
func (g *Graph) RootNodes() []*Node {
	var roots []*Node
	for _, node := range g.Nodes() {
		if len(node.Parents) == 0 {
			roots = append(roots, node)
		}
	}
	return roots
}

// TopologicalOrder emits, at every step, the earliest inserted node whose
// parents have all been emitted.
func (g *Graph) TopologicalOrder() ([]string, error) {
	nodes := g.Nodes()
	remaining := make(map[string]int, len(nodes))
	for _, node := range nodes {
		remaining[node.Name] = len(node.Parents)
	}

	order := make([]string, 0, len(nodes))
	emitted := make(map[string]bool, len(nodes))
	for len(order) < len(nodes) {
		var next *Node
		for _, node := range nodes {
			if !emitted[node.Name] && remaining[node.Name] == 0 {
				next = node
				break
			}
		}
		if next == nil {
			return nil, g.cycleError(emitted)
		}

		emitted[next.Name] = true
		order = append(order, next.Name)
		for _, child := range next.Children {
			remaining[child.Name]--
		}
	}
	return order, nil
}

func (g *Graph) cycleError(emitted map[string]bool) error {
	var path []string
	visited := map[string]bool{}
	for _, node := range g.Nodes() {
		if emitted[node.Name] || visited[node.Name] {
			continue
		}
		if path = findCycle(node, visited, map[string]bool{}, nil); path != nil {
			break
		}
	}

	return &errors.DomainError{
		ErrorType:  errors.ErrLogic,
		Entity:     EntityGraph,
		Message:    fmt.Sprintf("%s: %s", ErrCyclicDependency.Error(), stringifyPaths(path)),
		WrappedErr: ErrCyclicDependency,
	}
}

func findCycle(node *Node, visited, inPath map[string]bool, path []string) []string {
	visited[node.Name] = true
	inPath[node.Name] = true
	path = append(path, node.Name)

	for _, child := range node.Children {
		if inPath[child.Name] {
			return append(path, child.Name)
		}
		if visited[child.Name] {
			continue
		}
		if cycle := findCycle(child, visited, inPath, path); cycle != nil {
			return cycle
		}
	}

	inPath[node.Name] = false
	return nil
}

func stringifyPaths(paths []string) string {
	if len(paths) == 0 {
		return ""
	}
	root := treeprint.NewWithRoot(paths[0])
	tree := root
	for _, p := range paths[1:] {
		tree = tree.AddBranch(p)
	}
	return "\n" + root.String()
}

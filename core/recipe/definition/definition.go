package definition

import (
	"context"
	"fmt"

	"github.com/emirpasic/gods/maps/linkedhashmap"
	"github.com/emirpasic/gods/sets/linkedhashset"
	"github.com/goccy/go-json"

	"github.com/raystack/scale/core/job"
	"github.com/raystack/scale/core/recipe/graph"
	"github.com/raystack/scale/internal/errors"
)

const (
	EntityDefinition = "recipeDefinition"

	DefaultVersion = "1.0"
)

// Machine readable keys of definition errors.
const (
	KeyInvalidSchema      = "INVALID_SCHEMA"
	KeyDuplicateInput     = "DUPLICATE_INPUT"
	KeyDuplicateNode      = "DUPLICATE_NODE"
	KeyUnknownDependency  = "UNKNOWN_DEPENDENCY"
	KeyCircularDependency = "CIRCULAR_DEPENDENCY"
	KeyDuplicateJobInput  = "DUPLICATE_JOB_INPUT"
	KeyUnknownInput       = "UNKNOWN_INPUT"
	KeyUnknownJobType     = "UNKNOWN_JOB_TYPE"
	KeyNodeInterface      = "NODE_INTERFACE"
)

type InputSpec struct {
	Name       string        `json:"name"`
	Type       job.InputType `json:"type"`
	Required   *bool         `json:"required,omitempty"`
	MediaTypes []string      `json:"media_types,omitempty"`
}

func (i InputSpec) IsRequired() bool {
	return i.Required == nil || *i.Required
}

type JobTypeSpec struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	RevisionNum int    `json:"revision_num,omitempty"`
}

type RecipeTypeSpec struct {
	Name        string `json:"name"`
	RevisionNum int    `json:"revision_num"`
}

type RecipeInputSpec struct {
	RecipeInput string `json:"recipe_input"`
	JobInput    string `json:"job_input"`
}

type ConnectionSpec struct {
	Output string `json:"output"`
	Input  string `json:"input"`
}

type DependencySpec struct {
	Name        string           `json:"name"`
	Connections []ConnectionSpec `json:"connections,omitempty"`
}

// NodeSpec declares a job node (JobType set) or a sub-recipe node
// (RecipeType set).
type NodeSpec struct {
	Name         string            `json:"name"`
	JobType      *JobTypeSpec      `json:"job_type,omitempty"`
	RecipeType   *RecipeTypeSpec   `json:"recipe_type,omitempty"`
	RecipeInputs []RecipeInputSpec `json:"recipe_inputs,omitempty"`
	Dependencies []DependencySpec  `json:"dependencies,omitempty"`
}

type Spec struct {
	Version   string      `json:"version,omitempty"`
	InputData []InputSpec `json:"input_data,omitempty"`
	Jobs      []NodeSpec  `json:"jobs"`
}

// Definition is an immutable, validated recipe definition.
type Definition struct {
	spec   Spec
	inputs *linkedhashmap.Map
	nodes  *linkedhashmap.Map
}

// Parse validates raw against the definition schema and then checks the
// declared graph. Nothing is built unless every check passes.
func Parse(raw []byte) (*Definition, error) {
	if err := validateSchema(context.Background(), raw); err != nil {
		return nil, err
	}

	var spec Spec
	if err := json.Unmarshal(raw, &spec); err != nil {
		return nil, errors.InvalidDefinition(EntityDefinition, KeyInvalidSchema, err.Error())
	}
	return build(spec)
}

func New(spec Spec) (*Definition, error) {
	if spec.Jobs == nil {
		spec.Jobs = []NodeSpec{}
	}
	raw, err := json.Marshal(spec)
	if err != nil {
		return nil, errors.InternalError(EntityDefinition, "unable to encode definition", err)
	}
	return Parse(raw)
}

func build(spec Spec) (*Definition, error) {
	if spec.Version == "" {
		spec.Version = DefaultVersion
	}
	d := &Definition{
		spec:   spec,
		inputs: linkedhashmap.New(),
		nodes:  linkedhashmap.New(),
	}

	for _, in := range spec.InputData {
		if _, found := d.inputs.Get(in.Name); found {
			return nil, errors.InvalidDefinition(EntityDefinition, KeyDuplicateInput,
				fmt.Sprintf("%s is a duplicate input data name", in.Name))
		}
		d.inputs.Put(in.Name, in)
	}
	for _, node := range spec.Jobs {
		if _, found := d.nodes.Get(node.Name); found {
			return nil, errors.InvalidDefinition(EntityDefinition, KeyDuplicateNode,
				fmt.Sprintf("%s is a duplicate job name", node.Name))
		}
		d.nodes.Put(node.Name, node)
	}

	validations := []func() error{
		d.validateDependencies,
		d.validateNoCycles,
		d.validateNoDuplicateJobInputs,
		d.validateRecipeInputs,
	}
	for _, validate := range validations {
		if err := validate(); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func (d *Definition) validateDependencies() error {
	for _, node := range d.Nodes() {
		for _, dep := range node.Dependencies {
			if _, found := d.nodes.Get(dep.Name); !found {
				return errors.InvalidDefinition(EntityDefinition, KeyUnknownDependency,
					fmt.Sprintf("Job %s has undefined dependency %s", node.Name, dep.Name))
			}
		}
	}
	return nil
}

// validateNoCycles walks the dependencies of every node layer by layer and
// fails as soon as the node shows up among its own ancestors.
func (d *Definition) validateNoCycles() error {
	for _, node := range d.Nodes() {
		visited := linkedhashset.New()
		layer := dependencyNames(node)
		for len(layer) > 0 {
			var next []string
			for _, name := range layer {
				if name == node.Name {
					return errors.InvalidDefinition(EntityDefinition, KeyCircularDependency,
						fmt.Sprintf("Job %s has a circular dependency", node.Name))
				}
				if visited.Contains(name) {
					continue
				}
				visited.Add(name)

				parent, _ := d.Node(name)
				next = append(next, dependencyNames(parent)...)
			}
			layer = next
		}
	}
	return nil
}

func dependencyNames(node NodeSpec) []string {
	names := make([]string, len(node.Dependencies))
	for i, dep := range node.Dependencies {
		names[i] = dep.Name
	}
	return names
}

func (d *Definition) validateNoDuplicateJobInputs() error {
	for _, node := range d.Nodes() {
		seen := map[string]bool{}
		for _, name := range boundInputNames(node) {
			if seen[name] {
				return errors.InvalidDefinition(EntityDefinition, KeyDuplicateJobInput,
					fmt.Sprintf("Job %s has duplicate input %s", node.Name, name))
			}
			seen[name] = true
		}
	}
	return nil
}

func boundInputNames(node NodeSpec) []string {
	var names []string
	for _, ri := range node.RecipeInputs {
		names = append(names, ri.JobInput)
	}
	for _, dep := range node.Dependencies {
		for _, conn := range dep.Connections {
			names = append(names, conn.Input)
		}
	}
	return names
}

func (d *Definition) validateRecipeInputs() error {
	for _, node := range d.Nodes() {
		for _, ri := range node.RecipeInputs {
			if _, found := d.inputs.Get(ri.RecipeInput); !found {
				return errors.InvalidDefinition(EntityDefinition, KeyUnknownInput,
					fmt.Sprintf("Job %s has undefined recipe input %s", node.Name, ri.RecipeInput))
			}
		}
	}
	return nil
}

func (d *Definition) Spec() Spec {
	return d.spec
}

func (d *Definition) Version() string {
	return d.spec.Version
}

func (d *Definition) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.spec)
}

func (d *Definition) Inputs() []InputSpec {
	inputs := make([]InputSpec, 0, d.inputs.Size())
	for _, v := range d.inputs.Values() {
		inputs = append(inputs, v.(InputSpec))
	}
	return inputs
}

func (d *Definition) Input(name string) (InputSpec, bool) {
	v, found := d.inputs.Get(name)
	if !found {
		return InputSpec{}, false
	}
	return v.(InputSpec), true
}

func (d *Definition) Nodes() []NodeSpec {
	nodes := make([]NodeSpec, 0, d.nodes.Size())
	for _, v := range d.nodes.Values() {
		nodes = append(nodes, v.(NodeSpec))
	}
	return nodes
}

func (d *Definition) Node(name string) (NodeSpec, bool) {
	v, found := d.nodes.Get(name)
	if !found {
		return NodeSpec{}, false
	}
	return v.(NodeSpec), true
}

// Graph replays inputs, nodes, recipe input bindings and dependencies in
// declaration order.
func (d *Definition) Graph() (*graph.Graph, error) {
	g := graph.New()
	for _, in := range d.Inputs() {
		err := g.AddInput(graph.Input{
			Name:       in.Name,
			Type:       in.Type,
			Required:   in.IsRequired(),
			MediaTypes: in.MediaTypes,
		})
		if err != nil {
			return nil, err
		}
	}

	nodes := d.Nodes()
	for _, node := range nodes {
		if node.RecipeType != nil {
			if _, err := g.AddRecipe(node.Name, node.RecipeType.Name, node.RecipeType.RevisionNum); err != nil {
				return nil, err
			}
			continue
		}
		n, err := g.AddJob(node.Name, node.JobType.Name, node.JobType.Version)
		if err != nil {
			return nil, err
		}
		n.JobTypeRevision = node.JobType.RevisionNum
	}

	for _, node := range nodes {
		for _, ri := range node.RecipeInputs {
			if err := g.AddRecipeInputConnection(ri.RecipeInput, node.Name, ri.JobInput); err != nil {
				return nil, err
			}
		}
		for _, dep := range node.Dependencies {
			connections := make([]graph.Connection, len(dep.Connections))
			for i, conn := range dep.Connections {
				connections[i] = graph.Connection{Output: conn.Output, Input: conn.Input}
			}
			if err := g.AddDependency(dep.Name, node.Name, connections); err != nil {
				return nil, err
			}
		}
	}
	return g, nil
}

func (d *Definition) TopologicalOrder() ([]string, error) {
	g, err := d.Graph()
	if err != nil {
		return nil, err
	}
	return g.TopologicalOrder()
}

type JobToCreate struct {
	Name    string
	JobType job.Key
}

type SubRecipeToCreate struct {
	Name           string
	RecipeTypeName string
	RevisionNum    int
}

// JobsToCreate lists the job nodes in the order they must be materialized.
func (d *Definition) JobsToCreate() ([]JobToCreate, error) {
	order, err := d.TopologicalOrder()
	if err != nil {
		return nil, err
	}

	var jobs []JobToCreate
	for _, name := range order {
		node, _ := d.Node(name)
		if node.JobType == nil {
			continue
		}
		jobs = append(jobs, JobToCreate{
			Name:    name,
			JobType: job.Key{Name: node.JobType.Name, Version: node.JobType.Version},
		})
	}
	return jobs, nil
}

func (d *Definition) SubRecipesToCreate() ([]SubRecipeToCreate, error) {
	order, err := d.TopologicalOrder()
	if err != nil {
		return nil, err
	}

	var recipes []SubRecipeToCreate
	for _, name := range order {
		node, _ := d.Node(name)
		if node.RecipeType == nil {
			continue
		}
		recipes = append(recipes, SubRecipeToCreate{
			Name:           name,
			RecipeTypeName: node.RecipeType.Name,
			RevisionNum:    node.RecipeType.RevisionNum,
		})
	}
	return recipes, nil
}

// JobTypeKeys returns the distinct job types used, in declaration order.
func (d *Definition) JobTypeKeys() []job.Key {
	seen := map[job.Key]bool{}
	var keys []job.Key
	for _, node := range d.Nodes() {
		if node.JobType == nil {
			continue
		}
		key := job.Key{Name: node.JobType.Name, Version: node.JobType.Version}
		if !seen[key] {
			seen[key] = true
			keys = append(keys, key)
		}
	}
	return keys
}

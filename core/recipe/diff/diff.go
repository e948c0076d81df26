package diff

import (
	"github.com/emirpasic/gods/maps/linkedhashmap"

	"github.com/raystack/scale/core/recipe/definition"
	"github.com/raystack/scale/core/recipe/graph"
	"github.com/raystack/scale/internal/errors"
)

const EntityDiff = "recipeDiff"

const ReasonInputChange = "INPUT_CHANGE"

// Reason explains why a diff can not be reprocessed.
type Reason struct {
	Name        string
	Description string
}

// Diff is the node by node difference between two revisions of a recipe
// definition. Nodes are kept in the topological order of the new revision,
// followed by deleted nodes in the order of the previous one.
type Diff struct {
	CanBeReprocessed bool
	Reasons          []Reason

	nodes *linkedhashmap.Map
}

func New(prev, next *definition.Definition) (*Diff, error) {
	d := &Diff{
		CanBeReprocessed: true,
		nodes:            linkedhashmap.New(),
	}
	d.compareInputInterfaces(prev, next)

	if err := d.createDiffGraph(prev, next); err != nil {
		return nil, errors.Wrap(EntityDiff, "unable to diff recipe definitions", err)
	}
	return d, nil
}

func (d *Diff) compareInputInterfaces(prev, next *definition.Definition) {
	conn := definition.Connection{HasWorkspace: true}
	for _, in := range prev.Inputs() {
		conn.Inputs = append(conn.Inputs, definition.ConnectionInput{
			Name:       in.Name,
			Type:       in.Type,
			MediaTypes: in.MediaTypes,
			Optional:   !in.IsRequired(),
		})
	}

	if _, err := next.ValidateConnection(conn, nil); err != nil {
		d.CanBeReprocessed = false
		msg := err.Error()
		var de *errors.DomainError
		if errors.As(err, &de) {
			msg = de.Message
		}
		d.Reasons = append(d.Reasons, Reason{Name: ReasonInputChange, Description: "Input interface has changed: " + msg})
	}
}

func (d *Diff) createDiffGraph(prev, next *definition.Definition) error {
	nextGraph, err := next.Graph()
	if err != nil {
		return err
	}
	prevGraph, err := prev.Graph()
	if err != nil {
		return err
	}

	order, err := nextGraph.TopologicalOrder()
	if err != nil {
		return err
	}
	for _, name := range order {
		node, _ := nextGraph.Node(name)
		nodeDiff := d.add(node, StatusNew)
		if prevNode, found := prevGraph.Node(name); found {
			nodeDiff.compareToPrevious(prevNode)
		}
	}

	prevOrder, err := prevGraph.TopologicalOrder()
	if err != nil {
		return err
	}
	for _, name := range prevOrder {
		if _, found := d.nodes.Get(name); found {
			continue
		}
		node, _ := prevGraph.Node(name)
		d.add(node, StatusDeleted)
	}
	return nil
}

// add registers a diff for node, its parents must already be registered.
func (d *Diff) add(node *graph.Node, status Status) *NodeDiff {
	nodeDiff := newNodeDiff(node, d.CanBeReprocessed, status)
	d.nodes.Put(nodeDiff.Name, nodeDiff)
	for _, parent := range node.Parents {
		if parentDiff, ok := d.Node(parent.Name); ok {
			nodeDiff.addDependency(parentDiff)
		}
	}
	return nodeDiff
}

// SetForceReprocess forces the selected nodes, and everything depending on
// them, to be reprocessed.
func (d *Diff) SetForceReprocess(forced *ForcedNodes) {
	if forced.IsEmpty() {
		return
	}
	for _, node := range d.Nodes() {
		if forced.IsForced(node.Name) {
			node.setForceReprocess(forced)
		}
	}
}

func (d *Diff) Node(name string) (*NodeDiff, bool) {
	v, found := d.nodes.Get(name)
	if !found {
		return nil, false
	}
	return v.(*NodeDiff), true
}

func (d *Diff) Nodes() []*NodeDiff {
	nodes := make([]*NodeDiff, 0, d.nodes.Size())
	for _, v := range d.nodes.Values() {
		nodes = append(nodes, v.(*NodeDiff))
	}
	return nodes
}

func (d *Diff) filter(keep func(*NodeDiff) bool) *linkedhashmap.Map {
	filtered := linkedhashmap.New()
	if !d.CanBeReprocessed {
		return filtered
	}
	for _, node := range d.Nodes() {
		if keep(node) {
			filtered.Put(node.Name, node)
		}
	}
	return filtered
}

// NodesToCopy returns the nodes whose previous jobs and sub-recipes are
// carried over into the new recipe, keyed by name in diff order.
func (d *Diff) NodesToCopy() *linkedhashmap.Map {
	return d.filter((*NodeDiff).ShouldBeCopied)
}

func (d *Diff) NodesToSupersede() *linkedhashmap.Map {
	return d.filter((*NodeDiff).ShouldBeSuperseded)
}

// NodesToRecursivelySupersede returns the sub-recipe nodes whose whole
// previous subtree is superseded, as they have no counterpart to be diffed
// against.
func (d *Diff) NodesToRecursivelySupersede() *linkedhashmap.Map {
	return d.filter(func(n *NodeDiff) bool {
		isRecipe := n.NodeType() == graph.NodeTypeRecipe || n.PrevNodeType() == graph.NodeTypeRecipe
		if !isRecipe || !n.ShouldBeSuperseded() {
			return false
		}
		return n.Status == StatusDeleted || n.hasChange(ChangeNodeType, ChangeRecipeType)
	})
}

func (d *Diff) NodesToUnpublish() *linkedhashmap.Map {
	return d.filter((*NodeDiff).ShouldBeUnpublished)
}

// Names returns the keys of a node map returned by the diff.
func Names(nodes *linkedhashmap.Map) []string {
	names := make([]string, 0, nodes.Size())
	for _, k := range nodes.Keys() {
		names = append(names, k.(string))
	}
	return names
}

// NodeDiffs returns the values of a node map returned by the diff.
func NodeDiffs(nodes *linkedhashmap.Map) []*NodeDiff {
	diffs := make([]*NodeDiff, 0, nodes.Size())
	for _, v := range nodes.Values() {
		diffs = append(diffs, v.(*NodeDiff))
	}
	return diffs
}

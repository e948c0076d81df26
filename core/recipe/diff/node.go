package diff

import (
	"fmt"

	"github.com/raystack/scale/core/recipe/graph"
)

type Status string

const (
	StatusUnchanged Status = "UNCHANGED"
	StatusChanged   Status = "CHANGED"
	StatusNew       Status = "NEW"
	StatusDeleted   Status = "DELETED"
)

// Change reasons recorded on a NodeDiff.
const (
	ChangeNodeType           = "NODE_TYPE_CHANGE"
	ChangeJobType            = "JOB_TYPE_CHANGE"
	ChangeJobTypeVersion     = "JOB_TYPE_VERSION_CHANGE"
	ChangeJobTypeRevision    = "JOB_TYPE_REVISION_CHANGE"
	ChangeRecipeType         = "RECIPE_TYPE_CHANGE"
	ChangeRecipeTypeRevision = "RECIPE_TYPE_REVISION_CHANGE"
	ChangeParentNew          = "PARENT_NEW"
	ChangeParentChanged      = "PARENT_CHANGED"
	ChangeParentRemoved      = "PARENT_REMOVED"
	ChangeInputNew           = "INPUT_NEW"
	ChangeInputChange        = "INPUT_CHANGE"
	ChangeInputRemoved       = "INPUT_REMOVED"
)

type Change struct {
	Name        string
	Description string
}

// NodeKind is either a JobNode or a RecipeNode.
type NodeKind interface {
	NodeType() graph.NodeType
}

type JobNode struct {
	JobTypeName    string
	JobTypeVersion string
	Revision       int
}

func (JobNode) NodeType() graph.NodeType { return graph.NodeTypeJob }

type RecipeNode struct {
	RecipeTypeName string
	Revision       int
}

func (RecipeNode) NodeType() graph.NodeType { return graph.NodeTypeRecipe }

func kindOf(node *graph.Node) NodeKind {
	if node.Type == graph.NodeTypeRecipe {
		return RecipeNode{RecipeTypeName: node.RecipeTypeName, Revision: node.RecipeTypeRevision}
	}
	return JobNode{JobTypeName: node.JobTypeName, JobTypeVersion: node.JobTypeVersion, Revision: node.JobTypeRevision}
}

// source is where a node input gets its value from: a recipe input or the
// output of a parent.
type source struct {
	RecipeInput string
	Parent      string
	Output      string
}

type NodeDiff struct {
	Name     string
	Kind     NodeKind
	PrevKind NodeKind
	Status   Status
	Changes  []Change

	ForceReprocess   bool
	ReprocessNewNode bool
	// ForceReprocessNodes is the selection to force within a sub-recipe node.
	ForceReprocessNodes *ForcedNodes

	Parents  []*NodeDiff
	Children []*NodeDiff

	inputs           []string
	sources          map[string]source
	canBeReprocessed bool
}

func newNodeDiff(node *graph.Node, canBeReprocessed bool, status Status) *NodeDiff {
	n := &NodeDiff{
		Name:             node.Name,
		Kind:             kindOf(node),
		Status:           status,
		sources:          map[string]source{},
		canBeReprocessed: canBeReprocessed,
	}
	for _, ri := range node.RecipeInputs {
		n.addSource(ri.JobInput, source{RecipeInput: ri.RecipeInput})
	}
	for _, dep := range node.Dependencies {
		for _, conn := range dep.Connections {
			n.addSource(conn.Input, source{Parent: dep.Parent, Output: conn.Output})
		}
	}
	n.calculateReprocessNewNode()
	return n
}

func (n *NodeDiff) addSource(input string, s source) {
	n.inputs = append(n.inputs, input)
	n.sources[input] = s
}

func (n *NodeDiff) NodeType() graph.NodeType {
	return n.Kind.NodeType()
}

// PrevNodeType is the type the node had in the previous definition.
func (n *NodeDiff) PrevNodeType() graph.NodeType {
	if n.PrevKind != nil {
		return n.PrevKind.NodeType()
	}
	return n.Kind.NodeType()
}

func (n *NodeDiff) addDependency(parent *NodeDiff) {
	for _, p := range n.Parents {
		if p.Name == parent.Name {
			return
		}
	}
	n.Parents = append(n.Parents, parent)
	parent.Children = append(parent.Children, n)
}

func (n *NodeDiff) hasParent(name string) bool {
	for _, p := range n.Parents {
		if p.Name == name {
			return true
		}
	}
	return false
}

// compareToPrevious records every difference to the same named node of the
// previous definition. A changed parent alone leaves the node UNCHANGED.
func (n *NodeDiff) compareToPrevious(prevNode *graph.Node) {
	n.Changes = nil
	prev := newNodeDiff(prevNode, false, StatusDeleted)

	n.compareKind(prev)
	n.compareDependencies(prevNode)
	n.compareConnections(prev)

	n.Status = StatusUnchanged
	for _, c := range n.Changes {
		if c.Name != ChangeParentChanged {
			n.Status = StatusChanged
			break
		}
	}
	n.calculateReprocessNewNode()
}

func (n *NodeDiff) addChange(name, format string, args ...any) {
	n.Changes = append(n.Changes, Change{Name: name, Description: fmt.Sprintf(format, args...)})
}

func (n *NodeDiff) compareKind(prev *NodeDiff) {
	switch kind := n.Kind.(type) {
	case JobNode:
		prevKind, ok := prev.Kind.(JobNode)
		if !ok {
			break
		}
		if kind.JobTypeName != prevKind.JobTypeName {
			n.PrevKind = prevKind
			n.addChange(ChangeJobType, "Job type changed from %s to %s", prevKind.JobTypeName, kind.JobTypeName)
		}
		if kind.JobTypeVersion != prevKind.JobTypeVersion {
			n.PrevKind = prevKind
			n.addChange(ChangeJobTypeVersion, "Job type version changed from %s to %s",
				prevKind.JobTypeVersion, kind.JobTypeVersion)
		}
		if kind.Revision != prevKind.Revision {
			n.PrevKind = prevKind
			n.addChange(ChangeJobTypeRevision, "Job type revision changed from %d to %d",
				prevKind.Revision, kind.Revision)
		}
		return
	case RecipeNode:
		prevKind, ok := prev.Kind.(RecipeNode)
		if !ok {
			break
		}
		if kind.RecipeTypeName != prevKind.RecipeTypeName {
			n.PrevKind = prevKind
			n.addChange(ChangeRecipeType, "Recipe type changed from %s to %s",
				prevKind.RecipeTypeName, kind.RecipeTypeName)
		}
		if kind.Revision != prevKind.Revision {
			n.PrevKind = prevKind
			n.addChange(ChangeRecipeTypeRevision, "Recipe type revision changed from %d to %d",
				prevKind.Revision, kind.Revision)
		}
		return
	}

	n.PrevKind = prev.Kind
	n.addChange(ChangeNodeType, "Node type changed from %s to %s", prev.NodeType(), n.NodeType())
}

func (n *NodeDiff) compareDependencies(prev *graph.Node) {
	prevParents := map[string]bool{}
	for _, p := range prev.Parents {
		prevParents[p.Name] = true
	}
	for _, parent := range n.Parents {
		if !prevParents[parent.Name] {
			n.addChange(ChangeParentNew, "New parent node %s added", parent.Name)
		} else if parent.Status == StatusChanged {
			n.addChange(ChangeParentChanged, "Parent node %s changed", parent.Name)
		}
	}
	for _, prevParent := range prev.Parents {
		if !n.hasParent(prevParent.Name) {
			n.addChange(ChangeParentRemoved, "Previous parent node %s removed", prevParent.Name)
		}
	}
}

func (n *NodeDiff) compareConnections(prev *NodeDiff) {
	for _, input := range n.inputs {
		prevSource, found := prev.sources[input]
		if !found {
			n.addChange(ChangeInputNew, "New input %s added", input)
		} else if prevSource != n.sources[input] {
			n.addChange(ChangeInputChange, "Input %s changed", input)
		}
	}
	for _, input := range prev.inputs {
		if _, found := n.sources[input]; !found {
			n.addChange(ChangeInputRemoved, "Previous input %s removed", input)
		}
	}
}

func (n *NodeDiff) setForceReprocess(forced *ForcedNodes) {
	// a forced node has all its descendants forced already
	if n.ForceReprocess {
		return
	}
	n.ForceReprocess = true
	n.calculateReprocessNewNode()
	if n.NodeType() == graph.NodeTypeRecipe {
		if sub := forced.ForSubRecipe(n.Name); sub != nil {
			n.ForceReprocessNodes = sub
		}
	}

	for _, child := range n.Children {
		child.setForceReprocess(forced)
	}
}

func (n *NodeDiff) calculateReprocessNewNode() {
	if !n.canBeReprocessed {
		n.ReprocessNewNode = false
		return
	}
	byStatus := n.Status == StatusChanged || n.Status == StatusNew
	byForce := n.ForceReprocess && n.Status != StatusDeleted
	n.ReprocessNewNode = byStatus || byForce
}

// ShouldBeCopied reports whether the previous node carries over untouched.
func (n *NodeDiff) ShouldBeCopied() bool {
	return n.Status != StatusDeleted && !n.ReprocessNewNode
}

func (n *NodeDiff) ShouldBeSuperseded() bool {
	replaced := n.Status == StatusChanged || (n.Status == StatusUnchanged && n.ForceReprocess)
	return n.Status == StatusDeleted || replaced
}

// ShouldBeUnpublished is only true for deleted nodes, a replaced node is
// unpublished once its replacement completes.
func (n *NodeDiff) ShouldBeUnpublished() bool {
	return n.Status == StatusDeleted
}

func (n *NodeDiff) hasChange(names ...string) bool {
	for _, c := range n.Changes {
		for _, name := range names {
			if c.Name == name {
				return true
			}
		}
	}
	return false
}

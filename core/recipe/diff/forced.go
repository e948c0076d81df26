package diff

// ForcedNodes names the nodes of a recipe an operator wants re-run even when
// their definition did not change. SubRecipes narrows the selection inside
// forced sub-recipe nodes.
type ForcedNodes struct {
	All        bool                    `json:"all"`
	Nodes      []string                `json:"nodes,omitempty"`
	SubRecipes map[string]*ForcedNodes `json:"sub_recipes,omitempty"`
}

func NewForcedNodes() *ForcedNodes {
	return &ForcedNodes{SubRecipes: map[string]*ForcedNodes{}}
}

func AllNodes() *ForcedNodes {
	return &ForcedNodes{All: true}
}

func (f *ForcedNodes) AddNode(name string) {
	for _, n := range f.Nodes {
		if n == name {
			return
		}
	}
	f.Nodes = append(f.Nodes, name)
}

// AddSubRecipe forces the sub-recipe node and the given nodes within it.
func (f *ForcedNodes) AddSubRecipe(name string, sub *ForcedNodes) {
	f.AddNode(name)
	if f.SubRecipes == nil {
		f.SubRecipes = map[string]*ForcedNodes{}
	}
	f.SubRecipes[name] = sub
}

func (f *ForcedNodes) IsForced(name string) bool {
	if f == nil {
		return false
	}
	if f.All {
		return true
	}
	for _, n := range f.Nodes {
		if n == name {
			return true
		}
	}
	return false
}

// ForSubRecipe returns the selection inside the sub-recipe node name. When
// every node is forced the selection is inherited.
func (f *ForcedNodes) ForSubRecipe(name string) *ForcedNodes {
	if f == nil {
		return nil
	}
	if sub, ok := f.SubRecipes[name]; ok {
		return sub
	}
	if f.All {
		return AllNodes()
	}
	return nil
}

func (f *ForcedNodes) IsEmpty() bool {
	return f == nil || (!f.All && len(f.Nodes) == 0)
}

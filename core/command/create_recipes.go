package command

import (
	"context"
	"fmt"
	"time"

	"github.com/raystack/scale/core/messaging"
	"github.com/raystack/scale/core/recipe"
	"github.com/raystack/scale/core/recipe/definition"
	"github.com/raystack/scale/core/recipe/diff"
	"github.com/raystack/scale/core/recipe/graph"
	"github.com/raystack/scale/internal/errors"
)

const (
	// CreateReprocess creates new recipes superseding the latest recipes of
	// a set of root recipes.
	CreateReprocess = "reprocess"
	// CreateSubRecipes creates the sub-recipes of one recipe.
	CreateSubRecipes = "sub-recipes"
)

type SubRecipe struct {
	RecipeTypeName   string `json:"recipe_type_name"`
	RecipeTypeRevNum int    `json:"recipe_type_rev_num"`
	NodeName         string `json:"node_name"`
	ProcessInput     bool   `json:"process_input"`
}

// CreateRecipes creates recipes, either to reprocess existing recipes with
// a recipe type revision or as sub-recipes of a recipe. Recipes created by
// an earlier delivery of the same message are found by their event and
// only the follow up messages are derived again.
type CreateRecipes struct {
	CreateRecipesType string            `json:"create_recipes_type"`
	EventID           int64             `json:"event_id"`
	BatchID           int64             `json:"batch_id,omitempty"`
	ForcedNodes       *diff.ForcedNodes `json:"forced_nodes,omitempty"`

	RecipeTypeName   string  `json:"recipe_type_name,omitempty"`
	RecipeTypeRevNum int     `json:"recipe_type_rev_num,omitempty"`
	RootRecipeIDs    []int64 `json:"root_recipe_ids,omitempty"`

	RecipeID           int64       `json:"recipe_id,omitempty"`
	RootRecipeID       int64       `json:"root_recipe_id,omitempty"`
	SupersededRecipeID int64       `json:"superseded_recipe_id,omitempty"`
	SubRecipes         []SubRecipe `json:"sub_recipes,omitempty"`

	cmds *Commands
}

// NewReprocessMessages creates the messages reprocessing the given root
// recipes with a revision of their recipe type.
func (c *Commands) NewReprocessMessages(recipeTypeName string, revisionNum int, rootRecipeIDs []int64,
	eventID, batchID int64, forced *diff.ForcedNodes) []messaging.Message {
	var messages []messaging.Message
	for _, ids := range chunk(uniqueIDs(rootRecipeIDs)) {
		messages = append(messages, &CreateRecipes{
			CreateRecipesType: CreateReprocess,
			EventID:           eventID,
			BatchID:           batchID,
			ForcedNodes:       forced,
			RecipeTypeName:    recipeTypeName,
			RecipeTypeRevNum:  revisionNum,
			RootRecipeIDs:     ids,
			cmds:              c,
		})
	}
	return messages
}

// NewSubRecipesMessages creates the messages creating sub-recipes of parent.
func (c *Commands) NewSubRecipesMessages(parent *recipe.Recipe, subRecipes []SubRecipe, forced *diff.ForcedNodes) []messaging.Message {
	var messages []messaging.Message
	var current *CreateRecipes
	for _, sub := range subRecipes {
		if current == nil || !current.CanFitMore() {
			current = &CreateRecipes{
				CreateRecipesType:  CreateSubRecipes,
				EventID:            parent.EventID,
				BatchID:            parent.BatchID,
				ForcedNodes:        forced,
				RecipeID:           parent.ID,
				RootRecipeID:       rootOf(parent),
				SupersededRecipeID: parent.SupersededRecipeID,
				cmds:               c,
			}
			messages = append(messages, current)
		}
		current.SubRecipes = append(current.SubRecipes, sub)
	}
	return messages
}

func (*CreateRecipes) Type() string { return TypeCreateRecipes }

func (m *CreateRecipes) CanFitMore() bool {
	if m.CreateRecipesType == CreateReprocess {
		return len(m.RootRecipeIDs) < MaxNum
	}
	return len(m.SubRecipes) < MaxNum
}

type recipePair struct {
	superseded *recipe.Recipe
	created    *recipe.Recipe
	// nodeName is set for sub-recipes, it selects their forced nodes.
	nodeName string
}

// recipeDiff is the difference between the revision of a group of
// superseded recipes and the revision of the recipes replacing them.
type recipeDiff struct {
	diff  *diff.Diff
	pairs []recipePair
}

type creation struct {
	recipes         []*recipe.Recipe
	diffs           []recipeDiff
	processInput    map[int64]bool
	cannotReprocess int
}

// createdAt is the time the recipes were created at by whichever delivery
// created them.
func (c *creation) createdAt(fallback time.Time) time.Time {
	if len(c.recipes) == 0 {
		return fallback
	}
	return storedTime(c.recipes[0].Created)
}

func (m *CreateRecipes) Execute(ctx context.Context) (bool, []messaging.Message, error) {
	if m.CreateRecipesType != CreateReprocess && m.CreateRecipesType != CreateSubRecipes {
		return false, nil, errors.InvalidArgument(recipe.EntityRecipe,
			fmt.Sprintf("'%s' is an invalid create recipes type", m.CreateRecipesType))
	}
	when := storedTime(m.cmds.now())

	var result *creation
	err := m.cmds.repo.Transaction(ctx, func(ctx context.Context) error {
		superseded, err := m.lock(ctx)
		if err != nil {
			return err
		}
		result, err = m.findExisting(ctx)
		if err != nil || len(result.recipes) > 0 {
			return err
		}

		if m.CreateRecipesType == CreateReprocess {
			result, err = m.createForReprocess(ctx, superseded, when)
		} else {
			result, err = m.createSubRecipes(ctx, when)
		}
		if err != nil {
			return err
		}
		return m.copyNodes(ctx, result.diffs)
	})
	if err != nil {
		return false, nil, errors.Wrap(recipe.EntityRecipe, "unable to create recipes", err)
	}

	if result.cannotReprocess > 0 {
		m.cmds.logger.Error("could not reprocess %d recipe(s) due to interface changes", result.cannotReprocess)
	}
	m.cmds.logger.Info("created %d recipe(s)", len(result.recipes))
	return true, m.followUps(result, result.createdAt(when)), nil
}

// lock locks the recipes this message works on. For a reprocess those are
// the recipes about to be superseded.
func (m *CreateRecipes) lock(ctx context.Context) ([]*recipe.Recipe, error) {
	if m.CreateRecipesType == CreateReprocess {
		return m.cmds.repo.LockLatestRecipes(ctx, m.RootRecipeIDs)
	}
	_, err := m.cmds.repo.LockRecipes(ctx, []int64{m.RecipeID})
	return nil, err
}

func (m *CreateRecipes) findExisting(ctx context.Context) (*creation, error) {
	result := &creation{processInput: map[int64]bool{}}
	nodeNames := map[int64]string{}

	if m.CreateRecipesType == CreateReprocess {
		existing, err := m.cmds.repo.GetRecipesBySupersededRoot(ctx, m.RootRecipeIDs, m.EventID)
		if err != nil {
			return nil, err
		}
		result.recipes = existing
	} else {
		byNode, err := m.subRecipesByNode(ctx, m.RecipeID)
		if err != nil {
			return nil, err
		}
		for _, sub := range m.SubRecipes {
			r, ok := byNode[sub.NodeName]
			if !ok || r.EventID != m.EventID {
				continue
			}
			result.recipes = append(result.recipes, r)
			result.processInput[r.ID] = sub.ProcessInput
			nodeNames[r.ID] = sub.NodeName
		}
	}
	if len(result.recipes) == 0 {
		return result, nil
	}

	pairs, err := m.pairWithSuperseded(ctx, result.recipes, nodeNames)
	if err != nil {
		return nil, err
	}
	result.diffs, err = m.diffPairs(ctx, pairs)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// pairWithSuperseded pairs every recipe that supersedes another with it.
func (m *CreateRecipes) pairWithSuperseded(ctx context.Context, recipes []*recipe.Recipe, nodeNames map[int64]string) ([]recipePair, error) {
	var ids []int64
	for _, r := range recipes {
		ids = append(ids, r.SupersededRecipeID)
	}
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return nil, nil
	}
	superseded, err := m.cmds.repo.GetRecipes(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]*recipe.Recipe, len(superseded))
	for _, r := range superseded {
		byID[r.ID] = r
	}

	var pairs []recipePair
	for _, r := range recipes {
		if old, ok := byID[r.SupersededRecipeID]; ok {
			pairs = append(pairs, recipePair{superseded: old, created: r, nodeName: nodeNames[r.ID]})
		}
	}
	return pairs, nil
}

// diffPairs diffs the revisions of every pair. Reprocessed recipes sharing
// the same revisions share one diff, sub-recipes each get their own since
// their forced nodes differ.
func (m *CreateRecipes) diffPairs(ctx context.Context, pairs []recipePair) ([]recipeDiff, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	var revIDs []int64
	for _, p := range pairs {
		revIDs = append(revIDs, p.superseded.RecipeTypeRevID, p.created.RecipeTypeRevID)
	}
	revisions, err := m.cmds.repo.GetRevisions(ctx, uniqueIDs(revIDs))
	if err != nil {
		return nil, err
	}

	type groupKey struct {
		prev, next int64
		node       string
	}
	var order []groupKey
	grouped := map[groupKey][]recipePair{}
	for _, p := range pairs {
		key := groupKey{prev: p.superseded.RecipeTypeRevID, next: p.created.RecipeTypeRevID, node: p.nodeName}
		if _, ok := grouped[key]; !ok {
			order = append(order, key)
		}
		grouped[key] = append(grouped[key], p)
	}

	diffs := make([]recipeDiff, 0, len(order))
	for _, key := range order {
		prev, ok := revisions[key.prev]
		if !ok {
			return nil, revisionNotFound(key.prev)
		}
		next, ok := revisions[key.next]
		if !ok {
			return nil, revisionNotFound(key.next)
		}
		d, err := diff.New(prev.Definition, next.Definition)
		if err != nil {
			return nil, err
		}
		if forced := m.forcedFor(key.node); forced != nil {
			d.SetForceReprocess(forced)
		}
		diffs = append(diffs, recipeDiff{diff: d, pairs: grouped[key]})
	}
	return diffs, nil
}

func (m *CreateRecipes) forcedFor(nodeName string) *diff.ForcedNodes {
	if m.CreateRecipesType == CreateSubRecipes {
		return m.ForcedNodes.ForSubRecipe(nodeName)
	}
	return m.ForcedNodes
}

func revisionNotFound(id int64) error {
	return errors.NotFound(recipe.EntityRecipeTypeRev, fmt.Sprintf("revision %d not found", id))
}

func (m *CreateRecipes) createForReprocess(ctx context.Context, superseded []*recipe.Recipe, when time.Time) (*creation, error) {
	result := &creation{processInput: map[int64]bool{}}
	if len(superseded) == 0 {
		return result, nil
	}

	rev, err := m.cmds.repo.GetRevision(ctx, m.RecipeTypeName, m.RecipeTypeRevNum)
	if err != nil {
		return nil, err
	}
	jobTypes, err := m.cmds.repo.GetJobTypesByKey(ctx, rev.Definition.JobTypeKeys())
	if err != nil {
		return nil, err
	}

	ids := make([]int64, len(superseded))
	for i, r := range superseded {
		ids[i] = r.ID
		r.Supersede(when)
	}
	if err := m.cmds.repo.SupersedeRecipes(ctx, ids, when); err != nil {
		return nil, err
	}

	var pairs []recipePair
	for _, old := range superseded {
		if old.HasInput() {
			_, err := rev.Definition.ValidateData(old.Input, definition.JobTypes(jobTypes))
			if errors.IsErrorType(err, errors.ErrInvalidData) {
				result.cannotReprocess++
				continue
			}
			if err != nil {
				return nil, err
			}
		}
		r := &recipe.Recipe{
			RecipeTypeName:         m.RecipeTypeName,
			RecipeTypeRevID:        rev.ID,
			RevisionNum:            rev.RevisionNum,
			EventID:                m.EventID,
			BatchID:                m.BatchID,
			RecipeID:               old.RecipeID,
			RootRecipeID:           old.RootRecipeID,
			SupersededRecipeID:     old.ID,
			RootSupersededRecipeID: rootSupersededOf(old),
			Input:                  old.Input,
			Created:                when,
		}
		pairs = append(pairs, recipePair{superseded: old, created: r})
	}

	diffs, err := m.diffPairs(ctx, pairs)
	if err != nil {
		return nil, err
	}
	// recipes whose diff can not be reprocessed are not created at all
	for _, rd := range diffs {
		if !rd.diff.CanBeReprocessed {
			result.cannotReprocess += len(rd.pairs)
			continue
		}
		for _, p := range rd.pairs {
			result.recipes = append(result.recipes, p.created)
		}
		result.diffs = append(result.diffs, rd)
	}
	if len(result.recipes) == 0 {
		return result, nil
	}
	if err := m.cmds.repo.CreateRecipes(ctx, result.recipes); err != nil {
		return nil, err
	}
	return result, nil
}

func (m *CreateRecipes) createSubRecipes(ctx context.Context, when time.Time) (*creation, error) {
	result := &creation{processInput: map[int64]bool{}}

	supersededByNode := map[string]*recipe.Recipe{}
	if m.SupersededRecipeID != 0 {
		var err error
		supersededByNode, err = m.subRecipesByNode(ctx, m.SupersededRecipeID)
		if err != nil {
			return nil, err
		}
	}
	rootID := m.RootRecipeID
	if rootID == 0 {
		rootID = m.RecipeID
	}

	revisions := map[string]*recipe.TypeRevision{}
	var pairs []recipePair
	for _, sub := range m.SubRecipes {
		revKey := fmt.Sprintf("%s:%d", sub.RecipeTypeName, sub.RecipeTypeRevNum)
		rev, ok := revisions[revKey]
		if !ok {
			var err error
			rev, err = m.cmds.repo.GetRevision(ctx, sub.RecipeTypeName, sub.RecipeTypeRevNum)
			if err != nil {
				return nil, err
			}
			revisions[revKey] = rev
		}

		r := &recipe.Recipe{
			RecipeTypeName:  sub.RecipeTypeName,
			RecipeTypeRevID: rev.ID,
			RevisionNum:     rev.RevisionNum,
			EventID:         m.EventID,
			BatchID:         m.BatchID,
			RecipeID:        m.RecipeID,
			RootRecipeID:    rootID,
			Created:         when,
		}
		if old, ok := supersededByNode[sub.NodeName]; ok {
			r.SupersededRecipeID = old.ID
			r.RootSupersededRecipeID = rootSupersededOf(old)
			pairs = append(pairs, recipePair{superseded: old, created: r, nodeName: sub.NodeName})
		}
		result.recipes = append(result.recipes, r)
	}
	if len(result.recipes) == 0 {
		return result, nil
	}
	if err := m.cmds.repo.CreateRecipes(ctx, result.recipes); err != nil {
		return nil, err
	}

	nodes := make([]*recipe.Node, len(m.SubRecipes))
	for i, sub := range m.SubRecipes {
		r := result.recipes[i]
		nodes[i] = &recipe.Node{RecipeID: m.RecipeID, NodeName: sub.NodeName, SubRecipeID: r.ID, IsOriginal: true}
		result.processInput[r.ID] = sub.ProcessInput
	}
	if err := m.cmds.repo.CreateRecipeNodes(ctx, nodes); err != nil {
		return nil, err
	}

	var err error
	result.diffs, err = m.diffPairs(ctx, pairs)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// subRecipesByNode returns the sub-recipes of a recipe keyed by node name.
func (m *CreateRecipes) subRecipesByNode(ctx context.Context, recipeID int64) (map[string]*recipe.Recipe, error) {
	nodes, err := m.cmds.repo.GetRecipeNodes(ctx, []int64{recipeID})
	if err != nil {
		return nil, err
	}
	var subNodes []*recipe.Node
	for _, n := range nodes {
		if n.SubRecipeID != 0 {
			subNodes = append(subNodes, n)
		}
	}
	_, subRecipes, err := m.cmds.nodeTargets(ctx, subNodes)
	if err != nil {
		return nil, err
	}

	byNode := make(map[string]*recipe.Recipe, len(subNodes))
	for _, n := range subNodes {
		if r, ok := subRecipes[n.SubRecipeID]; ok {
			byNode[n.NodeName] = r
		}
	}
	return byNode, nil
}

// copyNodes points the new recipes at the jobs and sub-recipes of the nodes
// that did not change.
func (m *CreateRecipes) copyNodes(ctx context.Context, diffs []recipeDiff) error {
	var copies []*recipe.Node
	for _, rd := range diffs {
		names := map[string]bool{}
		for _, name := range diff.Names(rd.diff.NodesToCopy()) {
			names[name] = true
		}
		if len(names) == 0 {
			continue
		}

		ids := make([]int64, len(rd.pairs))
		created := make(map[int64]*recipe.Recipe, len(rd.pairs))
		for i, p := range rd.pairs {
			ids[i] = p.superseded.ID
			created[p.superseded.ID] = p.created
		}
		nodes, err := m.cmds.repo.GetRecipeNodes(ctx, ids)
		if err != nil {
			return err
		}
		for _, n := range nodes {
			if !names[n.NodeName] {
				continue
			}
			copies = append(copies, &recipe.Node{
				RecipeID:    created[n.RecipeID].ID,
				NodeName:    n.NodeName,
				JobID:       n.JobID,
				SubRecipeID: n.SubRecipeID,
			})
		}
	}
	if len(copies) == 0 {
		return nil
	}
	return m.cmds.repo.CreateRecipeNodes(ctx, copies)
}

func (m *CreateRecipes) followUps(result *creation, when time.Time) []messaging.Message {
	var next []messaging.Message
	for _, rd := range result.diffs {
		var recipeIDs []int64
		for _, p := range rd.pairs {
			recipeIDs = append(recipeIDs, p.superseded.ID)
		}

		var nodes SupersedeRecipeNodes
		for _, nd := range diff.NodeDiffs(rd.diff.NodesToSupersede()) {
			if nd.PrevNodeType() == graph.NodeTypeJob {
				nodes.SupersedeJobs = append(nodes.SupersedeJobs, nd.Name)
			} else {
				nodes.SupersedeSubRecipes = append(nodes.SupersedeSubRecipes, nd.Name)
			}
		}
		nodes.SupersedeRecursive = diff.Names(rd.diff.NodesToRecursivelySupersede())
		for _, nd := range diff.NodeDiffs(rd.diff.NodesToUnpublish()) {
			if nd.PrevNodeType() == graph.NodeTypeJob {
				nodes.UnpublishJobs = append(nodes.UnpublishJobs, nd.Name)
			} else {
				nodes.UnpublishRecursive = append(nodes.UnpublishRecursive, nd.Name)
			}
		}
		if nodes.isEmpty() {
			continue
		}
		next = append(next, m.cmds.NewSupersedeRecipeNodesMessages(recipeIDs, when, nodes)...)
	}

	var processIDs, updateIDs []int64
	for _, r := range result.recipes {
		if r.HasInput() || result.processInput[r.ID] {
			processIDs = append(processIDs, r.ID)
		} else {
			// no input yet, the recipe can still create its nodes
			updateIDs = append(updateIDs, r.ID)
		}
	}
	next = append(next, m.cmds.NewProcessRecipeInputMessages(processIDs, when)...)
	next = append(next, m.cmds.NewUpdateRecipesMessages(updateIDs, when)...)
	if m.RecipeID != 0 {
		next = append(next, m.cmds.NewUpdateRecipeMetricsMessages([]int64{m.RecipeID})...)
	}
	return next
}

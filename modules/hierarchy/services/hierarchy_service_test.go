package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/franchise-core/modules/hierarchy/domain/node"
	"github.com/iota-uz/franchise-core/pkg/composables"
)

// stubTx satisfies the transaction composable so service calls run against
// the fake repository without a database.
type stubTx struct {
	pgx.Tx
}

type fakeNodeRepo struct {
	nodes map[uuid.UUID]*node.Node
}

func (f *fakeNodeRepo) GetByID(_ context.Context, id uuid.UUID) (*node.Node, error) {
	n, ok := f.nodes[id]
	if !ok {
		return nil, ErrNodeNotFound
	}
	return n, nil
}

func (f *fakeNodeRepo) GetAll(context.Context) ([]*node.Node, error) { return nil, nil }
func (f *fakeNodeRepo) GetByPathPrefix(context.Context, string) ([]*node.Node, error) {
	return nil, nil
}

func (f *fakeNodeRepo) CountByType(_ context.Context, t node.Type) (int, error) {
	count := 0
	for _, n := range f.nodes {
		if n.Type() == t {
			count++
		}
	}
	return count, nil
}

func (f *fakeNodeRepo) Create(_ context.Context, n *node.Node) (*node.Node, error) {
	if f.nodes == nil {
		f.nodes = map[uuid.UUID]*node.Node{}
	}
	f.nodes[n.ID()] = n
	return n, nil
}

func (f *fakeNodeRepo) UpdateStatus(context.Context, uuid.UUID, node.Status) error { return nil }
func (f *fakeNodeRepo) Reparent(context.Context, uuid.UUID, *uuid.UUID, string, string, int) error {
	return nil
}

// fakeQuotaGate enforces a fixed location allowance and records every
// consultation.
type fakeQuotaGate struct {
	maxLocations int
	calls        []int
	lastResource string
}

func (f *fakeQuotaGate) CheckQuota(_ context.Context, _ uuid.UUID, resource string, requested int) error {
	f.calls = append(f.calls, requested)
	f.lastResource = resource
	if requested > f.maxLocations {
		return errQuotaExceeded
	}
	return nil
}

var errQuotaExceeded = errors.New("location quota exceeded")

func serviceContext(tenantID uuid.UUID) context.Context {
	ctx := composables.WithTx(context.Background(), stubTx{})
	return composables.WithTenantID(ctx, tenantID)
}

func buildFixtureForest(t *testing.T) (tenantID uuid.UUID, root, region, l1, l2 *node.Node) {
	t.Helper()
	tenantID = uuid.New()
	root = node.New(tenantID, "Acme Franchising", node.TypeFranchisor)
	region = node.New(tenantID, "North", node.TypeRegion, node.WithParent(root))
	l1 = node.New(tenantID, "Store 1", node.TypeLocation, node.WithParent(region))
	l2 = node.New(tenantID, "Store 2", node.TypeLocation, node.WithParent(region))
	return tenantID, root, region, l1, l2
}

func TestBuildTree_ForestShapeAndLevels(t *testing.T) {
	_, root, region, l1, l2 := buildFixtureForest(t)

	forest := BuildTree([]*node.Node{l2, root, l1, region})
	require.Len(t, forest, 1)
	require.Equal(t, root.ID(), forest[0].Node.ID())
	require.Len(t, forest[0].Children, 1)

	regionTree := forest[0].Children[0]
	require.Equal(t, region.ID(), regionTree.Node.ID())
	require.Len(t, regionTree.Children, 2)

	// Every non-root node's level equals parent.level + 1.
	var walk func(tn *TreeNode)
	seen := map[uuid.UUID]int{}
	walk = func(tn *TreeNode) {
		seen[tn.Node.ID()]++
		for _, child := range tn.Children {
			require.Equal(t, tn.Node.Level()+1, child.Node.Level())
			walk(child)
		}
	}
	for _, tn := range forest {
		walk(tn)
	}
	// No node appears twice: a tree, not a graph with cycles.
	require.Len(t, seen, 4)
	for _, count := range seen {
		require.Equal(t, 1, count)
	}
}

func TestBuildTree_MissingParentBecomesOrphanRoot(t *testing.T) {
	_, root, region, l1, _ := buildFixtureForest(t)

	// region's parent (root) excluded from the input set.
	forest := BuildTree([]*node.Node{region, l1})
	require.Len(t, forest, 1)
	require.Equal(t, region.ID(), forest[0].Node.ID())
	require.Len(t, forest[0].Children, 1)
	require.Equal(t, l1.ID(), forest[0].Children[0].Node.ID())
	require.NotEqual(t, root.ID(), forest[0].Node.ID())
}

func TestBuildTree_Empty(t *testing.T) {
	require.Empty(t, BuildTree(nil))
}

func TestValidateReparent_RejectsCycle(t *testing.T) {
	_, root, region, l1, l2 := buildFixtureForest(t)
	repo := &fakeNodeRepo{nodes: map[uuid.UUID]*node.Node{
		root.ID():   root,
		region.ID(): region,
		l1.ID():     l1,
		l2.ID():     l2,
	}}
	svc := NewHierarchyService(repo, &fakeQuotaGate{maxLocations: 100})

	// Moving the region under one of its own descendants is a cycle.
	err := svc.validateReparentTx(context.Background(), region.ID(), l1.ID())
	var cycleErr *CycleError
	require.ErrorAs(t, err, &cycleErr)
	require.Equal(t, region.ID(), cycleErr.NodeID)
	require.Equal(t, l1.ID(), cycleErr.NewParentID)

	// Self-parenting is a degenerate cycle.
	err = svc.validateReparentTx(context.Background(), l1.ID(), l1.ID())
	require.ErrorAs(t, err, &cycleErr)

	// Moving a leaf to a sibling subtree is fine.
	require.NoError(t, svc.validateReparentTx(context.Background(), l1.ID(), root.ID()))
}

func TestCreateNode_LocationQuotaEnforced(t *testing.T) {
	tenantID := uuid.New()
	gate := &fakeQuotaGate{maxLocations: 2}
	repo := &fakeNodeRepo{}
	svc := NewHierarchyService(repo, gate)
	ctx := serviceContext(tenantID)

	for i := 0; i < 2; i++ {
		_, err := svc.CreateNode(ctx, CreateNodeInput{Name: "Store", Type: node.TypeLocation})
		require.NoError(t, err)
	}

	// The third location exceeds the allowance and must not be persisted.
	_, err := svc.CreateNode(ctx, CreateNodeInput{Name: "Store 3", Type: node.TypeLocation})
	require.ErrorIs(t, err, errQuotaExceeded)
	count, err := repo.CountByType(ctx, node.TypeLocation)
	require.NoError(t, err)
	require.Equal(t, 2, count)

	// Each attempt consulted the gate with the would-be total.
	require.Equal(t, []int{1, 2, 3}, gate.calls)
	require.Equal(t, "locations", gate.lastResource)
}

func TestCreateNode_NonLocationsSkipQuota(t *testing.T) {
	tenantID := uuid.New()
	gate := &fakeQuotaGate{maxLocations: 0}
	svc := NewHierarchyService(&fakeNodeRepo{}, gate)
	ctx := serviceContext(tenantID)

	_, err := svc.CreateNode(ctx, CreateNodeInput{Name: "Acme", Type: node.TypeFranchisor})
	require.NoError(t, err)
	_, err = svc.CreateNode(ctx, CreateNodeInput{Name: "North", Type: node.TypeRegion})
	require.NoError(t, err)
	require.Empty(t, gate.calls)
}

func TestNode_PathAndAncestors(t *testing.T) {
	_, root, region, l1, _ := buildFixtureForest(t)

	require.Equal(t, "/"+root.ID().String(), root.Path())
	require.Equal(t, root.Path()+"/"+region.ID().String(), region.Path())
	require.True(t, l1.IsDescendantOf(root))
	require.True(t, l1.IsDescendantOf(region))
	require.False(t, root.IsDescendantOf(l1))

	require.Equal(t, []uuid.UUID{root.ID(), region.ID()}, l1.AncestorIDs())
	require.Nil(t, root.AncestorIDs())
}

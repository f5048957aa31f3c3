package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/iota-uz/franchise-core/modules/hierarchy/domain/node"
	"github.com/iota-uz/franchise-core/pkg/composables"
)

// CycleError is returned when a reparent would place a node under its own
// subtree.
type CycleError struct {
	NodeID      uuid.UUID
	NewParentID uuid.UUID
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("reparenting %s under %s would create a cycle", e.NodeID, e.NewParentID)
}

var ErrNodeNotFound = fmt.Errorf("hierarchy node not found")

// AccessChecker is the permission gate consulted when building
// permission-filtered views. The permission module provides the
// implementation; the read level is the minimum for visibility.
type AccessChecker interface {
	CheckAccess(ctx context.Context, userID uuid.UUID, resourceType string, resourceID uuid.UUID, required string) (bool, error)
}

const ResourceTypeNode = "hierarchy_node"

const quotaLocations = "locations"

// TenantGate is the quota gate consulted before growing a tenant's billable
// footprint. The tenant module provides the implementation.
type TenantGate interface {
	CheckQuota(ctx context.Context, tenantID uuid.UUID, resource string, requested int) error
}

type TreeNode struct {
	Node     *node.Node
	Children []*TreeNode
}

type HierarchyService struct {
	repo node.Repository
	gate TenantGate
}

func NewHierarchyService(repo node.Repository, gate TenantGate) *HierarchyService {
	return &HierarchyService{repo: repo, gate: gate}
}

// BuildTree assembles a forest from a flat node set in O(n) using an
// id-indexed arena. A node whose parent is absent from the input becomes an
// orphan root.
func BuildTree(nodes []*node.Node) []*TreeNode {
	byID := make(map[uuid.UUID]*TreeNode, len(nodes))
	for _, n := range nodes {
		byID[n.ID()] = &TreeNode{Node: n}
	}

	roots := make([]*TreeNode, 0, 4)
	for _, n := range nodes {
		tn := byID[n.ID()]
		if n.ParentID() == nil {
			roots = append(roots, tn)
			continue
		}
		parent, ok := byID[*n.ParentID()]
		if !ok {
			// Partially fetched set: treat as orphan root.
			roots = append(roots, tn)
			continue
		}
		parent.Children = append(parent.Children, tn)
	}
	return roots
}

func (s *HierarchyService) GetNode(ctx context.Context, nodeID uuid.UUID) (*node.Node, error) {
	return composables.InTenantTxResult(ctx, func(txCtx context.Context) (*node.Node, error) {
		return s.repo.GetByID(txCtx, nodeID)
	})
}

// GetDescendants returns every node whose materialized path is prefixed by
// the target node's path.
func (s *HierarchyService) GetDescendants(ctx context.Context, nodeID uuid.UUID) ([]*node.Node, error) {
	return composables.InTenantTxResult(ctx, func(txCtx context.Context) ([]*node.Node, error) {
		target, err := s.repo.GetByID(txCtx, nodeID)
		if err != nil {
			return nil, err
		}
		return s.repo.GetByPathPrefix(txCtx, target.PathPrefix())
	})
}

// GetAncestors resolves the path chain from root down to the node's parent.
func (s *HierarchyService) GetAncestors(ctx context.Context, nodeID uuid.UUID) ([]*node.Node, error) {
	return composables.InTenantTxResult(ctx, func(txCtx context.Context) ([]*node.Node, error) {
		target, err := s.repo.GetByID(txCtx, nodeID)
		if err != nil {
			return nil, err
		}
		ancestorIDs := target.AncestorIDs()
		out := make([]*node.Node, 0, len(ancestorIDs))
		for _, id := range ancestorIDs {
			ancestor, err := s.repo.GetByID(txCtx, id)
			if err != nil {
				return nil, err
			}
			out = append(out, ancestor)
		}
		return out, nil
	})
}

type CreateNodeInput struct {
	Name     string
	Type     node.Type
	ParentID *uuid.UUID
	Metadata map[string]string
}

func (s *HierarchyService) CreateNode(ctx context.Context, in CreateNodeInput) (*node.Node, error) {
	if in.Name == "" {
		return nil, fmt.Errorf("node name is required")
	}
	if !in.Type.Valid() {
		return nil, fmt.Errorf("invalid node type: %s", in.Type)
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}

	return composables.InTenantTxResult(ctx, func(txCtx context.Context) (*node.Node, error) {
		// Locations count against the tenant's plan limit.
		if in.Type == node.TypeLocation {
			existing, err := s.repo.CountByType(txCtx, node.TypeLocation)
			if err != nil {
				return nil, err
			}
			if err := s.gate.CheckQuota(txCtx, tenantID, quotaLocations, existing+1); err != nil {
				return nil, err
			}
		}

		opts := []node.Option{node.WithMetadata(in.Metadata)}
		if in.ParentID != nil {
			parent, err := s.repo.GetByID(txCtx, *in.ParentID)
			if err != nil {
				return nil, err
			}
			opts = append(opts, node.WithParent(parent))
		}
		return s.repo.Create(txCtx, node.New(tenantID, in.Name, in.Type, opts...))
	})
}

// ValidateReparent fails with *CycleError when newParentID lies inside
// nodeID's subtree. Reparenting must never be allowed to create a cycle.
func (s *HierarchyService) ValidateReparent(ctx context.Context, nodeID, newParentID uuid.UUID) error {
	if nodeID == newParentID {
		return &CycleError{NodeID: nodeID, NewParentID: newParentID}
	}
	return composables.InTenantTx(ctx, func(txCtx context.Context) error {
		return s.validateReparentTx(txCtx, nodeID, newParentID)
	})
}

func (s *HierarchyService) validateReparentTx(ctx context.Context, nodeID, newParentID uuid.UUID) error {
	if nodeID == newParentID {
		return &CycleError{NodeID: nodeID, NewParentID: newParentID}
	}
	target, err := s.repo.GetByID(ctx, nodeID)
	if err != nil {
		return err
	}
	newParent, err := s.repo.GetByID(ctx, newParentID)
	if err != nil {
		return err
	}
	if newParent.IsDescendantOf(target) {
		return &CycleError{NodeID: nodeID, NewParentID: newParentID}
	}
	return nil
}

// Reparent moves a node (and its whole subtree) under a new parent,
// rewriting materialized paths and levels in a single transaction.
func (s *HierarchyService) Reparent(ctx context.Context, nodeID, newParentID uuid.UUID) error {
	return composables.InTenantTx(ctx, func(txCtx context.Context) error {
		if err := s.validateReparentTx(txCtx, nodeID, newParentID); err != nil {
			return err
		}
		target, err := s.repo.GetByID(txCtx, nodeID)
		if err != nil {
			return err
		}
		newParent, err := s.repo.GetByID(txCtx, newParentID)
		if err != nil {
			return err
		}

		oldPrefix := target.Path()
		newPrefix := newParent.Path() + "/" + target.ID().String()
		levelDelta := newParent.Level() + 1 - target.Level()
		return s.repo.Reparent(txCtx, nodeID, &newParentID, oldPrefix, newPrefix, levelDelta)
	})
}

// UpdateStatus transitions a node's operational status. Nodes are never
// hard-deleted.
func (s *HierarchyService) UpdateStatus(ctx context.Context, nodeID uuid.UUID, status node.Status) error {
	if !status.Valid() {
		return fmt.Errorf("invalid node status: %s", status)
	}
	return composables.InTenantTx(ctx, func(txCtx context.Context) error {
		return s.repo.UpdateStatus(txCtx, nodeID, status)
	})
}

// GetFranchiseHierarchy returns the forest visible to the user: nodes the
// user holds at least read access on, already permission-filtered.
func (s *HierarchyService) GetFranchiseHierarchy(ctx context.Context, checker AccessChecker, userID uuid.UUID, rootID *uuid.UUID) ([]*TreeNode, error) {
	nodes, err := composables.InTenantTxResult(ctx, func(txCtx context.Context) ([]*node.Node, error) {
		if rootID == nil {
			return s.repo.GetAll(txCtx)
		}
		root, err := s.repo.GetByID(txCtx, *rootID)
		if err != nil {
			return nil, err
		}
		descendants, err := s.repo.GetByPathPrefix(txCtx, root.PathPrefix())
		if err != nil {
			return nil, err
		}
		return append([]*node.Node{root}, descendants...), nil
	})
	if err != nil {
		return nil, err
	}

	visible := make([]*node.Node, 0, len(nodes))
	for _, n := range nodes {
		ok, err := checker.CheckAccess(ctx, userID, ResourceTypeNode, n.ID(), "read")
		if err != nil {
			return nil, err
		}
		if ok {
			visible = append(visible, n)
		}
	}
	return BuildTree(visible), nil
}

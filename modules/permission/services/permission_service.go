package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/franchise-core/modules/hierarchy/domain/node"
	"github.com/iota-uz/franchise-core/modules/permission/domain/grant"
	"github.com/iota-uz/franchise-core/pkg/composables"
)

// AncestorResolver walks the organizational tree upward. The hierarchy
// module provides the implementation.
type AncestorResolver interface {
	GetAncestors(ctx context.Context, nodeID uuid.UUID) ([]*node.Node, error)
}

// EffectivePermission is one entry of the net access a subject holds on a
// resource after merging direct and inherited grants and applying
// conditions and expiry.
type EffectivePermission struct {
	ResourceType    string
	ResourceID      uuid.UUID
	Level           grant.Level
	Inherited       bool
	InheritancePath string
	Grant           *grant.Grant
}

type PermissionService struct {
	repo        grant.Repository
	ancestors   AncestorResolver
	implication ImplicationTable
}

func NewPermissionService(repo grant.Repository, ancestors AncestorResolver, implication ImplicationTable) *PermissionService {
	if implication == nil {
		implication = DefaultImplicationTable()
	}
	return &PermissionService{
		repo:        repo,
		ancestors:   ancestors,
		implication: implication,
	}
}

// ResolveEffectivePermissions computes the effective grants of a subject.
// It is a pure, side-effect-free read: any ambiguity (missing ancestor,
// malformed condition) resolves to no access, is logged, and is not
// retried. resourceType and resourceID narrow the resolution; pass
// uuid.Nil as resourceID to resolve every grant of a resource type.
func (s *PermissionService) ResolveEffectivePermissions(ctx context.Context, userID uuid.UUID, resourceType string, resourceID uuid.UUID) ([]EffectivePermission, error) {
	now := time.Now().UTC()

	grants, err := composables.InTenantTxResult(ctx, func(txCtx context.Context) ([]*grant.Grant, error) {
		return s.repo.GetBySubject(txCtx, userID)
	})
	if err != nil {
		return nil, err
	}

	active := s.filterActive(ctx, grants, grant.EvalContext{Now: now, ResourceID: resourceID})

	if resourceID == uuid.Nil {
		out := make([]EffectivePermission, 0, len(active))
		for _, g := range active {
			if resourceType != "" && g.ResourceType() != resourceType {
				continue
			}
			out = append(out, EffectivePermission{
				ResourceType: g.ResourceType(),
				ResourceID:   g.ResourceID(),
				Level:        g.Level(),
				Grant:        g,
			})
		}
		return out, nil
	}

	best, ok := s.mergeForResource(ctx, active, resourceType, resourceID)
	if !ok {
		return []EffectivePermission{}, nil
	}
	return []EffectivePermission{best}, nil
}

// filterActive drops revoked, expired and condition-failing grants.
// Expiry is evaluated against the resolution start time: a grant already
// expired when resolution began is never honored.
func (s *PermissionService) filterActive(ctx context.Context, grants []*grant.Grant, evalCtx grant.EvalContext) []*grant.Grant {
	logger := composables.UseLogger(ctx)
	active := make([]*grant.Grant, 0, len(grants))
	for _, g := range grants {
		if g.Revoked() || g.ExpiredAt(evalCtx.Now) {
			continue
		}
		matches, err := g.Conditions().Matches(evalCtx)
		if err != nil {
			// Malformed condition: fail closed, log, move on.
			logger.WithFields(logrus.Fields{
				"grant_id":   g.ID(),
				"subject_id": g.SubjectID(),
			}).WithError(err).Warn("permission grant has malformed condition, treating as no access")
			continue
		}
		if matches {
			active = append(active, g)
		}
	}
	return active
}

// mergeForResource applies the precedence rules: highest applicable level
// wins, and an explicit grant on the exact resource beats an inherited one
// of equal level.
func (s *PermissionService) mergeForResource(ctx context.Context, active []*grant.Grant, resourceType string, resourceID uuid.UUID) (EffectivePermission, bool) {
	logger := composables.UseLogger(ctx)

	ancestorSet := make(map[uuid.UUID]struct{})
	var ancestorPath string
	ancestors, err := s.ancestors.GetAncestors(ctx, resourceID)
	if err != nil {
		// Missing or unreadable ancestry: inherited grants cannot be
		// honored. Fail closed on inheritance, keep direct grants.
		logger.WithFields(logrus.Fields{
			"resource_type": resourceType,
			"resource_id":   resourceID,
		}).WithError(err).Warn("ancestor lookup failed, skipping inherited grants")
	} else {
		for _, a := range ancestors {
			ancestorSet[a.ID()] = struct{}{}
			ancestorPath += "/" + a.ID().String()
		}
	}

	var (
		best  EffectivePermission
		found bool
	)
	consider := func(candidate EffectivePermission) {
		if !found {
			best, found = candidate, true
			return
		}
		if candidate.Level.Rank() > best.Level.Rank() {
			best = candidate
			return
		}
		if candidate.Level.Rank() == best.Level.Rank() && best.Inherited && !candidate.Inherited {
			best = candidate
		}
	}

	for _, g := range active {
		switch {
		case g.ResourceType() == resourceType && g.ResourceID() == resourceID:
			consider(EffectivePermission{
				ResourceType: resourceType,
				ResourceID:   resourceID,
				Level:        g.Level(),
				Grant:        g,
			})
		case g.ResourceType() == resourceType && g.ResourceID() == uuid.Nil:
			// Type-wide grant applies to every resource of the type.
			consider(EffectivePermission{
				ResourceType: resourceType,
				ResourceID:   resourceID,
				Level:        g.Level(),
				Grant:        g,
			})
		default:
			if _, ok := ancestorSet[g.ResourceID()]; !ok {
				continue
			}
			implied, ok := s.implication.Implied(g.Level())
			if !ok {
				continue
			}
			consider(EffectivePermission{
				ResourceType:    resourceType,
				ResourceID:      resourceID,
				Level:           implied,
				Inherited:       true,
				InheritancePath: ancestorPath,
				Grant:           g,
			})
		}
	}
	return best, found
}

// CheckAccess is the boolean gate every other component consults before
// privileged work. Denials are logged for audit.
func (s *PermissionService) CheckAccess(ctx context.Context, userID uuid.UUID, resourceType string, resourceID uuid.UUID, required grant.Level) (bool, error) {
	if !required.Valid() {
		return false, fmt.Errorf("invalid required level: %q", required)
	}
	effective, err := s.ResolveEffectivePermissions(ctx, userID, resourceType, resourceID)
	if err != nil {
		return false, err
	}
	for _, e := range effective {
		if e.Level.AtLeast(required) {
			return true, nil
		}
	}
	composables.UseLogger(ctx).WithFields(logrus.Fields{
		"subject_id":    userID,
		"resource_type": resourceType,
		"resource_id":   resourceID,
		"required":      required,
	}).Warn("access denied")
	recordAccessDenied(resourceType)
	return false, nil
}

type GrantPermissionInput struct {
	SubjectID    uuid.UUID
	ResourceType string
	ResourceID   uuid.UUID
	Level        grant.Level
	Conditions   grant.Conditions
	GrantedBy    uuid.UUID
	ExpiresAt    *time.Time
}

// GrantPermission delegates access. The granter's own effective level on
// the resource must cover the level being granted; in particular only
// admin/owner holders may grant admin/owner. Nothing is written on failure.
func (s *PermissionService) GrantPermission(ctx context.Context, in GrantPermissionInput) (*grant.Grant, error) {
	if !in.Level.Valid() {
		return nil, fmt.Errorf("invalid permission level: %q", in.Level)
	}
	if in.SubjectID == uuid.Nil || in.GrantedBy == uuid.Nil {
		return nil, fmt.Errorf("subject and granter are required")
	}
	now := time.Now().UTC()
	if in.ExpiresAt != nil && !in.ExpiresAt.After(now) {
		return nil, fmt.Errorf("expires_at must be in the future")
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}

	effective, err := s.ResolveEffectivePermissions(ctx, in.GrantedBy, in.ResourceType, in.ResourceID)
	if err != nil {
		return nil, err
	}
	var held grant.Level
	for _, e := range effective {
		if e.Level.Rank() > held.Rank() {
			held = e.Level
		}
	}
	if !held.AtLeast(in.Level) {
		insufficientErr := &InsufficientGranterPrivilegeError{
			GranterID:    in.GrantedBy,
			ResourceType: in.ResourceType,
			ResourceID:   in.ResourceID,
			Requested:    in.Level,
			Held:         held,
		}
		composables.UseLogger(ctx).WithFields(logrus.Fields{
			"granter_id":    in.GrantedBy,
			"subject_id":    in.SubjectID,
			"resource_type": in.ResourceType,
			"resource_id":   in.ResourceID,
			"requested":     in.Level,
			"held":          held,
		}).Warn("grant rejected: insufficient granter privilege")
		return nil, insufficientErr
	}

	g := grant.New(
		tenantID,
		in.SubjectID,
		in.ResourceType,
		in.ResourceID,
		in.Level,
		in.GrantedBy,
		grant.WithConditions(in.Conditions),
		grant.WithExpiresAt(in.ExpiresAt),
		grant.WithGrantedAt(now),
	)
	created, err := composables.InTenantTxResult(ctx, func(txCtx context.Context) (*grant.Grant, error) {
		return s.repo.Create(txCtx, g)
	})
	if err != nil {
		return nil, err
	}
	recordGrantIssued(string(in.Level))
	return created, nil
}

// RevokePermission records a soft revocation marker; the grant row itself
// is never edited or deleted, preserving the audit trail. The revoker must
// be the original granter or hold admin on the resource.
func (s *PermissionService) RevokePermission(ctx context.Context, grantID, revokedBy uuid.UUID) error {
	g, err := composables.InTenantTxResult(ctx, func(txCtx context.Context) (*grant.Grant, error) {
		return s.repo.GetByID(txCtx, grantID)
	})
	if err != nil {
		return err
	}
	if g.Revoked() {
		return nil
	}

	if g.GrantedBy() != revokedBy {
		ok, err := s.CheckAccess(ctx, revokedBy, g.ResourceType(), g.ResourceID(), grant.LevelAdmin)
		if err != nil {
			return err
		}
		if !ok {
			return &AccessDeniedError{
				UserID:       revokedBy,
				ResourceType: g.ResourceType(),
				ResourceIDs:  []uuid.UUID{g.ResourceID()},
				Required:     grant.LevelAdmin,
			}
		}
	}

	return composables.InTenantTx(ctx, func(txCtx context.Context) error {
		return s.repo.Revoke(txCtx, grantID, revokedBy, time.Now().UTC())
	})
}

// NodeAccessChecker adapts the resolver to the string-typed gate the
// hierarchy module consumes.
type NodeAccessChecker struct {
	svc *PermissionService
}

func NewNodeAccessChecker(svc *PermissionService) *NodeAccessChecker {
	return &NodeAccessChecker{svc: svc}
}

func (c *NodeAccessChecker) CheckAccess(ctx context.Context, userID uuid.UUID, resourceType string, resourceID uuid.UUID, required string) (bool, error) {
	level, err := grant.ParseLevel(required)
	if err != nil {
		return false, err
	}
	return c.svc.CheckAccess(ctx, userID, resourceType, resourceID, level)
}

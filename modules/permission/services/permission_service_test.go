package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/franchise-core/modules/hierarchy/domain/node"
	"github.com/iota-uz/franchise-core/modules/permission/domain/grant"
	"github.com/iota-uz/franchise-core/pkg/composables"
)

// stubTx satisfies the transaction plumbing for service calls backed by
// in-memory fakes; none of its methods are ever reached.
type stubTx struct {
	pgx.Tx
}

type fakeGrantRepo struct {
	grants []*grant.Grant
}

func (f *fakeGrantRepo) GetByID(_ context.Context, id uuid.UUID) (*grant.Grant, error) {
	for _, g := range f.grants {
		if g.ID() == id {
			return g, nil
		}
	}
	return nil, ErrGrantNotFound
}

func (f *fakeGrantRepo) GetBySubject(_ context.Context, subjectID uuid.UUID) ([]*grant.Grant, error) {
	var out []*grant.Grant
	for _, g := range f.grants {
		if g.SubjectID() == subjectID {
			out = append(out, g)
		}
	}
	return out, nil
}

func (f *fakeGrantRepo) Create(_ context.Context, g *grant.Grant) (*grant.Grant, error) {
	f.grants = append(f.grants, g)
	return g, nil
}

func (f *fakeGrantRepo) Revoke(_ context.Context, _ uuid.UUID, _ uuid.UUID, _ time.Time) error {
	return nil
}

func serviceContext(tenantID uuid.UUID) context.Context {
	ctx := composables.WithTx(context.Background(), stubTx{})
	return composables.WithTenantID(ctx, tenantID)
}

type fakeAncestorResolver struct {
	ancestors map[uuid.UUID][]*node.Node
}

func (f *fakeAncestorResolver) GetAncestors(_ context.Context, nodeID uuid.UUID) ([]*node.Node, error) {
	ancestors, ok := f.ancestors[nodeID]
	if !ok {
		return nil, fmt.Errorf("node %s not found", nodeID)
	}
	return ancestors, nil
}

func newResolverFixture(t *testing.T) (svc *PermissionService, tenantID uuid.UUID, root, region, l1 *node.Node) {
	t.Helper()
	tenantID = uuid.New()
	root = node.New(tenantID, "Acme Franchising", node.TypeFranchisor)
	region = node.New(tenantID, "North", node.TypeRegion, node.WithParent(root))
	l1 = node.New(tenantID, "Store 1", node.TypeLocation, node.WithParent(region))

	resolver := &fakeAncestorResolver{ancestors: map[uuid.UUID][]*node.Node{
		root.ID():   {},
		region.ID(): {root},
		l1.ID():     {root, region},
	}}
	svc = NewPermissionService(nil, resolver, DefaultImplicationTable())
	return svc, tenantID, root, region, l1
}

const resourceNode = "hierarchy_node"

func TestResolve_OwnerOnRootImpliesAccessOnLocation(t *testing.T) {
	svc, tenantID, root, _, l1 := newResolverFixture(t)
	userID := uuid.New()

	rootGrant := grant.New(tenantID, userID, resourceNode, root.ID(), grant.LevelOwner, uuid.New())
	active := svc.filterActive(context.Background(), []*grant.Grant{rootGrant}, grant.EvalContext{Now: time.Now().UTC(), ResourceID: l1.ID()})
	require.Len(t, active, 1)

	best, found := svc.mergeForResource(context.Background(), active, resourceNode, l1.ID())
	require.True(t, found)
	require.True(t, best.Inherited)
	// owner on the franchisor implies admin on descendants.
	require.Equal(t, grant.LevelAdmin, best.Level)
	require.True(t, best.Level.AtLeast(grant.LevelRead))
}

func TestResolve_ExplicitBeatsInheritedAtEqualLevel(t *testing.T) {
	svc, tenantID, _, region, l1 := newResolverFixture(t)
	userID := uuid.New()

	// admin on region implies write on l1; explicit write on l1 is equal
	// in level and must win.
	inherited := grant.New(tenantID, userID, resourceNode, region.ID(), grant.LevelAdmin, uuid.New())
	explicit := grant.New(tenantID, userID, resourceNode, l1.ID(), grant.LevelWrite, uuid.New())

	best, found := svc.mergeForResource(context.Background(), []*grant.Grant{inherited, explicit}, resourceNode, l1.ID())
	require.True(t, found)
	require.Equal(t, grant.LevelWrite, best.Level)
	require.False(t, best.Inherited)
	require.Equal(t, explicit.ID(), best.Grant.ID())

	// Order independence.
	best, found = svc.mergeForResource(context.Background(), []*grant.Grant{explicit, inherited}, resourceNode, l1.ID())
	require.True(t, found)
	require.False(t, best.Inherited)
}

func TestResolve_HigherInheritedBeatsLowerExplicit(t *testing.T) {
	svc, tenantID, root, _, l1 := newResolverFixture(t)
	userID := uuid.New()

	inherited := grant.New(tenantID, userID, resourceNode, root.ID(), grant.LevelOwner, uuid.New())
	explicit := grant.New(tenantID, userID, resourceNode, l1.ID(), grant.LevelRead, uuid.New())

	best, found := svc.mergeForResource(context.Background(), []*grant.Grant{explicit, inherited}, resourceNode, l1.ID())
	require.True(t, found)
	require.Equal(t, grant.LevelAdmin, best.Level)
	require.True(t, best.Inherited)
}

func TestFilterActive_ExcludesExpiredGrant(t *testing.T) {
	svc, tenantID, _, _, l1 := newResolverFixture(t)
	userID := uuid.New()
	now := time.Now().UTC()

	justExpired := now.Add(-time.Second)
	g := grant.New(tenantID, userID, resourceNode, l1.ID(), grant.LevelOwner, uuid.New(),
		grant.WithGrantedAt(now.Add(-time.Hour)),
		grant.WithExpiresAt(&justExpired),
	)

	active := svc.filterActive(context.Background(), []*grant.Grant{g}, grant.EvalContext{Now: now, ResourceID: l1.ID()})
	require.Empty(t, active)

	// Still valid one second before expiry.
	active = svc.filterActive(context.Background(), []*grant.Grant{g}, grant.EvalContext{Now: justExpired.Add(-time.Second), ResourceID: l1.ID()})
	require.Len(t, active, 1)
}

func TestFilterActive_ExcludesRevokedGrant(t *testing.T) {
	svc, tenantID, _, _, l1 := newResolverFixture(t)
	userID := uuid.New()
	now := time.Now().UTC()

	revokedAt := now.Add(-time.Minute)
	revoker := uuid.New()
	g := grant.New(tenantID, userID, resourceNode, l1.ID(), grant.LevelWrite, uuid.New(),
		grant.WithRevoked(&revokedAt, &revoker),
	)

	active := svc.filterActive(context.Background(), []*grant.Grant{g}, grant.EvalContext{Now: now, ResourceID: l1.ID()})
	require.Empty(t, active)
}

func TestFilterActive_MalformedConditionFailsClosed(t *testing.T) {
	svc, tenantID, _, _, l1 := newResolverFixture(t)
	userID := uuid.New()

	g := grant.New(tenantID, userID, resourceNode, l1.ID(), grant.LevelOwner, uuid.New(),
		grant.WithConditions(grant.Conditions{TimeStart: "25:99", TimeEnd: "26:00"}),
	)
	active := svc.filterActive(context.Background(), []*grant.Grant{g}, grant.EvalContext{Now: time.Now().UTC(), ResourceID: l1.ID()})
	require.Empty(t, active)
}

func TestMergeForResource_MissingAncestrySkipsInheritedGrants(t *testing.T) {
	svc, tenantID, root, _, _ := newResolverFixture(t)
	userID := uuid.New()
	unknownResource := uuid.New()

	inherited := grant.New(tenantID, userID, resourceNode, root.ID(), grant.LevelOwner, uuid.New())
	_, found := svc.mergeForResource(context.Background(), []*grant.Grant{inherited}, resourceNode, unknownResource)
	require.False(t, found)

	// A direct grant on the resource still applies.
	direct := grant.New(tenantID, userID, resourceNode, unknownResource, grant.LevelRead, uuid.New())
	best, found := svc.mergeForResource(context.Background(), []*grant.Grant{inherited, direct}, resourceNode, unknownResource)
	require.True(t, found)
	require.Equal(t, grant.LevelRead, best.Level)
}

func TestMergeForResource_TypeWideGrantApplies(t *testing.T) {
	svc, tenantID, _, _, l1 := newResolverFixture(t)
	userID := uuid.New()

	typeWide := grant.New(tenantID, userID, resourceNode, uuid.Nil, grant.LevelRead, uuid.New())
	best, found := svc.mergeForResource(context.Background(), []*grant.Grant{typeWide}, resourceNode, l1.ID())
	require.True(t, found)
	require.Equal(t, grant.LevelRead, best.Level)
	require.False(t, best.Inherited)
}

func TestResolveEffectivePermissions_OwnerOnRootReachesLocation(t *testing.T) {
	svc, tenantID, root, _, l1 := newResolverFixture(t)
	repo := &fakeGrantRepo{}
	svc.repo = repo
	userID := uuid.New()
	repo.grants = append(repo.grants,
		grant.New(tenantID, userID, resourceNode, root.ID(), grant.LevelOwner, uuid.New()),
	)

	effective, err := svc.ResolveEffectivePermissions(serviceContext(tenantID), userID, resourceNode, l1.ID())
	require.NoError(t, err)
	require.Len(t, effective, 1)
	assert.True(t, effective[0].Level.AtLeast(grant.LevelRead))
	assert.True(t, effective[0].Inherited)
}

func TestResolveEffectivePermissions_GrantExpiredOneSecondAgo(t *testing.T) {
	svc, tenantID, _, _, l1 := newResolverFixture(t)
	repo := &fakeGrantRepo{}
	svc.repo = repo
	userID := uuid.New()
	justExpired := time.Now().UTC().Add(-time.Second)
	repo.grants = append(repo.grants,
		grant.New(tenantID, userID, resourceNode, l1.ID(), grant.LevelOwner, uuid.New(),
			grant.WithGrantedAt(justExpired.Add(-time.Hour)),
			grant.WithExpiresAt(&justExpired),
		),
	)

	effective, err := svc.ResolveEffectivePermissions(serviceContext(tenantID), userID, resourceNode, l1.ID())
	require.NoError(t, err)
	assert.Empty(t, effective)
}

func TestGrantPermission_RequiresGranterToHoldLevel(t *testing.T) {
	svc, tenantID, _, _, l1 := newResolverFixture(t)
	repo := &fakeGrantRepo{}
	svc.repo = repo
	granter := uuid.New()
	repo.grants = append(repo.grants,
		grant.New(tenantID, granter, resourceNode, l1.ID(), grant.LevelWrite, uuid.New()),
	)
	ctx := serviceContext(tenantID)

	_, err := svc.GrantPermission(ctx, GrantPermissionInput{
		SubjectID:    uuid.New(),
		ResourceType: resourceNode,
		ResourceID:   l1.ID(),
		Level:        grant.LevelAdmin,
		GrantedBy:    granter,
	})
	var privErr *InsufficientGranterPrivilegeError
	require.ErrorAs(t, err, &privErr)
	assert.Equal(t, grant.LevelWrite, privErr.Held)
	assert.Equal(t, grant.LevelAdmin, privErr.Requested)
	// Nothing was written.
	assert.Len(t, repo.grants, 1)

	// Granting at or below the held level succeeds.
	created, err := svc.GrantPermission(ctx, GrantPermissionInput{
		SubjectID:    uuid.New(),
		ResourceType: resourceNode,
		ResourceID:   l1.ID(),
		Level:        grant.LevelRead,
		GrantedBy:    granter,
	})
	require.NoError(t, err)
	assert.Equal(t, grant.LevelRead, created.Level())
}

func TestGrantPermission_RejectsPastExpiry(t *testing.T) {
	svc, tenantID, _, _, l1 := newResolverFixture(t)
	svc.repo = &fakeGrantRepo{}
	past := time.Now().UTC().Add(-time.Minute)

	_, err := svc.GrantPermission(serviceContext(tenantID), GrantPermissionInput{
		SubjectID:    uuid.New(),
		ResourceType: resourceNode,
		ResourceID:   l1.ID(),
		Level:        grant.LevelRead,
		GrantedBy:    uuid.New(),
		ExpiresAt:    &past,
	})
	require.Error(t, err)
}

func TestImplicationTable_NeverImpliesHigherLevel(t *testing.T) {
	table := DefaultImplicationTable()
	for from, to := range table {
		require.LessOrEqual(t, to.Rank(), from.Rank(), "%s must not imply a higher level", from)
	}
}

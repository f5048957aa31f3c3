package persistence

import (
	"context"
	"database/sql"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/iota-uz/franchise-core/modules/hierarchy/domain/node"
	"github.com/iota-uz/franchise-core/modules/hierarchy/services"
	"github.com/iota-uz/franchise-core/pkg/composables"
	"github.com/iota-uz/franchise-core/pkg/serrors"
)

const nodeFindQuery = `
SELECT id, tenant_id, name, node_type, parent_id, level, path, status, metadata, created_at, updated_at
FROM hierarchy_nodes`

type HierarchyRepository struct{}

func NewHierarchyRepository() node.Repository {
	return &HierarchyRepository{}
}

func (r *HierarchyRepository) GetByID(ctx context.Context, id uuid.UUID) (*node.Node, error) {
	nodes, err := r.queryNodes(ctx, nodeFindQuery+" WHERE id = $1", id)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, services.ErrNodeNotFound
	}
	return nodes[0], nil
}

func (r *HierarchyRepository) GetAll(ctx context.Context) ([]*node.Node, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}
	return r.queryNodes(ctx, nodeFindQuery+" WHERE tenant_id = $1 ORDER BY level, name", tenantID)
}

func (r *HierarchyRepository) CountByType(ctx context.Context, t node.Type) (int, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return 0, err
	}
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return 0, err
	}
	var count int
	if err := tx.QueryRow(ctx,
		"SELECT COUNT(*) FROM hierarchy_nodes WHERE tenant_id = $1 AND node_type = $2",
		tenantID, string(t),
	).Scan(&count); err != nil {
		return 0, errors.Wrap(err, "failed to count hierarchy nodes")
	}
	return count, nil
}

func (r *HierarchyRepository) GetByPathPrefix(ctx context.Context, prefix string) ([]*node.Node, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}
	return r.queryNodes(ctx,
		nodeFindQuery+" WHERE tenant_id = $1 AND path LIKE $2 || '%' ORDER BY level, name",
		tenantID, prefix,
	)
}

func (r *HierarchyRepository) Create(ctx context.Context, n *node.Node) (*node.Node, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO hierarchy_nodes (id, tenant_id, name, node_type, parent_id, level, path, status, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`
	var parentID any
	if n.ParentID() != nil {
		parentID = *n.ParentID()
	}
	metadata := n.Metadata()
	if metadata == nil {
		metadata = map[string]string{}
	}

	var idStr string
	if err := tx.QueryRow(
		ctx,
		query,
		n.ID(),
		n.TenantID(),
		n.Name(),
		string(n.Type()),
		parentID,
		n.Level(),
		n.Path(),
		string(n.Status()),
		metadata,
		n.CreatedAt(),
		n.UpdatedAt(),
	).Scan(&idStr); err != nil {
		return nil, errors.Wrap(serrors.MapDBError(err), "failed to insert hierarchy node")
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

func (r *HierarchyRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status node.Status) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	tag, err := tx.Exec(ctx,
		`UPDATE hierarchy_nodes SET status = $1, updated_at = now() WHERE id = $2`,
		string(status), id,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update node status")
	}
	if tag.RowsAffected() == 0 {
		return services.ErrNodeNotFound
	}
	return nil
}

func (r *HierarchyRepository) Reparent(ctx context.Context, nodeID uuid.UUID, newParentID *uuid.UUID, oldPrefix, newPrefix string, levelDelta int) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}

	var parentID any
	if newParentID != nil {
		parentID = *newParentID
	}
	tag, err := tx.Exec(ctx,
		`UPDATE hierarchy_nodes SET parent_id = $1, updated_at = now() WHERE id = $2`,
		parentID, nodeID,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update node parent")
	}
	if tag.RowsAffected() == 0 {
		return services.ErrNodeNotFound
	}

	// Rewrite paths and levels of the moved node and its whole subtree.
	_, err = tx.Exec(ctx, `
UPDATE hierarchy_nodes
SET path = $1 || substr(path, $2),
    level = level + $3,
    updated_at = now()
WHERE path = $4 OR path LIKE $4 || '/%'`,
		newPrefix, len(oldPrefix)+1, levelDelta, oldPrefix,
	)
	if err != nil {
		return errors.Wrap(err, "failed to rewrite subtree paths")
	}
	return nil
}

func (r *HierarchyRepository) queryNodes(ctx context.Context, query string, args ...interface{}) ([]*node.Node, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get transaction")
	}

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to execute query")
	}
	defer rows.Close()

	var nodes []*node.Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan hierarchy node row")
		}
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "row iteration error")
	}
	return nodes, nil
}

func scanNode(rows pgx.Rows) (*node.Node, error) {
	var (
		id        uuid.UUID
		tenantID  uuid.UUID
		name      string
		nodeType  string
		parent    pgtype.UUID
		level     int
		path      string
		status    string
		metadata  map[string]string
		createdAt sql.NullTime
		updatedAt sql.NullTime
	)
	if err := rows.Scan(&id, &tenantID, &name, &nodeType, &parent, &level, &path, &status, &metadata, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	opts := []node.Option{
		node.WithID(id),
		node.WithLevel(level),
		node.WithPath(path),
		node.WithStatus(node.Status(status)),
		node.WithMetadata(metadata),
		node.WithCreatedAt(createdAt.Time),
		node.WithUpdatedAt(updatedAt.Time),
	}
	if parent.Valid {
		pid := uuid.UUID(parent.Bytes)
		opts = append(opts, node.WithParentID(&pid))
	}
	return node.New(tenantID, name, node.Type(nodeType), opts...), nil
}

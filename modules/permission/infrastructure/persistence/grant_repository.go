package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/iota-uz/franchise-core/modules/permission/domain/grant"
	"github.com/iota-uz/franchise-core/modules/permission/services"
	"github.com/iota-uz/franchise-core/pkg/composables"
)

const grantFindQuery = `
SELECT id, tenant_id, subject_id, resource_type, resource_id, level, conditions,
       granted_by, granted_at, expires_at, revoked_at, revoked_by, is_inherited, inheritance_path
FROM permission_grants`

type GrantRepository struct{}

func NewGrantRepository() grant.Repository {
	return &GrantRepository{}
}

func (r *GrantRepository) GetByID(ctx context.Context, id uuid.UUID) (*grant.Grant, error) {
	grants, err := r.queryGrants(ctx, grantFindQuery+" WHERE id = $1", id)
	if err != nil {
		return nil, err
	}
	if len(grants) == 0 {
		return nil, services.ErrGrantNotFound
	}
	return grants[0], nil
}

func (r *GrantRepository) GetBySubject(ctx context.Context, subjectID uuid.UUID) ([]*grant.Grant, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}
	return r.queryGrants(ctx,
		grantFindQuery+" WHERE tenant_id = $1 AND subject_id = $2 ORDER BY granted_at",
		tenantID, subjectID,
	)
}

func (r *GrantRepository) Create(ctx context.Context, g *grant.Grant) (*grant.Grant, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	conditions, err := json.Marshal(g.Conditions())
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode grant conditions")
	}

	var resourceID any
	if g.ResourceID() != uuid.Nil {
		resourceID = g.ResourceID()
	}
	var expiresAt any
	if g.ExpiresAt() != nil {
		expiresAt = *g.ExpiresAt()
	}

	var idStr string
	if err := tx.QueryRow(ctx, `
		INSERT INTO permission_grants (id, tenant_id, subject_id, resource_type, resource_id, level, conditions,
		                               granted_by, granted_at, expires_at, is_inherited, inheritance_path)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id
	`,
		g.ID(),
		g.TenantID(),
		g.SubjectID(),
		g.ResourceType(),
		resourceID,
		string(g.Level()),
		conditions,
		g.GrantedBy(),
		g.GrantedAt(),
		expiresAt,
		g.IsInherited(),
		g.InheritancePath(),
	).Scan(&idStr); err != nil {
		return nil, errors.Wrap(err, "failed to insert permission grant")
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

func (r *GrantRepository) Revoke(ctx context.Context, id uuid.UUID, revokedBy uuid.UUID, at time.Time) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, `
		UPDATE permission_grants
		SET revoked_at = $1, revoked_by = $2
		WHERE id = $3 AND revoked_at IS NULL
	`, at, revokedBy, id)
	if err != nil {
		return errors.Wrap(err, "failed to revoke permission grant")
	}
	if tag.RowsAffected() == 0 {
		// Either missing or already revoked; distinguish for the caller.
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func (r *GrantRepository) queryGrants(ctx context.Context, query string, args ...interface{}) ([]*grant.Grant, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get transaction")
	}

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to execute query")
	}
	defer rows.Close()

	var grants []*grant.Grant
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan permission grant row")
		}
		grants = append(grants, g)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "row iteration error")
	}
	return grants, nil
}

func scanGrant(rows pgx.Rows) (*grant.Grant, error) {
	var (
		id              uuid.UUID
		tenantID        uuid.UUID
		subjectID       uuid.UUID
		resourceType    string
		resourceID      pgtype.UUID
		level           string
		conditionsRaw   []byte
		grantedBy       uuid.UUID
		grantedAt       time.Time
		expiresAt       sql.NullTime
		revokedAt       sql.NullTime
		revokedBy       pgtype.UUID
		isInherited     bool
		inheritancePath sql.NullString
	)
	if err := rows.Scan(
		&id, &tenantID, &subjectID, &resourceType, &resourceID, &level, &conditionsRaw,
		&grantedBy, &grantedAt, &expiresAt, &revokedAt, &revokedBy, &isInherited, &inheritancePath,
	); err != nil {
		return nil, err
	}

	var conditions grant.Conditions
	if len(conditionsRaw) > 0 {
		if err := json.Unmarshal(conditionsRaw, &conditions); err != nil {
			return nil, errors.Wrap(err, "failed to decode grant conditions")
		}
	}

	opts := []grant.Option{
		grant.WithID(id),
		grant.WithConditions(conditions),
		grant.WithGrantedAt(grantedAt),
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		opts = append(opts, grant.WithExpiresAt(&t))
	}
	if revokedAt.Valid {
		t := revokedAt.Time
		var by *uuid.UUID
		if revokedBy.Valid {
			b := uuid.UUID(revokedBy.Bytes)
			by = &b
		}
		opts = append(opts, grant.WithRevoked(&t, by))
	}
	if isInherited {
		opts = append(opts, grant.WithInheritance(inheritancePath.String))
	}

	rid := uuid.Nil
	if resourceID.Valid {
		rid = uuid.UUID(resourceID.Bytes)
	}
	return grant.New(tenantID, subjectID, resourceType, rid, grant.Level(level), grantedBy, opts...), nil
}

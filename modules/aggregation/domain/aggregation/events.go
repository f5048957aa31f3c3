package aggregation

import "github.com/google/uuid"

// RecordsWritten is published whenever raw metric records land in a tenant
// table. Cached aggregations for that tenant are stale from that point on.
type RecordsWritten struct {
	TenantID   uuid.UUID
	LocationID uuid.UUID
	Table      string
}

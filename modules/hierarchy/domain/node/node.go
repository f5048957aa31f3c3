package node

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	TypeFranchisor Type = "franchisor"
	TypeRegion     Type = "region"
	TypeArea       Type = "area"
	TypeLocation   Type = "location"
)

func (t Type) Valid() bool {
	switch t {
	case TypeFranchisor, TypeRegion, TypeArea, TypeLocation:
		return true
	}
	return false
}

type Status string

const (
	StatusActive    Status = "active"
	StatusInactive  Status = "inactive"
	StatusSuspended Status = "suspended"
)

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusInactive, StatusSuspended:
		return true
	}
	return false
}

type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Node, error)
	GetAll(ctx context.Context) ([]*Node, error)
	CountByType(ctx context.Context, t Type) (int, error)
	GetByPathPrefix(ctx context.Context, prefix string) ([]*Node, error)
	Create(ctx context.Context, n *Node) (*Node, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error
	// Reparent moves a subtree: every node whose path starts with oldPrefix
	// gets the prefix replaced with newPrefix and its level shifted by delta.
	Reparent(ctx context.Context, nodeID uuid.UUID, newParentID *uuid.UUID, oldPrefix, newPrefix string, levelDelta int) error
}

type Node struct {
	id        uuid.UUID
	tenantID  uuid.UUID
	name      string
	nodeType  Type
	parentID  *uuid.UUID
	level     int
	path      string
	status    Status
	metadata  map[string]string
	createdAt time.Time
	updatedAt time.Time
}

type Option func(*Node)

func WithID(id uuid.UUID) Option {
	return func(n *Node) {
		n.id = id
		if n.parentID == nil {
			n.path = "/" + id.String()
		}
	}
}

// WithParent places the node directly under parent, deriving level and path.
func WithParent(parent *Node) Option {
	return func(n *Node) {
		pid := parent.ID()
		n.parentID = &pid
		n.level = parent.Level() + 1
		n.path = parent.Path() + "/" + n.id.String()
	}
}

func WithParentID(parentID *uuid.UUID) Option {
	return func(n *Node) {
		n.parentID = parentID
	}
}

func WithLevel(level int) Option {
	return func(n *Node) {
		n.level = level
	}
}

func WithPath(path string) Option {
	return func(n *Node) {
		n.path = path
	}
}

func WithStatus(status Status) Option {
	return func(n *Node) {
		n.status = status
	}
}

func WithMetadata(metadata map[string]string) Option {
	return func(n *Node) {
		n.metadata = metadata
	}
}

func WithCreatedAt(createdAt time.Time) Option {
	return func(n *Node) {
		n.createdAt = createdAt
	}
}

func WithUpdatedAt(updatedAt time.Time) Option {
	return func(n *Node) {
		n.updatedAt = updatedAt
	}
}

func New(tenantID uuid.UUID, name string, nodeType Type, opts ...Option) *Node {
	id := uuid.New()
	n := &Node{
		id:        id,
		tenantID:  tenantID,
		name:      name,
		nodeType:  nodeType,
		level:     0,
		path:      "/" + id.String(),
		status:    StatusActive,
		createdAt: time.Now(),
		updatedAt: time.Now(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

func (n *Node) ID() uuid.UUID              { return n.id }
func (n *Node) TenantID() uuid.UUID        { return n.tenantID }
func (n *Node) Name() string               { return n.name }
func (n *Node) Type() Type                 { return n.nodeType }
func (n *Node) ParentID() *uuid.UUID       { return n.parentID }
func (n *Node) Level() int                 { return n.level }
func (n *Node) Path() string               { return n.path }
func (n *Node) Status() Status             { return n.status }
func (n *Node) Metadata() map[string]string { return n.metadata }
func (n *Node) CreatedAt() time.Time       { return n.createdAt }
func (n *Node) UpdatedAt() time.Time       { return n.updatedAt }

func (n *Node) IsRoot() bool {
	return n.parentID == nil
}

// PathPrefix is the prefix matching every descendant path, excluding the
// node's own path.
func (n *Node) PathPrefix() string {
	return n.path + "/"
}

// IsDescendantOf reports whether n sits strictly below other in the tree.
func (n *Node) IsDescendantOf(other *Node) bool {
	return strings.HasPrefix(n.path, other.PathPrefix())
}

func (n *Node) SetStatus(status Status) {
	n.status = status
	n.updatedAt = time.Now()
}

// AncestorIDs parses the materialized path into the id chain from root to
// the node's parent. A malformed segment yields an empty result rather than
// a partial chain.
func (n *Node) AncestorIDs() []uuid.UUID {
	segments := strings.Split(strings.Trim(n.path, "/"), "/")
	if len(segments) < 2 {
		return nil
	}
	out := make([]uuid.UUID, 0, len(segments)-1)
	for _, seg := range segments[:len(segments)-1] {
		id, err := uuid.Parse(seg)
		if err != nil {
			return nil
		}
		out = append(out, id)
	}
	return out
}

package services

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/iota-uz/franchise-core/modules/permission/domain/grant"
)

// AccessDeniedError is terminal: it is never retried and is surfaced
// verbatim to the caller. ResourceIDs names every offending resource.
type AccessDeniedError struct {
	UserID       uuid.UUID
	ResourceType string
	ResourceIDs  []uuid.UUID
	Required     grant.Level
}

func (e *AccessDeniedError) Error() string {
	ids := make([]string, len(e.ResourceIDs))
	for i, id := range e.ResourceIDs {
		ids[i] = id.String()
	}
	return fmt.Sprintf(
		"access denied: user %s lacks %s on %s [%s]",
		e.UserID, e.Required, e.ResourceType, strings.Join(ids, ", "),
	)
}

// InsufficientGranterPrivilegeError is returned when a granter tries to
// hand out a level above their own effective level.
type InsufficientGranterPrivilegeError struct {
	GranterID    uuid.UUID
	ResourceType string
	ResourceID   uuid.UUID
	Requested    grant.Level
	Held         grant.Level
}

func (e *InsufficientGranterPrivilegeError) Error() string {
	return fmt.Sprintf(
		"granter %s holds %q on %s/%s but tried to grant %q",
		e.GranterID, e.Held, e.ResourceType, e.ResourceID, e.Requested,
	)
}

var ErrGrantNotFound = fmt.Errorf("permission grant not found")

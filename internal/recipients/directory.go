package recipients

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"notifications.app/engine/internal/model"
)

// ErrGroupNotFound is returned by a Directory for a group the org does not have.
var ErrGroupNotFound = errors.New("group not found")

type Group struct {
	ID              uuid.UUID
	PlatformDefault bool
}

// Directory is the identity provider queried for org users and groups.
type Directory interface {
	Users(ctx context.Context, orgID string, adminsOnly bool) ([]model.User, error)
	Group(ctx context.Context, orgID string, groupID uuid.UUID) (Group, error)
	GroupUsers(ctx context.Context, orgID string, groupID uuid.UUID) ([]model.User, error)
}

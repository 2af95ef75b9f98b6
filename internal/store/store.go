// Package store provides the gateway's view of the platform's user
// directory and the typed publishing surface internal services use to
// push domain events onto the bus.
package store

import (
	"context"
	"errors"
)

// ErrUserUnknown is returned when the directory has no record for a user.
var ErrUserUnknown = errors.New("store: unknown user")

// Membership is the directory record the gateway needs for a principal:
// team membership and whether the account is active. Role comes from the
// token, not the directory.
type Membership struct {
	TeamIDs []string
	Active  bool
}

// Directory resolves user ids to membership records.
type Directory interface {
	Membership(ctx context.Context, userID string) (*Membership, error)
}

// Prober is implemented by backends that can report their own health.
type Prober interface {
	Ping(ctx context.Context) error
}

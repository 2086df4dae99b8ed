// Package registry defines the device token registry: where the service
// remembers which devices a user has so notifications can reach them.
package registry

import (
	"context"
	"fmt"

	"github.com/tinywideclouds/go-broadcast-service/pkg/notify"
	urn "github.com/tinywideclouds/go-platform/pkg/net/v1"
)

// UserEntityType is the EntityRef type used for registry users.
const UserEntityType = "user"

// TokenStore defines the contract for managing user device tokens.
type TokenStore interface {
	// Register adds a device token for a user. Re-registering is a no-op.
	Register(ctx context.Context, user urn.URN, token string) error
	// Unregister removes a device token. Unknown tokens are not an error.
	Unregister(ctx context.Context, user urn.URN, token string) error
	// Fetch returns every token registered for the user.
	Fetch(ctx context.Context, user urn.URN) ([]string, error)
	// PruneTokens deletes the tokens wherever they are registered and
	// returns the affected users.
	PruneTokens(ctx context.Context, tokens []string) ([]urn.URN, error)
}

// UserRef is the polymorphic reference recorded for a registry user.
func UserRef(user urn.URN) notify.EntityRef {
	return notify.EntityRef{Type: UserEntityType, ID: user.String()}
}

// Recipients loads each user's devices into a recipient, preserving order.
// A user with no devices is still a recipient so a record can be saved.
func Recipients(ctx context.Context, store TokenStore, users []urn.URN) ([]notify.Recipient, error) {
	out := make([]notify.Recipient, 0, len(users))
	for _, u := range users {
		tokens, err := store.Fetch(ctx, u)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch devices for %s: %w", u, err)
		}
		out = append(out, notify.Device{Owner: UserRef(u), Tokens: tokens})
	}
	return out, nil
}

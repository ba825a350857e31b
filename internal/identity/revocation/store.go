// Package revocation tracks token state that cannot live inside the
// signed payload: which refresh tokens are still outstanding and which
// access tokens have been revoked early. Entries are written with a TTL
// matching the token's own lifetime so the store cleans itself up.
package revocation

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable reports that the backing store could not be reached or
// answered with a transport-level failure. Callers must treat this as
// "cannot determine token state" and reject, never as "not revoked".
var ErrUnavailable = errors.New("revocation: store unavailable")

// Store is the token-state ledger.
//
// A refresh token is usable only while its outstanding marker exists;
// consuming the marker is atomic so that exactly one rotation attempt
// wins when the same token is replayed concurrently.
type Store interface {
	// MarkRefreshOutstanding records tokenID as an unspent refresh token
	// for ttl. A zero or negative ttl is rejected.
	MarkRefreshOutstanding(ctx context.Context, tokenID string, ttl time.Duration) error

	// ConsumeRefreshIfOutstanding atomically checks for and removes the
	// outstanding marker. It returns true for the single caller that
	// consumed it; false when the marker was absent or already spent.
	ConsumeRefreshIfOutstanding(ctx context.Context, tokenID string) (bool, error)

	// RemoveRefreshOutstanding deletes the marker without the consume
	// semantics, used on logout. Removing an absent marker is not an
	// error.
	RemoveRefreshOutstanding(ctx context.Context, tokenID string) error

	// MarkAccessRevoked denylists an access token for ttl, which should
	// be the token's remaining lifetime. A non-positive ttl is a no-op
	// since the token is already expired.
	MarkAccessRevoked(ctx context.Context, tokenID string, ttl time.Duration) error

	// IsAccessRevoked reports whether tokenID is on the denylist.
	IsAccessRevoked(ctx context.Context, tokenID string) (bool, error)

	// Ping verifies connectivity for readiness checks.
	Ping(ctx context.Context) error

	// Close releases the underlying connections.
	Close() error
}

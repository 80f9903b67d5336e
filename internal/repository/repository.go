package repository

import "context"

// Fixed snapshot keys.
const (
	CartSnapshotKey = "costanzoCart"
	CouponListKey   = "availableCoupons"
)

// SnapshotStore persists opaque JSON snapshots on the device side.
type SnapshotStore interface {
	// Get returns the snapshot stored under key, or an apperrors.NotFound
	// error when there is none.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put stores data under key, replacing any previous snapshot.
	Put(ctx context.Context, key string, data []byte) error

	// Delete removes the snapshot under key. Deleting a missing key is not
	// an error.
	Delete(ctx context.Context, key string) error

	// Ping reports whether the store is reachable.
	Ping(ctx context.Context) error
}

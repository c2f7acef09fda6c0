package store

import "context"

// StorageKey is the fixed key the cart payload is persisted under.
const StorageKey = "cart"

// Storage is the durable key-value store backing a cart.
type Storage interface {
	// Get returns the stored value and whether the key exists.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set stores value under key, overwriting any previous value.
	Set(ctx context.Context, key, value string) error
}

// SessionSignal reports whether a user session is active and notifies
// subscribers when that changes.
type SessionSignal interface {
	// Active reports whether the session is currently active.
	Active(ctx context.Context) bool

	// Subscribe registers fn to be called on every session transition.
	// The returned function removes the subscription.
	Subscribe(fn func(active bool)) (unsubscribe func())
}

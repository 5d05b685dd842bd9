package store

import "context"

// KV is the persistence port the result store runs on. Implementations live
// under internal/infra (in-memory for tests and single-node setups, Redis for
// anything that must survive a restart).
type KV interface {
	// Get returns the value at key and whether the key exists.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
	// Keys lists every key starting with prefix, in no particular order.
	Keys(ctx context.Context, prefix string) ([]string, error)
}

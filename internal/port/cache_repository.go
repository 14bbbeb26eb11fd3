package port

import "context"

type IdempotencyGuard interface {
	// Acquire claims key, returns false if it is already claimed
	Acquire(ctx context.Context, key string) (bool, error)

	// Release frees key so a failed request can be retried
	Release(ctx context.Context, key string) error
}

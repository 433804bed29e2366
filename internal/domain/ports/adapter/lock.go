package adapter

import (
	"context"
	"time"
)

// Locker serialises work on a key across instances. Lock returns a release
// function, or domain.ErrLocked when the key is already held.
type Locker interface {
	Lock(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}

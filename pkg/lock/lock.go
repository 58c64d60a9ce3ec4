// Package lock provides keyed mutual exclusion used to serialize
// capacity-consuming writes per mechanic.
package lock

import "context"

// Unlock releases a held key. Calls after the first are no-ops.
type Unlock func()

// Locker grants exclusive ownership of a key until the returned Unlock is called.
// Lock blocks until the key is free or ctx is done.
type Locker interface {
	Lock(ctx context.Context, key string) (Unlock, error)
}

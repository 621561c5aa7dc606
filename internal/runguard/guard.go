// Package runguard rejects concurrent runs for the same root identifier.
package runguard

import (
	"context"
	"fmt"
	"sync"

	"github.com/vk/fanoutgo/internal/taskerr"
)

// Guard hands out exclusive leases keyed by root identifier.
type Guard interface {
	// Acquire takes the lease for key. It fails with an error wrapping
	// taskerr.ErrRunInProgress when the lease is already held. The returned
	// release function is safe to call more than once.
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// Local is an in-process Guard.
type Local struct {
	held sync.Map // Key: root identifier, Value: struct{}
}

// NewLocal creates an in-process Guard.
func NewLocal() *Local {
	return &Local{}
}

// Acquire implements Guard.
func (l *Local) Acquire(_ context.Context, key string) (func(), error) {
	if _, loaded := l.held.LoadOrStore(key, struct{}{}); loaded {
		return nil, fmt.Errorf("%w: %q", taskerr.ErrRunInProgress, key)
	}
	var once sync.Once
	return func() {
		once.Do(func() { l.held.Delete(key) })
	}, nil
}

// Held reports whether key is currently leased.
func (l *Local) Held(key string) bool {
	_, ok := l.held.Load(key)
	return ok
}

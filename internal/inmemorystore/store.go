package inmemorystore

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/vk/fanoutgo/internal/nodeid"
	"github.com/vk/fanoutgo/internal/taskerr"
)

// Store records which lineage claimed each identifier during a run.
type Store struct {
	claims sync.Map // Key: identifier string, Value: *nodeid.Lineage
	count  atomic.Int64
}

// New creates an empty registry.
func New() *Store {
	return &Store{}
}

// Claim registers lineage as the only visit of its identifier.
//
// It fails with an error wrapping taskerr.ErrCycle when the identifier
// already appears among the lineage's own ancestors, and with one wrapping
// taskerr.ErrDuplicate when a different lineage claimed it first.
func (s *Store) Claim(lineage *nodeid.Lineage) error {
	id := lineage.ID()
	if lineage.Parent().Contains(id) {
		return fmt.Errorf("%w: %q reached again via %s", taskerr.ErrCycle, id, lineage)
	}
	prev, loaded := s.claims.LoadOrStore(id, lineage)
	if !loaded {
		s.count.Add(1)
		return nil
	}
	return fmt.Errorf("%w: %q claimed by %s, reached again via %s",
		taskerr.ErrDuplicate, id, prev.(*nodeid.Lineage), lineage)
}

// Seed registers the root lineage of a run. A root has no ancestors and is
// the first identifier of a fresh store, so it cannot conflict.
func (s *Store) Seed(root *nodeid.Lineage) {
	if _, loaded := s.claims.LoadOrStore(root.ID(), root); !loaded {
		s.count.Add(1)
	}
}

// Owner returns the lineage that claimed id, if any.
func (s *Store) Owner(id string) (*nodeid.Lineage, bool) {
	v, ok := s.claims.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*nodeid.Lineage), true
}

// Len returns the number of claimed identifiers.
func (s *Store) Len() int {
	return int(s.count.Load())
}

package workexec

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vk/fanoutgo/internal/taskerr"
)

// Static serves a tree that is fully known up front. It is used for fixtures
// and tests; failures and latency can be injected per identifier.
//
// Unknown identifiers fail with a Transient record, mirroring a missing
// document on a remote service.
type Static struct {
	mu     sync.RWMutex
	items  map[string]Item
	errs   map[string]error
	delays map[string]time.Duration
	onCall func(id string)
}

// NewStatic creates a Static executor over items.
func NewStatic(items map[string]Item) *Static {
	s := &Static{
		items:  make(map[string]Item, len(items)),
		errs:   make(map[string]error),
		delays: make(map[string]time.Duration),
	}
	for id, it := range items {
		s.items[id] = it
	}
	return s
}

// Set adds or replaces the item for id.
func (s *Static) Set(id string, item Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[id] = item
}

// FailWith makes every fetch of id return err.
func (s *Static) FailWith(id string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs[id] = err
}

// Delay makes every fetch of id take at least d, or until ctx is done.
func (s *Static) Delay(id string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays[id] = d
}

// OnCall registers a hook invoked at the start of every fetch.
func (s *Static) OnCall(fn func(id string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onCall = fn
}

// Len returns the number of known items.
func (s *Static) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Fetch implements Executor.
func (s *Static) Fetch(ctx context.Context, id string) (Item, error) {
	s.mu.RLock()
	item, ok := s.items[id]
	err := s.errs[id]
	delay := s.delays[id]
	hook := s.onCall
	s.mu.RUnlock()

	if hook != nil {
		hook(id)
	}

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return Item{}, ctx.Err()
		case <-timer.C:
		}
	}

	if err != nil {
		return Item{}, err
	}
	if !ok {
		return Item{}, taskerr.NewTransient(id, fmt.Sprintf("unknown identifier %q", id), nil)
	}
	children := make([]string, len(item.Children))
	copy(children, item.Children)
	return Item{Metric: item.Metric, Children: children}, nil
}

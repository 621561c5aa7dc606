package eventsink

import (
	"sync"

	"github.com/vk/fanoutgo/internal/node"
)

// Recorder keeps every transition in memory.
type Recorder struct {
	mu     sync.Mutex
	events []node.Event
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// HandleTransition implements node.Observer.
func (r *Recorder) HandleTransition(e node.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of the recorded events in arrival order.
func (r *Recorder) Events() []node.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]node.Event, len(r.events))
	copy(out, r.events)
	return out
}

// Final returns the last state recorded for id.
func (r *Recorder) Final(id string) (node.State, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].NodeID == id {
			return r.events[i].To, true
		}
	}
	return node.Pending, false
}

// Transitions returns the target states recorded for id, in order.
func (r *Recorder) Transitions(id string) []node.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []node.State
	for _, e := range r.events {
		if e.NodeID == id {
			out = append(out, e.To)
		}
	}
	return out
}

// Count returns how many transitions into state were recorded.
func (r *Recorder) Count(state node.State) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.To == state {
			n++
		}
	}
	return n
}

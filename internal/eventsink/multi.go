package eventsink

import "github.com/vk/fanoutgo/internal/node"

type multi []node.Observer

// Multi fans every event out to all non-nil observers, in order. It returns
// nil when there is nothing to fan out to.
func Multi(observers ...node.Observer) node.Observer {
	var m multi
	for _, o := range observers {
		if o != nil {
			m = append(m, o)
		}
	}
	switch len(m) {
	case 0:
		return nil
	case 1:
		return m[0]
	}
	return m
}

func (m multi) HandleTransition(e node.Event) {
	for _, o := range m {
		o.HandleTransition(e)
	}
}

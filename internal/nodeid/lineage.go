// internal/nodeid/lineage.go
package nodeid

import (
	"strings"
)

// Separator joins identifiers in the canonical string form of a Lineage.
const Separator = "/"

// Lineage is the chain of identifiers from the root to a node.
type Lineage struct {
	parent *Lineage
	id     string
	depth  int
}

// Root creates the lineage of a root node.
func Root(id string) *Lineage {
	return &Lineage{id: id}
}

// Child returns the lineage of a child of l.
func (l *Lineage) Child(id string) *Lineage {
	return &Lineage{parent: l, id: id, depth: l.depth + 1}
}

// ID returns the identifier of the node itself.
func (l *Lineage) ID() string {
	if l == nil {
		return ""
	}
	return l.id
}

// Parent returns the lineage of the parent, or nil for a root.
func (l *Lineage) Parent() *Lineage {
	if l == nil {
		return nil
	}
	return l.parent
}

// ParentID returns the identifier of the parent, or "" for a root.
func (l *Lineage) ParentID() string {
	if l == nil || l.parent == nil {
		return ""
	}
	return l.parent.id
}

// Depth returns 0 for a root and grows by one per generation.
func (l *Lineage) Depth() int {
	if l == nil {
		return 0
	}
	return l.depth
}

// Contains reports whether id appears anywhere in the lineage, including the
// node itself.
func (l *Lineage) Contains(id string) bool {
	for cur := l; cur != nil; cur = cur.parent {
		if cur.id == id {
			return true
		}
	}
	return false
}

// Path returns the identifiers from the root down to the node.
func (l *Lineage) Path() []string {
	if l == nil {
		return nil
	}
	path := make([]string, l.depth+1)
	for cur := l; cur != nil; cur = cur.parent {
		path[cur.depth] = cur.id
	}
	return path
}

// String serializes the Lineage into its canonical path representation.
func (l *Lineage) String() string {
	return strings.Join(l.Path(), Separator)
}

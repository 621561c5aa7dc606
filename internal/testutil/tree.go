package testutil

import (
	"fmt"

	"github.com/vk/fanoutgo/internal/workexec"
)

// N describes one node of a test tree.
type N struct {
	ID     string
	Metric int64
	Kids   []string
}

// Static builds a Static executor from node descriptions.
func Static(nodes ...N) *workexec.Static {
	items := make(map[string]workexec.Item, len(nodes))
	for _, n := range nodes {
		items[n.ID] = workexec.Item{Metric: n.Metric, Children: n.Kids}
	}
	return workexec.NewStatic(items)
}

// NodeID names the i-th node of a generated tree. Node 0 is the root.
func NodeID(i int) string {
	return fmt.Sprintf("n%d", i)
}

// RandomTree builds a tree with len(metrics) nodes. The parent of node i > 0 is
// parents[i-1] modulo i, so any input slice yields a valid tree. It returns
// the items and the sum of all metrics.
func RandomTree(parents []int, metrics []int64) (map[string]workexec.Item, int64) {
	items := make(map[string]workexec.Item, len(metrics))
	var total int64
	for i, m := range metrics {
		items[NodeID(i)] = workexec.Item{Metric: m}
		total += m
	}
	for i := 1; i < len(metrics); i++ {
		p := 0
		if i-1 < len(parents) {
			p = parents[i-1] % i
			if p < 0 {
				p = -p
			}
		}
		parent := items[NodeID(p)]
		parent.Children = append(parent.Children, NodeID(i))
		items[NodeID(p)] = parent
	}
	return items, total
}

// Chain builds n0 -> n1 -> ... -> n(length-1), each with metric 1.
func Chain(length int) map[string]workexec.Item {
	items := make(map[string]workexec.Item, length)
	for i := 0; i < length; i++ {
		it := workexec.Item{Metric: 1}
		if i+1 < length {
			it.Children = []string{NodeID(i + 1)}
		}
		items[NodeID(i)] = it
	}
	return items
}

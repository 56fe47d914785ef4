package cyclegraph_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ntaylor-go/rmc/internal/action"
	"github.com/ntaylor-go/rmc/internal/cyclegraph"
)

func TestAddEdgeDetectsCycle(t *testing.T) {
	g := cyclegraph.New()
	a := &action.Action{Tid: 0, Seq: 1}
	b := &action.Action{Tid: 1, Seq: 1}
	c := &action.Action{Tid: 2, Seq: 1}

	assert.False(t, g.AddEdge(a, b))
	assert.False(t, g.AddEdge(b, c))
	assert.True(t, g.AddEdge(c, a), "closing the loop must report a cycle")
	assert.True(t, g.HasCycle())
}

func TestReachableTransitive(t *testing.T) {
	g := cyclegraph.New()
	a := &action.Action{Tid: 0, Seq: 1}
	b := &action.Action{Tid: 1, Seq: 1}
	c := &action.Action{Tid: 2, Seq: 1}

	g.AddEdge(a, b)
	g.AddEdge(b, c)
	assert.True(t, g.Reachable(a, c))
	assert.False(t, g.Reachable(c, a))
}

func TestRollbackChangesUndoesEdges(t *testing.T) {
	g := cyclegraph.New()
	a := &action.Action{Tid: 0, Seq: 1}
	b := &action.Action{Tid: 1, Seq: 1}

	g.StartChanges()
	g.AddEdge(a, b)
	assert.True(t, g.Reachable(a, b))
	g.RollbackChanges()
	assert.False(t, g.Reachable(a, b))
}

func TestCommitChangesKeepsEdges(t *testing.T) {
	g := cyclegraph.New()
	a := &action.Action{Tid: 0, Seq: 1}
	b := &action.Action{Tid: 1, Seq: 1}

	g.StartChanges()
	g.AddEdge(a, b)
	g.CommitChanges()
	assert.True(t, g.Reachable(a, b))
}

func TestAddRMWEdgeInheritsPredecessors(t *testing.T) {
	g := cyclegraph.New()
	init := &action.Action{Tid: 0, Seq: 1}
	w := &action.Action{Tid: 0, Seq: 2}
	rmw := &action.Action{Tid: 1, Seq: 1}

	g.AddEdge(init, w)
	g.AddRMWEdge(w, rmw)
	assert.True(t, g.Reachable(init, rmw), "edges into w must be inherited by its rmw reader")
}

func TestCheckPromiseStopsAtDone(t *testing.T) {
	g := cyclegraph.New()
	a := &action.Action{Tid: 0, Seq: 1}
	b := &action.Action{Tid: 1, Seq: 1}
	c := &action.Action{Tid: 2, Seq: 1}
	g.AddEdge(a, b)
	g.AddEdge(b, c)

	var visited []*action.Action
	found := g.CheckPromise(a, func(n *action.Action) { visited = append(visited, n) }, func(n *action.Action) bool {
		return n == c
	})
	assert.True(t, found)
	assert.Contains(t, visited, c)
}

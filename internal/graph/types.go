package graph

import "github.com/joshharrison/planloom/internal/model"

// Edge is one typed dependency constraint between two tasks.
type Edge struct {
	PredecessorID string
	SuccessorID   string
	Type          model.DependencyType
	LagDays       int
}

// TaskGraph is the in-memory dependency DAG for one schedule. Tasks are
// indexed by id; edges are kept as forward and reverse adjacency lists,
// rebuilt per recompute rather than patched incrementally.
type TaskGraph struct {
	ScheduleID string
	Tasks      map[string]*model.Task
	Out        map[string][]Edge // keyed by predecessor id
	In         map[string][]Edge // keyed by successor id
	Roots      []string          // tasks with no predecessors
	Leaves     []string          // tasks with no successors
}

// TaskCount returns the number of tasks in the graph.
func (g *TaskGraph) TaskCount() int {
	return len(g.Tasks)
}

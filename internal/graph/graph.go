package graph

import (
	"sort"

	"github.com/joshharrison/planloom/internal/model"
)

// Build constructs a TaskGraph from one schedule's tasks and dependencies.
// Edges referencing tasks outside the set are rejected as orphans; the
// returned graph always has deterministic, sorted adjacency lists. Build
// does NOT check for cycles — validation happens edge-by-edge via
// ValidateEdge, and TopoOrder fails fast if a cycle slipped through.
func Build(scheduleID string, tasks []model.Task, deps []model.Dependency) (*TaskGraph, error) {
	g := &TaskGraph{
		ScheduleID: scheduleID,
		Tasks:      make(map[string]*model.Task, len(tasks)),
		Out:        make(map[string][]Edge),
		In:         make(map[string][]Edge),
	}

	for i := range tasks {
		t := &tasks[i]
		g.Tasks[t.ID] = t
	}

	seen := make(map[[2]string]bool, len(deps))
	for _, d := range deps {
		if _, ok := g.Tasks[d.PredecessorID]; !ok {
			return nil, &model.OrphanReferenceError{Kind: "dependency", TaskID: d.PredecessorID}
		}
		if _, ok := g.Tasks[d.SuccessorID]; !ok {
			return nil, &model.OrphanReferenceError{Kind: "dependency", TaskID: d.SuccessorID}
		}
		key := [2]string{d.PredecessorID, d.SuccessorID}
		if seen[key] {
			continue
		}
		seen[key] = true
		e := Edge{
			PredecessorID: d.PredecessorID,
			SuccessorID:   d.SuccessorID,
			Type:          d.Type,
			LagDays:       d.LagDays,
		}
		g.Out[d.PredecessorID] = append(g.Out[d.PredecessorID], e)
		g.In[d.SuccessorID] = append(g.In[d.SuccessorID], e)
	}

	// Sort adjacency lists for deterministic ordering
	for k := range g.Out {
		es := g.Out[k]
		sort.Slice(es, func(i, j int) bool { return es[i].SuccessorID < es[j].SuccessorID })
	}
	for k := range g.In {
		es := g.In[k]
		sort.Slice(es, func(i, j int) bool { return es[i].PredecessorID < es[j].PredecessorID })
	}

	for id := range g.Tasks {
		if len(g.In[id]) == 0 {
			g.Roots = append(g.Roots, id)
		}
		if len(g.Out[id]) == 0 {
			g.Leaves = append(g.Leaves, id)
		}
	}
	sort.Strings(g.Roots)
	sort.Strings(g.Leaves)

	return g, nil
}

// ValidateEdge checks whether adding predecessor -> successor would keep
// the graph acyclic. The new edge closes a cycle exactly when predecessor
// is already reachable from successor, so we BFS forward from successor;
// if we hit predecessor the edge is rejected with the offending path.
// Both endpoints must already be in the graph.
func (g *TaskGraph) ValidateEdge(predecessorID, successorID string) error {
	if _, ok := g.Tasks[predecessorID]; !ok {
		return &model.OrphanReferenceError{Kind: "dependency", TaskID: predecessorID}
	}
	if _, ok := g.Tasks[successorID]; !ok {
		return &model.OrphanReferenceError{Kind: "dependency", TaskID: successorID}
	}
	if predecessorID == successorID {
		return &model.CycleError{
			PredecessorID: predecessorID,
			SuccessorID:   successorID,
			Path:          []string{predecessorID, predecessorID},
		}
	}

	parent := map[string]string{successorID: ""}
	queue := []string{successorID}
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		for _, e := range g.Out[node] {
			next := e.SuccessorID
			if _, visited := parent[next]; visited {
				continue
			}
			parent[next] = node
			if next == predecessorID {
				// Reconstruct successor -> ... -> predecessor, then close
				// the would-be cycle with the new edge back to successor.
				var rev []string
				for cur := next; cur != ""; cur = parent[cur] {
					rev = append(rev, cur)
				}
				path := make([]string, 0, len(rev)+1)
				for i := len(rev) - 1; i >= 0; i-- {
					path = append(path, rev[i])
				}
				path = append(path, successorID)
				return &model.CycleError{
					PredecessorID: predecessorID,
					SuccessorID:   successorID,
					Path:          path,
				}
			}
			queue = append(queue, next)
		}
	}
	return nil
}

// TopoOrder computes a topological order via Kahn's algorithm. Queue
// contents are kept sorted so repeated runs produce identical orders.
// A non-empty remainder means a cycle made it past validation; that is
// surfaced as a GraphCycleError and the caller must treat derived state
// as invalid.
func (g *TaskGraph) TopoOrder() ([]string, error) {
	inDegree := make(map[string]int, len(g.Tasks))
	for id := range g.Tasks {
		inDegree[id] = len(g.In[id])
	}

	var queue []string
	for id := range g.Tasks {
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}
	sort.Strings(queue)

	order := make([]string, 0, len(g.Tasks))
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		order = append(order, node)

		var ready []string
		for _, e := range g.Out[node] {
			inDegree[e.SuccessorID]--
			if inDegree[e.SuccessorID] == 0 {
				ready = append(ready, e.SuccessorID)
			}
		}
		sort.Strings(ready)
		queue = append(queue, ready...)
	}

	if len(order) != len(g.Tasks) {
		return nil, &model.GraphCycleError{
			ScheduleID: g.ScheduleID,
			Sorted:     len(order),
			Total:      len(g.Tasks),
		}
	}
	return order, nil
}

// DetectCycle returns a cycle path if one exists, or nil for an acyclic
// graph. DFS with coloring: white (unvisited), gray (in progress), black
// (done). Used by bulk import to report the offending path after Kahn
// says the batch is bad.
func (g *TaskGraph) DetectCycle() []string {
	const (
		white = 0
		gray  = 1
		black = 2
	)

	color := make(map[string]int)
	parent := make(map[string]string)

	var dfs func(node string) []string
	dfs = func(node string) []string {
		color[node] = gray
		for _, e := range g.Out[node] {
			next := e.SuccessorID
			if color[next] == gray {
				cycle := []string{next, node}
				cur := node
				for cur != next {
					cur = parent[cur]
					cycle = append(cycle, cur)
				}
				for i, j := 0, len(cycle)-1; i < j; i, j = i+1, j-1 {
					cycle[i], cycle[j] = cycle[j], cycle[i]
				}
				return cycle
			}
			if color[next] == white {
				parent[next] = node
				if cycle := dfs(next); cycle != nil {
					return cycle
				}
			}
		}
		color[node] = black
		return nil
	}

	ids := make([]string, 0, len(g.Tasks))
	for id := range g.Tasks {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		if color[id] == white {
			if cycle := dfs(id); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}

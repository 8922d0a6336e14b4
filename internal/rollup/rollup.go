// Package rollup aggregates child task progress into parent progress using
// effort-weighted averaging. Leaf progress is authoritative; every
// ancestor's progress is derived, recomputed wholesale from the task tree.
package rollup

import (
	"math"
	"sort"

	"github.com/joshharrison/planloom/internal/model"
)

// Tree is the parent/child index over one schedule's tasks.
type Tree struct {
	byID     map[string]*model.Task
	children map[string][]string // parent id -> sorted child ids; "" for roots
}

// BuildTree indexes tasks by parent. A task whose parent is missing from
// the set is rejected as an orphan.
func BuildTree(tasks []model.Task) (*Tree, error) {
	tr := &Tree{
		byID:     make(map[string]*model.Task, len(tasks)),
		children: make(map[string][]string),
	}
	for i := range tasks {
		t := &tasks[i]
		tr.byID[t.ID] = t
	}
	for i := range tasks {
		t := &tasks[i]
		if t.ParentID != "" {
			if _, ok := tr.byID[t.ParentID]; !ok {
				return nil, &model.OrphanReferenceError{Kind: "task parent", TaskID: t.ParentID}
			}
		}
		tr.children[t.ParentID] = append(tr.children[t.ParentID], t.ID)
	}
	for k := range tr.children {
		sort.Strings(tr.children[k])
	}
	return tr, nil
}

// Compute returns the derived progress for every task id: leaves keep
// their own progress, parents get the effort-weighted average of their
// direct children. Runs bottom-up over an explicit work stack so depth is
// bounded by the tree, not the Go stack.
func (tr *Tree) Compute() map[string]int {
	derived := make(map[string]int, len(tr.byID))

	// Post-order walk: push a node twice; compute on the second visit,
	// after all children are done.
	type frame struct {
		id       string
		expanded bool
	}
	var stack []frame
	for _, id := range tr.children[""] {
		stack = append(stack, frame{id: id})
	}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		kids := tr.children[f.id]
		if len(kids) == 0 {
			derived[f.id] = clamp(tr.byID[f.id].Progress)
			continue
		}
		if !f.expanded {
			stack = append(stack, frame{id: f.id, expanded: true})
			for _, c := range kids {
				stack = append(stack, frame{id: c})
			}
			continue
		}
		derived[f.id] = weighted(tr, kids, derived)
	}
	return derived
}

// RollUp recomputes the derived progress of one task's subtree and
// returns the parent's percentage. Unknown ids are orphan errors.
func (tr *Tree) RollUp(taskID string) (int, error) {
	if _, ok := tr.byID[taskID]; !ok {
		return 0, &model.OrphanReferenceError{Kind: "rollup", TaskID: taskID}
	}
	all := tr.Compute()
	return all[taskID], nil
}

// weighted averages the derived progress of the given child ids, weighting
// each by its planned effort hours (default 1 when unset). Clamped to
// [0,100] and rounded half-up to the nearest integer.
func weighted(tr *Tree, childIDs []string, derived map[string]int) int {
	var sum, weightSum float64
	for _, id := range childIDs {
		c := tr.byID[id]
		w := c.PlannedEffortHours
		if w <= 0 {
			w = 1
		}
		sum += w * float64(derived[id])
		weightSum += w
	}
	if weightSum == 0 {
		return 0
	}
	return clamp(int(math.Floor(sum/weightSum + 0.5)))
}

func clamp(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

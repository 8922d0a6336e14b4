package rollup

import (
	"errors"
	"testing"

	"github.com/joshharrison/planloom/internal/model"
)

func build(t *testing.T, tasks []model.Task) *Tree {
	t.Helper()
	tr, err := BuildTree(tasks)
	if err != nil {
		t.Fatalf("build tree: %v", err)
	}
	return tr
}

func TestRollUp_EffortWeighted(t *testing.T) {
	// P has X (10h, 50%) and Y (30h, 100%): (10*50 + 30*100) / 40 = 87.5 -> 88
	tr := build(t, []model.Task{
		{ID: "p"},
		{ID: "x", ParentID: "p", PlannedEffortHours: 10, Progress: 50},
		{ID: "y", ParentID: "p", PlannedEffortHours: 30, Progress: 100},
	})

	got, err := tr.RollUp("p")
	if err != nil {
		t.Fatalf("rollup: %v", err)
	}
	if got != 88 {
		t.Errorf("expected 88, got %d", got)
	}
}

func TestRollUp_DefaultWeight(t *testing.T) {
	// No effort set: plain average. (0 + 100) / 2 = 50
	tr := build(t, []model.Task{
		{ID: "p"},
		{ID: "x", ParentID: "p", Progress: 0},
		{ID: "y", ParentID: "p", Progress: 100},
	})

	got, err := tr.RollUp("p")
	if err != nil {
		t.Fatalf("rollup: %v", err)
	}
	if got != 50 {
		t.Errorf("expected 50, got %d", got)
	}
}

func TestRollUp_RecursiveBottomUp(t *testing.T) {
	// root -> mid -> {a: 100%, b: 0%}; root also has leaf c: 100%.
	// mid = 50; root = (1*50 + 1*100)/2 = 75
	tr := build(t, []model.Task{
		{ID: "root"},
		{ID: "mid", ParentID: "root"},
		{ID: "a", ParentID: "mid", Progress: 100},
		{ID: "b", ParentID: "mid", Progress: 0},
		{ID: "c", ParentID: "root", Progress: 100},
	})

	got, err := tr.RollUp("root")
	if err != nil {
		t.Fatalf("rollup: %v", err)
	}
	if got != 75 {
		t.Errorf("expected 75, got %d", got)
	}

	mid, _ := tr.RollUp("mid")
	if mid != 50 {
		t.Errorf("expected mid=50, got %d", mid)
	}
}

func TestRollUp_LeafIsAuthoritative(t *testing.T) {
	tr := build(t, []model.Task{{ID: "solo", Progress: 42}})
	got, err := tr.RollUp("solo")
	if err != nil {
		t.Fatalf("rollup: %v", err)
	}
	if got != 42 {
		t.Errorf("expected 42, got %d", got)
	}
}

func TestRollUp_Idempotent(t *testing.T) {
	tr := build(t, []model.Task{
		{ID: "p"},
		{ID: "x", ParentID: "p", PlannedEffortHours: 3, Progress: 33},
		{ID: "y", ParentID: "p", PlannedEffortHours: 7, Progress: 71},
	})

	first, err := tr.RollUp("p")
	if err != nil {
		t.Fatalf("rollup: %v", err)
	}
	second, err := tr.RollUp("p")
	if err != nil {
		t.Fatalf("rollup: %v", err)
	}
	if first != second {
		t.Errorf("rollup not idempotent: %d then %d", first, second)
	}
}

func TestRollUp_ClampsOutOfRangeLeaf(t *testing.T) {
	tr := build(t, []model.Task{
		{ID: "p"},
		{ID: "x", ParentID: "p", Progress: 150},
	})
	got, err := tr.RollUp("p")
	if err != nil {
		t.Fatalf("rollup: %v", err)
	}
	if got != 100 {
		t.Errorf("expected clamp to 100, got %d", got)
	}
}

func TestBuildTree_RejectsMissingParent(t *testing.T) {
	_, err := BuildTree([]model.Task{{ID: "x", ParentID: "ghost"}})
	var orphan *model.OrphanReferenceError
	if !errors.As(err, &orphan) {
		t.Fatalf("expected OrphanReferenceError, got %v", err)
	}
}

func TestRollUp_UnknownTask(t *testing.T) {
	tr := build(t, []model.Task{{ID: "p"}})
	_, err := tr.RollUp("nope")
	var orphan *model.OrphanReferenceError
	if !errors.As(err, &orphan) {
		t.Fatalf("expected OrphanReferenceError, got %v", err)
	}
}

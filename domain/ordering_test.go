package domain

import (
	"reflect"
	"testing"
)

func TestColumnSortsByOrderAscending(t *testing.T) {
	tasks := []Task{
		{ID: "c", Status: StatusTodo, Order: 3},
		{ID: "a", Status: StatusTodo, Order: 1},
		{ID: "x", Status: StatusDoing, Order: 1},
		{ID: "b", Status: StatusTodo, Order: 2},
	}
	col := Column(tasks, StatusTodo)
	got := ids(col)
	want := []string{"a", "b", "c"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected column order: %v", got)
	}
}

func TestColumnMissingOrderSortsFirst(t *testing.T) {
	tasks := []Task{
		{ID: "b", Status: StatusTodo, Order: 2},
		{ID: "legacy", Status: StatusTodo},
		{ID: "a", Status: StatusTodo, Order: 1},
	}
	col := Column(tasks, StatusTodo)
	if col[0].ID != "legacy" {
		t.Fatalf("expected task without order first, got %v", ids(col))
	}
}

func TestNextOrder(t *testing.T) {
	tasks := []Task{
		{ID: "a", Status: StatusTodo, Order: 1},
		{ID: "b", Status: StatusTodo, Order: 4},
		{ID: "c", Status: StatusDone, Order: 9},
	}
	if got := NextOrder(tasks, StatusTodo); got != 5 {
		t.Fatalf("expected next order 5, got %d", got)
	}
	if got := NextOrder(tasks, StatusDoing); got != 1 {
		t.Fatalf("expected 1 for empty column, got %d", got)
	}
}

func TestReorderSameColumnRenumbersConsecutively(t *testing.T) {
	tasks := []Task{
		{ID: "a", Status: StatusTodo, Order: 1},
		{ID: "b", Status: StatusTodo, Order: 2},
		{ID: "c", Status: StatusTodo, Order: 7},
	}
	got := Reorder(tasks, StatusTodo, 2, StatusTodo, 0, "c")
	want := []Placement{
		{ID: "c", Status: StatusTodo, Order: 1},
		{ID: "a", Status: StatusTodo, Order: 2},
		{ID: "b", Status: StatusTodo, Order: 3},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected placements: %v", got)
	}
}

func TestReorderCrossColumnRenumbersBothColumns(t *testing.T) {
	tasks := []Task{
		{ID: "walk", Status: StatusTodo, Order: 1},
		{ID: "shop", Status: StatusTodo, Order: 2},
		{ID: "milk", Status: StatusDoing, Order: 1},
	}
	got := Reorder(tasks, StatusTodo, 0, StatusDoing, 0, "walk")
	want := []Placement{
		{ID: "shop", Status: StatusTodo, Order: 1},
		{ID: "walk", Status: StatusDoing, Order: 1},
		{ID: "milk", Status: StatusDoing, Order: 2},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected placements: %v", got)
	}
}

func TestReorderIdenticalPositionIsNoop(t *testing.T) {
	tasks := []Task{
		{ID: "a", Status: StatusTodo, Order: 1},
		{ID: "b", Status: StatusTodo, Order: 2},
	}
	if got := Reorder(tasks, StatusTodo, 1, StatusTodo, 1, "b"); got != nil {
		t.Fatalf("expected no-op, got %v", got)
	}
}

func TestReorderUnknownTaskIsNoop(t *testing.T) {
	tasks := []Task{{ID: "a", Status: StatusTodo, Order: 1}}
	if got := Reorder(tasks, StatusTodo, 0, StatusDoing, 0, "ghost"); got != nil {
		t.Fatalf("expected no-op, got %v", got)
	}
}

func TestReorderClampsDestinationIndex(t *testing.T) {
	tasks := []Task{
		{ID: "a", Status: StatusTodo, Order: 1},
		{ID: "b", Status: StatusDoing, Order: 1},
	}
	got := Reorder(tasks, StatusTodo, 0, StatusDoing, 99, "a")
	want := []Placement{
		{ID: "b", Status: StatusDoing, Order: 1},
		{ID: "a", Status: StatusDoing, Order: 2},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected placements: %v", got)
	}
}

func TestReorderStaleSourceIndexFallsBackToID(t *testing.T) {
	tasks := []Task{
		{ID: "a", Status: StatusTodo, Order: 1},
		{ID: "b", Status: StatusTodo, Order: 2},
	}
	got := Reorder(tasks, StatusTodo, 5, StatusTodo, 0, "b")
	want := []Placement{
		{ID: "b", Status: StatusTodo, Order: 1},
		{ID: "a", Status: StatusTodo, Order: 2},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected placements: %v", got)
	}
}

func ids(tasks []Task) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.ID
	}
	return out
}

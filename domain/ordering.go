package domain

import "sort"

// Column materializes the ordered task list for one column: tasks with the
// given status sorted by ascending order. Tasks that never received an order
// value carry the zero value and therefore sort first.
func Column(tasks []Task, status Status) []Task {
	col := make([]Task, 0, len(tasks))
	for _, t := range tasks {
		if t.Status == status {
			col = append(col, t)
		}
	}
	sort.SliceStable(col, func(i, j int) bool { return col[i].Order < col[j].Order })
	return col
}

// NextOrder computes the order value for a task appended to the given column:
// one greater than the column's current maximum, or 1 for an empty column.
func NextOrder(tasks []Task, status Status) int {
	max := 0
	for _, t := range tasks {
		if t.Status == status && t.Order > max {
			max = t.Order
		}
	}
	return max + 1
}

// Placement assigns a task a column and a 1-based position within it.
type Placement struct {
	ID     string
	Status Status
	Order  int
}

// Reorder computes the placements produced by dragging the task with the
// given id from the src column to position dstIdx in the dst column. Every
// column touched by the drag is renumbered to consecutive positions starting
// at 1. A nil result means the gesture changes nothing: the task is unknown,
// or source and destination describe the identical position.
func Reorder(tasks []Task, src Status, srcIdx int, dst Status, dstIdx int, id string) []Placement {
	srcCol := Column(tasks, src)
	at := -1
	if srcIdx >= 0 && srcIdx < len(srcCol) && srcCol[srcIdx].ID == id {
		at = srcIdx
	} else {
		// The drag payload's index can be stale; trust the task id.
		for i, t := range srcCol {
			if t.ID == id {
				at = i
				break
			}
		}
	}
	if at < 0 {
		return nil
	}
	if src == dst && at == dstIdx {
		return nil
	}

	moved := srcCol[at]
	srcCol = append(srcCol[:at], srcCol[at+1:]...)

	if src == dst {
		return renumber(insertAt(srcCol, moved, dstIdx))
	}

	moved.Status = dst
	dstCol := insertAt(Column(tasks, dst), moved, dstIdx)
	return append(renumber(srcCol), renumber(dstCol)...)
}

func insertAt(col []Task, t Task, idx int) []Task {
	if idx < 0 {
		idx = 0
	}
	if idx > len(col) {
		idx = len(col)
	}
	col = append(col, Task{})
	copy(col[idx+1:], col[idx:])
	col[idx] = t
	return col
}

func renumber(col []Task) []Placement {
	out := make([]Placement, len(col))
	for i, t := range col {
		out[i] = Placement{ID: t.ID, Status: t.Status, Order: i + 1}
	}
	return out
}

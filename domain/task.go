package domain

// Status identifies the board column a task occupies.
type Status string

const (
	StatusTodo  Status = "todo"
	StatusDoing Status = "doing"
	StatusDone  Status = "done"
)

// Statuses lists the three fixed columns in display order.
var Statuses = []Status{StatusTodo, StatusDoing, StatusDone}

// Valid reports whether s names one of the three fixed columns.
func (s Status) Valid() bool {
	switch s {
	case StatusTodo, StatusDoing, StatusDone:
		return true
	}
	return false
}

// Task represents a single board item.
type Task struct {
	ID     string `json:"id"`
	Text   string `json:"text"`
	Status Status `json:"status"`
	Owner  string `json:"owner"`
	Order  int    `json:"order"`
	// Pending marks a task whose latest remote write has not been confirmed.
	Pending bool `json:"pending,omitempty"`
}

// TaskUpdate carries partial updates for a task.
type TaskUpdate struct {
	Text   *string
	Status *Status
	Order  *int
}

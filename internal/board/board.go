// Package board holds the pure kanban logic: column renumbering, patch
// decoding, and audited-field diffing. It has no storage or HTTP concerns so
// the same planner runs against Postgres and against in-memory test stores.
package board

type Status string
type Priority string

const (
	StatusTodo       Status = "TODO"
	StatusInProgress Status = "IN_PROGRESS"
	StatusDone       Status = "DONE"
)

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
)

// Statuses lists every column in board order.
func Statuses() []Status {
	return []Status{StatusTodo, StatusInProgress, StatusDone}
}

func ParseStatus(value string) (Status, bool) {
	switch Status(value) {
	case StatusTodo, StatusInProgress, StatusDone:
		return Status(value), true
	default:
		return "", false
	}
}

func ParsePriority(value string) (Priority, bool) {
	switch Priority(value) {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return Priority(value), true
	default:
		return "", false
	}
}

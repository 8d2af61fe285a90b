package board

import (
	"bytes"
	"encoding/json"
	"time"
)

// Optional is a JSON field that distinguishes absent, explicit null, and a
// concrete value. A zero Optional means the field was not sent at all.
type Optional[T any] struct {
	Set   bool
	Null  bool
	Value T
}

func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	o.Set = true
	if bytes.Equal(data, []byte("null")) {
		o.Null = true
		return nil
	}
	return json.Unmarshal(data, &o.Value)
}

// Ptr returns the value as a pointer, nil when the field was absent or null.
func (o Optional[T]) Ptr() *T {
	if !o.Set || o.Null {
		return nil
	}
	v := o.Value
	return &v
}

// Patch is a partial issue update as sent by clients. Every field is
// tri-state so "clear the assignee" (null) and "leave it alone" (absent)
// stay distinct.
type Patch struct {
	Title       Optional[string]    `json:"title"`
	Description Optional[string]    `json:"description"`
	Status      Optional[string]    `json:"status"`
	Priority    Optional[string]    `json:"priority"`
	AssigneeID  Optional[string]    `json:"assigneeId"`
	Tags        Optional[[]string]  `json:"tags"`
	DueDate     Optional[time.Time] `json:"dueDate"`
	Position    Optional[int]       `json:"position"`
}

// Empty reports whether the patch carries no fields at all.
func (p Patch) Empty() bool {
	return !p.Title.Set && !p.Description.Set && !p.Status.Set && !p.Priority.Set &&
		!p.AssigneeID.Set && !p.Tags.Set && !p.DueDate.Set && !p.Position.Set
}

package board

import "time"

// Audited field names as they appear in history entries.
const (
	FieldCreated     = "created"
	FieldTitle       = "title"
	FieldDescription = "description"
	FieldStatus      = "status"
	FieldPriority    = "priority"
	FieldAssignee    = "assigneeId"
	FieldDueDate     = "dueDate"
)

// Snapshot holds the audited fields of an issue as currently stored.
type Snapshot struct {
	Title       string
	Description *string
	Status      Status
	Priority    Priority
	AssigneeID  *string
	DueDate     *time.Time
}

// FieldChange records one audited mutation. Old and New are nil when the
// field had, or is given, no value; an empty string stays an empty string.
type FieldChange struct {
	Field string
	Old   *string
	New   *string
}

// Diff compares an issue snapshot against a patch and returns one change per
// audited field that actually differs. Status changes record the pre-move
// status as the old value. Position is intentionally never audited.
func Diff(current Snapshot, patch Patch) []FieldChange {
	var changes []FieldChange

	if patch.Title.Set && !patch.Title.Null && patch.Title.Value != current.Title {
		changes = append(changes, FieldChange{
			Field: FieldTitle,
			Old:   strptr(current.Title),
			New:   strptr(patch.Title.Value),
		})
	}

	if patch.Description.Set {
		next := patch.Description.Ptr()
		if !equalStrPtr(current.Description, next) {
			changes = append(changes, FieldChange{Field: FieldDescription, Old: current.Description, New: next})
		}
	}

	if patch.Status.Set && !patch.Status.Null && Status(patch.Status.Value) != current.Status {
		changes = append(changes, FieldChange{
			Field: FieldStatus,
			Old:   strptr(string(current.Status)),
			New:   strptr(patch.Status.Value),
		})
	}

	if patch.Priority.Set && !patch.Priority.Null && Priority(patch.Priority.Value) != current.Priority {
		changes = append(changes, FieldChange{
			Field: FieldPriority,
			Old:   strptr(string(current.Priority)),
			New:   strptr(patch.Priority.Value),
		})
	}

	if patch.AssigneeID.Set {
		next := patch.AssigneeID.Ptr()
		if !equalStrPtr(current.AssigneeID, next) {
			changes = append(changes, FieldChange{Field: FieldAssignee, Old: current.AssigneeID, New: next})
		}
	}

	if patch.DueDate.Set {
		next := patch.DueDate.Ptr()
		if !equalTimePtr(current.DueDate, next) {
			changes = append(changes, FieldChange{
				Field: FieldDueDate,
				Old:   formatTimePtr(current.DueDate),
				New:   formatTimePtr(next),
			})
		}
	}

	return changes
}

func strptr(s string) *string {
	return &s
}

func equalStrPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func equalTimePtr(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	formatted := t.UTC().Format(time.RFC3339)
	return &formatted
}

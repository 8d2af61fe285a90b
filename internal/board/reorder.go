package board

// Card is the minimal view of an issue the planner needs: identity plus its
// currently stored position.
type Card struct {
	ID       string
	Position int
}

// PositionUpdate is one row whose position must change.
type PositionUpdate struct {
	ID       string
	Position int
}

// MovePlan is the outcome of planning an insertion into a column.
type MovePlan struct {
	// Position the moving card lands on after clamping.
	Position int
	// Updates for every other card in the column whose position changes.
	Updates []PositionUpdate
}

// Clamp bounds a requested position to [0, columnSize]. columnSize is the
// number of cards already in the column not counting the one being placed,
// so columnSize itself means "append at the end".
func Clamp(requested, columnSize int) int {
	if requested < 0 {
		return 0
	}
	if requested > columnSize {
		return columnSize
	}
	return requested
}

// PlanInsert places a card into a column at the requested position. column
// must not contain the moving card and must be ordered by current position.
// Cards at or after the insertion point shift up by one; the result is the
// dense sequence 0..len(column).
func PlanInsert(column []Card, requested int) MovePlan {
	position := Clamp(requested, len(column))

	plan := MovePlan{Position: position}
	for i, card := range column {
		next := i
		if i >= position {
			next = i + 1
		}
		if next != card.Position {
			plan.Updates = append(plan.Updates, PositionUpdate{ID: card.ID, Position: next})
		}
	}
	return plan
}

// PlanRemoval renumbers a column after a card leaves it. column must not
// contain the departing card; remaining cards collapse onto 0..len(column)-1.
func PlanRemoval(column []Card) []PositionUpdate {
	var updates []PositionUpdate
	for i, card := range column {
		if card.Position != i {
			updates = append(updates, PositionUpdate{ID: card.ID, Position: i})
		}
	}
	return updates
}

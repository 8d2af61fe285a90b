package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5/pgconn"

	"trackboard/api/internal/board"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const issueSelect = `
	SELECT i.id, i.org_id, i.title, i.description, i.status, i.priority, i.tags,
		i.due_date, i.position, i.reporter_id, i.assignee_id, i.created_at, i.updated_at,
		r.name, r.email, r.avatar,
		a.name, a.email, a.avatar
	FROM issues i
	JOIN users r ON r.id = i.reporter_id
	LEFT JOIN users a ON a.id = i.assignee_id
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIssue(row rowScanner) (Issue, error) {
	var item Issue
	var tags []byte
	var assigneeName, assigneeEmail sql.NullString
	var assigneeAvatar sql.NullString

	err := row.Scan(
		&item.ID, &item.OrgID, &item.Title, &item.Description, &item.Status, &item.Priority, &tags,
		&item.DueDate, &item.Position, &item.ReporterID, &item.AssigneeID, &item.CreatedAt, &item.UpdatedAt,
		&item.Reporter.Name, &item.Reporter.Email, &item.Reporter.Avatar,
		&assigneeName, &assigneeEmail, &assigneeAvatar,
	)
	if err != nil {
		return Issue{}, err
	}

	if len(tags) > 0 {
		if err := json.Unmarshal(tags, &item.Tags); err != nil {
			return Issue{}, fmt.Errorf("decode issue tags: %w", err)
		}
	}
	item.Reporter.ID = item.ReporterID
	if item.AssigneeID != nil {
		item.Assignee = &UserSummary{
			ID:    *item.AssigneeID,
			Name:  assigneeName.String,
			Email: assigneeEmail.String,
		}
		if assigneeAvatar.Valid {
			avatar := assigneeAvatar.String
			item.Assignee.Avatar = &avatar
		}
	}
	return item, nil
}

func (s *PostgresStore) GetIssue(ctx context.Context, orgID, issueID string) (Issue, error) {
	item, err := scanIssue(s.db.QueryRowContext(ctx, issueSelect+`WHERE i.id=$1 AND i.org_id=$2`, issueID, orgID))
	if errors.Is(err, sql.ErrNoRows) {
		return Issue{}, ErrNotFound
	}
	if err != nil {
		return Issue{}, fmt.Errorf("get issue: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) ListIssues(ctx context.Context, orgID string, filter IssueFilter) (IssuePage, error) {
	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize < 1 {
		pageSize = 20
	}

	where := `
		WHERE i.org_id = $1
		AND ($2 = '' OR i.status = $2)
		AND ($3 = '' OR i.priority = $3)
		AND ($4 = '' OR CASE WHEN $4 = 'unassigned' THEN i.assignee_id IS NULL ELSE i.assignee_id = $4 END)
		AND ($5 = '' OR i.title ILIKE '%' || $5 || '%' OR i.description ILIKE '%' || $5 || '%')
		AND ($6::timestamptz IS NULL OR i.due_date >= $6)
		AND ($7::timestamptz IS NULL OR i.due_date <= $7)
	`
	args := []any{orgID, filter.Status, filter.Priority, filter.AssigneeID, filter.Search, filter.DueDateFrom, filter.DueDateTo}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM issues i`+where, args...).Scan(&total); err != nil {
		return IssuePage{}, fmt.Errorf("count issues: %w", err)
	}

	query := issueSelect + where + `
		ORDER BY i.status ASC, i.position ASC, i.created_at DESC
		LIMIT $8 OFFSET $9
	`
	rows, err := s.db.QueryContext(ctx, query, append(args, pageSize, (page-1)*pageSize)...)
	if err != nil {
		return IssuePage{}, fmt.Errorf("list issues: %w", err)
	}
	defer rows.Close()

	issues := make([]Issue, 0)
	for rows.Next() {
		item, err := scanIssue(rows)
		if err != nil {
			return IssuePage{}, fmt.Errorf("scan issue: %w", err)
		}
		issues = append(issues, item)
	}
	if err := rows.Err(); err != nil {
		return IssuePage{}, fmt.Errorf("iterate issues: %w", err)
	}

	totalPages := (total + pageSize - 1) / pageSize
	return IssuePage{Issues: issues, Total: total, Page: page, PageSize: pageSize, TotalPages: totalPages}, nil
}

func (s *PostgresStore) VerifyOrgMembership(ctx context.Context, userID, orgID string) (*Membership, error) {
	var m Membership
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, org_id, role, joined_at
		FROM org_memberships
		WHERE user_id=$1 AND org_id=$2
	`, userID, orgID).Scan(&m.UserID, &m.OrgID, &m.Role, &m.JoinedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("verify membership: %w", err)
	}
	return &m, nil
}

func (s *PostgresStore) ListIssueHistory(ctx context.Context, orgID, issueID string) ([]HistoryEntry, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM issues WHERE id=$1 AND org_id=$2)`, issueID, orgID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("check issue: %w", err)
	}
	if !exists {
		return nil, ErrNotFound
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT h.id, h.issue_id, h.actor_id, h.field_changed, h.old_value, h.new_value, h.created_at,
			u.name, u.email, u.avatar
		FROM issue_history h
		JOIN users u ON u.id = h.actor_id
		WHERE h.issue_id = $1
		ORDER BY h.created_at DESC, h.id DESC
	`, issueID)
	if err != nil {
		return nil, fmt.Errorf("list issue history: %w", err)
	}
	defer rows.Close()

	entries := make([]HistoryEntry, 0)
	for rows.Next() {
		var entry HistoryEntry
		if err := rows.Scan(
			&entry.ID, &entry.IssueID, &entry.ActorID, &entry.Field, &entry.OldValue, &entry.NewValue, &entry.CreatedAt,
			&entry.Actor.Name, &entry.Actor.Email, &entry.Actor.Avatar,
		); err != nil {
			return nil, fmt.Errorf("scan history entry: %w", err)
		}
		entry.Actor.ID = entry.ActorID
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return entries, nil
}

// CreateIssue inserts an issue at a clamped position in the target column and
// records the "created" history entry, all in one transaction.
func (s *PostgresStore) CreateIssue(ctx context.Context, draft IssueDraft) (Issue, error) {
	err := s.inTxWithRetry(ctx, func(tx *sql.Tx) error {
		if draft.AssigneeID != nil {
			member, err := membershipExists(ctx, tx, *draft.AssigneeID, draft.OrgID)
			if err != nil {
				return err
			}
			if !member {
				return ErrAssigneeNotMember
			}
		}

		columns, err := lockColumns(ctx, tx, draft.OrgID, "", draft.Status)
		if err != nil {
			return err
		}
		column := columns[draft.Status]

		requested := len(column)
		if draft.Position != nil {
			requested = *draft.Position
		}
		plan := board.PlanInsert(column, requested)
		if err := applyPositionUpdates(ctx, tx, plan.Updates); err != nil {
			return err
		}

		tags, err := json.Marshal(tagsOrEmpty(draft.Tags))
		if err != nil {
			return fmt.Errorf("encode issue tags: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO issues (id, org_id, title, description, status, priority, tags, due_date, position, reporter_id, assignee_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8, $9, $10, $11)
		`, draft.ID, draft.OrgID, draft.Title, draft.Description, draft.Status, draft.Priority,
			string(tags), draft.DueDate, plan.Position, draft.ReporterID, draft.AssigneeID)
		if err != nil {
			return fmt.Errorf("insert issue: %w", err)
		}

		created := "Issue created"
		return insertHistory(ctx, tx, draft.ID, draft.ReporterID, []board.FieldChange{
			{Field: board.FieldCreated, New: &created},
		})
	})
	if err != nil {
		return Issue{}, err
	}
	return s.GetIssue(ctx, draft.OrgID, draft.ID)
}

// UpdateIssue applies a patch to an issue: field updates, column renumbering
// when status or position change, and one history row per audited field that
// differs. Everything commits atomically; the column stays dense 0..K-1.
func (s *PostgresStore) UpdateIssue(ctx context.Context, orgID, issueID, actorID string, patch board.Patch) (Issue, error) {
	err := s.inTxWithRetry(ctx, func(tx *sql.Tx) error {
		current, err := lockIssue(ctx, tx, orgID, issueID)
		if err != nil {
			return err
		}

		if patch.AssigneeID.Set && !patch.AssigneeID.Null {
			member, err := membershipExists(ctx, tx, patch.AssigneeID.Value, orgID)
			if err != nil {
				return err
			}
			if !member {
				return ErrAssigneeNotMember
			}
		}

		changes := board.Diff(board.Snapshot{
			Title:       current.Title,
			Description: current.Description,
			Status:      current.Status,
			Priority:    current.Priority,
			AssigneeID:  current.AssigneeID,
			DueDate:     current.DueDate,
		}, patch)

		newStatus := current.Status
		if patch.Status.Set && !patch.Status.Null {
			newStatus = board.Status(patch.Status.Value)
		}
		statusChanged := newStatus != current.Status

		newPosition := current.Position
		positionRequested := patch.Position.Set && !patch.Position.Null
		moved := statusChanged || (positionRequested && patch.Position.Value != current.Position)

		if moved {
			columns, err := lockColumns(ctx, tx, orgID, issueID, current.Status, newStatus)
			if err != nil {
				return err
			}

			requested := current.Position
			if positionRequested {
				requested = patch.Position.Value
			}

			if statusChanged {
				if err := applyPositionUpdates(ctx, tx, board.PlanRemoval(columns[current.Status])); err != nil {
					return err
				}
			}
			plan := board.PlanInsert(columns[newStatus], requested)
			if err := applyPositionUpdates(ctx, tx, plan.Updates); err != nil {
				return err
			}
			newPosition = plan.Position
		}

		if len(changes) == 0 && !moved && !patch.Tags.Set {
			return nil
		}

		newTitle := current.Title
		if patch.Title.Set && !patch.Title.Null {
			newTitle = patch.Title.Value
		}
		newDescription := current.Description
		if patch.Description.Set {
			newDescription = patch.Description.Ptr()
		}
		newPriority := current.Priority
		if patch.Priority.Set && !patch.Priority.Null {
			newPriority = board.Priority(patch.Priority.Value)
		}
		newAssignee := current.AssigneeID
		if patch.AssigneeID.Set {
			newAssignee = patch.AssigneeID.Ptr()
		}
		newDueDate := current.DueDate
		if patch.DueDate.Set {
			newDueDate = patch.DueDate.Ptr()
		}
		newTags := current.Tags
		if patch.Tags.Set {
			newTags = nil
			if !patch.Tags.Null {
				newTags = patch.Tags.Value
			}
		}

		tags, err := json.Marshal(tagsOrEmpty(newTags))
		if err != nil {
			return fmt.Errorf("encode issue tags: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE issues
			SET title=$1, description=$2, status=$3, priority=$4, tags=$5::jsonb,
				due_date=$6, assignee_id=$7, position=$8, updated_at=NOW()
			WHERE id=$9
		`, newTitle, newDescription, newStatus, newPriority, string(tags),
			newDueDate, newAssignee, newPosition, issueID)
		if err != nil {
			return fmt.Errorf("update issue: %w", err)
		}

		return insertHistory(ctx, tx, issueID, actorID, changes)
	})
	if err != nil {
		return Issue{}, err
	}
	return s.GetIssue(ctx, orgID, issueID)
}

// DeleteIssue removes an issue and renumbers the column it leaves behind so
// the remaining positions stay dense. History rows go with the issue via the
// ON DELETE CASCADE foreign key.
func (s *PostgresStore) DeleteIssue(ctx context.Context, orgID, issueID string) error {
	return s.inTxWithRetry(ctx, func(tx *sql.Tx) error {
		current, err := lockIssue(ctx, tx, orgID, issueID)
		if err != nil {
			return err
		}

		columns, err := lockColumns(ctx, tx, orgID, issueID, current.Status)
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM issues WHERE id=$1`, issueID); err != nil {
			return fmt.Errorf("delete issue: %w", err)
		}

		return applyPositionUpdates(ctx, tx, board.PlanRemoval(columns[current.Status]))
	})
}

// lockIssue loads the mutable fields of an issue under FOR UPDATE within the
// caller's organization.
func lockIssue(ctx context.Context, tx *sql.Tx, orgID, issueID string) (Issue, error) {
	var item Issue
	var tags []byte
	err := tx.QueryRowContext(ctx, `
		SELECT id, org_id, title, description, status, priority, tags, due_date, position, reporter_id, assignee_id
		FROM issues
		WHERE id=$1 AND org_id=$2
		FOR UPDATE
	`, issueID, orgID).Scan(
		&item.ID, &item.OrgID, &item.Title, &item.Description, &item.Status, &item.Priority,
		&tags, &item.DueDate, &item.Position, &item.ReporterID, &item.AssigneeID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Issue{}, ErrNotFound
	}
	if err != nil {
		return Issue{}, fmt.Errorf("lock issue: %w", err)
	}
	if len(tags) > 0 {
		if err := json.Unmarshal(tags, &item.Tags); err != nil {
			return Issue{}, fmt.Errorf("decode issue tags: %w", err)
		}
	}
	return item, nil
}

// lockColumns locks every row of the given columns (minus excludeID) and
// returns each column ordered by position. Columns are always locked in board
// order and rows within a column by id, keeping the lock order stable across
// concurrent transactions.
func lockColumns(ctx context.Context, tx *sql.Tx, orgID, excludeID string, statuses ...board.Status) (map[board.Status][]board.Card, error) {
	wanted := make(map[board.Status]bool, len(statuses))
	for _, status := range statuses {
		wanted[status] = true
	}

	columns := make(map[board.Status][]board.Card, len(wanted))
	for _, status := range board.Statuses() {
		if !wanted[status] {
			continue
		}
		rows, err := tx.QueryContext(ctx, `
			SELECT id, position FROM issues
			WHERE org_id=$1 AND status=$2 AND id<>$3
			ORDER BY id
			FOR UPDATE
		`, orgID, status, excludeID)
		if err != nil {
			return nil, fmt.Errorf("lock column %s: %w", status, err)
		}

		var column []board.Card
		for rows.Next() {
			var card board.Card
			if err := rows.Scan(&card.ID, &card.Position); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan column %s: %w", status, err)
			}
			column = append(column, card)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("iterate column %s: %w", status, err)
		}

		sort.Slice(column, func(i, j int) bool { return column[i].Position < column[j].Position })
		columns[status] = column
	}
	return columns, nil
}

func applyPositionUpdates(ctx context.Context, tx *sql.Tx, updates []board.PositionUpdate) error {
	for _, update := range updates {
		_, err := tx.ExecContext(ctx,
			`UPDATE issues SET position=$1, updated_at=NOW() WHERE id=$2`, update.Position, update.ID)
		if err != nil {
			return fmt.Errorf("renumber issue %s: %w", update.ID, err)
		}
	}
	return nil
}

func insertHistory(ctx context.Context, tx *sql.Tx, issueID, actorID string, changes []board.FieldChange) error {
	for _, change := range changes {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO issue_history (issue_id, actor_id, field_changed, old_value, new_value)
			VALUES ($1, $2, $3, $4, $5)
		`, issueID, actorID, change.Field, change.Old, change.New)
		if err != nil {
			return fmt.Errorf("insert history %s: %w", change.Field, err)
		}
	}
	return nil
}

func membershipExists(ctx context.Context, tx *sql.Tx, userID, orgID string) (bool, error) {
	var exists bool
	err := tx.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM org_memberships WHERE user_id=$1 AND org_id=$2)`, userID, orgID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check membership: %w", err)
	}
	return exists, nil
}

func tagsOrEmpty(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

// inTxWithRetry runs fn inside a serializable transaction, retrying once when
// Postgres reports a serialization or deadlock failure (SQLSTATE 40001/40P01).
// A second failure surfaces as ErrConflict.
func (s *PostgresStore) inTxWithRetry(ctx context.Context, fn func(*sql.Tx) error) error {
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		err = s.inTx(ctx, fn)
		if err == nil || !isSerializationFailure(err) {
			return err
		}
	}
	return fmt.Errorf("%w: %v", ErrConflict, err)
}

func (s *PostgresStore) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	code := pgErr.SQLState()
	return code == "40001" || code == "40P01"
}

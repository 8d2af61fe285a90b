package store

import (
	"context"
	"database/sql"
	"fmt"

	"trackboard/api/internal/board"
)

// Bootstrap seeds a demo organization with users and a starter board when the
// database is empty. Safe to call on every startup.
func (s *PostgresStore) Bootstrap(ctx context.Context) error {
	var users int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM users`).Scan(&users); err != nil {
		return fmt.Errorf("count users: %w", err)
	}
	if users > 0 {
		return nil
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		seedUsers := []struct {
			id, name, email string
		}{
			{"usr_demo_ada", "Ada Moreno", "ada@acme.test"},
			{"usr_demo_bo", "Bo Lindqvist", "bo@acme.test"},
			{"usr_demo_cam", "Cam Okafor", "cam@acme.test"},
		}
		for _, u := range seedUsers {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO users (id, name, email) VALUES ($1, $2, $3)
				ON CONFLICT (id) DO NOTHING
			`, u.id, u.name, u.email); err != nil {
				return fmt.Errorf("seed user %s: %w", u.id, err)
			}
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO organizations (id, name, slug, owner_id)
			VALUES ('org_demo', 'Acme Inc.', 'acme', 'usr_demo_ada')
			ON CONFLICT (id) DO NOTHING
		`); err != nil {
			return fmt.Errorf("seed organization: %w", err)
		}

		memberships := []struct {
			userID, role string
		}{
			{"usr_demo_ada", "ADMIN"},
			{"usr_demo_bo", "MEMBER"},
			{"usr_demo_cam", "MEMBER"},
		}
		for _, m := range memberships {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO org_memberships (user_id, org_id, role) VALUES ($1, 'org_demo', $2)
				ON CONFLICT (user_id, org_id) DO NOTHING
			`, m.userID, m.role); err != nil {
				return fmt.Errorf("seed membership %s: %w", m.userID, err)
			}
		}

		seedIssues := []struct {
			id, title    string
			status       board.Status
			priority     board.Priority
			position     int
			assignee     *string
		}{
			{"iss_demo_1", "Set up the project board", board.StatusDone, board.PriorityMedium, 0, strptr("usr_demo_ada")},
			{"iss_demo_2", "Wire up authentication", board.StatusInProgress, board.PriorityHigh, 0, strptr("usr_demo_bo")},
			{"iss_demo_3", "Design the issue detail view", board.StatusTodo, board.PriorityMedium, 0, strptr("usr_demo_cam")},
			{"iss_demo_4", "Write onboarding docs", board.StatusTodo, board.PriorityLow, 1, nil},
		}
		for _, it := range seedIssues {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO issues (id, org_id, title, status, priority, position, reporter_id, assignee_id)
				VALUES ($1, 'org_demo', $2, $3, $4, $5, 'usr_demo_ada', $6)
				ON CONFLICT (id) DO NOTHING
			`, it.id, it.title, it.status, it.priority, it.position, it.assignee); err != nil {
				return fmt.Errorf("seed issue %s: %w", it.id, err)
			}
			created := "Issue created"
			if err := insertHistory(ctx, tx, it.id, "usr_demo_ada", []board.FieldChange{
				{Field: board.FieldCreated, New: &created},
			}); err != nil {
				return err
			}
		}
		return nil
	})
}

func strptr(s string) *string {
	return &s
}

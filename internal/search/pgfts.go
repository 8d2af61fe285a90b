package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true — if Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search queries the issues table using plainto_tsquery and ts_rank, with
// ts_headline for snippets.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	ctx := context.Background()

	var total int
	err := p.db.QueryRowContext(ctx, `
		SELECT count(*)
		FROM issues i
		WHERE i.org_id = $1 AND i.fts @@ plainto_tsquery('english', $2)
	`, q.OrgID, q.Text).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, `
		SELECT i.id, i.org_id, i.title,
			ts_headline('english', coalesce(i.description, ''), plainto_tsquery('english', $2), 'MaxFragments=1,MaxWords=30') AS snippet,
			i.status, i.priority
		FROM issues i
		WHERE i.org_id = $1 AND i.fts @@ plainto_tsquery('english', $2)
		ORDER BY ts_rank(i.fts, plainto_tsquery('english', $2)) DESC
		LIMIT $3 OFFSET $4
	`, q.OrgID, q.Text, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ID, &r.OrgID, &r.Title, &r.Snippet, &r.Status, &r.Priority); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllRecords returns every issue as an index record for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]IssueRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, org_id, title, coalesce(description, ''), status, priority
		FROM issues
	`)
	if err != nil {
		return nil, fmt.Errorf("load issues: %w", err)
	}
	defer rows.Close()

	records := make([]IssueRecord, 0)
	for rows.Next() {
		var r IssueRecord
		if err := rows.Scan(&r.ID, &r.OrgID, &r.Title, &r.Description, &r.Status, &r.Priority); err != nil {
			return nil, fmt.Errorf("scan issue: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate issues: %w", err)
	}
	return records, nil
}

package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"scrollmode/models"

	sqlbuilder "github.com/huandu/go-sqlbuilder"
)

// VoteStore persists per-item votes with a (item_id, viewer_id)
// uniqueness constraint.
type VoteStore struct {
	db *sql.DB
}

func NewVoteStore(database string) (*VoteStore, error) {
	db, err := connection(database)
	if err != nil {
		return nil, fmt.Errorf("failed to open vote store: %w", err)
	}
	return &VoteStore{db: db}, nil
}

func (store *VoteStore) Close() error {
	return store.db.Close()
}

// ListVoteCounts returns aggregate counts grouped by item id for the
// given ids. Items that nobody has voted for are absent from the map.
func (store *VoteStore) ListVoteCounts(ctx context.Context, itemIds []string) (map[string]int64, error) {
	counts := make(map[string]int64, len(itemIds))
	if len(itemIds) == 0 {
		return counts, nil
	}

	sb := sqlbuilder.NewSelectBuilder()
	sb.Select("item_id", "count(*) as count").From("votes")
	sb.Where(sb.In("item_id", sqlbuilder.Flatten(itemIds)...))
	sb.GroupBy("item_id")

	query, args := sb.BuildWithFlavor(sqlbuilder.SQLite)
	rows, err := store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query error: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var itemId string
		var count int64
		if err := rows.Scan(&itemId, &count); err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		counts[itemId] = count
	}
	return counts, rows.Err()
}

// ListViewerVotes returns the subset of the given ids the viewer has
// voted for.
func (store *VoteStore) ListViewerVotes(ctx context.Context, viewerId string, itemIds []string) ([]string, error) {
	if len(itemIds) == 0 {
		return nil, nil
	}

	sb := sqlbuilder.NewSelectBuilder()
	sb.Select("item_id").From("votes")
	sb.Where(sb.Equal("viewer_id", viewerId))
	sb.Where(sb.In("item_id", sqlbuilder.Flatten(itemIds)...))

	query, args := sb.BuildWithFlavor(sqlbuilder.SQLite)
	rows, err := store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query error: %w", err)
	}
	defer rows.Close()

	var voted []string
	for rows.Next() {
		var itemId string
		if err := rows.Scan(&itemId); err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		voted = append(voted, itemId)
	}
	return voted, rows.Err()
}

// AddVote inserts a vote row. Returns models.ErrDuplicateVote when the
// viewer already voted for the item.
func (store *VoteStore) AddVote(ctx context.Context, itemId string, viewerId string) error {
	insert := sqlbuilder.NewInsertBuilder()
	query, args := insert.InsertInto("votes").
		Cols("item_id", "viewer_id", "created_at").
		Values(itemId, viewerId, time.Now().Unix()).
		BuildWithFlavor(sqlbuilder.SQLite)

	if _, err := store.db.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return models.ErrDuplicateVote
		}
		return fmt.Errorf("insert error: %w", err)
	}
	return nil
}

// RemoveVote deletes a vote row keyed by (item id, viewer id). Deleting
// a vote that does not exist is not an error.
func (store *VoteStore) RemoveVote(ctx context.Context, itemId string, viewerId string) error {
	del := sqlbuilder.NewDeleteBuilder()
	query, args := del.DeleteFrom("votes").
		Where(del.Equal("item_id", itemId), del.Equal("viewer_id", viewerId)).
		BuildWithFlavor(sqlbuilder.SQLite)

	if _, err := store.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("delete error: %w", err)
	}
	return nil
}

// isUniqueViolation matches the SQLite unique constraint error. The
// modernc driver exposes no typed constraint error, so we match on the
// message the same way it surfaces in logs.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	if strings.Contains(msg, "UNIQUE constraint failed") {
		return true
	}
	// 2067 = SQLITE_CONSTRAINT_UNIQUE
	return strings.Contains(msg, "constraint failed") && strings.Contains(msg, "2067")
}

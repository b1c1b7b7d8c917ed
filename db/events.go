package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sqlbuilder "github.com/huandu/go-sqlbuilder"
	log "github.com/sirupsen/logrus"
)

// EventStore is the durable append-only log behind achievement flags.
type EventStore struct {
	db *sql.DB
}

func NewEventStore(database string) (*EventStore, error) {
	db, err := connection(database)
	if err != nil {
		return nil, fmt.Errorf("failed to open event store: %w", err)
	}
	return &EventStore{db: db}, nil
}

func (store *EventStore) Close() error {
	return store.db.Close()
}

// HasLoggedEvent reports, per kind, whether the viewer has ever logged
// an event of that kind.
func (store *EventStore) HasLoggedEvent(ctx context.Context, viewerId string, kinds []string) (map[string]bool, error) {
	logged := make(map[string]bool, len(kinds))
	for _, kind := range kinds {
		logged[kind] = false
	}
	if len(kinds) == 0 {
		return logged, nil
	}

	sb := sqlbuilder.NewSelectBuilder()
	sb.Select("DISTINCT kind").From("events")
	sb.Where(sb.Equal("viewer_id", viewerId))
	sb.Where(sb.In("kind", sqlbuilder.Flatten(kinds)...))

	query, args := sb.BuildWithFlavor(sqlbuilder.SQLite)
	rows, err := store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query error: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var kind string
		if err := rows.Scan(&kind); err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		logged[kind] = true
	}
	return logged, rows.Err()
}

// LogEvent appends one event row.
func (store *EventStore) LogEvent(ctx context.Context, viewerId string, kind string, details string) error {
	insert := sqlbuilder.NewInsertBuilder()
	query, args := insert.InsertInto("events").
		Cols("viewer_id", "kind", "details", "created_at").
		Values(viewerId, kind, details, time.Now().Unix()).
		BuildWithFlavor(sqlbuilder.SQLite)

	if _, err := store.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert error: %w", err)
	}

	log.WithFields(log.Fields{
		"viewer": viewerId,
		"kind":   kind,
	}).Info("Logged event")
	return nil
}

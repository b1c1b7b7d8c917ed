package db

import (
	"database/sql"
	"time"

	sb "github.com/huandu/go-sqlbuilder"
	log "github.com/sirupsen/logrus"
)

// Tidy removes event rows older than the retention window. Achievement
// kinds are excluded from the purge so one-shot flags never re-fire.
func Tidy(database string, retention time.Duration) (int64, error) {
	db, err := connection(database)
	if err != nil {
		return 0, err
	}
	defer db.Close()

	return tidy(db, retention)
}

func tidy(db *sql.DB, retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention).Unix()

	deleteEvents := sb.NewDeleteBuilder()
	query, args := deleteEvents.DeleteFrom("events").
		Where(
			deleteEvents.LessEqualThan("created_at", cutoff),
			deleteEvents.NotIn("kind", sb.Flatten(protectedKinds)...),
		).
		BuildWithFlavor(sb.SQLite)

	log.WithFields(log.Fields{
		"sql":  query,
		"args": args,
	}).Info("Tidying events")

	res, err := db.Exec(query, args...)
	if err != nil {
		return 0, err
	}

	return res.RowsAffected()
}

// Achievement kinds are one-shot across the account's lifetime and must
// never be aged out, or the signaler would re-fire.
var protectedKinds = []string{"feed-explorer", "first-like"}

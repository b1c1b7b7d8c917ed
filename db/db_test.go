package db_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"scrollmode/db"
	"scrollmode/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDatabase(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scrollmode.db")
	require.NoError(t, db.Migrate(path))
	return path
}

// seed opens a plain writer connection for loading fixture rows.
func seed(t *testing.T, path string, statements ...string) {
	t.Helper()
	conn, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer conn.Close()
	for _, statement := range statements {
		_, err := conn.Exec(statement)
		require.NoError(t, err)
	}
}

func TestMigrateAndRollback(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scrollmode.db")
	require.NoError(t, db.Migrate(path))
	require.NoError(t, db.Rollback(path))
	require.NoError(t, db.Migrate(path))
}

func TestContentStoreListRecent(t *testing.T) {
	path := testDatabase(t)
	seed(t, path,
		`INSERT INTO journal_entries (created_at, title, body) VALUES (100, 'older', 'first entry')`,
		`INSERT INTO journal_entries (created_at, title, body) VALUES (200, 'newer', 'second entry')`,
		`INSERT INTO species (slug, created_at, common_name) VALUES ('blackbird', 300, 'Blackbird')`,
		`INSERT INTO species (slug, created_at, common_name) VALUES (NULL, 400, 'Unknown finch')`,
	)

	store, err := db.NewContentStore(path)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.Ping(ctx))

	records, err := store.ListRecent(ctx, models.SourceJournal, 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	newest, ok := records[0].(models.JournalEntry)
	require.True(t, ok)
	assert.Equal(t, "newer", newest.Title)

	// Limit clips to the most recent rows
	records, err = store.ListRecent(ctx, models.SourceJournal, 1)
	require.NoError(t, err)
	require.Len(t, records, 1)

	// Legacy species rows have no slug; the zero value flows through
	records, err = store.ListRecent(ctx, models.SourceSpecies, 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	finch, ok := records[0].(models.Species)
	require.True(t, ok)
	assert.Equal(t, "", finch.Slug)
	assert.Equal(t, "Unknown finch", finch.CommonName)
}

func TestContentStoreUnknownTag(t *testing.T) {
	store, err := db.NewContentStore(testDatabase(t))
	require.NoError(t, err)
	defer store.Close()

	_, err = store.ListRecent(context.Background(), models.SourceType("podcast"), 10)
	assert.Error(t, err)
}

func TestVoteStoreRoundTrip(t *testing.T) {
	store, err := db.NewVoteStore(testDatabase(t))
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()

	require.NoError(t, store.AddVote(ctx, "journal-1", "viewer-1"))
	require.NoError(t, store.AddVote(ctx, "journal-1", "viewer-2"))
	require.NoError(t, store.AddVote(ctx, "book-3", "viewer-1"))

	// The primary key surfaces a second vote from the same viewer as a
	// typed error
	err = store.AddVote(ctx, "journal-1", "viewer-1")
	assert.ErrorIs(t, err, models.ErrDuplicateVote)

	counts, err := store.ListVoteCounts(ctx, []string{"journal-1", "book-3", "media-9"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts["journal-1"])
	assert.Equal(t, int64(1), counts["book-3"])
	assert.NotContains(t, counts, "media-9")

	voted, err := store.ListViewerVotes(ctx, "viewer-1", []string{"journal-1", "book-3", "media-9"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"journal-1", "book-3"}, voted)

	require.NoError(t, store.RemoveVote(ctx, "journal-1", "viewer-1"))
	counts, err = store.ListVoteCounts(ctx, []string{"journal-1"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts["journal-1"])
}

func TestEventStore(t *testing.T) {
	store, err := db.NewEventStore(testDatabase(t))
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	kinds := []string{"feed-explorer", "first-like"}

	logged, err := store.HasLoggedEvent(ctx, "viewer-1", kinds)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"feed-explorer": false, "first-like": false}, logged)

	require.NoError(t, store.LogEvent(ctx, "viewer-1", "feed-explorer", "rendered 16 items"))

	logged, err = store.HasLoggedEvent(ctx, "viewer-1", kinds)
	require.NoError(t, err)
	assert.True(t, logged["feed-explorer"])
	assert.False(t, logged["first-like"])

	// Another viewer's flags are untouched
	logged, err = store.HasLoggedEvent(ctx, "viewer-2", kinds)
	require.NoError(t, err)
	assert.False(t, logged["feed-explorer"])
}

func TestTidyKeepsAchievements(t *testing.T) {
	path := testDatabase(t)
	old := time.Now().Add(-120 * 24 * time.Hour).Unix()
	seed(t, path,
		`INSERT INTO events (viewer_id, kind, details, created_at) VALUES ('viewer-1', 'feed-explorer', '', `+itoa(old)+`)`,
		`INSERT INTO events (viewer_id, kind, details, created_at) VALUES ('viewer-1', 'session-open', '', `+itoa(old)+`)`,
		`INSERT INTO events (viewer_id, kind, details, created_at) VALUES ('viewer-1', 'session-open', '', `+itoa(time.Now().Unix())+`)`,
	)

	removed, err := db.Tidy(path, 90*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	store, err := db.NewEventStore(path)
	require.NoError(t, err)
	defer store.Close()

	logged, err := store.HasLoggedEvent(context.Background(), "viewer-1", []string{"feed-explorer"})
	require.NoError(t, err)
	assert.True(t, logged["feed-explorer"])
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}

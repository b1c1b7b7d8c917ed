package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"scrollmode/models"

	sqlbuilder "github.com/huandu/go-sqlbuilder"
)

// ContentStore reads recent records from the per-collection tables. It
// is the read-only accessor behind the feed's source fan-out; the
// dashboard panels own all writes.
type ContentStore struct {
	db *sql.DB
}

func NewContentStore(database string) (*ContentStore, error) {
	db, err := readConnection(database)
	if err != nil {
		return nil, fmt.Errorf("failed to open content store: %w", err)
	}
	return &ContentStore{db: db}, nil
}

func (store *ContentStore) Ping(ctx context.Context) error {
	return store.db.PingContext(ctx)
}

func (store *ContentStore) Close() error {
	return store.db.Close()
}

// ListRecent returns up to limit records from the tagged collection,
// newest first.
func (store *ContentStore) ListRecent(ctx context.Context, tag models.SourceType, limit int) ([]models.SourceRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	switch tag {
	case models.SourceJournal:
		return store.listJournal(ctx, limit)
	case models.SourceMedia:
		return store.listMedia(ctx, limit)
	case models.SourceRating:
		return store.listRatings(ctx, limit)
	case models.SourceArticle:
		return store.listArticles(ctx, limit)
	case models.SourceSpecies:
		return store.listSpecies(ctx, limit)
	case models.SourceBook:
		return store.listBooks(ctx, limit)
	case models.SourceProfile:
		return store.listProfiles(ctx, limit)
	default:
		return nil, fmt.Errorf("unknown collection tag: %s", tag)
	}
}

func (store *ContentStore) recentQuery(table string, limit int, cols ...string) (string, []interface{}) {
	sb := sqlbuilder.NewSelectBuilder()
	sb.Select(cols...).From(table)
	sb.OrderBy("created_at").Desc()
	sb.Limit(limit)
	return sb.BuildWithFlavor(sqlbuilder.SQLite)
}

func (store *ContentStore) listJournal(ctx context.Context, limit int) ([]models.SourceRecord, error) {
	query, args := store.recentQuery("journal_entries", limit, "id", "created_at", "title", "body")
	rows, err := store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query error: %w", err)
	}
	defer rows.Close()

	var records []models.SourceRecord
	for rows.Next() {
		var entry models.JournalEntry
		if err := rows.Scan(&entry.Id, &entry.CreatedAt, &entry.Title, &entry.Body); err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		records = append(records, entry)
	}
	return records, rows.Err()
}

func (store *ContentStore) listMedia(ctx context.Context, limit int) ([]models.SourceRecord, error) {
	query, args := store.recentQuery("media_blocks", limit, "id", "created_at", "url", "kind", "thumbnail", "caption")
	rows, err := store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query error: %w", err)
	}
	defer rows.Close()

	var records []models.SourceRecord
	for rows.Next() {
		var block models.MediaBlock
		var kind string
		if err := rows.Scan(&block.Id, &block.CreatedAt, &block.Url, &kind, &block.Thumbnail, &block.Caption); err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		block.Kind = models.MediaKind(kind)
		records = append(records, block)
	}
	return records, rows.Err()
}

func (store *ContentStore) listRatings(ctx context.Context, limit int) ([]models.SourceRecord, error) {
	query, args := store.recentQuery("ratings", limit, "id", "created_at", "subject", "score", "comment")
	rows, err := store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query error: %w", err)
	}
	defer rows.Close()

	var records []models.SourceRecord
	for rows.Next() {
		var rating models.Rating
		if err := rows.Scan(&rating.Id, &rating.CreatedAt, &rating.Subject, &rating.Score, &rating.Comment); err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		records = append(records, rating)
	}
	return records, rows.Err()
}

func (store *ContentStore) listArticles(ctx context.Context, limit int) ([]models.SourceRecord, error) {
	query, args := store.recentQuery("articles", limit, "id", "created_at", "title", "url", "summary", "author")
	rows, err := store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query error: %w", err)
	}
	defer rows.Close()

	var records []models.SourceRecord
	for rows.Next() {
		var article models.Article
		if err := rows.Scan(&article.Id, &article.CreatedAt, &article.Title, &article.Url, &article.Summary, &article.Author); err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		records = append(records, article)
	}
	return records, rows.Err()
}

func (store *ContentStore) listSpecies(ctx context.Context, limit int) ([]models.SourceRecord, error) {
	query, args := store.recentQuery("species", limit, "slug", "created_at", "common_name", "latin_name", "photo")
	rows, err := store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query error: %w", err)
	}
	defer rows.Close()

	var records []models.SourceRecord
	for rows.Next() {
		var species models.Species
		var slug sql.NullString
		if err := rows.Scan(&slug, &species.CreatedAt, &species.CommonName, &species.LatinName, &species.Photo); err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		species.Slug = slug.String
		records = append(records, species)
	}
	return records, rows.Err()
}

func (store *ContentStore) listBooks(ctx context.Context, limit int) ([]models.SourceRecord, error) {
	query, args := store.recentQuery("books", limit, "id", "created_at", "title", "author", "cover_url", "review")
	rows, err := store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query error: %w", err)
	}
	defer rows.Close()

	var records []models.SourceRecord
	for rows.Next() {
		var book models.Book
		if err := rows.Scan(&book.Id, &book.CreatedAt, &book.Title, &book.Author, &book.CoverUrl, &book.Review); err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		records = append(records, book)
	}
	return records, rows.Err()
}

func (store *ContentStore) listProfiles(ctx context.Context, limit int) ([]models.SourceRecord, error) {
	query, args := store.recentQuery("profiles", limit, "id", "created_at", "display_name", "bio", "avatar_url", "url")
	rows, err := store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query error: %w", err)
	}
	defer rows.Close()

	var records []models.SourceRecord
	for rows.Next() {
		var profile models.Profile
		if err := rows.Scan(&profile.Id, &profile.CreatedAt, &profile.DisplayName, &profile.Bio, &profile.AvatarUrl, &profile.Url); err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		records = append(records, profile)
	}
	return records, rows.Err()
}

package feed

import (
	"fmt"

	"scrollmode/models"

	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
)

// Normalize maps one source collection's native records into the
// unified feed item shape. Item ids are namespaced by source tag so the
// same underlying record always yields the same id. Records without a
// usable native id get a synthetic id from a per-call counter; those
// ids are unique within the pass but not stable across passes.
func Normalize(records []models.SourceRecord) []models.FeedItem {
	items := make([]models.FeedItem, 0, len(records))
	synthetic := 0

	for _, record := range records {
		item, ok := normalizeRecord(record, &synthetic)
		if !ok {
			continue
		}
		// Every item must carry something to render. Sources with all
		// optional payloads empty fall back to the display title.
		if item.Text == "" && item.MediaUrl == "" && item.Link == "" {
			item.Text = item.DisplayTitle()
		}
		items = append(items, item)
	}

	return items
}

func normalizeRecord(record models.SourceRecord, synthetic *int) (models.FeedItem, bool) {
	switch r := record.(type) {
	case models.JournalEntry:
		return models.FeedItem{
			Id:         itemId(models.SourceJournal, r.Id),
			SourceType: models.SourceJournal,
			CreatedAt:  r.CreatedAt,
			Title:      r.Title,
			Text:       r.Body,
		}, true

	case models.MediaBlock:
		return models.FeedItem{
			Id:           itemId(models.SourceMedia, r.Id),
			SourceType:   models.SourceMedia,
			CreatedAt:    r.CreatedAt,
			Text:         r.Caption,
			MediaUrl:     r.Url,
			MediaType:    r.Kind,
			ThumbnailUrl: r.Thumbnail,
		}, true

	case models.Rating:
		return models.FeedItem{
			Id:         itemId(models.SourceRating, r.Id),
			SourceType: models.SourceRating,
			CreatedAt:  r.CreatedAt,
			Title:      r.Subject,
			Text:       r.Comment,
			Meta:       fmt.Sprintf("rated %d/5", r.Score),
		}, true

	case models.Article:
		return models.FeedItem{
			Id:         itemId(models.SourceArticle, r.Id),
			SourceType: models.SourceArticle,
			CreatedAt:  r.CreatedAt,
			Title:      r.Title,
			Text:       r.Summary,
			Meta:       r.Author,
			Link:       r.Url,
		}, true

	case models.Species:
		id := ""
		if r.Slug != "" {
			id = fmt.Sprintf("%s-%s", models.SourceSpecies, r.Slug)
		} else {
			*synthetic++
			id = fmt.Sprintf("item-%s-%d", models.SourceSpecies, *synthetic)
		}
		item := models.FeedItem{
			Id:         id,
			SourceType: models.SourceSpecies,
			CreatedAt:  r.CreatedAt,
			Title:      r.CommonName,
			Meta:       r.LatinName,
		}
		if r.Photo != "" {
			item.MediaUrl = r.Photo
			item.MediaType = models.MediaImage
		}
		return item, true

	case models.Book:
		item := models.FeedItem{
			Id:         itemId(models.SourceBook, r.Id),
			SourceType: models.SourceBook,
			CreatedAt:  r.CreatedAt,
			Title:      r.Title,
			Text:       r.Review,
			Meta:       r.Author,
		}
		if r.CoverUrl != "" {
			item.MediaUrl = r.CoverUrl
			item.MediaType = models.MediaImage
		}
		return item, true

	case models.Profile:
		item := models.FeedItem{
			Id:         itemId(models.SourceProfile, r.Id),
			SourceType: models.SourceProfile,
			CreatedAt:  r.CreatedAt,
			Title:      r.DisplayName,
			Text:       r.Bio,
			Link:       r.Url,
		}
		if r.AvatarUrl != "" {
			item.MediaUrl = r.AvatarUrl
			item.MediaType = models.MediaImage
		}
		return item, true

	default:
		// The SourceRecord union is sealed, so this only happens when a
		// new variant is added without a case above.
		log.WithFields(log.Fields{
			"source": record.Source(),
		}).Warn("Skipping record with unhandled source type")
		return models.FeedItem{}, false
	}
}

func itemId(tag models.SourceType, nativeId int64) string {
	return fmt.Sprintf("%s-%d", tag, nativeId)
}

// ItemIds projects a batch of items onto their ids.
func ItemIds(items []models.FeedItem) []string {
	return lo.Map(items, func(item models.FeedItem, _ int) string {
		return item.Id
	})
}

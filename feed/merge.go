package feed

import (
	"scrollmode/models"

	"github.com/samber/lo"
)

// Merge concatenates normalized source batches into one candidate set
// with a single entry per distinct id. First occurrence wins: ids are
// namespaced per source so collisions should not happen, but a
// normalizer running twice over overlapping fetches can produce them,
// and the earliest-inserted entry is the one that is kept.
func Merge(batches ...[]models.FeedItem) []models.FeedItem {
	merged := lo.Flatten(batches)
	return lo.UniqBy(merged, func(item models.FeedItem) string {
		return item.Id
	})
}

package feed

import "scrollmode/models"

// Snapshot is one merged, deduplicated, shuffled ordering of the feed
// together with its pagination cursor. The ordering is immutable once
// built; a re-shuffle means building a new snapshot from fresh source
// data. The cursor only moves forward and is owned by the session that
// serializes access.
type Snapshot struct {
	items  []models.FeedItem
	cursor int
}

func NewSnapshot(items []models.FeedItem) *Snapshot {
	owned := make([]models.FeedItem, len(items))
	copy(owned, items)
	return &Snapshot{items: owned}
}

// Initial releases the first batch and resets the cursor to
// min(batchSize, length).
func (s *Snapshot) Initial(batchSize int) models.FeedBatch {
	s.cursor = 0
	return s.More(batchSize)
}

// More releases the next batch, clipped to the snapshot length, and
// advances the cursor by the number of items actually returned. Once
// the cursor reaches the end it stays pinned there and further calls
// return an empty, exhausted batch.
func (s *Snapshot) More(batchSize int) models.FeedBatch {
	if batchSize < 0 {
		batchSize = 0
	}

	end := s.cursor + batchSize
	if end > len(s.items) {
		end = len(s.items)
	}

	batch := models.FeedBatch{
		Items: s.items[s.cursor:end:end],
	}
	s.cursor = end
	batch.Cursor = s.cursor
	batch.Exhausted = s.Exhausted()
	return batch
}

func (s *Snapshot) Cursor() int {
	return s.cursor
}

func (s *Snapshot) Len() int {
	return len(s.items)
}

func (s *Snapshot) Exhausted() bool {
	return s.cursor >= len(s.items)
}

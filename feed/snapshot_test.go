package feed_test

import (
	"testing"

	"scrollmode/feed"

	"github.com/stretchr/testify/assert"
)

func TestSnapshotInitial(t *testing.T) {
	tests := []struct {
		name           string
		size           int
		batchSize      int
		expectedLen    int
		expectedCursor int
		exhausted      bool
	}{
		{name: "batch smaller than snapshot", size: 25, batchSize: 10, expectedLen: 10, expectedCursor: 10},
		{name: "batch equals snapshot", size: 10, batchSize: 10, expectedLen: 10, expectedCursor: 10, exhausted: true},
		{name: "batch larger than snapshot", size: 4, batchSize: 10, expectedLen: 4, expectedCursor: 4, exhausted: true},
		{name: "empty snapshot", size: 0, batchSize: 10, expectedLen: 0, expectedCursor: 0, exhausted: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snapshot := feed.NewSnapshot(numberedItems(tt.size))
			batch := snapshot.Initial(tt.batchSize)

			assert.Len(t, batch.Items, tt.expectedLen)
			assert.Equal(t, tt.expectedCursor, batch.Cursor)
			assert.Equal(t, tt.exhausted, batch.Exhausted)
			assert.Equal(t, tt.expectedCursor, snapshot.Cursor())
		})
	}
}

func TestSnapshotCoverage(t *testing.T) {
	// initial(10) then more(8) until exhaustion must reproduce the
	// whole list with no gaps, repeats or reordering
	items := numberedItems(25)
	snapshot := feed.NewSnapshot(items)

	var released []string
	batch := snapshot.Initial(10)
	for _, item := range batch.Items {
		released = append(released, item.Id)
	}

	for !batch.Exhausted {
		batch = snapshot.More(8)
		for _, item := range batch.Items {
			released = append(released, item.Id)
		}
	}

	assert.Len(t, released, len(items))
	for i, item := range items {
		assert.Equal(t, item.Id, released[i])
	}
}

func TestSnapshotMoreAfterExhaustion(t *testing.T) {
	snapshot := feed.NewSnapshot(numberedItems(5))
	snapshot.Initial(10)

	assert.True(t, snapshot.Exhausted())
	assert.Equal(t, 5, snapshot.Cursor())

	// Redundant calls return empty and never push the cursor past the
	// snapshot length
	for i := 0; i < 3; i++ {
		batch := snapshot.More(8)
		assert.Empty(t, batch.Items)
		assert.True(t, batch.Exhausted)
		assert.Equal(t, 5, batch.Cursor)
	}
	assert.Equal(t, 5, snapshot.Cursor())
}

func TestSnapshotNegativeBatchSize(t *testing.T) {
	snapshot := feed.NewSnapshot(numberedItems(5))
	batch := snapshot.Initial(-1)

	assert.Empty(t, batch.Items)
	assert.Equal(t, 0, batch.Cursor)
	assert.False(t, batch.Exhausted)
}

func TestSnapshotImmutability(t *testing.T) {
	items := numberedItems(3)
	snapshot := feed.NewSnapshot(items)

	// Mutating the input after construction must not affect the
	// snapshot's ordering
	items[0].Id = "mutated"

	batch := snapshot.Initial(3)
	assert.Equal(t, "journal-0", batch.Items[0].Id)
}

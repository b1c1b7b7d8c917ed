package votes_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"scrollmode/models"
	"scrollmode/votes"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeVoteStore is an in-memory vote table with hooks to block and
// fail remote calls.
type fakeVoteStore struct {
	mu    sync.Mutex
	votes map[string]map[string]bool // itemId -> viewerId -> voted

	addEntered chan struct{} // closed-ish signal: receives when AddVote starts
	addRelease chan struct{} // AddVote blocks until this is closed
	addErr     error
	removeErr  error
}

func newFakeVoteStore() *fakeVoteStore {
	return &fakeVoteStore{votes: make(map[string]map[string]bool)}
}

func (f *fakeVoteStore) ListVoteCounts(ctx context.Context, itemIds []string) (map[string]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := make(map[string]int64)
	for _, id := range itemIds {
		if n := int64(len(f.votes[id])); n > 0 {
			counts[id] = n
		}
	}
	return counts, nil
}

func (f *fakeVoteStore) ListViewerVotes(ctx context.Context, viewerId string, itemIds []string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var voted []string
	for _, id := range itemIds {
		if f.votes[id][viewerId] {
			voted = append(voted, id)
		}
	}
	return voted, nil
}

func (f *fakeVoteStore) AddVote(ctx context.Context, itemId string, viewerId string) error {
	if f.addEntered != nil {
		f.addEntered <- struct{}{}
	}
	if f.addRelease != nil {
		<-f.addRelease
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addErr != nil {
		return f.addErr
	}
	if f.votes[itemId][viewerId] {
		return models.ErrDuplicateVote
	}
	if f.votes[itemId] == nil {
		f.votes[itemId] = make(map[string]bool)
	}
	f.votes[itemId][viewerId] = true
	return nil
}

func (f *fakeVoteStore) RemoveVote(ctx context.Context, itemId string, viewerId string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.removeErr != nil {
		return f.removeErr
	}
	delete(f.votes[itemId], viewerId)
	return nil
}

func TestToggleRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newFakeVoteStore()
	engage := votes.NewEngagement(store, "viewer-1")

	original := engage.State("journal-1")
	assert.False(t, original.Voted)
	assert.Equal(t, int64(0), original.Count)

	// Vote
	result, err := engage.Toggle(ctx, "journal-1")
	require.NoError(t, err)
	assert.True(t, result.Applied)
	assert.True(t, result.Added)
	assert.True(t, result.State.Voted)
	assert.Equal(t, int64(1), result.State.Count)

	// Unvote returns to the original state
	result, err = engage.Toggle(ctx, "journal-1")
	require.NoError(t, err)
	assert.True(t, result.Applied)
	assert.False(t, result.Added)
	assert.Equal(t, original, result.State)
	assert.Empty(t, store.votes["journal-1"])
}

func TestToggleConcurrencyGuard(t *testing.T) {
	ctx := context.Background()
	store := newFakeVoteStore()
	store.addEntered = make(chan struct{}, 1)
	store.addRelease = make(chan struct{})
	engage := votes.NewEngagement(store, "viewer-1")

	firstDone := make(chan votes.ToggleResult, 1)
	go func() {
		result, err := engage.Toggle(ctx, "journal-1")
		assert.NoError(t, err)
		firstDone <- result
	}()

	// Wait until the first toggle is suspended in the remote call
	select {
	case <-store.addEntered:
	case <-time.After(time.Second):
		t.Fatal("first toggle never reached the store")
	}

	// A second toggle for the same id while the first is pending is
	// ignored, not queued
	second, err := engage.Toggle(ctx, "journal-1")
	require.NoError(t, err)
	assert.False(t, second.Applied)

	close(store.addRelease)
	first := <-firstDone
	assert.True(t, first.Applied)

	// Exactly one state transition happened
	state := engage.State("journal-1")
	assert.True(t, state.Voted)
	assert.Equal(t, int64(1), state.Count)
	assert.Len(t, store.votes["journal-1"], 1)
}

func TestToggleDuplicateVoteReconciles(t *testing.T) {
	ctx := context.Background()
	store := newFakeVoteStore()

	// The viewer already voted from another tab
	require.NoError(t, store.AddVote(ctx, "journal-1", "viewer-1"))

	engage := votes.NewEngagement(store, "viewer-1")

	// Local state does not know about the other tab's vote, so this
	// toggle optimistically adds and then hits the duplicate error
	result, err := engage.Toggle(ctx, "journal-1")
	require.NoError(t, err, "duplicate vote must be silent")
	assert.True(t, result.Applied)
	assert.False(t, result.Added, "reconciled vote is not newly added")
	assert.True(t, result.State.Voted)
	assert.GreaterOrEqual(t, result.State.Count, int64(1))
}

func TestToggleGenericFailureKeepsOptimisticState(t *testing.T) {
	ctx := context.Background()
	store := newFakeVoteStore()
	store.addErr = errors.New("connection reset")

	engage := votes.NewEngagement(store, "viewer-1")

	result, err := engage.Toggle(ctx, "journal-1")
	assert.Error(t, err)
	assert.True(t, result.Applied)

	// No automatic rollback: the optimistic state stays applied
	state := engage.State("journal-1")
	assert.True(t, state.Voted)
	assert.Equal(t, int64(1), state.Count)
}

func TestToggleDecrementFloorsAtZero(t *testing.T) {
	ctx := context.Background()
	store := newFakeVoteStore()
	engage := votes.NewEngagement(store, "viewer-1")

	// Force a voted entry without a tracked count
	require.NoError(t, store.AddVote(ctx, "journal-1", "viewer-1"))
	require.NoError(t, engage.Bootstrap(ctx, []string{"journal-1"}))

	state := engage.State("journal-1")
	require.True(t, state.Voted)
	require.Equal(t, int64(1), state.Count)

	result, err := engage.Toggle(ctx, "journal-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), result.State.Count)

	// A second un-vote cannot push the count negative
	_, err = engage.Toggle(ctx, "journal-1")
	require.NoError(t, err)
	result, err = engage.Toggle(ctx, "journal-1")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, result.State.Count, int64(0))
}

func TestBootstrapMergesBothLookups(t *testing.T) {
	ctx := context.Background()
	store := newFakeVoteStore()

	require.NoError(t, store.AddVote(ctx, "journal-1", "viewer-1"))
	require.NoError(t, store.AddVote(ctx, "journal-1", "viewer-2"))
	require.NoError(t, store.AddVote(ctx, "book-2", "viewer-2"))

	engage := votes.NewEngagement(store, "viewer-1")
	require.NoError(t, engage.Bootstrap(ctx, []string{"journal-1", "book-2", "media-3"}))

	states := engage.States([]string{"journal-1", "book-2", "media-3"})
	assert.Equal(t, models.VoteState{Count: 2, Voted: true}, states["journal-1"])
	assert.Equal(t, models.VoteState{Count: 1, Voted: false}, states["book-2"])
	assert.Equal(t, models.VoteState{Count: 0, Voted: false}, states["media-3"])
}

// staleCountStore answers viewer votes normally but reports no counts,
// mimicking a count aggregate that lags behind the vote table.
type staleCountStore struct {
	*fakeVoteStore
}

func (s staleCountStore) ListVoteCounts(ctx context.Context, itemIds []string) (map[string]int64, error) {
	return map[string]int64{}, nil
}

func TestBootstrapEnforcesVotedCountInvariant(t *testing.T) {
	ctx := context.Background()
	store := newFakeVoteStore()
	require.NoError(t, store.AddVote(ctx, "journal-1", "viewer-1"))

	engage := votes.NewEngagement(staleCountStore{store}, "viewer-1")
	require.NoError(t, engage.Bootstrap(ctx, []string{"journal-1"}))

	// voted implies count >= 1 even when the count lookup lags
	state := engage.State("journal-1")
	assert.True(t, state.Voted)
	assert.GreaterOrEqual(t, state.Count, int64(1))
}

package votes

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"scrollmode/models"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Store is the remote vote table the engagement state reflects.
type Store interface {
	ListVoteCounts(ctx context.Context, itemIds []string) (map[string]int64, error)
	ListViewerVotes(ctx context.Context, viewerId string, itemIds []string) ([]string, error)
	AddVote(ctx context.Context, itemId string, viewerId string) error
	RemoveVote(ctx context.Context, itemId string, viewerId string) error
}

// ToggleResult describes what one toggle call did.
type ToggleResult struct {
	// Applied is false when another toggle for the same item was still
	// in flight and this call was ignored.
	Applied bool
	// Added is true only for a vote newly confirmed by the store, not
	// for removals or duplicate-vote reconciles. It is what drives the
	// first-like achievement.
	Added bool
	State models.VoteState
}

// Engagement mirrors the remote vote table for one viewer and session:
// aggregate counts per item plus the viewer's own voted set. Toggles
// apply optimistically before the remote call; a duplicate-vote error
// reconciles silently, any other error leaves the optimistic state in
// place and is surfaced to the caller.
type Engagement struct {
	store    Store
	viewerId string

	mu       sync.Mutex
	counts   map[string]int64
	voted    map[string]struct{}
	inflight map[string]struct{}
}

func NewEngagement(store Store, viewerId string) *Engagement {
	return &Engagement{
		store:    store,
		viewerId: viewerId,
		counts:   make(map[string]int64),
		voted:    make(map[string]struct{}),
		inflight: make(map[string]struct{}),
	}
}

// Bootstrap issues the two batched lookups for a freshly released batch
// of item ids: aggregate counts and the viewer's own votes, fetched
// concurrently. A failure is non-fatal for the feed; the caller logs it
// and the affected items default to zero/unvoted.
func (e *Engagement) Bootstrap(ctx context.Context, itemIds []string) error {
	if len(itemIds) == 0 {
		return nil
	}

	var counts map[string]int64
	var viewerVotes []string

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		counts, err = e.store.ListVoteCounts(ctx, itemIds)
		if err != nil {
			return fmt.Errorf("vote counts: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		viewerVotes, err = e.store.ListViewerVotes(ctx, e.viewerId, itemIds)
		if err != nil {
			return fmt.Errorf("viewer votes: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for id, count := range counts {
		e.counts[id] = count
	}
	for _, id := range viewerVotes {
		e.voted[id] = struct{}{}
		// The viewer's own vote is part of the aggregate
		if e.counts[id] < 1 {
			e.counts[id] = 1
		}
	}
	return nil
}

// Toggle flips the viewer's vote for the item. At most one toggle per
// item id is in flight at a time; overlapping calls are ignored, not
// queued.
func (e *Engagement) Toggle(ctx context.Context, itemId string) (ToggleResult, error) {
	e.mu.Lock()
	if _, busy := e.inflight[itemId]; busy {
		result := ToggleResult{State: e.stateLocked(itemId)}
		e.mu.Unlock()
		return result, nil
	}
	e.inflight[itemId] = struct{}{}

	_, wasVoted := e.voted[itemId]
	if wasVoted {
		delete(e.voted, itemId)
		if e.counts[itemId] > 0 {
			e.counts[itemId]--
		}
	} else {
		e.voted[itemId] = struct{}{}
		e.counts[itemId]++
	}
	state := e.stateLocked(itemId)
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		delete(e.inflight, itemId)
		e.mu.Unlock()
	}()

	if wasVoted {
		if err := e.store.RemoveVote(ctx, itemId, e.viewerId); err != nil {
			// Optimistic state stays as applied
			return ToggleResult{Applied: true, State: state}, fmt.Errorf("remove vote: %w", err)
		}
		return ToggleResult{Applied: true, State: state}, nil
	}

	err := e.store.AddVote(ctx, itemId, e.viewerId)
	if errors.Is(err, models.ErrDuplicateVote) {
		// Already voted from elsewhere, e.g. another tab. Treat as
		// success and reconcile from a fresh viewer-vote fetch.
		e.reconcile(ctx, itemId)
		return ToggleResult{Applied: true, State: e.State(itemId)}, nil
	}
	if err != nil {
		return ToggleResult{Applied: true, State: state}, fmt.Errorf("add vote: %w", err)
	}

	return ToggleResult{Applied: true, Added: true, State: state}, nil
}

// reconcile refreshes the viewer's membership for one item after a
// duplicate-vote response.
func (e *Engagement) reconcile(ctx context.Context, itemId string) {
	viewerVotes, err := e.store.ListViewerVotes(ctx, e.viewerId, []string{itemId})
	if err != nil {
		log.WithFields(log.Fields{
			"item":  itemId,
			"error": err,
		}).Warn("Error reconciling vote state")
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if len(viewerVotes) > 0 {
		e.voted[itemId] = struct{}{}
		if e.counts[itemId] < 1 {
			e.counts[itemId] = 1
		}
	} else {
		delete(e.voted, itemId)
	}
}

// State returns the tracked vote state for one item.
func (e *Engagement) State(itemId string) models.VoteState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stateLocked(itemId)
}

// States returns the tracked vote state for a batch of items.
func (e *Engagement) States(itemIds []string) map[string]models.VoteState {
	e.mu.Lock()
	defer e.mu.Unlock()

	states := make(map[string]models.VoteState, len(itemIds))
	for _, id := range itemIds {
		states[id] = e.stateLocked(id)
	}
	return states
}

func (e *Engagement) stateLocked(itemId string) models.VoteState {
	_, voted := e.voted[itemId]
	return models.VoteState{
		Count: e.counts[itemId],
		Voted: voted,
	}
}

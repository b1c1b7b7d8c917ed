package feed

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"scrollmode/models"
	"scrollmode/votes"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrSessionClosed is returned for operations on a closed session,
	// including loads that were in flight when the feed was closed.
	ErrSessionClosed = errors.New("feed session closed")

	// ErrLoadInFlight is returned when a batch load is requested while
	// a previous one is still pending. Callers coalesce it into a
	// no-op.
	ErrLoadInFlight = errors.New("batch load already in flight")
)

// SourceReader is the read accessor over the tracked content
// collections.
type SourceReader interface {
	ListRecent(ctx context.Context, tag models.SourceType, limit int) ([]models.SourceRecord, error)
}

// Options controls snapshot construction and batch release.
type Options struct {
	// Collections enumerates the source collections to aggregate.
	// Defaults to every tracked collection.
	Collections []models.SourceType

	// PerSourceLimit bounds each collection's recent-record fetch.
	PerSourceLimit int

	// InitialBatch is the number of items released on open.
	InitialBatch int

	// MoreBatch is the number of items released per scroll load.
	MoreBatch int

	// Rand drives the shuffle. Defaults to a time-seeded source.
	Rand *rand.Rand
}

func (opts Options) withDefaults() Options {
	if len(opts.Collections) == 0 {
		opts.Collections = models.SourceTypes
	}
	if opts.PerSourceLimit <= 0 {
		opts.PerSourceLimit = 50
	}
	if opts.InitialBatch <= 0 {
		opts.InitialBatch = 10
	}
	if opts.MoreBatch <= 0 {
		opts.MoreBatch = 8
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return opts
}

// Session owns one immutable feed snapshot with its cursor, engagement
// state and achievement signaler. Everything is rebuilt on open, so
// nothing is shared across sessions; a re-shuffle is a new session.
type Session struct {
	Id       string
	ViewerId string
	OpenedAt time.Time

	snapshot *Snapshot
	signaler *Signaler
	engage   *votes.Engagement
	opts     Options

	mu     sync.Mutex
	busy   bool
	closed bool
}

// Open fetches all sources, normalizes, merges, shuffles and releases
// the initial batch. The fan-out is all-or-nothing: any source failure
// aborts the open and no partial snapshot is exposed.
func Open(ctx context.Context, sources SourceReader, voteStore votes.Store, events EventStore, viewerId string, opts Options, notify func(models.AchievementEvent)) (*Session, models.FeedBatch, error) {
	opts = opts.withDefaults()

	// Fetch every collection concurrently, one normalizer pass each,
	// then concatenate in enumeration order.
	batches := make([][]models.FeedItem, len(opts.Collections))
	g, fetchCtx := errgroup.WithContext(ctx)
	for i, tag := range opts.Collections {
		g.Go(func() error {
			records, err := sources.ListRecent(fetchCtx, tag, opts.PerSourceLimit)
			if err != nil {
				return fmt.Errorf("fetch %s: %w", tag, err)
			}
			batches[i] = Normalize(records)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, models.FeedBatch{}, err
	}

	merged := Merge(batches...)
	snapshot := NewSnapshot(Shuffle(merged, opts.Rand))

	session := &Session{
		Id:       uuid.New().String(),
		ViewerId: viewerId,
		OpenedAt: time.Now(),
		snapshot: snapshot,
		signaler: NewSignaler(events, viewerId, notify),
		engage:   votes.NewEngagement(voteStore, viewerId),
		opts:     opts,
	}

	// Flag bootstrap failures leave the flags unknown; the session
	// still opens, achievements just stay quiet.
	if err := session.signaler.Bootstrap(ctx); err != nil {
		log.WithFields(log.Fields{
			"session": session.Id,
			"error":   err,
		}).Error("Error bootstrapping achievement flags")
	}

	batch := snapshot.Initial(opts.InitialBatch)

	if err := session.engage.Bootstrap(ctx, ItemIds(batch.Items)); err != nil {
		// Non-fatal: the feed renders with zero/unvoted defaults
		log.WithFields(log.Fields{
			"session": session.Id,
			"error":   err,
		}).Error("Error bootstrapping engagement state")
	}

	session.signaler.ObserveRendered(ctx, batch.Cursor)

	log.WithFields(log.Fields{
		"session": session.Id,
		"viewer":  viewerId,
		"items":   snapshot.Len(),
		"initial": len(batch.Items),
	}).Info("Opened feed session")

	return session, batch, nil
}

// More releases the next batch. A single in-flight load is enforced per
// session so overlapping scroll triggers cannot double-advance the
// cursor; redundant calls get ErrLoadInFlight.
func (s *Session) More(ctx context.Context) (models.FeedBatch, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return models.FeedBatch{}, ErrSessionClosed
	}
	if s.busy {
		s.mu.Unlock()
		return models.FeedBatch{}, ErrLoadInFlight
	}
	s.busy = true
	batch := s.snapshot.More(s.opts.MoreBatch)
	s.mu.Unlock()

	// The engagement lookup is a suspension point; the busy flag stays
	// up until the batch fully resolves.
	if len(batch.Items) > 0 {
		if err := s.engage.Bootstrap(ctx, ItemIds(batch.Items)); err != nil {
			log.WithFields(log.Fields{
				"session": s.Id,
				"error":   err,
			}).Error("Error fetching engagement state for batch")
		}
	}

	s.signaler.ObserveRendered(ctx, batch.Cursor)

	s.mu.Lock()
	s.busy = false
	closed := s.closed
	s.mu.Unlock()

	if closed {
		// The feed was closed while the load was pending; discard
		// rather than apply to a stale snapshot.
		return models.FeedBatch{}, ErrSessionClosed
	}
	return batch, nil
}

// Toggle flips the viewer's vote for an item and feeds a newly added
// vote into the first-like achievement.
func (s *Session) Toggle(ctx context.Context, itemId string) (votes.ToggleResult, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return votes.ToggleResult{}, ErrSessionClosed
	}
	s.mu.Unlock()

	result, err := s.engage.Toggle(ctx, itemId)
	if err == nil && result.Added {
		s.signaler.ObserveLike(ctx)
	}
	return result, err
}

// VoteStates returns the tracked engagement state for a batch of ids.
func (s *Session) VoteStates(itemIds []string) map[string]models.VoteState {
	return s.engage.States(itemIds)
}

// Cursor reports how many items the session has released so far.
func (s *Session) Cursor() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot.Cursor()
}

// Len reports the snapshot size.
func (s *Session) Len() int {
	return s.snapshot.Len()
}

// Exhausted reports whether every item has been released.
func (s *Session) Exhausted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot.Exhausted()
}

// Close marks the session dead. Any load still in flight discards its
// result instead of delivering it.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

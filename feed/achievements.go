package feed

import (
	"context"
	"sync"

	"scrollmode/models"

	log "github.com/sirupsen/logrus"
)

// Achievement event kinds and the exposure threshold. The threshold is
// the number of feed items a viewer must scroll past before the
// explorer achievement fires.
const (
	EventFeedExplorer = "feed-explorer"
	EventFirstLike    = "first-like"

	ExposureThreshold = 10
)

// FlagState of a one-shot achievement flag.
type FlagState int

const (
	// FlagUnknown means the durable state could not be loaded. An
	// unknown flag never fires, which errs on the side of not awarding
	// twice.
	FlagUnknown FlagState = iota
	FlagNotYet
	FlagFired
)

// EventStore is the durable log consulted and appended to by the
// signaler.
type EventStore interface {
	HasLoggedEvent(ctx context.Context, viewerId string, kinds []string) (map[string]bool, error)
	LogEvent(ctx context.Context, viewerId string, kind string, details string) error
}

// Signaler tracks the two one-shot achievement flags for one viewer
// within one feed session: cumulative exposure and first like. Each
// flag performs exactly one durable write and one notification, ever;
// re-opening the feed bootstraps prior state from the event log so a
// flag fired in an earlier session stays fired.
type Signaler struct {
	store    EventStore
	viewerId string
	notify   func(models.AchievementEvent)

	mu        sync.Mutex
	exposure  FlagState
	firstLike FlagState
}

// NewSignaler builds a signaler with both flags unknown until
// Bootstrap runs. notify may be nil.
func NewSignaler(store EventStore, viewerId string, notify func(models.AchievementEvent)) *Signaler {
	return &Signaler{
		store:    store,
		viewerId: viewerId,
		notify:   notify,
	}
}

// Bootstrap loads prior flag state from the durable log. On failure the
// flags stay unknown and never fire this session.
func (s *Signaler) Bootstrap(ctx context.Context) error {
	logged, err := s.store.HasLoggedEvent(ctx, s.viewerId, []string{EventFeedExplorer, EventFirstLike})
	if err != nil {
		log.WithFields(log.Fields{
			"viewer": s.viewerId,
			"error":  err,
		}).Error("Error loading achievement flags")
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.exposure = stateFromLogged(logged[EventFeedExplorer])
	s.firstLike = stateFromLogged(logged[EventFirstLike])
	return nil
}

func stateFromLogged(logged bool) FlagState {
	if logged {
		return FlagFired
	}
	return FlagNotYet
}

// ObserveRendered reports the cumulative number of items released by
// the session's cursor. Crossing the exposure threshold fires the
// explorer achievement exactly once.
func (s *Signaler) ObserveRendered(ctx context.Context, rendered int) {
	s.mu.Lock()
	if s.exposure != FlagNotYet || rendered <= ExposureThreshold {
		s.mu.Unlock()
		return
	}
	s.exposure = FlagFired
	s.mu.Unlock()

	s.fire(ctx, EventFeedExplorer, "scrolled past ten feed items")
}

// ObserveLike reports a newly added vote, as opposed to a toggle that
// merely reconciled an existing one.
func (s *Signaler) ObserveLike(ctx context.Context) {
	s.mu.Lock()
	if s.firstLike != FlagNotYet {
		s.mu.Unlock()
		return
	}
	s.firstLike = FlagFired
	s.mu.Unlock()

	s.fire(ctx, EventFirstLike, "liked a feed item")
}

// ExposureState returns the current exposure flag state.
func (s *Signaler) ExposureState() FlagState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exposure
}

// FirstLikeState returns the current first-like flag state.
func (s *Signaler) FirstLikeState() FlagState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.firstLike
}

// fire performs the single durable write and notification for a flag
// transition. The write is best effort: an error is logged, never
// surfaced and never retried.
func (s *Signaler) fire(ctx context.Context, kind string, details string) {
	if err := s.store.LogEvent(ctx, s.viewerId, kind, details); err != nil {
		log.WithFields(log.Fields{
			"viewer": s.viewerId,
			"kind":   kind,
			"error":  err,
		}).Error("Error logging achievement event")
	}

	if s.notify != nil {
		s.notify(models.AchievementEvent{
			ViewerId: s.viewerId,
			Kind:     kind,
			Details:  details,
		})
	}
}

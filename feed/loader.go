package feed

import (
	"context"
	"errors"
	"sync"

	"scrollmode/models"

	log "github.com/sirupsen/logrus"
)

// Loader turns sentinel-visibility notifications into batch loads. The
// sentinel can fire many times while a load is outstanding; redundant
// notifications are coalesced into a no-op rather than queued, and once
// the session is exhausted the loader goes permanently quiet.
type Loader struct {
	session *Session
	sink    func(models.FeedBatch)

	mu        sync.Mutex
	busy      bool
	exhausted bool
}

// NewLoader wraps a session. Each released batch is handed to sink.
func NewLoader(session *Session, sink func(models.FeedBatch)) *Loader {
	return &Loader{
		session: session,
		sink:    sink,
	}
}

// Notify signals that the trailing sentinel became visible. Returns
// true when a load was actually performed.
func (l *Loader) Notify(ctx context.Context) bool {
	l.mu.Lock()
	if l.busy || l.exhausted {
		l.mu.Unlock()
		return false
	}
	l.busy = true
	l.mu.Unlock()

	batch, err := l.session.More(ctx)

	l.mu.Lock()
	l.busy = false
	if err == nil && batch.Exhausted {
		l.exhausted = true
	}
	if errors.Is(err, ErrSessionClosed) {
		l.exhausted = true
	}
	l.mu.Unlock()

	if err != nil {
		if !errors.Is(err, ErrSessionClosed) && !errors.Is(err, ErrLoadInFlight) {
			log.WithFields(log.Fields{
				"session": l.session.Id,
				"error":   err,
			}).Error("Error loading feed batch")
		}
		return false
	}

	if len(batch.Items) > 0 && l.sink != nil {
		l.sink(batch)
	}
	return len(batch.Items) > 0
}

// Exhausted reports whether the loader has stopped requesting batches.
func (l *Loader) Exhausted() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.exhausted
}

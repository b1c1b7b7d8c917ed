package server

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"scrollmode/feed"
	"scrollmode/models"
	"scrollmode/votes"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

var (
	sessionsOpened = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scrollmode_sessions_opened_total",
		Help: "Number of feed sessions opened",
	})
	sessionOpenErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scrollmode_session_open_errors_total",
		Help: "Number of feed opens aborted by a source fetch failure",
	})
	batchesServed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scrollmode_batches_served_total",
		Help: "Number of feed batches released to clients",
	})
	voteToggles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scrollmode_vote_toggles_total",
		Help: "Number of vote toggles by outcome",
	}, []string{"outcome"})
	achievementsFired = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scrollmode_achievements_fired_total",
		Help: "Number of achievement events fired by kind",
	}, []string{"kind"})
)

type ServerConfig struct {

	// The hostname to use for the server
	Hostname string

	// The reader over the tracked content collections
	Sources feed.SourceReader

	// The remote vote table
	Votes votes.Store

	// The durable achievement event log
	Events feed.EventStore

	// Snapshot construction and batch release options
	Feed feed.Options

	// Broadcast channels to pass feed events to SSE clients
	Broadcaster *Broadcaster
}

// Make it sync
type Broadcaster struct {
	sync.RWMutex
	achievementClients map[string]chan models.AchievementEvent
	likeClients        map[string]chan models.LikeEvent
}

// Constructor
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		achievementClients: make(map[string]chan models.AchievementEvent, 100),
		likeClients:        make(map[string]chan models.LikeEvent, 100),
	}
}

func (b *Broadcaster) BroadcastAchievement(event models.AchievementEvent) {
	b.RLock()
	defer b.RUnlock()

	for id, client := range b.achievementClients {
		select {
		case client <- event: // Non-blocking send
		default:
			log.Warnf("Client channel full, skipping achievement for client: %v", id)
		}
	}
}

func (b *Broadcaster) BroadcastLike(event models.LikeEvent) {
	b.RLock()
	defer b.RUnlock()

	for id, client := range b.likeClients {
		select {
		case client <- event: // Non-blocking send
		default:
			log.Warnf("Client channel full, skipping like event for client: %v", id)
		}
	}
}

// Function to add a client to the broadcaster
func (b *Broadcaster) AddClient(key string, achievementClient chan models.AchievementEvent, likeClient chan models.LikeEvent) {
	b.Lock()
	defer b.Unlock()
	b.achievementClients[key] = achievementClient
	b.likeClients[key] = likeClient
	log.WithFields(log.Fields{
		"key":   key,
		"count": len(b.achievementClients),
	}).Info("Adding client to broadcaster")
}

// Function to remove a client from the broadcaster
func (b *Broadcaster) RemoveClient(key string) {
	b.Lock()
	defer b.Unlock()

	if client, ok := b.achievementClients[key]; ok {
		close(client)
		delete(b.achievementClients, key)
	}

	if client, ok := b.likeClients[key]; ok {
		close(client)
		delete(b.likeClients, key)
	}

	log.WithFields(log.Fields{
		"key":   key,
		"count": len(b.achievementClients),
	}).Info("Removed client from broadcaster")
}

func (b *Broadcaster) Shutdown() {
	log.Info("Shutting down broadcaster")
	b.Lock()
	defer b.Unlock()
	for key, client := range b.achievementClients {
		close(client)
		delete(b.achievementClients, key)
	}
	for key, client := range b.likeClients {
		close(client)
		delete(b.likeClients, key)
	}
}

// sessionTTL bounds how long an idle feed session is kept before the
// sweeper discards it.
const sessionTTL = 30 * time.Minute

type sessionEntry struct {
	session  *feed.Session
	lastSeen time.Time
}

// Registry owns the live feed sessions. Reopening the feed always
// produces a fresh session; closed or swept sessions discard late
// results.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*sessionEntry
	done     chan struct{}
}

func NewRegistry() *Registry {
	r := &Registry{
		sessions: make(map[string]*sessionEntry),
		done:     make(chan struct{}),
	}
	go r.sweep()
	return r
}

func (r *Registry) Add(session *feed.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[session.Id] = &sessionEntry{session: session, lastSeen: time.Now()}
}

func (r *Registry) Get(id string) (*feed.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	entry.lastSeen = time.Now()
	return entry.session, true
}

func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.sessions[id]; ok {
		entry.session.Close()
		delete(r.sessions, id)
	}
}

func (r *Registry) sweep() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
			r.mu.Lock()
			for id, entry := range r.sessions {
				if time.Since(entry.lastSeen) > sessionTTL {
					entry.session.Close()
					delete(r.sessions, id)
					log.WithFields(log.Fields{
						"session": id,
					}).Info("Swept idle feed session")
				}
			}
			r.mu.Unlock()
		}
	}
}

func (r *Registry) Shutdown() {
	close(r.done)
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, entry := range r.sessions {
		entry.session.Close()
		delete(r.sessions, id)
	}
}

type sessionResponse struct {
	SessionId string                      `json:"sessionId"`
	Items     []models.FeedItem           `json:"items"`
	Cursor    int                         `json:"cursor"`
	Total     int                         `json:"total"`
	Exhausted bool                        `json:"exhausted"`
	Votes     map[string]models.VoteState `json:"votes"`
}

type batchResponse struct {
	Items     []models.FeedItem           `json:"items"`
	Cursor    int                         `json:"cursor"`
	Exhausted bool                        `json:"exhausted"`
	Votes     map[string]models.VoteState `json:"votes"`
}

type toggleResponse struct {
	Applied bool             `json:"applied"`
	State   models.VoteState `json:"state"`
}

// Returns a fiber.App instance to be used as an HTTP server for the
// scroll-mode feed
func Server(config *ServerConfig) *fiber.App {

	bc := config.Broadcaster
	registry := NewRegistry()

	app := fiber.New()

	// Shut the registry sweeper down with the app
	app.Hooks().OnShutdown(func() error {
		registry.Shutdown()
		return nil
	})

	// Middleware to track the latency of each request
	app.Use(func(c *fiber.Ctx) error {
		// start timer
		start := time.Now()

		// next routes
		err := c.Next()

		// stop timer
		stop := time.Now()

		// Diff
		log.WithFields(log.Fields{
			"method":  c.Method(),
			"route":   c.Route().Path,
			"latency": stop.Sub(start),
		}).Info("Request")
		return err
	})

	app.Use(requestid.New(requestid.ConfigDefault))

	// SSE responses must not be compressed
	compressHandler := compress.New()
	app.Use(func(c *fiber.Ctx) error {
		if strings.HasSuffix(c.Path(), "/sse") {
			return c.Next()
		}
		return compressHandler(c)
	})

	// Setup CORS for the dashboard dev server
	app.Use(func(c *fiber.Ctx) error {
		corsConfig := cors.Config{
			AllowOrigins:     "http://localhost:3001",
			AllowHeaders:     "Cache-Control",
			AllowCredentials: true,
		}
		return cors.New(corsConfig)(c)
	})

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"service":  "scrollmode",
			"hostname": config.Hostname,
		})
	})

	// Prometheus metrics
	metricsHandler := fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
	app.Get("/metrics", func(c *fiber.Ctx) error {
		metricsHandler(c.Context())
		return nil
	})

	// Open a new feed session: fetch all sources, merge, shuffle and
	// release the initial batch. All-or-nothing; a failing source
	// aborts the open and the client may retry.
	app.Post("/feed/session", func(c *fiber.Ctx) error {
		viewerId := c.Query("viewer", "owner")

		session, batch, err := feed.Open(
			c.Context(),
			config.Sources,
			config.Votes,
			config.Events,
			viewerId,
			config.Feed,
			func(event models.AchievementEvent) {
				achievementsFired.WithLabelValues(event.Kind).Inc()
				bc.BroadcastAchievement(event)
			},
		)
		if err != nil {
			sessionOpenErrors.Inc()
			log.WithFields(log.Fields{
				"viewer": viewerId,
				"error":  err,
			}).Error("Error opening feed session")
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
				"error":     "feed fetch failed",
				"retryable": true,
			})
		}

		registry.Add(session)
		sessionsOpened.Inc()
		batchesServed.Inc()

		return c.JSON(sessionResponse{
			SessionId: session.Id,
			Items:     batch.Items,
			Cursor:    batch.Cursor,
			Total:     session.Len(),
			Exhausted: batch.Exhausted,
			Votes:     session.VoteStates(feed.ItemIds(batch.Items)),
		})
	})

	// Release the next batch for a session. Redundant calls while a
	// load is in flight coalesce into 204 No Content.
	app.Get("/feed/session/:id/more", func(c *fiber.Ctx) error {
		session, ok := registry.Get(c.Params("id"))
		if !ok {
			return c.Status(fiber.StatusNotFound).SendString("Unknown session")
		}

		batch, err := session.More(c.Context())
		if errors.Is(err, feed.ErrLoadInFlight) {
			return c.SendStatus(fiber.StatusNoContent)
		}
		if errors.Is(err, feed.ErrSessionClosed) {
			return c.Status(fiber.StatusGone).SendString("Session closed")
		}
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).SendString("Error loading batch")
		}

		batchesServed.Inc()

		return c.JSON(batchResponse{
			Items:     batch.Items,
			Cursor:    batch.Cursor,
			Exhausted: batch.Exhausted,
			Votes:     session.VoteStates(feed.ItemIds(batch.Items)),
		})
	})

	// Toggle the viewer's vote for an item
	app.Post("/feed/session/:id/items/:itemId/like", func(c *fiber.Ctx) error {
		session, ok := registry.Get(c.Params("id"))
		if !ok {
			return c.Status(fiber.StatusNotFound).SendString("Unknown session")
		}

		itemId := c.Params("itemId")
		result, err := session.Toggle(c.Context(), itemId)
		if errors.Is(err, feed.ErrSessionClosed) {
			return c.Status(fiber.StatusGone).SendString("Session closed")
		}
		if err != nil {
			// Optimistic state is left as applied; the client shows a
			// dismissible error
			voteToggles.WithLabelValues("error").Inc()
			log.WithFields(log.Fields{
				"session": session.Id,
				"item":    itemId,
				"error":   err,
			}).Error("Error toggling vote")
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
				"error": "vote not saved",
				"state": result.State,
			})
		}

		if !result.Applied {
			voteToggles.WithLabelValues("ignored").Inc()
		} else if result.State.Voted {
			voteToggles.WithLabelValues("added").Inc()
		} else {
			voteToggles.WithLabelValues("removed").Inc()
		}

		if result.Applied {
			bc.BroadcastLike(models.LikeEvent{
				ItemId: itemId,
				Count:  result.State.Count,
				Voted:  result.State.Voted,
			})
		}

		return c.JSON(toggleResponse{
			Applied: result.Applied,
			State:   result.State,
		})
	})

	// Close a session and discard any in-flight results
	app.Delete("/feed/session/:id", func(c *fiber.Ctx) error {
		registry.Remove(c.Params("id"))
		return c.SendStatus(fiber.StatusOK)
	})

	app.Get("/dashboard/feed/sse", func(c *fiber.Ctx) error {
		c.Set("Content-Type", "text/event-stream")
		c.Set("Cache-Control", "no-cache")
		c.Set("Connection", "keep-alive")
		c.Set("Transfer-Encoding", "chunked")

		// Unique client key
		key := uuid.New().String()
		sseAchievementChannel := make(chan models.AchievementEvent, 10) // Buffered channel
		sseLikeChannel := make(chan models.LikeEvent, 10)
		aliveChan := time.NewTicker(5 * time.Second)

		defer aliveChan.Stop()

		// Register the client
		bc.AddClient(key, sseAchievementChannel, sseLikeChannel)

		// Cleanup function
		cleanup := func() {
			log.Infof("Cleaning up SSE stream for client: %s", key)
			bc.RemoveClient(key)
		}

		// Use StreamWriter to manage SSE streaming
		c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
			defer cleanup()

			// Send initial event with client key
			fmt.Fprintf(w, "event: init\ndata: %s\n\n", key)
			if err := w.Flush(); err != nil {
				log.Errorf("Failed to send init event: %v", err)
				return
			}

			// Start streaming loop
			for {
				select {
				case <-aliveChan.C:
					// Send keep-alive pings
					if _, err := fmt.Fprintf(w, "event: ping\ndata: \n\n"); err != nil {
						log.Warnf("Failed to send ping to client %s: %v", key, err)
						return
					}
					if err := w.Flush(); err != nil {
						log.Warnf("Failed to flush ping for client %s: %v", key, err)
						return
					}

				case event, ok := <-sseAchievementChannel:
					if !ok {
						log.Warnf("AchievementChannel closed for client %s", key)
						return
					}
					jsonEvent, err := json.Marshal(event)
					if err != nil {
						log.Errorf("Error marshalling achievement for client %s: %v", key, err)
						continue
					}
					if _, err := fmt.Fprintf(w, "event: achievement\ndata: %s\n\n", jsonEvent); err != nil {
						log.Warnf("Failed to send achievement event to client %s: %v", key, err)
						return
					}
					if err := w.Flush(); err != nil {
						log.Warnf("Failed to flush achievement event for client %s: %v", key, err)
						return
					}

				case event, ok := <-sseLikeChannel:
					if !ok {
						log.Warnf("LikeChannel closed for client %s", key)
						return
					}
					jsonEvent, err := json.Marshal(event)
					if err != nil {
						log.Errorf("Error marshalling like event for client %s: %v", key, err)
						continue
					}
					if _, err := fmt.Fprintf(w, "event: like\ndata: %s\n\n", jsonEvent); err != nil {
						log.Warnf("Failed to send like event to client %s: %v", key, err)
						return
					}
					if err := w.Flush(); err != nil {
						log.Warnf("Failed to flush like event for client %s: %v", key, err)
						return
					}
				}
			}
		}))

		return nil
	})

	app.Delete("/dashboard/feed/sse", func(c *fiber.Ctx) error {
		key := c.Query("key", "")
		bc.RemoveClient(key)
		return c.Status(fiber.StatusOK).SendString("OK")
	})

	return app
}

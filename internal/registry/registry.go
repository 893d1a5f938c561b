// Package registry tracks connected clients, their session tokens and the
// queues the broadcast loop publishes into.
package registry

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/amoylab/castwall/internal/common/config"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Identity is the outcome of resolving a request's session token
type Identity struct {
	ClientID   int64
	SessionID  string
	NewSession bool // a token was minted and must be handed back to the caller
	NewClient  bool
}

// ClientInfo is a diagnostic snapshot of one client
type ClientInfo struct {
	ID         int64
	LastActive time.Time
	Age        time.Duration
	Active     bool
	Sessions   []string
}

type client struct {
	id           int64
	createdAt    time.Time
	lastActivity time.Time
	queues       *QueueSet
}

// Registry owns the activity table, the session map and the per-client
// queue sets. All three are guarded by one mutex and never handed out.
type Registry struct {
	logger *zap.Logger

	timeout       time.Duration
	queueCapacity int
	maxWindows    int

	mu       sync.Mutex
	clients  map[int64]*client
	sessions map[string]int64
	nextID   int64

	now          func() time.Time
	newSessionID func() string
	observer     Observer
}

// Option customises a Registry
type Option func(*Registry)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithSessionIDGenerator replaces the random session token source
func WithSessionIDGenerator(gen func() string) Option {
	return func(r *Registry) { r.newSessionID = gen }
}

// WithObserver registers the lifecycle event observer
func WithObserver(o Observer) Option {
	return func(r *Registry) { r.observer = o }
}

// New creates an empty registry
func New(logger *zap.Logger, cfg config.RegistryConfig, opts ...Option) *Registry {
	r := &Registry{
		logger:        logger.Named("registry"),
		timeout:       cfg.ClientTimeout,
		queueCapacity: cfg.QueueCapacity,
		maxWindows:    cfg.MaxWindows,
		clients:       make(map[int64]*client),
		sessions:      make(map[string]int64),
		nextID:        cfg.FirstClientID,
		now:           time.Now,
		newSessionID:  randomSessionID,
	}
	if r.timeout <= 0 {
		r.timeout = 10 * time.Second
	}
	if r.queueCapacity <= 0 {
		r.queueCapacity = 10
	}
	if r.maxWindows <= 0 {
		r.maxWindows = 10
	}
	if r.nextID <= 0 {
		r.nextID = 1000
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// randomSessionID returns 32 hex characters from a v4 uuid
func randomSessionID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Timeout returns the inactivity timeout
func (r *Registry) Timeout() time.Duration { return r.timeout }

// MaxWindows returns the number of window slots per client
func (r *Registry) MaxWindows() int { return r.maxWindows }

// Now returns the registry clock
func (r *Registry) Now() time.Time { return r.now() }

// Resolve maps a session token to a client. An empty or unknown token, or
// one that points at a client that no longer exists, gets a fresh token
// and a fresh client. The client's activity is refreshed in every case.
func (r *Registry) Resolve(sessionID string) Identity {
	now := r.now()

	r.mu.Lock()
	if sessionID != "" {
		if id, ok := r.sessions[sessionID]; ok {
			if c, ok := r.clients[id]; ok {
				c.lastActivity = now
				r.mu.Unlock()
				return Identity{ClientID: id, SessionID: sessionID}
			}
			delete(r.sessions, sessionID)
		}
	}

	ident := Identity{NewClient: true, NewSession: true}
	sessionID = r.newSessionID()
	c := r.addLocked(now)
	r.sessions[sessionID] = c.id
	r.mu.Unlock()

	ident.ClientID = c.id
	ident.SessionID = sessionID
	r.logger.Debug("registered client",
		zap.Int64("client_id", c.id),
		zap.Bool("new_session", ident.NewSession))
	r.emit(Event{Type: EventClientCreated, ClientID: c.id, SessionID: sessionID, At: now})
	return ident
}

// addLocked allocates the next free id. Ids only grow, so an id is never
// handed to a second client while the process runs.
func (r *Registry) addLocked(now time.Time) *client {
	for {
		if _, used := r.clients[r.nextID]; !used {
			break
		}
		r.nextID++
	}
	id := r.nextID
	r.nextID++
	c := &client{
		id:           id,
		createdAt:    now,
		lastActivity: now,
		queues:       newQueueSet(id, r.queueCapacity, r.maxWindows),
	}
	r.clients[id] = c
	return c
}

// Touch refreshes a client's activity. It reports false if the client is gone.
func (r *Registry) Touch(clientID int64) bool {
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[clientID]
	if ok {
		c.lastActivity = now
	}
	return ok
}

// ActiveCount returns the number of clients seen within the timeout
func (r *Registry) ActiveCount(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.clients {
		if r.isActive(c, now) {
			n++
		}
	}
	return n
}

// ClientCount returns the number of registered clients, active or not
func (r *Registry) ClientCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

// SessionCount returns the number of known session tokens
func (r *Registry) SessionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *Registry) isActive(c *client, now time.Time) bool {
	return now.Sub(c.lastActivity) <= r.timeout
}

// ActiveQueueSets returns the queue sets of clients seen within the timeout.
// The slice is a snapshot; publishing into it does not hold the registry lock.
func (r *Registry) ActiveQueueSets(now time.Time) []*QueueSet {
	r.mu.Lock()
	defer r.mu.Unlock()
	sets := make([]*QueueSet, 0, len(r.clients))
	for _, c := range r.clients {
		if r.isActive(c, now) {
			sets = append(sets, c.queues)
		}
	}
	return sets
}

// Queues returns the queue set of one client
func (r *Registry) Queues(clientID int64) (*QueueSet, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[clientID]
	if !ok {
		return nil, false
	}
	return c.queues, true
}

// Reap removes every client idle for longer than the timeout, releasing
// its queues and every session token pointing at it. It returns the
// removed ids in ascending order.
func (r *Registry) Reap(now time.Time) []int64 {
	r.mu.Lock()
	var (
		reaped []int64
		events []Event
	)
	for id, c := range r.clients {
		idle := now.Sub(c.lastActivity)
		if idle <= r.timeout {
			continue
		}
		discarded := c.queues.close()
		delete(r.clients, id)
		reaped = append(reaped, id)
		events = append(events, Event{
			Type:      EventClientReaped,
			ClientID:  id,
			At:        now,
			IdleFor:   idle,
			Discarded: discarded,
		})
	}
	if len(reaped) > 0 {
		for sid, id := range r.sessions {
			if _, alive := r.clients[id]; !alive {
				delete(r.sessions, sid)
			}
		}
	}
	r.mu.Unlock()

	sort.Slice(reaped, func(i, j int) bool { return reaped[i] < reaped[j] })
	sort.Slice(events, func(i, j int) bool { return events[i].ClientID < events[j].ClientID })
	for _, ev := range events {
		r.logger.Info("reaped inactive client",
			zap.Int64("client_id", ev.ClientID),
			zap.Duration("idle", ev.IdleFor),
			zap.Int("discarded_frames", ev.Discarded))
		r.emit(ev)
	}
	return reaped
}

// Dump returns a diagnostic snapshot ordered by client id
func (r *Registry) Dump(now time.Time) []ClientInfo {
	r.mu.Lock()
	byClient := make(map[int64][]string, len(r.clients))
	for sid, id := range r.sessions {
		byClient[id] = append(byClient[id], sid)
	}
	out := make([]ClientInfo, 0, len(r.clients))
	for id, c := range r.clients {
		sessions := byClient[id]
		sort.Strings(sessions)
		out = append(out, ClientInfo{
			ID:         id,
			LastActive: c.lastActivity,
			Age:        now.Sub(c.lastActivity),
			Active:     r.isActive(c, now),
			Sessions:   sessions,
		})
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Close releases every client's queues, waking all blocked consumers
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, c := range r.clients {
		c.queues.close()
		delete(r.clients, id)
	}
	clear(r.sessions)
}

func (r *Registry) emit(ev Event) {
	if r.observer != nil {
		r.observer(ev)
	}
}

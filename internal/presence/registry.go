// Package presence tracks live connections per user and fans events out to them.
package presence

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"messaging-service/internal/models"
)

// Sender accepts an event for one live connection without blocking.
// It reports false when the event could not be queued.
type Sender interface {
	Send(event models.Event) bool
}

// Connection is one authenticated live socket.
type Connection struct {
	ID          string
	UserID      string
	Email       string
	UserType    string
	ConnectedAt time.Time
	Sender      Sender
}

// Registry maps connections to users and back.
type Registry struct {
	mu     sync.RWMutex
	conns  map[string]Connection
	byUser map[string]map[string]struct{}
	log    *zap.Logger

	// broadcastMu orders online_users snapshots so the last one queued on
	// every connection reflects the latest registry state.
	broadcastMu sync.Mutex
}

// NewRegistry creates an empty registry.
func NewRegistry(log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		conns:  make(map[string]Connection),
		byUser: make(map[string]map[string]struct{}),
		log:    log,
	}
}

// Register adds the connection and broadcasts the online list.
func (r *Registry) Register(conn Connection) {
	r.mu.Lock()
	if old, ok := r.conns[conn.ID]; ok && old.UserID != conn.UserID {
		r.removeLocked(conn.ID)
	}
	r.conns[conn.ID] = conn
	if _, ok := r.byUser[conn.UserID]; !ok {
		r.byUser[conn.UserID] = make(map[string]struct{})
	}
	r.byUser[conn.UserID][conn.ID] = struct{}{}
	r.mu.Unlock()

	r.broadcastOnline()
}

// Unregister removes the connection if present and broadcasts the online list.
func (r *Registry) Unregister(connectionID string) {
	r.mu.Lock()
	_, ok := r.conns[connectionID]
	if ok {
		r.removeLocked(connectionID)
	}
	r.mu.Unlock()

	if ok {
		r.broadcastOnline()
	}
}

func (r *Registry) removeLocked(connectionID string) {
	conn := r.conns[connectionID]
	delete(r.conns, connectionID)
	if ids, ok := r.byUser[conn.UserID]; ok {
		delete(ids, connectionID)
		if len(ids) == 0 {
			delete(r.byUser, conn.UserID)
		}
	}
}

// ListOnline returns every live connection ordered by user then connection id.
func (r *Registry) ListOnline() []models.OnlineUser {
	r.mu.RLock()
	out := make([]models.OnlineUser, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, models.OnlineUser{
			UserID:       c.UserID,
			Email:        c.Email,
			UserType:     c.UserType,
			ConnectionID: c.ID,
			ConnectedAt:  c.ConnectedAt,
		})
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].UserID != out[j].UserID {
			return out[i].UserID < out[j].UserID
		}
		return out[i].ConnectionID < out[j].ConnectionID
	})
	return out
}

// OnlineUserIDs returns the distinct online users, sorted.
func (r *Registry) OnlineUserIDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.byUser))
	for id := range r.byUser {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// IsOnline reports whether the user holds at least one connection.
func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID]) > 0
}

// Count returns the number of live connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Deliver sends the event to every connection of userID and returns how many
// accepted it. Zero connections is a silent no-op.
func (r *Registry) Deliver(userID, event string, payload any) int {
	r.mu.RLock()
	senders := make([]Sender, 0, len(r.byUser[userID]))
	for id := range r.byUser[userID] {
		senders = append(senders, r.conns[id].Sender)
	}
	r.mu.RUnlock()

	return r.send(senders, models.Event{Event: event, Data: payload})
}

// Broadcast sends the event to every live connection.
func (r *Registry) Broadcast(event string, payload any) int {
	r.mu.RLock()
	senders := make([]Sender, 0, len(r.conns))
	for _, c := range r.conns {
		senders = append(senders, c.Sender)
	}
	r.mu.RUnlock()

	return r.send(senders, models.Event{Event: event, Data: payload})
}

func (r *Registry) send(senders []Sender, ev models.Event) int {
	delivered := 0
	for _, s := range senders {
		if s == nil {
			continue
		}
		if s.Send(ev) {
			delivered++
		} else {
			r.log.Warn("presence delivery dropped", zap.String("event", ev.Event))
		}
	}
	return delivered
}

func (r *Registry) broadcastOnline() {
	r.broadcastMu.Lock()
	defer r.broadcastMu.Unlock()
	r.Broadcast(models.EventOnlineUsers, r.ListOnline())
}

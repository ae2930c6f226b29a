package ws

import (
	"sync"

	"go.uber.org/zap"

	"messaging-service/internal/models"
	"messaging-service/internal/observability"
)

// Conn is a live connection as the hub sees it.
type Conn interface {
	ID() string
	UserID() int64
	// Send queues an event and reports whether it was accepted.
	Send(event models.ChatEvent) bool
	Close()
}

// Hub tracks which user is online on which connection and which connections
// are joined to which chat rooms.
type Hub struct {
	mu       sync.RWMutex
	presence map[int64]Conn
	conns    map[string]Conn
	rooms    map[int64]map[string]Conn
	joined   map[string]map[int64]struct{}
	logger   *zap.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		presence: make(map[int64]Conn),
		conns:    make(map[string]Conn),
		rooms:    make(map[int64]map[string]Conn),
		joined:   make(map[string]map[int64]struct{}),
		logger:   logger,
	}
}

// Register records conn as the live connection of its user. An earlier
// connection of the same user is dropped from every room and closed.
func (h *Hub) Register(conn Conn) {
	h.mu.Lock()
	prev := h.registerLocked(conn)
	h.mu.Unlock()
	if prev != nil {
		prev.Close()
	}
}

// registerLocked returns the connection conn superseded, if any.
func (h *Hub) registerLocked(conn Conn) Conn {
	prev, ok := h.presence[conn.UserID()]
	if ok && prev.ID() != conn.ID() {
		h.logger.Debug("presence superseded",
			zap.Int64("user_id", conn.UserID()),
			zap.String("previous_conn_id", prev.ID()),
			zap.String("conn_id", conn.ID()))
		h.removeLocked(prev)
	} else {
		prev = nil
	}
	h.presence[conn.UserID()] = conn
	h.conns[conn.ID()] = conn
	if _, ok := h.joined[conn.ID()]; !ok {
		h.joined[conn.ID()] = make(map[int64]struct{})
	}
	return prev
}

// removeLocked drops conn from every room and the connection registry.
func (h *Hub) removeLocked(conn Conn) {
	for chatID := range h.joined[conn.ID()] {
		if members, ok := h.rooms[chatID]; ok {
			delete(members, conn.ID())
			if len(members) == 0 {
				delete(h.rooms, chatID)
			}
		}
	}
	delete(h.joined, conn.ID())
	delete(h.conns, conn.ID())
}

// Login registers conn and joins it to chatIDs in one step, so no broadcast
// observes the user online but outside its rooms.
func (h *Hub) Login(conn Conn, chatIDs []int64) {
	h.mu.Lock()
	prev := h.registerLocked(conn)
	for _, chatID := range chatIDs {
		h.joinLocked(chatID, conn)
	}
	h.mu.Unlock()
	if prev != nil {
		prev.Close()
	}
}

// Unregister removes conn from presence (unless it was already superseded)
// and from every room it joined.
func (h *Hub) Unregister(conn Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if current, ok := h.presence[conn.UserID()]; ok && current.ID() == conn.ID() {
		delete(h.presence, conn.UserID())
	}
	h.removeLocked(conn)
}

// Join subscribes conn to a chat room. Joining twice is a no-op.
func (h *Hub) Join(chatID int64, conn Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.joinLocked(chatID, conn)
}

// JoinUser subscribes the user's live connection, if any, to a chat room.
func (h *Hub) JoinUser(chatID int64, userID int64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	conn, ok := h.presence[userID]
	if !ok {
		return false
	}
	h.joinLocked(chatID, conn)
	return true
}

func (h *Hub) joinLocked(chatID int64, conn Conn) {
	if _, ok := h.rooms[chatID]; !ok {
		h.rooms[chatID] = make(map[string]Conn)
	}
	h.rooms[chatID][conn.ID()] = conn
	if _, ok := h.joined[conn.ID()]; !ok {
		h.joined[conn.ID()] = make(map[int64]struct{})
	}
	h.joined[conn.ID()][chatID] = struct{}{}
}

// Connection returns the user's live connection.
func (h *Hub) Connection(userID int64) (Conn, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	conn, ok := h.presence[userID]
	return conn, ok
}

// Online reports whether the user has a live connection.
func (h *Hub) Online(userID int64) bool {
	_, ok := h.Connection(userID)
	return ok
}

// Broadcast sends event to every connection joined to the chat room and
// returns the number of connections that accepted it.
func (h *Hub) Broadcast(chatID int64, event models.ChatEvent) int {
	h.mu.RLock()
	members := make([]Conn, 0, len(h.rooms[chatID]))
	for _, conn := range h.rooms[chatID] {
		members = append(members, conn)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, conn := range members {
		ok := conn.Send(event)
		observability.ObserveDelivery(event.Type, ok)
		if ok {
			delivered++
			continue
		}
		h.logger.Debug("room delivery dropped",
			zap.Int64("chat_id", chatID),
			zap.String("conn_id", conn.ID()),
			zap.String("event", event.Type))
	}
	return delivered
}

// SendTo delivers event to the user's live connection only.
func (h *Hub) SendTo(userID int64, event models.ChatEvent) bool {
	conn, ok := h.Connection(userID)
	if !ok {
		return false
	}
	delivered := conn.Send(event)
	observability.ObserveDelivery(event.Type, delivered)
	return delivered
}

// Members lists the ids of connections joined to a chat room.
func (h *Hub) Members(chatID int64) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]string, 0, len(h.rooms[chatID]))
	for id := range h.rooms[chatID] {
		ids = append(ids, id)
	}
	return ids
}

// Stop closes every registered connection.
func (h *Hub) Stop() {
	h.mu.RLock()
	conns := make([]Conn, 0, len(h.conns))
	for _, conn := range h.conns {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	for _, conn := range conns {
		conn.Close()
	}
}

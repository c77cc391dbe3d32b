// Package wsocket is the realtime presence manager: a registry of
// authenticated WebSocket connections grouped by session, and named
// broadcast rooms with bounded fan-out. The hub lock covers registry
// bookkeeping only; message delivery happens on per-subscription
// goroutines so a slow socket never blocks a publisher.
package wsocket

import (
	"sync"

	"github.com/jtoivan/authd/internal/cryptox"
	"github.com/jtoivan/authd/internal/logging"
	"github.com/jtoivan/authd/internal/server/cache"
	"github.com/jtoivan/authd/internal/server/config"
)

// sink is the outbound half of a WebSocket connection. *websocket.Conn
// satisfies it; tests substitute a recorder.
type sink interface {
	WriteMessage(messageType int, data []byte) error
}

// subscription is one connection's membership in one room. The forwarding
// goroutine drains ch until it is closed, then closes done.
type subscription struct {
	ch   chan []byte
	done chan struct{}
}

// Connection is a single authenticated socket. Writes to the sink are
// serialized through writeMu because room tasks and the read loop share it.
type Connection struct {
	id     string
	userID string

	writeMu sync.Mutex
	sink    sink

	subs map[string]*subscription
}

func (c *Connection) write(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.sink.WriteMessage(messageType, data)
}

type room struct {
	subscribers map[*Connection]*subscription
}

// Hub holds the shared presence state.
type Hub struct {
	cfg    config.WebSocketConfig
	keySep string
	store  cache.Cache
	log    logging.Logger

	mu       sync.Mutex
	sessions map[string]map[string]*Connection
	rooms    map[string]*room
}

func NewHub(cfg config.WebSocketConfig, keySep string, store cache.Cache, log logging.Logger) *Hub {
	return &Hub{
		cfg:      cfg,
		keySep:   keySep,
		store:    store,
		log:      log,
		sessions: make(map[string]map[string]*Connection),
		rooms:    make(map[string]*room),
	}
}

// register creates a Connection for an authenticated socket and files it
// under its session key.
func (h *Hub) register(sessionKey, userID string, s sink) (*Connection, error) {
	id, err := cryptox.GenerateToken(h.cfg.ConnectionIDLength)
	if err != nil {
		return nil, err
	}
	conn := &Connection{
		id:     id,
		userID: userID,
		sink:   s,
		subs:   make(map[string]*subscription),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.sessions[sessionKey]
	if !ok {
		set = make(map[string]*Connection)
		h.sessions[sessionKey] = set
	}
	set[id] = conn
	return conn, nil
}

// enterRoom subscribes the connection to a named room, creating the room on
// first entry, and starts the forwarding task. Entering a room twice is a
// no-op.
func (h *Hub) enterRoom(conn *Connection, name string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := conn.subs[name]; ok {
		return
	}
	rm, ok := h.rooms[name]
	if !ok {
		rm = &room{subscribers: make(map[*Connection]*subscription)}
		h.rooms[name] = rm
	}
	sub := &subscription{
		ch:   make(chan []byte, h.cfg.ChannelCapacity),
		done: make(chan struct{}),
	}
	rm.subscribers[conn] = sub
	conn.subs[name] = sub

	go h.forward(conn, sub)
}

// forward drains one subscription into the connection's sink. A write
// failure ends the task; the read loop observes the dead socket and runs
// the full teardown.
func (h *Hub) forward(conn *Connection, sub *subscription) {
	defer close(sub.done)
	for msg := range sub.ch {
		if err := conn.write(textMessage, msg); err != nil {
			return
		}
	}
}

// leaveRoom unsubscribes the connection, awaits its forwarding task and
// drops the room once its last subscriber is gone.
func (h *Hub) leaveRoom(conn *Connection, name string) {
	h.mu.Lock()
	sub, ok := conn.subs[name]
	if !ok {
		h.mu.Unlock()
		return
	}
	delete(conn.subs, name)
	if rm, ok := h.rooms[name]; ok {
		delete(rm.subscribers, conn)
		if len(rm.subscribers) == 0 {
			delete(h.rooms, name)
		}
	}
	close(sub.ch)
	h.mu.Unlock()

	<-sub.done
}

// disconnect tears a connection down: every room task is stopped and
// awaited before the registry entries go away, so no task outlives its
// connection.
func (h *Hub) disconnect(sessionKey string, conn *Connection) {
	h.mu.Lock()
	names := make([]string, 0, len(conn.subs))
	for name := range conn.subs {
		names = append(names, name)
	}
	h.mu.Unlock()

	for _, name := range names {
		h.leaveRoom(conn, name)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.sessions[sessionKey]; ok {
		delete(set, conn.id)
		if len(set) == 0 {
			delete(h.sessions, sessionKey)
		}
	}
}

// Broadcast delivers a message to every subscriber of a room. Subscribers
// whose buffers are full miss the message; the publisher never blocks.
func (h *Hub) Broadcast(roomName string, message []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	rm, ok := h.rooms[roomName]
	if !ok {
		return
	}
	for _, sub := range rm.subscribers {
		select {
		case sub.ch <- message:
		default:
		}
	}
}

// Snapshot is a point-in-time view of the registries for introspection.
type Snapshot struct {
	// Sessions maps session key to connection id to user id.
	Sessions map[string]map[string]string `json:"sessions"`
	// Rooms maps room name to subscriber count.
	Rooms map[string]int `json:"rooms"`
}

func (h *Hub) Snapshot() Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()

	snap := Snapshot{
		Sessions: make(map[string]map[string]string, len(h.sessions)),
		Rooms:    make(map[string]int, len(h.rooms)),
	}
	for key, set := range h.sessions {
		conns := make(map[string]string, len(set))
		for id, conn := range set {
			conns[id] = conn.userID
		}
		snap.Sessions[key] = conns
	}
	for name, rm := range h.rooms {
		snap.Rooms[name] = len(rm.subscribers)
	}
	return snap
}

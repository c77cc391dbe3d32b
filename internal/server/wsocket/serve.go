package wsocket

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/jtoivan/authd/internal/server/cache"
)

const textMessage = websocket.TextMessage

// socket is the bidirectional surface Serve needs from a WebSocket
// connection.
type socket interface {
	sink
	ReadMessage() (int, []byte, error)
	Close() error
}

type inboundEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type authenticateData struct {
	Token string `json:"token"`
}

// alert mirrors the HTTP error shape on the socket, wrapped in an "error"
// envelope instead of the HTTP "errors" list.
type alert struct {
	Source  string `json:"source"`
	ID      string `json:"id"`
	Details string `json:"details,omitempty"`
}

type errorEnvelope struct {
	Error alert `json:"error"`
}

type ackEnvelope struct {
	Event string `json:"event"`
}

// Serve runs one socket for its whole life: the authenticate handshake,
// the post-auth event loop, and teardown. Protocol violations are answered
// with an error event; only a dead socket ends the loop.
func (h *Hub) Serve(ctx context.Context, ws socket) {
	defer ws.Close()

	var (
		conn       *Connection
		sessionKey string
	)
	defer func() {
		if conn != nil {
			h.disconnect(sessionKey, conn)
		}
	}()

	// Errors before authentication go out through an unregistered
	// connection wrapping the same sink.
	unauth := &Connection{sink: ws}

	for {
		messageType, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		active := unauth
		if conn != nil {
			active = conn
		}

		if messageType != textMessage {
			h.sendError(active, alert{Source: "websocket", ID: "invalid-message-type"})
			continue
		}

		event, err := parseEvent(data)
		if err != nil {
			h.sendError(active, alert{Source: "general", ID: "invalid-data", Details: err.Error()})
			continue
		}

		// "authenticate" is the only event in the protocol so far.
		if conn != nil {
			h.sendError(conn, alert{Source: "auth", ID: "already-logged-in"})
			continue
		}
		conn, sessionKey = h.authenticate(ctx, ws, unauth, event.Token)
	}
}

// parseEvent decodes an inbound envelope strictly: unknown fields, unknown
// event names and malformed data payloads are all client errors.
func parseEvent(data []byte) (*authenticateData, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var event inboundEvent
	if err := dec.Decode(&event); err != nil {
		return nil, err
	}
	if event.Event != "authenticate" {
		return nil, errors.New("unknown event " + event.Event)
	}

	dec = json.NewDecoder(bytes.NewReader(event.Data))
	dec.DisallowUnknownFields()
	var payload authenticateData
	if err := dec.Decode(&payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// authenticate exchanges a one-time token for the connection's identity.
// The token is deleted from the cache on first sight so it can never be
// replayed. Returns a nil connection when the handshake failed; the socket
// stays open either way.
func (h *Hub) authenticate(ctx context.Context, ws socket, reply *Connection, token string) (*Connection, string) {
	key := strings.Join([]string{"websocket-token", "account", token}, h.keySep)
	value, err := h.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			h.sendError(reply, alert{Source: "auth", ID: "invalid-credentials"})
			return nil, ""
		}
		h.log.Error(ctx, "websocket token lookup failed", "error", err)
		h.sendError(reply, alert{Source: "general", ID: "internal-server-error"})
		return nil, ""
	}
	if err := h.store.Del(ctx, key); err != nil {
		h.log.Error(ctx, "could not delete websocket token from cache", "error", err)
	}

	userID, sessionKey, ok := strings.Cut(value, h.keySep)
	if !ok {
		h.log.Error(ctx, "malformed websocket token value in cache")
		h.sendError(reply, alert{Source: "general", ID: "internal-server-error"})
		return nil, ""
	}

	conn, err := h.register(sessionKey, userID, ws)
	if err != nil {
		h.log.Error(ctx, "registering websocket connection failed", "error", err)
		h.sendError(reply, alert{Source: "general", ID: "internal-server-error"})
		return nil, ""
	}
	h.enterRoom(conn, "user:"+userID)

	ack, _ := json.Marshal(ackEnvelope{Event: "authenticated"})
	if err := conn.write(textMessage, ack); err != nil {
		h.disconnect(sessionKey, conn)
		return nil, ""
	}
	return conn, sessionKey
}

func (h *Hub) sendError(conn *Connection, a alert) {
	body, _ := json.Marshal(errorEnvelope{Error: a})
	_ = conn.write(textMessage, body)
}

package wsocket

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jtoivan/authd/internal/logging"
	"github.com/jtoivan/authd/internal/server/cache"
	"github.com/jtoivan/authd/internal/server/config"
)

type fakeStore struct {
	mu     sync.Mutex
	values map[string]string
}

func (s *fakeStore) SetEx(_ context.Context, key, value string, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

func (s *fakeStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.values[key]
	if !ok {
		return "", cache.ErrCacheMiss
	}
	return value, nil
}

func (s *fakeStore) Del(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}

type frame struct {
	messageType int
	data        []byte
}

// scriptedSocket replays a fixed sequence of inbound frames and records
// everything written back.
type scriptedSocket struct {
	frames []frame
	next   int

	mu      sync.Mutex
	written [][]byte
}

func (s *scriptedSocket) ReadMessage() (int, []byte, error) {
	if s.next >= len(s.frames) {
		return 0, nil, errors.New("connection closed")
	}
	f := s.frames[s.next]
	s.next++
	return f.messageType, f.data, nil
}

func (s *scriptedSocket) WriteMessage(_ int, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.written = append(s.written, data)
	return nil
}

func (s *scriptedSocket) Close() error { return nil }

func (s *scriptedSocket) messages(t *testing.T) []map[string]any {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]map[string]any, 0, len(s.written))
	for _, data := range s.written {
		var m map[string]any
		require.NoError(t, json.Unmarshal(data, &m))
		out = append(out, m)
	}
	return out
}

func errorID(t *testing.T, m map[string]any) (string, string) {
	t.Helper()
	e, ok := m["error"].(map[string]any)
	require.True(t, ok, "expected error envelope, got %v", m)
	return e["source"].(string), e["id"].(string)
}

func newTestHub(store *fakeStore, capacity int) *Hub {
	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(io.Discard, nil)))
	cfg := config.WebSocketConfig{ChannelCapacity: capacity, ConnectionIDLength: 11}
	return NewHub(cfg, ":", store, logger)
}

func TestServe_HandshakeLifecycle(t *testing.T) {
	store := &fakeStore{values: map[string]string{
		"websocket-token:account:tok": "u-1:sesskey",
	}}
	hub := newTestHub(store, 16)

	sock := &scriptedSocket{frames: []frame{
		{messageType: 2, data: []byte{0x01}},
		{messageType: textMessage, data: []byte("not json")},
		{messageType: textMessage, data: []byte(`{"event":"authenticate","data":{"token":"tok"}}`)},
		{messageType: textMessage, data: []byte(`{"event":"authenticate","data":{"token":"tok"}}`)},
	}}

	hub.Serve(context.Background(), sock)

	msgs := sock.messages(t)
	require.Len(t, msgs, 4)

	source, id := errorID(t, msgs[0])
	assert.Equal(t, "websocket", source)
	assert.Equal(t, "invalid-message-type", id)

	source, id = errorID(t, msgs[1])
	assert.Equal(t, "general", source)
	assert.Equal(t, "invalid-data", id)

	assert.Equal(t, "authenticated", msgs[2]["event"])

	source, id = errorID(t, msgs[3])
	assert.Equal(t, "auth", source)
	assert.Equal(t, "already-logged-in", id)

	// Single use: the token is gone from the cache.
	_, err := store.Get(context.Background(), "websocket-token:account:tok")
	assert.ErrorIs(t, err, cache.ErrCacheMiss)

	// Teardown removed all bookkeeping.
	snap := hub.Snapshot()
	assert.Empty(t, snap.Sessions)
	assert.Empty(t, snap.Rooms)
}

func TestServe_InvalidToken(t *testing.T) {
	store := &fakeStore{values: map[string]string{}}
	hub := newTestHub(store, 16)

	sock := &scriptedSocket{frames: []frame{
		{messageType: textMessage, data: []byte(`{"event":"authenticate","data":{"token":"bogus"}}`)},
	}}

	hub.Serve(context.Background(), sock)

	msgs := sock.messages(t)
	require.Len(t, msgs, 1)
	source, id := errorID(t, msgs[0])
	assert.Equal(t, "auth", source)
	assert.Equal(t, "invalid-credentials", id)

	snap := hub.Snapshot()
	assert.Empty(t, snap.Sessions)
}

type chanSink struct {
	ch chan []byte
}

func (s *chanSink) WriteMessage(_ int, data []byte) error {
	s.ch <- data
	return nil
}

func receive(t *testing.T, ch chan []byte) []byte {
	t.Helper()
	select {
	case data := <-ch:
		return data
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

func TestBroadcast_FanOut(t *testing.T) {
	hub := newTestHub(&fakeStore{values: map[string]string{}}, 16)

	sinkA := &chanSink{ch: make(chan []byte, 1)}
	sinkB := &chanSink{ch: make(chan []byte, 1)}

	connA, err := hub.register("s-1", "u-1", sinkA)
	require.NoError(t, err)
	connB, err := hub.register("s-2", "u-1", sinkB)
	require.NoError(t, err)
	hub.enterRoom(connA, "user:u-1")
	hub.enterRoom(connB, "user:u-1")

	hub.Broadcast("user:u-1", []byte("hello"))

	assert.Equal(t, []byte("hello"), receive(t, sinkA.ch))
	assert.Equal(t, []byte("hello"), receive(t, sinkB.ch))

	hub.disconnect("s-1", connA)

	snap := hub.Snapshot()
	assert.NotContains(t, snap.Sessions, "s-1")
	assert.Equal(t, 1, snap.Rooms["user:u-1"])

	hub.disconnect("s-2", connB)

	snap = hub.Snapshot()
	assert.Empty(t, snap.Sessions)
	assert.Empty(t, snap.Rooms)
}

type blockingSink struct {
	release chan struct{}

	mu    sync.Mutex
	count int
}

func (s *blockingSink) WriteMessage(int, []byte) error {
	<-s.release
	s.mu.Lock()
	s.count++
	s.mu.Unlock()
	return nil
}

func (s *blockingSink) writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// A subscriber whose sink never drains must miss messages instead of
// stalling the publisher.
func TestBroadcast_SlowSubscriberMissesMessages(t *testing.T) {
	hub := newTestHub(&fakeStore{values: map[string]string{}}, 1)

	sink := &blockingSink{release: make(chan struct{})}
	conn, err := hub.register("s-1", "u-1", sink)
	require.NoError(t, err)
	hub.enterRoom(conn, "user:u-1")

	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			hub.Broadcast("user:u-1", []byte("msg"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Broadcast blocked on a slow subscriber")
	}

	close(sink.release)
	hub.disconnect("s-1", conn)

	assert.Less(t, sink.writes(), 5)
}

func TestSnapshot_ReportsConnectionsAndRooms(t *testing.T) {
	hub := newTestHub(&fakeStore{values: map[string]string{}}, 16)

	sink := &chanSink{ch: make(chan []byte, 4)}
	conn, err := hub.register("s-1", "u-7", sink)
	require.NoError(t, err)
	hub.enterRoom(conn, "user:u-7")

	snap := hub.Snapshot()
	require.Contains(t, snap.Sessions, "s-1")
	require.Len(t, snap.Sessions["s-1"], 1)
	for _, userID := range snap.Sessions["s-1"] {
		assert.Equal(t, "u-7", userID)
	}
	assert.Equal(t, 1, snap.Rooms["user:u-7"])

	hub.disconnect("s-1", conn)
}

package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"soundradius/pkg/retry"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type relayStub struct {
	mu       sync.Mutex
	received []SignalMessage
	conns    chan *websocket.Conn
}

func newRelayStub(t *testing.T) (*relayStub, *httptest.Server) {
	t.Helper()
	stub := &relayStub{conns: make(chan *websocket.Conn, 1)}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		stub.conns <- conn
		for {
			var msg SignalMessage
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			stub.mu.Lock()
			stub.received = append(stub.received, msg)
			stub.mu.Unlock()
		}
	}))
	t.Cleanup(ts.Close)
	return stub, ts
}

func (s *relayStub) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.received)
}

func newConnectedClient(t *testing.T, ts *httptest.Server) *SignalClient {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	client := NewSignalClient(url, "test-token", retry.Config{
		MaxAttempts:  2,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     50 * time.Millisecond,
		Multiplier:   2.0,
	}, nil)
	require.NoError(t, client.Connect(context.Background()))
	t.Cleanup(func() { client.Close() })
	return client
}

func TestSignalClient_SendBeforeConnectFails(t *testing.T) {
	client := NewSignalClient("ws://127.0.0.1:0", "t", retry.Config{MaxAttempts: 0}, nil)
	assert.Error(t, client.Send("peer", "offer", nil))
}

func TestSignalClient_ConcurrentSends(t *testing.T) {
	stub, ts := newRelayStub(t)
	client := newConnectedClient(t, ts)

	const writers, perWriter = 10, 20
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWriter; j++ {
				assert.NoError(t, client.Send("peer", "ice_candidate", []byte(`{"candidate":"c"}`)))
			}
		}()
	}
	wg.Wait()

	require.Eventually(t, func() bool {
		return stub.count() == writers*perWriter
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSignalClient_DispatchesByFrom(t *testing.T) {
	stub, ts := newRelayStub(t)
	client := newConnectedClient(t, ts)

	fromA := make(chan SignalMessage, 1)
	client.RegisterHandler("alice", func(msg SignalMessage) { fromA <- msg })

	bobCalled := false
	client.RegisterHandler("bob", func(SignalMessage) { bobCalled = true })

	serverConn := <-stub.conns
	require.NoError(t, serverConn.WriteJSON(SignalMessage{Type: "offer", From: "alice"}))

	select {
	case msg := <-fromA:
		assert.Equal(t, "offer", msg.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("handler for alice not invoked")
	}
	assert.False(t, bobCalled)

	// Unregistered senders are dropped without dispatch.
	client.UnregisterHandler("alice")
	require.NoError(t, serverConn.WriteJSON(SignalMessage{Type: "offer", From: "alice"}))
	select {
	case <-fromA:
		t.Fatal("handler invoked after unregister")
	case <-time.After(100 * time.Millisecond):
	}
}

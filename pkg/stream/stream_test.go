package stream

import (
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestHubInitialPayload(t *testing.T) {
	hub := New(WithInitialPayload(func() []byte {
		return []byte(`{"type":"snapshot"}`)
	}))
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	conn := dial(t, srv)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"snapshot"}`, string(payload))
}

func TestHubBroadcast(t *testing.T) {
	hub := New()
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	first := dial(t, srv)
	second := dial(t, srv)

	require.Eventually(t, func() bool {
		return hub.ClientCount() == 2
	}, time.Second, 5*time.Millisecond)

	hub.Broadcast([]byte(`{"relay":0,"on":true}`))

	for _, conn := range []*websocket.Conn{first, second} {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
		_, payload, err := conn.ReadMessage()
		require.NoError(t, err)
		assert.JSONEq(t, `{"relay":0,"on":true}`, string(payload))
	}
}

func TestHubConcurrentBroadcasts(t *testing.T) {
	hub := New()
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	conn := dial(t, srv)
	require.Eventually(t, func() bool {
		return hub.ClientCount() == 1
	}, time.Second, 5*time.Millisecond)

	// Relay events and connectivity events broadcast from separate
	// goroutines; every frame must arrive intact.
	const perWriter = 25
	var wg sync.WaitGroup
	for _, payload := range []string{`{"type":"relay"}`, `{"type":"connectivity"}`} {
		wg.Add(1)
		go func(payload string) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				hub.Broadcast([]byte(payload))
			}
		}(payload)
	}
	wg.Wait()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	for i := 0; i < 2*perWriter; i++ {
		_, payload, err := conn.ReadMessage()
		require.NoError(t, err)
		assert.Contains(t, []string{`{"type":"relay"}`, `{"type":"connectivity"}`}, string(payload))
	}
}

func TestHubDropsClosedClients(t *testing.T) {
	hub := New()
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	conn := dial(t, srv)
	require.Eventually(t, func() bool {
		return hub.ClientCount() == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool {
		return hub.ClientCount() == 0
	}, time.Second, 5*time.Millisecond)

	// Broadcasting with nobody listening must not panic.
	hub.Broadcast([]byte("{}"))
}

func TestHubClose(t *testing.T) {
	hub := New()
	srv := httptest.NewServer(hub)
	defer srv.Close()

	dial(t, srv)
	require.Eventually(t, func() bool {
		return hub.ClientCount() == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, hub.Close())
	assert.Zero(t, hub.ClientCount())
}

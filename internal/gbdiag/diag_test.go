package gbdiag

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func dialTestServer(t *testing.T, h *Handler) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestClientReceivesInitialSnapshotOnConnect(t *testing.T) {
	h := NewHandler(func() Snapshot {
		return Snapshot{ThreadCount: 4, ResourcesLive: 2}
	})
	conn := dialTestServer(t, h)

	var snap Snapshot
	require.NoError(t, conn.ReadJSON(&snap))
	require.Equal(t, 4, snap.ThreadCount)
	require.Equal(t, 2, snap.ResourcesLive)
}

func TestBroadcastReachesAllClients(t *testing.T) {
	h := NewHandler(func() Snapshot { return Snapshot{} })
	connA := dialTestServer(t, h)
	connB := dialTestServer(t, h)

	var discard Snapshot
	require.NoError(t, connA.ReadJSON(&discard))
	require.NoError(t, connB.ReadJSON(&discard))

	require.Eventually(t, func() bool {
		h.mu.RLock()
		defer h.mu.RUnlock()
		return len(h.clients) == 2
	}, time.Second, 10*time.Millisecond)

	h.Broadcast(Snapshot{ResourcesVisible: 7})

	var snapA, snapB Snapshot
	require.NoError(t, connA.ReadJSON(&snapA))
	require.NoError(t, connB.ReadJSON(&snapB))
	require.Equal(t, 7, snapA.ResourcesVisible)
	require.Equal(t, 7, snapB.ResourcesVisible)
}

func TestStartBroadcasterSendsOnInterval(t *testing.T) {
	calls := 0
	h := NewHandler(func() Snapshot {
		calls++
		return Snapshot{ThreadCount: calls}
	})
	conn := dialTestServer(t, h)

	var initial Snapshot
	require.NoError(t, conn.ReadJSON(&initial))

	h.StartBroadcaster(10 * time.Millisecond)
	defer h.Stop()

	var snap Snapshot
	require.NoError(t, conn.ReadJSON(&snap))
	require.GreaterOrEqual(t, snap.ThreadCount, 1)
}

func TestDisconnectRemovesClient(t *testing.T) {
	h := NewHandler(func() Snapshot { return Snapshot{} })
	conn := dialTestServer(t, h)

	var discard Snapshot
	require.NoError(t, conn.ReadJSON(&discard))

	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	conn.Close()

	require.Eventually(t, func() bool { return h.ClientCount() == 0 }, time.Second, 10*time.Millisecond)
}

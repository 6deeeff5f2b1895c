package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erazemk/darilo/internal/model"
)

// startHub serves hub on a test server; the user id comes from ?user=.
func startHub(t *testing.T, hub *Hub) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		var userID int64
		json.Unmarshal([]byte(r.URL.Query().Get("user")), &userID)
		hub.Serve(r.Context(), userID, conn)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, user string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?user=" + user
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) model.Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var ev model.Event
	require.NoError(t, json.Unmarshal(data, &ev))
	return ev
}

func TestHubNotifyReachesOnlyTargetUser(t *testing.T) {
	hub := NewHub(nil)
	srv := startHub(t, hub)

	donor := dial(t, srv, "1")
	other := dial(t, srv, "2")
	require.Eventually(t, func() bool {
		return hub.Connections(1) == 1 && hub.Connections(2) == 1
	}, 2*time.Second, 10*time.Millisecond)

	hub.Notify(context.Background(), 1, model.Event{ID: "e1", Kind: model.EventVolunteerClaimed, DonationID: "d1"})

	ev := readEvent(t, donor)
	assert.Equal(t, model.EventVolunteerClaimed, ev.Kind)
	assert.Equal(t, "d1", ev.DonationID)

	other.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	_, _, err := other.ReadMessage()
	assert.Error(t, err, "user 2 should not receive user 1's event")
}

func TestHubBroadcastReachesEveryConnection(t *testing.T) {
	hub := NewHub(nil)
	srv := startHub(t, hub)

	a := dial(t, srv, "1")
	b := dial(t, srv, "1")
	c := dial(t, srv, "5")
	require.Eventually(t, func() bool {
		return hub.Connections(1) == 2 && hub.Connections(5) == 1
	}, 2*time.Second, 10*time.Millisecond)

	hub.Broadcast(context.Background(), model.Event{ID: "e2", Kind: model.EventDonationCreated})

	for _, conn := range []*websocket.Conn{a, b, c} {
		assert.Equal(t, model.EventDonationCreated, readEvent(t, conn).Kind)
	}
}

func TestHubUnregistersClosedConnections(t *testing.T) {
	hub := NewHub(nil)
	srv := startHub(t, hub)

	conn := dial(t, srv, "3")
	require.Eventually(t, func() bool { return hub.Connections(3) == 1 }, 2*time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return hub.Connections(3) == 0 }, 2*time.Second, 10*time.Millisecond)

	hub.Notify(context.Background(), 3, model.Event{Kind: model.EventVolunteerRemoved})
}

func TestHubDropsClientThatFallsBehind(t *testing.T) {
	hub := NewHub(nil)
	srv := startHub(t, hub)

	// A client whose writer never runs stands in for a stalled peer.
	stalled := newClient(7, dial(t, srv, "0"))
	hub.register(stalled)

	start := time.Now()
	for range sendBuffer + 1 {
		hub.Notify(context.Background(), 7, model.Event{Kind: model.EventVolunteerClaimed})
	}
	assert.Less(t, time.Since(start), time.Second, "Notify must not wait on the peer")
	assert.Equal(t, 0, hub.Connections(7))

	select {
	case <-stalled.done:
	default:
		t.Error("expected the stalled client to be closed")
	}
}

func TestMultiAndLogSink(t *testing.T) {
	var buf bytes.Buffer
	rec := &Recorder{}
	sink := Multi{rec, LogSink{Logger: slog.New(slog.NewTextHandler(&buf, nil))}}

	sink.Notify(context.Background(), 9, model.Event{ID: "e3", Kind: model.EventVolunteerFulfilled, ClaimID: "c1"})
	sink.Broadcast(context.Background(), model.Event{ID: "e4", Kind: model.EventDonationDeleted, DonationID: "d1"})

	deliveries := rec.Deliveries()
	require.Len(t, deliveries, 2)
	assert.Equal(t, int64(9), deliveries[0].UserID)
	assert.Equal(t, int64(0), deliveries[1].UserID)
	assert.Equal(t, []model.EventKind{model.EventVolunteerFulfilled, model.EventDonationDeleted}, rec.Kinds())

	out := buf.String()
	assert.Contains(t, out, "kind=volunteer_fulfilled")
	assert.Contains(t, out, "user_id=9")
	assert.Contains(t, out, "broadcast=true")

	rec.Reset()
	assert.Empty(t, rec.Deliveries())
}

package dispatch_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/immxrtalbeast/ordergroup/internal/dispatch"
	"github.com/immxrtalbeast/ordergroup/internal/domain"
	"github.com/immxrtalbeast/ordergroup/lib/logger/handlers/slogdiscard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startHub serves channel ch on a test server. The user id comes from
// the "user" query parameter.
func startHub(t *testing.T, f *fixture, ch domain.Channel) (*dispatch.Hub, string) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	hub := dispatch.NewHub(f.bus, f.tracker, f.announcer, f.router, slogdiscard.NewDiscardLogger())
	go func() { _ = hub.Run(ctx) }()

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := uuid.Parse(r.URL.Query().Get("user"))
		if err != nil {
			http.Error(w, "bad user", http.StatusBadRequest)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.Serve(ctx, conn, dispatch.Session{ConnID: uuid.NewString(), UserID: userID, Channel: ch})
	}))
	t.Cleanup(srv.Close)
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string, user *domain.User) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url+"?user="+user.ID.String(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// readUntil reads frames until match accepts one.
func readUntil(t *testing.T, conn *websocket.Conn, match func(frame) bool) frame {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		require.NoError(t, conn.SetReadDeadline(deadline))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var f frame
		require.NoError(t, json.Unmarshal(data, &f))
		if match(f) {
			return f
		}
	}
}

func send(t *testing.T, conn *websocket.Conn, event dispatch.EventType, message any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(inbound(t, event, message)))
}

func ofType(event string) func(frame) bool {
	return func(f frame) bool { return f.Type == event }
}

func TestHub_FansOutToEveryConnection(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	_, room := f.room(t, alice, 1234)
	ch := domain.RoomChannel(room.RoomNumber)
	hub, url := startHub(t, f, ch)

	a := dial(t, url, alice)
	readUntil(t, a, ofType("showRoomMembers"))

	b := dial(t, url, bob)
	readUntil(t, b, ofType("showRoomMembers"))

	require.Eventually(t, func() bool {
		n, err := hub.Connected(context.Background(), ch)
		return err == nil && n == 2
	}, 2*time.Second, 10*time.Millisecond)

	// Announced events reach the sender too.
	send(t, a, dispatch.EventConnectedUsers, nil)
	for _, conn := range []*websocket.Conn{a, b} {
		got := readUntil(t, conn, func(f frame) bool {
			return f.Type == "connectedUsers" && strings.Contains(string(f.Data), `"connected":2`)
		})
		assert.Equal(t, "count", got.Region)
	}

	// Direct events only answer the sender.
	send(t, b, dispatch.EventMyOrders, nil)
	got := readUntil(t, b, ofType("myOrders"))
	assert.Equal(t, "details", got.Region)
}

func TestHub_DisconnectLeavesChannel(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	_, room := f.room(t, alice, 1234)
	ch := domain.RoomChannel(room.RoomNumber)
	hub, url := startHub(t, f, ch)

	a := dial(t, url, alice)
	readUntil(t, a, ofType("showRoomMembers"))
	b := dial(t, url, bob)
	readUntil(t, b, ofType("showRoomMembers"))

	require.NoError(t, b.Close())

	require.Eventually(t, func() bool {
		n, err := hub.Connected(context.Background(), ch)
		return err == nil && n == 1
	}, 2*time.Second, 10*time.Millisecond)

	readUntil(t, a, func(f frame) bool {
		return f.Type == "connectedUsers" && strings.Contains(string(f.Data), `"connected":1`)
	})
}

func TestHub_OrderSessionFinishUpdatesRoom(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")
	_, room := f.room(t, alice, 1234)
	pizza := f.menuItem(t, "Pizza Corner", "Margherita", "7.00")
	_, url := startHub(t, f, domain.OrderSessionChannel(room.RoomNumber))

	a := dial(t, url, alice)
	state := readUntil(t, a, ofType("refreshOrder"))
	assert.Equal(t, "form", state.Region)

	send(t, a, dispatch.EventAddOrderItem, map[string]any{"menu_item_id": pizza.ID, "quantity": 2})
	readUntil(t, a, ofType("addOrderItem"))

	send(t, a, dispatch.EventFinishOrder, nil)
	readUntil(t, a, func(f frame) bool { return f.Type == "finishOrder" && f.Region == "notice" })

	list := readUntil(t, a, ofType("membersOrders"))
	var orders []orderData
	require.NoError(t, json.Unmarshal(list.Data, &orders))
	require.Len(t, orders, 1)
	assert.Equal(t, "alice", orders[0].Username)
	assert.True(t, orders[0].Total.Equal(dec("14.00")))
}

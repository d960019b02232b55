package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	httpapi "github.com/immxrtalbeast/ordergroup/internal/api/http"
	"github.com/immxrtalbeast/ordergroup/internal/bus"
	"github.com/immxrtalbeast/ordergroup/internal/config"
	"github.com/immxrtalbeast/ordergroup/internal/dispatch"
	"github.com/immxrtalbeast/ordergroup/internal/domain"
	"github.com/immxrtalbeast/ordergroup/internal/mailer"
	"github.com/immxrtalbeast/ordergroup/internal/presence"
	"github.com/immxrtalbeast/ordergroup/internal/repository"
	"github.com/immxrtalbeast/ordergroup/internal/service"
	"github.com/immxrtalbeast/ordergroup/lib/clock"
	"github.com/immxrtalbeast/ordergroup/lib/logger/handlers/slogdiscard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type capturingSender struct {
	mu   sync.Mutex
	keys []string
}

func (s *capturingSender) SendInvitation(_ context.Context, inv *domain.Invitation, _ *domain.OrderGroup, _ *domain.User) (mailer.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys = append(s.keys, inv.Key)
	return mailer.Result{Sent: true}, nil
}

func (s *capturingSender) last() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keys[len(s.keys)-1]
}

type app struct {
	server *httptest.Server
	sender *capturingSender
}

func newApp(t *testing.T) *app {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	log := slogdiscard.NewDiscardLogger()
	store := repository.NewInMemoryStore()
	users := repository.NewInMemoryUserRepository(store)
	groups := repository.NewInMemoryGroupRepository(store)
	rooms := repository.NewInMemoryRoomRepository(store)
	orders := repository.NewInMemoryOrderRepository(store)
	catalogRepo := repository.NewInMemoryCatalogRepository(store)
	invitations := repository.NewInMemoryInvitationRepository(store)
	retries := repository.NewInMemoryRetryRepository(store)

	ordering := config.Static{
		OrderLimit:             1,
		OrderArchiveDelayHours: 6,
		OrderTimeLimitMinutes:  15,
		LockTimeLimitMinutes:   60,
		JoinRetryLimit:         3,
	}

	b := bus.NewMemory()
	tracker := presence.NewMemory(clock.Real())
	announcer := dispatch.NewAnnouncer(b, log)
	notify := service.WithNotifier(announcer)

	userService, err := service.NewUserService(users, groups, invitations, "test-secret", time.Hour, log, notify)
	require.NoError(t, err)
	sender := &capturingSender{}
	invitationService := service.NewInvitationService(users, groups, invitations, sender, 72*time.Hour, log, notify)
	groupService := service.NewGroupService(users, groups, rooms, ordering, log, notify)
	orderService := service.NewOrderService(rooms, orders, catalogRepo, users, ordering, log, notify)
	admissionService := service.NewAdmissionService(groups, retries, ordering, log, notify)
	catalogService := service.NewCatalogService(catalogRepo, log)

	router := dispatch.NewRouter(dispatch.Services{
		Orders:    orderService,
		Groups:    groupService,
		Admission: admissionService,
		Catalog:   catalogService,
	}, tracker, announcer, nil, log)
	hub := dispatch.NewHub(b, tracker, announcer, router, log)
	go func() { _ = hub.Run(ctx) }()

	origins := []string{"http://localhost:3000"}
	engine := httpapi.SetupRouter(origins, userService, httpapi.Controllers{
		Users:   httpapi.NewUserController(userService, log),
		Groups:  httpapi.NewGroupController(groupService, invitationService, hub, log),
		Rooms:   httpapi.NewRoomController(ctx, groupService, hub, origins, log),
		Catalog: httpapi.NewCatalogController(catalogService, log),
	})

	srv := httptest.NewServer(engine)
	t.Cleanup(srv.Close)
	return &app{server: srv, sender: sender}
}

func (a *app) do(t *testing.T, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, a.server.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

// register signs a user up and returns a token for them.
func (a *app) register(t *testing.T, username string) string {
	t.Helper()
	email := username + "@example.com"
	status, _ := a.do(t, http.MethodPost, "/api/users/signup", "", map[string]any{
		"username": username, "email": email, "password": "password123",
	})
	require.Equal(t, http.StatusCreated, status)

	status, body := a.do(t, http.MethodPost, "/api/users/login", "", map[string]any{
		"email": email, "password": "password123",
	})
	require.Equal(t, http.StatusOK, status)
	return body["token"].(string)
}

func (a *app) createGroup(t *testing.T, token, name string, pin int) string {
	t.Helper()
	status, body := a.do(t, http.MethodPost, "/api/groups", token, map[string]any{"name": name, "pin": pin})
	require.Equal(t, http.StatusCreated, status)
	return body["group"].(map[string]any)["group_number"].(string)
}

func (a *app) createRoom(t *testing.T, token, groupNumber, name string) string {
	t.Helper()
	status, body := a.do(t, http.MethodPost, "/api/groups/"+groupNumber+"/rooms", token, map[string]any{"name": name})
	require.Equal(t, http.StatusCreated, status)
	return body["room"].(map[string]any)["room_number"].(string)
}

func TestUsers_SignupLoginMe(t *testing.T) {
	a := newApp(t)
	token := a.register(t, "alice")

	status, body := a.do(t, http.MethodGet, "/api/users/me", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "alice", body["user"].(map[string]any)["username"])

	status, _ = a.do(t, http.MethodPost, "/api/users/signup", "", map[string]any{
		"username": "alice2", "email": "alice@example.com", "password": "password123",
	})
	assert.Equal(t, http.StatusConflict, status)

	status, _ = a.do(t, http.MethodPost, "/api/users/login", "", map[string]any{
		"email": "alice@example.com", "password": "wrong-password",
	})
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = a.do(t, http.MethodPost, "/api/users/signup", "", map[string]any{
		"username": "bob", "email": "bob@example.com", "password": "short",
	})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestAuth_RejectsMissingAndInvalidTokens(t *testing.T) {
	a := newApp(t)

	status, _ := a.do(t, http.MethodGet, "/api/users/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = a.do(t, http.MethodGet, "/api/users/me", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestGroups_MembershipGuards(t *testing.T) {
	a := newApp(t)
	owner := a.register(t, "alice")
	stranger := a.register(t, "bob")
	number := a.createGroup(t, owner, "Lunch", 1234)

	status, body := a.do(t, http.MethodGet, "/api/groups/"+number, owner, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["member"])
	assert.EqualValues(t, 1234, body["group"].(map[string]any)["pin"])

	status, body = a.do(t, http.MethodGet, "/api/groups/"+number, stranger, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body["member"])
	assert.NotContains(t, body["group"], "pin")

	status, _ = a.do(t, http.MethodGet, "/api/groups/"+number+"/members", stranger, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = a.do(t, http.MethodPost, "/api/groups/"+number+"/rooms", stranger, map[string]any{"name": "Friday"})
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = a.do(t, http.MethodGet, "/api/groups/999999999999", owner, nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = a.do(t, http.MethodPost, "/api/groups", owner, map[string]any{"name": "Bad", "pin": 10000})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestRooms_EnterAndList(t *testing.T) {
	a := newApp(t)
	owner := a.register(t, "alice")
	stranger := a.register(t, "bob")
	group := a.createGroup(t, owner, "Lunch", 1234)
	room := a.createRoom(t, owner, group, "Friday")

	status, body := a.do(t, http.MethodGet, "/api/groups/"+group+"/rooms", owner, nil)
	require.Equal(t, http.StatusOK, status)
	rooms := body["rooms"].([]any)
	require.Len(t, rooms, 1)
	assert.Equal(t, room, rooms[0].(map[string]any)["room_number"])
	assert.EqualValues(t, 0, rooms[0].(map[string]any)["connected"])

	status, _ = a.do(t, http.MethodPost, "/api/rooms/"+room+"/enter", stranger, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, body = a.do(t, http.MethodPost, "/api/rooms/"+room+"/enter", owner, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, room, body["room"].(map[string]any)["room_number"])
	assert.Positive(t, body["time_left"])

	status, body = a.do(t, http.MethodGet, "/api/rooms/"+room+"/members", owner, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["members"], 1)

	status, _ = a.do(t, http.MethodGet, "/api/rooms/"+room+"/members", stranger, nil)
	assert.Equal(t, http.StatusForbidden, status)
}

func TestInvitations_InviteAndAccept(t *testing.T) {
	a := newApp(t)
	owner := a.register(t, "alice")
	bob := a.register(t, "bob")
	group := a.createGroup(t, owner, "Lunch", 1234)

	status, body := a.do(t, http.MethodPost, "/api/groups/"+group+"/invitations", owner, map[string]any{"email": "bob@example.com"})
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, true, body["sent"])

	status, body = a.do(t, http.MethodPost, "/api/invitations/"+a.sender.last()+"/accept", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["joined"])

	status, _ = a.do(t, http.MethodPost, "/api/invitations/"+a.sender.last()+"/accept", "", nil)
	assert.Equal(t, http.StatusConflict, status)

	status, body = a.do(t, http.MethodGet, "/api/groups/"+group, bob, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["member"])

	status, _ = a.do(t, http.MethodPost, "/api/invitations/unknown-key/accept", "", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestCatalog_UnknownRestaurant(t *testing.T) {
	a := newApp(t)
	token := a.register(t, "alice")

	status, body := a.do(t, http.MethodGet, "/api/restaurants", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, body["restaurants"])

	status, _ = a.do(t, http.MethodGet, "/api/restaurants/not-a-uuid/items", token, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestConnect_RequiresRoomEntry(t *testing.T) {
	a := newApp(t)
	owner := a.register(t, "alice")
	stranger := a.register(t, "bob")
	group := a.createGroup(t, owner, "Lunch", 1234)
	room := a.createRoom(t, owner, group, "Friday")

	wsURL := "ws" + strings.TrimPrefix(a.server.URL, "http")

	_, resp, err := websocket.DefaultDialer.Dial(wsURL+"/ws/room/"+room+"?token="+stranger, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(wsURL+"/ws/nowhere/"+room+"?token="+owner, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Strangers may open the group channel to enter the PIN.
	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"/ws/group/"+group+"?token="+stranger, nil)
	require.NoError(t, err)
	_ = conn.Close()

	conn, _, err = websocket.DefaultDialer.Dial(wsURL+"/ws/room/"+room+"?token="+owner, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var frame struct {
			Type string `json:"message_type"`
		}
		require.NoError(t, json.Unmarshal(data, &frame))
		if frame.Type == string(dispatch.EventShowRoomMembers) {
			break
		}
	}
}

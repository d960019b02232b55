package http

import (
	"context"
	"log/slog"
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/immxrtalbeast/ordergroup/internal/api/http/converter"
	"github.com/immxrtalbeast/ordergroup/internal/dispatch"
	"github.com/immxrtalbeast/ordergroup/internal/domain"
	"github.com/immxrtalbeast/ordergroup/internal/service"
)

// SocketServer runs upgraded connections. dispatch.Hub implements it.
type SocketServer interface {
	ConnectedCounter
	Serve(ctx context.Context, conn *websocket.Conn, sess dispatch.Session)
}

type RoomController struct {
	// base outlives requests: hijacked connections are not cancelled
	// with the request context.
	base     context.Context
	groups   service.GroupInteractor
	sockets  SocketServer
	upgrader websocket.Upgrader
	log      *slog.Logger
}

func NewRoomController(
	base context.Context,
	groups service.GroupInteractor,
	sockets SocketServer,
	allowedOrigins []string,
	log *slog.Logger,
) *RoomController {
	return &RoomController{
		base:    base,
		groups:  groups,
		sockets: sockets,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(allowedOrigins),
		},
		log: log,
	}
}

func (c *RoomController) EnterRoom(ctx *gin.Context) {
	room, err := c.groups.GetRoomByNumber(ctx.Request.Context(), ctx.Param("number"))
	if err != nil {
		writeError(ctx, c.log, err)
		return
	}

	userID := currentUser(ctx)
	entry, err := c.groups.EnterRoom(ctx.Request.Context(), userID, room.ID)
	if err != nil {
		writeError(ctx, c.log, err)
		return
	}

	connected, err := c.sockets.Connected(ctx.Request.Context(), domain.RoomChannel(room.RoomNumber))
	if err != nil {
		c.log.Warn("failed to count connected users", slog.String("room_number", room.RoomNumber), slog.Any("error", err))
	}
	ctx.JSON(http.StatusOK, converter.RoomEntryToApi(entry, userID, connected))
}

func (c *RoomController) ListMembers(ctx *gin.Context) {
	room, err := c.groups.GetRoomByNumber(ctx.Request.Context(), ctx.Param("number"))
	if err != nil {
		writeError(ctx, c.log, err)
		return
	}
	if !room.HasMember(currentUser(ctx)) {
		writeError(ctx, c.log, service.ErrNotRoomMember)
		return
	}

	members, err := c.groups.RoomMembers(ctx.Request.Context(), room.ID)
	if err != nil {
		writeError(ctx, c.log, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"members": converter.MembersToApi(members)})
}

// Connect upgrades to a websocket bound to one channel. Group channels
// only need the group to exist, since PIN entry happens on them. Room and
// order-session channels require the user to have entered the room.
func (c *RoomController) Connect(ctx *gin.Context) {
	ch, err := domain.NewChannel(ctx.Param("kind"), ctx.Param("key"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid channel", "details": err.Error()})
		return
	}

	userID := currentUser(ctx)
	if err := c.authorize(ctx.Request.Context(), userID, ch); err != nil {
		writeError(ctx, c.log, err)
		return
	}

	conn, err := c.upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		// Upgrade has already replied.
		c.log.Warn("failed to upgrade connection", slog.String("channel", ch.String()), slog.Any("error", err))
		return
	}

	c.sockets.Serve(c.base, conn, dispatch.Session{
		ConnID:  uuid.NewString(),
		UserID:  userID,
		Channel: ch,
	})
}

func (c *RoomController) authorize(ctx context.Context, userID uuid.UUID, ch domain.Channel) error {
	if ch.Kind == domain.ChannelGroup {
		_, err := c.groups.GetGroupByNumber(ctx, ch.Key)
		return err
	}

	room, err := c.groups.GetRoomByNumber(ctx, ch.Key)
	if err != nil {
		return err
	}
	if !room.HasMember(userID) {
		return service.ErrNotRoomMember
	}
	return nil
}

// checkOrigin admits non-browser clients, which send no Origin, and the
// configured origins. "*" admits everything.
func checkOrigin(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		return slices.Contains(allowed, "*") || slices.Contains(allowed, origin)
	}
}

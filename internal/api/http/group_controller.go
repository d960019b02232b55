package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/immxrtalbeast/ordergroup/internal/api/http/converter"
	"github.com/immxrtalbeast/ordergroup/internal/domain"
	"github.com/immxrtalbeast/ordergroup/internal/service"
)

// ConnectedCounter reports live connections per channel.
type ConnectedCounter interface {
	Connected(ctx context.Context, ch domain.Channel) (int, error)
}

type GroupController struct {
	groups      service.GroupInteractor
	invitations service.InvitationInteractor
	connected   ConnectedCounter
	log         *slog.Logger
}

func NewGroupController(
	groups service.GroupInteractor,
	invitations service.InvitationInteractor,
	connected ConnectedCounter,
	log *slog.Logger,
) *GroupController {
	return &GroupController{groups: groups, invitations: invitations, connected: connected, log: log}
}

func (c *GroupController) CreateGroup(ctx *gin.Context) {
	type request struct {
		Name string `json:"name" binding:"required"`
		PIN  *int   `json:"pin"`
	}

	var req request
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	userID := currentUser(ctx)
	group, err := c.groups.CreateGroup(ctx.Request.Context(), userID, req.Name, req.PIN)
	if err != nil {
		writeError(ctx, c.log, err)
		return
	}

	ctx.JSON(http.StatusCreated, gin.H{"group": converter.GroupToApi(group, userID)})
}

func (c *GroupController) ListGroups(ctx *gin.Context) {
	userID := currentUser(ctx)
	groups, err := c.groups.ListGroups(ctx.Request.Context(), userID)
	if err != nil {
		writeError(ctx, c.log, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"groups": converter.GroupsToApi(groups, userID)})
}

// GetGroup is open to non-members, who need it for the PIN page.
func (c *GroupController) GetGroup(ctx *gin.Context) {
	group, err := c.groups.GetGroupByNumber(ctx.Request.Context(), ctx.Param("number"))
	if err != nil {
		writeError(ctx, c.log, err)
		return
	}

	userID := currentUser(ctx)
	ctx.JSON(http.StatusOK, gin.H{
		"group":  converter.GroupToApi(group, userID),
		"member": group.HasMember(userID),
	})
}

func (c *GroupController) ListMembers(ctx *gin.Context) {
	group, ok := c.memberGroup(ctx)
	if !ok {
		return
	}

	members, err := c.groups.GroupMembers(ctx.Request.Context(), group.ID)
	if err != nil {
		writeError(ctx, c.log, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"members": converter.MembersToApi(members)})
}

func (c *GroupController) Invite(ctx *gin.Context) {
	type request struct {
		Email string `json:"email" binding:"required"`
	}

	var req request
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}
	group, err := c.groups.GetGroupByNumber(ctx.Request.Context(), ctx.Param("number"))
	if err != nil {
		writeError(ctx, c.log, err)
		return
	}

	res, err := c.invitations.Invite(ctx.Request.Context(), currentUser(ctx), group.ID, req.Email)
	if err != nil {
		writeError(ctx, c.log, err)
		return
	}

	ctx.JSON(http.StatusCreated, gin.H{
		"invitation": gin.H{
			"id":         res.Invitation.ID,
			"email":      res.Invitation.Email,
			"created_at": res.Invitation.Created,
		},
		"sent": res.Sent,
	})
}

func (c *GroupController) AcceptInvitation(ctx *gin.Context) {
	res, err := c.invitations.Accept(ctx.Request.Context(), ctx.Param("key"))
	if err != nil {
		writeError(ctx, c.log, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"group_number": res.Group.GroupNumber,
		"group":        res.Group.Name,
		"joined":       res.Joined,
	})
}

func (c *GroupController) CreateRoom(ctx *gin.Context) {
	type request struct {
		Name string `json:"name" binding:"required"`
	}

	var req request
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}
	group, err := c.groups.GetGroupByNumber(ctx.Request.Context(), ctx.Param("number"))
	if err != nil {
		writeError(ctx, c.log, err)
		return
	}

	room, err := c.groups.CreateRoom(ctx.Request.Context(), currentUser(ctx), group.ID, req.Name)
	if err != nil {
		writeError(ctx, c.log, err)
		return
	}

	ctx.JSON(http.StatusCreated, gin.H{"room": converter.RoomToApi(room, 0)})
}

func (c *GroupController) ListRooms(ctx *gin.Context) {
	group, ok := c.memberGroup(ctx)
	if !ok {
		return
	}

	rooms, err := c.groups.ListRooms(ctx.Request.Context(), group.ID)
	if err != nil {
		writeError(ctx, c.log, err)
		return
	}

	out := make([]*converter.RoomResponse, 0, len(rooms))
	for _, room := range rooms {
		connected, err := c.connected.Connected(ctx.Request.Context(), domain.RoomChannel(room.RoomNumber))
		if err != nil {
			c.log.Warn("failed to count connected users", slog.String("room_number", room.RoomNumber), slog.Any("error", err))
		}
		out = append(out, converter.RoomToApi(room, connected))
	}

	ctx.JSON(http.StatusOK, gin.H{"rooms": out})
}

// memberGroup loads the group in the path and rejects non-members.
func (c *GroupController) memberGroup(ctx *gin.Context) (*domain.OrderGroup, bool) {
	group, err := c.groups.GetGroupByNumber(ctx.Request.Context(), ctx.Param("number"))
	if err != nil {
		writeError(ctx, c.log, err)
		return nil, false
	}
	if !group.HasMember(currentUser(ctx)) {
		writeError(ctx, c.log, service.ErrNotGroupMember)
		return nil, false
	}
	return group, true
}

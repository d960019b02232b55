package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/immxrtalbeast/ordergroup/internal/repository"
	"github.com/immxrtalbeast/ordergroup/internal/service"
	"github.com/immxrtalbeast/ordergroup/lib/logger/sl"
)

var statusByError = []struct {
	err    error
	status int
}{
	{service.ErrInvalidPIN, http.StatusBadRequest},
	{service.ErrInvalidQuantity, http.StatusBadRequest},
	{service.ErrInvalidName, http.StatusBadRequest},
	{service.ErrInvalidEmail, http.StatusBadRequest},
	{service.ErrWeakPassword, http.StatusBadRequest},
	{service.ErrUnknownSummary, http.StatusBadRequest},
	{service.ErrInvalidCredentials, http.StatusUnauthorized},
	{service.ErrInvalidToken, http.StatusUnauthorized},
	{service.ErrNotGroupMember, http.StatusForbidden},
	{service.ErrNotRoomMember, http.StatusForbidden},
	{repository.ErrInvitationNotFound, http.StatusNotFound},
	{repository.ErrUserEmailExists, http.StatusConflict},
	{repository.ErrGroupExists, http.StatusConflict},
	{repository.ErrRoomExists, http.StatusConflict},
	{repository.ErrInvitationAccepted, http.StatusConflict},
	{service.ErrInvitationExpired, http.StatusGone},
}

// writeError maps service errors to a status and hides everything else
// behind a generic 500.
func writeError(ctx *gin.Context, log *slog.Logger, err error) {
	for _, e := range statusByError {
		if errors.Is(err, e.err) {
			ctx.JSON(e.status, gin.H{"error": e.err.Error()})
			return
		}
	}
	if service.IsNotFound(err) {
		ctx.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	log.Error("request failed",
		slog.String("method", ctx.Request.Method),
		slog.String("path", ctx.FullPath()),
		sl.Err(err),
	)
	ctx.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/immxrtalbeast/ordergroup/internal/service"
)

const userIDKey = "user_id"

type TokenParser interface {
	ParseToken(token string) (uuid.UUID, error)
}

// Auth accepts "Authorization: Bearer <jwt>" or, for websocket upgrades
// where browsers cannot set headers, a "token" query parameter.
func Auth(tokens TokenParser) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		token := bearer(ctx.GetHeader("Authorization"))
		if token == "" {
			token = ctx.Query("token")
		}
		if token == "" {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization is required"})
			return
		}

		userID, err := tokens.ParseToken(token)
		if err != nil {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": service.ErrInvalidToken.Error()})
			return
		}
		ctx.Set(userIDKey, userID)
		ctx.Next()
	}
}

func bearer(header string) string {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// currentUser is only valid behind Auth.
func currentUser(ctx *gin.Context) uuid.UUID {
	id, _ := ctx.Get(userIDKey)
	userID, _ := id.(uuid.UUID)
	return userID
}

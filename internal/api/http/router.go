package http

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

type Controllers struct {
	Users   *UserController
	Groups  *GroupController
	Rooms   *RoomController
	Catalog *CatalogController
}

func SetupRouter(allowedOrigins []string, tokens TokenParser, c Controllers) *gin.Engine {
	router := gin.Default()
	config := cors.DefaultConfig()
	config.AllowOrigins = allowedOrigins
	if len(allowedOrigins) == 1 && allowedOrigins[0] == "*" {
		config.AllowOrigins = nil
		config.AllowAllOrigins = true
	} else {
		config.AllowCredentials = true
	}
	config.AllowHeaders = []string{
		"Authorization",
		"Content-Type",
		"Origin",
		"Accept",
	}
	config.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"}
	router.Use(cors.New(config))
	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(200, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	auth := Auth(tokens)

	if c.Users != nil {
		users := api.Group("/users")
		users.POST("/signup", c.Users.Signup)
		users.POST("/login", c.Users.Login)
		users.GET("/me", auth, c.Users.Me)
	}

	if c.Groups != nil {
		api.POST("/invitations/:key/accept", c.Groups.AcceptInvitation)

		groups := api.Group("/groups", auth)
		groups.POST("", c.Groups.CreateGroup)
		groups.GET("", c.Groups.ListGroups)
		groups.GET("/:number", c.Groups.GetGroup)
		groups.GET("/:number/members", c.Groups.ListMembers)
		groups.POST("/:number/invitations", c.Groups.Invite)
		groups.POST("/:number/rooms", c.Groups.CreateRoom)
		groups.GET("/:number/rooms", c.Groups.ListRooms)
	}

	if c.Rooms != nil {
		rooms := api.Group("/rooms", auth)
		rooms.POST("/:number/enter", c.Rooms.EnterRoom)
		rooms.GET("/:number/members", c.Rooms.ListMembers)

		router.GET("/ws/:kind/:key", auth, c.Rooms.Connect)
	}

	if c.Catalog != nil {
		restaurants := api.Group("/restaurants", auth)
		restaurants.GET("", c.Catalog.ListRestaurants)
		restaurants.GET("/:id/items", c.Catalog.ListMenuItems)
	}

	return router
}

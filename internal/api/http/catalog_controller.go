package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/immxrtalbeast/ordergroup/internal/api/http/converter"
	"github.com/immxrtalbeast/ordergroup/internal/service"
)

type CatalogController struct {
	catalog service.CatalogInteractor
	log     *slog.Logger
}

func NewCatalogController(catalog service.CatalogInteractor, log *slog.Logger) *CatalogController {
	return &CatalogController{catalog: catalog, log: log}
}

func (c *CatalogController) ListRestaurants(ctx *gin.Context) {
	restaurants, err := c.catalog.ListRestaurants(ctx.Request.Context())
	if err != nil {
		writeError(ctx, c.log, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"restaurants": converter.RestaurantsToApi(restaurants)})
}

func (c *CatalogController) ListMenuItems(ctx *gin.Context) {
	restaurantID, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid restaurant id"})
		return
	}

	items, err := c.catalog.ListMenuItems(ctx.Request.Context(), restaurantID)
	if err != nil {
		writeError(ctx, c.log, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"items": converter.MenuItemsToApi(items)})
}

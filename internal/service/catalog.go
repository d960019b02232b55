package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/ordergroup/internal/domain"
	"github.com/immxrtalbeast/ordergroup/internal/repository"
)

type CatalogService struct {
	catalog repository.CatalogRepository
	log     *slog.Logger
}

func NewCatalogService(catalog repository.CatalogRepository, log *slog.Logger) *CatalogService {
	return &CatalogService{catalog: catalog, log: loggerOrDefault(log)}
}

func (s *CatalogService) ListRestaurants(ctx context.Context) ([]*domain.Restaurant, error) {
	const op = "service.catalog.restaurants"

	restaurants, err := s.catalog.ListRestaurants(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return restaurants, nil
}

// ListMenuItems returns the restaurant's menu, newest items first.
func (s *CatalogService) ListMenuItems(ctx context.Context, restaurantID uuid.UUID) ([]*domain.MenuItem, error) {
	const op = "service.catalog.menu_items"

	if _, err := s.catalog.GetRestaurant(ctx, restaurantID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	items, err := s.catalog.ListMenuItems(ctx, restaurantID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return items, nil
}

func (s *CatalogService) GetMenuItem(ctx context.Context, id uuid.UUID) (*domain.MenuItem, error) {
	return s.catalog.GetMenuItem(ctx, id)
}

var (
	_ AdmissionInteractor  = (*AdmissionService)(nil)
	_ OrderInteractor      = (*OrderService)(nil)
	_ GroupInteractor      = (*GroupService)(nil)
	_ UserInteractor       = (*UserService)(nil)
	_ InvitationInteractor = (*InvitationService)(nil)
	_ CatalogInteractor    = (*CatalogService)(nil)
)

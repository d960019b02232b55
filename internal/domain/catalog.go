package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Restaurant struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// MenuItem belongs to exactly one restaurant. Price is never negative.
type MenuItem struct {
	ID           uuid.UUID       `json:"id"`
	RestaurantID uuid.UUID       `json:"restaurant_id"`
	Restaurant   *Restaurant     `json:"restaurant,omitempty"`
	Name         string          `json:"name"`
	Price        decimal.Decimal `json:"price"`
	CreatedAt    time.Time       `json:"created_at"`
}

func NewRestaurant(name string) *Restaurant {
	return &Restaurant{
		ID:        uuid.New(),
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
}

func NewMenuItem(restaurantID uuid.UUID, name string, price decimal.Decimal) *MenuItem {
	return &MenuItem{
		ID:           uuid.New(),
		RestaurantID: restaurantID,
		Name:         name,
		Price:        price.Round(2),
		CreatedAt:    time.Now().UTC(),
	}
}

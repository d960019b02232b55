package converter

import (
	"time"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/ordergroup/internal/domain"
	"github.com/immxrtalbeast/ordergroup/internal/service"
	"github.com/shopspring/decimal"
)

type RestaurantResponse struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

type MenuItemResponse struct {
	ID           uuid.UUID       `json:"id"`
	RestaurantID uuid.UUID       `json:"restaurant_id"`
	Restaurant   string          `json:"restaurant,omitempty"`
	Name         string          `json:"name"`
	Price        decimal.Decimal `json:"price"`
}

type OrderItemResponse struct {
	ID         uuid.UUID       `json:"id"`
	MenuItemID uuid.UUID       `json:"menu_item_id"`
	Name       string          `json:"name"`
	Restaurant string          `json:"restaurant"`
	Price      decimal.Decimal `json:"price"`
	Quantity   int             `json:"quantity"`
	Total      decimal.Decimal `json:"total"`
}

type OrderResponse struct {
	ID          uuid.UUID           `json:"id"`
	UserID      uuid.UUID           `json:"user_id"`
	Username    string              `json:"username,omitempty"`
	RoomID      uuid.UUID           `json:"room_id"`
	State       domain.OrderState   `json:"state"`
	Created     time.Time           `json:"created"`
	DeleteTimer time.Time           `json:"delete_timer"`
	Items       []OrderItemResponse `json:"items"`
	Total       decimal.Decimal     `json:"total"`
}

// OrderStateResponse is the ordering form state: the open order, or why
// ordering is disabled.
type OrderStateResponse struct {
	Disabled bool           `json:"disabled"`
	Reason   string         `json:"reason,omitempty"`
	TimeLeft int            `json:"time_left"`
	Order    *OrderResponse `json:"order,omitempty"`
}

func RestaurantsToApi(restaurants []*domain.Restaurant) []RestaurantResponse {
	out := make([]RestaurantResponse, 0, len(restaurants))
	for _, r := range restaurants {
		out = append(out, RestaurantResponse{ID: r.ID, Name: r.Name})
	}
	return out
}

func MenuItemToApi(item *domain.MenuItem) MenuItemResponse {
	resp := MenuItemResponse{
		ID:           item.ID,
		RestaurantID: item.RestaurantID,
		Name:         item.Name,
		Price:        item.Price,
	}
	if item.Restaurant != nil {
		resp.Restaurant = item.Restaurant.Name
	}
	return resp
}

func MenuItemsToApi(items []*domain.MenuItem) []MenuItemResponse {
	out := make([]MenuItemResponse, 0, len(items))
	for _, item := range items {
		out = append(out, MenuItemToApi(item))
	}
	return out
}

func OrderToApi(o *domain.Order) *OrderResponse {
	items := make([]OrderItemResponse, 0, len(o.Items))
	for _, it := range o.Items {
		resp := OrderItemResponse{
			ID:         it.ID,
			MenuItemID: it.MenuItemID,
			Quantity:   it.Quantity,
			Total:      it.Total(),
		}
		if it.MenuItem != nil {
			resp.Name = it.MenuItem.Name
			resp.Price = it.MenuItem.Price
			if it.MenuItem.Restaurant != nil {
				resp.Restaurant = it.MenuItem.Restaurant.Name
			}
		}
		items = append(items, resp)
	}
	return &OrderResponse{
		ID:          o.ID,
		UserID:      o.UserID,
		RoomID:      o.RoomID,
		State:       o.State(),
		Created:     o.Created,
		DeleteTimer: o.DeleteTimer,
		Items:       items,
		Total:       o.Total(),
	}
}

// OrdersToApi fills usernames from names when present.
func OrdersToApi(orders []*domain.Order, names map[uuid.UUID]string) []*OrderResponse {
	out := make([]*OrderResponse, 0, len(orders))
	for _, o := range orders {
		resp := OrderToApi(o)
		resp.Username = names[o.UserID]
		out = append(out, resp)
	}
	return out
}

func OutcomeToApi(outcome service.OrderOutcome) *OrderStateResponse {
	resp := &OrderStateResponse{
		Disabled: outcome.Disabled,
		Reason:   string(outcome.Reason),
		TimeLeft: outcome.TimeLeft,
	}
	if outcome.Order != nil {
		resp.Order = OrderToApi(outcome.Order)
	}
	return resp
}

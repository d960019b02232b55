package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderState string

const (
	OrderStateNone     OrderState = "none"
	OrderStateOpen     OrderState = "open"
	OrderStateFinished OrderState = "finished"
	OrderStateArchived OrderState = "archived"
)

// Order is one user's order inside one room. DeleteTimer is fixed at
// creation and decides when the archiver hides the order.
type Order struct {
	ID               uuid.UUID
	UserID           uuid.UUID
	RoomID           uuid.UUID
	Created          time.Time
	FinishedOrdering bool
	DeleteTimer      time.Time
	OrderArchived    bool
	Items            []OrderItem
}

func NewOrder(userID, roomID uuid.UUID, now time.Time, archiveDelay time.Duration) *Order {
	created := now.UTC()
	return &Order{
		ID:          uuid.New(),
		UserID:      userID,
		RoomID:      roomID,
		Created:     created,
		DeleteTimer: created.Add(archiveDelay),
	}
}

func (o *Order) State() OrderState {
	switch {
	case o == nil:
		return OrderStateNone
	case o.OrderArchived:
		return OrderStateArchived
	case o.FinishedOrdering:
		return OrderStateFinished
	default:
		return OrderStateOpen
	}
}

// Total sums the rounded line totals, so it always matches the lines to
// the cent.
func (o *Order) Total() decimal.Decimal {
	total := decimal.Zero
	for i := range o.Items {
		total = total.Add(o.Items[i].Total())
	}
	return total
}

// OrderItem is one line of an order. Quantity is always positive.
type OrderItem struct {
	ID         uuid.UUID
	OrderID    uuid.UUID
	MenuItemID uuid.UUID
	MenuItem   *MenuItem
	Quantity   int
	CreatedAt  time.Time
}

func NewOrderItem(orderID uuid.UUID, menuItem *MenuItem, quantity int) *OrderItem {
	return &OrderItem{
		ID:         uuid.New(),
		OrderID:    orderID,
		MenuItemID: menuItem.ID,
		MenuItem:   menuItem,
		Quantity:   quantity,
		CreatedAt:  time.Now().UTC(),
	}
}

func (i *OrderItem) Total() decimal.Decimal {
	if i.MenuItem == nil || i.Quantity <= 0 {
		return decimal.Zero
	}
	return LineTotal(i.MenuItem.Price, i.Quantity)
}

// LineTotal is quantity * price rounded to cents.
func LineTotal(price decimal.Decimal, quantity int) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(int64(quantity))).Round(2)
}

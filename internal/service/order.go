package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/ordergroup/internal/config"
	"github.com/immxrtalbeast/ordergroup/internal/domain"
	"github.com/immxrtalbeast/ordergroup/internal/repository"
	"github.com/immxrtalbeast/ordergroup/lib/clock"
	"github.com/immxrtalbeast/ordergroup/lib/logger/sl"
	"github.com/shopspring/decimal"
)

type OrderService struct {
	rooms   repository.RoomRepository
	orders  repository.OrderRepository
	catalog repository.CatalogRepository
	users   repository.UserRepository
	cfg     config.Provider
	clock   clock.Clock
	log     *slog.Logger
}

func NewOrderService(
	rooms repository.RoomRepository,
	orders repository.OrderRepository,
	catalog repository.CatalogRepository,
	users repository.UserRepository,
	cfg config.Provider,
	log *slog.Logger,
	opts ...Option,
) *OrderService {
	o := buildOptions(opts)
	return &OrderService{
		rooms:   rooms,
		orders:  orders,
		catalog: catalog,
		users:   users,
		cfg:     cfg,
		clock:   o.clock,
		log:     loggerOrDefault(log),
	}
}

// GetOrCreateOpenOrder checks the ordering window first and the per-room
// cap second, then returns the open order, creating it if needed.
func (s *OrderService) GetOrCreateOpenOrder(ctx context.Context, userID, roomID uuid.UUID) (OrderOutcome, error) {
	const op = "service.order.get_or_create"
	log := s.log.With(
		slog.String("op", op),
		slog.String("user_id", userID.String()),
		slog.String("room_id", roomID.String()),
	)

	cfg := s.cfg.Get()
	now := s.clock.Now()

	entry, err := s.rooms.EnsureRoomUser(ctx, roomID, userID, now)
	if err != nil {
		return OrderOutcome{}, fmt.Errorf("%s: %w", op, err)
	}
	timeLeft := entry.TimeLeft(now, cfg.TimeLimit())
	if entry.TimedOut(now, cfg.TimeLimit()) {
		return disabled(ReasonTimeOut, 0), nil
	}

	finished, err := s.orders.CountFinished(ctx, userID, roomID, cfg.DayStart(now))
	if err != nil {
		return OrderOutcome{}, fmt.Errorf("%s: %w", op, err)
	}
	if finished >= cfg.OrderLimit {
		return disabled(ReasonOrderLimit, timeLeft), nil
	}

	order, err := s.orders.GetOpen(ctx, userID, roomID)
	if err == nil {
		return enabled(order, timeLeft), nil
	}
	if !errors.Is(err, repository.ErrOrderNotFound) {
		return OrderOutcome{}, fmt.Errorf("%s: %w", op, err)
	}

	order = domain.NewOrder(userID, roomID, now, cfg.ArchiveDelay())
	if err := s.orders.CreateOpen(ctx, order); err != nil {
		if !errors.Is(err, repository.ErrOpenOrderExists) {
			log.Error("failed to create order", sl.Err(err))
			return OrderOutcome{}, fmt.Errorf("%s: %w", op, err)
		}
		// Lost the race to a concurrent creator; use its order.
		order, err = s.orders.GetOpen(ctx, userID, roomID)
		if err != nil {
			return OrderOutcome{}, fmt.Errorf("%s: %w", op, err)
		}
		return enabled(order, timeLeft), nil
	}

	log.Info("order opened", slog.String("order_id", order.ID.String()))
	order.Items = []domain.OrderItem{}
	return enabled(order, timeLeft), nil
}

func (s *OrderService) AddItem(ctx context.Context, userID, orderID, menuItemID uuid.UUID, quantity int) (ItemResult, error) {
	const op = "service.order.add_item"
	log := s.log.With(
		slog.String("op", op),
		slog.String("user_id", userID.String()),
		slog.String("order_id", orderID.String()),
	)

	if quantity <= 0 {
		return ItemResult{}, ErrInvalidQuantity
	}

	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return ItemResult{}, fmt.Errorf("%s: %w", op, err)
	}
	if order.UserID != userID {
		log.Debug("add to foreign order ignored")
		return ItemResult{Status: ItemSkipped}, nil
	}
	if order.FinishedOrdering {
		return ItemResult{Status: ItemRejected, Order: order, Reason: ReasonOrderFinished}, nil
	}

	cfg := s.cfg.Get()
	now := s.clock.Now()
	entry, err := s.rooms.GetRoomUser(ctx, order.RoomID, userID)
	if err != nil {
		return ItemResult{}, fmt.Errorf("%s: %w", op, err)
	}
	if entry.TimedOut(now, cfg.TimeLimit()) {
		return ItemResult{Status: ItemRejected, Order: order, Reason: string(ReasonTimeOut)}, nil
	}

	menuItem, err := s.catalog.GetMenuItem(ctx, menuItemID)
	if err != nil {
		return ItemResult{}, fmt.Errorf("%s: %w", op, err)
	}
	if menuItem.Restaurant == nil {
		return ItemResult{}, fmt.Errorf("%s: %w", op, repository.ErrRestaurantNotFound)
	}

	item := domain.NewOrderItem(order.ID, menuItem, quantity)
	item.CreatedAt = now
	if err := s.orders.AddItem(ctx, item); err != nil {
		if errors.Is(err, repository.ErrOrderFinished) {
			order.FinishedOrdering = true
			return ItemResult{Status: ItemRejected, Order: order, Reason: ReasonOrderFinished}, nil
		}
		log.Error("failed to add item", sl.Err(err))
		return ItemResult{}, fmt.Errorf("%s: %w", op, err)
	}

	order.Items = append(order.Items, *item)
	log.Info("item added", slog.String("menu_item", menuItem.Name), slog.Int("quantity", quantity))
	return ItemResult{Status: ItemAdded, Item: item, Order: order}, nil
}

// DeleteItem removes a line from the caller's own open order. Requests
// against someone else's order come back Skipped.
func (s *OrderService) DeleteItem(ctx context.Context, userID, itemID uuid.UUID) (ItemResult, error) {
	const op = "service.order.delete_item"
	log := s.log.With(
		slog.String("op", op),
		slog.String("user_id", userID.String()),
		slog.String("item_id", itemID.String()),
	)

	item, err := s.orders.GetItem(ctx, itemID)
	if err != nil {
		return ItemResult{}, fmt.Errorf("%s: %w", op, err)
	}
	order, err := s.orders.GetByID(ctx, item.OrderID)
	if err != nil {
		return ItemResult{}, fmt.Errorf("%s: %w", op, err)
	}
	if order.UserID != userID {
		log.Debug("delete of foreign item ignored")
		return ItemResult{Status: ItemSkipped}, nil
	}
	if order.FinishedOrdering {
		return ItemResult{Status: ItemRejected, Item: item, Order: order, Reason: ReasonOrderFinished}, nil
	}

	if err := s.orders.DeleteItem(ctx, itemID); err != nil {
		if errors.Is(err, repository.ErrOrderFinished) {
			order.FinishedOrdering = true
			return ItemResult{Status: ItemRejected, Item: item, Order: order, Reason: ReasonOrderFinished}, nil
		}
		log.Error("failed to delete item", sl.Err(err))
		return ItemResult{}, fmt.Errorf("%s: %w", op, err)
	}

	remaining := make([]domain.OrderItem, 0, len(order.Items))
	for _, it := range order.Items {
		if it.ID != itemID {
			remaining = append(remaining, it)
		}
	}
	order.Items = remaining
	return ItemResult{Status: ItemDeleted, Item: item, Order: order}, nil
}

func (s *OrderService) Finish(ctx context.Context, userID, orderID uuid.UUID) (FinishResult, error) {
	const op = "service.order.finish"
	log := s.log.With(
		slog.String("op", op),
		slog.String("user_id", userID.String()),
		slog.String("order_id", orderID.String()),
	)

	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return FinishResult{}, fmt.Errorf("%s: %w", op, err)
	}
	if order.UserID != userID {
		log.Debug("finish of foreign order ignored")
		return FinishResult{Status: FinishSkipped}, nil
	}
	if order.FinishedOrdering {
		return FinishResult{Status: FinishNoop, Order: order}, nil
	}
	if len(order.Items) == 0 {
		return FinishResult{Status: FinishRejected, Order: order, Reason: ReasonAddItemsFirst}, nil
	}

	changed, err := s.orders.MarkFinished(ctx, orderID)
	if err != nil {
		log.Error("failed to finish order", sl.Err(err))
		return FinishResult{}, fmt.Errorf("%s: %w", op, err)
	}
	if !changed {
		// Either finished concurrently or emptied in the meantime.
		current, err := s.orders.GetByID(ctx, orderID)
		if err != nil {
			return FinishResult{}, fmt.Errorf("%s: %w", op, err)
		}
		if current.FinishedOrdering {
			return FinishResult{Status: FinishNoop, Order: current}, nil
		}
		return FinishResult{Status: FinishRejected, Order: current, Reason: ReasonAddItemsFirst}, nil
	}

	order.FinishedOrdering = true
	log.Info("order finished", slog.String("total", order.Total().StringFixed(2)))
	return FinishResult{Status: FinishDone, Order: order}, nil
}

func (s *OrderService) ComputeTotal(ctx context.Context, orderID uuid.UUID) (decimal.Decimal, error) {
	const op = "service.order.total"

	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", op, err)
	}
	return order.Total(), nil
}

// MembersOrders lists today's finished orders of everyone in the room.
func (s *OrderService) MembersOrders(ctx context.Context, roomID uuid.UUID) ([]*domain.Order, error) {
	const op = "service.order.members_orders"

	finished := true
	orders, err := s.orders.List(ctx, repository.OrderFilter{
		RoomID:   roomID,
		Finished: &finished,
		Since:    s.cfg.Get().DayStart(s.clock.Now()),
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return orders, nil
}

// UserOrders lists today's finished orders of one user in the room.
func (s *OrderService) UserOrders(ctx context.Context, userID, roomID uuid.UUID) ([]*domain.Order, error) {
	const op = "service.order.user_orders"

	finished := true
	orders, err := s.orders.List(ctx, repository.OrderFilter{
		RoomID:   roomID,
		UserID:   userID,
		Finished: &finished,
		Since:    s.cfg.Get().DayStart(s.clock.Now()),
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return orders, nil
}

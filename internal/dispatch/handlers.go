package dispatch

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/ordergroup/internal/api/http/converter"
	"github.com/immxrtalbeast/ordergroup/internal/domain"
	"github.com/immxrtalbeast/ordergroup/internal/service"
)

type ConnectedResponse struct {
	Channel   string `json:"channel"`
	Connected int    `json:"connected"`
}

type MenuResponse struct {
	RestaurantID uuid.UUID                    `json:"restaurant_id"`
	Items        []converter.MenuItemResponse `json:"items"`
}

type MemberOrdersResponse struct {
	UserID uuid.UUID                  `json:"user_id"`
	Orders []*converter.OrderResponse `json:"orders"`
}

// pinValue accepts the PIN as a JSON string or number.
type pinValue string

func (p *pinValue) UnmarshalJSON(data []byte) error {
	if bytes.HasPrefix(data, []byte(`"`)) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*p = pinValue(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*p = pinValue(n.String())
	return nil
}

func (r *Router) addOrderItem(ctx context.Context, req Request) (Result, error) {
	var msg struct {
		OrderID    uuid.UUID `json:"order_id"`
		MenuItemID uuid.UUID `json:"menu_item_id"`
		Quantity   int       `json:"quantity"`
	}
	if err := decode(req.Message, &msg); err != nil {
		return Result{}, err
	}
	if msg.MenuItemID == uuid.Nil {
		return Result{}, ErrBadMessage
	}

	orderID, blocked, err := r.openOrder(ctx, req, msg.OrderID)
	if err != nil || blocked != nil {
		return resultOf(blocked), err
	}
	res, err := r.svc.Orders.AddItem(ctx, req.Session.UserID, orderID, msg.MenuItemID, msg.Quantity)
	if err != nil {
		return Result{}, err
	}
	return r.itemResult(ctx, req, res)
}

func (r *Router) deleteOrderItem(ctx context.Context, req Request) (Result, error) {
	var msg struct {
		ItemID uuid.UUID `json:"item_id"`
	}
	if err := decode(req.Message, &msg); err != nil {
		return Result{}, err
	}
	if msg.ItemID == uuid.Nil {
		return Result{}, ErrBadMessage
	}

	res, err := r.svc.Orders.DeleteItem(ctx, req.Session.UserID, msg.ItemID)
	if err != nil {
		return Result{}, err
	}
	return r.itemResult(ctx, req, res)
}

func (r *Router) itemResult(ctx context.Context, req Request, res service.ItemResult) (Result, error) {
	var view View
	switch res.Status {
	case service.ItemSkipped:
		return Result{}, nil
	case service.ItemRejected:
		view.Add(RegionNotice, req.Type, Notice{
			Level:   NoticeError,
			Message: reasonMessage(res.Reason),
			Status:  string(res.Status),
		})
	}

	form, err := r.orderForm(ctx, req)
	if err != nil {
		return Result{}, err
	}
	view.Fragments = append(view.Fragments, form.Fragments...)
	return Result{View: view}, nil
}

// finishOrder opens the next order for the user and tells the room.
func (r *Router) finishOrder(ctx context.Context, req Request) (Result, error) {
	var msg struct {
		OrderID uuid.UUID `json:"order_id"`
	}
	if err := decode(req.Message, &msg); err != nil {
		return Result{}, err
	}

	orderID, blocked, err := r.openOrder(ctx, req, msg.OrderID)
	if err != nil || blocked != nil {
		return resultOf(blocked), err
	}
	res, err := r.svc.Orders.Finish(ctx, req.Session.UserID, orderID)
	if err != nil {
		return Result{}, err
	}

	var view View
	switch res.Status {
	case service.FinishSkipped:
		return Result{}, nil
	case service.FinishRejected:
		view.Add(RegionNotice, req.Type, Notice{
			Level:   NoticeError,
			Message: reasonMessage(res.Reason),
			Status:  string(res.Status),
		})
		return Result{View: view}, nil
	case service.FinishNoop:
		view.Add(RegionNotice, req.Type, Notice{
			Level:   NoticeInfo,
			Message: service.ReasonOrderFinished,
			Status:  string(res.Status),
		})
		return Result{View: view}, nil
	}

	view.Add(RegionNotice, req.Type, Notice{
		Level:   NoticeInfo,
		Message: "order finished",
		Status:  string(res.Status),
	})
	form, err := r.orderForm(ctx, req)
	if err != nil {
		return Result{}, err
	}
	view.Fragments = append(view.Fragments, form.Fragments...)

	key := req.Session.Channel.Key
	return Result{
		View: view,
		Announce: []Envelope{
			{Channel: domain.OrderSessionChannel(key).String(), Type: EventMembersOrders},
			{Channel: domain.RoomChannel(key).String(), Type: EventMembersOrders},
		},
	}, nil
}

func (r *Router) enterGroupPin(ctx context.Context, req Request) (Result, error) {
	var msg struct {
		PIN pinValue `json:"pin"`
	}
	if err := decode(req.Message, &msg); err != nil {
		return Result{}, err
	}
	if req.Session.Channel.Kind != domain.ChannelGroup {
		return Result{}, ErrWrongChannel
	}

	group, err := r.svc.Groups.GetGroupByNumber(ctx, req.Session.Channel.Key)
	if err != nil {
		return Result{}, err
	}
	res, err := r.svc.Admission.Attempt(ctx, req.Session.UserID, group.ID, string(msg.PIN))
	if err != nil {
		return Result{}, err
	}

	var view View
	if res.Status != service.AdmissionSuccess {
		view.Add(RegionNotice, req.Type, Notice{
			Level:   NoticeError,
			Message: res.Message,
			Status:  string(res.Status),
		})
		return Result{View: view}, nil
	}
	view.Add(RegionNotice, req.Type, Notice{
		Level:   NoticeInfo,
		Message: "joined " + res.Group.Name,
		Status:  string(res.Status),
	})
	view.Add(RegionDetails, req.Type, converter.GroupToApi(res.Group, req.Session.UserID))
	return Result{View: view}, nil
}

// showGroupMembers renders the member list. Viewers on the group channel
// who have not entered the PIN get a prompt instead.
func (r *Router) showGroupMembers(ctx context.Context, req Request) (Result, error) {
	ch := req.Session.Channel
	if ch.Kind == domain.ChannelGroup {
		group, err := r.svc.Groups.GetGroupByNumber(ctx, ch.Key)
		if err != nil {
			return Result{}, err
		}
		if !group.HasMember(req.Session.UserID) {
			var view View
			view.Add(RegionNotice, req.Type, Notice{
				Level:   NoticeInfo,
				Message: "enter the group PIN to see members",
				Status:  "pin_required",
			})
			return Result{View: view}, nil
		}
	}

	groupID, err := r.groupID(ctx, ch)
	if err != nil {
		return Result{}, err
	}
	members, err := r.svc.Groups.GroupMembers(ctx, groupID)
	if err != nil {
		return Result{}, err
	}
	var view View
	view.Add(RegionList, req.Type, converter.MembersToApi(members))
	return Result{View: view}, nil
}

func (r *Router) showRoomMembers(ctx context.Context, req Request) (Result, error) {
	room, err := r.room(ctx, req.Session.Channel)
	if err != nil {
		return Result{}, err
	}
	members, err := r.svc.Groups.RoomMembers(ctx, room.ID)
	if err != nil {
		return Result{}, err
	}
	var view View
	view.Add(RegionList, req.Type, converter.MembersToApi(members))
	return Result{View: view}, nil
}

func (r *Router) membersOrders(ctx context.Context, req Request) (Result, error) {
	room, err := r.room(ctx, req.Session.Channel)
	if err != nil {
		return Result{}, err
	}
	orders, err := r.svc.Orders.MembersOrders(ctx, room.ID)
	if err != nil {
		return Result{}, err
	}
	return r.ordersView(ctx, req, RegionList, orders)
}

func (r *Router) myOrders(ctx context.Context, req Request) (Result, error) {
	room, err := r.room(ctx, req.Session.Channel)
	if err != nil {
		return Result{}, err
	}
	orders, err := r.svc.Orders.UserOrders(ctx, req.Session.UserID, room.ID)
	if err != nil {
		return Result{}, err
	}
	return r.ordersView(ctx, req, RegionDetails, orders)
}

func (r *Router) showMemberItemOrders(ctx context.Context, req Request) (Result, error) {
	var msg struct {
		UserID uuid.UUID `json:"user_id"`
	}
	if err := decode(req.Message, &msg); err != nil {
		return Result{}, err
	}
	if msg.UserID == uuid.Nil {
		return Result{}, ErrBadMessage
	}

	room, err := r.room(ctx, req.Session.Channel)
	if err != nil {
		return Result{}, err
	}
	orders, err := r.svc.Orders.UserOrders(ctx, msg.UserID, room.ID)
	if err != nil {
		return Result{}, err
	}
	names, err := r.svc.Orders.Usernames(ctx, orders)
	if err != nil {
		return Result{}, err
	}
	var view View
	view.Add(RegionDetails, req.Type, MemberOrdersResponse{
		UserID: msg.UserID,
		Orders: converter.OrdersToApi(orders, names),
	})
	return Result{View: view}, nil
}

// selectRestaurant lists restaurants, or the menu of the chosen one.
func (r *Router) selectRestaurant(ctx context.Context, req Request) (Result, error) {
	var msg struct {
		RestaurantID uuid.UUID `json:"restaurant_id"`
	}
	if err := decode(req.Message, &msg); err != nil {
		return Result{}, err
	}

	var view View
	if msg.RestaurantID == uuid.Nil {
		restaurants, err := r.svc.Catalog.ListRestaurants(ctx)
		if err != nil {
			return Result{}, err
		}
		view.Add(RegionList, req.Type, converter.RestaurantsToApi(restaurants))
		return Result{View: view}, nil
	}

	items, err := r.svc.Catalog.ListMenuItems(ctx, msg.RestaurantID)
	if err != nil {
		return Result{}, err
	}
	view.Add(RegionDetails, req.Type, MenuResponse{
		RestaurantID: msg.RestaurantID,
		Items:        converter.MenuItemsToApi(items),
	})
	return Result{View: view}, nil
}

func (r *Router) groupOrderSummary(ctx context.Context, req Request) (Result, error) {
	var msg struct {
		By string `json:"by"`
	}
	if err := decode(req.Message, &msg); err != nil {
		return Result{}, err
	}
	by, err := service.ParseSummaryBy(msg.By)
	if err != nil {
		return Result{}, err
	}

	room, err := r.room(ctx, req.Session.Channel)
	if err != nil {
		return Result{}, err
	}
	summary, err := r.svc.Orders.Summarize(ctx, room.ID, by)
	if err != nil {
		return Result{}, err
	}
	var view View
	view.Add(RegionSummary, req.Type, summary)
	return Result{View: view}, nil
}

func (r *Router) connectedUsers(ctx context.Context, req Request) (Result, error) {
	count, err := r.presence.Count(ctx, req.Session.Channel)
	if err != nil {
		return Result{}, err
	}
	var view View
	view.Add(RegionCount, req.Type, ConnectedResponse{
		Channel:   req.Session.Channel.String(),
		Connected: count,
	})
	return Result{View: view}, nil
}

func (r *Router) refreshOrder(ctx context.Context, req Request) (Result, error) {
	view, err := r.orderForm(ctx, req)
	if err != nil {
		return Result{}, err
	}
	return Result{View: view}, nil
}

// orderForm renders the viewer's open order or why ordering is disabled.
func (r *Router) orderForm(ctx context.Context, req Request) (View, error) {
	room, err := r.room(ctx, req.Session.Channel)
	if err != nil {
		return View{}, err
	}
	outcome, err := r.svc.Orders.GetOrCreateOpenOrder(ctx, req.Session.UserID, room.ID)
	if err != nil {
		return View{}, err
	}
	var view View
	view.Add(RegionForm, req.Type, converter.OutcomeToApi(outcome))
	return view, nil
}

// openOrder returns orderID, or the viewer's open order when it is nil.
// A non-nil view means ordering is disabled and explains why.
func (r *Router) openOrder(ctx context.Context, req Request, orderID uuid.UUID) (uuid.UUID, *View, error) {
	if orderID != uuid.Nil {
		return orderID, nil, nil
	}
	room, err := r.room(ctx, req.Session.Channel)
	if err != nil {
		return uuid.Nil, nil, err
	}
	outcome, err := r.svc.Orders.GetOrCreateOpenOrder(ctx, req.Session.UserID, room.ID)
	if err != nil {
		return uuid.Nil, nil, err
	}
	if !outcome.Disabled {
		return outcome.Order.ID, nil, nil
	}

	var view View
	view.Add(RegionNotice, req.Type, Notice{
		Level:   NoticeError,
		Message: reasonMessage(string(outcome.Reason)),
		Status:  string(outcome.Reason),
	})
	view.Add(RegionForm, req.Type, converter.OutcomeToApi(outcome))
	return uuid.Nil, &view, nil
}

func (r *Router) ordersView(ctx context.Context, req Request, region Region, orders []*domain.Order) (Result, error) {
	names, err := r.svc.Orders.Usernames(ctx, orders)
	if err != nil {
		return Result{}, err
	}
	var view View
	view.Add(region, req.Type, converter.OrdersToApi(orders, names))
	return Result{View: view}, nil
}

// room resolves the room behind a room or order-session channel.
func (r *Router) room(ctx context.Context, ch domain.Channel) (*domain.OrderRoom, error) {
	if ch.Kind == domain.ChannelGroup {
		return nil, ErrWrongChannel
	}
	return r.svc.Groups.GetRoomByNumber(ctx, ch.Key)
}

func (r *Router) groupID(ctx context.Context, ch domain.Channel) (uuid.UUID, error) {
	if ch.Kind == domain.ChannelGroup {
		group, err := r.svc.Groups.GetGroupByNumber(ctx, ch.Key)
		if err != nil {
			return uuid.Nil, err
		}
		return group.ID, nil
	}
	room, err := r.room(ctx, ch)
	if err != nil {
		return uuid.Nil, err
	}
	return room.GroupID, nil
}

func reasonMessage(reason string) string {
	switch reason {
	case string(service.ReasonTimeOut):
		return "ordering time is over"
	case string(service.ReasonOrderLimit):
		return "order limit reached for today"
	default:
		return reason
	}
}

func resultOf(view *View) Result {
	if view == nil {
		return Result{}
	}
	return Result{View: *view}
}

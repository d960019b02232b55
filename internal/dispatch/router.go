package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/ordergroup/internal/domain"
	"github.com/immxrtalbeast/ordergroup/internal/presence"
	"github.com/immxrtalbeast/ordergroup/internal/service"
	"github.com/immxrtalbeast/ordergroup/lib/logger/sl"
)

var (
	ErrBadMessage   = errors.New("malformed message")
	ErrWrongChannel = errors.New("event is not available on this channel")
)

// validation errors go back to the requesting connection as a notice.
var validation = []error{
	ErrBadMessage,
	ErrWrongChannel,
	service.ErrInvalidPIN,
	service.ErrInvalidQuantity,
	service.ErrNotGroupMember,
	service.ErrNotRoomMember,
	service.ErrUnknownSummary,
}

// Session is one websocket connection bound to a channel.
type Session struct {
	ConnID  string
	UserID  uuid.UUID
	Channel domain.Channel
}

type Request struct {
	Session Session
	Type    EventType
	Message json.RawMessage
	// SenderID is the user who produced the event, not always the viewer.
	SenderID uuid.UUID
}

type Result struct {
	View View
	// Announce lists follow-up events for whole channels.
	Announce []Envelope
}

type HandlerFunc func(ctx context.Context, req Request) (Result, error)

type route struct {
	// announce marks read-only views. Only they are rendered for other
	// viewers, and only they honor the "group" flag.
	announce bool
	handle   HandlerFunc
}

// Services are the collaborators handlers call into.
type Services struct {
	Orders    service.OrderInteractor
	Groups    service.GroupInteractor
	Admission service.AdmissionInteractor
	Catalog   service.CatalogInteractor
}

type Router struct {
	routes    map[EventType]route
	svc       Services
	presence  presence.Tracker
	announcer *Announcer
	renderer  Renderer
	log       *slog.Logger
}

func NewRouter(svc Services, tracker presence.Tracker, announcer *Announcer, renderer Renderer, log *slog.Logger) *Router {
	if renderer == nil {
		renderer = JSONRenderer{}
	}
	r := &Router{
		svc:       svc,
		presence:  tracker,
		announcer: announcer,
		renderer:  renderer,
		log:       log,
	}
	r.routes = map[EventType]route{
		EventAddOrderItem:         {handle: r.addOrderItem},
		EventDeleteOrderItem:      {handle: r.deleteOrderItem},
		EventFinishOrder:          {handle: r.finishOrder},
		EventEnterGroupPin:        {handle: r.enterGroupPin},
		EventShowGroupMembers:     {announce: true, handle: r.showGroupMembers},
		EventShowRoomMembers:      {announce: true, handle: r.showRoomMembers},
		EventMembersOrders:        {announce: true, handle: r.membersOrders},
		EventMyOrders:             {handle: r.myOrders},
		EventShowMemberItemOrders: {handle: r.showMemberItemOrders},
		EventSelectRestaurant:     {handle: r.selectRestaurant},
		EventGroupOrderSummary:    {handle: r.groupOrderSummary},
		EventConnectedUsers:       {announce: true, handle: r.connectedUsers},
		EventRefreshOrder:         {handle: r.refreshOrder},
	}
	return r
}

// Dispatch handles a frame read from the connection of sess. Announced
// events come back to every connection through the bus, so Dispatch
// returns no frames for them.
func (r *Router) Dispatch(ctx context.Context, sess Session, in Inbound) [][]byte {
	log := r.log.With(
		slog.String("channel", sess.Channel.String()),
		slog.String("conn_id", sess.ConnID),
		slog.String("event", string(in.Type)),
	)

	rt, ok := r.routes[in.Type]
	if !ok {
		log.Warn("unknown event dropped")
		return nil
	}

	announce := rt.announce
	if rt.announce {
		if flag := groupFlag(in.Message); flag != nil {
			announce = *flag
		}
	}
	if !announce {
		return r.Render(ctx, sess, Envelope{
			Channel:  sess.Channel.String(),
			Phase:    PhaseRender,
			Type:     in.Type,
			Message:  in.Message,
			SenderID: sess.UserID,
		})
	}

	err := r.announcer.Publish(ctx, Envelope{
		Channel:  sess.Channel.String(),
		Type:     in.Type,
		Message:  in.Message,
		SenderID: sess.UserID,
	})
	if err != nil {
		log.Error("failed to announce event", sl.Err(err))
		return r.frames(log, noticeView(in.Type, NoticeError, "internal error", ""))
	}
	return nil
}

// Render runs the handler of env for one connection.
func (r *Router) Render(ctx context.Context, sess Session, env Envelope) [][]byte {
	log := r.log.With(
		slog.String("channel", sess.Channel.String()),
		slog.String("conn_id", sess.ConnID),
		slog.String("event", string(env.Type)),
	)

	rt, ok := r.routes[env.Type]
	if !ok {
		log.Warn("unknown event dropped")
		return nil
	}
	if !rt.announce && env.SenderID != sess.UserID {
		log.Warn("event from another user dropped", slog.String("sender_id", env.SenderID.String()))
		return nil
	}

	res, err := r.run(ctx, rt, Request{
		Session:  sess,
		Type:     env.Type,
		Message:  env.Message,
		SenderID: env.SenderID,
	})
	if err != nil {
		return r.frames(log, r.failure(log, env.Type, err))
	}

	for _, follow := range res.Announce {
		if follow.SenderID == uuid.Nil {
			follow.SenderID = sess.UserID
		}
		if err := r.announcer.Publish(ctx, follow); err != nil {
			log.Error("failed to announce follow-up",
				slog.String("follow_up", string(follow.Type)), sl.Err(err))
		}
	}
	return r.frames(log, res.View)
}

// Initial renders what a connection sees right after it joins a channel.
func (r *Router) Initial(ctx context.Context, sess Session) [][]byte {
	event := EventShowRoomMembers
	switch sess.Channel.Kind {
	case domain.ChannelGroup:
		event = EventShowGroupMembers
	case domain.ChannelOrderSession:
		event = EventRefreshOrder
	}
	return r.Render(ctx, sess, Envelope{
		Channel:  sess.Channel.String(),
		Phase:    PhaseRender,
		Type:     event,
		SenderID: sess.UserID,
	})
}

func (r *Router) run(ctx context.Context, rt route, req Request) (res Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("handler panicked",
				slog.String("event", string(req.Type)),
				slog.Any("panic", p),
				slog.String("stack", string(debug.Stack())),
			)
			err = fmt.Errorf("handler %s panicked: %v", req.Type, p)
		}
	}()
	return rt.handle(ctx, req)
}

func (r *Router) failure(log *slog.Logger, event EventType, err error) View {
	if msg, ok := validationMessage(err); ok {
		log.Debug("event rejected", sl.Err(err))
		return noticeView(event, NoticeError, msg, "invalid")
	}
	switch {
	case errors.Is(err, context.Canceled):
		log.Debug("event abandoned", sl.Err(err))
		return View{}
	case service.IsNotFound(err):
		log.Warn("event references missing data", sl.Err(err))
		return View{}
	default:
		log.Error("event failed", sl.Err(err))
		return noticeView(event, NoticeError, "internal error", "")
	}
}

func (r *Router) frames(log *slog.Logger, view View) [][]byte {
	if view.Empty() {
		return nil
	}
	frames, err := r.renderer.Render(view)
	if err != nil {
		log.Error("failed to render view", sl.Err(err))
		return nil
	}
	return frames
}

func validationMessage(err error) (string, bool) {
	for _, target := range validation {
		if errors.Is(err, target) {
			return target.Error(), true
		}
	}
	return "", false
}

func noticeView(event EventType, level NoticeLevel, message, status string) View {
	var v View
	v.Add(RegionNotice, event, Notice{Level: level, Message: message, Status: status})
	return v
}

func decode(message json.RawMessage, v any) error {
	if len(message) == 0 {
		return nil
	}
	if err := json.Unmarshal(message, v); err != nil {
		return fmt.Errorf("%w: %v", ErrBadMessage, err)
	}
	return nil
}

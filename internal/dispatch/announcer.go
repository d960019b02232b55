package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/immxrtalbeast/ordergroup/internal/bus"
	"github.com/immxrtalbeast/ordergroup/internal/domain"
	"github.com/immxrtalbeast/ordergroup/lib/logger/sl"
)

// Announcer publishes envelopes on the bus. Services use it to report
// membership changes without depending on the hub.
type Announcer struct {
	bus bus.Bus
	log *slog.Logger
}

func NewAnnouncer(b bus.Bus, log *slog.Logger) *Announcer {
	return &Announcer{bus: b, log: log}
}

// Publish sends env to every connection of env.Channel in the Render phase.
func (a *Announcer) Publish(ctx context.Context, env Envelope) error {
	env.Phase = PhaseRender
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("dispatch: encode envelope: %w", err)
	}
	return a.bus.Publish(ctx, bus.Message{Channel: env.Channel, Payload: payload})
}

// MembershipChanged re-renders the member list of channel everywhere.
func (a *Announcer) MembershipChanged(ctx context.Context, channel domain.Channel) {
	var event EventType
	switch channel.Kind {
	case domain.ChannelGroup:
		event = EventShowGroupMembers
	case domain.ChannelRoom:
		event = EventShowRoomMembers
	default:
		event = EventMembersOrders
	}
	err := a.Publish(ctx, Envelope{Channel: channel.String(), Type: event})
	if err != nil {
		a.log.Error("failed to announce membership change",
			slog.String("channel", channel.String()), sl.Err(err))
	}
}

// ConnectedChanged re-renders the connected-user count everywhere.
func (a *Announcer) ConnectedChanged(ctx context.Context, channel domain.Channel) {
	err := a.Publish(ctx, Envelope{Channel: channel.String(), Type: EventConnectedUsers})
	if err != nil {
		a.log.Error("failed to announce connected users",
			slog.String("channel", channel.String()), sl.Err(err))
	}
}

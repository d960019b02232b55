// Package dispatch routes client events for a channel and fans results
// out to every connection on it.
//
// An event is handled in one of two phases. Announce re-publishes the
// event through the bus so every connection on the channel receives it
// in the Render phase. Render runs the handler for one connection and
// produces the frames for that connection only.
package dispatch

import (
	"encoding/json"

	"github.com/google/uuid"
)

type EventType string

const (
	EventAddOrderItem         EventType = "addOrderItem"
	EventDeleteOrderItem      EventType = "deleteOrderItem"
	EventFinishOrder          EventType = "finishOrder"
	EventEnterGroupPin        EventType = "enterGroupPin"
	EventShowGroupMembers     EventType = "showGroupMembers"
	EventShowRoomMembers      EventType = "showRoomMembers"
	EventMembersOrders        EventType = "membersOrders"
	EventMyOrders             EventType = "myOrders"
	EventShowMemberItemOrders EventType = "showMemberItemOrders"
	EventSelectRestaurant     EventType = "selectRestaurant"
	EventGroupOrderSummary    EventType = "groupOrderSummary"
	EventConnectedUsers       EventType = "connectedUsers"
	EventRefreshOrder         EventType = "refreshOrder"
)

type Phase string

const (
	PhaseAnnounce Phase = "announce"
	PhaseRender   Phase = "render"
)

// Inbound is a frame as sent by the client.
type Inbound struct {
	Type    EventType       `json:"message_type"`
	Message json.RawMessage `json:"message"`
}

// Envelope is an event travelling between connections on the bus.
type Envelope struct {
	Channel string          `json:"channel"`
	Phase   Phase           `json:"phase"`
	Type    EventType       `json:"message_type"`
	Message json.RawMessage `json:"message,omitempty"`
	// SenderID is the user whose action produced the envelope.
	SenderID uuid.UUID `json:"sender_id"`
}

// groupFlag reads the optional "group" field of a message.
func groupFlag(message json.RawMessage) *bool {
	if len(message) == 0 {
		return nil
	}
	var flag struct {
		Group *bool `json:"group"`
	}
	if err := json.Unmarshal(message, &flag); err != nil {
		return nil
	}
	return flag.Group
}

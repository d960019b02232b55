package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type ChannelKind string

const (
	ChannelGroup        ChannelKind = "group"
	ChannelRoom         ChannelKind = "room"
	ChannelOrderSession ChannelKind = "order-session"
)

// Channel names a fan-out scope, rendered as "<kind>:<number>".
type Channel struct {
	Kind ChannelKind
	Key  string
}

func GroupChannel(groupNumber string) Channel {
	return Channel{Kind: ChannelGroup, Key: groupNumber}
}

func RoomChannel(roomNumber string) Channel {
	return Channel{Kind: ChannelRoom, Key: roomNumber}
}

func OrderSessionChannel(roomNumber string) Channel {
	return Channel{Kind: ChannelOrderSession, Key: roomNumber}
}

func (c Channel) String() string {
	return string(c.Kind) + ":" + c.Key
}

func (c Channel) IsZero() bool {
	return c.Kind == "" && c.Key == ""
}

func ParseChannel(raw string) (Channel, error) {
	kind, key, ok := strings.Cut(raw, ":")
	if !ok || key == "" {
		return Channel{}, fmt.Errorf("invalid channel %q", raw)
	}
	return NewChannel(kind, key)
}

func NewChannel(kind string, key string) (Channel, error) {
	switch ChannelKind(kind) {
	case ChannelGroup, ChannelRoom, ChannelOrderSession:
	default:
		return Channel{}, fmt.Errorf("unknown channel kind %q", kind)
	}
	if key == "" {
		return Channel{}, fmt.Errorf("empty channel key")
	}
	return Channel{Kind: ChannelKind(kind), Key: key}, nil
}

// Presence is one live connection registered under a channel.
type Presence struct {
	ConnectionID string
	UserID       uuid.UUID
	Channel      Channel
	JoinedAt     time.Time
	LastSeen     time.Time
}

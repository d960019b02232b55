package converter

import (
	"time"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/ordergroup/internal/domain"
	"github.com/immxrtalbeast/ordergroup/internal/service"
)

type MemberResponse struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
}

type UserResponse struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

type GroupResponse struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	OwnerID     uuid.UUID `json:"owner_id"`
	GroupNumber string    `json:"group_number"`
	// PIN is only shown to the owner.
	PIN       *int      `json:"pin,omitempty"`
	Members   int       `json:"members"`
	CreatedAt time.Time `json:"created_at"`
}

type RoomResponse struct {
	ID         uuid.UUID `json:"id"`
	GroupID    uuid.UUID `json:"group_id"`
	Name       string    `json:"name"`
	RoomNumber string    `json:"room_number"`
	Members    int       `json:"members"`
	Connected  int       `json:"connected"`
	CreatedAt  time.Time `json:"created_at"`
}

type RoomEntryResponse struct {
	Room     *RoomResponse  `json:"room"`
	Group    *GroupResponse `json:"group"`
	Joined   time.Time      `json:"joined"`
	TimeLeft int            `json:"time_left"`
}

func UserToApi(u *domain.User) *UserResponse {
	return &UserResponse{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		CreatedAt: u.CreatedAt,
	}
}

func MembersToApi(users []*domain.User) []MemberResponse {
	members := make([]MemberResponse, 0, len(users))
	for _, u := range users {
		members = append(members, MemberResponse{ID: u.ID, Username: u.Username})
	}
	return members
}

func GroupToApi(g *domain.OrderGroup, viewer uuid.UUID) *GroupResponse {
	resp := &GroupResponse{
		ID:          g.ID,
		Name:        g.Name,
		OwnerID:     g.OwnerID,
		GroupNumber: g.GroupNumber,
		Members:     len(g.Members),
		CreatedAt:   g.CreatedAt,
	}
	if viewer == g.OwnerID {
		pin := g.PIN
		resp.PIN = &pin
	}
	return resp
}

func GroupsToApi(groups []*domain.OrderGroup, viewer uuid.UUID) []*GroupResponse {
	out := make([]*GroupResponse, 0, len(groups))
	for _, g := range groups {
		out = append(out, GroupToApi(g, viewer))
	}
	return out
}

func RoomToApi(r *domain.OrderRoom, connected int) *RoomResponse {
	return &RoomResponse{
		ID:         r.ID,
		GroupID:    r.GroupID,
		Name:       r.Name,
		RoomNumber: r.RoomNumber,
		Members:    len(r.Members),
		Connected:  connected,
		CreatedAt:  r.CreatedAt,
	}
}

func RoomEntryToApi(e *service.RoomEntry, viewer uuid.UUID, connected int) *RoomEntryResponse {
	return &RoomEntryResponse{
		Room:     RoomToApi(e.Room, connected),
		Group:    GroupToApi(e.Group, viewer),
		Joined:   e.Joined.Joined,
		TimeLeft: e.TimeLeft,
	}
}

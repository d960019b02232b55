package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const numberLength = 12

// OrderRoom is one ordering session window inside a group.
type OrderRoom struct {
	ID         uuid.UUID
	GroupID    uuid.UUID
	Name       string
	RoomNumber string
	Members    []uuid.UUID
	CreatedAt  time.Time
}

func NewOrderRoom(groupID uuid.UUID, name string) *OrderRoom {
	return &OrderRoom{
		ID:         uuid.New(),
		GroupID:    groupID,
		Name:       strings.TrimSpace(name),
		RoomNumber: generateNumber(),
		CreatedAt:  time.Now().UTC(),
	}
}

func (r *OrderRoom) HasMember(userID uuid.UUID) bool {
	return containsID(r.Members, userID)
}

// OrderRoomUser records when a user first entered a room. The ordering
// window for that user is measured from Joined.
type OrderRoomUser struct {
	RoomID uuid.UUID
	UserID uuid.UUID
	Joined time.Time
}

// TimedOut reports whether the ordering window has closed at now.
func (u *OrderRoomUser) TimedOut(now time.Time, limit time.Duration) bool {
	return now.Sub(u.Joined) > limit
}

// TimeLeft returns the whole seconds remaining in the ordering window,
// never negative.
func (u *OrderRoomUser) TimeLeft(now time.Time, limit time.Duration) int {
	left := u.Joined.Add(limit).Sub(now)
	if left <= 0 {
		return 0
	}
	return int(left / time.Second)
}

func generateNumber() string {
	number := strings.ReplaceAll(uuid.New().String(), "-", "")
	if len(number) <= numberLength {
		return number
	}
	return number[:numberLength]
}

func containsID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}

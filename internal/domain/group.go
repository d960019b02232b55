package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const MaxPIN = 9999

// OrderGroup is a named, PIN-gated collection of users that spawns rooms.
type OrderGroup struct {
	ID          uuid.UUID
	Name        string
	OwnerID     uuid.UUID
	GroupNumber string
	PIN         int
	Members     []uuid.UUID
	CreatedAt   time.Time
}

func NewOrderGroup(name string, owner uuid.UUID, pin int) *OrderGroup {
	return &OrderGroup{
		ID:          uuid.New(),
		Name:        strings.TrimSpace(name),
		OwnerID:     owner,
		GroupNumber: generateNumber(),
		PIN:         pin,
		Members:     []uuid.UUID{owner},
		CreatedAt:   time.Now().UTC(),
	}
}

func (g *OrderGroup) HasMember(userID uuid.UUID) bool {
	return g.OwnerID == userID || containsID(g.Members, userID)
}

// GroupRetry tracks PIN attempts of one user against one group.
// Retry never drops below zero and LockTime is set whenever Retry is zero.
type GroupRetry struct {
	UserID   uuid.UUID
	GroupID  uuid.UUID
	Retry    int
	LockTime *time.Time
}

// Locked reports whether the row is inside its lockout window at now.
func (r *GroupRetry) Locked(now time.Time, lockout time.Duration) bool {
	if r.Retry > 0 || r.LockTime == nil {
		return false
	}
	return now.Before(r.LockTime.Add(lockout))
}

// Recoverable reports whether a locked row has served its lockout.
func (r *GroupRetry) Recoverable(now time.Time, lockout time.Duration) bool {
	if r.Retry > 0 {
		return false
	}
	if r.LockTime == nil {
		return true
	}
	return !now.Before(r.LockTime.Add(lockout))
}

// UnlockIn is the time left until the lockout window elapses.
func (r *GroupRetry) UnlockIn(now time.Time, lockout time.Duration) time.Duration {
	if r.LockTime == nil {
		return 0
	}
	left := r.LockTime.Add(lockout).Sub(now)
	if left < 0 {
		return 0
	}
	return left
}

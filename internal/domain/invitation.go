package domain

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

const invitationKeyBytes = 32

// Invitation lets an existing member bring someone into a group by email.
type Invitation struct {
	ID        uuid.UUID
	Key       string
	Email     string
	GroupID   uuid.UUID
	InviterID uuid.UUID
	Created   time.Time
	Sent      *time.Time
	Accepted  bool
}

func NewInvitation(email string, groupID, inviterID uuid.UUID) (*Invitation, error) {
	key, err := generateKey()
	if err != nil {
		return nil, err
	}
	return &Invitation{
		ID:        uuid.New(),
		Key:       key,
		Email:     NormalizeEmail(email),
		GroupID:   groupID,
		InviterID: inviterID,
		Created:   time.Now().UTC(),
	}, nil
}

// Expired measures from the send time, or creation when never sent.
func (i *Invitation) Expired(now time.Time, ttl time.Duration) bool {
	from := i.Created
	if i.Sent != nil {
		from = *i.Sent
	}
	return !from.Add(ttl).After(now)
}

// WaitingRegistration parks an accepted invitation until the address
// belongs to a registered user.
type WaitingRegistration struct {
	ID       uuid.UUID
	GroupID  uuid.UUID
	Email    string
	Redeemed bool
}

func generateKey() (string, error) {
	b := make([]byte, invitationKeyBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

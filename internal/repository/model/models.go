package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Identifiers are stored as char(36) so the same schema migrates on both
// postgres and mysql.

type User struct {
	ID           uuid.UUID `gorm:"type:char(36);primaryKey"`
	Username     string    `gorm:"size:150;not null"`
	Email        string    `gorm:"size:255;uniqueIndex;not null"`
	PasswordHash string    `gorm:"size:255;not null"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`
}

type OrderGroup struct {
	ID          uuid.UUID     `gorm:"type:char(36);primaryKey"`
	Name        string        `gorm:"size:255;not null;uniqueIndex:idx_group_name_owner"`
	OwnerID     uuid.UUID     `gorm:"type:char(36);not null;uniqueIndex:idx_group_name_owner"`
	GroupNumber string        `gorm:"size:32;uniqueIndex;not null"`
	PIN         int           `gorm:"not null"`
	CreatedAt   time.Time     `gorm:"not null"`
	Members     []GroupMember `gorm:"foreignKey:GroupID;constraint:OnDelete:CASCADE"`
}

type GroupMember struct {
	GroupID   uuid.UUID `gorm:"type:char(36);primaryKey"`
	UserID    uuid.UUID `gorm:"type:char(36);primaryKey;index"`
	CreatedAt time.Time
}

type OrderRoom struct {
	ID         uuid.UUID    `gorm:"type:char(36);primaryKey"`
	GroupID    uuid.UUID    `gorm:"type:char(36);not null;uniqueIndex:idx_room_name_group"`
	Name       string       `gorm:"size:255;not null;uniqueIndex:idx_room_name_group"`
	RoomNumber string       `gorm:"size:32;uniqueIndex;not null"`
	CreatedAt  time.Time    `gorm:"not null"`
	Members    []RoomMember `gorm:"foreignKey:RoomID;constraint:OnDelete:CASCADE"`
}

type RoomMember struct {
	RoomID    uuid.UUID `gorm:"type:char(36);primaryKey"`
	UserID    uuid.UUID `gorm:"type:char(36);primaryKey;index"`
	CreatedAt time.Time
}

type OrderRoomUser struct {
	RoomID uuid.UUID `gorm:"type:char(36);primaryKey"`
	UserID uuid.UUID `gorm:"type:char(36);primaryKey"`
	Joined time.Time `gorm:"not null"`
}

type GroupRetry struct {
	UserID   uuid.UUID  `gorm:"type:char(36);primaryKey"`
	GroupID  uuid.UUID  `gorm:"type:char(36);primaryKey"`
	Retry    int        `gorm:"not null"`
	LockTime *time.Time
}

type Restaurant struct {
	ID        uuid.UUID `gorm:"type:char(36);primaryKey"`
	Name      string    `gorm:"size:255;uniqueIndex;not null"`
	CreatedAt time.Time `gorm:"not null"`
}

type MenuItem struct {
	ID           uuid.UUID       `gorm:"type:char(36);primaryKey"`
	RestaurantID uuid.UUID       `gorm:"type:char(36);not null;uniqueIndex:idx_menu_item_name"`
	Restaurant   Restaurant      `gorm:"constraint:OnDelete:CASCADE"`
	Name         string          `gorm:"size:255;not null;uniqueIndex:idx_menu_item_name"`
	Price        decimal.Decimal `gorm:"type:decimal(9,2);not null"`
	CreatedAt    time.Time       `gorm:"not null;index"`
}

type Order struct {
	ID               uuid.UUID   `gorm:"type:char(36);primaryKey"`
	UserID           uuid.UUID   `gorm:"type:char(36);not null;index:idx_order_owner"`
	RoomID           uuid.UUID   `gorm:"type:char(36);not null;index:idx_order_owner"`
	Created          time.Time   `gorm:"not null;index"`
	FinishedOrdering bool        `gorm:"not null;default:false"`
	DeleteTimer      time.Time   `gorm:"not null;index"`
	OrderArchived    bool        `gorm:"not null;default:false;index"`
	Items            []OrderItem `gorm:"constraint:OnDelete:CASCADE"`
}

type OrderItem struct {
	ID         uuid.UUID `gorm:"type:char(36);primaryKey"`
	OrderID    uuid.UUID `gorm:"type:char(36);not null;index"`
	MenuItemID uuid.UUID `gorm:"type:char(36);not null"`
	MenuItem   MenuItem  `gorm:"constraint:OnDelete:CASCADE"`
	Quantity   int       `gorm:"not null"`
	CreatedAt  time.Time `gorm:"not null"`
}

type Invitation struct {
	ID        uuid.UUID  `gorm:"type:char(36);primaryKey"`
	Key       string     `gorm:"column:invitation_key;size:64;uniqueIndex;not null"`
	Email     string     `gorm:"size:255;not null;index"`
	GroupID   uuid.UUID  `gorm:"type:char(36);not null"`
	InviterID uuid.UUID  `gorm:"type:char(36);not null"`
	Created   time.Time  `gorm:"not null"`
	Sent      *time.Time
	Accepted  bool `gorm:"not null;default:false"`
}

type WaitingRegistration struct {
	ID       uuid.UUID `gorm:"type:char(36);primaryKey"`
	GroupID  uuid.UUID `gorm:"type:char(36);not null"`
	Email    string    `gorm:"size:255;not null;index"`
	Redeemed bool      `gorm:"not null;default:false"`
}

// All lists every table for AutoMigrate.
func All() []any {
	return []any{
		&User{},
		&OrderGroup{},
		&GroupMember{},
		&OrderRoom{},
		&RoomMember{},
		&OrderRoomUser{},
		&GroupRetry{},
		&Restaurant{},
		&MenuItem{},
		&Order{},
		&OrderItem{},
		&Invitation{},
		&WaitingRegistration{},
	}
}

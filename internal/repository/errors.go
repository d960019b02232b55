package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrUserEmailExists    = errors.New("user with email already exists")
	ErrGroupNotFound      = errors.New("group not found")
	ErrGroupExists        = errors.New("group with this name already exists")
	ErrRoomNotFound       = errors.New("room not found")
	ErrRoomExists         = errors.New("room with this name already exists")
	ErrRoomUserNotFound   = errors.New("user has not entered the room")
	ErrRetryNotFound      = errors.New("retry record not found")
	ErrRestaurantNotFound = errors.New("restaurant not found")
	ErrRestaurantExists   = errors.New("restaurant already exists")
	ErrMenuItemNotFound   = errors.New("menu item not found")
	ErrMenuItemExists     = errors.New("menu item already exists")
	ErrOrderNotFound      = errors.New("order not found")
	ErrOpenOrderExists    = errors.New("open order already exists")
	ErrOrderFinished      = errors.New("order already finished")
	ErrOrderItemNotFound  = errors.New("order item not found")
	ErrInvitationNotFound = errors.New("invitation not found")
	ErrInvitationAccepted = errors.New("invitation already accepted")
	ErrWaitingNotFound    = errors.New("waiting registration not found")
)

const (
	pgUniqueViolation   = "23505"
	mysqlDuplicateEntry = 1062
)

// isDuplicate reports unique constraint violations across the supported
// drivers.
func isDuplicate(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return true
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry {
		return true
	}
	return false
}

package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/ordergroup/internal/domain"
	"github.com/immxrtalbeast/ordergroup/internal/repository/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ---- users ----

type GormUserRepository struct {
	db *gorm.DB
}

func NewGormUserRepository(db *gorm.DB) *GormUserRepository {
	return &GormUserRepository{db: db}
}

func (r *GormUserRepository) Create(ctx context.Context, user *domain.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if user == nil {
		return errors.New("user is nil")
	}

	if err := r.db.WithContext(ctx).Create(toModelUser(user)).Error; err != nil {
		if isDuplicate(err) {
			return ErrUserEmailExists
		}
		return err
	}
	return nil
}

func (r *GormUserRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var user model.User
	if err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return toDomainUser(&user), nil
}

func (r *GormUserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var user model.User
	err := r.db.WithContext(ctx).First(&user, "email = ?", domain.NormalizeEmail(email)).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return toDomainUser(&user), nil
}

func (r *GormUserRepository) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []*domain.User{}, nil
	}

	var users []model.User
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Order("username").Find(&users).Error; err != nil {
		return nil, err
	}

	result := make([]*domain.User, 0, len(users))
	for i := range users {
		result = append(result, toDomainUser(&users[i]))
	}
	return result, nil
}

// ---- groups ----

type GormGroupRepository struct {
	db *gorm.DB
}

func NewGormGroupRepository(db *gorm.DB) *GormGroupRepository {
	return &GormGroupRepository{db: db}
}

func (r *GormGroupRepository) Create(ctx context.Context, group *domain.OrderGroup) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if group == nil {
		return errors.New("group is nil")
	}

	if err := r.db.WithContext(ctx).Create(toModelGroup(group)).Error; err != nil {
		if isDuplicate(err) {
			return ErrGroupExists
		}
		return err
	}
	return nil
}

func (r *GormGroupRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.OrderGroup, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *GormGroupRepository) GetByNumber(ctx context.Context, number string) (*domain.OrderGroup, error) {
	return r.first(ctx, "group_number = ?", number)
}

func (r *GormGroupRepository) first(ctx context.Context, query string, arg any) (*domain.OrderGroup, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var group model.OrderGroup
	err := r.db.WithContext(ctx).Preload("Members").First(&group, query, arg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrGroupNotFound
		}
		return nil, err
	}
	return toDomainGroup(&group), nil
}

func (r *GormGroupRepository) ListForUser(ctx context.Context, userID uuid.UUID) ([]*domain.OrderGroup, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	member := r.db.Model(&model.GroupMember{}).Select("group_id").Where("user_id = ?", userID)

	var groups []model.OrderGroup
	err := r.db.WithContext(ctx).
		Preload("Members").
		Where("owner_id = ? OR id IN (?)", userID, member).
		Order("created_at DESC").
		Find(&groups).Error
	if err != nil {
		return nil, err
	}

	result := make([]*domain.OrderGroup, 0, len(groups))
	for i := range groups {
		result = append(result, toDomainGroup(&groups[i]))
	}
	return result, nil
}

func (r *GormGroupRepository) AddMember(ctx context.Context, groupID, userID uuid.UUID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model.GroupMember{GroupID: groupID, UserID: userID, CreatedAt: time.Now().UTC()})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ---- rooms ----

type GormRoomRepository struct {
	db *gorm.DB
}

func NewGormRoomRepository(db *gorm.DB) *GormRoomRepository {
	return &GormRoomRepository{db: db}
}

func (r *GormRoomRepository) Create(ctx context.Context, room *domain.OrderRoom) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if room == nil {
		return errors.New("room is nil")
	}

	if err := r.db.WithContext(ctx).Create(toModelRoom(room)).Error; err != nil {
		if isDuplicate(err) {
			return ErrRoomExists
		}
		return err
	}
	return nil
}

func (r *GormRoomRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.OrderRoom, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *GormRoomRepository) GetByNumber(ctx context.Context, number string) (*domain.OrderRoom, error) {
	return r.first(ctx, "room_number = ?", number)
}

func (r *GormRoomRepository) first(ctx context.Context, query string, arg any) (*domain.OrderRoom, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var room model.OrderRoom
	err := r.db.WithContext(ctx).Preload("Members").First(&room, query, arg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, err
	}
	return toDomainRoom(&room), nil
}

func (r *GormRoomRepository) ListByGroup(ctx context.Context, groupID uuid.UUID) ([]*domain.OrderRoom, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var rooms []model.OrderRoom
	err := r.db.WithContext(ctx).
		Preload("Members").
		Where("group_id = ?", groupID).
		Order("created_at DESC").
		Find(&rooms).Error
	if err != nil {
		return nil, err
	}

	result := make([]*domain.OrderRoom, 0, len(rooms))
	for i := range rooms {
		result = append(result, toDomainRoom(&rooms[i]))
	}
	return result, nil
}

func (r *GormRoomRepository) AddMember(ctx context.Context, roomID, userID uuid.UUID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model.RoomMember{RoomID: roomID, UserID: userID, CreatedAt: time.Now().UTC()})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *GormRoomRepository) EnsureRoomUser(ctx context.Context, roomID, userID uuid.UUID, joined time.Time) (*domain.OrderRoomUser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	db := r.db.WithContext(ctx)
	entry := model.OrderRoomUser{RoomID: roomID, UserID: userID, Joined: joined.UTC()}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&entry).Error; err != nil {
		return nil, err
	}
	return r.GetRoomUser(ctx, roomID, userID)
}

func (r *GormRoomRepository) GetRoomUser(ctx context.Context, roomID, userID uuid.UUID) (*domain.OrderRoomUser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var entry model.OrderRoomUser
	err := r.db.WithContext(ctx).First(&entry, "room_id = ? AND user_id = ?", roomID, userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRoomUserNotFound
		}
		return nil, err
	}
	return &domain.OrderRoomUser{RoomID: entry.RoomID, UserID: entry.UserID, Joined: entry.Joined.UTC()}, nil
}

// ---- retries ----

type GormRetryRepository struct {
	db *gorm.DB
}

func NewGormRetryRepository(db *gorm.DB) *GormRetryRepository {
	return &GormRetryRepository{db: db}
}

func (r *GormRetryRepository) Ensure(ctx context.Context, userID, groupID uuid.UUID, budget int) (*domain.GroupRetry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	db := r.db.WithContext(ctx)
	row := model.GroupRetry{UserID: userID, GroupID: groupID, Retry: budget}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
		return nil, err
	}
	return readRetry(db, userID, groupID)
}

// Consume assigns lock_time before retry so both postgres (old values on
// the right-hand side) and mysql (left-to-right evaluation) see the
// pre-update retry.
func (r *GormRetryRepository) Consume(ctx context.Context, userID, groupID uuid.UUID, lockTime time.Time) (*domain.GroupRetry, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	var (
		result  *domain.GroupRetry
		changed bool
	)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Exec(
			"UPDATE group_retries SET lock_time = CASE WHEN retry = 1 THEN ? ELSE lock_time END, retry = retry - 1 "+
				"WHERE user_id = ? AND group_id = ? AND retry > 0",
			lockTime.UTC(), userID, groupID,
		)
		if res.Error != nil {
			return res.Error
		}
		changed = res.RowsAffected > 0

		row, err := readRetry(tx, userID, groupID)
		if err != nil {
			return err
		}
		result = row
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return result, changed, nil
}

func (r *GormRetryRepository) Reset(ctx context.Context, userID, groupID uuid.UUID, budget int, observed *time.Time) (*domain.GroupRetry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	db := r.db.WithContext(ctx)
	query := db.Model(&model.GroupRetry{}).Where("user_id = ? AND group_id = ? AND retry = 0", userID, groupID)
	if observed == nil {
		query = query.Where("lock_time IS NULL")
	} else {
		query = query.Where("lock_time = ?", observed.UTC())
	}
	if err := query.Updates(map[string]any{"retry": budget, "lock_time": gorm.Expr("NULL")}).Error; err != nil {
		return nil, err
	}
	return readRetry(db, userID, groupID)
}

func readRetry(db *gorm.DB, userID, groupID uuid.UUID) (*domain.GroupRetry, error) {
	var row model.GroupRetry
	if err := db.First(&row, "user_id = ? AND group_id = ?", userID, groupID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRetryNotFound
		}
		return nil, err
	}

	retry := &domain.GroupRetry{UserID: row.UserID, GroupID: row.GroupID, Retry: row.Retry}
	if row.LockTime != nil {
		t := row.LockTime.UTC()
		retry.LockTime = &t
	}
	return retry, nil
}

// ---- catalog ----

type GormCatalogRepository struct {
	db *gorm.DB
}

func NewGormCatalogRepository(db *gorm.DB) *GormCatalogRepository {
	return &GormCatalogRepository{db: db}
}

func (r *GormCatalogRepository) CreateRestaurant(ctx context.Context, restaurant *domain.Restaurant) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m := model.Restaurant{ID: restaurant.ID, Name: restaurant.Name, CreatedAt: restaurant.CreatedAt.UTC()}
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		if isDuplicate(err) {
			return ErrRestaurantExists
		}
		return err
	}
	return nil
}

func (r *GormCatalogRepository) GetRestaurant(ctx context.Context, id uuid.UUID) (*domain.Restaurant, error) {
	return r.firstRestaurant(ctx, "id = ?", id)
}

func (r *GormCatalogRepository) GetRestaurantByName(ctx context.Context, name string) (*domain.Restaurant, error) {
	return r.firstRestaurant(ctx, "name = ?", name)
}

func (r *GormCatalogRepository) firstRestaurant(ctx context.Context, query string, arg any) (*domain.Restaurant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var m model.Restaurant
	if err := r.db.WithContext(ctx).First(&m, query, arg).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRestaurantNotFound
		}
		return nil, err
	}
	return toDomainRestaurant(&m), nil
}

func (r *GormCatalogRepository) ListRestaurants(ctx context.Context) ([]*domain.Restaurant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var rows []model.Restaurant
	if err := r.db.WithContext(ctx).Order("name").Find(&rows).Error; err != nil {
		return nil, err
	}

	result := make([]*domain.Restaurant, 0, len(rows))
	for i := range rows {
		result = append(result, toDomainRestaurant(&rows[i]))
	}
	return result, nil
}

func (r *GormCatalogRepository) CreateMenuItem(ctx context.Context, item *domain.MenuItem) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m := model.MenuItem{
		ID:           item.ID,
		RestaurantID: item.RestaurantID,
		Name:         item.Name,
		Price:        item.Price,
		CreatedAt:    item.CreatedAt.UTC(),
	}
	if err := r.db.WithContext(ctx).Omit("Restaurant").Create(&m).Error; err != nil {
		if isDuplicate(err) {
			return ErrMenuItemExists
		}
		return err
	}
	return nil
}

func (r *GormCatalogRepository) GetMenuItem(ctx context.Context, id uuid.UUID) (*domain.MenuItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var m model.MenuItem
	if err := r.db.WithContext(ctx).Preload("Restaurant").First(&m, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMenuItemNotFound
		}
		return nil, err
	}
	return toDomainMenuItem(&m), nil
}

func (r *GormCatalogRepository) ListMenuItems(ctx context.Context, restaurantID uuid.UUID) ([]*domain.MenuItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var rows []model.MenuItem
	err := r.db.WithContext(ctx).
		Preload("Restaurant").
		Where("restaurant_id = ?", restaurantID).
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	result := make([]*domain.MenuItem, 0, len(rows))
	for i := range rows {
		result = append(result, toDomainMenuItem(&rows[i]))
	}
	return result, nil
}

// ---- orders ----

type GormOrderRepository struct {
	db *gorm.DB
}

func NewGormOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: db}
}

// active is the default scope: archived orders are invisible to readers.
func active(db *gorm.DB) *gorm.DB {
	return db.Where("order_archived = ?", false)
}

func preloadItems(db *gorm.DB) *gorm.DB {
	return db.Preload("Items", func(tx *gorm.DB) *gorm.DB {
		return tx.Order("created_at")
	}).Preload("Items.MenuItem.Restaurant")
}

// CreateOpen locks the entry record of (user, room) so two concurrent
// callers serialize on the open-order check.
func (r *GormOrderRepository) CreateOpen(ctx context.Context, order *domain.Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var entry model.OrderRoomUser
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("room_id = ? AND user_id = ?", order.RoomID, order.UserID).
			Limit(1).
			Find(&entry).Error
		if err != nil {
			return err
		}

		var open int64
		err = tx.Model(&model.Order{}).
			Scopes(active).
			Where("user_id = ? AND room_id = ? AND finished_ordering = ?", order.UserID, order.RoomID, false).
			Count(&open).Error
		if err != nil {
			return err
		}
		if open > 0 {
			return ErrOpenOrderExists
		}

		return tx.Omit("Items").Create(toModelOrder(order)).Error
	})
}

func (r *GormOrderRepository) GetOpen(ctx context.Context, userID, roomID uuid.UUID) (*domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var order model.Order
	err := r.db.WithContext(ctx).
		Scopes(active, preloadItems).
		Where("user_id = ? AND room_id = ? AND finished_ordering = ?", userID, roomID, false).
		Order("created DESC").
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return toDomainOrder(&order), nil
}

func (r *GormOrderRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var order model.Order
	err := r.db.WithContext(ctx).Scopes(active, preloadItems).First(&order, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return toDomainOrder(&order), nil
}

func (r *GormOrderRepository) CountFinished(ctx context.Context, userID, roomID uuid.UUID, since time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Order{}).
		Scopes(active).
		Where("user_id = ? AND room_id = ? AND finished_ordering = ? AND created >= ?", userID, roomID, true, since.UTC()).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

func (r *GormOrderRepository) List(ctx context.Context, filter OrderFilter) ([]*domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	query := r.db.WithContext(ctx).Scopes(active, preloadItems)
	if filter.RoomID != uuid.Nil {
		query = query.Where("room_id = ?", filter.RoomID)
	}
	if filter.UserID != uuid.Nil {
		query = query.Where("user_id = ?", filter.UserID)
	}
	if filter.Finished != nil {
		query = query.Where("finished_ordering = ?", *filter.Finished)
	}
	if !filter.Since.IsZero() {
		query = query.Where("created >= ?", filter.Since.UTC())
	}

	var orders []model.Order
	if err := query.Order("created").Find(&orders).Error; err != nil {
		return nil, err
	}

	result := make([]*domain.Order, 0, len(orders))
	for i := range orders {
		result = append(result, toDomainOrder(&orders[i]))
	}
	return result, nil
}

// lockOpenOrder takes the row lock that item edits and finishing
// serialize on. It fails with ErrOrderFinished for finished orders.
func lockOpenOrder(tx *gorm.DB, id uuid.UUID) error {
	var order model.Order
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Scopes(active).
		Select("id", "finished_ordering").
		First(&order, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrOrderNotFound
		}
		return err
	}
	if order.FinishedOrdering {
		return ErrOrderFinished
	}
	return nil
}

func (r *GormOrderRepository) MarkFinished(ctx context.Context, id uuid.UUID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	var changed bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockOpenOrder(tx, id); err != nil {
			if errors.Is(err, ErrOrderFinished) {
				return nil
			}
			return err
		}

		var items int64
		if err := tx.Model(&model.OrderItem{}).Where("order_id = ?", id).Count(&items).Error; err != nil {
			return err
		}
		if items == 0 {
			return nil
		}

		res := tx.Model(&model.Order{}).
			Where("id = ? AND finished_ordering = ?", id, false).
			Update("finished_ordering", true)
		if res.Error != nil {
			return res.Error
		}
		changed = res.RowsAffected > 0
		return nil
	})
	if err != nil {
		return false, err
	}
	return changed, nil
}

func (r *GormOrderRepository) AddItem(ctx context.Context, item *domain.OrderItem) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m := model.OrderItem{
		ID:         item.ID,
		OrderID:    item.OrderID,
		MenuItemID: item.MenuItemID,
		Quantity:   item.Quantity,
		CreatedAt:  item.CreatedAt.UTC(),
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockOpenOrder(tx, item.OrderID); err != nil {
			return err
		}
		return tx.Omit("MenuItem").Create(&m).Error
	})
}

func (r *GormOrderRepository) GetItem(ctx context.Context, id uuid.UUID) (*domain.OrderItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var m model.OrderItem
	err := r.db.WithContext(ctx).Preload("MenuItem.Restaurant").First(&m, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderItemNotFound
		}
		return nil, err
	}
	item := toDomainOrderItem(&m)
	return &item, nil
}

func (r *GormOrderRepository) DeleteItem(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m model.OrderItem
		if err := tx.Select("id", "order_id").First(&m, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrOrderItemNotFound
			}
			return err
		}
		if err := lockOpenOrder(tx, m.OrderID); err != nil {
			return err
		}

		res := tx.Delete(&model.OrderItem{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrOrderItemNotFound
		}
		return nil
	})
}

func (r *GormOrderRepository) ListItems(ctx context.Context, orderID uuid.UUID) ([]domain.OrderItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var rows []model.OrderItem
	err := r.db.WithContext(ctx).
		Preload("MenuItem.Restaurant").
		Where("order_id = ?", orderID).
		Order("created_at").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	result := make([]domain.OrderItem, 0, len(rows))
	for i := range rows {
		result = append(result, toDomainOrderItem(&rows[i]))
	}
	return result, nil
}

func (r *GormOrderRepository) ArchiveExpired(ctx context.Context, now time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	res := r.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("order_archived = ? AND delete_timer <= ?", false, now.UTC()).
		Update("order_archived", true)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

// ---- invitations ----

type GormInvitationRepository struct {
	db *gorm.DB
}

func NewGormInvitationRepository(db *gorm.DB) *GormInvitationRepository {
	return &GormInvitationRepository{db: db}
}

func (r *GormInvitationRepository) Create(ctx context.Context, invitation *domain.Invitation) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m := model.Invitation{
		ID:        invitation.ID,
		Key:       invitation.Key,
		Email:     invitation.Email,
		GroupID:   invitation.GroupID,
		InviterID: invitation.InviterID,
		Created:   invitation.Created.UTC(),
		Sent:      invitation.Sent,
		Accepted:  invitation.Accepted,
	}
	return r.db.WithContext(ctx).Create(&m).Error
}

func (r *GormInvitationRepository) GetByKey(ctx context.Context, key string) (*domain.Invitation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var m model.Invitation
	if err := r.db.WithContext(ctx).First(&m, "invitation_key = ?", key).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvitationNotFound
		}
		return nil, err
	}

	invitation := &domain.Invitation{
		ID:        m.ID,
		Key:       m.Key,
		Email:     m.Email,
		GroupID:   m.GroupID,
		InviterID: m.InviterID,
		Created:   m.Created.UTC(),
		Accepted:  m.Accepted,
	}
	if m.Sent != nil {
		t := m.Sent.UTC()
		invitation.Sent = &t
	}
	return invitation, nil
}

func (r *GormInvitationRepository) MarkSent(ctx context.Context, id uuid.UUID, sent time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	res := r.db.WithContext(ctx).Model(&model.Invitation{}).Where("id = ?", id).Update("sent", sent.UTC())
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrInvitationNotFound
	}
	return nil
}

func (r *GormInvitationRepository) MarkAccepted(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	db := r.db.WithContext(ctx)
	res := db.Model(&model.Invitation{}).Where("id = ? AND accepted = ?", id, false).Update("accepted", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}

	var exists int64
	if err := db.Model(&model.Invitation{}).Where("id = ?", id).Count(&exists).Error; err != nil {
		return err
	}
	if exists == 0 {
		return ErrInvitationNotFound
	}
	return ErrInvitationAccepted
}

func (r *GormInvitationRepository) CreateWaiting(ctx context.Context, waiting *domain.WaitingRegistration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m := model.WaitingRegistration{
		ID:       waiting.ID,
		GroupID:  waiting.GroupID,
		Email:    domain.NormalizeEmail(waiting.Email),
		Redeemed: waiting.Redeemed,
	}
	return r.db.WithContext(ctx).Create(&m).Error
}

func (r *GormInvitationRepository) ListWaiting(ctx context.Context, email string) ([]*domain.WaitingRegistration, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var rows []model.WaitingRegistration
	err := r.db.WithContext(ctx).
		Where("email = ? AND redeemed = ?", domain.NormalizeEmail(email), false).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	result := make([]*domain.WaitingRegistration, 0, len(rows))
	for _, row := range rows {
		result = append(result, &domain.WaitingRegistration{
			ID:       row.ID,
			GroupID:  row.GroupID,
			Email:    row.Email,
			Redeemed: row.Redeemed,
		})
	}
	return result, nil
}

func (r *GormInvitationRepository) Redeem(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	res := r.db.WithContext(ctx).Model(&model.WaitingRegistration{}).Where("id = ?", id).Update("redeemed", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrWaitingNotFound
	}
	return nil
}

// ---- converters ----

func toModelUser(user *domain.User) *model.User {
	return &model.User{
		ID:           user.ID,
		Username:     user.Username,
		Email:        domain.NormalizeEmail(user.Email),
		PasswordHash: user.PasswordHash,
		CreatedAt:    user.CreatedAt.UTC(),
		UpdatedAt:    user.UpdatedAt.UTC(),
	}
}

func toDomainUser(user *model.User) *domain.User {
	return &domain.User{
		ID:           user.ID,
		Username:     user.Username,
		Email:        user.Email,
		PasswordHash: user.PasswordHash,
		CreatedAt:    user.CreatedAt.UTC(),
		UpdatedAt:    user.UpdatedAt.UTC(),
	}
}

func toModelGroup(group *domain.OrderGroup) *model.OrderGroup {
	members := make([]model.GroupMember, 0, len(group.Members))
	for _, id := range group.Members {
		members = append(members, model.GroupMember{GroupID: group.ID, UserID: id, CreatedAt: group.CreatedAt.UTC()})
	}
	return &model.OrderGroup{
		ID:          group.ID,
		Name:        group.Name,
		OwnerID:     group.OwnerID,
		GroupNumber: group.GroupNumber,
		PIN:         group.PIN,
		CreatedAt:   group.CreatedAt.UTC(),
		Members:     members,
	}
}

func toDomainGroup(group *model.OrderGroup) *domain.OrderGroup {
	members := make([]uuid.UUID, 0, len(group.Members))
	for _, m := range group.Members {
		members = append(members, m.UserID)
	}
	return &domain.OrderGroup{
		ID:          group.ID,
		Name:        group.Name,
		OwnerID:     group.OwnerID,
		GroupNumber: group.GroupNumber,
		PIN:         group.PIN,
		Members:     members,
		CreatedAt:   group.CreatedAt.UTC(),
	}
}

func toModelRoom(room *domain.OrderRoom) *model.OrderRoom {
	members := make([]model.RoomMember, 0, len(room.Members))
	for _, id := range room.Members {
		members = append(members, model.RoomMember{RoomID: room.ID, UserID: id, CreatedAt: room.CreatedAt.UTC()})
	}
	return &model.OrderRoom{
		ID:         room.ID,
		GroupID:    room.GroupID,
		Name:       room.Name,
		RoomNumber: room.RoomNumber,
		CreatedAt:  room.CreatedAt.UTC(),
		Members:    members,
	}
}

func toDomainRoom(room *model.OrderRoom) *domain.OrderRoom {
	members := make([]uuid.UUID, 0, len(room.Members))
	for _, m := range room.Members {
		members = append(members, m.UserID)
	}
	return &domain.OrderRoom{
		ID:         room.ID,
		GroupID:    room.GroupID,
		Name:       room.Name,
		RoomNumber: room.RoomNumber,
		Members:    members,
		CreatedAt:  room.CreatedAt.UTC(),
	}
}

func toDomainRestaurant(m *model.Restaurant) *domain.Restaurant {
	return &domain.Restaurant{ID: m.ID, Name: m.Name, CreatedAt: m.CreatedAt.UTC()}
}

func toDomainMenuItem(m *model.MenuItem) *domain.MenuItem {
	item := &domain.MenuItem{
		ID:           m.ID,
		RestaurantID: m.RestaurantID,
		Name:         m.Name,
		Price:        m.Price,
		CreatedAt:    m.CreatedAt.UTC(),
	}
	if m.Restaurant.ID != uuid.Nil {
		item.Restaurant = toDomainRestaurant(&m.Restaurant)
	}
	return item
}

func toModelOrder(order *domain.Order) *model.Order {
	return &model.Order{
		ID:               order.ID,
		UserID:           order.UserID,
		RoomID:           order.RoomID,
		Created:          order.Created.UTC(),
		FinishedOrdering: order.FinishedOrdering,
		DeleteTimer:      order.DeleteTimer.UTC(),
		OrderArchived:    order.OrderArchived,
	}
}

func toDomainOrder(order *model.Order) *domain.Order {
	items := make([]domain.OrderItem, 0, len(order.Items))
	for i := range order.Items {
		items = append(items, toDomainOrderItem(&order.Items[i]))
	}
	return &domain.Order{
		ID:               order.ID,
		UserID:           order.UserID,
		RoomID:           order.RoomID,
		Created:          order.Created.UTC(),
		FinishedOrdering: order.FinishedOrdering,
		DeleteTimer:      order.DeleteTimer.UTC(),
		OrderArchived:    order.OrderArchived,
		Items:            items,
	}
}

func toDomainOrderItem(m *model.OrderItem) domain.OrderItem {
	item := domain.OrderItem{
		ID:         m.ID,
		OrderID:    m.OrderID,
		MenuItemID: m.MenuItemID,
		Quantity:   m.Quantity,
		CreatedAt:  m.CreatedAt.UTC(),
	}
	if m.MenuItem.ID != uuid.Nil {
		item.MenuItem = toDomainMenuItem(&m.MenuItem)
	}
	return item
}

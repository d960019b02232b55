package service

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/ordergroup/internal/domain"
	"github.com/immxrtalbeast/ordergroup/internal/repository"
	"github.com/shopspring/decimal"
)

type SummaryBy string

var ErrUnknownSummary = errors.New("unknown summary grouping")

const (
	SummaryByRestaurant SummaryBy = "restaurant"
	SummaryByUser       SummaryBy = "user"
	// SummaryByBoth groups by restaurant, then by user inside each one.
	SummaryByBoth SummaryBy = "both"
)

func ParseSummaryBy(raw string) (SummaryBy, error) {
	switch SummaryBy(raw) {
	case SummaryByRestaurant, SummaryByUser, SummaryByBoth:
		return SummaryBy(raw), nil
	case "":
		return SummaryByRestaurant, nil
	default:
		return "", fmt.Errorf("%w %q", ErrUnknownSummary, raw)
	}
}

type Totals struct {
	Quantity int             `json:"quantity"`
	Total    decimal.Decimal `json:"total"`
}

func (t *Totals) add(other Totals) {
	t.Quantity += other.Quantity
	t.Total = t.Total.Add(other.Total)
}

// SummaryLine aggregates one menu item at one price.
type SummaryLine struct {
	Restaurant string          `json:"restaurant"`
	User       string          `json:"user,omitempty"`
	UserID     string          `json:"user_id,omitempty"`
	Item       string          `json:"item"`
	Price      decimal.Decimal `json:"price"`
	Quantity   int             `json:"quantity"`
	Total      decimal.Decimal `json:"total"`
}

// SummaryGroup is keyed by restaurant name or username. User groups also
// carry the user id, since usernames are not unique.
type SummaryGroup struct {
	Key       string         `json:"key"`
	ID        string         `json:"id,omitempty"`
	Lines     []SummaryLine  `json:"lines,omitempty"`
	Subgroups []SummaryGroup `json:"subgroups,omitempty"`
	Totals    Totals         `json:"totals"`
}

type Summary struct {
	By          SummaryBy      `json:"by"`
	Groups      []SummaryGroup `json:"groups"`
	GrandTotals Totals         `json:"grand_totals"`
}

type lineKey struct {
	restaurant string
	userID     uuid.UUID
	item       string
	price      string
}

// Summarize builds today's report over finished orders of the room.
func (s *OrderService) Summarize(ctx context.Context, roomID uuid.UUID, by SummaryBy) (*Summary, error) {
	const op = "service.order.summarize"

	finished := true
	orders, err := s.orders.List(ctx, repository.OrderFilter{
		RoomID:   roomID,
		Finished: &finished,
		Since:    s.cfg.Get().DayStart(s.clock.Now()),
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	names, err := s.Usernames(ctx, orders)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return BuildSummary(orders, names, by), nil
}

// Usernames maps the owners of orders to their usernames.
func (s *OrderService) Usernames(ctx context.Context, orders []*domain.Order) (map[uuid.UUID]string, error) {
	seen := make(map[uuid.UUID]struct{}, len(orders))
	ids := make([]uuid.UUID, 0, len(orders))
	for _, order := range orders {
		if _, ok := seen[order.UserID]; ok {
			continue
		}
		seen[order.UserID] = struct{}{}
		ids = append(ids, order.UserID)
	}

	users, err := s.users.ListByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	names := make(map[uuid.UUID]string, len(users))
	for _, user := range users {
		names[user.ID] = user.Username
	}
	return names, nil
}

// BuildSummary aggregates order lines by the requested keys. It is pure,
// so callers holding orders already can reuse it.
func BuildSummary(orders []*domain.Order, usernames map[uuid.UUID]string, by SummaryBy) *Summary {
	withUser := by != SummaryByRestaurant

	lines := make(map[lineKey]*SummaryLine)
	for _, order := range orders {
		user := usernames[order.UserID]
		if user == "" {
			user = order.UserID.String()
		}
		for _, item := range order.Items {
			if item.MenuItem == nil {
				continue
			}
			restaurant := ""
			if item.MenuItem.Restaurant != nil {
				restaurant = item.MenuItem.Restaurant.Name
			}
			key := lineKey{
				restaurant: restaurant,
				item:       item.MenuItem.Name,
				price:      item.MenuItem.Price.StringFixed(2),
			}
			if withUser {
				key.userID = order.UserID
			}
			line, ok := lines[key]
			if !ok {
				line = &SummaryLine{
					Restaurant: key.restaurant,
					Item:       key.item,
					Price:      item.MenuItem.Price.Round(2),
					Total:      decimal.Zero,
				}
				if withUser {
					line.User = user
					line.UserID = order.UserID.String()
				}
				lines[key] = line
			}
			line.Quantity += item.Quantity
			line.Total = line.Total.Add(item.Total())
		}
	}

	flat := make([]SummaryLine, 0, len(lines))
	for _, line := range lines {
		flat = append(flat, *line)
	}
	sort.Slice(flat, func(i, j int) bool {
		a, b := flat[i], flat[j]
		if a.Restaurant != b.Restaurant {
			return a.Restaurant < b.Restaurant
		}
		if a.User != b.User {
			return a.User < b.User
		}
		if a.UserID != b.UserID {
			return a.UserID < b.UserID
		}
		if a.Item != b.Item {
			return a.Item < b.Item
		}
		return a.Price.LessThan(b.Price)
	})

	summary := &Summary{By: by, GrandTotals: Totals{Total: decimal.Zero}}
	switch by {
	case SummaryByUser:
		summary.Groups = groupLines(flat, byUser, nil)
	case SummaryByBoth:
		summary.Groups = groupLines(flat, byRestaurant, byUser)
	default:
		summary.Groups = groupLines(flat, byRestaurant, nil)
	}

	// Grand totals are the plain sum across top-level groups.
	for _, group := range summary.Groups {
		summary.GrandTotals.add(group.Totals)
	}
	return summary
}

// groupKey returns the bucket id of a line and the label shown for it.
type groupKey func(SummaryLine) (id, label string)

func byRestaurant(l SummaryLine) (string, string) { return l.Restaurant, l.Restaurant }

func byUser(l SummaryLine) (string, string) { return l.UserID, l.User }

func groupLines(lines []SummaryLine, outer, inner groupKey) []SummaryGroup {
	ids := make([]string, 0)
	labels := make(map[string]string)
	buckets := make(map[string][]SummaryLine)
	for _, line := range lines {
		id, label := outer(line)
		if _, ok := buckets[id]; !ok {
			ids = append(ids, id)
			labels[id] = label
		}
		buckets[id] = append(buckets[id], line)
	}
	sort.Slice(ids, func(i, j int) bool {
		if labels[ids[i]] != labels[ids[j]] {
			return labels[ids[i]] < labels[ids[j]]
		}
		return ids[i] < ids[j]
	})

	groups := make([]SummaryGroup, 0, len(ids))
	for _, id := range ids {
		group := SummaryGroup{Key: labels[id], Totals: Totals{Total: decimal.Zero}}
		if id != labels[id] {
			group.ID = id
		}
		if inner != nil {
			group.Subgroups = groupLines(buckets[id], inner, nil)
			for _, sub := range group.Subgroups {
				group.Totals.add(sub.Totals)
			}
		} else {
			group.Lines = buckets[id]
			for _, line := range group.Lines {
				group.Totals.add(Totals{Quantity: line.Quantity, Total: line.Total})
			}
		}
		groups = append(groups, group)
	}
	return groups
}

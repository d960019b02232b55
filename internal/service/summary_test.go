package service_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/ordergroup/internal/domain"
	"github.com/immxrtalbeast/ordergroup/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func summaryOrders() ([]*domain.Order, map[uuid.UUID]string) {
	pizzeria := &domain.Restaurant{ID: uuid.New(), Name: "Pizza Corner"}
	grill := &domain.Restaurant{ID: uuid.New(), Name: "Grill"}
	margherita := &domain.MenuItem{ID: uuid.New(), Restaurant: pizzeria, Name: "Margherita", Price: dec("7.00")}
	burger := &domain.MenuItem{ID: uuid.New(), Restaurant: grill, Name: "Burger", Price: dec("5.99")}

	alice, bob := uuid.New(), uuid.New()
	orders := []*domain.Order{
		{ID: uuid.New(), UserID: alice, FinishedOrdering: true, Items: []domain.OrderItem{
			{MenuItem: margherita, Quantity: 2},
			{MenuItem: burger, Quantity: 1},
		}},
		{ID: uuid.New(), UserID: bob, FinishedOrdering: true, Items: []domain.OrderItem{
			{MenuItem: margherita, Quantity: 1},
			{MenuItem: burger, Quantity: 3},
		}},
	}
	return orders, map[uuid.UUID]string{alice: "alice", bob: "bob"}
}

func TestParseSummaryBy(t *testing.T) {
	by, err := service.ParseSummaryBy("")
	require.NoError(t, err)
	assert.Equal(t, service.SummaryByRestaurant, by)

	by, err = service.ParseSummaryBy("both")
	require.NoError(t, err)
	assert.Equal(t, service.SummaryByBoth, by)

	_, err = service.ParseSummaryBy("weekday")
	assert.Error(t, err)
}

func TestBuildSummary_ByRestaurant(t *testing.T) {
	orders, names := summaryOrders()

	summary := service.BuildSummary(orders, names, service.SummaryByRestaurant)

	require.Len(t, summary.Groups, 2)
	grill := summary.Groups[0]
	assert.Equal(t, "Grill", grill.Key)
	require.Len(t, grill.Lines, 1)
	assert.Equal(t, 4, grill.Lines[0].Quantity)
	assert.Empty(t, grill.Lines[0].User)
	assert.True(t, dec("23.96").Equal(grill.Totals.Total), grill.Totals.Total.String())

	pizza := summary.Groups[1]
	assert.Equal(t, "Pizza Corner", pizza.Key)
	assert.Equal(t, 3, pizza.Totals.Quantity)
	assert.True(t, dec("21.00").Equal(pizza.Totals.Total))

	assert.Equal(t, 7, summary.GrandTotals.Quantity)
	assert.True(t, dec("44.96").Equal(summary.GrandTotals.Total), summary.GrandTotals.Total.String())
}

func TestBuildSummary_ByUser(t *testing.T) {
	orders, names := summaryOrders()

	summary := service.BuildSummary(orders, names, service.SummaryByUser)

	require.Len(t, summary.Groups, 2)
	assert.Equal(t, "alice", summary.Groups[0].Key)
	assert.True(t, dec("19.99").Equal(summary.Groups[0].Totals.Total))
	assert.Equal(t, "bob", summary.Groups[1].Key)
	assert.True(t, dec("24.97").Equal(summary.Groups[1].Totals.Total))
	assert.True(t, dec("44.96").Equal(summary.GrandTotals.Total))
}

func TestBuildSummary_ByBothNestsUsers(t *testing.T) {
	orders, names := summaryOrders()

	summary := service.BuildSummary(orders, names, service.SummaryByBoth)

	require.Len(t, summary.Groups, 2)
	pizza := summary.Groups[1]
	require.Len(t, pizza.Subgroups, 2)
	assert.Equal(t, "alice", pizza.Subgroups[0].Key)
	assert.Equal(t, 2, pizza.Subgroups[0].Totals.Quantity)
	assert.Equal(t, "bob", pizza.Subgroups[1].Key)
	assert.Equal(t, 3, pizza.Totals.Quantity)
	assert.Empty(t, pizza.Lines)
}

func TestBuildSummary_SameUsernameStaysSeparate(t *testing.T) {
	pizzeria := &domain.Restaurant{ID: uuid.New(), Name: "Pizza Corner"}
	margherita := &domain.MenuItem{ID: uuid.New(), Restaurant: pizzeria, Name: "Margherita", Price: dec("7.00")}
	first, second := uuid.New(), uuid.New()
	orders := []*domain.Order{
		{ID: uuid.New(), UserID: first, FinishedOrdering: true, Items: []domain.OrderItem{{MenuItem: margherita, Quantity: 1}}},
		{ID: uuid.New(), UserID: second, FinishedOrdering: true, Items: []domain.OrderItem{{MenuItem: margherita, Quantity: 2}}},
	}
	names := map[uuid.UUID]string{first: "sam", second: "sam"}

	summary := service.BuildSummary(orders, names, service.SummaryByUser)
	require.Len(t, summary.Groups, 2)
	ids := []string{summary.Groups[0].ID, summary.Groups[1].ID}
	assert.ElementsMatch(t, []string{first.String(), second.String()}, ids)
	for _, group := range summary.Groups {
		assert.Equal(t, "sam", group.Key)
		require.Len(t, group.Lines, 1)
		assert.Equal(t, group.ID, group.Lines[0].UserID)
	}
	assert.Equal(t, 3, summary.GrandTotals.Quantity)

	both := service.BuildSummary(orders, names, service.SummaryByBoth)
	require.Len(t, both.Groups, 1)
	assert.Len(t, both.Groups[0].Subgroups, 2)
}

func TestBuildSummary_Empty(t *testing.T) {
	summary := service.BuildSummary(nil, nil, service.SummaryByRestaurant)

	assert.Empty(t, summary.Groups)
	assert.Equal(t, 0, summary.GrandTotals.Quantity)
	assert.True(t, summary.GrandTotals.Total.IsZero())
}

func TestSummarize_OnlyFinishedOrders(t *testing.T) {
	f := newFixture(t)
	svc := f.orderService()
	ctx := context.Background()

	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	group := f.group(t, alice, 1)
	_, err := f.groups.AddMember(ctx, group.ID, bob.ID)
	require.NoError(t, err)
	room := f.room(t, group)
	pizza := f.menuItem(t, "Pizza Corner", "Margherita", "7.00")

	for _, u := range []*domain.User{alice, bob} {
		outcome, err := svc.GetOrCreateOpenOrder(ctx, u.ID, room.ID)
		require.NoError(t, err)
		_, err = svc.AddItem(ctx, u.ID, outcome.Order.ID, pizza.ID, 1)
		require.NoError(t, err)
		if u == alice {
			_, err = svc.Finish(ctx, u.ID, outcome.Order.ID)
			require.NoError(t, err)
		}
	}

	summary, err := svc.Summarize(ctx, room.ID, service.SummaryByUser)
	require.NoError(t, err)
	require.Len(t, summary.Groups, 1)
	assert.Equal(t, "alice", summary.Groups[0].Key)
	assert.True(t, dec("7.00").Equal(summary.GrandTotals.Total))

	orders, err := svc.MembersOrders(ctx, room.ID)
	require.NoError(t, err)
	assert.Len(t, orders, 1)
}

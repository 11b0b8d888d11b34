package repository_test

import (
	"context"
	"testing"
	"time"

	"marketplace/internal/domain/model"
	"marketplace/internal/infra/db/dbtest"
	infraRepo "marketplace/internal/infra/repository"
	repo "marketplace/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

func newOrder(userID int64, status model.OrderStatus, at time.Time) model.Order {
	return model.Order{
		UserID:          userID,
		Status:          status,
		ShippingAddress: "1-2-3 Shibuya, Tokyo",
		TotalAmount:     decimal.Zero,
		CreatedAt:       at,
		UpdatedAt:       at,
	}
}

func TestOrderGorm_CreateFindUpdateTotal(t *testing.T) {
	gdb := dbtest.Open(t)
	r := infraRepo.NewOrderGormRepository(gdb)
	ctx := context.Background()

	id, err := r.Create(ctx, newOrder(1, model.OrderStatusPending, base))
	require.NoError(t, err)
	require.NotZero(t, id)

	require.NoError(t, r.UpdateTotal(ctx, id, decimal.RequireFromString("20.50")))
	assert.ErrorIs(t, r.UpdateTotal(ctx, id+1, decimal.Zero), repo.ErrNotFound)

	o, err := r.FindByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(1), o.UserID)
	assert.True(t, o.TotalAmount.Equal(decimal.RequireFromString("20.50")), o.TotalAmount.String())

	_, err = r.FindByID(ctx, id+1)
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

// 読んだstatusのときだけ更新できる
func TestOrderGorm_UpdateStatusIf(t *testing.T) {
	gdb := dbtest.Open(t)
	r := infraRepo.NewOrderGormRepository(gdb)
	ctx := context.Background()

	id, err := r.Create(ctx, newOrder(1, model.OrderStatusPending, base))
	require.NoError(t, err)

	ok, err := r.UpdateStatusIf(ctx, id, model.OrderStatusPending, model.OrderStatusCancelled)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.UpdateStatusIf(ctx, id, model.OrderStatusPending, model.OrderStatusCancelled)
	require.NoError(t, err)
	assert.False(t, ok)

	o, err := r.FindByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusCancelled, o.Status)
}

func TestOrderGorm_IdempotencyKey(t *testing.T) {
	gdb := dbtest.Open(t)
	r := infraRepo.NewOrderGormRepository(gdb)
	ctx := context.Background()

	key := "k-1"
	o := newOrder(1, model.OrderStatusPending, base)
	o.IdempotencyKey = &key
	id, err := r.Create(ctx, o)
	require.NoError(t, err)

	//同じユーザー・同じキーは一意制約で弾く
	_, err = r.Create(ctx, o)
	assert.ErrorIs(t, err, repo.ErrDuplicate)

	//キーなしは何件でもよい
	_, err = r.Create(ctx, newOrder(1, model.OrderStatusPending, base))
	require.NoError(t, err)
	_, err = r.Create(ctx, newOrder(1, model.OrderStatusPending, base))
	require.NoError(t, err)

	got, found, err := r.FindByIdempotencyKey(ctx, 1, key)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, id, got.ID)

	_, found, err = r.FindByIdempotencyKey(ctx, 2, key)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestOrderGorm_List_FiltersAndOrder(t *testing.T) {
	gdb := dbtest.Open(t)
	r := infraRepo.NewOrderGormRepository(gdb)
	ctx := context.Background()

	a, _ := r.Create(ctx, newOrder(1, model.OrderStatusPending, base))
	b, _ := r.Create(ctx, newOrder(2, model.OrderStatusShipped, base.Add(time.Hour)))
	c, _ := r.Create(ctx, newOrder(1, model.OrderStatusShipped, base.Add(2*time.Hour)))

	all, total, err := r.List(ctx, repo.OrderListFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, all, 3)
	assert.Equal(t, []int64{c, b, a}, []int64{all[0].ID, all[1].ID, all[2].ID})

	uid := int64(1)
	mine, total, err := r.List(ctx, repo.OrderListFilter{UserID: &uid})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Equal(t, c, mine[0].ID)

	shipped := model.OrderStatusShipped
	list, total, err := r.List(ctx, repo.OrderListFilter{Status: &shipped, UserID: &uid})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, c, list[0].ID)

	from, to := base.Add(30*time.Minute), base.Add(90*time.Minute)
	list, _, err = r.List(ctx, repo.OrderListFilter{From: &from, To: &to})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, b, list[0].ID)

	page, total, err := r.List(ctx, repo.OrderListFilter{Page: 2, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, page, 1)
	assert.Equal(t, a, page[0].ID)
}

func TestOrderItemGorm_BulkAndLookups(t *testing.T) {
	gdb := dbtest.Open(t)
	orders := infraRepo.NewOrderGormRepository(gdb)
	r := infraRepo.NewOrderItemGormRepository(gdb)
	ctx := context.Background()

	pa := seedProduct(t, gdb, "A", "10.00", 5, model.ProductStatusApproved)
	pb := seedProduct(t, gdb, "B", "0.99", 5, model.ProductStatusApproved)
	pc := seedProduct(t, gdb, "C", "1.00", 5, model.ProductStatusApproved)

	o1, _ := orders.Create(ctx, newOrder(1, model.OrderStatusPending, base))
	o2, _ := orders.Create(ctx, newOrder(1, model.OrderStatusPending, base))

	require.NoError(t, r.CreateBulk(ctx, o1, []model.OrderItem{
		{ProductID: pa.ID, ProductTitle: "A", Quantity: 2, UnitPriceSnapshot: decimal.RequireFromString("10.00")},
		{ProductID: pb.ID, ProductTitle: "B", Quantity: 1, UnitPriceSnapshot: decimal.RequireFromString("0.99")},
	}))
	require.NoError(t, r.CreateBulk(ctx, o2, []model.OrderItem{
		{ProductID: pa.ID, ProductTitle: "A", Quantity: 1, UnitPriceSnapshot: decimal.RequireFromString("10.00")},
	}))
	require.NoError(t, r.CreateBulk(ctx, o2, nil))

	items, err := r.ListByOrderID(ctx, o1)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, o1, items[0].OrderID)
	assert.True(t, model.SumOrderItems(items).Equal(decimal.RequireFromString("20.99")))

	byOrder, err := r.ListByOrderIDs(ctx, []int64{o1, o2, 999})
	require.NoError(t, err)
	assert.Len(t, byOrder[o1], 2)
	assert.Len(t, byOrder[o2], 1)
	assert.Empty(t, byOrder[999])

	empty, err := r.ListByOrderIDs(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)

	used, err := r.ExistsForProduct(ctx, pb.ID)
	require.NoError(t, err)
	assert.True(t, used)
	used, err = r.ExistsForProduct(ctx, pc.ID)
	require.NoError(t, err)
	assert.False(t, used)
}

// 存在しない商品を参照する明細は外部キーで弾かれる
func TestOrderItemGorm_RequiresExistingProduct(t *testing.T) {
	gdb := dbtest.Open(t)
	orders := infraRepo.NewOrderGormRepository(gdb)
	r := infraRepo.NewOrderItemGormRepository(gdb)
	ctx := context.Background()

	o, err := orders.Create(ctx, newOrder(1, model.OrderStatusPending, base))
	require.NoError(t, err)

	err = r.CreateBulk(ctx, o, []model.OrderItem{
		{ProductID: 999, ProductTitle: "ghost", Quantity: 1, UnitPriceSnapshot: decimal.RequireFromString("1.00")},
	})
	assert.Error(t, err)
}

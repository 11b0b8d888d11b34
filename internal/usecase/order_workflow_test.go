package usecase_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"marketplace/internal/domain/model"
	"marketplace/internal/domain/policy"
	"marketplace/internal/infra/cache"
	"marketplace/internal/infra/db/dbtest"
	infraRepo "marketplace/internal/infra/repository"
	"marketplace/internal/usecase"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// SQLiteで実際のrepositoryとtxを通して、注文確定からキャンセルまでを確認する

type capturedEvent struct {
	key     string
	payload usecase.OrderEvent
}

type capturingPublisher struct {
	mu     sync.Mutex
	events []capturedEvent
}

func (p *capturingPublisher) Publish(ctx context.Context, key string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	ev, _ := payload.(usecase.OrderEvent)
	p.events = append(p.events, capturedEvent{key: key, payload: ev})
	return nil
}

func (p *capturingPublisher) keys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.key)
	}
	return out
}

type workflow struct {
	db     *gorm.DB
	cart   *usecase.CartUsecase
	orders *usecase.OrderUsecase
	admin  *usecase.AdminOrderUsecase
	pub    *capturingPublisher
}

func newWorkflow(t *testing.T) *workflow {
	t.Helper()

	gdb := dbtest.Open(t)
	tx := infraRepo.NewTxManagerGorm(gdb)
	products := infraRepo.NewProductGormRepository(gdb)
	carts := infraRepo.NewCartGormRepository(gdb)
	orders := infraRepo.NewOrderGormRepository(gdb)
	orderItems := infraRepo.NewOrderItemGormRepository(gdb)
	pub := &capturingPublisher{}
	clock := fixedClock{t: testNow}

	return &workflow{
		db:   gdb,
		cart: usecase.NewCartUsecase(carts, carts, products),
		orders: usecase.NewOrderUsecase(usecase.OrderDeps{
			Tx:         tx,
			Orders:     orders,
			OrderItems: orderItems,
			Carts:      carts,
			CartItems:  carts,
			Products:   products,
			Cache:      cache.Nop{},
			Events:     pub,
			Log:        discardLogger(),
			Clock:      clock,
		}),
		admin: usecase.NewAdminOrderUsecase(tx, orders, orderItems, cache.Nop{}, pub, discardLogger(), clock),
		pub:   pub,
	}
}

func (w *workflow) product(t *testing.T, title string, price string, stock int64) int64 {
	t.Helper()
	p := model.Product{
		Title:       title,
		Description: title,
		Price:       decimal.RequireFromString(price),
		Stock:       stock,
		Status:      model.ProductStatusApproved,
		CategoryID:  1,
	}
	require.NoError(t, w.db.Create(&p).Error)
	return p.ID
}

func (w *workflow) stock(t *testing.T, productID int64) int64 {
	t.Helper()
	var p model.Product
	require.NoError(t, w.db.First(&p, productID).Error)
	return p.Stock
}

func (w *workflow) orderCount(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, w.db.Model(&model.Order{}).Count(&n).Error)
	return n
}

// 在庫チェックを通さずに明細を入れる（在庫0の商品がカートに残っている状態を作る）
func (w *workflow) forceCartItem(t *testing.T, userID int64, productID int64, qty int64) {
	t.Helper()
	cart := model.Cart{UserID: userID}
	require.NoError(t, w.db.Where(model.Cart{UserID: userID}).FirstOrCreate(&cart).Error)
	require.NoError(t, w.db.Create(&model.CartItem{CartID: cart.ID, ProductID: productID, Quantity: qty}).Error)
}

func shopper(id int64) policy.Actor {
	return policy.Actor{UserID: id, Role: model.RoleUser}
}

const address = "1-2-3 Shibuya, Tokyo 150-0002"

func TestWorkflow_PlaceOrder_Scenario(t *testing.T) {
	w := newWorkflow(t)
	ctx := context.Background()
	buyer := shopper(1)

	a := w.product(t, "Product A", "10.00", 5)
	_, err := w.cart.AddToCart(ctx, buyer, usecase.AddCartInput{ProductID: a, Quantity: 2})
	require.NoError(t, err)

	checkout, err := w.orders.Checkout(ctx, buyer)
	require.NoError(t, err)
	assert.True(t, checkout.Total.Equal(decimal.RequireFromString("20.00")))

	out, err := w.orders.PlaceOrder(ctx, buyer, usecase.PlaceOrderInput{ShippingAddress: "  " + address + "  "})
	require.NoError(t, err)

	assert.True(t, out.TotalAmount.Equal(decimal.RequireFromString("20.00")), out.TotalAmount.String())
	assert.Equal(t, model.OrderStatusPending, out.Status)
	assert.Equal(t, address, out.ShippingAddress)
	assert.Equal(t, int64(3), w.stock(t, a))

	//保存された合計と明細の合計が一致する
	detail, err := w.orders.GetOrder(ctx, buyer, out.ID)
	require.NoError(t, err)
	sum := decimal.Zero
	for _, it := range detail.Items {
		sum = sum.Add(it.UnitPrice.Mul(decimal.NewFromInt(it.Quantity)))
	}
	assert.True(t, sum.Equal(detail.TotalAmount), "sum=%s total=%s", sum, detail.TotalAmount)

	//カートは空、カート自体は残る
	count, err := w.cart.Count(ctx, buyer)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
	var carts int64
	require.NoError(t, w.db.Model(&model.Cart{}).Where("user_id = ?", buyer.UserID).Count(&carts).Error)
	assert.Equal(t, int64(1), carts)

	assert.Equal(t, []string{usecase.EventOrderPlaced}, w.pub.keys())
}

// 確定後に価格が変わっても注文は変わらない
func TestWorkflow_PlaceOrder_PriceSnapshot(t *testing.T) {
	w := newWorkflow(t)
	ctx := context.Background()
	buyer := shopper(1)

	a := w.product(t, "Product A", "10.00", 5)
	_, err := w.cart.AddToCart(ctx, buyer, usecase.AddCartInput{ProductID: a, Quantity: 1})
	require.NoError(t, err)
	out, err := w.orders.PlaceOrder(ctx, buyer, usecase.PlaceOrderInput{ShippingAddress: address})
	require.NoError(t, err)

	require.NoError(t, w.db.Model(&model.Product{}).Where("id = ?", a).Update("price", decimal.RequireFromString("99.00")).Error)

	detail, err := w.orders.GetOrder(ctx, buyer, out.ID)
	require.NoError(t, err)
	assert.True(t, detail.TotalAmount.Equal(decimal.NewFromInt(10)))
	assert.True(t, detail.Items[0].UnitPrice.Equal(decimal.NewFromInt(10)))
}

func TestWorkflow_PlaceOrder_OutOfStockCreatesNothing(t *testing.T) {
	w := newWorkflow(t)
	ctx := context.Background()
	buyer := shopper(1)

	ok := w.product(t, "Product OK", "3.00", 10)
	b := w.product(t, "Product B", "5.00", 0)
	_, err := w.cart.AddToCart(ctx, buyer, usecase.AddCartInput{ProductID: ok, Quantity: 2})
	require.NoError(t, err)
	w.forceCartItem(t, buyer.UserID, b, 1)

	_, err = w.orders.Checkout(ctx, buyer)
	assertKind(t, err, usecase.KindUnavailable)

	_, err = w.orders.PlaceOrder(ctx, buyer, usecase.PlaceOrderInput{ShippingAddress: address})
	assertKind(t, err, usecase.KindUnavailable)
	assertErrContains(t, err, "Product B")

	assert.Equal(t, int64(0), w.orderCount(t))
	assert.Equal(t, int64(0), w.stock(t, b))
	//同じカートの他の商品も減っていない
	assert.Equal(t, int64(10), w.stock(t, ok))

	count, err := w.cart.Count(ctx, buyer)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
	assert.Empty(t, w.pub.keys())
}

func TestWorkflow_PlaceOrder_InsufficientStock(t *testing.T) {
	w := newWorkflow(t)
	ctx := context.Background()
	buyer := shopper(1)

	a := w.product(t, "Product A", "10.00", 1)
	w.forceCartItem(t, buyer.UserID, a, 2)

	_, err := w.orders.PlaceOrder(ctx, buyer, usecase.PlaceOrderInput{ShippingAddress: address})
	assertKind(t, err, usecase.KindUnavailable)
	assert.Equal(t, int64(0), w.orderCount(t))
	assert.Equal(t, int64(1), w.stock(t, a))
}

func TestWorkflow_PlaceOrder_EmptyCart(t *testing.T) {
	w := newWorkflow(t)
	ctx := context.Background()
	buyer := shopper(1)

	//カートがまだ無い
	_, err := w.orders.PlaceOrder(ctx, buyer, usecase.PlaceOrderInput{ShippingAddress: address})
	assertKind(t, err, usecase.KindValidation)
	assertErrContains(t, err, "cart empty")

	//カートはあるが空
	_, err = w.cart.GetCart(ctx, buyer)
	require.NoError(t, err)
	_, err = w.orders.PlaceOrder(ctx, buyer, usecase.PlaceOrderInput{ShippingAddress: address})
	assertErrContains(t, err, "cart empty")

	_, err = w.orders.Checkout(ctx, buyer)
	assertErrContains(t, err, "cart empty")

	assert.Equal(t, int64(0), w.orderCount(t))
}

func TestWorkflow_PlaceOrder_InvalidAddress(t *testing.T) {
	w := newWorkflow(t)
	ctx := context.Background()
	buyer := shopper(1)

	a := w.product(t, "Product A", "10.00", 5)
	_, err := w.cart.AddToCart(ctx, buyer, usecase.AddCartInput{ProductID: a, Quantity: 1})
	require.NoError(t, err)

	for _, addr := range []string{"", "   short   ", strings.Repeat("a", 501)} {
		_, err = w.orders.PlaceOrder(ctx, buyer, usecase.PlaceOrderInput{ShippingAddress: addr})
		assertErrContains(t, err, "invalid address")
	}
	assert.Equal(t, int64(5), w.stock(t, a))
}

func TestWorkflow_PlaceOrder_IdempotencyKey(t *testing.T) {
	w := newWorkflow(t)
	ctx := context.Background()
	buyer := shopper(1)

	a := w.product(t, "Product A", "10.00", 5)
	_, err := w.cart.AddToCart(ctx, buyer, usecase.AddCartInput{ProductID: a, Quantity: 2})
	require.NoError(t, err)

	first, err := w.orders.PlaceOrder(ctx, buyer, usecase.PlaceOrderInput{ShippingAddress: address, IdempotencyKey: "key-1"})
	require.NoError(t, err)
	again, err := w.orders.PlaceOrder(ctx, buyer, usecase.PlaceOrderInput{ShippingAddress: address, IdempotencyKey: "key-1"})
	require.NoError(t, err)

	assert.Equal(t, first.ID, again.ID)
	assert.Len(t, again.Items, 1)
	assert.Equal(t, int64(1), w.orderCount(t))
	assert.Equal(t, int64(3), w.stock(t, a))

	//別ユーザーの同じキーは別物
	other := shopper(2)
	_, err = w.cart.AddToCart(ctx, other, usecase.AddCartInput{ProductID: a, Quantity: 1})
	require.NoError(t, err)
	third, err := w.orders.PlaceOrder(ctx, other, usecase.PlaceOrderInput{ShippingAddress: address, IdempotencyKey: "key-1"})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, third.ID)
}

func TestWorkflow_Cancel_RestoresStockOnce(t *testing.T) {
	w := newWorkflow(t)
	ctx := context.Background()
	buyer := shopper(1)

	c := w.product(t, "Product C", "4.00", 10)
	_, err := w.cart.AddToCart(ctx, buyer, usecase.AddCartInput{ProductID: c, Quantity: 3})
	require.NoError(t, err)
	order, err := w.orders.PlaceOrder(ctx, buyer, usecase.PlaceOrderInput{ShippingAddress: address})
	require.NoError(t, err)
	require.Equal(t, int64(7), w.stock(t, c))

	out, err := w.orders.CancelOrder(ctx, buyer, order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusCancelled, out.Status)
	assert.Equal(t, int64(10), w.stock(t, c))

	//2回目は何もしない
	out, err = w.orders.CancelOrder(ctx, buyer, order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusCancelled, out.Status)
	assert.Equal(t, int64(10), w.stock(t, c))

	//管理者がCANCELLEDを指定しても同じ
	_, err = w.admin.UpdateStatus(ctx, adminActor, order.ID, usecase.AdminUpdateOrderStatusInput{Status: "CANCELLED"})
	require.NoError(t, err)
	assert.Equal(t, int64(10), w.stock(t, c))

	var logs []model.AuditLog
	require.NoError(t, w.db.Where("resource_id = ? AND resource_type = ?", order.ID, model.AuditResourceOrder).Find(&logs).Error)
	assert.Len(t, logs, 1)

	assert.Equal(t, []string{usecase.EventOrderPlaced, usecase.EventOrderCancelled}, w.pub.keys())
}

func TestWorkflow_Cancel_ConcurrentRestoresOnce(t *testing.T) {
	w := newWorkflow(t)
	ctx := context.Background()
	buyer := shopper(1)

	c := w.product(t, "Product C", "4.00", 10)
	_, err := w.cart.AddToCart(ctx, buyer, usecase.AddCartInput{ProductID: c, Quantity: 3})
	require.NoError(t, err)
	order, err := w.orders.PlaceOrder(ctx, buyer, usecase.PlaceOrderInput{ShippingAddress: address})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				_, err := w.orders.CancelOrder(ctx, buyer, order.ID)
				assert.NoError(t, err)
				return
			}
			_, err := w.admin.UpdateStatus(ctx, adminActor, order.ID, usecase.AdminUpdateOrderStatusInput{Status: "CANCELLED"})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(10), w.stock(t, c))
}

func TestWorkflow_AccessControl(t *testing.T) {
	w := newWorkflow(t)
	ctx := context.Background()
	owner := shopper(1)
	stranger := shopper(2)

	a := w.product(t, "Product A", "10.00", 5)
	_, err := w.cart.AddToCart(ctx, owner, usecase.AddCartInput{ProductID: a, Quantity: 1})
	require.NoError(t, err)
	order, err := w.orders.PlaceOrder(ctx, owner, usecase.PlaceOrderInput{ShippingAddress: address})
	require.NoError(t, err)

	//存在するが他人の注文は403、存在しない注文は404
	_, err = w.orders.GetOrder(ctx, stranger, order.ID)
	assertKind(t, err, usecase.KindForbidden)
	_, err = w.orders.CancelOrder(ctx, stranger, order.ID)
	assertKind(t, err, usecase.KindForbidden)
	_, err = w.orders.GetOrder(ctx, stranger, order.ID+100)
	assertKind(t, err, usecase.KindNotFound)
	_, err = w.orders.CancelOrder(ctx, stranger, order.ID+100)
	assertKind(t, err, usecase.KindNotFound)

	assert.Equal(t, int64(4), w.stock(t, a))

	//管理者は見られる
	_, err = w.orders.GetOrder(ctx, adminActor, order.ID)
	require.NoError(t, err)

	//一覧は自分の分だけ、管理者は全部
	mine, err := w.orders.ListOrders(ctx, stranger, usecase.ListOrdersInput{})
	require.NoError(t, err)
	assert.Empty(t, mine.Items)
	all, err := w.orders.ListOrders(ctx, adminActor, usecase.ListOrdersInput{})
	require.NoError(t, err)
	assert.Len(t, all.Items, 1)

	//一般ユーザーはステータスを変えられない
	_, err = w.admin.UpdateStatus(ctx, owner, order.ID, usecase.AdminUpdateOrderStatusInput{Status: "SHIPPED"})
	assertKind(t, err, usecase.KindForbidden)
}

// 本人はPENDINGのときだけキャンセルできる。以後は管理者だけ
func TestWorkflow_Cancel_OwnerOnlyWhilePending(t *testing.T) {
	w := newWorkflow(t)
	ctx := context.Background()
	owner := shopper(1)

	a := w.product(t, "Product A", "10.00", 5)
	_, err := w.cart.AddToCart(ctx, owner, usecase.AddCartInput{ProductID: a, Quantity: 2})
	require.NoError(t, err)
	order, err := w.orders.PlaceOrder(ctx, owner, usecase.PlaceOrderInput{ShippingAddress: address})
	require.NoError(t, err)

	_, err = w.admin.UpdateStatus(ctx, adminActor, order.ID, usecase.AdminUpdateOrderStatusInput{Status: "PROCESSING"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), w.stock(t, a))

	_, err = w.orders.CancelOrder(ctx, owner, order.ID)
	assertKind(t, err, usecase.KindUnavailable)
	assert.Equal(t, int64(3), w.stock(t, a))

	_, err = w.admin.UpdateStatus(ctx, adminActor, order.ID, usecase.AdminUpdateOrderStatusInput{Status: "SHIPPED"})
	require.NoError(t, err)
	out, err := w.orders.CancelOrder(ctx, adminActor, order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusCancelled, out.Status)
	assert.Equal(t, int64(5), w.stock(t, a))

	//CANCELLEDからは戻れない
	_, err = w.admin.UpdateStatus(ctx, adminActor, order.ID, usecase.AdminUpdateOrderStatusInput{Status: "PENDING"})
	assertKind(t, err, usecase.KindValidation)
}

// 同じ商品を同時に買っても在庫はマイナスにならない
func TestWorkflow_ConcurrentCheckoutNeverOversells(t *testing.T) {
	w := newWorkflow(t)
	ctx := context.Background()

	a := w.product(t, "Product A", "10.00", 5)
	const buyers = 6
	for i := 1; i <= buyers; i++ {
		_, err := w.cart.AddToCart(ctx, shopper(int64(i)), usecase.AddCartInput{ProductID: a, Quantity: 2})
		require.NoError(t, err)
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 1; i <= buyers; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			_, err := w.orders.PlaceOrder(ctx, shopper(id), usecase.PlaceOrderInput{ShippingAddress: address})
			if err == nil {
				mu.Lock()
				success++
				mu.Unlock()
				return
			}
			assert.True(t, usecase.IsKind(err, usecase.KindUnavailable), "unexpected err: %v", err)
		}(int64(i))
	}
	wg.Wait()

	assert.Equal(t, 2, success)
	assert.Equal(t, int64(1), w.stock(t, a))
	assert.Equal(t, int64(2), w.orderCount(t))
}

// place/cancelを繰り返しても在庫は0以上で、戻し過ぎない
func TestWorkflow_StockNeverNegative(t *testing.T) {
	w := newWorkflow(t)
	ctx := context.Background()
	buyer := shopper(1)

	a := w.product(t, "Product A", "1.00", 4)
	var placed []int64
	for i := 0; i < 6; i++ {
		_, err := w.cart.AddToCart(ctx, buyer, usecase.AddCartInput{ProductID: a, Quantity: 1})
		if err != nil {
			assertKind(t, err, usecase.KindUnavailable)
		} else {
			out, err := w.orders.PlaceOrder(ctx, buyer, usecase.PlaceOrderInput{ShippingAddress: address})
			require.NoError(t, err)
			placed = append(placed, out.ID)
		}
		require.GreaterOrEqual(t, w.stock(t, a), int64(0), fmt.Sprintf("round %d", i))
	}
	assert.Len(t, placed, 4)
	assert.Equal(t, int64(0), w.stock(t, a))

	for _, id := range placed {
		_, err := w.orders.CancelOrder(ctx, buyer, id)
		require.NoError(t, err)
		_, err = w.orders.CancelOrder(ctx, buyer, id)
		require.NoError(t, err)
	}
	assert.Equal(t, int64(4), w.stock(t, a))
}

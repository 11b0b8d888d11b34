package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"marketplace/internal/domain/model"
	"marketplace/internal/domain/policy"
	repo "marketplace/internal/repository"

	"github.com/shopspring/decimal"
)

const (
	minAddressLen = 10
	maxAddressLen = 500
	maxIdemKeyLen = 255
)

// 同じ冪等キーの注文が先に入っていた（txはrollbackさせて外で読み直す）
var errIdempotentReplay = errors.New("idempotent replay")

type OrderUsecase struct {
	tx         repo.TransactionManager
	orders     repo.OrderRepository
	orderItems repo.OrderItemRepository
	carts      repo.CartRepository
	cartItems  repo.CartItemRepository
	products   repo.ProductRepository
	lifecycle  *orderLifecycle
	effects    sideEffects
	clock      Clock
}

type OrderDeps struct {
	Tx         repo.TransactionManager
	Orders     repo.OrderRepository
	OrderItems repo.OrderItemRepository
	Carts      repo.CartRepository
	CartItems  repo.CartItemRepository
	Products   repo.ProductRepository
	Cache      ProductCache
	Events     EventPublisher
	Log        *slog.Logger
	Clock      Clock
}

func NewOrderUsecase(d OrderDeps) *OrderUsecase {
	effects := sideEffects{cache: d.Cache, events: d.Events, log: d.Log}
	return &OrderUsecase{
		tx:         d.Tx,
		orders:     d.Orders,
		orderItems: d.OrderItems,
		carts:      d.Carts,
		cartItems:  d.CartItems,
		products:   d.Products,
		lifecycle:  &orderLifecycle{tx: d.Tx, effects: effects, clock: d.Clock},
		effects:    effects,
		clock:      d.Clock,
	}
}

type OrderItemOutput struct {
	ProductID int64           `json:"product_id"`
	Title     string          `json:"title"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int64           `json:"quantity"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

type OrderOutput struct {
	ID              int64             `json:"id"`
	UserID          int64             `json:"user_id"`
	Status          model.OrderStatus `json:"status"`
	ShippingAddress string            `json:"shipping_address"`
	TotalAmount     decimal.Decimal   `json:"total_amount"`
	CreatedAt       time.Time         `json:"created_at"`
	Items           []OrderItemOutput `json:"items"`
}

type OrderListOutput struct {
	Items []OrderOutput `json:"items"`
	Total int64         `json:"total"`
	Page  int           `json:"page"`
	Limit int           `json:"limit"`
}

type CheckoutLine struct {
	ProductID int64           `json:"product_id"`
	Title     string          `json:"title"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int64           `json:"quantity"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

type CheckoutOutput struct {
	Lines []CheckoutLine  `json:"lines"`
	Total decimal.Decimal `json:"total"`
}

type PlaceOrderInput struct {
	ShippingAddress string
	// 任意。空なら冪等チェックしない
	IdempotencyKey string
}

type ListOrdersInput struct {
	Page   int
	Limit  int
	Status string
}

// カートの中身で注文できるかを確認して、現在価格での合計を返す
// 何も書き込まない
func (u *OrderUsecase) Checkout(ctx context.Context, actor policy.Actor) (CheckoutOutput, error) {
	if err := checkShopper(actor); err != nil {
		return CheckoutOutput{}, err
	}

	cart, err := u.carts.FindByUserID(ctx, actor.UserID)
	if errors.Is(err, repo.ErrNotFound) {
		return CheckoutOutput{}, validationError("cart empty")
	}
	if err != nil {
		return CheckoutOutput{}, internalError(err)
	}

	items, err := u.cartItems.ListByCartID(ctx, cart.ID)
	if err != nil {
		return CheckoutOutput{}, internalError(err)
	}
	lines, err := validateCart(ctx, u.products, items)
	if err != nil {
		return CheckoutOutput{}, err
	}

	out := CheckoutOutput{Lines: make([]CheckoutLine, 0, len(lines)), Total: decimal.Zero}
	for _, l := range lines {
		sub := l.product.Price.Mul(decimal.NewFromInt(l.item.Quantity))
		out.Lines = append(out.Lines, CheckoutLine{
			ProductID: l.product.ID,
			Title:     l.product.Title,
			UnitPrice: l.product.Price,
			Quantity:  l.item.Quantity,
			Subtotal:  sub,
		})
		out.Total = out.Total.Add(sub)
	}
	return out, nil
}

type cartLine struct {
	item    model.CartItem
	product model.Product
}

// 空のカート、存在しない・未承認・在庫不足の商品を弾く
// 最初に見つかった問題だけ返す（商品ID順）
func validateCart(ctx context.Context, products repo.ProductRepository, items []model.CartItem) ([]cartLine, error) {
	if len(items) == 0 {
		return nil, validationError("cart empty")
	}

	// 同じ商品を同じ順で更新してロック順をそろえる
	sorted := append([]model.CartItem(nil), items...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ProductID < sorted[j].ProductID })

	ids := make([]int64, 0, len(sorted))
	for _, it := range sorted {
		ids = append(ids, it.ProductID)
	}
	found, err := products.FindByIDs(ctx, ids)
	if err != nil {
		return nil, internalError(err)
	}

	lines := make([]cartLine, 0, len(sorted))
	for _, it := range sorted {
		p, ok := found[it.ProductID]
		if !ok {
			return nil, unavailableError(fmt.Sprintf("product %d is unavailable", it.ProductID))
		}
		if !p.CanFulfil(it.Quantity) {
			return nil, unavailableError(fmt.Sprintf("%s is unavailable", p.Title))
		}
		lines = append(lines, cartLine{item: it, product: p})
	}
	return lines, nil
}

// 住所は前後の空白を除いて10〜500文字
func normalizeAddress(s string) (string, bool) {
	s = strings.TrimSpace(s)
	n := utf8.RuneCountInString(s)
	return s, n >= minAddressLen && n <= maxAddressLen
}

// 注文確定。在庫の減算、明細のスナップショット、合計、カートのクリアを1つのtxで行う
func (u *OrderUsecase) PlaceOrder(ctx context.Context, actor policy.Actor, in PlaceOrderInput) (OrderOutput, error) {
	if err := checkShopper(actor); err != nil {
		return OrderOutput{}, err
	}
	address, ok := normalizeAddress(in.ShippingAddress)
	if !ok {
		return OrderOutput{}, validationError("invalid address")
	}
	key := strings.TrimSpace(in.IdempotencyKey)
	if len(key) > maxIdemKeyLen {
		return OrderOutput{}, validationError("invalid idempotency key")
	}

	// 同じキーなら同じ結果
	if key != "" {
		if out, found, err := u.findByIdempotencyKey(ctx, actor.UserID, key); err != nil || found {
			return out, err
		}
	}

	var (
		created    model.Order
		orderItems []model.OrderItem
	)
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		cart, err := r.Carts().FindByUserID(ctx, actor.UserID)
		if errors.Is(err, repo.ErrNotFound) {
			return validationError("cart empty")
		}
		if err != nil {
			return internalError(err)
		}

		cartItems, err := r.CartItems().ListByCartID(ctx, cart.ID)
		if err != nil {
			return internalError(err)
		}

		//確定直前にもう一度チェック（メッセージ用。保証は条件付きUPDATE）
		lines, err := validateCart(ctx, r.Products(), cartItems)
		if err != nil {
			return err
		}

		orderItems = make([]model.OrderItem, 0, len(lines))
		for _, l := range lines {
			ok, err := r.Inventory().DecreaseStockIfEnough(ctx, l.product.ID, l.item.Quantity)
			if err != nil {
				return internalError(err)
			}
			if !ok {
				return unavailableError(fmt.Sprintf("%s is unavailable", l.product.Title))
			}

			//スナップショット
			orderItems = append(orderItems, model.OrderItem{
				ProductID:         l.product.ID,
				ProductTitle:      l.product.Title,
				Quantity:          l.item.Quantity,
				UnitPriceSnapshot: l.product.Price,
			})
		}

		// 注文作成（合計は明細を入れてから）
		now := u.clock.Now()
		created = model.Order{
			UserID:          actor.UserID,
			Status:          model.OrderStatusPending,
			ShippingAddress: address,
			TotalAmount:     decimal.Zero,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if key != "" {
			created.IdempotencyKey = &key
		}
		orderID, err := r.Orders().Create(ctx, created)
		if errors.Is(err, repo.ErrDuplicate) {
			return errIdempotentReplay
		}
		if err != nil {
			return internalError(err)
		}
		created.ID = orderID

		if err := r.OrderItems().CreateBulk(ctx, orderID, orderItems); err != nil {
			return internalError(err)
		}

		created.TotalAmount = model.SumOrderItems(orderItems)
		if err := r.Orders().UpdateTotal(ctx, orderID, created.TotalAmount); err != nil {
			return internalError(err)
		}

		if err := r.Carts().Clear(ctx, cart.ID); err != nil {
			return internalError(err)
		}
		return nil
	})

	if errors.Is(err, errIdempotentReplay) {
		//同時に同じキーで確定された。先に入った方を返す
		out, found, ferr := u.findByIdempotencyKey(ctx, actor.UserID, key)
		if ferr != nil {
			return OrderOutput{}, ferr
		}
		if !found {
			return OrderOutput{}, conflictError("idempotency conflict")
		}
		return out, nil
	}
	if err != nil {
		return OrderOutput{}, err
	}

	ids := make([]int64, 0, len(orderItems))
	for _, it := range orderItems {
		ids = append(ids, it.ProductID)
	}
	u.effects.invalidate(ctx, ids...)
	u.effects.publish(ctx, EventOrderPlaced, newOrderEvent(created, orderItems, "", actor.UserID, u.clock.Now()))

	return toOrderOutput(created, orderItems), nil
}

func (u *OrderUsecase) findByIdempotencyKey(ctx context.Context, userID int64, key string) (OrderOutput, bool, error) {
	existing, found, err := u.orders.FindByIdempotencyKey(ctx, userID, key)
	if err != nil {
		return OrderOutput{}, false, internalError(err)
	}
	if !found {
		return OrderOutput{}, false, nil
	}
	items, err := u.orderItems.ListByOrderID(ctx, existing.ID)
	if err != nil {
		return OrderOutput{}, false, internalError(err)
	}
	return toOrderOutput(existing, items), true, nil
}

// 注文一覧（新しい順）。管理者は全員分、それ以外は自分の分
func (u *OrderUsecase) ListOrders(ctx context.Context, actor policy.Actor, in ListOrdersInput) (OrderListOutput, error) {
	if !actor.Valid() {
		return OrderListOutput{}, errUnauthorized
	}

	f := repo.OrderListFilter{Page: in.Page, Limit: in.Limit}
	if !actor.IsAdmin() {
		f.UserID = &actor.UserID
	}
	if strings.TrimSpace(in.Status) != "" {
		st, ok := model.ParseOrderStatus(in.Status)
		if !ok {
			return OrderListOutput{}, validationError("invalid status")
		}
		f.Status = &st
	}
	return listOrders(ctx, u.orders, u.orderItems, f)
}

func listOrders(ctx context.Context, orders repo.OrderRepository, orderItems repo.OrderItemRepository, f repo.OrderListFilter) (OrderListOutput, error) {
	if f.Page == 0 {
		f.Page = 1
	}
	if f.Limit == 0 {
		f.Limit = 20
	}
	if f.Page < 1 {
		return OrderListOutput{}, validationError("invalid page")
	}
	if f.Limit < 1 || f.Limit > 100 {
		return OrderListOutput{}, validationError("invalid limit")
	}

	list, total, err := orders.List(ctx, f)
	if err != nil {
		return OrderListOutput{}, internalError(err)
	}

	ids := make([]int64, 0, len(list))
	for _, o := range list {
		ids = append(ids, o.ID)
	}
	itemsByOrder, err := orderItems.ListByOrderIDs(ctx, ids)
	if err != nil {
		return OrderListOutput{}, internalError(err)
	}

	out := OrderListOutput{Items: make([]OrderOutput, 0, len(list)), Total: total, Page: f.Page, Limit: f.Limit}
	for _, o := range list {
		out.Items = append(out.Items, toOrderOutput(o, itemsByOrder[o.ID]))
	}
	return out, nil
}

// 注文詳細。存在しなければ404、他人の注文なら403
func (u *OrderUsecase) GetOrder(ctx context.Context, actor policy.Actor, orderID int64) (OrderOutput, error) {
	if !actor.Valid() {
		return OrderOutput{}, errUnauthorized
	}
	if orderID <= 0 {
		return OrderOutput{}, validationError("invalid id")
	}

	o, err := u.orders.FindByID(ctx, orderID)
	if errors.Is(err, repo.ErrNotFound) {
		return OrderOutput{}, errNotFound
	}
	if err != nil {
		return OrderOutput{}, internalError(err)
	}
	if d := policy.CanViewOrder(actor, o); !d.Allowed {
		return OrderOutput{}, errForbidden
	}

	items, err := u.orderItems.ListByOrderID(ctx, orderID)
	if err != nil {
		return OrderOutput{}, internalError(err)
	}
	return toOrderOutput(o, items), nil
}

// キャンセル。本人はPENDINGのときだけ、管理者はいつでも
// すでにCANCELLEDなら何もしない（在庫も戻さない）
func (u *OrderUsecase) CancelOrder(ctx context.Context, actor policy.Actor, orderID int64) (OrderOutput, error) {
	if !actor.Valid() {
		return OrderOutput{}, errUnauthorized
	}
	if orderID <= 0 {
		return OrderOutput{}, validationError("invalid id")
	}

	return u.lifecycle.changeStatus(ctx, actor, orderID, model.OrderStatusCancelled, func(o model.Order) error {
		d := policy.CanCancelOrder(actor, o)
		switch {
		case d.Allowed:
			return nil
		case d.Reason == policy.ReasonNotPending:
			return unavailableError(d.Reason)
		default:
			return errForbidden
		}
	})
}

func toOrderOutput(o model.Order, items []model.OrderItem) OrderOutput {
	outItems := make([]OrderItemOutput, 0, len(items))
	for _, it := range items {
		outItems = append(outItems, OrderItemOutput{
			ProductID: it.ProductID,
			Title:     it.ProductTitle,
			UnitPrice: it.UnitPriceSnapshot,
			Quantity:  it.Quantity,
			Subtotal:  it.Subtotal(),
		})
	}

	return OrderOutput{
		ID:              o.ID,
		UserID:          o.UserID,
		Status:          o.Status,
		ShippingAddress: o.ShippingAddress,
		TotalAmount:     o.TotalAmount,
		CreatedAt:       o.CreatedAt,
		Items:           outItems,
	}
}

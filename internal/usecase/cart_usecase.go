package usecase

import (
	"context"
	"errors"
	"fmt"

	"marketplace/internal/domain/model"
	"marketplace/internal/domain/policy"
	repo "marketplace/internal/repository"

	"github.com/shopspring/decimal"
)

// CartUsecase は /cart の業務ロジックです。
type CartUsecase struct {
	cartRepo     repo.CartRepository
	cartItemRepo repo.CartItemRepository
	productRepo  repo.ProductRepository
}

func NewCartUsecase(
	cartRepo repo.CartRepository,
	cartItemRepo repo.CartItemRepository,
	productRepo repo.ProductRepository,
) *CartUsecase {
	return &CartUsecase{
		cartRepo:     cartRepo,
		cartItemRepo: cartItemRepo,
		productRepo:  productRepo,
	}
}

// price は商品の現在価格（注文確定時にスナップショットされる）
type CartItemResponse struct {
	ID        int64           `json:"id"`
	ProductID int64           `json:"product_id"`
	Title     string          `json:"title"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int64           `json:"quantity"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	// 今この数量で買えるか
	Available bool `json:"available"`
}

type CartResponse struct {
	Items []CartItemResponse `json:"items"`
	Total decimal.Decimal    `json:"total"`
	Count int64              `json:"count"`
}

type AddCartInput struct {
	ProductID int64
	Quantity  int64
}

func checkShopper(a policy.Actor) error {
	if !a.Valid() {
		return errUnauthorized
	}
	if d := policy.CanShop(a); !d.Allowed {
		return errForbidden
	}
	return nil
}

// GetCart はカート取得（無ければ作って空を返す）。
func (u *CartUsecase) GetCart(ctx context.Context, actor policy.Actor) (CartResponse, error) {
	if err := checkShopper(actor); err != nil {
		return CartResponse{}, err
	}

	cart, err := u.cartRepo.GetOrCreateByUserID(ctx, actor.UserID)
	if err != nil {
		return CartResponse{}, internalError(err)
	}
	return u.buildCartResponse(ctx, cart.ID)
}

// AddToCart はカートに追加（同一商品は数量加算）。
func (u *CartUsecase) AddToCart(ctx context.Context, actor policy.Actor, in AddCartInput) (CartResponse, error) {
	if err := checkShopper(actor); err != nil {
		return CartResponse{}, err
	}
	if in.ProductID <= 0 {
		return CartResponse{}, validationError("invalid product_id")
	}
	if in.Quantity < 1 {
		return CartResponse{}, validationError("invalid quantity")
	}

	// 商品チェック（承認済みのみ）
	p, err := u.productRepo.FindByID(ctx, in.ProductID)
	if errors.Is(err, repo.ErrNotFound) {
		return CartResponse{}, errNotFound
	}
	if err != nil {
		return CartResponse{}, internalError(err)
	}
	if p.Status != model.ProductStatusApproved {
		return CartResponse{}, unavailableError(fmt.Sprintf("%s is not available", p.Title))
	}

	cart, err := u.cartRepo.GetOrCreateByUserID(ctx, actor.UserID)
	if err != nil {
		return CartResponse{}, internalError(err)
	}

	// 既存数量と合わせて在庫を超えないか
	var existingQty int64
	existing, err := u.cartItemRepo.FindByCartAndProduct(ctx, cart.ID, in.ProductID)
	switch {
	case err == nil:
		existingQty = existing.Quantity
	case !errors.Is(err, repo.ErrNotFound):
		return CartResponse{}, internalError(err)
	}
	if !p.CanFulfil(existingQty + in.Quantity) {
		return CartResponse{}, unavailableError(fmt.Sprintf("not enough stock for %s", p.Title))
	}

	if err := u.cartItemRepo.UpsertByCartAndProduct(ctx, cart.ID, in.ProductID, in.Quantity); err != nil {
		return CartResponse{}, internalError(err)
	}
	return u.buildCartResponse(ctx, cart.ID)
}

// 数量変更。0以下なら明細を消す
func (u *CartUsecase) UpdateCartItem(ctx context.Context, actor policy.Actor, cartItemID int64, quantity int64) (CartResponse, error) {
	if err := checkShopper(actor); err != nil {
		return CartResponse{}, err
	}
	if cartItemID <= 0 {
		return CartResponse{}, validationError("invalid id")
	}

	// 他人の明細はnot found
	item, err := u.cartItemRepo.FindOwnedByUser(ctx, cartItemID, actor.UserID)
	if errors.Is(err, repo.ErrNotFound) {
		return CartResponse{}, errNotFound
	}
	if err != nil {
		return CartResponse{}, internalError(err)
	}

	if quantity <= 0 {
		if err := u.cartItemRepo.DeleteByID(ctx, item.ID); err != nil && !errors.Is(err, repo.ErrNotFound) {
			return CartResponse{}, internalError(err)
		}
		return u.buildCartResponse(ctx, item.CartID)
	}

	p, err := u.productRepo.FindByID(ctx, item.ProductID)
	if errors.Is(err, repo.ErrNotFound) {
		return CartResponse{}, errNotFound
	}
	if err != nil {
		return CartResponse{}, internalError(err)
	}
	if !p.CanFulfil(quantity) {
		return CartResponse{}, unavailableError(fmt.Sprintf("not enough stock for %s", p.Title))
	}

	if err := u.cartItemRepo.UpdateQuantity(ctx, item.ID, quantity); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return CartResponse{}, errNotFound
		}
		return CartResponse{}, internalError(err)
	}
	return u.buildCartResponse(ctx, item.CartID)
}

func (u *CartUsecase) DeleteCartItem(ctx context.Context, actor policy.Actor, cartItemID int64) (CartResponse, error) {
	return u.UpdateCartItem(ctx, actor, cartItemID, 0)
}

// 明細を全部消す（カートは残す）
func (u *CartUsecase) ClearCart(ctx context.Context, actor policy.Actor) error {
	if err := checkShopper(actor); err != nil {
		return err
	}

	cart, err := u.cartRepo.FindByUserID(ctx, actor.UserID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil
	}
	if err != nil {
		return internalError(err)
	}
	if err := u.cartRepo.Clear(ctx, cart.ID); err != nil {
		return internalError(err)
	}
	return nil
}

// ヘッダーのバッジ用。数量の合計
func (u *CartUsecase) Count(ctx context.Context, actor policy.Actor) (int64, error) {
	if err := checkShopper(actor); err != nil {
		return 0, err
	}
	n, err := u.cartItemRepo.SumQuantityByUserID(ctx, actor.UserID)
	if err != nil {
		return 0, internalError(err)
	}
	return n, nil
}

func (u *CartUsecase) buildCartResponse(ctx context.Context, cartID int64) (CartResponse, error) {
	items, err := u.cartItemRepo.ListByCartID(ctx, cartID)
	if err != nil {
		return CartResponse{}, internalError(err)
	}

	ids := make([]int64, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ProductID)
	}
	products, err := u.productRepo.FindByIDs(ctx, ids)
	if err != nil {
		return CartResponse{}, internalError(err)
	}

	res := CartResponse{Items: make([]CartItemResponse, 0, len(items)), Total: decimal.Zero}
	for _, it := range items {
		p, ok := products[it.ProductID]
		if !ok {
			continue
		}
		sub := p.Price.Mul(decimal.NewFromInt(it.Quantity))
		res.Items = append(res.Items, CartItemResponse{
			ID:        it.ID,
			ProductID: p.ID,
			Title:     p.Title,
			Price:     p.Price,
			Quantity:  it.Quantity,
			Subtotal:  sub,
			Available: p.CanFulfil(it.Quantity),
		})
		res.Total = res.Total.Add(sub)
		res.Count += it.Quantity
	}
	return res, nil
}

package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"marketplace/internal/domain/model"
	"marketplace/internal/domain/policy"
	repo "marketplace/internal/repository"

	"github.com/shopspring/decimal"
)

// /wishlist。カートと同じく利用者とコラボレーターだけ
type WishlistUsecase struct {
	wishlists repo.WishlistRepository
	products  repo.ProductRepository
	clock     Clock
}

func NewWishlistUsecase(wishlists repo.WishlistRepository, products repo.ProductRepository, clock Clock) *WishlistUsecase {
	return &WishlistUsecase{wishlists: wishlists, products: products, clock: clock}
}

type WishlistItemResponse struct {
	ID        int64           `json:"id"`
	ProductID int64           `json:"product_id"`
	Title     string          `json:"title"`
	Price     decimal.Decimal `json:"price"`
	// 今カートに入れられるか
	Available bool      `json:"available"`
	AddedAt   time.Time `json:"added_at"`
}

type WishlistResponse struct {
	Items []WishlistItemResponse `json:"items"`
	Count int64                  `json:"count"`
}

func (u *WishlistUsecase) GetWishlist(ctx context.Context, actor policy.Actor) (WishlistResponse, error) {
	if err := checkShopper(actor); err != nil {
		return WishlistResponse{}, err
	}

	w, err := u.wishlists.GetOrCreateByUserID(ctx, actor.UserID)
	if err != nil {
		return WishlistResponse{}, internalError(err)
	}
	return u.buildResponse(ctx, w.ID)
}

// 登録済みの商品をもう一度追加しても1行のまま
func (u *WishlistUsecase) AddToWishlist(ctx context.Context, actor policy.Actor, productID int64) (WishlistResponse, error) {
	if err := checkShopper(actor); err != nil {
		return WishlistResponse{}, err
	}
	if productID <= 0 {
		return WishlistResponse{}, validationError("invalid product_id")
	}

	p, err := u.products.FindByID(ctx, productID)
	if errors.Is(err, repo.ErrNotFound) {
		return WishlistResponse{}, errNotFound
	}
	if err != nil {
		return WishlistResponse{}, internalError(err)
	}
	if p.Status != model.ProductStatusApproved {
		return WishlistResponse{}, unavailableError(fmt.Sprintf("%s is not available", p.Title))
	}

	w, err := u.wishlists.GetOrCreateByUserID(ctx, actor.UserID)
	if err != nil {
		return WishlistResponse{}, internalError(err)
	}
	if _, err := u.wishlists.AddItem(ctx, w.ID, productID, u.clock.Now()); err != nil {
		return WishlistResponse{}, internalError(err)
	}
	return u.buildResponse(ctx, w.ID)
}

func (u *WishlistUsecase) RemoveFromWishlist(ctx context.Context, actor policy.Actor, itemID int64) (WishlistResponse, error) {
	if err := checkShopper(actor); err != nil {
		return WishlistResponse{}, err
	}
	if itemID <= 0 {
		return WishlistResponse{}, validationError("invalid id")
	}

	// 他人の明細はnot found
	item, err := u.wishlists.FindOwnedItem(ctx, itemID, actor.UserID)
	if errors.Is(err, repo.ErrNotFound) {
		return WishlistResponse{}, errNotFound
	}
	if err != nil {
		return WishlistResponse{}, internalError(err)
	}
	if err := u.wishlists.DeleteItem(ctx, item.ID); err != nil && !errors.Is(err, repo.ErrNotFound) {
		return WishlistResponse{}, internalError(err)
	}
	return u.buildResponse(ctx, item.WishlistID)
}

func (u *WishlistUsecase) ClearWishlist(ctx context.Context, actor policy.Actor) error {
	if err := checkShopper(actor); err != nil {
		return err
	}

	w, err := u.wishlists.FindByUserID(ctx, actor.UserID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil
	}
	if err != nil {
		return internalError(err)
	}
	if err := u.wishlists.Clear(ctx, w.ID); err != nil {
		return internalError(err)
	}
	return nil
}

func (u *WishlistUsecase) Count(ctx context.Context, actor policy.Actor) (int64, error) {
	if err := checkShopper(actor); err != nil {
		return 0, err
	}
	n, err := u.wishlists.CountByUserID(ctx, actor.UserID)
	if err != nil {
		return 0, internalError(err)
	}
	return n, nil
}

// 非公開になった商品も残す（availableがfalse）
func (u *WishlistUsecase) buildResponse(ctx context.Context, wishlistID int64) (WishlistResponse, error) {
	items, err := u.wishlists.ListItems(ctx, wishlistID)
	if err != nil {
		return WishlistResponse{}, internalError(err)
	}

	ids := make([]int64, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ProductID)
	}
	products, err := u.products.FindByIDs(ctx, ids)
	if err != nil {
		return WishlistResponse{}, internalError(err)
	}

	res := WishlistResponse{Items: make([]WishlistItemResponse, 0, len(items))}
	for _, it := range items {
		p, ok := products[it.ProductID]
		if !ok {
			continue
		}
		res.Items = append(res.Items, WishlistItemResponse{
			ID:        it.ID,
			ProductID: p.ID,
			Title:     p.Title,
			Price:     p.Price,
			Available: p.IsPurchasable(),
			AddedAt:   it.AddedAt,
		})
	}
	res.Count = int64(len(res.Items))
	return res, nil
}

package repository

import (
	"context"
	"time"

	"marketplace/internal/domain/model"
)

type WishlistRepository interface {
	//無ければ作る（1ユーザー1リスト）
	GetOrCreateByUserID(ctx context.Context, userID int64) (model.Wishlist, error)
	FindByUserID(ctx context.Context, userID int64) (model.Wishlist, error)
	//追加順
	ListItems(ctx context.Context, wishlistID int64) ([]model.WishlistItem, error)
	//登録済みなら何もしない。追加したらtrue
	AddItem(ctx context.Context, wishlistID int64, productID int64, at time.Time) (bool, error)
	//他人の明細はErrNotFound
	FindOwnedItem(ctx context.Context, itemID int64, userID int64) (model.WishlistItem, error)
	DeleteItem(ctx context.Context, itemID int64) error
	Clear(ctx context.Context, wishlistID int64) error
	CountByUserID(ctx context.Context, userID int64) (int64, error)
}

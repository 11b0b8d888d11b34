package repository

import (
	"context"

	"marketplace/internal/domain/model"
)

type CartItemRepository interface {
	ListByCartID(ctx context.Context, cartID int64) ([]model.CartItem, error)
	FindByCartAndProduct(ctx context.Context, cartID int64, productID int64) (model.CartItem, error)
	// 同一商品はプラス
	UpsertByCartAndProduct(ctx context.Context, cartID int64, productID int64, addQty int64) error
	UpdateQuantity(ctx context.Context, cartItemID int64, qty int64) error
	DeleteByID(ctx context.Context, cartItemID int64) error
	//他人の明細はErrNotFound
	FindOwnedByUser(ctx context.Context, cartItemID int64, userID int64) (model.CartItem, error)
	//数量の合計
	SumQuantityByUserID(ctx context.Context, userID int64) (int64, error)
}

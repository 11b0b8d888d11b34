package repository

import (
	"context"

	"marketplace/internal/domain/model"
)

type CartRepository interface {
	//無ければ作る（1ユーザー1カート）
	GetOrCreateByUserID(ctx context.Context, userID int64) (model.Cart, error)
	FindByUserID(ctx context.Context, userID int64) (model.Cart, error)
	//明細を全部消す（カート自体は残す）
	Clear(ctx context.Context, cartID int64) error
}

package repository

import (
	"context"

	"marketplace/internal/domain/model"
)

type ReviewRepository interface {
	//保存して商品の平均評価を計算し直す。同じ利用者の2件目はErrDuplicate
	Create(ctx context.Context, r model.Review) (model.Review, error)
	//新しい順
	ListByProductID(ctx context.Context, productID int64) ([]model.Review, error)
}

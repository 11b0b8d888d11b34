package repository

import (
	"context"
	"time"

	"marketplace/internal/domain/model"

	"github.com/shopspring/decimal"
)

// 注文一覧の絞り込み。UserIDがnilなら全員分（管理者）
type OrderListFilter struct {
	Page   int
	Limit  int
	Status *model.OrderStatus
	UserID *int64
	From   *time.Time
	To     *time.Time
}

type OrderRepository interface {
	FindByID(ctx context.Context, orderID int64) (model.Order, error)
	//新しい順
	List(ctx context.Context, f OrderListFilter) ([]model.Order, int64, error)
	Create(ctx context.Context, order model.Order) (int64, error)
	UpdateTotal(ctx context.Context, orderID int64, total decimal.Decimal) error

	//statusがfromのときだけtoに変える。変えられなかったらfalse
	UpdateStatusIf(ctx context.Context, orderID int64, from model.OrderStatus, to model.OrderStatus) (bool, error)

	//検索（同じキーなら同じ結果を返す）
	FindByIdempotencyKey(ctx context.Context, userID int64, key string) (model.Order, bool, error)
}

package usecase

import (
	"context"
	"log/slog"
	"time"

	"marketplace/internal/domain/model"
)

// 商品詳細のキャッシュ（Redis / なし）
type ProductCache interface {
	GetOrLoad(ctx context.Context, id int64, load func(ctx context.Context, id int64) (model.Product, error)) (model.Product, error)
	Invalidate(ctx context.Context, ids ...int64)
}

// 注文イベントの発行（RabbitMQ / なし）
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
}

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// キャッシュやイベントの失敗はリクエストを失敗させない。ログだけ残す
type sideEffects struct {
	cache  ProductCache
	events EventPublisher
	log    *slog.Logger
}

const publishTimeout = 3 * time.Second

func (s sideEffects) invalidate(ctx context.Context, ids ...int64) {
	if len(ids) == 0 {
		return
	}
	s.cache.Invalidate(context.WithoutCancel(ctx), ids...)
}

// コミット後に呼ぶ。クライアントが切断しても送れるようにキャンセルは引き継がない
func (s sideEffects) publish(ctx context.Context, routingKey string, payload any) {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := s.events.Publish(pctx, routingKey, payload); err != nil {
		s.log.ErrorContext(ctx, "publish order event failed", "routing_key", routingKey, "err", err)
	}
}

package usecase

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"marketplace/internal/domain/model"
	"marketplace/internal/domain/policy"
	repo "marketplace/internal/repository"
)

type AdminOrderUsecase struct {
	orders     repo.OrderRepository
	orderItems repo.OrderItemRepository
	lifecycle  *orderLifecycle
}

func NewAdminOrderUsecase(
	tx repo.TransactionManager,
	orders repo.OrderRepository,
	orderItems repo.OrderItemRepository,
	cache ProductCache,
	events EventPublisher,
	log *slog.Logger,
	clock Clock,
) *AdminOrderUsecase {
	return &AdminOrderUsecase{
		orders:     orders,
		orderItems: orderItems,
		lifecycle: &orderLifecycle{
			tx:      tx,
			effects: sideEffects{cache: cache, events: events, log: log},
			clock:   clock,
		},
	}
}

// GET /admin/orders のクエリ。日時はRFC3339
type AdminListOrdersInput struct {
	Page   int
	Limit  int
	Status string
	UserID int64
	From   string
	To     string
}

type AdminUpdateOrderStatusInput struct {
	Status string
}

// 注文一覧（全ユーザー、新しい順）
func (u *AdminOrderUsecase) List(ctx context.Context, actor policy.Actor, in AdminListOrdersInput) (OrderListOutput, error) {
	if !actor.Valid() {
		return OrderListOutput{}, errUnauthorized
	}
	if d := policy.CanUpdateOrderStatus(actor); !d.Allowed {
		return OrderListOutput{}, errForbidden
	}

	f := repo.OrderListFilter{Page: in.Page, Limit: in.Limit}
	if strings.TrimSpace(in.Status) != "" {
		st, ok := model.ParseOrderStatus(in.Status)
		if !ok {
			return OrderListOutput{}, validationError("invalid status")
		}
		f.Status = &st
	}
	if in.UserID < 0 {
		return OrderListOutput{}, validationError("invalid user_id")
	}
	if in.UserID > 0 {
		f.UserID = &in.UserID
	}

	var ok bool
	if in.From != "" {
		if f.From, ok = parseDateTimeRFC3339(in.From); !ok {
			return OrderListOutput{}, validationError("invalid from")
		}
	}
	if in.To != "" {
		if f.To, ok = parseDateTimeRFC3339(in.To); !ok {
			return OrderListOutput{}, validationError("invalid to")
		}
	}
	if f.From != nil && f.To != nil && f.From.After(*f.To) {
		return OrderListOutput{}, validationError("from must be <= to")
	}

	return listOrders(ctx, u.orders, u.orderItems, f)
}

// ステータス更新（CANCELLED なら在庫戻し）
func (u *AdminOrderUsecase) UpdateStatus(ctx context.Context, actor policy.Actor, orderID int64, in AdminUpdateOrderStatusInput) (OrderOutput, error) {
	if !actor.Valid() {
		return OrderOutput{}, errUnauthorized
	}
	if d := policy.CanUpdateOrderStatus(actor); !d.Allowed {
		return OrderOutput{}, errForbidden
	}
	if orderID <= 0 {
		return OrderOutput{}, validationError("invalid id")
	}

	to, ok := model.ParseOrderStatus(in.Status)
	if !ok {
		return OrderOutput{}, validationError("invalid status")
	}

	return u.lifecycle.changeStatus(ctx, actor, orderID, to, func(model.Order) error { return nil })
}

// 期間パラメータ
func parseDateTimeRFC3339(s string) (*time.Time, bool) {
	if strings.TrimSpace(s) == "" {
		return nil, false
	}
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(s))
	if err != nil {
		return nil, false
	}
	return &t, true
}

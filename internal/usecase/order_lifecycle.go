package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"marketplace/internal/domain/model"
	"marketplace/internal/domain/policy"
	repo "marketplace/internal/repository"
)

// 注文ステータスの変更（本人キャンセルと管理者の更新で共通）
type orderLifecycle struct {
	tx      repo.TransactionManager
	effects sideEffects
	clock   Clock
}

// CANCELLEDに入るときだけ在庫を戻す
// ステータスは「読んだ値のときだけ更新」なので、同時にキャンセルされても在庫を戻すのは勝った1回だけ
func (l *orderLifecycle) changeStatus(
	ctx context.Context,
	actor policy.Actor,
	orderID int64,
	to model.OrderStatus,
	authorize func(o model.Order) error,
) (OrderOutput, error) {
	var (
		order   model.Order
		items   []model.OrderItem
		from    model.OrderStatus
		changed bool
	)

	err := l.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByID(ctx, orderID)
		if errors.Is(err, repo.ErrNotFound) {
			return errNotFound
		}
		if err != nil {
			return internalError(err)
		}
		if err := authorize(o); err != nil {
			return err
		}

		items, err = r.OrderItems().ListByOrderID(ctx, orderID)
		if err != nil {
			return internalError(err)
		}

		order, from = o, o.Status
		// すでに同じなら何もしない
		if o.Status == to {
			return nil
		}
		if !o.Status.CanTransitionTo(to) {
			return validationError(fmt.Sprintf("cannot change status from %s to %s", o.Status, to))
		}

		ok, err := r.Orders().UpdateStatusIf(ctx, orderID, o.Status, to)
		if err != nil {
			return internalError(err)
		}
		if !ok {
			//読んだ後に他で変わった
			latest, err := r.Orders().FindByID(ctx, orderID)
			if err != nil {
				return internalError(err)
			}
			if latest.Status == to {
				order = latest
				return nil
			}
			return conflictError("order was updated by another request")
		}

		if to == model.OrderStatusCancelled {
			if err := restoreStock(ctx, r.Inventory(), items); err != nil {
				return internalError(err)
			}
		}

		action := model.AuditActionUpdateOrderStatus
		if to == model.OrderStatusCancelled {
			action = model.AuditActionCancelOrder
		}
		if err := r.AuditLogs().Create(ctx, model.AuditLog{
			ActorUserID:  actor.UserID,
			Action:       action,
			ResourceType: model.AuditResourceOrder,
			ResourceID:   orderID,
			BeforeJSON:   `{"status":"` + string(from) + `"}`,
			AfterJSON:    `{"status":"` + string(to) + `"}`,
			CreatedAt:    l.clock.Now(),
		}); err != nil {
			return internalError(err)
		}

		order.Status = to
		changed = true
		return nil
	})
	if err != nil {
		return OrderOutput{}, err
	}

	if changed {
		if to == model.OrderStatusCancelled {
			ids := make([]int64, 0, len(items))
			for _, it := range items {
				ids = append(ids, it.ProductID)
			}
			l.effects.invalidate(ctx, ids...)
		}
		l.effects.publish(ctx, eventForStatus(to), newOrderEvent(order, items, from, actor.UserID, l.clock.Now()))
	}
	return toOrderOutput(order, items), nil
}

// 商品ID順に戻す（チェックアウトと同じロック順）
func restoreStock(ctx context.Context, inv repo.InventoryRepository, items []model.OrderItem) error {
	sorted := append([]model.OrderItem(nil), items...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ProductID < sorted[j].ProductID })

	for _, it := range sorted {
		err := inv.IncreaseStock(ctx, it.ProductID, it.Quantity)
		// 商品が消えていたら戻し先がない
		if errors.Is(err, repo.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
	}
	return nil
}

package usecase

import (
	"time"

	"marketplace/internal/domain/model"

	"github.com/shopspring/decimal"
)

const (
	EventOrderPlaced        = "order.placed"
	EventOrderCancelled     = "order.cancelled"
	EventOrderStatusChanged = "order.status_changed"
)

type OrderEventItem struct {
	ProductID int64           `json:"product_id"`
	Quantity  int64           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// order.* の本文
type OrderEvent struct {
	OrderID        int64             `json:"order_id"`
	UserID         int64             `json:"user_id"`
	Status         model.OrderStatus `json:"status"`
	PreviousStatus model.OrderStatus `json:"previous_status,omitempty"`
	TotalAmount    decimal.Decimal   `json:"total_amount"`
	Items          []OrderEventItem  `json:"items,omitempty"`
	ActorUserID    int64             `json:"actor_user_id"`
	OccurredAt     time.Time         `json:"occurred_at"`
}

func newOrderEvent(o model.Order, items []model.OrderItem, prev model.OrderStatus, actorID int64, at time.Time) OrderEvent {
	ev := OrderEvent{
		OrderID:        o.ID,
		UserID:         o.UserID,
		Status:         o.Status,
		PreviousStatus: prev,
		TotalAmount:    o.TotalAmount,
		ActorUserID:    actorID,
		OccurredAt:     at.UTC(),
	}
	for _, it := range items {
		ev.Items = append(ev.Items, OrderEventItem{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPriceSnapshot,
		})
	}
	return ev
}

func eventForStatus(to model.OrderStatus) string {
	if to == model.OrderStatusCancelled {
		return EventOrderCancelled
	}
	return EventOrderStatusChanged
}

package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "PENDING"
	OrderStatusProcessing OrderStatus = "PROCESSING"
	OrderStatusShipped    OrderStatus = "SHIPPED"
	OrderStatusDelivered  OrderStatus = "DELIVERED"
	OrderStatusCancelled  OrderStatus = "CANCELLED"
)

// 前進方向の順番。CANCELLEDは含めない
var orderStatusRank = map[OrderStatus]int{
	OrderStatusPending:    0,
	OrderStatusProcessing: 1,
	OrderStatusShipped:    2,
	OrderStatusDelivered:  3,
}

// 大文字小文字・前後空白を許して変換する
func ParseOrderStatus(s string) (OrderStatus, bool) {
	st := OrderStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", false
	}
	return st, true
}

func (s OrderStatus) Valid() bool {
	if s == OrderStatusCancelled {
		return true
	}
	_, ok := orderStatusRank[s]
	return ok
}

// 遷移できるか
// 前にだけ進める。CANCELLEDにはどこからでも入れるが、出られない
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	if !s.Valid() || !next.Valid() {
		return false
	}
	if s == OrderStatusCancelled {
		return false
	}
	if next == OrderStatusCancelled {
		return true
	}
	return orderStatusRank[next] > orderStatusRank[s]
}

// 注文。作成時の価格スナップショットで、合計は後から再計算しない
type Order struct {
	ID              int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID          int64           `gorm:"not null;index;uniqueIndex:idx_orders_user_idem" json:"user_id"`
	Status          OrderStatus     `gorm:"type:varchar(20);not null;index" json:"status"`
	ShippingAddress string          `gorm:"type:varchar(500);not null" json:"shipping_address"`
	TotalAmount     decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"total_amount"`

	//同じキーの再送は同じ注文を返す（NULLは重複OK）
	IdempotencyKey *string   `gorm:"type:varchar(255);uniqueIndex:idx_orders_user_idem" json:"-"`
	CreatedAt      time.Time `gorm:"not null;autoCreateTime;index" json:"created_at"`
	UpdatedAt      time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

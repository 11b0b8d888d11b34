package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// 注文明細。作成後は更新しない
type OrderItem struct {
	ID                int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID           int64           `gorm:"not null;index" json:"order_id"`
	ProductID         int64           `gorm:"not null;index" json:"product_id"`
	ProductTitle      string          `gorm:"type:varchar(200);not null" json:"product_title"`
	Quantity          int64           `gorm:"not null" json:"quantity"`
	UnitPriceSnapshot decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"unit_price"`
	CreatedAt         time.Time       `gorm:"not null;autoCreateTime" json:"created_at"`

	//外部キー制約を張るためだけの関連（読み込まない）。注文された商品は削除できない
	Product *Product `gorm:"foreignKey:ProductID;constraint:OnUpdate:RESTRICT,OnDelete:RESTRICT" json:"-"`
}

func (it OrderItem) Subtotal() decimal.Decimal {
	return it.UnitPriceSnapshot.Mul(decimal.NewFromInt(it.Quantity))
}

// 明細の合計（数量×単価スナップショット）
func SumOrderItems(items []OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Subtotal())
	}
	return total
}

package model

import "time"

// 在庫更新、注文ステータス更新、商品の審査など。
type AuditAction string

const (
	//在庫を直接設定した操作。
	AuditActionUpdateStock AuditAction = "UPDATE_STOCK"
	//注文ステータスを更新した操作。
	AuditActionUpdateOrderStatus AuditAction = "UPDATE_ORDER_STATUS"
	//注文をキャンセルした操作（本人または管理者）。
	AuditActionCancelOrder AuditAction = "CANCEL_ORDER"
	//商品を承認/却下した操作。
	AuditActionModerateProduct AuditAction = "MODERATE_PRODUCT"
)

// 何に対する操作か
type AuditResourceType string

const (
	AuditResourceProduct AuditResourceType = "product"
	AuditResourceOrder   AuditResourceType = "order"
)

// 操作の対象になる種別
func (a AuditAction) ResourceType() AuditResourceType {
	switch a {
	case AuditActionUpdateOrderStatus, AuditActionCancelOrder:
		return AuditResourceOrder
	default:
		return AuditResourceProduct
	}
}

func (t AuditResourceType) Valid() bool {
	return t == AuditResourceProduct || t == AuditResourceOrder
}

// 監査ログ。
// 「誰が」「何を」「どの対象に」「どう変えたか」を残す。
type AuditLog struct {
	ID int64 `gorm:"primaryKey;autoIncrement" json:"id"`

	//操作したユーザーのID。
	ActorUserID int64 `gorm:"not null;index" json:"actor_user_id"`

	Action       AuditAction       `gorm:"type:varchar(50);not null;index" json:"action"`
	ResourceType AuditResourceType `gorm:"type:varchar(50);not null;index" json:"resource_type"`
	ResourceID   int64             `gorm:"not null;index" json:"resource_id"`

	//JSON文字列で保存する。
	BeforeJSON string `gorm:"type:text" json:"before_json"`
	AfterJSON  string `gorm:"type:text" json:"after_json"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}

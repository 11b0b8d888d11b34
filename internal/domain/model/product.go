package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type ProductStatus string

const (
	//コラボレーターが提案して承認待ち
	ProductStatusPending ProductStatus = "PENDING"
	//ストアに公開中
	ProductStatusApproved ProductStatus = "APPROVED"
	//却下（公開されない）
	ProductStatusRejected ProductStatus = "REJECTED"
)

// サイズ（服飾以外は空）
type ProductSize string

const (
	SizeXS  ProductSize = "XS"
	SizeS   ProductSize = "S"
	SizeM   ProductSize = "M"
	SizeL   ProductSize = "L"
	SizeXL  ProductSize = "XL"
	SizeXXL ProductSize = "XXL"
)

func Sizes() []ProductSize {
	return []ProductSize{SizeXS, SizeS, SizeM, SizeL, SizeXL, SizeXXL}
}

func (s ProductSize) Valid() bool {
	for _, v := range Sizes() {
		if v == s {
			return true
		}
	}
	return false
}

func (s ProductStatus) Valid() bool {
	switch s {
	case ProductStatusPending, ProductStatusApproved, ProductStatusRejected:
		return true
	}
	return false
}

// 商品。カテゴリや提案者はIDだけ持つ（ナビゲーションは持たない）
type Product struct {
	ID          int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	Title       string          `gorm:"type:varchar(200);not null" json:"title"`
	Description string          `gorm:"type:text;not null" json:"description"`
	Price       decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"price"`
	Stock       int64           `gorm:"not null;default:0" json:"stock"`
	Status      ProductStatus   `gorm:"type:varchar(20);not null;index" json:"status"`
	CategoryID  int64           `gorm:"not null;index" json:"category_id"`
	ColorID     *int64          `gorm:"index" json:"color_id,omitempty"`
	Size        ProductSize     `gorm:"type:varchar(10)" json:"size,omitempty"`

	//評価付きレビューの平均。レビューが無ければnil
	AverageRating *decimal.Decimal `gorm:"type:numeric(3,2)" json:"average_rating,omitempty"`

	//管理者が追加した商品はnil
	CollaboratorID *int64 `gorm:"index" json:"collaborator_id,omitempty"`

	//承認/却下時の管理者コメント
	AdminFeedback string    `gorm:"type:varchar(500)" json:"admin_feedback,omitempty"`
	CreatedAt     time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`

	//詳細表示用（保存しない）
	Color     *Color            `gorm:"-" json:"color,omitempty"`
	Materials []ProductMaterial `gorm:"-" json:"materials,omitempty"`
}

// 購入可能か（承認済みかつ在庫あり）
func (p Product) IsPurchasable() bool {
	return p.Status == ProductStatusApproved && p.Stock > 0
}

// qty個を出荷できるか
func (p Product) CanFulfil(qty int64) bool {
	return p.Status == ProductStatusApproved && qty > 0 && p.Stock >= qty
}

func (p Product) OwnedBy(userID int64) bool {
	return p.CollaboratorID != nil && *p.CollaboratorID == userID
}

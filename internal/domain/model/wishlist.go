package model

import "time"

// ほしい物リスト。1ユーザーにつき1つ（カートと同じく初回アクセスで作る）
type Wishlist struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    int64     `gorm:"not null;uniqueIndex" json:"user_id"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
}

// 数量は持たない。同じ商品は1行だけ
type WishlistItem struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	WishlistID int64     `gorm:"not null;uniqueIndex:idx_wishlist_items_wishlist_product" json:"wishlist_id"`
	ProductID  int64     `gorm:"not null;uniqueIndex:idx_wishlist_items_wishlist_product;index" json:"product_id"`
	AddedAt    time.Time `gorm:"not null" json:"added_at"`
}

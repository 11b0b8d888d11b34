package model

import "time"

// レビュー。1ユーザー1商品につき1件
// 評価だけ・本文だけでもよい（どちらか必須）
type Review struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ProductID int64     `gorm:"not null;uniqueIndex:idx_reviews_product_user" json:"product_id"`
	UserID    int64     `gorm:"not null;uniqueIndex:idx_reviews_product_user;index" json:"user_id"`
	Rating    *int      `json:"rating,omitempty"`
	Content   string    `gorm:"type:varchar(1000)" json:"content,omitempty"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
}

const (
	MinRating        = 1
	MaxRating        = 5
	MaxReviewContent = 1000
)

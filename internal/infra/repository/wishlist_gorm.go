package repository

import (
	"context"
	"errors"
	"time"

	"marketplace/internal/domain/model"
	repo "marketplace/internal/repository"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// wishlists と wishlist_items
type WishlistGormRepository struct {
	db *gorm.DB
}

func NewWishlistGormRepository(db *gorm.DB) *WishlistGormRepository {
	return &WishlistGormRepository{db: db}
}

// カートと同じく、同時作成はDO NOTHINGで相手の行を読む
func (r *WishlistGormRepository) GetOrCreateByUserID(ctx context.Context, userID int64) (model.Wishlist, error) {
	w, err := r.FindByUserID(ctx, userID)
	if !errors.Is(err, repo.ErrNotFound) {
		return w, err
	}

	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(&model.Wishlist{UserID: userID, CreatedAt: time.Now()}).Error; err != nil {
		return model.Wishlist{}, err
	}
	return r.FindByUserID(ctx, userID)
}

func (r *WishlistGormRepository) FindByUserID(ctx context.Context, userID int64) (model.Wishlist, error) {
	var w model.Wishlist
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&w).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Wishlist{}, repo.ErrNotFound
	}
	if err != nil {
		return model.Wishlist{}, err
	}
	return w, nil
}

func (r *WishlistGormRepository) ListItems(ctx context.Context, wishlistID int64) ([]model.WishlistItem, error) {
	var items []model.WishlistItem
	if err := r.db.WithContext(ctx).
		Where("wishlist_id = ?", wishlistID).
		Order("added_at asc").Order("id asc").
		Find(&items).Error; err != nil {
		return []model.WishlistItem{}, err
	}
	return items, nil
}

// (wishlist_id, product_id) の一意制約で二重登録しない
func (r *WishlistGormRepository) AddItem(ctx context.Context, wishlistID int64, productID int64, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "wishlist_id"}, {Name: "product_id"}},
			DoNothing: true,
		}).
		Create(&model.WishlistItem{WishlistID: wishlistID, ProductID: productID, AddedAt: at})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *WishlistGormRepository) FindOwnedItem(ctx context.Context, itemID int64, userID int64) (model.WishlistItem, error) {
	var item model.WishlistItem
	err := r.db.WithContext(ctx).
		Model(&model.WishlistItem{}).
		Select("wishlist_items.*").
		Joins("JOIN wishlists ON wishlists.id = wishlist_items.wishlist_id").
		Where("wishlist_items.id = ? AND wishlists.user_id = ?", itemID, userID).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.WishlistItem{}, repo.ErrNotFound
	}
	if err != nil {
		return model.WishlistItem{}, err
	}
	return item, nil
}

func (r *WishlistGormRepository) DeleteItem(ctx context.Context, itemID int64) error {
	res := r.db.WithContext(ctx).Delete(&model.WishlistItem{}, itemID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (r *WishlistGormRepository) Clear(ctx context.Context, wishlistID int64) error {
	return r.db.WithContext(ctx).Where("wishlist_id = ?", wishlistID).Delete(&model.WishlistItem{}).Error
}

// ナビバー用（行数）
func (r *WishlistGormRepository) CountByUserID(ctx context.Context, userID int64) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&model.WishlistItem{}).
		Joins("JOIN wishlists ON wishlists.id = wishlist_items.wishlist_id").
		Where("wishlists.user_id = ?", userID).
		Count(&n).Error
	if err != nil {
		return 0, err
	}
	return n, nil
}

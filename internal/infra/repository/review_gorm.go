package repository

import (
	"context"
	"errors"

	"marketplace/internal/domain/model"
	repo "marketplace/internal/repository"

	"gorm.io/gorm"
)

type ReviewGormRepository struct {
	db *gorm.DB
}

func NewReviewGormRepository(db *gorm.DB) *ReviewGormRepository {
	return &ReviewGormRepository{db: db}
}

func (r *ReviewGormRepository) Create(ctx context.Context, rv model.Review) (model.Review, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&rv).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return repo.ErrDuplicate
			}
			return err
		}
		return updateAverageRating(tx, rv.ProductID)
	})
	if err != nil {
		return model.Review{}, err
	}
	return rv, nil
}

// 評価なし（本文だけ）のレビューは平均に入れない。1件も無ければNULL
func updateAverageRating(tx *gorm.DB, productID int64) error {
	avg := tx.Model(&model.Review{}).
		Select("ROUND(AVG(rating), 2)").
		Where("product_id = ? AND rating IS NOT NULL", productID)

	return tx.Model(&model.Product{}).
		Where("id = ?", productID).
		UpdateColumn("average_rating", avg).Error
}

func (r *ReviewGormRepository) ListByProductID(ctx context.Context, productID int64) ([]model.Review, error) {
	var list []model.Review
	if err := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("created_at desc").Order("id desc").
		Find(&list).Error; err != nil {
		return []model.Review{}, err
	}
	return list, nil
}

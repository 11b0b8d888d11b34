package repository

import (
	"context"
	"errors"

	"marketplace/internal/domain/model"
	repo "marketplace/internal/repository"

	"gorm.io/gorm"
)

// colors と product_materials
type ProductAttributeGormRepository struct {
	db *gorm.DB
}

func NewProductAttributeGormRepository(db *gorm.DB) *ProductAttributeGormRepository {
	return &ProductAttributeGormRepository{db: db}
}

// ID順（シードの並び）
func (r *ProductAttributeGormRepository) ListColors(ctx context.Context) ([]model.Color, error) {
	var list []model.Color
	if err := r.db.WithContext(ctx).Order("id asc").Find(&list).Error; err != nil {
		return []model.Color{}, err
	}
	return list, nil
}

func (r *ProductAttributeGormRepository) FindColorByID(ctx context.Context, id int64) (model.Color, error) {
	var c model.Color
	err := r.db.WithContext(ctx).First(&c, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Color{}, repo.ErrNotFound
	}
	if err != nil {
		return model.Color{}, err
	}
	return c, nil
}

// 割合の大きい順
func (r *ProductAttributeGormRepository) ListMaterials(ctx context.Context, productID int64) ([]model.ProductMaterial, error) {
	var list []model.ProductMaterial
	if err := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("percentage desc").Order("id asc").
		Find(&list).Error; err != nil {
		return []model.ProductMaterial{}, err
	}
	return list, nil
}

func (r *ProductAttributeGormRepository) ReplaceMaterials(ctx context.Context, productID int64, materials []model.ProductMaterial) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("product_id = ?", productID).Delete(&model.ProductMaterial{}).Error; err != nil {
			return err
		}
		if len(materials) == 0 {
			return nil
		}

		rows := make([]model.ProductMaterial, 0, len(materials))
		for _, m := range materials {
			rows = append(rows, model.ProductMaterial{ProductID: productID, Material: m.Material, Percentage: m.Percentage})
		}
		if err := tx.Create(&rows).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return repo.ErrDuplicate
			}
			return err
		}
		return nil
	})
}

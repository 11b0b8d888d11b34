package repository

import (
	"context"
	"errors"
	"strings"

	"marketplace/internal/domain/model"
	repo "marketplace/internal/repository"

	"gorm.io/gorm"
)

type ProductGormRepository struct {
	db *gorm.DB
}

// DI
func NewProductGormRepository(db *gorm.DB) *ProductGormRepository {
	return &ProductGormRepository{db: db}
}

// 承認済み商品のみを、検索/カテゴリ/ソート/ページング付きで返す。
func (r *ProductGormRepository) ListPublic(ctx context.Context, q repo.ProductListQuery) ([]model.Product, int64, error) {
	var products []model.Product
	var total int64

	tx := r.db.WithContext(ctx).Model(&model.Product{}).
		Where("status = ?", model.ProductStatusApproved)

	// q はtitleを対象（DBに依存しないようLOWERで比較）
	if s := strings.TrimSpace(q.Q); s != "" {
		tx = tx.Where("LOWER(title) LIKE ?", "%"+strings.ToLower(s)+"%")
	}
	if q.CategoryID != nil {
		tx = tx.Where("category_id = ?", *q.CategoryID)
	}

	if err := tx.Count(&total).Error; err != nil {
		return []model.Product{}, 0, err
	}

	switch q.Sort {
	case "price_asc":
		tx = tx.Order("price asc").Order("id asc")
	case "price_desc":
		tx = tx.Order("price desc").Order("id desc")
	//レビューの無い商品は0扱い
	case "rating_asc":
		tx = tx.Order("COALESCE(average_rating, 0) asc").Order("id asc")
	case "rating_desc":
		tx = tx.Order("COALESCE(average_rating, 0) desc").Order("id desc")
	default:
		tx = tx.Order("created_at desc").Order("id desc")
	}

	offset := (q.Page - 1) * q.Limit
	if err := tx.Offset(offset).Limit(q.Limit).Find(&products).Error; err != nil {
		return []model.Product{}, 0, err
	}

	return products, total, nil
}

// 管理画面の一覧（新しい順）
func (r *ProductGormRepository) ListManaged(ctx context.Context, q repo.ManagedProductQuery) ([]model.Product, error) {
	tx := r.db.WithContext(ctx).Model(&model.Product{})
	if q.CollaboratorID != nil {
		tx = tx.Where("collaborator_id = ?", *q.CollaboratorID)
	}
	if q.Status != nil {
		tx = tx.Where("status = ?", *q.Status)
	}

	var products []model.Product
	if err := tx.Order("created_at desc").Order("id desc").Find(&products).Error; err != nil {
		return []model.Product{}, err
	}
	return products, nil
}

// IDで商品を取得
func (r *ProductGormRepository) FindByID(ctx context.Context, id int64) (model.Product, error) {
	var p model.Product
	err := r.db.WithContext(ctx).First(&p, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Product{}, repo.ErrNotFound
	}
	if err != nil {
		return model.Product{}, err
	}
	return p, nil
}

func (r *ProductGormRepository) FindByIDs(ctx context.Context, ids []int64) (map[int64]model.Product, error) {
	out := make(map[int64]model.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	var products []model.Product
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&products).Error; err != nil {
		return nil, err
	}
	for _, p := range products {
		out[p.ID] = p
	}
	return out, nil
}

// 商品の作成
func (r *ProductGormRepository) Create(ctx context.Context, p model.Product) (model.Product, error) {
	if err := r.db.WithContext(ctx).Create(&p).Error; err != nil {
		return model.Product{}, err
	}
	return p, nil
}

// 商品の更新（在庫は別経路で更新するので含めない）
func (r *ProductGormRepository) Update(ctx context.Context, p model.Product) error {
	res := r.db.WithContext(ctx).Model(&model.Product{}).Where("id = ?", p.ID).Updates(map[string]interface{}{
		"title":          p.Title,
		"description":    p.Description,
		"price":          p.Price,
		"category_id":    p.CategoryID,
		"color_id":       p.ColorID,
		"size":           p.Size,
		"status":         p.Status,
		"admin_feedback": p.AdminFeedback,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

// 審査結果を保存
func (r *ProductGormRepository) UpdateStatus(ctx context.Context, id int64, status model.ProductStatus, feedback string) error {
	res := r.db.WithContext(ctx).Model(&model.Product{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":         status,
		"admin_feedback": feedback,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

// 商品削除。カート・ほしい物リスト・レビュー・素材も一緒に消す
// 注文明細は order_items.product_id の外部キー(RESTRICT)で守られている
func (r *ProductGormRepository) Delete(ctx context.Context, id int64) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, dep := range []interface{}{&model.CartItem{}, &model.WishlistItem{}, &model.Review{}, &model.ProductMaterial{}} {
			if err := tx.Where("product_id = ?", id).Delete(dep).Error; err != nil {
				return err
			}
		}

		res := tx.Delete(&model.Product{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return repo.ErrNotFound
		}
		return nil
	})
	if errors.Is(err, gorm.ErrForeignKeyViolated) {
		return repo.ErrInUse
	}
	return err
}

package repository

import (
	"context"
	"fmt"
	"time"

	"marketplace/internal/domain/model"
	repo "marketplace/internal/repository"

	"gorm.io/gorm"
)

// products.stock だけを触る。商品の他の列はProductGormRepositoryで更新する
type InventoryGormRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewInventoryGormRepository(db *gorm.DB) *InventoryGormRepository {
	return &InventoryGormRepository{db: db, now: time.Now}
}

// stockを式で更新して、更新できた行数を返す
func (r *InventoryGormRepository) updateStock(ctx context.Context, stock any, where string, args ...any) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&model.Product{}).
		Where(where, args...).
		UpdateColumns(map[string]any{
			"stock":      stock,
			"updated_at": r.now(),
		})
	return res.RowsAffected, res.Error
}

// 管理者の在庫設定
func (r *InventoryGormRepository) SetStock(ctx context.Context, productID int64, newStock int64) error {
	if newStock < 0 {
		return fmt.Errorf("set stock: negative value %d", newStock)
	}
	n, err := r.updateStock(ctx, newStock, "id = ?", productID)
	if err != nil {
		return err
	}
	if n == 0 {
		return repo.ErrNotFound
	}
	return nil
}

// 公開中で在庫が足りるときだけ減らす
// 判定と更新が1文なので、同じ商品への同時チェックアウトでもマイナスにならない
// falseは「足りない・公開されていない・存在しない」のどれか
func (r *InventoryGormRepository) DecreaseStockIfEnough(ctx context.Context, productID int64, qty int64) (bool, error) {
	if qty <= 0 {
		return false, fmt.Errorf("decrease stock: invalid quantity %d", qty)
	}
	n, err := r.updateStock(ctx, gorm.Expr("stock - ?", qty),
		"id = ? AND status = ? AND stock >= ?", productID, model.ProductStatusApproved, qty)
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// キャンセル時の戻し。公開状態は問わない
func (r *InventoryGormRepository) IncreaseStock(ctx context.Context, productID int64, qty int64) error {
	if qty <= 0 {
		return fmt.Errorf("increase stock: invalid quantity %d", qty)
	}
	n, err := r.updateStock(ctx, gorm.Expr("stock + ?", qty), "id = ?", productID)
	if err != nil {
		return err
	}
	if n == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (r *InventoryGormRepository) CreateAdjustment(ctx context.Context, adj model.InventoryAdjustment) error {
	if adj.CreatedAt.IsZero() {
		adj.CreatedAt = r.now()
	}
	return r.db.WithContext(ctx).Create(&adj).Error
}

package repository

import (
	"context"
	"errors"

	"marketplace/internal/domain/model"
)

var (
	ErrNotFound = errors.New("not found")
	//一意制約違反（gormのTranslateErrorから変換）
	ErrDuplicate = errors.New("duplicate")
	//外部キーで参照されていて消せない
	ErrInUse = errors.New("in use")
)

// 一覧検索
type ProductListQuery struct {
	Page       int
	Limit      int
	Q          string
	CategoryID *int64
	Sort       string
}

// 管理画面用の絞り込み（コラボレーターは自分の商品だけ）
type ManagedProductQuery struct {
	CollaboratorID *int64
	Status         *model.ProductStatus
}

// 商品の永続化（保存・取得）だけを約束。
type ProductRepository interface {
	//承認済みだけ返す
	ListPublic(ctx context.Context, q ProductListQuery) ([]model.Product, int64, error)
	ListManaged(ctx context.Context, q ManagedProductQuery) ([]model.Product, error)
	FindByID(ctx context.Context, id int64) (model.Product, error)
	//IDまとめて取得（見つからないIDは含まれない）
	FindByIDs(ctx context.Context, ids []int64) (map[int64]model.Product, error)

	Create(ctx context.Context, p model.Product) (model.Product, error)
	Update(ctx context.Context, p model.Product) error
	//審査結果を保存
	UpdateStatus(ctx context.Context, id int64, status model.ProductStatus, feedback string) error
	//注文明細から参照されているとErrInUse
	Delete(ctx context.Context, id int64) error
}

// 色マスタと素材構成（商品詳細の付属情報）
type ProductAttributeRepository interface {
	ListColors(ctx context.Context) ([]model.Color, error)
	FindColorByID(ctx context.Context, id int64) (model.Color, error)
	ListMaterials(ctx context.Context, productID int64) ([]model.ProductMaterial, error)
	//全部入れ替える（空なら消すだけ）
	ReplaceMaterials(ctx context.Context, productID int64, materials []model.ProductMaterial) error
}

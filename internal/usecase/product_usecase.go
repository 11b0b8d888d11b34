package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"marketplace/internal/domain/model"
	"marketplace/internal/domain/policy"
	repo "marketplace/internal/repository"

	"github.com/shopspring/decimal"
)

type ProductUsecase struct {
	tx         repo.TransactionManager
	products   repo.ProductRepository
	categories repo.CategoryRepository
	attrs      repo.ProductAttributeRepository
	cache      ProductCache
	clock      Clock
}

// DI
func NewProductUsecase(
	tx repo.TransactionManager,
	products repo.ProductRepository,
	categories repo.CategoryRepository,
	attrs repo.ProductAttributeRepository,
	cache ProductCache,
	clock Clock,
) *ProductUsecase {
	return &ProductUsecase{
		tx:         tx,
		products:   products,
		categories: categories,
		attrs:      attrs,
		cache:      cache,
		clock:      clock,
	}
}

// GET /productsの入力DTO
type ListProductsInput struct {
	Page       int
	Limit      int
	Q          string
	CategoryID *int64
	Sort       string
}

type ProductListOutput struct {
	Items []model.Product `json:"items"`
	Total int64           `json:"total"`
	Page  int             `json:"page"`
	Limit int             `json:"limit"`
}

// 作成・更新の入力。在庫は作成時だけ（以後は在庫APIで変える）
// Materials は nil なら更新時に今のまま、空なら全部消す
type ProductInput struct {
	Title       string
	Description string
	Price       decimal.Decimal
	Stock       int64
	CategoryID  int64
	ColorID     *int64
	Size        string
	Materials   []MaterialShare
}

type MaterialShare struct {
	Material   model.Material `json:"material"`
	Percentage int            `json:"percentage"`
}

// 商品フォームの選択肢
type ProductOptions struct {
	Colors    []model.Color       `json:"colors"`
	Sizes     []model.ProductSize `json:"sizes"`
	Materials []model.Material    `json:"materials"`
}

func (u *ProductUsecase) ListPublicProducts(ctx context.Context, in ListProductsInput) (ProductListOutput, error) {
	if in.Page < 1 {
		return ProductListOutput{}, validationError("invalid page")
	}
	if in.Limit < 1 || in.Limit > 100 {
		return ProductListOutput{}, validationError("invalid limit")
	}
	if len(in.Q) > 100 {
		return ProductListOutput{}, validationError("q too long")
	}
	if in.CategoryID != nil && *in.CategoryID <= 0 {
		return ProductListOutput{}, validationError("invalid category_id")
	}
	switch in.Sort {
	case "", "new", "price_asc", "price_desc", "rating_asc", "rating_desc":
	default:
		return ProductListOutput{}, validationError("invalid sort")
	}

	items, total, err := u.products.ListPublic(ctx, repo.ProductListQuery{
		Page:       in.Page,
		Limit:      in.Limit,
		Q:          strings.TrimSpace(in.Q),
		CategoryID: in.CategoryID,
		Sort:       in.Sort,
	})
	if err != nil {
		return ProductListOutput{}, internalError(err)
	}

	return ProductListOutput{
		Items: items,
		Total: total,
		Page:  in.Page,
		Limit: in.Limit,
	}, nil
}

// 公開中の商品だけ。キャッシュを通す
func (u *ProductUsecase) GetProductDetail(ctx context.Context, productID int64) (model.Product, error) {
	if productID <= 0 {
		return model.Product{}, validationError("invalid product id")
	}

	return u.cache.GetOrLoad(ctx, productID, func(ctx context.Context, id int64) (model.Product, error) {
		p, err := u.products.FindByID(ctx, id)
		if errors.Is(err, repo.ErrNotFound) {
			return model.Product{}, errNotFound
		}
		if err != nil {
			return model.Product{}, internalError(err)
		}
		if p.Status != model.ProductStatusApproved {
			return model.Product{}, errNotFound
		}
		return u.withAttributes(ctx, p)
	})
}

// 色と素材を詰める。色マスタが消えていたら色なしで返す
func (u *ProductUsecase) withAttributes(ctx context.Context, p model.Product) (model.Product, error) {
	if p.ColorID != nil {
		c, err := u.attrs.FindColorByID(ctx, *p.ColorID)
		switch {
		case err == nil:
			p.Color = &c
		case !errors.Is(err, repo.ErrNotFound):
			return model.Product{}, internalError(err)
		}
	}
	ms, err := u.attrs.ListMaterials(ctx, p.ID)
	if err != nil {
		return model.Product{}, internalError(err)
	}
	p.Materials = ms
	return p, nil
}

func (u *ProductUsecase) ProductOptions(ctx context.Context) (ProductOptions, error) {
	colors, err := u.attrs.ListColors(ctx)
	if err != nil {
		return ProductOptions{}, internalError(err)
	}
	return ProductOptions{Colors: colors, Sizes: model.Sizes(), Materials: model.Materials()}, nil
}

func (u *ProductUsecase) ListCategories(ctx context.Context) ([]model.Category, error) {
	cs, err := u.categories.List(ctx)
	if err != nil {
		return []model.Category{}, internalError(err)
	}
	return cs, nil
}

// 管理画面の一覧。管理者は全部、コラボレーターは自分の提案だけ
func (u *ProductUsecase) ListManagedProducts(ctx context.Context, actor policy.Actor, status string) ([]model.Product, error) {
	if !actor.Valid() {
		return []model.Product{}, errUnauthorized
	}
	if d := policy.CanProposeProduct(actor); !d.Allowed {
		return []model.Product{}, errForbidden
	}

	q := repo.ManagedProductQuery{}
	if !actor.IsAdmin() {
		q.CollaboratorID = &actor.UserID
	}
	if s := strings.ToUpper(strings.TrimSpace(status)); s != "" {
		st := model.ProductStatus(s)
		if !st.Valid() {
			return []model.Product{}, validationError("invalid status")
		}
		q.Status = &st
	}

	items, err := u.products.ListManaged(ctx, q)
	if err != nil {
		return []model.Product{}, internalError(err)
	}
	return items, nil
}

// 承認待ちの一覧（管理者）
func (u *ProductUsecase) ListPendingProducts(ctx context.Context, actor policy.Actor) ([]model.Product, error) {
	if !actor.Valid() {
		return []model.Product{}, errUnauthorized
	}
	if d := policy.CanModerate(actor); !d.Allowed {
		return []model.Product{}, errForbidden
	}
	return u.ListManagedProducts(ctx, actor, string(model.ProductStatusPending))
}

func (u *ProductUsecase) validateInput(ctx context.Context, in ProductInput) (ProductInput, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)

	if in.Title == "" {
		return in, validationError("title required")
	}
	if utf8.RuneCountInString(in.Title) > 200 {
		return in, validationError("title too long")
	}
	if !in.Price.IsPositive() {
		return in, validationError("price must be > 0")
	}
	//小数は2桁まで
	if !in.Price.Equal(in.Price.Round(2)) {
		return in, validationError("price must have at most 2 decimal places")
	}
	if in.Stock < 0 {
		return in, validationError("stock must be >= 0")
	}
	if in.CategoryID <= 0 {
		return in, validationError("invalid category_id")
	}
	if _, err := u.categories.FindByID(ctx, in.CategoryID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return in, validationError("invalid category_id")
		}
		return in, internalError(err)
	}

	if in.ColorID != nil {
		if *in.ColorID <= 0 {
			return in, validationError("invalid color_id")
		}
		if _, err := u.attrs.FindColorByID(ctx, *in.ColorID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return in, validationError("invalid color_id")
			}
			return in, internalError(err)
		}
	}
	in.Size = strings.ToUpper(strings.TrimSpace(in.Size))
	if in.Size != "" && !model.ProductSize(in.Size).Valid() {
		return in, validationError("invalid size")
	}
	if err := validateMaterials(in.Materials); err != nil {
		return in, err
	}
	return in, nil
}

// 各1..100%、同じ素材は1回、合計100%以下
func validateMaterials(ms []MaterialShare) error {
	seen := make(map[model.Material]bool, len(ms))
	total := 0
	for _, m := range ms {
		if !m.Material.Valid() {
			return validationError(fmt.Sprintf("invalid material %q", m.Material))
		}
		if seen[m.Material] {
			return validationError(fmt.Sprintf("duplicate material %s", m.Material))
		}
		seen[m.Material] = true
		if m.Percentage < 1 || m.Percentage > 100 {
			return validationError("material percentage must be 1..100")
		}
		total += m.Percentage
	}
	if total > 100 {
		return validationError("material percentages exceed 100")
	}
	return nil
}

func materialRows(ms []MaterialShare) []model.ProductMaterial {
	rows := make([]model.ProductMaterial, 0, len(ms))
	for _, m := range ms {
		rows = append(rows, model.ProductMaterial{Material: m.Material, Percentage: m.Percentage})
	}
	return rows
}

// 管理者が作ると公開、コラボレーターが作ると承認待ち
func (u *ProductUsecase) CreateProduct(ctx context.Context, actor policy.Actor, in ProductInput) (model.Product, error) {
	if !actor.Valid() {
		return model.Product{}, errUnauthorized
	}
	if d := policy.CanProposeProduct(actor); !d.Allowed {
		return model.Product{}, errForbidden
	}
	in, err := u.validateInput(ctx, in)
	if err != nil {
		return model.Product{}, err
	}

	now := u.clock.Now()
	p := model.Product{
		Title:       in.Title,
		Description: in.Description,
		Price:       in.Price,
		Stock:       in.Stock,
		CategoryID:  in.CategoryID,
		ColorID:     in.ColorID,
		Size:        model.ProductSize(in.Size),
		Status:      model.ProductStatusApproved,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if !actor.IsAdmin() {
		p.Status = model.ProductStatusPending
		p.CollaboratorID = &actor.UserID
	}

	var created model.Product
	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		out, err := r.Products().Create(ctx, p)
		if err != nil {
			return internalError(err)
		}
		if len(in.Materials) > 0 {
			if err := r.Attributes().ReplaceMaterials(ctx, out.ID, materialRows(in.Materials)); err != nil {
				return internalError(err)
			}
			out.Materials = materialRows(in.Materials)
		}
		created = out
		return nil
	})
	if err != nil {
		return model.Product{}, err
	}
	return created, nil
}

// 更新。コラボレーターが編集すると承認待ちに戻る
func (u *ProductUsecase) UpdateProduct(ctx context.Context, actor policy.Actor, productID int64, in ProductInput) (model.Product, error) {
	if !actor.Valid() {
		return model.Product{}, errUnauthorized
	}
	if productID <= 0 {
		return model.Product{}, validationError("invalid product id")
	}

	p, err := u.findManaged(ctx, actor, productID)
	if err != nil {
		return model.Product{}, err
	}
	in, err = u.validateInput(ctx, in)
	if err != nil {
		return model.Product{}, err
	}

	p.Title = in.Title
	p.Description = in.Description
	p.Price = in.Price
	p.CategoryID = in.CategoryID
	p.ColorID = in.ColorID
	p.Size = model.ProductSize(in.Size)
	if !actor.IsAdmin() && p.Status != model.ProductStatusPending {
		p.Status = model.ProductStatusPending
		p.AdminFeedback = ""
	}

	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		if err := r.Products().Update(ctx, p); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return errNotFound
			}
			return internalError(err)
		}
		if in.Materials != nil {
			if err := r.Attributes().ReplaceMaterials(ctx, productID, materialRows(in.Materials)); err != nil {
				return internalError(err)
			}
			p.Materials = materialRows(in.Materials)
		}
		return nil
	})
	if err != nil {
		return model.Product{}, err
	}
	u.cache.Invalidate(ctx, productID)
	return p, nil
}

// 注文に使われた商品は消せない（注文履歴が参照している）
func (u *ProductUsecase) DeleteProduct(ctx context.Context, actor policy.Actor, productID int64) error {
	if !actor.Valid() {
		return errUnauthorized
	}
	if productID <= 0 {
		return validationError("invalid product id")
	}
	if _, err := u.findManaged(ctx, actor, productID); err != nil {
		return err
	}

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		used, err := r.OrderItems().ExistsForProduct(ctx, productID)
		if err != nil {
			return internalError(err)
		}
		if used {
			return conflictError("product has orders and cannot be deleted")
		}
		if err := r.Products().Delete(ctx, productID); err != nil {
			switch {
			case errors.Is(err, repo.ErrNotFound):
				return errNotFound
			//確認後に注文が入った場合は外部キーで止まる
			case errors.Is(err, repo.ErrInUse):
				return conflictError("product has orders and cannot be deleted")
			}
			return internalError(err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	u.cache.Invalidate(ctx, productID)
	return nil
}

func (u *ProductUsecase) findManaged(ctx context.Context, actor policy.Actor, productID int64) (model.Product, error) {
	p, err := u.products.FindByID(ctx, productID)
	if errors.Is(err, repo.ErrNotFound) {
		return model.Product{}, errNotFound
	}
	if err != nil {
		return model.Product{}, internalError(err)
	}
	if d := policy.CanManageProduct(actor, p); !d.Allowed {
		return model.Product{}, errForbidden
	}
	return p, nil
}

func (u *ProductUsecase) ApproveProduct(ctx context.Context, actor policy.Actor, productID int64, feedback string) (model.Product, error) {
	return u.moderate(ctx, actor, productID, model.ProductStatusApproved, feedback)
}

// 却下は理由が必須
func (u *ProductUsecase) RejectProduct(ctx context.Context, actor policy.Actor, productID int64, feedback string) (model.Product, error) {
	if strings.TrimSpace(feedback) == "" {
		return model.Product{}, validationError("feedback required")
	}
	return u.moderate(ctx, actor, productID, model.ProductStatusRejected, feedback)
}

func (u *ProductUsecase) moderate(ctx context.Context, actor policy.Actor, productID int64, to model.ProductStatus, feedback string) (model.Product, error) {
	if !actor.Valid() {
		return model.Product{}, errUnauthorized
	}
	if d := policy.CanModerate(actor); !d.Allowed {
		return model.Product{}, errForbidden
	}
	if productID <= 0 {
		return model.Product{}, validationError("invalid product id")
	}
	feedback = strings.TrimSpace(feedback)
	if utf8.RuneCountInString(feedback) > 500 {
		return model.Product{}, validationError("feedback too long")
	}

	var out model.Product
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		p, err := r.Products().FindByID(ctx, productID)
		if errors.Is(err, repo.ErrNotFound) {
			return errNotFound
		}
		if err != nil {
			return internalError(err)
		}

		if err := r.Products().UpdateStatus(ctx, productID, to, feedback); err != nil {
			return internalError(err)
		}

		//監査ログ（MODERATE_PRODUCT）
		if err := r.AuditLogs().Create(ctx, model.AuditLog{
			ActorUserID:  actor.UserID,
			Action:       model.AuditActionModerateProduct,
			ResourceType: model.AuditResourceProduct,
			ResourceID:   productID,
			BeforeJSON:   fmt.Sprintf(`{"status":%q}`, p.Status),
			AfterJSON:    fmt.Sprintf(`{"status":%q,"feedback":%q}`, to, feedback),
			CreatedAt:    u.clock.Now(),
		}); err != nil {
			return internalError(err)
		}

		p.Status = to
		p.AdminFeedback = feedback
		out = p
		return nil
	})
	if err != nil {
		return model.Product{}, err
	}
	u.cache.Invalidate(ctx, productID)
	return out, nil
}

// 在庫の直接設定（管理者）。履歴と監査ログも残す
func (u *ProductUsecase) AdminUpdateInventory(ctx context.Context, actor policy.Actor, productID int64, newStock int64, reason string) (model.Product, error) {
	if !actor.Valid() {
		return model.Product{}, errUnauthorized
	}
	if d := policy.CanModerate(actor); !d.Allowed {
		return model.Product{}, errForbidden
	}
	if productID <= 0 {
		return model.Product{}, validationError("invalid product id")
	}
	if newStock < 0 {
		return model.Product{}, validationError("stock must be >= 0")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return model.Product{}, validationError("reason required")
	}
	if utf8.RuneCountInString(reason) > 255 {
		return model.Product{}, validationError("reason too long")
	}

	var out model.Product
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		//変更前の在庫（before）
		p, err := r.Products().FindByID(ctx, productID)
		if errors.Is(err, repo.ErrNotFound) {
			return errNotFound
		}
		if err != nil {
			return internalError(err)
		}

		if err := r.Inventory().SetStock(ctx, productID, newStock); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return errNotFound
			}
			return internalError(err)
		}

		now := u.clock.Now()
		//履歴を作成（差分）
		if err := r.Inventory().CreateAdjustment(ctx, model.InventoryAdjustment{
			ProductID:   productID,
			AdminUserID: actor.UserID,
			Delta:       newStock - p.Stock,
			Reason:      reason,
			CreatedAt:   now,
		}); err != nil {
			return internalError(err)
		}

		if err := r.AuditLogs().Create(ctx, model.AuditLog{
			ActorUserID:  actor.UserID,
			Action:       model.AuditActionUpdateStock,
			ResourceType: model.AuditResourceProduct,
			ResourceID:   productID,
			BeforeJSON:   fmt.Sprintf(`{"stock":%d}`, p.Stock),
			AfterJSON:    fmt.Sprintf(`{"stock":%d}`, newStock),
			CreatedAt:    now,
		}); err != nil {
			return internalError(err)
		}

		p.Stock = newStock
		out = p
		return nil
	})
	if err != nil {
		return model.Product{}, err
	}
	u.cache.Invalidate(ctx, productID)
	return out, nil
}

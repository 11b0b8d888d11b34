package usecase

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"marketplace/internal/domain/model"
	"marketplace/internal/domain/policy"
	repo "marketplace/internal/repository"
)

type ReviewUsecase struct {
	reviews  repo.ReviewRepository
	products repo.ProductRepository
	cache    ProductCache
	clock    Clock
}

func NewReviewUsecase(reviews repo.ReviewRepository, products repo.ProductRepository, cache ProductCache, clock Clock) *ReviewUsecase {
	return &ReviewUsecase{reviews: reviews, products: products, cache: cache, clock: clock}
}

// 評価だけ・本文だけでもよい
type ReviewInput struct {
	Rating  *int
	Content string
}

// 公開中の商品だけ
func (u *ReviewUsecase) findPublic(ctx context.Context, productID int64) (model.Product, error) {
	if productID <= 0 {
		return model.Product{}, validationError("invalid product id")
	}
	p, err := u.products.FindByID(ctx, productID)
	if errors.Is(err, repo.ErrNotFound) {
		return model.Product{}, errNotFound
	}
	if err != nil {
		return model.Product{}, internalError(err)
	}
	if p.Status != model.ProductStatusApproved {
		return model.Product{}, errNotFound
	}
	return p, nil
}

func (u *ReviewUsecase) ListReviews(ctx context.Context, productID int64) ([]model.Review, error) {
	if _, err := u.findPublic(ctx, productID); err != nil {
		return []model.Review{}, err
	}
	list, err := u.reviews.ListByProductID(ctx, productID)
	if err != nil {
		return []model.Review{}, internalError(err)
	}
	return list, nil
}

// 1商品につき1人1件。平均評価が変わるので詳細キャッシュを捨てる
func (u *ReviewUsecase) CreateReview(ctx context.Context, actor policy.Actor, productID int64, in ReviewInput) (model.Review, error) {
	if err := checkShopper(actor); err != nil {
		return model.Review{}, err
	}

	in.Content = strings.TrimSpace(in.Content)
	if in.Rating == nil && in.Content == "" {
		return model.Review{}, validationError("rating or content required")
	}
	if in.Rating != nil && (*in.Rating < model.MinRating || *in.Rating > model.MaxRating) {
		return model.Review{}, validationError("rating must be 1..5")
	}
	if utf8.RuneCountInString(in.Content) > model.MaxReviewContent {
		return model.Review{}, validationError("content too long")
	}

	if _, err := u.findPublic(ctx, productID); err != nil {
		return model.Review{}, err
	}

	rv, err := u.reviews.Create(ctx, model.Review{
		ProductID: productID,
		UserID:    actor.UserID,
		Rating:    in.Rating,
		Content:   in.Content,
		CreatedAt: u.clock.Now(),
	})
	if errors.Is(err, repo.ErrDuplicate) {
		return model.Review{}, conflictError("already reviewed")
	}
	if err != nil {
		return model.Review{}, internalError(err)
	}
	u.cache.Invalidate(ctx, productID)
	return rv, nil
}

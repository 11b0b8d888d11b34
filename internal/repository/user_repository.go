package repository

import (
	"context"

	"marketplace/internal/domain/model"
)

// 認証は外部なので、ミドルウェアとシードが使う分だけ
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	// 見つからないときはErrNotFound
	FindByID(ctx context.Context, userID int64) (*model.User, error)
	FindByEmail(ctx context.Context, email string) (*model.User, error)
}

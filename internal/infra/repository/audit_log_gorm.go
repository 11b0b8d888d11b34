package repository

import (
	"context"
	"time"

	"marketplace/internal/domain/model"
	repo "marketplace/internal/repository"

	"gorm.io/gorm"
)

const (
	defaultAuditLimit = 50
	maxAuditLimit     = 200
)

// 在庫・注文・審査の監査ログ
type AuditLogGormRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewAuditLogGormRepository(db *gorm.DB) *AuditLogGormRepository {
	return &AuditLogGormRepository{db: db, now: time.Now}
}

// usecaseの中でtxと一緒に書く。時刻が無ければ今
func (r *AuditLogGormRepository) Create(ctx context.Context, log model.AuditLog) error {
	if log.CreatedAt.IsZero() {
		log.CreatedAt = r.now()
	}
	return r.db.WithContext(ctx).Create(&log).Error
}

// 管理画面の検索（新しい順）
func (r *AuditLogGormRepository) List(ctx context.Context, f repo.AuditLogFilter) ([]model.AuditLog, error) {
	var logs []model.AuditLog
	err := r.db.WithContext(ctx).
		Scopes(byActor(f.ActorUserID), byAction(f.Action), byResource(f.ResourceType, f.ResourceID), createdBetween(f.CreatedFrom, f.CreatedTo), auditPage(f.Limit, f.Offset)).
		Order("created_at desc").Order("id desc").
		Find(&logs).Error
	if err != nil {
		return []model.AuditLog{}, err
	}
	return logs, nil
}

// 1つの注文/商品に対する操作の履歴（古い順）
func (r *AuditLogGormRepository) ListForResource(ctx context.Context, rt model.AuditResourceType, id int64) ([]model.AuditLog, error) {
	var logs []model.AuditLog
	err := r.db.WithContext(ctx).
		Scopes(byResource(&rt, &id)).
		Order("created_at asc").Order("id asc").
		Find(&logs).Error
	if err != nil {
		return []model.AuditLog{}, err
	}
	return logs, nil
}

func byActor(userID *int64) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if userID == nil {
			return db
		}
		return db.Where("actor_user_id = ?", *userID)
	}
}

func byAction(a *model.AuditAction) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if a == nil {
			return db
		}
		return db.Where("action = ?", *a)
	}
}

// resource_id は種別と組み合わせて意味を持つが、IDだけの検索も許す
func byResource(rt *model.AuditResourceType, id *int64) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if rt != nil {
			db = db.Where("resource_type = ?", *rt)
		}
		if id != nil {
			db = db.Where("resource_id = ?", *id)
		}
		return db
	}
}

func createdBetween(from, to *time.Time) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if from != nil {
			db = db.Where("created_at >= ?", *from)
		}
		if to != nil {
			db = db.Where("created_at <= ?", *to)
		}
		return db
	}
}

func auditPage(limit, offset int) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if limit <= 0 || limit > maxAuditLimit {
			limit = defaultAuditLimit
		}
		if offset < 0 {
			offset = 0
		}
		return db.Limit(limit).Offset(offset)
	}
}

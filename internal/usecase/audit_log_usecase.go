package usecase

import (
	"context"
	"strings"

	"marketplace/internal/domain/model"
	"marketplace/internal/domain/policy"
	repo "marketplace/internal/repository"
)

// 監査ログの閲覧（管理者のみ）
type AuditLogUsecase struct {
	logs repo.AuditLogRepository
}

func NewAuditLogUsecase(logs repo.AuditLogRepository) *AuditLogUsecase {
	return &AuditLogUsecase{logs: logs}
}

// GET /admin/audit-logs のクエリ
type ListAuditLogsInput struct {
	ActorUserID  int64
	Action       string
	ResourceType string
	ResourceID   int64
	From         string
	To           string
	Limit        int
	Offset       int
}

var auditActions = map[model.AuditAction]struct{}{
	model.AuditActionUpdateStock:       {},
	model.AuditActionUpdateOrderStatus: {},
	model.AuditActionCancelOrder:       {},
	model.AuditActionModerateProduct:   {},
}

func (u *AuditLogUsecase) List(ctx context.Context, actor policy.Actor, in ListAuditLogsInput) ([]model.AuditLog, error) {
	if !actor.Valid() {
		return nil, errUnauthorized
	}
	if !actor.IsAdmin() {
		return nil, errForbidden
	}

	if in.Limit < 0 || in.Limit > 200 {
		return nil, validationError("invalid limit")
	}
	if in.Offset < 0 {
		return nil, validationError("invalid offset")
	}
	f := repo.AuditLogFilter{Limit: in.Limit, Offset: in.Offset}

	if in.ActorUserID < 0 || in.ResourceID < 0 {
		return nil, validationError("invalid id")
	}
	if in.ActorUserID > 0 {
		f.ActorUserID = &in.ActorUserID
	}
	if in.ResourceID > 0 {
		f.ResourceID = &in.ResourceID
	}

	if s := strings.TrimSpace(in.Action); s != "" {
		a := model.AuditAction(strings.ToUpper(s))
		if _, ok := auditActions[a]; !ok {
			return nil, validationError("invalid action")
		}
		f.Action = &a
	}
	if s := strings.TrimSpace(in.ResourceType); s != "" {
		rt := model.AuditResourceType(strings.ToLower(s))
		if !rt.Valid() {
			return nil, validationError("invalid resource_type")
		}
		f.ResourceType = &rt
	}
	//操作から対象が決まる（UPDATE_STOCK は商品だけ）
	if f.Action != nil {
		rt := f.Action.ResourceType()
		if f.ResourceType != nil && *f.ResourceType != rt {
			return nil, validationError("action does not apply to resource_type")
		}
		f.ResourceType = &rt
	}

	var ok bool
	if in.From != "" {
		if f.CreatedFrom, ok = parseDateTimeRFC3339(in.From); !ok {
			return nil, validationError("invalid from")
		}
	}
	if in.To != "" {
		if f.CreatedTo, ok = parseDateTimeRFC3339(in.To); !ok {
			return nil, validationError("invalid to")
		}
	}
	if f.CreatedFrom != nil && f.CreatedTo != nil && f.CreatedFrom.After(*f.CreatedTo) {
		return nil, validationError("from must be <= to")
	}

	logs, err := u.logs.List(ctx, f)
	if err != nil {
		return nil, internalError(err)
	}
	return logs, nil
}

// 1つの注文/商品に対する操作の履歴
func (u *AuditLogUsecase) History(ctx context.Context, actor policy.Actor, resourceType string, id int64) ([]model.AuditLog, error) {
	if !actor.Valid() {
		return nil, errUnauthorized
	}
	if !actor.IsAdmin() {
		return nil, errForbidden
	}
	rt := model.AuditResourceType(strings.ToLower(strings.TrimSpace(resourceType)))
	if !rt.Valid() {
		return nil, validationError("invalid resource_type")
	}
	if id <= 0 {
		return nil, validationError("invalid id")
	}

	logs, err := u.logs.ListForResource(ctx, rt, id)
	if err != nil {
		return nil, internalError(err)
	}
	return logs, nil
}

// Package policy はロールと所有者で「できる/できない」を判定する。
// handlerやusecaseで文字列比較を散らさないため、判定はここに集める。
package policy

import "marketplace/internal/domain/model"

// 操作するユーザー（認証済み）
type Actor struct {
	UserID int64
	Role   model.Role
}

func (a Actor) IsAdmin() bool {
	return a.Role == model.RoleAdmin
}

func (a Actor) Valid() bool {
	_, ok := model.ParseRole(string(a.Role))
	return a.UserID > 0 && ok
}

// 判定結果。Reasonは拒否時だけ入る
type Decision struct {
	Allowed bool
	Reason  string
}

var allow = Decision{Allowed: true}

func deny(reason string) Decision {
	return Decision{Allowed: false, Reason: reason}
}

const (
	ReasonNotOwner        = "not owner"
	ReasonAdminOnly       = "admin only"
	ReasonNotPending      = "only pending orders can be cancelled"
	ReasonCannotShop      = "role cannot use cart"
	ReasonNotCollaborator = "collaborator or admin only"
)

// 注文を見られるか（管理者 or 本人）
func CanViewOrder(a Actor, o model.Order) Decision {
	if a.IsAdmin() || o.UserID == a.UserID {
		return allow
	}
	return deny(ReasonNotOwner)
}

// 注文をキャンセルできるか
// 本人はPENDINGのときだけ。すでにCANCELLEDなら何もしないので許可する
func CanCancelOrder(a Actor, o model.Order) Decision {
	if a.IsAdmin() {
		return allow
	}
	if o.UserID != a.UserID {
		return deny(ReasonNotOwner)
	}
	switch o.Status {
	case model.OrderStatusPending, model.OrderStatusCancelled:
		return allow
	}
	return deny(ReasonNotPending)
}

// ステータス変更は管理者だけ
func CanUpdateOrderStatus(a Actor) Decision {
	if a.IsAdmin() {
		return allow
	}
	return deny(ReasonAdminOnly)
}

// カート・ほしい物リスト・注文確定・レビューができるロールか
// 注文はカートから作るので、カートを持てるコラボレーターも注文できる。管理者は買い物しない
// （管理者の注文操作は /admin/orders 側）
func CanShop(a Actor) Decision {
	if a.Role == model.RoleUser || a.Role == model.RoleCollaborator {
		return allow
	}
	return deny(ReasonCannotShop)
}

// 商品の作成ができるか（管理者 or コラボレーター）
func CanProposeProduct(a Actor) Decision {
	if a.Role == model.RoleAdmin || a.Role == model.RoleCollaborator {
		return allow
	}
	return deny(ReasonNotCollaborator)
}

// 商品の編集・削除ができるか（管理者 or 提案したコラボレーター）
func CanManageProduct(a Actor, p model.Product) Decision {
	if a.IsAdmin() {
		return allow
	}
	if a.Role == model.RoleCollaborator && p.OwnedBy(a.UserID) {
		return allow
	}
	return deny(ReasonNotOwner)
}

// 承認/却下は管理者だけ
func CanModerate(a Actor) Decision {
	if a.IsAdmin() {
		return allow
	}
	return deny(ReasonAdminOnly)
}

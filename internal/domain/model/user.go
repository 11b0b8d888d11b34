package model

import "time"

type Role string

const (
	RoleUser         Role = "USER"
	RoleCollaborator Role = "COLLABORATOR"
	RoleAdmin        Role = "ADMIN"
)

// JWTのroleクレームから変換する。知らない値はfalse
func ParseRole(s string) (Role, bool) {
	switch r := Role(s); r {
	case RoleUser, RoleCollaborator, RoleAdmin:
		return r, true
	}
	return "", false
}

// 認証は外部。ここではIDとロールとトークンバージョンだけ使う
type User struct {
	ID           int64  `gorm:"primaryKey;autoIncrement"`
	Email        string `gorm:"uniqueIndex;not null"`
	PasswordHash string `gorm:"column:password_hash;not null"`
	Role         Role   `gorm:"type:varchar(20);not null;default:'USER'"`
	TokenVersion int    `gorm:"not null;default:0"`
	IsActive     bool   `gorm:"not null;default:true"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

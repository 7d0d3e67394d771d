package models

import (
	"time"

	"gorm.io/gorm"
)

// Body 成员角色
const (
	BodyRoleManager = "manager"
	BodyRoleMember  = "member"
)

// Body 社团/院系等组织模型，活动挂在某个 Body 之下
type Body struct {
	ID uint `gorm:"primaryKey" json:"id"`

	Name        string `gorm:"uniqueIndex;not null" json:"name"`
	Description string `json:"description"`
	CreatedBy   uint   `gorm:"not null" json:"created_by"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Body) TableName() string {
	return "bodies"
}

// BodyMember 组织成员模型
type BodyMember struct {
	ID     uint   `gorm:"primaryKey" json:"id"`
	BodyID uint   `gorm:"not null;uniqueIndex:idx_body_user" json:"body_id"`
	UserID uint   `gorm:"not null;uniqueIndex:idx_body_user" json:"user_id"`
	Role   string `gorm:"type:varchar(20);default:member" json:"role"` // manager, member

	CreatedAt time.Time `json:"created_at"`
}

func (BodyMember) TableName() string {
	return "body_members"
}

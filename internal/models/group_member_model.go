package models

import "time"

// 成员角色
const (
	MemberRoleOwner  = "owner"
	MemberRoleAdmin  = "admin"
	MemberRoleMember = "member"
)

// 成员状态
const (
	MemberStatusActive  = "active"
	MemberStatusLeft    = "left"
	MemberStatusRemoved = "removed"
)

// GroupMember 群组成员模型
// 每个 (group, user) 只有一行，退出后重进复用同一行
type GroupMember struct {
	ID      uint   `gorm:"primaryKey" json:"id"`
	GroupID uint   `gorm:"not null;uniqueIndex:idx_group_user" json:"group_id"`
	UserID  uint   `gorm:"not null;uniqueIndex:idx_group_user" json:"user_id"`
	Role    string `gorm:"type:varchar(20);default:member" json:"role"`    // owner, admin, member
	Status  string `gorm:"type:varchar(20);default:active" json:"status"`  // active, left, removed
	ActedBy uint   `gorm:"not null" json:"acted_by"`                       // 最近一次状态变更的操作者

	JoinedAt  time.Time `json:"joined_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Group *Group `gorm:"foreignKey:GroupID" json:"-"`
	User  *User  `gorm:"foreignKey:UserID" json:"-"`
}

func (GroupMember) TableName() string {
	return "group_members"
}

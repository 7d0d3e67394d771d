package models

import "time"

// BlockedUser 拉黑关系模型
// 记录是有方向的（谁拉黑了谁），但业务查询永远按双向判断
type BlockedUser struct {
	ID uint `gorm:"primaryKey" json:"id"`

	BlockerID uint `gorm:"not null;uniqueIndex:idx_blocker_blocked" json:"blocker_id"`
	BlockedID uint `gorm:"not null;uniqueIndex:idx_blocker_blocked" json:"blocked_id"`

	CreatedAt time.Time `json:"created_at"`
}

func (BlockedUser) TableName() string {
	return "blocked_users"
}

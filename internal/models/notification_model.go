package models

import "time"

// Notification 通知模型
// 核心引擎只写不读，事务提交后再异步推送给在线客户端
type Notification struct {
	ID int64 `gorm:"primaryKey" json:"id"`

	UserID  uint   `gorm:"not null;index" json:"user_id"`
	Kind    string `gorm:"not null" json:"kind"`         // 例如 connection.accepted, message.read
	Payload string `gorm:"type:jsonb" json:"payload"`

	SeenAt    *time.Time `json:"seen_at"`
	CreatedAt time.Time  `json:"created_at"`
}

func (Notification) TableName() string {
	return "notifications"
}

package models

import (
	"time"

	"gorm.io/gorm"
)

// GroupMessage 群聊消息模型（活动群聊天走这里）
type GroupMessage struct {
	ID int64 `gorm:"primaryKey" json:"id"`

	GroupID    uint   `gorm:"not null;index" json:"group_id"`
	SenderID   uint   `gorm:"not null;index" json:"sender_id"`
	Content    string `gorm:"not null" json:"content"`
	MsgType    string `gorm:"default:text" json:"msg_type"` // text, image, file, system
	SequenceID int64  `gorm:"not null" json:"sequence_id"`  // 由 Redis INCR 生成，群内单调递增

	// IsOrganizer 发送者当时是否为该活动的管理员或组织者
	IsOrganizer bool `gorm:"default:false" json:"is_organizer"`

	CreatedAt time.Time      `json:"created_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Sender *User `gorm:"foreignKey:SenderID" json:"-"`
}

func (GroupMessage) TableName() string {
	return "group_messages"
}

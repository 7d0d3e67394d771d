package models

import (
	"time"

	"gorm.io/gorm"
)

// Message 私信模型
type Message struct {
	ID int64 `gorm:"primaryKey" json:"id"`

	SenderID   uint   `gorm:"not null;index:idx_msg_pair" json:"sender_id"`
	ReceiverID uint   `gorm:"not null;index:idx_msg_pair" json:"receiver_id"`
	Content    string `gorm:"not null" json:"content"`
	Attachment string `json:"attachment"`

	// IsConversationStart 发送时该用户对之间不存在任何历史消息
	// 新会话限流按此标志在窗口内计数
	IsConversationStart bool `gorm:"default:false;index" json:"-"`

	ReadAt    *time.Time     `json:"read_at"`
	CreatedAt time.Time      `gorm:"index" json:"created_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Sender   *User `gorm:"foreignKey:SenderID" json:"-"`
	Receiver *User `gorm:"foreignKey:ReceiverID" json:"-"`
}

func (Message) TableName() string {
	return "messages"
}

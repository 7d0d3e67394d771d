package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Connection 状态
const (
	ConnectionPending  = "pending"
	ConnectionAccepted = "accepted"
	ConnectionRejected = "rejected"
)

// Connection 连接请求模型
// 每对用户最多只存在一行，方向由 requester/receiver 记录
type Connection struct {
	ID uint `gorm:"primaryKey" json:"id"`

	RequesterID uint   `gorm:"not null;index" json:"requester_id"`
	ReceiverID  uint   `gorm:"not null;index" json:"receiver_id"`
	Status      string `gorm:"type:varchar(20);default:pending" json:"status"` // pending, accepted, rejected

	// PairKey 是无序用户对的规范化键（小ID:大ID），唯一索引保证反向重复请求也会撞约束
	PairKey string `gorm:"uniqueIndex;not null" json:"-"`

	Requester *User `gorm:"foreignKey:RequesterID" json:"-"`
	Receiver  *User `gorm:"foreignKey:ReceiverID" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Connection) TableName() string {
	return "connections"
}

// BeforeCreate 写入前计算无序对的规范化键
func (c *Connection) BeforeCreate(tx *gorm.DB) error {
	c.PairKey = PairKey(c.RequesterID, c.ReceiverID)
	return nil
}

// PairKey 生成无序用户对的规范化键
func PairKey(a, b uint) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%d:%d", a, b)
}

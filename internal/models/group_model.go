package models

import (
	"time"

	"gorm.io/gorm"
)

// Group 类型
const (
	GroupTypeRegular = "regular"
	GroupTypeEvent   = "event"
)

// Group 群组模型
// 普通群固定容量上限，活动群的上限由活动容量推导
type Group struct {
	ID uint `gorm:"primaryKey" json:"id"`

	Name       string `gorm:"not null" json:"name"`
	Type       string `gorm:"type:varchar(20);default:regular" json:"type"` // regular, event
	MaxMembers int    `gorm:"not null" json:"max_members"`
	IsActive   bool   `gorm:"default:true" json:"is_active"`
	CreatedBy  uint   `gorm:"not null" json:"created_by"`

	Creator *User         `gorm:"foreignKey:CreatedBy" json:"-"`
	Members []GroupMember `gorm:"foreignKey:GroupID" json:"-"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Group) TableName() string {
	return "groups"
}

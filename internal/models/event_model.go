package models

import (
	"time"

	"gorm.io/gorm"
)

// Event 状态
const (
	EventDraft     = "draft"
	EventPublished = "published"
	EventCancelled = "cancelled"
	EventCompleted = "completed" // 预留：由外部调度流程写入，本服务不暴露该迁移
)

// Event 活动模型，与一个 type=event 的 Group 一一对应
type Event struct {
	ID uint `gorm:"primaryKey" json:"id"`

	GroupID uint `gorm:"not null;uniqueIndex" json:"group_id"`
	BodyID  uint `gorm:"not null;index" json:"body_id"`

	Title       string `gorm:"not null" json:"title"`
	Description string `json:"description"`
	Location    string `json:"location"`

	Status   string `gorm:"type:varchar(20);default:draft" json:"status"` // draft, published, cancelled, completed
	Capacity *int   `json:"capacity"`                                     // nil 表示不限（群上限仍封顶）

	StartTime   time.Time  `json:"start_time"`
	EndTime     time.Time  `json:"end_time"`
	CancelledAt *time.Time `json:"cancelled_at"`
	CreatedBy   uint       `gorm:"not null" json:"created_by"`

	Group *Group `gorm:"foreignKey:GroupID" json:"-"`
	Body  *Body  `gorm:"foreignKey:BodyID" json:"-"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Event) TableName() string {
	return "events"
}

// EventAdmin 活动管理员集合，与群成员角色相互独立
type EventAdmin struct {
	ID      uint `gorm:"primaryKey" json:"id"`
	EventID uint `gorm:"not null;uniqueIndex:idx_event_admin" json:"event_id"`
	UserID  uint `gorm:"not null;uniqueIndex:idx_event_admin" json:"user_id"`
	AddedBy uint `gorm:"not null" json:"added_by"`

	CreatedAt time.Time `json:"created_at"`
}

func (EventAdmin) TableName() string {
	return "event_admins"
}

// EventOrganizer 活动组织者集合
type EventOrganizer struct {
	ID      uint `gorm:"primaryKey" json:"id"`
	EventID uint `gorm:"not null;uniqueIndex:idx_event_organizer" json:"event_id"`
	UserID  uint `gorm:"not null;uniqueIndex:idx_event_organizer" json:"user_id"`
	AddedBy uint `gorm:"not null" json:"added_by"`

	CreatedAt time.Time `json:"created_at"`
}

func (EventOrganizer) TableName() string {
	return "event_organizers"
}

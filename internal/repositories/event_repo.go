package repositories

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Gopher0727/CampusLink/internal/models"
)

// EventRepository 活动仓储
type EventRepository struct {
	db *gorm.DB
}

// NewEventRepository 创建活动仓储实例
func NewEventRepository(db *gorm.DB) *EventRepository {
	return &EventRepository{db: db}
}

// WithTx 返回绑定到事务的仓储副本
func (r *EventRepository) WithTx(tx *gorm.DB) *EventRepository {
	return &EventRepository{db: tx}
}

// DB 暴露底层连接，服务层用它开事务
func (r *EventRepository) DB() *gorm.DB {
	return r.db
}

// Create 创建活动
func (r *EventRepository) Create(event *models.Event) error {
	return r.db.Create(event).Error
}

// GetByID 根据ID获取活动
func (r *EventRepository) GetByID(id uint) (*models.Event, error) {
	var event models.Event
	if err := r.db.First(&event, id).Error; err != nil {
		return nil, err
	}
	return &event, nil
}

// LockByID 行锁获取活动（SELECT ... FOR UPDATE）
// 状态迁移和容量调整都先锁活动行，避免并发下的状态互踩
func (r *EventRepository) LockByID(id uint) (*models.Event, error) {
	var event models.Event
	err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).First(&event, id).Error
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// Save 保存活动
func (r *EventRepository) Save(event *models.Event) error {
	return r.db.Save(event).Error
}

// CountUserActiveEventMemberships 统计用户在 published/completed 活动中的活跃成员数
// 这是跨活动的单用户配额，和单个活动的容量无关
func (r *EventRepository) CountUserActiveEventMemberships(userID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.GroupMember{}).
		Joins("JOIN events ON events.group_id = group_members.group_id").
		Where("group_members.user_id = ? AND group_members.status = ?", userID, models.MemberStatusActive).
		Where("events.status IN ?", []string{models.EventPublished, models.EventCompleted}).
		Count(&count).Error
	return count, err
}

// IsAdmin 用户是否在活动管理员集合里
func (r *EventRepository) IsAdmin(eventID, userID uint) (bool, error) {
	var count int64
	err := r.db.Model(&models.EventAdmin{}).
		Where("event_id = ? AND user_id = ?", eventID, userID).
		Count(&count).Error
	return count > 0, err
}

// AddAdmin 添加活动管理员，幂等
func (r *EventRepository) AddAdmin(admin *models.EventAdmin) error {
	return r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(admin).Error
}

// IsOrganizer 用户是否在活动组织者集合里
func (r *EventRepository) IsOrganizer(eventID, userID uint) (bool, error) {
	var count int64
	err := r.db.Model(&models.EventOrganizer{}).
		Where("event_id = ? AND user_id = ?", eventID, userID).
		Count(&count).Error
	return count > 0, err
}

// AddOrganizer 添加活动组织者，幂等
func (r *EventRepository) AddOrganizer(organizer *models.EventOrganizer) error {
	return r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(organizer).Error
}

// ListForBody 列出某组织下的活动
func (r *EventRepository) ListForBody(bodyID uint, limit, offset int) ([]models.Event, int64, error) {
	var events []models.Event
	var total int64

	query := r.db.Model(&models.Event{}).Where("body_id = ?", bodyID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.Order("start_time ASC").Limit(limit).Offset(offset).Find(&events).Error
	return events, total, err
}

// CreateGroupMessage 写入群聊消息
func (r *EventRepository) CreateGroupMessage(msg *models.GroupMessage) error {
	return r.db.Create(msg).Error
}

// ListGroupMessages 按时间倒序列出群聊消息
func (r *EventRepository) ListGroupMessages(groupID uint, limit, offset int) ([]models.GroupMessage, int64, error) {
	var messages []models.GroupMessage
	var total int64

	query := r.db.Model(&models.GroupMessage{}).Where("group_id = ?", groupID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.Preload("Sender").
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&messages).Error
	return messages, total, err
}

package repositories

import (
	"time"

	"gorm.io/gorm"

	"github.com/Gopher0727/CampusLink/internal/models"
)

// NotificationRepository 通知仓储
type NotificationRepository struct {
	db *gorm.DB
}

// NewNotificationRepository 创建通知仓储实例
func NewNotificationRepository(db *gorm.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// WithTx 返回绑定到事务的仓储副本
func (r *NotificationRepository) WithTx(tx *gorm.DB) *NotificationRepository {
	return &NotificationRepository{db: tx}
}

// Create 写入通知记录
func (r *NotificationRepository) Create(n *models.Notification) error {
	return r.db.Create(n).Error
}

// CreateBatch 批量写入通知记录
func (r *NotificationRepository) CreateBatch(ns []models.Notification) error {
	if len(ns) == 0 {
		return nil
	}
	return r.db.Create(&ns).Error
}

// ListForUser 按时间倒序列出用户的通知
func (r *NotificationRepository) ListForUser(userID uint, limit, offset int) ([]models.Notification, int64, error) {
	var ns []models.Notification
	var total int64

	query := r.db.Model(&models.Notification{}).Where("user_id = ?", userID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&ns).Error
	return ns, total, err
}

// MarkSeen 标记通知为已读
func (r *NotificationRepository) MarkSeen(userID uint, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.Model(&models.Notification{}).
		Where("user_id = ? AND id IN ? AND seen_at IS NULL", userID, ids).
		Update("seen_at", time.Now()).Error
}

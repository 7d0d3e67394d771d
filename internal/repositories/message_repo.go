package repositories

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/Gopher0727/CampusLink/internal/models"
)

// MessageRepository 私信仓储
type MessageRepository struct {
	db *gorm.DB
}

// NewMessageRepository 创建私信仓储实例
func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// WithTx 返回绑定到事务的仓储副本
func (r *MessageRepository) WithTx(tx *gorm.DB) *MessageRepository {
	return &MessageRepository{db: tx}
}

// Create 创建私信
func (r *MessageRepository) Create(message *models.Message) error {
	return r.db.Create(message).Error
}

// HasPriorMessage 判断两个用户之间是否已有任意方向的历史消息
// 没有则本条是"新会话"，计入发送者的新会话限流
func (r *MessageRepository) HasPriorMessage(a, b uint) (bool, error) {
	var count int64
	err := r.db.Model(&models.Message{}).
		Where("(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)", a, b, b, a).
		Count(&count).Error
	return count > 0, err
}

// CountConversationStartsSince 统计发送者在 since 之后开启的新会话数
func (r *MessageRepository) CountConversationStartsSince(ctx context.Context, senderID uint, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Message{}).
		Where("sender_id = ? AND is_conversation_start = ? AND created_at >= ?", senderID, true, since).
		Count(&count).Error
	return count, err
}

// ListUnreadFrom 列出 sender 发给 receiver 的所有未读消息ID
func (r *MessageRepository) ListUnreadFrom(receiverID, senderID uint) ([]int64, error) {
	var ids []int64
	err := r.db.Model(&models.Message{}).
		Where("sender_id = ? AND receiver_id = ? AND read_at IS NULL", senderID, receiverID).
		Order("id ASC").
		Pluck("id", &ids).Error
	return ids, err
}

// MarkRead 将指定消息标记为已读
func (r *MessageRepository) MarkRead(ids []int64, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.Model(&models.Message{}).
		Where("id IN ? AND read_at IS NULL", ids).
		Update("read_at", at).Error
}

// ListConversation 按时间倒序列出两个用户之间的消息
func (r *MessageRepository) ListConversation(a, b uint, limit, offset int) ([]models.Message, int64, error) {
	var messages []models.Message
	var total int64

	query := r.db.Model(&models.Message{}).
		Where("(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)", a, b, b, a)

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

// CountUnread 统计 sender 发给 receiver 的未读消息数
func (r *MessageRepository) CountUnread(receiverID, senderID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.Message{}).
		Where("sender_id = ? AND receiver_id = ? AND read_at IS NULL", senderID, receiverID).
		Count(&count).Error
	return count, err
}

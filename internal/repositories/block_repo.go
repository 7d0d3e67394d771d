package repositories

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Gopher0727/CampusLink/internal/models"
)

// BlockRepository 拉黑关系仓储
type BlockRepository struct {
	db *gorm.DB
}

// NewBlockRepository 创建拉黑关系仓储实例
func NewBlockRepository(db *gorm.DB) *BlockRepository {
	return &BlockRepository{db: db}
}

// Block 建立拉黑关系，重复调用是幂等的（冲突时不报错）
func (r *BlockRepository) Block(blockerID, blockedID uint) error {
	rel := &models.BlockedUser{BlockerID: blockerID, BlockedID: blockedID}
	return r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(rel).Error
}

// Unblock 解除拉黑关系，不存在时也不报错
func (r *BlockRepository) Unblock(blockerID, blockedID uint) error {
	return r.db.Where("blocker_id = ? AND blocked_id = ?", blockerID, blockedID).
		Delete(&models.BlockedUser{}).Error
}

// IsBlockedEither 双向判断两个用户之间是否存在拉黑
// 任意一个方向存在都会否决连接请求和私信
func (r *BlockRepository) IsBlockedEither(a, b uint) (bool, error) {
	var count int64
	err := r.db.Model(&models.BlockedUser{}).
		Where("(blocker_id = ? AND blocked_id = ?) OR (blocker_id = ? AND blocked_id = ?)", a, b, b, a).
		Count(&count).Error
	return count > 0, err
}

// ListBlocked 列出用户拉黑的所有人
func (r *BlockRepository) ListBlocked(blockerID uint) ([]models.BlockedUser, error) {
	var rels []models.BlockedUser
	err := r.db.Where("blocker_id = ?", blockerID).Order("created_at DESC").Find(&rels).Error
	return rels, err
}

package repositories

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Gopher0727/CampusLink/internal/models"
)

// BodyRepository 组织（社团/院系）仓储
type BodyRepository struct {
	db *gorm.DB
}

// NewBodyRepository 创建组织仓储实例
func NewBodyRepository(db *gorm.DB) *BodyRepository {
	return &BodyRepository{db: db}
}

// Create 创建组织
func (r *BodyRepository) Create(body *models.Body) error {
	return r.db.Create(body).Error
}

// GetByID 根据ID获取组织
func (r *BodyRepository) GetByID(id uint) (*models.Body, error) {
	var body models.Body
	if err := r.db.First(&body, id).Error; err != nil {
		return nil, err
	}
	return &body, nil
}

// IsMember 用户是否是组织成员
func (r *BodyRepository) IsMember(bodyID, userID uint) (bool, error) {
	var count int64
	err := r.db.Model(&models.BodyMember{}).
		Where("body_id = ? AND user_id = ?", bodyID, userID).
		Count(&count).Error
	return count > 0, err
}

// GetMember 获取组织成员行
func (r *BodyRepository) GetMember(bodyID, userID uint) (*models.BodyMember, error) {
	var member models.BodyMember
	err := r.db.Where("body_id = ? AND user_id = ?", bodyID, userID).First(&member).Error
	if err != nil {
		return nil, err
	}
	return &member, nil
}

// AddMember 添加组织成员，幂等
func (r *BodyRepository) AddMember(member *models.BodyMember) error {
	return r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(member).Error
}

// ListMembers 分页列出组织成员
func (r *BodyRepository) ListMembers(bodyID uint, limit, offset int) ([]models.BodyMember, int64, error) {
	var members []models.BodyMember
	var total int64

	query := r.db.Model(&models.BodyMember{}).Where("body_id = ?", bodyID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.Limit(limit).Offset(offset).Find(&members).Error
	return members, total, err
}

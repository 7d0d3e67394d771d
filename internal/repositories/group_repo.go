package repositories

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Gopher0727/CampusLink/internal/models"
)

// GroupRepository 群组仓储
type GroupRepository struct {
	db *gorm.DB
}

// NewGroupRepository 创建群组仓储实例
func NewGroupRepository(db *gorm.DB) *GroupRepository {
	return &GroupRepository{db: db}
}

// WithTx 返回绑定到事务的仓储副本
func (r *GroupRepository) WithTx(tx *gorm.DB) *GroupRepository {
	return &GroupRepository{db: tx}
}

// DB 暴露底层连接，服务层用它开事务
func (r *GroupRepository) DB() *gorm.DB {
	return r.db
}

// Create 创建群组
func (r *GroupRepository) Create(group *models.Group) error {
	return r.db.Create(group).Error
}

// GetByID 根据ID获取群组
func (r *GroupRepository) GetByID(id uint) (*models.Group, error) {
	var group models.Group
	if err := r.db.First(&group, id).Error; err != nil {
		return nil, err
	}
	return &group, nil
}

// LockByID 行锁获取群组（SELECT ... FOR UPDATE）
// 所有依赖成员计数的容量/下限检查必须先拿到这把锁再数，
// 同一群组的并发修改在这里串行化，不同群组互不影响
func (r *GroupRepository) LockByID(id uint) (*models.Group, error) {
	var group models.Group
	err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).First(&group, id).Error
	if err != nil {
		return nil, err
	}
	return &group, nil
}

// CountActiveMembers 统计活跃成员数
func (r *GroupRepository) CountActiveMembers(groupID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.GroupMember{}).
		Where("group_id = ? AND status = ?", groupID, models.MemberStatusActive).
		Count(&count).Error
	return count, err
}

// GetMember 获取成员行，任何状态
func (r *GroupRepository) GetMember(groupID, userID uint) (*models.GroupMember, error) {
	var member models.GroupMember
	err := r.db.Where("group_id = ? AND user_id = ?", groupID, userID).First(&member).Error
	if err != nil {
		return nil, err
	}
	return &member, nil
}

// CreateMember 插入成员行
func (r *GroupRepository) CreateMember(member *models.GroupMember) error {
	return r.db.Create(member).Error
}

// SaveMember 保存成员行（重进群时复用旧行）
func (r *GroupRepository) SaveMember(member *models.GroupMember) error {
	return r.db.Save(member).Error
}

// UpdateMaxMembers 更新群容量上限
func (r *GroupRepository) UpdateMaxMembers(groupID uint, maxMembers int) error {
	return r.db.Model(&models.Group{}).Where("id = ?", groupID).
		Update("max_members", maxMembers).Error
}

// ListActiveMembers 分页列出活跃成员
func (r *GroupRepository) ListActiveMembers(groupID uint, limit, offset int) ([]models.GroupMember, int64, error) {
	var members []models.GroupMember
	var total int64

	query := r.db.Model(&models.GroupMember{}).
		Where("group_id = ? AND status = ?", groupID, models.MemberStatusActive)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.Preload("User").
		Order("joined_at ASC").
		Limit(limit).
		Offset(offset).
		Find(&members).Error
	return members, total, err
}

// ListUserGroups 列出用户活跃加入的群组
func (r *GroupRepository) ListUserGroups(userID uint, limit, offset int) ([]models.Group, int64, error) {
	var groups []models.Group
	var total int64

	query := r.db.Model(&models.Group{}).
		Joins("JOIN group_members ON groups.id = group_members.group_id").
		Where("group_members.user_id = ? AND group_members.status = ?", userID, models.MemberStatusActive)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.Limit(limit).Offset(offset).Find(&groups).Error
	return groups, total, err
}

package repositories

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Gopher0727/CampusLink/internal/models"
)

// ConnectionRepository 连接请求仓储
type ConnectionRepository struct {
	db *gorm.DB
}

// NewConnectionRepository 创建连接请求仓储实例
func NewConnectionRepository(db *gorm.DB) *ConnectionRepository {
	return &ConnectionRepository{db: db}
}

// WithTx 返回绑定到事务的仓储副本
func (r *ConnectionRepository) WithTx(tx *gorm.DB) *ConnectionRepository {
	return &ConnectionRepository{db: tx}
}

// Create 插入连接请求
// 规范化用户对的唯一索引会拦截正反两个方向的重复请求
func (r *ConnectionRepository) Create(conn *models.Connection) error {
	return r.db.Create(conn).Error
}

// GetByID 根据ID获取连接
func (r *ConnectionRepository) GetByID(id uint) (*models.Connection, error) {
	var conn models.Connection
	if err := r.db.First(&conn, id).Error; err != nil {
		return nil, err
	}
	return &conn, nil
}

// LockByID 行锁获取连接（SELECT ... FOR UPDATE）
// 响应请求前先锁行，并发的两次 accept 只会有一次看到 pending
func (r *ConnectionRepository) LockByID(id uint) (*models.Connection, error) {
	var conn models.Connection
	err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).First(&conn, id).Error
	if err != nil {
		return nil, err
	}
	return &conn, nil
}

// GetByPair 按无序用户对查询连接
func (r *ConnectionRepository) GetByPair(a, b uint) (*models.Connection, error) {
	var conn models.Connection
	err := r.db.Where("pair_key = ?", models.PairKey(a, b)).First(&conn).Error
	if err != nil {
		return nil, err
	}
	return &conn, nil
}

// UpdateStatus 更新连接状态
func (r *ConnectionRepository) UpdateStatus(id uint, status string) error {
	return r.db.Model(&models.Connection{}).Where("id = ?", id).Update("status", status).Error
}

// CountRecentByRequester 统计请求者在 since 之后发起的连接请求数，限流用
func (r *ConnectionRepository) CountRecentByRequester(ctx context.Context, requesterID uint, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Connection{}).
		Where("requester_id = ? AND created_at >= ?", requesterID, since).
		Count(&count).Error
	return count, err
}

// ListForUser 列出用户相关的连接，可按状态过滤
func (r *ConnectionRepository) ListForUser(userID uint, status string, limit, offset int) ([]models.Connection, int64, error) {
	var conns []models.Connection
	var total int64

	query := r.db.Model(&models.Connection{}).
		Where("requester_id = ? OR receiver_id = ?", userID, userID)
	if status != "" {
		query = query.Where("status = ?", status)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&conns).Error
	return conns, total, err
}

package storage

import (
	"fmt"
	"log"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Gopher0727/CampusLink/internal/models"
)

// InitPostgres 初始化 PostgreSQL 连接
func InitPostgres(dsn string, maxIdleConns, maxOpenConns int) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
		// 唯一约束冲突翻译成 gorm.ErrDuplicatedKey，服务层据此映射为业务冲突
		TranslateError: true,
	})
	if err != nil {
		log.Printf("连接数据库失败: %v", err)
		return nil, err
	}

	// 获取底层 sql.DB 对象以设置连接池
	sqlDB, err := db.DB()
	if err != nil {
		log.Printf("获取 sql.DB 失败: %v", err)
		return nil, err
	}

	// 设置连接池参数
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetMaxOpenConns(maxOpenConns)

	// 自动迁移
	if err := Migrate(db); err != nil {
		log.Printf("模型迁移失败: %v", err)
		return nil, err
	}
	return db, nil
}

// Migrate 迁移全部核心表
// 唯一约束是契约的一部分：connections 的规范化用户对、group_members 的 (group_id, user_id)
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Connection{},
		&models.BlockedUser{},
		&models.Message{},
		&models.Group{},
		&models.GroupMember{},
		&models.GroupMessage{},
		&models.Body{},
		&models.BodyMember{},
		&models.Event{},
		&models.EventAdmin{},
		&models.EventOrganizer{},
		&models.Notification{},
	)
}

// BuildDSN 构建 PostgreSQL DSN
func BuildDSN(host, port, user, password, dbname string) string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable", host, port, user, password, dbname)
}

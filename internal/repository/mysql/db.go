package mysql

import (
	"errors"
	"strings"
	"time"

	"Photo_Archive/internal/model"
	"Photo_Archive/internal/repository/interfaces"

	mysqlDriver "gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// InitDB 连接 MySQL 并配置连接池
func InitDB(dsn string, maxOpen, maxIdle int) (*gorm.DB, error) {
	db, err := gorm.Open(mysqlDriver.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxIdle)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)
	return db, nil
}

// AutoMigrate 自动建表（开发阶段 OK）
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.User{},
		&model.ContentItem{},
		&model.EngagementRecord{},
		&model.UserStats{},
		&model.UserBadge{},
		&model.Notification{},
	)
}

// translate gorm 错误到仓储层哨兵错误
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return interfaces.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey), strings.Contains(err.Error(), "Duplicate entry"):
		return interfaces.ErrDuplicate
	}
	return err
}

var (
	_ interfaces.ContentRepository          = (*ContentRepository)(nil)
	_ interfaces.EngagementRepository       = (*EngagementRepository)(nil)
	_ interfaces.CounterReconcileRepository = (*CounterReconcilerRepo)(nil)
	_ interfaces.StatsRepository            = (*StatsRepository)(nil)
	_ interfaces.BadgeRepository            = (*BadgeRepository)(nil)
	_ interfaces.NotificationRepository     = (*NotificationRepository)(nil)
	_ interfaces.UserRepository             = (*UserRepository)(nil)
)

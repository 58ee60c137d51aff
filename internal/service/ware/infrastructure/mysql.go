package infrastructure

import (
	"time"

	"github.com/pkg/errors"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// OpenMySQL 打开 GORM 连接并设置连接池，autoMigrate 为 true 时建表
func OpenMySQL(dsn string, maxOpen, maxIdle int, autoMigrate bool) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger:                 gormlogger.Default.LogMode(gormlogger.Warn),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "open mysql")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "get sql.DB")
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxIdle)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	if autoMigrate {
		if err := db.AutoMigrate(AllModels()...); err != nil {
			return nil, errors.Wrap(err, "auto migrate ware tables")
		}
	}
	return db, nil
}

// internal/service/promotion/infrastructure/db.go
package infrastructure

import (
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// NewDB 建立 MySQL 连接并迁移表结构。
// TranslateError 让唯一索引冲突统一映射为 gorm.ErrDuplicatedKey，
// GrantStore 的幂等判定依赖这一点。
func NewDB(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mysql: %w", err)
	}

	if err := db.AutoMigrate(
		&CouponModel{},
		&CouponScopeModel{},
		&UserCouponModel{},
		&ExchangeCodeModel{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate promotion tables: %w", err)
	}
	return db, nil
}

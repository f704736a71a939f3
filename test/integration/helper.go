//go:build integration

// Package integration 依赖真实MySQL/Redis的集成测试
//
// 运行方式：
//
//	docker compose up -d mysql redis
//	AFTERSALES_TEST_DSN="root:root@tcp(127.0.0.1:3306)/aftersales_test?charset=utf8mb4&parseTime=True&loc=Local" \
//	AFTERSALES_TEST_REDIS=127.0.0.1:6379 \
//	go test -tags integration ./test/integration/...
//
// 环境变量未设置时跳过对应测试。
package integration

import (
	"context"
	"os"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/xiebiao/aftersales/internal/domain/suborder"
	mysqlrepo "github.com/xiebiao/aftersales/internal/infrastructure/persistence/mysql"
)

// openDB 连接测试库，迁移表结构并清空数据
func openDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := os.Getenv("AFTERSALES_TEST_DSN")
	if dsn == "" {
		t.Skip("AFTERSALES_TEST_DSN 未设置，跳过MySQL集成测试")
	}
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, mysqlrepo.AutoMigrate(db))

	for _, table := range []string{"aftersales_logs", "aftersales_refund_orders", "aftersales_return_orders", "aftersales_exchange_orders", "aftersales", "order_products", "sku_prices"} {
		require.NoError(t, db.Exec("DELETE FROM "+table).Error)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

// openRedis 连接测试Redis
func openRedis(t *testing.T) *goredis.Client {
	t.Helper()
	addr := os.Getenv("AFTERSALES_TEST_REDIS")
	if addr == "" {
		t.Skip("AFTERSALES_TEST_REDIS 未设置，跳过Redis集成测试")
	}
	client := goredis.NewClient(&goredis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, client.Ping(ctx).Err())
	t.Cleanup(func() { client.Close() })
	return client
}

// seedLine 写入一条订单明细
func seedLine(t *testing.T, db *gorm.DB, id uint, orderID string, userID uint, qty int, unitPaid string) {
	t.Helper()
	require.NoError(t, db.Create(&mysqlrepo.OrderLineModel{
		ID:            id,
		OrderID:       orderID,
		UserID:        userID,
		ProductID:     id * 10,
		SkuID:         id * 100,
		ProductCode:   "BK-" + orderID,
		ProductName:   "集成测试图书",
		Quantity:      qty,
		OriginalPrice: decimal.RequireFromString("30.00"),
		UnitPaidPrice: decimal.RequireFromString(unitPaid),
	}).Error)
}

type warehouse struct{}

func (warehouse) DefaultAddress(context.Context) (suborder.Address, error) {
	return suborder.Address{Name: "售后仓", Phone: "021-88886666", Address: "上海市浦东新区仓储路1号"}, nil
}

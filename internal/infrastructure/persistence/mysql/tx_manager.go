package mysql

import (
	"context"

	"gorm.io/gorm"
)

// txKey context中保存事务DB的key
type txKey struct{}

// TxManager 事务管理器
// 教学要点:
// 1. 封装GORM的Transaction方法
// 2. 通过context传递事务DB(避免全局变量)
// 3. 嵌套调用直接复用外层事务,保证加锁和写日志在同一个事务里
type TxManager struct {
	db *gorm.DB
}

// NewTxManager 创建事务管理器
func NewTxManager(db *gorm.DB) *TxManager {
	return &TxManager{db: db}
}

// Transaction 执行事务
// fn返回error时自动ROLLBACK,返回nil时自动COMMIT
//
// 使用示例:
//
//	err := txManager.Transaction(ctx, func(ctx context.Context) error {
//	    c, err := caseRepo.LockByID(ctx, id)   // SELECT ... FOR UPDATE
//	    if err != nil {
//	        return err
//	    }
//	    if err := c.Approve(now); err != nil {
//	        return err
//	    }
//	    if err := caseRepo.Update(ctx, c); err != nil {
//	        return err // 自动回滚
//	    }
//	    return logRepo.Append(ctx, log)
//	})
func (m *TxManager) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return fn(ctx)
	}
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

// conn 仓储共用:有事务用事务DB,否则用默认DB
type conn struct {
	db *gorm.DB
}

func (c conn) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx
	}
	return c.db.WithContext(ctx)
}

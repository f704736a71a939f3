package oms

import (
	"context"
	"sync"
	"time"

	apperrors "github.com/xiebiao/aftersales/pkg/errors"
)

// Locker 按售后单号加分布式锁(由redis.SyncLock实现)
// 同一单号的并发推送串行化,拿不到锁返回ErrLockBusy,由OMS重试
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, err error)
}

// LocalLocker 进程内锁,单实例部署和测试使用
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewLocalLocker 创建进程内锁
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]struct{})}
}

// Acquire 已被持有时立即返回ErrLockBusy
func (l *LocalLocker) Acquire(_ context.Context, key string, _ time.Duration) (func(context.Context) error, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return nil, apperrors.ErrLockBusy
	}
	l.held[key] = struct{}{}
	return func(context.Context) error {
		l.mu.Lock()
		delete(l.held, key)
		l.mu.Unlock()
		return nil
	}, nil
}

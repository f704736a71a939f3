package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	apperrors "github.com/xiebiao/aftersales/pkg/errors"
)

// releaseScript 只删除自己持有的锁
// 避免锁过期后被其他实例拿到,再被本实例误删
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// SyncLock 基于Redis的分布式锁
// 教学要点:
// 1. SET key token NX PX ttl:不存在才写入,原子地设置过期时间
// 2. token随机生成,释放时用Lua脚本比较后删除
// 3. 拿不到锁立即返回ErrLockBusy,不在服务端排队等待
//
// Key由调用方拼好,如 aftersales:oms:lock:{aftersales_no}
type SyncLock struct {
	client *redis.Client
}

// NewSyncLock 创建分布式锁
func NewSyncLock(client *redis.Client) *SyncLock {
	return &SyncLock{client: client}
}

// Acquire 获取锁,返回释放函数
func (l *SyncLock) Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, apperrors.Wrap(err, "获取同步锁失败")
	}
	if !ok {
		return nil, apperrors.ErrLockBusy
	}

	return func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
			return apperrors.Wrap(err, "释放同步锁失败")
		}
		return nil
	}, nil
}

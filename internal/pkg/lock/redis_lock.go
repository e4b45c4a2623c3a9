// internal/pkg/lock/redis_lock.go
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"polaris/internal/pkg/redis"
)

const (
	acquireScriptName = "lock_acquire"
	releaseScriptName = "lock_release"

	// 自旋重试间隔。锁的临界区都很短，没必要做指数退避。
	retryInterval = 50 * time.Millisecond
)

// 可重入获取：hash 的 field 是 owner token，value 是重入计数。
// 返回 nil 表示成功，否则返回当前锁的剩余 TTL（毫秒）。
var acquireScript = `
if (redis.call('exists', KEYS[1]) == 0) then
    redis.call('hincrby', KEYS[1], ARGV[2], 1)
    redis.call('pexpire', KEYS[1], ARGV[1])
    return nil
end
if (redis.call('hexists', KEYS[1], ARGV[2]) == 1) then
    redis.call('hincrby', KEYS[1], ARGV[2], 1)
    redis.call('pexpire', KEYS[1], ARGV[1])
    return nil
end
return redis.call('pttl', KEYS[1])
`

// 释放：只有持有者能释放，计数归零才真正删除 key。
var releaseScript = `
if (redis.call('hexists', KEYS[1], ARGV[2]) == 0) then
    return nil
end
local counter = redis.call('hincrby', KEYS[1], ARGV[2], -1)
if (counter > 0) then
    redis.call('pexpire', KEYS[1], ARGV[1])
    return 0
end
redis.call('del', KEYS[1])
return 1
`

// RedisLocker 是 Locker 的 redis 实现，语义对齐 Redisson 的可重入锁：
// 锁本体是一个 hash，owner token 计数实现重入，租约到期自动释放，
// 防止持有者崩溃后死锁。
type RedisLocker struct {
	client *redis.Client
	lease  time.Duration
}

// NewRedisLocker 创建 redis 锁工厂并注册 Lua 脚本。
func NewRedisLocker(client *redis.Client, lease time.Duration) (*RedisLocker, error) {
	if err := client.LoadScriptFromContent(acquireScriptName, acquireScript); err != nil {
		return nil, err
	}
	if err := client.LoadScriptFromContent(releaseScriptName, releaseScript); err != nil {
		return nil, err
	}
	return &RedisLocker{client: client, lease: lease}, nil
}

// Acquire 在 wait 时间内轮询获取锁。owner token 来自 ctx
//（见 ContextWithOwner），没有就临时生成一个（不可重入但依然互斥）。
func (l *RedisLocker) Acquire(ctx context.Context, name string, wait time.Duration) (func(ctx context.Context) error, error) {
	ctx = ContextWithOwner(ctx)
	owner, _ := OwnerFromContext(ctx)

	deadline := time.Now().Add(wait)
	leaseMillis := l.lease.Milliseconds()

	for {
		_, err := l.client.RunScript(ctx, acquireScriptName, []string{name}, leaseMillis, owner)
		if errors.Is(err, goredis.Nil) {
			// 脚本返回 nil 即获取成功
			release := func(ctx context.Context) error {
				_, err := l.client.RunScript(ctx, releaseScriptName, []string{name}, leaseMillis, owner)
				if err != nil && !errors.Is(err, goredis.Nil) {
					return fmt.Errorf("failed to release lock %s: %w", name, err)
				}
				return nil
			}
			return release, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to acquire lock %s: %w", name, err)
		}

		// 没抢到，限时重试
		if time.Now().Add(retryInterval).After(deadline) {
			return nil, ErrLockTimeout
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryInterval):
		}
	}
}

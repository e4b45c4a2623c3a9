// internal/pkg/lock/lock.go
package lock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrLockTimeout 表示在限定等待时间内没有抢到锁。
// 获取锁的重试由调用方决定，这里不做内部无限重试。
var ErrLockTimeout = errors.New("lock: wait timeout")

// Locker 是命名分布式锁的抽象。Acquire 在 wait 时间内尝试获取名为 name
// 的互斥锁，成功时返回释放函数；超时返回 ErrLockTimeout。
// 可重入性由实现决定：redis 实现按 ctx 中的 owner token 重入计数。
type Locker interface {
	Acquire(ctx context.Context, name string, wait time.Duration) (release func(ctx context.Context) error, err error)
}

type ownerKeyType struct{}

var ownerKey ownerKeyType

// ContextWithOwner 确保 ctx 携带一个锁持有者标识。同一请求内的嵌套
// 加锁共享同一个标识，从而获得重入语义；不同请求各自生成新标识。
// 这是对"线程 ID 重入"的显式替代，不依赖任何 goroutine 局部状态。
func ContextWithOwner(ctx context.Context) context.Context {
	if _, ok := OwnerFromContext(ctx); ok {
		return ctx
	}
	return context.WithValue(ctx, ownerKey, uuid.NewString())
}

// OwnerFromContext 取出 ctx 中的锁持有者标识。
func OwnerFromContext(ctx context.Context) (string, bool) {
	owner, ok := ctx.Value(ownerKey).(string)
	return owner, ok
}

// WithLock 是加锁执行的装饰器：获取名为 name 的锁，执行 body，
// 并保证所有退出路径（包括 panic）都会释放锁。
func WithLock(ctx context.Context, locker Locker, name string, wait time.Duration, body func(ctx context.Context) error) error {
	ctx = ContextWithOwner(ctx)

	release, err := locker.Acquire(ctx, name, wait)
	if err != nil {
		return err
	}
	defer release(ctx)

	return body(ctx)
}

// internal/pkg/lock/zk_lock.go
package lock

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-zookeeper/zk"
)

const lockRoot = "/promotion_locks" // 所有分布式锁的根节点

// ZkLocker 是 Locker 的 ZooKeeper 实现：临时顺序节点 + 监听前驱。
// 与 redis 实现不同，它不可重入，作为配置项提供给不部署 redis 集群的
// 环境使用（lock.provider=zookeeper）。
type ZkLocker struct {
	conn *zk.Conn
}

// NewZkLocker 连接 ZooKeeper 并确保锁根节点存在。
func NewZkLocker(servers []string) (*ZkLocker, error) {
	conn, _, err := zk.Connect(servers, 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to zookeeper: %w", err)
	}

	if _, err := conn.Create(lockRoot, []byte{}, 0, zk.WorldACL(zk.PermAll)); err != nil && err != zk.ErrNodeExists {
		conn.Close()
		return nil, fmt.Errorf("failed to create lock root node: %w", err)
	}

	return &ZkLocker{conn: conn}, nil
}

// Acquire 在锁路径下创建临时顺序节点，自己是最小节点则持有锁，
// 否则监听前一个节点，整体受 wait 限时约束。
func (l *ZkLocker) Acquire(ctx context.Context, name string, wait time.Duration) (func(ctx context.Context) error, error) {
	lockPath := lockRoot + "/" + sanitize(name)
	if _, err := l.conn.Create(lockPath, []byte{}, 0, zk.WorldACL(zk.PermAll)); err != nil && err != zk.ErrNodeExists {
		return nil, fmt.Errorf("failed to create lock path node %s: %w", lockPath, err)
	}

	// 1. 创建临时顺序节点，格式为 <lockPath>/lock-<seq>
	nodePath, err := l.conn.CreateProtectedEphemeralSequential(lockPath+"/lock-", []byte{}, zk.WorldACL(zk.PermAll))
	if err != nil {
		return nil, fmt.Errorf("failed to create sequential node: %w", err)
	}

	release := func(ctx context.Context) error {
		if err := l.conn.Delete(nodePath, -1); err != nil && err != zk.ErrNoNode {
			return fmt.Errorf("failed to delete lock node: %w", err)
		}
		return nil
	}

	deadline := time.Now().Add(wait)
	for {
		// 2. 获取锁路径下的所有子节点并排序
		children, _, err := l.conn.Children(lockPath)
		if err != nil {
			release(ctx)
			return nil, fmt.Errorf("failed to get children nodes: %w", err)
		}
		sort.Strings(children)

		// 3. 自己是最小节点则成功获取锁
		myNodeName := strings.TrimPrefix(nodePath, lockPath+"/")
		if myNodeName == children[0] {
			return release, nil
		}

		// 4. 不是最小节点，监听前一个节点
		prevNodeIndex := -1
		for i, child := range children {
			if child == myNodeName {
				prevNodeIndex = i - 1
				break
			}
		}
		if prevNodeIndex < 0 {
			release(ctx)
			return nil, fmt.Errorf("cannot find own node %s among children", myNodeName)
		}
		prevNodePath := lockPath + "/" + children[prevNodeIndex]

		exists, _, eventChan, err := l.conn.ExistsW(prevNodePath)
		if err != nil {
			release(ctx)
			return nil, fmt.Errorf("failed to watch previous node: %w", err)
		}
		if !exists {
			// 前驱刚好被删除，重新竞争
			continue
		}

		remain := time.Until(deadline)
		if remain <= 0 {
			release(ctx)
			return nil, ErrLockTimeout
		}

		select {
		case event := <-eventChan:
			if event.Type == zk.EventNodeDeleted {
				continue
			}
		case <-time.After(remain):
			release(ctx)
			return nil, ErrLockTimeout
		case <-ctx.Done():
			release(ctx)
			return nil, ctx.Err()
		}
	}
}

// Close 断开 ZooKeeper 连接，临时节点随会话销毁。
func (l *ZkLocker) Close() {
	l.conn.Close()
}

// sanitize 把锁名中的路径分隔符替换掉，锁名来自业务 key，
// 例如 lock:coupon:cid:123。
func sanitize(name string) string {
	return strings.ReplaceAll(name, "/", "_")
}

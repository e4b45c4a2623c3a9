// internal/pkg/redis/client.go
package redis

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Client 在 go-redis 之上封装了一个带名字的 Lua 脚本注册表。
// 业务方在初始化时注册脚本，运行时按名字执行，EVALSHA 的缓存和
// NOSCRIPT 降级由 go-redis 的 Script 对象处理。
type Client struct {
	rdb redis.UniversalClient

	mu      sync.RWMutex
	scripts map[string]*redis.Script
}

// NewClient 创建 redis 客户端。addrs 格式为 "ip1:port1,ip2:port2"，
// 单地址时等价于普通单机客户端。
func NewClient(addrs string) (*Client, error) {
	rdb := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: strings.Split(addrs, ","),
	})

	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addrs, err)
	}

	return &Client{
		rdb:     rdb,
		scripts: make(map[string]*redis.Script),
	}, nil
}

// LoadScriptFromContent 按名字注册一段 Lua 脚本。
func (c *Client) LoadScriptFromContent(name, content string) error {
	if content == "" {
		return fmt.Errorf("script %q is empty", name)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scripts[name] = redis.NewScript(content)
	return nil
}

// RunScript 执行一个已注册的脚本。
func (c *Client) RunScript(ctx context.Context, name string, keys []string, args ...interface{}) (interface{}, error) {
	c.mu.RLock()
	script, ok := c.scripts[name]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("script %q is not registered", name)
	}
	return script.Run(ctx, c.rdb, keys, args...).Result()
}

// GetClient 暴露底层客户端，供需要原生命令的调用方使用。
func (c *Client) GetClient() redis.UniversalClient {
	return c.rdb
}

// Close 关闭底层连接。
func (c *Client) Close() error {
	return c.rdb.Close()
}

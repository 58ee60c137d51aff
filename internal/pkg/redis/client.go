package redis

import (
	"context"
	"sync"
	"time"

	"nexus-ware/internal/pkg/logger"

	"github.com/pkg/errors"
	goredis "github.com/redis/go-redis/v9"
)

// Client 封装了 go-redis 客户端和一组预加载的 Lua 脚本
type Client struct {
	client goredis.UniversalClient

	mu      sync.RWMutex
	scripts map[string]*goredis.Script
}

// NewClient 连接 Redis。多个地址时使用集群模式，Key 需要用 {hash tag} 保证同槽。
func NewClient(addrs []string, password string, db int) (*Client, error) {
	rdb := goredis.NewUniversalClient(&goredis.UniversalOptions{
		Addrs:        addrs,
		Password:     password,
		DB:           db,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrapf(err, "ping redis %v", addrs)
	}
	logger.Ctx(ctx).Info().Strs("addrs", addrs).Msg("✅ Connected to Redis.")
	return NewClientFrom(rdb), nil
}

// NewClientFrom 包装一个已有的 go-redis 客户端
func NewClientFrom(rdb goredis.UniversalClient) *Client {
	return &Client{client: rdb, scripts: make(map[string]*goredis.Script)}
}

// LoadScriptFromContent 注册并预加载一个 Lua 脚本，名字重复时覆盖
func (c *Client) LoadScriptFromContent(name, content string) error {
	script := goredis.NewScript(content)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := script.Load(ctx, c.client).Err(); err != nil {
		return errors.Wrapf(err, "load lua script %s", name)
	}

	c.mu.Lock()
	c.scripts[name] = script
	c.mu.Unlock()
	return nil
}

// RunScript 执行已注册的脚本，优先 EVALSHA，脚本缓存丢失时回退到 EVAL
func (c *Client) RunScript(ctx context.Context, name string, keys []string, args ...interface{}) (interface{}, error) {
	c.mu.RLock()
	script, ok := c.scripts[name]
	c.mu.RUnlock()
	if !ok {
		return nil, errors.Errorf("lua script %s not loaded", name)
	}

	result, err := script.Run(ctx, c.client, keys, args...).Result()
	if err != nil && !errors.Is(err, goredis.Nil) {
		return nil, errors.Wrapf(err, "run lua script %s", name)
	}
	return result, nil
}

// GetClient 返回底层的 go-redis 客户端
func (c *Client) GetClient() goredis.UniversalClient {
	return c.client
}

// Close 关闭连接
func (c *Client) Close() error {
	return c.client.Close()
}

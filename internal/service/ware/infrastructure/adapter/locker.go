package adapter

import (
	"context"
	"sync"
	"time"

	"nexus-ware/internal/pkg/logger"
	"nexus-ware/internal/pkg/zookeeper"

	"github.com/bsm/redislock"
	"github.com/pkg/errors"
)

// ErrLockNotObtained 在超时前未能拿到锁时返回，调用方应稍后重试
var ErrLockNotObtained = errors.New("could not obtain lock")

// ZKLocker 是 port.Locker 的 ZooKeeper 实现，每个 key 对应 /ware_locks/<key> 下的顺序节点
type ZKLocker struct {
	conn *zookeeper.Conn
	root string
}

func NewZKLocker(conn *zookeeper.Conn, root string) *ZKLocker {
	return &ZKLocker{conn: conn, root: root}
}

func (l *ZKLocker) Acquire(ctx context.Context, key string) (func(), error) {
	lock, err := zookeeper.NewDistributedLock(l.conn, l.root, key)
	if err != nil {
		return nil, err
	}
	if err := lock.Lock(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, errors.Wrapf(ErrLockNotObtained, "zk lock %s: %v", key, err)
		}
		return nil, err
	}
	return func() {
		if err := lock.Unlock(); err != nil {
			logger.Ctx(ctx).Error().Err(err).Str("key", key).Msg("Failed to release zk lock")
		}
	}, nil
}

// RedisLocker 是 port.Locker 的 Redis 实现，基于 bsm/redislock，带 TTL 防止持有者崩溃后死锁
type RedisLocker struct {
	client *redislock.Client
	ttl    time.Duration
}

func NewRedisLocker(client redislock.RedisClient, ttl time.Duration) *RedisLocker {
	return &RedisLocker{client: redislock.New(client), ttl: ttl}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	lock, err := l.client.Obtain(ctx, "ware:lock:"+key, l.ttl, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(100*time.Millisecond), int(l.ttl/(100*time.Millisecond))),
	})
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, errors.Wrapf(ErrLockNotObtained, "redis lock %s", key)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "obtain redis lock %s", key)
	}
	return func() {
		// 释放不复用调用方的 ctx，避免 ctx 已取消时锁只能等 TTL 过期
		releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := lock.Release(releaseCtx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			logger.Ctx(ctx).Error().Err(err).Str("key", key).Msg("Failed to release redis lock")
		}
	}, nil
}

// LocalLocker 是单实例部署使用的进程内按 key 互斥锁
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*localEntry
}

type localEntry struct {
	ch   chan struct{}
	refs int
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]*localEntry)}
}

func (l *LocalLocker) Acquire(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	e, ok := l.locks[key]
	if !ok {
		e = &localEntry{ch: make(chan struct{}, 1)}
		l.locks[key] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		l.drop(key, e)
		return nil, errors.Wrapf(ErrLockNotObtained, "local lock %s", key)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			l.drop(key, e)
		})
	}, nil
}

func (l *LocalLocker) drop(key string, e *localEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.locks, key)
	}
}

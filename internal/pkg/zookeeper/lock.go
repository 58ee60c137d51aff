// internal/pkg/zookeeper/lock.go
package zookeeper

import (
	"context"
	"sort"
	"strings"

	"nexus-ware/internal/pkg/logger"

	"github.com/go-zookeeper/zk"
	"github.com/pkg/errors"
)

// DefaultLockRoot 是所有分布式锁的根节点
const DefaultLockRoot = "/ware_locks"

// ErrNotLocked 在未持有锁时调用 Unlock 返回
var ErrNotLocked = errors.New("no lock to unlock")

// DistributedLock 基于临时顺序节点实现的公平锁
type DistributedLock struct {
	conn     *Conn
	path     string // 锁的路径，例如 /ware_locks/order:SN-1
	lockNode string // 成功获取锁后，自己创建的节点路径
}

// NewDistributedLock 创建一个分布式锁实例，确保锁路径存在。
func NewDistributedLock(conn *Conn, root, resourceID string) (*DistributedLock, error) {
	if root == "" {
		root = DefaultLockRoot
	}
	lockPath := root + "/" + strings.ReplaceAll(resourceID, "/", "_")
	if err := conn.ensurePath(lockPath); err != nil {
		return nil, err
	}
	return &DistributedLock{conn: conn, path: lockPath}, nil
}

// Lock 获取锁，获取不到时阻塞，直到 ctx 结束。
func (l *DistributedLock) Lock(ctx context.Context) error {
	// 1. 在锁路径下创建临时顺序节点 /ware_locks/<id>/lock-
	nodePath, err := l.createNode()
	if err != nil {
		return err
	}
	l.lockNode = nodePath

	for {
		children, _, err := l.conn.Children(l.path)
		if err != nil {
			l.abandon()
			return errors.Wrap(err, "list lock children")
		}
		// protected 节点带有 _c_<guid>- 前缀，按序号部分排序
		sort.Slice(children, func(i, j int) bool { return sequenceOf(children[i]) < sequenceOf(children[j]) })

		// 2. 自己是序号最小的节点即获得锁
		myNodeName := strings.TrimPrefix(l.lockNode, l.path+"/")
		if len(children) > 0 && myNodeName == children[0] {
			return nil
		}

		// 3. 监听前一个节点
		prev := ""
		for i, child := range children {
			if child == myNodeName {
				if i > 0 {
					prev = children[i-1]
				}
				break
			}
		}
		if prev == "" {
			l.abandon()
			return errors.New("cannot find previous node, lock node vanished")
		}

		exists, _, eventChan, err := l.conn.ExistsW(l.path + "/" + prev)
		if err != nil {
			l.abandon()
			return errors.Wrap(err, "watch previous node")
		}
		if !exists {
			continue
		}

		select {
		case <-eventChan:
			// 节点删除或会话事件，重新判断
		case <-ctx.Done():
			l.abandon()
			return ctx.Err()
		}
	}
}

// createNode 创建顺序节点，锁路径刚被其他持有者清理掉时重建后再试一次
func (l *DistributedLock) createNode() (string, error) {
	nodePath, err := l.conn.CreateProtectedEphemeralSequential(l.path+"/lock-", []byte(""), zk.WorldACL(zk.PermAll))
	if errors.Is(err, zk.ErrNoNode) {
		if err := l.conn.ensurePath(l.path); err != nil {
			return "", err
		}
		nodePath, err = l.conn.CreateProtectedEphemeralSequential(l.path+"/lock-", []byte(""), zk.WorldACL(zk.PermAll))
	}
	if err != nil {
		return "", errors.Wrap(err, "create sequential node")
	}
	return nodePath, nil
}

// Unlock 释放锁，并在没有其他等待者时删除锁路径，避免每个订单遗留一个持久节点
func (l *DistributedLock) Unlock() error {
	if l.lockNode == "" {
		return ErrNotLocked
	}
	err := l.conn.Delete(l.lockNode, -1)
	if err != nil && !errors.Is(err, zk.ErrNoNode) {
		return errors.Wrap(err, "delete lock node")
	}
	l.lockNode = ""
	l.prune()
	return nil
}

func (l *DistributedLock) abandon() {
	if l.lockNode != "" {
		_ = l.conn.Delete(l.lockNode, -1)
		l.lockNode = ""
		l.prune()
	}
}

// prune 尝试删除锁路径，仍有等待者或已被删除时忽略
func (l *DistributedLock) prune() {
	if err := l.conn.Delete(l.path, -1); err != nil && !prunable(err) {
		logger.Ctx(context.Background()).Warn().Err(err).Str("path", l.path).Msg("Failed to remove lock path")
	}
}

func prunable(err error) bool {
	return errors.Is(err, zk.ErrNotEmpty) || errors.Is(err, zk.ErrNoNode)
}

func sequenceOf(node string) string {
	if idx := strings.LastIndex(node, "lock-"); idx >= 0 {
		return node[idx+len("lock-"):]
	}
	return node
}

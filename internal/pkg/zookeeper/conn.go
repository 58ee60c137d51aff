package zookeeper

import (
	"context"
	"strings"
	"time"

	"nexus-ware/internal/pkg/logger"

	"github.com/go-zookeeper/zk"
	"github.com/pkg/errors"
)

// Conn 包装了 zk.Conn，供分布式锁使用。
type Conn struct {
	*zk.Conn
}

// Connect 连接到 ZooKeeper 集群，servers 格式为 "host1:2181,host2:2181"。
// 会等待会话建立或超时。
func Connect(servers string, sessionTimeout time.Duration) (*Conn, error) {
	addrs := strings.Split(servers, ",")
	conn, events, err := zk.Connect(addrs, sessionTimeout, zk.WithLogInfo(false))
	if err != nil {
		return nil, errors.Wrapf(err, "connect zookeeper %s", servers)
	}

	deadline := time.After(sessionTimeout)
	for {
		select {
		case ev := <-events:
			if ev.State == zk.StateHasSession {
				logger.Ctx(context.Background()).Info().Str("servers", servers).Msg("✅ Connected to ZooKeeper.")
				return &Conn{Conn: conn}, nil
			}
		case <-deadline:
			conn.Close()
			return nil, errors.Errorf("zookeeper session not established within %s", sessionTimeout)
		}
	}
}

// ensurePath 逐级创建持久节点，已存在的节点忽略。
func (c *Conn) ensurePath(path string) error {
	cur := ""
	for _, part := range strings.Split(strings.Trim(path, "/"), "/") {
		cur += "/" + part
		exists, _, err := c.Exists(cur)
		if err != nil {
			return errors.Wrapf(err, "check node %s", cur)
		}
		if exists {
			continue
		}
		if _, err := c.Create(cur, []byte(""), 0, zk.WorldACL(zk.PermAll)); err != nil && !errors.Is(err, zk.ErrNodeExists) {
			return errors.Wrapf(err, "create node %s", cur)
		}
	}
	return nil
}

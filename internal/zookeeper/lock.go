// internal/zookeeper/lock.go
package zookeeper

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-zookeeper/zk"
	"github.com/pkg/errors"
)

const (
	lockRoot = "/distributed_locks" // 所有分布式锁的根节点
)

// DistributedLock 定义了一个分布式锁对象。
// 清扫任务在水平扩容的部署里用它保证同一时刻只有一个实例在扫描。
type DistributedLock struct {
	conn     *Conn  // ZooKeeper连接
	path     string // 锁的路径，例如 /distributed_locks/stock-reaper
	lockNode string // 成功获取锁后，自己创建的节点路径
}

// NewDistributedLock 创建一个新的分布式锁实例
func NewDistributedLock(conn *Conn, resourceID string) (*DistributedLock, error) {
	// 确保根节点和锁的父节点存在
	for _, path := range []string{lockRoot, lockRoot + "/" + resourceID} {
		if exists, _, err := conn.Exists(path); err == nil && !exists {
			if _, createErr := conn.Create(path, []byte(""), 0, zk.WorldACL(zk.PermAll)); createErr != nil && createErr != zk.ErrNodeExists {
				return nil, errors.Wrapf(createErr, "failed to create lock node %s", path)
			}
		} else if err != nil {
			return nil, errors.Wrapf(err, "failed to check lock node %s", path)
		}
	}

	return &DistributedLock{
		conn: conn,
		path: lockRoot + "/" + resourceID,
	}, nil
}

// TryLock 尝试获取锁，不阻塞等待。
// 创建临时顺序节点后，只有当自己是最小节点时才算获取成功；
// 否则立刻删除自己的节点并返回 false，调用方跳过本轮工作即可。
func (l *DistributedLock) TryLock() (bool, error) {
	nodePath, err := l.conn.CreateProtectedEphemeralSequential(l.path+"/lock-", []byte(""), zk.WorldACL(zk.PermAll))
	if err != nil {
		return false, errors.Wrap(err, "failed to create sequential node")
	}

	children, _, err := l.conn.Children(l.path)
	if err != nil {
		_ = l.conn.Delete(nodePath, -1)
		return false, errors.Wrap(err, "failed to get children nodes")
	}
	sort.Strings(children)

	myNodeName := strings.TrimPrefix(nodePath, l.path+"/")
	if len(children) > 0 && sameSequence(myNodeName, children[0]) {
		l.lockNode = nodePath
		return true, nil
	}

	// 没抢到，把自己的节点删掉，避免堆积
	_ = l.conn.Delete(nodePath, -1)
	return false, nil
}

// Lock 尝试获取锁，如果获取不到则阻塞等待（最多30秒）
func (l *DistributedLock) Lock() error {
	// 1. 在锁路径下创建一个临时顺序节点
	nodePath, err := l.conn.CreateProtectedEphemeralSequential(l.path+"/lock-", []byte(""), zk.WorldACL(zk.PermAll))
	if err != nil {
		return errors.Wrap(err, "failed to create sequential node")
	}
	l.lockNode = nodePath

	for {
		// 2. 获取锁路径下的所有子节点
		children, _, err := l.conn.Children(l.path)
		if err != nil {
			return errors.Wrap(err, "failed to get children nodes")
		}
		sort.Strings(children) // 排序，保证顺序

		// 3. 判断自己是否是最小的节点
		myNodeName := strings.TrimPrefix(l.lockNode, l.path+"/")
		if sameSequence(myNodeName, children[0]) {
			// 是最小节点，成功获取锁
			return nil
		}

		// 4. 不是最小节点，监听前一个节点
		prevNodeIndex := -1
		for i, child := range children {
			if sameSequence(child, myNodeName) {
				prevNodeIndex = i - 1
				break
			}
		}
		if prevNodeIndex < 0 {
			return errors.New("cannot find previous node, something is wrong")
		}
		prevNodePath := l.path + "/" + children[prevNodeIndex]

		// 使用 ExistsW 来设置一次性的Watcher
		_, _, eventChan, err := l.conn.ExistsW(prevNodePath)
		if err != nil {
			// 如果在前一个节点检查时它刚好被删除了，就重试循环
			if err == zk.ErrNoNode {
				continue
			}
			return errors.Wrap(err, "failed to watch previous node")
		}

		// 阻塞等待事件
		select {
		case event := <-eventChan:
			// 如果前一个节点被删除，我们就收到通知，重新进入循环去竞争锁
			if event.Type == zk.EventNodeDeleted {
				continue
			}
		case <-time.After(30 * time.Second): // 设置超时，防止死等
			return errors.New("timeout waiting for lock")
		}
	}
}

// Unlock 释放锁
func (l *DistributedLock) Unlock() error {
	if l.lockNode == "" {
		return errors.New("no lock to unlock")
	}
	err := l.conn.Delete(l.lockNode, -1)
	if err != nil && err != zk.ErrNoNode {
		return fmt.Errorf("failed to delete lock node: %w", err)
	}
	l.lockNode = ""
	return nil
}

// sameSequence 比较两个节点名的序号部分。
// CreateProtectedEphemeralSequential 会给节点名加上保护前缀，
// 不能直接做字符串相等比较。
func sameSequence(a, b string) bool {
	return sequenceSuffix(a) == sequenceSuffix(b)
}

func sequenceSuffix(name string) string {
	if idx := strings.LastIndex(name, "-"); idx >= 0 {
		return name[idx+1:]
	}
	return name
}

// Package zookeeper 提供基于ZooKeeper的注册中心后端。
//
// 节点布局:
//
//	/sker/services/{服务名}/{实例ID}  临时节点，JSON编码的 ServiceRegistration
//	/sker/health/{实例ID}            持久节点，健康状态字符串
//
// 实例节点是临时节点，会话断开后由ZooKeeper自动清除。
package zookeeper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-zookeeper/zk"
	"go.uber.org/zap"

	"github.com/sker-labs/sker-ucp/internal/registry"
)

const (
	servicesRoot = "/sker/services"
	healthRoot   = "/sker/health"
)

// Backend ZooKeeper注册中心后端
type Backend struct {
	conn   *zk.Conn
	logger *zap.Logger

	mu    sync.Mutex
	paths map[string]string // 服务ID -> 实例节点路径
}

// New 创建ZooKeeper后端
func New(servers []string, sessionTimeout time.Duration, logger *zap.Logger) (*Backend, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sessionTimeout <= 0 {
		sessionTimeout = 10 * time.Second
	}

	conn, _, err := zk.Connect(servers, sessionTimeout, zk.WithLogInfo(false))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to zookeeper: %w", err)
	}

	return &Backend{
		conn:   conn,
		logger: logger,
		paths:  make(map[string]string),
	}, nil
}

// Name 后端名称
func (b *Backend) Name() string { return "zookeeper" }

// Register 注册服务实例（幂等：已存在时覆盖数据）
func (b *Backend) Register(_ context.Context, service *registry.ServiceRegistration) error {
	if service == nil || service.ID == "" || service.Name == "" {
		return fmt.Errorf("service registration requires id and name")
	}

	val, err := json.Marshal(service)
	if err != nil {
		return fmt.Errorf("failed to encode service registration: %w", err)
	}

	parent := servicesRoot + "/" + service.Name
	if err := b.ensurePath(parent); err != nil {
		return err
	}

	path := parent + "/" + service.ID
	_, err = b.conn.Create(path, val, zk.FlagEphemeral, zk.WorldACL(zk.PermAll))
	if errors.Is(err, zk.ErrNodeExists) {
		_, err = b.conn.Set(path, val, -1)
	}
	if err != nil {
		return fmt.Errorf("failed to create service node: %w", err)
	}

	b.mu.Lock()
	b.paths[service.ID] = path
	b.mu.Unlock()
	return nil
}

// Deregister 注销服务实例，不存在时为空操作
func (b *Backend) Deregister(_ context.Context, serviceID string) error {
	b.mu.Lock()
	path, tracked := b.paths[serviceID]
	delete(b.paths, serviceID)
	b.mu.Unlock()

	if !tracked {
		found, err := b.findPath(serviceID)
		if err != nil {
			return err
		}
		if found == "" {
			return nil
		}
		path = found
	}

	if err := b.conn.Delete(path, -1); err != nil && !errors.Is(err, zk.ErrNoNode) {
		return fmt.Errorf("failed to delete service node: %w", err)
	}
	if err := b.conn.Delete(healthRoot+"/"+serviceID, -1); err != nil && !errors.Is(err, zk.ErrNoNode) {
		return fmt.Errorf("failed to delete health node: %w", err)
	}
	return nil
}

// findPath 按服务ID遍历服务树
func (b *Backend) findPath(serviceID string) (string, error) {
	names, _, err := b.conn.Children(servicesRoot)
	if errors.Is(err, zk.ErrNoNode) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to list services: %w", err)
	}
	for _, name := range names {
		ids, _, err := b.conn.Children(servicesRoot + "/" + name)
		if err != nil {
			continue
		}
		for _, id := range ids {
			if id == serviceID {
				return servicesRoot + "/" + name + "/" + id, nil
			}
		}
	}
	return "", nil
}

// Discover 发现服务实例列表
func (b *Backend) Discover(_ context.Context, query *registry.DiscoveryQuery) (*registry.DiscoveryResult, error) {
	var names []string
	if query != nil && query.Name != "" {
		names = []string{query.Name}
	} else {
		all, _, err := b.conn.Children(servicesRoot)
		if err != nil && !errors.Is(err, zk.ErrNoNode) {
			return nil, fmt.Errorf("failed to list services: %w", err)
		}
		names = all
	}

	services := make([]*registry.ServiceRegistration, 0)
	for _, name := range names {
		ids, _, err := b.conn.Children(servicesRoot + "/" + name)
		if errors.Is(err, zk.ErrNoNode) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list instances of %s: %w", name, err)
		}
		for _, id := range ids {
			data, _, err := b.conn.Get(servicesRoot + "/" + name + "/" + id)
			if err != nil {
				continue // 节点可能刚好消失
			}
			var svc registry.ServiceRegistration
			if err := json.Unmarshal(data, &svc); err != nil {
				continue // 跳过损坏的条目
			}
			services = append(services, &svc)
		}
	}

	return &registry.DiscoveryResult{
		Services:    services,
		LastUpdated: time.Now(),
		Source:      b.Name(),
	}, nil
}

// GetHealth 查询实例健康状态，无记录时返回UNKNOWN
func (b *Backend) GetHealth(_ context.Context, serviceID string) (registry.HealthStatus, error) {
	data, _, err := b.conn.Get(healthRoot + "/" + serviceID)
	if errors.Is(err, zk.ErrNoNode) {
		return registry.HealthUnknown, nil
	}
	if err != nil {
		return registry.HealthUnknown, fmt.Errorf("failed to query service health: %w", err)
	}
	return registry.HealthStatus(data), nil
}

// UpdateHealth 上报实例健康状态
func (b *Backend) UpdateHealth(_ context.Context, serviceID string, status registry.HealthStatus) error {
	if err := b.ensurePath(healthRoot); err != nil {
		return err
	}
	path := healthRoot + "/" + serviceID
	_, err := b.conn.Create(path, []byte(status), 0, zk.WorldACL(zk.PermAll))
	if errors.Is(err, zk.ErrNodeExists) {
		_, err = b.conn.Set(path, []byte(status), -1)
	}
	if err != nil {
		return fmt.Errorf("failed to update service health: %w", err)
	}
	return nil
}

// Close 关闭ZooKeeper会话，临时节点随会话清除
func (b *Backend) Close() error {
	b.conn.Close()
	return nil
}

// ensurePath 逐级创建持久父节点
func (b *Backend) ensurePath(path string) error {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	current := ""
	for _, part := range parts {
		current += "/" + part
		_, err := b.conn.Create(current, nil, 0, zk.WorldACL(zk.PermAll))
		if err != nil && !errors.Is(err, zk.ErrNodeExists) {
			return fmt.Errorf("failed to create path %s: %w", current, err)
		}
	}
	return nil
}

// Package etcd 提供基于etcd v3的注册中心后端。
//
// 键空间布局:
//
//	/sker/services/{服务名}/{实例ID} -> JSON编码的 ServiceRegistration
//	/sker/health/{实例ID}           -> 健康状态字符串
//
// 注册使用TTL租约: 进程崩溃后租约到期，条目自动消失，不会留下幽灵实例。
package etcd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"

	"github.com/sker-labs/sker-ucp/internal/registry"
)

const (
	servicePrefix = "/sker/services/"
	healthPrefix  = "/sker/health/"
)

// Backend etcd注册中心后端
type Backend struct {
	client *clientv3.Client
	ttl    int64 // 租约TTL（秒）
	logger *zap.Logger

	mu         sync.Mutex
	keys       map[string]string             // 服务ID -> etcd键
	keepAlives map[string]context.CancelFunc // 服务ID -> 续约取消函数
}

// New 创建etcd后端
func New(endpoints []string, ttl time.Duration, logger *zap.Logger) (*Backend, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create etcd client: %w", err)
	}

	ttlSeconds := int64(ttl / time.Second)
	if ttlSeconds < 5 {
		ttlSeconds = 15
	}

	return &Backend{
		client:     client,
		ttl:        ttlSeconds,
		logger:     logger,
		keys:       make(map[string]string),
		keepAlives: make(map[string]context.CancelFunc),
	}, nil
}

// Name 后端名称
func (b *Backend) Name() string { return "etcd" }

// Register 注册服务实例
//
// 创建TTL租约并绑定到键值，随后启动后台续约；续约一旦停止，
// 租约到期后etcd自动删除该条目。
func (b *Backend) Register(ctx context.Context, service *registry.ServiceRegistration) error {
	if service == nil || service.ID == "" || service.Name == "" {
		return fmt.Errorf("service registration requires id and name")
	}

	lease, err := b.client.Grant(ctx, b.ttl)
	if err != nil {
		return fmt.Errorf("failed to grant lease: %w", err)
	}

	val, err := json.Marshal(service)
	if err != nil {
		return fmt.Errorf("failed to encode service registration: %w", err)
	}

	key := servicePrefix + service.Name + "/" + service.ID
	if _, err := b.client.Put(ctx, key, string(val), clientv3.WithLease(lease.ID)); err != nil {
		return fmt.Errorf("failed to store service registration: %w", err)
	}

	keepAliveCtx, cancel := context.WithCancel(context.Background())
	ch, err := b.client.KeepAlive(keepAliveCtx, lease.ID)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to start lease keepalive: %w", err)
	}

	// 消费续约响应，防止通道堆积
	go func() {
		for range ch {
		}
	}()

	b.mu.Lock()
	if old, ok := b.keepAlives[service.ID]; ok {
		old()
	}
	b.keepAlives[service.ID] = cancel
	b.keys[service.ID] = key
	b.mu.Unlock()

	return nil
}

// Deregister 注销服务实例
func (b *Backend) Deregister(ctx context.Context, serviceID string) error {
	b.mu.Lock()
	key, tracked := b.keys[serviceID]
	if cancel, ok := b.keepAlives[serviceID]; ok {
		cancel()
		delete(b.keepAlives, serviceID)
	}
	delete(b.keys, serviceID)
	b.mu.Unlock()

	if !tracked {
		// 本进程未注册过该实例，按ID在键空间里查找
		found, err := b.findKey(ctx, serviceID)
		if err != nil {
			return err
		}
		if found == "" {
			return nil // 不存在，空操作
		}
		key = found
	}

	if _, err := b.client.Delete(ctx, key); err != nil {
		return fmt.Errorf("failed to delete service registration: %w", err)
	}
	if _, err := b.client.Delete(ctx, healthPrefix+serviceID); err != nil {
		return fmt.Errorf("failed to delete service health: %w", err)
	}
	return nil
}

// findKey 按服务ID扫描键空间
func (b *Backend) findKey(ctx context.Context, serviceID string) (string, error) {
	resp, err := b.client.Get(ctx, servicePrefix, clientv3.WithPrefix(), clientv3.WithKeysOnly())
	if err != nil {
		return "", fmt.Errorf("failed to scan service registrations: %w", err)
	}
	suffix := "/" + serviceID
	for _, kv := range resp.Kvs {
		if strings.HasSuffix(string(kv.Key), suffix) {
			return string(kv.Key), nil
		}
	}
	return "", nil
}

// Discover 发现服务实例列表
func (b *Backend) Discover(ctx context.Context, query *registry.DiscoveryQuery) (*registry.DiscoveryResult, error) {
	prefix := servicePrefix
	if query != nil && query.Name != "" {
		prefix = servicePrefix + query.Name + "/"
	}

	resp, err := b.client.Get(ctx, prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("failed to discover services: %w", err)
	}

	services := make([]*registry.ServiceRegistration, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var svc registry.ServiceRegistration
		if err := json.Unmarshal(kv.Value, &svc); err != nil {
			continue // 跳过损坏的条目
		}
		services = append(services, &svc)
	}

	return &registry.DiscoveryResult{
		Services:    services,
		LastUpdated: time.Now(),
		Source:      b.Name(),
	}, nil
}

// GetHealth 查询实例健康状态，无记录时返回UNKNOWN
func (b *Backend) GetHealth(ctx context.Context, serviceID string) (registry.HealthStatus, error) {
	resp, err := b.client.Get(ctx, healthPrefix+serviceID)
	if err != nil {
		return registry.HealthUnknown, fmt.Errorf("failed to query service health: %w", err)
	}
	if len(resp.Kvs) == 0 {
		return registry.HealthUnknown, nil
	}
	return registry.HealthStatus(resp.Kvs[0].Value), nil
}

// UpdateHealth 上报实例健康状态
func (b *Backend) UpdateHealth(ctx context.Context, serviceID string, status registry.HealthStatus) error {
	if _, err := b.client.Put(ctx, healthPrefix+serviceID, string(status)); err != nil {
		return fmt.Errorf("failed to update service health: %w", err)
	}
	return nil
}

// Close 停止续约并关闭客户端
func (b *Backend) Close() error {
	b.mu.Lock()
	for id, cancel := range b.keepAlives {
		cancel()
		delete(b.keepAlives, id)
	}
	b.mu.Unlock()
	return b.client.Close()
}

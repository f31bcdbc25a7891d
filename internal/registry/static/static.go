// Package static 提供进程内的静态注册中心后端。
//
// 它是 Backend 契约的参考实现：同步、强一致，直接以内存映射为权威。
// 其余后端（consul、etcd 等）对外部系统的行为都应与本实现的语义对齐。
package static

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sker-labs/sker-ucp/internal/config"
	"github.com/sker-labs/sker-ucp/internal/registry"
)

func init() {
	registry.RegisterFactory("static", func(_ *config.Config, _ *zap.Logger) (registry.Backend, error) {
		return New(), nil
	})
}

// Backend 静态注册中心后端
type Backend struct {
	mu       sync.RWMutex
	services map[string]*registry.ServiceRegistration
	health   map[string]registry.HealthStatus
}

// New 创建静态后端
func New() *Backend {
	return &Backend{
		services: make(map[string]*registry.ServiceRegistration),
		health:   make(map[string]registry.HealthStatus),
	}
}

// Name 后端名称
func (b *Backend) Name() string { return "static" }

// Register 幂等注册服务实例
func (b *Backend) Register(_ context.Context, service *registry.ServiceRegistration) error {
	if service == nil || service.ID == "" {
		return fmt.Errorf("service registration requires an id")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, known := b.health[service.ID]; !known {
		b.health[service.ID] = registry.HealthUnknown
	}
	b.services[service.ID] = service.Clone()
	return nil
}

// Deregister 注销服务实例，不存在时为空操作
func (b *Backend) Deregister(_ context.Context, serviceID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.services, serviceID)
	delete(b.health, serviceID)
	return nil
}

// Discover 返回当前注册表视图，仅按名称粗筛，精细过滤交由 discovery 层
func (b *Backend) Discover(_ context.Context, query *registry.DiscoveryQuery) (*registry.DiscoveryResult, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	services := make([]*registry.ServiceRegistration, 0, len(b.services))
	for _, svc := range b.services {
		if query != nil && query.Name != "" && svc.Name != query.Name {
			continue
		}
		services = append(services, svc.Clone())
	}
	sort.Slice(services, func(i, j int) bool { return services[i].ID < services[j].ID })

	return &registry.DiscoveryResult{
		Services:    services,
		LastUpdated: time.Now(),
		Source:      b.Name(),
	}, nil
}

// GetHealth 查询实例健康状态
func (b *Backend) GetHealth(_ context.Context, serviceID string) (registry.HealthStatus, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	status, ok := b.health[serviceID]
	if !ok {
		return registry.HealthUnknown, fmt.Errorf("service %s is not registered", serviceID)
	}
	return status, nil
}

// UpdateHealth 上报实例健康状态
func (b *Backend) UpdateHealth(_ context.Context, serviceID string, status registry.HealthStatus) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.services[serviceID]; !ok {
		return fmt.Errorf("service %s is not registered", serviceID)
	}
	b.health[serviceID] = status
	return nil
}

// Close 无外部资源，空操作
func (b *Backend) Close() error { return nil }

package consul

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/consul/api"
	"go.uber.org/zap"

	"github.com/sker-labs/sker-ucp/internal/registry"
)

// Config Consul配置
type Config struct {
	Address            string        // Consul地址
	Scheme             string        // http或https
	Token              string        // ACL Token
	Datacenter         string        // 数据中心
	WaitTime           time.Duration // 长轮询等待时间
	HealthCheckTimeout time.Duration // 健康检查超时时间
	HealthCheckTTL     time.Duration // 健康检查TTL
}

// Backend Consul注册中心后端
type Backend struct {
	client *api.Client
	config *Config
	logger *zap.Logger

	mu         sync.Mutex
	keepAlives map[string]context.CancelFunc // 按服务ID记录TTL续约任务
}

// New 创建Consul后端
func New(config *Config, logger *zap.Logger) (*Backend, error) {
	if config == nil {
		config = &Config{
			Address:            "127.0.0.1:8500",
			Scheme:             "http",
			WaitTime:           time.Second * 30,
			HealthCheckTimeout: time.Second * 5,
			HealthCheckTTL:     time.Second * 15,
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	consulConfig := api.DefaultConfig()
	consulConfig.Address = config.Address
	consulConfig.Scheme = config.Scheme
	consulConfig.Token = config.Token
	consulConfig.Datacenter = config.Datacenter
	consulConfig.WaitTime = config.WaitTime

	client, err := api.NewClient(consulConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create consul client: %w", err)
	}

	return &Backend{
		client:     client,
		config:     config,
		logger:     logger,
		keepAlives: make(map[string]context.CancelFunc),
	}, nil
}

// Name 后端名称
func (b *Backend) Name() string { return "consul" }

// Register 注册服务实例
//
// 声明了HTTP健康检查的服务使用Consul的HTTP检查；
// 否则使用TTL检查并启动后台续约。
func (b *Backend) Register(_ context.Context, service *registry.ServiceRegistration) error {
	if service == nil {
		return fmt.Errorf("service registration is nil")
	}

	check := &api.AgentServiceCheck{
		CheckID:                        service.ID,
		TTL:                            b.config.HealthCheckTTL.String(),
		Timeout:                        b.config.HealthCheckTimeout.String(),
		DeregisterCriticalServiceAfter: "30s",
	}

	if service.HealthCheck != nil && service.HealthCheck.Enabled && service.HealthCheck.Endpoint != "" {
		check.HTTP = fmt.Sprintf("http://%s:%d%s", service.Address, service.Port, service.HealthCheck.Endpoint)
		interval := service.HealthCheck.Interval
		if interval <= 0 {
			interval = 10 * time.Second
		}
		check.Interval = interval.String()
		check.TTL = ""
	}

	meta := make(map[string]string, len(service.Metadata)+2)
	for k, v := range service.Metadata {
		meta[k] = v
	}
	if service.Version != "" {
		meta["version"] = service.Version
	}
	if service.Protocol != "" {
		meta["protocol"] = service.Protocol
	}

	registration := &api.AgentServiceRegistration{
		ID:      service.ID,
		Name:    service.Name,
		Address: service.Address,
		Port:    service.Port,
		Tags:    append([]string(nil), service.Tags...),
		Meta:    meta,
		Check:   check,
	}

	if err := b.client.Agent().ServiceRegister(registration); err != nil {
		return fmt.Errorf("failed to register service: %w", err)
	}

	// TTL检查需要定期续约
	if check.TTL != "" {
		b.startKeepAlive(service.ID)
	}

	return nil
}

// Deregister 注销服务实例
func (b *Backend) Deregister(_ context.Context, serviceID string) error {
	b.stopKeepAlive(serviceID)
	if err := b.client.Agent().ServiceDeregister(serviceID); err != nil {
		return fmt.Errorf("failed to deregister service: %w", err)
	}
	return nil
}

// Discover 发现服务实例列表
func (b *Backend) Discover(_ context.Context, query *registry.DiscoveryQuery) (*registry.DiscoveryResult, error) {
	var services []*registry.ServiceRegistration

	if query != nil && query.Name != "" {
		entries, _, err := b.client.Health().Service(query.Name, "", false, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to discover service: %w", err)
		}
		services = make([]*registry.ServiceRegistration, 0, len(entries))
		for _, entry := range entries {
			services = append(services, fromAgentService(entry.Service.ID, entry.Service.Service,
				entry.Service.Address, entry.Service.Port, entry.Service.Tags, entry.Service.Meta))
		}
	} else {
		// 无名称条件时返回本地agent上的全部服务
		agentServices, err := b.client.Agent().Services()
		if err != nil {
			return nil, fmt.Errorf("failed to list services: %w", err)
		}
		services = make([]*registry.ServiceRegistration, 0, len(agentServices))
		for _, svc := range agentServices {
			services = append(services, fromAgentService(svc.ID, svc.Service, svc.Address, svc.Port, svc.Tags, svc.Meta))
		}
	}

	return &registry.DiscoveryResult{
		Services:    services,
		LastUpdated: time.Now(),
		Source:      b.Name(),
	}, nil
}

// GetHealth 查询实例健康状态
func (b *Backend) GetHealth(_ context.Context, serviceID string) (registry.HealthStatus, error) {
	status, _, err := b.client.Agent().AgentHealthServiceByID(serviceID)
	if err != nil {
		return registry.HealthUnknown, fmt.Errorf("failed to query service health: %w", err)
	}

	switch status {
	case api.HealthPassing:
		return registry.HealthHealthy, nil
	case api.HealthWarning, api.HealthCritical:
		return registry.HealthUnhealthy, nil
	default:
		return registry.HealthUnknown, nil
	}
}

// UpdateHealth 上报实例健康状态（仅对TTL检查生效）
func (b *Backend) UpdateHealth(_ context.Context, serviceID string, status registry.HealthStatus) error {
	consulStatus := api.HealthCritical
	if status == registry.HealthHealthy {
		consulStatus = api.HealthPassing
	}
	if err := b.client.Agent().UpdateTTL(serviceID, "", consulStatus); err != nil {
		return fmt.Errorf("failed to update service health: %w", err)
	}
	return nil
}

// Close 停止全部TTL续约任务
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, cancel := range b.keepAlives {
		cancel()
		delete(b.keepAlives, id)
	}
	return nil
}

// startKeepAlive 启动TTL续约任务，同一服务的旧任务先停止
func (b *Backend) startKeepAlive(serviceID string) {
	ctx, cancel := context.WithCancel(context.Background())

	b.mu.Lock()
	if old, ok := b.keepAlives[serviceID]; ok {
		old()
	}
	b.keepAlives[serviceID] = cancel
	b.mu.Unlock()

	go b.keepAlive(ctx, serviceID)
}

func (b *Backend) stopKeepAlive(serviceID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cancel, ok := b.keepAlives[serviceID]; ok {
		cancel()
		delete(b.keepAlives, serviceID)
	}
}

// keepAlive 保持服务健康状态
func (b *Backend) keepAlive(ctx context.Context, serviceID string) {
	ticker := time.NewTicker(b.config.HealthCheckTTL / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := b.client.Agent().UpdateTTL(serviceID, "", api.HealthPassing); err != nil {
				// 更新失败说明服务可能已被注销，退出续约
				b.logger.Warn("consul ttl keepalive failed",
					zap.String("service_id", serviceID),
					zap.Error(err))
				return
			}
		}
	}
}

func fromAgentService(id, name, address string, port int, tags []string, meta map[string]string) *registry.ServiceRegistration {
	return &registry.ServiceRegistration{
		ID:       id,
		Name:     name,
		Version:  meta["version"],
		Address:  address,
		Port:     port,
		Protocol: meta["protocol"],
		Tags:     tags,
		Metadata: meta,
	}
}

package registry

import (
	"context"
	"time"
)

// HealthStatus 服务健康状态
type HealthStatus string

const (
	HealthHealthy   HealthStatus = "HEALTHY"   // 健康
	HealthUnhealthy HealthStatus = "UNHEALTHY" // 不健康
	HealthUnknown   HealthStatus = "UNKNOWN"   // 未知（尚未探测）
)

// HealthCheckSpec 服务自带的健康检查配置
type HealthCheckSpec struct {
	Enabled  bool          `json:"enabled"`  // 是否启用健康检查
	Endpoint string        `json:"endpoint"` // 探测路径，如 /health
	Interval time.Duration `json:"interval"` // 探测间隔
	Timeout  time.Duration `json:"timeout"`  // 单次探测超时
}

// ServiceRegistration 服务实例注册信息
type ServiceRegistration struct {
	ID          string            `json:"id"`       // 服务实例唯一ID
	Name        string            `json:"name"`     // 服务名称
	Version     string            `json:"version"`  // 服务版本
	Address     string            `json:"address"`  // 服务地址
	Port        int               `json:"port"`     // 服务端口
	Protocol    string            `json:"protocol"` // 通信协议: http, grpc, ws
	Tags        []string          `json:"tags"`     // 标签
	Metadata    map[string]string `json:"metadata"` // 元数据
	HealthCheck *HealthCheckSpec  `json:"health_check,omitempty"`
}

// Clone 返回注册信息的深拷贝，避免调用方与内部状态共享可变数据
func (s *ServiceRegistration) Clone() *ServiceRegistration {
	if s == nil {
		return nil
	}
	dup := *s
	if s.Tags != nil {
		dup.Tags = append([]string(nil), s.Tags...)
	}
	if s.Metadata != nil {
		dup.Metadata = make(map[string]string, len(s.Metadata))
		for k, v := range s.Metadata {
			dup.Metadata[k] = v
		}
	}
	if s.HealthCheck != nil {
		hc := *s.HealthCheck
		dup.HealthCheck = &hc
	}
	return &dup
}

// DiscoveryQuery 服务发现查询条件，所有字段均为可选过滤项
type DiscoveryQuery struct {
	Name     string            `json:"name,omitempty"`
	Version  string            `json:"version,omitempty"`
	Protocol string            `json:"protocol,omitempty"`
	Tags     []string          `json:"tags,omitempty"`     // 要求实例标签为查询标签的超集
	Metadata map[string]string `json:"metadata,omitempty"` // 要求逐项精确匹配
	Healthy  *bool             `json:"healthy,omitempty"`  // nil 表示不过滤健康状态
}

// DiscoveryResult 一次服务发现的结果快照，产生后不再原地修改
type DiscoveryResult struct {
	Services    []*ServiceRegistration `json:"services"`
	LastUpdated time.Time              `json:"last_updated"`
	Source      string                 `json:"source"` // 产生结果的后端名称
}

// Backend 服务注册中心后端能力接口
//
// 每种注册中心（consul、etcd、zookeeper、kubernetes、static）提供一个实现，
// 在构造期通过工厂选择一次，之后不再按调用分发。
// Discover 只返回后端视图，不做客户端过滤（过滤属于 discovery 层职责）。
type Backend interface {
	// Name 后端名称，用于 DiscoveryResult.Source 与日志
	Name() string

	// Register 幂等注册（upsert）服务实例
	Register(ctx context.Context, service *ServiceRegistration) error

	// Deregister 注销服务实例，实例不存在时为空操作
	Deregister(ctx context.Context, serviceID string) error

	// Discover 返回后端当前视图
	Discover(ctx context.Context, query *DiscoveryQuery) (*DiscoveryResult, error)

	// GetHealth 查询实例健康状态
	GetHealth(ctx context.Context, serviceID string) (HealthStatus, error)

	// UpdateHealth 上报实例健康状态
	UpdateHealth(ctx context.Context, serviceID string, status HealthStatus) error

	// Close 释放后端持有的连接与后台任务
	Close() error
}

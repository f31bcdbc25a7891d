package config

import (
	"time"
)

// Config 应用配置结构
type Config struct {
	Server    ServerConfig    `json:"server"`
	Log       LogConfig       `json:"log"`
	Registry  RegistryConfig  `json:"registry"`
	Discovery DiscoveryConfig `json:"discovery"`
	Pool      PoolConfig      `json:"pool"`
}

// ServerConfig 状态服务器配置
type ServerConfig struct {
	HTTPPort string `json:"http_port"`
	Host     string `json:"host"` // 服务主机地址
}

// LogConfig 日志配置
type LogConfig struct {
	Level       string `json:"level"`       // debug, info, warn, error
	Development bool   `json:"development"` // 开发模式（彩色控制台输出）
}

// RegistryConfig 注册中心配置
type RegistryConfig struct {
	Type        string   `json:"type"`         // 注册中心类型: static, consul, etcd, zookeeper, kubernetes
	Address     string   `json:"address"`      // 注册中心地址（consul）
	Endpoints   []string `json:"endpoints"`    // 注册中心地址列表（etcd、zookeeper）
	Namespace   string   `json:"namespace"`    // 命名空间（kubernetes）
	Kubeconfig  string   `json:"kubeconfig"`   // kubeconfig 路径，空则使用集群内配置
	Token       string   `json:"token"`        // ACL Token（consul）
	Datacenter  string   `json:"datacenter"`   // 数据中心（consul）
	ServiceName string   `json:"service_name"` // 本服务名称
	ServiceID   string   `json:"service_id"`   // 本服务实例ID
	Tags        []string `json:"tags"`         // 本服务标签

	HealthCheckTimeout time.Duration `json:"health_check_timeout"` // 健康检查超时
	HealthCheckTTL     time.Duration `json:"health_check_ttl"`     // 健康检查TTL
}

// DiscoveryConfig 服务发现配置
type DiscoveryConfig struct {
	CacheTimeout        time.Duration `json:"cache_timeout"`         // 查询结果缓存TTL
	CacheSweepInterval  time.Duration `json:"cache_sweep_interval"`  // 过期缓存清理周期
	HealthCheckInterval time.Duration `json:"health_check_interval"` // 默认健康检查间隔
	HealthCheckTimeout  time.Duration `json:"health_check_timeout"`  // 默认健康检查超时
}

// PoolConfig 连接池配置
type PoolConfig struct {
	MaxConnectionsPerTarget int           `json:"max_connections_per_target"` // 单目标最大连接数
	MinConnections          int           `json:"min_connections"`            // 预热时的最小连接数
	IdleTimeout             time.Duration `json:"idle_timeout"`               // 空闲连接回收时间
	AcquireTimeout          time.Duration `json:"acquire_timeout"`            // 获取连接的最长等待时间

	Validation    ValidationConfig    `json:"validation"`
	LoadBalancing LoadBalancingConfig `json:"load_balancing"`
}

// ValidationConfig 空闲连接校验配置
type ValidationConfig struct {
	Enabled  bool          `json:"enabled"`
	Interval time.Duration `json:"interval"`
	Timeout  time.Duration `json:"timeout"`
}

// LoadBalancingConfig 负载均衡配置
type LoadBalancingConfig struct {
	Strategy    string `json:"strategy"` // round-robin, random, weighted
	HealthCheck bool   `json:"health_check"`
}

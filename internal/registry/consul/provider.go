package consul

import (
	"time"

	"go.uber.org/zap"

	"github.com/sker-labs/sker-ucp/internal/config"
	"github.com/sker-labs/sker-ucp/internal/registry"
)

func init() {
	// 注册Consul工厂到注册中心
	registry.RegisterFactory("consul", NewConsulBackend)
}

// NewConsulBackend 创建Consul注册中心后端实例
func NewConsulBackend(cfg *config.Config, logger *zap.Logger) (registry.Backend, error) {
	return New(&Config{
		Address:            cfg.Registry.Address,
		Scheme:             "http",
		Token:              cfg.Registry.Token,
		Datacenter:         cfg.Registry.Datacenter,
		WaitTime:           time.Second * 30,
		HealthCheckTimeout: cfg.Registry.HealthCheckTimeout,
		HealthCheckTTL:     cfg.Registry.HealthCheckTTL,
	}, logger)
}

package etcd

import (
	"go.uber.org/zap"

	"github.com/sker-labs/sker-ucp/internal/config"
	"github.com/sker-labs/sker-ucp/internal/registry"
)

func init() {
	// 注册etcd工厂到注册中心
	registry.RegisterFactory("etcd", NewEtcdBackend)
}

// NewEtcdBackend 创建etcd注册中心后端实例
func NewEtcdBackend(cfg *config.Config, logger *zap.Logger) (registry.Backend, error) {
	endpoints := cfg.Registry.Endpoints
	if len(endpoints) == 0 && cfg.Registry.Address != "" {
		endpoints = []string{cfg.Registry.Address}
	}
	return New(endpoints, cfg.Registry.HealthCheckTTL, logger)
}

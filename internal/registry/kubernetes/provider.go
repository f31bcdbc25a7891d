package kubernetes

import (
	"go.uber.org/zap"

	"github.com/sker-labs/sker-ucp/internal/config"
	"github.com/sker-labs/sker-ucp/internal/registry"
)

func init() {
	// 注册Kubernetes工厂到注册中心
	registry.RegisterFactory("kubernetes", NewKubernetesBackend)
}

// NewKubernetesBackend 创建Kubernetes注册中心后端实例
func NewKubernetesBackend(cfg *config.Config, logger *zap.Logger) (registry.Backend, error) {
	return New(cfg.Registry.Kubeconfig, cfg.Registry.Namespace, logger)
}

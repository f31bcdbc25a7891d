package registry

import (
	"fmt"

	"github.com/google/wire"
	"go.uber.org/zap"

	"github.com/sker-labs/sker-ucp/internal/config"
)

// ProviderSet 注册中心Provider集合
var ProviderSet = wire.NewSet(
	ProvideBackend,
)

// BackendFactory 注册中心工厂函数类型
type BackendFactory func(*config.Config, *zap.Logger) (Backend, error)

// backendFactories 注册中心工厂映射
var backendFactories = make(map[string]BackendFactory)

// RegisterFactory 注册后端工厂，由各后端包的 init() 调用
func RegisterFactory(backendType string, factory BackendFactory) {
	backendFactories[backendType] = factory
}

// ProvideBackend 根据配置提供注册中心后端实例
func ProvideBackend(cfg *config.Config, logger *zap.Logger) (Backend, error) {
	factory, ok := backendFactories[cfg.Registry.Type]
	if !ok {
		return nil, fmt.Errorf("unsupported registry type: %s", cfg.Registry.Type)
	}

	return factory(cfg, logger)
}

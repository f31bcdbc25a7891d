package discovery

import (
	"github.com/google/wire"
	"go.uber.org/zap"

	"github.com/sker-labs/sker-ucp/internal/config"
	"github.com/sker-labs/sker-ucp/internal/event"
	"github.com/sker-labs/sker-ucp/internal/registry"
)

// ProviderSet 服务发现Provider集合
var ProviderSet = wire.NewSet(
	ProvideDiscovery,
)

// ProvideDiscovery 提供服务发现实例
func ProvideDiscovery(cfg *config.Config, backend registry.Backend, bus *event.Bus, logger *zap.Logger) *Discovery {
	return New(backend, cfg.Discovery, bus, logger)
}

package pool

import (
	"github.com/google/wire"
	"go.uber.org/zap"

	"github.com/sker-labs/sker-ucp/internal/config"
	"github.com/sker-labs/sker-ucp/internal/event"
)

// ProviderSet 连接池Provider集合
var ProviderSet = wire.NewSet(
	ProvideManager,
)

// ProvideManager 提供连接池管理器实例
func ProvideManager(cfg *config.Config, factory Factory, bus *event.Bus, logger *zap.Logger) *Manager {
	return NewManager(cfg.Pool, factory, bus, logger)
}

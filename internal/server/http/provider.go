package http

import (
	"github.com/google/wire"
	"go.uber.org/zap"

	"github.com/sker-labs/sker-ucp/internal/config"
	"github.com/sker-labs/sker-ucp/internal/discovery"
	"github.com/sker-labs/sker-ucp/internal/pool"
	"github.com/sker-labs/sker-ucp/internal/resolver"
)

// ProviderSet HTTP服务器Provider集合
var ProviderSet = wire.NewSet(
	ProvideServer,
)

// ProvideServer 提供状态HTTP服务器实例
func ProvideServer(cfg *config.Config, mgr *pool.Manager, disc *discovery.Discovery, res *resolver.Resolver, logger *zap.Logger) *Server {
	return New(cfg.Server.HTTPPort, mgr, disc, res, logger)
}

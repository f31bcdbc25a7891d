package resolver

import (
	"github.com/google/wire"

	"github.com/sker-labs/sker-ucp/internal/config"
	"github.com/sker-labs/sker-ucp/internal/discovery"
	"github.com/sker-labs/sker-ucp/internal/pool"
)

// ProviderSet 解析器Provider集合
var ProviderSet = wire.NewSet(
	ProvideResolver,
)

// ProvideResolver 提供端点解析器实例
func ProvideResolver(cfg *config.Config, disc *discovery.Discovery, mgr *pool.Manager) *Resolver {
	return New(disc, mgr, cfg.Pool.LoadBalancing)
}

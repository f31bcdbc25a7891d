package zookeeper

import (
	"time"

	"go.uber.org/zap"

	"github.com/sker-labs/sker-ucp/internal/config"
	"github.com/sker-labs/sker-ucp/internal/registry"
)

func init() {
	// 注册ZooKeeper工厂到注册中心
	registry.RegisterFactory("zookeeper", NewZookeeperBackend)
}

// NewZookeeperBackend 创建ZooKeeper注册中心后端实例
func NewZookeeperBackend(cfg *config.Config, logger *zap.Logger) (registry.Backend, error) {
	servers := cfg.Registry.Endpoints
	if len(servers) == 0 && cfg.Registry.Address != "" {
		servers = []string{cfg.Registry.Address}
	}
	return New(servers, 10*time.Second, logger)
}

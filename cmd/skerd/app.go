package main

import (
	"go.uber.org/zap"

	"github.com/sker-labs/sker-ucp/internal/config"
	"github.com/sker-labs/sker-ucp/internal/discovery"
	"github.com/sker-labs/sker-ucp/internal/event"
	"github.com/sker-labs/sker-ucp/internal/pool"
	"github.com/sker-labs/sker-ucp/internal/registry"
	"github.com/sker-labs/sker-ucp/internal/resolver"
	"github.com/sker-labs/sker-ucp/internal/server/http"
)

// App 应用程序结构
type App struct {
	Config       *config.Config
	Logger       *zap.Logger
	Bus          *event.Bus
	Backend      registry.Backend
	Discovery    *discovery.Discovery
	Pool         *pool.Manager
	Resolver     *resolver.Resolver
	StatusServer *http.Server
}

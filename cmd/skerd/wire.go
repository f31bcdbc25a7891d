//go:build wireinject
// +build wireinject

package main

import (
	"github.com/google/wire"

	"github.com/sker-labs/sker-ucp/internal/config"
	"github.com/sker-labs/sker-ucp/internal/discovery"
	"github.com/sker-labs/sker-ucp/internal/event"
	"github.com/sker-labs/sker-ucp/internal/logger"
	"github.com/sker-labs/sker-ucp/internal/pool"
	"github.com/sker-labs/sker-ucp/internal/registry"
	"github.com/sker-labs/sker-ucp/internal/resolver"
	"github.com/sker-labs/sker-ucp/internal/server/http"
	"github.com/sker-labs/sker-ucp/internal/transport"
)

// InitializeApp 初始化应用程序
func InitializeApp() (*App, error) {
	wire.Build(
		config.ProviderSet,
		logger.ProviderSet,
		event.ProviderSet,
		registry.ProviderSet,
		discovery.ProviderSet,
		transport.ProviderSet,
		pool.ProviderSet,
		resolver.ProviderSet,
		http.ProviderSet,
		wire.Struct(new(App), "*"),
	)
	return &App{}, nil
}

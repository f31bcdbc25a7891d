package main

import (
	"context"
	"log"
	nethttp "net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sker-labs/sker-ucp/internal/config"
	"github.com/sker-labs/sker-ucp/internal/discovery"
	"github.com/sker-labs/sker-ucp/internal/registry"

	// 注册各注册中心后端实现
	_ "github.com/sker-labs/sker-ucp/internal/registry/consul"
	_ "github.com/sker-labs/sker-ucp/internal/registry/etcd"
	_ "github.com/sker-labs/sker-ucp/internal/registry/kubernetes"
	_ "github.com/sker-labs/sker-ucp/internal/registry/static"
	_ "github.com/sker-labs/sker-ucp/internal/registry/zookeeper"
)

func main() {
	// 通过Wire初始化应用
	app, err := InitializeApp()
	if err != nil {
		log.Fatalf("Failed to initialize app: %v", err)
	}
	logger := app.Logger
	defer logger.Sync()

	logger.Info("starting sker-ucp",
		zap.String("http_port", app.Config.Server.HTTPPort),
		zap.String("registry", app.Config.Registry.Type))

	// 启动状态HTTP服务器
	var group errgroup.Group
	group.Go(func() error {
		if err := app.StatusServer.Start(); err != nil && err != nethttp.ErrServerClosed {
			return err
		}
		return nil
	})

	// 把本实例注册到注册中心
	if err := registerSelf(context.Background(), app.Discovery, app.Config); err != nil {
		logger.Fatal("failed to register service", zap.Error(err))
	}
	logger.Info("service registered",
		zap.String("service_name", app.Config.Registry.ServiceName),
		zap.String("service_id", app.Config.Registry.ServiceID))

	// 等待退出信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// 先注销再停服务，避免流量打到正在关闭的实例
	if err := app.Discovery.Deregister(ctx, app.Config.Registry.ServiceID); err != nil {
		logger.Warn("failed to deregister service", zap.Error(err))
	}
	app.Discovery.Destroy()

	if err := app.StatusServer.Stop(ctx); err != nil {
		logger.Warn("status server shutdown error", zap.Error(err))
	}
	if err := group.Wait(); err != nil {
		logger.Warn("status server error", zap.Error(err))
	}

	// 等借出的连接归还后销毁连接池
	if err := app.Pool.Drain(ctx); err != nil {
		logger.Warn("pool drain interrupted", zap.Error(err))
	}
	if err := app.Pool.Destroy(ctx); err != nil {
		logger.Warn("pool destroy error", zap.Error(err))
	}
	if err := app.Backend.Close(); err != nil {
		logger.Warn("backend close error", zap.Error(err))
	}

	logger.Info("stopped")
}

// registerSelf 把本实例注册到注册中心并开启健康检查
func registerSelf(ctx context.Context, disc *discovery.Discovery, cfg *config.Config) error {
	httpPort, err := parsePort(cfg.Server.HTTPPort)
	if err != nil {
		return err
	}

	return disc.Register(ctx, &registry.ServiceRegistration{
		ID:       cfg.Registry.ServiceID,
		Name:     cfg.Registry.ServiceName,
		Address:  cfg.Server.Host,
		Port:     httpPort,
		Protocol: "http",
		Tags:     cfg.Registry.Tags,
		HealthCheck: &registry.HealthCheckSpec{
			Enabled:  true,
			Endpoint: "/health",
			Interval: cfg.Discovery.HealthCheckInterval,
			Timeout:  cfg.Discovery.HealthCheckTimeout,
		},
	})
}

// parsePort 解析端口号
func parsePort(portStr string) (int, error) {
	portStr = strings.TrimPrefix(portStr, ":")
	return strconv.Atoi(portStr)
}

package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/sker-labs/sker-ucp/internal/discovery"
	"github.com/sker-labs/sker-ucp/internal/pool"
	"github.com/sker-labs/sker-ucp/internal/registry"
	"github.com/sker-labs/sker-ucp/internal/resolver"
)

// Server 状态HTTP服务器结构体
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
}

// New 创建状态HTTP服务器实例
func New(address string, mgr *pool.Manager, disc *discovery.Discovery, res *resolver.Resolver, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	mux := http.NewServeMux()

	// 健康检查路由，同时作为自注册服务的探测目标
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "OK")
	})

	// 连接池与服务发现状态快照
	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		snapshot := map[string]any{
			"pool":      mgr.GetStats(),
			"endpoints": mgr.GetPoolInfos(),
			"services":  disc.Services(),
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(snapshot); err != nil {
			logger.Warn("failed to encode stats", zap.Error(err))
		}
	})

	// 按负载均衡策略把服务名解析为端点
	mux.HandleFunc("/resolve", func(w http.ResponseWriter, r *http.Request) {
		query := &registry.DiscoveryQuery{
			Name:     r.URL.Query().Get("name"),
			Version:  r.URL.Query().Get("version"),
			Protocol: r.URL.Query().Get("protocol"),
		}
		if query.Name == "" {
			http.Error(w, "missing name parameter", http.StatusBadRequest)
			return
		}

		endpoint, err := res.Endpoint(r.Context(), query)
		if err != nil {
			if errors.Is(err, resolver.ErrNoInstances) {
				http.Error(w, err.Error(), http.StatusNotFound)
				return
			}
			logger.Warn("failed to resolve service", zap.String("name", query.Name), zap.Error(err))
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(map[string]string{"endpoint": endpoint}); err != nil {
			logger.Warn("failed to encode endpoint", zap.Error(err))
		}
	})

	return &Server{
		httpServer: &http.Server{
			Addr:    address,
			Handler: mux,
		},
		logger: logger,
	}
}

// Start 启动HTTP服务器
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Stop 停止HTTP服务器
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

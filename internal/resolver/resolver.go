// Package resolver 把服务发现结果解析为可连接的端点。
//
// 发现层回答"某个服务有哪些实例"，连接池回答"给我一条到端点的连接"，
// 本层补上中间一步：按配置的负载均衡策略从实例集中选出一个，
// 拼出端点串，再从连接池借出连接。
package resolver

import (
	"context"
	"errors"
	"fmt"

	"github.com/sker-labs/sker-ucp/internal/config"
	"github.com/sker-labs/sker-ucp/internal/discovery"
	"github.com/sker-labs/sker-ucp/internal/loadbalance"
	"github.com/sker-labs/sker-ucp/internal/pool"
	"github.com/sker-labs/sker-ucp/internal/registry"
)

// ErrNoInstances 查询没有匹配到任何实例
var ErrNoInstances = errors.New("no instances available")

// Resolver 端点解析器
type Resolver struct {
	disc        *discovery.Discovery
	pool        *pool.Manager
	balancer    loadbalance.Balancer
	healthyOnly bool
}

// New 创建端点解析器
func New(disc *discovery.Discovery, mgr *pool.Manager, cfg config.LoadBalancingConfig) *Resolver {
	return &Resolver{
		disc:        disc,
		pool:        mgr,
		balancer:    loadbalance.New(cfg.Strategy),
		healthyOnly: cfg.HealthCheck,
	}
}

// Endpoint 发现实例并按负载均衡策略选出一个端点
//
// 开启 healthyOnly 时，未显式指定健康条件的查询只在健康实例中选取。
func (r *Resolver) Endpoint(ctx context.Context, query *registry.DiscoveryQuery) (string, error) {
	if query == nil {
		query = &registry.DiscoveryQuery{}
	}
	if r.healthyOnly && query.Healthy == nil {
		healthy := true
		q := *query
		q.Healthy = &healthy
		query = &q
	}

	result, err := r.disc.Discover(ctx, query)
	if err != nil {
		return "", err
	}

	picked := r.balancer.Select(result.Services)
	if picked == nil {
		return "", fmt.Errorf("resolve service %q: %w", query.Name, ErrNoInstances)
	}
	return endpointOf(picked), nil
}

// Acquire 解析端点并从连接池借出一条连接
func (r *Resolver) Acquire(ctx context.Context, query *registry.DiscoveryQuery) (*pool.ConnectionRecord, error) {
	endpoint, err := r.Endpoint(ctx, query)
	if err != nil {
		return nil, err
	}
	return r.pool.Acquire(ctx, endpoint)
}

// Release 归还借出的连接
func (r *Resolver) Release(ctx context.Context, rec *pool.ConnectionRecord) error {
	return r.pool.Release(ctx, rec.Conn())
}

// endpointOf 由实例信息拼出端点串，协议缺省按http处理
func endpointOf(svc *registry.ServiceRegistration) string {
	protocol := svc.Protocol
	if protocol == "" {
		protocol = "http"
	}
	return fmt.Sprintf("%s://%s:%d", protocol, svc.Address, svc.Port)
}

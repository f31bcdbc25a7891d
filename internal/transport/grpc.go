package transport

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"

	"github.com/sker-labs/sker-ucp/internal/pool"
)

// grpcConnection gRPC连接的池化包装
type grpcConnection struct {
	target string

	mu   sync.Mutex
	conn *grpc.ClientConn
}

// NewGRPCFactory 返回创建gRPC连接的工厂
func NewGRPCFactory() pool.Factory {
	return func(_ context.Context, endpoint string) (pool.Connection, error) {
		target := strings.TrimPrefix(endpoint, "grpc://")
		if target == "" {
			return nil, fmt.Errorf("invalid grpc endpoint: %q", endpoint)
		}
		return &grpcConnection{target: target}, nil
	}
}

// Connect 建立gRPC连接
func (c *grpcConnection) Connect(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return nil
	}

	conn, err := grpc.NewClient(c.target,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                10 * time.Second,
			Timeout:             3 * time.Second,
			PermitWithoutStream: true,
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to create grpc connection to %s: %w", c.target, err)
	}
	c.conn = conn
	return nil
}

// Disconnect 关闭gRPC连接
func (c *grpcConnection) Disconnect(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// IsConnected 检查连接状态
func (c *grpcConnection) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return false
	}
	state := c.conn.GetState()
	return state != connectivity.Shutdown && state != connectivity.TransientFailure
}

// Ping 通过标准健康检查服务探活并返回往返延迟
func (c *grpcConnection) Ping(ctx context.Context) (time.Duration, error) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return 0, fmt.Errorf("grpc connection to %s is not established", c.target)
	}

	start := time.Now()
	_, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil && status.Code(err) != codes.Unimplemented {
		// Unimplemented 说明对端没有健康检查服务但连接可达
		return 0, fmt.Errorf("grpc health check for %s failed: %w", c.target, err)
	}
	return time.Since(start), nil
}

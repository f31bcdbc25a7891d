// Package transport 为连接池提供具体传输的连接工厂。
//
// 连接池本身不关心线协议，这里按端点scheme分发到对应传输：
// grpc:// 走gRPC客户端连接，http:// 与 https:// 走HTTP长连接。
package transport

import (
	"context"
	"fmt"
	"strings"

	"github.com/sker-labs/sker-ucp/internal/pool"
)

// NewFactory 返回按端点scheme分发的连接工厂
func NewFactory() pool.Factory {
	grpcFactory := NewGRPCFactory()
	httpFactory := NewHTTPFactory()

	return func(ctx context.Context, endpoint string) (pool.Connection, error) {
		switch {
		case strings.HasPrefix(endpoint, "grpc://"):
			return grpcFactory(ctx, endpoint)
		case strings.HasPrefix(endpoint, "http://"), strings.HasPrefix(endpoint, "https://"):
			return httpFactory(ctx, endpoint)
		default:
			return nil, fmt.Errorf("no transport for endpoint %q", endpoint)
		}
	}
}

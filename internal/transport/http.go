package transport

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/sker-labs/sker-ucp/internal/pool"
)

// httpConnection HTTP长连接的池化包装
//
// 每条池化连接持有独立的 http.Client，复用其底层TCP keepalive连接。
type httpConnection struct {
	endpoint  string
	base      *url.URL
	client    *http.Client
	connected atomic.Bool
}

// NewHTTPFactory 返回创建HTTP连接的工厂
func NewHTTPFactory() pool.Factory {
	return func(_ context.Context, endpoint string) (pool.Connection, error) {
		base, err := url.Parse(endpoint)
		if err != nil {
			return nil, fmt.Errorf("invalid http endpoint %q: %w", endpoint, err)
		}
		if base.Scheme != "http" && base.Scheme != "https" {
			return nil, fmt.Errorf("unsupported scheme %q in endpoint %q", base.Scheme, endpoint)
		}
		return &httpConnection{
			endpoint: endpoint,
			base:     base,
			client: &http.Client{
				Transport: &http.Transport{
					MaxIdleConnsPerHost: 1,
					IdleConnTimeout:     90 * time.Second,
				},
			},
		}, nil
	}
}

// Connect 标记连接可用并做一次探活
func (c *httpConnection) Connect(ctx context.Context) error {
	if _, err := c.ping(ctx); err != nil {
		return err
	}
	c.connected.Store(true)
	return nil
}

// Disconnect 关闭空闲TCP连接
func (c *httpConnection) Disconnect(_ context.Context) error {
	c.connected.Store(false)
	c.client.CloseIdleConnections()
	return nil
}

// IsConnected 返回连接是否可用
func (c *httpConnection) IsConnected() bool {
	return c.connected.Load()
}

// Ping 发起HEAD请求并返回往返延迟
func (c *httpConnection) Ping(ctx context.Context) (time.Duration, error) {
	return c.ping(ctx)
}

func (c *httpConnection) ping(ctx context.Context) (time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.base.String(), nil)
	if err != nil {
		return 0, err
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("http ping for %s failed: %w", c.endpoint, err)
	}
	resp.Body.Close()
	return time.Since(start), nil
}

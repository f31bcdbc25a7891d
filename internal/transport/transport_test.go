package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFactoryDispatchesByScheme(t *testing.T) {
	factory := NewFactory()
	ctx := context.Background()

	conn, err := factory(ctx, "grpc://127.0.0.1:9000")
	require.NoError(t, err)
	assert.IsType(t, &grpcConnection{}, conn)

	conn, err = factory(ctx, "http://127.0.0.1:8080")
	require.NoError(t, err)
	assert.IsType(t, &httpConnection{}, conn)

	conn, err = factory(ctx, "https://127.0.0.1:8443")
	require.NoError(t, err)
	assert.IsType(t, &httpConnection{}, conn)

	_, err = factory(ctx, "redis://127.0.0.1:6379")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no transport")
}

func TestHTTPFactoryRejectsBadEndpoints(t *testing.T) {
	factory := NewHTTPFactory()
	ctx := context.Background()

	_, err := factory(ctx, "://bad")
	require.Error(t, err)

	_, err = factory(ctx, "ftp://127.0.0.1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported scheme")
}

func TestHTTPConnectionLifecycle(t *testing.T) {
	var heads int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			heads++
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	conn, err := NewHTTPFactory()(context.Background(), server.URL)
	require.NoError(t, err)

	assert.False(t, conn.IsConnected())
	require.NoError(t, conn.Connect(context.Background()))
	assert.True(t, conn.IsConnected())

	latency, err := conn.Ping(context.Background())
	require.NoError(t, err)
	assert.Greater(t, latency, time.Duration(0))
	assert.Equal(t, 2, heads) // Connect探活一次 + Ping一次

	require.NoError(t, conn.Disconnect(context.Background()))
	assert.False(t, conn.IsConnected())
}

func TestHTTPConnectFailsWhenUnreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // 端口立即不可达

	conn, err := NewHTTPFactory()(context.Background(), server.URL)
	require.NoError(t, err)

	require.Error(t, conn.Connect(context.Background()))
	assert.False(t, conn.IsConnected())
}

func TestGRPCFactoryValidatesEndpoint(t *testing.T) {
	factory := NewGRPCFactory()

	_, err := factory(context.Background(), "grpc://")
	require.Error(t, err)

	conn, err := factory(context.Background(), "grpc://127.0.0.1:9000")
	require.NoError(t, err)
	assert.False(t, conn.IsConnected())
}

func TestGRPCConnectIsLazyAndIdempotent(t *testing.T) {
	conn, err := NewGRPCFactory()(context.Background(), "grpc://127.0.0.1:1")
	require.NoError(t, err)

	// 通道建立是惰性的，未真正拨号也应成功
	require.NoError(t, conn.Connect(context.Background()))
	require.NoError(t, conn.Connect(context.Background()))
	assert.True(t, conn.IsConnected())

	require.NoError(t, conn.Disconnect(context.Background()))
	assert.False(t, conn.IsConnected())

	// 断开后探活应失败而非崩溃
	_, err = conn.Ping(context.Background())
	require.Error(t, err)
}

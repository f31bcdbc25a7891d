package discovery

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sker-labs/sker-ucp/internal/config"
	"github.com/sker-labs/sker-ucp/internal/registry"
	"github.com/sker-labs/sker-ucp/internal/registry/static"
)

// fakeBackend 包装static后端，统计后端调用并可注入失败
type fakeBackend struct {
	*static.Backend

	mu            sync.Mutex
	discoverCalls int
	registerErr   error
	discoverErr   error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{Backend: static.New()}
}

func (b *fakeBackend) Register(ctx context.Context, service *registry.ServiceRegistration) error {
	b.mu.Lock()
	err := b.registerErr
	b.mu.Unlock()
	if err != nil {
		return err
	}
	return b.Backend.Register(ctx, service)
}

func (b *fakeBackend) Discover(ctx context.Context, query *registry.DiscoveryQuery) (*registry.DiscoveryResult, error) {
	b.mu.Lock()
	b.discoverCalls++
	err := b.discoverErr
	b.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return b.Backend.Discover(ctx, query)
}

func (b *fakeBackend) calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.discoverCalls
}

func testService(id, name string) *registry.ServiceRegistration {
	return &registry.ServiceRegistration{
		ID:       id,
		Name:     name,
		Version:  "1.0.0",
		Address:  "127.0.0.1",
		Port:     9000,
		Protocol: "grpc",
		Tags:     []string{"a"},
		Metadata: map[string]string{"env": "test"},
	}
}

func newTestDiscovery(t *testing.T, backend registry.Backend, cacheTimeout time.Duration) *Discovery {
	t.Helper()
	d := New(backend, config.DiscoveryConfig{
		CacheTimeout:        cacheTimeout,
		CacheSweepInterval:  time.Minute,
		HealthCheckInterval: time.Minute,
		HealthCheckTimeout:  time.Second,
	}, nil, nil)
	t.Cleanup(d.Destroy)
	return d
}

func TestRegisterThenDiscover(t *testing.T) {
	backend := newFakeBackend()
	d := newTestDiscovery(t, backend, 30*time.Second)
	ctx := context.Background()

	require.NoError(t, d.Register(ctx, testService("svc-1", "orders")))

	result, err := d.Discover(ctx, &registry.DiscoveryQuery{Name: "orders"})
	require.NoError(t, err)
	require.Len(t, result.Services, 1)
	assert.Equal(t, "svc-1", result.Services[0].ID)
	assert.Equal(t, "static", result.Source)
	assert.False(t, result.LastUpdated.IsZero())
}

func TestRegisterIsAtomicOnBackendFailure(t *testing.T) {
	backend := newFakeBackend()
	backend.registerErr = errors.New("registry unreachable")
	d := newTestDiscovery(t, backend, 30*time.Second)
	ctx := context.Background()

	err := d.Register(ctx, testService("svc-1", "orders"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "svc-1")

	// 后端失败时本地注册表不得残留状态
	err = d.Deregister(ctx, "svc-1")
	require.ErrorIs(t, err, ErrServiceNotFound)
}

func TestDeregisterUnknownService(t *testing.T) {
	d := newTestDiscovery(t, newFakeBackend(), 30*time.Second)

	err := d.Deregister(context.Background(), "no-such-id")
	require.ErrorIs(t, err, ErrServiceNotFound)
}

func TestDiscoverServesFromCache(t *testing.T) {
	backend := newFakeBackend()
	d := newTestDiscovery(t, backend, 30*time.Second)
	ctx := context.Background()

	require.NoError(t, d.Register(ctx, testService("svc-1", "orders")))

	query := &registry.DiscoveryQuery{Name: "orders"}
	first, err := d.Discover(ctx, query)
	require.NoError(t, err)
	second, err := d.Discover(ctx, query)
	require.NoError(t, err)

	// TTL内第二次查询不触达后端
	assert.Equal(t, 1, backend.calls())
	assert.Same(t, first, second)

	// 不同查询各自回源
	_, err = d.Discover(ctx, &registry.DiscoveryQuery{Name: "orders", Version: "1.0.0"})
	require.NoError(t, err)
	assert.Equal(t, 2, backend.calls())
}

func TestDiscoverAfterCacheExpiry(t *testing.T) {
	backend := newFakeBackend()
	d := newTestDiscovery(t, backend, 40*time.Millisecond)
	ctx := context.Background()

	require.NoError(t, d.Register(ctx, testService("svc-1", "orders")))

	query := &registry.DiscoveryQuery{Name: "orders"}
	_, err := d.Discover(ctx, query)
	require.NoError(t, err)

	require.NoError(t, d.Deregister(ctx, "svc-1"))
	time.Sleep(60 * time.Millisecond)

	result, err := d.Discover(ctx, query)
	require.NoError(t, err)
	assert.Empty(t, result.Services)
	assert.Equal(t, 2, backend.calls())
}

func TestDiscoverFailureDoesNotPoisonCache(t *testing.T) {
	backend := newFakeBackend()
	d := newTestDiscovery(t, backend, 30*time.Second)
	ctx := context.Background()

	require.NoError(t, d.Register(ctx, testService("svc-1", "orders")))

	backend.mu.Lock()
	backend.discoverErr = errors.New("backend flaky")
	backend.mu.Unlock()

	query := &registry.DiscoveryQuery{Name: "orders"}
	_, err := d.Discover(ctx, query)
	require.Error(t, err)

	backend.mu.Lock()
	backend.discoverErr = nil
	backend.mu.Unlock()

	result, err := d.Discover(ctx, query)
	require.NoError(t, err)
	assert.Len(t, result.Services, 1)
}

func TestClientSideFiltering(t *testing.T) {
	backend := newFakeBackend()
	d := newTestDiscovery(t, backend, time.Millisecond)
	ctx := context.Background()

	a := testService("svc-a", "orders")
	a.Tags = []string{"a", "b"}
	a.Metadata = map[string]string{"env": "prod", "zone": "cn-1"}
	b := testService("svc-b", "orders")
	b.Version = "2.0.0"
	b.Protocol = "http"
	b.Tags = []string{"a"}
	b.Metadata = map[string]string{"env": "staging"}
	require.NoError(t, d.Register(ctx, a))
	require.NoError(t, d.Register(ctx, b))

	cases := []struct {
		name  string
		query *registry.DiscoveryQuery
		want  []string
	}{
		{"by name", &registry.DiscoveryQuery{Name: "orders"}, []string{"svc-a", "svc-b"}},
		{"by version", &registry.DiscoveryQuery{Name: "orders", Version: "2.0.0"}, []string{"svc-b"}},
		{"by protocol", &registry.DiscoveryQuery{Name: "orders", Protocol: "grpc"}, []string{"svc-a"}},
		{"tags must be superset", &registry.DiscoveryQuery{Name: "orders", Tags: []string{"a", "b"}}, []string{"svc-a"}},
		{"metadata exact match", &registry.DiscoveryQuery{Name: "orders", Metadata: map[string]string{"env": "prod"}}, []string{"svc-a"}},
		{"metadata missing key", &registry.DiscoveryQuery{Name: "orders", Metadata: map[string]string{"region": "eu"}}, nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			time.Sleep(2 * time.Millisecond) // 让上一条缓存过期
			result, err := d.Discover(ctx, tc.query)
			require.NoError(t, err)
			ids := make([]string, 0, len(result.Services))
			for _, svc := range result.Services {
				ids = append(ids, svc.ID)
			}
			assert.ElementsMatch(t, tc.want, ids)
		})
	}
}

func TestHealthyFilter(t *testing.T) {
	backend := newFakeBackend()
	d := newTestDiscovery(t, backend, time.Millisecond)
	ctx := context.Background()

	require.NoError(t, d.Register(ctx, testService("svc-up", "orders")))
	require.NoError(t, d.Register(ctx, testService("svc-down", "orders")))
	require.NoError(t, d.UpdateHealth(ctx, "svc-up", registry.HealthHealthy))
	require.NoError(t, d.UpdateHealth(ctx, "svc-down", registry.HealthUnhealthy))

	healthy := true
	result, err := d.Discover(ctx, &registry.DiscoveryQuery{Name: "orders", Healthy: &healthy})
	require.NoError(t, err)
	require.Len(t, result.Services, 1)
	assert.Equal(t, "svc-up", result.Services[0].ID)

	time.Sleep(2 * time.Millisecond)
	unhealthy := false
	result, err = d.Discover(ctx, &registry.DiscoveryQuery{Name: "orders", Healthy: &unhealthy})
	require.NoError(t, err)
	require.Len(t, result.Services, 1)
	assert.Equal(t, "svc-down", result.Services[0].ID)

	// 从未探测过的实例（UNKNOWN）不应被healthy过滤误杀
	time.Sleep(2 * time.Millisecond)
	require.NoError(t, d.Register(ctx, testService("svc-new", "orders")))
	result, err = d.Discover(ctx, &registry.DiscoveryQuery{Name: "orders", Healthy: &healthy})
	require.NoError(t, err)
	require.Len(t, result.Services, 2)
	ids := []string{result.Services[0].ID, result.Services[1].ID}
	assert.ElementsMatch(t, []string{"svc-up", "svc-new"}, ids)
}

func TestWatchInvokesCallbackImmediately(t *testing.T) {
	backend := newFakeBackend()
	d := newTestDiscovery(t, backend, 30*time.Second)

	var results []*registry.DiscoveryResult
	unsubscribe := d.Watch(context.Background(), &registry.DiscoveryQuery{Name: "ghost"}, func(r *registry.DiscoveryResult) {
		results = append(results, r)
	})
	defer unsubscribe()

	// 即使结果为空集也要回调一次
	require.Len(t, results, 1)
	assert.Empty(t, results[0].Services)
}

func TestWatchNotifiedOnCacheRefresh(t *testing.T) {
	backend := newFakeBackend()
	d := newTestDiscovery(t, backend, 20*time.Millisecond)
	ctx := context.Background()

	var mu sync.Mutex
	var results []*registry.DiscoveryResult
	query := &registry.DiscoveryQuery{Name: "orders"}
	unsubscribe := d.Watch(ctx, query, func(r *registry.DiscoveryResult) {
		mu.Lock()
		results = append(results, r)
		mu.Unlock()
	})

	require.NoError(t, d.Register(ctx, testService("svc-1", "orders")))
	time.Sleep(30 * time.Millisecond) // 等缓存过期

	_, err := d.Discover(ctx, query)
	require.NoError(t, err)

	mu.Lock()
	require.Len(t, results, 2)
	assert.Empty(t, results[0].Services)
	assert.Len(t, results[1].Services, 1)
	mu.Unlock()

	// 退订后不再回调
	unsubscribe()
	time.Sleep(30 * time.Millisecond)
	_, err = d.Discover(ctx, query)
	require.NoError(t, err)

	mu.Lock()
	assert.Len(t, results, 2)
	mu.Unlock()
}

func TestHealthOperationsRequireKnownService(t *testing.T) {
	d := newTestDiscovery(t, newFakeBackend(), 30*time.Second)
	ctx := context.Background()

	_, err := d.GetHealth(ctx, "no-such-id")
	require.ErrorIs(t, err, ErrServiceNotFound)

	err = d.UpdateHealth(ctx, "no-such-id", registry.HealthHealthy)
	require.ErrorIs(t, err, ErrServiceNotFound)
}

func TestHealthRoundTrip(t *testing.T) {
	d := newTestDiscovery(t, newFakeBackend(), 30*time.Second)
	ctx := context.Background()

	require.NoError(t, d.Register(ctx, testService("svc-1", "orders")))

	status, err := d.GetHealth(ctx, "svc-1")
	require.NoError(t, err)
	assert.Equal(t, registry.HealthUnknown, status)

	require.NoError(t, d.UpdateHealth(ctx, "svc-1", registry.HealthHealthy))
	status, err = d.GetHealth(ctx, "svc-1")
	require.NoError(t, err)
	assert.Equal(t, registry.HealthHealthy, status)
}

func TestHealthCheckProbesService(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	u, err := url.Parse(server.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)

	backend := newFakeBackend()
	d := newTestDiscovery(t, backend, 30*time.Second)
	ctx := context.Background()

	svc := testService("svc-1", "orders")
	svc.Address = u.Hostname()
	svc.Port = port
	svc.HealthCheck = &registry.HealthCheckSpec{
		Enabled:  true,
		Endpoint: "/health",
		Interval: 20 * time.Millisecond,
		Timeout:  time.Second,
	}
	require.NoError(t, d.Register(ctx, svc))

	assert.Eventually(t, func() bool {
		status, err := d.GetHealth(ctx, "svc-1")
		return err == nil && status == registry.HealthHealthy
	}, 2*time.Second, 10*time.Millisecond)

	// 探测目标消失后状态应转为UNHEALTHY，探测循环不中断
	server.Close()
	assert.Eventually(t, func() bool {
		status, err := d.GetHealth(ctx, "svc-1")
		return err == nil && status == registry.HealthUnhealthy
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDestroyStopsEverything(t *testing.T) {
	backend := newFakeBackend()
	d := New(backend, config.DiscoveryConfig{}, nil, nil)
	ctx := context.Background()

	require.NoError(t, d.Register(ctx, testService("svc-1", "orders")))
	d.Destroy()

	_, err := d.Discover(ctx, &registry.DiscoveryQuery{Name: "orders"})
	require.ErrorIs(t, err, ErrDiscoveryClosed)

	err = d.Register(ctx, testService("svc-2", "orders"))
	require.ErrorIs(t, err, ErrDiscoveryClosed)

	// 重复销毁应安全
	d.Destroy()
}

func TestCacheKeyIsOrderInsensitiveForTags(t *testing.T) {
	q1 := &registry.DiscoveryQuery{Name: "orders", Tags: []string{"a", "b"}}
	q2 := &registry.DiscoveryQuery{Name: "orders", Tags: []string{"b", "a"}}
	assert.Equal(t, cacheKey(q1), cacheKey(q2))

	q3 := &registry.DiscoveryQuery{Name: "orders", Tags: []string{"a"}}
	assert.NotEqual(t, cacheKey(q1), cacheKey(q3))
}

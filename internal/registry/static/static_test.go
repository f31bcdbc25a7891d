package static

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sker-labs/sker-ucp/internal/registry"
)

func newService(id, name string) *registry.ServiceRegistration {
	return &registry.ServiceRegistration{
		ID:      id,
		Name:    name,
		Address: "127.0.0.1",
		Port:    8080,
		Tags:    []string{"primary"},
	}
}

func TestRegisterAndDiscover(t *testing.T) {
	b := New()
	ctx := context.Background()

	require.NoError(t, b.Register(ctx, newService("b-1", "billing")))
	require.NoError(t, b.Register(ctx, newService("b-2", "billing")))
	require.NoError(t, b.Register(ctx, newService("o-1", "orders")))

	result, err := b.Discover(ctx, &registry.DiscoveryQuery{Name: "billing"})
	require.NoError(t, err)
	require.Len(t, result.Services, 2)
	assert.Equal(t, "b-1", result.Services[0].ID)
	assert.Equal(t, "b-2", result.Services[1].ID)
	assert.Equal(t, "static", result.Source)

	// 空查询返回全量视图
	result, err = b.Discover(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, result.Services, 3)
}

func TestRegisterRejectsMissingID(t *testing.T) {
	b := New()
	require.Error(t, b.Register(context.Background(), &registry.ServiceRegistration{Name: "billing"}))
	require.Error(t, b.Register(context.Background(), nil))
}

func TestRegisterIsIdempotent(t *testing.T) {
	b := New()
	ctx := context.Background()

	require.NoError(t, b.Register(ctx, newService("b-1", "billing")))
	require.NoError(t, b.UpdateHealth(ctx, "b-1", registry.HealthHealthy))

	// 重复注册覆盖实例数据，但不重置健康状态
	updated := newService("b-1", "billing")
	updated.Port = 9090
	require.NoError(t, b.Register(ctx, updated))

	result, err := b.Discover(ctx, &registry.DiscoveryQuery{Name: "billing"})
	require.NoError(t, err)
	require.Len(t, result.Services, 1)
	assert.Equal(t, 9090, result.Services[0].Port)

	status, err := b.GetHealth(ctx, "b-1")
	require.NoError(t, err)
	assert.Equal(t, registry.HealthHealthy, status)
}

func TestDiscoverReturnsClones(t *testing.T) {
	b := New()
	ctx := context.Background()

	require.NoError(t, b.Register(ctx, newService("b-1", "billing")))

	result, err := b.Discover(ctx, &registry.DiscoveryQuery{Name: "billing"})
	require.NoError(t, err)
	result.Services[0].Tags[0] = "mutated"

	again, err := b.Discover(ctx, &registry.DiscoveryQuery{Name: "billing"})
	require.NoError(t, err)
	assert.Equal(t, "primary", again.Services[0].Tags[0])
}

func TestDeregisterRemovesServiceAndHealth(t *testing.T) {
	b := New()
	ctx := context.Background()

	require.NoError(t, b.Register(ctx, newService("b-1", "billing")))
	require.NoError(t, b.Deregister(ctx, "b-1"))

	result, err := b.Discover(ctx, &registry.DiscoveryQuery{Name: "billing"})
	require.NoError(t, err)
	assert.Empty(t, result.Services)

	_, err = b.GetHealth(ctx, "b-1")
	require.Error(t, err)

	// 注销未知实例为空操作
	require.NoError(t, b.Deregister(ctx, "b-1"))
}

func TestHealthLifecycle(t *testing.T) {
	b := New()
	ctx := context.Background()

	require.NoError(t, b.Register(ctx, newService("b-1", "billing")))

	status, err := b.GetHealth(ctx, "b-1")
	require.NoError(t, err)
	assert.Equal(t, registry.HealthUnknown, status)

	require.NoError(t, b.UpdateHealth(ctx, "b-1", registry.HealthUnhealthy))
	status, err = b.GetHealth(ctx, "b-1")
	require.NoError(t, err)
	assert.Equal(t, registry.HealthUnhealthy, status)

	require.Error(t, b.UpdateHealth(ctx, "ghost", registry.HealthHealthy))
}

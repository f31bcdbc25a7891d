package loadbalance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sker-labs/sker-ucp/internal/registry"
)

func instances(ids ...string) []*registry.ServiceRegistration {
	services := make([]*registry.ServiceRegistration, 0, len(ids))
	for _, id := range ids {
		services = append(services, &registry.ServiceRegistration{ID: id, Name: "orders"})
	}
	return services
}

func TestNewSelectsStrategy(t *testing.T) {
	assert.IsType(t, &RoundRobinBalancer{}, New("round_robin"))
	assert.IsType(t, &RandomBalancer{}, New("random"))
	assert.IsType(t, &WeightedBalancer{}, New("weighted"))
	// 未知策略回退到轮询
	assert.IsType(t, &RoundRobinBalancer{}, New("does-not-exist"))
}

func TestRoundRobinCyclesThroughInstances(t *testing.T) {
	lb := NewRoundRobinBalancer()
	services := instances("a", "b", "c")

	seen := make(map[string]int)
	for i := 0; i < 9; i++ {
		seen[lb.Select(services).ID]++
	}
	assert.Equal(t, map[string]int{"a": 3, "b": 3, "c": 3}, seen)
}

func TestRandomStaysWithinInstanceSet(t *testing.T) {
	lb := NewRandomBalancer()
	services := instances("a", "b")

	for i := 0; i < 20; i++ {
		picked := lb.Select(services)
		require.NotNil(t, picked)
		assert.Contains(t, []string{"a", "b"}, picked.ID)
	}
}

func TestWeightedRespectsMetadataWeight(t *testing.T) {
	lb := NewWeightedBalancer()
	services := instances("heavy", "light")
	services[0].Metadata = map[string]string{"weight": "3"}
	services[1].Metadata = map[string]string{"weight": "1"}

	seen := make(map[string]int)
	for i := 0; i < 40; i++ {
		seen[lb.Select(services).ID]++
	}
	assert.Equal(t, 30, seen["heavy"])
	assert.Equal(t, 10, seen["light"])
}

func TestWeightedFallsBackWithoutWeights(t *testing.T) {
	services := instances("a", "b")
	services[0].Metadata = map[string]string{"weight": "not-a-number"}

	// 非法权重按1计，仍按加权轮询均匀分配
	lb := NewWeightedBalancer()
	seen := make(map[string]int)
	for i := 0; i < 10; i++ {
		seen[lb.Select(services).ID]++
	}
	assert.Equal(t, 5, seen["a"])
	assert.Equal(t, 5, seen["b"])
}

func TestSelectOnEmptySetReturnsNil(t *testing.T) {
	assert.Nil(t, NewRoundRobinBalancer().Select(nil))
	assert.Nil(t, NewRandomBalancer().Select(nil))
	assert.Nil(t, NewWeightedBalancer().Select(nil))
}

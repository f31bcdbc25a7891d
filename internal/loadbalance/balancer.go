package loadbalance

import (
	"fmt"
	"math/rand"
	"sync/atomic"

	"github.com/sker-labs/sker-ucp/internal/registry"
)

// Balancer 负载均衡器接口
type Balancer interface {
	Select(services []*registry.ServiceRegistration) *registry.ServiceRegistration
}

// New 按策略名创建负载均衡器，未知策略回退到轮询
func New(strategy string) Balancer {
	switch strategy {
	case "random":
		return NewRandomBalancer()
	case "weighted":
		return NewWeightedBalancer()
	default:
		return NewRoundRobinBalancer()
	}
}

// RoundRobinBalancer 轮询负载均衡器
type RoundRobinBalancer struct {
	counter uint64
}

// NewRoundRobinBalancer 创建轮询负载均衡器
func NewRoundRobinBalancer() *RoundRobinBalancer {
	return &RoundRobinBalancer{}
}

// Select 选择实例
func (lb *RoundRobinBalancer) Select(services []*registry.ServiceRegistration) *registry.ServiceRegistration {
	if len(services) == 0 {
		return nil
	}

	index := atomic.AddUint64(&lb.counter, 1)
	return services[int(index)%len(services)]
}

// RandomBalancer 随机负载均衡器
type RandomBalancer struct{}

// NewRandomBalancer 创建随机负载均衡器
func NewRandomBalancer() *RandomBalancer {
	return &RandomBalancer{}
}

// Select 选择实例
func (lb *RandomBalancer) Select(services []*registry.ServiceRegistration) *registry.ServiceRegistration {
	if len(services) == 0 {
		return nil
	}

	return services[rand.Intn(len(services))]
}

// WeightedBalancer 加权负载均衡器
type WeightedBalancer struct {
	counter uint64
}

// NewWeightedBalancer 创建加权负载均衡器
func NewWeightedBalancer() *WeightedBalancer {
	return &WeightedBalancer{}
}

// Select 选择实例（基于权重）
func (lb *WeightedBalancer) Select(services []*registry.ServiceRegistration) *registry.ServiceRegistration {
	if len(services) == 0 {
		return nil
	}

	// 计算总权重
	totalWeight := 0
	for _, svc := range services {
		totalWeight += getWeight(svc)
	}

	if totalWeight == 0 {
		// 没有权重信息时退化为轮询
		index := atomic.AddUint64(&lb.counter, 1)
		return services[int(index)%len(services)]
	}

	// 加权选择
	index := atomic.AddUint64(&lb.counter, 1)
	offset := int(index) % totalWeight
	currentWeight := 0

	for _, svc := range services {
		currentWeight += getWeight(svc)
		if offset < currentWeight {
			return svc
		}
	}

	return services[0]
}

// getWeight 从实例元数据中获取权重
func getWeight(svc *registry.ServiceRegistration) int {
	if svc.Metadata == nil {
		return 1
	}

	if weightStr, ok := svc.Metadata["weight"]; ok {
		var weight int
		if _, err := fmt.Sscanf(weightStr, "%d", &weight); err == nil && weight > 0 {
			return weight
		}
	}

	return 1
}

// Package kubernetes 提供基于Kubernetes的注册中心后端。
//
// 集群编排器本身就是注册权威：实例生命周期由kubelet与控制器管理，
// Register/Deregister 只维护本地镜像用于健康查询，不写集群。
// Discover 读取服务的 Endpoints 资源，把就绪地址映射为服务实例。
package kubernetes

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/sker-labs/sker-ucp/internal/registry"
)

// Backend Kubernetes注册中心后端
type Backend struct {
	client    kubernetes.Interface
	namespace string
	logger    *zap.Logger

	mu     sync.RWMutex
	mirror map[string]*registry.ServiceRegistration // 本进程注册的实例镜像
	health map[string]registry.HealthStatus
}

// New 创建Kubernetes后端。kubeconfig为空时使用集群内配置。
func New(kubeconfig, namespace string, logger *zap.Logger) (*Backend, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if namespace == "" {
		namespace = "default"
	}

	restCfg, err := rest.InClusterConfig()
	if err != nil {
		restCfg, err = clientcmd.BuildConfigFromFlags("", kubeconfig)
		if err != nil {
			return nil, fmt.Errorf("failed to load kubernetes config: %w", err)
		}
	}

	client, err := kubernetes.NewForConfig(restCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create kubernetes client: %w", err)
	}

	return NewWithClient(client, namespace, logger), nil
}

// NewWithClient 使用现成的客户端创建后端（测试用）
func NewWithClient(client kubernetes.Interface, namespace string, logger *zap.Logger) *Backend {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Backend{
		client:    client,
		namespace: namespace,
		logger:    logger,
		mirror:    make(map[string]*registry.ServiceRegistration),
		health:    make(map[string]registry.HealthStatus),
	}
}

// Name 后端名称
func (b *Backend) Name() string { return "kubernetes" }

// Register 只写本地镜像，集群注册由编排器负责
func (b *Backend) Register(_ context.Context, service *registry.ServiceRegistration) error {
	if service == nil || service.ID == "" {
		return fmt.Errorf("service registration requires an id")
	}

	b.mu.Lock()
	b.mirror[service.ID] = service.Clone()
	if _, ok := b.health[service.ID]; !ok {
		b.health[service.ID] = registry.HealthUnknown
	}
	b.mu.Unlock()

	b.logger.Debug("kubernetes backend mirrors registration only, cluster registration is managed by the orchestrator",
		zap.String("service_id", service.ID))
	return nil
}

// Deregister 移除本地镜像
func (b *Backend) Deregister(_ context.Context, serviceID string) error {
	b.mu.Lock()
	delete(b.mirror, serviceID)
	delete(b.health, serviceID)
	b.mu.Unlock()
	return nil
}

// Discover 读取Endpoints资源并映射为服务实例
func (b *Backend) Discover(ctx context.Context, query *registry.DiscoveryQuery) (*registry.DiscoveryResult, error) {
	var endpointsList []corev1.Endpoints

	if query != nil && query.Name != "" {
		eps, err := b.client.CoreV1().Endpoints(b.namespace).Get(ctx, query.Name, metav1.GetOptions{})
		if apierrors.IsNotFound(err) {
			return &registry.DiscoveryResult{
				Services:    []*registry.ServiceRegistration{},
				LastUpdated: time.Now(),
				Source:      b.Name(),
			}, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get endpoints for %s: %w", query.Name, err)
		}
		endpointsList = []corev1.Endpoints{*eps}
	} else {
		list, err := b.client.CoreV1().Endpoints(b.namespace).List(ctx, metav1.ListOptions{})
		if err != nil {
			return nil, fmt.Errorf("failed to list endpoints: %w", err)
		}
		endpointsList = list.Items
	}

	services := make([]*registry.ServiceRegistration, 0)
	for i := range endpointsList {
		services = append(services, fromEndpoints(&endpointsList[i])...)
	}

	return &registry.DiscoveryResult{
		Services:    services,
		LastUpdated: time.Now(),
		Source:      b.Name(),
	}, nil
}

// GetHealth 查询实例健康状态（本地镜像）
func (b *Backend) GetHealth(_ context.Context, serviceID string) (registry.HealthStatus, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if status, ok := b.health[serviceID]; ok {
		return status, nil
	}
	return registry.HealthUnknown, nil
}

// UpdateHealth 上报实例健康状态（本地镜像，就绪探针仍由kubelet负责）
func (b *Backend) UpdateHealth(_ context.Context, serviceID string, status registry.HealthStatus) error {
	b.mu.Lock()
	b.health[serviceID] = status
	b.mu.Unlock()
	return nil
}

// Close 无持久连接，空操作
func (b *Backend) Close() error { return nil }

// fromEndpoints 把Endpoints的就绪地址展开为服务实例
func fromEndpoints(eps *corev1.Endpoints) []*registry.ServiceRegistration {
	services := make([]*registry.ServiceRegistration, 0)
	for _, subset := range eps.Subsets {
		for _, addr := range subset.Addresses {
			for _, port := range subset.Ports {
				services = append(services, &registry.ServiceRegistration{
					ID:       fmt.Sprintf("%s-%s-%d", eps.Name, addr.IP, port.Port),
					Name:     eps.Name,
					Address:  addr.IP,
					Port:     int(port.Port),
					Protocol: port.Name,
					Metadata: eps.Labels,
				})
			}
		}
	}
	return services
}

// Package discovery 在注册中心后端之上编排服务发现。
//
// 后端只提供注册表的当前视图，本层补齐其余语义：查询结果按序列化后的
// 查询条件做TTL缓存、客户端侧过滤（名称/版本/协议/标签/元数据/健康状态）、
// 持久化查询订阅（watch），以及对已注册服务的周期HTTP健康探测。
package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sker-labs/sker-ucp/internal/config"
	"github.com/sker-labs/sker-ucp/internal/event"
	"github.com/sker-labs/sker-ucp/internal/registry"
	"github.com/sker-labs/sker-ucp/internal/sched"
)

// WatchCallback 订阅回调，每次该查询的缓存刷新时被调用
type WatchCallback func(result *registry.DiscoveryResult)

type cacheEntry struct {
	result    *registry.DiscoveryResult
	expiresAt time.Time
}

type watcher struct {
	id       uint64
	query    *registry.DiscoveryQuery
	callback WatchCallback
}

// Discovery 服务发现编排器
type Discovery struct {
	backend registry.Backend
	cfg     config.DiscoveryConfig
	bus     *event.Bus
	logger  *zap.Logger
	sched   *sched.Scheduler
	probes  *http.Client

	mu          sync.RWMutex
	services    map[string]*registry.ServiceRegistration
	cache       map[string]*cacheEntry
	watchers    map[string][]*watcher
	nextWatcher uint64
	closed      bool
}

// New 创建服务发现编排器并启动缓存清理任务
func New(backend registry.Backend, cfg config.DiscoveryConfig, bus *event.Bus, logger *zap.Logger) *Discovery {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.CacheTimeout <= 0 {
		cfg.CacheTimeout = 30 * time.Second
	}
	if cfg.CacheSweepInterval <= 0 {
		cfg.CacheSweepInterval = 60 * time.Second
	}
	if cfg.HealthCheckInterval <= 0 {
		cfg.HealthCheckInterval = 30 * time.Second
	}
	if cfg.HealthCheckTimeout <= 0 {
		cfg.HealthCheckTimeout = 5 * time.Second
	}

	d := &Discovery{
		backend:  backend,
		cfg:      cfg,
		bus:      bus,
		logger:   logger,
		sched:    sched.New(logger),
		probes:   &http.Client{},
		services: make(map[string]*registry.ServiceRegistration),
		cache:    make(map[string]*cacheEntry),
		watchers: make(map[string][]*watcher),
	}

	d.sched.Every("cache-sweep", cfg.CacheSweepInterval, d.sweepCache)

	return d
}

// Register 注册服务实例
//
// 先委托后端，成功后才写入本地注册表并启动健康检查（全有或全无）。
// 后端失败时发布 registration_failed 并原样上抛，本地不留任何状态。
func (d *Discovery) Register(ctx context.Context, service *registry.ServiceRegistration) error {
	if service == nil || service.ID == "" || service.Name == "" {
		return fmt.Errorf("service registration requires id and name")
	}

	d.mu.RLock()
	closed := d.closed
	d.mu.RUnlock()
	if closed {
		return ErrDiscoveryClosed
	}

	if err := d.backend.Register(ctx, service); err != nil {
		d.bus.Emit(EventRegistrationFailed, ServiceEvent{ServiceID: service.ID, Name: service.Name, Err: err})
		return fmt.Errorf("register service %s with %s backend: %w", service.ID, d.backend.Name(), err)
	}

	d.mu.Lock()
	d.services[service.ID] = service.Clone()
	d.mu.Unlock()

	if service.HealthCheck != nil && service.HealthCheck.Enabled {
		d.startHealthCheck(service)
	}

	d.bus.Emit(EventServiceRegistered, ServiceEvent{ServiceID: service.ID, Name: service.Name})
	d.logger.Info("service registered",
		zap.String("service_id", service.ID),
		zap.String("service_name", service.Name),
		zap.String("backend", d.backend.Name()))
	return nil
}

// Deregister 注销服务实例，未知ID返回 ErrServiceNotFound
func (d *Discovery) Deregister(ctx context.Context, serviceID string) error {
	d.mu.RLock()
	service, ok := d.services[serviceID]
	d.mu.RUnlock()
	if !ok {
		return fmt.Errorf("deregister service %s: %w", serviceID, ErrServiceNotFound)
	}

	if err := d.backend.Deregister(ctx, serviceID); err != nil {
		d.bus.Emit(EventDeregistrationFailed, ServiceEvent{ServiceID: serviceID, Name: service.Name, Err: err})
		return fmt.Errorf("deregister service %s from %s backend: %w", serviceID, d.backend.Name(), err)
	}

	d.mu.Lock()
	delete(d.services, serviceID)
	d.mu.Unlock()
	d.sched.Stop(healthCheckTask(serviceID))

	d.bus.Emit(EventServiceDeregistered, ServiceEvent{ServiceID: serviceID, Name: service.Name})
	return nil
}

// Discover 按查询条件发现服务
//
// 命中未过期缓存时直接返回，不触达后端；否则查询后端、
// 做客户端过滤、写缓存并通知该查询的订阅者。
func (d *Discovery) Discover(ctx context.Context, query *registry.DiscoveryQuery) (*registry.DiscoveryResult, error) {
	if query == nil {
		query = &registry.DiscoveryQuery{}
	}
	key := cacheKey(query)

	d.mu.RLock()
	if d.closed {
		d.mu.RUnlock()
		return nil, ErrDiscoveryClosed
	}
	if entry, ok := d.cache[key]; ok && time.Now().Before(entry.expiresAt) {
		d.mu.RUnlock()
		return entry.result, nil
	}
	d.mu.RUnlock()

	backendResult, err := d.backend.Discover(ctx, query)
	if err != nil {
		d.bus.Emit(EventDiscoveryFailed, DiscoveryEvent{Query: query, Err: err})
		return nil, fmt.Errorf("discover services (name=%q) from %s backend: %w", query.Name, d.backend.Name(), err)
	}

	filtered := d.filter(ctx, backendResult.Services, query)
	result := &registry.DiscoveryResult{
		Services:    filtered,
		LastUpdated: time.Now(),
		Source:      d.backend.Name(),
	}

	d.mu.Lock()
	d.cache[key] = &cacheEntry{result: result, expiresAt: time.Now().Add(d.cfg.CacheTimeout)}
	observers := append([]*watcher(nil), d.watchers[key]...)
	d.mu.Unlock()

	d.bus.Emit(EventServicesDiscovered, DiscoveryEvent{Query: query, Count: len(filtered)})
	for _, w := range observers {
		w.callback(result)
	}
	return result, nil
}

// filter 客户端侧过滤：名称/版本/协议精确匹配，标签要求超集，
// 元数据逐项精确匹配，健康状态按最近一次观测结果过滤
func (d *Discovery) filter(ctx context.Context, services []*registry.ServiceRegistration, query *registry.DiscoveryQuery) []*registry.ServiceRegistration {
	matched := make([]*registry.ServiceRegistration, 0, len(services))
	for _, svc := range services {
		if query.Name != "" && svc.Name != query.Name {
			continue
		}
		if query.Version != "" && svc.Version != query.Version {
			continue
		}
		if query.Protocol != "" && svc.Protocol != query.Protocol {
			continue
		}
		if !hasAllTags(svc.Tags, query.Tags) {
			continue
		}
		if !hasMetadata(svc.Metadata, query.Metadata) {
			continue
		}
		if query.Healthy != nil && !d.matchesHealth(ctx, svc.ID, *query.Healthy) {
			continue
		}
		matched = append(matched, svc)
	}
	return matched
}

// matchesHealth 健康过滤。从未探测过的实例（UNKNOWN）不视为不健康。
func (d *Discovery) matchesHealth(ctx context.Context, serviceID string, wantHealthy bool) bool {
	status, err := d.backend.GetHealth(ctx, serviceID)
	if err != nil {
		status = registry.HealthUnknown
	}
	if wantHealthy {
		return status != registry.HealthUnhealthy
	}
	return status == registry.HealthUnhealthy
}

func hasAllTags(have, want []string) bool {
	for _, tag := range want {
		found := false
		for _, t := range have {
			if t == tag {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func hasMetadata(have, want map[string]string) bool {
	for k, v := range want {
		if have[k] != v {
			return false
		}
	}
	return true
}

// Watch 订阅查询结果
//
// 注册后立即执行一次发现并同步回调（结果为空集也回调）；之后每当
// 同一查询的缓存被刷新时再次回调。初次发现失败只发布 watch_error，
// 订阅依然生效。返回的函数用于取消本次订阅。
func (d *Discovery) Watch(ctx context.Context, query *registry.DiscoveryQuery, callback WatchCallback) (unsubscribe func()) {
	if query == nil {
		query = &registry.DiscoveryQuery{}
	}

	// 先做初次发现，再挂订阅，避免缓存写通知造成重复回调
	result, err := d.Discover(ctx, query)
	if err != nil {
		d.bus.Emit(EventWatchError, DiscoveryEvent{Query: query, Err: err})
		d.logger.Warn("initial discovery for watch failed",
			zap.String("service_name", query.Name),
			zap.Error(err))
	}

	key := cacheKey(query)

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return func() {}
	}
	id := d.nextWatcher
	d.nextWatcher++
	w := &watcher{id: id, query: query, callback: callback}
	d.watchers[key] = append(d.watchers[key], w)
	d.mu.Unlock()

	if err == nil {
		callback(result)
	}

	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		ws := d.watchers[key]
		for i, cand := range ws {
			if cand.id == id {
				d.watchers[key] = append(ws[:i], ws[i+1:]...)
				break
			}
		}
		if len(d.watchers[key]) == 0 {
			delete(d.watchers, key)
		}
	}
}

// GetHealth 查询已注册服务的健康状态，未知ID返回 ErrServiceNotFound
func (d *Discovery) GetHealth(ctx context.Context, serviceID string) (registry.HealthStatus, error) {
	d.mu.RLock()
	_, ok := d.services[serviceID]
	d.mu.RUnlock()
	if !ok {
		return registry.HealthUnknown, fmt.Errorf("get health of service %s: %w", serviceID, ErrServiceNotFound)
	}
	return d.backend.GetHealth(ctx, serviceID)
}

// UpdateHealth 上报已注册服务的健康状态，未知ID返回 ErrServiceNotFound
func (d *Discovery) UpdateHealth(ctx context.Context, serviceID string, status registry.HealthStatus) error {
	d.mu.RLock()
	_, ok := d.services[serviceID]
	d.mu.RUnlock()
	if !ok {
		return fmt.Errorf("update health of service %s: %w", serviceID, ErrServiceNotFound)
	}

	if err := d.backend.UpdateHealth(ctx, serviceID, status); err != nil {
		d.bus.Emit(EventHealthUpdateFailed, HealthEvent{ServiceID: serviceID, Status: status, Err: err})
		return fmt.Errorf("update health of service %s: %w", serviceID, err)
	}
	d.bus.Emit(EventHealthUpdated, HealthEvent{ServiceID: serviceID, Status: status})
	return nil
}

// Services 返回本地注册表中的服务快照
func (d *Discovery) Services() []*registry.ServiceRegistration {
	d.mu.RLock()
	defer d.mu.RUnlock()

	services := make([]*registry.ServiceRegistration, 0, len(d.services))
	for _, svc := range d.services {
		services = append(services, svc.Clone())
	}
	sort.Slice(services, func(i, j int) bool { return services[i].ID < services[j].ID })
	return services
}

// Destroy 停止全部健康检查与缓存清理任务，清空缓存与订阅
func (d *Discovery) Destroy() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()

	d.sched.StopAll()

	d.mu.Lock()
	d.cache = make(map[string]*cacheEntry)
	d.watchers = make(map[string][]*watcher)
	d.services = make(map[string]*registry.ServiceRegistration)
	d.mu.Unlock()

	d.bus.Emit(EventDestroyed, nil)
}

// sweepCache 清理已过期的缓存条目，防止一次性查询无限堆积
func (d *Discovery) sweepCache() error {
	now := time.Now()
	d.mu.Lock()
	for key, entry := range d.cache {
		if now.After(entry.expiresAt) {
			delete(d.cache, key)
		}
	}
	d.mu.Unlock()
	return nil
}

// healthCheckTask 服务健康检查的调度任务名
func healthCheckTask(serviceID string) string {
	return "health-check:" + serviceID
}

// startHealthCheck 为服务启动周期健康探测
func (d *Discovery) startHealthCheck(service *registry.ServiceRegistration) {
	interval := service.HealthCheck.Interval
	if interval <= 0 {
		interval = d.cfg.HealthCheckInterval
	}
	serviceID := service.ID
	d.sched.Every(healthCheckTask(serviceID), interval, func() error {
		return d.checkHealth(serviceID)
	})
}

// checkHealth 执行一次HTTP健康探测并把结果上报后端
//
// 探测异常（含超时）一律视为 UNHEALTHY，绝不让错误终止探测循环。
func (d *Discovery) checkHealth(serviceID string) error {
	d.mu.RLock()
	service, ok := d.services[serviceID]
	d.mu.RUnlock()
	if !ok {
		return nil // 服务已注销，任务随后会被停止
	}

	status := registry.HealthHealthy
	if err := d.probe(service); err != nil {
		status = registry.HealthUnhealthy
		d.bus.Emit(EventHealthCheckError, HealthEvent{ServiceID: serviceID, Status: status, Err: err})
	}

	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.HealthCheckTimeout)
	defer cancel()
	if err := d.backend.UpdateHealth(ctx, serviceID, status); err != nil {
		d.bus.Emit(EventHealthUpdateFailed, HealthEvent{ServiceID: serviceID, Status: status, Err: err})
		return fmt.Errorf("report health of service %s: %w", serviceID, err)
	}
	d.bus.Emit(EventHealthUpdated, HealthEvent{ServiceID: serviceID, Status: status})
	return nil
}

// probe 对 http://{address}:{port}{endpoint} 发起一次带超时的GET探测
func (d *Discovery) probe(service *registry.ServiceRegistration) error {
	timeout := service.HealthCheck.Timeout
	if timeout <= 0 {
		timeout = d.cfg.HealthCheckTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	url := fmt.Sprintf("http://%s:%d%s", service.Address, service.Port, service.HealthCheck.Endpoint)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := d.probes.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("health probe returned status %d", resp.StatusCode)
	}
	return nil
}

// cacheKey 查询条件的稳定序列化形式，作为缓存与订阅的键
func cacheKey(query *registry.DiscoveryQuery) string {
	normalized := *query
	if len(query.Tags) > 0 {
		normalized.Tags = append([]string(nil), query.Tags...)
		sort.Strings(normalized.Tags)
	}
	data, err := json.Marshal(&normalized)
	if err != nil {
		// DiscoveryQuery 只含可序列化字段，这里不可达
		return fmt.Sprintf("%+v", normalized)
	}
	return string(data)
}

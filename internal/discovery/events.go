package discovery

import (
	"github.com/sker-labs/sker-ucp/internal/registry"
)

// 服务发现对外发布的事件名称
const (
	EventServiceRegistered    = "service_registered"
	EventServiceDeregistered  = "service_deregistered"
	EventRegistrationFailed   = "registration_failed"
	EventDeregistrationFailed = "deregistration_failed"
	EventServicesDiscovered   = "services_discovered"
	EventDiscoveryFailed      = "discovery_failed"
	EventWatchError           = "watch_error"
	EventHealthUpdated        = "health_updated"
	EventHealthUpdateFailed   = "health_update_failed"
	EventHealthCheckError     = "health_check_error"
	EventDestroyed            = "destroyed"
)

// ServiceEvent 注册、注销相关事件载荷
type ServiceEvent struct {
	ServiceID string
	Name      string
	Err       error
}

// DiscoveryEvent 查询相关事件载荷
type DiscoveryEvent struct {
	Query *registry.DiscoveryQuery
	Count int
	Err   error
}

// HealthEvent 健康状态相关事件载荷
type HealthEvent struct {
	ServiceID string
	Status    registry.HealthStatus
	Err       error
}

package pool

// 连接池对外发布的事件名称
const (
	EventConnectionCreated  = "connection-created"
	EventConnectionActive   = "connection-active"
	EventConnectionIdle     = "connection-idle"
	EventConnectionClosed   = "connection-closed"
	EventConnectionCleanup  = "connection-cleanup"
	EventWarmupError        = "warmup-error"
	EventWarmupComplete     = "warmup-complete"
	EventHealthCheckSuccess = "health-check-success"
	EventHealthCheckFailure = "health-check-failure"
)

// ConnectionEvent 连接相关事件载荷
type ConnectionEvent struct {
	Endpoint     string
	ConnectionID string
	Err          error
}

// WarmupEvent 预热相关事件载荷
type WarmupEvent struct {
	Endpoint string
	Created  int
	Err      error
}

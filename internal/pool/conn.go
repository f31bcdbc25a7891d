package pool

import (
	"context"
	"time"
)

// Connection 池化连接的最小能力接口
//
// 连接池不关心底层线协议，任何传输（gRPC、HTTP、WebSocket）只要实现
// 本接口即可入池。Ping 返回一次往返耗时，用于连接校验与健康探测。
type Connection interface {
	// Connect 建立连接
	Connect(ctx context.Context) error

	// Disconnect 断开连接并释放资源
	Disconnect(ctx context.Context) error

	// IsConnected 返回连接是否可用
	IsConnected() bool

	// Ping 探活并返回往返延迟
	Ping(ctx context.Context) (time.Duration, error)
}

// Factory 连接工厂函数，由传输层提供
type Factory func(ctx context.Context, endpoint string) (Connection, error)

// State 连接在池中的状态
type State string

const (
	StateActive    State = "active"    // 已借出，调用方持有
	StateIdle      State = "idle"      // 空闲，可复用
	StateDestroyed State = "destroyed" // 已销毁
)

// ConnectionRecord 一条池内连接及其簿记信息
//
// 记录由连接池独占管理，调用方在 Acquire 与 Release 之间借用，
// 归还后不得继续持有。
type ConnectionRecord struct {
	id       string
	endpoint string
	conn     Connection

	// 以下字段由 Manager.mu 保护
	state      State
	releasing  bool
	createdAt  time.Time
	lastUsedAt time.Time
}

// ID 连接记录唯一标识
func (r *ConnectionRecord) ID() string { return r.id }

// Endpoint 连接目标
func (r *ConnectionRecord) Endpoint() string { return r.endpoint }

// Conn 底层连接
func (r *ConnectionRecord) Conn() Connection { return r.conn }

// State 当前状态快照
func (r *ConnectionRecord) State() State { return r.state }

// LastUsedAt 最近一次借出或归还时间的快照
func (r *ConnectionRecord) LastUsedAt() time.Time { return r.lastUsedAt }

// Package pool 实现按端点划分的连接池。
//
// 每个端点维护一个逻辑子池：空闲连接按归还顺序排成 FIFO 队列，借出时
// 取队首（最早归还者优先），使负载在连接间轮转而不是集中在最新连接上。
// 单目标连接数受 MaxConnectionsPerTarget 约束，达到上限后的获取请求
// 进入等待队列，在 AcquireTimeout 内等待他人归还。
package pool

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sker-labs/sker-ucp/internal/config"
	"github.com/sker-labs/sker-ucp/internal/event"
	"github.com/sker-labs/sker-ucp/internal/sched"
)

type acquireResult struct {
	rec *ConnectionRecord
	err error
}

// waiter 达到容量上限后排队等待连接的获取请求
type waiter struct {
	ch        chan acquireResult // 容量1，归还方直接投递
	delivered bool               // 由 Manager.mu 保护，投递与超时二选一
}

// targetPool 单个端点的子池，所有字段由 Manager.mu 保护
type targetPool struct {
	endpoint   string
	idle       []*ConnectionRecord          // FIFO：队首为最早归还的连接
	active     map[string]*ConnectionRecord // 按记录ID索引
	pending    int                          // 创建中的连接数，计入容量
	validating int                          // 校验中暂离空闲队列的连接数，计入容量
	waiters    []*waiter
}

func (tp *targetPool) size() int {
	return len(tp.idle) + len(tp.active) + tp.validating
}

// Manager 连接池管理器
type Manager struct {
	cfg     config.PoolConfig
	factory Factory
	bus     *event.Bus
	logger  *zap.Logger
	sched   *sched.Scheduler

	mu      sync.Mutex
	cond    *sync.Cond
	targets map[string]*targetPool
	records map[Connection]*ConnectionRecord
	closed  bool

	totalRequests  uint64
	totalCreated   uint64
	totalDestroyed uint64
}

// NewManager 创建连接池管理器并启动后台回收与校验任务
func NewManager(cfg config.PoolConfig, factory Factory, bus *event.Bus, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxConnectionsPerTarget <= 0 {
		cfg.MaxConnectionsPerTarget = 10
	}
	if cfg.AcquireTimeout <= 0 {
		cfg.AcquireTimeout = 5 * time.Second
	}

	m := &Manager{
		cfg:     cfg,
		factory: factory,
		bus:     bus,
		logger:  logger,
		sched:   sched.New(logger),
		targets: make(map[string]*targetPool),
		records: make(map[Connection]*ConnectionRecord),
	}
	m.cond = sync.NewCond(&m.mu)

	if cfg.IdleTimeout > 0 {
		sweep := cfg.IdleTimeout / 2
		if sweep < time.Second {
			sweep = time.Second
		}
		m.sched.Every("idle-evict", sweep, m.evictIdle)
	}
	if cfg.Validation.Enabled && cfg.Validation.Interval > 0 {
		m.sched.Every("idle-validate", cfg.Validation.Interval, m.validateIdle)
	}

	return m
}

// target 返回端点子池，不存在时创建。调用方必须持有 m.mu。
func (m *Manager) target(endpoint string) *targetPool {
	tp, ok := m.targets[endpoint]
	if !ok {
		tp = &targetPool{
			endpoint: endpoint,
			active:   make(map[string]*ConnectionRecord),
		}
		m.targets[endpoint] = tp
	}
	return tp
}

// Acquire 获取一条到指定端点的连接
//
// 优先复用最早归还的空闲连接；无空闲且未达上限时新建；
// 已达上限时排队等待，超过 AcquireTimeout 返回 AcquireTimeoutError。
func (m *Manager) Acquire(ctx context.Context, endpoint string) (*ConnectionRecord, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrPoolClosed
	}
	m.totalRequests++
	tp := m.target(endpoint)

	// 复用空闲连接：取队首，即最早归还者
	if len(tp.idle) > 0 {
		rec := tp.idle[0]
		tp.idle = tp.idle[1:]
		rec.state = StateActive
		rec.lastUsedAt = time.Now()
		tp.active[rec.id] = rec
		m.mu.Unlock()
		m.bus.Emit(EventConnectionActive, ConnectionEvent{Endpoint: endpoint, ConnectionID: rec.id})
		return rec, nil
	}

	// 未达上限则新建。先占位（pending）再解锁创建，
	// 保证容量判定与占位之间没有竞态窗口。
	if tp.size()+tp.pending < m.cfg.MaxConnectionsPerTarget {
		tp.pending++
		m.mu.Unlock()

		rec, err := m.createConnection(ctx, endpoint)

		m.mu.Lock()
		tp.pending--
		if err != nil {
			m.cond.Broadcast()
			m.mu.Unlock()
			return nil, fmt.Errorf("create connection for %s: %w", endpoint, err)
		}
		if m.closed {
			m.mu.Unlock()
			_ = rec.conn.Disconnect(context.Background())
			return nil, ErrPoolClosed
		}
		rec.state = StateActive
		tp.active[rec.id] = rec
		m.records[rec.conn] = rec
		m.totalCreated++
		m.mu.Unlock()

		m.bus.Emit(EventConnectionCreated, ConnectionEvent{Endpoint: endpoint, ConnectionID: rec.id})
		m.bus.Emit(EventConnectionActive, ConnectionEvent{Endpoint: endpoint, ConnectionID: rec.id})
		return rec, nil
	}

	// 已达上限，排队等待归还
	w := &waiter{ch: make(chan acquireResult, 1)}
	tp.waiters = append(tp.waiters, w)
	m.mu.Unlock()

	timer := time.NewTimer(m.cfg.AcquireTimeout)
	defer timer.Stop()

	select {
	case res := <-w.ch:
		if res.err != nil {
			return nil, res.err
		}
		m.bus.Emit(EventConnectionActive, ConnectionEvent{Endpoint: endpoint, ConnectionID: res.rec.id})
		return res.rec, nil
	case <-timer.C:
		if res, ok := m.cancelWait(tp, w); ok {
			// 投递与超时同时发生，以投递为准
			if res.err != nil {
				return nil, res.err
			}
			m.bus.Emit(EventConnectionActive, ConnectionEvent{Endpoint: endpoint, ConnectionID: res.rec.id})
			return res.rec, nil
		}
		return nil, &AcquireTimeoutError{Endpoint: endpoint, Timeout: m.cfg.AcquireTimeout}
	case <-ctx.Done():
		if res, ok := m.cancelWait(tp, w); ok {
			if res.err != nil {
				return nil, res.err
			}
			m.bus.Emit(EventConnectionActive, ConnectionEvent{Endpoint: endpoint, ConnectionID: res.rec.id})
			return res.rec, nil
		}
		return nil, fmt.Errorf("acquire connection for %s: %w", endpoint, ctx.Err())
	}
}

// cancelWait 将等待者移出队列。若归还方已经投递则返回投递结果。
func (m *Manager) cancelWait(tp *targetPool, w *waiter) (acquireResult, bool) {
	m.mu.Lock()
	if w.delivered {
		m.mu.Unlock()
		return <-w.ch, true
	}
	for i, cand := range tp.waiters {
		if cand == w {
			tp.waiters = append(tp.waiters[:i], tp.waiters[i+1:]...)
			break
		}
	}
	m.mu.Unlock()
	return acquireResult{}, false
}

// createConnection 调用工厂创建并建立连接，不触碰池状态
func (m *Manager) createConnection(ctx context.Context, endpoint string) (*ConnectionRecord, error) {
	conn, err := m.factory(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	if err := conn.Connect(ctx); err != nil {
		_ = conn.Disconnect(context.Background())
		return nil, err
	}
	now := time.Now()
	return &ConnectionRecord{
		id:         uuid.NewString(),
		endpoint:   endpoint,
		conn:       conn,
		createdAt:  now,
		lastUsedAt: now,
	}, nil
}

// Release 归还连接
//
// 归还未知或已空闲的连接是幂等空操作。开启校验时先探活，
// 失败的连接直接销毁而不回空闲队列，等待者由后台补建的连接接续。
func (m *Manager) Release(ctx context.Context, conn Connection) error {
	m.mu.Lock()
	rec, ok := m.records[conn]
	if !ok || rec.state != StateActive || rec.releasing {
		m.mu.Unlock()
		return nil
	}
	rec.releasing = true
	m.mu.Unlock()

	if m.cfg.Validation.Enabled {
		if !m.validate(ctx, conn) {
			m.discardActive(rec)
			return nil
		}
	}

	m.mu.Lock()
	rec.releasing = false
	tp := m.target(rec.endpoint)

	// 有等待者时直接移交，连接保持 active
	if w := m.popWaiter(tp); w != nil {
		rec.lastUsedAt = time.Now()
		m.mu.Unlock()
		w.ch <- acquireResult{rec: rec}
		return nil
	}

	delete(tp.active, rec.id)
	rec.state = StateIdle
	rec.lastUsedAt = time.Now()
	tp.idle = append(tp.idle, rec)
	m.cond.Broadcast()
	m.mu.Unlock()

	m.bus.Emit(EventConnectionIdle, ConnectionEvent{Endpoint: rec.endpoint, ConnectionID: rec.id})
	return nil
}

// validate 在校验超时内探活
func (m *Manager) validate(ctx context.Context, conn Connection) bool {
	timeout := m.cfg.Validation.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if _, err := conn.Ping(pingCtx); err != nil {
		return false
	}
	return conn.IsConnected()
}

// popWaiter 取出队首等待者并标记已投递。调用方必须持有 m.mu。
func (m *Manager) popWaiter(tp *targetPool) *waiter {
	if len(tp.waiters) == 0 {
		return nil
	}
	w := tp.waiters[0]
	tp.waiters = tp.waiters[1:]
	w.delivered = true
	return w
}

// discardActive 将借出中的连接移出池并销毁；
// 若有等待者且容量允许，后台补建一条连接接续队首等待者。
func (m *Manager) discardActive(rec *ConnectionRecord) {
	m.mu.Lock()
	tp := m.target(rec.endpoint)
	delete(tp.active, rec.id)
	delete(m.records, rec.conn)
	rec.state = StateDestroyed
	rec.releasing = false
	m.totalDestroyed++

	if len(tp.waiters) > 0 && tp.size()+tp.pending < m.cfg.MaxConnectionsPerTarget {
		tp.pending++
		go m.replenish(rec.endpoint)
	}
	m.cond.Broadcast()
	m.mu.Unlock()

	_ = rec.conn.Disconnect(context.Background())
	m.bus.Emit(EventConnectionClosed, ConnectionEvent{Endpoint: rec.endpoint, ConnectionID: rec.id})
}

// replenish 为等待者后台补建连接。创建失败只记日志，
// 等待者最终按自身超时失败，错误不会落到无关调用方。
func (m *Manager) replenish(endpoint string) {
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.AcquireTimeout)
	defer cancel()

	rec, err := m.createConnection(ctx, endpoint)

	m.mu.Lock()
	tp := m.target(endpoint)
	tp.pending--
	if err != nil {
		m.cond.Broadcast()
		m.mu.Unlock()
		m.logger.Warn("replenish connection failed",
			zap.String("endpoint", endpoint),
			zap.Error(err))
		return
	}
	if m.closed {
		m.mu.Unlock()
		_ = rec.conn.Disconnect(context.Background())
		return
	}
	m.records[rec.conn] = rec
	m.totalCreated++

	if w := m.popWaiter(tp); w != nil {
		rec.state = StateActive
		rec.lastUsedAt = time.Now()
		tp.active[rec.id] = rec
		m.mu.Unlock()
		w.ch <- acquireResult{rec: rec}
		m.bus.Emit(EventConnectionCreated, ConnectionEvent{Endpoint: endpoint, ConnectionID: rec.id})
		return
	}

	rec.state = StateIdle
	tp.idle = append(tp.idle, rec)
	m.mu.Unlock()
	m.bus.Emit(EventConnectionCreated, ConnectionEvent{Endpoint: endpoint, ConnectionID: rec.id})
	m.bus.Emit(EventConnectionIdle, ConnectionEvent{Endpoint: endpoint, ConnectionID: rec.id})
}

// Warmup 预先为端点建立 MinConnections 条空闲连接
func (m *Manager) Warmup(ctx context.Context, endpoint string) {
	created := 0
	for {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return
		}
		tp := m.target(endpoint)
		if tp.size()+tp.pending >= m.cfg.MinConnections || tp.size()+tp.pending >= m.cfg.MaxConnectionsPerTarget {
			m.mu.Unlock()
			break
		}
		tp.pending++
		m.mu.Unlock()

		rec, err := m.createConnection(ctx, endpoint)

		m.mu.Lock()
		tp.pending--
		if err != nil {
			m.mu.Unlock()
			m.logger.Warn("warmup connection failed",
				zap.String("endpoint", endpoint),
				zap.Error(err))
			m.bus.Emit(EventWarmupError, WarmupEvent{Endpoint: endpoint, Created: created, Err: err})
			return
		}
		rec.state = StateIdle
		tp.idle = append(tp.idle, rec)
		m.records[rec.conn] = rec
		m.totalCreated++
		created++
		m.mu.Unlock()
		m.bus.Emit(EventConnectionCreated, ConnectionEvent{Endpoint: endpoint, ConnectionID: rec.id})
	}
	m.bus.Emit(EventWarmupComplete, WarmupEvent{Endpoint: endpoint, Created: created})
}

// Drain 等待所有借出中的连接被归还，不销毁空闲连接
func (m *Manager) Drain(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		m.mu.Lock()
		m.cond.Broadcast()
		m.mu.Unlock()
	})
	defer stop()

	m.mu.Lock()
	defer m.mu.Unlock()
	for m.inFlight() > 0 {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("drain connection pool: %w", err)
		}
		m.cond.Wait()
	}
	return nil
}

// inFlight 借出中与创建中的连接总数。调用方必须持有 m.mu。
func (m *Manager) inFlight() int {
	n := 0
	for _, tp := range m.targets {
		n += len(tp.active) + tp.pending
	}
	return n
}

// Clear 强制销毁全部连接（含借出中的）并清零各端点计数
func (m *Manager) Clear(ctx context.Context) error {
	m.mu.Lock()
	var doomed []*ConnectionRecord
	for _, tp := range m.targets {
		doomed = append(doomed, tp.idle...)
		for _, rec := range tp.active {
			doomed = append(doomed, rec)
		}
		for _, w := range tp.waiters {
			w.delivered = true
			w.ch <- acquireResult{err: ErrPoolClosed}
		}
	}
	m.targets = make(map[string]*targetPool)
	m.records = make(map[Connection]*ConnectionRecord)
	m.totalDestroyed += uint64(len(doomed))
	m.cond.Broadcast()
	m.mu.Unlock()

	for _, rec := range doomed {
		rec.state = StateDestroyed
		_ = rec.conn.Disconnect(ctx)
		m.bus.Emit(EventConnectionClosed, ConnectionEvent{Endpoint: rec.endpoint, ConnectionID: rec.id})
	}
	return nil
}

// Destroy 停止后台任务并销毁全部连接，之后的 Acquire 返回 ErrPoolClosed
func (m *Manager) Destroy(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	m.sched.StopAll()
	return m.Clear(ctx)
}

// evictIdle 回收空闲超时的连接，仅处理没有借出连接的端点
func (m *Manager) evictIdle() error {
	cutoff := time.Now().Add(-m.cfg.IdleTimeout)

	m.mu.Lock()
	var doomed []*ConnectionRecord
	for _, tp := range m.targets {
		if len(tp.active) > 0 || tp.pending > 0 {
			continue
		}
		kept := tp.idle[:0]
		for _, rec := range tp.idle {
			if rec.lastUsedAt.Before(cutoff) {
				delete(m.records, rec.conn)
				rec.state = StateDestroyed
				doomed = append(doomed, rec)
			} else {
				kept = append(kept, rec)
			}
		}
		tp.idle = kept
	}
	m.totalDestroyed += uint64(len(doomed))
	m.mu.Unlock()

	for _, rec := range doomed {
		_ = rec.conn.Disconnect(context.Background())
		m.bus.Emit(EventConnectionCleanup, ConnectionEvent{Endpoint: rec.endpoint, ConnectionID: rec.id})
	}
	return nil
}

// validateIdle 周期性探活空闲连接，失败者移除，下次 Acquire 惰性补建
func (m *Manager) validateIdle() error {
	m.mu.Lock()
	checking := make(map[string][]*ConnectionRecord)
	for endpoint, tp := range m.targets {
		if len(tp.idle) == 0 {
			continue
		}
		// 整批摘下校验，避免探活期间连接被借出。
		// 摘下的连接转入 validating 继续占用容量槽位，
		// 并发的 Acquire 只能排队等待而不会超额新建。
		checking[endpoint] = tp.idle
		tp.validating += len(tp.idle)
		tp.idle = nil
	}
	m.mu.Unlock()

	for endpoint, recs := range checking {
		var healthy []*ConnectionRecord
		for _, rec := range recs {
			if m.validate(context.Background(), rec.conn) {
				healthy = append(healthy, rec)
				m.bus.Emit(EventHealthCheckSuccess, ConnectionEvent{Endpoint: endpoint, ConnectionID: rec.id})
				continue
			}
			m.bus.Emit(EventHealthCheckFailure, ConnectionEvent{Endpoint: endpoint, ConnectionID: rec.id})
			m.mu.Lock()
			if tp := m.target(endpoint); tp.validating > 0 {
				tp.validating--
			}
			delete(m.records, rec.conn)
			rec.state = StateDestroyed
			m.totalDestroyed++
			m.mu.Unlock()
			_ = rec.conn.Disconnect(context.Background())
			m.bus.Emit(EventConnectionClosed, ConnectionEvent{Endpoint: endpoint, ConnectionID: rec.id})
		}

		// 存活者按原顺序放回队首，保持轮转公平性；
		// 校验期间到来的等待者优先接走
		m.mu.Lock()
		tp := m.target(endpoint)
		tp.validating -= len(healthy)
		if tp.validating < 0 {
			tp.validating = 0 // 校验期间池被Clear重建
		}
		tp.idle = append(healthy, tp.idle...)
		for len(tp.waiters) > 0 && len(tp.idle) > 0 {
			rec := tp.idle[0]
			tp.idle = tp.idle[1:]
			rec.state = StateActive
			rec.lastUsedAt = time.Now()
			tp.active[rec.id] = rec
			w := m.popWaiter(tp)
			w.ch <- acquireResult{rec: rec}
		}
		m.mu.Unlock()
	}
	return nil
}

// Stats 全局连接池统计
type Stats struct {
	TotalConnections    int    `json:"total_connections"`
	ActiveConnections   int    `json:"active_connections"`
	IdleConnections     int    `json:"idle_connections"`
	PendingAcquisitions int    `json:"pending_acquisitions"`
	TotalRequests       uint64 `json:"total_requests"`
	TotalCreated        uint64 `json:"total_created"`
	TotalDestroyed      uint64 `json:"total_destroyed"`
}

// TargetInfo 单个端点子池统计
type TargetInfo struct {
	Endpoint            string `json:"endpoint"`
	ActiveConnections   int    `json:"active_connections"`
	IdleConnections     int    `json:"idle_connections"`
	PendingCreations    int    `json:"pending_creations"`
	PendingAcquisitions int    `json:"pending_acquisitions"`
}

// GetStats 返回全局统计快照
func (m *Manager) GetStats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Stats{
		TotalRequests:  m.totalRequests,
		TotalCreated:   m.totalCreated,
		TotalDestroyed: m.totalDestroyed,
	}
	for _, tp := range m.targets {
		s.ActiveConnections += len(tp.active)
		s.IdleConnections += len(tp.idle)
		s.PendingAcquisitions += len(tp.waiters)
	}
	s.TotalConnections = s.ActiveConnections + s.IdleConnections
	return s
}

// GetPoolInfo 返回单个端点的统计快照
func (m *Manager) GetPoolInfo(endpoint string) (TargetInfo, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tp, ok := m.targets[endpoint]
	if !ok {
		return TargetInfo{}, false
	}
	return TargetInfo{
		Endpoint:            endpoint,
		ActiveConnections:   len(tp.active),
		IdleConnections:     len(tp.idle),
		PendingCreations:    tp.pending,
		PendingAcquisitions: len(tp.waiters),
	}, true
}

// GetPoolInfos 返回全部端点的统计快照，按端点名排序
func (m *Manager) GetPoolInfos() []TargetInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	infos := make([]TargetInfo, 0, len(m.targets))
	for endpoint, tp := range m.targets {
		infos = append(infos, TargetInfo{
			Endpoint:            endpoint,
			ActiveConnections:   len(tp.active),
			IdleConnections:     len(tp.idle),
			PendingCreations:    tp.pending,
			PendingAcquisitions: len(tp.waiters),
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Endpoint < infos[j].Endpoint })
	return infos
}

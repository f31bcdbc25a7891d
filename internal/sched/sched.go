// Package sched 为组件提供统一管理的周期任务调度器。
//
// 连接池与服务发现的后台任务（空闲回收、缓存清理、健康检查）都注册到
// 各自组件持有的 Scheduler 上，组件销毁时 StopAll 一次性停掉全部定时器，
// 避免定时器泄漏。单次任务失败只记日志，不会终止周期任务本身。
package sched

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Scheduler 命名周期任务调度器
type Scheduler struct {
	logger *zap.Logger

	mu      sync.Mutex
	stops   map[string]chan struct{}
	wg      sync.WaitGroup
	stopped bool
}

// New 创建调度器
func New(logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		logger: logger,
		stops:  make(map[string]chan struct{}),
	}
}

// Every 注册一个周期任务，同名任务会先被停止再替换
func (s *Scheduler) Every(name string, interval time.Duration, fn func() error) {
	if interval <= 0 {
		return
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	if stop, ok := s.stops[name]; ok {
		close(stop)
	}
	stop := make(chan struct{})
	s.stops[name] = stop
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if err := fn(); err != nil {
					s.logger.Warn("scheduled task failed",
						zap.String("task", name),
						zap.Error(err))
				}
			}
		}
	}()
}

// Stop 停止指定名称的任务
func (s *Scheduler) Stop(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if stop, ok := s.stops[name]; ok {
		close(stop)
		delete(s.stops, name)
	}
}

// StopAll 停止全部任务并等待任务协程退出
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	for name, stop := range s.stops {
		close(stop)
		delete(s.stops, name)
	}
	s.mu.Unlock()

	s.wg.Wait()
}

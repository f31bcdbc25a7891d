// Package event 提供一个进程内的事件订阅总线。
//
// 连接池与服务发现通过它对外发布诊断事件（连接创建、发现失败等），
// 订阅方可有可无：没有订阅者时 Emit 是零成本的空操作。
package event

import (
	"sync"
)

// Handler 事件处理函数
type Handler func(payload any)

// Bus 事件总线
//
// nil 的 *Bus 是合法的空实现，所有方法均可安全调用。
type Bus struct {
	mu       sync.RWMutex
	handlers map[string]map[uint64]Handler
	nextID   uint64
}

// NewBus 创建事件总线
func NewBus() *Bus {
	return &Bus{
		handlers: make(map[string]map[uint64]Handler),
	}
}

// Subscribe 订阅指定名称的事件，返回取消订阅函数
func (b *Bus) Subscribe(name string, handler Handler) (unsubscribe func()) {
	if b == nil || handler == nil {
		return func() {}
	}

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	if b.handlers[name] == nil {
		b.handlers[name] = make(map[uint64]Handler)
	}
	b.handlers[name][id] = handler
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if hs, ok := b.handlers[name]; ok {
			delete(hs, id)
			if len(hs) == 0 {
				delete(b.handlers, name)
			}
		}
	}
}

// Emit 同步分发事件给所有订阅者
func (b *Bus) Emit(name string, payload any) {
	if b == nil {
		return
	}

	b.mu.RLock()
	hs := b.handlers[name]
	snapshot := make([]Handler, 0, len(hs))
	for _, h := range hs {
		snapshot = append(snapshot, h)
	}
	b.mu.RUnlock()

	for _, h := range snapshot {
		h(payload)
	}
}

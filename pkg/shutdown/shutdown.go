package shutdown

import (
	"context"
	"sync"

	"github.com/betbot/replicator/pkg/logger"
)

// Handler 关闭处理函数
type Handler func(ctx context.Context) error

type namedHandler struct {
	name string
	fn   Handler
}

// Manager 优雅关闭管理器
type Manager struct {
	callbacks []namedHandler
	mu        sync.Mutex
}

// NewManager 创建新的关闭管理器
func NewManager() *Manager {
	return &Manager{}
}

// OnShutdown 注册关闭回调
func (m *Manager) OnShutdown(name string, handler Handler) {
	if handler == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, namedHandler{name: name, fn: handler})
}

// Shutdown 并发执行所有关闭回调，直到全部完成或 ctx 超时。
// 返回未在 ctx 结束前完成的回调数。
func (m *Manager) Shutdown(ctx context.Context) int {
	m.mu.Lock()
	callbacks := append([]namedHandler(nil), m.callbacks...)
	m.mu.Unlock()

	if len(callbacks) == 0 {
		return 0
	}
	logger.Debugf("开始优雅关闭，共 %d 个回调", len(callbacks))

	var wg sync.WaitGroup
	var pendingMu sync.Mutex
	pending := len(callbacks)
	for _, cb := range callbacks {
		wg.Add(1)
		go func(h namedHandler) {
			defer wg.Done()
			if err := h.fn(ctx); err != nil {
				logger.Warnf("关闭 %s 失败: %v", h.name, err)
			}
			pendingMu.Lock()
			pending--
			pendingMu.Unlock()
		}(cb)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return 0
	case <-ctx.Done():
		logger.Warnf("关闭超时: %v", ctx.Err())
		pendingMu.Lock()
		defer pendingMu.Unlock()
		return pending
	}
}

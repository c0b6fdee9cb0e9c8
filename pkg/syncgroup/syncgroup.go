package syncgroup

import (
	"sync"
)

type syncGroupFunc func()

// SyncGroup 是 sync.WaitGroup 的包装器，简化 goroutine 生命周期管理
// 自动管理 Add() 和 Done()，并可限制并发数
type SyncGroup struct {
	wg  sync.WaitGroup
	sem chan struct{}

	sgFuncsMu sync.Mutex
	sgFuncs   []syncGroupFunc
}

// NewSyncGroup 创建新的 SyncGroup；limit <= 0 表示不限制并发
func NewSyncGroup(limit int) *SyncGroup {
	w := &SyncGroup{}
	if limit > 0 {
		w.sem = make(chan struct{}, limit)
	}
	return w
}

// Add 添加一个 goroutine 函数，Run() 时才启动
func (w *SyncGroup) Add(fn syncGroupFunc) {
	if fn == nil {
		return
	}
	w.sgFuncsMu.Lock()
	defer w.sgFuncsMu.Unlock()
	w.sgFuncs = append(w.sgFuncs, fn)
}

// Run 启动所有已添加的 goroutine，并清空函数列表
func (w *SyncGroup) Run() {
	w.sgFuncsMu.Lock()
	fns := w.sgFuncs
	w.sgFuncs = nil
	w.sgFuncsMu.Unlock()

	for _, fn := range fns {
		w.wg.Add(1)
		go func(doFunc syncGroupFunc) {
			defer w.wg.Done()
			if w.sem != nil {
				w.sem <- struct{}{}
				defer func() { <-w.sem }()
			}
			doFunc()
		}(fn)
	}
}

// Wait 等待所有 goroutine 完成
func (w *SyncGroup) Wait() {
	w.wg.Wait()
}

// RunAndWait 启动并等待
func (w *SyncGroup) RunAndWait() {
	w.Run()
	w.Wait()
}

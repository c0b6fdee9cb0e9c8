package ratelimit

import (
	"context"
	"strings"
	"sync"
	"time"
)

// RateLimiter 速率限制器接口
type RateLimiter interface {
	Wait(ctx context.Context) error
	Allow() bool
	GetRemaining() int
}

// TokenBucket 令牌桶速率限制器
type TokenBucket struct {
	capacity   float64   // 桶容量
	tokens     float64   // 当前令牌数
	refillRate float64   // 每秒补充的令牌数
	lastRefill time.Time // 上次补充时间
	mu         sync.Mutex
}

// NewTokenBucket 创建新的令牌桶
func NewTokenBucket(capacity int, refillRate float64) *TokenBucket {
	return &TokenBucket{
		capacity:   float64(capacity),
		tokens:     float64(capacity),
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

// refill 补充令牌（按经过的时间连续补充）
func (tb *TokenBucket) refill() {
	now := time.Now()
	elapsed := now.Sub(tb.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	tb.tokens += elapsed * tb.refillRate
	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}
	tb.lastRefill = now
}

// Allow 检查是否允许请求
func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill()

	if tb.tokens >= 1 {
		tb.tokens--
		return true
	}
	return false
}

// Wait 等待直到允许请求
func (tb *TokenBucket) Wait(ctx context.Context) error {
	for {
		if tb.Allow() {
			return nil
		}

		// 计算距离下一个令牌的时间
		tb.mu.Lock()
		waitTime := 100 * time.Millisecond
		if tb.refillRate > 0 {
			waitTime = time.Duration((1 - tb.tokens) / tb.refillRate * float64(time.Second))
		}
		tb.mu.Unlock()

		timer := time.NewTimer(waitTime)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// GetRemaining 获取剩余令牌数
func (tb *TokenBucket) GetRemaining() int {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.refill()
	return int(tb.tokens)
}

// SlidingWindow 滑动窗口速率限制器
type SlidingWindow struct {
	limit      int           // 限制数量
	windowSize time.Duration // 窗口大小
	requests   []time.Time   // 请求时间戳
	mu         sync.Mutex
}

// NewSlidingWindow 创建新的滑动窗口速率限制器
func NewSlidingWindow(limit int, windowSize time.Duration) *SlidingWindow {
	return &SlidingWindow{
		limit:      limit,
		windowSize: windowSize,
		requests:   make([]time.Time, 0, limit),
	}
}

// prune 移除窗口外的请求（调用方持有锁）
func (sw *SlidingWindow) prune(now time.Time) {
	cutoff := now.Add(-sw.windowSize)
	i := 0
	for i < len(sw.requests) && !sw.requests[i].After(cutoff) {
		i++
	}
	sw.requests = sw.requests[i:]
}

// Allow 检查是否允许请求
func (sw *SlidingWindow) Allow() bool {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	now := time.Now()
	sw.prune(now)

	if len(sw.requests) >= sw.limit {
		return false
	}
	sw.requests = append(sw.requests, now)
	return true
}

// Wait 等待直到允许请求
func (sw *SlidingWindow) Wait(ctx context.Context) error {
	for {
		if sw.Allow() {
			return nil
		}

		sw.mu.Lock()
		waitTime := 100 * time.Millisecond
		if len(sw.requests) > 0 {
			if d := sw.windowSize - time.Since(sw.requests[0]); d > 0 {
				waitTime = d
			}
		}
		sw.mu.Unlock()

		timer := time.NewTimer(waitTime)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// GetRemaining 获取剩余请求数
func (sw *SlidingWindow) GetRemaining() int {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	sw.prune(time.Now())
	if n := sw.limit - len(sw.requests); n > 0 {
		return n
	}
	return 0
}

// Manager 按 key（账户名）管理限速器。factory 为 nil 时不限速。
type Manager struct {
	factory  func() RateLimiter
	limiters map[string]RateLimiter
	mu       sync.Mutex
}

// NewManager 创建新的速率限制管理器
func NewManager(factory func() RateLimiter) *Manager {
	return &Manager{
		factory:  factory,
		limiters: make(map[string]RateLimiter),
	}
}

// PerSecond 每个 key 一个令牌桶，rate <= 0 表示不限速
func PerSecond(rate float64) *Manager {
	if rate <= 0 {
		return NewManager(nil)
	}
	burst := int(rate)
	if burst < 1 {
		burst = 1
	}
	return NewManager(func() RateLimiter { return NewTokenBucket(burst, rate) })
}

// GetLimiter 获取 key 对应的限速器，首次访问时创建
func (m *Manager) GetLimiter(key string) RateLimiter {
	if m == nil || m.factory == nil {
		return nil
	}
	key = strings.ToLower(strings.TrimSpace(key))

	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok := m.limiters[key]; ok {
		return l
	}
	l := m.factory()
	m.limiters[key] = l
	return l
}

// Wait 等待直到允许请求
func (m *Manager) Wait(ctx context.Context, key string) error {
	l := m.GetLimiter(key)
	if l == nil {
		return nil
	}
	return l.Wait(ctx)
}

// Allow 检查是否允许请求
func (m *Manager) Allow(key string) bool {
	l := m.GetLimiter(key)
	if l == nil {
		return true
	}
	return l.Allow()
}

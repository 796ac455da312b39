// Package rx provides reactive programming primitives for Go
// 基于泛型的响应式流引擎：Observable/Observer 契约、Subject 家族、调度器与操作符
package rx

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// ============================================================================
// 函数类型定义
// ============================================================================

// Predicate 谓词函数，用于过滤
type Predicate[T any] func(value T) bool

// Selector 转换函数，返回错误时序列以该错误终止
type Selector[T, R any] func(value T) (R, error)

// Accumulator 累加函数，用于 Scan/Aggregate
type Accumulator[A, T any] func(acc A, value T) A

// ============================================================================
// 生命周期管理
// ============================================================================

// Subscription 订阅句柄，拥有唯一的释放动作
type Subscription interface {
	// Dispose 释放订阅，重复调用无副作用
	Dispose()
	// IsDisposed 检查是否已释放
	IsDisposed() bool
}

// actionSubscription 基于原子状态的幂等释放
type actionSubscription struct {
	disposed atomic.Bool
	action   func()
}

// NewSubscription 创建一个在首次 Dispose 时执行 action 的订阅
func NewSubscription(action func()) Subscription {
	return &actionSubscription{action: action}
}

// Dispose 释放订阅
func (s *actionSubscription) Dispose() {
	if s.disposed.CompareAndSwap(false, true) && s.action != nil {
		s.action()
	}
}

// IsDisposed 检查是否已释放
func (s *actionSubscription) IsDisposed() bool {
	return s.disposed.Load()
}

// Disposed 返回一个已经释放的订阅
func Disposed() Subscription {
	s := &actionSubscription{}
	s.disposed.Store(true)
	return s
}

// CompositeSubscription 组合式订阅，统一释放一组资源
type CompositeSubscription struct {
	mu        sync.Mutex
	disposed  bool
	resources []Subscription
}

// NewCompositeSubscription 创建组合式订阅
func NewCompositeSubscription(resources ...Subscription) *CompositeSubscription {
	return &CompositeSubscription{resources: resources}
}

// Add 添加资源，已释放时立即释放该资源
func (c *CompositeSubscription) Add(resource Subscription) {
	if resource == nil {
		return
	}
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		resource.Dispose()
		return
	}
	c.resources = append(c.resources, resource)
	c.mu.Unlock()
}

// Remove 移除并释放资源
func (c *CompositeSubscription) Remove(resource Subscription) {
	c.mu.Lock()
	for i, r := range c.resources {
		if r == resource {
			c.resources = append(c.resources[:i], c.resources[i+1:]...)
			break
		}
	}
	c.mu.Unlock()
	resource.Dispose()
}

// Dispose 释放所有资源，释放动作在锁外执行以允许重入
func (c *CompositeSubscription) Dispose() {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	c.disposed = true
	resources := c.resources
	c.resources = nil
	c.mu.Unlock()

	for _, r := range resources {
		r.Dispose()
	}
}

// Len 尚未移除的资源数量
func (c *CompositeSubscription) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.resources)
}

// IsDisposed 检查是否已释放
func (c *CompositeSubscription) IsDisposed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disposed
}

// SerialSubscription 串行订阅：替换时释放旧资源
type SerialSubscription struct {
	mu       sync.Mutex
	disposed bool
	current  Subscription
}

// NewSerialSubscription 创建串行订阅
func NewSerialSubscription() *SerialSubscription {
	return &SerialSubscription{}
}

// Set 替换当前资源
func (s *SerialSubscription) Set(resource Subscription) {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		if resource != nil {
			resource.Dispose()
		}
		return
	}
	old := s.current
	s.current = resource
	s.mu.Unlock()

	if old != nil {
		old.Dispose()
	}
}

// Add 与 Set 相同，使串行订阅可以作为资源宿主
func (s *SerialSubscription) Add(resource Subscription) {
	s.Set(resource)
}

// Dispose 释放当前资源
func (s *SerialSubscription) Dispose() {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.disposed = true
	current := s.current
	s.current = nil
	s.mu.Unlock()

	if current != nil {
		current.Dispose()
	}
}

// IsDisposed 检查是否已释放
func (s *SerialSubscription) IsDisposed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disposed
}

// resourceHost 可以挂载子订阅的宿主
type resourceHost interface {
	Add(resource Subscription)
}

// ============================================================================
// 配置选项
// ============================================================================

// Option 操作符配置选项
type Option interface {
	Apply(*Config)
}

// Config 操作符配置
type Config struct {
	Name       string       // 名称，用于日志
	BufferSize int          // 缓冲区大小
	Scheduler  Scheduler    // 调度器
	Logger     *slog.Logger // 日志记录器
}

// DefaultConfig 默认配置
func DefaultConfig() Config {
	return Config{
		BufferSize: 16,
		Scheduler:  DefaultScheduler,
		Logger:     Logger(),
	}
}

// optionFunc 函数式选项
type optionFunc func(*Config)

// Apply 应用选项
func (f optionFunc) Apply(c *Config) {
	f(c)
}

// WithScheduler 指定调度器
func WithScheduler(scheduler Scheduler) Option {
	return optionFunc(func(c *Config) {
		if scheduler != nil {
			c.Scheduler = scheduler
		}
	})
}

// WithLogger 指定日志记录器
func WithLogger(logger *slog.Logger) Option {
	return optionFunc(func(c *Config) {
		if logger != nil {
			c.Logger = logger
		}
	})
}

// WithName 指定名称
func WithName(name string) Option {
	return optionFunc(func(c *Config) {
		c.Name = name
	})
}

// WithBufferSize 指定缓冲区大小
func WithBufferSize(size int) Option {
	return optionFunc(func(c *Config) {
		if size > 0 {
			c.BufferSize = size
		}
	})
}

func applyOptions(options []Option) Config {
	config := DefaultConfig()
	for _, option := range options {
		option.Apply(&config)
	}
	return config
}

// Scheduler implementations for rx
// 调度器：控制任务在何处、何时执行
package rx

import (
	"context"
	"log/slog"
	"runtime"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// ============================================================================
// 调度器接口
// ============================================================================

// Scheduler 调度器接口
type Scheduler interface {
	// Now 当前时间，测试调度器返回虚拟时间
	Now() time.Time
	// Schedule 调度一个任务
	Schedule(action func()) Subscription
	// ScheduleWithDelay 延迟调度一个任务，释放返回值可取消尚未执行的任务
	ScheduleWithDelay(action func(), delay time.Duration) Subscription
}

// runTask 在后台调度器上运行任务，panic 被记录而不会终止工作 goroutine
func runTask(name string, action func()) {
	start := time.Now()
	panicked := true
	defer func() {
		currentMetrics().taskFinished(name, time.Since(start), panicked)
		if panicked {
			if v := recover(); v != nil {
				Logger().Error("rx: scheduled task panicked",
					slog.String("scheduler", name), slog.Any("panic", v))
			}
		}
	}()
	action()
	panicked = false
}

// ============================================================================
// 立即调度器 - Immediate Scheduler
// ============================================================================

// immediateScheduler 在调用方 goroutine 中同步执行任务
type immediateScheduler struct{}

// NewImmediateScheduler 创建立即调度器
func NewImmediateScheduler() Scheduler {
	return immediateScheduler{}
}

// Now 当前时间
func (immediateScheduler) Now() time.Time { return time.Now() }

// Schedule 立即执行任务
func (immediateScheduler) Schedule(action func()) Subscription {
	action()
	return Disposed()
}

// ScheduleWithDelay 延迟执行任务，不阻塞调用方
func (immediateScheduler) ScheduleWithDelay(action func(), delay time.Duration) Subscription {
	if delay <= 0 {
		action()
		return Disposed()
	}
	timer := time.AfterFunc(delay, action)
	return NewSubscription(func() { timer.Stop() })
}

// ============================================================================
// 当前线程调度器 - Current Thread Scheduler
// ============================================================================

// currentThreadScheduler 蹦床调度：第一个调用方执行队列，重入的任务排队
// 队列是调度器实例级的全局队列：其他 goroutine 在排空期间调度的任务同样排队，
// 由正在排空的 goroutine 执行
type currentThreadScheduler struct {
	mu         sync.Mutex
	queue      []*queuedTask
	processing bool
}

type queuedTask struct {
	action    func()
	cancelled atomic.Bool
}

// NewCurrentThreadScheduler 创建当前线程调度器
func NewCurrentThreadScheduler() Scheduler {
	return &currentThreadScheduler{}
}

// Now 当前时间
func (s *currentThreadScheduler) Now() time.Time { return time.Now() }

// Schedule 在当前线程中调度任务
func (s *currentThreadScheduler) Schedule(action func()) Subscription {
	task := &queuedTask{action: action}
	s.mu.Lock()
	s.queue = append(s.queue, task)
	if s.processing {
		s.mu.Unlock()
		return NewSubscription(func() { task.cancelled.Store(true) })
	}
	s.processing = true
	s.mu.Unlock()

	s.processQueue()
	return Disposed()
}

// ScheduleWithDelay 延迟调度任务
func (s *currentThreadScheduler) ScheduleWithDelay(action func(), delay time.Duration) Subscription {
	serial := NewSerialSubscription()
	timer := time.AfterFunc(delay, func() {
		serial.Set(s.Schedule(action))
	})
	serial.Set(NewSubscription(func() { timer.Stop() }))
	return serial
}

// processQueue 处理队列中的任务
func (s *currentThreadScheduler) processQueue() {
	defer func() {
		s.mu.Lock()
		s.processing = false
		s.mu.Unlock()
	}()
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			return
		}
		task := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		if !task.cancelled.Load() {
			task.action()
		}
	}
}

// ============================================================================
// 新线程调度器 - New Thread Scheduler
// ============================================================================

// newThreadScheduler 为每个任务创建新的 goroutine
type newThreadScheduler struct{}

// NewNewThreadScheduler 创建新线程调度器
func NewNewThreadScheduler() Scheduler {
	return newThreadScheduler{}
}

// Now 当前时间
func (newThreadScheduler) Now() time.Time { return time.Now() }

// Schedule 在新 goroutine 中执行任务
func (newThreadScheduler) Schedule(action func()) Subscription {
	var cancelled atomic.Bool
	go func() {
		if !cancelled.Load() {
			runTask("new_thread", action)
		}
	}()
	return NewSubscription(func() { cancelled.Store(true) })
}

// ScheduleWithDelay 延迟在新 goroutine 中执行任务
func (newThreadScheduler) ScheduleWithDelay(action func(), delay time.Duration) Subscription {
	timer := time.AfterFunc(delay, func() { runTask("new_thread", action) })
	return NewSubscription(func() { timer.Stop() })
}

// ============================================================================
// 线程池调度器 - Thread Pool Scheduler
// ============================================================================

// PoolScheduler 使用固定数量的 goroutine 执行任务，队列无界，调度从不阻塞
type PoolScheduler struct {
	workers int
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []*queuedTask
	closed  bool
	wg      sync.WaitGroup
}

// NewThreadPoolScheduler 创建线程池调度器
func NewThreadPoolScheduler(workers int) *PoolScheduler {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	s := &PoolScheduler{workers: workers}
	s.cond = sync.NewCond(&s.mu)

	for i := 0; i < workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}
	return s
}

// Now 当前时间
func (s *PoolScheduler) Now() time.Time { return time.Now() }

// Schedule 在线程池中执行任务，调度器关闭后返回已释放的订阅
func (s *PoolScheduler) Schedule(action func()) Subscription {
	task := &queuedTask{action: action}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		Logger().Debug("rx: schedule on closed pool", errAttr(ErrSchedulerClosed))
		return Disposed()
	}
	s.queue = append(s.queue, task)
	s.mu.Unlock()
	s.cond.Signal()
	currentMetrics().taskScheduled("pool")

	return NewSubscription(func() { task.cancelled.Store(true) })
}

// ScheduleWithDelay 延迟在线程池中执行任务
func (s *PoolScheduler) ScheduleWithDelay(action func(), delay time.Duration) Subscription {
	serial := NewSerialSubscription()
	timer := time.AfterFunc(delay, func() {
		serial.Set(s.Schedule(action))
	})
	serial.Set(NewSubscription(func() { timer.Stop() }))
	return serial
}

// worker 工作 goroutine
func (s *PoolScheduler) worker() {
	defer s.wg.Done()
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if len(s.queue) == 0 {
			s.mu.Unlock()
			return
		}
		task := s.queue[0]
		s.queue[0] = nil
		s.queue = s.queue[1:]
		s.mu.Unlock()

		if !task.cancelled.Load() {
			runTask("pool", task.action)
		}
	}
}

// Close 停止接收新任务，等待已排队任务执行完毕
func (s *PoolScheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	s.cond.Broadcast()
	s.wg.Wait()
}

// ============================================================================
// 测试调度器 - Test Scheduler
// ============================================================================

// TestScheduler 虚拟时钟调度器，时间只在 AdvanceBy/AdvanceTo 时前进
type TestScheduler struct {
	mu    sync.Mutex
	start time.Time
	now   time.Time
	seq   uint64
	queue []*virtualTask
}

type virtualTask struct {
	due       time.Time
	seq       uint64
	action    func()
	cancelled atomic.Bool
}

// NewTestScheduler 创建测试调度器，时钟从 Unix 纪元开始
func NewTestScheduler() *TestScheduler {
	epoch := time.Unix(0, 0).UTC()
	return &TestScheduler{start: epoch, now: epoch}
}

// Now 虚拟时间
func (s *TestScheduler) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

// Elapsed 自创建以来经过的虚拟时间
func (s *TestScheduler) Elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now.Sub(s.start)
}

// Schedule 在当前虚拟时刻调度任务，下次推进时钟时执行
func (s *TestScheduler) Schedule(action func()) Subscription {
	return s.ScheduleWithDelay(action, 0)
}

// ScheduleWithDelay 延迟调度任务
func (s *TestScheduler) ScheduleWithDelay(action func(), delay time.Duration) Subscription {
	if delay < 0 {
		delay = 0
	}
	s.mu.Lock()
	s.seq++
	task := &virtualTask{due: s.now.Add(delay), seq: s.seq, action: action}
	// 相同时刻按调度顺序执行
	i, _ := slices.BinarySearchFunc(s.queue, task, func(a, b *virtualTask) int {
		if c := a.due.Compare(b.due); c != 0 {
			return c
		}
		switch {
		case a.seq < b.seq:
			return -1
		case a.seq > b.seq:
			return 1
		}
		return 0
	})
	s.queue = slices.Insert(s.queue, i, task)
	s.mu.Unlock()

	return NewSubscription(func() { task.cancelled.Store(true) })
}

// AdvanceBy 推进虚拟时间
func (s *TestScheduler) AdvanceBy(d time.Duration) {
	s.AdvanceTo(s.Now().Add(d))
}

// AdvanceTo 推进虚拟时间到指定时刻，依次执行到期任务
func (s *TestScheduler) AdvanceTo(t time.Time) {
	for {
		s.mu.Lock()
		if len(s.queue) == 0 || s.queue[0].due.After(t) {
			if t.After(s.now) {
				s.now = t
			}
			s.mu.Unlock()
			return
		}
		task := s.queue[0]
		s.queue = s.queue[1:]
		if task.due.After(s.now) {
			s.now = task.due
		}
		s.mu.Unlock()

		// 解锁以允许任务执行时调度新任务
		if !task.cancelled.Load() {
			task.action()
		}
	}
}

// Flush 执行所有已调度任务，包括执行过程中新调度的任务
func (s *TestScheduler) Flush() {
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			return
		}
		due := s.queue[len(s.queue)-1].due
		s.mu.Unlock()
		s.AdvanceTo(due)
	}
}

// Pending 尚未执行且未取消的任务数量
func (s *TestScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, task := range s.queue {
		if !task.cancelled.Load() {
			n++
		}
	}
	return n
}

// ============================================================================
// 监控调度器
// ============================================================================

// monitoredScheduler 统计任务调度与执行情况
type monitoredScheduler struct {
	name    string
	inner   Scheduler
	metrics *Metrics
}

// NewMonitoredScheduler 包装调度器，把统计写入 metrics
func NewMonitoredScheduler(name string, inner Scheduler, metrics *Metrics) Scheduler {
	return &monitoredScheduler{name: name, inner: inner, metrics: metrics}
}

// Now 当前时间
func (s *monitoredScheduler) Now() time.Time { return s.inner.Now() }

// Schedule 调度任务并统计
func (s *monitoredScheduler) Schedule(action func()) Subscription {
	s.metrics.taskScheduled(s.name)
	return s.inner.Schedule(s.wrap(action))
}

// ScheduleWithDelay 延迟调度任务并统计
func (s *monitoredScheduler) ScheduleWithDelay(action func(), delay time.Duration) Subscription {
	s.metrics.taskScheduled(s.name)
	return s.inner.ScheduleWithDelay(s.wrap(action), delay)
}

func (s *monitoredScheduler) wrap(action func()) func() {
	return func() {
		start := time.Now()
		panicked := true
		defer func() {
			s.metrics.taskFinished(s.name, time.Since(start), panicked)
		}()
		action()
		panicked = false
	}
}

// ============================================================================
// 默认调度器
// ============================================================================

var (
	// ImmediateScheduler 立即调度器实例
	ImmediateScheduler Scheduler = NewImmediateScheduler()

	// CurrentThreadScheduler 当前线程调度器实例
	CurrentThreadScheduler Scheduler = NewCurrentThreadScheduler()

	// NewThreadScheduler 新线程调度器实例
	NewThreadScheduler Scheduler = NewNewThreadScheduler()

	// DefaultScheduler 默认调度器，时间类操作符未指定调度器时使用
	DefaultScheduler Scheduler = NewThreadScheduler
)

// ============================================================================
// 调度器辅助函数
// ============================================================================

// SchedulePeriodic 周期性调度任务，基于一次性延迟递归实现，可用于虚拟时钟
// period <= 0 时不调度，返回已释放的订阅
func SchedulePeriodic(scheduler Scheduler, period time.Duration, action func()) Subscription {
	if period <= 0 {
		Logger().Warn("rx: periodic schedule rejected",
			slog.Duration("period", period), errAttr(ErrArgumentOutOfRange))
		return Disposed()
	}
	serial := NewSerialSubscription()
	var tick func()
	tick = func() {
		if serial.IsDisposed() {
			return
		}
		action()
		serial.Set(scheduler.ScheduleWithDelay(tick, period))
	}
	serial.Set(scheduler.ScheduleWithDelay(tick, period))
	return serial
}

// ScheduleWithContext 调度任务，ctx 结束时取消
func ScheduleWithContext(ctx context.Context, scheduler Scheduler, action func()) Subscription {
	sub := scheduler.Schedule(func() {
		if ctx.Err() == nil {
			action()
		}
	})
	stop := context.AfterFunc(ctx, sub.Dispose)
	return NewSubscription(func() {
		stop()
		sub.Dispose()
	})
}

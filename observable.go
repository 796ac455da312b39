// Observable implementation for rx
// Observable 契约、订阅者（序列语法守卫）与订阅辅助函数
package rx

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// ============================================================================
// Observable 核心接口
// ============================================================================

// Observable 可观察序列
type Observable[T any] interface {
	// Subscribe 订阅观察者，返回的订阅释放后不再投递任何通知
	Subscribe(observer Observer[T]) Subscription
}

// attachable 可以直接接收预先创建的 Subscriber 的源
// 用于在源开始发射之前把上游订阅挂到下游，从而支持同步源的提前终止
type attachable[T any] interface {
	attach(s *Subscriber[T])
}

// observableImpl 由订阅函数驱动的 Observable
type observableImpl[T any] struct {
	onSubscribe func(s *Subscriber[T])
}

// NewObservable 创建 Observable，onSubscribe 在每次订阅时执行
func NewObservable[T any](onSubscribe func(s *Subscriber[T])) Observable[T] {
	return &observableImpl[T]{onSubscribe: onSubscribe}
}

// Subscribe 订阅观察者
func (o *observableImpl[T]) Subscribe(observer Observer[T]) Subscription {
	s := newSubscriber(observer)
	o.attach(s)
	return s
}

func (o *observableImpl[T]) attach(s *Subscriber[T]) {
	o.onSubscribe(s)
}

// ============================================================================
// Subscriber
// ============================================================================

// ObserverPanic 观察者自身回调的 panic，原样传播给发射方
type ObserverPanic struct {
	Value any
}

// String 返回 panic 描述
func (p ObserverPanic) String() string {
	return fmt.Sprintf("rx: observer panicked: %v", p.Value)
}

// Subscriber 单个订阅的安全观察者
// 串行化投递（可重入），终止或释放后丢弃所有通知，终止通知投递后释放关联资源
type Subscriber[T any] struct {
	observer Observer[T]

	mu       sync.Mutex
	queue    []Notification[T]
	emitting bool
	done     bool

	disposed  atomic.Bool
	resources CompositeSubscription
}

func newSubscriber[T any](observer Observer[T]) *Subscriber[T] {
	currentMetrics().subscriptionCreated()
	return &Subscriber[T]{observer: observer}
}

// OnNext 推送数据
func (s *Subscriber[T]) OnNext(value T) {
	s.Emit(ValueNotification(value))
}

// OnError 推送错误
func (s *Subscriber[T]) OnError(err error) {
	s.Emit(ErrorNotification[T](err))
}

// OnCompleted 推送完成
func (s *Subscriber[T]) OnCompleted() {
	s.Emit(CompletionNotification[T]())
}

// Emit 推送通知并投递
func (s *Subscriber[T]) Emit(n Notification[T]) {
	s.push(n)
	s.flush()
}

// push 只入队不投递，允许调用方在持有自身状态锁时保证顺序
func (s *Subscriber[T]) push(n Notification[T]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done || s.disposed.Load() {
		return
	}
	if n.IsTerminal() {
		s.done = true
	}
	s.queue = append(s.queue, n)
}

// flush 投递队列，同一时刻只有一个调用方在投递
func (s *Subscriber[T]) flush() {
	s.mu.Lock()
	if s.emitting || len(s.queue) == 0 {
		s.mu.Unlock()
		return
	}
	s.emitting = true
	s.mu.Unlock()

	finished := false
	defer func() {
		if !finished {
			s.mu.Lock()
			s.emitting = false
			s.mu.Unlock()
		}
	}()

	for {
		s.mu.Lock()
		if len(s.queue) == 0 || s.disposed.Load() {
			s.queue = nil
			s.emitting = false
			s.mu.Unlock()
			finished = true
			return
		}
		n := s.queue[0]
		s.queue[0] = Notification[T]{}
		s.queue = s.queue[1:]
		s.mu.Unlock()

		s.deliver(n)
		if n.IsTerminal() {
			s.Dispose()
		}
	}
}

func (s *Subscriber[T]) deliver(n Notification[T]) {
	defer func() {
		if v := recover(); v != nil {
			if _, ok := v.(ObserverPanic); ok {
				panic(v)
			}
			panic(ObserverPanic{Value: v})
		}
	}()
	s.observer(n)
}

// Add 关联资源，订阅释放时一并释放
func (s *Subscriber[T]) Add(resource Subscription) {
	s.resources.Add(resource)
}

// Dispose 释放订阅
func (s *Subscriber[T]) Dispose() {
	if s.disposed.CompareAndSwap(false, true) {
		currentMetrics().subscriptionDisposed()
		s.resources.Dispose()
	}
}

// IsDisposed 检查是否已释放
func (s *Subscriber[T]) IsDisposed() bool {
	return s.disposed.Load()
}

// IsClosed 已终止或已释放，生产者据此停止发射
func (s *Subscriber[T]) IsClosed() bool {
	if s.disposed.Load() {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// ============================================================================
// 订阅辅助函数
// ============================================================================

// subscribeInner 订阅上游并在其开始发射前挂到 host 上
func subscribeInner[T any](src Observable[T], host resourceHost, observer Observer[T]) Subscription {
	if a, ok := src.(attachable[T]); ok {
		s := newSubscriber(observer)
		host.Add(s)
		a.attach(s)
		return s
	}
	sub := src.Subscribe(observer)
	host.Add(sub)
	return sub
}

// forward 返回一个把终止通知原样转发给 s 的观察者，Next 交由 onNext 处理
func forward[T, R any](s *Subscriber[R], onNext func(T)) Observer[T] {
	return func(n Notification[T]) {
		switch n.Kind() {
		case KindNext:
			onNext(n.Value())
		case KindError:
			s.OnError(n.Err())
		case KindCompleted:
			s.OnCompleted()
		}
	}
}

// SubscribeWithCallbacks 使用回调订阅，nil 回调视为空操作；未处理的错误记录 WARN 日志
func SubscribeWithCallbacks[T any](src Observable[T], onNext func(T), onError func(error), onCompleted func()) Subscription {
	if onError == nil {
		onError = func(err error) {
			Logger().Warn("rx: unhandled sequence error", errAttr(err))
		}
	}
	return src.Subscribe(NewObserver(onNext, onError, onCompleted))
}

// SubscribeSink 把序列推送给 sink，例如一个 Subject
func SubscribeSink[T any](src Observable[T], sink Sink[T]) Subscription {
	return src.Subscribe(ObserverOf(sink))
}

// ============================================================================
// 调度相关
// ============================================================================

// SubscribeOn 在调度器上执行订阅
func SubscribeOn[T any](src Observable[T], scheduler Scheduler) Observable[T] {
	return NewObservable(func(s *Subscriber[T]) {
		s.Add(scheduler.Schedule(func() {
			if s.IsClosed() {
				return
			}
			subscribeInner(src, s, ObserverOf[T](s))
		}))
	})
}

// ObserveOn 在调度器上投递通知，保持原有顺序
func ObserveOn[T any](src Observable[T], scheduler Scheduler) Observable[T] {
	return NewObservable(func(s *Subscriber[T]) {
		var (
			mu      sync.Mutex
			pending []Notification[T]
			running bool
		)
		drain := func() {
			for {
				mu.Lock()
				if len(pending) == 0 {
					running = false
					mu.Unlock()
					return
				}
				n := pending[0]
				pending = pending[1:]
				mu.Unlock()
				s.Emit(n)
			}
		}
		subscribeInner(src, s, func(n Notification[T]) {
			mu.Lock()
			pending = append(pending, n)
			if running {
				mu.Unlock()
				return
			}
			running = true
			mu.Unlock()
			scheduler.Schedule(drain)
		})
	})
}

// Factory functions for rx
// 创建 Observable 的工厂函数
package rx

import (
	"iter"
	"time"

	"github.com/pkg/errors"
)

// ============================================================================
// 基础工厂
// ============================================================================

// Return 发射单个值后完成
func Return[T any](value T) Observable[T] {
	return NewObservable(func(s *Subscriber[T]) {
		s.OnNext(value)
		s.OnCompleted()
	})
}

// Just 依次发射给定的值后完成
func Just[T any](values ...T) Observable[T] {
	return FromSlice(values)
}

// Empty 直接完成
func Empty[T any]() Observable[T] {
	return NewObservable(func(s *Subscriber[T]) {
		s.OnCompleted()
	})
}

// Never 永不发射
func Never[T any]() Observable[T] {
	return NewObservable(func(s *Subscriber[T]) {})
}

// Throw 直接以错误终止
func Throw[T any](err error) Observable[T] {
	return NewObservable(func(s *Subscriber[T]) {
		s.OnError(err)
	})
}

// Range 发射 [start, start+count) 的整数
func Range(start, count int) Observable[int] {
	return NewObservable(func(s *Subscriber[int]) {
		for i := 0; i < count; i++ {
			if s.IsClosed() {
				return
			}
			s.OnNext(start + i)
		}
		s.OnCompleted()
	})
}

// FromSlice 依次发射切片元素
func FromSlice[T any](values []T) Observable[T] {
	return NewObservable(func(s *Subscriber[T]) {
		for _, v := range values {
			if s.IsClosed() {
				return
			}
			s.OnNext(v)
		}
		s.OnCompleted()
	})
}

// FromSeq 依次发射迭代器产生的值
func FromSeq[T any](seq iter.Seq[T]) Observable[T] {
	return NewObservable(func(s *Subscriber[T]) {
		for v := range seq {
			if s.IsClosed() {
				return
			}
			s.OnNext(v)
		}
		s.OnCompleted()
	})
}

// FromChannel 从通道读取直到通道关闭，释放订阅后停止读取
func FromChannel[T any](ch <-chan T) Observable[T] {
	return NewObservable(func(s *Subscriber[T]) {
		done := make(chan struct{})
		s.Add(NewSubscription(func() { close(done) }))

		go func() {
			for {
				select {
				case <-done:
					return
				case v, ok := <-ch:
					if !ok {
						s.OnCompleted()
						return
					}
					s.OnNext(v)
				}
			}
		}()
	})
}

// ============================================================================
// 时间工厂
// ============================================================================

// Interval 每隔 period 发射一个递增的计数，从 0 开始
func Interval(period time.Duration, options ...Option) Observable[int64] {
	config := applyOptions(options)
	return NewObservable(func(s *Subscriber[int64]) {
		if period <= 0 {
			s.OnError(errors.Wrapf(ErrArgumentOutOfRange, "interval period=%v", period))
			return
		}
		var tick int64
		s.Add(SchedulePeriodic(config.Scheduler, period, func() {
			s.OnNext(tick)
			tick++
		}))
	})
}

// Timer 延迟 delay 后发射 0 并完成
func Timer(delay time.Duration, options ...Option) Observable[int64] {
	config := applyOptions(options)
	return NewObservable(func(s *Subscriber[int64]) {
		s.Add(config.Scheduler.ScheduleWithDelay(func() {
			s.OnNext(0)
			s.OnCompleted()
		}, delay))
	})
}

// ============================================================================
// 自定义工厂
// ============================================================================

// Create 由发射函数创建 Observable，返回的 teardown 在订阅释放时执行
// 发射函数的 panic 作为错误发给观察者
func Create[T any](emitter func(sink Sink[T]) (teardown func())) Observable[T] {
	return NewObservable(func(s *Subscriber[T]) {
		teardown, err := guard("Create", func() (func(), error) {
			return emitter(s), nil
		})
		if err != nil {
			s.OnError(err)
			return
		}
		if teardown != nil {
			s.Add(NewSubscription(teardown))
		}
	})
}

// Defer 每次订阅时调用工厂创建新的 Observable
func Defer[T any](factory func() Observable[T]) Observable[T] {
	return NewObservable(func(s *Subscriber[T]) {
		src, err := guard("Defer", func() (Observable[T], error) {
			return factory(), nil
		})
		if err != nil {
			s.OnError(err)
			return
		}
		subscribeInner(src, s, ObserverOf[T](s))
	})
}

// Start 立即在调度器上执行 fn，结果缓存给所有订阅者
func Start[T any](fn func() (T, error), options ...Option) Observable[T] {
	config := applyOptions(options)
	subject := NewAsyncSubject[T]()
	config.Scheduler.Schedule(func() {
		v, err := guard("Start", fn)
		if err != nil {
			subject.OnError(err)
			return
		}
		subject.OnNext(v)
		subject.OnCompleted()
	})
	return subject.AsObservable()
}

// FromEvent 把注册/注销回调式的事件源转换为热序列
// register 在每次订阅时调用，返回的注销函数在订阅释放时调用
func FromEvent[T any](register func(handler func(T)) (unregister func())) Observable[T] {
	return NewObservable(func(s *Subscriber[T]) {
		unregister, err := guard("FromEvent", func() (func(), error) {
			return register(s.OnNext), nil
		})
		if err != nil {
			s.OnError(err)
			return
		}
		if unregister != nil {
			s.Add(NewSubscription(unregister))
		}
	})
}

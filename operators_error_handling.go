// Error handling operators for rx
// 错误恢复操作符：Catch、Retry、OnErrorResumeNext、Finally 等
package rx

import (
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
)

// ============================================================================
// Catch
// ============================================================================

// Catch 源出错时订阅 handler 返回的后备序列，原错误不再向下游传播
func Catch[T any](src Observable[T], handler func(err error) Observable[T]) Observable[T] {
	return NewObservable(func(s *Subscriber[T]) {
		serial := NewSerialSubscription()
		s.Add(serial)
		subscribeInner(src, serial, func(n Notification[T]) {
			if n.Kind() != KindError {
				s.Emit(n)
				return
			}
			fallback, err := guard("Catch", func() (Observable[T], error) {
				return handler(n.Err()), nil
			})
			if err != nil {
				s.OnError(err)
				return
			}
			subscribeInner(fallback, serial, ObserverOf[T](s))
		})
	})
}

// CatchWith 源出错时切换到固定的后备序列
func CatchWith[T any](src Observable[T], fallback Observable[T]) Observable[T] {
	return Catch(src, func(error) Observable[T] { return fallback })
}

// CatchAs 只处理能通过 errors.As 匹配为 E 的错误，其余错误照常传播
func CatchAs[T any, E error](src Observable[T], handler func(err E) Observable[T]) Observable[T] {
	return Catch(src, func(err error) Observable[T] {
		var target E
		if errors.As(err, &target) {
			return handler(target)
		}
		return Throw[T](err)
	})
}

// OnErrorReturn 源出错时发射 value 后完成
func OnErrorReturn[T any](src Observable[T], value T) Observable[T] {
	return Catch(src, func(error) Observable[T] { return Return(value) })
}

// OnErrorResumeNext 依次订阅各个序列，无论前一个完成还是出错都继续下一个，错误内容被忽略
func OnErrorResumeNext[T any](sources ...Observable[T]) Observable[T] {
	return NewObservable(func(s *Subscriber[T]) {
		serial := NewSerialSubscription()
		s.Add(serial)
		var (
			loop  trampoline
			index int
		)
		var next func()
		next = func() {
			loop.run(func() {
				if s.IsClosed() {
					return
				}
				if index == len(sources) {
					s.OnCompleted()
					return
				}
				src := sources[index]
				index++
				subscribeInner(src, serial, func(n Notification[T]) {
					if n.IsTerminal() {
						next()
						return
					}
					s.Emit(n)
				})
			})
		}
		next()
	})
}

// ============================================================================
// Retry
// ============================================================================

// Retry 源出错时重新订阅，总共最多订阅 attempts 次；用尽后传播最后一次的错误
// attempts < 1 时按 1 处理；收到值后重新计数
func Retry[T any](src Observable[T], attempts int) Observable[T] {
	return retry(src, max(attempts, 1))
}

// RetryForever 源出错时无限重新订阅
func RetryForever[T any](src Observable[T]) Observable[T] {
	return retry(src, -1)
}

func retry[T any](src Observable[T], attempts int) Observable[T] {
	return NewObservable(func(s *Subscriber[T]) {
		serial := NewSerialSubscription()
		s.Add(serial)
		var (
			loop  trampoline
			tries int
		)
		var subscribe func()
		subscribe = func() {
			loop.run(func() {
				if s.IsClosed() {
					return
				}
				tries++
				subscribeInner(src, serial, func(n Notification[T]) {
					switch n.Kind() {
					case KindNext:
						// 收到值说明本次订阅成功，之后的错误重新从第 1 次计数
						tries = 1
					case KindError:
						if attempts < 0 || tries < attempts {
							subscribe()
							return
						}
					}
					s.Emit(n)
				})
			})
		}
		subscribe()
	})
}

// RetryWithBackoff 源出错时按退避策略延迟后重新订阅；策略返回 backoff.Stop 时传播错误
// 每次订阅调用 newPolicy 创建独立的策略；收到值后策略重置
func RetryWithBackoff[T any](src Observable[T], newPolicy func() backoff.BackOff, options ...Option) Observable[T] {
	config := applyOptions(options)
	return NewObservable(func(s *Subscriber[T]) {
		policy, err := guard("RetryWithBackoff", func() (backoff.BackOff, error) { return newPolicy(), nil })
		if err != nil {
			s.OnError(err)
			return
		}
		policy.Reset()
		serial := NewSerialSubscription()
		s.Add(serial)
		var subscribe func()
		subscribe = func() {
			if s.IsClosed() {
				return
			}
			subscribeInner(src, serial, func(n Notification[T]) {
				switch n.Kind() {
				case KindNext:
					policy.Reset()
				case KindError:
					delay := policy.NextBackOff()
					if delay == backoff.Stop {
						break
					}
					config.Logger.Debug("rx: retrying after error",
						slog.String("name", config.Name),
						slog.Duration("delay", delay),
						errAttr(n.Err()))
					serial.Set(config.Scheduler.ScheduleWithDelay(subscribe, delay))
					return
				}
				s.Emit(n)
			})
		}
		subscribe()
	})
}

// ============================================================================
// Finally
// ============================================================================

// Finally 在序列终止或订阅释放后执行 action，只执行一次
func Finally[T any](src Observable[T], action func()) Observable[T] {
	return NewObservable(func(s *Subscriber[T]) {
		s.Add(NewSubscription(func() {
			if err := guardDo("Finally", action); err != nil {
				Logger().Error("rx: finally action failed", errAttr(err))
			}
		}))
		subscribeInner(src, s, ObserverOf[T](s))
	})
}

// TimeoutWithFallback 超时后切换到后备序列
func TimeoutWithFallback[T any](src Observable[T], timeout time.Duration, fallback Observable[T], options ...Option) Observable[T] {
	return CatchAs(Timeout(src, timeout, options...), func(*TimeoutError) Observable[T] {
		return fallback
	})
}

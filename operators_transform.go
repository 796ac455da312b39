// Transformation operators for rx
// 转换操作符：Select、SelectMany、Scan、Cast、Timestamp 等
package rx

import (
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Select 对每个值应用 selector，selector panic 转为错误
func Select[T, R any](src Observable[T], selector func(T) R) Observable[R] {
	return TrySelect(src, func(v T) (R, error) { return selector(v), nil })
}

// TrySelect 对每个值应用可能失败的 selector，返回错误时序列以该错误终止
func TrySelect[T, R any](src Observable[T], selector Selector[T, R]) Observable[R] {
	return NewObservable(func(s *Subscriber[R]) {
		subscribeInner(src, s, forward(s, func(v T) {
			r, err := guard("Select", func() (R, error) { return selector(v) })
			if err != nil {
				s.OnError(err)
				return
			}
			s.OnNext(r)
		}))
	})
}

// SelectMany 把每个值映射为 Observable 并合并它们的输出
// 外层与所有内层都完成后才完成，任一出错立即出错
func SelectMany[T, R any](src Observable[T], selector func(T) Observable[R]) Observable[R] {
	return NewObservable(func(s *Subscriber[R]) {
		var (
			mu     sync.Mutex
			active = 1
		)
		done := func() {
			mu.Lock()
			active--
			finished := active == 0
			mu.Unlock()
			if finished {
				s.OnCompleted()
			}
		}
		subscribeInner(src, s, func(n Notification[T]) {
			switch n.Kind() {
			case KindNext:
				inner, err := guard("SelectMany", func() (Observable[R], error) {
					return selector(n.Value()), nil
				})
				if err != nil {
					s.OnError(err)
					return
				}
				mu.Lock()
				active++
				mu.Unlock()
				subscribeInner(inner, s, func(m Notification[R]) {
					switch m.Kind() {
					case KindNext:
						s.OnNext(m.Value())
					case KindError:
						s.OnError(m.Err())
					case KindCompleted:
						done()
					}
				})
			case KindError:
				s.OnError(n.Err())
			case KindCompleted:
				done()
			}
		})
	})
}

// Cast 把值断言为 R，失败时以 *InvalidCastError 终止
func Cast[T, R any](src Observable[T]) Observable[R] {
	return NewObservable(func(s *Subscriber[R]) {
		subscribeInner(src, s, forward(s, func(v T) {
			r, ok := any(v).(R)
			if !ok {
				s.OnError(errors.WithStack(&InvalidCastError{Value: v, Target: reflect.TypeFor[R]().String()}))
				return
			}
			s.OnNext(r)
		}))
	})
}

// Scan 每个值都发射当前累加结果，种子本身不发射
func Scan[T, A any](src Observable[T], seed A, accumulator Accumulator[A, T]) Observable[A] {
	return NewObservable(func(s *Subscriber[A]) {
		acc := seed
		subscribeInner(src, s, forward(s, func(v T) {
			next, err := guard("Scan", func() (A, error) { return accumulator(acc, v), nil })
			if err != nil {
				s.OnError(err)
				return
			}
			acc = next
			s.OnNext(acc)
		}))
	})
}

// ============================================================================
// 时间标注
// ============================================================================

// TimestampedItem 带时间戳的值
type TimestampedItem[T any] struct {
	Value     T
	Timestamp time.Time
}

// String 格式化输出
func (t TimestampedItem[T]) String() string {
	return fmt.Sprintf("%v@%s", t.Value, t.Timestamp.Format(time.RFC3339Nano))
}

// Timestamp 为每个值附上调度器时间
func Timestamp[T any](src Observable[T], options ...Option) Observable[TimestampedItem[T]] {
	config := applyOptions(options)
	return NewObservable(func(s *Subscriber[TimestampedItem[T]]) {
		subscribeInner(src, s, forward(s, func(v T) {
			s.OnNext(TimestampedItem[T]{Value: v, Timestamp: config.Scheduler.Now()})
		}))
	})
}

// TimeIntervalItem 带间隔的值
type TimeIntervalItem[T any] struct {
	Value    T
	Interval time.Duration
}

// String 格式化输出
func (t TimeIntervalItem[T]) String() string {
	return fmt.Sprintf("%v@%v", t.Value, t.Interval)
}

// TimeInterval 为每个值附上与上一个值（或订阅时刻）的间隔
func TimeInterval[T any](src Observable[T], options ...Option) Observable[TimeIntervalItem[T]] {
	config := applyOptions(options)
	return NewObservable(func(s *Subscriber[TimeIntervalItem[T]]) {
		last := config.Scheduler.Now()
		subscribeInner(src, s, forward(s, func(v T) {
			now := config.Scheduler.Now()
			interval := now.Sub(last)
			last = now
			s.OnNext(TimeIntervalItem[T]{Value: v, Interval: interval})
		}))
	})
}

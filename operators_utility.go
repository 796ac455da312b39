// Utility operators for rx
// 工具操作符：Materialize、Dematerialize、DefaultIfEmpty、SwitchIfEmpty、SequenceEqual
package rx

import "sync"

// ============================================================================
// 通知与值之间的转换
// ============================================================================

// Materialize 把每个通知包装为值发射；源终止后发射终止通知本身再完成
func Materialize[T any](src Observable[T]) Observable[Notification[T]] {
	return NewObservable(func(s *Subscriber[Notification[T]]) {
		subscribeInner(src, s, func(n Notification[T]) {
			s.OnNext(n)
			if n.IsTerminal() {
				s.OnCompleted()
			}
		})
	})
}

// Dematerialize Materialize 的逆操作
func Dematerialize[T any](src Observable[Notification[T]]) Observable[T] {
	return NewObservable(func(s *Subscriber[T]) {
		subscribeInner(src, s, forward(s, func(n Notification[T]) {
			s.Emit(n)
		}))
	})
}

// ============================================================================
// 空序列处理
// ============================================================================

// DefaultIfEmpty 源没有产生任何值就完成时发射 value
func DefaultIfEmpty[T any](src Observable[T], value T) Observable[T] {
	return NewObservable(func(s *Subscriber[T]) {
		empty := true
		subscribeInner(src, s, func(n Notification[T]) {
			switch n.Kind() {
			case KindNext:
				empty = false
			case KindCompleted:
				if empty {
					s.OnNext(value)
				}
			}
			s.Emit(n)
		})
	})
}

// SwitchIfEmpty 源没有产生任何值就完成时切换到 other
func SwitchIfEmpty[T any](src Observable[T], other Observable[T]) Observable[T] {
	return NewObservable(func(s *Subscriber[T]) {
		serial := NewSerialSubscription()
		s.Add(serial)
		empty := true
		subscribeInner(src, serial, func(n Notification[T]) {
			switch n.Kind() {
			case KindNext:
				empty = false
			case KindCompleted:
				if empty {
					subscribeInner(other, serial, ObserverOf[T](s))
					return
				}
			}
			s.Emit(n)
		})
	})
}

// ============================================================================
// SequenceEqual
// ============================================================================

// SequenceEqual 两个序列按顺序逐个相等且长度相同时发射 true
// 一旦发现差异立即发射 false 并释放两个源
func SequenceEqual[T comparable](first, second Observable[T]) Observable[bool] {
	return SequenceEqualFunc(first, second, func(a, b T) bool { return a == b })
}

// SequenceEqualFunc 使用 equal 比较元素的 SequenceEqual
func SequenceEqualFunc[T any](first, second Observable[T], equal func(a, b T) bool) Observable[bool] {
	return NewObservable(func(s *Subscriber[bool]) {
		var (
			mu     sync.Mutex
			queues [2][]T
			done   [2]bool
		)
		result := func(equal bool) {
			s.push(ValueNotification(equal))
			s.push(CompletionNotification[bool]())
		}
		side := func(i int) Observer[T] {
			other := 1 - i
			return func(n Notification[T]) {
				mu.Lock()
				switch n.Kind() {
				case KindNext:
					// 同一时刻最多只有一侧有积压
					if len(queues[other]) > 0 {
						head := queues[other][0]
						queues[other] = queues[other][1:]
						same, err := guardBool("SequenceEqual", func() bool { return equal(head, n.Value()) })
						if err != nil {
							s.push(ErrorNotification[bool](err))
						} else if !same {
							result(false)
						}
					} else if done[other] {
						result(false)
					} else {
						queues[i] = append(queues[i], n.Value())
					}
				case KindError:
					s.push(ErrorNotification[bool](n.Err()))
				case KindCompleted:
					done[i] = true
					switch {
					case len(queues[i]) > 0 && done[other]:
						result(false)
					case len(queues[i]) == 0 && len(queues[other]) > 0:
						result(false)
					case len(queues[i]) == 0 && done[other]:
						result(true)
					}
				}
				mu.Unlock()
				s.flush()
			}
		}
		subscribeInner(first, s, side(0))
		if !s.IsClosed() {
			subscribeInner(second, s, side(1))
		}
	})
}

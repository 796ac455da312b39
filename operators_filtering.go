// Filtering operators for rx
// 过滤操作符：Where、Distinct、Skip/Take 系列、OfType、ElementAt 等
package rx

import "sync/atomic"

// Where 只转发满足谓词的值，谓词 panic 转为错误
func Where[T any](src Observable[T], predicate Predicate[T]) Observable[T] {
	return NewObservable(func(s *Subscriber[T]) {
		subscribeInner(src, s, forward(s, func(v T) {
			ok, err := guardBool("Where", func() bool { return predicate(v) })
			if err != nil {
				s.OnError(err)
				return
			}
			if ok {
				s.OnNext(v)
			}
		}))
	})
}

// Distinct 只转发从未出现过的值，已见集合随序列无界增长
func Distinct[T comparable](src Observable[T]) Observable[T] {
	return DistinctBy(src, func(v T) T { return v })
}

// DistinctBy 按 key 去重
func DistinctBy[T any, K comparable](src Observable[T], key func(T) K) Observable[T] {
	return NewObservable(func(s *Subscriber[T]) {
		seen := make(map[K]struct{})
		subscribeInner(src, s, forward(s, func(v T) {
			k, err := guard("Distinct", func() (K, error) { return key(v), nil })
			if err != nil {
				s.OnError(err)
				return
			}
			if _, dup := seen[k]; dup {
				return
			}
			seen[k] = struct{}{}
			s.OnNext(v)
		}))
	})
}

// DistinctUntilChanged 只转发与上一个值不同的值
func DistinctUntilChanged[T comparable](src Observable[T]) Observable[T] {
	return DistinctUntilChangedFunc(src, func(a, b T) bool { return a == b })
}

// DistinctUntilChangedFunc 使用自定义相等判断
func DistinctUntilChangedFunc[T any](src Observable[T], equal func(a, b T) bool) Observable[T] {
	return NewObservable(func(s *Subscriber[T]) {
		var (
			last    T
			hasLast bool
		)
		subscribeInner(src, s, forward(s, func(v T) {
			if hasLast {
				same, err := guardBool("DistinctUntilChanged", func() bool { return equal(last, v) })
				if err != nil {
					s.OnError(err)
					return
				}
				if same {
					return
				}
			}
			last, hasLast = v, true
			s.OnNext(v)
		}))
	})
}

// ============================================================================
// Skip / Take
// ============================================================================

// Skip 跳过前 count 个值
func Skip[T any](src Observable[T], count int) Observable[T] {
	return NewObservable(func(s *Subscriber[T]) {
		remaining := count
		subscribeInner(src, s, forward(s, func(v T) {
			if remaining > 0 {
				remaining--
				return
			}
			s.OnNext(v)
		}))
	})
}

// Take 只转发前 count 个值，然后完成并释放上游
func Take[T any](src Observable[T], count int) Observable[T] {
	return NewObservable(func(s *Subscriber[T]) {
		if count <= 0 {
			s.OnCompleted()
			return
		}
		remaining := count
		subscribeInner(src, s, forward(s, func(v T) {
			if remaining <= 0 {
				return
			}
			remaining--
			s.OnNext(v)
			if remaining == 0 {
				s.OnCompleted()
			}
		}))
	})
}

// SkipWhile 跳过谓词为真的前缀
func SkipWhile[T any](src Observable[T], predicate Predicate[T]) Observable[T] {
	return NewObservable(func(s *Subscriber[T]) {
		skipping := true
		subscribeInner(src, s, forward(s, func(v T) {
			if skipping {
				skip, err := guardBool("SkipWhile", func() bool { return predicate(v) })
				if err != nil {
					s.OnError(err)
					return
				}
				if skip {
					return
				}
				skipping = false
			}
			s.OnNext(v)
		}))
	})
}

// TakeWhile 转发谓词为真的前缀，第一个不满足的值使序列完成
func TakeWhile[T any](src Observable[T], predicate Predicate[T]) Observable[T] {
	return NewObservable(func(s *Subscriber[T]) {
		subscribeInner(src, s, forward(s, func(v T) {
			take, err := guardBool("TakeWhile", func() bool { return predicate(v) })
			if err != nil {
				s.OnError(err)
				return
			}
			if !take {
				s.OnCompleted()
				return
			}
			s.OnNext(v)
		}))
	})
}

// SkipLast 跳过最后 count 个值；缓冲超过 count 时转发被挤出的最旧值
func SkipLast[T any](src Observable[T], count int) Observable[T] {
	return NewObservable(func(s *Subscriber[T]) {
		buffer := make([]T, 0, max(count, 0)+1)
		subscribeInner(src, s, forward(s, func(v T) {
			buffer = append(buffer, v)
			if len(buffer) > count {
				oldest := buffer[0]
				buffer = buffer[1:]
				s.OnNext(oldest)
			}
		}))
	})
}

// TakeLast 完成时发射最后 count 个值
func TakeLast[T any](src Observable[T], count int) Observable[T] {
	return NewObservable(func(s *Subscriber[T]) {
		var buffer []T
		subscribeInner(src, s, func(n Notification[T]) {
			switch n.Kind() {
			case KindNext:
				if count <= 0 {
					return
				}
				buffer = append(buffer, n.Value())
				if len(buffer) > count {
					buffer = buffer[1:]
				}
			case KindError:
				s.OnError(n.Err())
			case KindCompleted:
				for _, v := range buffer {
					s.OnNext(v)
				}
				s.OnCompleted()
			}
		})
	})
}

// SkipUntil 在 other 发射第一个值之前丢弃所有值
func SkipUntil[T, U any](src Observable[T], other Observable[U]) Observable[T] {
	return NewObservable(func(s *Subscriber[T]) {
		var open atomic.Bool
		gate := NewSerialSubscription()
		s.Add(gate)
		subscribeInner(other, gate, func(n Notification[U]) {
			switch n.Kind() {
			case KindNext:
				open.Store(true)
				gate.Dispose()
			case KindError:
				s.OnError(n.Err())
			}
		})
		subscribeInner(src, s, forward(s, func(v T) {
			if open.Load() {
				s.OnNext(v)
			}
		}))
	})
}

// TakeUntil 在 other 发射第一个值时完成
func TakeUntil[T, U any](src Observable[T], other Observable[U]) Observable[T] {
	return NewObservable(func(s *Subscriber[T]) {
		subscribeInner(other, s, func(n Notification[U]) {
			switch n.Kind() {
			case KindNext:
				s.OnCompleted()
			case KindError:
				s.OnError(n.Err())
			}
		})
		if s.IsClosed() {
			return
		}
		subscribeInner(src, s, ObserverOf[T](s))
	})
}

// IgnoreElements 只保留终止通知
func IgnoreElements[T any](src Observable[T]) Observable[T] {
	return NewObservable(func(s *Subscriber[T]) {
		subscribeInner(src, s, forward(s, func(T) {}))
	})
}

// OfType 只转发能断言为 R 的值
func OfType[T, R any](src Observable[T]) Observable[R] {
	return NewObservable(func(s *Subscriber[R]) {
		subscribeInner(src, s, forward(s, func(v T) {
			if r, ok := any(v).(R); ok {
				s.OnNext(r)
			}
		}))
	})
}

// ============================================================================
// 元素选择
// ============================================================================

// ElementAt 发射第 index 个值（从 0 开始）；序列过短时返回 ErrArgumentOutOfRange
func ElementAt[T any](src Observable[T], index int) Observable[T] {
	return NewObservable(func(s *Subscriber[T]) {
		if index < 0 {
			s.OnError(ErrArgumentOutOfRange)
			return
		}
		i := 0
		subscribeInner(src, s, func(n Notification[T]) {
			switch n.Kind() {
			case KindNext:
				if i == index {
					s.OnNext(n.Value())
					s.OnCompleted()
				}
				i++
			case KindError:
				s.OnError(n.Err())
			case KindCompleted:
				s.OnError(ErrArgumentOutOfRange)
			}
		})
	})
}

// First 发射第一个值后完成；空序列返回 ErrNoElements
func First[T any](src Observable[T]) Observable[T] {
	return NewObservable(func(s *Subscriber[T]) {
		subscribeInner(src, s, func(n Notification[T]) {
			switch n.Kind() {
			case KindNext:
				s.OnNext(n.Value())
				s.OnCompleted()
			case KindError:
				s.OnError(n.Err())
			case KindCompleted:
				s.OnError(ErrNoElements)
			}
		})
	})
}

// Last 完成时发射最后一个值；空序列返回 ErrNoElements
func Last[T any](src Observable[T]) Observable[T] {
	return NewObservable(func(s *Subscriber[T]) {
		var (
			last T
			has  bool
		)
		subscribeInner(src, s, func(n Notification[T]) {
			switch n.Kind() {
			case KindNext:
				last, has = n.Value(), true
			case KindError:
				s.OnError(n.Err())
			case KindCompleted:
				if !has {
					s.OnError(ErrNoElements)
					return
				}
				s.OnNext(last)
				s.OnCompleted()
			}
		})
	})
}

// Advanced operators and factory functions for rx
// 高级操作符和工厂函数：Generate、Using、ConcatMap、SwitchMap、WithLatestFrom、GroupBy
package rx

import "sync"

// ============================================================================
// 高级工厂函数
// ============================================================================

// Generate 从 initial 开始迭代状态，condition 为真时发射 result(state)
func Generate[S, T any](initial S, condition func(S) bool, iterate func(S) S, result func(S) T) Observable[T] {
	return NewObservable(func(s *Subscriber[T]) {
		state := initial
		for !s.IsClosed() {
			var value T
			more, err := guardBool("Generate", func() bool {
				if !condition(state) {
					return false
				}
				value = result(state)
				state = iterate(state)
				return true
			})
			if err != nil {
				s.OnError(err)
				return
			}
			if !more {
				s.OnCompleted()
				return
			}
			s.OnNext(value)
		}
	})
}

// Using 每次订阅创建资源并由 factory 基于资源创建序列，订阅结束时释放资源
func Using[R, T any](resource func() (R, error), factory func(R) Observable[T], release func(R)) Observable[T] {
	return NewObservable(func(s *Subscriber[T]) {
		r, err := guard("Using", resource)
		if err != nil {
			s.OnError(err)
			return
		}
		s.Add(NewSubscription(func() {
			if err := guardDo("Using", func() { release(r) }); err != nil {
				Logger().Error("rx: resource release failed", errAttr(err))
			}
		}))
		src, err := guard("Using", func() (Observable[T], error) { return factory(r), nil })
		if err != nil {
			s.OnError(err)
			return
		}
		subscribeInner(src, s, ObserverOf[T](s))
	})
}

// ============================================================================
// 高阶映射
// ============================================================================

// ConcatMap 把每个值映射为序列并按顺序依次订阅，前一个完成后才订阅下一个
func ConcatMap[T, R any](src Observable[T], selector func(T) Observable[R]) Observable[R] {
	return NewObservable(func(s *Subscriber[R]) {
		inner := NewSerialSubscription()
		s.Add(inner)
		var (
			mu        sync.Mutex
			queue     []Observable[R]
			active    bool
			outerDone bool
			loop      trampoline
		)
		var drain func()
		drain = func() {
			loop.run(func() {
				mu.Lock()
				if active || s.IsClosed() {
					mu.Unlock()
					return
				}
				if len(queue) == 0 {
					finished := outerDone
					mu.Unlock()
					if finished {
						s.OnCompleted()
					}
					return
				}
				next := queue[0]
				queue = queue[1:]
				active = true
				mu.Unlock()

				subscribeInner(next, inner, func(n Notification[R]) {
					if n.Kind() == KindCompleted {
						mu.Lock()
						active = false
						mu.Unlock()
						drain()
						return
					}
					s.Emit(n)
				})
			})
		}
		subscribeInner(src, s, forward(s, func(v T) {
			obs, err := guard("ConcatMap", func() (Observable[R], error) { return selector(v), nil })
			if err != nil {
				s.OnError(err)
				return
			}
			mu.Lock()
			queue = append(queue, obs)
			mu.Unlock()
			drain()
		}).withCompletion(func() {
			mu.Lock()
			outerDone = true
			mu.Unlock()
			drain()
		}))
	})
}

// SwitchMap 把每个值映射为序列，只转发最新一个内部序列，旧的内部序列立即释放
func SwitchMap[T, R any](src Observable[T], selector func(T) Observable[R]) Observable[R] {
	return NewObservable(func(s *Subscriber[R]) {
		inner := NewSerialSubscription()
		s.Add(inner)
		var (
			mu        sync.Mutex
			gen       uint64
			active    bool
			outerDone bool
		)
		subscribeInner(src, s, forward(s, func(v T) {
			obs, err := guard("SwitchMap", func() (Observable[R], error) { return selector(v), nil })
			if err != nil {
				s.OnError(err)
				return
			}
			mu.Lock()
			gen++
			g := gen
			active = true
			mu.Unlock()

			subscribeInner(obs, inner, func(n Notification[R]) {
				mu.Lock()
				if g != gen {
					mu.Unlock()
					return
				}
				if n.Kind() == KindCompleted {
					active = false
					finished := outerDone
					mu.Unlock()
					if finished {
						s.OnCompleted()
					}
					return
				}
				mu.Unlock()
				s.Emit(n)
			})
		}).withCompletion(func() {
			mu.Lock()
			outerDone = true
			idle := !active
			mu.Unlock()
			if idle {
				s.OnCompleted()
			}
		}))
	})
}

// ============================================================================
// WithLatestFrom
// ============================================================================

// WithLatestFrom 源的每个值与 other 的最新值组合；other 尚无值时丢弃源的值
// other 完成不影响结果序列，other 出错时结果序列出错
func WithLatestFrom[T, U, R any](src Observable[T], other Observable[U], combiner func(T, U) R) Observable[R] {
	return NewObservable(func(s *Subscriber[R]) {
		var (
			mu     sync.Mutex
			latest U
			has    bool
		)
		subscribeInner(other, s, func(n Notification[U]) {
			switch n.Kind() {
			case KindNext:
				mu.Lock()
				latest, has = n.Value(), true
				mu.Unlock()
			case KindError:
				s.OnError(n.Err())
			}
		})
		if s.IsClosed() {
			return
		}
		subscribeInner(src, s, forward(s, func(v T) {
			mu.Lock()
			u, ok := latest, has
			mu.Unlock()
			if !ok {
				return
			}
			r, err := guard("WithLatestFrom", func() (R, error) { return combiner(v, u), nil })
			if err != nil {
				s.OnError(err)
				return
			}
			s.OnNext(r)
		}))
	})
}

// ============================================================================
// GroupBy
// ============================================================================

// GroupedObservable 按键分组后的子序列
type GroupedObservable[K comparable, T any] struct {
	Observable[T]
	Key K
}

// GroupBy 按 key 把值分到子序列，每个新键先发射一个 GroupedObservable
// 子序列是热序列，需要在收到分组时同步订阅才能收到该分组的第一个值
func GroupBy[T any, K comparable](src Observable[T], key func(T) K) Observable[GroupedObservable[K, T]] {
	return NewObservable(func(s *Subscriber[GroupedObservable[K, T]]) {
		var (
			mu     sync.Mutex
			groups = make(map[K]*Subject[T])
			order  []*Subject[T]
		)
		closeAll := func(n Notification[T]) {
			mu.Lock()
			all := order
			order, groups = nil, make(map[K]*Subject[T])
			mu.Unlock()
			for _, g := range all {
				n.Accept(g)
			}
		}
		subscribeInner(src, s, func(n Notification[T]) {
			switch n.Kind() {
			case KindNext:
				k, err := guard("GroupBy", func() (K, error) { return key(n.Value()), nil })
				if err != nil {
					closeAll(ErrorNotification[T](err))
					s.OnError(err)
					return
				}
				mu.Lock()
				g, ok := groups[k]
				if !ok {
					g = NewSubject[T]()
					groups[k] = g
					order = append(order, g)
				}
				mu.Unlock()
				if !ok {
					s.OnNext(GroupedObservable[K, T]{Observable: g.AsObservable(), Key: k})
				}
				g.OnNext(n.Value())
			case KindError:
				closeAll(n)
				s.OnError(n.Err())
			case KindCompleted:
				closeAll(n)
				s.OnCompleted()
			}
		})
	})
}

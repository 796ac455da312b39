// Combination operators for rx
// 组合操作符：Merge、Concat、Amb、Zip、CombineLatest、Repeat、StartWith
package rx

import (
	"sync"
	"sync/atomic"
)

// ============================================================================
// Merge / Concat
// ============================================================================

// Merge 同时订阅所有源并按到达顺序转发；全部完成后完成，任一出错立即出错
func Merge[T any](sources ...Observable[T]) Observable[T] {
	return NewObservable(func(s *Subscriber[T]) {
		if len(sources) == 0 {
			s.OnCompleted()
			return
		}
		var active atomic.Int32
		active.Store(int32(len(sources)))
		for _, src := range sources {
			if s.IsClosed() {
				return
			}
			subscribeInner(src, s, func(n Notification[T]) {
				if n.Kind() == KindCompleted {
					if active.Add(-1) == 0 {
						s.OnCompleted()
					}
					return
				}
				s.Emit(n)
			})
		}
	})
}

// trampoline 串行地依次订阅，完成回调中的重新订阅不会加深调用栈
type trampoline struct {
	wip atomic.Int32
}

func (t *trampoline) run(step func()) {
	if t.wip.Add(1) != 1 {
		return
	}
	for {
		step()
		if t.wip.Add(-1) == 0 {
			return
		}
	}
}

// Concat 依次订阅各个源，前一个完成后才订阅下一个
func Concat[T any](sources ...Observable[T]) Observable[T] {
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
					if n.Kind() == KindCompleted {
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

// StartWith 先发射给定的值再转发源
func StartWith[T any](src Observable[T], values ...T) Observable[T] {
	return Concat(FromSlice(values), src)
}

// Repeat 完成后重新订阅源，共订阅 count 次；count < 0 时无限重复
func Repeat[T any](src Observable[T], count int) Observable[T] {
	return NewObservable(func(s *Subscriber[T]) {
		if count == 0 {
			s.OnCompleted()
			return
		}
		serial := NewSerialSubscription()
		s.Add(serial)
		var (
			loop  trampoline
			round int
		)
		var next func()
		next = func() {
			loop.run(func() {
				if s.IsClosed() {
					return
				}
				if count > 0 && round == count {
					s.OnCompleted()
					return
				}
				round++
				subscribeInner(src, serial, func(n Notification[T]) {
					if n.Kind() == KindCompleted {
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
// Amb
// ============================================================================

// Amb 第一个产生任何通知的源胜出，其余源的订阅立即释放
func Amb[T any](sources ...Observable[T]) Observable[T] {
	return NewObservable(func(s *Subscriber[T]) {
		if len(sources) == 0 {
			s.OnCompleted()
			return
		}
		var (
			mu     sync.Mutex
			winner = -1
			subs   = make([]Subscription, len(sources))
		)
		win := func(i int) bool {
			mu.Lock()
			if winner >= 0 {
				won := winner == i
				mu.Unlock()
				return won
			}
			winner = i
			losers := make([]Subscription, 0, len(subs))
			for j, sub := range subs {
				if j != i && sub != nil {
					losers = append(losers, sub)
				}
			}
			mu.Unlock()
			for _, sub := range losers {
				sub.Dispose()
			}
			return true
		}

		for i, src := range sources {
			sub := subscribeInner(src, s, func(n Notification[T]) {
				if win(i) {
					s.Emit(n)
				}
			})
			mu.Lock()
			decided, lost := winner >= 0, winner >= 0 && winner != i
			subs[i] = sub
			mu.Unlock()
			if lost {
				sub.Dispose()
			}
			if decided {
				return
			}
		}
	})
}

// ============================================================================
// Zip
// ============================================================================

// ZipAll 按索引配对所有源的值；任一源完成且没有可配对的缓冲值时完成
func ZipAll[T any](sources ...Observable[T]) Observable[[]T] {
	return NewObservable(func(s *Subscriber[[]T]) {
		n := len(sources)
		if n == 0 {
			s.OnCompleted()
			return
		}
		var (
			mu        sync.Mutex
			queues    = make([][]T, n)
			completed = make([]bool, n)
		)
		exhausted := func() bool {
			for i := range queues {
				if completed[i] && len(queues[i]) == 0 {
					return true
				}
			}
			return false
		}
		for i, src := range sources {
			if s.IsClosed() {
				return
			}
			subscribeInner(src, s, func(note Notification[T]) {
				mu.Lock()
				switch note.Kind() {
				case KindNext:
					queues[i] = append(queues[i], note.Value())
					ready := true
					for _, q := range queues {
						if len(q) == 0 {
							ready = false
							break
						}
					}
					if ready {
						row := make([]T, n)
						for j := range queues {
							row[j] = queues[j][0]
							queues[j] = queues[j][1:]
						}
						s.push(ValueNotification(row))
					}
					if exhausted() {
						s.push(CompletionNotification[[]T]())
					}
				case KindError:
					s.push(ErrorNotification[[]T](note.Err()))
				case KindCompleted:
					completed[i] = true
					if len(queues[i]) == 0 {
						s.push(CompletionNotification[[]T]())
					}
				}
				mu.Unlock()
				s.flush()
			})
		}
	})
}

// Zip2 按索引配对两个源
func Zip2[A, B, R any](a Observable[A], b Observable[B], zipper func(A, B) R) Observable[R] {
	return Select(ZipAll(toAny(a), toAny(b)), func(row []any) R {
		return zipper(as[A](row[0]), as[B](row[1]))
	})
}

// Zip3 按索引配对三个源
func Zip3[A, B, C, R any](a Observable[A], b Observable[B], c Observable[C], zipper func(A, B, C) R) Observable[R] {
	return Select(ZipAll(toAny(a), toAny(b), toAny(c)), func(row []any) R {
		return zipper(as[A](row[0]), as[B](row[1]), as[C](row[2]))
	})
}

// ============================================================================
// CombineLatest
// ============================================================================

// CombineLatestAll 所有源都产生过值后，任一源的新值都与其他源的最新值组合发射
// 全部完成时完成；某个源没有产生任何值就完成时立即完成
func CombineLatestAll[T any](sources ...Observable[T]) Observable[[]T] {
	return NewObservable(func(s *Subscriber[[]T]) {
		n := len(sources)
		if n == 0 {
			s.OnCompleted()
			return
		}
		var (
			mu       sync.Mutex
			latest   = make([]T, n)
			has      = make([]bool, n)
			ready    int
			finished int
		)
		for i, src := range sources {
			if s.IsClosed() {
				return
			}
			subscribeInner(src, s, func(note Notification[T]) {
				mu.Lock()
				switch note.Kind() {
				case KindNext:
					if !has[i] {
						has[i] = true
						ready++
					}
					latest[i] = note.Value()
					if ready == n {
						s.push(ValueNotification(append([]T(nil), latest...)))
					}
				case KindError:
					s.push(ErrorNotification[[]T](note.Err()))
				case KindCompleted:
					finished++
					if finished == n || !has[i] {
						s.push(CompletionNotification[[]T]())
					}
				}
				mu.Unlock()
				s.flush()
			})
		}
	})
}

// CombineLatest2 组合两个源的最新值
func CombineLatest2[A, B, R any](a Observable[A], b Observable[B], combiner func(A, B) R) Observable[R] {
	return Select(CombineLatestAll(toAny(a), toAny(b)), func(row []any) R {
		return combiner(as[A](row[0]), as[B](row[1]))
	})
}

// CombineLatest3 组合三个源的最新值
func CombineLatest3[A, B, C, R any](a Observable[A], b Observable[B], c Observable[C], combiner func(A, B, C) R) Observable[R] {
	return Select(CombineLatestAll(toAny(a), toAny(b), toAny(c)), func(row []any) R {
		return combiner(as[A](row[0]), as[B](row[1]), as[C](row[2]))
	})
}

// as 断言 v 为 T，nil 接口值得到零值
func as[T any](v any) T {
	t, _ := v.(T)
	return t
}

// toAny 擦除元素类型，供异构组合使用
func toAny[T any](src Observable[T]) Observable[any] {
	return NewObservable(func(s *Subscriber[any]) {
		subscribeInner(src, s, forward(s, func(v T) { s.OnNext(v) }))
	})
}

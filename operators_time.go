// Time-based operators for rx
// 时间相关操作符：Buffer、Throttle、Sample、Timeout、Delay
package rx

import (
	"sync"
	"time"

	"github.com/pkg/errors"
)

// ============================================================================
// Buffer
// ============================================================================

// Buffer 每收满 count 个值发射一个窗口，然后窗口起点前移 skip 个值
// 源完成时按顺序发射所有未满的窗口
func Buffer[T any](src Observable[T], count, skip int) Observable[[]T] {
	return NewObservable(func(s *Subscriber[[]T]) {
		if count <= 0 || skip <= 0 {
			s.OnError(errors.Wrapf(ErrArgumentOutOfRange, "buffer count=%d skip=%d", count, skip))
			return
		}
		var (
			windows [][]T
			index   int
		)
		subscribeInner(src, s, func(n Notification[T]) {
			switch n.Kind() {
			case KindNext:
				if index%skip == 0 {
					windows = append(windows, make([]T, 0, count))
				}
				index++
				for i := range windows {
					windows[i] = append(windows[i], n.Value())
				}
				if len(windows) > 0 && len(windows[0]) == count {
					closed := windows[0]
					windows = windows[1:]
					s.OnNext(closed)
				}
			case KindError:
				windows = nil
				s.OnError(n.Err())
			case KindCompleted:
				for _, w := range windows {
					if len(w) > 0 {
						s.OnNext(w)
					}
				}
				windows = nil
				s.OnCompleted()
			}
		})
	})
}

// BufferWithTime 每隔 span 发射期间收到的值（可能为空），完成时发射剩余的值
func BufferWithTime[T any](src Observable[T], span time.Duration, options ...Option) Observable[[]T] {
	config := applyOptions(options)
	return NewObservable(func(s *Subscriber[[]T]) {
		if span <= 0 {
			s.OnError(errors.Wrapf(ErrArgumentOutOfRange, "buffer span=%v", span))
			return
		}
		var (
			mu      sync.Mutex
			current []T
		)
		s.Add(SchedulePeriodic(config.Scheduler, span, func() {
			mu.Lock()
			window := current
			current = nil
			s.push(ValueNotification(window))
			mu.Unlock()
			s.flush()
		}))
		subscribeInner(src, s, func(n Notification[T]) {
			mu.Lock()
			switch n.Kind() {
			case KindNext:
				current = append(current, n.Value())
			case KindError:
				current = nil
				s.push(ErrorNotification[[]T](n.Err()))
			case KindCompleted:
				if len(current) > 0 {
					s.push(ValueNotification(current))
				}
				current = nil
				s.push(CompletionNotification[[]T]())
			}
			mu.Unlock()
			s.flush()
		})
	})
}

// ============================================================================
// Throttle / Sample
// ============================================================================

// Throttle 去抖：每个值都重置计时器，计时器在 due 内没有新值时才发射最近的值
// 源完成时立即发射尚未发出的值
func Throttle[T any](src Observable[T], due time.Duration, options ...Option) Observable[T] {
	config := applyOptions(options)
	return NewObservable(func(s *Subscriber[T]) {
		var (
			mu      sync.Mutex
			pending T
			has     bool
			gen     uint64
			timer   Subscription
		)
		s.Add(NewSubscription(func() {
			mu.Lock()
			t := timer
			timer = nil
			mu.Unlock()
			if t != nil {
				t.Dispose()
			}
		}))
		subscribeInner(src, s, func(n Notification[T]) {
			mu.Lock()
			if timer != nil {
				timer.Dispose()
				timer = nil
			}
			switch n.Kind() {
			case KindNext:
				pending, has = n.Value(), true
				gen++
				g := gen
				mu.Unlock()
				t := config.Scheduler.ScheduleWithDelay(func() {
					mu.Lock()
					if g == gen && has {
						has = false
						s.push(ValueNotification(pending))
					}
					mu.Unlock()
					s.flush()
				}, due)
				mu.Lock()
				if g == gen {
					timer = t
				}
			case KindError:
				has = false
				s.push(n)
			case KindCompleted:
				if has {
					has = false
					s.push(ValueNotification(pending))
				}
				s.push(n)
			}
			mu.Unlock()
			s.flush()
		})
	})
}

// Debounce 与 Throttle 相同
func Debounce[T any](src Observable[T], due time.Duration, options ...Option) Observable[T] {
	return Throttle(src, due, options...)
}

// Sample 每隔 interval 发射一次自上次采样以来最新的值，没有新值时不发射
// 源完成时发射尚未被采样的最新值
func Sample[T any](src Observable[T], interval time.Duration, options ...Option) Observable[T] {
	config := applyOptions(options)
	return NewObservable(func(s *Subscriber[T]) {
		if interval <= 0 {
			s.OnError(errors.Wrapf(ErrArgumentOutOfRange, "sample interval=%v", interval))
			return
		}
		var (
			mu     sync.Mutex
			latest T
			has    bool
		)
		s.Add(SchedulePeriodic(config.Scheduler, interval, func() {
			mu.Lock()
			if has {
				has = false
				s.push(ValueNotification(latest))
			}
			mu.Unlock()
			s.flush()
		}))
		subscribeInner(src, s, func(n Notification[T]) {
			mu.Lock()
			switch n.Kind() {
			case KindNext:
				latest, has = n.Value(), true
			case KindError:
				has = false
				s.push(n)
			case KindCompleted:
				if has {
					has = false
					s.push(ValueNotification(latest))
				}
				s.push(n)
			}
			mu.Unlock()
			s.flush()
		})
	})
}

// ============================================================================
// Timeout / Delay
// ============================================================================

// Timeout 自订阅起以及每个值之后，若 timeout 内没有新通知则以 *TimeoutError 终止
func Timeout[T any](src Observable[T], timeout time.Duration, options ...Option) Observable[T] {
	config := applyOptions(options)
	return NewObservable(func(s *Subscriber[T]) {
		var (
			mu   sync.Mutex
			gen  uint64
			done bool
		)
		timer := NewSerialSubscription()
		s.Add(timer)
		arm := func(g uint64) {
			timer.Set(config.Scheduler.ScheduleWithDelay(func() {
				mu.Lock()
				fire := g == gen && !done
				if fire {
					done = true
					s.push(ErrorNotification[T](errors.WithStack(&TimeoutError{Duration: timeout})))
				}
				mu.Unlock()
				s.flush()
			}, timeout))
		}
		arm(0)
		subscribeInner(src, s, func(n Notification[T]) {
			mu.Lock()
			if done {
				mu.Unlock()
				return
			}
			gen++
			g := gen
			if n.IsTerminal() {
				done = true
			}
			s.push(n)
			mu.Unlock()
			if n.IsTerminal() {
				timer.Dispose()
			} else {
				arm(g)
			}
			s.flush()
		})
	})
}

// Delay 把每个通知（包括终止通知）推迟 delay 投递，保持相对顺序
func Delay[T any](src Observable[T], delay time.Duration, options ...Option) Observable[T] {
	config := applyOptions(options)
	return NewObservable(func(s *Subscriber[T]) {
		var (
			mu    sync.Mutex
			queue []Notification[T]
		)
		subscribeInner(src, s, func(n Notification[T]) {
			mu.Lock()
			queue = append(queue, n)
			mu.Unlock()
			// 任务数与通知数相同，每个任务投递队首，执行后从订阅资源中移除
			slot := NewSerialSubscription()
			s.Add(slot)
			slot.Set(config.Scheduler.ScheduleWithDelay(func() {
				mu.Lock()
				if len(queue) > 0 {
					head := queue[0]
					queue = queue[1:]
					s.push(head)
				}
				mu.Unlock()
				s.resources.Remove(slot)
				s.flush()
			}, delay))
		})
	})
}

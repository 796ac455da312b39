// Simple tests for rx core contracts
// 核心契约测试：订阅、通知语法、工厂函数
package rx

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// 测试辅助
// ============================================================================

// recorder 记录观察到的全部通知
type recorder[T any] struct {
	mu     sync.Mutex
	events []Notification[T]
	done   chan struct{}
	once   sync.Once
}

func newRecorder[T any]() *recorder[T] {
	return &recorder[T]{done: make(chan struct{})}
}

func (r *recorder[T]) observer() Observer[T] {
	return func(n Notification[T]) {
		r.mu.Lock()
		r.events = append(r.events, n)
		r.mu.Unlock()
		if n.IsTerminal() {
			r.once.Do(func() { close(r.done) })
		}
	}
}

func (r *recorder[T]) values() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	var values []T
	for _, n := range r.events {
		if n.Kind() == KindNext {
			values = append(values, n.Value())
		}
	}
	return values
}

func (r *recorder[T]) lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	lines := make([]string, 0, len(r.events))
	for _, n := range r.events {
		lines = append(lines, n.String())
	}
	return lines
}

func (r *recorder[T]) err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range r.events {
		if n.Kind() == KindError {
			return n.Err()
		}
	}
	return nil
}

func (r *recorder[T]) completed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events) > 0 && r.events[len(r.events)-1].Kind() == KindCompleted
}

func (r *recorder[T]) terminals() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.IsTerminal() {
			n++
		}
	}
	return n
}

func (r *recorder[T]) wait(t *testing.T) {
	t.Helper()
	select {
	case <-r.done:
	case <-time.After(5 * time.Second):
		t.Fatal("sequence did not terminate")
	}
}

// record 订阅 src 并返回记录器
func record[T any](src Observable[T]) *recorder[T] {
	r := newRecorder[T]()
	src.Subscribe(r.observer())
	return r
}

func assertLines(t *testing.T, want []string, got []string) {
	t.Helper()
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("notifications mismatch (-want +got):\n%s", diff)
	}
}

// ============================================================================
// 订阅
// ============================================================================

func TestSubscriptions(t *testing.T) {
	t.Run("释放动作只执行一次", func(t *testing.T) {
		var calls atomic.Int32
		sub := NewSubscription(func() { calls.Add(1) })
		assert.False(t, sub.IsDisposed())
		sub.Dispose()
		sub.Dispose()
		assert.True(t, sub.IsDisposed())
		assert.Equal(t, int32(1), calls.Load())
		assert.True(t, Disposed().IsDisposed())
	})

	t.Run("组合订阅", func(t *testing.T) {
		var order []int
		c := NewCompositeSubscription(NewSubscription(func() { order = append(order, 1) }))
		c.Add(NewSubscription(func() { order = append(order, 2) }))
		removed := NewSubscription(func() { order = append(order, 3) })
		c.Add(removed)
		c.Remove(removed)
		assert.Equal(t, []int{3}, order)

		c.Dispose()
		assert.Equal(t, []int{3, 1, 2}, order)

		late := NewSubscription(nil)
		c.Add(late)
		assert.True(t, late.IsDisposed(), "已释放的组合订阅立即释放新资源")
	})

	t.Run("串行订阅替换时释放旧资源", func(t *testing.T) {
		serial := NewSerialSubscription()
		first := NewSubscription(nil)
		second := NewSubscription(nil)
		serial.Set(first)
		serial.Set(second)
		assert.True(t, first.IsDisposed())
		assert.False(t, second.IsDisposed())

		serial.Dispose()
		assert.True(t, second.IsDisposed())
		third := NewSubscription(nil)
		serial.Set(third)
		assert.True(t, third.IsDisposed())
	})
}

// ============================================================================
// 通知语法
// ============================================================================

func TestSequenceGrammar(t *testing.T) {
	t.Run("终止之后的通知被丢弃", func(t *testing.T) {
		src := NewObservable(func(s *Subscriber[int]) {
			s.OnNext(1)
			s.OnCompleted()
			s.OnNext(2)
			s.OnError(errors.New("late"))
			s.OnCompleted()
		})
		r := record(src)
		assertLines(t, []string{"OnNext(1)", "OnCompleted()"}, r.lines())
	})

	t.Run("释放之后不再投递", func(t *testing.T) {
		var producer *Subscriber[int]
		src := NewObservable(func(s *Subscriber[int]) { producer = s })
		r := newRecorder[int]()
		sub := src.Subscribe(r.observer())
		producer.OnNext(1)
		sub.Dispose()
		producer.OnNext(2)
		producer.OnCompleted()
		assert.Equal(t, []int{1}, r.values())
		assert.True(t, producer.IsClosed())
	})

	t.Run("重入的通知按顺序排队投递", func(t *testing.T) {
		subject := NewSubject[int]()
		var got []int
		subject.Subscribe(NewObserver(func(v int) {
			got = append(got, v)
			if v < 3 {
				subject.OnNext(v + 10)
			}
		}, nil, nil))
		subject.OnNext(1)
		assert.Equal(t, []int{1, 11}, got)
	})

	t.Run("终止后释放关联资源", func(t *testing.T) {
		resource := NewSubscription(nil)
		src := NewObservable(func(s *Subscriber[int]) {
			s.Add(resource)
			s.OnCompleted()
		})
		record(src)
		assert.True(t, resource.IsDisposed())
	})

	t.Run("观察者 panic 原样传播", func(t *testing.T) {
		src := Select(Just(1), func(v int) int { return v })
		assert.Panics(t, func() {
			src.Subscribe(NewObserver(func(int) { panic("observer") }, nil, nil))
		})
	})

	t.Run("通知的字符串形式", func(t *testing.T) {
		assert.Equal(t, "OnNext(42)", ValueNotification(42).String())
		assert.Equal(t, "OnError(boom)", ErrorNotification[int](errors.New("boom")).String())
		assert.Equal(t, "OnCompleted()", CompletionNotification[int]().String())
		assert.Equal(t, "Completed", KindCompleted.String())
	})
}

// ============================================================================
// 工厂函数
// ============================================================================

func TestFactories(t *testing.T) {
	t.Run("Return/Just/Range", func(t *testing.T) {
		assertLines(t, []string{"OnNext(7)", "OnCompleted()"}, record(Return(7)).lines())
		assert.Equal(t, []string{"a", "b"}, record(Just("a", "b")).values())
		assert.Equal(t, []int{5, 6, 7}, record(Range(5, 3)).values())
		assert.True(t, record(Range(0, 0)).completed())
	})

	t.Run("Empty/Never/Throw", func(t *testing.T) {
		assertLines(t, []string{"OnCompleted()"}, record(Empty[int]()).lines())
		assert.Empty(t, record(Never[int]()).lines())
		boom := errors.New("boom")
		assert.ErrorIs(t, record(Throw[int](boom)).err(), boom)
	})

	t.Run("Take 提前终止同步源", func(t *testing.T) {
		var produced int
		src := NewObservable(func(s *Subscriber[int]) {
			for i := 0; !s.IsClosed(); i++ {
				produced++
				s.OnNext(i)
			}
		})
		r := record(Take(src, 3))
		assert.Equal(t, []int{0, 1, 2}, r.values())
		assert.True(t, r.completed())
		assert.Equal(t, 3, produced)
	})

	t.Run("Create 在释放时执行清理", func(t *testing.T) {
		var cleaned atomic.Bool
		src := Create(func(sink Sink[string]) func() {
			sink.OnNext("hello")
			return func() { cleaned.Store(true) }
		})
		sub := src.Subscribe(newRecorder[string]().observer())
		assert.False(t, cleaned.Load())
		sub.Dispose()
		assert.True(t, cleaned.Load())
	})

	t.Run("Create 回调 panic 转为错误", func(t *testing.T) {
		src := Create(func(Sink[int]) func() { panic("emitter") })
		var cpe *CallbackPanicError
		require.ErrorAs(t, record(src).err(), &cpe)
		assert.Equal(t, "emitter", cpe.Value)
	})

	t.Run("Defer 每次订阅重新创建", func(t *testing.T) {
		calls := 0
		src := Defer(func() Observable[int] {
			calls++
			return Return(calls)
		})
		assert.Equal(t, []int{1}, record(src).values())
		assert.Equal(t, []int{2}, record(src).values())
	})

	t.Run("FromChannel", func(t *testing.T) {
		ch := make(chan int, 3)
		ch <- 1
		ch <- 2
		ch <- 3
		close(ch)
		r := record(FromChannel(ch))
		r.wait(t)
		assert.Equal(t, []int{1, 2, 3}, r.values())
	})

	t.Run("FromSeq", func(t *testing.T) {
		seq := func(yield func(string) bool) {
			for _, s := range []string{"x", "y", "z"} {
				if !yield(s) {
					return
				}
			}
		}
		assert.Equal(t, []string{"x", "y"}, record(Take(FromSeq(seq), 2)).values())
	})

	t.Run("FromEvent 注册与注销", func(t *testing.T) {
		var (
			mu       sync.Mutex
			handlers []func(int)
		)
		fire := func(v int) {
			mu.Lock()
			hs := slices.Clone(handlers)
			mu.Unlock()
			for _, h := range hs {
				h(v)
			}
		}
		src := FromEvent(func(h func(int)) func() {
			mu.Lock()
			handlers = append(handlers, h)
			mu.Unlock()
			return func() {
				mu.Lock()
				handlers = nil
				mu.Unlock()
			}
		})
		r := newRecorder[int]()
		sub := src.Subscribe(r.observer())
		fire(1)
		fire(2)
		sub.Dispose()
		fire(3)
		assert.Equal(t, []int{1, 2}, r.values())
	})

	t.Run("Start 结果缓存给所有订阅者", func(t *testing.T) {
		var runs atomic.Int32
		src := Start(func() (string, error) {
			runs.Add(1)
			return "done", nil
		}, WithScheduler(ImmediateScheduler))
		assert.Equal(t, []string{"done"}, record(src).values())
		assert.Equal(t, []string{"done"}, record(src).values())
		assert.Equal(t, int32(1), runs.Load())
	})

	t.Run("Interval 与 Timer 使用虚拟时钟", func(t *testing.T) {
		sched := NewTestScheduler()
		r := record(Take(Interval(time.Second, WithScheduler(sched)), 3))
		sched.AdvanceBy(2 * time.Second)
		assert.Equal(t, []int64{0, 1}, r.values())
		sched.AdvanceBy(time.Second)
		assert.Equal(t, []int64{0, 1, 2}, r.values())
		assert.True(t, r.completed())

		timer := record(Timer(5*time.Second, WithScheduler(sched)))
		sched.AdvanceBy(4 * time.Second)
		assert.Empty(t, timer.values())
		sched.AdvanceBy(time.Second)
		assertLines(t, []string{"OnNext(0)", "OnCompleted()"}, timer.lines())
	})
}

// ============================================================================
// 调度相关
// ============================================================================

func TestSubscribeOnObserveOn(t *testing.T) {
	t.Run("SubscribeOn 在调度器上订阅", func(t *testing.T) {
		sched := NewTestScheduler()
		r := record(SubscribeOn(Just(1, 2), sched))
		assert.Empty(t, r.lines())
		sched.AdvanceBy(0)
		assert.Equal(t, []int{1, 2}, r.values())
	})

	t.Run("ObserveOn 保持顺序", func(t *testing.T) {
		r := record(ObserveOn(Range(0, 100), NewThreadScheduler))
		r.wait(t)
		want := make([]int, 100)
		for i := range want {
			want[i] = i
		}
		assert.Equal(t, want, r.values())
	})

	t.Run("SubscribeWithCallbacks 未处理的错误不会 panic", func(t *testing.T) {
		assert.NotPanics(t, func() {
			SubscribeWithCallbacks(Throw[int](errors.New("ignored")), nil, nil, nil)
		})
	})

	t.Run("SubscribeSink 推送到 Subject", func(t *testing.T) {
		subject := NewSubject[int]()
		r := record[int](subject)
		SubscribeSink(Just(1, 2), subject)
		assertLines(t, []string{"OnNext(1)", "OnNext(2)", "OnCompleted()"}, r.lines())
	})

	t.Run("Wait 与 context", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		err := Wait(ctx, Never[int]())
		require.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func ExampleSubscribeWithCallbacks() {
	SubscribeWithCallbacks(Where(Range(1, 6), func(v int) bool { return v%2 == 0 }),
		func(v int) { fmt.Println("value", v) },
		nil,
		func() { fmt.Println("completed") })
	// Output:
	// value 2
	// value 4
	// value 6
	// completed
}

// Subject comprehensive tests for rx
// 全面的 Subject 测试，验证所有 Subject 类型的正确行为
package rx

import (
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Subject 详细测试
// ============================================================================

func TestSubjectComprehensive(t *testing.T) {
	t.Run("基本发射和订阅", func(t *testing.T) {
		subject := NewSubject[int]()
		r := record[int](subject)
		subject.OnNext(1)
		subject.OnNext(2)
		subject.OnNext(3)
		subject.OnCompleted()
		assertLines(t, []string{"OnNext(1)", "OnNext(2)", "OnNext(3)", "OnCompleted()"}, r.lines())
	})

	t.Run("多个订阅者按注册顺序接收", func(t *testing.T) {
		subject := NewSubject[string]()
		var order []string
		subject.Subscribe(NewObserver(func(v string) { order = append(order, "a:"+v) }, nil, nil))
		subject.Subscribe(NewObserver(func(v string) { order = append(order, "b:"+v) }, nil, nil))
		subject.OnNext("x")
		assert.Equal(t, []string{"a:x", "b:x"}, order)
	})

	t.Run("订阅之前的值丢失", func(t *testing.T) {
		subject := NewSubject[int]()
		subject.OnNext(1)
		r := record[int](subject)
		subject.OnNext(2)
		assert.Equal(t, []int{2}, r.values())
	})

	t.Run("释放订阅后不再接收", func(t *testing.T) {
		subject := NewSubject[int]()
		r := newRecorder[int]()
		sub := subject.Subscribe(r.observer())
		subject.OnNext(1)
		sub.Dispose()
		assert.False(t, subject.HasObservers())
		subject.OnNext(2)
		subject.OnError(errors.New("ignored"))
		assertLines(t, []string{"OnNext(1)"}, r.lines())
	})

	t.Run("终止后的通知是空操作", func(t *testing.T) {
		subject := NewSubject[int]()
		r := record[int](subject)
		subject.OnCompleted()
		subject.OnNext(1)
		subject.OnError(errors.New("late"))
		subject.OnCompleted()
		assertLines(t, []string{"OnCompleted()"}, r.lines())
		assert.False(t, subject.HasObservers())
	})

	t.Run("晚到的订阅者立即收到终止通知", func(t *testing.T) {
		subject := NewSubject[int]()
		boom := errors.New("boom")
		subject.OnError(boom)
		r := record[int](subject)
		assert.ErrorIs(t, r.err(), boom)
		assert.Equal(t, 1, r.terminals())
	})

	t.Run("订阅者在投递中释放自己", func(t *testing.T) {
		subject := NewSubject[int]()
		var (
			got []int
			sub Subscription
		)
		sub = subject.Subscribe(NewObserver(func(v int) {
			got = append(got, v)
			sub.Dispose()
		}, nil, nil))
		other := record[int](subject)
		subject.OnNext(1)
		subject.OnNext(2)
		assert.Equal(t, []int{1}, got)
		assert.Equal(t, []int{1, 2}, other.values())
	})

	t.Run("并发发射与订阅", func(t *testing.T) {
		subject := NewSubject[int]()
		r := record[int](subject)
		var wg sync.WaitGroup
		for i := range 8 {
			wg.Add(2)
			go func() {
				defer wg.Done()
				for j := range 100 {
					subject.OnNext(i*100 + j)
				}
			}()
			go func() {
				defer wg.Done()
				sub := subject.Subscribe(NewObserver[int](nil, nil, nil))
				sub.Dispose()
			}()
		}
		wg.Wait()
		subject.OnCompleted()
		assert.Len(t, r.values(), 800)
		assert.True(t, r.completed())
	})

	t.Run("AsObservable 与 AsObserver", func(t *testing.T) {
		subject := NewSubject[int]()
		r := record(subject.AsObservable())
		observer := subject.AsObserver()
		observer.OnNext(5)
		observer.OnCompleted()
		assertLines(t, []string{"OnNext(5)", "OnCompleted()"}, r.lines())
	})
}

// ============================================================================
// ReplaySubject 详细测试
// ============================================================================

func TestReplaySubjectComprehensive(t *testing.T) {
	t.Run("容量为 2 时只重放最后两个值", func(t *testing.T) {
		subject := NewReplaySubject[int](BufferCount(2))
		subject.OnNext(123)
		subject.OnNext(456)
		subject.OnNext(789)
		assert.Equal(t, []int{456, 789}, record[int](subject).values())
	})

	t.Run("按时间窗口淘汰", func(t *testing.T) {
		sched := NewTestScheduler()
		subject := NewReplaySubject[int](BufferWindow(500*time.Millisecond), WithScheduler(sched))
		subject.OnNext(123)
		sched.AdvanceBy(200 * time.Millisecond)
		subject.OnNext(456)
		sched.AdvanceBy(200 * time.Millisecond)
		subject.OnNext(789)
		sched.AdvanceBy(200 * time.Millisecond)
		assert.Equal(t, []int{456, 789}, record[int](subject).values())
	})

	t.Run("同时按数量和时间限制", func(t *testing.T) {
		sched := NewTestScheduler()
		subject := NewReplaySubject[int](BufferCountAndWindow(1, time.Second), WithScheduler(sched))
		subject.OnNext(1)
		subject.OnNext(2)
		assert.Equal(t, []int{2}, record[int](subject).values())
		sched.AdvanceBy(2 * time.Second)
		assert.Empty(t, record[int](subject).values())
	})

	t.Run("不限容量", func(t *testing.T) {
		subject := NewReplaySubject[int](Unbounded())
		for i := range 5 {
			subject.OnNext(i)
		}
		assert.Equal(t, []int{0, 1, 2, 3, 4}, record[int](subject).values())
	})

	t.Run("重放后接收实时值", func(t *testing.T) {
		subject := NewReplaySubject[string](BufferCount(1))
		subject.OnNext("old")
		r := record[string](subject)
		subject.OnNext("live")
		assert.Equal(t, []string{"old", "live"}, r.values())
	})

	t.Run("终止后重放缓冲和终止通知", func(t *testing.T) {
		subject := NewReplaySubject[int](BufferCount(2))
		subject.OnNext(1)
		subject.OnNext(2)
		subject.OnError(errors.New("boom"))
		subject.OnNext(3)
		assertLines(t, []string{"OnNext(1)", "OnNext(2)", "OnError(boom)"}, record[int](subject).lines())
	})
}

// ============================================================================
// BehaviorSubject 详细测试
// ============================================================================

func TestBehaviorSubjectComprehensive(t *testing.T) {
	t.Run("订阅立即收到当前值", func(t *testing.T) {
		subject := NewBehaviorSubject(-1.0)
		first := record[float64](subject)
		assert.Equal(t, []float64{-1.0}, first.values())

		subject.OnNext(0.99)
		second := record[float64](subject)
		assert.Equal(t, []float64{0.99}, second.values())
		assert.Equal(t, []float64{-1.0, 0.99}, first.values())
	})

	t.Run("完成后值保持不变", func(t *testing.T) {
		subject := NewBehaviorSubject(-1.0)
		subject.OnNext(0.99)
		subject.OnCompleted()
		subject.OnNext(5)

		value, err := subject.Value()
		require.NoError(t, err)
		assert.Equal(t, 0.99, value)
		assertLines(t, []string{"OnNext(0.99)", "OnCompleted()"}, record[float64](subject).lines())
	})

	t.Run("出错后有值时仍可读取", func(t *testing.T) {
		subject := NewBehaviorSubject(1)
		subject.OnNext(2)
		subject.OnError(errors.New("boom"))

		value, err := subject.Value()
		require.NoError(t, err)
		assert.Equal(t, 2, value)
		assertLines(t, []string{"OnNext(2)", "OnError(boom)"}, record[int](subject).lines())
	})

	t.Run("出错前没有任何值时读取失败", func(t *testing.T) {
		subject := NewBehaviorSubject(1)
		subject.OnError(errors.New("boom"))

		_, err := subject.Value()
		require.ErrorIs(t, err, ErrSubjectErrored)
		assert.Contains(t, err.Error(), "boom")
	})

	t.Run("出错后订阅先收到初始值", func(t *testing.T) {
		subject := NewBehaviorSubject(-1.0)
		subject.OnError(errors.New("boom"))
		assertLines(t, []string{"OnNext(-1)", "OnError(boom)"}, record[float64](subject).lines())
	})
}

// ============================================================================
// AsyncSubject 详细测试
// ============================================================================

func TestAsyncSubjectComprehensive(t *testing.T) {
	t.Run("只在完成时投递最后一个值", func(t *testing.T) {
		subject := NewAsyncSubject[float64]()
		early := record[float64](subject)
		subject.OnNext(1.0)
		subject.OnNext(2.0)
		assert.Empty(t, early.lines())

		subject.OnCompleted()
		subject.OnNext(3.0)
		late := record[float64](subject)

		want := []string{"OnNext(2)", "OnCompleted()"}
		assertLines(t, want, early.lines())
		assertLines(t, want, late.lines())
	})

	t.Run("出错时丢弃缓存的值", func(t *testing.T) {
		subject := NewAsyncSubject[int]()
		early := record[int](subject)
		subject.OnNext(1)
		subject.OnError(errors.New("boom"))

		assertLines(t, []string{"OnError(boom)"}, early.lines())
		assertLines(t, []string{"OnError(boom)"}, record[int](subject).lines())
	})

	t.Run("没有值时只完成", func(t *testing.T) {
		subject := NewAsyncSubject[int]()
		subject.OnCompleted()
		assertLines(t, []string{"OnCompleted()"}, record[int](subject).lines())
	})
}

// ============================================================================
// Connectable 详细测试
// ============================================================================

func TestConnectable(t *testing.T) {
	t.Run("Connect 之前不发射", func(t *testing.T) {
		var subscriptions int
		src := Defer(func() Observable[int] {
			subscriptions++
			return Just(1, 2)
		})
		published := Publish(src)
		a := record[int](published)
		b := record[int](published)
		assert.Empty(t, a.lines())
		assert.False(t, published.IsConnected())

		published.Connect()
		assert.Equal(t, 1, subscriptions)
		assert.Equal(t, []int{1, 2}, a.values())
		assert.Equal(t, []int{1, 2}, b.values())
	})

	t.Run("释放连接会断开源", func(t *testing.T) {
		source := NewSubject[int]()
		published := Publish[int](source)
		r := record[int](published)
		conn := published.Connect()
		assert.Same(t, conn, published.Connect())
		source.OnNext(1)
		conn.Dispose()
		assert.False(t, published.IsConnected())
		source.OnNext(2)
		assert.Equal(t, []int{1}, r.values())
	})

	t.Run("RefCount 随观察者数量连接和断开", func(t *testing.T) {
		source := NewSubject[int]()
		shared := Publish[int](source).RefCount()
		assert.False(t, source.HasObservers())

		a := newRecorder[int]()
		subA := shared.Subscribe(a.observer())
		assert.True(t, source.HasObservers())
		b := newRecorder[int]()
		subB := shared.Subscribe(b.observer())

		source.OnNext(1)
		subA.Dispose()
		assert.True(t, source.HasObservers())
		source.OnNext(2)
		subB.Dispose()
		assert.False(t, source.HasObservers())

		assert.Equal(t, []int{1}, a.values())
		assert.Equal(t, []int{1, 2}, b.values())
	})

	t.Run("AutoConnect 在第 n 个观察者时连接", func(t *testing.T) {
		auto := Publish(Just(1, 2, 3)).AutoConnect(2)
		a := record(auto)
		assert.Empty(t, a.lines())
		b := record(auto)
		assert.Equal(t, []int{1, 2, 3}, a.values())
		assert.Equal(t, []int{1, 2, 3}, b.values())
	})

	t.Run("PublishReplay 重放给晚到的观察者", func(t *testing.T) {
		replayed := PublishReplay(Just(1, 2, 3), BufferCount(2))
		replayed.Connect()
		assert.Equal(t, []int{2, 3}, record[int](replayed).values())
	})

	t.Run("PublishLast 只发射最后一个值", func(t *testing.T) {
		last := PublishLast(Just(1, 2, 3))
		r := record[int](last)
		last.Connect()
		assert.Equal(t, []int{3}, r.values())
	})

	t.Run("Share", func(t *testing.T) {
		source := NewSubject[string]()
		shared := Share[string](source)
		a := record(shared)
		b := record(shared)
		source.OnNext("x")
		source.OnCompleted()
		assert.Equal(t, []string{"x"}, a.values())
		assert.Equal(t, []string{"x"}, b.values())
	})
}

// Error handling operator tests for rx
// 错误恢复操作符测试
package rx

import (
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// failingSource 前 failures 次订阅以错误终止，之后发射 value；subscriptions 记录订阅次数
func failingSource[T any](failures int, value T, subscriptions *int) Observable[T] {
	return Defer(func() Observable[T] {
		*subscriptions++
		if *subscriptions <= failures {
			return Throw[T](errors.Errorf("attempt %d failed", *subscriptions))
		}
		return Return(value)
	})
}

func constantPolicy(interval time.Duration, retries uint64) func() backoff.BackOff {
	return func() backoff.BackOff {
		return backoff.WithMaxRetries(backoff.NewConstantBackOff(interval), retries)
	}
}

func TestCatch(t *testing.T) {
	boom := errors.New("boom")
	failing := Concat(Just(1, 2), Throw[int](boom))

	t.Run("切换到后备序列", func(t *testing.T) {
		var caught error
		r := record(Catch(failing, func(err error) Observable[int] {
			caught = err
			return Just(-1)
		}))
		assertLines(t, []string{"OnNext(1)", "OnNext(2)", "OnNext(-1)", "OnCompleted()"}, r.lines())
		assert.Equal(t, boom, caught)
	})

	t.Run("没有错误时不订阅后备序列", func(t *testing.T) {
		called := false
		r := record(Catch(Just(1), func(error) Observable[int] {
			called = true
			return Empty[int]()
		}))
		assert.Equal(t, []int{1}, r.values())
		assert.False(t, called)
	})

	t.Run("后备序列的错误向下游传播", func(t *testing.T) {
		second := errors.New("second")
		assert.ErrorIs(t, record(CatchWith(failing, Throw[int](second))).err(), second)
	})

	t.Run("handler panic", func(t *testing.T) {
		r := record(Catch(failing, func(error) Observable[int] { panic("handler") }))
		var cpe *CallbackPanicError
		require.ErrorAs(t, r.err(), &cpe)
		assert.Equal(t, "Catch", cpe.Operator)
	})

	t.Run("CatchAs 按类型匹配", func(t *testing.T) {
		timeout := Throw[int](errors.WithStack(&TimeoutError{Duration: time.Second}))
		r := record(CatchAs(timeout, func(e *TimeoutError) Observable[int] { return Return(int(e.Duration.Seconds())) }))
		assert.Equal(t, []int{1}, r.values())

		other := record(CatchAs(failing, func(*TimeoutError) Observable[int] { return Return(0) }))
		assert.ErrorIs(t, other.err(), boom)
	})

	t.Run("OnErrorReturn", func(t *testing.T) {
		assert.Equal(t, []int{1, 2, 0}, record(OnErrorReturn(failing, 0)).values())
	})

	t.Run("OnErrorResumeNext 忽略错误", func(t *testing.T) {
		r := record(OnErrorResumeNext(failing, Just(3), Throw[int](boom), Just(4)))
		assertLines(t, []string{"OnNext(1)", "OnNext(2)", "OnNext(3)", "OnNext(4)", "OnCompleted()"}, r.lines())
	})
}

func TestRetry(t *testing.T) {
	t.Run("第 4 次订阅成功", func(t *testing.T) {
		subscriptions := 0
		r := record(Retry(failingSource(3, "ok", &subscriptions), 4))
		assertLines(t, []string{"OnNext(ok)", "OnCompleted()"}, r.lines())
		assert.Equal(t, 4, subscriptions)
	})

	t.Run("次数用尽后传播最后一次的错误", func(t *testing.T) {
		subscriptions := 0
		r := record(Retry(failingSource(3, "ok", &subscriptions), 2))
		assert.EqualError(t, r.err(), "attempt 2 failed")
		assert.Equal(t, 2, subscriptions)
	})

	t.Run("attempts 小于 1 时只订阅一次", func(t *testing.T) {
		subscriptions := 0
		record(Retry(failingSource(3, "ok", &subscriptions), 0))
		assert.Equal(t, 1, subscriptions)
	})

	t.Run("RetryForever", func(t *testing.T) {
		subscriptions := 0
		r := record(RetryForever(failingSource(1000, 7, &subscriptions)))
		assert.Equal(t, []int{7}, r.values())
		assert.Equal(t, 1001, subscriptions)
	})

	t.Run("按退避策略重试", func(t *testing.T) {
		sched := NewTestScheduler()
		subscriptions := 0
		policy := constantPolicy(time.Second, 5)
		r := record(RetryWithBackoff(failingSource(2, "recovered", &subscriptions), policy, WithScheduler(sched)))
		assert.Equal(t, 1, subscriptions)
		sched.AdvanceBy(time.Second)
		assert.Equal(t, 2, subscriptions)
		assert.False(t, r.completed())
		sched.AdvanceBy(time.Second)
		assertLines(t, []string{"OnNext(recovered)", "OnCompleted()"}, r.lines())
		assert.Equal(t, 3, subscriptions)
	})

	t.Run("退避策略停止时传播错误", func(t *testing.T) {
		sched := NewTestScheduler()
		subscriptions := 0
		policy := constantPolicy(time.Second, 1)
		r := record(RetryWithBackoff(failingSource(5, 0, &subscriptions), policy, WithScheduler(sched)))
		sched.Flush()
		assert.EqualError(t, r.err(), "attempt 2 failed")
		assert.Equal(t, 2, subscriptions)
	})

	t.Run("每个订阅有独立的重试次数", func(t *testing.T) {
		sched := NewTestScheduler()
		policy := constantPolicy(time.Second, 2)
		attemptsA, attemptsB := 0, 0
		a := record(RetryWithBackoff(failingSource(10, 0, &attemptsA), policy, WithScheduler(sched)))
		sched.AdvanceBy(time.Second)
		assert.Equal(t, 2, attemptsA)

		shared := RetryWithBackoff(failingSource(10, 0, &attemptsB), policy, WithScheduler(sched))
		b1 := record(shared)
		sched.AdvanceBy(time.Second)
		b2 := record(shared)
		sched.Flush()

		assert.Equal(t, 3, attemptsA, "一次订阅加两次重试")
		assert.EqualError(t, a.err(), "attempt 3 failed")
		assert.Error(t, b1.err())
		assert.Error(t, b2.err())
		assert.Equal(t, 6, attemptsB)
	})

	t.Run("释放订阅取消等待中的重试", func(t *testing.T) {
		sched := NewTestScheduler()
		subscriptions := 0
		policy := func() backoff.BackOff { return backoff.NewConstantBackOff(time.Second) }
		sub := RetryWithBackoff(failingSource(5, 0, &subscriptions), policy, WithScheduler(sched)).
			Subscribe(func(Notification[int]) {})
		sub.Dispose()
		sched.AdvanceBy(time.Minute)
		assert.Equal(t, 1, subscriptions)
	})
}

func TestFinally(t *testing.T) {
	t.Run("完成后执行一次", func(t *testing.T) {
		calls := 0
		r := record(Finally(Just(1), func() { calls++ }))
		assert.True(t, r.completed())
		assert.Equal(t, 1, calls)
	})

	t.Run("出错后执行", func(t *testing.T) {
		calls := 0
		record(Finally(Throw[int](errors.New("x")), func() { calls++ }))
		assert.Equal(t, 1, calls)
	})

	t.Run("释放时执行", func(t *testing.T) {
		calls := 0
		sub := Finally(Never[int](), func() { calls++ }).Subscribe(func(Notification[int]) {})
		assert.Equal(t, 0, calls)
		sub.Dispose()
		sub.Dispose()
		assert.Equal(t, 1, calls)
	})
}

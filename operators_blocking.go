// Blocking operators for rx
// 阻塞桥接：把序列转换为通道或同步结果，全部接受 context.Context
package rx

import (
	"context"
	"sync"
)

// ============================================================================
// 阻塞操作符实现
// ============================================================================

// ToChannel 把序列的通知写入通道，终止通知之后通道关闭
// ctx 取消时释放订阅并关闭通道；通道容量取自 WithBufferSize
func ToChannel[T any](ctx context.Context, src Observable[T], options ...Option) <-chan Notification[T] {
	config := applyOptions(options)
	out := make(chan Notification[T], max(config.BufferSize, 0))
	stop := make(chan struct{})

	var (
		mu     sync.Mutex
		closed bool
	)
	go func() {
		sub := src.Subscribe(func(n Notification[T]) {
			mu.Lock()
			defer mu.Unlock()
			if closed {
				return
			}
			select {
			case out <- n:
			case <-ctx.Done():
				return
			}
			if n.IsTerminal() {
				closed = true
				close(out)
				close(stop)
			}
		})

		select {
		case <-ctx.Done():
		case <-stop:
		}
		sub.Dispose()

		mu.Lock()
		if !closed {
			closed = true
			close(out)
		}
		mu.Unlock()
	}()
	return out
}

// run 订阅并阻塞到序列终止或 ctx 取消
func run[T any](ctx context.Context, src Observable[T], onNext func(T)) error {
	done := make(chan error, 1)
	sub := src.Subscribe(NewObserver(onNext,
		func(err error) { done <- err },
		func() { done <- nil }))
	defer sub.Dispose()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait 阻塞到序列终止，返回序列的错误
func Wait[T any](ctx context.Context, src Observable[T]) error {
	return run(ctx, src, nil)
}

// BlockingForEach 对每个值执行 action 并阻塞到序列终止
func BlockingForEach[T any](ctx context.Context, src Observable[T], action func(T)) error {
	return run(ctx, src, action)
}

// BlockingToSlice 收集所有值
func BlockingToSlice[T any](ctx context.Context, src Observable[T]) ([]T, error) {
	var (
		mu     sync.Mutex
		values []T
	)
	err := run(ctx, src, func(v T) {
		mu.Lock()
		values = append(values, v)
		mu.Unlock()
	})
	if err != nil {
		return nil, err
	}
	mu.Lock()
	defer mu.Unlock()
	return values, nil
}

// BlockingFirst 第一个值，空序列返回 ErrNoElements
func BlockingFirst[T any](ctx context.Context, src Observable[T]) (T, error) {
	return blockingSingle(ctx, First(src))
}

// BlockingLast 最后一个值，空序列返回 ErrNoElements
func BlockingLast[T any](ctx context.Context, src Observable[T]) (T, error) {
	return blockingSingle(ctx, Last(src))
}

func blockingSingle[T any](ctx context.Context, src Observable[T]) (T, error) {
	var (
		mu    sync.Mutex
		value T
	)
	err := run(ctx, src, func(v T) {
		mu.Lock()
		value = v
		mu.Unlock()
	})
	if err != nil {
		var zero T
		return zero, err
	}
	mu.Lock()
	defer mu.Unlock()
	return value, nil
}

// Side effect operators for rx
// 副作用操作符：DoOnNext、DoOnError、DoOnCompleted、Tap、Log 等
package rx

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// ============================================================================
// 副作用操作符实现
// ============================================================================

// DoOnEach 对每个通知执行 action 后再转发；action panic 转为错误
func DoOnEach[T any](src Observable[T], action func(Notification[T])) Observable[T] {
	return NewObservable(func(s *Subscriber[T]) {
		subscribeInner(src, s, func(n Notification[T]) {
			if err := guardDo("Do", func() { action(n) }); err != nil {
				s.OnError(err)
				return
			}
			s.Emit(n)
		})
	})
}

// Tap 使用回调执行副作用，nil 回调跳过
func Tap[T any](src Observable[T], onNext func(T), onError func(error), onCompleted func()) Observable[T] {
	return DoOnEach(src, NewObserver(onNext, onError, onCompleted))
}

// DoOnNext 在每个值发射前执行副作用操作
func DoOnNext[T any](src Observable[T], action func(T)) Observable[T] {
	return Tap(src, action, nil, nil)
}

// DoOnError 在发生错误时执行副作用操作
func DoOnError[T any](src Observable[T], action func(error)) Observable[T] {
	return Tap(src, nil, action, nil)
}

// DoOnCompleted 在完成时执行副作用操作
func DoOnCompleted[T any](src Observable[T], action func()) Observable[T] {
	return Tap(src, nil, nil, action)
}

// DoOnTerminate 在错误或完成时执行副作用操作
func DoOnTerminate[T any](src Observable[T], action func()) Observable[T] {
	return DoOnEach(src, func(n Notification[T]) {
		if n.IsTerminal() {
			action()
		}
	})
}

// DoOnSubscribe 在订阅时执行副作用操作
func DoOnSubscribe[T any](src Observable[T], action func()) Observable[T] {
	return NewObservable(func(s *Subscriber[T]) {
		if err := guardDo("DoOnSubscribe", action); err != nil {
			s.OnError(err)
			return
		}
		subscribeInner(src, s, ObserverOf[T](s))
	})
}

// DoOnDispose 在下游主动释放订阅时执行副作用操作，正常终止时不执行
func DoOnDispose[T any](src Observable[T], action func()) Observable[T] {
	return NewObservable(func(s *Subscriber[T]) {
		var terminated atomic.Bool
		s.Add(NewSubscription(func() {
			if terminated.Load() {
				return
			}
			if err := guardDo("DoOnDispose", action); err != nil {
				Logger().Error("rx: dispose action failed", errAttr(err))
			}
		}))
		subscribeInner(src, s, func(n Notification[T]) {
			if n.IsTerminal() {
				terminated.Store(true)
			}
			s.Emit(n)
		})
	})
}

// Log 以 name 记录每个通知，级别为 DEBUG，错误为 WARN
func Log[T any](src Observable[T], name string, options ...Option) Observable[T] {
	config := applyOptions(options)
	logger := config.Logger.With(slog.String("observable", name))
	return DoOnEach(src, func(n Notification[T]) {
		switch n.Kind() {
		case KindNext:
			logger.Debug("rx: next", slog.Any("value", n.Value()))
		case KindError:
			logger.Warn("rx: error", errAttr(n.Err()))
		case KindCompleted:
			logger.Debug("rx: completed")
		}
	})
}

// LogContext 与 Log 相同，但日志携带 ctx
func LogContext[T any](ctx context.Context, src Observable[T], name string, options ...Option) Observable[T] {
	config := applyOptions(options)
	logger := config.Logger.With(slog.String("observable", name))
	return DoOnEach(src, func(n Notification[T]) {
		level := slog.LevelDebug
		if n.Kind() == KindError {
			level = slog.LevelWarn
		}
		logger.Log(ctx, level, "rx: "+n.String())
	})
}

// Notification and Observer for rx
// 通知（Next/Error/Completed 的标签联合）与观察者
package rx

import "fmt"

// ============================================================================
// Notification
// ============================================================================

// Kind 通知类型
type Kind uint8

const (
	// KindNext 数据
	KindNext Kind = iota
	// KindError 错误终止
	KindError
	// KindCompleted 正常完成
	KindCompleted
)

// String 返回类型名称
func (k Kind) String() string {
	switch k {
	case KindNext:
		return "Next"
	case KindError:
		return "Error"
	case KindCompleted:
		return "Completed"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Notification 不可变的通知值
type Notification[T any] struct {
	kind  Kind
	value T
	err   error
}

// ValueNotification 创建 Next 通知
func ValueNotification[T any](value T) Notification[T] {
	return Notification[T]{kind: KindNext, value: value}
}

// ErrorNotification 创建 Error 通知
func ErrorNotification[T any](err error) Notification[T] {
	return Notification[T]{kind: KindError, err: err}
}

// CompletionNotification 创建 Completed 通知
func CompletionNotification[T any]() Notification[T] {
	return Notification[T]{kind: KindCompleted}
}

// Kind 返回通知类型
func (n Notification[T]) Kind() Kind { return n.kind }

// Value 返回数据，非 Next 通知返回零值
func (n Notification[T]) Value() T { return n.value }

// Err 返回错误，非 Error 通知返回 nil
func (n Notification[T]) Err() error { return n.err }

// IsTerminal 是否为终止通知
func (n Notification[T]) IsTerminal() bool {
	return n.kind != KindNext
}

// Accept 将通知分派给 sink 的对应方法
func (n Notification[T]) Accept(sink Sink[T]) {
	switch n.kind {
	case KindNext:
		sink.OnNext(n.value)
	case KindError:
		sink.OnError(n.err)
	case KindCompleted:
		sink.OnCompleted()
	}
}

// String 返回 OnNext(v)/OnError(msg)/OnCompleted()
func (n Notification[T]) String() string {
	switch n.kind {
	case KindNext:
		return fmt.Sprintf("OnNext(%v)", n.value)
	case KindError:
		return fmt.Sprintf("OnError(%v)", n.err)
	default:
		return "OnCompleted()"
	}
}

// ============================================================================
// Observer
// ============================================================================

// Sink 推送接收方：Next* (Error|Completed)?
type Sink[T any] interface {
	OnNext(value T)
	OnError(err error)
	OnCompleted()
}

// Observer 观察者函数类型，每个通知调用一次
type Observer[T any] func(n Notification[T])

// OnNext 推送数据
func (o Observer[T]) OnNext(value T) { o(ValueNotification(value)) }

// OnError 推送错误
func (o Observer[T]) OnError(err error) { o(ErrorNotification[T](err)) }

// OnCompleted 推送完成
func (o Observer[T]) OnCompleted() { o(CompletionNotification[T]()) }

// withCompletion 完成通知交由 onCompleted 处理，其余通知照常传给 o
func (o Observer[T]) withCompletion(onCompleted func()) Observer[T] {
	return func(n Notification[T]) {
		if n.Kind() == KindCompleted {
			onCompleted()
			return
		}
		o(n)
	}
}

// NewObserver 由回调创建观察者，nil 回调视为空操作
func NewObserver[T any](onNext func(T), onError func(error), onCompleted func()) Observer[T] {
	return func(n Notification[T]) {
		switch n.Kind() {
		case KindNext:
			if onNext != nil {
				onNext(n.Value())
			}
		case KindError:
			if onError != nil {
				onError(n.Err())
			}
		case KindCompleted:
			if onCompleted != nil {
				onCompleted()
			}
		}
	}
}

// ObserverOf 将任意 Sink 适配为 Observer
func ObserverOf[T any](sink Sink[T]) Observer[T] {
	return func(n Notification[T]) { n.Accept(sink) }
}

// Error types for rx
// 错误类型定义：序列错误、回调 panic 转换、超时等
package rx

import (
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// ============================================================================
// 哨兵错误
// ============================================================================

var (
	// ErrTimeout 超时
	ErrTimeout = errors.New("rx: timeout")
	// ErrNoElements 序列没有元素
	ErrNoElements = errors.New("rx: sequence contains no elements")
	// ErrArgumentOutOfRange 索引越界
	ErrArgumentOutOfRange = errors.New("rx: argument out of range")
	// ErrSubjectErrored Subject 以错误终止且没有可用值
	ErrSubjectErrored = errors.New("rx: subject has terminated with error")
	// ErrSchedulerClosed 调度器已关闭
	ErrSchedulerClosed = errors.New("rx: scheduler closed")
)

// ============================================================================
// 类型化错误
// ============================================================================

// TimeoutError 超时错误
type TimeoutError struct {
	Duration time.Duration
}

// Error 实现 error 接口
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("rx: no notification within %v", e.Duration)
}

// Is 使 errors.Is(err, ErrTimeout) 成立
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// CallbackPanicError 用户回调 panic 被转换为序列错误
type CallbackPanicError struct {
	Operator string
	Value    any
}

// Error 实现 error 接口
func (e *CallbackPanicError) Error() string {
	return fmt.Sprintf("rx: %s callback panicked: %v", e.Operator, e.Value)
}

// Unwrap 如果 panic 值本身是 error 则返回它
func (e *CallbackPanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// InvalidCastError 类型转换失败
type InvalidCastError struct {
	Value  any
	Target string
}

// Error 实现 error 接口
func (e *InvalidCastError) Error() string {
	return fmt.Sprintf("rx: cannot cast %T to %s", e.Value, e.Target)
}

// CompositeError 组合多个错误
type CompositeError struct {
	Errors []error
}

// Error 实现 error 接口
func (e *CompositeError) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, err := range e.Errors {
		msgs = append(msgs, err.Error())
	}
	return "rx: " + strings.Join(msgs, "; ")
}

// Unwrap 支持 errors.Is/As 遍历
func (e *CompositeError) Unwrap() []error {
	return e.Errors
}

// ============================================================================
// 回调保护
// ============================================================================

// guard 执行用户回调，把 panic 转换为 *CallbackPanicError
// 观察者自身的 panic 不做转换，继续向上传播
func guard[R any](operator string, fn func() (R, error)) (result R, err error) {
	defer func() {
		if v := recover(); v != nil {
			if _, ok := v.(ObserverPanic); ok {
				panic(v)
			}
			currentMetrics().callbackPanicked(operator)
			err = errors.WithStack(&CallbackPanicError{Operator: operator, Value: v})
		}
	}()
	return fn()
}

// guardBool 执行谓词回调
func guardBool(operator string, fn func() bool) (bool, error) {
	return guard(operator, func() (bool, error) { return fn(), nil })
}

// guardDo 执行无返回值的回调
func guardDo(operator string, fn func()) error {
	_, err := guard(operator, func() (struct{}, error) {
		fn()
		return struct{}{}, nil
	})
	return err
}

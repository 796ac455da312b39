// Connectable observable implementation for rx
// 可连接序列：通过 Subject 把一个源多播给多个观察者
package rx

import (
	"sync"
	"sync/atomic"
)

// ============================================================================
// Connectable 实现
// ============================================================================

// Multicaster 既能接收通知又能被订阅的多播目标，所有 Subject 都满足
type Multicaster[T any] interface {
	Observable[T]
	Sink[T]
}

// Connectable 可连接序列，Connect 之前观察者只登记不接收值
type Connectable[T any] struct {
	source  Observable[T]
	subject Multicaster[T]

	mu         sync.Mutex
	connection Subscription
}

// Multicast 使用给定的 subject 创建可连接序列
func Multicast[T any](src Observable[T], subject Multicaster[T]) *Connectable[T] {
	return &Connectable[T]{source: src, subject: subject}
}

// Publish 使用 Subject 多播
func Publish[T any](src Observable[T]) *Connectable[T] {
	return Multicast[T](src, NewSubject[T]())
}

// PublishReplay 使用 ReplaySubject 多播，晚到的观察者收到缓存的值
func PublishReplay[T any](src Observable[T], capacity ReplayCapacity, options ...Option) *Connectable[T] {
	return Multicast[T](src, NewReplaySubject[T](capacity, options...))
}

// PublishLast 使用 AsyncSubject 多播，只发射源的最后一个值
func PublishLast[T any](src Observable[T]) *Connectable[T] {
	return Multicast[T](src, NewAsyncSubject[T]())
}

// Share 等价于 Publish(src).RefCount()
func Share[T any](src Observable[T]) Observable[T] {
	return Publish(src).RefCount()
}

// Subscribe 订阅内部的 subject
func (c *Connectable[T]) Subscribe(observer Observer[T]) Subscription {
	return c.subject.Subscribe(observer)
}

func (c *Connectable[T]) attach(s *Subscriber[T]) {
	if a, ok := c.subject.(attachable[T]); ok {
		a.attach(s)
		return
	}
	s.Add(c.subject.Subscribe(ObserverOf[T](s)))
}

// Connect 订阅源，把通知推送给 subject；已连接时返回现有连接
// 释放返回的连接会断开源，之后可以再次 Connect
func (c *Connectable[T]) Connect() Subscription {
	c.mu.Lock()
	if c.connection != nil {
		conn := c.connection
		c.mu.Unlock()
		return conn
	}
	upstream := NewSerialSubscription()
	var conn Subscription
	conn = NewSubscription(func() {
		c.mu.Lock()
		if c.connection == conn {
			c.connection = nil
		}
		c.mu.Unlock()
		upstream.Dispose()
	})
	c.connection = conn
	c.mu.Unlock()

	upstream.Set(SubscribeSink(c.source, c.subject))
	return conn
}

// IsConnected 是否已连接
func (c *Connectable[T]) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connection != nil
}

// RefCount 第一个观察者订阅时连接，最后一个观察者释放时断开
func (c *Connectable[T]) RefCount() Observable[T] {
	var (
		mu    sync.Mutex
		count int
		conn  Subscription
	)
	return NewObservable(func(s *Subscriber[T]) {
		mu.Lock()
		count++
		first := count == 1
		mu.Unlock()

		s.Add(NewSubscription(func() {
			mu.Lock()
			count--
			var last Subscription
			if count == 0 {
				last, conn = conn, nil
			}
			mu.Unlock()
			if last != nil {
				last.Dispose()
			}
		}))
		c.attach(s)
		if !first {
			return
		}

		connection := c.Connect()
		mu.Lock()
		if count == 0 {
			// 同步源在连接过程中已经让所有观察者终止
			mu.Unlock()
			connection.Dispose()
			return
		}
		conn = connection
		mu.Unlock()
	})
}

// AutoConnect 第 n 个观察者订阅时自动连接且之后不再断开；n <= 0 时立即连接
func (c *Connectable[T]) AutoConnect(n int) Observable[T] {
	if n <= 0 {
		c.Connect()
		return NewObservable(c.attach)
	}
	var count atomic.Int64
	return NewObservable(func(s *Subscriber[T]) {
		c.attach(s)
		if count.Add(1) == int64(n) {
			c.Connect()
		}
	})
}

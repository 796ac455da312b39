// Package broker 基于 Subject 的进程内事件总线
// 发布方只依赖 Broker；订阅方以 Client 的身份按事件类型订阅，Client 关闭时释放其全部订阅
package broker

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/alphadose/haxmap"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/xinjiayu/rx"
)

// ErrClosed broker 或 client 已关闭
var ErrClosed = errors.New("broker: closed")

// Broker 事件总线，所有事件经由同一个热序列广播
type Broker struct {
	events  *rx.Subject[any]
	clients *haxmap.Map[string, *Client]
	logger  *slog.Logger
	closed  atomic.Bool
}

// New 创建 Broker
func New(options ...rx.Option) *Broker {
	config := rx.DefaultConfig()
	for _, opt := range options {
		opt.Apply(&config)
	}
	logger := config.Logger
	if config.Name != "" {
		logger = logger.With(slog.String("broker", config.Name))
	}
	return &Broker{
		events:  rx.NewSubject[any](),
		clients: haxmap.New[string, *Client](),
		logger:  logger,
	}
}

// Publish 广播事件，关闭后返回 ErrClosed
func (b *Broker) Publish(event any) error {
	if b.closed.Load() {
		return errors.WithStack(ErrClosed)
	}
	b.events.OnNext(event)
	return nil
}

// Events 全部事件组成的热序列
func (b *Broker) Events() rx.Observable[any] {
	return b.events.AsObservable()
}

// Client 以 name 注册一个订阅方
func (b *Broker) Client(name string) *Client {
	c := &Client{
		ID:     uuid.NewString(),
		Name:   name,
		broker: b,
	}
	b.clients.Set(c.ID, c)
	b.logger.Debug("broker: client joined", slog.String("client", name), slog.String("id", c.ID))
	return c
}

// Lookup 按 ID 查找仍在线的 client
func (b *Broker) Lookup(id string) (*Client, bool) {
	return b.clients.Get(id)
}

// Clients 在线 client 数量
func (b *Broker) Clients() int {
	return int(b.clients.Len())
}

// Close 完成事件流并关闭所有 client
func (b *Broker) Close() {
	if !b.closed.CompareAndSwap(false, true) {
		return
	}
	var clients []*Client
	b.clients.ForEach(func(_ string, c *Client) bool {
		clients = append(clients, c)
		return true
	})
	for _, c := range clients {
		c.Close()
	}
	b.events.OnCompleted()
}

// ============================================================================
// Client
// ============================================================================

// Client 订阅方，持有自己的全部订阅
type Client struct {
	ID   string
	Name string

	broker *Broker
	mu     sync.Mutex
	subs   *rx.CompositeSubscription
	closed bool
}

func (c *Client) add(sub rx.Subscription) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		sub.Dispose()
		return errors.WithStack(ErrClosed)
	}
	if c.subs == nil {
		c.subs = rx.NewCompositeSubscription()
	}
	c.subs.Add(sub)
	c.mu.Unlock()
	return nil
}

// Close 释放 client 的全部订阅并注销
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	subs := c.subs
	c.mu.Unlock()

	if subs != nil {
		subs.Dispose()
	}
	c.broker.clients.Del(c.ID)
	c.broker.logger.Debug("broker: client left", slog.String("client", c.Name), slog.String("id", c.ID))
}

// Publish 以 client 身份发布事件
func (c *Client) Publish(event any) error {
	return c.broker.Publish(event)
}

// Subscribe 订阅类型为 E 且满足全部 filters 的事件
func Subscribe[E any](c *Client, handler func(E), filters ...rx.Predicate[E]) (rx.Subscription, error) {
	events := rx.OfType[any, E](c.broker.Events())
	for _, filter := range filters {
		events = rx.Where(events, filter)
	}
	logger := c.broker.logger.With(slog.String("client", c.Name))
	sub := events.Subscribe(rx.NewObserver(handler,
		func(err error) {
			logger.Warn("broker: subscription failed", slog.String("error", err.Error()))
		}, nil))
	if err := c.add(sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// Subject implementations for rx
// Subject 家族：既是观察者也是可观察序列，把一个生产者多路分发给多个消费者
package rx

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// ============================================================================
// 观察者注册表
// ============================================================================

// registry 观察者集合，以身份为键，按注册顺序排列
// 每次增删都生成新的不可变快照，投递时只遍历开始时取得的快照
type registry[T any] struct {
	mu       sync.Mutex
	entries  *orderedmap.OrderedMap[*Subscriber[T], struct{}]
	snapshot atomic.Pointer[[]*Subscriber[T]]
	terminal *Notification[T]
}

func newRegistry[T any]() *registry[T] {
	r := &registry[T]{entries: orderedmap.New[*Subscriber[T], struct{}]()}
	r.snapshot.Store(&[]*Subscriber[T]{})
	return r
}

// addLocked 调用方持有 mu
func (r *registry[T]) addLocked(s *Subscriber[T]) {
	if _, present := r.entries.Set(s, struct{}{}); present {
		return
	}
	r.publishLocked()
}

func (r *registry[T]) remove(s *Subscriber[T]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, present := r.entries.Delete(s); present {
		r.publishLocked()
	}
}

func (r *registry[T]) publishLocked() {
	observers := make([]*Subscriber[T], 0, r.entries.Len())
	for pair := r.entries.Oldest(); pair != nil; pair = pair.Next() {
		observers = append(observers, pair.Key)
	}
	r.snapshot.Store(&observers)
}

// observers 当前快照
func (r *registry[T]) observers() []*Subscriber[T] {
	return *r.snapshot.Load()
}

// terminateLocked 记录终止状态并清空集合，返回终止前的快照
func (r *registry[T]) terminateLocked(n Notification[T]) []*Subscriber[T] {
	r.terminal = &n
	previous := r.observers()
	r.entries = orderedmap.New[*Subscriber[T], struct{}]()
	r.snapshot.Store(&[]*Subscriber[T]{})
	return previous
}

// leave 返回注销 s 的订阅，必须在释放 mu 之后挂到 s 上
func (r *registry[T]) leave(s *Subscriber[T]) Subscription {
	return NewSubscription(func() { r.remove(s) })
}

func (r *registry[T]) hasObservers() bool {
	return len(r.observers()) > 0
}

func broadcast[T any](observers []*Subscriber[T], n Notification[T]) {
	for _, o := range observers {
		o.Emit(n)
	}
}

// ============================================================================
// Subject
// ============================================================================

// Subject 热序列，不重放
type Subject[T any] struct {
	reg *registry[T]
}

// NewSubject 创建 Subject
func NewSubject[T any]() *Subject[T] {
	return &Subject[T]{reg: newRegistry[T]()}
}

// Subscribe 订阅；已终止时立即投递终止通知并返回已释放的订阅
func (s *Subject[T]) Subscribe(observer Observer[T]) Subscription {
	sub := newSubscriber(observer)
	s.attach(sub)
	return sub
}

func (s *Subject[T]) attach(sub *Subscriber[T]) {
	s.reg.mu.Lock()
	if t := s.reg.terminal; t != nil {
		s.reg.mu.Unlock()
		sub.Emit(*t)
		return
	}
	s.reg.addLocked(sub)
	s.reg.mu.Unlock()
	sub.Add(s.reg.leave(sub))
}

// OnNext 按注册顺序投递给当前所有观察者
func (s *Subject[T]) OnNext(value T) {
	broadcast(s.reg.observers(), ValueNotification(value))
}

// OnError 以错误终止
func (s *Subject[T]) OnError(err error) {
	s.terminate(ErrorNotification[T](err))
}

// OnCompleted 正常终止
func (s *Subject[T]) OnCompleted() {
	s.terminate(CompletionNotification[T]())
}

func (s *Subject[T]) terminate(n Notification[T]) {
	s.reg.mu.Lock()
	if s.reg.terminal != nil {
		s.reg.mu.Unlock()
		return
	}
	observers := s.reg.terminateLocked(n)
	s.reg.mu.Unlock()
	broadcast(observers, n)
}

// HasObservers 是否有已注册的观察者
func (s *Subject[T]) HasObservers() bool {
	return s.reg.hasObservers()
}

// AsObserver 返回只写视图
func (s *Subject[T]) AsObserver() Observer[T] {
	return ObserverOf[T](s)
}

// AsObservable 返回只读视图，隐藏 OnNext 等方法
func (s *Subject[T]) AsObservable() Observable[T] {
	return NewObservable(s.attach)
}

// ============================================================================
// ReplaySubject
// ============================================================================

// ReplayCapacity 重放缓冲的容量策略
type ReplayCapacity struct {
	count  int
	window time.Duration
}

// BufferCount 保留最近 n 个值
func BufferCount(n int) ReplayCapacity {
	if n < 0 {
		n = 0
	}
	return ReplayCapacity{count: n, window: -1}
}

// BufferWindow 保留最近 d 时间内的值，时钟取自 WithScheduler 指定的调度器
func BufferWindow(d time.Duration) ReplayCapacity {
	return ReplayCapacity{count: -1, window: d}
}

// BufferCountAndWindow 同时按数量和时间限制
func BufferCountAndWindow(n int, d time.Duration) ReplayCapacity {
	return ReplayCapacity{count: n, window: d}
}

// Unbounded 不限制缓冲
func Unbounded() ReplayCapacity {
	return ReplayCapacity{count: -1, window: -1}
}

type timedValue[T any] struct {
	value T
	at    time.Time
}

// ReplaySubject 重放保留的值给新订阅者
type ReplaySubject[T any] struct {
	reg      *registry[T]
	capacity ReplayCapacity
	clock    Scheduler
	buffer   []timedValue[T]
}

// NewReplaySubject 创建 ReplaySubject
func NewReplaySubject[T any](capacity ReplayCapacity, options ...Option) *ReplaySubject[T] {
	config := applyOptions(options)
	return &ReplaySubject[T]{
		reg:      newRegistry[T](),
		capacity: capacity,
		clock:    config.Scheduler,
	}
}

// Subscribe 先重放缓冲内容再加入实时投递；已终止时重放后紧跟终止通知
func (s *ReplaySubject[T]) Subscribe(observer Observer[T]) Subscription {
	sub := newSubscriber(observer)
	s.attach(sub)
	return sub
}

func (s *ReplaySubject[T]) attach(sub *Subscriber[T]) {
	s.reg.mu.Lock()
	s.trimLocked(s.clock.Now())
	for _, entry := range s.buffer {
		sub.push(ValueNotification(entry.value))
	}
	t := s.reg.terminal
	if t != nil {
		sub.push(*t)
	} else {
		s.reg.addLocked(sub)
	}
	s.reg.mu.Unlock()
	if t == nil {
		sub.Add(s.reg.leave(sub))
	}
	sub.flush()
}

// OnNext 记录并投递
func (s *ReplaySubject[T]) OnNext(value T) {
	s.reg.mu.Lock()
	if s.reg.terminal != nil {
		s.reg.mu.Unlock()
		return
	}
	now := s.clock.Now()
	s.buffer = append(s.buffer, timedValue[T]{value: value, at: now})
	s.trimLocked(now)
	n := ValueNotification(value)
	observers := s.reg.observers()
	// 在锁内入队，保证与并发订阅的重放不重不漏
	for _, o := range observers {
		o.push(n)
	}
	s.reg.mu.Unlock()

	for _, o := range observers {
		o.flush()
	}
}

// OnError 以错误终止，错误会重放给之后的订阅者
func (s *ReplaySubject[T]) OnError(err error) {
	s.terminate(ErrorNotification[T](err))
}

// OnCompleted 正常终止
func (s *ReplaySubject[T]) OnCompleted() {
	s.terminate(CompletionNotification[T]())
}

func (s *ReplaySubject[T]) terminate(n Notification[T]) {
	s.reg.mu.Lock()
	if s.reg.terminal != nil {
		s.reg.mu.Unlock()
		return
	}
	observers := s.reg.terminateLocked(n)
	for _, o := range observers {
		o.push(n)
	}
	s.reg.mu.Unlock()

	for _, o := range observers {
		o.flush()
	}
}

// trimLocked 按容量策略淘汰最旧的值
func (s *ReplaySubject[T]) trimLocked(now time.Time) {
	drop := 0
	if s.capacity.count >= 0 && len(s.buffer) > s.capacity.count {
		drop = len(s.buffer) - s.capacity.count
	}
	if s.capacity.window >= 0 {
		for drop < len(s.buffer) && now.Sub(s.buffer[drop].at) > s.capacity.window {
			drop++
		}
	}
	if drop > 0 {
		clear(s.buffer[:drop])
		s.buffer = s.buffer[drop:]
	}
}

// HasObservers 是否有已注册的观察者
func (s *ReplaySubject[T]) HasObservers() bool {
	return s.reg.hasObservers()
}

// AsObservable 返回只读视图
func (s *ReplaySubject[T]) AsObservable() Observable[T] {
	return NewObservable(s.attach)
}

// ============================================================================
// BehaviorSubject
// ============================================================================

// BehaviorSubject 缓存最新值，订阅时先收到当前值
type BehaviorSubject[T any] struct {
	reg     *registry[T]
	value   T
	hasNext bool
}

// NewBehaviorSubject 以必需的初始值创建 BehaviorSubject
func NewBehaviorSubject[T any](seed T) *BehaviorSubject[T] {
	return &BehaviorSubject[T]{reg: newRegistry[T](), value: seed}
}

// Subscribe 先同步投递当前值，再加入实时投递
// 已终止时投递当前值，紧接着投递终止通知
func (s *BehaviorSubject[T]) Subscribe(observer Observer[T]) Subscription {
	sub := newSubscriber(observer)
	s.attach(sub)
	return sub
}

func (s *BehaviorSubject[T]) attach(sub *Subscriber[T]) {
	s.reg.mu.Lock()
	t := s.reg.terminal
	sub.push(ValueNotification(s.value))
	if t != nil {
		sub.push(*t)
	} else {
		s.reg.addLocked(sub)
	}
	s.reg.mu.Unlock()
	if t == nil {
		sub.Add(s.reg.leave(sub))
	}
	sub.flush()
}

// OnNext 覆盖当前值并投递
func (s *BehaviorSubject[T]) OnNext(value T) {
	s.reg.mu.Lock()
	if s.reg.terminal != nil {
		s.reg.mu.Unlock()
		return
	}
	s.value = value
	s.hasNext = true
	n := ValueNotification(value)
	observers := s.reg.observers()
	for _, o := range observers {
		o.push(n)
	}
	s.reg.mu.Unlock()

	for _, o := range observers {
		o.flush()
	}
}

// OnError 以错误终止
func (s *BehaviorSubject[T]) OnError(err error) {
	s.terminate(ErrorNotification[T](err))
}

// OnCompleted 正常终止，当前值保持不变
func (s *BehaviorSubject[T]) OnCompleted() {
	s.terminate(CompletionNotification[T]())
}

func (s *BehaviorSubject[T]) terminate(n Notification[T]) {
	s.reg.mu.Lock()
	if s.reg.terminal != nil {
		s.reg.mu.Unlock()
		return
	}
	observers := s.reg.terminateLocked(n)
	for _, o := range observers {
		o.push(n)
	}
	s.reg.mu.Unlock()

	for _, o := range observers {
		o.flush()
	}
}

// Value 返回当前值
// 以错误终止且此前没有任何 OnNext 时返回包装了原因的 ErrSubjectErrored
func (s *BehaviorSubject[T]) Value() (T, error) {
	s.reg.mu.Lock()
	defer s.reg.mu.Unlock()
	if t := s.reg.terminal; t != nil && t.Kind() == KindError && !s.hasNext {
		var zero T
		return zero, errors.Wrapf(ErrSubjectErrored, "cause: %v", t.Err())
	}
	return s.value, nil
}

// HasObservers 是否有已注册的观察者
func (s *BehaviorSubject[T]) HasObservers() bool {
	return s.reg.hasObservers()
}

// AsObservable 返回只读视图
func (s *BehaviorSubject[T]) AsObservable() Observable[T] {
	return NewObservable(s.attach)
}

// ============================================================================
// AsyncSubject
// ============================================================================

// AsyncSubject 只在完成时投递最后一个值
type AsyncSubject[T any] struct {
	reg      *registry[T]
	last     T
	hasValue bool
}

// NewAsyncSubject 创建 AsyncSubject
func NewAsyncSubject[T any]() *AsyncSubject[T] {
	return &AsyncSubject[T]{reg: newRegistry[T]()}
}

// Subscribe 终止前不投递任何内容；终止后立即投递结果
func (s *AsyncSubject[T]) Subscribe(observer Observer[T]) Subscription {
	sub := newSubscriber(observer)
	s.attach(sub)
	return sub
}

func (s *AsyncSubject[T]) attach(sub *Subscriber[T]) {
	s.reg.mu.Lock()
	t := s.reg.terminal
	if t == nil {
		s.reg.addLocked(sub)
		s.reg.mu.Unlock()
		sub.Add(s.reg.leave(sub))
		return
	}
	s.pushResultLocked(sub, *t)
	s.reg.mu.Unlock()
	sub.flush()
}

func (s *AsyncSubject[T]) pushResultLocked(sub *Subscriber[T], t Notification[T]) {
	if t.Kind() == KindCompleted && s.hasValue {
		sub.push(ValueNotification(s.last))
	}
	sub.push(t)
}

// OnNext 记录最后一个值，终止后忽略
func (s *AsyncSubject[T]) OnNext(value T) {
	s.reg.mu.Lock()
	defer s.reg.mu.Unlock()
	if s.reg.terminal != nil {
		return
	}
	s.last = value
	s.hasValue = true
}

// OnError 丢弃缓存的值并投递错误
func (s *AsyncSubject[T]) OnError(err error) {
	s.reg.mu.Lock()
	if s.reg.terminal != nil {
		s.reg.mu.Unlock()
		return
	}
	var zero T
	s.last, s.hasValue = zero, false
	s.terminateLocked(ErrorNotification[T](err))
}

// OnCompleted 投递最后一个值（如果有）和完成通知
func (s *AsyncSubject[T]) OnCompleted() {
	s.reg.mu.Lock()
	if s.reg.terminal != nil {
		s.reg.mu.Unlock()
		return
	}
	s.terminateLocked(CompletionNotification[T]())
}

// terminateLocked 调用方持有锁，返回前释放
func (s *AsyncSubject[T]) terminateLocked(n Notification[T]) {
	observers := s.reg.terminateLocked(n)
	for _, o := range observers {
		s.pushResultLocked(o, n)
	}
	s.reg.mu.Unlock()

	for _, o := range observers {
		o.flush()
	}
}

// HasObservers 是否有已注册的观察者
func (s *AsyncSubject[T]) HasObservers() bool {
	return s.reg.hasObservers()
}

// AsObservable 返回只读视图
func (s *AsyncSubject[T]) AsObservable() Observable[T] {
	return NewObservable(s.attach)
}

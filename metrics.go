// Metrics for rx
// 运行时统计：订阅创建/释放、回调 panic、调度任务，基于 Prometheus
package rx

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ============================================================================
// 性能监控和统计
// ============================================================================

// Metrics 引擎级统计指标，nil 接收者上的所有方法均为空操作
type Metrics struct {
	Subscriptions  *prometheus.CounterVec   // event=created|disposed
	CallbackPanics *prometheus.CounterVec   // operator
	Tasks          *prometheus.CounterVec   // scheduler, state=scheduled|completed|panicked
	TaskLatency    *prometheus.HistogramVec // scheduler
}

// NewMetrics 创建指标，registerer 非 nil 时注册
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		Subscriptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rx",
			Name:      "subscriptions_total",
			Help:      "Subscriptions created and disposed.",
		}, []string{"event"}),
		CallbackPanics: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rx",
			Name:      "callback_panics_total",
			Help:      "User callback panics converted into sequence errors.",
		}, []string{"operator"}),
		Tasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rx",
			Name:      "scheduler_tasks_total",
			Help:      "Scheduler tasks by state.",
		}, []string{"scheduler", "state"}),
		TaskLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "rx",
			Name:      "scheduler_task_duration_seconds",
			Help:      "Time spent running scheduler tasks.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, []string{"scheduler"}),
	}
	if registerer != nil {
		registerer.MustRegister(m.Subscriptions, m.CallbackPanics, m.Tasks, m.TaskLatency)
	}
	return m
}

var globalMetrics atomic.Pointer[Metrics]

// EnableMetrics 设置包级指标，传入 nil 关闭统计
func EnableMetrics(m *Metrics) {
	globalMetrics.Store(m)
}

func currentMetrics() *Metrics {
	return globalMetrics.Load()
}

func (m *Metrics) subscriptionCreated() {
	if m == nil {
		return
	}
	m.Subscriptions.WithLabelValues("created").Inc()
}

func (m *Metrics) subscriptionDisposed() {
	if m == nil {
		return
	}
	m.Subscriptions.WithLabelValues("disposed").Inc()
}

func (m *Metrics) callbackPanicked(operator string) {
	if m == nil {
		return
	}
	m.CallbackPanics.WithLabelValues(operator).Inc()
}

func (m *Metrics) taskScheduled(scheduler string) {
	if m == nil {
		return
	}
	m.Tasks.WithLabelValues(scheduler, "scheduled").Inc()
}

func (m *Metrics) taskFinished(scheduler string, elapsed time.Duration, panicked bool) {
	if m == nil {
		return
	}
	state := "completed"
	if panicked {
		state = "panicked"
	}
	m.Tasks.WithLabelValues(scheduler, state).Inc()
	m.TaskLatency.WithLabelValues(scheduler).Observe(elapsed.Seconds())
}

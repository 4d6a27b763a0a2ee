package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// 仓库迁移结果
const (
	OutcomeCompleted = "completed"
	OutcomeAdopted   = "adopted"
	OutcomeFailed    = "failed"
	OutcomeSuspended = "suspended"
)

// Collector 迁移过程的 Prometheus 指标
// 方法对 nil 接收者安全，未启用指标时直接传 nil
type Collector struct {
	repositoriesTotal *prometheus.CounterVec
	repositoryLatency *prometheus.HistogramVec
	quotaPausesTotal  prometheus.Counter
	runsTotal         *prometheus.CounterVec
}

// NewCollector 创建指标收集器
func NewCollector() *Collector {
	return &Collector{
		repositoriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "repo_migrator_repositories_total",
				Help: "Total number of repository migration attempts by outcome",
			},
			[]string{"outcome"},
		),
		repositoryLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "repo_migrator_repository_duration_seconds",
				Help:    "Duration of a single repository migration attempt",
				Buckets: prometheus.ExponentialBuckets(1, 2, 12),
			},
			[]string{"strategy"},
		),
		quotaPausesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "repo_migrator_quota_pauses_total",
				Help: "Total number of global pauses caused by hosting quota exhaustion",
			},
		),
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "repo_migrator_runs_total",
				Help: "Total number of orchestrator runs by result",
			},
			[]string{"result"},
		),
	}
}

// ObserveRepository 记录一次仓库迁移尝试
func (c *Collector) ObserveRepository(outcome, strategy string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.repositoriesTotal.WithLabelValues(outcome).Inc()
	if strategy != "" {
		c.repositoryLatency.WithLabelValues(strategy).Observe(elapsed.Seconds())
	}
}

// QuotaPause 记录一次配额暂停
func (c *Collector) QuotaPause() {
	if c == nil {
		return
	}
	c.quotaPausesTotal.Inc()
}

// ObserveRun 记录一次运行结束
func (c *Collector) ObserveRun(err error) {
	if c == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	c.runsTotal.WithLabelValues(result).Inc()
}

// Describe is used to describe Prometheus metrics.
func (c *Collector) Describe(descs chan<- *prometheus.Desc) {
	c.repositoriesTotal.Describe(descs)
	c.repositoryLatency.Describe(descs)
	c.quotaPausesTotal.Describe(descs)
	c.runsTotal.Describe(descs)
}

// Collect is used to collect Prometheus metrics.
func (c *Collector) Collect(metrics chan<- prometheus.Metric) {
	c.repositoriesTotal.Collect(metrics)
	c.repositoryLatency.Collect(metrics)
	c.quotaPausesTotal.Collect(metrics)
	c.runsTotal.Collect(metrics)
}

// Package metrics 提供 Prometheus helper，包含常用 counter/gauge/histogram 模板
package metrics

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/wyfcoding/riskgateway/pkg/logger"
)

// Metrics 指标集合
type Metrics struct {
	// HTTP 请求计数
	HTTPRequestsTotal prometheus.Counter
	// HTTP 请求耗时
	HTTPRequestDuration prometheus.Histogram

	// 数据库查询计数
	DBQueriesTotal prometheus.Counter
	// 数据库查询耗时
	DBQueryDuration prometheus.Histogram

	// 风控检查计数，按请求类型（order/cancel）
	ChecksTotal *prometheus.CounterVec
	// 风控检查耗时
	CheckDuration prometheus.Histogram
	// 风控拒绝计数，按规则族与状态码
	RejectsTotal *prometheus.CounterVec
	// 费用计算计数
	FeeCalcsTotal prometheus.Counter
	// 规则快照刷新计数，按结果（ok/error）
	RuleRefreshTotal *prometheus.CounterVec
	// 当前规则快照版本
	RuleSnapshotVersion prometheus.Gauge
	// PnL 快照最大滞后（秒）
	PnlSnapshotAge prometheus.Gauge
	// 在途（resting）订单数
	RestingOrders prometheus.Gauge
}

// New 创建指标实例
func New(serviceName string) *Metrics {
	return &Metrics{
		HTTPRequestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "trading",
			Subsystem: serviceName,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests",
		}),
		HTTPRequestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "trading",
			Subsystem: serviceName,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		DBQueriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "trading",
			Subsystem: serviceName,
			Name:      "db_queries_total",
			Help:      "Total database queries",
		}),
		DBQueryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "trading",
			Subsystem: serviceName,
			Name:      "db_query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		ChecksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trading",
			Subsystem: serviceName,
			Name:      "risk_checks_total",
			Help:      "Total risk checks by request kind",
		}, []string{"kind"}),
		CheckDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "trading",
			Subsystem: serviceName,
			Name:      "risk_check_duration_seconds",
			Help:      "Risk check duration in seconds",
			Buckets:   []float64{.00005, .0001, .00025, .0005, .001, .0025, .005, .01, .025},
		}),
		RejectsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trading",
			Subsystem: serviceName,
			Name:      "risk_rejects_total",
			Help:      "Total risk rejections by rule family and status code",
		}, []string{"family", "code"}),
		FeeCalcsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "trading",
			Subsystem: serviceName,
			Name:      "fee_calcs_total",
			Help:      "Total fee computations",
		}),
		RuleRefreshTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trading",
			Subsystem: serviceName,
			Name:      "rule_refresh_total",
			Help:      "Rule snapshot refreshes by result",
		}, []string{"result"}),
		RuleSnapshotVersion: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "trading",
			Subsystem: serviceName,
			Name:      "rule_snapshot_version",
			Help:      "Version of the rule snapshot currently served",
		}),
		PnlSnapshotAge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "trading",
			Subsystem: serviceName,
			Name:      "pnl_snapshot_age_seconds",
			Help:      "Age of the oldest PnL snapshot in seconds",
		}),
		RestingOrders: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "trading",
			Subsystem: serviceName,
			Name:      "resting_orders",
			Help:      "Number of resting orders tracked for self-trade checks",
		}),
	}
}

// Register 注册所有指标
func (m *Metrics) Register() error {
	collectors := []prometheus.Collector{
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.DBQueriesTotal,
		m.DBQueryDuration,
		m.ChecksTotal,
		m.CheckDuration,
		m.RejectsTotal,
		m.FeeCalcsTotal,
		m.RuleRefreshTotal,
		m.RuleSnapshotVersion,
		m.PnlSnapshotAge,
		m.RestingOrders,
	}

	for _, c := range collectors {
		if err := prometheus.DefaultRegisterer.Register(c); err != nil {
			logger.Error(context.Background(), "Failed to register metric", "error", err)
			return err
		}
	}

	logger.Info(context.Background(), "Metrics registered successfully")
	return nil
}

// StartHTTPServer 启动 Prometheus HTTP 服务器
func StartHTTPServer(port int, path string) error {
	if path == "" {
		path = "/metrics"
	}

	http.Handle(path, promhttp.Handler())

	addr := fmt.Sprintf(":%d", port)
	logger.Info(context.Background(), "Starting Prometheus HTTP server", "addr", addr, "path", path)

	go func() {
		if err := http.ListenAndServe(addr, nil); err != nil {
			logger.Error(context.Background(), "Failed to start Prometheus HTTP server", "error", err)
		}
	}()

	return nil
}

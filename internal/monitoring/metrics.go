package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 监控指标
type Metrics struct {
	// HTTP 请求指标
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// 同步指标
	SyncRunsTotal *prometheus.CounterVec // 按触发来源和结果统计
	SyncDuration  prometheus.Histogram
	RulesFetched  *prometheus.GaugeVec // 每个区域最近一次拉取到的可用规则数

	// 去重与回填指标
	DuplicatesRemoved prometheus.Counter
	BackfillEnriched  prometheus.Counter

	// 远端 API 指标
	CloudflareErrors *prometheus.CounterVec // 按错误类型统计

	// 别名业务指标
	AliasesCreated prometheus.Counter
	AliasesDeleted prometheus.Counter
}

// NewMetrics 创建监控指标
//
// promauto 会把指标注册到默认注册表，进程内只能调用一次。
func NewMetrics() *Metrics {
	return &Metrics{
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aliasflare_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "aliasflare_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		SyncRunsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aliasflare_sync_runs_total",
				Help: "Total number of sync cycles by trigger reason and outcome",
			},
			[]string{"reason", "outcome"},
		),

		SyncDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "aliasflare_sync_duration_seconds",
				Help:    "Duration of a full sync cycle in seconds",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
			},
		),

		RulesFetched: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "aliasflare_rules_fetched",
				Help: "Usable email routing rules seen in the latest fetch per zone",
			},
			[]string{"zone"},
		),

		DuplicatesRemoved: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "aliasflare_duplicates_removed_total",
				Help: "Total duplicate alias records removed by deduplication",
			},
		),

		BackfillEnriched: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "aliasflare_backfill_enriched_total",
				Help: "Total alias records enriched from the replica store",
			},
		),

		CloudflareErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aliasflare_cloudflare_errors_total",
				Help: "Total Cloudflare API errors by kind",
			},
			[]string{"kind"},
		),

		AliasesCreated: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "aliasflare_aliases_created_total",
				Help: "Total aliases created through the user flow",
			},
		),

		AliasesDeleted: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "aliasflare_aliases_deleted_total",
				Help: "Total aliases deleted through the user flow",
			},
		),
	}
}

// HTTPHandler 返回 Prometheus 指标端点处理器
func (m *Metrics) HTTPHandler() http.Handler {
	return promhttp.Handler()
}

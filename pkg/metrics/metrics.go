// Package metrics 提供定价服务的 Prometheus 指标
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wyfcoding/optionpricing/pkg/logger"
)

const namespace = "optionpricing"

// Recorder 应用层依赖的指标接口
type Recorder interface {
	// RecordPricing 记录一次定价，status 为 ok/invalid/error
	RecordPricing(model, status string, duration time.Duration)
	// RecordLSM 记录一次 LSM 逆向归纳的路径数与跳过回归的步数
	RecordLSM(paths, skippedRegressions int)
	// RecordCache 记录缓存命中情况
	RecordCache(hit bool)
}

// NopRecorder 不记录任何指标
type NopRecorder struct{}

func (NopRecorder) RecordPricing(string, string, time.Duration) {}
func (NopRecorder) RecordLSM(int, int)                          {}
func (NopRecorder) RecordCache(bool)                            {}

// Metrics 指标集合
type Metrics struct {
	PricingRequests    *prometheus.CounterVec
	PricingDuration    *prometheus.HistogramVec
	PathsPriced        prometheus.Counter
	RegressionsSkipped prometheus.Counter
	CacheLookups       *prometheus.CounterVec

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
	GRPCRequests *prometheus.CounterVec

	OutboxRelayed prometheus.Counter
	OutboxFailed  prometheus.Counter
}

// New 创建指标实例
func New(serviceName string) *Metrics {
	return &Metrics{
		PricingRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: serviceName,
			Name:      "pricing_requests_total",
			Help:      "Pricing requests by model and status",
		}, []string{"model", "status"}),
		PricingDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: serviceName,
			Name:      "pricing_duration_seconds",
			Help:      "Pricing latency by model",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 16),
		}, []string{"model"}),
		PathsPriced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: serviceName,
			Name:      "lsm_paths_total",
			Help:      "Paths processed by Longstaff-Schwartz backward induction",
		}),
		RegressionsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: serviceName,
			Name:      "lsm_regressions_skipped_total",
			Help:      "Exercise dates skipped because too few paths were in the money",
		}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: serviceName,
			Name:      "result_cache_lookups_total",
			Help:      "Latest-result cache lookups",
		}, []string{"result"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: serviceName,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code",
		}, []string{"method", "route", "code"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: serviceName,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		GRPCRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: serviceName,
			Name:      "grpc_requests_total",
			Help:      "gRPC requests by method and code",
		}, []string{"method", "code"}),
		OutboxRelayed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: serviceName,
			Name:      "outbox_relayed_total",
			Help:      "Outbox messages delivered to Kafka",
		}),
		OutboxFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: serviceName,
			Name:      "outbox_failed_total",
			Help:      "Outbox relay attempts that failed",
		}),
	}
}

// Register 注册所有指标
func (m *Metrics) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		m.PricingRequests, m.PricingDuration, m.PathsPriced, m.RegressionsSkipped, m.CacheLookups,
		m.HTTPRequests, m.HTTPDuration, m.GRPCRequests, m.OutboxRelayed, m.OutboxFailed,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			logger.Error(context.Background(), "Failed to register metric", "error", err)
			return err
		}
	}
	return nil
}

// RecordOutbox 记录 Outbox 转发结果
func (m *Metrics) RecordOutbox(relayed, failed int) {
	m.OutboxRelayed.Add(float64(relayed))
	m.OutboxFailed.Add(float64(failed))
}

// RecordPricing 实现 Recorder
func (m *Metrics) RecordPricing(model, status string, duration time.Duration) {
	m.PricingRequests.WithLabelValues(model, status).Inc()
	m.PricingDuration.WithLabelValues(model).Observe(duration.Seconds())
}

// RecordLSM 实现 Recorder
func (m *Metrics) RecordLSM(paths, skippedRegressions int) {
	m.PathsPriced.Add(float64(paths))
	m.RegressionsSkipped.Add(float64(skippedRegressions))
}

// RecordCache 实现 Recorder
func (m *Metrics) RecordCache(hit bool) {
	if hit {
		m.CacheLookups.WithLabelValues("hit").Inc()
		return
	}
	m.CacheLookups.WithLabelValues("miss").Inc()
}

// RecordHTTPRequest 记录 HTTP 请求
func (m *Metrics) RecordHTTPRequest(method, route string, code int, duration time.Duration) {
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordGRPCRequest 记录 gRPC 请求
func (m *Metrics) RecordGRPCRequest(method, code string) {
	m.GRPCRequests.WithLabelValues(method, code).Inc()
}

// NewServer 创建 Prometheus 指标 HTTP 服务，由调用方负责启动与关闭
func NewServer(addr, path string, gatherer prometheus.Gatherer) *http.Server {
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
}

// Serve 在后台启动指标服务
func Serve(ctx context.Context, srv *http.Server) {
	go func() {
		logger.Info(ctx, "Starting Prometheus HTTP server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(ctx, "Prometheus HTTP server failed", "error", err)
		}
	}()
}

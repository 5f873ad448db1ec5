// Package metrics 暴露风险分析服务的 Prometheus 指标。
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"healthfolio-risk/internal/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	namespace = "healthfolio"
	subsystem = "risk"
)

// 分析结果标签
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Metrics 风险分析指标（使用独立 registry，便于测试）
type Metrics struct {
	registry *prometheus.Registry

	// AnalysesTotal 分析次数，标签 trigger（events/polling/cli）与 result
	AnalysesTotal *prometheus.CounterVec
	// AnalysisDuration 单次分析耗时
	AnalysisDuration prometheus.Histogram
	// AlertsTotal 产生的告警，标签 severity 与 deviation_type
	AlertsTotal *prometheus.CounterVec
	// OverallRiskTotal 看板总体等级分布
	OverallRiskTotal *prometheus.CounterVec
	// UrgentNotificationsTotal 紧急通知发送结果，标签 channel 与 result
	UrgentNotificationsTotal *prometheus.CounterVec
}

// New 创建指标并注册到新的 registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		AnalysesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "analyses_total",
			Help:      "Total risk analyses by trigger and result",
		}, []string{"trigger", "result"}),
		AnalysisDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "analysis_duration_seconds",
			Help:      "Risk analysis latency including data fetch",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		AlertsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "alerts_total",
			Help:      "Anomaly alerts produced by severity and deviation type",
		}, []string{"severity", "deviation_type"}),
		OverallRiskTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "overall_level_total",
			Help:      "Dashboards produced by overall risk level",
		}, []string{"level"}),
		UrgentNotificationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "urgent_notifications_total",
			Help:      "Urgent notifications by channel and result",
		}, []string{"channel", "result"}),
	}
}

// ObserveAnalysis 记录一次分析；dashboard 为 nil 表示失败
func (m *Metrics) ObserveAnalysis(trigger string, started time.Time, dashboard *models.RiskDashboard) {
	m.AnalysisDuration.Observe(time.Since(started).Seconds())
	if dashboard == nil {
		m.AnalysesTotal.WithLabelValues(trigger, ResultFailure).Inc()
		return
	}

	m.AnalysesTotal.WithLabelValues(trigger, ResultSuccess).Inc()
	m.OverallRiskTotal.WithLabelValues(string(dashboard.OverallRiskLevel)).Inc()
	for _, a := range dashboard.ActiveAlerts {
		m.AlertsTotal.WithLabelValues(string(a.Severity), string(a.DeviationType)).Inc()
	}
}

// ObserveNotification 记录紧急通知结果
func (m *Metrics) ObserveNotification(channel string, err error) {
	result := ResultSuccess
	if err != nil {
		result = ResultFailure
	}
	m.UrgentNotificationsTotal.WithLabelValues(channel, result).Inc()
}

// Handler /metrics 处理器
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Serve 在 addr 上提供 /metrics，ctx 结束时优雅关闭
func (m *Metrics) Serve(ctx context.Context, addr string, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Metrics server listening", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

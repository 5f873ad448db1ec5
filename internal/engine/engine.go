// Package engine 组装异常检测、人群比较、疾病评分和汇总，对外提供 Analyze(userID)。
package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"healthfolio-risk/internal/aggregator"
	"healthfolio-risk/internal/anomaly"
	"healthfolio-risk/internal/conditions"
	"healthfolio-risk/internal/models"
	"healthfolio-risk/internal/norms"
	"healthfolio-risk/internal/population"
	"healthfolio-risk/internal/reference"
	"healthfolio-risk/internal/stats"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrFetchReadings 读取指标失败
	ErrFetchReadings = errors.New("failed to fetch metric readings")
	// ErrFetchProfile 读取人口学信息失败
	ErrFetchProfile = errors.New("failed to fetch demographic profile")
)

// MetricStore 指标读数来源（顺序不限，引擎负责按类型过滤和按时间排序）
type MetricStore interface {
	GetReadings(ctx context.Context, userID string) ([]models.MetricReading, error)
}

// DemographicProfile 用户人口学信息来源
type DemographicProfile interface {
	GetDemographic(ctx context.Context, userID string) (models.Demographic, error)
}

// Options 分析窗口配置
type Options struct {
	// RecentWindow 当前周期长度，前一周期为紧邻的同样长度
	RecentWindow time.Duration
	// AnomalyHistory 异常检测使用的每指标最近读数数量
	AnomalyHistory int
	// TrendReadings 趋势分析使用的每指标最近读数数量
	TrendReadings int
}

// DefaultOptions 默认配置：30 天窗口、30 条异常历史、14 条趋势读数
func DefaultOptions() Options {
	return Options{
		RecentWindow:   30 * 24 * time.Hour,
		AnomalyHistory: 30,
		TrendReadings:  aggregator.DefaultTrendReadings,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.RecentWindow <= 0 {
		o.RecentWindow = def.RecentWindow
	}
	if o.AnomalyHistory < anomaly.MinReadings {
		o.AnomalyHistory = def.AnomalyHistory
	}
	if o.TrendReadings < aggregator.MinTrendReadings {
		o.TrendReadings = def.TrendReadings
	}
	return o
}

// Timeframe 风险演变周期的展示文本（如 "30d"）
func (o Options) Timeframe() string {
	days := int(o.RecentWindow / (24 * time.Hour))
	if days <= 0 {
		return o.RecentWindow.String()
	}
	return fmt.Sprintf("%dd", days)
}

// Engine 风险分析引擎（无共享可变状态，可并发调用）
type Engine struct {
	store    MetricStore
	profiles DemographicProfile
	opts     Options
	logger   *zap.Logger

	detector   *anomaly.Detector
	comparator *population.Comparator
	scorer     *conditions.Scorer
	aggregator *aggregator.Aggregator

	now   func() time.Time
	newID func() string
}

// NewEngine 创建风险分析引擎
func NewEngine(
	store MetricStore,
	profiles DemographicProfile,
	normTable *norms.Table,
	ranges *reference.Table,
	opts Options,
	logger *zap.Logger,
) *Engine {
	opts = opts.withDefaults()
	return &Engine{
		store:      store,
		profiles:   profiles,
		opts:       opts,
		logger:     logger,
		detector:   anomaly.NewDetector(ranges),
		comparator: population.NewComparator(normTable),
		scorer:     conditions.NewScorer(),
		aggregator: aggregator.NewAggregator(ranges, opts.TrendReadings),
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

// Analyze 读取用户数据并生成风险看板；任一读取失败或 ctx 取消时返回错误，不生成部分结果
func (e *Engine) Analyze(ctx context.Context, userID string) (*models.RiskDashboard, error) {
	var (
		readings []models.MetricReading
		demo     models.Demographic
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r, err := e.store.GetReadings(gctx, userID)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrFetchReadings, err)
		}
		readings = r
		return nil
	})
	g.Go(func() error {
		d, err := e.profiles.GetDemographic(gctx, userID)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrFetchProfile, err)
		}
		demo = d
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return e.Evaluate(userID, readings, demo), nil
}

// Evaluate 对已加载到内存的快照做纯计算
func (e *Engine) Evaluate(userID string, readings []models.MetricReading, demo models.Demographic) *models.RiskDashboard {
	snap := newSnapshot(readings, e.opts.RecentWindow)

	var (
		alerts      []models.AnomalyAlert
		current     []models.ConditionRiskScore
		prior       []models.ConditionRiskScore
		comparisons []models.PopulationComparison
	)

	// 异常检测、疾病评分、人群比较互不依赖，并行计算后汇总
	var g errgroup.Group
	g.Go(func() error {
		alerts = e.detectAnomalies(snap)
		return nil
	})
	g.Go(func() error {
		current = e.scorer.Score(conditions.Inputs{Age: demo.Age, Metrics: conditions.Summarize(snap.recent)})
		prior = e.scorer.Score(conditions.Inputs{Age: demo.Age, Metrics: conditions.Summarize(snap.prior)})
		return nil
	})
	g.Go(func() error {
		comparisons = e.compare(snap, demo)
		return nil
	})
	_ = g.Wait()

	attachComparisons(alerts, comparisons)

	summary := e.aggregator.Aggregate(aggregator.Input{
		Alerts:          alerts,
		Conditions:      current,
		PriorConditions: prior,
		Series:          snap.recentByMetric,
		Timeframe:       e.opts.Timeframe(),
	})

	dashboard := &models.RiskDashboard{
		UserID:                userID,
		AnalysisID:            e.newID(),
		GeneratedAt:           e.now().UTC(),
		OverallRiskLevel:      summary.OverallRiskLevel,
		ActiveAlerts:          alerts,
		ConditionRisks:        current,
		PopulationComparisons: comparisons,
		TrendingMetrics:       summary.TrendingMetrics,
		UrgentFlags:           summary.UrgentFlags,
		RiskEvolution:         summary.RiskEvolution,
	}

	e.logger.Debug("Risk analysis completed",
		zap.String("user_id", userID),
		zap.String("analysis_id", dashboard.AnalysisID),
		zap.Int("readings", len(snap.all)),
		zap.Int("alerts", len(alerts)),
		zap.Int("conditions", len(current)),
		zap.String("overall_risk_level", string(dashboard.OverallRiskLevel)),
	)
	return dashboard
}

func (e *Engine) detectAnomalies(snap *snapshot) []models.AnomalyAlert {
	alerts := []models.AnomalyAlert{}
	for _, metric := range models.AllMetricTypes() {
		history := snap.byMetric[metric]
		if len(history) > e.opts.AnomalyHistory {
			history = history[len(history)-e.opts.AnomalyHistory:]
		}
		if alert := e.detector.Detect(metric, history); alert != nil {
			alerts = append(alerts, *alert)
		}
	}
	return alerts
}

func (e *Engine) compare(snap *snapshot, demo models.Demographic) []models.PopulationComparison {
	out := []models.PopulationComparison{}
	for _, metric := range models.AllMetricTypes() {
		recent := snap.recentByMetric[metric]
		if len(recent) == 0 {
			continue
		}
		values := make([]float64, len(recent))
		for i, r := range recent {
			values[i] = r.Value
		}
		avg, ok := stats.Mean(values)
		if !ok {
			continue
		}

		cmp, err := e.comparator.Compare(metric, avg, demo)
		if err != nil {
			if !errors.Is(err, norms.ErrNoNorm) {
				e.logger.Warn("Population comparison failed",
					zap.String("metric_type", string(metric)),
					zap.Error(err),
				)
			}
			continue
		}
		out = append(out, *cmp)
	}
	return out
}

func attachComparisons(alerts []models.AnomalyAlert, comparisons []models.PopulationComparison) {
	byMetric := make(map[models.MetricType]models.PopulationComparison, len(comparisons))
	for _, c := range comparisons {
		byMetric[c.MetricType] = c
	}
	for i := range alerts {
		if c, ok := byMetric[alerts[i].MetricType]; ok {
			alerts[i].PopulationComparison = &c
		}
	}
}

// snapshot 过滤、排序并按窗口切分后的读数
type snapshot struct {
	all            []models.MetricReading
	recent         []models.MetricReading
	prior          []models.MetricReading
	byMetric       map[models.MetricType][]models.MetricReading
	recentByMetric map[models.MetricType][]models.MetricReading
}

// newSnapshot 窗口以最新读数时间为锚点：当前周期 (anchor-window, anchor]，前一周期 (anchor-2*window, anchor-window]
func newSnapshot(readings []models.MetricReading, window time.Duration) *snapshot {
	snap := &snapshot{
		byMetric:       make(map[models.MetricType][]models.MetricReading),
		recentByMetric: make(map[models.MetricType][]models.MetricReading),
	}

	for _, r := range readings {
		if !r.MetricType.IsKnown() || math.IsNaN(r.Value) || math.IsInf(r.Value, 0) {
			continue
		}
		snap.all = append(snap.all, r)
	}
	if len(snap.all) == 0 {
		return snap
	}
	sort.SliceStable(snap.all, func(i, j int) bool {
		return snap.all[i].Timestamp.Before(snap.all[j].Timestamp)
	})

	anchor := snap.all[len(snap.all)-1].Timestamp
	recentStart := anchor.Add(-window)
	priorStart := recentStart.Add(-window)

	for _, r := range snap.all {
		snap.byMetric[r.MetricType] = append(snap.byMetric[r.MetricType], r)
		switch {
		case r.Timestamp.After(recentStart):
			snap.recent = append(snap.recent, r)
			snap.recentByMetric[r.MetricType] = append(snap.recentByMetric[r.MetricType], r)
		case r.Timestamp.After(priorStart):
			snap.prior = append(snap.prior, r)
		}
	}
	return snap
}

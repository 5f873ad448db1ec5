// Package aggregator 将告警、疾病评分和趋势合并为 RiskDashboard 的汇总字段。
package aggregator

import (
	"math"
	"sort"

	"healthfolio-risk/internal/models"
	"healthfolio-risk/internal/reference"
	"healthfolio-risk/internal/stats"
)

const (
	// DefaultTrendReadings 趋势分析使用的最近读数数量
	DefaultTrendReadings = 14
	// MinTrendReadings 趋势分析最少读数（每半段至少 2 个）
	MinTrendReadings = 4
	// DefaultTimeframe 风险演变默认对比周期
	DefaultTimeframe = "30d"

	// changeBandPercent 改善/恶化的相对变化阈值
	changeBandPercent = 5.0
)

// 疾病分数区间对应的总体等级下限
const (
	conditionCritical = 80
	conditionHigh     = 60
	conditionModerate = 30
)

// Input 汇总输入
type Input struct {
	Alerts          []models.AnomalyAlert
	Conditions      []models.ConditionRiskScore
	PriorConditions []models.ConditionRiskScore

	// 当前周期内按指标分组的读数
	Series    map[models.MetricType][]models.MetricReading
	Timeframe string
}

// Summary 汇总结果
type Summary struct {
	OverallRiskLevel models.OverallRiskLevel
	TrendingMetrics  models.TrendingMetrics
	UrgentFlags      models.UrgentFlags
	RiskEvolution    models.RiskEvolution
}

// Aggregator 风险汇总器
type Aggregator struct {
	ranges        *reference.Table
	trendReadings int
}

// NewAggregator 创建汇总器；trendReadings 小于 MinTrendReadings 时使用默认值
func NewAggregator(ranges *reference.Table, trendReadings int) *Aggregator {
	if trendReadings < MinTrendReadings {
		trendReadings = DefaultTrendReadings
	}
	return &Aggregator{ranges: ranges, trendReadings: trendReadings}
}

// Aggregate 计算总体等级、趋势、紧急标记和风险演变
func (a *Aggregator) Aggregate(in Input) Summary {
	timeframe := in.Timeframe
	if timeframe == "" {
		timeframe = DefaultTimeframe
	}
	return Summary{
		OverallRiskLevel: OverallLevel(in.Alerts, in.Conditions),
		TrendingMetrics:  a.Trends(in.Series),
		UrgentFlags:      UrgentFlagsFor(in.Alerts),
		RiskEvolution:    Evolution(in.PriorConditions, in.Conditions, timeframe),
	}
}

// OverallLevel 总体风险等级：任一 critical 告警或疾病分数 >= 80 即为 critical，依次类推
func OverallLevel(alerts []models.AnomalyAlert, conditions []models.ConditionRiskScore) models.OverallRiskLevel {
	maxSeverity := 0
	for _, al := range alerts {
		if r := al.Severity.Rank(); r > maxSeverity {
			maxSeverity = r
		}
	}
	maxScore := math.Inf(-1)
	for _, c := range conditions {
		if c.RiskScore > maxScore {
			maxScore = c.RiskScore
		}
	}

	switch {
	case maxSeverity >= models.SeverityCritical.Rank() || maxScore >= conditionCritical:
		return models.OverallCritical
	case maxSeverity >= models.SeverityHigh.Rank() || maxScore >= conditionHigh:
		return models.OverallHigh
	case len(alerts) > 0 || maxScore >= conditionModerate:
		return models.OverallModerate
	default:
		return models.OverallLow
	}
}

// UrgentFlagsFor 统计 critical 告警
func UrgentFlagsFor(alerts []models.AnomalyAlert) models.UrgentFlags {
	flags := models.UrgentFlags{CriticalMetrics: []models.MetricType{}}
	for _, al := range alerts {
		if al.Severity != models.SeverityCritical {
			continue
		}
		flags.Count++
		flags.CriticalMetrics = append(flags.CriticalMetrics, al.MetricType)
	}
	flags.RequiresImmediateAttention = flags.Count > 0
	return flags
}

// Trends 按指标分类为改善/恶化/平稳（方向语义取自参考范围表）
func (a *Aggregator) Trends(series map[models.MetricType][]models.MetricReading) models.TrendingMetrics {
	trends := models.TrendingMetrics{
		Improving: []models.MetricType{},
		Declining: []models.MetricType{},
		Stable:    []models.MetricType{},
	}

	for _, metric := range models.AllMetricTypes() {
		readings, ok := series[metric]
		if !ok {
			continue
		}
		direction, ok := a.ranges.Direction(metric)
		if !ok {
			continue
		}
		values := recentValues(readings, a.trendReadings)
		if len(values) < MinTrendReadings {
			continue
		}

		change, ok := stats.HalfSplitChange(values)
		if !ok {
			trends.Stable = append(trends.Stable, metric)
			continue
		}
		if direction == reference.LowerIsBetter {
			change = -change
		}

		switch {
		case change > changeBandPercent:
			trends.Improving = append(trends.Improving, metric)
		case change < -changeBandPercent:
			trends.Declining = append(trends.Declining, metric)
		default:
			trends.Stable = append(trends.Stable, metric)
		}
	}
	return trends
}

// Evolution 对比前后两个周期的综合风险（各疾病分数的平均值）
// 前一周期没有任何疾病评分时无从比较，报告 stable 且变化为 0
func Evolution(prior, current []models.ConditionRiskScore, timeframe string) models.RiskEvolution {
	priorRisk := composite(prior)
	currentRisk := composite(current)
	if len(prior) == 0 {
		return models.RiskEvolution{
			Timeframe:   timeframe,
			CurrentRisk: stats.Round(currentRisk, 1),
			Trajectory:  models.TrajectoryStable,
		}
	}
	change := currentRisk - priorRisk

	trajectory := models.TrajectoryStable
	switch {
	case priorRisk == 0:
		if currentRisk > 0 {
			trajectory = models.TrajectoryWorsening
		}
	case change/priorRisk*100 > changeBandPercent:
		trajectory = models.TrajectoryWorsening
	case change/priorRisk*100 < -changeBandPercent:
		trajectory = models.TrajectoryImproving
	}

	return models.RiskEvolution{
		Timeframe:   timeframe,
		PriorRisk:   stats.Round(priorRisk, 1),
		CurrentRisk: stats.Round(currentRisk, 1),
		RiskChange:  stats.Round(change, 1),
		Trajectory:  trajectory,
	}
}

func composite(scores []models.ConditionRiskScore) float64 {
	if len(scores) == 0 {
		return 0
	}
	values := make([]float64, len(scores))
	for i, s := range scores {
		values[i] = s.RiskScore
	}
	mean, _ := stats.Mean(values)
	return mean
}

// recentValues 过滤非有限值，按时间升序取最后 n 个
func recentValues(readings []models.MetricReading, n int) []float64 {
	sorted := make([]models.MetricReading, 0, len(readings))
	for _, r := range readings {
		if math.IsNaN(r.Value) || math.IsInf(r.Value, 0) {
			continue
		}
		sorted = append(sorted, r)
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})
	if len(sorted) > n {
		sorted = sorted[len(sorted)-n:]
	}

	values := make([]float64, len(sorted))
	for i, r := range sorted {
		values[i] = r.Value
	}
	return values
}

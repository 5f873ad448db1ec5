package models

import (
	"time"
)

// OverallRiskLevel 总体风险等级
type OverallRiskLevel string

const (
	OverallLow      OverallRiskLevel = "low"
	OverallModerate OverallRiskLevel = "moderate"
	OverallHigh     OverallRiskLevel = "high"
	OverallCritical OverallRiskLevel = "critical"
)

// Trajectory 风险演变方向
type Trajectory string

const (
	TrajectoryImproving Trajectory = "improving"
	TrajectoryStable    Trajectory = "stable"
	TrajectoryWorsening Trajectory = "worsening"
)

// TrendingMetrics 指标趋势分组
type TrendingMetrics struct {
	Improving []MetricType `json:"improving"`
	Declining []MetricType `json:"declining"`
	Stable    []MetricType `json:"stable"`
}

// UrgentFlags 紧急标记
type UrgentFlags struct {
	Count                      int          `json:"count"`
	CriticalMetrics            []MetricType `json:"criticalMetrics"`
	RequiresImmediateAttention bool         `json:"requiresImmediateAttention"`
}

// RiskEvolution 前后两个周期的综合风险变化
type RiskEvolution struct {
	Timeframe   string     `json:"timeframe"`
	PriorRisk   float64    `json:"priorRisk"`
	CurrentRisk float64    `json:"currentRisk"`
	RiskChange  float64    `json:"riskChange"`
	Trajectory  Trajectory `json:"trajectory"`
}

// RiskDashboard 一次分析的完整输出（每次重新计算，不持久化）
type RiskDashboard struct {
	UserID                string                 `json:"userId"`
	AnalysisID            string                 `json:"analysisId"`
	GeneratedAt           time.Time              `json:"generatedAt"`
	OverallRiskLevel      OverallRiskLevel       `json:"overallRiskLevel"`
	ActiveAlerts          []AnomalyAlert         `json:"activeAlerts"`
	ConditionRisks        []ConditionRiskScore   `json:"conditionRisks"`
	PopulationComparisons []PopulationComparison `json:"populationComparisons"`
	TrendingMetrics       TrendingMetrics        `json:"trendingMetrics"`
	UrgentFlags           UrgentFlags            `json:"urgentFlags"`
	RiskEvolution         RiskEvolution          `json:"riskEvolution"`
}

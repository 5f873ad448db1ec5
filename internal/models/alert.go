package models

import (
	"time"
)

// Severity 异常严重程度
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityModerate Severity = "moderate"
	SeverityLow      Severity = "low"
)

// Rank 严重程度排序值（越大越严重）
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityModerate:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// RiskLevel 严重程度对应的固定风险值
func (s Severity) RiskLevel() int {
	switch s {
	case SeverityCritical:
		return 90
	case SeverityHigh:
		return 70
	case SeverityModerate:
		return 50
	default:
		return 30
	}
}

// AlertCategory 临床类别
type AlertCategory string

const (
	CategoryCardiovascular AlertCategory = "cardiovascular"
	CategoryMetabolic      AlertCategory = "metabolic"
	CategoryNeurological   AlertCategory = "neurological"
	CategoryRespiratory    AlertCategory = "respiratory"
	CategoryPsychological  AlertCategory = "psychological"
)

// DeviationType 偏离类型
type DeviationType string

const (
	DeviationSpike               DeviationType = "spike"
	DeviationCrash               DeviationType = "crash"
	DeviationSustainedElevation  DeviationType = "sustained_elevation"
	DeviationSustainedDepression DeviationType = "sustained_depression"
	DeviationErraticPattern      DeviationType = "erratic_pattern"
)

// NormalRange 参考范围
type NormalRange struct {
	Min         float64 `json:"min"`
	Max         float64 `json:"max"`
	Description string  `json:"description"`
}

// AnomalyAlert 单个指标的异常告警
type AnomalyAlert struct {
	AlertID              string                `json:"alertId"`
	Severity             Severity              `json:"severity"`
	Category             AlertCategory         `json:"category"`
	MetricType           MetricType            `json:"metricType"`
	CurrentValue         float64               `json:"currentValue"`
	NormalRange          NormalRange           `json:"normalRange"`
	DeviationType        DeviationType         `json:"deviationType"`
	RiskLevel            int                   `json:"riskLevel"`
	ClinicalSignificance string                `json:"clinicalSignificance"`
	ImmediateActions     []string              `json:"immediateActions"`
	RelatedMetrics       []MetricType          `json:"relatedMetrics"`
	PopulationComparison *PopulationComparison `json:"populationComparison,omitempty"`
	DetectedAt           time.Time             `json:"detectedAt"`
}

package models

// Condition 评估的疾病（封闭集合）
type Condition string

const (
	ConditionDiabetes              Condition = "diabetes"
	ConditionHypertension          Condition = "hypertension"
	ConditionCardiovascularDisease Condition = "cardiovascular_disease"
	ConditionDepression            Condition = "depression"
)

// RiskCategory 风险分级
type RiskCategory string

const (
	RiskLow      RiskCategory = "low"
	RiskModerate RiskCategory = "moderate"
	RiskHigh     RiskCategory = "high"
	RiskVeryHigh RiskCategory = "very_high"
)

// Rank 分级排序值
func (c RiskCategory) Rank() int {
	switch c {
	case RiskVeryHigh:
		return 4
	case RiskHigh:
		return 3
	case RiskModerate:
		return 2
	case RiskLow:
		return 1
	default:
		return 0
	}
}

// RiskFactor 风险因子（可解释性输出）
// Contribution 为该因子贡献的分数（0-100 标尺上的百分点）
type RiskFactor struct {
	Factor       string     `json:"factor"`
	MetricType   MetricType `json:"metricType"`
	Contribution float64    `json:"contribution"`
	CurrentValue float64    `json:"currentValue"`
	OptimalValue float64    `json:"optimalValue"`
	Unit         string     `json:"unit"`
}

// ScoreAdjustment 没有对应指标的隐式加分（如年龄）
type ScoreAdjustment struct {
	Reason string  `json:"reason"`
	Points float64 `json:"points"`
}

// PopulationRisk 相对同龄基线的风险
type PopulationRisk struct {
	AgeGroup         string  `json:"ageGroup"`
	AgeGroupBaseline float64 `json:"ageGroupBaseline"`
	RelativeRisk     float64 `json:"relativeRisk"`
}

// ConditionRiskScore 单个疾病的综合风险评分
type ConditionRiskScore struct {
	Condition            Condition         `json:"condition"`
	RiskScore            float64           `json:"riskScore"`
	RawScore             float64           `json:"rawScore"`
	RiskCategory         RiskCategory      `json:"riskCategory"`
	Confidence           float64           `json:"confidence"`
	PrimaryRiskFactors   []RiskFactor      `json:"primaryRiskFactors"`
	SecondaryRiskFactors []string          `json:"secondaryRiskFactors"`
	Adjustments          []ScoreAdjustment `json:"adjustments"`
	TimeToOnset          string            `json:"timeToOnset"`
	PreventionStrategies []string          `json:"preventionStrategies"`
	PopulationRisk       PopulationRisk    `json:"populationRisk"`
	ClinicalCriteria     []string          `json:"clinicalCriteria"`
}

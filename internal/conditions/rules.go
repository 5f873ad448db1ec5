package conditions

import (
	"healthfolio-risk/internal/models"
)

// comparison 阈值比较方式
type comparison int

const (
	atLeast comparison = iota
	greaterThan
	lessThan
)

func (c comparison) match(value, threshold float64) bool {
	switch c {
	case atLeast:
		return value >= threshold
	case greaterThan:
		return value > threshold
	case lessThan:
		return value < threshold
	default:
		return false
	}
}

func (c comparison) symbol() string {
	switch c {
	case atLeast:
		return ">="
	case greaterThan:
		return ">"
	default:
		return "<"
	}
}

// tier 分档加分（从严重到轻微，首个命中生效）
type tier struct {
	threshold float64
	points    float64
}

// factorRule 单个指标因子
type factorRule struct {
	name    string
	metric  models.MetricType
	unit    string
	optimal float64
	cmp     comparison
	tiers   []tier
}

// adjustmentRule 与指标无关的隐式加分
type adjustmentRule struct {
	reason string
	minAge int
	points float64
}

// confidenceRule 所列指标读数都达到 minCount 时取 high，否则 low
type confidenceRule struct {
	metrics  []models.MetricType
	minCount int
	high     float64
	low      float64
}

// model 单个疾病的加权模型
type model struct {
	condition models.Condition

	// 任一指标读数达到 minReadings 即可评估
	mandatory   []models.MetricType
	minReadings int

	factors     []factorRule
	adjustments []adjustmentRule
	confidence  confidenceRule

	// 按年龄段的人群基线风险（与 ageBrackets 一一对应）
	baselines  [4]float64
	prevention []string
}

var (
	fastingGlucose = factorRule{
		name: "fasting glucose", metric: models.MetricGlucose, unit: "mg/dL", optimal: 90,
		cmp: atLeast, tiers: []tier{{126, 40}, {100, 25}},
	}

	bodyMassIndex = factorRule{
		name: "body mass index", metric: models.MetricBMI, unit: "kg/m2", optimal: 23,
		cmp: atLeast, tiers: []tier{{30, 20}, {25, 10}},
	}

	systolicForHypertension = factorRule{
		name: "systolic blood pressure", metric: models.MetricBloodPressureSystolic, unit: "mmHg", optimal: 120,
		cmp: atLeast, tiers: []tier{{140, 50}, {130, 35}, {120, 20}},
	}

	heartRateForHypertension = factorRule{
		name: "resting heart rate", metric: models.MetricHeartRate, unit: "bpm", optimal: 70,
		cmp: greaterThan, tiers: []tier{{100, 15}},
	}

	heartRateVariability = factorRule{
		name: "heart rate variability", metric: models.MetricHRV, unit: "ms", optimal: 50,
		cmp: lessThan, tiers: []tier{{30, 30}},
	}

	heartRateForCardiovascular = factorRule{
		name: "resting heart rate", metric: models.MetricHeartRate, unit: "bpm", optimal: 65,
		cmp: greaterThan, tiers: []tier{{85, 25}},
	}

	systolicForCardiovascular = factorRule{
		name: "systolic blood pressure", metric: models.MetricBloodPressureSystolic, unit: "mmHg", optimal: 120,
		cmp: atLeast, tiers: []tier{{140, 25}},
	}

	moodScore = factorRule{
		name: "mood score", metric: models.MetricMood, unit: "score", optimal: 7,
		cmp: lessThan, tiers: []tier{{4, 40}, {6, 25}},
	}

	sleepDuration = factorRule{
		name: "sleep duration", metric: models.MetricSleepDuration, unit: "hours", optimal: 8,
		cmp: lessThan, tiers: []tier{{6, 20}},
	}

	stressLevel = factorRule{
		name: "stress level", metric: models.MetricStress, unit: "score", optimal: 4,
		cmp: greaterThan, tiers: []tier{{7, 15}},
	}
)

// conditionModels 评估顺序即输出顺序
var conditionModels = []model{
	{
		condition:   models.ConditionDiabetes,
		mandatory:   []models.MetricType{models.MetricGlucose},
		minReadings: 1,
		factors:     []factorRule{fastingGlucose, bodyMassIndex},
		adjustments: []adjustmentRule{{reason: "age 45 or older", minAge: 45, points: 15}},
		confidence:  confidenceRule{metrics: []models.MetricType{models.MetricGlucose}, minCount: 5, high: 0.9, low: 0.7},
		baselines:   [4]float64{10, 15, 25, 35},
		prevention: []string{
			"Limit refined carbohydrates and sugary drinks",
			"Aim for 150 minutes of moderate activity per week",
			"Ask your provider about an HbA1c test",
		},
	},
	{
		condition:   models.ConditionHypertension,
		mandatory:   []models.MetricType{models.MetricBloodPressureSystolic},
		minReadings: 1,
		factors:     []factorRule{systolicForHypertension, heartRateForHypertension},
		confidence:  confidenceRule{metrics: []models.MetricType{models.MetricBloodPressureSystolic}, minCount: 5, high: 0.9, low: 0.7},
		baselines:   [4]float64{15, 25, 40, 55},
		prevention: []string{
			"Reduce sodium intake below 2,300 mg per day",
			"Limit alcohol and avoid tobacco",
			"Measure blood pressure at the same time each day",
		},
	},
	{
		condition:   models.ConditionCardiovascularDisease,
		mandatory:   []models.MetricType{models.MetricHRV, models.MetricHeartRate},
		minReadings: 1,
		factors:     []factorRule{heartRateVariability, heartRateForCardiovascular, systolicForCardiovascular},
		confidence: confidenceRule{
			metrics:  []models.MetricType{models.MetricHeartRate, models.MetricHRV},
			minCount: 5, high: 0.85, low: 0.7,
		},
		baselines: [4]float64{5, 10, 20, 35},
		prevention: []string{
			"Build regular aerobic exercise into your week",
			"Prioritise consistent, sufficient sleep",
			"Discuss a lipid panel with your provider",
		},
	},
	{
		condition:   models.ConditionDepression,
		mandatory:   []models.MetricType{models.MetricMood},
		minReadings: 5,
		factors:     []factorRule{moodScore, sleepDuration, stressLevel},
		confidence:  confidenceRule{metrics: []models.MetricType{models.MetricMood}, minCount: 10, high: 0.8, low: 0.6},
		baselines:   [4]float64{20, 18, 15, 15},
		prevention: []string{
			"Keep a regular daily routine and sleep schedule",
			"Stay socially connected",
			"Talk to a mental health professional if low mood persists",
		},
	},
}

// 风险分级阈值（从高到低）
var categoryBands = []struct {
	min      float64
	category models.RiskCategory
}{
	{70, models.RiskVeryHigh},
	{50, models.RiskHigh},
	{30, models.RiskModerate},
}

var timeToOnset = map[models.RiskCategory]string{
	models.RiskVeryHigh: "1-2 years",
	models.RiskHigh:     "2-5 years",
	models.RiskModerate: "5-10 years",
	models.RiskLow:      "10+ years",
}

// ageBrackets 年龄段下限（与 model.baselines 对应）
var ageBrackets = []struct {
	minAge int
	label  string
}{
	{0, "18-29"},
	{30, "30-44"},
	{45, "45-64"},
	{65, "65+"},
}

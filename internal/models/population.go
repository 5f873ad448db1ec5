package models

// DemographicFilter 常模适用人群
type DemographicFilter struct {
	AgeMin        int           `json:"ageMin" yaml:"age_min" validate:"gte=0"`
	AgeMax        int           `json:"ageMax" yaml:"age_max" validate:"gtefield=AgeMin"`
	Gender        Gender        `json:"gender" yaml:"gender" validate:"required,oneof=male female other all"`
	ActivityLevel ActivityLevel `json:"activityLevel" yaml:"activity_level" validate:"required,oneof=sedentary light moderate active very_active all"`
}

// ContainsAge 年龄是否落在 [AgeMin, AgeMax] 内
func (f DemographicFilter) ContainsAge(age int) bool {
	return age >= f.AgeMin && age <= f.AgeMax
}

// NormStatistics 常模统计量
type NormStatistics struct {
	Mean       float64 `json:"mean" yaml:"mean"`
	Median     float64 `json:"median" yaml:"median"`
	StdDev     float64 `json:"stddev" yaml:"stddev" validate:"gte=0"`
	P10        float64 `json:"p10" yaml:"p10"`
	P25        float64 `json:"p25" yaml:"p25" validate:"gtefield=P10"`
	P50        float64 `json:"p50" yaml:"p50" validate:"gtefield=P25"`
	P75        float64 `json:"p75" yaml:"p75" validate:"gtefield=P50"`
	P90        float64 `json:"p90" yaml:"p90" validate:"gtefield=P75"`
	P95        float64 `json:"p95" yaml:"p95" validate:"gtefield=P90"`
	SampleSize int     `json:"sampleSize" yaml:"sample_size" validate:"gt=0"`
	Source     string  `json:"source" yaml:"source" validate:"required"`
	StudyYear  int     `json:"studyYear" yaml:"study_year" validate:"gte=1900"`
}

// ValueRange 数值区间
type ValueRange struct {
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max" validate:"gtefield=Min"`
}

// PopulationNorm 人群常模（静态配置，按 source/year 版本化）
type PopulationNorm struct {
	MetricType   MetricType        `json:"metricType" yaml:"metric" validate:"required"`
	Filter       DemographicFilter `json:"filter" yaml:"filter"`
	Statistics   NormStatistics    `json:"statistics" yaml:"statistics"`
	Unit         string            `json:"unit" yaml:"unit" validate:"required"`
	HealthyRange ValueRange        `json:"healthyRange" yaml:"healthy_range"`
}

// PercentileCategory 百分位分类
type PercentileCategory string

const (
	PercentileExcellent    PercentileCategory = "excellent"
	PercentileAboveAverage PercentileCategory = "above_average"
	PercentileAverage      PercentileCategory = "average"
	PercentileBelowAverage PercentileCategory = "below_average"
	PercentilePoor         PercentileCategory = "poor"
)

// ComparisonDirection 与常模均值比较的方向
type ComparisonDirection string

const (
	DirectionAbove ComparisonDirection = "above"
	DirectionBelow ComparisonDirection = "below"
	DirectionEqual ComparisonDirection = "equal"
)

// MeanComparison 与常模均值的差异
type MeanComparison struct {
	PopulationMean    float64             `json:"populationMean"`
	Difference        float64             `json:"difference"`
	PercentDifference float64             `json:"percentDifference"`
	Direction         ComparisonDirection `json:"direction"`
}

// DemographicContext 展示用的人群上下文
type DemographicContext struct {
	AgeGroup   string `json:"ageGroup"`
	Gender     string `json:"gender"`
	SampleSize int    `json:"sampleSize"`
	DataSource string `json:"dataSource"`
}

// PopulationComparison 用户值在人群中的位置
type PopulationComparison struct {
	MetricType     MetricType         `json:"metricType"`
	UserValue      float64            `json:"userValue"`
	Unit           string             `json:"unit"`
	Percentile     float64            `json:"percentile"`
	Category       PercentileCategory `json:"category"`
	MeanComparison MeanComparison     `json:"meanComparison"`
	Context        DemographicContext `json:"context"`
}

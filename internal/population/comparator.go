// Package population 将用户的近期均值映射到人群常模的百分位与分类。
package population

import (
	"fmt"

	"healthfolio-risk/internal/models"
	"healthfolio-risk/internal/norms"
	"healthfolio-risk/internal/stats"
)

// openAgeMax 年龄上限不小于该值时视为开放区间（显示为 "65+"）
const openAgeMax = 120

type breakpoint struct {
	rank  float64
	value float64
}

func breakpoints(s models.NormStatistics) []breakpoint {
	return []breakpoint{
		{10, s.P10},
		{25, s.P25},
		{50, s.P50},
		{75, s.P75},
		{90, s.P90},
		{95, s.P95},
	}
}

// 百分位分类阈值（从高到低，首个命中生效）
var categoryBands = []struct {
	min      float64
	category models.PercentileCategory
}{
	{90, models.PercentileExcellent},
	{75, models.PercentileAboveAverage},
	{25, models.PercentileAverage},
	{10, models.PercentileBelowAverage},
}

// Percentile 在 p10..p95 六个经验断点之间分段线性插值，结果限制在 [0, 100]
func Percentile(value float64, s models.NormStatistics) float64 {
	bps := breakpoints(s)

	first := bps[0]
	if value <= first.value {
		if first.value <= 0 {
			return 0
		}
		return stats.Clamp(value/first.value*first.rank, 0, 100)
	}

	for i := 1; i < len(bps); i++ {
		lo, hi := bps[i-1], bps[i]
		if value > hi.value {
			continue
		}
		span := hi.value - lo.value
		if span <= 0 {
			return hi.rank
		}
		return lo.rank + (value-lo.value)/span*(hi.rank-lo.rank)
	}

	last := bps[len(bps)-1]
	if last.value <= 0 {
		return 100
	}
	return stats.Clamp(last.rank+(value-last.value)/last.value*5, 0, 100)
}

// CategoryFor 百分位对应的分类
func CategoryFor(percentile float64) models.PercentileCategory {
	for _, b := range categoryBands {
		if percentile >= b.min {
			return b.category
		}
	}
	return models.PercentilePoor
}

// CompareToNorm 计算用户值相对指定常模的位置（纯函数）
func CompareToNorm(metric models.MetricType, value float64, norm models.PopulationNorm) models.PopulationComparison {
	percentile := stats.Round(Percentile(value, norm.Statistics), 1)

	return models.PopulationComparison{
		MetricType:     metric,
		UserValue:      stats.Round(value, 2),
		Unit:           norm.Unit,
		Percentile:     percentile,
		Category:       CategoryFor(percentile),
		MeanComparison: meanComparison(value, norm.Statistics.Mean),
		Context: models.DemographicContext{
			AgeGroup:   AgeGroupLabel(norm.Filter),
			Gender:     string(norm.Filter.Gender),
			SampleSize: norm.Statistics.SampleSize,
			DataSource: fmt.Sprintf("%s %d", norm.Statistics.Source, norm.Statistics.StudyYear),
		},
	}
}

func meanComparison(value, mean float64) models.MeanComparison {
	diff := value - mean
	pct := 0.0
	if mean != 0 {
		pct = diff / mean * 100
	}

	direction := models.DirectionEqual
	switch {
	case diff > 0:
		direction = models.DirectionAbove
	case diff < 0:
		direction = models.DirectionBelow
	}

	return models.MeanComparison{
		PopulationMean:    mean,
		Difference:        stats.Round(diff, 2),
		PercentDifference: stats.Round(pct, 1),
		Direction:         direction,
	}
}

// AgeGroupLabel 常模年龄区间的展示文本
func AgeGroupLabel(f models.DemographicFilter) string {
	if f.AgeMax >= openAgeMax {
		return fmt.Sprintf("%d+", f.AgeMin)
	}
	return fmt.Sprintf("%d-%d", f.AgeMin, f.AgeMax)
}

// Comparator 按人口学特征选择常模并比较
type Comparator struct {
	norms *norms.Table
}

// NewComparator 创建人群比较器
func NewComparator(table *norms.Table) *Comparator {
	return &Comparator{norms: table}
}

// Compare 为用户值选择最匹配的常模并比较；指标无常模时返回 norms.ErrNoNorm
func (c *Comparator) Compare(metric models.MetricType, value float64, demo models.Demographic) (*models.PopulationComparison, error) {
	norm, err := c.norms.Select(metric, demo)
	if err != nil {
		return nil, err
	}
	cmp := CompareToNorm(metric, value, norm)
	return &cmp, nil
}

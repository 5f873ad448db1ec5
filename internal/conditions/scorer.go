// Package conditions 为糖尿病、高血压、心血管疾病、抑郁计算 0-100 的加权风险评分。
// 每个疾病是一张声明式的因子表（见 rules.go），评分为各因子分档加分之和再截断到 [0, 100]。
package conditions

import (
	"fmt"

	"healthfolio-risk/internal/models"
	"healthfolio-risk/internal/stats"
)

// nearThresholdMargin 接近最低分档阈值（10% 以内）时记为次要风险因子
const nearThresholdMargin = 0.1

// Summary 某指标在评估窗口内的汇总
type Summary struct {
	Mean  float64
	Count int
}

// Inputs 评分输入
type Inputs struct {
	Age     int
	Metrics map[models.MetricType]Summary
}

func (in Inputs) summary(metric models.MetricType) (Summary, bool) {
	s, ok := in.Metrics[metric]
	if !ok || s.Count == 0 {
		return Summary{}, false
	}
	return s, true
}

// Summarize 由读数计算每个指标的均值和有效读数数量（忽略 NaN/Inf）
func Summarize(readings []models.MetricReading) map[models.MetricType]Summary {
	grouped := make(map[models.MetricType][]float64)
	for _, r := range readings {
		grouped[r.MetricType] = append(grouped[r.MetricType], r.Value)
	}

	out := make(map[models.MetricType]Summary, len(grouped))
	for metric, values := range grouped {
		values = stats.Finite(values)
		mean, ok := stats.Mean(values)
		if !ok {
			continue
		}
		out[metric] = Summary{Mean: mean, Count: len(values)}
	}
	return out
}

// Scorer 疾病风险评分器（无状态）
type Scorer struct {
	rules []model
}

// NewScorer 创建评分器
func NewScorer() *Scorer {
	return &Scorer{rules: conditionModels}
}

// Score 评估所有疾病；缺少必需指标的疾病被跳过
func (s *Scorer) Score(in Inputs) []models.ConditionRiskScore {
	out := make([]models.ConditionRiskScore, 0, len(s.rules))
	for _, m := range s.rules {
		if score, ok := evaluate(m, in); ok {
			out = append(out, score)
		}
	}
	return out
}

// ScoreCondition 评估单个疾病
func (s *Scorer) ScoreCondition(condition models.Condition, in Inputs) (models.ConditionRiskScore, bool) {
	for _, m := range s.rules {
		if m.condition == condition {
			return evaluate(m, in)
		}
	}
	return models.ConditionRiskScore{}, false
}

func evaluate(m model, in Inputs) (models.ConditionRiskScore, bool) {
	if !hasMandatory(m, in) {
		return models.ConditionRiskScore{}, false
	}

	result := models.ConditionRiskScore{
		Condition:            m.condition,
		PrimaryRiskFactors:   []models.RiskFactor{},
		SecondaryRiskFactors: []string{},
		Adjustments:          []models.ScoreAdjustment{},
		ClinicalCriteria:     []string{},
		PreventionStrategies: append([]string(nil), m.prevention...),
	}

	var raw float64
	for _, f := range m.factors {
		summary, ok := in.summary(f.metric)
		if !ok {
			continue
		}
		t, matched := f.match(summary.Mean)
		if !matched {
			if f.nearThreshold(summary.Mean) {
				result.SecondaryRiskFactors = append(result.SecondaryRiskFactors,
					fmt.Sprintf("%s approaching threshold", f.name))
			}
			continue
		}
		raw += t.points
		result.PrimaryRiskFactors = append(result.PrimaryRiskFactors, models.RiskFactor{
			Factor:       f.name,
			MetricType:   f.metric,
			Contribution: t.points,
			CurrentValue: stats.Round(summary.Mean, 1),
			OptimalValue: f.optimal,
			Unit:         f.unit,
		})
		result.ClinicalCriteria = append(result.ClinicalCriteria,
			fmt.Sprintf("average %s %s %g %s", f.name, f.cmp.symbol(), t.threshold, f.unit))
	}

	for _, a := range m.adjustments {
		if in.Age < a.minAge {
			continue
		}
		raw += a.points
		result.Adjustments = append(result.Adjustments, models.ScoreAdjustment{Reason: a.reason, Points: a.points})
		result.SecondaryRiskFactors = append(result.SecondaryRiskFactors, a.reason)
	}

	result.RawScore = raw
	result.RiskScore = stats.Clamp(raw, 0, 100)
	result.RiskCategory = CategoryFor(result.RiskScore)
	result.Confidence = m.confidence.evaluate(in)
	result.TimeToOnset = timeToOnset[result.RiskCategory]
	result.PopulationRisk = populationRisk(m, in.Age, result.RiskScore)
	return result, true
}

func hasMandatory(m model, in Inputs) bool {
	for _, metric := range m.mandatory {
		if s, ok := in.summary(metric); ok && s.Count >= m.minReadings {
			return true
		}
	}
	return false
}

func (f factorRule) match(value float64) (tier, bool) {
	for _, t := range f.tiers {
		if f.cmp.match(value, t.threshold) {
			return t, true
		}
	}
	return tier{}, false
}

func (f factorRule) nearThreshold(value float64) bool {
	if len(f.tiers) == 0 {
		return false
	}
	// 最轻的一档在最后
	threshold := f.tiers[len(f.tiers)-1].threshold
	switch f.cmp {
	case lessThan:
		return value < threshold*(1+nearThresholdMargin)
	default:
		return value >= threshold*(1-nearThresholdMargin)
	}
}

func (c confidenceRule) evaluate(in Inputs) float64 {
	for _, metric := range c.metrics {
		s, ok := in.summary(metric)
		if !ok || s.Count < c.minCount {
			return c.low
		}
	}
	return c.high
}

// CategoryFor 风险分数对应的分级（单调）
func CategoryFor(score float64) models.RiskCategory {
	for _, b := range categoryBands {
		if score >= b.min {
			return b.category
		}
	}
	return models.RiskLow
}

// AgeGroup 年龄段标签
func AgeGroup(age int) string {
	return ageBrackets[bracketIndex(age)].label
}

func bracketIndex(age int) int {
	idx := 0
	for i, b := range ageBrackets {
		if age >= b.minAge {
			idx = i
		}
	}
	return idx
}

func populationRisk(m model, age int, score float64) models.PopulationRisk {
	idx := bracketIndex(age)
	baseline := m.baselines[idx]

	relative := 0.0
	if baseline > 0 {
		relative = stats.Round(score/baseline, 2)
	}
	return models.PopulationRisk{
		AgeGroup:         ageBrackets[idx].label,
		AgeGroupBaseline: baseline,
		RelativeRisk:     relative,
	}
}

// Package stats 提供风险引擎使用的时间序列统计（均值、总体标准差、变异系数、半段变化率）。
// 所有函数在分母可能为 0 时返回 ok=false，而不是 NaN。
package stats

import (
	"math"

	"github.com/montanaflynn/stats"
)

// Finite 过滤 NaN 和 ±Inf
func Finite(values []float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		out = append(out, v)
	}
	return out
}

// Mean 算术平均
func Mean(values []float64) (float64, bool) {
	if len(values) == 0 {
		return 0, false
	}
	m, err := stats.Mean(values)
	if err != nil || math.IsNaN(m) {
		return 0, false
	}
	return m, true
}

// StdDev 总体标准差
func StdDev(values []float64) (float64, bool) {
	if len(values) == 0 {
		return 0, false
	}
	sd, err := stats.StandardDeviationPopulation(values)
	if err != nil || math.IsNaN(sd) {
		return 0, false
	}
	return sd, true
}

// CoefficientOfVariation 变异系数（百分比）= stddev / |mean| * 100
func CoefficientOfVariation(values []float64) (float64, bool) {
	mean, ok := Mean(values)
	if !ok || mean == 0 {
		return 0, false
	}
	sd, ok := StdDev(values)
	if !ok {
		return 0, false
	}
	return sd / math.Abs(mean) * 100, true
}

// HalfSplitChange 将序列（按时间升序）分成前后两半，返回后半段均值相对前半段均值的变化率（百分比）。
// 奇数长度时中间值归入后半段。
func HalfSplitChange(values []float64) (float64, bool) {
	if len(values) < 2 {
		return 0, false
	}
	mid := len(values) / 2
	first, ok := Mean(values[:mid])
	if !ok || first == 0 {
		return 0, false
	}
	second, ok := Mean(values[mid:])
	if !ok {
		return 0, false
	}
	return (second - first) / math.Abs(first) * 100, true
}

// Clamp 限制到 [lo, hi]
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Round 保留 places 位小数
func Round(v float64, places int) float64 {
	r, err := stats.Round(v, places)
	if err != nil {
		return v
	}
	return r
}

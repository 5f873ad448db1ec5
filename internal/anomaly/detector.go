// Package anomaly 对单个指标的近期历史做异常检测：突增/骤降、持续偏高/偏低、波动异常。
package anomaly

import (
	"math"
	"sort"

	"healthfolio-risk/internal/models"
	"healthfolio-risk/internal/reference"
	"healthfolio-risk/internal/stats"

	"github.com/google/uuid"
)

const (
	// MinReadings 检测所需最少读数
	MinReadings = 3
	// SustainedWindow 持续偏离检测窗口
	SustainedWindow = 5
	// ErraticWindow 波动检测窗口
	ErraticWindow = 15

	spikeSigma        = 2.5
	erraticCoVPercent = 25.0
)

// severityBand 偏离比例阈值（从高到低，首个命中生效）
type severityBand struct {
	above    float64
	severity models.Severity
}

var spikeBands = []severityBand{
	{0.5, models.SeverityCritical},
	{0.3, models.SeverityHigh},
	{0.15, models.SeverityModerate},
}

var sustainedBands = []severityBand{
	{0.4, models.SeverityHigh},
	{0.2, models.SeverityModerate},
}

// 波动异常按变异系数（百分比）分级
var erraticBands = []severityBand{
	{50, models.SeverityHigh},
	{35, models.SeverityModerate},
}

func classify(value float64, bands []severityBand) models.Severity {
	for _, b := range bands {
		if value > b.above {
			return b.severity
		}
	}
	return models.SeverityLow
}

// Detector 异常检测器（无状态，可并发使用）
type Detector struct {
	ranges *reference.Table
	newID  func() string
}

// NewDetector 创建异常检测器
func NewDetector(ranges *reference.Table) *Detector {
	return &Detector{
		ranges: ranges,
		newID:  uuid.NewString,
	}
}

// Detect 检测单个指标的历史，最多返回一个告警；数据不足或未配置参考范围时返回 nil
func (d *Detector) Detect(metric models.MetricType, history []models.MetricReading) *models.AnomalyAlert {
	ref, err := d.ranges.Lookup(metric)
	if err != nil {
		return nil
	}

	readings := usable(history)
	if len(readings) < MinReadings {
		return nil
	}
	values := make([]float64, len(readings))
	for i, r := range readings {
		values[i] = r.Value
	}
	latest := readings[len(readings)-1]

	deviation, severity, ok := d.evaluate(values, ref)
	if !ok {
		return nil
	}

	msg := messageFor(ref.Category, deviation)
	return &models.AnomalyAlert{
		AlertID:              d.newID(),
		Severity:             severity,
		Category:             ref.Category,
		MetricType:           metric,
		CurrentValue:         latest.Value,
		NormalRange:          ref.NormalRange(),
		DeviationType:        deviation,
		RiskLevel:            severity.RiskLevel(),
		ClinicalSignificance: msg.significance,
		ImmediateActions:     append([]string(nil), msg.actions...),
		RelatedMetrics:       d.ranges.Related(metric),
		DetectedAt:           latest.Timestamp,
	}
}

// evaluate 按优先级依次检查，首个命中生效
func (d *Detector) evaluate(values []float64, ref reference.Range) (models.DeviationType, models.Severity, bool) {
	latest := values[len(values)-1]

	// 突增/骤降：基线为最新读数之前的历史
	baseline := values[:len(values)-1]
	mean, okMean := stats.Mean(baseline)
	sd, okSD := stats.StdDev(baseline)
	if okMean && okSD && sd > 0 {
		var deviation models.DeviationType
		switch {
		case latest > mean+spikeSigma*sd:
			deviation = models.DeviationSpike
		case latest < mean-spikeSigma*sd:
			deviation = models.DeviationCrash
		}
		if deviation != "" {
			severity := classify(rangeRatio(latest, ref.Max), spikeBands)
			if ref.BeyondCritical(latest) {
				severity = models.SeverityCritical
			}
			return deviation, severity, true
		}
	}

	if len(values) >= SustainedWindow {
		recent := values[len(values)-SustainedWindow:]
		var deviation models.DeviationType
		switch {
		case allAbove(recent, ref.Max):
			deviation = models.DeviationSustainedElevation
		case allBelow(recent, ref.Min):
			deviation = models.DeviationSustainedDepression
		}
		if deviation != "" {
			return deviation, classify(rangeRatio(latest, ref.Max), sustainedBands), true
		}
	}

	if len(values) >= ErraticWindow {
		cov, ok := stats.CoefficientOfVariation(values[len(values)-ErraticWindow:])
		if ok && cov > erraticCoVPercent {
			return models.DeviationErraticPattern, classify(cov, erraticBands), true
		}
	}

	return "", "", false
}

// rangeRatio |value - rangeMax| / rangeMax
func rangeRatio(value, rangeMax float64) float64 {
	if rangeMax == 0 {
		return 0
	}
	return math.Abs(value-rangeMax) / math.Abs(rangeMax)
}

func allAbove(values []float64, limit float64) bool {
	for _, v := range values {
		if v <= limit {
			return false
		}
	}
	return true
}

func allBelow(values []float64, limit float64) bool {
	for _, v := range values {
		if v >= limit {
			return false
		}
	}
	return true
}

// usable 过滤非有限值并按时间升序排序（不修改入参）
func usable(history []models.MetricReading) []models.MetricReading {
	out := make([]models.MetricReading, 0, len(history))
	for _, r := range history {
		if math.IsNaN(r.Value) || math.IsInf(r.Value, 0) {
			continue
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

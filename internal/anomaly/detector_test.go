package anomaly

import (
	"math"
	"testing"
	"time"

	"healthfolio-risk/internal/models"
	"healthfolio-risk/internal/reference"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

func newTestDetector(t *testing.T) *Detector {
	t.Helper()
	ranges, err := reference.LoadDefault()
	require.NoError(t, err)
	d := NewDetector(ranges)
	d.newID = func() string { return "alert-1" }
	return d
}

func series(metric models.MetricType, values ...float64) []models.MetricReading {
	out := make([]models.MetricReading, len(values))
	for i, v := range values {
		out[i] = models.MetricReading{
			UserID:     "user-1",
			MetricType: metric,
			Value:      v,
			Timestamp:  baseTime.Add(time.Duration(i) * time.Hour),
		}
	}
	return out
}

func repeat(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestDetect_SpikeAtThreeSigma(t *testing.T) {
	d := newTestDetector(t)

	// 基线均值 100，总体标准差 10
	values := []float64{90, 110, 90, 110, 90, 110, 90, 110, 130}
	alert := d.Detect(models.MetricHeartRate, series(models.MetricHeartRate, values...))

	require.NotNil(t, alert)
	assert.Equal(t, models.DeviationSpike, alert.DeviationType)
	assert.Equal(t, models.SeverityModerate, alert.Severity)
	assert.Equal(t, 50, alert.RiskLevel)
	assert.Equal(t, 130.0, alert.CurrentValue)
	assert.Equal(t, models.CategoryCardiovascular, alert.Category)
	assert.Equal(t, "alert-1", alert.AlertID)
	assert.Equal(t, baseTime.Add(8*time.Hour), alert.DetectedAt)
	assert.Equal(t, 100.0, alert.NormalRange.Max)
	assert.NotEmpty(t, alert.RelatedMetrics)
	assert.NotEmpty(t, alert.ImmediateActions)
	assert.NotEmpty(t, alert.ClinicalSignificance)
}

func TestDetect_Crash(t *testing.T) {
	d := newTestDetector(t)

	values := []float64{45, 50, 45, 50, 45, 50, 10}
	alert := d.Detect(models.MetricHRV, series(models.MetricHRV, values...))

	require.NotNil(t, alert)
	assert.Equal(t, models.DeviationCrash, alert.DeviationType)
	assert.Equal(t, models.SeverityCritical, alert.Severity)
	assert.Equal(t, 90, alert.RiskLevel)
}

func TestDetect_CriticalBoundEscalates(t *testing.T) {
	d := newTestDetector(t)

	// |9-6|/6 = 0.5 只够 high，越过 critical_max 9 后升级
	values := []float64{3, 4, 3, 4, 3, 4, 9}
	alert := d.Detect(models.MetricStress, series(models.MetricStress, values...))

	require.NotNil(t, alert)
	assert.Equal(t, models.DeviationSpike, alert.DeviationType)
	assert.Equal(t, models.SeverityCritical, alert.Severity)
}

func TestDetect_ConstantHistory(t *testing.T) {
	d := newTestDetector(t)

	alert := d.Detect(models.MetricHeartRate, series(models.MetricHeartRate, repeat(72, 20)...))
	assert.Nil(t, alert)
}

func TestDetect_ConstantHistoryAboveRange(t *testing.T) {
	d := newTestDetector(t)

	alert := d.Detect(models.MetricGlucose, series(models.MetricGlucose, repeat(250, 20)...))

	require.NotNil(t, alert)
	assert.Equal(t, models.DeviationSustainedElevation, alert.DeviationType)
	// |250-180|/180 ≈ 0.39
	assert.Equal(t, models.SeverityModerate, alert.Severity)
}

func TestDetect_SustainedElevation(t *testing.T) {
	d := newTestDetector(t)

	values := []float64{80, 80, 80, 80, 105, 106, 107, 108, 110}
	alert := d.Detect(models.MetricHeartRate, series(models.MetricHeartRate, values...))

	require.NotNil(t, alert)
	assert.Equal(t, models.DeviationSustainedElevation, alert.DeviationType)
	assert.Equal(t, models.SeverityLow, alert.Severity)
	assert.Equal(t, 30, alert.RiskLevel)
}

func TestDetect_SustainedDepression(t *testing.T) {
	d := newTestDetector(t)

	values := []float64{6.5, 6.4, 6.2, 6.3, 6.1}
	alert := d.Detect(models.MetricSleepDuration, series(models.MetricSleepDuration, values...))

	require.NotNil(t, alert)
	assert.Equal(t, models.DeviationSustainedDepression, alert.DeviationType)
	assert.Equal(t, models.CategoryNeurological, alert.Category)
}

func TestDetect_ErraticPattern(t *testing.T) {
	d := newTestDetector(t)

	values := make([]float64, 15)
	for i := range values {
		if i%2 == 0 {
			values[i] = 50
		} else {
			values[i] = 100
		}
	}
	alert := d.Detect(models.MetricHeartRate, series(models.MetricHeartRate, values...))

	require.NotNil(t, alert)
	assert.Equal(t, models.DeviationErraticPattern, alert.DeviationType)
	// CoV ≈ 34%
	assert.Equal(t, models.SeverityLow, alert.Severity)
}

func TestDetect_ErraticNeedsFifteenReadings(t *testing.T) {
	d := newTestDetector(t)

	values := []float64{50, 100, 50, 100, 50, 100, 50, 100, 50, 100, 50, 100, 50, 100}
	alert := d.Detect(models.MetricHeartRate, series(models.MetricHeartRate, values...))
	assert.Nil(t, alert)
}

func TestDetect_InsufficientData(t *testing.T) {
	d := newTestDetector(t)

	assert.Nil(t, d.Detect(models.MetricHeartRate, nil))
	assert.Nil(t, d.Detect(models.MetricHeartRate, series(models.MetricHeartRate, 70, 200)))
	assert.Nil(t, d.Detect(models.MetricHeartRate,
		series(models.MetricHeartRate, math.NaN(), 70, math.Inf(1), 200)))
}

func TestDetect_UnknownMetric(t *testing.T) {
	d := newTestDetector(t)

	metric := models.MetricType("cholesterol")
	assert.Nil(t, d.Detect(metric, series(metric, 100, 100, 400)))
}

func TestDetect_UnorderedInput(t *testing.T) {
	d := newTestDetector(t)

	readings := series(models.MetricHeartRate, 90, 110, 90, 110, 90, 110, 90, 110, 130)
	reversed := make([]models.MetricReading, len(readings))
	for i, r := range readings {
		reversed[len(readings)-1-i] = r
	}

	alert := d.Detect(models.MetricHeartRate, reversed)
	require.NotNil(t, alert)
	assert.Equal(t, models.DeviationSpike, alert.DeviationType)
	assert.Equal(t, 130.0, alert.CurrentValue)
	assert.Equal(t, 90.0, reversed[len(reversed)-1].Value, "input must not be reordered")
}

func TestDetect_ScenarioGlucoseNoAnomaly(t *testing.T) {
	d := newTestDetector(t)

	values := []float64{150, 145, 155, 140, 148, 152, 147, 149, 151, 146}
	assert.Nil(t, d.Detect(models.MetricGlucose, series(models.MetricGlucose, values...)))
}

func TestClassify(t *testing.T) {
	assert.Equal(t, models.SeverityCritical, classify(0.51, spikeBands))
	assert.Equal(t, models.SeverityHigh, classify(0.5, spikeBands))
	assert.Equal(t, models.SeverityModerate, classify(0.3, spikeBands))
	assert.Equal(t, models.SeverityLow, classify(0.15, spikeBands))

	assert.Equal(t, models.SeverityHigh, classify(0.41, sustainedBands))
	assert.Equal(t, models.SeverityModerate, classify(0.4, sustainedBands))
	assert.Equal(t, models.SeverityLow, classify(0.2, sustainedBands))
}

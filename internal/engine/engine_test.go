package engine

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"healthfolio-risk/internal/models"
	"healthfolio-risk/internal/norms"
	"healthfolio-risk/internal/reference"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testUser = "user-1"

var (
	anchor  = time.Date(2024, 6, 30, 8, 0, 0, 0, time.UTC)
	fixedAt = time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
)

func newTestEngine(t *testing.T, store MetricStore, profiles DemographicProfile) *Engine {
	t.Helper()
	normTable, err := norms.LoadDefault()
	require.NoError(t, err)
	ranges, err := reference.LoadDefault()
	require.NoError(t, err)

	e := NewEngine(store, profiles, normTable, ranges, DefaultOptions(), zap.NewNop())
	e.now = func() time.Time { return fixedAt }
	e.newID = func() string { return "analysis-1" }
	return e
}

// daily 以 anchor 为最后一天，按天生成读数
func daily(metric models.MetricType, values ...float64) []models.MetricReading {
	out := make([]models.MetricReading, len(values))
	start := anchor.AddDate(0, 0, -(len(values) - 1))
	for i, v := range values {
		out[i] = models.MetricReading{
			UserID:     testUser,
			MetricType: metric,
			Value:      v,
			Timestamp:  start.AddDate(0, 0, i),
		}
	}
	return out
}

func profiles(age int) *fakeProfiles {
	return &fakeProfiles{profiles: map[string]models.Demographic{
		testUser: {Age: age, Gender: models.GenderFemale, ActivityLevel: models.ActivityModerate},
	}}
}

func TestAnalyze_GlucoseScenario(t *testing.T) {
	store := newFakeMetricStore()
	store.add(testUser, daily(models.MetricGlucose, 150, 145, 155, 140, 148, 152, 147, 149, 151, 146)...)

	e := newTestEngine(t, store, profiles(35))
	dashboard, err := e.Analyze(context.Background(), testUser)
	require.NoError(t, err)

	assert.Equal(t, testUser, dashboard.UserID)
	assert.Equal(t, "analysis-1", dashboard.AnalysisID)
	assert.Equal(t, fixedAt, dashboard.GeneratedAt)
	assert.Empty(t, dashboard.ActiveAlerts)

	require.Len(t, dashboard.ConditionRisks, 1)
	diabetes := dashboard.ConditionRisks[0]
	assert.Equal(t, models.ConditionDiabetes, diabetes.Condition)
	assert.GreaterOrEqual(t, diabetes.RiskScore, 40.0)
	assert.GreaterOrEqual(t, diabetes.RiskCategory.Rank(), models.RiskModerate.Rank())
	assert.Equal(t, models.OverallModerate, dashboard.OverallRiskLevel)

	require.Len(t, dashboard.PopulationComparisons, 1)
	assert.Equal(t, models.MetricGlucose, dashboard.PopulationComparisons[0].MetricType)
	assert.Equal(t, "30d", dashboard.RiskEvolution.Timeframe)
	assert.Equal(t, 1, store.calls)
}

func TestAnalyze_RecentWindowOnlyIsStable(t *testing.T) {
	store := newFakeMetricStore()
	store.add(testUser, daily(models.MetricGlucose, 150, 145, 155, 140, 148, 152, 147, 149, 151, 146)...)

	e := newTestEngine(t, store, profiles(35))
	dashboard, err := e.Analyze(context.Background(), testUser)
	require.NoError(t, err)

	ev := dashboard.RiskEvolution
	assert.Equal(t, models.TrajectoryStable, ev.Trajectory)
	assert.Equal(t, 0.0, ev.PriorRisk)
	assert.Equal(t, 40.0, ev.CurrentRisk)
	assert.Equal(t, 0.0, ev.RiskChange)
}

func TestAnalyze_CardiovascularScenario(t *testing.T) {
	store := newFakeMetricStore()
	store.add(testUser, daily(models.MetricHRV, 22, 21, 23, 22, 20, 24, 22)...)
	store.add(testUser, daily(models.MetricHeartRate, 90, 91, 89, 90, 92, 88, 90)...)

	e := newTestEngine(t, store, profiles(40))
	dashboard, err := e.Analyze(context.Background(), testUser)
	require.NoError(t, err)

	var cvd *models.ConditionRiskScore
	for i := range dashboard.ConditionRisks {
		if dashboard.ConditionRisks[i].Condition == models.ConditionCardiovascularDisease {
			cvd = &dashboard.ConditionRisks[i]
		}
	}
	require.NotNil(t, cvd)
	assert.GreaterOrEqual(t, cvd.RiskScore, 55.0)
	assert.Equal(t, models.RiskHigh, cvd.RiskCategory)
}

func TestAnalyze_CriticalAlertDominates(t *testing.T) {
	store := newFakeMetricStore()
	store.add(testUser, daily(models.MetricHeartRate, 70, 72, 71, 69, 70, 72, 71, 185)...)

	e := newTestEngine(t, store, profiles(30))
	dashboard, err := e.Analyze(context.Background(), testUser)
	require.NoError(t, err)

	require.Len(t, dashboard.ActiveAlerts, 1)
	alert := dashboard.ActiveAlerts[0]
	assert.Equal(t, models.DeviationSpike, alert.DeviationType)
	assert.Equal(t, models.SeverityCritical, alert.Severity)
	require.NotNil(t, alert.PopulationComparison)
	assert.Equal(t, models.MetricHeartRate, alert.PopulationComparison.MetricType)

	assert.Equal(t, models.OverallCritical, dashboard.OverallRiskLevel)
	assert.Equal(t, 1, dashboard.UrgentFlags.Count)
	assert.True(t, dashboard.UrgentFlags.RequiresImmediateAttention)
	assert.Equal(t, []models.MetricType{models.MetricHeartRate}, dashboard.UrgentFlags.CriticalMetrics)
}

func TestAnalyze_NoReadings(t *testing.T) {
	e := newTestEngine(t, newFakeMetricStore(), profiles(30))
	dashboard, err := e.Analyze(context.Background(), testUser)
	require.NoError(t, err)

	assert.Equal(t, models.OverallLow, dashboard.OverallRiskLevel)
	assert.Empty(t, dashboard.ActiveAlerts)
	assert.Empty(t, dashboard.ConditionRisks)
	assert.Equal(t, models.TrajectoryStable, dashboard.RiskEvolution.Trajectory)

	data, err := json.Marshal(dashboard)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"activeAlerts":[]`)
	assert.Contains(t, string(data), `"conditionRisks":[]`)
}

func TestAnalyze_FetchReadingsError(t *testing.T) {
	store := newFakeMetricStore()
	store.err = errors.New("connection refused")

	e := newTestEngine(t, store, profiles(30))
	dashboard, err := e.Analyze(context.Background(), testUser)
	assert.Nil(t, dashboard)
	assert.True(t, errors.Is(err, ErrFetchReadings))
	assert.Contains(t, err.Error(), "connection refused")
}

func TestAnalyze_FetchProfileError(t *testing.T) {
	store := newFakeMetricStore()
	store.add(testUser, daily(models.MetricGlucose, 150, 150, 150)...)

	e := newTestEngine(t, store, &fakeProfiles{err: errors.New("not found")})
	dashboard, err := e.Analyze(context.Background(), testUser)
	assert.Nil(t, dashboard)
	assert.True(t, errors.Is(err, ErrFetchProfile))
}

func TestAnalyze_ContextCanceled(t *testing.T) {
	store := newFakeMetricStore()
	store.delay = time.Second

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := newTestEngine(t, store, profiles(30))
	dashboard, err := e.Analyze(ctx, testUser)
	assert.Nil(t, dashboard)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestEvaluate_WindowsAndFiltering(t *testing.T) {
	e := newTestEngine(t, newFakeMetricStore(), profiles(30))

	var readings []models.MetricReading
	// 前一周期：收缩压 145（高血压 50 分）
	for i := 0; i < 5; i++ {
		readings = append(readings, models.MetricReading{
			MetricType: models.MetricBloodPressureSystolic,
			Value:      145,
			Timestamp:  anchor.AddDate(0, 0, -45+i),
		})
	}
	// 当前周期：收缩压 125（20 分）
	for i := 0; i < 5; i++ {
		readings = append(readings, models.MetricReading{
			MetricType: models.MetricBloodPressureSystolic,
			Value:      125,
			Timestamp:  anchor.AddDate(0, 0, -4+i),
		})
	}
	readings = append(readings,
		models.MetricReading{MetricType: models.MetricBloodPressureSystolic, Value: math.NaN(), Timestamp: anchor},
		models.MetricReading{MetricType: "cholesterol", Value: 300, Timestamp: anchor},
	)

	dashboard := e.Evaluate(testUser, readings, models.Demographic{Age: 30})

	require.Len(t, dashboard.ConditionRisks, 1)
	assert.Equal(t, 20.0, dashboard.ConditionRisks[0].RiskScore)
	assert.Equal(t, 50.0, dashboard.RiskEvolution.PriorRisk)
	assert.Equal(t, 20.0, dashboard.RiskEvolution.CurrentRisk)
	assert.Equal(t, -30.0, dashboard.RiskEvolution.RiskChange)
	assert.Equal(t, models.TrajectoryImproving, dashboard.RiskEvolution.Trajectory)
}

func TestOptions(t *testing.T) {
	opts := Options{}.withDefaults()
	assert.Equal(t, DefaultOptions(), opts)
	assert.Equal(t, "30d", opts.Timeframe())

	opts = Options{RecentWindow: 7 * 24 * time.Hour, AnomalyHistory: 10, TrendReadings: 6}.withDefaults()
	assert.Equal(t, "7d", opts.Timeframe())
	assert.Equal(t, 10, opts.AnomalyHistory)
	assert.Equal(t, 6, opts.TrendReadings)
}

func TestAnalyze_FetchesEachSourceOnce(t *testing.T) {
	store := new(MockMetricStore)
	store.On("GetReadings", mock.Anything, testUser).
		Return(daily(models.MetricGlucose, 150, 145, 155, 140, 148, 152, 147, 149, 151, 146), nil).
		Once()

	demographics := new(MockDemographicProfile)
	demographics.On("GetDemographic", mock.Anything, testUser).
		Return(models.Demographic{Age: 50, Gender: models.GenderMale, ActivityLevel: models.ActivityLight}, nil).
		Once()

	e := newTestEngine(t, store, demographics)
	dashboard, err := e.Analyze(context.Background(), testUser)
	require.NoError(t, err)
	require.Len(t, dashboard.ConditionRisks, 1)

	// 年龄 ≥45 的隐式加分来自人口学信息
	diabetes := dashboard.ConditionRisks[0]
	assert.Equal(t, models.ConditionDiabetes, diabetes.Condition)
	require.Len(t, diabetes.Adjustments, 1)
	assert.Equal(t, 15.0, diabetes.Adjustments[0].Points)

	store.AssertExpectations(t)
	demographics.AssertExpectations(t)
}

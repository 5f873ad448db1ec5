package norms

import (
	"errors"
	"testing"

	"healthfolio-risk/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefault(t *testing.T) {
	table, err := LoadDefault()
	require.NoError(t, err)
	assert.NotEmpty(t, table.Version())
	assert.Greater(t, table.Len(), 10)
}

func TestSelect_AgeBracket(t *testing.T) {
	table, err := LoadDefault()
	require.NoError(t, err)

	demo := models.Demographic{Age: 52, Gender: models.GenderFemale, ActivityLevel: models.ActivityModerate}
	norm, err := table.Select(models.MetricHRV, demo)
	require.NoError(t, err)
	assert.Equal(t, 40, norm.Filter.AgeMin)
	assert.Equal(t, 59, norm.Filter.AgeMax)
}

func TestSelect_GenderSpecific(t *testing.T) {
	table, err := LoadDefault()
	require.NoError(t, err)

	male, err := table.Select(models.MetricBloodPressureSystolic,
		models.Demographic{Age: 45, Gender: models.GenderMale, ActivityLevel: models.ActivityLight})
	require.NoError(t, err)
	assert.Equal(t, models.GenderMale, male.Filter.Gender)

	female, err := table.Select(models.MetricBloodPressureSystolic,
		models.Demographic{Age: 45, Gender: models.GenderFemale, ActivityLevel: models.ActivityLight})
	require.NoError(t, err)
	assert.Equal(t, models.GenderFemale, female.Filter.Gender)
}

func TestSelect_ActivityLevelBreaksTie(t *testing.T) {
	table, err := LoadDefault()
	require.NoError(t, err)

	norm, err := table.Select(models.MetricSteps,
		models.Demographic{Age: 30, Gender: models.GenderMale, ActivityLevel: models.ActivitySedentary})
	require.NoError(t, err)
	assert.Equal(t, models.ActivitySedentary, norm.Filter.ActivityLevel)

	norm, err = table.Select(models.MetricSteps,
		models.Demographic{Age: 30, Gender: models.GenderMale, ActivityLevel: models.ActivityActive})
	require.NoError(t, err)
	assert.Equal(t, models.ActivityAll, norm.Filter.ActivityLevel)
}

func TestSelect_NoNorm(t *testing.T) {
	table, err := LoadDefault()
	require.NoError(t, err)

	_, err = table.Select(models.MetricMood, models.Demographic{Age: 30, Gender: models.GenderMale})
	assert.True(t, errors.Is(err, ErrNoNorm))
}

func TestSelect_FallsBackWhenNothingContainsAge(t *testing.T) {
	table, err := ParseYAML([]byte(`
version: test
norms:
  - metric: glucose
    unit: mg/dL
    filter: {age_min: 18, age_max: 44, gender: all, activity_level: all}
    statistics: {mean: 95, median: 93, stddev: 14, p10: 82, p25: 87, p50: 93, p75: 100, p90: 110, p95: 121, sample_size: 10, source: a, study_year: 2018}
    healthy_range: {min: 70, max: 99}
  - metric: glucose
    unit: mg/dL
    filter: {age_min: 45, age_max: 64, gender: all, activity_level: all}
    statistics: {mean: 104, median: 100, stddev: 22, p10: 86, p25: 92, p50: 100, p75: 110, p90: 128, p95: 148, sample_size: 10, source: b, study_year: 2018}
    healthy_range: {min: 70, max: 99}
`))
	require.NoError(t, err)

	// 两条都只得性别分，平局取先出现的
	norm, err := table.Select(models.MetricGlucose, models.Demographic{Age: 10, Gender: models.GenderOther})
	require.NoError(t, err)
	assert.Equal(t, "a", norm.Statistics.Source)
}

func TestMatchScore(t *testing.T) {
	f := models.DemographicFilter{AgeMin: 18, AgeMax: 39, Gender: models.GenderFemale, ActivityLevel: models.ActivityActive}

	tests := []struct {
		name string
		demo models.Demographic
		want int
	}{
		{"full match", models.Demographic{Age: 30, Gender: models.GenderFemale, ActivityLevel: models.ActivityActive}, 6},
		{"age and gender", models.Demographic{Age: 30, Gender: models.GenderFemale, ActivityLevel: models.ActivityLight}, 5},
		{"age only", models.Demographic{Age: 30, Gender: models.GenderMale, ActivityLevel: models.ActivityLight}, 3},
		{"nothing", models.Demographic{Age: 70, Gender: models.GenderMale, ActivityLevel: models.ActivityLight}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchScore(f, tt.demo))
		})
	}
}

func TestParseYAML_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"malformed", "norms: ["},
		{"missing version", "norms: []"},
		{"unknown metric", `
version: x
norms:
  - metric: cholesterol
    unit: mg/dL
    filter: {age_min: 18, age_max: 99, gender: all, activity_level: all}
    statistics: {mean: 1, median: 1, stddev: 1, p10: 1, p25: 1, p50: 1, p75: 1, p90: 1, p95: 1, sample_size: 1, source: s, study_year: 2000}
    healthy_range: {min: 0, max: 1}
`},
		{"percentiles out of order", `
version: x
norms:
  - metric: glucose
    unit: mg/dL
    filter: {age_min: 18, age_max: 99, gender: all, activity_level: all}
    statistics: {mean: 1, median: 1, stddev: 1, p10: 5, p25: 4, p50: 6, p75: 7, p90: 8, p95: 9, sample_size: 1, source: s, study_year: 2000}
    healthy_range: {min: 0, max: 1}
`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseYAML([]byte(tt.data))
			assert.Error(t, err)
		})
	}
}

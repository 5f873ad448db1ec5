package models

import (
	"time"
)

// MetricType 指标类型（封闭集合）
type MetricType string

const (
	MetricHeartRate              MetricType = "heart_rate"
	MetricGlucose                MetricType = "glucose"
	MetricBloodPressureSystolic  MetricType = "blood_pressure_systolic"
	MetricBloodPressureDiastolic MetricType = "blood_pressure_diastolic"
	MetricBMI                    MetricType = "bmi"
	MetricWeight                 MetricType = "weight"
	MetricHRV                    MetricType = "hrv"
	MetricSleepDuration          MetricType = "sleep_duration"
	MetricMood                   MetricType = "mood"
	MetricStress                 MetricType = "stress"
	MetricOxygenSaturation       MetricType = "oxygen_saturation"
	MetricRespiratoryRate        MetricType = "respiratory_rate"
	MetricSteps                  MetricType = "steps"
)

// AllMetricTypes 返回所有受支持的指标类型（固定顺序）
func AllMetricTypes() []MetricType {
	return []MetricType{
		MetricHeartRate,
		MetricGlucose,
		MetricBloodPressureSystolic,
		MetricBloodPressureDiastolic,
		MetricBMI,
		MetricWeight,
		MetricHRV,
		MetricSleepDuration,
		MetricMood,
		MetricStress,
		MetricOxygenSaturation,
		MetricRespiratoryRate,
		MetricSteps,
	}
}

// IsKnown 是否为受支持的指标类型
func (m MetricType) IsKnown() bool {
	for _, known := range AllMetricTypes() {
		if m == known {
			return true
		}
	}
	return false
}

// MetricReading 单条指标读数（外部创建，只读）
type MetricReading struct {
	UserID     string     `json:"userId"`
	MetricType MetricType `json:"metricType"`
	Value      float64    `json:"value"`
	Unit       string     `json:"unit"`
	Timestamp  time.Time  `json:"timestamp"`
}

// Gender 性别
type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
	GenderOther  Gender = "other"
	GenderAll    Gender = "all" // 仅用于 PopulationNorm 过滤条件
)

// ActivityLevel 活动水平
type ActivityLevel string

const (
	ActivitySedentary  ActivityLevel = "sedentary"
	ActivityLight      ActivityLevel = "light"
	ActivityModerate   ActivityLevel = "moderate"
	ActivityActive     ActivityLevel = "active"
	ActivityVeryActive ActivityLevel = "very_active"
	ActivityAll        ActivityLevel = "all"
)

// Demographic 用户人口学信息（来自 DemographicProfile）
type Demographic struct {
	Age           int           `json:"age"`
	Gender        Gender        `json:"gender"`
	ActivityLevel ActivityLevel `json:"activityLevel"`
}

package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"healthfolio-risk/internal/models"

	"go.uber.org/zap"
)

// bloodPressureType 以 "收缩压/舒张压" 文本存储的血压类型
const bloodPressureType = "blood_pressure"

// MetricRepository 健康指标仓库（health_metrics 表，只读）
type MetricRepository struct {
	db       *sql.DB
	logger   *zap.Logger
	lookback time.Duration
	now      func() time.Time
}

// NewMetricRepository 创建指标仓库；lookback 为读取的历史时长，<= 0 表示不限
func NewMetricRepository(db *sql.DB, lookback time.Duration, logger *zap.Logger) *MetricRepository {
	return &MetricRepository{
		db:       db,
		logger:   logger,
		lookback: lookback,
		now:      time.Now,
	}
}

// GetReadings 读取用户在 lookback 内的全部读数
// 血压 "120/80" 拆分为 blood_pressure_systolic / blood_pressure_diastolic 两条；无法解析的行跳过
func (r *MetricRepository) GetReadings(ctx context.Context, userID string) ([]models.MetricReading, error) {
	if userID == "" {
		return nil, fmt.Errorf("user_id is required")
	}

	var since time.Time
	if r.lookback > 0 {
		since = r.now().Add(-r.lookback)
	}

	query := `
		SELECT metric_type, value, COALESCE(unit, ''), recorded_at
		FROM health_metrics
		WHERE user_id = $1
		  AND recorded_at >= $2
		ORDER BY recorded_at ASC
	`
	rows, err := r.db.QueryContext(ctx, query, userID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query health metrics: %w", err)
	}
	defer rows.Close()

	var readings []models.MetricReading
	skipped := 0
	for rows.Next() {
		var (
			metricType string
			value      string
			unit       string
			recordedAt time.Time
		)
		if err := rows.Scan(&metricType, &value, &unit, &recordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan health metric: %w", err)
		}

		parsed, err := parseReadings(userID, metricType, value, unit, recordedAt)
		if err != nil {
			skipped++
			r.logger.Debug("Skipping unparsable health metric",
				zap.String("user_id", userID),
				zap.String("metric_type", metricType),
				zap.String("value", value),
				zap.Error(err),
			)
			continue
		}
		readings = append(readings, parsed...)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate health metrics: %w", err)
	}

	if skipped > 0 {
		r.logger.Warn("Skipped unparsable health metrics",
			zap.String("user_id", userID),
			zap.Int("skipped", skipped),
		)
	}
	return readings, nil
}

// ListActiveUsers 返回 since 之后有新读数的用户
func (r *MetricRepository) ListActiveUsers(ctx context.Context, since time.Time) ([]string, error) {
	query := `
		SELECT DISTINCT user_id
		FROM health_metrics
		WHERE recorded_at >= $1
		ORDER BY user_id
	`
	rows, err := r.db.QueryContext(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query active users: %w", err)
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("failed to scan user_id: %w", err)
		}
		users = append(users, userID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate active users: %w", err)
	}
	return users, nil
}

func parseReadings(userID, metricType, value, unit string, recordedAt time.Time) ([]models.MetricReading, error) {
	metricType = strings.ToLower(strings.TrimSpace(metricType))
	value = strings.TrimSpace(value)

	if metricType == bloodPressureType {
		systolic, diastolic, err := ParseBloodPressure(value)
		if err != nil {
			return nil, err
		}
		if unit == "" {
			unit = "mmHg"
		}
		return []models.MetricReading{
			{UserID: userID, MetricType: models.MetricBloodPressureSystolic, Value: systolic, Unit: unit, Timestamp: recordedAt},
			{UserID: userID, MetricType: models.MetricBloodPressureDiastolic, Value: diastolic, Unit: unit, Timestamp: recordedAt},
		}, nil
	}

	metric := models.MetricType(metricType)
	if !metric.IsKnown() {
		return nil, fmt.Errorf("unknown metric type %q", metricType)
	}
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid value: %w", err)
	}
	return []models.MetricReading{
		{UserID: userID, MetricType: metric, Value: v, Unit: unit, Timestamp: recordedAt},
	}, nil
}

// ParseBloodPressure 解析 "120/80" 格式的血压值
func ParseBloodPressure(value string) (systolic, diastolic float64, err error) {
	parts := strings.Split(value, "/")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid blood pressure %q", value)
	}
	systolic, err = strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid systolic value %q: %w", parts[0], err)
	}
	diastolic, err = strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid diastolic value %q: %w", parts[1], err)
	}
	return systolic, diastolic, nil
}

package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"healthfolio-risk/internal/models"

	"go.uber.org/zap"
)

// ErrProfileNotFound 用户没有人口学档案
var ErrProfileNotFound = errors.New("user profile not found")

// ProfileRepository 用户人口学档案仓库（user_profiles 表，只读）
type ProfileRepository struct {
	db     *sql.DB
	logger *zap.Logger
	now    func() time.Time
}

// NewProfileRepository 创建档案仓库
func NewProfileRepository(db *sql.DB, logger *zap.Logger) *ProfileRepository {
	return &ProfileRepository{
		db:     db,
		logger: logger,
		now:    time.Now,
	}
}

// GetDemographic 读取年龄（由出生日期计算）、性别、活动水平
func (r *ProfileRepository) GetDemographic(ctx context.Context, userID string) (models.Demographic, error) {
	if userID == "" {
		return models.Demographic{}, fmt.Errorf("user_id is required")
	}

	query := `
		SELECT date_of_birth, COALESCE(gender, ''), COALESCE(activity_level, '')
		FROM user_profiles
		WHERE user_id = $1
	`
	var (
		dob      sql.NullTime
		gender   string
		activity string
	)
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&dob, &gender, &activity)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Demographic{}, fmt.Errorf("%w: %s", ErrProfileNotFound, userID)
		}
		return models.Demographic{}, fmt.Errorf("failed to query user profile: %w", err)
	}

	// 出生日期缺失时年龄记为 0（未知），只影响与年龄相关的规则
	demo := models.Demographic{
		Gender:        normalizeGender(gender),
		ActivityLevel: normalizeActivity(activity),
	}
	if dob.Valid {
		demo.Age = AgeAt(dob.Time, r.now())
	} else {
		r.logger.Warn("User profile has no date of birth",
			zap.String("user_id", userID),
		)
	}
	r.logger.Debug("Loaded demographic profile",
		zap.String("user_id", userID),
		zap.Int("age", demo.Age),
		zap.String("gender", string(demo.Gender)),
		zap.String("activity_level", string(demo.ActivityLevel)),
	)
	return demo, nil
}

// AgeAt 计算 at 时刻的周岁
func AgeAt(dob, at time.Time) int {
	age := at.Year() - dob.Year()
	if at.Month() < dob.Month() || (at.Month() == dob.Month() && at.Day() < dob.Day()) {
		age--
	}
	if age < 0 {
		return 0
	}
	return age
}

func normalizeGender(v string) models.Gender {
	switch g := models.Gender(strings.ToLower(strings.TrimSpace(v))); g {
	case models.GenderMale, models.GenderFemale:
		return g
	case "m":
		return models.GenderMale
	case "f":
		return models.GenderFemale
	default:
		return models.GenderOther
	}
}

func normalizeActivity(v string) models.ActivityLevel {
	level := models.ActivityLevel(strings.ToLower(strings.ReplaceAll(strings.TrimSpace(v), " ", "_")))
	switch level {
	case models.ActivitySedentary, models.ActivityLight, models.ActivityModerate, models.ActivityActive, models.ActivityVeryActive:
		return level
	default:
		return ""
	}
}

// Package norms 管理人群常模表（PopulationNormTable）：加载、校验与按人口学特征匹配。
package norms

import (
	_ "embed"
	"errors"
	"fmt"

	"healthfolio-risk/internal/models"

	"github.com/go-playground/validator/v10"
)

//go:embed norms.yaml
var defaultNorms []byte

// ErrNoNorm 指标没有可用的常模
var ErrNoNorm = errors.New("no population norm for metric")

// 匹配打分：年龄区间包含 +3，性别匹配（或 all）+2，活动水平匹配 +1
const (
	scoreAgeContained = 3
	scoreGenderMatch  = 2
	scoreActivity     = 1
)

type normFile struct {
	Version string                  `yaml:"version" json:"version" validate:"required"`
	Norms   []models.PopulationNorm `yaml:"norms" json:"norms" validate:"required,dive"`
}

// Table 人群常模表，启动时加载一次，运行期只读
type Table struct {
	version  string
	byMetric map[models.MetricType][]models.PopulationNorm
	count    int
}

func newTable(file normFile) (*Table, error) {
	if err := validator.New().Struct(file); err != nil {
		return nil, fmt.Errorf("invalid population norm table: %w", err)
	}
	t := &Table{
		version:  file.Version,
		byMetric: make(map[models.MetricType][]models.PopulationNorm),
	}
	for i, n := range file.Norms {
		if !n.MetricType.IsKnown() {
			return nil, fmt.Errorf("norm %d: unknown metric %q", i, n.MetricType)
		}
		// 保持配置顺序，平局时先出现者胜出
		t.byMetric[n.MetricType] = append(t.byMetric[n.MetricType], n)
		t.count++
	}
	return t, nil
}

// Version 常模表版本
func (t *Table) Version() string {
	return t.version
}

// Len 常模条目数
func (t *Table) Len() int {
	return t.count
}

// All 按指标顺序返回全部常模条目
func (t *Table) All() []models.PopulationNorm {
	out := make([]models.PopulationNorm, 0, t.count)
	for _, metric := range models.AllMetricTypes() {
		out = append(out, t.byMetric[metric]...)
	}
	return out
}

// Select 为指定指标和人口学特征选择最匹配的常模
func (t *Table) Select(metric models.MetricType, demo models.Demographic) (models.PopulationNorm, error) {
	candidates := t.byMetric[metric]
	if len(candidates) == 0 {
		return models.PopulationNorm{}, fmt.Errorf("%w: %s", ErrNoNorm, metric)
	}

	best, bestScore := 0, -1
	for i, n := range candidates {
		score := MatchScore(n.Filter, demo)
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	return candidates[best], nil
}

// MatchScore 计算常模过滤条件与用户人口学特征的匹配分
func MatchScore(f models.DemographicFilter, demo models.Demographic) int {
	score := 0
	if f.ContainsAge(demo.Age) {
		score += scoreAgeContained
	}
	if f.Gender == models.GenderAll || f.Gender == demo.Gender {
		score += scoreGenderMatch
	}
	if f.ActivityLevel == demo.ActivityLevel {
		score += scoreActivity
	}
	return score
}

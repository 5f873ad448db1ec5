// Package reference 维护每个指标的参考范围、临床类别、趋势方向和关联指标。
package reference

import (
	_ "embed"
	"errors"
	"fmt"

	"healthfolio-risk/internal/models"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

//go:embed ranges.yaml
var defaultRanges []byte

// ErrUnknownMetric 指标没有参考范围配置
var ErrUnknownMetric = errors.New("no reference range for metric")

// Direction 趋势方向语义
type Direction string

const (
	LowerIsBetter  Direction = "lower_is_better"
	HigherIsBetter Direction = "higher_is_better"
)

// Range 单个指标的参考范围
type Range struct {
	Metric      models.MetricType    `yaml:"metric" validate:"required"`
	Unit        string               `yaml:"unit" validate:"required"`
	Min         float64              `yaml:"min"`
	Max         float64              `yaml:"max" validate:"gtfield=Min"`
	CriticalMin *float64             `yaml:"critical_min"`
	CriticalMax *float64             `yaml:"critical_max"`
	Description string               `yaml:"description" validate:"required"`
	Category    models.AlertCategory `yaml:"category" validate:"required,oneof=cardiovascular metabolic neurological respiratory psychological"`
	Direction   Direction            `yaml:"direction" validate:"required,oneof=lower_is_better higher_is_better"`
	Related     []models.MetricType  `yaml:"related"`
}

// NormalRange 转换为告警中的参考范围
func (r Range) NormalRange() models.NormalRange {
	return models.NormalRange{Min: r.Min, Max: r.Max, Description: r.Description}
}

// BeyondCritical 数值是否越过临床危急值
func (r Range) BeyondCritical(value float64) bool {
	if r.CriticalMin != nil && value <= *r.CriticalMin {
		return true
	}
	if r.CriticalMax != nil && value >= *r.CriticalMax {
		return true
	}
	return false
}

type rangeFile struct {
	Ranges []Range `yaml:"ranges" validate:"required,dive"`
}

// Table 参考范围表（启动时加载，运行期只读）
type Table struct {
	ranges map[models.MetricType]Range
}

// LoadDefault 加载内置参考范围
func LoadDefault() (*Table, error) {
	return Parse(defaultRanges)
}

// Parse 解析并校验 YAML 参考范围
func Parse(data []byte) (*Table, error) {
	var file rangeFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to unmarshal reference ranges: %w", err)
	}
	if err := validator.New().Struct(file); err != nil {
		return nil, fmt.Errorf("invalid reference ranges: %w", err)
	}

	t := &Table{ranges: make(map[models.MetricType]Range, len(file.Ranges))}
	for _, r := range file.Ranges {
		if _, dup := t.ranges[r.Metric]; dup {
			return nil, fmt.Errorf("duplicate reference range for metric %s", r.Metric)
		}
		for _, rel := range r.Related {
			if !rel.IsKnown() {
				return nil, fmt.Errorf("metric %s lists unknown related metric %s", r.Metric, rel)
			}
		}
		t.ranges[r.Metric] = r
	}
	return t, nil
}

// Lookup 查找指标的参考范围
func (t *Table) Lookup(metric models.MetricType) (Range, error) {
	r, ok := t.ranges[metric]
	if !ok {
		return Range{}, fmt.Errorf("%w: %s", ErrUnknownMetric, metric)
	}
	return r, nil
}

// Direction 指标趋势方向，未配置的指标返回 false
func (t *Table) Direction(metric models.MetricType) (Direction, bool) {
	r, ok := t.ranges[metric]
	if !ok {
		return "", false
	}
	return r.Direction, true
}

// Related 关联指标（返回副本）
func (t *Table) Related(metric models.MetricType) []models.MetricType {
	r, ok := t.ranges[metric]
	if !ok {
		return nil
	}
	out := make([]models.MetricType, len(r.Related))
	copy(out, r.Related)
	return out
}

package norms

import (
	"fmt"
	"strconv"
	"strings"

	"healthfolio-risk/internal/models"

	"github.com/xuri/excelize/v2"
)

// SheetName XLSX 常模表工作表名
const SheetName = "norms"

// xlsxColumns 表头（第一行）
var xlsxColumns = []string{
	"metric", "unit", "age_min", "age_max", "gender", "activity_level",
	"mean", "median", "stddev", "p10", "p25", "p50", "p75", "p90", "p95",
	"sample_size", "source", "study_year", "healthy_min", "healthy_max",
}

// LoadXLSX 从工作簿读取常模表；版本号取自工作簿属性 Version，缺省为文件名
func LoadXLSX(path string) (*Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open norm workbook: %w", err)
	}
	defer f.Close()

	rows, err := f.GetRows(SheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", SheetName, err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("sheet %s has no data rows", SheetName)
	}

	index, err := headerIndex(rows[0])
	if err != nil {
		return nil, err
	}

	version := path
	if props, err := f.GetDocProps(); err == nil && props.Version != "" {
		version = props.Version
	}

	file := normFile{Version: version}
	for i, row := range rows[1:] {
		if isBlankRow(row) {
			continue
		}
		norm, err := parseRow(row, index)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		file.Norms = append(file.Norms, norm)
	}
	return newTable(file)
}

// WriteXLSX 将常模写入工作簿（用于导出内置常模供人工编辑）
func WriteXLSX(path, version string, norms []models.PopulationNorm) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return err
	}
	if err := f.SetSheetRow(SheetName, "A1", &xlsxColumns); err != nil {
		return err
	}
	for i, n := range norms {
		s := n.Statistics
		row := []interface{}{
			string(n.MetricType), n.Unit, n.Filter.AgeMin, n.Filter.AgeMax,
			string(n.Filter.Gender), string(n.Filter.ActivityLevel),
			s.Mean, s.Median, s.StdDev, s.P10, s.P25, s.P50, s.P75, s.P90, s.P95,
			s.SampleSize, s.Source, s.StudyYear, n.HealthyRange.Min, n.HealthyRange.Max,
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return err
		}
	}
	if err := f.SetDocProps(&excelize.DocProperties{Version: version}); err != nil {
		return err
	}
	return f.SaveAs(path)
}

func headerIndex(header []string) (map[string]int, error) {
	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, col := range xlsxColumns {
		if _, ok := index[col]; !ok {
			return nil, fmt.Errorf("missing column %q", col)
		}
	}
	return index, nil
}

func isBlankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func parseRow(row []string, index map[string]int) (models.PopulationNorm, error) {
	cell := func(col string) string {
		i := index[col]
		if i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var firstErr error
	num := func(col string) float64 {
		v, err := strconv.ParseFloat(cell(col), 64)
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("column %s: %w", col, err)
		}
		return v
	}
	integer := func(col string) int {
		return int(num(col))
	}

	n := models.PopulationNorm{
		MetricType: models.MetricType(cell("metric")),
		Unit:       cell("unit"),
		Filter: models.DemographicFilter{
			AgeMin:        integer("age_min"),
			AgeMax:        integer("age_max"),
			Gender:        models.Gender(cell("gender")),
			ActivityLevel: models.ActivityLevel(cell("activity_level")),
		},
		Statistics: models.NormStatistics{
			Mean:       num("mean"),
			Median:     num("median"),
			StdDev:     num("stddev"),
			P10:        num("p10"),
			P25:        num("p25"),
			P50:        num("p50"),
			P75:        num("p75"),
			P90:        num("p90"),
			P95:        num("p95"),
			SampleSize: integer("sample_size"),
			Source:     cell("source"),
			StudyYear:  integer("study_year"),
		},
		HealthyRange: models.ValueRange{
			Min: num("healthy_min"),
			Max: num("healthy_max"),
		},
	}
	return n, firstErr
}

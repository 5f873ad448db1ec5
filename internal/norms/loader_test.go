package norms

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"healthfolio-risk/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadFile_YAMLAndJSON(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "norms.yml")
	require.NoError(t, os.WriteFile(yamlPath, defaultNorms, 0o600))
	table, err := LoadFile(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, "2024.1", table.Version())

	jsonPath := filepath.Join(dir, "norms.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{
		"version": "json-1",
		"norms": [{
			"metricType": "heart_rate",
			"unit": "bpm",
			"filter": {"ageMin": 18, "ageMax": 99, "gender": "all", "activityLevel": "all"},
			"statistics": {"mean": 70, "median": 70, "stddev": 10, "p10": 58, "p25": 64, "p50": 70, "p75": 77, "p90": 84, "p95": 89, "sampleSize": 100, "source": "test", "studyYear": 2020},
			"healthyRange": {"min": 60, "max": 100}
		}]
	}`), 0o600))
	table, err = LoadFile(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, "json-1", table.Version())
	assert.Equal(t, 1, table.Len())
}

func TestLoadFile_UnsupportedExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "norms.csv")
	require.NoError(t, os.WriteFile(path, []byte("metric"), 0o600))

	_, err := LoadFile(path)
	assert.Error(t, err)
}

func TestXLSX_RoundTrip(t *testing.T) {
	def, err := LoadDefault()
	require.NoError(t, err)

	all := def.All()
	require.Len(t, all, def.Len())

	path := filepath.Join(t.TempDir(), "norms.xlsx")
	require.NoError(t, WriteXLSX(path, "xlsx-1", all))

	table, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "xlsx-1", table.Version())
	assert.Equal(t, def.Len(), table.Len())

	demo := models.Demographic{Age: 52, Gender: models.GenderMale, ActivityLevel: models.ActivityLight}
	want, err := def.Select(models.MetricBloodPressureSystolic, demo)
	require.NoError(t, err)
	got, err := table.Select(models.MetricBloodPressureSystolic, demo)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestRemoteLoader_Load(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/yaml")
		_, _ = w.Write(defaultNorms)
	}))
	defer server.Close()

	loader := NewRemoteLoader(2*time.Second, zap.NewNop())
	table, err := loader.Load(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, "2024.1", table.Version())
}

func TestRemoteLoader_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	loader := NewRemoteLoader(2*time.Second, zap.NewNop())
	_, err := loader.Load(context.Background(), server.URL)
	assert.Error(t, err)
}

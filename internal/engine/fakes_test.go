package engine

import (
	"context"
	"sync"
	"time"

	"healthfolio-risk/internal/models"

	"github.com/stretchr/testify/mock"
)

// fakeMetricStore 内存读数源
type fakeMetricStore struct {
	mu       sync.Mutex
	readings map[string][]models.MetricReading
	err      error
	delay    time.Duration
	calls    int
}

func newFakeMetricStore() *fakeMetricStore {
	return &fakeMetricStore{readings: make(map[string][]models.MetricReading)}
}

func (f *fakeMetricStore) add(userID string, readings ...models.MetricReading) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readings[userID] = append(f.readings[userID], readings...)
}

func (f *fakeMetricStore) GetReadings(ctx context.Context, userID string) ([]models.MetricReading, error) {
	f.mu.Lock()
	f.calls++
	delay, err := f.delay, f.err
	out := append([]models.MetricReading(nil), f.readings[userID]...)
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

// fakeProfiles 内存人口学信息源
type fakeProfiles struct {
	profiles map[string]models.Demographic
	err      error
}

func (f *fakeProfiles) GetDemographic(ctx context.Context, userID string) (models.Demographic, error) {
	if f.err != nil {
		return models.Demographic{}, f.err
	}
	return f.profiles[userID], nil
}

// MockMetricStore 是 MetricStore 的 mock 实现
type MockMetricStore struct {
	mock.Mock
}

func (m *MockMetricStore) GetReadings(ctx context.Context, userID string) ([]models.MetricReading, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.MetricReading), args.Error(1)
}

// MockDemographicProfile 是 DemographicProfile 的 mock 实现
type MockDemographicProfile struct {
	mock.Mock
}

func (m *MockDemographicProfile) GetDemographic(ctx context.Context, userID string) (models.Demographic, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(models.Demographic), args.Error(1)
}

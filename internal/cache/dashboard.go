// Package cache 将最近一次的风险看板写入 Redis，供展示层读取。
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"healthfolio-risk/internal/models"

	"go.uber.org/zap"
)

// DashboardKey 看板缓存 key：risk:dashboard:{user_id}
func DashboardKey(userID string) string {
	return fmt.Sprintf("risk:dashboard:%s", userID)
}

// DashboardCache 风险看板缓存
type DashboardCache struct {
	kv     KVStore
	ttl    time.Duration
	logger *zap.Logger
}

// NewDashboardCache 创建看板缓存；ttl <= 0 表示不过期
func NewDashboardCache(kv KVStore, ttl time.Duration, logger *zap.Logger) *DashboardCache {
	return &DashboardCache{
		kv:     kv,
		ttl:    ttl,
		logger: logger,
	}
}

// Put 写入看板
func (c *DashboardCache) Put(ctx context.Context, dashboard *models.RiskDashboard) error {
	if dashboard == nil || dashboard.UserID == "" {
		return fmt.Errorf("dashboard user_id is required")
	}

	data, err := json.Marshal(dashboard)
	if err != nil {
		return fmt.Errorf("failed to marshal dashboard: %w", err)
	}

	key := DashboardKey(dashboard.UserID)
	if err := c.kv.Set(ctx, key, string(data), c.ttl); err != nil {
		return fmt.Errorf("failed to write dashboard cache: %w", err)
	}

	c.logger.Debug("Dashboard cached",
		zap.String("key", key),
		zap.String("analysis_id", dashboard.AnalysisID),
		zap.Duration("ttl", c.ttl),
	)
	return nil
}

// Get 读取看板；不存在时返回 ErrCacheMiss
func (c *DashboardCache) Get(ctx context.Context, userID string) (*models.RiskDashboard, error) {
	raw, err := c.kv.Get(ctx, DashboardKey(userID))
	if err != nil {
		return nil, err
	}

	var dashboard models.RiskDashboard
	if err := json.Unmarshal([]byte(raw), &dashboard); err != nil {
		return nil, fmt.Errorf("failed to unmarshal dashboard: %w", err)
	}
	return &dashboard, nil
}

// Invalidate 删除看板
func (c *DashboardCache) Invalidate(ctx context.Context, userID string) error {
	return c.kv.Del(ctx, DashboardKey(userID))
}

// Package publisher 在看板需要立即关注时推送紧急通知（MQTT + Redis Stream）。
package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	rediscommon "healthfolio-risk/common/redis"
	"healthfolio-risk/internal/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// 通知渠道
const (
	ChannelMQTT   = "mqtt"
	ChannelStream = "stream"
)

// MQTTPublisher MQTT 发布接口（common/mqtt.Client 实现）
type MQTTPublisher interface {
	Publish(topic string, retained bool, payload []byte) error
}

// NotificationObserver 通知结果回调（用于指标统计）
type NotificationObserver func(channel string, err error)

// UrgentTopic 紧急通知 MQTT 主题：healthfolio/risk/{user_id}/urgent
func UrgentTopic(userID string) string {
	return fmt.Sprintf("healthfolio/risk/%s/urgent", userID)
}

// UrgentNotification 紧急通知内容
type UrgentNotification struct {
	UserID           string                `json:"user_id"`
	AnalysisID       string                `json:"analysis_id"`
	OverallRiskLevel string                `json:"overall_risk_level"`
	Count            int                   `json:"count"`
	CriticalMetrics  []models.MetricType   `json:"critical_metrics"`
	Alerts           []models.AnomalyAlert `json:"alerts"`
	GeneratedAt      time.Time             `json:"generated_at"`
}

// NewUrgentNotification 从看板提取 critical 告警
func NewUrgentNotification(d *models.RiskDashboard) UrgentNotification {
	n := UrgentNotification{
		UserID:           d.UserID,
		AnalysisID:       d.AnalysisID,
		OverallRiskLevel: string(d.OverallRiskLevel),
		Count:            d.UrgentFlags.Count,
		CriticalMetrics:  d.UrgentFlags.CriticalMetrics,
		Alerts:           []models.AnomalyAlert{},
		GeneratedAt:      d.GeneratedAt,
	}
	for _, a := range d.ActiveAlerts {
		if a.Severity == models.SeverityCritical {
			n.Alerts = append(n.Alerts, a)
		}
	}
	return n
}

// UrgentPublisher 紧急通知发布器；mqtt 或 redisClient 为 nil 时跳过对应渠道
type UrgentPublisher struct {
	mqtt        MQTTPublisher
	redisClient *redis.Client
	stream      string
	observe     NotificationObserver
	logger      *zap.Logger
}

// NewUrgentPublisher 创建紧急通知发布器
func NewUrgentPublisher(
	mqtt MQTTPublisher,
	redisClient *redis.Client,
	stream string,
	observe NotificationObserver,
	logger *zap.Logger,
) *UrgentPublisher {
	if observe == nil {
		observe = func(string, error) {}
	}
	return &UrgentPublisher{
		mqtt:        mqtt,
		redisClient: redisClient,
		stream:      stream,
		observe:     observe,
		logger:      logger,
	}
}

// Publish 看板需要立即关注时向各渠道发布通知，返回是否至少有一个渠道送达
// 部分渠道失败时同时返回 true 和失败渠道的错误
func (p *UrgentPublisher) Publish(ctx context.Context, d *models.RiskDashboard) (bool, error) {
	if d == nil || !d.UrgentFlags.RequiresImmediateAttention {
		return false, nil
	}

	notification := NewUrgentNotification(d)
	var (
		errs      []error
		delivered []string
	)

	if p.mqtt != nil {
		payload, err := json.Marshal(notification)
		if err != nil {
			return false, fmt.Errorf("failed to marshal urgent notification: %w", err)
		}
		err = p.mqtt.Publish(UrgentTopic(d.UserID), false, payload)
		p.observe(ChannelMQTT, err)
		if err != nil {
			errs = append(errs, err)
		} else {
			delivered = append(delivered, ChannelMQTT)
		}
	}

	if p.redisClient != nil && p.stream != "" {
		_, err := rediscommon.PublishJSONToStream(ctx, p.redisClient, p.stream, notification)
		p.observe(ChannelStream, err)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to publish to stream %s: %w", p.stream, err))
		} else {
			delivered = append(delivered, ChannelStream)
		}
	}

	if len(delivered) > 0 {
		p.logger.Info("Urgent risk notification published",
			zap.String("user_id", d.UserID),
			zap.String("analysis_id", d.AnalysisID),
			zap.Int("critical_count", notification.Count),
			zap.Strings("channels", delivered),
		)
	}
	return len(delivered) > 0, errors.Join(errs...)
}

package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	rediscommon "healthfolio-risk/common/redis"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// 触发来源（同时作为指标标签）
const (
	TriggerEvents  = "events"
	TriggerPolling = "polling"
	TriggerCLI     = "cli"
)

// Analyzer 执行单个用户的分析与发布
type Analyzer interface {
	AnalyzeAndPublish(ctx context.Context, userID, trigger string) error
}

// AnalysisRequest 分析请求（risk:requests 消息的 data 字段）
type AnalysisRequest struct {
	UserID    string `json:"user_id"`
	Reason    string `json:"reason,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// RequestConsumer 分析请求消费者（Redis Streams 消费者组）
type RequestConsumer struct {
	redisClient  *redis.Client
	analyzer     Analyzer
	logger       *zap.Logger
	stream       string
	groupName    string
	consumerName string
	batchSize    int64
	block        time.Duration

	// pending 列表的重试间隔；首轮总是先处理 pending
	retryInterval time.Duration
	lastRetry     time.Time
	now           func() time.Time
}

// NewRequestConsumer 创建分析请求消费者
func NewRequestConsumer(
	redisClient *redis.Client,
	analyzer Analyzer,
	logger *zap.Logger,
	stream string,
	groupName string,
	consumerName string,
	batchSize int64,
) *RequestConsumer {
	return &RequestConsumer{
		redisClient:  redisClient,
		analyzer:     analyzer,
		logger:       logger,
		stream:       stream,
		groupName:    groupName,
		consumerName: consumerName,
		batchSize:    batchSize,
		block:        5 * time.Second,

		retryInterval: 30 * time.Second,
		now:           time.Now,
	}
}

// Start 启动消费者，ctx 结束时返回
func (c *RequestConsumer) Start(ctx context.Context) error {
	if err := rediscommon.CreateConsumerGroup(ctx, c.redisClient, c.stream, c.groupName); err != nil {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	c.logger.Info("Analysis request consumer started",
		zap.String("stream", c.stream),
		zap.String("consumer_group", c.groupName),
		zap.String("consumer_name", c.consumerName),
	)

	// 消费请求（带指数退避）
	backoffDuration := time.Second
	maxBackoff := 30 * time.Second

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Analysis request consumer stopped")
			return nil
		default:
		}

		if _, err := c.consumeRequests(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("Failed to consume analysis requests",
				zap.Error(err),
				zap.Duration("backoff", backoffDuration),
			)

			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoffDuration):
				backoffDuration *= 2
				if backoffDuration > maxBackoff {
					backoffDuration = maxBackoff
				}
			}
			continue
		}
		// 成功时重置退避时间
		backoffDuration = time.Second
	}
}

// consumeRequests 先按重试间隔重新处理 pending 中的请求，再读取一批新请求，返回成功确认的数量
// 处理失败的消息不确认，留在 pending 列表中等待下一次重试
func (c *RequestConsumer) consumeRequests(ctx context.Context) (int, error) {
	acked := 0

	if c.lastRetry.IsZero() || c.now().Sub(c.lastRetry) >= c.retryInterval {
		pending, err := rediscommon.ReadPendingFromStream(
			ctx,
			c.redisClient,
			c.stream,
			c.groupName,
			c.consumerName,
			c.batchSize,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to read pending requests: %w", err)
		}
		c.lastRetry = c.now()
		if len(pending) > 0 {
			c.logger.Info("Retrying pending analysis requests",
				zap.Int("count", len(pending)),
			)
		}
		acked += c.process(ctx, pending)
	}

	messages, err := rediscommon.ReadFromStream(
		ctx,
		c.redisClient,
		c.stream,
		c.groupName,
		c.consumerName,
		c.batchSize,
		c.block,
	)
	if err != nil {
		return acked, fmt.Errorf("failed to read from stream: %w", err)
	}
	acked += c.process(ctx, messages)
	return acked, nil
}

// process 逐条处理消息，返回成功确认的数量
func (c *RequestConsumer) process(ctx context.Context, messages []rediscommon.StreamMessage) int {
	acked := 0
	for _, msg := range messages {
		req, err := parseRequest(msg)
		if err != nil {
			// 格式错误的消息无法重试，直接确认丢弃
			c.logger.Warn("Dropping malformed analysis request",
				zap.String("message_id", msg.ID),
				zap.Error(err),
			)
			c.ack(ctx, msg.ID)
			continue
		}

		if err := c.analyzer.AnalyzeAndPublish(ctx, req.UserID, TriggerEvents); err != nil {
			c.logger.Error("Failed to process analysis request",
				zap.String("message_id", msg.ID),
				zap.String("user_id", req.UserID),
				zap.Error(err),
			)
			continue
		}
		if c.ack(ctx, msg.ID) {
			acked++
		}
	}
	return acked
}

func (c *RequestConsumer) ack(ctx context.Context, id string) bool {
	if err := rediscommon.AckMessage(ctx, c.redisClient, c.stream, c.groupName, id); err != nil {
		c.logger.Warn("Failed to ack message",
			zap.String("message_id", id),
			zap.Error(err),
		)
		return false
	}
	return true
}

// parseRequest 优先解析 data 字段中的 JSON，其次读取扁平的 user_id 字段
func parseRequest(msg rediscommon.StreamMessage) (*AnalysisRequest, error) {
	if dataStr, ok := msg.Values["data"].(string); ok {
		var req AnalysisRequest
		if err := json.Unmarshal([]byte(dataStr), &req); err != nil {
			return nil, fmt.Errorf("invalid request json: %w", err)
		}
		if req.UserID == "" {
			return nil, fmt.Errorf("request missing user_id")
		}
		return &req, nil
	}

	if userID, ok := msg.Values["user_id"].(string); ok && userID != "" {
		req := &AnalysisRequest{UserID: userID}
		if reason, ok := msg.Values["reason"].(string); ok {
			req.Reason = reason
		}
		return req, nil
	}
	return nil, fmt.Errorf("message has neither data nor user_id field")
}

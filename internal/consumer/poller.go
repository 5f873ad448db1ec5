package consumer

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ActiveUserLister 列出有新读数的用户
type ActiveUserLister interface {
	ListActiveUsers(ctx context.Context, since time.Time) ([]string, error)
}

// Poller 轮询模式：定期重新分析有新读数的用户（用户之间并行）
type Poller struct {
	users    ActiveUserLister
	analyzer Analyzer
	logger   *zap.Logger
	interval time.Duration
	workers  int
	lastRun  time.Time
	now      func() time.Time

	// 上一轮分析失败、下一轮需要重试的用户
	retry map[string]struct{}
}

// NewPoller 创建轮询器；首轮覆盖 initialLookback 内有读数的用户
func NewPoller(
	users ActiveUserLister,
	analyzer Analyzer,
	logger *zap.Logger,
	interval time.Duration,
	workers int,
	initialLookback time.Duration,
) *Poller {
	if workers <= 0 {
		workers = 1
	}
	p := &Poller{
		users:    users,
		analyzer: analyzer,
		logger:   logger,
		interval: interval,
		workers:  workers,
		now:      time.Now,
	}
	p.lastRun = p.now().Add(-initialLookback)
	return p
}

// Start 启动轮询（立即执行一次），ctx 结束时返回
func (p *Poller) Start(ctx context.Context) error {
	p.logger.Info("Risk poller started",
		zap.Duration("poll_interval", p.interval),
		zap.Int("workers", p.workers),
	)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	if _, err := p.pollOnce(ctx); err != nil {
		p.logger.Error("Failed to poll active users on startup", zap.Error(err))
	}

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Risk poller stopped")
			return nil
		case <-ticker.C:
			if _, err := p.pollOnce(ctx); err != nil {
				p.logger.Error("Failed to poll active users", zap.Error(err))
				// 继续执行，不中断
			}
		}
	}
}

// pollOnce 分析自上次轮询以来有新读数的用户以及上一轮失败的用户，返回成功数量
// 单个用户失败只记录日志并留到下一轮重试；ctx 取消时返回 ctx.Err() 且不推进 lastRun
func (p *Poller) pollOnce(ctx context.Context) (int, error) {
	started := p.now()
	active, err := p.users.ListActiveUsers(ctx, p.lastRun)
	if err != nil {
		return 0, fmt.Errorf("failed to list active users: %w", err)
	}
	users := p.withRetries(active)

	p.logger.Debug("Polling active users",
		zap.Int("user_count", len(users)),
		zap.Int("retry_count", len(p.retry)),
		zap.Time("since", p.lastRun),
	)

	var (
		succeeded atomic.Int64
		mu        sync.Mutex
		failed    = make(map[string]struct{})
	)
	var g errgroup.Group
	g.SetLimit(p.workers)
	for _, userID := range users {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := p.analyzer.AnalyzeAndPublish(ctx, userID, TriggerPolling); err != nil {
				p.logger.Error("Failed to analyze user",
					zap.String("user_id", userID),
					zap.Error(err),
				)
				mu.Lock()
				failed[userID] = struct{}{}
				mu.Unlock()
				return nil
			}
			succeeded.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return int(succeeded.Load()), err
	}
	p.lastRun = started
	p.retry = failed
	return int(succeeded.Load()), nil
}

// withRetries 合并本轮活跃用户与待重试用户（去重，活跃用户在前）
func (p *Poller) withRetries(active []string) []string {
	if len(p.retry) == 0 {
		return active
	}
	seen := make(map[string]struct{}, len(active)+len(p.retry))
	users := make([]string, 0, len(active)+len(p.retry))
	for _, userID := range active {
		if _, ok := seen[userID]; ok {
			continue
		}
		seen[userID] = struct{}{}
		users = append(users, userID)
	}
	retries := make([]string, 0, len(p.retry))
	for userID := range p.retry {
		if _, ok := seen[userID]; !ok {
			retries = append(retries, userID)
		}
	}
	sort.Strings(retries)
	return append(users, retries...)
}

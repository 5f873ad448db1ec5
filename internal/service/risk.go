package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"healthfolio-risk/common/database"
	mqttcommon "healthfolio-risk/common/mqtt"
	rediscommon "healthfolio-risk/common/redis"
	"healthfolio-risk/internal/cache"
	"healthfolio-risk/internal/config"
	"healthfolio-risk/internal/consumer"
	"healthfolio-risk/internal/engine"
	"healthfolio-risk/internal/metrics"
	"healthfolio-risk/internal/models"
	"healthfolio-risk/internal/norms"
	"healthfolio-risk/internal/publisher"
	"healthfolio-risk/internal/reference"
	"healthfolio-risk/internal/repository"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Deps 服务依赖（存储与连接），测试中可替换为内存实现
type Deps struct {
	Store    engine.MetricStore
	Profiles engine.DemographicProfile
	Users    consumer.ActiveUserLister
	Redis    *redis.Client
	MQTT     publisher.MQTTPublisher
	Norms    *norms.Table
}

// RiskService 风险分析服务（整合各层）
type RiskService struct {
	config      *config.Config
	db          *sql.DB
	redisClient *redis.Client
	mqttClient  *mqttcommon.Client
	logger      *zap.Logger

	// 各层组件
	users     consumer.ActiveUserLister
	engine    *engine.Engine
	cache     *cache.DashboardCache
	publisher *publisher.UrgentPublisher
	metrics   *metrics.Metrics
}

// NewRiskService 创建风险分析服务
func NewRiskService(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*RiskService, error) {
	// 1. 连接数据库
	db, err := database.NewPostgresDB(ctx, &cfg.Database)
	if err != nil {
		return nil, err
	}

	// 2. 连接 Redis
	redisClient := rediscommon.NewRedisClient(&cfg.Redis)
	if err := rediscommon.Ping(ctx, redisClient); err != nil {
		database.Close(db)
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	// 3. 连接 MQTT（可选）
	var mqttClient *mqttcommon.Client
	closeAll := func() {
		if mqttClient != nil {
			mqttClient.Disconnect()
		}
		rediscommon.Close(redisClient)
		database.Close(db)
	}
	if cfg.MQTT.Enabled {
		mqttClient, err = mqttcommon.NewClient(&cfg.MQTT.MQTTConfig, logger)
		if err != nil {
			closeAll()
			return nil, err
		}
	}

	// 4. 加载人群常模
	normTable, err := LoadNorms(ctx, cfg, logger)
	if err != nil {
		closeAll()
		return nil, err
	}

	// 5. 创建 Repository 层
	metricRepo := repository.NewMetricRepository(db, cfg.Lookback(), logger)
	profileRepo := repository.NewProfileRepository(db, logger)

	deps := Deps{
		Store:    metricRepo,
		Profiles: profileRepo,
		Users:    metricRepo,
		Redis:    redisClient,
		Norms:    normTable,
	}
	if mqttClient != nil {
		deps.MQTT = mqttClient
	}

	s, err := NewRiskServiceWithDeps(cfg, logger, deps)
	if err != nil {
		closeAll()
		return nil, err
	}
	s.db = db
	s.mqttClient = mqttClient
	return s, nil
}

// NewRiskServiceWithDeps 使用给定依赖创建服务
func NewRiskServiceWithDeps(cfg *config.Config, logger *zap.Logger, deps Deps) (*RiskService, error) {
	if deps.Store == nil || deps.Profiles == nil {
		return nil, fmt.Errorf("metric store and profile source are required")
	}

	ranges, err := reference.LoadDefault()
	if err != nil {
		return nil, fmt.Errorf("failed to load reference ranges: %w", err)
	}

	normTable := deps.Norms
	if normTable == nil {
		if normTable, err = norms.LoadDefault(); err != nil {
			return nil, fmt.Errorf("failed to load population norms: %w", err)
		}
	}

	m := metrics.New()
	eng := engine.NewEngine(deps.Store, deps.Profiles, normTable, ranges, engine.Options{
		RecentWindow:   cfg.RecentWindow(),
		AnomalyHistory: cfg.Risk.AnomalyHistory,
		TrendReadings:  cfg.Risk.TrendReadings,
	}, logger)

	var dashboards *cache.DashboardCache
	if deps.Redis != nil {
		dashboards = cache.NewDashboardCache(cache.NewRedisKVStore(deps.Redis), cfg.DashboardTTL(), logger)
	}

	return &RiskService{
		config:      cfg,
		redisClient: deps.Redis,
		logger:      logger,
		users:       deps.Users,
		engine:      eng,
		cache:       dashboards,
		publisher:   publisher.NewUrgentPublisher(deps.MQTT, deps.Redis, cfg.Risk.AlertStream, m.ObserveNotification, logger),
		metrics:     m,
	}, nil
}

// Metrics 服务指标
func (s *RiskService) Metrics() *metrics.Metrics {
	return s.metrics
}

// Analyze 分析单个用户：生成看板、写入缓存、必要时发布紧急通知
// 缓存与通知失败只记录日志，不影响返回的看板
func (s *RiskService) Analyze(ctx context.Context, userID, trigger string) (*models.RiskDashboard, error) {
	started := time.Now()
	dashboard, err := s.engine.Analyze(ctx, userID)
	s.metrics.ObserveAnalysis(trigger, started, dashboard)
	if err != nil {
		s.logger.Error("Risk analysis failed",
			zap.String("user_id", userID),
			zap.String("trigger", trigger),
			zap.Error(err),
		)
		// 用户档案已不存在时，缓存中的看板也不再有效
		if errors.Is(err, repository.ErrProfileNotFound) && s.cache != nil {
			if err := s.cache.Invalidate(ctx, userID); err != nil {
				s.logger.Warn("Failed to invalidate risk dashboard",
					zap.String("user_id", userID),
					zap.Error(err),
				)
			}
		}
		return nil, fmt.Errorf("failed to analyze user %s: %w", userID, err)
	}

	if s.cache != nil {
		if err := s.cache.Put(ctx, dashboard); err != nil {
			s.logger.Warn("Failed to cache risk dashboard",
				zap.String("user_id", userID),
				zap.Error(err),
			)
		}
	}

	if _, err := s.publisher.Publish(ctx, dashboard); err != nil {
		s.logger.Error("Failed to publish urgent notification",
			zap.String("user_id", userID),
			zap.String("analysis_id", dashboard.AnalysisID),
			zap.Error(err),
		)
	}

	s.logger.Info("Risk analysis finished",
		zap.String("user_id", userID),
		zap.String("trigger", trigger),
		zap.String("analysis_id", dashboard.AnalysisID),
		zap.String("overall_risk_level", string(dashboard.OverallRiskLevel)),
		zap.Int("active_alerts", len(dashboard.ActiveAlerts)),
		zap.Duration("elapsed", time.Since(started)),
	)
	return dashboard, nil
}

// CachedDashboard 读取最近一次缓存的看板；未启用缓存或未命中时返回 cache.ErrCacheMiss
func (s *RiskService) CachedDashboard(ctx context.Context, userID string) (*models.RiskDashboard, error) {
	if s.cache == nil {
		return nil, cache.ErrCacheMiss
	}
	return s.cache.Get(ctx, userID)
}

// AnalyzeAndPublish 实现 consumer.Analyzer
func (s *RiskService) AnalyzeAndPublish(ctx context.Context, userID, trigger string) error {
	_, err := s.Analyze(ctx, userID, trigger)
	return err
}

// Start 启动服务，ctx 结束时返回
func (s *RiskService) Start(ctx context.Context) error {
	s.logger.Info("Starting risk service",
		zap.String("trigger_mode", s.config.Risk.TriggerMode),
	)

	var run func(ctx context.Context) error
	switch s.config.Risk.TriggerMode {
	case consumer.TriggerPolling:
		if s.users == nil {
			return fmt.Errorf("polling mode requires an active user source")
		}
		run = consumer.NewPoller(
			s.users,
			s,
			s.logger,
			s.config.PollInterval(),
			s.config.Risk.Polling.Workers,
			s.config.Lookback(),
		).Start
	default:
		if s.redisClient == nil {
			return fmt.Errorf("events mode requires redis")
		}
		run = consumer.NewRequestConsumer(
			s.redisClient,
			s,
			s.logger,
			s.config.Risk.RequestStream,
			s.config.Risk.ConsumerGroup,
			s.config.Risk.ConsumerName,
			int64(s.config.Risk.BatchSize),
		).Start
	}

	g, gctx := errgroup.WithContext(ctx)
	if s.config.Metrics.Addr != "" {
		g.Go(func() error {
			return s.metrics.Serve(gctx, s.config.Metrics.Addr, s.logger)
		})
	}
	g.Go(func() error {
		return run(gctx)
	})

	return g.Wait()
}

// Stop 停止服务
func (s *RiskService) Stop() error {
	s.logger.Info("Stopping risk service")

	if s.mqttClient != nil {
		s.mqttClient.Disconnect()
	}

	// 关闭数据库连接
	if err := database.Close(s.db); err != nil {
		s.logger.Error("Failed to close database",
			zap.Error(err),
		)
	}

	// 关闭 Redis 连接
	if s.redisClient != nil {
		if err := rediscommon.Close(s.redisClient); err != nil {
			s.logger.Error("Failed to close redis",
				zap.Error(err),
			)
		}
	}

	return nil
}

// LoadNorms 按优先级加载人群常模：远程 URL、本地文件、内置
func LoadNorms(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*norms.Table, error) {
	var (
		table  *norms.Table
		err    error
		source string
	)
	switch {
	case cfg.Risk.NormsURL != "":
		source = cfg.Risk.NormsURL
		table, err = norms.NewRemoteLoader(10*time.Second, logger).Load(ctx, cfg.Risk.NormsURL)
	case cfg.Risk.NormsFile != "":
		source = cfg.Risk.NormsFile
		table, err = norms.LoadFile(cfg.Risk.NormsFile)
	default:
		source = "builtin"
		table, err = norms.LoadDefault()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load population norms from %s: %w", source, err)
	}

	logger.Info("Population norms loaded",
		zap.String("source", source),
		zap.String("version", table.Version()),
		zap.Int("norms", table.Len()),
	)
	return table, nil
}

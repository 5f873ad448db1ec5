package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"healthfolio-risk/common/logger"
	rediscommon "healthfolio-risk/common/redis"
	"healthfolio-risk/internal/cache"
	"healthfolio-risk/internal/config"
	"healthfolio-risk/internal/consumer"
	"healthfolio-risk/internal/models"
	"healthfolio-risk/internal/norms"
	"healthfolio-risk/internal/service"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const serviceName = "healthfolio-risk"

var (
	userID    string
	reason    string
	useCached bool
	normsOut  string
	timeout   time.Duration
	logFormat string

	rootCmd = &cobra.Command{
		Use:           serviceName,
		Short:         "Health risk analysis engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the risk service (events or polling trigger mode)",
		RunE:  runServe,
	}

	analyzeCmd = &cobra.Command{
		Use:   "analyze",
		Short: "Analyze one user and print the risk dashboard as JSON",
		RunE:  runAnalyze,
	}

	requestCmd = &cobra.Command{
		Use:   "request",
		Short: "Enqueue an analysis request on the request stream",
		RunE:  runRequest,
	}

	normsCmd = &cobra.Command{
		Use:   "norms",
		Short: "Inspect the population norm table",
	}

	normsExportCmd = &cobra.Command{
		Use:   "export",
		Short: "Export the configured population norm table to an xlsx workbook",
		RunE:  runNormsExport,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "override LOG_FORMAT (json|console)")

	analyzeCmd.Flags().StringVar(&userID, "user", "", "user id to analyze")
	analyzeCmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "analysis timeout")
	analyzeCmd.Flags().BoolVar(&useCached, "cached", false, "print the cached dashboard when present instead of re-analyzing")
	_ = analyzeCmd.MarkFlagRequired("user")

	requestCmd.Flags().StringVar(&userID, "user", "", "user id to analyze")
	requestCmd.Flags().StringVar(&reason, "reason", "manual", "request reason")
	_ = requestCmd.MarkFlagRequired("user")

	normsExportCmd.Flags().StringVar(&normsOut, "out", "norms.xlsx", "output workbook path")

	normsCmd.AddCommand(normsExportCmd)
	rootCmd.AddCommand(serveCmd, analyzeCmd, requestCmd, normsCmd)
}

// setup 加载配置并初始化日志
func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}

	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, serviceName)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to init logger: %w", err)
	}
	return cfg, log, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	// 创建上下文（支持优雅关闭）
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	riskService, err := service.NewRiskService(ctx, cfg, log)
	if err != nil {
		log.Error("Failed to create risk service", zap.Error(err))
		return err
	}
	defer riskService.Stop()

	if err := riskService.Start(ctx); err != nil {
		log.Error("Service error", zap.Error(err))
		return err
	}

	log.Info("Risk service stopped")
	return nil
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()
	// 看板 JSON 输出到 stdout，日志只保留错误
	log = log.WithOptions(zap.IncreaseLevel(zapcore.ErrorLevel))

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	riskService, err := service.NewRiskService(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer riskService.Stop()

	var dashboard *models.RiskDashboard
	if useCached {
		dashboard, err = riskService.CachedDashboard(ctx, userID)
		if err != nil && !errors.Is(err, cache.ErrCacheMiss) {
			return err
		}
	}
	if dashboard == nil {
		dashboard, err = riskService.Analyze(ctx, userID, consumer.TriggerCLI)
		if err != nil {
			return err
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(dashboard)
}

func runRequest(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	client := rediscommon.NewRedisClient(&cfg.Redis)
	defer rediscommon.Close(client)

	id, err := rediscommon.PublishJSONToStream(cmd.Context(), client, cfg.Risk.RequestStream, consumer.AnalysisRequest{
		UserID:    userID,
		Reason:    reason,
		Timestamp: time.Now().Unix(),
	})
	if err != nil {
		return err
	}

	log.Info("Analysis request enqueued",
		zap.String("user_id", userID),
		zap.String("stream", cfg.Risk.RequestStream),
		zap.String("message_id", id),
	)
	return nil
}

func runNormsExport(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	table, err := service.LoadNorms(cmd.Context(), cfg, log)
	if err != nil {
		return err
	}
	if err := norms.WriteXLSX(normsOut, table.Version(), table.All()); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "exported %d norms (version %s) to %s\n", table.Len(), table.Version(), normsOut)
	return nil
}

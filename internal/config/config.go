package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"healthfolio-risk/common/config"

	"github.com/go-playground/validator/v10"
)

// Config 风险分析服务配置
type Config struct {
	Database config.DatabaseConfig
	Redis    config.RedisConfig
	MQTT     struct {
		config.MQTTConfig
		Enabled bool
	}

	// 风险分析服务特定配置
	Risk struct {
		// 分析触发方式
		// 选项：events（消费 risk:requests）、polling（定期重新分析有新读数的用户）
		TriggerMode string `validate:"oneof=events polling"`

		// Redis Streams 配置
		// AlertStream 为空时紧急通知不写入 Stream
		RequestStream string `validate:"required"`
		AlertStream   string
		ConsumerGroup string `validate:"required"`
		ConsumerName  string `validate:"required"`
		BatchSize     int    `validate:"gte=1"`

		// 轮询模式配置：间隔（秒）与并行分析的用户数
		Polling struct {
			Interval int `validate:"gte=1"`
			Workers  int `validate:"gte=1"`
		}

		// 看板缓存时间（秒），0 表示不过期
		DashboardTTL int

		// 分析窗口
		RecentWindowDays int `validate:"gte=1"`
		AnomalyHistory   int `validate:"gte=3"`
		TrendReadings    int `validate:"gte=4"`

		// 人群常模来源（都为空时使用内置常模）
		NormsFile string
		NormsURL  string
	}

	// Addr 为空时不启动 /metrics
	Metrics struct {
		Addr string
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load 加载配置
func Load() (*Config, error) {
	cfg := &Config{}

	// 从环境变量加载（默认值）
	cfg.Database.Host = "localhost"
	cfg.Database.Port = 5432
	cfg.Database.User = "postgres"
	cfg.Database.Password = "postgres"
	cfg.Database.Database = "healthfolio"
	cfg.Database.SSLMode = "disable"
	cfg.Database.MaxConns = 10
	cfg.Database.MaxIdle = 5
	cfg.Database.LoadFromEnv("DB")

	cfg.Redis.Addr = "localhost:6379"
	cfg.Redis.LoadFromEnv("REDIS")

	cfg.MQTT.Broker = "tcp://localhost:1883"
	cfg.MQTT.ClientID = "healthfolio-risk"
	cfg.MQTT.QoS = 1
	cfg.MQTT.LoadFromEnv("MQTT")
	cfg.MQTT.Enabled = getEnv("MQTT_ENABLED", "false") == "true"

	// 风险分析服务配置
	cfg.Risk.TriggerMode = getEnv("RISK_TRIGGER_MODE", "events")
	cfg.Risk.RequestStream = getEnv("RISK_REQUEST_STREAM", "risk:requests")
	cfg.Risk.AlertStream = getEnv("RISK_ALERT_STREAM", "risk:alerts")
	cfg.Risk.ConsumerGroup = getEnv("RISK_CONSUMER_GROUP", "risk-engine-group")
	cfg.Risk.ConsumerName = getEnv("RISK_CONSUMER_NAME", "risk-engine-1")
	cfg.Risk.BatchSize = getEnvInt("RISK_BATCH_SIZE", 10)
	cfg.Risk.Polling.Interval = getEnvInt("RISK_POLL_INTERVAL", 300)
	cfg.Risk.Polling.Workers = getEnvInt("RISK_WORKERS", 4)
	cfg.Risk.DashboardTTL = getEnvInt("RISK_DASHBOARD_TTL", 3600)
	cfg.Risk.RecentWindowDays = getEnvInt("RISK_RECENT_WINDOW_DAYS", 30)
	cfg.Risk.AnomalyHistory = getEnvInt("RISK_ANOMALY_HISTORY", 30)
	cfg.Risk.TrendReadings = getEnvInt("RISK_TREND_READINGS", 14)
	cfg.Risk.NormsFile = getEnv("RISK_NORMS_FILE", "")
	cfg.Risk.NormsURL = getEnv("RISK_NORMS_URL", "")

	cfg.Metrics.Addr = getEnv("METRICS_ADDR", ":9102")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// RecentWindow 当前分析周期
func (c *Config) RecentWindow() time.Duration {
	return time.Duration(c.Risk.RecentWindowDays) * 24 * time.Hour
}

// Lookback 读取的历史时长（当前周期 + 前一周期）
func (c *Config) Lookback() time.Duration {
	return 2 * c.RecentWindow()
}

// PollInterval 轮询间隔
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Risk.Polling.Interval) * time.Second
}

// DashboardTTL 看板缓存时间
func (c *Config) DashboardTTL() time.Duration {
	return time.Duration(c.Risk.DashboardTTL) * time.Second
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return v
	}
	return defaultValue
}

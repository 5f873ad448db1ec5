package norms

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// LoadDefault 加载内置常模表
func LoadDefault() (*Table, error) {
	return ParseYAML(defaultNorms)
}

// ParseYAML 解析 YAML 常模表
func ParseYAML(data []byte) (*Table, error) {
	var file normFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to unmarshal norm yaml: %w", err)
	}
	return newTable(file)
}

// ParseJSON 解析 JSON 常模表
func ParseJSON(data []byte) (*Table, error) {
	var file normFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to unmarshal norm json: %w", err)
	}
	return newTable(file)
}

// LoadFile 按扩展名加载常模文件（.yaml/.yml/.json/.xlsx）
func LoadFile(path string) (*Table, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".xlsx" {
		return LoadXLSX(path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read norm file: %w", err)
	}
	switch ext {
	case ".yaml", ".yml":
		return ParseYAML(data)
	case ".json":
		return ParseJSON(data)
	default:
		return nil, fmt.Errorf("unsupported norm file extension: %s", ext)
	}
}

// RemoteLoader 从 HTTP 地址拉取常模表
type RemoteLoader struct {
	client *resty.Client
	logger *zap.Logger
}

// NewRemoteLoader 创建远程常模加载器
func NewRemoteLoader(timeout time.Duration, logger *zap.Logger) *RemoteLoader {
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		SetHeader("Accept", "application/json, application/yaml")

	return &RemoteLoader{client: client, logger: logger}
}

// Load 拉取并解析常模表（根据 Content-Type 选择 JSON 或 YAML）
func (l *RemoteLoader) Load(ctx context.Context, url string) (*Table, error) {
	resp, err := l.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch norm table: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("failed to fetch norm table: status %d", resp.StatusCode())
	}

	contentType := resp.Header().Get("Content-Type")
	l.logger.Info("Fetched population norm table",
		zap.String("url", url),
		zap.String("content_type", contentType),
		zap.Int("bytes", len(resp.Body())),
	)

	if strings.Contains(contentType, "json") {
		return ParseJSON(resp.Body())
	}
	return ParseYAML(resp.Body())
}

// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"inference-facilitator/pkg/utils"
)

// 默认值
const (
	DefaultBatchSize        = 20
	DefaultBatchTimeoutMs   = 60000
	DefaultPollTimeout      = "1s"
	DefaultJobErrorBackoff  = "1s"
	DefaultTransportBackoff = "5s"
	DefaultQueueKey         = "payment_queue"
	DefaultWalrusPublisher  = "https://ogpublisher.opengradient.ai/v1/blobs"
	DefaultWalrusEpochs     = 10
)

// Config 应用配置结构体
type Config struct {
	Worker     WorkerConfig     `mapstructure:"worker"`
	Batch      BatchConfig      `mapstructure:"batch"`
	Queue      QueueConfig      `mapstructure:"queue"`
	Settlement SettlementConfig `mapstructure:"settlement"`
	Secrets    SecretsConfig    `mapstructure:"secrets"`
	Archive    ArchiveConfig    `mapstructure:"archive"`
	Log        LogConfig        `mapstructure:"log"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

// WorkerConfig 结算 Worker 主循环配置
type WorkerConfig struct {
	ID               string `mapstructure:"id"`                // 为空时取 WORKER_ID 或 hostname
	PollTimeout      string `mapstructure:"poll_timeout"`      // 单次 Pop 最长阻塞，如 "1s"
	JobErrorBackoff  string `mapstructure:"job_error_backoff"` // 单个 Job/分区处理异常后的暂停
	TransportBackoff string `mapstructure:"transport_backoff"` // 队列连接异常后的暂停
}

// BatchConfig 批量结算缓冲区配置
type BatchConfig struct {
	Size      int `mapstructure:"size"`       // 条数触发阈值，环境变量 SETTLEMENT_BATCH_SIZE
	TimeoutMs int `mapstructure:"timeout_ms"` // 时间触发阈值（毫秒），环境变量 SETTLEMENT_BATCH_TIMEOUT
}

// QueueConfig 任务队列配置
type QueueConfig struct {
	Type         string      `mapstructure:"type"` // redis | postgres | memory
	Key          string      `mapstructure:"key"`  // 列表键名/逻辑队列名
	Redis        RedisConfig `mapstructure:"redis"`
	DSN          string      `mapstructure:"dsn"`           // type=postgres 时必填
	PollInterval string      `mapstructure:"poll_interval"` // postgres 在 Pop 超时内的轮询间隔
}

// RedisConfig Redis 连接参数
type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// SettlementConfig 各网络的结算端点
type SettlementConfig struct {
	Networks map[string]NetworkConfig `mapstructure:"networks"`
}

// NetworkConfig 单个网络的结算端点与限流
type NetworkConfig struct {
	Endpoint string  `mapstructure:"endpoint"`
	Timeout  string  `mapstructure:"timeout"`
	QPS      float64 `mapstructure:"qps"`
	Burst    int     `mapstructure:"burst"`
}

// SecretsConfig 结算私钥来源
type SecretsConfig struct {
	Provider string      `mapstructure:"provider"` // env | memory | file | vault
	Dir      string      `mapstructure:"dir"`      // provider=file 时的挂载目录
	Vault    VaultConfig `mapstructure:"vault"`
}

// VaultConfig Vault 连接参数
type VaultConfig struct {
	Address    string `mapstructure:"address"`
	Token      string `mapstructure:"token"`
	PathPrefix string `mapstructure:"path_prefix"`
}

// ArchiveConfig 批次数据归档配置
type ArchiveConfig struct {
	Type   string       `mapstructure:"type"` // walrus | none
	Walrus WalrusConfig `mapstructure:"walrus"`
}

// WalrusConfig Walrus publisher 参数
type WalrusConfig struct {
	PublisherURL string `mapstructure:"publisher_url"` // 环境变量 WALRUS_PUBLISHER_URL
	Epochs       int    `mapstructure:"epochs"`
	Timeout      string `mapstructure:"timeout"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// MonitoringConfig 监控配置
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
}

// TracingConfig 链路追踪配置（OpenTelemetry）
type TracingConfig struct {
	Enable         bool   `mapstructure:"enable"`
	ServiceName    string `mapstructure:"service_name"`
	ExportEndpoint string `mapstructure:"export_endpoint"`
	Insecure       bool   `mapstructure:"insecure"`
}

// PrometheusConfig Prometheus 配置；Enable 时 Worker 在 Port 上暴露 /metrics 与 /healthz
type PrometheusConfig struct {
	Enable bool `mapstructure:"enable"`
	Port   int  `mapstructure:"port"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("worker.poll_timeout", DefaultPollTimeout)
	v.SetDefault("worker.job_error_backoff", DefaultJobErrorBackoff)
	v.SetDefault("worker.transport_backoff", DefaultTransportBackoff)
	v.SetDefault("batch.size", DefaultBatchSize)
	v.SetDefault("batch.timeout_ms", DefaultBatchTimeoutMs)
	v.SetDefault("queue.type", "redis")
	v.SetDefault("queue.key", DefaultQueueKey)
	v.SetDefault("queue.redis.addr", "localhost:6379")
	v.SetDefault("queue.poll_interval", "100ms")
	v.SetDefault("secrets.provider", "env")
	v.SetDefault("archive.type", "none")
	v.SetDefault("archive.walrus.publisher_url", DefaultWalrusPublisher)
	v.SetDefault("archive.walrus.epochs", DefaultWalrusEpochs)
	v.SetDefault("archive.walrus.timeout", "30s")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("monitoring.prometheus.port", 9464)
	v.SetDefault("monitoring.tracing.service_name", "settlement-worker")
}

// LoadConfig 加载配置文件；configPath 为空时仅使用默认值与环境变量
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	// 沿用 facilitator 既有的环境变量名
	_ = v.BindEnv("batch.size", "SETTLEMENT_BATCH_SIZE")
	_ = v.BindEnv("batch.timeout_ms", "SETTLEMENT_BATCH_TIMEOUT")
	_ = v.BindEnv("archive.walrus.publisher_url", "WALRUS_PUBLISHER_URL")
	_ = v.BindEnv("worker.id", "WORKER_ID")

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("无法读取配置文件: %w", err)
		}
	}

	sanitizeInts(v, map[string]int{
		"batch.size":       DefaultBatchSize,
		"batch.timeout_ms": DefaultBatchTimeoutMs,
	})

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("无法解析配置文件: %w", err)
	}
	config.applyFallbacks()
	replaceEnvVars(&config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// LoadWorkerConfig 加载 Worker 配置（configs/worker.yaml）
func LoadWorkerConfig() (*Config, error) {
	return LoadConfig("configs/worker.yaml")
}

// applyFallbacks 非法数值回落到默认值
func (c *Config) applyFallbacks() {
	c.Batch.Size = utils.PositiveInt(c.Batch.Size, DefaultBatchSize)
	c.Batch.TimeoutMs = utils.PositiveInt(c.Batch.TimeoutMs, DefaultBatchTimeoutMs)
	c.Archive.Walrus.Epochs = utils.PositiveInt(c.Archive.Walrus.Epochs, DefaultWalrusEpochs)
}

// sanitizeInts 环境变量中的非数字值回落到默认值，而不是让 Unmarshal 失败
func sanitizeInts(v *viper.Viper, defaults map[string]int) {
	for key, def := range defaults {
		if _, err := strconv.Atoi(strings.TrimSpace(v.GetString(key))); err != nil {
			v.Set(key, def)
		}
	}
}

// replaceEnvVars 展开 "${VAR}" 形式的敏感配置
func replaceEnvVars(c *Config) {
	c.Queue.Redis.Password = expand(c.Queue.Redis.Password)
	c.Queue.DSN = expand(c.Queue.DSN)
	c.Secrets.Vault.Token = expand(c.Secrets.Vault.Token)
	for name, n := range c.Settlement.Networks {
		n.Endpoint = expand(n.Endpoint)
		c.Settlement.Networks[name] = n
	}
}

func expand(s string) string {
	if !strings.HasPrefix(s, "$") {
		return s
	}
	return os.ExpandEnv(s)
}

// Validate 校验配置
func (c *Config) Validate() error {
	switch {
	case c.Batch.Size < 1:
		return errors.New("must be greater than zero: batch.size")
	case c.Batch.TimeoutMs < 1:
		return errors.New("must be greater than zero: batch.timeout_ms")
	}
	switch c.Queue.Type {
	case "redis", "memory":
	case "postgres":
		if c.Queue.DSN == "" {
			return errors.New("missing field: queue.dsn")
		}
	default:
		return fmt.Errorf("unsupported queue type: %q", c.Queue.Type)
	}
	for name, n := range c.Settlement.Networks {
		if n.Endpoint == "" {
			return fmt.Errorf("missing field: settlement.networks.%s.endpoint", name)
		}
	}
	return nil
}

// BatchTimeout 时间触发阈值
func (b BatchConfig) BatchTimeout() time.Duration {
	return time.Duration(b.TimeoutMs) * time.Millisecond
}

// ParseDuration 解析 "1s" 形式的时长，空值或非法值返回 def
func ParseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

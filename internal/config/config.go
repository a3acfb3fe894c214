package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"GuildForge-Chain/internal/auth"
)

// Config 描述了 GuildForge 在启动阶段需要加载的核心配置。
type Config struct {
	Server  ServerConfig  `json:"server"`
	Storage StorageConfig `json:"storage"`
	Bus     BusConfig     `json:"bus"`
	Chain   ChainConfig   `json:"chain"`
	Auth    auth.Config   `json:"auth"`
	Log     LogConfig     `json:"log"`
	Runtime RuntimeConfig `json:"runtime"`
}

// ServerConfig 控制 API 服务的监听地址等参数。
type ServerConfig struct {
	Address string `json:"address"`
}

// StorageConfig 统一描述部署记录后端的连接信息。
type StorageConfig struct {
	RecordStore RecordStoreConfig `json:"record_store"`
}

// RecordStoreConfig 选择记录存储实现：memory 或 mysql。
type RecordStoreConfig struct {
	Driver string `json:"driver"`
	DSN    string `json:"dsn"`
}

// BusConfig 选择部署记录总线实现：memory、redis 或 rabbitmq。
type BusConfig struct {
	Driver   string         `json:"driver"`
	Redis    RedisConfig    `json:"redis"`
	RabbitMQ RabbitMQConfig `json:"rabbitmq"`
}

// RedisConfig 描述 Redis 总线的连接信息。
type RedisConfig struct {
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	Queue    string `json:"queue"`
}

// RabbitMQConfig 描述 RabbitMQ 总线的连接信息。
type RabbitMQConfig struct {
	URL      string `json:"url"`
	Queue    string `json:"queue"`
	Prefetch int    `json:"prefetch"`
	Durable  bool   `json:"durable"`
}

// ChainConfig 描述执行环境的初始状态来源与工厂托管地址。
type ChainConfig struct {
	GenesisPath    string `json:"genesis_path"`
	FactoryAddress string `json:"factory_address"`
}

// LogConfig 控制应用日志与审计日志的输出方式。
type LogConfig struct {
	Level       string   `json:"level"`
	Format      string   `json:"format"`
	OutputPaths []string `json:"output_paths"`
	Audit       AuditLog `json:"audit"`
}

// AuditLog 配置独立的审计日志流。
type AuditLog struct {
	Enabled    bool   `json:"enabled"`
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
}

// RuntimeConfig 用于放置运行时的通用参数。
type RuntimeConfig struct {
	DataDir string `json:"data_dir"`
}

// Load 负责解析指定路径的 JSON 配置文件。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开配置文件失败: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.applyDefaults(filepath.Dir(path))

	return &cfg, nil
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}

	if c.Storage.RecordStore.Driver == "" {
		c.Storage.RecordStore.Driver = "memory"
	}

	if c.Bus.Driver == "" {
		c.Bus.Driver = "memory"
	}

	if c.Chain.GenesisPath == "" {
		c.Chain.GenesisPath = filepath.Join(baseDir, "genesis.yaml")
	} else if !filepath.IsAbs(c.Chain.GenesisPath) {
		c.Chain.GenesisPath = filepath.Join(baseDir, c.Chain.GenesisPath)
	}

	if c.Auth.Mode == "" {
		c.Auth.Mode = auth.ModeDisabled
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}

	if c.Runtime.DataDir == "" {
		c.Runtime.DataDir = filepath.Join(baseDir, "data")
	} else if !filepath.IsAbs(c.Runtime.DataDir) {
		c.Runtime.DataDir = filepath.Join(baseDir, c.Runtime.DataDir)
	}
}

// Package internal 提供動態流服務的配置與 HTTP 處理器
package internal

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 整個應用的配置
type Config struct {
	Server struct {
		Port         int           `yaml:"port"`
		ReadTimeout  time.Duration `yaml:"read_timeout"`
		WriteTimeout time.Duration `yaml:"write_timeout"`
	} `yaml:"server"`

	Redis struct {
		Addr         string        `yaml:"addr"`
		Password     string        `yaml:"password"`
		DB           int           `yaml:"db"`
		PoolSize     int           `yaml:"pool_size"`
		MinIdleConns int           `yaml:"min_idle_conns"`
		MaxRetries   int           `yaml:"max_retries"`
		ReadTimeout  time.Duration `yaml:"read_timeout"`
		WriteTimeout time.Duration `yaml:"write_timeout"`
	} `yaml:"redis"`

	Postgres struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		DBName   string `yaml:"dbname"`
		MaxConns int32  `yaml:"max_conns"`
		MinConns int32  `yaml:"min_conns"`
	} `yaml:"postgres"`

	NATS struct {
		URL     string `yaml:"url"`
		Stream  string `yaml:"stream"`
		Subject string `yaml:"subject"`
		Queue   string `yaml:"queue"`
		Enabled bool   `yaml:"enabled"`
	} `yaml:"nats"`

	Cache struct {
		// ListLimit 每個快取列表保留的最大項目數（上限 L）
		ListLimit int64 `yaml:"list_limit"`
		// TTL 每次快取寫入（列表或計數器）套用的過期時間
		TTL time.Duration `yaml:"ttl"`
	} `yaml:"cache"`

	Fanout struct {
		BatchSize  int           `yaml:"batch_size"`
		Workers    int           `yaml:"workers"`
		MaxRetries int           `yaml:"max_retries"`
		RetryDelay time.Duration `yaml:"retry_delay"`
	} `yaml:"fanout"`

	// Gatekeeper 具名開關 → 灰度百分比（0–100）
	Gatekeeper map[string]int `yaml:"gatekeeper"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// LoadConfig 從 yaml 檔案載入配置並套用預設值
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path) // #nosec G304 - 路徑來自啟動參數
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	config := &Config{}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	config.applyDefaults()
	return config, nil
}

// applyDefaults 為未設置的欄位套用預設值
func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 5 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 10 * time.Second
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Cache.ListLimit == 0 {
		c.Cache.ListLimit = 1000
	}
	if c.Cache.TTL == 0 {
		c.Cache.TTL = 7 * 24 * time.Hour
	}
	if c.Fanout.BatchSize == 0 {
		c.Fanout.BatchSize = 1000
	}
	if c.Fanout.Workers == 0 {
		c.Fanout.Workers = 4
	}
	if c.Fanout.RetryDelay == 0 {
		c.Fanout.RetryDelay = 100 * time.Millisecond
	}
	if c.NATS.Stream == "" {
		c.NATS.Stream = "FANOUT"
	}
	if c.NATS.Subject == "" {
		c.NATS.Subject = "fanout.batch"
	}
	if c.NATS.Queue == "" {
		c.NATS.Queue = "fanout-workers"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// PostgresDSN 生成 PostgreSQL 連線字串
func (c *Config) PostgresDSN() string {
	// 支援環境變數覆蓋（生產環境常用）
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		return dsn
	}

	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		c.Postgres.Host,
		c.Postgres.Port,
		c.Postgres.User,
		c.Postgres.Password,
		c.Postgres.DBName,
	)
}

// PostgresURL 生成 URL 形式的連線字串
//
// golang-migrate 需要帶 scheme 的 URL，鍵值形式的 DSN 不適用
func (c *Config) PostgresURL() string {
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		return dsn
	}

	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.Postgres.User,
		c.Postgres.Password,
		c.Postgres.Host,
		c.Postgres.Port,
		c.Postgres.DBName,
	)
}

// Package config 載入伺服器設定：預設值、YAML 設定檔，
// 再以環境變數覆寫（沿用部署慣用的變數名稱）。
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 伺服器完整設定
type Config struct {
	Server ServerConfig `yaml:"server"`
	Game   GameConfig   `yaml:"game"`
	Log    LogConfig    `yaml:"log"`
}

// ServerConfig 監聽與傳輸設定
type ServerConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	MaxMessageSize int64  `yaml:"max_message_size"` // 單則訊息的位元組上限
}

// GameConfig 對局規則與生命週期設定。
// 棋盤大小與逾時是被消費的外部值，核心不自行推導。
type GameConfig struct {
	BoardSize           int `yaml:"board_size"`
	IdleTimeoutMinutes  int `yaml:"idle_timeout_minutes"`   // 閒置對局回收上限
	GraceSeconds        int `yaml:"grace_seconds"`          // 斷線重連寬限期
	SweepIntervalSecond int `yaml:"sweep_interval_seconds"` // 清理掃描間隔
}

// LogConfig 日誌設定
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// Default 回傳預設設定
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			MaxMessageSize: 65536,
		},
		Game: GameConfig{
			BoardSize:           10,
			IdleTimeoutMinutes:  30,
			GraceSeconds:        300,
			SweepIntervalSecond: 60,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load 載入設定：預設值 → YAML 檔（path 為空時略過）→ 環境變數
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path) // #nosec G304 - 路徑來自啟動參數
		if err != nil {
			return nil, fmt.Errorf("讀取設定檔失敗: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("解析設定檔失敗: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv 以環境變數覆寫設定
func (c *Config) applyEnv() {
	if v := os.Getenv("SERVER_HOST"); v != "" {
		c.Server.Host = v
	}
	if v, ok := envInt("SERVER_PORT"); ok {
		c.Server.Port = v
	}
	if v, ok := envInt("WS_MAX_MESSAGE_SIZE"); ok {
		c.Server.MaxMessageSize = int64(v)
	}
	if v, ok := envInt("BOARD_SIZE"); ok {
		c.Game.BoardSize = v
	}
	if v, ok := envInt("GAME_TIMEOUT_MINUTES"); ok {
		c.Game.IdleTimeoutMinutes = v
	}
	if v, ok := envInt("RECONNECT_TIMEOUT_SECONDS"); ok {
		c.Game.GraceSeconds = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
}

func envInt(name string) (int, bool) {
	v := os.Getenv(name)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// validate 檢查設定值的合理範圍
func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("無效的埠號: %d", c.Server.Port)
	}
	if c.Game.BoardSize < 5 || c.Game.BoardSize > 26 {
		return fmt.Errorf("棋盤大小必須在 5-26 之間: %d", c.Game.BoardSize)
	}
	if c.Game.IdleTimeoutMinutes < 1 {
		return fmt.Errorf("閒置逾時必須至少 1 分鐘: %d", c.Game.IdleTimeoutMinutes)
	}
	if c.Game.GraceSeconds < 1 {
		return fmt.Errorf("重連寬限期必須至少 1 秒: %d", c.Game.GraceSeconds)
	}
	if c.Game.SweepIntervalSecond < 1 {
		return fmt.Errorf("掃描間隔必須至少 1 秒: %d", c.Game.SweepIntervalSecond)
	}
	return nil
}

// Addr 回傳監聽位址 host:port
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// IdleTimeout 閒置逾時
func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.Game.IdleTimeoutMinutes) * time.Minute
}

// GraceWindow 重連寬限期
func (c *Config) GraceWindow() time.Duration {
	return time.Duration(c.Game.GraceSeconds) * time.Second
}

// SweepInterval 清理掃描間隔
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Game.SweepIntervalSecond) * time.Second
}

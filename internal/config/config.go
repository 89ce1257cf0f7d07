package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config はアプリケーション全体の設定を保持する構造体
type Config struct {
	Server ServerConfig `yaml:"server"`
	Files  FilesConfig  `yaml:"files"`
	Admin  AdminConfig  `yaml:"admin"`
}

// ServerConfig はHTTP/1.0サーバーの設定
type ServerConfig struct {
	Host string `yaml:"host"` // リッスンするホスト
	Port int    `yaml:"port"` // リッスンするポート番号

	MaxClients        int `yaml:"max_clients"`         // 同時接続数の上限
	RequestBufferSize int `yaml:"request_buffer_size"` // リクエスト読み込みバッファ (超過分は切り捨て)
	JPEGChunkSize     int `yaml:"jpeg_chunk_size"`     // JPEG送信時のチャンクサイズ

	// タイムアウト設定 (0 は無効)
	ReadTimeout     time.Duration `yaml:"read_timeout"`     // 読み込みタイムアウト
	WriteTimeout    time.Duration `yaml:"write_timeout"`    // 書き込みタイムアウト
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"` // シャットダウン待機時間
}

// FilesConfig は配信ファイルの設定
type FilesConfig struct {
	Dir string `yaml:"dir"` // HTML/JPEGを置くディレクトリ
}

// AdminConfig は管理用APIの設定
type AdminConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// Default はデフォルト値に環境変数を反映した設定を返す
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:              getEnvOrDefault("SERVER_HOST", "0.0.0.0"),
			Port:              getEnvAsIntOrDefault("PORT", 8888),
			MaxClients:        getEnvAsIntOrDefault("MAX_CLIENTS", 10),
			RequestBufferSize: 4096,
			JPEGChunkSize:     1024,
			ReadTimeout:       0, // 元の挙動に合わせて無効
			WriteTimeout:      0,
			ShutdownTimeout:   5 * time.Second,
		},
		Files: FilesConfig{
			Dir: getEnvOrDefault("WEBFILES_DIR", "webfiles"),
		},
		Admin: AdminConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    getEnvAsIntOrDefault("ADMIN_PORT", 8889),
		},
	}
}

// Load は設定を読み込む
func Load() (*Config, error) {
	cfg := Default()

	// 設定の検証
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("設定の検証に失敗: %w", err)
	}

	return cfg, nil
}

// LoadFile はYAMLファイルを読み込み、デフォルト値を上書きする
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("設定ファイルの読み込みに失敗: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("設定ファイルの解析に失敗: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("設定の検証に失敗: %w", err)
	}

	return cfg, nil
}

// Validate は設定の妥当性を検証する
func (c *Config) Validate() error {
	// サーバー設定の検証
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("無効なポート番号: %d", c.Server.Port)
	}
	if c.Server.MaxClients < 1 {
		return fmt.Errorf("無効な同時接続数: %d", c.Server.MaxClients)
	}
	if c.Server.RequestBufferSize < 1 {
		return fmt.Errorf("無効なリクエストバッファサイズ: %d", c.Server.RequestBufferSize)
	}
	if c.Server.JPEGChunkSize < 1 {
		return fmt.Errorf("無効なチャンクサイズ: %d", c.Server.JPEGChunkSize)
	}
	if c.Server.ReadTimeout < 0 || c.Server.WriteTimeout < 0 {
		return fmt.Errorf("タイムアウトに負の値は指定できません")
	}

	// 配信ディレクトリ
	if c.Files.Dir == "" {
		return fmt.Errorf("配信ディレクトリが指定されていません")
	}

	// 管理API
	if c.Admin.Enabled {
		if c.Admin.Port < 0 || c.Admin.Port > 65535 {
			return fmt.Errorf("無効な管理APIポート番号: %d", c.Admin.Port)
		}
		if c.Admin.Port != 0 && c.Admin.Port == c.Server.Port && c.Admin.Host == c.Server.Host {
			return fmt.Errorf("管理APIとサーバーが同じアドレスを使用しています: %s", c.AdminAddress())
		}
	}

	return nil
}

// ServerAddress はサーバーのリッスンアドレスを返す
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// AdminAddress は管理APIのリッスンアドレスを返す
func (c *Config) AdminAddress() string {
	return fmt.Sprintf("%s:%d", c.Admin.Host, c.Admin.Port)
}

// getEnvOrDefault は環境変数を取得し、設定されていない場合はデフォルト値を返す
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault は環境変数を整数として取得し、設定されていない場合はデフォルト値を返す
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var intVal int
		if _, err := fmt.Sscanf(value, "%d", &intVal); err == nil {
			return intVal
		}
	}
	return defaultValue
}

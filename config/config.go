package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Storage  StorageConfig  `yaml:"storage"`
	LLM      LLMConfig      `yaml:"llm"`
	Upload   UploadConfig   `yaml:"upload"`
	History  HistoryConfig  `yaml:"history"`
	Auth     AuthConfig     `yaml:"auth"`
}

type ServerConfig struct {
	Port int    `yaml:"port"`
	Mode string `yaml:"mode"` // debug/test/release
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// StorageConfig GCS 对象存储配置，credentials_file 为空时走应用默认凭证
type StorageConfig struct {
	Bucket          string `yaml:"bucket"`
	ProjectID       string `yaml:"project_id"`
	CredentialsFile string `yaml:"credentials_file"`
	SignedURLExpiry int    `yaml:"signed_url_expiry"` // 秒，预签名 URL 有效期
}

// LLMConfig 模型调用配置。API Key 只从环境变量读取，不落配置文件
type LLMConfig struct {
	BaseURL   string `yaml:"base_url"`
	Model     string `yaml:"model"`
	APIKeyEnv string `yaml:"api_key_env"`
	MaxRounds int    `yaml:"max_rounds"` // 工具循环轮数上限
}

type UploadConfig struct {
	MaxFileSize int64 `yaml:"max_file_size"` // 字节
}

// HistoryConfig 附件回灌窗口：窗口内的历史附件重新内联给模型
type HistoryConfig struct {
	AttachmentWindowMinutes int `yaml:"attachment_window_minutes"`
}

type AuthConfig struct {
	JWTSecretEnv string `yaml:"jwt_secret_env"`
}

// Default 返回默认配置
func Default() *Config {
	return &Config{
		Server:   ServerConfig{Port: 8000, Mode: "release"},
		Database: DatabaseConfig{Path: "./reddichat.db"},
		Storage: StorageConfig{
			SignedURLExpiry: 86400,
		},
		LLM: LLMConfig{
			BaseURL:   "https://generativelanguage.googleapis.com/v1beta/openai/",
			Model:     "gemini-2.5-flash",
			APIKeyEnv: "GEMINI_API_KEY",
			MaxRounds: 4,
		},
		Upload: UploadConfig{
			MaxFileSize: 10 << 20,
		},
		History: HistoryConfig{
			AttachmentWindowMinutes: 60,
		},
		Auth: AuthConfig{
			JWTSecretEnv: "SECRET_KEY",
		},
	}
}

// Load 从文件加载配置，以默认值为基础覆盖
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LLMAPIKey 读取模型 API Key 环境变量
func (c *Config) LLMAPIKey() string {
	return os.Getenv(c.LLM.APIKeyEnv)
}

// JWTSecret 读取签名密钥环境变量
func (c *Config) JWTSecret() string {
	return os.Getenv(c.Auth.JWTSecretEnv)
}

package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
)

const (
	DefaultConfigPath       = "config.toml"
	DefaultHTTPAddr         = ":8080"
	DefaultNamespace        = "default"
	DefaultPipeline         = "conversation"
	DefaultJWTExpiresIn     = "24h"
	DefaultPipelineTokenTTL = "5m"
	DefaultPGHost           = "127.0.0.1"
	DefaultPGPort           = 5432
	DefaultPGUser           = "postgres"
	DefaultPGDatabase       = "relay"
	DefaultPGSSLMode        = "disable"
	DefaultGraphAPIURL      = "https://graph.facebook.com/v19.0"
	DefaultStateTTL         = "720h"
	DefaultPruneSchedule    = "@every 1h"

	PipelineModeLocal   = "local"
	PipelineModeGateway = "gateway"

	StateBackendMemory   = "memory"
	StateBackendPostgres = "postgres"
)

type Config struct {
	Log       LogConfig       `toml:"log"`
	Server    ServerConfig    `toml:"server"`
	Auth      AuthConfig      `toml:"auth"`
	Batch     BatchConfig     `toml:"batch"`
	Pipeline  PipelineConfig  `toml:"pipeline"`
	Assistant AssistantConfig `toml:"assistant"`
	Postgres  PostgresConfig  `toml:"postgres"`
	State     StateConfig     `toml:"state"`
	Messenger MessengerConfig `toml:"messenger"`
	Telegram  TelegramConfig  `toml:"telegram"`
	Feishu    FeishuConfig    `toml:"feishu"`
}

type LogConfig struct {
	Level  string `toml:"level" validate:"oneof=debug info warn error"`
	Format string `toml:"format" validate:"oneof=text json"`
}

type ServerConfig struct {
	Addr string `toml:"addr" validate:"required"`
}

type AuthConfig struct {
	JWTSecret        string `toml:"jwt_secret"`
	JWTExpiresIn     string `toml:"jwt_expires_in"`
	PipelineTokenTTL string `toml:"pipeline_token_ttl"`
}

// BatchConfig controls the partitioned dispatch engine.
// MaxConcurrency 0 leaves per-partition fan-out unbounded.
type BatchConfig struct {
	Pipeline       string `toml:"pipeline" validate:"required"`
	Namespace      string `toml:"namespace" validate:"required"`
	MaxConcurrency int    `toml:"max_concurrency" validate:"gte=0"`
	ReportHistory  int    `toml:"report_history" validate:"gte=0"`
}

type PipelineConfig struct {
	Mode           string `toml:"mode" validate:"oneof=local gateway"`
	GatewayURL     string `toml:"gateway_url" validate:"required_if=Mode gateway"`
	TimeoutSeconds int    `toml:"timeout_seconds" validate:"gte=0"`
}

type AssistantConfig struct {
	BaseURL        string `toml:"base_url" validate:"required"`
	WorkspaceID    string `toml:"workspace_id"`
	TimeoutSeconds int    `toml:"timeout_seconds" validate:"gte=0"`
}

type PostgresConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	SSLMode  string `toml:"sslmode"`
}

type StateConfig struct {
	Backend       string `toml:"backend" validate:"oneof=memory postgres"`
	TTL           string `toml:"ttl"`
	PruneSchedule string `toml:"prune_schedule"`
}

type MessengerConfig struct {
	Enabled         bool   `toml:"enabled"`
	AppSecret       string `toml:"app_secret" validate:"required_if=Enabled true"`
	VerifyToken     string `toml:"verify_token" validate:"required_if=Enabled true"`
	PageAccessToken string `toml:"page_access_token" validate:"required_if=Enabled true"`
	GraphAPIURL     string `toml:"graph_api_url"`
}

type TelegramConfig struct {
	Enabled     bool   `toml:"enabled"`
	BotToken    string `toml:"bot_token" validate:"required_if=Enabled true"`
	SecretToken string `toml:"secret_token"`
}

type FeishuConfig struct {
	Enabled           bool   `toml:"enabled"`
	AppID             string `toml:"app_id" validate:"required_if=Enabled true"`
	AppSecret         string `toml:"app_secret" validate:"required_if=Enabled true"`
	VerificationToken string `toml:"verification_token"`
	EncryptKey        string `toml:"encrypt_key"`
	Region            string `toml:"region" validate:"omitempty,oneof=feishu lark"`
}

func (c AssistantConfig) Timeout() time.Duration {
	return secondsOr(c.TimeoutSeconds, 30*time.Second)
}

func (c PipelineConfig) Timeout() time.Duration {
	return secondsOr(c.TimeoutSeconds, 120*time.Second)
}

func (c AuthConfig) PipelineTokenDuration() (time.Duration, error) {
	return parseDuration("auth.pipeline_token_ttl", c.PipelineTokenTTL, DefaultPipelineTokenTTL)
}

func (c AuthConfig) JWTExpiresDuration() (time.Duration, error) {
	return parseDuration("auth.jwt_expires_in", c.JWTExpiresIn, DefaultJWTExpiresIn)
}

func (c StateConfig) TTLDuration() (time.Duration, error) {
	return parseDuration("state.ttl", c.TTL, DefaultStateTTL)
}

func secondsOr(seconds int, fallback time.Duration) time.Duration {
	if seconds <= 0 {
		return fallback
	}
	return time.Duration(seconds) * time.Second
}

func parseDuration(field, value, fallback string) (time.Duration, error) {
	if value == "" {
		value = fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", field)
	}
	return d, nil
}

func Load(path string) (Config, error) {
	cfg := Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		Auth: AuthConfig{
			JWTExpiresIn:     DefaultJWTExpiresIn,
			PipelineTokenTTL: DefaultPipelineTokenTTL,
		},
		Batch: BatchConfig{
			Pipeline:      DefaultPipeline,
			Namespace:     DefaultNamespace,
			ReportHistory: 100,
		},
		Pipeline: PipelineConfig{
			Mode:           PipelineModeLocal,
			TimeoutSeconds: 120,
		},
		Assistant: AssistantConfig{
			BaseURL:        "http://127.0.0.1:8081",
			TimeoutSeconds: 30,
		},
		Postgres: PostgresConfig{
			Host:     DefaultPGHost,
			Port:     DefaultPGPort,
			User:     DefaultPGUser,
			Database: DefaultPGDatabase,
			SSLMode:  DefaultPGSSLMode,
		},
		State: StateConfig{
			Backend:       StateBackendMemory,
			TTL:           DefaultStateTTL,
			PruneSchedule: DefaultPruneSchedule,
		},
		Messenger: MessengerConfig{
			GraphAPIURL: DefaultGraphAPIURL,
		},
		Feishu: FeishuConfig{
			Region: "feishu",
		},
	}

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Validate checks enumerations and the credentials of enabled channels.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := c.Auth.PipelineTokenDuration(); err != nil {
		return err
	}
	if _, err := c.Auth.JWTExpiresDuration(); err != nil {
		return err
	}
	if _, err := c.State.TTLDuration(); err != nil {
		return err
	}
	return nil
}

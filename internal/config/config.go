package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	LogLevel string `envconfig:"CONVCONV_LOG_LEVEL" default:"info"`
	Server   serverConfig
	Storage  storageConfig
	FFmpeg   ffmpegConfig
	Redis    redisConfig
}

type serverConfig struct {
	Host           string   `envconfig:"CONVCONV_HOST" default:"localhost"`
	Port           int      `envconfig:"CONVCONV_PORT" default:"3000"`
	CORSOrigins    []string `envconfig:"CONVCONV_CORS_ORIGINS" default:"*"`
	MaxUploadBytes int64    `envconfig:"CONVCONV_MAX_UPLOAD_BYTES" default:"2147483648"`
}

type storageConfig struct {
	UploadDir       string        `envconfig:"CONVCONV_UPLOAD_DIR" default:"./uploads"`
	OutputDir       string        `envconfig:"CONVCONV_OUTPUT_DIR" default:"./outputs"`
	Retention       time.Duration `envconfig:"CONVCONV_RETENTION" default:"24h"`
	CleanupInterval time.Duration `envconfig:"CONVCONV_CLEANUP_INTERVAL" default:"60m"`
}

type ffmpegConfig struct {
	Path    string `envconfig:"CONVCONV_FFMPEG_PATH" default:"ffmpeg"`
	Threads int    `envconfig:"CONVCONV_FFMPEG_THREADS" default:"0"`
}

// redisConfig is optional; an empty Addr disables the event relay. Addr may
// be host:port or a redis:// URL.
type redisConfig struct {
	Addr          string `envconfig:"CONVCONV_REDIS_ADDR" default:""`
	Password      string `envconfig:"CONVCONV_REDIS_PASSWORD" default:""`
	ChannelPrefix string `envconfig:"CONVCONV_REDIS_CHANNEL_PREFIX" default:"convconv:jobs:"`
}

// Load reads the environment and validates the result.
func Load() (*Config, error) {
	cfg := new(Config)
	if err := envconfig.Process("", cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Server.Port))
	}
	if c.Server.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("max upload bytes must be positive"))
	}
	if strings.TrimSpace(c.Storage.UploadDir) == "" {
		errs = append(errs, errors.New("upload dir is required"))
	}
	if strings.TrimSpace(c.Storage.OutputDir) == "" {
		errs = append(errs, errors.New("output dir is required"))
	}
	if c.Storage.Retention <= 0 {
		errs = append(errs, errors.New("retention must be positive"))
	}
	if c.Storage.CleanupInterval <= 0 {
		errs = append(errs, errors.New("cleanup interval must be positive"))
	}
	if strings.TrimSpace(c.FFmpeg.Path) == "" {
		errs = append(errs, errors.New("ffmpeg path is required"))
	}
	if c.FFmpeg.Threads < 0 {
		errs = append(errs, errors.New("ffmpeg threads must not be negative"))
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log level: %w", err))
	}
	return errors.Join(errs...)
}

// Addr is the HTTP listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// String renders the config for logs with secrets redacted.
func (c *Config) String() string {
	redisPass := ""
	if c.Redis.Password != "" {
		redisPass = "xxxxx"
	}
	return fmt.Sprintf(
		"addr=%s upload_dir=%s output_dir=%s retention=%s cleanup_interval=%s ffmpeg=%s threads=%d log_level=%s redis=%s redis_password=%s",
		c.Addr(), c.Storage.UploadDir, c.Storage.OutputDir, c.Storage.Retention, c.Storage.CleanupInterval,
		c.FFmpeg.Path, c.FFmpeg.Threads, c.LogLevel, redactURL(c.Redis.Addr), redisPass,
	)
}

func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	return u.Redacted()
}

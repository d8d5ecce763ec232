package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/distribution/reference"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

// Config represents the application configuration
type Config struct {
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Sandbox SandboxConfig `mapstructure:"sandbox" yaml:"sandbox"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Transport string `mapstructure:"transport" yaml:"transport"`
	HTTPPort  int    `mapstructure:"http_port" yaml:"http_port"`
}

// SandboxConfig holds the managed container configuration
type SandboxConfig struct {
	Dockerfile     string `mapstructure:"dockerfile" yaml:"dockerfile"`
	DockerfilePath string `mapstructure:"dockerfile_path" yaml:"dockerfile_path,omitempty"`
	ImageName      string `mapstructure:"image_name" yaml:"image_name"`
	ContainerName  string `mapstructure:"container_name" yaml:"container_name"`
	DataDir        string `mapstructure:"data_dir" yaml:"data_dir"`
	WorkDir        string `mapstructure:"workdir" yaml:"workdir"`
	ExecTimeoutSec int    `mapstructure:"exec_timeout_sec" yaml:"exec_timeout_sec"`
	StopTimeoutSec int    `mapstructure:"stop_timeout_sec" yaml:"stop_timeout_sec"`
	LookupPolicy   string `mapstructure:"lookup_policy" yaml:"lookup_policy"`
	DockerHost     string `mapstructure:"docker_host" yaml:"docker_host,omitempty"`
	StopOnShutdown bool   `mapstructure:"stop_on_shutdown" yaml:"stop_on_shutdown"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Mode  string `mapstructure:"mode" yaml:"mode"`
	Level string `mapstructure:"level" yaml:"level"`
}

// DefaultDockerfile is used when no Dockerfile is configured
const DefaultDockerfile = "FROM python:3.11\nWORKDIR /data\n"

var containerNamePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]+$`)

// New loads and validates the application configuration
func New() (*Config, error) {
	return Load("")
}

// Load reads the configuration from path, or from config.yaml in the working
// directory or ./config when path is empty. Environment variables prefixed
// with SHELLBOX_ override file values (sandbox.image_name -> SHELLBOX_SANDBOX_IMAGE_NAME).
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("SHELLBOX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// If config file not found, continue with defaults
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.resolve(); err != nil {
		return nil, err
	}

	// Validate configuration
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation error: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.transport", "stdio")
	v.SetDefault("server.http_port", 8080)

	v.SetDefault("sandbox.dockerfile", DefaultDockerfile)
	v.SetDefault("sandbox.dockerfile_path", "")
	v.SetDefault("sandbox.image_name", "pygpt_image")
	v.SetDefault("sandbox.container_name", "pygpt_container")
	v.SetDefault("sandbox.data_dir", defaultDataDir())
	v.SetDefault("sandbox.workdir", "/data")
	v.SetDefault("sandbox.exec_timeout_sec", 120)
	v.SetDefault("sandbox.stop_timeout_sec", 10)
	v.SetDefault("sandbox.lookup_policy", "best-effort")
	v.SetDefault("sandbox.docker_host", "")
	v.SetDefault("sandbox.stop_on_shutdown", false)

	v.SetDefault("logging.mode", "production")
	v.SetDefault("logging.level", "info")
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "data"
	}
	return filepath.Join(home, ".shellbox", "data")
}

// resolve reads the Dockerfile from disk when a path is configured and makes
// the data directory absolute, as bind mounts require
func (c *Config) resolve() error {
	if c.Sandbox.DockerfilePath != "" {
		data, err := os.ReadFile(c.Sandbox.DockerfilePath)
		if err != nil {
			return fmt.Errorf("error reading sandbox.dockerfile_path: %w", err)
		}
		c.Sandbox.Dockerfile = string(data)
	}

	if c.Sandbox.DataDir != "" {
		abs, err := filepath.Abs(c.Sandbox.DataDir)
		if err != nil {
			return fmt.Errorf("error resolving sandbox.data_dir: %w", err)
		}
		c.Sandbox.DataDir = abs
	}
	return nil
}

// validate ensures the configuration is valid
func (c *Config) validate() error {
	if c.Server.Transport != "stdio" && c.Server.Transport != "http" {
		return fmt.Errorf("invalid server.transport: %s, must be 'stdio' or 'http'", c.Server.Transport)
	}

	if c.Server.Transport == "http" && (c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535) {
		return fmt.Errorf("invalid server.http_port: %d", c.Server.HTTPPort)
	}

	if strings.TrimSpace(c.Sandbox.Dockerfile) == "" {
		return fmt.Errorf("sandbox.dockerfile must not be empty")
	}

	if _, err := reference.ParseNormalizedNamed(c.Sandbox.ImageName); err != nil {
		return fmt.Errorf("invalid sandbox.image_name: %s: %w", c.Sandbox.ImageName, err)
	}

	if !containerNamePattern.MatchString(c.Sandbox.ContainerName) {
		return fmt.Errorf("invalid sandbox.container_name: %q", c.Sandbox.ContainerName)
	}

	if c.Sandbox.DataDir == "" {
		return fmt.Errorf("sandbox.data_dir must not be empty")
	}

	if c.Sandbox.ExecTimeoutSec <= 0 {
		return fmt.Errorf("sandbox.exec_timeout_sec must be positive, got: %d", c.Sandbox.ExecTimeoutSec)
	}

	if c.Sandbox.StopTimeoutSec < 0 {
		return fmt.Errorf("sandbox.stop_timeout_sec must not be negative, got: %d", c.Sandbox.StopTimeoutSec)
	}

	if c.Sandbox.LookupPolicy != "best-effort" && c.Sandbox.LookupPolicy != "fail-fast" {
		return fmt.Errorf("invalid sandbox.lookup_policy: %s, must be 'best-effort' or 'fail-fast'", c.Sandbox.LookupPolicy)
	}

	if c.Logging.Mode != "production" && c.Logging.Mode != "development" {
		return fmt.Errorf("invalid logging.mode: %s, must be 'production' or 'development'", c.Logging.Mode)
	}

	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("invalid logging.level: %s", c.Logging.Level)
	}

	return nil
}

// ExecTimeout returns the command execution timeout as a duration
func (c *Config) ExecTimeout() time.Duration {
	return time.Duration(c.Sandbox.ExecTimeoutSec) * time.Second
}

// StopTimeout returns the container stop timeout as a duration
func (c *Config) StopTimeout() time.Duration {
	return time.Duration(c.Sandbox.StopTimeoutSec) * time.Second
}

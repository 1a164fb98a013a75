package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"github.com/yourusername/media-fetch-go/internal/domain"
)

// LoadConfig loads configuration from file and environment
func LoadConfig(configPath string) (*domain.Config, error) {
	// Start with default config
	config := domain.DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.mediafetch")
		v.AddConfigPath("/etc/mediafetch")
	}

	v.SetEnvPrefix("MEDIAFETCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvKeys(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, use defaults
	}

	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config = expandPaths(config)

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// bindEnvKeys makes env overrides visible to Unmarshal even when no file sets the key
func bindEnvKeys(v *viper.Viper) {
	for _, key := range []string{
		"server.host", "server.port",
		"tool.binary", "tool.ffmpeg_location",
		"fetch.temp_dir", "fetch.max_attempts", "fetch.connect_timeout", "fetch.overall_timeout",
		"credentials.cookie_file", "history.database_path",
		"logging.level", "logging.format", "logging.output_path", "logging.logs_dir",
	} {
		_ = v.BindEnv(key)
	}
}

// expandPaths expands environment variables in path configurations
func expandPaths(config *domain.Config) *domain.Config {
	config.Fetch.TempDir = expandPath(config.Fetch.TempDir)
	config.Credentials.CookieFile = expandPath(config.Credentials.CookieFile)
	config.History.DatabasePath = expandPath(config.History.DatabasePath)
	config.Logging.LogsDir = expandPath(config.Logging.LogsDir)
	config.Tool.FFmpegLocation = expandPath(config.Tool.FFmpegLocation)

	if config.Logging.OutputPath != "stdout" && config.Logging.OutputPath != "stderr" {
		config.Logging.OutputPath = expandPath(config.Logging.OutputPath)
	}

	return config
}

// expandPath expands environment variables and ~ in paths
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[2:])
		}
	}
	return os.ExpandEnv(path)
}

// validateConfig validates the configuration
func validateConfig(config *domain.Config) error {
	if config.Server.Port < 1 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Tool.Binary == "" {
		return fmt.Errorf("tool binary not configured")
	}

	if config.Fetch.TempDir == "" {
		return fmt.Errorf("temp directory not configured")
	}

	if config.Fetch.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least 1")
	}

	if config.Fetch.ConnectTimeout <= 0 || config.Fetch.OverallTimeout <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}

	if config.Fetch.ConnectTimeout > config.Fetch.OverallTimeout {
		return fmt.Errorf("connect timeout %s exceeds overall timeout %s",
			config.Fetch.ConnectTimeout, config.Fetch.OverallTimeout)
	}

	if config.Fetch.DefaultHeight < 1 || config.Fetch.MaxHeight < config.Fetch.DefaultHeight {
		return fmt.Errorf("invalid heights: default %d, max %d",
			config.Fetch.DefaultHeight, config.Fetch.MaxHeight)
	}

	if config.History.Enabled && config.History.DatabasePath == "" {
		return fmt.Errorf("history database path not configured")
	}

	if config.Logging.Level == "" {
		config.Logging.Level = "info"
	}

	return nil
}

// SaveConfig saves configuration to file
func SaveConfig(config *domain.Config, path string) error {
	v := viper.New()
	v.SetConfigType("yaml")

	settings := map[string]interface{}{}
	if err := mapstructure.Decode(config, &settings); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	for key, value := range settings {
		v.Set(key, durationsAsStrings(value))
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// durationsAsStrings rewrites durations as "30s" style strings so files stay readable
func durationsAsStrings(value interface{}) interface{} {
	switch v := value.(type) {
	case time.Duration:
		return v.String()
	case map[string]interface{}:
		for key, inner := range v {
			v[key] = durationsAsStrings(inner)
		}
		return v
	default:
		return value
	}
}

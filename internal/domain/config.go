package domain

import "time"

// Config represents the application configuration
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Tool         ToolConfig         `mapstructure:"tool"`
	Fetch        FetchConfig        `mapstructure:"fetch"`
	Credentials  CredentialsConfig  `mapstructure:"credentials"`
	Proxy        ProxyConfig        `mapstructure:"proxy"`
	History      HistoryConfig      `mapstructure:"history"`
	Notification NotificationConfig `mapstructure:"notification"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// ServerConfig contains server-related configuration
type ServerConfig struct {
	Host      string          `mapstructure:"host"`
	Port      int             `mapstructure:"port"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig bounds how often one client may start a fetch
type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerMinute float64 `mapstructure:"requests_per_minute"`
	Burst             int     `mapstructure:"burst"`
}

// ToolConfig describes the external extraction tool (yt-dlp compatible)
type ToolConfig struct {
	Binary              string        `mapstructure:"binary"`
	FFmpegLocation      string        `mapstructure:"ffmpeg_location"`
	Retries             int           `mapstructure:"retries"`
	FragmentRetries     int           `mapstructure:"fragment_retries"`
	SocketTimeout       time.Duration `mapstructure:"socket_timeout"`
	ConcurrentFragments int           `mapstructure:"concurrent_fragments"`
	ExtraArgs           []string      `mapstructure:"extra_args"`
}

// FetchConfig contains orchestration budgets and policy knobs
type FetchConfig struct {
	TempDir           string        `mapstructure:"temp_dir"`
	MaxAttempts       int           `mapstructure:"max_attempts"`
	ConnectTimeout    time.Duration `mapstructure:"connect_timeout"`
	OverallTimeout    time.Duration `mapstructure:"overall_timeout"`
	KillGrace         time.Duration `mapstructure:"kill_grace"`
	DefaultHeight     int           `mapstructure:"default_height"`
	MaxHeight         int           `mapstructure:"max_height"`
	FallbackHeights   []int         `mapstructure:"fallback_heights"`
	DownloadWindowLow float64       `mapstructure:"download_window_low"`
	DownloadWindowHi  float64       `mapstructure:"download_window_high"`
	AudioFloorBytes   int64         `mapstructure:"audio_floor_bytes"`
	VideoFloorBytes   int64         `mapstructure:"video_floor_bytes"`
	ChunkSize         int           `mapstructure:"chunk_size"`
}

// CredentialsConfig points at the cookie bundle handed to the tool
type CredentialsConfig struct {
	CookieFile     string        `mapstructure:"cookie_file"`
	RefreshCommand []string      `mapstructure:"refresh_command"`
	MaxAge         time.Duration `mapstructure:"max_age"`
	RefreshTimeout time.Duration `mapstructure:"refresh_timeout"`
}

// ProxyConfig lists outbound proxies rotated across attempts
type ProxyConfig struct {
	Endpoints []string `mapstructure:"endpoints"`
}

// HistoryConfig controls the append-only fetch history store
type HistoryConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	DatabasePath string `mapstructure:"database_path"`
}

// NotificationConfig contains notification-related configuration
type NotificationConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Sound   bool   `mapstructure:"sound"`
	Method  string `mapstructure:"method"` // osascript, notify-send
}

// LoggingConfig contains logging-related configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	Format     string `mapstructure:"format"`      // json, console
	OutputPath string `mapstructure:"output_path"` // stdout, stderr, or file path
	LogsDir    string `mapstructure:"logs_dir"`    // categorised JSON logs and tool transcripts
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "localhost",
			Port: 8080,
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerMinute: 10,
				Burst:             3,
			},
		},
		Tool: ToolConfig{
			Binary:              "yt-dlp",
			Retries:             5,
			FragmentRetries:     10,
			SocketTimeout:       20 * time.Second,
			ConcurrentFragments: 4,
		},
		Fetch: FetchConfig{
			TempDir:           "$HOME/.mediafetch/tmp",
			MaxAttempts:       3,
			ConnectTimeout:    45 * time.Second,
			OverallTimeout:    4 * time.Minute,
			KillGrace:         5 * time.Second,
			DefaultHeight:     720,
			MaxHeight:         1080,
			FallbackHeights:   []int{1080, 720, 480, 360},
			DownloadWindowLow: 10,
			DownloadWindowHi:  85,
			AudioFloorBytes:   1024,
			VideoFloorBytes:   10 * 1024,
			ChunkSize:         64 * 1024,
		},
		Credentials: CredentialsConfig{
			CookieFile:     "$HOME/.mediafetch/cookies/default.cookie",
			MaxAge:         6 * time.Hour,
			RefreshTimeout: 30 * time.Second,
		},
		History: HistoryConfig{
			Enabled:      true,
			DatabasePath: "$HOME/.mediafetch/history.db",
		},
		Notification: NotificationConfig{
			Enabled: false,
			Sound:   false,
			Method:  "notify-send",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			OutputPath: "stdout",
			LogsDir:    "$HOME/.mediafetch/logs",
		},
	}
}

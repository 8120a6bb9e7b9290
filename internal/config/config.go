package config

import "time"

// HubConfig is the root configuration for a streamhub instance.
type HubConfig struct {
	Instance  InstanceConfig  `yaml:"instance"`
	Directory DirectoryConfig `yaml:"directory"`
	Stream    StreamConfig    `yaml:"stream"`
	Sessions  SessionsConfig  `yaml:"sessions"`
	Database  DatabaseConfig  `yaml:"database"`
	Archive   ArchiveConfig   `yaml:"archive"`
	Poller    PollerConfig    `yaml:"poller"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// InstanceConfig identifies this hub.
type InstanceConfig struct {
	ID     string `yaml:"id"`
	Region string `yaml:"region"`
}

// DirectoryConfig holds the session directory REST API settings.
type DirectoryConfig struct {
	BaseURL    string        `yaml:"base_url"`
	AuthToken  string        `yaml:"auth_token"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

// StreamConfig holds the per-session WebSocket settings.
type StreamConfig struct {
	// URLTemplate contains a {session} placeholder, replaced with the
	// session id at dial time.
	URLTemplate      string        `yaml:"url_template"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	PingInterval     time.Duration `yaml:"ping_interval"`
	PingTimeout      time.Duration `yaml:"ping_timeout"`
}

// SessionsConfig holds connection lifecycle and wire-level limits.
type SessionsConfig struct {
	ReconnectBaseDelay   time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay    time.Duration `yaml:"reconnect_max_delay"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
	MaxFrameSize         uint32        `yaml:"max_frame_size"`
	TextBufferSize       int           `yaml:"text_buffer_size"`
	CompressThreshold    int           `yaml:"compress_threshold"`
	BackpressureInterval int           `yaml:"backpressure_interval"`
}

// DatabaseConfig holds the transcript archive database.
type DatabaseConfig struct {
	Postgres DBConfig `yaml:"postgres"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// ArchiveConfig holds transcript batch writer settings.
type ArchiveConfig struct {
	Enabled       bool          `yaml:"enabled"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
}

// PollerConfig holds directory re-sync settings.
type PollerConfig struct {
	Interval    time.Duration `yaml:"interval"`
	Concurrency int           `yaml:"concurrency"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}

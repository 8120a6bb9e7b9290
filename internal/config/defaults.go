package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultDirectoryTimeout     = 30 * time.Second
	DefaultMaxRetries           = 3
	DefaultDBPort               = 5432
	DefaultDBSSLMode            = "prefer"
	DefaultMaxConns             = 10
	DefaultMinConns             = 2
	DefaultHandshakeTimeout     = 10 * time.Second
	DefaultWriteTimeout         = 5 * time.Second
	DefaultPingInterval         = 30 * time.Second
	DefaultPingTimeout          = 90 * time.Second
	DefaultReconnectBaseDelay   = 1 * time.Second
	DefaultReconnectMaxDelay    = 60 * time.Second
	DefaultMaxReconnectAttempts = 8
	DefaultMaxFrameSize         = 100 << 20
	DefaultTextBufferSize       = 10 << 20
	DefaultCompressThreshold    = 1 << 10
	DefaultBatchSize            = 500
	DefaultFlushInterval        = 1 * time.Second
	DefaultBufferSize           = 10000
	DefaultPollInterval         = 30 * time.Second
	DefaultPollConcurrency      = 4
	DefaultMetricsPort          = 9090
	DefaultMetricsPath          = "/metrics"
)

func (c *HubConfig) applyDefaults() {
	// Directory defaults
	if c.Directory.Timeout == 0 {
		c.Directory.Timeout = DefaultDirectoryTimeout
	}
	if c.Directory.MaxRetries == 0 {
		c.Directory.MaxRetries = DefaultMaxRetries
	}

	// Stream defaults
	if c.Stream.HandshakeTimeout == 0 {
		c.Stream.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Stream.WriteTimeout == 0 {
		c.Stream.WriteTimeout = DefaultWriteTimeout
	}
	if c.Stream.PingInterval == 0 {
		c.Stream.PingInterval = DefaultPingInterval
	}
	if c.Stream.PingTimeout == 0 {
		c.Stream.PingTimeout = DefaultPingTimeout
	}

	// Sessions defaults
	if c.Sessions.ReconnectBaseDelay == 0 {
		c.Sessions.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.Sessions.ReconnectMaxDelay == 0 {
		c.Sessions.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}
	if c.Sessions.MaxReconnectAttempts == 0 {
		c.Sessions.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if c.Sessions.MaxFrameSize == 0 {
		c.Sessions.MaxFrameSize = DefaultMaxFrameSize
	}
	if c.Sessions.TextBufferSize == 0 {
		c.Sessions.TextBufferSize = DefaultTextBufferSize
	}
	if c.Sessions.CompressThreshold == 0 {
		c.Sessions.CompressThreshold = DefaultCompressThreshold
	}

	// Database defaults
	applyDBDefaults(&c.Database.Postgres)

	// Archive defaults
	if c.Archive.BatchSize == 0 {
		c.Archive.BatchSize = DefaultBatchSize
	}
	if c.Archive.FlushInterval == 0 {
		c.Archive.FlushInterval = DefaultFlushInterval
	}
	if c.Archive.BufferSize == 0 {
		c.Archive.BufferSize = DefaultBufferSize
	}

	// Poller defaults
	if c.Poller.Interval == 0 {
		c.Poller.Interval = DefaultPollInterval
	}
	if c.Poller.Concurrency == 0 {
		c.Poller.Concurrency = DefaultPollConcurrency
	}

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}

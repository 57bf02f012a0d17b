package config

import "time"

// Feed drivers.
const (
	FeedDriverLocal = "local"
	FeedDriverNATS  = "nats"
)

// Config holds server and client configuration values.
type Config struct {
	LogLevel string `mapstructure:"log_level" yaml:"log_level"`

	// Remote store server.
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	DatabasePath      string        `mapstructure:"database_path" yaml:"database_path"`
	JWTSecret         string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer         string        `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience       string        `mapstructure:"jwt_audience" yaml:"jwt_audience"`
	JWTTTL            time.Duration `mapstructure:"jwt_ttl" yaml:"jwt_ttl"`
	MaxMessageBytes   int           `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
	SendRatePerMinute int           `mapstructure:"send_rate_per_minute" yaml:"send_rate_per_minute"`

	// Change feed.
	FeedDriver        string `mapstructure:"feed_driver" yaml:"feed_driver"`
	NATSURL           string `mapstructure:"nats_url" yaml:"nats_url"`
	NATSSubjectPrefix string `mapstructure:"nats_subject_prefix" yaml:"nats_subject_prefix"`
	WatchBuffer       int    `mapstructure:"watch_buffer" yaml:"watch_buffer"`

	// Client.
	ServerURL         string        `mapstructure:"server_url" yaml:"server_url"`
	SessionPath       string        `mapstructure:"session_path" yaml:"session_path"`
	ReconnectDelay    time.Duration `mapstructure:"reconnect_delay" yaml:"reconnect_delay"`
	MaxReconnectDelay time.Duration `mapstructure:"max_reconnect_delay" yaml:"max_reconnect_delay"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		LogLevel:          "info",
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		DatabasePath:      "wirechat-dm.db",
		JWTSecret:         "change-me",
		JWTIssuer:         "wirechat-dm",
		JWTAudience:       "wirechat-dm",
		JWTTTL:            24 * time.Hour,
		MaxMessageBytes:   4096,
		SendRatePerMinute: 120,
		FeedDriver:        FeedDriverLocal,
		NATSURL:           "nats://127.0.0.1:4222",
		NATSSubjectPrefix: "chat",
		WatchBuffer:       64,
		ServerURL:         "http://localhost:8080",
		SessionPath:       "session.yaml",
		ReconnectDelay:    500 * time.Millisecond,
		MaxReconnectDelay: 15 * time.Second,
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.DatabasePath != "" {
		c.DatabasePath = other.DatabasePath
	}
	if other.JWTSecret != "" {
		c.JWTSecret = other.JWTSecret
	}
	if other.JWTIssuer != "" {
		c.JWTIssuer = other.JWTIssuer
	}
	if other.JWTAudience != "" {
		c.JWTAudience = other.JWTAudience
	}
	if other.JWTTTL != 0 {
		c.JWTTTL = other.JWTTTL
	}
	if other.MaxMessageBytes != 0 {
		c.MaxMessageBytes = other.MaxMessageBytes
	}
	if other.SendRatePerMinute != 0 {
		c.SendRatePerMinute = other.SendRatePerMinute
	}
	if other.FeedDriver != "" {
		c.FeedDriver = other.FeedDriver
	}
	if other.NATSURL != "" {
		c.NATSURL = other.NATSURL
	}
	if other.NATSSubjectPrefix != "" {
		c.NATSSubjectPrefix = other.NATSSubjectPrefix
	}
	if other.WatchBuffer != 0 {
		c.WatchBuffer = other.WatchBuffer
	}
	if other.ServerURL != "" {
		c.ServerURL = other.ServerURL
	}
	if other.SessionPath != "" {
		c.SessionPath = other.SessionPath
	}
	if other.ReconnectDelay != 0 {
		c.ReconnectDelay = other.ReconnectDelay
	}
	if other.MaxReconnectDelay != 0 {
		c.MaxReconnectDelay = other.MaxReconnectDelay
	}
}

package config

import (
	"fmt"
	"os"
	"time"

	"soundradius/pkg/utils"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Server struct {
		Address         string        `yaml:"address"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Signal struct {
		Address      string        `yaml:"address"`
		PingInterval time.Duration `yaml:"ping_interval"`
		PongTimeout  time.Duration `yaml:"pong_timeout"`
	} `yaml:"signal"`

	Session struct {
		MinRadius      float64 `yaml:"min_radius"`
		MaxRadius      float64 `yaml:"max_radius"`
		DefaultRadius  float64 `yaml:"default_radius"`
		ProximityScale float64 `yaml:"proximity_scale"`
		DefaultTier    string  `yaml:"default_tier"`
	} `yaml:"session"`

	Capture struct {
		ReconnectAttempts   int           `yaml:"reconnect_attempts"`
		ReconnectBackoff    time.Duration `yaml:"reconnect_backoff"`
		HealthCheckInterval time.Duration `yaml:"health_check_interval"`
	} `yaml:"capture"`

	Layout struct {
		SettleDelay     time.Duration `yaml:"settle_delay"`
		AnimationWindow time.Duration `yaml:"animation_window"`
		CircleRadius    float64       `yaml:"circle_radius"`
	} `yaml:"layout"`

	WebRTC struct {
		ICEServers []struct {
			URLs       []string `yaml:"urls"`
			Username   string   `yaml:"username,omitempty"`
			Credential string   `yaml:"credential,omitempty"`
		} `yaml:"ice_servers"`
		PortRange struct {
			Min uint16 `yaml:"min"`
			Max uint16 `yaml:"max"`
		} `yaml:"port_range"`
	} `yaml:"webrtc"`

	Monitoring struct {
		PrometheusEnabled bool          `yaml:"prometheus_enabled"`
		PrometheusPort    int           `yaml:"prometheus_port"`
		NetworkSampleRate time.Duration `yaml:"network_sample_rate"`
	} `yaml:"monitoring"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	Tracing struct {
		Enabled    bool    `yaml:"enabled"`
		JaegerURL  string  `yaml:"jaeger_url"`
		SampleRate float64 `yaml:"sample_rate"`
	} `yaml:"tracing"`

	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	Auth struct {
		JWTSecret    string        `yaml:"jwt_secret"`
		JoinTokenTTL time.Duration `yaml:"join_token_ttl"`
	} `yaml:"auth"`

	RateLimiting struct {
		Enabled           bool    `yaml:"enabled"`
		RequestsPerSecond float64 `yaml:"requests_per_second"`
		Burst             int     `yaml:"burst"`
		MessagesPerSecond float64 `yaml:"messages_per_second"`
		MessageBurst      int     `yaml:"message_burst"`
	} `yaml:"rate_limiting"`
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	if c.Server.Address == "" {
		return fmt.Errorf("server.address must not be empty")
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server.read_timeout must be > 0")
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server.write_timeout must be > 0")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be > 0")
	}

	if c.Signal.Address == "" {
		return fmt.Errorf("signal.address must not be empty")
	}
	if c.Signal.PingInterval <= 0 {
		return fmt.Errorf("signal.ping_interval must be > 0")
	}
	if c.Signal.PongTimeout <= 0 {
		return fmt.Errorf("signal.pong_timeout must be > 0")
	}

	if c.Session.MinRadius <= 0 {
		return fmt.Errorf("session.min_radius must be > 0")
	}
	if c.Session.MaxRadius <= c.Session.MinRadius {
		return fmt.Errorf("session.max_radius must be > min_radius")
	}
	if c.Session.DefaultRadius < c.Session.MinRadius || c.Session.DefaultRadius > c.Session.MaxRadius {
		return fmt.Errorf("session.default_radius must be within [min_radius, max_radius]")
	}
	if c.Session.ProximityScale <= 0 {
		return fmt.Errorf("session.proximity_scale must be > 0")
	}

	if c.Capture.ReconnectAttempts <= 0 {
		return fmt.Errorf("capture.reconnect_attempts must be > 0")
	}
	if c.Capture.ReconnectBackoff <= 0 {
		return fmt.Errorf("capture.reconnect_backoff must be > 0")
	}
	if c.Capture.HealthCheckInterval <= 0 {
		return fmt.Errorf("capture.health_check_interval must be > 0")
	}

	if c.Layout.SettleDelay <= 0 {
		return fmt.Errorf("layout.settle_delay must be > 0")
	}
	if c.Layout.AnimationWindow < c.Layout.SettleDelay {
		return fmt.Errorf("layout.animation_window must be >= settle_delay")
	}
	if c.Layout.CircleRadius <= 0 {
		return fmt.Errorf("layout.circle_radius must be > 0")
	}

	if c.WebRTC.PortRange.Min > 0 || c.WebRTC.PortRange.Max > 0 {
		if c.WebRTC.PortRange.Min == 0 || c.WebRTC.PortRange.Max == 0 {
			return fmt.Errorf("webrtc.port_range.min and max must both be set when one is set")
		}
		if c.WebRTC.PortRange.Min >= c.WebRTC.PortRange.Max {
			return fmt.Errorf("webrtc.port_range.min must be < max")
		}
	}

	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort <= 0 {
		return fmt.Errorf("monitoring.prometheus_port must be > 0 when prometheus_enabled=true")
	}
	if c.Monitoring.NetworkSampleRate <= 0 {
		return fmt.Errorf("monitoring.network_sample_rate must be > 0")
	}

	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}

	if c.Tracing.Enabled {
		if c.Tracing.JaegerURL == "" {
			return fmt.Errorf("tracing.jaeger_url must not be empty when tracing.enabled=true")
		}
		if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
			return fmt.Errorf("tracing.sample_rate must be within [0,1]")
		}
	}

	if c.Redis.Enabled && c.Redis.Address == "" {
		return fmt.Errorf("redis.address must not be empty when redis.enabled=true")
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret must not be empty")
	}
	if c.Auth.JoinTokenTTL <= 0 {
		return fmt.Errorf("auth.join_token_ttl must be > 0")
	}

	if c.RateLimiting.Enabled {
		if c.RateLimiting.RequestsPerSecond <= 0 {
			return fmt.Errorf("rate_limiting.requests_per_second must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.Burst <= 0 {
			return fmt.Errorf("rate_limiting.burst must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.MessagesPerSecond <= 0 {
			return fmt.Errorf("rate_limiting.messages_per_second must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.MessageBurst <= 0 {
			return fmt.Errorf("rate_limiting.message_burst must be > 0 when rate limiting is enabled")
		}
	}

	return nil
}

// Load reads configuration from YAML file, applies defaults and env overrides.
func Load(configPath string) (*Config, error) {
	// If file does not exist, fall back to defaults
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns configuration with sane defaults.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Server.Address = ":8080"
	cfg.Server.ReadTimeout = 30 * time.Second
	cfg.Server.WriteTimeout = 30 * time.Second
	cfg.Server.ShutdownTimeout = 30 * time.Second

	cfg.Signal.Address = ":8081"
	cfg.Signal.PingInterval = 30 * time.Second
	cfg.Signal.PongTimeout = 60 * time.Second

	cfg.Session.MinRadius = 20
	cfg.Session.MaxRadius = 100
	cfg.Session.DefaultRadius = 50
	cfg.Session.ProximityScale = 10
	cfg.Session.DefaultTier = "high"

	cfg.Capture.ReconnectAttempts = 5
	cfg.Capture.ReconnectBackoff = 2 * time.Second
	cfg.Capture.HealthCheckInterval = 10 * time.Second

	cfg.Layout.SettleDelay = 100 * time.Millisecond
	cfg.Layout.AnimationWindow = 2500 * time.Millisecond
	cfg.Layout.CircleRadius = 35

	cfg.Monitoring.PrometheusEnabled = true
	cfg.Monitoring.PrometheusPort = 9090
	cfg.Monitoring.NetworkSampleRate = 5 * time.Second

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	cfg.Tracing.Enabled = false
	cfg.Tracing.JaegerURL = "http://localhost:14268/api/traces"
	cfg.Tracing.SampleRate = 1.0

	cfg.Redis.Enabled = false
	cfg.Redis.Address = "localhost:6379"
	cfg.Redis.DB = 0

	cfg.Auth.JWTSecret = "change-me-in-production"
	cfg.Auth.JoinTokenTTL = 2 * time.Hour

	cfg.RateLimiting.Enabled = false
	cfg.RateLimiting.RequestsPerSecond = 50
	cfg.RateLimiting.Burst = 100
	cfg.RateLimiting.MessagesPerSecond = 100
	cfg.RateLimiting.MessageBurst = 200

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if addr := os.Getenv("SOUNDRADIUS_SERVER_ADDRESS"); addr != "" {
		c.Server.Address = addr
	}
	if addr := os.Getenv("SOUNDRADIUS_SIGNAL_ADDRESS"); addr != "" {
		c.Signal.Address = addr
	}
	if level := os.Getenv("SOUNDRADIUS_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if secret := os.Getenv("SOUNDRADIUS_JWT_SECRET"); secret != "" {
		c.Auth.JWTSecret = secret
	}
	if backoff := os.Getenv("SOUNDRADIUS_RECONNECT_BACKOFF"); backoff != "" {
		c.Capture.ReconnectBackoff = utils.ParseDurationSafe(backoff, c.Capture.ReconnectBackoff)
	}
	if addr := os.Getenv("SOUNDRADIUS_REDIS_ADDRESS"); addr != "" {
		c.Redis.Address = addr
		c.Redis.Enabled = true
	}
}

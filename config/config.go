package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"apphost/types"
)

// Config holds the host configuration
type Config struct {
	Profile          string                 `json:"profile"`    // "plain-container" or "cloud-managed"
	Descriptor       string                 `json:"descriptor"` // Optional HCL descriptor, replaces the built-in profile
	APIServerPort    string                 `json:"api_server_port"`
	ServerAddress    string                 `json:"server_address"` // Public address ingress DNS records point at
	PublishHost      string                 `json:"publish_host"`   // Host interface published ports bind to
	Network          string                 `json:"network"`        // Docker network when the topology declares no environment
	StateDir         string                 `json:"state_dir"`
	DockerHost       string                 `json:"docker_host"`
	ReadinessTimeout int                    `json:"readiness_timeout"` // Seconds to wait for a resource to become ready
	TimeZone         string                 `json:"time_zone"`
	AllowSignup      bool                   `json:"allow_signup"`
	PUID             int                    `json:"puid"`
	PGID             int                    `json:"pgid"`
	PostgresUser     string                 `json:"postgres_user"`
	PostgresPassword string                 `json:"postgres_password"` // Generated and kept in StateDir when empty
	LogLevel         string                 `json:"log_level"`
	LogFormat        string                 `json:"log_format"` // json, text or auto
	Cloudflare       types.CloudflareConfig `json:"cloudflare"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		Profile:          "plain-container",
		APIServerPort:    ":8081",
		ServerAddress:    "localhost",
		PublishHost:      "0.0.0.0",
		Network:          "apphost",
		StateDir:         ".apphost",
		ReadinessTimeout: 120,
		TimeZone:         "Australia/Brisbane",
		AllowSignup:      false,
		PUID:             1000,
		PGID:             1000,
		PostgresUser:     types.DefaultPostgresUser,
		LogLevel:         "info",
		LogFormat:        "auto",
		Cloudflare: types.CloudflareConfig{
			Enabled:      false,
			BaseDomain:   "localhost",
			AutoGenerate: true,
		},
	}
}

// LoadConfig loads configuration from a file or environment variables
func LoadConfig(configPath string) (Config, error) {
	config := DefaultConfig()

	if configPath != "" {
		if err := loadFromFile(&config, configPath); err != nil {
			return config, err
		}
	}

	overrideFromEnv(&config)

	return config, config.Validate()
}

// ReadinessTimeoutDuration returns ReadinessTimeout as a time.Duration.
func (c Config) ReadinessTimeoutDuration() time.Duration {
	return time.Duration(c.ReadinessTimeout) * time.Second
}

// Validate checks the values LoadConfig cannot default.
func (c Config) Validate() error {
	var errs []error
	if c.Profile == "" && c.Descriptor == "" {
		errs = append(errs, errors.New("profile or descriptor is required"))
	}
	if c.ReadinessTimeout <= 0 {
		errs = append(errs, fmt.Errorf("readiness_timeout must be positive, got %d", c.ReadinessTimeout))
	}
	if c.PUID < 0 || c.PGID < 0 {
		errs = append(errs, fmt.Errorf("puid and pgid must not be negative"))
	}
	if c.PostgresUser == "" {
		errs = append(errs, errors.New("postgres_user is required"))
	}
	if c.Cloudflare.Enabled && (c.Cloudflare.APIToken == "" || c.Cloudflare.ZoneID == "" || c.Cloudflare.BaseDomain == "") {
		errs = append(errs, errors.New("cloudflare requires api_token, zone_id and base_domain when enabled"))
	}
	return errors.Join(errs...)
}

// loadFromFile loads configuration from a JSON file
func loadFromFile(config *Config, path string) error {
	bytes, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := json.Unmarshal(bytes, config); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// overrideFromEnv overrides configuration with environment variables
func overrideFromEnv(config *Config) {
	if val := os.Getenv("APPHOST_PROFILE"); val != "" {
		config.Profile = val
	}

	if val := os.Getenv("APPHOST_DESCRIPTOR"); val != "" {
		config.Descriptor = val
	}

	if val := os.Getenv("APPHOST_API_PORT"); val != "" {
		config.APIServerPort = ensurePortFormat(val)
	}

	if val := os.Getenv("APPHOST_SERVER_ADDRESS"); val != "" {
		config.ServerAddress = val
	}

	if val := os.Getenv("APPHOST_PUBLISH_HOST"); val != "" {
		config.PublishHost = val
	}

	if val := os.Getenv("APPHOST_NETWORK"); val != "" {
		config.Network = val
	}

	if val := os.Getenv("APPHOST_STATE_DIR"); val != "" {
		config.StateDir = val
	}

	if val := os.Getenv("APPHOST_DOCKER_HOST"); val != "" {
		config.DockerHost = val
	}

	if val := os.Getenv("APPHOST_READINESS_TIMEOUT"); val != "" {
		if timeout, err := parseEnvInt(val); err == nil {
			config.ReadinessTimeout = timeout
		}
	}

	if val := os.Getenv("APPHOST_TZ"); val != "" {
		config.TimeZone = val
	}

	if val := os.Getenv("APPHOST_ALLOW_SIGNUP"); val != "" {
		config.AllowSignup = strings.ToLower(val) == "true"
	}

	if val := os.Getenv("APPHOST_PUID"); val != "" {
		if id, err := parseEnvInt(val); err == nil {
			config.PUID = id
		}
	}

	if val := os.Getenv("APPHOST_PGID"); val != "" {
		if id, err := parseEnvInt(val); err == nil {
			config.PGID = id
		}
	}

	if val := os.Getenv("APPHOST_POSTGRES_USER"); val != "" {
		config.PostgresUser = val
	}

	if val := os.Getenv("APPHOST_POSTGRES_PASSWORD"); val != "" {
		config.PostgresPassword = val
	}

	if val := os.Getenv("APPHOST_LOG_LEVEL"); val != "" {
		config.LogLevel = strings.ToLower(val)
	}

	if val := os.Getenv("APPHOST_LOG_FORMAT"); val != "" {
		config.LogFormat = strings.ToLower(val)
	}

	// Cloudflare settings
	if val := os.Getenv("APPHOST_CLOUDFLARE_ENABLED"); val != "" {
		config.Cloudflare.Enabled = strings.ToLower(val) == "true"
	}

	if val := os.Getenv("APPHOST_CLOUDFLARE_API_TOKEN"); val != "" {
		config.Cloudflare.APIToken = val
	}

	if val := os.Getenv("APPHOST_CLOUDFLARE_ZONE_ID"); val != "" {
		config.Cloudflare.ZoneID = val
	}

	if val := os.Getenv("APPHOST_CLOUDFLARE_BASE_DOMAIN"); val != "" {
		config.Cloudflare.BaseDomain = val
	}

	if val := os.Getenv("APPHOST_CLOUDFLARE_AUTO_GENERATE"); val != "" {
		config.Cloudflare.AutoGenerate = strings.ToLower(val) == "true"
	}
}

// ensurePortFormat ensures port is in the format ":8080"
func ensurePortFormat(port string) string {
	port = strings.TrimSpace(port)
	if !strings.HasPrefix(port, ":") {
		return ":" + port
	}
	return port
}

// parseEnvInt parses an integer from an environment variable
func parseEnvInt(val string) (int, error) {
	return strconv.Atoi(strings.TrimSpace(val))
}

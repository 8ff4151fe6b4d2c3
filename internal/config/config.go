package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the application configuration loaded from config.yaml with
// environment variable overrides.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	NATS     NATSConfig     `yaml:"nats"`
	Bridge   BridgeConfig   `yaml:"bridge"`
	Signer   SignerConfig   `yaml:"signer"`
	JWT      JWTConfig      `yaml:"jwt"`
	Admin    AdminConfig    `yaml:"admin"`
	CORS     CORSConfig     `yaml:"cors"`
}

// ServerConfig server configuration
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig database configuration
type DatabaseConfig struct {
	DSN    string `yaml:"dsn"`
	Driver string `yaml:"driver"`
}

// NATSConfig message server configuration. ConfirmationSubject is the
// wildcard subject the chain-monitoring collaborator publishes
// confirmation events on.
type NATSConfig struct {
	URL                 string `yaml:"url"`
	Timeout             int    `yaml:"timeout"` // seconds
	ReconnectWait       int    `yaml:"reconnect_wait"`
	ConfirmationSubject string `yaml:"confirmation_subject"`
	EventSubjectPrefix  string `yaml:"event_subject_prefix"` // outbound state-change events
}

// BridgeConfig is the configuration surface consumed by the orchestration
// core: amount bounds, confirmation threshold, execution timeout, retry
// policy. None of these are hardcoded in the components.
type BridgeConfig struct {
	SourceNetwork         string `yaml:"sourceNetwork"`  // mainnet | testnet | regtest
	SourceDecimals        int    `yaml:"sourceDecimals"` // 8 for the UTXO chain
	TargetDecimals        int    `yaml:"targetDecimals"`
	MinAmount             string `yaml:"minAmount"` // decimal string, source units
	MaxAmount             string `yaml:"maxAmount"`
	ConfirmationThreshold int    `yaml:"confirmationThreshold"` // default 6
	ConfirmationDeadline  int    `yaml:"confirmationDeadline"`  // minutes
	ExecutionTimeout      int    `yaml:"executionTimeout"`      // seconds per attempt
	MaxAttempts           int    `yaml:"maxAttempts"`
	RetryBackoff          int    `yaml:"retryBackoff"` // seconds, doubled per attempt
}

// SignerConfig signer gateway configuration. The gateway exposes the primary
// (account invoke) and alternate (raw execute) execution paths.
type SignerConfig struct {
	BaseURL   string `yaml:"baseUrl"`
	AuthToken string `yaml:"authToken"`
	Timeout   int    `yaml:"timeout"` // seconds, HTTP client level
}

// JWTConfig token signing configuration
type JWTConfig struct {
	Secret   string `yaml:"secret"`
	Issuer   string `yaml:"issuer"`
	TTLHours int    `yaml:"ttlHours"`
}

// AdminConfig admin API access control configuration
type AdminConfig struct {
	Username     string   `yaml:"username"`
	PasswordHash string   `yaml:"passwordHash"` // bcrypt
	TOTPSecret   string   `yaml:"totpSecret"`
	AllowedIPs   []string `yaml:"allowedIPs"`
}

// CORSConfig CORS configuration
type CORSConfig struct {
	AllowedOrigins   []string `yaml:"allowedOrigins"`
	AllowCredentials bool     `yaml:"allowCredentials"`
	MaxAge           int      `yaml:"maxAge"`
}

var AppConfig *Config

// ExecutionTimeoutDuration returns the per-attempt execution timeout,
// defaulting to two minutes when unset.
func (c *BridgeConfig) ExecutionTimeoutDuration() time.Duration {
	if c.ExecutionTimeout <= 0 {
		return 2 * time.Minute
	}
	return time.Duration(c.ExecutionTimeout) * time.Second
}

// RetryBackoffDuration returns the base retry backoff, defaulting to 3s.
func (c *BridgeConfig) RetryBackoffDuration() time.Duration {
	if c.RetryBackoff <= 0 {
		return 3 * time.Second
	}
	return time.Duration(c.RetryBackoff) * time.Second
}

// ConfirmationDeadlineDuration returns how long a transaction may sit in
// Pending/Confirming before it fails with a confirmation timeout.
func (c *BridgeConfig) ConfirmationDeadlineDuration() time.Duration {
	if c.ConfirmationDeadline <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.ConfirmationDeadline) * time.Minute
}

// LoadConfig loads the configuration file and applies env overrides.
func LoadConfig(configPath string) error {
	if configPath == "" {
		configPath = "config.yaml"
		if _, err := os.Stat("config.local.yaml"); err == nil {
			configPath = "config.local.yaml"
			log.Printf("🔧 Using local configuration file: config.local.yaml")
		}
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&config)
	overrideFromEnv(&config)

	log.Printf("📋 [Config] Bridge configuration loaded: network=%s, minAmount=%s, maxAmount=%s, confirmations=%d",
		config.Bridge.SourceNetwork, config.Bridge.MinAmount, config.Bridge.MaxAmount, config.Bridge.ConfirmationThreshold)

	AppConfig = &config
	return nil
}

// applyDefaults fills operational defaults for unset fields.
func applyDefaults(config *Config) {
	if config.Bridge.SourceNetwork == "" {
		config.Bridge.SourceNetwork = "mainnet"
	}
	if config.Bridge.SourceDecimals == 0 {
		config.Bridge.SourceDecimals = 8
	}
	if config.Bridge.TargetDecimals == 0 {
		config.Bridge.TargetDecimals = 8
	}
	if config.Bridge.MinAmount == "" {
		config.Bridge.MinAmount = "0.001"
	}
	if config.Bridge.MaxAmount == "" {
		config.Bridge.MaxAmount = "1000"
	}
	if config.Bridge.ConfirmationThreshold == 0 {
		config.Bridge.ConfirmationThreshold = 6
	}
	if config.Bridge.MaxAttempts == 0 {
		config.Bridge.MaxAttempts = 3
	}
	if config.NATS.ConfirmationSubject == "" {
		config.NATS.ConfirmationSubject = "bridge.confirmations.*"
	}
	if config.NATS.EventSubjectPrefix == "" {
		config.NATS.EventSubjectPrefix = "bridge.events"
	}
	if config.JWT.Issuer == "" {
		config.JWT.Issuer = "bridge-backend"
	}
	if config.JWT.TTLHours == 0 {
		config.JWT.TTLHours = 24
	}
}

// overrideFromEnv applies environment variable overrides.
func overrideFromEnv(config *Config) {
	if dsn := os.Getenv("DATABASE_DSN"); dsn != "" {
		config.Database.DSN = dsn
	}

	if host := os.Getenv("SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		config.NATS.URL = natsURL
	}
	if natsTimeout := os.Getenv("NATS_TIMEOUT"); natsTimeout != "" {
		if t, err := strconv.Atoi(natsTimeout); err == nil {
			config.NATS.Timeout = t
		}
	}

	if signerURL := os.Getenv("SIGNER_BASE_URL"); signerURL != "" {
		config.Signer.BaseURL = signerURL
	}
	if signerToken := os.Getenv("SIGNER_AUTH_TOKEN"); signerToken != "" {
		config.Signer.AuthToken = signerToken
	}

	if jwtSecret := os.Getenv("JWT_SECRET"); jwtSecret != "" {
		config.JWT.Secret = jwtSecret
	}

	if network := os.Getenv("BRIDGE_SOURCE_NETWORK"); network != "" {
		config.Bridge.SourceNetwork = network
	}
	if minAmount := os.Getenv("BRIDGE_MIN_AMOUNT"); minAmount != "" {
		config.Bridge.MinAmount = minAmount
	}
	if maxAmount := os.Getenv("BRIDGE_MAX_AMOUNT"); maxAmount != "" {
		config.Bridge.MaxAmount = maxAmount
	}
	if threshold := os.Getenv("BRIDGE_CONFIRMATION_THRESHOLD"); threshold != "" {
		if t, err := strconv.Atoi(threshold); err == nil {
			config.Bridge.ConfirmationThreshold = t
		}
	}
	if attempts := os.Getenv("BRIDGE_MAX_ATTEMPTS"); attempts != "" {
		if a, err := strconv.Atoi(attempts); err == nil {
			config.Bridge.MaxAttempts = a
		}
	}

	if corsOrigins := os.Getenv("CORS_ALLOWED_ORIGINS"); corsOrigins != "" {
		origins := strings.Split(corsOrigins, ",")
		config.CORS.AllowedOrigins = make([]string, 0, len(origins))
		for _, origin := range origins {
			trimmed := strings.TrimSpace(origin)
			if trimmed != "" {
				config.CORS.AllowedOrigins = append(config.CORS.AllowedOrigins, trimmed)
			}
		}
	}
}

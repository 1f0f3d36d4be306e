package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied before the config file and environment are read.
const (
	// DefaultServerAddr is the default HTTP listen address.
	DefaultServerAddr = ":8317"
	// DefaultDatabaseDSN is the default SQLite database location.
	DefaultDatabaseDSN = "data/identity.db"
	// DefaultCorrelationTTL bounds how long a pending flow may wait for
	// its provider callback.
	DefaultCorrelationTTL = 10 * time.Minute
	// DefaultAlipayGateway is the production open-api gateway endpoint.
	DefaultAlipayGateway = "https://openapi.alipay.com/gateway.do"
)

// Correlation store backends.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// Duration wraps time.Duration so YAML values like "10m" parse naturally.
// Bare integers are treated as seconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if errDecode := value.Decode(&raw); errDecode == nil {
		parsed, errParse := time.ParseDuration(strings.TrimSpace(raw))
		if errParse != nil {
			return fmt.Errorf("config: invalid duration %q: %w", raw, errParse)
		}
		*d = Duration(parsed)
		return nil
	}

	var seconds int64
	if errDecode := value.Decode(&seconds); errDecode != nil {
		return fmt.Errorf("config: invalid duration: %w", errDecode)
	}
	*d = Duration(time.Duration(seconds) * time.Second)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the root configuration for the identity service.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Redis       RedisConfig       `yaml:"redis"`
	JWT         JWTConfig         `yaml:"jwt"`
	WeChat      WeChatConfig      `yaml:"wechat"`
	Alipay      AlipayConfig      `yaml:"alipay"`
	Correlation CorrelationConfig `yaml:"correlation"`
	Audit       AuditConfig       `yaml:"audit"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr string `yaml:"addr"` // listen address, e.g. ":8317"
}

// DatabaseConfig holds the database connection settings.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"` // postgres DSN or sqlite file path
}

// RedisConfig holds Redis connection settings for the correlation store.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// JWTConfig holds session token settings.
type JWTConfig struct {
	Secret     string   `yaml:"secret"`
	AccessTTL  Duration `yaml:"access-ttl"`
	RefreshTTL Duration `yaml:"refresh-ttl"`
}

// WeChatConfig holds the social login provider settings.
type WeChatConfig struct {
	AppID       string `yaml:"app-id"`
	Secret      string `yaml:"secret"`
	RedirectURL string `yaml:"redirect-url"` // callback URL registered with the provider
}

// Configured reports whether the WeChat provider is usable.
func (c WeChatConfig) Configured() bool {
	return strings.TrimSpace(c.AppID) != "" && strings.TrimSpace(c.Secret) != ""
}

// AlipayConfig holds the identity verification provider settings.
type AlipayConfig struct {
	AppID      string   `yaml:"app-id"`
	PrivateKey string   `yaml:"private-key"` // PEM or bare base64 PKCS#1/PKCS#8
	PublicKey  string   `yaml:"public-key"`  // provider public key, PEM or bare base64
	Gateway    string   `yaml:"gateway"`
	ReturnURL  string   `yaml:"return-url"` // where the provider redirects after face capture
	Timeout    Duration `yaml:"timeout"`
}

// Configured reports whether the verification provider is usable.
func (c AlipayConfig) Configured() bool {
	return strings.TrimSpace(c.AppID) != "" && strings.TrimSpace(c.PrivateKey) != ""
}

// CorrelationConfig selects and tunes the pending-flow state store.
type CorrelationConfig struct {
	Store string   `yaml:"store"` // "memory" or "redis"
	TTL   Duration `yaml:"ttl"`
}

// AuditConfig tunes the security event trail.
type AuditConfig struct {
	RetentionDays int `yaml:"retention-days"` // 0 keeps events forever
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"` // empty logs to stdout only
	MaxSizeMB  int    `yaml:"max-size-mb"`
	MaxBackups int    `yaml:"max-backups"`
	MaxAgeDays int    `yaml:"max-age-days"`
	Compress   bool   `yaml:"compress"`
}

// Default returns the configuration defaults.
func Default() Config {
	return Config{
		Server:   ServerConfig{Addr: DefaultServerAddr},
		Database: DatabaseConfig{DSN: DefaultDatabaseDSN},
		JWT: JWTConfig{
			AccessTTL:  Duration(time.Hour),
			RefreshTTL: Duration(7 * 24 * time.Hour),
		},
		Alipay: AlipayConfig{
			Gateway: DefaultAlipayGateway,
			Timeout: Duration(30 * time.Second),
		},
		Correlation: CorrelationConfig{
			Store: StoreMemory,
			TTL:   Duration(DefaultCorrelationTTL),
		},
		Audit: AuditConfig{RetentionDays: 90},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// ResolveConfigPath picks the effective config file path. An explicit path
// wins, then the VIBEPATCH_CONFIG environment variable, then well-known
// locations. The returned path may not exist.
func ResolveConfigPath(explicit string) string {
	if trimmed := strings.TrimSpace(explicit); trimmed != "" {
		return trimmed
	}
	if fromEnv := strings.TrimSpace(os.Getenv("VIBEPATCH_CONFIG")); fromEnv != "" {
		return fromEnv
	}
	for _, candidate := range []string{"config.yaml", "/etc/identityd/config.yaml"} {
		if _, errStat := os.Stat(candidate); errStat == nil {
			return candidate
		}
	}
	return "config.yaml"
}

// Load reads the config file at path, then applies environment overrides.
// A missing file is not an error; defaults plus environment apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, errRead := os.ReadFile(path)
	switch {
	case errRead == nil:
		if errParse := yaml.Unmarshal(data, &cfg); errParse != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, errParse)
		}
	case os.IsNotExist(errRead):
		// fall through to env overrides
	default:
		return nil, fmt.Errorf("config: read %s: %w", path, errRead)
	}

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

// applyEnvOverrides applies VIBEPATCH_* environment variables on top of the
// file values.
func applyEnvOverrides(cfg *Config) {
	setString := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}

	setString(&cfg.Server.Addr, "VIBEPATCH_SERVER_ADDR")
	setString(&cfg.Database.DSN, "VIBEPATCH_DATABASE_DSN")
	setString(&cfg.Redis.Addr, "VIBEPATCH_REDIS_ADDR")
	setString(&cfg.Redis.Password, "VIBEPATCH_REDIS_PASSWORD")
	setString(&cfg.JWT.Secret, "VIBEPATCH_JWT_SECRET")
	setString(&cfg.WeChat.AppID, "VIBEPATCH_WECHAT_APP_ID")
	setString(&cfg.WeChat.Secret, "VIBEPATCH_WECHAT_SECRET")
	setString(&cfg.WeChat.RedirectURL, "VIBEPATCH_WECHAT_REDIRECT_URL")
	setString(&cfg.Alipay.AppID, "VIBEPATCH_ALIPAY_APP_ID")
	setString(&cfg.Alipay.PrivateKey, "VIBEPATCH_ALIPAY_PRIVATE_KEY")
	setString(&cfg.Alipay.PublicKey, "VIBEPATCH_ALIPAY_PUBLIC_KEY")
	setString(&cfg.Alipay.Gateway, "VIBEPATCH_ALIPAY_GATEWAY")
	setString(&cfg.Alipay.ReturnURL, "VIBEPATCH_ALIPAY_RETURN_URL")
	setString(&cfg.Correlation.Store, "VIBEPATCH_CORRELATION_STORE")
	setString(&cfg.Logging.Level, "VIBEPATCH_LOG_LEVEL")
	setString(&cfg.Logging.File, "VIBEPATCH_LOG_FILE")

	if raw := strings.TrimSpace(os.Getenv("VIBEPATCH_REDIS_DB")); raw != "" {
		if n, errParse := strconv.Atoi(raw); errParse == nil {
			cfg.Redis.DB = n
		}
	}
	if raw := strings.TrimSpace(os.Getenv("VIBEPATCH_CORRELATION_TTL")); raw != "" {
		if d, errParse := time.ParseDuration(raw); errParse == nil {
			cfg.Correlation.TTL = Duration(d)
		}
	}
	if raw := strings.TrimSpace(os.Getenv("VIBEPATCH_AUDIT_RETENTION_DAYS")); raw != "" {
		if n, errParse := strconv.Atoi(raw); errParse == nil {
			cfg.Audit.RetentionDays = n
		}
	}
}

// Validate checks the configuration for structural errors. Provider key
// material is validated separately when the gateway clients are built.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Database.DSN) == "" {
		return fmt.Errorf("config: database.dsn is required")
	}
	if strings.TrimSpace(c.JWT.Secret) == "" {
		return fmt.Errorf("config: jwt.secret is required")
	}
	if len(c.JWT.Secret) < 16 {
		return fmt.Errorf("config: jwt.secret must be at least 16 bytes")
	}
	if c.JWT.AccessTTL.Std() <= 0 || c.JWT.RefreshTTL.Std() <= 0 {
		return fmt.Errorf("config: jwt ttls must be positive")
	}

	switch c.Correlation.Store {
	case StoreMemory:
	case StoreRedis:
		if strings.TrimSpace(c.Redis.Addr) == "" {
			return fmt.Errorf("config: correlation.store=redis requires redis.addr")
		}
	default:
		return fmt.Errorf("config: unknown correlation.store %q", c.Correlation.Store)
	}
	if c.Correlation.TTL.Std() <= 0 {
		return fmt.Errorf("config: correlation.ttl must be positive")
	}
	if c.Audit.RetentionDays < 0 {
		return fmt.Errorf("config: audit.retention-days cannot be negative")
	}

	if c.WeChat.Configured() && strings.TrimSpace(c.WeChat.RedirectURL) == "" {
		return fmt.Errorf("config: wechat.redirect-url is required when wechat is configured")
	}

	if c.Alipay.Configured() {
		if strings.TrimSpace(c.Alipay.PublicKey) == "" {
			return fmt.Errorf("config: alipay.public-key is required when alipay is configured")
		}
		if strings.TrimSpace(c.Alipay.ReturnURL) == "" {
			return fmt.Errorf("config: alipay.return-url is required when alipay is configured")
		}
		gateway := strings.TrimSpace(c.Alipay.Gateway)
		parsed, errParse := url.Parse(gateway)
		if errParse != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
			return fmt.Errorf("config: alipay.gateway %q is not a valid URL", gateway)
		}
	}

	return nil
}

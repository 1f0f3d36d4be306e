package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if errWrite := os.WriteFile(path, []byte(content), 0600); errWrite != nil {
		t.Fatalf("write config: %v", errWrite)
	}
	return path
}

func TestLoadAppliesDefaultsForMissingFile(t *testing.T) {
	cfg, errLoad := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if errLoad != nil {
		t.Fatalf("load: %v", errLoad)
	}
	if cfg.Server.Addr != DefaultServerAddr {
		t.Fatalf("server addr = %q, want %q", cfg.Server.Addr, DefaultServerAddr)
	}
	if cfg.Correlation.Store != StoreMemory {
		t.Fatalf("correlation store = %q, want memory", cfg.Correlation.Store)
	}
	if cfg.Correlation.TTL.Std() != DefaultCorrelationTTL {
		t.Fatalf("correlation ttl = %s, want %s", cfg.Correlation.TTL.Std(), DefaultCorrelationTTL)
	}
	if cfg.Audit.RetentionDays != 90 {
		t.Fatalf("audit retention = %d, want 90", cfg.Audit.RetentionDays)
	}
}

func TestLoadParsesFileAndDurations(t *testing.T) {
	path := writeConfigFile(t, `
server:
  addr: ":9000"
database:
  dsn: "host=localhost user=identity dbname=identity"
jwt:
  secret: "0123456789abcdef0123456789abcdef"
  access-ttl: "30m"
  refresh-ttl: "48h"
correlation:
  store: memory
  ttl: "5m"
`)

	cfg, errLoad := Load(path)
	if errLoad != nil {
		t.Fatalf("load: %v", errLoad)
	}
	if cfg.Server.Addr != ":9000" {
		t.Fatalf("server addr = %q", cfg.Server.Addr)
	}
	if cfg.JWT.AccessTTL.Std() != 30*time.Minute {
		t.Fatalf("access ttl = %s", cfg.JWT.AccessTTL.Std())
	}
	if cfg.JWT.RefreshTTL.Std() != 48*time.Hour {
		t.Fatalf("refresh ttl = %s", cfg.JWT.RefreshTTL.Std())
	}
	if cfg.Correlation.TTL.Std() != 5*time.Minute {
		t.Fatalf("correlation ttl = %s", cfg.Correlation.TTL.Std())
	}
	if errValidate := cfg.Validate(); errValidate != nil {
		t.Fatalf("validate: %v", errValidate)
	}
}

func TestLoadDurationFromBareSeconds(t *testing.T) {
	path := writeConfigFile(t, `
correlation:
  ttl: 600
`)
	cfg, errLoad := Load(path)
	if errLoad != nil {
		t.Fatalf("load: %v", errLoad)
	}
	if cfg.Correlation.TTL.Std() != 10*time.Minute {
		t.Fatalf("correlation ttl = %s, want 10m", cfg.Correlation.TTL.Std())
	}
}

func TestLoadRejectsInvalidDuration(t *testing.T) {
	path := writeConfigFile(t, `
jwt:
  access-ttl: "soon"
`)
	if _, errLoad := Load(path); errLoad == nil {
		t.Fatal("expected parse error for invalid duration")
	}
}

func TestEnvOverridesFileValues(t *testing.T) {
	path := writeConfigFile(t, `
database:
  dsn: "from-file.db"
`)
	t.Setenv("VIBEPATCH_DATABASE_DSN", "from-env.db")
	t.Setenv("VIBEPATCH_CORRELATION_TTL", "90s")
	t.Setenv("VIBEPATCH_AUDIT_RETENTION_DAYS", "30")

	cfg, errLoad := Load(path)
	if errLoad != nil {
		t.Fatalf("load: %v", errLoad)
	}
	if cfg.Database.DSN != "from-env.db" {
		t.Fatalf("dsn = %q, want env override", cfg.Database.DSN)
	}
	if cfg.Correlation.TTL.Std() != 90*time.Second {
		t.Fatalf("ttl = %s, want 90s", cfg.Correlation.TTL.Std())
	}
	if cfg.Audit.RetentionDays != 30 {
		t.Fatalf("audit retention = %d, want env override 30", cfg.Audit.RetentionDays)
	}
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	base := func() *Config {
		cfg := Default()
		cfg.JWT.Secret = "0123456789abcdef0123456789abcdef"
		return &cfg
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing dsn", func(c *Config) { c.Database.DSN = "" }},
		{"missing jwt secret", func(c *Config) { c.JWT.Secret = "" }},
		{"short jwt secret", func(c *Config) { c.JWT.Secret = "short" }},
		{"unknown store", func(c *Config) { c.Correlation.Store = "etcd" }},
		{"redis store without addr", func(c *Config) { c.Correlation.Store = StoreRedis }},
		{"zero ttl", func(c *Config) { c.Correlation.TTL = 0 }},
		{"negative audit retention", func(c *Config) { c.Audit.RetentionDays = -1 }},
		{"wechat without redirect", func(c *Config) {
			c.WeChat.AppID = "wx123"
			c.WeChat.Secret = "secret"
		}},
		{"alipay without public key", func(c *Config) {
			c.Alipay.AppID = "2021000000000000"
			c.Alipay.PrivateKey = "whatever"
			c.Alipay.ReturnURL = "https://example.com/v1/verify/callback"
		}},
		{"alipay bad gateway", func(c *Config) {
			c.Alipay.AppID = "2021000000000000"
			c.Alipay.PrivateKey = "whatever"
			c.Alipay.PublicKey = "whatever"
			c.Alipay.ReturnURL = "https://example.com/v1/verify/callback"
			c.Alipay.Gateway = "not a url"
		}},
	}

	for _, tc := range cases {
		cfg := base()
		tc.mutate(cfg)
		if errValidate := cfg.Validate(); errValidate == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
	}
}

func TestResolveConfigPathPrefersExplicit(t *testing.T) {
	t.Setenv("VIBEPATCH_CONFIG", "/tmp/env.yaml")
	if got := ResolveConfigPath("/tmp/explicit.yaml"); got != "/tmp/explicit.yaml" {
		t.Fatalf("resolve = %q, want explicit path", got)
	}
	if got := ResolveConfigPath(""); got != "/tmp/env.yaml" {
		t.Fatalf("resolve = %q, want env path", got)
	}
}

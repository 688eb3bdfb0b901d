package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if errWrite := os.WriteFile(path, []byte(body), 0o600); errWrite != nil {
		t.Fatalf("write config: %v", errWrite)
	}
	return path
}

func TestLoadParsesYAMLAndAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
database:
  dsn: "file:admission.db"
redis:
  addr: "127.0.0.1:6379"
ratelimit:
  store_timeout: 80ms
  ip:
    max_requests: 30
    window: 10s
  tools:
    search:
      max_requests: 5
      window: 1m
quota:
  trial_days: 7
logging:
  format: json
`)
	t.Setenv(EnvDSN, "")
	t.Setenv(EnvRedisAddr, "")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Database.DSN != "file:admission.db" || cfg.Redis.Addr != "127.0.0.1:6379" {
		t.Fatalf("unexpected stores %+v %+v", cfg.Database, cfg.Redis)
	}
	if cfg.RateLimit.StoreTimeout != 80*time.Millisecond {
		t.Fatalf("expected 80ms store timeout, got %s", cfg.RateLimit.StoreTimeout)
	}
	if !cfg.RateLimit.IP.Enabled() || cfg.RateLimit.IP.Window != 10*time.Second {
		t.Fatalf("unexpected ip policy %+v", cfg.RateLimit.IP)
	}
	if search := cfg.RateLimit.Tools["search"]; search.MaxRequests != 5 || search.Window != time.Minute {
		t.Fatalf("unexpected tool policy %+v", search)
	}
	if cfg.RateLimit.Tenant.MaxRequests != 60 || cfg.RateLimit.Tenant.Window != time.Minute {
		t.Fatalf("expected default tenant policy, got %+v", cfg.RateLimit.Tenant)
	}
	if !cfg.RateLimit.FallbackEnabled() {
		t.Fatalf("expected local fallback enabled by default")
	}
	if cfg.Quota.TrialDays != 7 || cfg.Quota.StoreTimeout != 2*time.Second {
		t.Fatalf("unexpected quota config %+v", cfg.Quota)
	}
	if cfg.Server.Addr != ":8080" || cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Fatalf("unexpected defaults server=%+v logging=%+v", cfg.Server, cfg.Logging)
	}
}

func TestLoadEnvironmentOverridesFile(t *testing.T) {
	path := writeConfig(t, `
database:
  dsn: "file:from-file.db"
auth:
  jwt_secret: "file-secret"
`)
	t.Setenv(EnvDSN, "postgres://admission@localhost/admission")
	t.Setenv(EnvRedisAddr, "redis:6379")
	t.Setenv(EnvJWTSecret, "env-secret")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Database.DSN != "postgres://admission@localhost/admission" {
		t.Fatalf("expected env dsn, got %q", cfg.Database.DSN)
	}
	if cfg.Redis.Addr != "redis:6379" || cfg.Auth.JWTSecret != "env-secret" {
		t.Fatalf("expected env overrides, got redis=%q secret=%q", cfg.Redis.Addr, cfg.Auth.JWTSecret)
	}
}

func TestLoadMissingFileUsesEnvironment(t *testing.T) {
	t.Setenv(EnvDSN, "file:env-only.db")
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Database.DSN != "file:env-only.db" {
		t.Fatalf("unexpected dsn %q", cfg.Database.DSN)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	t.Setenv(EnvDSN, "")
	cases := map[string]string{
		"missing dsn":    "server:\n  addr: \":9000\"\n",
		"bad format":     "database:\n  dsn: x.db\nlogging:\n  format: xml\n",
		"negative trial": "database:\n  dsn: x.db\nquota:\n  trial_days: -1\n",
		"bad yaml":       "database: [",
	}
	for name, body := range cases {
		if _, err := Load(writeConfig(t, body)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestResolveConfigPath(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	if got := ResolveConfigPath(""); got != DefaultConfigPath {
		t.Fatalf("expected default path, got %q", got)
	}
	t.Setenv(EnvConfigPath, "/etc/admission.yaml")
	if got := ResolveConfigPath(""); got != "/etc/admission.yaml" {
		t.Fatalf("expected env path, got %q", got)
	}
	if got := ResolveConfigPath(" ./local.yaml "); got != "./local.yaml" {
		t.Fatalf("expected flag path, got %q", got)
	}
}

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"SERVICE_NAME", "SERVICE_PORT", "MEDIA_PATH",
		"MYSQL_HOST", "MYSQL_PORT", "MYSQL_USER", "MYSQL_PASSWORD", "MYSQL_DATABASE",
		"REDIS_HOST", "REDIS_PORT", "REDIS_PASSWORD", "REDIS_DB",
		"AUTH_JWT_SECRET", "URL_SIGNING_SECRET", "URL_EXPIRATION_SECONDS",
		"SYNC_INTERVAL_SECONDS", "JAEGER_ENDPOINT",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.ServicePort != "8080" {
		t.Errorf("ServicePort = %q, want 8080", cfg.ServicePort)
	}
	if cfg.MediaPath != "/var/lib/coursemedia" {
		t.Errorf("MediaPath = %q", cfg.MediaPath)
	}
	if cfg.URLExpirationSeconds != 3600 {
		t.Errorf("URLExpirationSeconds = %d, want 3600", cfg.URLExpirationSeconds)
	}
	if cfg.SyncIntervalSeconds != 30 {
		t.Errorf("SyncIntervalSeconds = %d, want 30", cfg.SyncIntervalSeconds)
	}
	if cfg.RedisDB != 0 {
		t.Errorf("RedisDB = %d, want 0", cfg.RedisDB)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("SERVICE_PORT", "9090")
	t.Setenv("MYSQL_HOST", "db.internal")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("SYNC_INTERVAL_SECONDS", "5")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.ServicePort != "9090" {
		t.Errorf("ServicePort = %q", cfg.ServicePort)
	}
	if cfg.MySQLHost != "db.internal" {
		t.Errorf("MySQLHost = %q", cfg.MySQLHost)
	}
	if cfg.RedisDB != 3 {
		t.Errorf("RedisDB = %d", cfg.RedisDB)
	}
	if cfg.SyncIntervalSeconds != 5 {
		t.Errorf("SyncIntervalSeconds = %d", cfg.SyncIntervalSeconds)
	}
}

func TestLoadConfigBadIntFallsBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("URL_EXPIRATION_SECONDS", "soon")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.URLExpirationSeconds != 3600 {
		t.Errorf("URLExpirationSeconds = %d, want default 3600", cfg.URLExpirationSeconds)
	}
}

func TestValidate(t *testing.T) {
	mediaDir := t.TempDir()
	notADir := filepath.Join(mediaDir, "file")
	if err := os.WriteFile(notADir, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	valid := &Config{
		URLSigningSecret: "sign-secret",
		AuthJWTSecret:    "jwt-secret",
		MediaPath:        mediaDir,
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("Validate on valid config: %v", err)
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantSub string
	}{
		{"missing signing secret", func(c *Config) { c.URLSigningSecret = "" }, "URL_SIGNING_SECRET"},
		{"missing jwt secret", func(c *Config) { c.AuthJWTSecret = "" }, "AUTH_JWT_SECRET"},
		{"media path missing", func(c *Config) { c.MediaPath = filepath.Join(mediaDir, "absent") }, "not accessible"},
		{"media path is a file", func(c *Config) { c.MediaPath = notADir }, "not a directory"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := *valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate accepted invalid config")
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("error = %q, want substring %q", err, tt.wantSub)
			}
		})
	}
}

func TestGetDSN(t *testing.T) {
	cfg := &Config{
		MySQLUser:     "svc",
		MySQLPassword: "pw",
		MySQLHost:     "db.internal",
		MySQLPort:     "3306",
		MySQLDatabase: "coursemedia",
	}
	want := "svc:pw@tcp(db.internal:3306)/coursemedia?charset=utf8mb4&parseTime=True&loc=Local"
	if got := cfg.GetDSN(); got != want {
		t.Errorf("GetDSN = %q, want %q", got, want)
	}
}

func TestGetRedisAddr(t *testing.T) {
	cfg := &Config{RedisHost: "cache.internal", RedisPort: "6380"}
	if got := cfg.GetRedisAddr(); got != "cache.internal:6380" {
		t.Errorf("GetRedisAddr = %q", got)
	}
}

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	t.Setenv(envFileVar, filepath.Join(t.TempDir(), "missing.env"))
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.StorageDriver != "sqlite" || cfg.SQLitePath != "academy.db" || cfg.RemoteDriver != "none" {
		t.Fatalf("unexpected storage defaults %+v", cfg)
	}
	if cfg.Blob.Driver != "fs" || cfg.Blob.FSRoot != "photos" || cfg.Currency != "LKR" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.Blob.PhotoMaxSide != 1024 {
		t.Fatalf("expected photos capped at 1024px, got %d", cfg.Blob.PhotoMaxSide)
	}
	if cfg.ProbeInterval != 30*time.Second || cfg.LogLevel != "info" {
		t.Fatalf("unexpected probe/log defaults %+v", cfg)
	}
}

func TestEnvFileAndEnvironmentPrecedence(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "academy.env")
	content := strings.Join([]string{
		"ACADEMY_REMOTE_DRIVER=postgres",
		"ACADEMY_POSTGRES_DSN=postgres://db/academy",
		"ACADEMY_PROBE_INTERVAL=5s",
		"ACADEMY_ACADEMY_NAME=From File",
	}, "\n")
	if err := os.WriteFile(envFile, []byte(content), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}
	t.Cleanup(func() {
		for _, k := range []string{"ACADEMY_REMOTE_DRIVER", "ACADEMY_POSTGRES_DSN", "ACADEMY_PROBE_INTERVAL"} {
			_ = os.Unsetenv(k)
		}
	})
	t.Setenv(envFileVar, envFile)
	t.Setenv("ACADEMY_ACADEMY_NAME", "From Env")
	t.Setenv("ACADEMY_BLOB_S3_PATH_STYLE", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RemoteDriver != "postgres" || cfg.PostgresDSN != "postgres://db/academy" {
		t.Fatalf("expected remote settings from file, got %+v", cfg)
	}
	if cfg.ProbeInterval != 5*time.Second {
		t.Fatalf("expected 5s probe interval, got %s", cfg.ProbeInterval)
	}
	if cfg.AcademyName != "From Env" {
		t.Fatalf("environment must win over the file, got %q", cfg.AcademyName)
	}
	if !cfg.Blob.S3PathStyle {
		t.Fatalf("expected path style from environment")
	}
}

func TestValidate(t *testing.T) {
	base := Config{StorageDriver: "sqlite", RemoteDriver: "none", Blob: BlobConfig{Driver: "fs"}, ProbeInterval: time.Second}
	if err := base.Validate(); err != nil {
		t.Fatalf("expected valid config: %v", err)
	}
	cases := map[string]func(c *Config){
		"storage":   func(c *Config) { c.StorageDriver = "mongo" },
		"remote":    func(c *Config) { c.RemoteDriver = "mysql" },
		"blob":      func(c *Config) { c.Blob.Driver = "ftp" },
		"postgres":  func(c *Config) { c.RemoteDriver = "postgres" },
		"s3 bucket": func(c *Config) { c.Blob.Driver = "s3" },
		"probe":     func(c *Config) { c.ProbeInterval = 0 },
		"photo":     func(c *Config) { c.Blob.PhotoMaxSide = -1 },
	}
	for name, mutate := range cases {
		cfg := base
		mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestFromViperRejectsUnknownDriver(t *testing.T) {
	v := New()
	v.Set("storage_driver", "Postgres")
	if _, err := FromViper(v); err == nil || !strings.Contains(err.Error(), "postgres") {
		t.Fatalf("expected storage driver error, got %v", err)
	}
}

// Package config loads academycore settings from the environment, an
// optional .env file and defaults.
//
//	ACADEMY_ENV_FILE       .env file to load first (default .env, ignored when missing)
//	ACADEMY_STORAGE_DRIVER memory|sqlite (default sqlite)
//	ACADEMY_SQLITE_PATH    sqlite file (default academy.db)
//	ACADEMY_REMOTE_DRIVER  none|memory|postgres (default none)
//	ACADEMY_POSTGRES_DSN   remote DSN when remote driver is postgres
//	ACADEMY_BLOB_DRIVER    fs|memory|s3 (default fs)
//	ACADEMY_BLOB_FS_ROOT, ACADEMY_BLOB_S3_BUCKET, ACADEMY_BLOB_S3_REGION,
//	ACADEMY_BLOB_S3_ENDPOINT, ACADEMY_BLOB_S3_PATH_STYLE
//	ACADEMY_PHOTO_MAX_SIDE photos are re-encoded to fit this many pixels (0 keeps uploads as-is)
//	ACADEMY_ACADEMY_NAME, ACADEMY_CURRENCY, ACADEMY_PROBE_INTERVAL, ACADEMY_LOG_LEVEL
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	envPrefix      = "ACADEMY"
	envFileVar     = "ACADEMY_ENV_FILE"
	defaultEnvFile = ".env"
)

// Config is the resolved process configuration.
type Config struct {
	StorageDriver string
	SQLitePath    string
	RemoteDriver  string
	PostgresDSN   string
	Blob          BlobConfig
	AcademyName   string
	Currency      string
	ProbeInterval time.Duration
	LogLevel      string
}

// BlobConfig selects the photo store.
type BlobConfig struct {
	Driver       string
	FSRoot       string
	S3Bucket     string
	S3Region     string
	S3Endpoint   string
	S3PathStyle  bool
	PhotoMaxSide int
}

var (
	storageDrivers = []string{"memory", "sqlite"}
	remoteDrivers  = []string{"none", "memory", "postgres"}
	blobDrivers    = []string{"fs", "memory", "s3"}
)

// New returns a viper instance with academycore defaults bound to ACADEMY_* variables.
func New() *viper.Viper {
	v := viper.New()
	v.SetTypeByDefaultValue(true)
	v.SetDefault("storage_driver", "sqlite")
	v.SetDefault("sqlite_path", "academy.db")
	v.SetDefault("remote_driver", "none")
	v.SetDefault("postgres_dsn", "")
	v.SetDefault("blob_driver", "fs")
	v.SetDefault("blob_fs_root", "photos")
	v.SetDefault("blob_s3_bucket", "")
	v.SetDefault("blob_s3_region", "us-east-1")
	v.SetDefault("blob_s3_endpoint", "")
	v.SetDefault("blob_s3_path_style", false)
	v.SetDefault("photo_max_side", 1024)
	v.SetDefault("academy_name", "")
	v.SetDefault("currency", "LKR")
	v.SetDefault("probe_interval", 30*time.Second)
	v.SetDefault("log_level", "info")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the .env file (when present) into the environment and resolves
// the configuration. Variables already set in the environment win over the file.
func Load() (Config, error) {
	path := os.Getenv(envFileVar)
	if path == "" {
		path = defaultEnvFile
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load %s: %w", path, err)
	}
	return FromViper(New())
}

// FromViper resolves and validates the configuration held by v.
func FromViper(v *viper.Viper) (Config, error) {
	cfg := Config{
		StorageDriver: strings.ToLower(v.GetString("storage_driver")),
		SQLitePath:    v.GetString("sqlite_path"),
		RemoteDriver:  strings.ToLower(v.GetString("remote_driver")),
		PostgresDSN:   v.GetString("postgres_dsn"),
		Blob: BlobConfig{
			Driver:       strings.ToLower(v.GetString("blob_driver")),
			FSRoot:       v.GetString("blob_fs_root"),
			S3Bucket:     v.GetString("blob_s3_bucket"),
			S3Region:     v.GetString("blob_s3_region"),
			S3Endpoint:   v.GetString("blob_s3_endpoint"),
			S3PathStyle:  v.GetBool("blob_s3_path_style"),
			PhotoMaxSide: v.GetInt("photo_max_side"),
		},
		AcademyName:   v.GetString("academy_name"),
		Currency:      v.GetString("currency"),
		ProbeInterval: v.GetDuration("probe_interval"),
		LogLevel:      v.GetString("log_level"),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks driver names and driver-specific requirements.
func (c Config) Validate() error {
	if !oneOf(c.StorageDriver, storageDrivers) {
		return fmt.Errorf("unknown storage driver %q", c.StorageDriver)
	}
	if !oneOf(c.RemoteDriver, remoteDrivers) {
		return fmt.Errorf("unknown remote driver %q", c.RemoteDriver)
	}
	if !oneOf(c.Blob.Driver, blobDrivers) {
		return fmt.Errorf("unknown blob driver %q", c.Blob.Driver)
	}
	if c.RemoteDriver == "postgres" && c.PostgresDSN == "" {
		return fmt.Errorf("ACADEMY_POSTGRES_DSN required for postgres remote")
	}
	if c.Blob.Driver == "s3" && c.Blob.S3Bucket == "" {
		return fmt.Errorf("ACADEMY_BLOB_S3_BUCKET required for s3 blob driver")
	}
	if c.Blob.PhotoMaxSide < 0 {
		return fmt.Errorf("photo max side must not be negative, got %d", c.Blob.PhotoMaxSide)
	}
	if c.ProbeInterval <= 0 {
		return fmt.Errorf("probe interval must be positive, got %s", c.ProbeInterval)
	}
	return nil
}

func oneOf(v string, allowed []string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

// Package config loads liveauth settings from defaults, an optional config
// file and LIVEAUTH_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// FileEnv names the environment variable holding an optional config file path.
const FileEnv = "LIVEAUTH_CONFIG"

type Config struct {
	Log      Log      `mapstructure:"log"`
	Store    Store    `mapstructure:"store"`
	Samples  Samples  `mapstructure:"samples"`
	S3       S3       `mapstructure:"s3"`
	Redis    Redis    `mapstructure:"redis"`
	OIDC     OIDC     `mapstructure:"oidc"`
	Liveness Liveness `mapstructure:"liveness"`
	Session  Session  `mapstructure:"session"`
	Seed     Seed     `mapstructure:"seed"`
	Camera   Camera   `mapstructure:"camera"`
}

type Log struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

type Store struct {
	Driver      string `mapstructure:"driver"`
	SQLitePath  string `mapstructure:"sqlite_path"`
	DatabaseURL string `mapstructure:"database_url"`
}

type Samples struct {
	Driver string `mapstructure:"driver"`
	CSVDir string `mapstructure:"csv_dir"`
}

type S3 struct {
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Prefix    string `mapstructure:"prefix"`
}

type Redis struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

type OIDC struct {
	Enabled      bool     `mapstructure:"enabled"`
	Issuer       string   `mapstructure:"issuer"`
	ClientID     string   `mapstructure:"client_id"`
	ClientSecret string   `mapstructure:"client_secret"`
	Scopes       []string `mapstructure:"scopes"`
}

type Liveness struct {
	Window         time.Duration `mapstructure:"window"`
	GestureTimeout time.Duration `mapstructure:"gesture_timeout"`
}

type Session struct {
	TTL time.Duration `mapstructure:"ttl"`
}

type Seed struct {
	DemoUsers bool `mapstructure:"demo_users"`
}

type Camera struct {
	Recording string  `mapstructure:"recording"`
	FPS       float64 `mapstructure:"fps"`
}

var defaults = map[string]any{
	"log.level":                "info",
	"log.development":          false,
	"store.driver":             "sqlite",
	"store.sqlite_path":        "liveauth.db",
	"store.database_url":       "",
	"samples.driver":           "db",
	"samples.csv_dir":          "vectors",
	"s3.bucket":                "",
	"s3.region":                "us-east-1",
	"s3.endpoint":              "",
	"s3.access_key":            "",
	"s3.secret_key":            "",
	"s3.prefix":                "liveauth/",
	"redis.addr":               "localhost:6379",
	"redis.password":           "",
	"redis.db":                 0,
	"redis.prefix":             "liveauth:",
	"oidc.enabled":             false,
	"oidc.issuer":              "",
	"oidc.client_id":           "",
	"oidc.client_secret":       "",
	"oidc.scopes":              []string{"email"},
	"liveness.window":          5 * time.Second,
	"liveness.gesture_timeout": 60 * time.Second,
	"session.ttl":              24 * time.Hour,
	"seed.demo_users":          true,
	"camera.recording":         "recordings/demo.jsonl",
	"camera.fps":               30.0,
}

// Load reads the configuration. The file named by LIVEAUTH_CONFIG is
// optional; when set it must exist.
func Load() (Config, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	if path := os.Getenv(FileEnv); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	v.SetEnvPrefix("LIVEAUTH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks enum values and the settings each backend requires.
func (c Config) Validate() error {
	var errs []error

	switch c.Store.Driver {
	case "memory":
	case "sqlite":
		if c.Store.SQLitePath == "" {
			errs = append(errs, errors.New("store.sqlite_path is required for the sqlite store"))
		}
	case "postgres":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, errors.New("store.database_url is required for the postgres store"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.driver: unknown driver %q", c.Store.Driver))
	}

	switch c.Samples.Driver {
	case "db":
	case "csv":
		if c.Samples.CSVDir == "" {
			errs = append(errs, errors.New("samples.csv_dir is required for csv samples"))
		}
	case "s3":
		if c.S3.Bucket == "" {
			errs = append(errs, errors.New("s3.bucket is required for s3 samples"))
		}
	case "redis":
		if c.Redis.Addr == "" {
			errs = append(errs, errors.New("redis.addr is required for redis samples"))
		}
	default:
		errs = append(errs, fmt.Errorf("samples.driver: unknown driver %q", c.Samples.Driver))
	}

	if c.OIDC.Enabled && (c.OIDC.Issuer == "" || c.OIDC.ClientID == "") {
		errs = append(errs, errors.New("oidc.issuer and oidc.client_id are required when oidc is enabled"))
	}
	if c.Liveness.Window <= 0 {
		errs = append(errs, errors.New("liveness.window must be positive"))
	}
	if c.Liveness.GestureTimeout < 0 {
		errs = append(errs, errors.New("liveness.gesture_timeout must not be negative"))
	}
	if c.Session.TTL <= 0 {
		errs = append(errs, errors.New("session.ttl must be positive"))
	}
	if c.Camera.Recording == "" {
		errs = append(errs, errors.New("camera.recording is required"))
	}
	if c.Camera.FPS < 0 {
		errs = append(errs, errors.New("camera.fps must not be negative"))
	}

	return errors.Join(errs...)
}

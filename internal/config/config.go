// Package config loads the object storage server's configuration from a
// YAML file, environment variables, and defaults, mirroring the teacher's
// viper/mapstructure/validator stack.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/vitality-ai/warpdrive/internal/bytesize"
)

// Config is the object storage server's static configuration.
//
// Configuration sources, highest precedence first:
//  1. Environment variables (WARPDRIVE_*)
//  2. Configuration file (YAML)
//  3. Default values
//
// Load consults environment variables only when a configuration file is
// found, and only for keys that file sets; with no file, only defaults
// apply.
type Config struct {
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
	HTTP      HTTPConfig      `mapstructure:"http" yaml:"http"`
	Storage   StorageConfig   `mapstructure:"storage" yaml:"storage"`
	Metadata  MetadataConfig  `mapstructure:"metadata" yaml:"metadata"`
	Deletion  DeletionConfig  `mapstructure:"deletion" yaml:"deletion"`
	S3        S3Config        `mapstructure:"s3" yaml:"s3"`
	Metrics   MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
	Workers   WorkersConfig   `mapstructure:"workers" yaml:"workers"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// HTTPConfig controls the HTTP listener.
type HTTPConfig struct {
	ListenAddr      string        `mapstructure:"listen_addr" validate:"required" yaml:"listen_addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout" validate:"required,gt=0" yaml:"request_timeout"`
	// MaxNativePayload caps a native put/append/update body.
	MaxNativePayload bytesize.ByteSize `mapstructure:"max_native_payload" validate:"required,gt=0" yaml:"max_native_payload"`
	// MaxS3Payload caps an S3 PUT/upload-part body.
	MaxS3Payload bytesize.ByteSize `mapstructure:"max_s3_payload" validate:"required,gt=0" yaml:"max_s3_payload"`
}

// StorageConfig selects and configures the chunk store backend.
type StorageConfig struct {
	Backend string `mapstructure:"backend" validate:"required,oneof=fs memory s3" yaml:"backend"`
	// Root is the filesystem backend's storage root.
	Root string `mapstructure:"root" yaml:"root"`
	// S3 configures the s3 backend when Backend == "s3".
	S3 StorageS3Config `mapstructure:"s3" yaml:"s3"`
}

// StorageS3Config configures the S3-backed chunk store.
type StorageS3Config struct {
	Bucket         string `mapstructure:"bucket" yaml:"bucket"`
	Region         string `mapstructure:"region" yaml:"region"`
	Endpoint       string `mapstructure:"endpoint" yaml:"endpoint"`
	KeyPrefix      string `mapstructure:"key_prefix" yaml:"key_prefix"`
	ForcePathStyle bool   `mapstructure:"force_path_style" yaml:"force_path_style"`
}

// MetadataConfig selects and configures the metadata index backend.
type MetadataConfig struct {
	Backend string `mapstructure:"backend" validate:"required,oneof=sqlite memory" yaml:"backend"`
	// DSN is the sqlite backend's database file path.
	DSN string `mapstructure:"dsn" yaml:"dsn"`
}

// DeletionConfig controls the background deletion worker.
type DeletionConfig struct {
	Interval  time.Duration `mapstructure:"interval" validate:"required,gt=0" yaml:"interval"`
	BatchSize int           `mapstructure:"batch_size" validate:"required,gt=0" yaml:"batch_size"`
	Retention time.Duration `mapstructure:"retention" validate:"required,gt=0" yaml:"retention"`
}

// S3Config holds the S3-surface access policy.
type S3Config struct {
	// AccessKeys is the set of recognized SigV4 access keys.
	AccessKeys []string `mapstructure:"access_keys" validate:"required,min=1" yaml:"access_keys"`
	// BlockedBuckets names buckets denied regardless of credentials.
	BlockedBuckets []string `mapstructure:"blocked_buckets" yaml:"blocked_buckets"`
}

// MetricsConfig controls the Prometheus metrics endpoint.
type MetricsConfig struct {
	Enabled    bool   `mapstructure:"enabled" yaml:"enabled"`
	ListenAddr string `mapstructure:"listen_addr" yaml:"listen_addr"`
}

// WorkersConfig sizes the request-handling worker pool.
type WorkersConfig struct {
	PoolSize int `mapstructure:"pool_size" validate:"required,gt=0" yaml:"pool_size"`
}

// Load reads configuration from configPath (or the default search path when
// empty), environment variables, and defaults, then validates the result.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	found, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if found {
		if err := v.Unmarshal(cfg, viper.DecodeHook(decodeHooks())); err != nil {
			return nil, fmt.Errorf("config: unmarshal: %w", err)
		}
	}

	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}
	return cfg, nil
}

// SaveConfig writes cfg to path as YAML.
func SaveConfig(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: create directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("WARPDRIVE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}
	v.AddConfigPath(".")
	v.SetConfigName("config")
	v.SetConfigType("yaml")
}

func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok || os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("config: read config file: %w", err)
	}
	return true, nil
}

func decodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
	)
}

func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return bytesize.ParseByteSize(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case float64:
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// Validate runs struct-tag validation over cfg.
func Validate(cfg *Config) error {
	return validator.New().Struct(cfg)
}

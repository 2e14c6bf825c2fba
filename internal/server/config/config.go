// Package config handles configuration for the resvault server,
// including defaults, JSON overlay, command-line flags and validation.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Storage kinds understood by the storage factory.
const (
	StorageKindLocal  = "local"
	StorageKindRemote = "remote"
	StorageKindBadger = "badger"
	StorageKindSQLite = "sqlite"
)

// StorageConfig describes one named storage instance.
//
// Path is the snapshot file for "local", the database directory for
// "badger" and the database file for "sqlite". Prefix namespaces object
// keys of a "remote" instance inside the shared bucket.
type StorageConfig struct {
	Name   string `json:"name" validate:"required"`
	Kind   string `json:"kind" validate:"required,oneof=local remote badger sqlite"`
	Path   string `json:"path" validate:"required_unless=Kind remote"`
	Prefix string `json:"prefix"`
}

// Config holds runtime settings for the resvault server.
//
// Fields:
//   - EndpointAddr: bind address of the resource protocol (HTTP).
//   - LivenessAddr: bind address of the gRPC health/liveness channel; empty disables it.
//   - MetricsAddr: bind address of the Prometheus /metrics listener; empty disables it.
//   - ResourcesDir: directory holding uploaded resources.
//   - DirectoryPath / DirectoryEncrypted: user directory file and whether it is encrypted at rest.
//   - DirectoryDSN: PostgreSQL DSN; when set the directory lives in Postgres instead of the file.
//   - DirectorySaveInterval: period of the background directory flush.
//   - SecretKey: HMAC secret for signing session tokens (HS256). Do not use test defaults in prod.
//   - DefaultStorage / Storages: named storage instances and the one used when a request names none.
//   - S3*: object store settings shared by every "remote" instance.
//   - RemoteBatchConcurrency: parallel requests used by remote batch get/remove.
//   - MaxDecodedSize: bytes a compressed request body may inflate to before it is rejected with 413.
type Config struct {
	EndpointAddr           string `validate:"required"`
	LivenessAddr           string
	MetricsAddr            string
	LogLevel               string `validate:"omitempty,oneof=debug info warn error"`
	ResourcesDir           string `validate:"required"`
	DirectoryPath          string `validate:"required_without=DirectoryDSN"`
	DirectoryEncrypted     bool
	DirectoryDSN           string
	DirectorySaveInterval  time.Duration   `validate:"gt=0"`
	SecretKey              string          `validate:"required"`
	DefaultStorage         string          `validate:"required"`
	Storages               []StorageConfig `validate:"required,min=1,dive"`
	S3RootUser             string
	S3RootPassword         string
	S3Bucket               string
	S3Region               string
	S3BaseEndpoint         string
	RemoteBatchConcurrency int           `validate:"min=1"`
	MaxDecodedSize         int64         `validate:"gt=0"`
	ShutdownTimeout        time.Duration `validate:"gt=0"`
}

// LoadDefaults populates Config with development defaults.
// NOTE: These values are insecure for production and should be overridden.
func (c *Config) LoadDefaults() {
	c.EndpointAddr = ":8080"
	c.LivenessAddr = ":8081"
	c.MetricsAddr = ":9090"
	c.LogLevel = "info"
	c.ResourcesDir = "data/resources"
	c.DirectoryPath = "data/users.json"
	c.DirectoryEncrypted = true
	c.DirectoryDSN = ""
	c.DirectorySaveInterval = 5 * time.Minute
	c.SecretKey = "secretKey"
	c.DefaultStorage = "local"
	c.Storages = []StorageConfig{
		{Name: "local", Kind: StorageKindLocal, Path: "data/storage.json"},
		{Name: "remote", Kind: StorageKindRemote, Prefix: "resvault/"},
	}
	c.S3RootUser = "admin"
	c.S3RootPassword = "secretpassword"
	c.S3Bucket = "vault"
	c.S3Region = "us-east-1"
	c.S3BaseEndpoint = "http://127.0.0.1:9000/"
	c.RemoteBatchConcurrency = 4
	c.MaxDecodedSize = 32 << 20
	c.ShutdownTimeout = 5 * time.Second
}

// Validate checks struct tags and cross-field rules.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	seen := make(map[string]struct{}, len(c.Storages))
	for _, s := range c.Storages {
		if _, dup := seen[s.Name]; dup {
			return fmt.Errorf("invalid config: duplicate storage %q", s.Name)
		}
		seen[s.Name] = struct{}{}
	}
	if _, ok := seen[c.DefaultStorage]; !ok {
		return fmt.Errorf("invalid config: default storage %q is not configured", c.DefaultStorage)
	}

	return nil
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from an optional JSON file and finally from command-line flags.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}

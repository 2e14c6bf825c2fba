package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/resvault/internal/flagx"
	"github.com/dmitrijs2005/resvault/internal/timex"
)

// JsonConfig is the on-disk shape of the server config file. Interval
// fields use timex.Duration so both "30s" and integer nanoseconds parse.
// Pointer fields distinguish "absent" from "false"/zero.
type JsonConfig struct {
	EndpointAddr           string          `json:"endpoint_addr"`
	LivenessAddr           *string         `json:"liveness_addr"`
	MetricsAddr            *string         `json:"metrics_addr"`
	LogLevel               string          `json:"log_level"`
	ResourcesDir           string          `json:"resources_dir"`
	DirectoryPath          string          `json:"directory_path"`
	DirectoryEncrypted     *bool           `json:"directory_encrypted"`
	DirectoryDSN           string          `json:"directory_dsn"`
	DirectorySaveInterval  timex.Duration  `json:"directory_save_interval"`
	SecretKey              string          `json:"secret_key"`
	DefaultStorage         string          `json:"default_storage"`
	Storages               []StorageConfig `json:"storages"`
	S3RootUser             string          `json:"s3_root_user"`
	S3RootPassword         string          `json:"s3_root_password"`
	S3Bucket               string          `json:"s3_bucket"`
	S3Region               string          `json:"s3_region"`
	S3BaseEndpoint         string          `json:"s3_base_endpoint"`
	RemoteBatchConcurrency int             `json:"remote_batch_concurrency"`
	MaxDecodedSize         int64           `json:"max_decoded_size"`
	ShutdownTimeout        timex.Duration  `json:"shutdown_timeout"`
}

// parseJson overlays values from the file named by -c/-config onto config.
// Fields missing from the file keep their current value. A missing flag
// means nothing is loaded; an unreadable or malformed file panics, since
// the server cannot start on a config it did not understand.
func parseJson(config *Config) {
	jsonConfigFile := flagx.ConfigFileFlag()
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	c.apply(config)
}

func (c *JsonConfig) apply(config *Config) {
	setString(&config.EndpointAddr, c.EndpointAddr)
	if c.LivenessAddr != nil {
		config.LivenessAddr = *c.LivenessAddr
	}
	if c.MetricsAddr != nil {
		config.MetricsAddr = *c.MetricsAddr
	}
	setString(&config.LogLevel, c.LogLevel)
	setString(&config.ResourcesDir, c.ResourcesDir)
	setString(&config.DirectoryPath, c.DirectoryPath)
	if c.DirectoryEncrypted != nil {
		config.DirectoryEncrypted = *c.DirectoryEncrypted
	}
	setString(&config.DirectoryDSN, c.DirectoryDSN)
	if c.DirectorySaveInterval.Duration > 0 {
		config.DirectorySaveInterval = c.DirectorySaveInterval.Duration
	}
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.DefaultStorage, c.DefaultStorage)
	if len(c.Storages) > 0 {
		config.Storages = c.Storages
	}
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	if c.RemoteBatchConcurrency > 0 {
		config.RemoteBatchConcurrency = c.RemoteBatchConcurrency
	}
	if c.MaxDecodedSize > 0 {
		config.MaxDecodedSize = c.MaxDecodedSize
	}
	if c.ShutdownTimeout.Duration > 0 {
		config.ShutdownTimeout = c.ShutdownTimeout.Duration
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

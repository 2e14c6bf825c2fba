package config

import (
	"os"
	"path/filepath"
	"time"
)

// Config holds runtime settings for the resvault CLI.
//
// Fields:
//   - ServerURL: base URL of the resource endpoint.
//   - TokenFile: where the session token is kept between invocations.
//   - Storage: storage instance name sent with /storage calls; "" is the server default.
//   - Encoding: content-encoding applied to uploads; "" sends them as is.
//   - TransferSpeed: KB per second for uploads and downloads; 0 is unthrottled.
//   - Timeout: per-request timeout; 0 disables it.
type Config struct {
	ServerURL     string
	TokenFile     string
	Storage       string
	Encoding      string
	TransferSpeed int
	Timeout       time.Duration
}

// userConfigDir is a test seam for os.UserConfigDir.
var userConfigDir = os.UserConfigDir

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerURL = "http://127.0.0.1:8080"
	c.TokenFile = defaultTokenFile()
	c.Storage = ""
	c.Encoding = ""
	c.TransferSpeed = 0
	c.Timeout = 0
}

func defaultTokenFile() string {
	dir, err := userConfigDir()
	if err != nil || dir == "" {
		return ".resvault-credentials.json"
	}
	return filepath.Join(dir, "resvault", "credentials.json")
}

// LoadConfig applies defaults and then the JSON file at path, if any.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if path == "" {
		return cfg, nil
	}
	if err := cfg.LoadFile(path); err != nil {
		return nil, err
	}
	return cfg, nil
}

package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/resvault/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Fields left
// out of the file keep their current value.
type JsonConfig struct {
	ServerURL     string         `json:"server_url"`
	TokenFile     string         `json:"token_file"`
	Storage       *string        `json:"storage"`
	Encoding      *string        `json:"encoding"`
	TransferSpeed *int           `json:"transfer_speed"`
	Timeout       timex.Duration `json:"timeout"`
}

// LoadFile overlays c with values from the JSON file at path.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	var jc JsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	if jc.ServerURL != "" {
		c.ServerURL = jc.ServerURL
	}
	if jc.TokenFile != "" {
		c.TokenFile = jc.TokenFile
	}
	if jc.Storage != nil {
		c.Storage = *jc.Storage
	}
	if jc.Encoding != nil {
		c.Encoding = *jc.Encoding
	}
	if jc.TransferSpeed != nil {
		c.TransferSpeed = *jc.TransferSpeed
	}
	if jc.Timeout.Duration != 0 {
		c.Timeout = jc.Timeout.Duration
	}
	return nil
}

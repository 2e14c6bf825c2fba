package cli

import (
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/resvault/internal/filex"
)

// Credentials is what the CLI remembers between invocations.
type Credentials struct {
	ServerURL string `json:"server_url"`
	UserName  string `json:"username"`
	Token     string `json:"token"`
}

// loadCredentials returns empty credentials when the file does not exist.
func loadCredentials(path string) (*Credentials, error) {
	data, err := filex.ReadFileIfExists(path)
	if err != nil {
		return nil, err
	}
	c := &Credentials{}
	if len(data) == 0 {
		return c, nil
	}
	if err := json.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parse credentials %s: %w", path, err)
	}
	return c, nil
}

func saveCredentials(path string, c *Credentials) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	if err := filex.EnsureParentDir(path); err != nil {
		return err
	}
	return filex.WriteFileAtomic(path, data, 0o600)
}
